package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/careerforge/careerforge/internal/client/interviewapi"
	"github.com/careerforge/careerforge/internal/models"
	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"
)

const historySheet = "History"

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past interviews",
		RunE:  runHistory,
	}
	f := cmd.Flags()
	f.String("status", "", "Filter by status (scheduled, in-progress, completed, cancelled)")
	f.String("type", "", "Filter by type (mock, screening, technical)")
	f.Int("limit", 20, "Maximum interviews to list")
	f.StringP("export", "o", "", "Also write the list to an .xlsx file")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	status, _ := f.GetString("status")
	kind, _ := f.GetString("type")
	limit, _ := f.GetInt("limit")
	export, _ := f.GetString("export")

	items, err := a.api.History(cmd.Context(), interviewapi.HistoryQuery{
		Status: models.InterviewStatus(status),
		Kind:   interviewapi.Kind(kind),
		Limit:  limit,
	})
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), items)

	if export != "" {
		if err := writeHistory(export, items); err != nil {
			return fmt.Errorf("export history: %w", err)
		}
		a.log.WithField("path", export).Infof("exported %d interviews", len(items))
	}
	return nil
}

func printHistory(out io.Writer, items []interviewapi.Interview) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No interviews yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tSTARTED\tANSWERED\tSCORE")
	for _, iv := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			iv.ID, iv.Kind, iv.Status, formatTime(iv.StartedAt),
			len(iv.Responses), len(iv.Questions), score(iv))
	}
	_ = w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func score(iv interviewapi.Interview) string {
	if iv.Metrics == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f", iv.Metrics.OverallScore)
}

var historyHeader = []any{
	"Interview ID", "Type", "Status", "Started", "Completed", "Duration (s)",
	"Questions", "Answered", "Overall", "Technical", "Communication", "Confidence", "Passed",
}

// writeHistory saves one row per interview to an xlsx workbook.
func writeHistory(path string, items []interviewapi.Interview) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(historySheet, "A1", &historyHeader); err != nil {
		return err
	}
	for i, iv := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			iv.ID, string(iv.Kind), string(iv.Status), formatTime(iv.StartedAt), formatTime(iv.CompletedAt),
			iv.Duration, len(iv.Questions), len(iv.Responses),
		}
		if m := iv.Metrics; m != nil {
			row = append(row, m.OverallScore, m.TechnicalScore, m.CommunicationScore, m.ConfidenceScore)
		} else {
			row = append(row, "", "", "", "")
		}
		switch {
		case iv.Passed == nil:
			row = append(row, "")
		case *iv.Passed:
			row = append(row, "yes")
		default:
			row = append(row, "no")
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(historySheet, "A", "A", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(historySheet, "D", "E", 18); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func feedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <interview-id>",
		Short: "Show feedback for a completed interview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			fb, err := a.api.Feedback(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.TrimSpace(fb.OverallFeedback))
			printList(out, "Strengths", fb.Strengths)
			printList(out, "To improve", fb.Improvements)
			printList(out, "Resources", fb.Resources)
			return nil
		},
	}
}

func printList(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	for _, s := range items {
		fmt.Fprintf(out, "  - %s\n", s)
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <interview-id>",
		Short: "Cancel a scheduled or running interview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := a.api.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Interview %s cancelled\n", args[0])
			return nil
		},
	}
}
