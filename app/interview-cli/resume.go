package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func resumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Upload and analyze resumes",
	}
	cmd.AddCommand(resumeUploadCmd(), resumeAnalyzeCmd())
	return cmd
}

func resumeUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a PDF, DOC or DOCX resume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			last := -10
			r, err := a.api.UploadResume(cmd.Context(), filepath.Base(args[0]), data, func(sent, total int64) {
				if total <= 0 {
					return
				}
				if pct := int(sent * 100 / total); pct/10 != last/10 {
					last = pct
					fmt.Fprintf(out, "\rUploading... %3d%%", pct)
				}
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Uploaded %s as %s (%s)\n", r.FileName, r.ID, r.Status)
			return nil
		},
	}
}

func resumeAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <resume-id>",
		Short: "Run AI analysis on an uploaded resume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			an, err := a.api.AnalyzeResume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ATS score: %d\n\n%s\n", an.ATSScore, strings.TrimSpace(an.Summary))
			if len(an.Skills) > 0 {
				fmt.Fprintf(out, "\nSkills: %s\n", strings.Join(an.Skills, ", "))
			}
			printList(out, "Strengths", an.Strengths)
			printList(out, "To improve", an.Improvements)
			printList(out, "Suggested roles", an.SuggestedRoles)
			return nil
		},
	}
}
