package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/careerforge/careerforge/internal/client/channel"
	"github.com/careerforge/careerforge/internal/client/interviewapi"
	"github.com/careerforge/careerforge/internal/media"
	"github.com/careerforge/careerforge/internal/providers/stt"
	"github.com/careerforge/careerforge/internal/realtime"
	"github.com/careerforge/careerforge/internal/session"
	"github.com/careerforge/careerforge/internal/transcriber"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func practiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Run a practice interview, answering from a recorded audio file",
		RunE:  runPractice,
	}
	f := cmd.Flags()
	f.String("type", string(interviewapi.KindMock), "Interview type (mock, technical)")
	f.String("job", "", "Job id to tailor questions to")
	f.String("audio", "", "Raw 16kHz 16-bit mono audio used as the microphone (required)")
	f.Duration("answer-seconds", 20*time.Second, "How long to record each answer")
	f.StringSlice("answer", nil, "Typed answer per question, used when nothing was transcribed (repeatable)")
	f.Bool("no-socket", false, "Do not open the live socket channel")
	_ = cmd.MarkFlagRequired("audio")
	return cmd
}

// consoleNotifier prints user-facing messages; logs stay on stderr.
type consoleNotifier struct {
	out io.Writer
}

func (n consoleNotifier) Notify(level logrus.Level, msg string) {
	prefix := "i"
	switch level {
	case logrus.WarnLevel:
		prefix = "!"
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		prefix = "x"
	}
	fmt.Fprintf(n.out, "[%s] %s\n", prefix, msg)
}

type subscriber interface {
	On(event string, h channel.Handler) func()
}

// accountEvent is the loose shape of agent and outreach pushes.
type accountEvent struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// watchAccountEvents surfaces background agent and outreach activity that
// arrives on the user room while practising.
func watchAccountEvents(sub subscriber, notes session.Notifier) func() {
	show := func(label string) channel.Handler {
		return func(data json.RawMessage) {
			var ev accountEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				return
			}
			msg := ev.Message
			if msg == "" {
				msg = strings.TrimSpace(ev.Type + " " + ev.Status)
			}
			if msg == "" {
				return
			}
			notes.Notify(logrus.InfoLevel, label+": "+msg)
		}
	}
	offs := []func(){
		sub.On(realtime.EventAgentAction, show("Agent")),
		sub.On(realtime.EventOutreachUpdate, show("Outreach")),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func runPractice(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	kind, _ := f.GetString("type")
	jobID, _ := f.GetString("job")
	audioPath, _ := f.GetString("audio")
	answerFor, _ := f.GetDuration("answer-seconds")
	typed, _ := f.GetStringSlice("answer")
	noSocket, _ := f.GetBool("no-socket")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	notes := consoleNotifier{out: out}

	var ch session.Channel
	if !noSocket && a.cfg.SocketURL != "" {
		m := channel.New(channel.Options{
			URL:    a.cfg.SocketURL,
			Token:  a.cfg.Token,
			Logger: a.log,
			OnState: func(s channel.State) {
				a.log.WithField("state", s).Debug("socket state")
			},
		})
		defer m.Close()
		if err := m.Connect(ctx); err != nil {
			notes.Notify(logrus.WarnLevel, "Live updates unavailable, continuing without them")
			a.log.WithError(err).Debug("socket connect")
		}
		defer watchAccountEvents(m, notes)()
		ch = m
	}

	var engine transcriber.Engine
	if a.cfg.SpeechEnabled {
		gs, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			a.log.WithError(err).Warn("speech recognition unavailable")
		} else {
			defer gs.Close()
			engine = gs
		}
	}

	var ctrl *session.Controller
	tr := transcriber.New(engine, transcriber.Options{
		Language: a.cfg.SpeechLang,
		Logger:   a.log,
		OnUpdate: func(text string) { ctrl.UpdateTranscript(text) },
		OnError: func(err error) {
			notes.Notify(logrus.WarnLevel, "Speech recognition stopped: "+err.Error())
		},
	})

	ctrl = session.New(session.Config{
		API:         a.api,
		Channel:     ch,
		Acquirer:    &media.Acquirer{Device: &media.FileDevice{Path: audioPath}, Log: a.log},
		Transcriber: tr,
		Notifier:    notes,
		Logger:      a.log,
	})
	defer ctrl.Close()

	if err := ctrl.Start(ctx, interviewapi.Kind(kind), jobID); err != nil {
		var se *session.StartError
		if errors.As(err, &se) && se.PermissionDenied() {
			return fmt.Errorf("cannot read %s: permission denied", audioPath)
		}
		return err
	}

	for i := 0; ; i++ {
		snap := ctrl.Snapshot()
		if snap.Status != session.StatusInProgress || snap.CurrentQuestion == nil {
			break
		}
		q := snap.CurrentQuestion
		fmt.Fprintf(out, "\nQuestion %d/%d [%s, %s]\n  %s\n", snap.CurrentIndex+1, len(snap.Interview.Questions), q.Category, q.Difficulty, q.Text)

		if err := answer(ctx, ctrl, answerFor, typedAnswer(typed, i), out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if _, err := ctrl.Advance(ctx); err != nil {
			return err
		}
	}

	printResult(out, ctrl.Snapshot())
	return nil
}

func typedAnswer(typed []string, i int) string {
	if i < len(typed) {
		return typed[i]
	}
	return ""
}

// answer records one take, then submits it.
func answer(ctx context.Context, ctrl *session.Controller, d time.Duration, typed string, out io.Writer) error {
	if err := ctrl.StartRecording(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "  recording for %s...\n", d)
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	take, err := ctrl.StopRecording(stopCtx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if ctrl.Snapshot().LiveTranscript == "" && typed != "" {
		if err := ctrl.SetTranscript(typed); err != nil {
			return err
		}
	}
	if text := ctrl.Snapshot().LiveTranscript; text != "" {
		fmt.Fprintf(out, "  you said: %s\n", text)
	}
	fmt.Fprintf(out, "  captured %d bytes in %d chunks\n", len(take.Data), take.Chunks)

	resp, err := ctrl.SubmitAnswer(ctx)
	if err != nil {
		return err
	}
	if resp.Evaluation != nil {
		fmt.Fprintf(out, "  score %.1f/10: %s\n", resp.Evaluation.Score, resp.Evaluation.Feedback)
	}
	return nil
}

func printResult(out io.Writer, s session.Snapshot) {
	fmt.Fprintf(out, "\nInterview %s after %s\n", s.Status, s.Elapsed)
	if s.Interview == nil {
		return
	}
	iv := s.Interview
	fmt.Fprintf(out, "Answered %d of %d questions\n", len(iv.Responses), len(iv.Questions))
	if m := iv.Metrics; m != nil {
		fmt.Fprintf(out, "Overall %.0f  technical %.0f  communication %.0f  confidence %.0f\n",
			m.OverallScore, m.TechnicalScore, m.CommunicationScore, m.ConfidenceScore)
	}
	if iv.Passed != nil {
		verdict := "not passed"
		if *iv.Passed {
			verdict = "passed"
		}
		fmt.Fprintf(out, "Result: %s", verdict)
		if iv.DecisionReason != "" {
			fmt.Fprintf(out, " (%s)", iv.DecisionReason)
		}
		fmt.Fprintln(out)
	}
	if iv.Feedback != "" {
		fmt.Fprintf(out, "\n%s\n", strings.TrimSpace(iv.Feedback))
	}
}
