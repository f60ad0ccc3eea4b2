// Package session drives one candidate through an interview: it owns the
// capture devices, the recorder and transcriber, and the lifecycle of the
// interview on the server. The REST API is authoritative; the socket
// channel only carries advisory pushes.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careerforge/careerforge/internal/client/channel"
	"github.com/careerforge/careerforge/internal/client/interviewapi"
	"github.com/careerforge/careerforge/internal/media"
	"github.com/sirupsen/logrus"
)

type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

var (
	ErrInvalidState = errors.New("session: not allowed in current state")
	ErrBusy         = errors.New("session: a request is already in flight")
	// ErrStale is returned when a response arrives for a session that has
	// since ended or been reset. The response is not applied.
	ErrStale = errors.New("session: result discarded")
)

// StartError reports why an interview could not be started. The session
// stays in not-started.
type StartError struct {
	Stage string // validate, media, create, start
	Err   error
}

func (e *StartError) Error() string { return fmt.Sprintf("start interview (%s): %v", e.Stage, e.Err) }
func (e *StartError) Unwrap() error { return e.Err }

func (e *StartError) PermissionDenied() bool { return errors.Is(e.Err, media.ErrPermissionDenied) }

// API is the part of the interview client the controller calls.
type API interface {
	Create(ctx context.Context, p interviewapi.CreateParams) (*interviewapi.Interview, error)
	Start(ctx context.Context, interviewID string) (*interviewapi.Interview, error)
	SubmitAnswer(ctx context.Context, interviewID, questionID, answer string, audio *interviewapi.Audio) (*interviewapi.Response, error)
	NextQuestion(ctx context.Context, interviewID string) (*interviewapi.NextQuestion, error)
	Complete(ctx context.Context, interviewID string) (*interviewapi.Interview, error)
	Cancel(ctx context.Context, interviewID string) error
}

// Channel is the part of the socket manager the controller uses. Every
// emit is best effort.
type Channel interface {
	JoinRoom(room string) error
	LeaveRoom(room string) error
	StartSession(interviewID string) error
	EndSession(interviewID string) error
	SendAudio(interviewID string, index int64, chunk []byte, mime string, d time.Duration) error
	On(event string, h channel.Handler) func()
}

// Notifier shows short user-facing messages.
type Notifier interface {
	Notify(level logrus.Level, msg string)
}

type LogNotifier struct{ Log logrus.FieldLogger }

func (n LogNotifier) Notify(level logrus.Level, msg string) {
	n.Log.WithField("component", "notifier").Log(level, msg)
}

// Snapshot is a copy of the live session state.
type Snapshot struct {
	Status          Status
	Interview       *interviewapi.Interview
	CurrentQuestion *interviewapi.Question
	CurrentIndex    int
	LiveTranscript  string
	Recording       bool
	Processing      bool
	Loading         bool
	Nervousness     float64
	Elapsed         time.Duration
	AudioOnly       bool
	SpeechSupported bool
	Err             string
}
