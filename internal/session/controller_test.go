package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/careerforge/careerforge/internal/client/interviewapi"
	"github.com/careerforge/careerforge/internal/logger"
	"github.com/careerforge/careerforge/internal/media"
	"github.com/careerforge/careerforge/internal/providers/stt"
	"github.com/careerforge/careerforge/internal/realtime"
	"github.com/careerforge/careerforge/internal/transcriber"
	"github.com/careerforge/careerforge/internal/utils"
	"github.com/sirupsen/logrus"
)

type harness struct {
	api   *fakeAPI
	dev   *fakeDevice
	ch    *fakeChannel
	notes *recordNotifier
	ctrl  *Controller
}

func newHarness(t *testing.T, questions int, fix ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		api:   newFakeAPI(questions),
		dev:   &fakeDevice{},
		ch:    newFakeChannel(),
		notes: &recordNotifier{},
	}
	cfg := Config{
		API:      h.api,
		Channel:  h.ch,
		Acquirer: &media.Acquirer{Device: h.dev, Log: logger.Discard()},
		Notifier: h.notes,
		Logger:   logger.Discard(),
		Tick:     10 * time.Millisecond,
	}
	for _, f := range fix {
		f(&cfg)
	}
	h.ctrl = New(cfg)
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Start(context.Background(), interviewapi.KindMock, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// record captures one take made of chunks and waits until every chunk has
// been seen by the recorder.
func (h *harness) record(t *testing.T, chunks ...string) *media.Recording {
	t.Helper()
	before := len(h.ch.audioSends())
	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	for _, c := range chunks {
		h.dev.mic().push(c)
	}
	waitFor(t, "chunks captured", func() bool { return len(h.ch.audioSends()) == before+len(chunks) })
	rec, err := h.ctrl.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	return rec
}

func TestStartCreatesOnceAndShowsFirstQuestion(t *testing.T) {
	h := newHarness(t, 3)
	h.start(t)

	creates, starts, _, _ := h.api.calls()
	if creates != 1 || starts != 1 {
		t.Fatalf("creates=%d starts=%d, want 1 and 1", creates, starts)
	}
	s := h.ctrl.Snapshot()
	if s.Status != StatusInProgress {
		t.Fatalf("status = %s", s.Status)
	}
	if s.CurrentIndex != 0 || s.CurrentQuestion == nil || s.CurrentQuestion.ID != "q1" {
		t.Fatalf("current = %d %+v, want first question", s.CurrentIndex, s.CurrentQuestion)
	}
	if s.Loading {
		t.Fatal("loading left set")
	}
	if !h.ctrl.TimerRunning() {
		t.Fatal("timer not running")
	}
	if got := h.ch.strings(&h.ch.joined); len(got) != 1 || got[0] != realtime.InterviewRoom("iv-1") {
		t.Fatalf("joined = %v", got)
	}
	if got := h.ch.strings(&h.ch.started); len(got) != 1 {
		t.Fatalf("start announcements = %v", got)
	}

	if err := h.ctrl.Start(context.Background(), interviewapi.KindMock, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Start err = %v, want ErrInvalidState", err)
	}
	if creates, _, _, _ := h.api.calls(); creates != 1 {
		t.Fatalf("creates = %d after second Start", creates)
	}
}

func TestStartFailures(t *testing.T) {
	tests := []struct {
		name        string
		kind        interviewapi.Kind
		videoErr    error
		audioErr    error
		startErr    error
		stage       string
		denied      bool
		wantCreates int
		wantCancels int
	}{
		{name: "camera denied", kind: interviewapi.KindMock, videoErr: media.ErrPermissionDenied, stage: "media", denied: true},
		{name: "no microphone", kind: interviewapi.KindMock, videoErr: media.ErrNoDevice, audioErr: media.ErrNoDevice, stage: "media"},
		{name: "screening not offered", kind: interviewapi.KindScreening, stage: "validate"},
		{
			name:        "start rejected",
			kind:        interviewapi.KindTechnical,
			startErr:    utils.E(utils.CodeUnavailable, "Start", "down", nil),
			stage:       "start",
			wantCreates: 1,
			wantCancels: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 3)
			h.dev.videoErr, h.dev.audioErr = tt.videoErr, tt.audioErr
			h.api.startErr = tt.startErr

			err := h.ctrl.Start(context.Background(), tt.kind, "")
			var se *StartError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *StartError", err)
			}
			if se.Stage != tt.stage {
				t.Errorf("stage = %q, want %q", se.Stage, tt.stage)
			}
			if se.PermissionDenied() != tt.denied {
				t.Errorf("PermissionDenied = %v", se.PermissionDenied())
			}
			creates, _, cancels, _ := h.api.calls()
			if creates != tt.wantCreates || cancels != tt.wantCancels {
				t.Errorf("creates=%d cancels=%d, want %d and %d", creates, cancels, tt.wantCreates, tt.wantCancels)
			}
			s := h.ctrl.Snapshot()
			if s.Status != StatusNotStarted || s.Loading {
				t.Errorf("status=%s loading=%v", s.Status, s.Loading)
			}
			if s.Err == "" {
				t.Error("error not surfaced")
			}
			if h.dev.anyLive() {
				t.Error("devices still held")
			}
			if h.ctrl.TimerRunning() {
				t.Error("timer running")
			}
		})
	}
}

func TestStartWithoutCameraContinuesAudioOnly(t *testing.T) {
	h := newHarness(t, 3)
	h.dev.videoErr = media.ErrNoDevice
	h.start(t)

	if s := h.ctrl.Snapshot(); !s.AudioOnly || s.Status != StatusInProgress {
		t.Fatalf("snapshot = %+v, want audio-only in progress", s)
	}
	if h.notes.count(logrus.WarnLevel) == 0 {
		t.Fatal("no warning shown for missing camera")
	}
}

func TestFullInterviewCompletes(t *testing.T) {
	h := newHarness(t, 3)
	h.start(t)

	for i := 0; i < 3; i++ {
		rec := h.record(t, "a", "b", "c")
		if string(rec.Data) != "abc" || rec.Chunks != 3 {
			t.Fatalf("take %d = %q (%d chunks)", i, rec.Data, rec.Chunks)
		}
		if err := h.ctrl.SetTranscript("answer " + string(rune('1'+i))); err != nil {
			t.Fatal(err)
		}
		if _, err := h.ctrl.SubmitAnswer(context.Background()); err != nil {
			t.Fatalf("SubmitAnswer %d: %v", i, err)
		}
		s := h.ctrl.Snapshot()
		if len(s.Interview.Responses) > len(s.Interview.Questions) {
			t.Fatalf("responses %d exceed questions %d", len(s.Interview.Responses), len(s.Interview.Questions))
		}
		if s.LiveTranscript != "" {
			t.Fatalf("transcript not cleared after submit: %q", s.LiveTranscript)
		}
		q, err := h.ctrl.Advance(context.Background())
		if err != nil {
			t.Fatalf("Advance %d: %v", i, err)
		}
		if i < 2 {
			if q == nil || q.ID != h.api.questions[i+1].ID {
				t.Fatalf("next question = %+v", q)
			}
			if s := h.ctrl.Snapshot(); s.CurrentIndex != i+1 {
				t.Fatalf("index = %d, want %d", s.CurrentIndex, i+1)
			}
		}
	}

	s := h.ctrl.Snapshot()
	if s.Status != StatusCompleted {
		t.Fatalf("status = %s", s.Status)
	}
	if s.Interview.Metrics == nil || s.Interview.Metrics.OverallScore != 82 {
		t.Fatalf("metrics = %+v", s.Interview.Metrics)
	}
	if len(s.Interview.Responses) != 3 {
		t.Fatalf("responses = %d", len(s.Interview.Responses))
	}
	if h.dev.anyLive() {
		t.Fatal("devices still held after completion")
	}
	if h.ctrl.TimerRunning() {
		t.Fatal("timer still running")
	}
	if got := h.ch.strings(&h.ch.left); len(got) != 1 {
		t.Fatalf("left rooms = %v", got)
	}
	if h.ch.handler(realtime.EventNervousness) != nil {
		t.Fatal("push handlers still registered")
	}

	answers := h.api.answerCalls()
	if len(answers) != 3 {
		t.Fatalf("answer calls = %d", len(answers))
	}
	for _, a := range answers {
		if a.audio == nil || string(a.audio.Data) != "abc" {
			t.Fatalf("answer %s audio = %+v", a.questionID, a.audio)
		}
	}
	sends := h.ch.audioSends()
	for i, s := range sends {
		if s.index != int64(i) {
			t.Fatalf("chunk index %d at position %d", s.index, i)
		}
	}
}

func TestSubmitAnswerProcessingFlag(t *testing.T) {
	for _, fail := range []bool{false, true} {
		name := "success"
		if fail {
			name = "failure"
		}
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 3)
			h.start(t)

			var during bool
			h.api.onSubmit = func() { during = h.ctrl.Snapshot().Processing }
			if fail {
				h.api.submitErr = utils.E(utils.CodeUnavailable, "SubmitAnswer", "service unavailable", nil)
			}
			if err := h.ctrl.SetTranscript("I led the migration"); err != nil {
				t.Fatal(err)
			}

			_, err := h.ctrl.SubmitAnswer(context.Background())
			if (err != nil) != fail {
				t.Fatalf("err = %v", err)
			}
			if !during {
				t.Error("processing not set during the call")
			}
			s := h.ctrl.Snapshot()
			if s.Processing {
				t.Error("processing left set")
			}
			if s.Status != StatusInProgress {
				t.Errorf("status = %s", s.Status)
			}
			if fail {
				if s.Err != "service unavailable" {
					t.Errorf("err shown = %q", s.Err)
				}
				if s.LiveTranscript != "I led the migration" {
					t.Errorf("transcript lost on failure: %q", s.LiveTranscript)
				}
				if h.notes.count(logrus.ErrorLevel) == 0 {
					t.Error("failure not notified")
				}
			} else if len(s.Interview.Responses) != 1 {
				t.Errorf("responses = %d", len(s.Interview.Responses))
			}
		})
	}
}

func TestSubmitRetryReusesKey(t *testing.T) {
	h := newHarness(t, 3)
	h.start(t)
	h.record(t, "x")
	h.api.submitErr = errors.New("connection reset")

	if _, err := h.ctrl.SubmitAnswer(context.Background()); err == nil {
		t.Fatal("want error")
	}
	h.api.mu.Lock()
	h.api.submitErr = nil
	h.api.mu.Unlock()
	if _, err := h.ctrl.SubmitAnswer(context.Background()); err != nil {
		t.Fatal(err)
	}

	calls := h.api.answerCalls()
	if len(calls) != 2 || calls[0].key == "" || calls[0].key != calls[1].key {
		t.Fatalf("keys = %+v", calls)
	}
	if n := len(h.ctrl.Snapshot().Interview.Responses); n != 1 {
		t.Fatalf("responses = %d", n)
	}
}

func TestSubmitEmptyAnswerRejected(t *testing.T) {
	h := newHarness(t, 3)
	h.start(t)

	_, err := h.ctrl.SubmitAnswer(context.Background())
	if !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("err = %v, want INVALID_ARGUMENT", err)
	}
	if n := len(h.api.answerCalls()); n != 0 {
		t.Fatalf("answer calls = %d", n)
	}
}

func TestGuards(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	if _, err := h.ctrl.SubmitAnswer(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("submit before start: %v", err)
	}
	if err := h.ctrl.StartRecording(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("record before start: %v", err)
	}
	if _, err := h.ctrl.End(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("end before start: %v", err)
	}

	h.start(t)
	if _, err := h.ctrl.Advance(ctx); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Errorf("advance before answering: %v", err)
	}
	if err := h.ctrl.StartRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.StartRecording(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second StartRecording: %v", err)
	}
	if err := h.ctrl.SetTranscript("typed"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("typing while recording: %v", err)
	}
	if _, err := h.ctrl.SubmitAnswer(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("submit while recording: %v", err)
	}
	if _, err := h.ctrl.StopRecording(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.StopRecording(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("stop twice: %v", err)
	}
}

func TestTranscriptClearedOnNewRecording(t *testing.T) {
	h := newHarness(t, 3, func(c *Config) { c.Transcriber = transcriber.Unavailable{} })
	h.start(t)

	if err := h.ctrl.SetTranscript("stale"); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.ctrl.Snapshot().LiveTranscript; got != "" {
		t.Fatalf("transcript = %q, want cleared", got)
	}
	if h.notes.count(logrus.WarnLevel) != 1 {
		t.Fatalf("want one unsupported warning, got %d", h.notes.count(logrus.WarnLevel))
	}
}

func TestServerTranscriptFillsInWhileRecording(t *testing.T) {
	h := newHarness(t, 3)
	h.start(t)

	push := func(text string) {
		h.ch.push(t, realtime.EventTranscript, realtime.TranscriptPayload{InterviewID: "iv-1", Text: text, IsFinal: true})
	}
	push("ignored")
	if got := h.ctrl.Snapshot().LiveTranscript; got != "" {
		t.Fatalf("applied while idle: %q", got)
	}

	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	push("hello")
	push("world")
	h.ch.push(t, realtime.EventTranscript, realtime.TranscriptPayload{InterviewID: "other", Text: "nope"})
	if got := h.ctrl.Snapshot().LiveTranscript; got != "hello world" {
		t.Fatalf("transcript = %q", got)
	}
}

func TestNervousnessSmoothing(t *testing.T) {
	h := newHarness(t, 3)
	h.start(t)

	h.ch.push(t, realtime.EventNervousness, realtime.NervousnessPayload{InterviewID: "iv-1", Level: 1})
	h.ch.push(t, realtime.EventNervousness, realtime.NervousnessPayload{InterviewID: "iv-1", Level: 1})
	got := h.ctrl.Snapshot().Nervousness
	if got < 0.509 || got > 0.511 {
		t.Fatalf("nervousness = %v, want 0.51", got)
	}
}

func TestLateAnswerDiscardedAfterEnd(t *testing.T) {
	h := newHarness(t, 3)
	h.start(t)

	entered, release := make(chan struct{}), make(chan struct{})
	h.api.onSubmit = func() {
		close(entered)
		<-release
	}
	if err := h.ctrl.SetTranscript("slow answer"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var submitErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, submitErr = h.ctrl.SubmitAnswer(context.Background())
	}()
	<-entered

	final, err := h.ctrl.End(context.Background())
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	close(release)
	wg.Wait()

	if !errors.Is(submitErr, ErrStale) {
		t.Fatalf("submit err = %v, want ErrStale", submitErr)
	}
	s := h.ctrl.Snapshot()
	if s.Status != StatusCompleted {
		t.Fatalf("status = %s", s.Status)
	}
	if len(s.Interview.Responses) != len(final.Responses) {
		t.Fatalf("late result applied: %d responses, final had %d", len(s.Interview.Responses), len(final.Responses))
	}
}

func TestEndFailureStillReleasesDevices(t *testing.T) {
	h := newHarness(t, 3)
	h.start(t)
	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.api.completeErr = utils.E(utils.CodeUnavailable, "Complete", "try again later", nil)

	if _, err := h.ctrl.End(context.Background()); err == nil {
		t.Fatal("want error")
	}
	s := h.ctrl.Snapshot()
	if s.Status != StatusInProgress || s.Recording {
		t.Fatalf("status=%s recording=%v", s.Status, s.Recording)
	}
	if h.dev.anyLive() {
		t.Fatal("devices held after failed end")
	}
	if h.ctrl.TimerRunning() {
		t.Fatal("timer running after failed end")
	}

	h.api.mu.Lock()
	h.api.completeErr = nil
	h.api.mu.Unlock()
	if _, err := h.ctrl.End(context.Background()); err != nil {
		t.Fatalf("retry End: %v", err)
	}
	if h.ctrl.Snapshot().Status != StatusCompleted {
		t.Fatal("not completed after retry")
	}
	if keys := h.api.endKeys; len(keys) != 2 || keys[0] != keys[1] {
		t.Fatalf("complete keys = %v", keys)
	}
}

func TestChannelDownFallsBackToREST(t *testing.T) {
	h := newHarness(t, 1)
	h.ch.down = true
	h.start(t)

	h.record(t)
	if err := h.ctrl.SetTranscript("typed answer"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.SubmitAnswer(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.Advance(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s := h.ctrl.Snapshot(); s.Status != StatusCompleted {
		t.Fatalf("status = %s", s.Status)
	}
}

func TestAdvanceEndsWhenServerHasNoMoreQuestions(t *testing.T) {
	h := newHarness(t, 3)
	h.api.nextComplete = true
	h.start(t)

	if err := h.ctrl.SetTranscript("done"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.SubmitAnswer(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.Advance(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s := h.ctrl.Snapshot(); s.Status != StatusCompleted {
		t.Fatalf("status = %s", s.Status)
	}
}

func TestTimerTicksAndStops(t *testing.T) {
	h := newHarness(t, 3)
	h.start(t)

	waitFor(t, "elapsed time", func() bool { return h.ctrl.Snapshot().Elapsed > 0 })
	if _, err := h.ctrl.End(context.Background()); err != nil {
		t.Fatal(err)
	}
	frozen := h.ctrl.Snapshot().Elapsed
	time.Sleep(40 * time.Millisecond)
	if got := h.ctrl.Snapshot().Elapsed; got != frozen {
		t.Fatalf("elapsed moved after end: %v -> %v", frozen, got)
	}
}

func TestCancelAndReset(t *testing.T) {
	h := newHarness(t, 3)
	h.start(t)

	if err := h.ctrl.Cancel(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s := h.ctrl.Snapshot(); s.Status != StatusCancelled {
		t.Fatalf("status = %s", s.Status)
	}
	if h.dev.anyLive() {
		t.Fatal("devices held after cancel")
	}

	h.ctrl.Reset()
	h.ctrl.Reset()
	s := h.ctrl.Snapshot()
	if s.Status != StatusNotStarted || s.Interview != nil || s.CurrentQuestion != nil || s.Elapsed != 0 {
		t.Fatalf("reset left state: %+v", s)
	}
	h.start(t)
	if creates, _, _, _ := h.api.calls(); creates != 2 {
		t.Fatalf("creates = %d", creates)
	}
}

func TestResetDuringStartDropsHandlers(t *testing.T) {
	h := newHarness(t, 3)
	h.ch.onJoin = func() { h.ctrl.Reset() }
	h.start(t)

	if n := h.ch.handlerCount(); n != 0 {
		t.Fatalf("handlers left after reset = %d", n)
	}
	if s := h.ctrl.Snapshot(); s.Status != StatusNotStarted {
		t.Fatalf("status = %s", s.Status)
	}
	if len(h.ch.strings(&h.ch.left)) == 0 {
		t.Error("room never left")
	}
}

func TestAdvanceStaleClearsProcessing(t *testing.T) {
	var mu sync.Mutex
	var last Snapshot
	h := newHarness(t, 3, func(c *Config) {
		c.OnChange = func(s Snapshot) {
			mu.Lock()
			last = s
			mu.Unlock()
		}
	})
	h.start(t)
	if err := h.ctrl.SetTranscript("answer"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.SubmitAnswer(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.api.onNext = func() {
		if err := h.ctrl.Cancel(context.Background()); err != nil {
			t.Error(err)
		}
	}

	if _, err := h.ctrl.Advance(context.Background()); !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if last.Processing {
		t.Fatal("observer still sees processing")
	}
	if last.Status != StatusCancelled {
		t.Errorf("status = %s", last.Status)
	}
}

func TestRecognitionStopsWithRecording(t *testing.T) {
	var mu sync.Mutex
	passes := 0
	eng := engineFunc(func(ctx context.Context, audio <-chan []byte, emit func(stt.Result)) error {
		mu.Lock()
		passes++
		mu.Unlock()
		return stt.ErrNoSpeech
	})
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return passes
	}

	var ctrl *Controller
	tr := transcriber.New(eng, transcriber.Options{
		Logger:   logger.Discard(),
		Pause:    time.Millisecond,
		OnUpdate: func(s string) { ctrl.UpdateTranscript(s) },
	})
	h := newHarness(t, 3, func(c *Config) { c.Transcriber = tr })
	ctrl = h.ctrl
	h.start(t)

	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "restarts after silence", func() bool { return count() >= 3 })
	if _, err := h.ctrl.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tr.Listening() {
		t.Fatal("still listening after stop")
	}
	stopped := count()
	time.Sleep(30 * time.Millisecond)
	if got := count(); got != stopped {
		t.Fatalf("recognition restarted after stop: %d -> %d", stopped, got)
	}
}

func TestLiveTranscriptFromRecognizer(t *testing.T) {
	eng := engineFunc(func(ctx context.Context, audio <-chan []byte, emit func(stt.Result)) error {
		for chunk := range audio {
			emit(stt.Result{Text: strings.ToUpper(string(chunk)), Final: true})
		}
		return nil
	})
	var ctrl *Controller
	tr := transcriber.New(eng, transcriber.Options{
		Logger:   logger.Discard(),
		Pause:    time.Millisecond,
		OnUpdate: func(s string) { ctrl.UpdateTranscript(s) },
	})
	h := newHarness(t, 3, func(c *Config) { c.Transcriber = tr })
	ctrl = h.ctrl
	h.start(t)

	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.dev.mic().push("hello")
	waitFor(t, "live transcript", func() bool { return h.ctrl.Snapshot().LiveTranscript == "HELLO" })
	if _, err := h.ctrl.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.ctrl.Snapshot().LiveTranscript; got != "HELLO" {
		t.Fatalf("transcript after stop = %q", got)
	}
	if _, err := h.ctrl.SubmitAnswer(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls := h.api.answerCalls(); calls[0].answer != "HELLO" {
		t.Fatalf("answer sent = %q", calls[0].answer)
	}
}

func TestStopKeepsTrailingInterim(t *testing.T) {
	eng := engineFunc(func(ctx context.Context, audio <-chan []byte, emit func(stt.Result)) error {
		emit(stt.Result{Text: "I worked on", Final: true})
		emit(stt.Result{Text: "distributed caching"})
		for range audio {
		}
		return nil
	})
	var ctrl *Controller
	tr := transcriber.New(eng, transcriber.Options{
		Logger:   logger.Discard(),
		Pause:    time.Millisecond,
		OnUpdate: func(s string) { ctrl.UpdateTranscript(s) },
	})
	h := newHarness(t, 3, func(c *Config) { c.Transcriber = tr })
	ctrl = h.ctrl
	h.start(t)

	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	const said = "I worked on distributed caching"
	waitFor(t, "interim shown", func() bool { return h.ctrl.Snapshot().LiveTranscript == said })
	if _, err := h.ctrl.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.ctrl.Snapshot().LiveTranscript; got != said {
		t.Fatalf("transcript after stop = %q, want %q", got, said)
	}
	if _, err := h.ctrl.SubmitAnswer(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls := h.api.answerCalls(); calls[0].answer != said {
		t.Fatalf("answer sent = %q", calls[0].answer)
	}
}

func TestDeviceErrorEndsTake(t *testing.T) {
	h := newHarness(t, 3)
	h.start(t)

	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.dev.mic().push("a")
	waitFor(t, "chunk captured", func() bool { return len(h.ch.audioSends()) == 1 })
	h.dev.mic().fail(errors.New("device read failed"))

	take, err := h.ctrl.StopRecording(context.Background())
	if err == nil || !strings.Contains(err.Error(), "device read failed") {
		t.Fatalf("err = %v", err)
	}
	if take == nil || string(take.Data) != "a" {
		t.Fatalf("partial take = %+v", take)
	}
	snap := h.ctrl.Snapshot()
	if snap.Recording {
		t.Fatal("still recording after device error")
	}
	if snap.Err == "" {
		t.Error("device error not surfaced")
	}
	if _, err := h.ctrl.StopRecording(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second stop err = %v", err)
	}

	rec := h.record(t, "b")
	if string(rec.Data) != "b" {
		t.Fatalf("retake = %q", rec.Data)
	}
	if err := h.ctrl.SetTranscript("my answer"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.SubmitAnswer(context.Background()); err != nil {
		t.Fatalf("submit after retake: %v", err)
	}
}

type engineFunc func(ctx context.Context, audio <-chan []byte, emit func(stt.Result)) error

func (f engineFunc) Listen(ctx context.Context, audio <-chan []byte, _, _ string, emit func(stt.Result)) error {
	return f(ctx, audio, emit)
}
