package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/careerforge/careerforge/internal/client/channel"
	"github.com/careerforge/careerforge/internal/client/interviewapi"
	"github.com/careerforge/careerforge/internal/media"
	"github.com/careerforge/careerforge/internal/models"
	"github.com/sirupsen/logrus"
)

type answerCall struct {
	questionID string
	answer     string
	audio      *interviewapi.Audio
	key        string
}

type fakeAPI struct {
	mu        sync.Mutex
	questions []interviewapi.Question
	creates   int
	starts    int
	nexts     int
	cancels   int
	completes int
	answers   []answerCall
	endKeys   []string
	answered  []interviewapi.Response

	startErr    error
	submitErr   error
	completeErr error
	// nextComplete makes NextQuestion report the end of the interview.
	nextComplete bool
	// onSubmit runs inside SubmitAnswer before it returns.
	onSubmit func()
	onNext   func()
}

func newFakeAPI(n int) *fakeAPI {
	api := &fakeAPI{}
	for i := 1; i <= n; i++ {
		api.questions = append(api.questions, interviewapi.Question{
			ID:              fmt.Sprintf("q%d", i),
			Text:            fmt.Sprintf("Question %d?", i),
			Category:        models.CategoryBehavioral,
			Difficulty:      models.DifficultyMedium,
			Topic:           "General",
			ExpectedSeconds: 180,
		})
	}
	return api
}

func (a *fakeAPI) interview(status models.InterviewStatus) *interviewapi.Interview {
	return &interviewapi.Interview{
		ID:        "iv-1",
		UserID:    "u-1",
		Status:    status,
		Kind:      interviewapi.KindMock,
		Questions: append([]interviewapi.Question(nil), a.questions...),
		Responses: append([]interviewapi.Response(nil), a.answered...),
	}
}

func (a *fakeAPI) Create(_ context.Context, p interviewapi.CreateParams) (*interviewapi.Interview, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creates++
	iv := a.interview(models.StatusScheduled)
	iv.Kind = p.Kind
	return iv, nil
}

func (a *fakeAPI) Start(_ context.Context, id string) (*interviewapi.Interview, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts++
	if a.startErr != nil {
		return nil, a.startErr
	}
	return a.interview(models.StatusInProgress), nil
}

func (a *fakeAPI) SubmitAnswer(ctx context.Context, _, questionID, answer string, audio *interviewapi.Audio) (*interviewapi.Response, error) {
	a.mu.Lock()
	a.answers = append(a.answers, answerCall{questionID: questionID, answer: answer, audio: audio, key: interviewapi.IdempotencyKey(ctx)})
	hook, err := a.onSubmit, a.submitErr
	a.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	resp := interviewapi.Response{QuestionID: questionID, Answer: answer, Timestamp: time.Now()}
	a.mu.Lock()
	a.answered = append(a.answered, resp)
	a.mu.Unlock()
	return &resp, nil
}

func (a *fakeAPI) NextQuestion(context.Context, string) (*interviewapi.NextQuestion, error) {
	a.mu.Lock()
	hook := a.onNext
	a.mu.Unlock()
	if hook != nil {
		hook()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.nexts++
	n := len(a.answered)
	if a.nextComplete || n >= len(a.questions) {
		return &interviewapi.NextQuestion{Complete: true, Total: len(a.questions)}, nil
	}
	q := a.questions[n]
	return &interviewapi.NextQuestion{Question: &q, Number: n + 1, Total: len(a.questions)}, nil
}

func (a *fakeAPI) Complete(ctx context.Context, _ string) (*interviewapi.Interview, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.completes++
	a.endKeys = append(a.endKeys, interviewapi.IdempotencyKey(ctx))
	if a.completeErr != nil {
		return nil, a.completeErr
	}
	iv := a.interview(models.StatusCompleted)
	iv.Metrics = &models.Metrics{OverallScore: 82}
	return iv, nil
}

func (a *fakeAPI) Cancel(context.Context, string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancels++
	return nil
}

func (a *fakeAPI) calls() (creates, starts, cancels, completes int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.creates, a.starts, a.cancels, a.completes
}

func (a *fakeAPI) answerCalls() []answerCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]answerCall(nil), a.answers...)
}

// queueTrack hands out whatever chunks the test pushes.
type queueTrack struct {
	kind   media.Kind
	chunks chan []byte
	errs   chan error
	once   sync.Once
	done   chan struct{}
}

func newQueueTrack(kind media.Kind) *queueTrack {
	return &queueTrack{kind: kind, chunks: make(chan []byte, 32), errs: make(chan error, 1), done: make(chan struct{})}
}

func (t *queueTrack) Kind() media.Kind  { return t.kind }
func (t *queueTrack) MIMEType() string  { return "audio/webm" }
func (t *queueTrack) Stop()             { t.once.Do(func() { close(t.done) }) }
func (t *queueTrack) push(chunk string) { t.chunks <- []byte(chunk) }
func (t *queueTrack) fail(err error)    { t.errs <- err }

func (t *queueTrack) Live() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *queueTrack) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-t.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-t.errs:
		return nil, err
	case c := <-t.chunks:
		return c, nil
	}
}

type fakeDevice struct {
	mu       sync.Mutex
	videoErr error
	audioErr error
	opens    int
	audio    *queueTrack
	video    *queueTrack
}

func (d *fakeDevice) Open(_ context.Context, c media.Constraints) ([]media.Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if c.Video && d.videoErr != nil {
		return nil, d.videoErr
	}
	if d.audioErr != nil {
		return nil, d.audioErr
	}
	d.audio = newQueueTrack(media.KindAudio)
	out := []media.Track{d.audio}
	if c.Video {
		d.video = newQueueTrack(media.KindVideo)
		out = append(out, d.video)
	}
	return out, nil
}

func (d *fakeDevice) mic() *queueTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.audio
}

func (d *fakeDevice) anyLive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return (d.audio != nil && d.audio.Live()) || (d.video != nil && d.video.Live())
}

type audioSend struct {
	index int64
	chunk string
}

type fakeChannel struct {
	mu       sync.Mutex
	down     bool
	joined   []string
	left     []string
	started  []string
	ended    []string
	audio    []audioSend
	handlers map[string]channel.Handler
	// onJoin runs before a room join is recorded.
	onJoin func()
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: map[string]channel.Handler{}}
}

func (f *fakeChannel) record(dst *[]string, v string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return channel.ErrNotConnected
	}
	*dst = append(*dst, v)
	return nil
}

func (f *fakeChannel) LeaveRoom(room string) error  { return f.record(&f.left, room) }
func (f *fakeChannel) StartSession(id string) error { return f.record(&f.started, id) }
func (f *fakeChannel) EndSession(id string) error   { return f.record(&f.ended, id) }

func (f *fakeChannel) JoinRoom(room string) error {
	f.mu.Lock()
	hook := f.onJoin
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.record(&f.joined, room)
}

func (f *fakeChannel) strings(src *[]string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), *src...)
}

func (f *fakeChannel) handler(event string) channel.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[event]
}

func (f *fakeChannel) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeChannel) SendAudio(_ string, index int64, chunk []byte, _ string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return channel.ErrNotConnected
	}
	f.audio = append(f.audio, audioSend{index: index, chunk: string(chunk)})
	return nil
}

func (f *fakeChannel) audioSends() []audioSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audioSend(nil), f.audio...)
}

func (f *fakeChannel) On(event string, h channel.Handler) func() {
	f.mu.Lock()
	f.handlers[event] = h
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.handlers, event)
		f.mu.Unlock()
	}
}

// push delivers a server event the way the socket manager would.
func (f *fakeChannel) push(t *testing.T, event string, payload any) {
	t.Helper()
	h := f.handler(event)
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	h(b)
}

type note struct {
	level logrus.Level
	msg   string
}

type recordNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *recordNotifier) Notify(level logrus.Level, msg string) {
	n.mu.Lock()
	n.notes = append(n.notes, note{level, msg})
	n.mu.Unlock()
}

func (n *recordNotifier) count(level logrus.Level) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, x := range n.notes {
		if x.level == level {
			c++
		}
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
