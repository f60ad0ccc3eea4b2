package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/careerforge/careerforge/internal/client/interviewapi"
	"github.com/careerforge/careerforge/internal/media"
	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/realtime"
	"github.com/careerforge/careerforge/internal/transcriber"
	"github.com/careerforge/careerforge/internal/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Config struct {
	API         API
	Channel     Channel // optional
	Acquirer    *media.Acquirer
	Transcriber transcriber.Transcriber // nil means unavailable
	Notifier    Notifier
	Logger      logrus.FieldLogger

	// Tick is the elapsed-time timer period, one second by default.
	Tick time.Duration
	// OnChange is called after every state change, outside the lock.
	OnChange func(Snapshot)
}

type Controller struct {
	cfg Config
	log logrus.FieldLogger

	mu          sync.Mutex
	status      Status
	interview   *interviewapi.Interview
	current     *interviewapi.Question
	index       int
	live        string
	recording   bool
	processing  bool
	loading     bool
	nervousness float64
	elapsed     time.Duration
	lastErr     string

	// epoch changes whenever the session ends or resets; async results
	// captured under an older epoch are dropped
	epoch uint64

	stream    *media.Stream
	recorder  *media.Recorder
	feed      chan []byte
	take      *media.Recording
	takeKey   string
	endKey    string
	chunkBase int64

	timerStop chan struct{}
	timerDone chan struct{}
	offs      []func()
	warned    bool
}

func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{Log: cfg.Logger}
	}
	if cfg.Transcriber == nil {
		cfg.Transcriber = transcriber.Unavailable{}
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Controller{
		cfg:      cfg,
		log:      cfg.Logger.WithField("component", "session"),
		status:   StatusNotStarted,
		recorder: &media.Recorder{},
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Status:          c.status,
		CurrentIndex:    c.index,
		LiveTranscript:  c.live,
		Recording:       c.recording,
		Processing:      c.processing,
		Loading:         c.loading,
		Nervousness:     c.nervousness,
		Elapsed:         c.elapsed,
		SpeechSupported: c.cfg.Transcriber.Supported(),
		Err:             c.lastErr,
	}
	if c.interview != nil {
		iv := *c.interview
		iv.Questions = append([]interviewapi.Question(nil), c.interview.Questions...)
		iv.Responses = append([]interviewapi.Response(nil), c.interview.Responses...)
		s.Interview = &iv
	}
	if c.current != nil {
		q := *c.current
		s.CurrentQuestion = &q
	}
	if c.stream != nil {
		s.AudioOnly = c.stream.AudioOnly()
	}
	return s
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) changed() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(c.Snapshot())
	}
}

// fail records a user-visible error and notifies.
func (c *Controller) fail(err error) error {
	msg := utils.Message(err)
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
	c.cfg.Notifier.Notify(logrus.ErrorLevel, msg)
	c.changed()
	return err
}

// Start acquires capture devices, then creates and starts the interview.
// Devices come first so a denied permission leaves nothing behind on the
// server.
func (c *Controller) Start(ctx context.Context, kind interviewapi.Kind, jobID string) error {
	c.mu.Lock()
	if c.status != StatusNotStarted || c.loading {
		c.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidState, c.status)
	}
	c.loading = true
	c.lastErr = ""
	epoch := c.epoch
	c.mu.Unlock()
	c.changed()

	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
		c.changed()
	}()

	if kind != interviewapi.KindMock && kind != interviewapi.KindTechnical {
		return c.fail(&StartError{Stage: "validate", Err: utils.E(utils.CodeInvalidArgument, "Session.Start", "interview type must be mock or technical", nil)})
	}

	var stream *media.Stream
	if c.cfg.Acquirer != nil {
		s, err := c.cfg.Acquirer.Acquire(ctx)
		if err != nil {
			if errors.Is(err, media.ErrPermissionDenied) {
				err = utils.E(utils.CodeForbidden, "Session.Start", "camera and microphone access is required", err)
			}
			return c.fail(&StartError{Stage: "media", Err: err})
		}
		stream = s
		if s.AudioOnly() {
			c.cfg.Notifier.Notify(logrus.WarnLevel, "Camera unavailable, continuing with audio only")
		}
	}

	iv, err := c.cfg.API.Create(ctx, interviewapi.CreateParams{Kind: kind, JobID: jobID})
	if err != nil {
		releaseStream(stream)
		return c.fail(&StartError{Stage: "create", Err: err})
	}
	startCtx := interviewapi.WithIdempotencyKey(ctx, uuid.NewString())
	started, err := c.cfg.API.Start(startCtx, iv.ID)
	if err != nil {
		releaseStream(stream)
		c.abandon(iv.ID)
		return c.fail(&StartError{Stage: "start", Err: err})
	}

	c.mu.Lock()
	if c.epoch != epoch || c.status != StatusNotStarted {
		// reset while starting
		c.mu.Unlock()
		releaseStream(stream)
		c.abandon(started.ID)
		return ErrStale
	}
	c.interview = started
	c.status = StatusInProgress
	c.index = 0
	c.current = nil
	if len(started.Questions) > 0 {
		q := started.Questions[0]
		c.current = &q
	}
	c.live = ""
	c.nervousness = 0
	c.elapsed = 0
	c.stream = stream
	c.endKey = uuid.NewString()
	c.startTimerLocked()
	c.mu.Unlock()

	c.attachChannel(started.ID, epoch)
	c.cfg.Notifier.Notify(logrus.InfoLevel, "Interview started")
	return nil
}

// abandon cancels an interview the candidate never got to use.
func (c *Controller) abandon(interviewID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cfg.API.Cancel(ctx, interviewID); err != nil {
		c.log.WithError(err).WithField("interview_id", interviewID).Warn("cancel abandoned interview")
	}
}

func releaseStream(s *media.Stream) {
	if s != nil {
		s.Stop()
	}
}

// SetTranscript replaces the live transcript, for typed answers.
func (c *Controller) SetTranscript(text string) error {
	c.mu.Lock()
	if c.status != StatusInProgress || c.recording {
		c.mu.Unlock()
		return fmt.Errorf("%w: transcript is read-only while recording", ErrInvalidState)
	}
	if text != c.live {
		c.takeKey = ""
	}
	c.live = text
	c.mu.Unlock()
	c.changed()
	return nil
}

// SubmitAnswer sends the live transcript and the last recorded take for
// the current question. Processing is set for the whole call.
func (c *Controller) SubmitAnswer(ctx context.Context) (*interviewapi.Response, error) {
	const op = "Session.SubmitAnswer"

	c.mu.Lock()
	switch {
	case c.status != StatusInProgress:
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: submit from %s", ErrInvalidState, c.status)
	case c.recording:
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: stop recording first", ErrInvalidState)
	case c.processing:
		c.mu.Unlock()
		return nil, ErrBusy
	case c.current == nil:
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: no current question", ErrInvalidState)
	}
	answer, take := c.live, c.take
	if answer == "" && (take == nil || len(take.Data) == 0) {
		c.mu.Unlock()
		return nil, c.fail(utils.E(utils.CodeInvalidArgument, op, "answer is empty: record or type an answer first", nil))
	}
	if c.takeKey == "" {
		c.takeKey = uuid.NewString()
	}
	interviewID, questionID, key, epoch := c.interview.ID, c.current.ID, c.takeKey, c.epoch
	c.processing = true
	c.lastErr = ""
	c.mu.Unlock()
	c.changed()

	defer func() {
		c.mu.Lock()
		c.processing = false
		c.mu.Unlock()
		c.changed()
	}()

	var audio *interviewapi.Audio
	if take != nil && len(take.Data) > 0 {
		audio = &interviewapi.Audio{Data: take.Data, MIMEType: take.MIMEType, Seconds: int(take.Duration.Round(time.Second) / time.Second)}
	}
	resp, err := c.cfg.API.SubmitAnswer(interviewapi.WithIdempotencyKey(ctx, key), interviewID, questionID, answer, audio)
	if err != nil {
		return nil, c.fail(err)
	}

	c.mu.Lock()
	if c.epoch != epoch || c.status != StatusInProgress {
		c.mu.Unlock()
		c.log.WithField("question_id", questionID).Debug("dropping late answer result")
		return nil, ErrStale
	}
	if resp.QuestionID == "" {
		resp.QuestionID = questionID
	}
	if !hasResponse(c.interview, resp.QuestionID) && len(c.interview.Responses) < len(c.interview.Questions) {
		c.interview.Responses = append(c.interview.Responses, *resp)
	}
	c.live = ""
	c.take = nil
	c.takeKey = ""
	c.mu.Unlock()
	c.cfg.Transcriber.Reset()

	c.cfg.Notifier.Notify(logrus.InfoLevel, "Answer submitted")
	return resp, nil
}

func hasResponse(iv *interviewapi.Interview, questionID string) bool {
	for _, r := range iv.Responses {
		if r.QuestionID == questionID {
			return true
		}
	}
	return false
}

// Advance moves to the next question, or ends the interview when every
// question has a response.
func (c *Controller) Advance(ctx context.Context) (*interviewapi.Question, error) {
	c.mu.Lock()
	switch {
	case c.status != StatusInProgress:
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: advance from %s", ErrInvalidState, c.status)
	case c.recording || c.processing:
		c.mu.Unlock()
		return nil, ErrBusy
	case c.current != nil && !hasResponse(c.interview, c.current.ID):
		c.mu.Unlock()
		return nil, c.fail(utils.E(utils.CodeInvalidArgument, "Session.Advance", "submit an answer before moving on", nil))
	}
	if len(c.interview.Responses) >= len(c.interview.Questions) {
		c.mu.Unlock()
		_, err := c.End(ctx)
		return nil, err
	}
	interviewID, epoch := c.interview.ID, c.epoch
	c.processing = true
	c.mu.Unlock()
	c.changed()

	next, err := c.cfg.API.NextQuestion(ctx, interviewID)

	c.mu.Lock()
	c.processing = false
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(err)
	}
	if c.epoch != epoch || c.status != StatusInProgress {
		c.mu.Unlock()
		c.changed()
		return nil, ErrStale
	}
	if next.Complete || next.Question == nil {
		c.mu.Unlock()
		_, err := c.End(ctx)
		return nil, err
	}
	q := *next.Question
	c.current = &q
	if next.Number > 0 {
		c.index = next.Number - 1
	} else {
		c.index++
	}
	c.live = ""
	c.take = nil
	c.mu.Unlock()
	c.cfg.Transcriber.Reset()
	c.changed()
	return &q, nil
}

// teardownLocked stops capture and the timer and bumps the epoch. Callers
// hold c.mu; the returned func finishes the blocking part without it.
func (c *Controller) teardownLocked() func() {
	c.epoch++
	wasRecording, rec := c.recording, c.recorder
	c.recording = false
	stream := c.stream
	c.stream = nil
	feed := c.feed
	c.feed = nil
	c.take = nil
	c.takeKey = ""
	stopTimer := c.stopTimerLocked()
	offs := c.offs
	c.offs = nil

	return func() {
		c.cfg.Transcriber.Stop()
		if wasRecording {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_, _ = rec.Stop(ctx)
			cancel()
		}
		if feed != nil {
			close(feed)
		}
		releaseStream(stream)
		stopTimer()
		for _, off := range offs {
			off()
		}
	}
}

// End completes the interview. Capture is stopped and devices released
// before the request, whatever its outcome; a failed request can be
// retried with End.
func (c *Controller) End(ctx context.Context) (*interviewapi.Interview, error) {
	c.mu.Lock()
	if c.status != StatusInProgress {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: end from %s", ErrInvalidState, c.status)
	}
	interviewID, key := c.interview.ID, c.endKey
	finish := c.teardownLocked()
	epoch := c.epoch
	c.loading = true
	c.mu.Unlock()
	finish()
	c.changed()

	final, err := c.cfg.API.Complete(interviewapi.WithIdempotencyKey(ctx, key), interviewID)

	c.mu.Lock()
	c.loading = false
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(err)
	}
	if c.epoch != epoch || c.status != StatusInProgress {
		c.mu.Unlock()
		return nil, ErrStale
	}
	c.interview = final
	c.status = StatusCompleted
	c.current = nil
	c.live = ""
	c.mu.Unlock()

	c.detachChannel(interviewID)
	c.cfg.Notifier.Notify(logrus.InfoLevel, "Interview completed")
	c.changed()
	return final, nil
}

// Cancel abandons an in-progress interview on the server.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusInProgress {
		c.mu.Unlock()
		return fmt.Errorf("%w: cancel from %s", ErrInvalidState, c.status)
	}
	interviewID := c.interview.ID
	finish := c.teardownLocked()
	epoch := c.epoch
	c.mu.Unlock()
	finish()

	if err := c.cfg.API.Cancel(ctx, interviewID); err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	if c.epoch == epoch && c.status == StatusInProgress {
		c.status = StatusCancelled
		c.interview.Status = models.StatusCancelled
		c.current = nil
	}
	c.mu.Unlock()
	c.detachChannel(interviewID)
	c.changed()
	return nil
}

// Reset drops all live state and returns to not-started. It never calls
// the API and is idempotent.
func (c *Controller) Reset() {
	c.mu.Lock()
	var interviewID string
	if c.interview != nil && c.status == StatusInProgress {
		interviewID = c.interview.ID
	}
	finish := c.teardownLocked()
	c.status = StatusNotStarted
	c.interview = nil
	c.current = nil
	c.index = 0
	c.live = ""
	c.processing = false
	c.nervousness = 0
	c.elapsed = 0
	c.lastErr = ""
	c.endKey = ""
	c.warned = false
	c.mu.Unlock()

	finish()
	if interviewID != "" {
		c.detachChannel(interviewID)
	}
	c.changed()
}

// Close releases everything the controller holds.
func (c *Controller) Close() { c.Reset() }

// attachChannel subscribes to pushes for the interview. A session that
// ended or reset meanwhile gets its handlers removed at once.
func (c *Controller) attachChannel(interviewID string, epoch uint64) {
	ch := c.cfg.Channel
	if ch == nil {
		return
	}
	room := realtime.InterviewRoom(interviewID)
	if err := ch.JoinRoom(room); err != nil {
		c.log.WithError(err).Debug("join room")
	}
	if err := ch.StartSession(interviewID); err != nil {
		c.log.WithError(err).Debug("announce start")
	}

	offs := []func(){
		ch.On(realtime.EventNervousness, c.onNervousness(interviewID)),
		ch.On(realtime.EventTranscript, c.onTranscript(interviewID)),
		ch.On(realtime.EventQuestion, c.onInfo("New question received")),
		ch.On(realtime.EventNotification, c.onNotification),
	}
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		for _, off := range offs {
			off()
		}
		c.detachChannel(interviewID)
		return
	}
	c.offs = append(c.offs, offs...)
	c.mu.Unlock()
}

func (c *Controller) detachChannel(interviewID string) {
	ch := c.cfg.Channel
	if ch == nil {
		return
	}
	if err := ch.EndSession(interviewID); err != nil {
		c.log.WithError(err).Debug("announce end")
	}
	if err := ch.LeaveRoom(realtime.InterviewRoom(interviewID)); err != nil {
		c.log.WithError(err).Debug("leave room")
	}
}
