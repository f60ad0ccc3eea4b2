// Package transcriber turns a live audio feed into a running transcript.
// Finalized text is kept and interim text is replaced on every result.
package transcriber

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/careerforge/careerforge/internal/providers/stt"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnsupported = errors.New("transcriber: speech recognition unsupported")
	ErrNoSpeech    = stt.ErrNoSpeech
	ErrListening   = errors.New("transcriber: already listening")
)

// Engine runs one recognition pass. It returns nil when the pass ends on
// its own, ErrNoSpeech when nothing was heard, and any other error when
// recognition cannot continue. stt.GoogleSpeech satisfies it.
type Engine interface {
	Listen(ctx context.Context, audio <-chan []byte, mime, language string, emit func(stt.Result)) error
}

type Transcriber interface {
	Supported() bool
	Start(ctx context.Context, audio <-chan []byte, mime string) error
	// Stop is safe to call when not listening.
	Stop()
	Listening() bool
	Transcript() string
	// Reset clears the transcript before a new answer.
	Reset()
}

type Options struct {
	Language string
	Logger   logrus.FieldLogger
	// OnUpdate receives the full live transcript after every result.
	OnUpdate func(text string)
	// OnError receives the error that ended listening for good.
	OnError func(err error)
	// Pause between restarts.
	Pause time.Duration
}

// New picks the implementation once; a nil engine means recognition is not
// available on this host.
func New(engine Engine, o Options) Transcriber {
	if engine == nil {
		return Unavailable{}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Language == "" {
		o.Language = "en-US"
	}
	if o.Pause <= 0 {
		o.Pause = 50 * time.Millisecond
	}
	return &EngineBacked{engine: engine, opts: o, log: o.Logger.WithField("component", "transcriber")}
}

// RestartPolicy decides whether a finished pass is followed by another.
// Only an explicit want-to-listen bit keeps the loop alive.
type RestartPolicy struct {
	mu   sync.Mutex
	want bool
}

func (p *RestartPolicy) Want() {
	p.mu.Lock()
	p.want = true
	p.mu.Unlock()
}

func (p *RestartPolicy) Cancel() {
	p.mu.Lock()
	p.want = false
	p.mu.Unlock()
}

func (p *RestartPolicy) Wanted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.want
}

// ShouldRestart reports whether the pass that ended with err is restarted.
// Natural ends and no-speech are restarted while wanted; anything else is
// fatal.
func (p *RestartPolicy) ShouldRestart(err error) bool {
	if !p.Wanted() {
		return false
	}
	return err == nil || errors.Is(err, ErrNoSpeech)
}

type EngineBacked struct {
	engine Engine
	opts   Options
	log    logrus.FieldLogger
	policy RestartPolicy

	mu        sync.Mutex
	listening bool
	cancel    context.CancelFunc
	done      chan struct{}
	final     string
	interim   string
	passes    int
}

func (t *EngineBacked) Supported() bool { return true }

func (t *EngineBacked) Listening() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listening
}

// Passes reports how many recognition passes have started.
func (t *EngineBacked) Passes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.passes
}

func (t *EngineBacked) Start(ctx context.Context, audio <-chan []byte, mime string) error {
	t.mu.Lock()
	if t.listening {
		t.mu.Unlock()
		return ErrListening
	}
	cctx, cancel := context.WithCancel(ctx)
	t.listening = true
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	t.policy.Want()
	go t.run(cctx, audio, mime, done)
	return nil
}

func (t *EngineBacked) run(ctx context.Context, src <-chan []byte, mime string, done chan struct{}) {
	defer close(done)
	defer func() {
		t.mu.Lock()
		t.listening = false
		t.mu.Unlock()
	}()

	// the pump notices when the source runs dry so a closed feed is not
	// mistaken for an engine that ended its pass
	pctx, stopPump := context.WithCancel(ctx)
	feed := make(chan []byte)
	var srcDone sync.WaitGroup
	srcDone.Add(1)
	exhausted := make(chan struct{})
	go func() {
		defer srcDone.Done()
		defer close(feed)
		defer close(exhausted)
		for {
			select {
			case <-pctx.Done():
				return
			case b, ok := <-src:
				if !ok {
					return
				}
				select {
				case feed <- b:
				case <-pctx.Done():
					return
				}
			}
		}
	}()
	defer srcDone.Wait()
	defer stopPump()

	for {
		t.mu.Lock()
		t.passes++
		t.mu.Unlock()

		err := t.engine.Listen(ctx, feed, mime, t.opts.Language, t.onResult)

		select {
		case <-exhausted:
			t.settle()
			return
		default:
		}
		if ctx.Err() != nil {
			t.settle()
			return
		}
		// interim text from a pass that ended on its own will not be finalized
		t.mu.Lock()
		t.interim = ""
		t.mu.Unlock()
		if !t.policy.ShouldRestart(err) {
			if err != nil && t.policy.Wanted() {
				t.log.WithError(err).Warn("speech recognition stopped")
				if t.opts.OnError != nil {
					t.opts.OnError(err)
				}
			}
			return
		}
		if errors.Is(err, ErrNoSpeech) {
			t.log.Debug("no speech detected, restarting")
		}

		select {
		case <-ctx.Done():
			return
		case <-exhausted:
			return
		case <-time.After(t.opts.Pause):
		}
	}
}

func (t *EngineBacked) onResult(r stt.Result) {
	text := strings.TrimSpace(r.Text)

	t.mu.Lock()
	if r.Final {
		if text != "" {
			t.final = strings.TrimSpace(t.final + " " + text)
		}
		t.interim = ""
	} else {
		t.interim = text
	}
	live := t.liveLocked()
	t.mu.Unlock()

	if t.opts.OnUpdate != nil {
		t.opts.OnUpdate(live)
	}
}

// settle keeps the interim text the user already saw when listening is
// stopped mid-pass.
func (t *EngineBacked) settle() {
	t.mu.Lock()
	if t.interim != "" {
		t.final = strings.TrimSpace(t.final + " " + t.interim)
		t.interim = ""
	}
	t.mu.Unlock()
}

func (t *EngineBacked) liveLocked() string {
	return strings.TrimSpace(t.final + " " + t.interim)
}

func (t *EngineBacked) Transcript() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liveLocked()
}

func (t *EngineBacked) Reset() {
	t.mu.Lock()
	t.final, t.interim = "", ""
	t.mu.Unlock()
}

// Stop cancels the want-to-listen bit before cancelling the pass, then
// waits for the loop to exit.
func (t *EngineBacked) Stop() {
	t.policy.Cancel()

	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Unavailable is used when no recognition engine exists. Recording still
// works; answers must be typed or transcribed by the server.
type Unavailable struct{}

func (Unavailable) Supported() bool                                    { return false }
func (Unavailable) Start(context.Context, <-chan []byte, string) error { return ErrUnsupported }
func (Unavailable) Stop()                                              {}
func (Unavailable) Listening() bool                                    { return false }
func (Unavailable) Transcript() string                                 { return "" }
func (Unavailable) Reset()                                             {}
