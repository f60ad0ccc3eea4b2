package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

var (
	ErrRecorderActive = errors.New("media: recorder already active")
	ErrRecorderIdle   = errors.New("media: recorder not started")
	ErrNoAudioTrack   = errors.New("media: stream has no audio track")
)

// Recording is the clip assembled when a recorder stops.
type Recording struct {
	Data     []byte
	MIMEType string
	Chunks   int
	Duration time.Duration
}

// Recorder captures the audio track of a stream. Chunks are kept in
// emission order and joined into one Recording on Stop.
type Recorder struct {
	// OnChunk, when set, sees every chunk as it is captured, on the
	// recorder's goroutine.
	OnChunk func(index int, chunk []byte)

	mu      sync.Mutex
	active  bool
	cancel  context.CancelFunc
	stopped chan struct{}
	chunks  [][]byte
	mime    string
	started time.Time
	err     error
}

// Start begins capturing. Starting an active recorder returns
// ErrRecorderActive and leaves the running capture untouched.
func (r *Recorder) Start(ctx context.Context, s *Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return ErrRecorderActive
	}
	track := s.Audio()
	if track == nil {
		return ErrNoAudioTrack
	}

	cctx, cancel := context.WithCancel(ctx)
	r.active = true
	r.cancel = cancel
	r.stopped = make(chan struct{})
	r.chunks = nil
	r.err = nil
	r.mime = track.MIMEType()
	r.started = time.Now()

	go r.capture(cctx, track, r.stopped)
	return nil
}

func (r *Recorder) capture(ctx context.Context, track Track, stopped chan struct{}) {
	defer close(stopped)
	for i := 0; ; i++ {
		chunk, err := track.Read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				r.mu.Lock()
				r.err = err
				r.mu.Unlock()
			}
			return
		}
		r.mu.Lock()
		r.chunks = append(r.chunks, chunk)
		r.mu.Unlock()
		if r.OnChunk != nil {
			r.OnChunk(i, chunk)
		}
	}
}

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Stop ends capture, waits for the capture goroutine to acknowledge, and
// only then packages the chunks.
func (r *Recorder) Stop(ctx context.Context) (*Recording, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, ErrRecorderIdle
	}
	cancel, stopped := r.cancel, r.stopped
	r.mu.Unlock()

	cancel()
	select {
	case <-stopped:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	rec := &Recording{
		Data:     bytes.Join(r.chunks, nil),
		MIMEType: r.mime,
		Chunks:   len(r.chunks),
		Duration: time.Since(r.started),
	}
	r.chunks = nil
	return rec, r.err
}
