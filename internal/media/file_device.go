package media

import (
	"context"
	"io"
	"os"
	"sync"
	"time"
)

// FileDevice plays a pre-recorded audio file as a microphone, one chunk per
// interval. It has no camera.
type FileDevice struct {
	Path      string
	MIME      string
	ChunkSize int
	Interval  time.Duration
}

func (d *FileDevice) Open(ctx context.Context, c Constraints) ([]Track, error) {
	if c.Video {
		return nil, ErrNoDevice
	}
	if !c.Audio {
		return nil, nil
	}
	f, err := os.Open(d.Path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, ErrPermissionDenied
		}
		return nil, err
	}
	t := &fileTrack{
		f:        f,
		mime:     d.MIME,
		size:     d.ChunkSize,
		interval: d.Interval,
		done:     make(chan struct{}),
	}
	if t.mime == "" {
		t.mime = "audio/l16;rate=16000"
	}
	if t.size <= 0 {
		t.size = 32000 // one second of 16kHz 16-bit mono
	}
	if t.interval <= 0 {
		t.interval = time.Second
	}
	return []Track{t}, nil
}

type fileTrack struct {
	f        *os.File
	mime     string
	size     int
	interval time.Duration

	once sync.Once
	done chan struct{}
	mu   sync.Mutex
}

func (t *fileTrack) Kind() Kind       { return KindAudio }
func (t *fileTrack) MIMEType() string { return t.mime }

func (t *fileTrack) Live() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *fileTrack) Read(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(t.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, io.EOF
	case <-timer.C:
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.Live() {
		return nil, io.EOF
	}
	buf := make([]byte, t.size)
	n, err := io.ReadFull(t.f, buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return nil, err
}

func (t *fileTrack) Stop() {
	t.once.Do(func() {
		close(t.done)
		t.mu.Lock()
		_ = t.f.Close()
		t.mu.Unlock()
	})
}
