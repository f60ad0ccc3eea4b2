// Package media acquires capture devices for an interview and records the
// audio track into a single clip.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrPermissionDenied is fatal for the recording path and never retried.
	ErrPermissionDenied = errors.New("media: permission denied")
	ErrNoDevice         = errors.New("media: no such device")
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is one live capture source. Read blocks until the next chunk is
// captured and returns io.EOF once the track is stopped or exhausted.
type Track interface {
	Kind() Kind
	MIMEType() string
	Read(ctx context.Context) ([]byte, error)
	Stop()
	Live() bool
}

type Constraints struct {
	Audio bool
	Video bool
}

type Device interface {
	Open(ctx context.Context, c Constraints) ([]Track, error)
}

// Stream groups the tracks opened for one interview.
type Stream struct {
	mu       sync.Mutex
	tracks   []Track
	degraded bool
}

func NewStream(tracks ...Track) *Stream {
	return &Stream{tracks: tracks}
}

// Tracks returns the tracks that are still live.
func (s *Stream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		if t.Live() {
			out = append(out, t)
		}
	}
	return out
}

func (s *Stream) Audio() Track {
	for _, t := range s.Tracks() {
		if t.Kind() == KindAudio {
			return t
		}
	}
	return nil
}

func (s *Stream) HasVideo() bool {
	for _, t := range s.Tracks() {
		if t.Kind() == KindVideo {
			return true
		}
	}
	return false
}

// AudioOnly reports that video could not be opened and capture fell back
// to the microphone alone.
func (s *Stream) AudioOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Stop releases every track. Safe to call more than once.
func (s *Stream) Stop() {
	s.mu.Lock()
	tracks := s.tracks
	s.tracks = nil
	s.mu.Unlock()
	for _, t := range tracks {
		t.Stop()
	}
}

type Acquirer struct {
	Device Device
	Log    logrus.FieldLogger
}

// Acquire opens camera and microphone together. A permission denial is
// returned as is. Any other camera failure degrades to audio only.
func (a *Acquirer) Acquire(ctx context.Context) (*Stream, error) {
	if a.Device == nil {
		return nil, ErrNoDevice
	}
	log := a.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	tracks, err := a.Device.Open(ctx, Constraints{Audio: true, Video: true})
	if err == nil {
		return NewStream(tracks...), nil
	}
	if errors.Is(err, ErrPermissionDenied) {
		return nil, err
	}

	log.WithError(err).Warn("camera unavailable, continuing with audio only")
	tracks, aerr := a.Device.Open(ctx, Constraints{Audio: true})
	if aerr != nil {
		return nil, fmt.Errorf("open microphone: %w", aerr)
	}
	s := NewStream(tracks...)
	s.degraded = true
	return s, nil
}
