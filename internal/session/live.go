package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/careerforge/careerforge/internal/client/channel"
	"github.com/careerforge/careerforge/internal/media"
	"github.com/careerforge/careerforge/internal/realtime"
	"github.com/careerforge/careerforge/internal/transcriber"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const feedBuffer = 64

// nervousness readings are smoothed so one noisy sample does not swing
// the gauge
const nervousnessCarry = 0.7

// StartRecording begins a new take for the current question. The live
// transcript is cleared first.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.status != StatusInProgress:
		c.mu.Unlock()
		return fmt.Errorf("%w: record from %s", ErrInvalidState, c.status)
	case c.recording:
		c.mu.Unlock()
		return fmt.Errorf("%w: already recording", ErrInvalidState)
	case c.processing:
		c.mu.Unlock()
		return ErrBusy
	case c.stream == nil:
		c.mu.Unlock()
		return media.ErrNoAudioTrack
	}
	interviewID, stream := c.interview.ID, c.stream
	track := stream.Audio()
	if track == nil {
		c.mu.Unlock()
		return media.ErrNoAudioTrack
	}
	mime := track.MIMEType()
	feed := make(chan []byte, feedBuffer)
	base := c.chunkBase
	rec := &media.Recorder{
		OnChunk: func(i int, chunk []byte) {
			select {
			case feed <- chunk:
			default:
				// recognition lags; the recording still keeps the chunk
			}
			if c.cfg.Channel != nil {
				_ = c.cfg.Channel.SendAudio(interviewID, base+int64(i), chunk, mime, 0)
			}
		},
	}
	if err := rec.Start(context.WithoutCancel(ctx), stream); err != nil {
		c.mu.Unlock()
		return err
	}
	c.recorder = rec
	c.feed = feed
	c.recording = true
	c.live = ""
	c.take = nil
	c.takeKey = uuid.NewString()
	c.mu.Unlock()

	c.cfg.Transcriber.Reset()
	err := c.cfg.Transcriber.Start(context.WithoutCancel(ctx), feed, mime)
	switch {
	case errors.Is(err, transcriber.ErrUnsupported):
		c.mu.Lock()
		warn := !c.warned
		c.warned = true
		c.mu.Unlock()
		if warn {
			c.cfg.Notifier.Notify(logrus.WarnLevel, "Speech recognition is not available, your answer will be transcribed after submission")
		}
	case err != nil:
		c.log.WithError(err).Warn("start transcriber")
	}
	c.changed()
	return nil
}

// StopRecording ends the take and keeps it as the pending answer audio.
// The feed is closed before recognition stops so the engine can finalize
// what it already heard. A device error still ends the take; the partial
// audio is kept and the error returned with it.
func (c *Controller) StopRecording(ctx context.Context) (*media.Recording, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: not recording", ErrInvalidState)
	}
	rec, feed := c.recorder, c.feed
	c.mu.Unlock()

	take, err := rec.Stop(ctx)
	if take == nil && !errors.Is(err, media.ErrRecorderIdle) {
		// capture is still running; stopping again retries
		return nil, err
	}

	c.mu.Lock()
	if c.feed == feed && feed != nil {
		close(feed)
		c.feed = nil
	}
	c.recording = false
	if take != nil {
		c.chunkBase += int64(take.Chunks)
		c.take = take
	}
	c.mu.Unlock()

	c.cfg.Transcriber.Stop()
	heard := c.cfg.Transcriber.Transcript()

	c.mu.Lock()
	if heard != "" && !c.recording {
		c.live = heard
	}
	if take == nil {
		take = c.take
	}
	c.mu.Unlock()

	if err != nil && !errors.Is(err, media.ErrRecorderIdle) {
		return take, c.fail(fmt.Errorf("recording interrupted: %w", err))
	}
	c.changed()
	return take, nil
}

// UpdateTranscript is wired to the transcriber's update callback.
func (c *Controller) UpdateTranscript(text string) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return
	}
	c.live = text
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) startTimerLocked() {
	stop, done := make(chan struct{}), make(chan struct{})
	c.timerStop, c.timerDone = stop, done
	started := time.Now()
	go func() {
		defer close(done)
		t := time.NewTicker(c.cfg.Tick)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				c.mu.Lock()
				c.elapsed = time.Since(started).Truncate(c.cfg.Tick)
				c.mu.Unlock()
				c.changed()
			}
		}
	}()
}

// stopTimerLocked detaches the timer and returns a func that waits for it.
func (c *Controller) stopTimerLocked() func() {
	stop, done := c.timerStop, c.timerDone
	c.timerStop, c.timerDone = nil, nil
	if stop == nil {
		return func() {}
	}
	close(stop)
	return func() { <-done }
}

// TimerRunning reports whether the elapsed-time ticker is live.
func (c *Controller) TimerRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timerStop != nil
}

func (c *Controller) active(interviewID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusInProgress && c.interview != nil && c.interview.ID == interviewID
}

func (c *Controller) onNervousness(interviewID string) channel.Handler {
	return func(data json.RawMessage) {
		var p realtime.NervousnessPayload
		if err := json.Unmarshal(data, &p); err != nil || !c.active(interviewID) {
			return
		}
		if p.InterviewID != "" && p.InterviewID != interviewID {
			return
		}
		c.mu.Lock()
		c.nervousness = nervousnessCarry*c.nervousness + (1-nervousnessCarry)*p.Level
		c.mu.Unlock()
		c.changed()
	}
}

// Server transcripts only fill in when local recognition is unavailable.
func (c *Controller) onTranscript(interviewID string) channel.Handler {
	return func(data json.RawMessage) {
		var p realtime.TranscriptPayload
		if err := json.Unmarshal(data, &p); err != nil || p.Text == "" {
			return
		}
		if p.InterviewID != "" && p.InterviewID != interviewID {
			return
		}
		if c.cfg.Transcriber.Supported() {
			return
		}
		c.mu.Lock()
		if !c.recording || c.interview == nil || c.interview.ID != interviewID {
			c.mu.Unlock()
			return
		}
		if c.live == "" {
			c.live = p.Text
		} else {
			c.live += " " + p.Text
		}
		c.mu.Unlock()
		c.changed()
	}
}

func (c *Controller) onInfo(msg string) channel.Handler {
	return func(json.RawMessage) { c.cfg.Notifier.Notify(logrus.InfoLevel, msg) }
}

func (c *Controller) onNotification(data json.RawMessage) {
	var p realtime.NotificationPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Message == "" {
		return
	}
	level := logrus.InfoLevel
	switch p.Type {
	case "error":
		level = logrus.ErrorLevel
	case "warning":
		level = logrus.WarnLevel
	}
	c.cfg.Notifier.Notify(level, p.Message)
}
