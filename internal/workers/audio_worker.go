package workers

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/careerforge/careerforge/internal/providers/stt"
	"github.com/careerforge/careerforge/internal/realtime"
	"github.com/careerforge/careerforge/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// AudioWorkerPool consumes live audio chunks from a Redis stream, runs
// speech recognition on each and pushes transcript and nervousness updates
// into the interview room.
type AudioWorkerPool struct {
	Redis      *redis.Client
	Buffers    services.BufferService
	Interviews services.InterviewService
	Bus        realtime.Publisher
	NumWorkers int

	STT stt.Provider

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *AudioWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Buffers == nil || p.STT == nil || p.Interviews == nil {
		return errors.New("AudioWorkerPool missing dependency: Redis/Buffers/STT/Interviews must be set")
	}
	if p.Stream == "" {
		p.Stream = "interview:audio"
	}
	if p.Group == "" {
		p.Group = "audio-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 4
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
	if p.Bus == nil {
		p.Bus = realtime.NewRedisBus(p.Redis)
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *AudioWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func normalizeLanguage(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "id", "id-ID":
		return "id-ID"
	case "en", "en-US", "":
		return "en-US"
	default:
		return v
	}
}

// Chunk is the decoded stream entry.
type Chunk struct {
	InterviewID string
	UserID      string
	ChunkIndex  int64
	MIMEType    string
	Language    string
	Audio       []byte
	DurationMS  int64
}

// ChunkFields is the stream entry written by the socket handler.
func ChunkFields(c Chunk) map[string]any {
	return map[string]any{
		"interview_id": c.InterviewID,
		"user_id":      c.UserID,
		"chunk_index":  strconv.FormatInt(c.ChunkIndex, 10),
		"mime_type":    c.MIMEType,
		"language":     c.Language,
		"audio_base64": base64.StdEncoding.EncodeToString(c.Audio),
		"duration_ms":  strconv.FormatInt(c.DurationMS, 10),
	}
}

func parseChunk(values map[string]any) (Chunk, error) {
	getStr := func(k string) string {
		v, ok := values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	c := Chunk{
		InterviewID: getStr("interview_id"),
		UserID:      getStr("user_id"),
		MIMEType:    getStr("mime_type"),
		Language:    normalizeLanguage(getStr("language")),
	}
	if c.InterviewID == "" {
		return c, errors.New("missing interview_id")
	}
	idx, err := strconv.ParseInt(getStr("chunk_index"), 10, 64)
	if err != nil {
		return c, errors.New("invalid chunk_index")
	}
	c.ChunkIndex = idx
	c.DurationMS, _ = strconv.ParseInt(getStr("duration_ms"), 10, 64)

	raw := getStr("audio_base64")
	if i := strings.Index(raw, ","); i >= 0 {
		raw = raw[i+1:] // strip data:...;base64,
	}
	audio, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(audio) == 0 {
		return c, errors.New("invalid audio_base64")
	}
	c.Audio = audio
	return c, nil
}

var fillers = map[string]bool{
	"um": true, "uh": true, "erm": true, "hmm": true, "like": true, "basically": true, "actually": true,
}

// Nervousness estimates a 0-100 level for one recognized chunk from filler
// word density, recognizer confidence and speaking rate.
func Nervousness(text string, confidence float64, durationMS int64) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 50
	}
	filler := 0
	for _, w := range words {
		if fillers[strings.Trim(w, ".,!?")] {
			filler++
		}
	}
	level := 100 * float64(filler) / float64(len(words)) * 2
	level += (1 - confidence) * 40

	if durationMS > 0 {
		wpm := float64(len(words)) / (float64(durationMS) / 60000)
		switch {
		case wpm > 180:
			level += 15
		case wpm < 80:
			level += 10
		}
	}
	return math.Max(0, math.Min(100, math.Round(level)))
}

func (p *AudioWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	c, err := parseChunk(msg.Values)
	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":     msg.ID,
		"interview_id": c.InterviewID,
		"chunk_index":  c.ChunkIndex,
	})
	if err != nil {
		log.WithError(err).Warn("dropping malformed audio chunk")
		return
	}
	room := realtime.InterviewRoom(c.InterviewID)

	start := time.Now()
	_ = p.Buffers.MarkSTT(ctx, c.InterviewID, c.ChunkIndex, "", 0, 0, "processing", 0)

	res, err := p.STT.Transcribe(ctx, stt.Audio{Data: c.Audio, MIMEType: c.MIMEType}, c.Language)
	if errors.Is(err, stt.ErrNoSpeech) {
		_ = p.Buffers.MarkSTT(ctx, c.InterviewID, c.ChunkIndex, "", 0, 0, "done", time.Since(start).Milliseconds())
		return
	}
	if err != nil {
		log.WithError(err).Error("stt failed")
		_ = p.Buffers.MarkSTT(ctx, c.InterviewID, c.ChunkIndex, "", 0, 0, "failed", time.Since(start).Milliseconds())
		return
	}

	level := Nervousness(res.Text, res.Confidence, c.DurationMS)
	procMS := time.Since(start).Milliseconds()
	_ = p.Buffers.MarkSTT(ctx, c.InterviewID, c.ChunkIndex, res.Text, res.Confidence, level, "done", procMS)

	if err := p.Bus.Publish(ctx, room, realtime.EventTranscript, realtime.TranscriptPayload{
		InterviewID: c.InterviewID,
		ChunkIndex:  c.ChunkIndex,
		Text:        res.Text,
		Confidence:  res.Confidence,
		IsFinal:     true,
	}); err != nil {
		log.WithError(err).Warn("publish transcript failed")
	}
	if err := p.Bus.Publish(ctx, room, realtime.EventNervousness, realtime.NervousnessPayload{
		InterviewID: c.InterviewID,
		Level:       level,
	}); err != nil {
		log.WithError(err).Warn("publish nervousness failed")
	}
	if err := p.Interviews.RecordNervousness(ctx, c.InterviewID, level); err != nil {
		log.WithError(err).Warn("record nervousness failed")
	}

	log.WithField("processing_ms", procMS).Debug("audio chunk processed")
}
