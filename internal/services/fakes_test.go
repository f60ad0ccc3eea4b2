package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/providers/llm"
	"github.com/careerforge/careerforge/internal/providers/stt"
	mongorepo "github.com/careerforge/careerforge/internal/repositories/mongo"
	"github.com/careerforge/careerforge/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
)

type memInterviews struct {
	mu   sync.Mutex
	rows map[string]*models.Interview
}

func newMemInterviews() *memInterviews {
	return &memInterviews{rows: map[string]*models.Interview{}}
}

func clone(iv *models.Interview) *models.Interview {
	cp := *iv
	cp.Questions = append([]models.Question(nil), iv.Questions...)
	cp.Transcript = append([]models.TranscriptEntry(nil), iv.Transcript...)
	if iv.Metrics != nil {
		m := *iv.Metrics
		cp.Metrics = &m
	}
	return &cp
}

func (m *memInterviews) Create(_ context.Context, iv *models.Interview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv.CreatedAt = time.Now().UTC()
	m.rows[iv.InterviewID] = clone(iv)
	return nil
}

func (m *memInterviews) GetByID(_ context.Context, id string) (*models.Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return clone(iv), nil
}

func (m *memInterviews) ListByUser(_ context.Context, userID string, f mongorepo.ListFilter) ([]models.Interview, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Interview{}
	for _, iv := range m.rows {
		if iv.UserID != userID {
			continue
		}
		if f.Status != "" && iv.Status != f.Status {
			continue
		}
		out = append(out, *clone(iv))
	}
	return out, int64(len(out)), nil
}

func (m *memInterviews) Transition(_ context.Context, id string, from []models.InterviewStatus, to models.InterviewStatus, set bson.M) (*models.Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.rows[id]
	if !ok {
		return nil, mongorepo.ErrConflict
	}
	allowed := false
	for _, f := range from {
		if iv.Status == f {
			allowed = true
		}
	}
	if !allowed {
		return nil, mongorepo.ErrConflict
	}
	iv.Status = to
	for k, v := range set {
		switch k {
		case "questions":
			iv.Questions = v.([]models.Question)
		case "started_at":
			t := v.(time.Time)
			iv.StartedAt = &t
		case "completed_at":
			t := v.(time.Time)
			iv.CompletedAt = &t
		case "scheduled_at":
			t := v.(time.Time)
			iv.ScheduledAt = &t
		case "metrics":
			switch mv := v.(type) {
			case models.Metrics:
				iv.Metrics = &mv
			case *models.Metrics:
				iv.Metrics = mv
			}
		case "evaluation":
			iv.Evaluation = v.(*models.OverallEvaluation)
		case "passed":
			p := v.(bool)
			iv.Passed = &p
		case "decision_reason":
			iv.DecisionReason = v.(string)
		}
	}
	return clone(iv), nil
}

func (m *memInterviews) SetQuestions(_ context.Context, id string, qs []models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Questions = qs
	return nil
}

func (m *memInterviews) SaveResponse(_ context.Context, id string, idx int, resp models.QuestionResponse, eval *models.Evaluation) (*models.Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv := m.rows[id]
	if iv.Status != models.StatusInProgress || iv.Questions[idx].Response != nil {
		return nil, mongorepo.ErrConflict
	}
	r := resp
	iv.Questions[idx].Response = &r
	iv.Questions[idx].Evaluation = eval
	return clone(iv), nil
}

func (m *memInterviews) AppendTranscript(_ context.Context, id string, entries ...models.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Transcript = append(m.rows[id].Transcript, entries...)
	return nil
}

func (m *memInterviews) PushSample(_ context.Context, id, field string, s models.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv := m.rows[id]
	if iv.Metrics == nil {
		iv.Metrics = &models.Metrics{}
	}
	switch field {
	case "nervousness_samples":
		iv.Metrics.NervousnessSamples = append(iv.Metrics.NervousnessSamples, s)
	case "confidence_samples":
		iv.Metrics.ConfidenceSamples = append(iv.Metrics.ConfidenceSamples, s)
	case "eye_contact_samples":
		iv.Metrics.EyeContactSamples = append(iv.Metrics.EyeContactSamples, s)
	}
	return nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (s *memStore) Upload(_ context.Context, name, _ string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = b
	return "gs://test/" + name, nil
}

func (s *memStore) Download(_ context.Context, name string, limit int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[name]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.ReadAll(io.LimitReader(bytes.NewReader(b), limit))
}

func (s *memStore) SignedGetURL(_ context.Context, name string, _ time.Duration) (string, error) {
	return "https://signed.example/" + name, nil
}

func (s *memStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
	return nil
}

type fakeSTT struct {
	result stt.Result
	err    error
	calls  int
}

func (f *fakeSTT) Transcribe(context.Context, stt.Audio, string) (stt.Result, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeSTT) Close() error { return nil }

type fakeLLM struct {
	reply string
	err   error
	// optional per-prompt replies keyed by a prompt substring
	byPrompt map[string]string
	prompts  []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ ...llm.Attachment) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	for k, v := range f.byPrompt {
		if strings.Contains(prompt, k) {
			return v, nil
		}
	}
	return f.reply, nil
}

func (f *fakeLLM) Name() string { return "fake" }
func (f *fakeLLM) Close() error { return nil }

type recordedEvent struct {
	room, event string
}

type fakeBus struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *fakeBus) Publish(_ context.Context, room, event string, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{room, event})
	return nil
}

func (b *fakeBus) has(room, event string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.room == room && e.event == event {
			return true
		}
	}
	return false
}
