package interviewapi

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/careerforge/careerforge/internal/models"
)

const defaultExpectedSeconds = 180

type Question struct {
	ID              string                  `json:"id"`
	Text            string                  `json:"question"`
	Category        models.QuestionCategory `json:"type"`
	Difficulty      models.Difficulty       `json:"difficulty"`
	Topic           string                  `json:"topic"`
	ExpectedSeconds int                     `json:"expectedDuration"`
}

type Response struct {
	QuestionID string             `json:"questionId"`
	Answer     string             `json:"answer"`
	AudioURL   string             `json:"audioUrl,omitempty"`
	Duration   int                `json:"duration"`
	Timestamp  time.Time          `json:"timestamp"`
	Confidence float64            `json:"confidence"`
	Keywords   []string           `json:"keywords"`
	Evaluation *models.Evaluation `json:"evaluation,omitempty"`
}

type Interview struct {
	ID             string                    `json:"id"`
	UserID         string                    `json:"userId"`
	JobID          string                    `json:"jobId,omitempty"`
	Status         models.InterviewStatus    `json:"status"`
	Kind           Kind                      `json:"type"`
	ServerType     models.InterviewType      `json:"-"`
	StartedAt      *time.Time                `json:"startedAt,omitempty"`
	CompletedAt    *time.Time                `json:"completedAt,omitempty"`
	Duration       int                       `json:"duration,omitempty"`
	Questions      []Question                `json:"questions"`
	Responses      []Response                `json:"responses"`
	Metrics        *models.Metrics           `json:"metrics,omitempty"`
	Evaluation     *models.OverallEvaluation `json:"evaluation,omitempty"`
	Transcript     []models.TranscriptEntry  `json:"transcript"`
	Feedback       string                    `json:"feedback,omitempty"`
	Passed         *bool                     `json:"passed,omitempty"`
	DecisionReason string                    `json:"decisionReason,omitempty"`
}

type NextQuestion struct {
	Complete bool
	Question *Question
	Number   int
	Total    int
}

type Feedback struct {
	OverallFeedback string   `json:"overallFeedback"`
	Strengths       []string `json:"strengths"`
	Improvements    []string `json:"improvements"`
	Resources       []string `json:"resources"`
}

type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type Confidence struct {
	ConfidenceScore  float64 `json:"confidenceScore"`
	NervousnessLevel float64 `json:"nervousnessLevel"`
	EyeContactScore  float64 `json:"eyeContactScore"`
	EmotionBreakdown []struct {
		Emotion    string  `json:"emotion"`
		Percentage float64 `json:"percentage"`
	} `json:"emotionBreakdown"`
}

// wireQuestion accepts both the server's question shape and the older
// {question, expectedDuration} shape.
type wireQuestion struct {
	ID               string `json:"id"`
	MongoID          string `json:"_id"`
	Question         string `json:"question"`
	Text             string `json:"text"`
	Type             string `json:"type"`
	Category         string `json:"category"`
	Difficulty       string `json:"difficulty"`
	Topic            string `json:"topic"`
	ExpectedDuration int    `json:"expectedDuration"`
	TimeLimit        int    `json:"timeLimit"`
}

func (w wireQuestion) toQuestion() Question {
	q := Question{
		ID:              firstNonEmpty(w.ID, w.MongoID),
		Text:            firstNonEmpty(w.Question, w.Text),
		Difficulty:      models.Difficulty(strings.ToLower(w.Difficulty)),
		Topic:           firstNonEmpty(w.Topic, w.Category, "General"),
		ExpectedSeconds: w.ExpectedDuration,
	}
	if q.ExpectedSeconds <= 0 {
		q.ExpectedSeconds = w.TimeLimit
	}
	if q.ExpectedSeconds <= 0 {
		q.ExpectedSeconds = defaultExpectedSeconds
	}
	if !q.Difficulty.Valid() {
		q.Difficulty = models.DifficultyMedium
	}
	switch models.QuestionCategory(strings.ToLower(firstNonEmpty(w.Type, w.Category))) {
	case models.CategoryTechnical:
		q.Category = models.CategoryTechnical
	case models.CategorySituational:
		q.Category = models.CategorySituational
	default:
		q.Category = models.CategoryBehavioral
	}
	return q
}

type wireInterview struct {
	ID             string                    `json:"id"`
	MongoID        string                    `json:"_id"`
	UserID         string                    `json:"userId"`
	JobID          string                    `json:"jobId"`
	Status         models.InterviewStatus    `json:"status"`
	Type           models.InterviewType      `json:"type"`
	StartedAt      *time.Time                `json:"startedAt"`
	CompletedAt    *time.Time                `json:"completedAt"`
	Duration       int                       `json:"duration"`
	Questions      []wireQuestion            `json:"questions"`
	Responses      []Response                `json:"responses"`
	Metrics        *models.Metrics           `json:"metrics"`
	Evaluation     *models.OverallEvaluation `json:"evaluation"`
	Transcript     []models.TranscriptEntry  `json:"transcript"`
	Feedback       string                    `json:"feedback"`
	Passed         *bool                     `json:"passed"`
	DecisionReason string                    `json:"decisionReason"`
}

func (w wireInterview) toInterview() *Interview {
	iv := &Interview{
		ID:             firstNonEmpty(w.ID, w.MongoID),
		UserID:         w.UserID,
		JobID:          w.JobID,
		Status:         w.Status,
		Kind:           KindOf(w.Type),
		ServerType:     w.Type,
		StartedAt:      w.StartedAt,
		CompletedAt:    w.CompletedAt,
		Duration:       w.Duration,
		Questions:      make([]Question, 0, len(w.Questions)),
		Responses:      w.Responses,
		Metrics:        w.Metrics,
		Evaluation:     w.Evaluation,
		Transcript:     w.Transcript,
		Feedback:       w.Feedback,
		Passed:         w.Passed,
		DecisionReason: w.DecisionReason,
	}
	if iv.Status == "" {
		iv.Status = models.StatusScheduled
	}
	for _, q := range w.Questions {
		iv.Questions = append(iv.Questions, q.toQuestion())
	}
	if iv.Responses == nil {
		iv.Responses = []Response{}
	}
	if iv.Transcript == nil {
		iv.Transcript = []models.TranscriptEntry{}
	}
	return iv
}

// unwrap peels the {success, data} envelope and then, when present, the
// named object inside it. Bare bodies are returned as they are.
func unwrap(body []byte, key string) json.RawMessage {
	raw := json.RawMessage(body)

	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) != nil {
		return raw
	}
	if data, ok := obj["data"]; ok && len(data) > 0 && string(data) != "null" {
		raw = data
		obj = nil
		_ = json.Unmarshal(raw, &obj)
	}
	if key != "" {
		if inner, ok := obj[key]; ok && len(inner) > 0 && string(inner) != "null" {
			return inner
		}
	}
	return raw
}

func decodeInterview(body []byte) (*Interview, error) {
	var w wireInterview
	if err := json.Unmarshal(unwrap(body, "interview"), &w); err != nil {
		return nil, err
	}
	return w.toInterview(), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
