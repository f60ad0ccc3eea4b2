package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type InterviewStatus string

const (
	StatusScheduled  InterviewStatus = "scheduled"
	StatusInProgress InterviewStatus = "in-progress"
	StatusCompleted  InterviewStatus = "completed"
	StatusCancelled  InterviewStatus = "cancelled"
)

// CanTransition reports whether a status change is allowed. Transitions are
// monotonic: nothing leaves completed or cancelled.
func (s InterviewStatus) CanTransition(to InterviewStatus) bool {
	switch s {
	case StatusScheduled:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

func (s InterviewStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// InterviewType is the server vocabulary. The client speaks mock|screening|technical.
type InterviewType string

const (
	TypeTechnical    InterviewType = "technical"
	TypeHR           InterviewType = "hr"
	TypeBehavioral   InterviewType = "behavioral"
	TypeSystemDesign InterviewType = "system-design"
)

func (t InterviewType) Valid() bool {
	switch t {
	case TypeTechnical, TypeHR, TypeBehavioral, TypeSystemDesign:
		return true
	}
	return false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

type Interview struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	InterviewID string             `bson:"interview_id" json:"id"` // uuid v4
	UserID      string             `bson:"user_id" json:"userId"`
	JobID       string             `bson:"job_id,omitempty" json:"jobId,omitempty"`

	Type            InterviewType   `bson:"type" json:"type"`
	Difficulty      Difficulty      `bson:"difficulty" json:"difficulty"`
	DurationMinutes int             `bson:"duration_minutes" json:"duration"`
	Status          InterviewStatus `bson:"status" json:"status"`

	TargetRole    string `bson:"target_role,omitempty" json:"targetRole,omitempty"`
	TargetCompany string `bson:"target_company,omitempty" json:"targetCompany,omitempty"`

	Questions  []Question         `bson:"questions" json:"questions"`
	Transcript []TranscriptEntry  `bson:"transcript" json:"transcript"`
	Metrics    *Metrics           `bson:"metrics,omitempty" json:"metrics,omitempty"`
	Evaluation *OverallEvaluation `bson:"evaluation,omitempty" json:"evaluation,omitempty"`

	Passed         *bool  `bson:"passed,omitempty" json:"passed,omitempty"`
	DecisionReason string `bson:"decision_reason,omitempty" json:"decisionReason,omitempty"`

	ScheduledAt *time.Time `bson:"scheduled_at,omitempty" json:"scheduledAt,omitempty"`
	StartedAt   *time.Time `bson:"started_at,omitempty" json:"startedAt,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	CreatedAt   time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updatedAt"`
}

// QuestionIndex returns the position of questionID, or -1.
func (iv *Interview) QuestionIndex(questionID string) int {
	for i := range iv.Questions {
		if iv.Questions[i].ID == questionID {
			return i
		}
	}
	return -1
}

// NextUnanswered returns the index of the first question without a response, or -1.
func (iv *Interview) NextUnanswered() int {
	for i := range iv.Questions {
		if iv.Questions[i].Response == nil {
			return i
		}
	}
	return -1
}

func (iv *Interview) AnsweredCount() int {
	n := 0
	for i := range iv.Questions {
		if iv.Questions[i].Response != nil {
			n++
		}
	}
	return n
}

type QuestionCategory string

const (
	CategoryTechnical   QuestionCategory = "technical"
	CategoryBehavioral  QuestionCategory = "behavioral"
	CategorySituational QuestionCategory = "situational"
)

type Question struct {
	ID         string           `bson:"id" json:"id"`
	Text       string           `bson:"text" json:"text"`
	Category   QuestionCategory `bson:"category" json:"category"`
	Difficulty Difficulty       `bson:"difficulty" json:"difficulty"`
	Topic      string           `bson:"topic" json:"topic"`
	TimeLimit  int              `bson:"time_limit" json:"timeLimit"` // seconds

	Response   *QuestionResponse `bson:"response,omitempty" json:"response,omitempty"`
	Evaluation *Evaluation       `bson:"evaluation,omitempty" json:"evaluation,omitempty"`
}

type QuestionResponse struct {
	Transcript      string    `bson:"transcript" json:"answer"`
	AudioPath       string    `bson:"audio_path,omitempty" json:"audioUrl,omitempty"`
	DurationSeconds int       `bson:"duration_seconds" json:"duration"`
	Timestamp       time.Time `bson:"timestamp" json:"timestamp"`
	Confidence      float64   `bson:"confidence" json:"confidence"`
	Keywords        []string  `bson:"keywords" json:"keywords"`
}

type Evaluation struct {
	Score        float64  `bson:"score" json:"score"`
	Feedback     string   `bson:"feedback" json:"feedback"`
	Strengths    []string `bson:"strengths" json:"strengths"`
	Improvements []string `bson:"improvements" json:"improvements"`
}

type Sample struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Value     float64   `bson:"value" json:"value"`
}

// Metrics holds live samples while the interview runs and the aggregate
// scores written once at completion.
type Metrics struct {
	NervousnessSamples []Sample `bson:"nervousness_samples" json:"-"`
	ConfidenceSamples  []Sample `bson:"confidence_samples" json:"-"`
	EyeContactSamples  []Sample `bson:"eye_contact_samples" json:"-"`

	OverallScore       float64         `bson:"overall_score" json:"overallScore"`
	TechnicalScore     float64         `bson:"technical_score" json:"technicalScore"`
	CommunicationScore float64         `bson:"communication_score" json:"communicationScore"`
	ConfidenceScore    float64         `bson:"confidence_score" json:"confidenceScore"`
	NervousnessLevel   float64         `bson:"nervousness_level" json:"nervousnessLevel"`
	EyeContactScore    float64         `bson:"eye_contact_score" json:"eyeContactScore"`
	SpeechClarity      float64         `bson:"speech_clarity" json:"speechClarity"`
	ResponseRelevance  float64         `bson:"response_relevance" json:"responseRelevance"`
	QuestionScores     []QuestionScore `bson:"question_scores" json:"questionScores"`
}

type QuestionScore struct {
	QuestionID string  `bson:"question_id" json:"questionId"`
	Score      float64 `bson:"score" json:"score"`
	Feedback   string  `bson:"feedback" json:"feedback"`
}

type HiringRecommendation string

const (
	HireStrongYes HiringRecommendation = "strong-yes"
	HireYes       HiringRecommendation = "yes"
	HireMaybe     HiringRecommendation = "maybe"
	HireNo        HiringRecommendation = "no"
	HireStrongNo  HiringRecommendation = "strong-no"
)

type OverallEvaluation struct {
	TotalScore           float64              `bson:"total_score" json:"totalScore"`
	Grade                string               `bson:"grade" json:"grade"`
	Summary              string               `bson:"summary" json:"summary"`
	StrongAreas          []string             `bson:"strong_areas" json:"strongAreas"`
	WeakAreas            []string             `bson:"weak_areas" json:"weakAreas"`
	Recommendations      []string             `bson:"recommendations" json:"recommendations"`
	HiringRecommendation HiringRecommendation `bson:"hiring_recommendation" json:"hiringRecommendation"`
}

type SpeakerRole string

const (
	SpeakerInterviewer SpeakerRole = "interviewer"
	SpeakerCandidate   SpeakerRole = "candidate"
)

type TranscriptEntry struct {
	Role      SpeakerRole `bson:"role" json:"role"`
	Text      string      `bson:"text" json:"text"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}
