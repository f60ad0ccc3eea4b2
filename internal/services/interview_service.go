package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/careerforge/careerforge/internal/cache"
	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/providers/llm"
	"github.com/careerforge/careerforge/internal/providers/stt"
	"github.com/careerforge/careerforge/internal/realtime"
	mongorepo "github.com/careerforge/careerforge/internal/repositories/mongo"
	"github.com/careerforge/careerforge/internal/storage"
	"github.com/careerforge/careerforge/internal/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

type CreateInterviewInput struct {
	Type            models.InterviewType
	Difficulty      models.Difficulty
	DurationMinutes int
	TargetRole      string
	TargetCompany   string
	JobID           string
}

type ScheduleInput struct {
	UserID      string
	JobID       string
	Type        models.InterviewType
	Difficulty  models.Difficulty
	ScheduledAt time.Time
}

type AnswerInput struct {
	QuestionID      string
	Answer          string
	DurationSeconds int
	Audio           *stt.Audio
	Language        string
}

type AnswerResult struct {
	QuestionID string                  `json:"questionId"`
	Response   models.QuestionResponse `json:"response"`
	Evaluation *models.Evaluation      `json:"evaluation,omitempty"`
	Answered   int                     `json:"answered"`
	Total      int                     `json:"totalQuestions"`
}

type NextQuestion struct {
	Complete       bool             `json:"complete"`
	Message        string           `json:"message,omitempty"`
	Question       *models.Question `json:"question,omitempty"`
	QuestionNumber int              `json:"questionNumber,omitempty"`
	TotalQuestions int              `json:"totalQuestions,omitempty"`
}

type HistoryFilter struct {
	Status models.InterviewStatus
	Type   models.InterviewType
	Page   int
	Limit  int
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

type HistoryPage struct {
	Interviews []models.Interview `json:"interviews"`
	Pagination Pagination         `json:"pagination"`
}

type ConfidenceAnalysis struct {
	ConfidenceScore  float64            `json:"confidenceScore"`
	NervousnessLevel float64            `json:"nervousnessLevel"`
	EyeContactScore  float64            `json:"eyeContactScore"`
	EmotionBreakdown []EmotionBreakdown `json:"emotionBreakdown"`
}

type EmotionBreakdown struct {
	Emotion    string  `json:"emotion"`
	Percentage float64 `json:"percentage"`
}

type TranscriptResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type InterviewService interface {
	Create(ctx context.Context, userID string, in CreateInterviewInput) (*models.Interview, error)
	Schedule(ctx context.Context, in ScheduleInput) (*models.Interview, error)
	Start(ctx context.Context, userID, interviewID string) (*models.Interview, error)
	SubmitAnswer(ctx context.Context, userID, interviewID string, in AnswerInput) (*AnswerResult, error)
	NextQuestion(ctx context.Context, userID, interviewID string) (*NextQuestion, error)
	Complete(ctx context.Context, userID, interviewID string) (*models.Interview, error)
	Cancel(ctx context.Context, userID, interviewID string) (*models.Interview, error)

	Get(ctx context.Context, userID, interviewID string) (*models.Interview, error)
	History(ctx context.Context, userID string, f HistoryFilter) (*HistoryPage, error)
	Feedback(ctx context.Context, userID, interviewID string) (*Feedback, error)

	Transcribe(ctx context.Context, audio stt.Audio, language string) (*TranscriptResult, error)
	AnalyzeConfidence(ctx context.Context, userID, interviewID string, video llm.Attachment) (*ConfidenceAnalysis, error)
	RecordNervousness(ctx context.Context, interviewID string, level float64) error
}

// InterviewDeps wires the interview service. Only Interviews is required;
// every other dependency degrades to a built-in fallback when nil.
type InterviewDeps struct {
	Interviews mongorepo.InterviewRepository
	Store      storage.ObjectStore
	STT        stt.Provider
	LLM        llm.Provider
	Cache      cache.Cache
	Bus        realtime.Publisher
	Logger     logrus.FieldLogger

	HistoryTTL time.Duration
	LLMTimeout time.Duration
}

type interviewService struct {
	InterviewDeps
}

func NewInterviewService(d InterviewDeps) InterviewService {
	if d.Bus == nil {
		d.Bus = realtime.Nop{}
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.HistoryTTL <= 0 {
		d.HistoryTTL = 5 * time.Minute
	}
	if d.LLMTimeout <= 0 {
		d.LLMTimeout = 30 * time.Second
	}
	return &interviewService{InterviewDeps: d}
}

func (s *interviewService) log() logrus.FieldLogger {
	return s.Logger.WithField("component", "interview_service")
}

// owned loads the interview and hides other users' interviews as not found.
func (s *interviewService) owned(ctx context.Context, op, userID, interviewID string) (*models.Interview, error) {
	if userID == "" || interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and interview id are required", nil)
	}
	iv, err := s.Interviews.GetByID(ctx, interviewID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "interview not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load interview", err)
	}
	if iv.UserID != userID {
		return nil, utils.E(utils.CodeNotFound, op, "interview not found", nil)
	}
	return iv, nil
}

func (s *interviewService) invalidateHistory(ctx context.Context, userID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.DelPattern(ctx, cache.HistoryPattern(userID)); err != nil {
		s.log().WithError(err).Warn("history cache invalidation failed")
	}
}

func (s *interviewService) publish(ctx context.Context, interviewID, event string, data any) {
	if err := s.Bus.Publish(ctx, realtime.InterviewRoom(interviewID), event, data); err != nil {
		s.log().WithError(err).WithField("event", event).Debug("publish failed")
	}
}

func (s *interviewService) Create(ctx context.Context, userID string, in CreateInterviewInput) (*models.Interview, error) {
	const op = "InterviewService.Create"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if !in.Type.Valid() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid interview type", nil)
	}
	if in.Difficulty == "" {
		in.Difficulty = models.DifficultyMedium
	}
	if !in.Difficulty.Valid() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid difficulty", nil)
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = 30
	}
	if in.DurationMinutes < 5 || in.DurationMinutes > 120 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "duration must be between 5 and 120 minutes", nil)
	}

	iv := &models.Interview{
		InterviewID:     uuid.NewString(),
		UserID:          userID,
		JobID:           in.JobID,
		Type:            in.Type,
		Difficulty:      in.Difficulty,
		DurationMinutes: in.DurationMinutes,
		Status:          models.StatusScheduled,
		TargetRole:      strings.TrimSpace(in.TargetRole),
		TargetCompany:   strings.TrimSpace(in.TargetCompany),
	}
	if err := s.Interviews.Create(ctx, iv); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create interview", err)
	}
	s.invalidateHistory(ctx, userID)

	s.log().WithFields(logrus.Fields{"interview_id": iv.InterviewID, "user_id": userID, "type": iv.Type}).Info("interview created")
	return iv, nil
}

func (s *interviewService) Schedule(ctx context.Context, in ScheduleInput) (*models.Interview, error) {
	const op = "InterviewService.Schedule"

	if in.UserID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "userId is required", nil)
	}
	if in.ScheduledAt.IsZero() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "scheduledAt is required", nil)
	}
	if in.ScheduledAt.Before(time.Now().Add(-time.Minute)) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "scheduledAt must be in the future", nil)
	}

	iv, err := s.Create(ctx, in.UserID, CreateInterviewInput{
		Type:       in.Type,
		Difficulty: in.Difficulty,
		JobID:      in.JobID,
	})
	if err != nil {
		return nil, err
	}

	at := in.ScheduledAt.UTC()
	iv.ScheduledAt = &at
	updated, err := s.Interviews.Transition(ctx, iv.InterviewID,
		[]models.InterviewStatus{models.StatusScheduled}, models.StatusScheduled,
		bson.M{"scheduled_at": at})
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to set schedule", err)
	}

	if err := s.Bus.Publish(ctx, realtime.UserRoom(in.UserID), realtime.EventNotification, realtime.NotificationPayload{
		Type:    "interview_scheduled",
		Message: fmt.Sprintf("A %s interview was scheduled for %s", iv.Type, at.Format(time.RFC1123)),
	}); err != nil {
		s.log().WithError(err).Debug("schedule notification failed")
	}
	return updated, nil
}

func (s *interviewService) Start(ctx context.Context, userID, interviewID string) (*models.Interview, error) {
	const op = "InterviewService.Start"

	iv, err := s.owned(ctx, op, userID, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != models.StatusScheduled {
		return nil, utils.E(utils.CodeConflict, op, "interview already started", nil)
	}

	questions := s.questionsFor(ctx, iv)

	now := time.Now().UTC()
	started, err := s.Interviews.Transition(ctx, interviewID,
		[]models.InterviewStatus{models.StatusScheduled}, models.StatusInProgress,
		bson.M{
			"questions":  questions,
			"started_at": now,
			"metrics": models.Metrics{
				NervousnessSamples: []models.Sample{},
				ConfidenceSamples:  []models.Sample{},
				EyeContactSamples:  []models.Sample{},
				QuestionScores:     []models.QuestionScore{},
			},
		})
	if err != nil {
		if errors.Is(err, mongorepo.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, "interview already started", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to start interview", err)
	}

	if len(questions) > 0 {
		if err := s.Interviews.AppendTranscript(ctx, interviewID, models.TranscriptEntry{
			Role: models.SpeakerInterviewer, Text: questions[0].Text, Timestamp: now,
		}); err != nil {
			s.log().WithError(err).Warn("append transcript failed")
		}
		s.publish(ctx, interviewID, realtime.EventQuestion, map[string]any{
			"interviewId":    interviewID,
			"question":       questions[0],
			"questionNumber": 1,
			"totalQuestions": len(questions),
		})
	}
	s.invalidateHistory(ctx, userID)

	s.log().WithFields(logrus.Fields{"interview_id": interviewID, "questions": len(questions)}).Info("interview started")
	return started, nil
}

func (s *interviewService) questionsFor(ctx context.Context, iv *models.Interview) []models.Question {
	if s.LLM == nil {
		return BankQuestions(iv.Type)
	}
	gctx, cancel := context.WithTimeout(ctx, s.LLMTimeout)
	defer cancel()

	qs, err := generateQuestions(gctx, s.LLM, iv)
	if err != nil {
		s.log().WithError(err).WithField("provider", s.LLM.Name()).Warn("question generation failed, using built-in bank")
		return BankQuestions(iv.Type)
	}
	return qs
}

func (s *interviewService) SubmitAnswer(ctx context.Context, userID, interviewID string, in AnswerInput) (*AnswerResult, error) {
	const op = "InterviewService.SubmitAnswer"

	answer := strings.TrimSpace(in.Answer)
	hasAudio := in.Audio != nil && len(in.Audio.Data) > 0
	if in.QuestionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "questionId is required", nil)
	}
	if answer == "" && !hasAudio {
		return nil, utils.E(utils.CodeInvalidArgument, op, "answer is empty and no audio was provided", nil)
	}

	iv, err := s.owned(ctx, op, userID, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != models.StatusInProgress {
		return nil, utils.E(utils.CodeConflict, op, "interview is not in progress", nil)
	}
	idx := iv.QuestionIndex(in.QuestionID)
	if idx < 0 {
		return nil, utils.E(utils.CodeNotFound, op, "question not found", nil)
	}
	q := iv.Questions[idx]
	if q.Response != nil {
		return nil, utils.E(utils.CodeConflict, op, "question already answered", nil)
	}

	resp := models.QuestionResponse{
		Transcript:      answer,
		DurationSeconds: in.DurationSeconds,
		Timestamp:       time.Now().UTC(),
	}

	if hasAudio {
		if s.Store != nil {
			name := fmt.Sprintf("answers/%s/%s/%s%s", userID, interviewID, q.ID, extFor(in.Audio.MIMEType))
			path, err := s.Store.Upload(ctx, name, in.Audio.MIMEType, bytes.NewReader(in.Audio.Data))
			if err != nil {
				s.log().WithError(err).Warn("answer audio upload failed")
			} else {
				resp.AudioPath = path
			}
		}
		if answer == "" {
			if s.STT == nil {
				return nil, utils.E(utils.CodeInvalidArgument, op, "answer is empty and transcription is not available", nil)
			}
			r, err := s.STT.Transcribe(ctx, *in.Audio, in.Language)
			if err != nil {
				if errors.Is(err, stt.ErrNoSpeech) {
					return nil, utils.E(utils.CodeInvalidArgument, op, "no speech detected in the recording", err)
				}
				return nil, utils.E(utils.CodeUnavailable, op, "failed to transcribe answer audio", err)
			}
			resp.Transcript = r.Text
			resp.Confidence = r.Confidence
		}
	}
	if resp.Confidence == 0 {
		resp.Confidence = 1
	}
	resp.Keywords = Keywords(resp.Transcript)

	ev := s.evaluate(ctx, q, resp.Transcript)

	saved, err := s.Interviews.SaveResponse(ctx, interviewID, idx, resp, &ev)
	if err != nil {
		if errors.Is(err, mongorepo.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, "question already answered or interview not in progress", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to save response", err)
	}

	if err := s.Interviews.AppendTranscript(ctx, interviewID, models.TranscriptEntry{
		Role: models.SpeakerCandidate, Text: resp.Transcript, Timestamp: resp.Timestamp,
	}); err != nil {
		s.log().WithError(err).Warn("append transcript failed")
	}
	s.publish(ctx, interviewID, realtime.EventAnswerEvaluated, map[string]any{
		"questionId": q.ID,
		"evaluation": ev,
	})

	return &AnswerResult{
		QuestionID: q.ID,
		Response:   resp,
		Evaluation: &ev,
		Answered:   saved.AnsweredCount(),
		Total:      len(saved.Questions),
	}, nil
}

func (s *interviewService) evaluate(ctx context.Context, q models.Question, answer string) models.Evaluation {
	if s.LLM == nil || strings.TrimSpace(answer) == "" {
		return HeuristicEvaluation(q, answer)
	}
	ectx, cancel := context.WithTimeout(ctx, s.LLMTimeout)
	defer cancel()

	ev, err := evaluateAnswer(ectx, s.LLM, q, answer)
	if err != nil {
		s.log().WithError(err).Warn("answer evaluation failed, using heuristic")
		return HeuristicEvaluation(q, answer)
	}
	return ev
}

func extFor(mime string) string {
	switch {
	case strings.Contains(mime, "webm"):
		return ".webm"
	case strings.Contains(mime, "ogg"):
		return ".ogg"
	case strings.Contains(mime, "wav"):
		return ".wav"
	case strings.Contains(mime, "flac"):
		return ".flac"
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return ".mp3"
	default:
		return ".bin"
	}
}

func (s *interviewService) NextQuestion(ctx context.Context, userID, interviewID string) (*NextQuestion, error) {
	const op = "InterviewService.NextQuestion"

	iv, err := s.owned(ctx, op, userID, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != models.StatusInProgress {
		return nil, utils.E(utils.CodeConflict, op, "interview is not in progress", nil)
	}

	idx := iv.NextUnanswered()
	if idx < 0 {
		return &NextQuestion{Complete: true, Message: "All questions answered"}, nil
	}
	q := iv.Questions[idx]

	if err := s.Interviews.AppendTranscript(ctx, interviewID, models.TranscriptEntry{
		Role: models.SpeakerInterviewer, Text: q.Text, Timestamp: time.Now().UTC(),
	}); err != nil {
		s.log().WithError(err).Warn("append transcript failed")
	}

	out := &NextQuestion{
		Question:       &q,
		QuestionNumber: idx + 1,
		TotalQuestions: len(iv.Questions),
	}
	s.publish(ctx, interviewID, realtime.EventQuestion, map[string]any{
		"interviewId":    interviewID,
		"question":       q,
		"questionNumber": out.QuestionNumber,
		"totalQuestions": out.TotalQuestions,
	})
	return out, nil
}

func (s *interviewService) Complete(ctx context.Context, userID, interviewID string) (*models.Interview, error) {
	const op = "InterviewService.Complete"

	iv, err := s.owned(ctx, op, userID, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != models.StatusInProgress {
		return nil, utils.E(utils.CodeConflict, op, "interview is not in progress", nil)
	}

	overall, metrics := Evaluate(iv)
	passed := metrics.OverallScore >= PassThreshold
	reason := fmt.Sprintf("Overall score %.0f (grade %s); %d of %d questions answered.",
		overall.TotalScore, overall.Grade, iv.AnsweredCount(), len(iv.Questions))

	now := time.Now().UTC()
	done, err := s.Interviews.Transition(ctx, interviewID,
		[]models.InterviewStatus{models.StatusInProgress}, models.StatusCompleted,
		bson.M{
			"completed_at":    now,
			"evaluation":      overall,
			"metrics":         metrics,
			"passed":          passed,
			"decision_reason": reason,
		})
	if err != nil {
		if errors.Is(err, mongorepo.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, "interview is not in progress", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to complete interview", err)
	}
	s.invalidateHistory(ctx, userID)

	if err := s.Bus.Publish(ctx, realtime.UserRoom(userID), realtime.EventAnalyticsUpdate, map[string]any{
		"interviewId":  interviewID,
		"overallScore": metrics.OverallScore,
		"passed":       passed,
	}); err != nil {
		s.log().WithError(err).Debug("analytics publish failed")
	}

	s.log().WithFields(logrus.Fields{"interview_id": interviewID, "score": metrics.OverallScore, "passed": passed}).Info("interview completed")
	return done, nil
}

func (s *interviewService) Cancel(ctx context.Context, userID, interviewID string) (*models.Interview, error) {
	const op = "InterviewService.Cancel"

	if _, err := s.owned(ctx, op, userID, interviewID); err != nil {
		return nil, err
	}
	iv, err := s.Interviews.Transition(ctx, interviewID,
		[]models.InterviewStatus{models.StatusScheduled, models.StatusInProgress}, models.StatusCancelled,
		bson.M{"completed_at": time.Now().UTC()})
	if err != nil {
		if errors.Is(err, mongorepo.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, "interview already completed or cancelled", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to cancel interview", err)
	}
	s.invalidateHistory(ctx, userID)
	return iv, nil
}

func (s *interviewService) Get(ctx context.Context, userID, interviewID string) (*models.Interview, error) {
	return s.owned(ctx, "InterviewService.Get", userID, interviewID)
}

func (s *interviewService) History(ctx context.Context, userID string, f HistoryFilter) (*HistoryPage, error) {
	const op = "InterviewService.History"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}

	key := cache.HistoryKey(userID, fmt.Sprintf("%s|%s|%d|%d", f.Status, f.Type, f.Page, f.Limit))
	if s.Cache != nil {
		var cached HistoryPage
		hit, err := s.Cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.log().WithError(err).Debug("history cache read failed")
		}
		if hit {
			return &cached, nil
		}
	}

	rows, total, err := s.Interviews.ListByUser(ctx, userID, mongorepo.ListFilter{
		Status: f.Status,
		Type:   f.Type,
		Page:   int64(f.Page),
		Limit:  int64(f.Limit),
	})
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list interviews", err)
	}

	page := &HistoryPage{
		Interviews: rows,
		Pagination: Pagination{
			Page:  f.Page,
			Limit: f.Limit,
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(f.Limit))),
		},
	}
	if s.Cache != nil {
		if err := s.Cache.SetJSON(ctx, key, page, s.HistoryTTL); err != nil {
			s.log().WithError(err).Debug("history cache write failed")
		}
	}
	return page, nil
}

func (s *interviewService) Feedback(ctx context.Context, userID, interviewID string) (*Feedback, error) {
	const op = "InterviewService.Feedback"

	iv, err := s.owned(ctx, op, userID, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status != models.StatusCompleted {
		return nil, utils.E(utils.CodeConflict, op, "interview is not completed", nil)
	}
	fb := BuildFeedback(iv)
	return &fb, nil
}

func (s *interviewService) Transcribe(ctx context.Context, audio stt.Audio, language string) (*TranscriptResult, error) {
	const op = "InterviewService.Transcribe"

	if len(audio.Data) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "audio is required", nil)
	}
	if s.STT == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "transcription is not available", nil)
	}
	r, err := s.STT.Transcribe(ctx, audio, language)
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			return &TranscriptResult{Text: "", Confidence: 0}, nil
		}
		return nil, utils.E(utils.CodeUnavailable, op, "transcription failed", err)
	}
	return &TranscriptResult{Text: r.Text, Confidence: r.Confidence}, nil
}

const confidencePrompt = `You are assessing a mock interview candidate from a short video clip.
Score their visible confidence, nervousness and eye contact from 0 to 100 and
estimate the share of each observed emotion.
Return JSON: {"confidenceScore":n,"nervousnessLevel":n,"eyeContactScore":n,"emotionBreakdown":[{"emotion":string,"percentage":n}]}`

func (s *interviewService) AnalyzeConfidence(ctx context.Context, userID, interviewID string, video llm.Attachment) (*ConfidenceAnalysis, error) {
	const op = "InterviewService.AnalyzeConfidence"

	if len(video.Data) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "video is required", nil)
	}
	if interviewID != "" {
		if _, err := s.owned(ctx, op, userID, interviewID); err != nil {
			return nil, err
		}
	}
	if s.LLM == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "confidence analysis is not available", nil)
	}

	actx, cancel := context.WithTimeout(ctx, s.LLMTimeout)
	defer cancel()
	raw, err := s.LLM.Generate(actx, confidencePrompt, video)
	if err != nil {
		if errors.Is(err, llm.ErrAttachmentUnsupported) {
			return nil, utils.E(utils.CodeUnavailable, op, "the configured model cannot analyze video", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "confidence analysis failed", err)
	}

	var out ConfidenceAnalysis
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &out); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "invalid analysis response", err)
	}
	out.ConfidenceScore = clamp(out.ConfidenceScore, 0, 100)
	out.NervousnessLevel = clamp(out.NervousnessLevel, 0, 100)
	out.EyeContactScore = clamp(out.EyeContactScore, 0, 100)
	if out.EmotionBreakdown == nil {
		out.EmotionBreakdown = []EmotionBreakdown{}
	}

	if interviewID != "" {
		now := time.Now().UTC()
		for field, v := range map[string]float64{
			"confidence_samples":  out.ConfidenceScore,
			"eye_contact_samples": out.EyeContactScore,
			"nervousness_samples": out.NervousnessLevel,
		} {
			if err := s.Interviews.PushSample(ctx, interviewID, field, models.Sample{Timestamp: now, Value: v}); err != nil {
				s.log().WithError(err).WithField("field", field).Warn("record sample failed")
			}
		}
	}
	return &out, nil
}

func (s *interviewService) RecordNervousness(ctx context.Context, interviewID string, level float64) error {
	const op = "InterviewService.RecordNervousness"

	if interviewID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "interview id is required", nil)
	}
	err := s.Interviews.PushSample(ctx, interviewID, "nervousness_samples", models.Sample{
		Timestamp: time.Now().UTC(),
		Value:     clamp(level, 0, 100),
	})
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to record nervousness", err)
	}
	return nil
}
