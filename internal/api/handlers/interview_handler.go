package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/providers/llm"
	"github.com/careerforge/careerforge/internal/providers/stt"
	"github.com/careerforge/careerforge/internal/services"
	"github.com/careerforge/careerforge/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	maxAudioBytes = 50 << 20
	maxVideoBytes = 50 << 20
)

type InterviewHandler struct {
	svc      services.InterviewService
	language string
}

func NewInterviewHandler(svc services.InterviewService, defaultLanguage string) *InterviewHandler {
	if defaultLanguage == "" {
		defaultLanguage = "en-US"
	}
	return &InterviewHandler{svc: svc, language: defaultLanguage}
}

type responseView struct {
	QuestionID string    `json:"questionId"`
	Answer     string    `json:"answer"`
	AudioURL   string    `json:"audioUrl,omitempty"`
	Duration   int       `json:"duration"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Keywords   []string  `json:"keywords"`
}

// interviewView adds the derived fields clients read: a flat responses
// list, the current question and the feedback summary.
type interviewView struct {
	*models.Interview
	Responses       []responseView   `json:"responses"`
	CurrentQuestion *models.Question `json:"currentQuestion,omitempty"`
	TotalQuestions  int              `json:"totalQuestions"`
	Feedback        string           `json:"feedback,omitempty"`
}

func present(iv *models.Interview) interviewView {
	v := interviewView{Interview: iv, Responses: []responseView{}, TotalQuestions: len(iv.Questions)}
	for _, q := range iv.Questions {
		if q.Response == nil {
			continue
		}
		v.Responses = append(v.Responses, responseView{
			QuestionID: q.ID,
			Answer:     q.Response.Transcript,
			AudioURL:   q.Response.AudioPath,
			Duration:   q.Response.DurationSeconds,
			Timestamp:  q.Response.Timestamp,
			Confidence: q.Response.Confidence,
			Keywords:   q.Response.Keywords,
		})
	}
	if iv.Status == models.StatusInProgress {
		if i := iv.NextUnanswered(); i >= 0 {
			q := iv.Questions[i]
			v.CurrentQuestion = &q
		}
	}
	if iv.Evaluation != nil {
		v.Feedback = iv.Evaluation.Summary
	}
	return v
}

type CreateInterviewRequest struct {
	Type          string `json:"type" binding:"required"`
	Difficulty    string `json:"difficulty"`
	TargetRole    string `json:"targetRole"`
	TargetCompany string `json:"targetCompany"`
	Duration      int    `json:"duration"`
	JobID         string `json:"jobId"`
}

func (h *InterviewHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CreateInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.Create", "interview type is required", err))
		return
	}

	iv, err := h.svc.Create(c.Request.Context(), userID, services.CreateInterviewInput{
		Type:            models.InterviewType(strings.ToLower(req.Type)),
		Difficulty:      models.Difficulty(strings.ToLower(req.Difficulty)),
		DurationMinutes: req.Duration,
		TargetRole:      req.TargetRole,
		TargetCompany:   req.TargetCompany,
		JobID:           req.JobID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Interview scheduled successfully", gin.H{"interview": present(iv)})
}

type ScheduleRequest struct {
	UserID      string    `json:"userId" binding:"required"`
	JobID       string    `json:"jobId"`
	ScheduledAt time.Time `json:"scheduledAt" binding:"required"`
	Type        string    `json:"type" binding:"required"`
	Difficulty  string    `json:"difficulty"`
}

func (h *InterviewHandler) Schedule(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.Schedule", "userId, type and scheduledAt are required", err))
		return
	}

	iv, err := h.svc.Schedule(c.Request.Context(), services.ScheduleInput{
		UserID:      req.UserID,
		JobID:       req.JobID,
		Type:        models.InterviewType(strings.ToLower(req.Type)),
		Difficulty:  models.Difficulty(strings.ToLower(req.Difficulty)),
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Interview scheduled", gin.H{"interview": present(iv)})
}

func (h *InterviewHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	out, err := h.svc.History(c.Request.Context(), userID, services.HistoryFilter{
		Status: models.InterviewStatus(c.Query("status")),
		Type:   models.InterviewType(c.Query("type")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]interviewView, 0, len(out.Interviews))
	for i := range out.Interviews {
		views = append(views, present(&out.Interviews[i]))
	}
	respond(c, http.StatusOK, "", gin.H{"interviews": views, "pagination": out.Pagination})
}

func (h *InterviewHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	iv, err := h.svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"interview": present(iv)})
}

func (h *InterviewHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	iv, err := h.svc.Start(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Interview started", gin.H{"interview": present(iv)})
}

func (h *InterviewHandler) NextQuestion(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	out, err := h.svc.NextQuestion(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", out)
}

// SubmitAnswer takes multipart questionId, answer (or transcript), duration
// and an optional audio file.
func (h *InterviewHandler) SubmitAnswer(c *gin.Context) {
	const op = "InterviewHandler.SubmitAnswer"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	answer := c.PostForm("answer")
	if answer == "" {
		answer = c.PostForm("transcript")
	}
	duration, _ := strconv.Atoi(c.PostForm("duration"))

	data, fh, err := readFormFile(c, "audio", maxAudioBytes)
	if err == errTooLarge {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "audio too large (max 50MB)", err))
		return
	}
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid audio upload", err))
		return
	}

	in := services.AnswerInput{
		QuestionID:      c.PostForm("questionId"),
		Answer:          answer,
		DurationSeconds: duration,
		Language:        c.DefaultPostForm("language", h.language),
	}
	if len(data) > 0 {
		in.Audio = &stt.Audio{Data: data, MIMEType: contentType(fh, data)}
	}

	out, err := h.svc.SubmitAnswer(c.Request.Context(), userID, c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Answer submitted and evaluated", out)
}

func (h *InterviewHandler) Complete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	iv, err := h.svc.Complete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Interview completed", gin.H{"interview": present(iv), "evaluation": iv.Evaluation})
}

func (h *InterviewHandler) Cancel(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	iv, err := h.svc.Cancel(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Interview cancelled", gin.H{"interview": present(iv)})
}

func (h *InterviewHandler) Evaluation(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	iv, err := h.svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if iv.Status != models.StatusCompleted {
		writeError(c, utils.E(utils.CodeNotFound, "InterviewHandler.Evaluation", "interview not found or not completed", nil))
		return
	}

	type questionEvaluation struct {
		Text       string                  `json:"text"`
		Category   models.QuestionCategory `json:"category"`
		Topic      string                  `json:"topic"`
		Evaluation *models.Evaluation      `json:"evaluation"`
	}
	qe := make([]questionEvaluation, 0, len(iv.Questions))
	for _, q := range iv.Questions {
		qe = append(qe, questionEvaluation{Text: q.Text, Category: q.Category, Topic: q.Topic, Evaluation: q.Evaluation})
	}
	respond(c, http.StatusOK, "", gin.H{"overallEvaluation": iv.Evaluation, "questionEvaluations": qe})
}

func (h *InterviewHandler) Metrics(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	iv, err := h.svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"metrics": iv.Metrics})
}

func (h *InterviewHandler) Feedback(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	fb, err := h.svc.Feedback(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fb)
}

func (h *InterviewHandler) Transcribe(c *gin.Context) {
	const op = "InterviewHandler.Transcribe"

	if _, ok := requireUserID(c); !ok {
		return
	}

	data, fh, err := readFormFile(c, "audio", maxAudioBytes)
	if err != nil || len(data) == 0 {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "multipart field 'audio' is required (max 50MB)", err))
		return
	}

	out, err := h.svc.Transcribe(c.Request.Context(), stt.Audio{Data: data, MIMEType: contentType(fh, data)}, c.DefaultPostForm("language", h.language))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *InterviewHandler) AnalyzeConfidence(c *gin.Context) {
	const op = "InterviewHandler.AnalyzeConfidence"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	data, fh, err := readFormFile(c, "video", maxVideoBytes)
	if err != nil || len(data) == 0 {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "multipart field 'video' is required (max 50MB)", err))
		return
	}

	out, err := h.svc.AnalyzeConfidence(c.Request.Context(), userID, c.PostForm("interviewId"),
		llm.Attachment{MIMEType: contentType(fh, data), Data: data})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
