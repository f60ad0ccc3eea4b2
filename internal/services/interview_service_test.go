package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/careerforge/careerforge/internal/logger"
	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/providers/llm"
	"github.com/careerforge/careerforge/internal/providers/stt"
	"github.com/careerforge/careerforge/internal/realtime"
	"github.com/careerforge/careerforge/internal/utils"
)

type fixture struct {
	svc   InterviewService
	repo  *memInterviews
	store *memStore
	stt   *fakeSTT
	bus   *fakeBus
}

func newFixture(t *testing.T, provider llm.Provider) *fixture {
	t.Helper()
	f := &fixture{
		repo:  newMemInterviews(),
		store: newMemStore(),
		stt:   &fakeSTT{result: stt.Result{Text: "spoken answer about closures", Confidence: 0.9, Final: true}},
		bus:   &fakeBus{},
	}
	d := InterviewDeps{
		Interviews: f.repo,
		Store:      f.store,
		STT:        f.stt,
		Bus:        f.bus,
		Logger:     logger.Discard(),
	}
	if provider != nil {
		d.LLM = provider
	}
	f.svc = NewInterviewService(d)
	return f
}

func (f *fixture) started(t *testing.T, userID string, typ models.InterviewType) *models.Interview {
	t.Helper()
	ctx := context.Background()
	iv, err := f.svc.Create(ctx, userID, CreateInterviewInput{Type: typ, Difficulty: models.DifficultyMedium, TargetRole: "Backend Engineer"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	iv, err = f.svc.Start(ctx, userID, iv.InterviewID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return iv
}

func TestInterviewFullFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	iv := f.started(t, "u1", models.TypeBehavioral)
	if iv.Status != models.StatusInProgress {
		t.Fatalf("status = %q, want in-progress", iv.Status)
	}
	if len(iv.Questions) != 3 {
		t.Fatalf("questions = %d, want 3 from the built-in bank", len(iv.Questions))
	}
	if !f.bus.has(realtime.InterviewRoom(iv.InterviewID), realtime.EventQuestion) {
		t.Error("first question was not pushed to the interview room")
	}

	for i := 0; i < 3; i++ {
		next, err := f.svc.NextQuestion(ctx, "u1", iv.InterviewID)
		if err != nil {
			t.Fatalf("NextQuestion %d: %v", i, err)
		}
		if next.Complete || next.QuestionNumber != i+1 || next.TotalQuestions != 3 {
			t.Fatalf("NextQuestion %d = %+v", i, next)
		}
		res, err := f.svc.SubmitAnswer(ctx, "u1", iv.InterviewID, AnswerInput{
			QuestionID: next.Question.ID,
			Answer:     "In that situation we split the task and I led the team to a good result for the customer.",
		})
		if err != nil {
			t.Fatalf("SubmitAnswer %d: %v", i, err)
		}
		if res.Answered != i+1 || res.Evaluation == nil {
			t.Fatalf("SubmitAnswer %d = %+v", i, res)
		}
	}

	next, err := f.svc.NextQuestion(ctx, "u1", iv.InterviewID)
	if err != nil {
		t.Fatalf("NextQuestion after last: %v", err)
	}
	if !next.Complete {
		t.Fatalf("expected complete, got %+v", next)
	}

	done, err := f.svc.Complete(ctx, "u1", iv.InterviewID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != models.StatusCompleted || done.Metrics == nil || done.Metrics.OverallScore == 0 {
		t.Fatalf("completed interview = %+v", done)
	}
	if done.Passed == nil || done.Evaluation == nil {
		t.Fatal("passed flag and evaluation must be set at completion")
	}
	if !f.bus.has(realtime.UserRoom("u1"), realtime.EventAnalyticsUpdate) {
		t.Error("analytics update was not published")
	}

	fb, err := f.svc.Feedback(ctx, "u1", iv.InterviewID)
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if fb.OverallFeedback == "" || len(fb.Resources) == 0 {
		t.Errorf("Feedback = %+v", fb)
	}

	stored, _ := f.repo.GetByID(ctx, iv.InterviewID)
	if len(stored.Transcript) < 6 {
		t.Errorf("transcript entries = %d, want interviewer and candidate turns", len(stored.Transcript))
	}
}

func TestSubmitAnswerValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	iv := f.started(t, "u1", models.TypeTechnical)
	qid := iv.Questions[0].ID

	tests := []struct {
		name string
		in   AnswerInput
		code utils.Code
	}{
		{"missing question", AnswerInput{Answer: "x"}, utils.CodeInvalidArgument},
		{"empty without audio", AnswerInput{QuestionID: qid, Answer: "   "}, utils.CodeInvalidArgument},
		{"unknown question", AnswerInput{QuestionID: "nope", Answer: "x"}, utils.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitAnswer(ctx, "u1", iv.InterviewID, tt.in)
			if !utils.IsCode(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestSubmitAnswerTwiceConflicts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	iv := f.started(t, "u1", models.TypeTechnical)
	in := AnswerInput{QuestionID: iv.Questions[0].ID, Answer: "closures capture scope"}

	if _, err := f.svc.SubmitAnswer(ctx, "u1", iv.InterviewID, in); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := f.svc.SubmitAnswer(ctx, "u1", iv.InterviewID, in)
	if !utils.IsCode(err, utils.CodeConflict) {
		t.Fatalf("second submit err = %v, want CONFLICT", err)
	}
}

func TestSubmitAnswerTranscribesAudio(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	iv := f.started(t, "u1", models.TypeTechnical)

	res, err := f.svc.SubmitAnswer(ctx, "u1", iv.InterviewID, AnswerInput{
		QuestionID: iv.Questions[0].ID,
		Audio:      &stt.Audio{Data: []byte("opus"), MIMEType: "audio/webm"},
	})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if f.stt.calls != 1 {
		t.Errorf("stt calls = %d, want 1", f.stt.calls)
	}
	if res.Response.Transcript != "spoken answer about closures" || res.Response.Confidence != 0.9 {
		t.Errorf("response = %+v", res.Response)
	}
	if res.Response.AudioPath == "" || len(f.store.objects) != 1 {
		t.Errorf("audio not stored: path=%q objects=%d", res.Response.AudioPath, len(f.store.objects))
	}
}

func TestSubmitAnswerNoSpeech(t *testing.T) {
	f := newFixture(t, nil)
	f.stt.err = stt.ErrNoSpeech
	iv := f.started(t, "u1", models.TypeTechnical)

	_, err := f.svc.SubmitAnswer(context.Background(), "u1", iv.InterviewID, AnswerInput{
		QuestionID: iv.Questions[0].ID,
		Audio:      &stt.Audio{Data: []byte("silence"), MIMEType: "audio/webm"},
	})
	if !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("err = %v, want INVALID_ARGUMENT", err)
	}
}

func TestLifecycleIsMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	iv := f.started(t, "u1", models.TypeHR)

	if _, err := f.svc.Start(ctx, "u1", iv.InterviewID); !utils.IsCode(err, utils.CodeConflict) {
		t.Errorf("restart err = %v, want CONFLICT", err)
	}
	if _, err := f.svc.Complete(ctx, "u1", iv.InterviewID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, "u1", iv.InterviewID); !utils.IsCode(err, utils.CodeConflict) {
		t.Errorf("cancel after complete err = %v, want CONFLICT", err)
	}
	if _, err := f.svc.SubmitAnswer(ctx, "u1", iv.InterviewID, AnswerInput{QuestionID: iv.Questions[0].ID, Answer: "late"}); !utils.IsCode(err, utils.CodeConflict) {
		t.Errorf("answer after complete err = %v, want CONFLICT", err)
	}
}

func TestCancelScheduled(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	iv, err := f.svc.Create(ctx, "u1", CreateInterviewInput{Type: models.TypeTechnical})
	if err != nil {
		t.Fatal(err)
	}
	out, err := f.svc.Cancel(ctx, "u1", iv.InterviewID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if out.Status != models.StatusCancelled {
		t.Errorf("status = %q", out.Status)
	}
}

func TestOtherUsersInterviewIsHidden(t *testing.T) {
	f := newFixture(t, nil)
	iv := f.started(t, "owner", models.TypeTechnical)

	_, err := f.svc.Get(context.Background(), "intruder", iv.InterviewID)
	if !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name string
		in   CreateInterviewInput
	}{
		{"bad type", CreateInterviewInput{Type: "mock"}},
		{"bad difficulty", CreateInterviewInput{Type: models.TypeHR, Difficulty: "extreme"}},
		{"bad duration", CreateInterviewInput{Type: models.TypeHR, DurationMinutes: 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), "u1", tt.in)
			if !utils.IsCode(err, utils.CodeInvalidArgument) {
				t.Errorf("err = %v, want INVALID_ARGUMENT", err)
			}
		})
	}
}

func TestStartUsesModelQuestions(t *testing.T) {
	provider := &fakeLLM{byPrompt: map[string]string{
		"Generate": "```json\n" + `{"questions":[
			{"text":"What is a goroutine?","category":"technical","difficulty":"easy","topic":"Go","timeLimit":120},
			{"text":"Explain channels.","category":"weird","difficulty":"??","topic":"Go","timeLimit":0},
			{"text":"","category":"technical"}
		]}` + "\n```",
	}}
	f := newFixture(t, provider)

	iv := f.started(t, "u1", models.TypeTechnical)
	if len(iv.Questions) != 2 {
		t.Fatalf("questions = %d, want 2 valid ones", len(iv.Questions))
	}
	q := iv.Questions[1]
	if q.Category != models.CategoryTechnical || q.Difficulty != models.DifficultyMedium || q.TimeLimit != 180 {
		t.Errorf("normalized question = %+v", q)
	}
}

func TestStartFallsBackToBank(t *testing.T) {
	f := newFixture(t, &fakeLLM{err: errors.New("model down")})
	iv := f.started(t, "u1", models.TypeHR)
	if len(iv.Questions) != 3 || iv.Questions[0].Topic != "Introduction" {
		t.Fatalf("questions = %+v, want HR bank", iv.Questions)
	}
}

func TestAnalyzeConfidenceRecordsSamples(t *testing.T) {
	provider := &fakeLLM{reply: `{"confidenceScore":120,"nervousnessLevel":35,"eyeContactScore":70,"emotionBreakdown":[{"emotion":"calm","percentage":80}]}`}
	f := newFixture(t, provider)
	ctx := context.Background()
	iv := f.started(t, "u1", models.TypeTechnical)

	out, err := f.svc.AnalyzeConfidence(ctx, "u1", iv.InterviewID, llm.Attachment{MIMEType: "video/webm", Data: []byte("v")})
	if err != nil {
		t.Fatalf("AnalyzeConfidence: %v", err)
	}
	if out.ConfidenceScore != 100 {
		t.Errorf("ConfidenceScore = %v, want clamped to 100", out.ConfidenceScore)
	}
	stored, _ := f.repo.GetByID(ctx, iv.InterviewID)
	if len(stored.Metrics.EyeContactSamples) != 1 || len(stored.Metrics.NervousnessSamples) != 1 {
		t.Errorf("samples not recorded: %+v", stored.Metrics)
	}
}

func TestAnalyzeConfidenceWithoutModel(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.AnalyzeConfidence(context.Background(), "u1", "", llm.Attachment{MIMEType: "video/webm", Data: []byte("v")})
	if !utils.IsCode(err, utils.CodeUnavailable) {
		t.Fatalf("err = %v, want UNAVAILABLE", err)
	}
}

func TestScheduleNotifiesUser(t *testing.T) {
	f := newFixture(t, nil)
	iv, err := f.svc.Schedule(context.Background(), ScheduleInput{
		UserID:      "student",
		JobID:       "job-1",
		Type:        models.TypeHR,
		ScheduledAt: time.Now().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if iv.ScheduledAt == nil || iv.JobID != "job-1" || iv.Status != models.StatusScheduled {
		t.Errorf("scheduled interview = %+v", iv)
	}
	if !f.bus.has(realtime.UserRoom("student"), realtime.EventNotification) {
		t.Error("student was not notified")
	}
}

func TestRecordNervousnessClamps(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	iv := f.started(t, "u1", models.TypeTechnical)

	if err := f.svc.RecordNervousness(ctx, iv.InterviewID, 140); err != nil {
		t.Fatal(err)
	}
	stored, _ := f.repo.GetByID(ctx, iv.InterviewID)
	if got := stored.Metrics.NervousnessSamples[0].Value; got != 100 {
		t.Errorf("sample = %v, want 100", got)
	}
}
