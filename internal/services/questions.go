package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/providers/llm"
	"github.com/google/uuid"
)

const (
	minQuestions       = 3
	maxQuestions       = 12
	minutesPerQuestion = 5
)

// QuestionCount is one question per five minutes, at least three.
func QuestionCount(durationMinutes int) int {
	n := durationMinutes / minutesPerQuestion
	if n < minQuestions {
		n = minQuestions
	}
	if n > maxQuestions {
		n = maxQuestions
	}
	return n
}

type bankEntry struct {
	text       string
	topic      string
	difficulty models.Difficulty
	timeLimit  int
}

var questionBank = map[models.InterviewType][]bankEntry{
	models.TypeTechnical: {
		{"Explain the concept of closures in JavaScript.", "JavaScript", models.DifficultyMedium, 180},
		{"What is the difference between REST and GraphQL?", "API Design", models.DifficultyMedium, 180},
		{"Describe how you would design a URL shortening service.", "System Design", models.DifficultyHard, 300},
	},
	models.TypeHR: {
		{"Tell me about yourself and your background.", "Introduction", models.DifficultyEasy, 180},
		{"Where do you see yourself in 5 years?", "Career Goals", models.DifficultyEasy, 120},
		{"Why do you want to work for our company?", "Motivation", models.DifficultyMedium, 150},
	},
	models.TypeBehavioral: {
		{"Tell me about a time when you faced a challenging project. How did you handle it?", "Problem Solving", models.DifficultyMedium, 180},
		{"Describe a situation where you had to work with a difficult team member.", "Teamwork", models.DifficultyMedium, 180},
		{"Give an example of when you showed leadership.", "Leadership", models.DifficultyMedium, 180},
	},
	models.TypeSystemDesign: {
		{"Describe how you would design a URL shortening service.", "System Design", models.DifficultyHard, 300},
		{"How would you design a rate limiter for a public API?", "System Design", models.DifficultyHard, 300},
		{"Walk me through designing a chat application that supports group messages.", "System Design", models.DifficultyHard, 300},
	},
}

func categoryFor(t models.InterviewType) models.QuestionCategory {
	switch t {
	case models.TypeTechnical, models.TypeSystemDesign:
		return models.CategoryTechnical
	default:
		return models.CategoryBehavioral
	}
}

// BankQuestions returns the built-in questions for t with fresh ids.
// Unknown types get the technical set.
func BankQuestions(t models.InterviewType) []models.Question {
	entries, ok := questionBank[t]
	if !ok {
		entries = questionBank[models.TypeTechnical]
	}
	out := make([]models.Question, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.Question{
			ID:         uuid.NewString(),
			Text:       e.text,
			Category:   categoryFor(t),
			Difficulty: e.difficulty,
			Topic:      e.topic,
			TimeLimit:  e.timeLimit,
		})
	}
	return out
}

const questionPrompt = `Generate %d interview questions for a %s interview.
Difficulty: %s.
Target role: %s.
Target company: %s.
Return JSON: {"questions":[{"text":string,"category":"technical"|"behavioral"|"situational","difficulty":"easy"|"medium"|"hard","topic":string,"timeLimit":seconds}]}`

type generatedQuestions struct {
	Questions []struct {
		Text       string `json:"text"`
		Category   string `json:"category"`
		Difficulty string `json:"difficulty"`
		Topic      string `json:"topic"`
		TimeLimit  int    `json:"timeLimit"`
	} `json:"questions"`
}

func generateQuestions(ctx context.Context, p llm.Provider, iv *models.Interview) ([]models.Question, error) {
	n := QuestionCount(iv.DurationMinutes)
	prompt := fmt.Sprintf(questionPrompt, n, iv.Type, iv.Difficulty, orNone(iv.TargetRole), orNone(iv.TargetCompany))

	raw, err := p.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var out generatedQuestions
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}

	qs := make([]models.Question, 0, len(out.Questions))
	for _, g := range out.Questions {
		text := strings.TrimSpace(g.Text)
		if text == "" {
			continue
		}
		q := models.Question{
			ID:         uuid.NewString(),
			Text:       text,
			Category:   models.QuestionCategory(g.Category),
			Difficulty: models.Difficulty(g.Difficulty),
			Topic:      g.Topic,
			TimeLimit:  g.TimeLimit,
		}
		switch q.Category {
		case models.CategoryTechnical, models.CategoryBehavioral, models.CategorySituational:
		default:
			q.Category = categoryFor(iv.Type)
		}
		if !q.Difficulty.Valid() {
			q.Difficulty = iv.Difficulty
		}
		if q.TimeLimit <= 0 {
			q.TimeLimit = 180
		}
		qs = append(qs, q)
		if len(qs) == n {
			break
		}
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("model returned no questions")
	}
	return qs, nil
}

const evaluationPrompt = `Evaluate this interview answer.
Question (%s, %s): %s
Answer: %s
Return JSON: {"score":0-100,"feedback":string,"strengths":[string],"improvements":[string]}`

func evaluateAnswer(ctx context.Context, p llm.Provider, q models.Question, answer string) (models.Evaluation, error) {
	raw, err := p.Generate(ctx, fmt.Sprintf(evaluationPrompt, q.Category, orNone(q.Topic), q.Text, answer))
	if err != nil {
		return models.Evaluation{}, err
	}
	var ev models.Evaluation
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &ev); err != nil {
		return models.Evaluation{}, fmt.Errorf("decode evaluation: %w", err)
	}
	ev.Score = clamp(ev.Score, 0, 100)
	if ev.Strengths == nil {
		ev.Strengths = []string{}
	}
	if ev.Improvements == nil {
		ev.Improvements = []string{}
	}
	return ev, nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not specified"
	}
	return s
}
