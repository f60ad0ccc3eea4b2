package services

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/careerforge/careerforge/internal/models"
)

const (
	PassThreshold      = 60.0
	maxRecommendations = 5
)

func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B"
	case score >= 60:
		return "C"
	case score >= 50:
		return "D"
	default:
		return "F"
	}
}

func HiringFor(score float64) models.HiringRecommendation {
	switch {
	case score >= 90:
		return models.HireStrongYes
	case score >= 75:
		return models.HireYes
	case score >= 60:
		return models.HireMaybe
	case score >= 40:
		return models.HireNo
	default:
		return models.HireStrongNo
	}
}

func summaryFor(score float64) string {
	switch {
	case score >= 85:
		return "Excellent performance with strong technical and communication skills."
	case score >= 70:
		return "Good performance with room for improvement in some areas."
	case score >= 55:
		return "Average performance. Additional preparation recommended."
	default:
		return "Below expectations. Focused practice in weak areas needed."
	}
}

func area(q models.Question) string {
	if q.Topic != "" {
		return q.Topic
	}
	return string(q.Category)
}

func appendUnique(dst []string, seen map[string]bool, vals ...string) []string {
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		dst = append(dst, v)
	}
	return dst
}

// Evaluate builds the overall evaluation and completion metrics from the
// evaluated questions of iv. Unanswered questions do not count.
func Evaluate(iv *models.Interview) (*models.OverallEvaluation, *models.Metrics) {
	var (
		total, tech, comm, clarity float64
		n, nTech, nComm, nClarity  int
	)
	strong, weak, recs := []string{}, []string{}, []string{}
	seenS, seenW, seenR := map[string]bool{}, map[string]bool{}, map[string]bool{}
	scores := []models.QuestionScore{}

	for _, q := range iv.Questions {
		if q.Evaluation == nil {
			continue
		}
		s := q.Evaluation.Score
		total += s
		n++

		if q.Category == models.CategoryTechnical {
			tech += s
			nTech++
		} else {
			comm += s
			nComm++
		}
		if q.Response != nil && q.Response.AudioPath != "" && q.Response.Confidence > 0 {
			clarity += q.Response.Confidence * 100
			nClarity++
		}

		if s >= 80 {
			strong = appendUnique(strong, seenS, area(q))
		}
		if s < 60 {
			weak = appendUnique(weak, seenW, area(q))
		}
		recs = appendUnique(recs, seenR, q.Evaluation.Improvements...)

		scores = append(scores, models.QuestionScore{QuestionID: q.ID, Score: s, Feedback: q.Evaluation.Feedback})
	}

	avg := 0.0
	if n > 0 {
		avg = total / float64(n)
	}
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}

	overall := &models.OverallEvaluation{
		TotalScore:           math.Round(avg),
		Grade:                Grade(avg),
		Summary:              summaryFor(avg),
		StrongAreas:          strong,
		WeakAreas:            weak,
		Recommendations:      recs,
		HiringRecommendation: HiringFor(avg),
	}

	m := &models.Metrics{QuestionScores: scores}
	if iv.Metrics != nil {
		m.NervousnessSamples = iv.Metrics.NervousnessSamples
		m.ConfidenceSamples = iv.Metrics.ConfidenceSamples
		m.EyeContactSamples = iv.Metrics.EyeContactSamples
	}
	m.OverallScore = round1(avg)
	m.TechnicalScore = round1(meanOr(tech, nTech, avg))
	m.CommunicationScore = round1(meanOr(comm, nComm, avg))
	m.SpeechClarity = round1(meanOr(clarity, nClarity, avg))
	m.ResponseRelevance = round1(avg)
	m.NervousnessLevel = round1(sampleMean(m.NervousnessSamples, 0))
	m.ConfidenceScore = round1(sampleMean(m.ConfidenceSamples, clamp(avg-m.NervousnessLevel/4, 0, 100)))
	m.EyeContactScore = round1(sampleMean(m.EyeContactSamples, avg*0.8))

	return overall, m
}

func meanOr(sum float64, n int, fallback float64) float64 {
	if n == 0 {
		return fallback
	}
	return sum / float64(n)
}

func sampleMean(ss []models.Sample, fallback float64) float64 {
	if len(ss) == 0 {
		return fallback
	}
	var sum float64
	for _, s := range ss {
		sum += s.Value
	}
	return sum / float64(len(ss))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// HeuristicEvaluation scores an answer without a model, from its length and
// its overlap with the question's topic. Used when no LLM is configured or
// the model call fails.
func HeuristicEvaluation(q models.Question, answer string) models.Evaluation {
	words := strings.Fields(answer)
	ev := models.Evaluation{Strengths: []string{}, Improvements: []string{}}

	switch n := len(words); {
	case n == 0:
		ev.Score = 0
		ev.Feedback = "No answer was captured for this question."
		ev.Improvements = append(ev.Improvements, "Answer every question, even briefly")
		return ev
	case n < 15:
		ev.Score = 45
		ev.Feedback = "The answer is very short and lacks detail."
		ev.Improvements = append(ev.Improvements, "Expand on your answer with concrete details")
	case n < 50:
		ev.Score = 65
		ev.Feedback = "A reasonable answer that could use more depth."
		ev.Strengths = append(ev.Strengths, "Concise delivery")
		ev.Improvements = append(ev.Improvements, "Could provide more specific examples")
	case n < 200:
		ev.Score = 78
		ev.Feedback = "Good response with clear explanation."
		ev.Strengths = append(ev.Strengths, "Clear communication", "Relevant examples")
		ev.Improvements = append(ev.Improvements, "Structure the answer with a short summary at the end")
	default:
		ev.Score = 72
		ev.Feedback = "Detailed answer, but it runs long."
		ev.Strengths = append(ev.Strengths, "Thorough coverage")
		ev.Improvements = append(ev.Improvements, "Keep answers focused and under the time limit")
	}

	if q.Topic != "" {
		lower := strings.ToLower(answer)
		for _, w := range strings.Fields(strings.ToLower(q.Topic)) {
			if len(w) > 2 && strings.Contains(lower, w) {
				ev.Score += 7
				ev.Strengths = append(ev.Strengths, "Addresses "+q.Topic)
				break
			}
		}
	}
	if q.Category == models.CategoryBehavioral && containsAny(strings.ToLower(answer), "situation", "task", "result", "i led", "we ") {
		ev.Score += 5
		ev.Strengths = append(ev.Strengths, "Uses a situation/result structure")
	}
	ev.Score = clamp(ev.Score, 0, 100)
	return ev
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var stopwords = map[string]bool{
	"about": true, "after": true, "again": true, "because": true, "before": true,
	"being": true, "could": true, "every": true, "first": true, "really": true,
	"should": true, "something": true, "their": true, "there": true, "these": true,
	"thing": true, "things": true, "think": true, "those": true, "through": true,
	"which": true, "while": true, "would": true, "where": true, "other": true,
}

// Keywords returns up to five of the most frequent content words in text.
func Keywords(text string) []string {
	counts := map[string]int{}
	order := []string{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	}) {
		if len(w) < 5 || stopwords[w] {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > 5 {
		order = order[:5]
	}
	return order
}

type Feedback struct {
	OverallFeedback string   `json:"overallFeedback"`
	Strengths       []string `json:"strengths"`
	Improvements    []string `json:"improvements"`
	Resources       []string `json:"resources"`
}

var resourcesByArea = map[string]string{
	"technical":     "Practice explaining core concepts aloud, e.g. with a timed whiteboard drill",
	"behavioral":    "Prepare five STAR stories covering conflict, failure, leadership, ownership and impact",
	"situational":   "Review common situational prompts and rehearse a decision framework",
	"System Design": "Work through classic system design exercises such as a URL shortener or a chat service",
}

// BuildFeedback derives the candidate-facing feedback for a completed interview.
func BuildFeedback(iv *models.Interview) Feedback {
	fb := Feedback{Strengths: []string{}, Improvements: []string{}, Resources: []string{}}
	seenS, seenI, seenR := map[string]bool{}, map[string]bool{}, map[string]bool{}

	if iv.Evaluation != nil {
		fb.OverallFeedback = iv.Evaluation.Summary
		fb.Improvements = appendUnique(fb.Improvements, seenI, iv.Evaluation.Recommendations...)
	}
	for _, q := range iv.Questions {
		if q.Evaluation == nil {
			continue
		}
		fb.Strengths = appendUnique(fb.Strengths, seenS, q.Evaluation.Strengths...)
		fb.Improvements = appendUnique(fb.Improvements, seenI, q.Evaluation.Improvements...)
		if q.Evaluation.Score < 70 {
			if r, ok := resourcesByArea[q.Topic]; ok {
				fb.Resources = appendUnique(fb.Resources, seenR, r)
			} else if r, ok := resourcesByArea[string(q.Category)]; ok {
				fb.Resources = appendUnique(fb.Resources, seenR, r)
			}
		}
	}
	if len(fb.Resources) == 0 {
		fb.Resources = append(fb.Resources, "Record yourself answering a new question each day and review the transcript")
	}
	return fb
}
