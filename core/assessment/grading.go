package assessment

import (
	"math"
	"sort"
	"strings"
)

type (
	// QuestionResult is the outcome of grading one question.
	QuestionResult struct {
		QuestionID string `json:"question_id"`
		Answered   bool   `json:"answered"`
		Correct    bool   `json:"correct"`
		Points     int    `json:"points"`
		Awarded    int    `json:"awarded"`
	}

	Result struct {
		Score     int              `json:"score"`
		MaxScore  int              `json:"max_score"`
		Percent   float64          `json:"percent"`
		Passed    bool             `json:"passed"`
		Questions []QuestionResult `json:"questions"`
	}
)

// IsCorrect grades a single answer against the question's answer key.
func (q Question) IsCorrect(ans Answer) bool {
	switch q.Kind {
	case KindSingleChoice, KindTrueFalse:
		return len(q.CorrectChoices) == 1 && len(ans.Choices) == 1 && ans.Choices[0] == q.CorrectChoices[0]
	case KindMultipleChoice:
		return sameIntSet(ans.Choices, q.CorrectChoices)
	case KindShortAnswer:
		text := normalizeText(ans.Text)
		if text == "" {
			return false
		}
		for _, accepted := range q.AcceptedAnswers {
			if normalizeText(accepted) == text {
				return true
			}
		}
	}
	return false
}

// Grade scores answers against questions. Unanswered questions score zero.
// passingScore is a percent; percent is rounded to 2 decimals.
func Grade(questions []Question, answers Answers, passingScore int) Result {
	res := Result{Questions: make([]QuestionResult, 0, len(questions))}
	for _, q := range questions {
		qr := QuestionResult{QuestionID: q.ID, Points: q.Points}
		ans, ok := answers[q.ID]
		qr.Answered = ok && (len(ans.Choices) > 0 || strings.TrimSpace(ans.Text) != "")
		if qr.Answered && q.IsCorrect(ans) {
			qr.Correct = true
			qr.Awarded = q.Points
		}
		res.Score += qr.Awarded
		res.MaxScore += q.Points
		res.Questions = append(res.Questions, qr)
	}
	if res.MaxScore > 0 {
		res.Percent = math.Round(float64(res.Score)*10000/float64(res.MaxScore)) / 100
	}
	res.Passed = res.Percent >= float64(passingScore)
	return res
}

// normalizeText lowercases s and collapses whitespace runs to a single space.
// Inner spaces are kept, so "new york" and "newyork" differ.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func sameIntSet(a, b []int) bool {
	as, bs := uniqueSorted(a), uniqueSorted(b)
	if len(as) == 0 || len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func uniqueSorted(xs []int) []int {
	res := append([]int(nil), xs...)
	sort.Ints(res)
	j := 0
	for i, x := range res {
		if i == 0 || x != res[j-1] {
			res[j] = x
			j++
		}
	}
	return res[:j]
}
