package assessment

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
)

// Statuses
const (
	StatusDraft    = "DRAFT"
	StatusActive   = "ACTIVE"
	StatusArchived = "ARCHIVED"
)

// Question kinds
const (
	KindSingleChoice   = "SINGLE_CHOICE"
	KindMultipleChoice = "MULTIPLE_CHOICE"
	KindTrueFalse      = "TRUE_FALSE"
	KindShortAnswer    = "SHORT_ANSWER"
)

var trueFalseOptions = []string{"True", "False"}

type (
	Test struct {
		ID              string    `json:"id"`
		CourseID        string    `json:"course_id"`
		TopicID         string    `json:"topic_id,omitempty"`
		Title           string    `json:"title"`
		Description     string    `json:"description"`
		DurationSeconds int       `json:"duration_seconds"`
		PassingScore    int       `json:"passing_score"` // percent
		MaxAttempts     int       `json:"max_attempts"`  // 0: unlimited
		AllowPause      bool      `json:"allow_pause"`
		Status          string    `json:"status"`
		CreatedBy       string    `json:"created_by,omitempty"`
		CreatedAt       time.Time `json:"created_at"`
		UpdatedAt       time.Time `json:"updated_at"`
	}

	Question struct {
		ID              string    `json:"id"`
		TestID          string    `json:"test_id"`
		Position        int       `json:"position"`
		Kind            string    `json:"kind"`
		Text            string    `json:"text"`
		Options         []string  `json:"options"`
		CorrectChoices  []int     `json:"correct_choices,omitempty"`
		AcceptedAnswers []string  `json:"accepted_answers,omitempty"`
		Points          int       `json:"points"`
		CreatedAt       time.Time `json:"created_at"`
		UpdatedAt       time.Time `json:"updated_at"`
	}

	// Answer is a student's answer to a question: chosen option indexes for choice questions,
	// free text for short answers.
	Answer struct {
		Choices []int  `json:"choices,omitempty"`
		Text    string `json:"text,omitempty"`
	}

	// Answers maps question IDs to answers.
	Answers map[string]Answer
)

func (t Test) Duration() time.Duration {
	return time.Duration(t.DurationSeconds) * time.Second
}

// Redacted returns a copy of q without its answer key.
func (q Question) Redacted() Question {
	q.CorrectChoices = nil
	q.AcceptedAnswers = nil
	return q
}

// RedactQuestions strips the answer key of every question.
func RedactQuestions(questions []Question) []Question {
	res := make([]Question, len(questions))
	for i, q := range questions {
		res[i] = q.Redacted()
	}
	return res
}

// Merge copies every answer of other into a (other wins).
func (a Answers) Merge(other Answers) Answers {
	if a == nil {
		a = make(Answers, len(other))
	}
	for qid, ans := range other {
		a[qid] = ans
	}
	return a
}

type NewTest struct {
	TopicID         string `json:"topic_id"`
	Title           string `json:"title" validate:"required,max=200"`
	Description     string `json:"description"`
	DurationSeconds int    `json:"duration_seconds" validate:"required,min=1"`
	PassingScore    *int   `json:"passing_score" validate:"omitempty,min=0,max=100"`
	MaxAttempts     int    `json:"max_attempts" validate:"min=0"`
	AllowPause      *bool  `json:"allow_pause"`
}

func (nt *NewTest) Validate(validate *validator.Validate) error {
	nt.TopicID = core.CleanString(nt.TopicID)
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	return validate.Struct(nt)
}

type UpdateTest struct {
	TopicID         *string `json:"topic_id"`
	Title           *string `json:"title" validate:"omitempty,notblank,max=200"`
	Description     *string `json:"description"`
	DurationSeconds *int    `json:"duration_seconds" validate:"omitempty,min=1"`
	PassingScore    *int    `json:"passing_score" validate:"omitempty,min=0,max=100"`
	MaxAttempts     *int    `json:"max_attempts" validate:"omitempty,min=0"`
	AllowPause      *bool   `json:"allow_pause"`
	Status          string  `json:"status" validate:"omitempty,oneof=DRAFT ACTIVE ARCHIVED"`
}

func (ut *UpdateTest) Validate(validate *validator.Validate) error {
	for _, s := range []*string{ut.TopicID, ut.Title, ut.Description} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	ut.Status = core.CleanString(ut.Status)
	return validate.Struct(ut)
}

// NewQuestion contains information needed to add a question to a test.
// The same shape is used to replace a question.
type NewQuestion struct {
	Kind            string   `json:"kind" validate:"required,oneof=SINGLE_CHOICE MULTIPLE_CHOICE TRUE_FALSE SHORT_ANSWER"`
	Text            string   `json:"text" validate:"required"`
	Options         []string `json:"options" validate:"dive,notblank"`
	CorrectChoices  []int    `json:"correct_choices"`
	AcceptedAnswers []string `json:"accepted_answers" validate:"dive,notblank"`
	Points          int      `json:"points" validate:"omitempty,min=1"`
	Position        *int     `json:"position" validate:"omitempty,min=0"`
}

func (nq *NewQuestion) Clean() {
	nq.Kind = strings.ToUpper(core.CleanString(nq.Kind))
	nq.Text = core.CleanString(nq.Text)
	for i := range nq.Options {
		nq.Options[i] = core.CleanString(nq.Options[i])
	}
	for i := range nq.AcceptedAnswers {
		nq.AcceptedAnswers[i] = core.CleanString(nq.AcceptedAnswers[i])
	}
	if nq.Kind == KindTrueFalse && len(nq.Options) == 0 {
		nq.Options = append([]string(nil), trueFalseOptions...)
	}
	switch nq.Kind {
	case KindMultipleChoice:
		nq.CorrectChoices = uniqueSorted(nq.CorrectChoices)
	case KindShortAnswer:
		nq.CorrectChoices = nil
	default:
		nq.AcceptedAnswers = nil
	}
	if nq.Points == 0 {
		nq.Points = 1
	}
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	nq.Clean()
	return validate.Struct(nq)
}

type QueryFilter struct {
	CourseID string `query:"-"`
	Status   string `query:"status"`
	// ActiveOnly restricts results to ACTIVE tests.
	ActiveOnly bool `query:"-"`
}
