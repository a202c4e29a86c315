package attempt

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
)

// Statuses
const (
	StatusRunning   = "RUNNING"
	StatusPaused    = "PAUSED"
	StatusSubmitted = "SUBMITTED"
)

var (
	ErrNotRunning = core.NewConflictError("attempt is not running")
	ErrNotPaused  = core.NewConflictError("attempt is not paused")
	ErrExpired    = core.NewConflictError("attempt time has expired")
	ErrSubmitted  = core.NewConflictError("attempt has already been submitted")
)

// Attempt is one sitting of a timed test by a student.
//
// The clock only runs while the attempt is RUNNING: Elapsed holds the time spent before the
// current run started at ResumedAt, and DeadlineAt = ResumedAt + (duration - Elapsed).
// DeadlineAt is nil while paused.
type Attempt struct {
	ID               string                      `json:"id"`
	TestID           string                      `json:"test_id"`
	StudentID        string                      `json:"student_id"`
	Status           string                      `json:"status"`
	Answers          assessment.Answers          `json:"answers"`
	Graded           []assessment.QuestionResult `json:"-"`
	DurationSeconds  int                         `json:"duration_seconds"`
	StartedAt        time.Time                   `json:"started_at"`
	ResumedAt        *time.Time                  `json:"resumed_at,omitempty"`
	DeadlineAt       *time.Time                  `json:"deadline_at,omitempty"`
	PausedAt         *time.Time                  `json:"paused_at,omitempty"`
	Elapsed          time.Duration               `json:"-"`
	PauseCount       int                         `json:"pause_count"`
	SubmittedAt      *time.Time                  `json:"submitted_at,omitempty"`
	AutoSubmitted    bool                        `json:"auto_submitted"`
	Score            int                         `json:"score"`
	MaxScore         int                         `json:"max_score"`
	Percent          float64                     `json:"percent"`
	Passed           bool                        `json:"passed"`
	TimeSpentSeconds int                         `json:"time_spent_seconds"`
	Version          int                         `json:"-"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

func timePtr(t time.Time) *time.Time { return &t }

func newAttempt(id string, t assessment.Test, studentID string, now time.Time) Attempt {
	return Attempt{
		ID:              id,
		TestID:          t.ID,
		StudentID:       studentID,
		Status:          StatusRunning,
		Answers:         assessment.Answers{},
		DurationSeconds: t.DurationSeconds,
		StartedAt:       now,
		ResumedAt:       timePtr(now),
		DeadlineAt:      timePtr(now.Add(t.Duration())),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (a Attempt) Duration() time.Duration {
	return time.Duration(a.DurationSeconds) * time.Second
}

func (a Attempt) IsOpen() bool {
	return a.Status == StatusRunning || a.Status == StatusPaused
}

// Overdue reports whether a running attempt has reached its deadline at now.
func (a Attempt) Overdue(now time.Time) bool {
	return a.Status == StatusRunning && a.DeadlineAt != nil && !now.Before(*a.DeadlineAt)
}

// ElapsedAt returns the time spent on the attempt at now, capped at its duration.
func (a Attempt) ElapsedAt(now time.Time) time.Duration {
	elapsed := a.Elapsed
	if a.Status == StatusRunning && a.ResumedAt != nil && now.After(*a.ResumedAt) {
		elapsed += now.Sub(*a.ResumedAt)
	}
	if elapsed > a.Duration() {
		elapsed = a.Duration()
	}
	return elapsed
}

// Remaining returns the time left at now.
func (a Attempt) Remaining(now time.Time) time.Duration {
	if !a.IsOpen() {
		return 0
	}
	return a.Duration() - a.ElapsedAt(now)
}

func (a *Attempt) touch(now time.Time) {
	a.UpdatedAt = now
}

func (a *Attempt) pause(now time.Time) error {
	if a.Status != StatusRunning {
		return ErrNotRunning
	}
	a.Elapsed = a.ElapsedAt(now)
	a.Status = StatusPaused
	a.PausedAt = timePtr(now)
	a.ResumedAt = nil
	a.DeadlineAt = nil
	a.PauseCount++
	a.touch(now)
	return nil
}

func (a *Attempt) resume(now time.Time) error {
	if a.Status != StatusPaused {
		return ErrNotPaused
	}
	a.Status = StatusRunning
	a.ResumedAt = timePtr(now)
	a.DeadlineAt = timePtr(now.Add(a.Duration() - a.Elapsed))
	a.PausedAt = nil
	a.touch(now)
	return nil
}

// saveAnswers merges answers into the saved ones, one question at a time.
func (a *Attempt) saveAnswers(answers assessment.Answers, now time.Time) error {
	if a.Status != StatusRunning {
		return ErrNotRunning
	}
	if a.Overdue(now) {
		return ErrExpired
	}
	a.Answers = a.Answers.Merge(answers)
	a.touch(now)
	return nil
}

// submit grades the attempt and closes it.
// answers are merged if they arrive before the deadline plus grace; otherwise only saved answers count.
// An overdue attempt submitted without a caller (auto) is closed at its deadline.
func (a *Attempt) submit(questions []assessment.Question, passingScore int, answers assessment.Answers, grace time.Duration, auto bool, now time.Time) {
	if a.Status == StatusSubmitted {
		return
	}

	accept := !auto
	submittedAt := now
	if a.Status == StatusRunning && a.DeadlineAt != nil {
		accept = accept && now.Before(a.DeadlineAt.Add(grace))
		if !now.Before(*a.DeadlineAt) {
			auto = auto || !accept
			if auto {
				submittedAt = *a.DeadlineAt
			}
		}
	}
	if accept {
		a.Answers = a.Answers.Merge(answers)
	}
	if a.Answers == nil {
		a.Answers = assessment.Answers{}
	}

	a.Elapsed = a.ElapsedAt(submittedAt)
	a.TimeSpentSeconds = int(math.Round(a.Elapsed.Seconds()))

	res := assessment.Grade(questions, a.Answers, passingScore)
	a.Score = res.Score
	a.MaxScore = res.MaxScore
	a.Percent = res.Percent
	a.Passed = res.Passed
	a.Graded = res.Questions

	a.Status = StatusSubmitted
	a.AutoSubmitted = auto
	a.SubmittedAt = timePtr(submittedAt)
	a.DeadlineAt = nil
	a.touch(now)
}

// View is what a student sees of an attempt.
type View struct {
	Attempt
	RemainingSeconds int                   `json:"remaining_seconds"`
	ServerTime       time.Time             `json:"server_time"`
	Questions        []assessment.Question `json:"questions,omitempty"` // answer keys stripped
}

func newView(a Attempt, questions []assessment.Question, now time.Time) View {
	v := View{
		Attempt:          a,
		RemainingSeconds: int(math.Ceil(a.Remaining(now).Seconds())),
		ServerTime:       now,
	}
	// questions are hidden while paused and once the time is up
	if a.Status == StatusRunning && a.Remaining(now) > 0 {
		v.Questions = assessment.RedactQuestions(questions)
	}
	return v
}

// Result is the graded outcome of a submitted attempt.
type Result struct {
	AttemptID        string                      `json:"attempt_id"`
	TestID           string                      `json:"test_id"`
	TestTitle        string                      `json:"test_title"`
	Score            int                         `json:"score"`
	MaxScore         int                         `json:"max_score"`
	Percent          float64                     `json:"percent"`
	Passed           bool                        `json:"passed"`
	PassingScore     int                         `json:"passing_score"`
	AutoSubmitted    bool                        `json:"auto_submitted"`
	TimeSpentSeconds int                         `json:"time_spent_seconds"`
	SubmittedAt      time.Time                   `json:"submitted_at"`
	Questions        []assessment.QuestionResult `json:"questions"`
}

type SaveRequest struct {
	Answers assessment.Answers `json:"answers" validate:"required"`
}

func (sr *SaveRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(sr)
}

type SubmitRequest struct {
	Answers assessment.Answers `json:"answers"`
}

type QueryFilter struct {
	TestID    string `query:"test_id"`
	StudentID string `query:"student_id"`
	Status    string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.TestID = core.CleanString(qf.TestID)
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.Status = core.CleanString(qf.Status)
}
