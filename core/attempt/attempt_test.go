package attempt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
)

var (
	t0        = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	testQuiz  = assessment.Test{ID: "test1", DurationSeconds: 600, PassingScore: 50, AllowPause: true, Status: assessment.StatusActive}
	questions = []assessment.Question{
		{ID: "q1", Kind: assessment.KindSingleChoice, Options: []string{"a", "b"}, CorrectChoices: []int{0}, Points: 1},
		{ID: "q2", Kind: assessment.KindShortAnswer, AcceptedAnswers: []string{"go"}, Points: 1},
	}
)

func TestAttemptClock(t *testing.T) {
	a := newAttempt("a1", testQuiz, "s1", t0)
	assert.Equal(t, StatusRunning, a.Status)
	assert.Equal(t, t0.Add(10*time.Minute), *a.DeadlineAt)
	assert.Equal(t, 10*time.Minute, a.Remaining(t0))
	assert.Equal(t, 7*time.Minute, a.Remaining(t0.Add(3*time.Minute)))

	// paused for an hour: the clock does not run
	assert.NoError(t, a.pause(t0.Add(3*time.Minute)))
	assert.Equal(t, StatusPaused, a.Status)
	assert.Nil(t, a.DeadlineAt)
	assert.Equal(t, 3*time.Minute, a.Elapsed)
	assert.Equal(t, 7*time.Minute, a.Remaining(t0.Add(time.Hour)))
	assert.False(t, a.Overdue(t0.Add(2*time.Hour)))
	assert.Equal(t, ErrNotRunning, a.pause(t0.Add(time.Hour)))

	resumedAt := t0.Add(63 * time.Minute)
	assert.NoError(t, a.resume(resumedAt))
	assert.Equal(t, resumedAt.Add(7*time.Minute), *a.DeadlineAt)
	assert.Equal(t, 1, a.PauseCount)
	assert.Equal(t, ErrNotPaused, a.resume(resumedAt))

	assert.False(t, a.Overdue(resumedAt.Add(7*time.Minute-time.Second)))
	assert.True(t, a.Overdue(resumedAt.Add(7*time.Minute)))
	assert.Equal(t, 10*time.Minute, a.ElapsedAt(resumedAt.Add(time.Hour)))
	assert.Equal(t, time.Duration(0), a.Remaining(resumedAt.Add(time.Hour)))
}

func TestAttemptSaveAnswers(t *testing.T) {
	a := newAttempt("a1", testQuiz, "s1", t0)
	assert.NoError(t, a.saveAnswers(assessment.Answers{"q1": {Choices: []int{1}}}, t0.Add(time.Minute)))
	assert.NoError(t, a.saveAnswers(assessment.Answers{"q2": {Text: "Go"}}, t0.Add(2*time.Minute)))
	assert.NoError(t, a.saveAnswers(assessment.Answers{"q1": {Choices: []int{0}}}, t0.Add(3*time.Minute)))
	assert.Equal(t, assessment.Answers{"q1": {Choices: []int{0}}, "q2": {Text: "Go"}}, a.Answers)

	assert.Equal(t, ErrExpired, a.saveAnswers(assessment.Answers{"q1": {}}, t0.Add(10*time.Minute)))

	assert.NoError(t, a.pause(t0.Add(4*time.Minute)))
	assert.Equal(t, ErrNotRunning, a.saveAnswers(assessment.Answers{"q1": {}}, t0.Add(5*time.Minute)))
}

func TestAttemptSubmit(t *testing.T) {
	grace := 5 * time.Second
	saved := assessment.Answers{"q1": {Choices: []int{0}}}
	late := assessment.Answers{"q2": {Text: "go"}}

	tests := []struct {
		name        string
		pauseAt     time.Duration // 0: never paused
		submitAt    time.Duration
		auto        bool
		wantScore   int
		wantAuto    bool
		wantSpent   int
		submittedAt time.Duration
	}{
		{name: "on time", submitAt: 4 * time.Minute, wantScore: 2, wantSpent: 240, submittedAt: 4 * time.Minute},
		{name: "within grace", submitAt: 10*time.Minute + 3*time.Second, wantScore: 2, wantSpent: 600, submittedAt: 10*time.Minute + 3*time.Second},
		{name: "after grace", submitAt: 11 * time.Minute, wantScore: 1, wantAuto: true, wantSpent: 600, submittedAt: 10 * time.Minute},
		{name: "auto at expiry", submitAt: 12 * time.Minute, auto: true, wantScore: 1, wantAuto: true, wantSpent: 600, submittedAt: 10 * time.Minute},
		{name: "while paused", pauseAt: 2 * time.Minute, submitAt: time.Hour, wantScore: 2, wantSpent: 120, submittedAt: time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAttempt("a1", testQuiz, "s1", t0)
			assert.NoError(t, a.saveAnswers(saved, t0.Add(time.Minute)))
			if tt.pauseAt > 0 {
				assert.NoError(t, a.pause(t0.Add(tt.pauseAt)))
			}

			a.submit(questions, testQuiz.PassingScore, late, grace, tt.auto, t0.Add(tt.submitAt))
			assert.Equal(t, StatusSubmitted, a.Status)
			assert.Equal(t, tt.wantScore, a.Score)
			assert.Equal(t, 2, a.MaxScore)
			assert.Equal(t, tt.wantAuto, a.AutoSubmitted)
			assert.Equal(t, tt.wantSpent, a.TimeSpentSeconds)
			assert.Equal(t, t0.Add(tt.submittedAt), *a.SubmittedAt)
			assert.Nil(t, a.DeadlineAt)
			assert.Len(t, a.Graded, 2)

			// a second submission changes nothing
			before := a
			a.submit(questions, testQuiz.PassingScore, assessment.Answers{"q1": {Choices: []int{1}}}, grace, false, t0.Add(2*time.Hour))
			assert.Equal(t, before, a)
		})
	}
}

func TestNewView(t *testing.T) {
	a := newAttempt("a1", testQuiz, "s1", t0)
	v := newView(a, questions, t0.Add(90*time.Second+500*time.Millisecond))
	assert.Equal(t, 510, v.RemainingSeconds)
	if assert.Len(t, v.Questions, 2) {
		assert.Nil(t, v.Questions[0].CorrectChoices)
		assert.Nil(t, v.Questions[1].AcceptedAnswers)
	}
	assert.NotNil(t, questions[0].CorrectChoices, "questions must not be modified")

	v = newView(a, questions, t0.Add(10*time.Minute+time.Second))
	assert.Equal(t, StatusRunning, v.Status)
	assert.Equal(t, 0, v.RemainingSeconds)
	assert.Empty(t, v.Questions)

	assert.NoError(t, a.pause(t0.Add(time.Minute)))
	v = newView(a, questions, t0.Add(time.Hour))
	assert.Equal(t, 540, v.RemainingSeconds)
	assert.Empty(t, v.Questions)
}
