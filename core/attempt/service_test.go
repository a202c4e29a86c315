package attempt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
)

type memRepo struct {
	mu       sync.Mutex
	attempts map[string]Attempt
	// conflicts makes the next n updates fail with ErrVersionConflict after applying bump to the stored row.
	conflicts int
	bump      func(a *Attempt)
}

func newMemRepo() *memRepo { return &memRepo{attempts: make(map[string]Attempt)} }

// clone detaches the answers of a stored row from the caller's copy.
func clone(a Attempt) Attempt {
	a.Answers = assessment.Answers{}.Merge(a.Answers)
	return a
}

func (r *memRepo) Create(_ context.Context, a Attempt) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.attempts {
		if other.StudentID == a.StudentID && other.TestID == a.TestID && other.IsOpen() {
			return Attempt{}, ErrOpenAttemptExists
		}
	}
	r.attempts[a.ID] = clone(a)
	return a, nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return clone(a), nil
}

func (r *memRepo) GetOpen(_ context.Context, studentID, testID string) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.StudentID == studentID && a.TestID == testID && a.IsOpen() {
			return clone(a), nil
		}
	}
	return Attempt{}, ErrNotFound
}

func (r *memRepo) CountSubmitted(_ context.Context, studentID, testID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, a := range r.attempts {
		if a.StudentID == studentID && a.TestID == testID && a.Status == StatusSubmitted {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) Update(_ context.Context, a Attempt) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts > 0 {
		r.conflicts--
		stored := r.attempts[a.ID]
		r.bump(&stored)
		stored.Version++
		r.attempts[a.ID] = stored
		return Attempt{}, ErrVersionConflict
	}
	if r.attempts[a.ID].Version != a.Version {
		return Attempt{}, ErrVersionConflict
	}
	a.Version++
	r.attempts[a.ID] = clone(a)
	return a, nil
}

func (r *memRepo) Query(_ context.Context, filter *QueryFilter, _ []core.DBOrdering) ([]Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Attempt, 0)
	for _, a := range r.attempts {
		if (filter.StudentID == "" || a.StudentID == filter.StudentID) && (filter.TestID == "" || a.TestID == filter.TestID) {
			res = append(res, a)
		}
	}
	return res, nil
}

func (r *memRepo) ListOverdue(_ context.Context, before time.Time, limit int) ([]Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Attempt, 0)
	for _, a := range r.attempts {
		if a.Overdue(before) && len(res) < limit {
			res = append(res, clone(a))
		}
	}
	return res, nil
}

type fakeTests struct {
	test      assessment.Test
	questions []assessment.Question
	managers  []string
}

func (f fakeTests) TestByID(_ context.Context, id string) (assessment.Test, error) {
	if id != f.test.ID {
		return assessment.Test{}, assessment.ErrNotFound
	}
	return f.test, nil
}

func (f fakeTests) Questions(context.Context, string) ([]assessment.Question, error) {
	return f.questions, nil
}

func (f fakeTests) CanManageTest(_ context.Context, actor user.User, _ assessment.Test) (bool, error) {
	return actor.IsAdmin() || core.ContainsString(f.managers, actor.ID), nil
}

type fakeEnrollments map[string]bool

func (f fakeEnrollments) IsActive(_ context.Context, studentID, _ string) (bool, error) {
	return f[studentID], nil
}

type fakeUsers map[string]user.User

func (f fakeUsers) GetByID(_ context.Context, id string) (user.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return user.User{}, user.ErrNotFound
}

type outbox struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (o *outbox) SendMessages(msgs ...*core.EmailMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msgs...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fixture struct {
	svc     *Service
	repo    *memRepo
	mail    *outbox
	clock   time.Time
	student user.User
	other   user.User
	tutor   user.User
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func setUp(t *testing.T, test assessment.Test) *fixture {
	f := &fixture{
		repo:    newMemRepo(),
		mail:    new(outbox),
		clock:   t0,
		student: user.User{ID: "s1", Name: "Aruzhan", Email: "aruzhan@nu.edu.kz", Roles: []string{user.RoleStudent}},
		other:   user.User{ID: "s2", Name: "Timur", Roles: []string{user.RoleStudent}},
		tutor:   user.User{ID: "t1", Name: "Madina", Roles: []string{user.RoleTutor}},
	}
	NowFunc = func() time.Time { return f.clock }
	t.Cleanup(func() { NowFunc = time.Now })

	conf := &core.Config{Attempt: core.AttemptConfig{SubmitGrace: 5 * time.Second}}
	tests := fakeTests{test: test, questions: questions, managers: []string{f.tutor.ID}}
	enrollments := fakeEnrollments{f.student.ID: true}
	users := fakeUsers{f.student.ID: f.student, f.other.ID: f.other, f.tutor.ID: f.tutor}
	f.svc = NewService(conf, f.repo, tests, enrollments, users, f.mail, nopLogger{})
	return f
}

func TestServiceStart(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a student", func(t *testing.T) {
		f := setUp(t, testQuiz)
		_, err := f.svc.Start(ctx, f.tutor, testQuiz.ID)
		assert.Equal(t, ErrStudentsOnly, err)
	})

	t.Run("requires an active enrollment", func(t *testing.T) {
		f := setUp(t, testQuiz)
		_, err := f.svc.Start(ctx, f.other, testQuiz.ID)
		assert.Equal(t, ErrNotEnrolled, err)
	})

	t.Run("requires an active test", func(t *testing.T) {
		draft := testQuiz
		draft.Status = assessment.StatusDraft
		f := setUp(t, draft)
		_, err := f.svc.Start(ctx, f.student, draft.ID)
		assert.Equal(t, ErrTestClosed, err)
	})

	t.Run("unknown test", func(t *testing.T) {
		f := setUp(t, testQuiz)
		_, err := f.svc.Start(ctx, f.student, "nope")
		assert.Equal(t, assessment.ErrNotFound, errors.Cause(err))
	})

	t.Run("is idempotent", func(t *testing.T) {
		f := setUp(t, testQuiz)
		v1, err := f.svc.Start(ctx, f.student, testQuiz.ID)
		assert.NoError(t, err)
		assert.Equal(t, 600, v1.RemainingSeconds)
		assert.Len(t, v1.Questions, 2)

		f.advance(time.Minute)
		v2, err := f.svc.Start(ctx, f.student, testQuiz.ID)
		assert.NoError(t, err)
		assert.Equal(t, v1.ID, v2.ID)
		assert.Equal(t, 540, v2.RemainingSeconds)
	})

	t.Run("settles an expired open attempt and starts a new one", func(t *testing.T) {
		f := setUp(t, testQuiz)
		v1, err := f.svc.Start(ctx, f.student, testQuiz.ID)
		assert.NoError(t, err)

		f.advance(time.Hour)
		v2, err := f.svc.Start(ctx, f.student, testQuiz.ID)
		assert.NoError(t, err)
		assert.NotEqual(t, v1.ID, v2.ID)

		old, _ := f.repo.GetByID(ctx, v1.ID)
		assert.Equal(t, StatusSubmitted, old.Status)
		assert.True(t, old.AutoSubmitted)
		assert.Len(t, f.mail.sent, 1)
	})

	t.Run("enforces max attempts", func(t *testing.T) {
		limited := testQuiz
		limited.MaxAttempts = 1
		f := setUp(t, limited)
		v, err := f.svc.Start(ctx, f.student, limited.ID)
		assert.NoError(t, err)
		_, err = f.svc.Submit(ctx, f.student, v.ID, nil)
		assert.NoError(t, err)

		_, err = f.svc.Start(ctx, f.student, limited.ID)
		assert.Equal(t, ErrMaxAttempts, err)
	})
}

func TestServicePauseResume(t *testing.T) {
	ctx := context.Background()

	t.Run("pause stops the clock", func(t *testing.T) {
		f := setUp(t, testQuiz)
		v, _ := f.svc.Start(ctx, f.student, testQuiz.ID)

		f.advance(2 * time.Minute)
		v, err := f.svc.Pause(ctx, f.student, v.ID)
		assert.NoError(t, err)
		assert.Equal(t, StatusPaused, v.Status)
		assert.Empty(t, v.Questions)

		f.advance(3 * time.Hour)
		_, err = f.svc.SaveAnswers(ctx, f.student, v.ID, assessment.Answers{"q1": {Choices: []int{0}}})
		assert.Equal(t, ErrNotRunning, err)

		v, err = f.svc.Resume(ctx, f.student, v.ID)
		assert.NoError(t, err)
		assert.Equal(t, StatusRunning, v.Status)
		assert.Equal(t, 480, v.RemainingSeconds)
		assert.Equal(t, f.clock.Add(8*time.Minute), *v.DeadlineAt)
	})

	t.Run("pause not allowed", func(t *testing.T) {
		strict := testQuiz
		strict.AllowPause = false
		f := setUp(t, strict)
		v, _ := f.svc.Start(ctx, f.student, strict.ID)
		_, err := f.svc.Pause(ctx, f.student, v.ID)
		assert.Equal(t, ErrPauseNotAllowed, err)
	})

	t.Run("other students cannot touch the attempt", func(t *testing.T) {
		f := setUp(t, testQuiz)
		v, _ := f.svc.Start(ctx, f.student, testQuiz.ID)
		_, err := f.svc.Pause(ctx, f.other, v.ID)
		assert.Equal(t, ErrNotFound, err)
		_, err = f.svc.Get(ctx, f.other, v.ID)
		assert.Equal(t, ErrNotFound, err)
	})

	t.Run("expired attempt stays running during the submit grace", func(t *testing.T) {
		f := setUp(t, testQuiz)
		v, _ := f.svc.Start(ctx, f.student, testQuiz.ID)

		f.advance(10*time.Minute + 2*time.Second)
		_, err := f.svc.Pause(ctx, f.student, v.ID)
		assert.Equal(t, ErrExpired, err)
		_, err = f.svc.Resume(ctx, f.student, v.ID)
		assert.Equal(t, ErrExpired, err)

		stored, err := f.repo.GetByID(ctx, v.ID)
		assert.NoError(t, err)
		assert.Equal(t, StatusRunning, stored.Status)

		got, err := f.svc.Get(ctx, f.student, v.ID)
		assert.NoError(t, err)
		assert.Equal(t, StatusRunning, got.Status)
		assert.Equal(t, 0, got.RemainingSeconds)
		assert.Empty(t, got.Questions)

		// past the grace the attempt is auto-submitted
		f.advance(time.Minute)
		got, err = f.svc.Get(ctx, f.student, v.ID)
		assert.NoError(t, err)
		assert.Equal(t, StatusSubmitted, got.Status)
		assert.True(t, got.AutoSubmitted)
	})

	t.Run("expired attempt is settled", func(t *testing.T) {
		f := setUp(t, testQuiz)
		v, _ := f.svc.Start(ctx, f.student, testQuiz.ID)
		_, err := f.svc.SaveAnswers(ctx, f.student, v.ID, assessment.Answers{"q1": {Choices: []int{0}}})
		assert.NoError(t, err)

		f.advance(11 * time.Minute)
		_, err = f.svc.Pause(ctx, f.student, v.ID)
		assert.Equal(t, ErrExpired, err)

		res, err := f.svc.Result(ctx, f.student, v.ID)
		assert.NoError(t, err)
		assert.True(t, res.AutoSubmitted)
		assert.Equal(t, 1, res.Score)
		assert.Equal(t, 600, res.TimeSpentSeconds)
		assert.Equal(t, t0.Add(10*time.Minute), res.SubmittedAt)
	})
}

func TestServiceSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("is idempotent", func(t *testing.T) {
		f := setUp(t, testQuiz)
		v, _ := f.svc.Start(ctx, f.student, testQuiz.ID)

		f.advance(time.Minute)
		v1, err := f.svc.Submit(ctx, f.student, v.ID, assessment.Answers{"q1": {Choices: []int{0}}, "q2": {Text: "GO"}})
		assert.NoError(t, err)
		assert.Equal(t, StatusSubmitted, v1.Status)
		assert.Equal(t, 2, v1.Score)
		assert.True(t, v1.Passed)
		assert.Equal(t, 60, v1.TimeSpentSeconds)

		f.advance(time.Minute)
		v2, err := f.svc.Submit(ctx, f.student, v.ID, nil)
		assert.NoError(t, err)
		assert.Equal(t, v1.Attempt, v2.Attempt)
		assert.Len(t, f.mail.sent, 1)
		assert.Equal(t, "attempt_result", f.mail.sent[0].TemplateName)
	})

	t.Run("within grace keeps the last answers", func(t *testing.T) {
		f := setUp(t, testQuiz)
		v, _ := f.svc.Start(ctx, f.student, testQuiz.ID)

		f.advance(10*time.Minute + 2*time.Second)
		_, err := f.svc.SaveAnswers(ctx, f.student, v.ID, assessment.Answers{"q1": {Choices: []int{0}}})
		assert.Equal(t, ErrExpired, err)

		v, err = f.svc.Submit(ctx, f.student, v.ID, assessment.Answers{"q1": {Choices: []int{0}}})
		assert.NoError(t, err)
		assert.False(t, v.AutoSubmitted)
		assert.Equal(t, 1, v.Score)
	})

	t.Run("lost race returns the winner", func(t *testing.T) {
		f := setUp(t, testQuiz)
		v, _ := f.svc.Start(ctx, f.student, testQuiz.ID)

		f.repo.conflicts = 1
		f.repo.bump = func(a *Attempt) {
			a.submit(questions, testQuiz.PassingScore, assessment.Answers{"q2": {Text: "go"}}, time.Second, false, f.clock)
		}
		v, err := f.svc.Submit(ctx, f.student, v.ID, assessment.Answers{"q1": {Choices: []int{0}}})
		assert.NoError(t, err)
		assert.Equal(t, StatusSubmitted, v.Status)
		assert.Equal(t, assessment.Answers{"q2": {Text: "go"}}, v.Answers)
	})

	t.Run("result before submission", func(t *testing.T) {
		f := setUp(t, testQuiz)
		v, _ := f.svc.Start(ctx, f.student, testQuiz.ID)
		_, err := f.svc.Result(ctx, f.student, v.ID)
		assert.Equal(t, ErrNotSubmitted, err)

		_, err = f.svc.Result(ctx, f.tutor, v.ID)
		assert.Equal(t, ErrNotSubmitted, err, "managing tutors can see the attempt")
	})
}

func TestServiceSweepOverdue(t *testing.T) {
	ctx := context.Background()
	f := setUp(t, testQuiz)
	v, _ := f.svc.Start(ctx, f.student, testQuiz.ID)

	f.advance(10 * time.Minute)
	n, err := f.svc.SweepOverdue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, n, "attempts are left alone during the submit grace")

	f.advance(10 * time.Second)
	n, err = f.svc.SweepOverdue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	a, _ := f.repo.GetByID(ctx, v.ID)
	assert.Equal(t, StatusSubmitted, a.Status)
	assert.True(t, a.AutoSubmitted)

	n, err = f.svc.SweepOverdue(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestServiceQuery(t *testing.T) {
	ctx := context.Background()
	f := setUp(t, testQuiz)
	_, _ = f.svc.Start(ctx, f.student, testQuiz.ID)

	own, err := f.svc.Query(ctx, f.other, &QueryFilter{TestID: testQuiz.ID}, nil)
	assert.NoError(t, err)
	assert.Empty(t, own)

	all, err := f.svc.Query(ctx, f.tutor, &QueryFilter{TestID: testQuiz.ID}, nil)
	assert.NoError(t, err)
	assert.Len(t, all, 1)
}
