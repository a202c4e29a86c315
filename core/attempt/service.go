package attempt

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
)

// NowFunc returns the current time.
var NowFunc = time.Now // mockable

const (
	maxUpdateRetries = 3
	sweepBatchSize   = 100
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("attempt not found")
	ErrStudentsOnly      = core.NewForbiddenError("only students can take tests")
	ErrNotEnrolled       = core.NewForbiddenError("an active enrollment in this course is required")
	ErrTestClosed        = core.NewConflictError("this test is not open")
	ErrMaxAttempts       = core.NewConflictError("maximum number of attempts reached")
	ErrPauseNotAllowed   = core.NewConflictError("this test cannot be paused")
	ErrNotSubmitted      = core.NewConflictError("attempt has not been submitted yet")
	ErrConcurrentUpdate  = core.NewConflictError("attempt was modified concurrently, please retry")
	ErrVersionConflict   = errors.New("attempt version conflict")
	ErrOpenAttemptExists = errors.New("an open attempt already exists")
)

type (
	Repository interface {
		// Create fails with ErrOpenAttemptExists if the student already has an open attempt on the test.
		Create(ctx context.Context, a Attempt) (Attempt, error)
		GetByID(ctx context.Context, id string) (Attempt, error)
		// GetOpen returns the RUNNING or PAUSED attempt of the student on the test.
		GetOpen(ctx context.Context, studentID, testID string) (Attempt, error)
		CountSubmitted(ctx context.Context, studentID, testID string) (int, error)
		// Update saves a if its version did not change since it was read (ErrVersionConflict otherwise)
		// and returns it with its version bumped.
		Update(ctx context.Context, a Attempt) (Attempt, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Attempt, error)
		// ListOverdue returns RUNNING attempts whose deadline is at or before `before`.
		ListOverdue(ctx context.Context, before time.Time, limit int) ([]Attempt, error)
	}

	TestSource interface {
		TestByID(ctx context.Context, id string) (assessment.Test, error)
		Questions(ctx context.Context, testID string) ([]assessment.Question, error)
		CanManageTest(ctx context.Context, actor user.User, t assessment.Test) (bool, error)
	}

	EnrollmentChecker interface {
		IsActive(ctx context.Context, studentID, courseID string) (bool, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	ServiceInterface interface {
		Start(ctx context.Context, student user.User, testID string) (View, error)
		Get(ctx context.Context, actor user.User, id string) (View, error)
		Pause(ctx context.Context, student user.User, id string) (View, error)
		Resume(ctx context.Context, student user.User, id string) (View, error)
		SaveAnswers(ctx context.Context, student user.User, id string, answers assessment.Answers) (View, error)
		Submit(ctx context.Context, student user.User, id string, answers assessment.Answers) (View, error)
		Result(ctx context.Context, actor user.User, id string) (Result, error)
		Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Attempt, error)
		SweepOverdue(ctx context.Context) (int, error)
	}

	Service struct {
		repo        Repository
		tests       TestSource
		enrollments EnrollmentChecker
		users       UserGetter
		mailSvc     core.EmailService
		logger      core.Logger
		submitGrace time.Duration
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	conf *core.Config,
	repo Repository,
	tests TestSource,
	enrollments EnrollmentChecker,
	users UserGetter,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		repo:        repo,
		tests:       tests,
		enrollments: enrollments,
		users:       users,
		mailSvc:     mailSvc,
		logger:      logger,
		submitGrace: conf.Attempt.SubmitGrace,
	}
}

func now() time.Time {
	return NowFunc().UTC()
}

func (svc *Service) loadTest(ctx context.Context, testID string) (assessment.Test, []assessment.Question, error) {
	t, err := svc.tests.TestByID(ctx, testID)
	if err != nil {
		return assessment.Test{}, nil, errors.Wrap(err, "finding test")
	}
	questions, err := svc.tests.Questions(ctx, testID)
	if err != nil {
		return assessment.Test{}, nil, errors.Wrap(err, "listing questions")
	}
	return t, questions, nil
}

// Start opens an attempt on the test, or returns the student's open attempt if there is one.
func (svc *Service) Start(ctx context.Context, student user.User, testID string) (View, error) {
	if !student.IsStudent() {
		return View{}, ErrStudentsOnly
	}
	t, err := svc.tests.TestByID(ctx, testID)
	if err != nil {
		return View{}, err
	}
	if t.Status != assessment.StatusActive {
		return View{}, ErrTestClosed
	}
	ok, err := svc.enrollments.IsActive(ctx, student.ID, t.CourseID)
	if err != nil {
		return View{}, errors.Wrap(err, "checking enrollment")
	}
	if !ok {
		return View{}, ErrNotEnrolled
	}
	questions, err := svc.tests.Questions(ctx, t.ID)
	if err != nil {
		return View{}, errors.Wrap(err, "listing questions")
	}
	if len(questions) == 0 {
		return View{}, ErrTestClosed
	}

	for i := 0; i < maxUpdateRetries; i++ {
		open, err := svc.repo.GetOpen(ctx, student.ID, t.ID)
		switch {
		case err == nil:
			if open, err = svc.settle(ctx, open, t, questions); err != nil {
				return View{}, err
			}
			if open.IsOpen() {
				return newView(open, questions, now()), nil
			}
		case errors.Cause(err) != ErrNotFound:
			return View{}, errors.Wrap(err, "finding open attempt")
		}

		if t.MaxAttempts > 0 {
			count, err := svc.repo.CountSubmitted(ctx, student.ID, t.ID)
			if err != nil {
				return View{}, errors.Wrap(err, "counting attempts")
			}
			if count >= t.MaxAttempts {
				return View{}, ErrMaxAttempts
			}
		}

		start := now()
		a, err := svc.repo.Create(ctx, newAttempt(uuid.NewString(), t, student.ID, start))
		if err == nil {
			return newView(a, questions, start), nil
		}
		if errors.Cause(err) != ErrOpenAttemptExists {
			return View{}, err
		}
		// lost a race against a concurrent start: pick the winner up
	}
	return View{}, ErrConcurrentUpdate
}

// settle auto-submits a once it is overdue by more than the submit grace, leaving room for
// in-flight submissions. It returns the up to date attempt.
func (svc *Service) settle(ctx context.Context, a Attempt, t assessment.Test, questions []assessment.Question) (Attempt, error) {
	for i := 0; i < maxUpdateRetries; i++ {
		at := now()
		if !a.Overdue(at.Add(-svc.submitGrace)) {
			return a, nil
		}
		a.submit(questions, t.PassingScore, nil, svc.submitGrace, true, at)
		saved, err := svc.repo.Update(ctx, a)
		if err == nil {
			svc.notifyResult(ctx, saved, t)
			return saved, nil
		}
		if errors.Cause(err) != ErrVersionConflict {
			return Attempt{}, errors.Wrap(err, "auto-submitting attempt")
		}
		if a, err = svc.repo.GetByID(ctx, a.ID); err != nil {
			return Attempt{}, errors.Wrap(err, "reloading attempt")
		}
	}
	return Attempt{}, ErrConcurrentUpdate
}

// get returns the attempt identified by id if actor owns it or manages its test.
func (svc *Service) get(ctx context.Context, actor user.User, id string) (Attempt, error) {
	a, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if a.StudentID == actor.ID {
		return a, nil
	}
	if actor.IsStaff() {
		t, err := svc.tests.TestByID(ctx, a.TestID)
		if err != nil {
			return Attempt{}, errors.Wrap(err, "finding test")
		}
		ok, err := svc.tests.CanManageTest(ctx, actor, t)
		if err != nil {
			return Attempt{}, errors.Wrap(err, "checking test permissions")
		}
		if ok {
			return a, nil
		}
	}
	return Attempt{}, ErrNotFound
}

func (svc *Service) getOwn(ctx context.Context, student user.User, id string) (Attempt, error) {
	a, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if a.StudentID != student.ID {
		return Attempt{}, ErrNotFound
	}
	return a, nil
}

func (svc *Service) Get(ctx context.Context, actor user.User, id string) (View, error) {
	a, err := svc.get(ctx, actor, id)
	if err != nil {
		return View{}, err
	}
	t, questions, err := svc.loadTest(ctx, a.TestID)
	if err != nil {
		return View{}, err
	}
	if a, err = svc.settle(ctx, a, t, questions); err != nil {
		return View{}, err
	}
	return newView(a, questions, now()), nil
}

// mutate applies fn to the student's attempt and saves it, retrying on version conflicts.
// Overdue attempts fail with ErrExpired once settled.
func (svc *Service) mutate(
	ctx context.Context,
	student user.User,
	id string,
	fn func(a *Attempt, t assessment.Test, at time.Time) error,
) (View, error) {
	a, err := svc.getOwn(ctx, student, id)
	if err != nil {
		return View{}, err
	}
	t, questions, err := svc.loadTest(ctx, a.TestID)
	if err != nil {
		return View{}, err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		at := now()
		if a.Overdue(at) {
			if _, err := svc.settle(ctx, a, t, questions); err != nil {
				return View{}, err
			}
			return View{}, ErrExpired
		}
		if a.Status == StatusSubmitted {
			return View{}, ErrSubmitted
		}
		if err := fn(&a, t, at); err != nil {
			return View{}, err
		}

		saved, err := svc.repo.Update(ctx, a)
		if err == nil {
			return newView(saved, questions, at), nil
		}
		if errors.Cause(err) != ErrVersionConflict {
			return View{}, errors.Wrap(err, "updating attempt")
		}
		if a, err = svc.repo.GetByID(ctx, id); err != nil {
			return View{}, errors.Wrap(err, "reloading attempt")
		}
	}
	return View{}, ErrConcurrentUpdate
}

func (svc *Service) Pause(ctx context.Context, student user.User, id string) (View, error) {
	return svc.mutate(ctx, student, id, func(a *Attempt, t assessment.Test, at time.Time) error {
		if !t.AllowPause {
			return ErrPauseNotAllowed
		}
		return a.pause(at)
	})
}

func (svc *Service) Resume(ctx context.Context, student user.User, id string) (View, error) {
	return svc.mutate(ctx, student, id, func(a *Attempt, _ assessment.Test, at time.Time) error {
		return a.resume(at)
	})
}

func (svc *Service) SaveAnswers(ctx context.Context, student user.User, id string, answers assessment.Answers) (View, error) {
	return svc.mutate(ctx, student, id, func(a *Attempt, _ assessment.Test, at time.Time) error {
		return a.saveAnswers(answers, at)
	})
}

// Submit grades and closes the attempt. Submitting an already submitted attempt returns it untouched.
func (svc *Service) Submit(ctx context.Context, student user.User, id string, answers assessment.Answers) (View, error) {
	a, err := svc.getOwn(ctx, student, id)
	if err != nil {
		return View{}, err
	}
	t, questions, err := svc.loadTest(ctx, a.TestID)
	if err != nil {
		return View{}, err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		at := now()
		if a.Status == StatusSubmitted {
			return newView(a, questions, at), nil
		}
		a.submit(questions, t.PassingScore, answers, svc.submitGrace, false, at)

		saved, err := svc.repo.Update(ctx, a)
		if err == nil {
			svc.notifyResult(ctx, saved, t)
			return newView(saved, questions, at), nil
		}
		if errors.Cause(err) != ErrVersionConflict {
			return View{}, errors.Wrap(err, "submitting attempt")
		}
		if a, err = svc.repo.GetByID(ctx, id); err != nil {
			return View{}, errors.Wrap(err, "reloading attempt")
		}
	}
	return View{}, ErrConcurrentUpdate
}

func (svc *Service) Result(ctx context.Context, actor user.User, id string) (Result, error) {
	a, err := svc.get(ctx, actor, id)
	if err != nil {
		return Result{}, err
	}
	t, questions, err := svc.loadTest(ctx, a.TestID)
	if err != nil {
		return Result{}, err
	}
	if a, err = svc.settle(ctx, a, t, questions); err != nil {
		return Result{}, err
	}
	if a.Status != StatusSubmitted {
		return Result{}, ErrNotSubmitted
	}

	graded := a.Graded
	if graded == nil {
		graded = []assessment.QuestionResult{}
	}
	return Result{
		AttemptID:        a.ID,
		TestID:           t.ID,
		TestTitle:        t.Title,
		Score:            a.Score,
		MaxScore:         a.MaxScore,
		Percent:          a.Percent,
		Passed:           a.Passed,
		PassingScore:     t.PassingScore,
		AutoSubmitted:    a.AutoSubmitted,
		TimeSpentSeconds: a.TimeSpentSeconds,
		SubmittedAt:      *a.SubmittedAt,
		Questions:        graded,
	}, nil
}

// Query lists attempts. Students only see their own; staff may list the attempts of a test they manage.
func (svc *Service) Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Attempt, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	switch {
	case actor.IsAdmin():
	case actor.IsTutor() && filter.TestID != "":
		t, err := svc.tests.TestByID(ctx, filter.TestID)
		if err != nil {
			if errors.Cause(err) == assessment.ErrNotFound {
				return []Attempt{}, nil
			}
			return nil, errors.Wrap(err, "finding test")
		}
		ok, err := svc.tests.CanManageTest(ctx, actor, t)
		if err != nil {
			return nil, errors.Wrap(err, "checking test permissions")
		}
		if !ok {
			filter.StudentID = actor.ID
		}
	default:
		filter.StudentID = actor.ID
	}
	return svc.repo.Query(ctx, filter, ordering)
}

// SweepOverdue auto-submits running attempts whose deadline has passed.
func (svc *Service) SweepOverdue(ctx context.Context) (int, error) {
	overdue, err := svc.repo.ListOverdue(ctx, now().Add(-svc.submitGrace), sweepBatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "listing overdue attempts")
	}

	var settled int
	for _, a := range overdue {
		t, questions, err := svc.loadTest(ctx, a.TestID)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("attempt.SweepOverdue(%s): %v", a.ID, err), err)
			continue
		}
		saved, err := svc.settle(ctx, a, t, questions)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("attempt.SweepOverdue(%s): %v", a.ID, err), err)
			continue
		}
		if saved.Status == StatusSubmitted && saved.AutoSubmitted {
			settled++
		}
	}
	return settled, nil
}

type resultData struct {
	Name          string
	TestTitle     string
	AutoSubmitted bool
	Score         int
	MaxScore      int
	Percent       float64
	Passed        bool
	AttemptID     string
}

func (svc *Service) notifyResult(ctx context.Context, a Attempt, t assessment.Test) {
	student, err := svc.users.GetByID(ctx, a.StudentID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("attempt.notifyResult: finding student: %v", err), err)
		return
	}
	if student.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      fmt.Sprintf("Your result for %s", t.Title),
		TemplateName: "attempt_result",
		TemplateData: resultData{
			Name:          student.Name,
			TestTitle:     t.Title,
			AutoSubmitted: a.AutoSubmitted,
			Score:         a.Score,
			MaxScore:      a.MaxScore,
			Percent:       a.Percent,
			Passed:        a.Passed,
			AttemptID:     a.ID,
		},
	})
}
