package assessment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/course"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("test not found")
	ErrQuestionNotFound = core.NewNotFoundError("question not found")
	ErrForbidden        = core.NewForbiddenError("you cannot manage this test")
	ErrNoQuestions      = core.NewValidationError(nil, core.FieldError{Field: "status", Error: "a test needs at least one question to be active"})
	ErrTopicMismatch    = core.NewValidationError(nil, core.FieldError{Field: "topic_id", Error: "topic not found in this course"})
	ErrLastQuestion     = core.NewValidationError(errors.New("the last question of an active test cannot be deleted"))
)

type (
	Repository interface {
		CreateTest(ctx context.Context, t Test) (Test, error)
		QueryTests(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Test, error)
		GetTest(ctx context.Context, id string) (Test, error)
		UpdateTest(ctx context.Context, t Test) (Test, error)
		DeleteTest(ctx context.Context, id string) error

		// CreateQuestions inserts all questions or none.
		CreateQuestions(ctx context.Context, questions ...Question) error
		ListQuestions(ctx context.Context, testID string) ([]Question, error)
		CountQuestions(ctx context.Context, testID string) (int, error)
		GetQuestion(ctx context.Context, id string) (Question, error)
		UpdateQuestion(ctx context.Context, q Question) (Question, error)
		DeleteQuestion(ctx context.Context, id string) error
	}

	CourseService interface {
		Get(ctx context.Context, actor *user.User, id string) (course.Course, error)
		GetForManagement(ctx context.Context, actor user.User, id string) (course.Course, error)
		CanManage(actor user.User, c course.Course) bool
		ListTopics(ctx context.Context, actor *user.User, courseID string) ([]course.Topic, error)
	}

	ServiceInterface interface {
		CreateTest(ctx context.Context, actor user.User, courseID string, nt NewTest) (Test, error)
		QueryTests(ctx context.Context, actor *user.User, courseID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Test, error)
		GetTest(ctx context.Context, actor *user.User, id string) (Test, error)
		UpdateTest(ctx context.Context, actor user.User, id string, ut UpdateTest) (Test, error)
		DeleteTest(ctx context.Context, actor user.User, id string) error

		AddQuestion(ctx context.Context, actor user.User, testID string, nq NewQuestion) (Question, error)
		ImportQuestions(ctx context.Context, testID string, nqs []NewQuestion) (int, error)
		ListQuestions(ctx context.Context, actor user.User, testID string) ([]Question, error)
		UpdateQuestion(ctx context.Context, actor user.User, id string, nq NewQuestion) (Question, error)
		DeleteQuestion(ctx context.Context, actor user.User, id string) error

		TestByID(ctx context.Context, id string) (Test, error)
		Questions(ctx context.Context, testID string) ([]Question, error)
		CanManageTest(ctx context.Context, actor user.User, t Test) (bool, error)
	}

	Service struct {
		repo    Repository
		courses CourseService
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, courses CourseService) *Service {
	return &Service{repo: repo, courses: courses}
}

func (svc *Service) checkTopic(ctx context.Context, actor user.User, courseID, topicID string) error {
	if topicID == "" {
		return nil
	}
	topics, err := svc.courses.ListTopics(ctx, &actor, courseID)
	if err != nil {
		return errors.Wrap(err, "listing topics")
	}
	for _, t := range topics {
		if t.ID == topicID {
			return nil
		}
	}
	return ErrTopicMismatch
}

func (svc *Service) CreateTest(ctx context.Context, actor user.User, courseID string, nt NewTest) (Test, error) {
	c, err := svc.courses.GetForManagement(ctx, actor, courseID)
	if err != nil {
		return Test{}, err
	}
	if err := svc.checkTopic(ctx, actor, c.ID, nt.TopicID); err != nil {
		return Test{}, err
	}

	now := time.Now().UTC()
	t := Test{
		ID:              uuid.NewString(),
		CourseID:        c.ID,
		TopicID:         nt.TopicID,
		Title:           nt.Title,
		Description:     nt.Description,
		DurationSeconds: nt.DurationSeconds,
		PassingScore:    50,
		MaxAttempts:     nt.MaxAttempts,
		AllowPause:      true,
		Status:          StatusDraft,
		CreatedBy:       actor.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if nt.PassingScore != nil {
		t.PassingScore = *nt.PassingScore
	}
	if nt.AllowPause != nil {
		t.AllowPause = *nt.AllowPause
	}
	return svc.repo.CreateTest(ctx, t)
}

func (svc *Service) QueryTests(ctx context.Context, actor *user.User, courseID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Test, error) {
	c, err := svc.courses.Get(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.CourseID = c.ID
	filter.ActiveOnly = actor == nil || !svc.courses.CanManage(*actor, c)
	return svc.repo.QueryTests(ctx, filter, ordering)
}

func (svc *Service) GetTest(ctx context.Context, actor *user.User, id string) (Test, error) {
	t, err := svc.repo.GetTest(ctx, id)
	if err != nil {
		return Test{}, err
	}
	c, err := svc.courses.Get(ctx, actor, t.CourseID)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return Test{}, ErrNotFound
		}
		return Test{}, err
	}
	if t.Status != StatusActive && (actor == nil || !svc.courses.CanManage(*actor, c)) {
		return Test{}, ErrNotFound
	}
	return t, nil
}

func (svc *Service) testForManagement(ctx context.Context, actor user.User, id string) (Test, error) {
	t, err := svc.GetTest(ctx, &actor, id)
	if err != nil {
		return Test{}, err
	}
	if ok, err := svc.CanManageTest(ctx, actor, t); err != nil {
		return Test{}, err
	} else if !ok {
		return Test{}, ErrForbidden
	}
	return t, nil
}

func (svc *Service) UpdateTest(ctx context.Context, actor user.User, id string, ut UpdateTest) (Test, error) {
	t, err := svc.testForManagement(ctx, actor, id)
	if err != nil {
		return Test{}, err
	}

	if ut.TopicID != nil {
		if err := svc.checkTopic(ctx, actor, t.CourseID, *ut.TopicID); err != nil {
			return Test{}, err
		}
		t.TopicID = *ut.TopicID
	}
	if ut.Title != nil {
		t.Title = *ut.Title
	}
	if ut.Description != nil {
		t.Description = *ut.Description
	}
	if ut.DurationSeconds != nil {
		t.DurationSeconds = *ut.DurationSeconds
	}
	if ut.PassingScore != nil {
		t.PassingScore = *ut.PassingScore
	}
	if ut.MaxAttempts != nil {
		t.MaxAttempts = *ut.MaxAttempts
	}
	if ut.AllowPause != nil {
		t.AllowPause = *ut.AllowPause
	}
	if ut.Status != "" && ut.Status != t.Status {
		if ut.Status == StatusActive {
			count, err := svc.repo.CountQuestions(ctx, t.ID)
			if err != nil {
				return Test{}, errors.Wrap(err, "counting questions")
			}
			if count == 0 {
				return Test{}, ErrNoQuestions
			}
		}
		t.Status = ut.Status
	}

	t.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTest(ctx, t)
}

func (svc *Service) DeleteTest(ctx context.Context, actor user.User, id string) error {
	t, err := svc.testForManagement(ctx, actor, id)
	if err != nil {
		return err
	}
	return svc.repo.DeleteTest(ctx, t.ID)
}

// Questions

func newQuestion(testID string, position int, nq NewQuestion, now time.Time) Question {
	return Question{
		ID:              uuid.NewString(),
		TestID:          testID,
		Position:        position,
		Kind:            nq.Kind,
		Text:            nq.Text,
		Options:         nq.Options,
		CorrectChoices:  nq.CorrectChoices,
		AcceptedAnswers: nq.AcceptedAnswers,
		Points:          nq.Points,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (svc *Service) AddQuestion(ctx context.Context, actor user.User, testID string, nq NewQuestion) (Question, error) {
	t, err := svc.testForManagement(ctx, actor, testID)
	if err != nil {
		return Question{}, err
	}

	position := 0
	if nq.Position != nil {
		position = *nq.Position
	} else if position, err = svc.repo.CountQuestions(ctx, t.ID); err != nil {
		return Question{}, errors.Wrap(err, "counting questions")
	}

	q := newQuestion(t.ID, position, nq, time.Now().UTC())
	if err := svc.repo.CreateQuestions(ctx, q); err != nil {
		return Question{}, err
	}
	return q, nil
}

// ImportQuestions appends already validated questions to the test identified by testID.
func (svc *Service) ImportQuestions(ctx context.Context, testID string, nqs []NewQuestion) (int, error) {
	t, err := svc.repo.GetTest(ctx, testID)
	if err != nil {
		return 0, err
	}
	count, err := svc.repo.CountQuestions(ctx, t.ID)
	if err != nil {
		return 0, errors.Wrap(err, "counting questions")
	}

	now := time.Now().UTC()
	questions := make([]Question, 0, len(nqs))
	for i, nq := range nqs {
		questions = append(questions, newQuestion(t.ID, count+i, nq, now))
	}
	if err := svc.repo.CreateQuestions(ctx, questions...); err != nil {
		return 0, err
	}
	return len(questions), nil
}

func (svc *Service) ListQuestions(ctx context.Context, actor user.User, testID string) ([]Question, error) {
	t, err := svc.testForManagement(ctx, actor, testID)
	if err != nil {
		return nil, err
	}
	return svc.repo.ListQuestions(ctx, t.ID)
}

func (svc *Service) questionForManagement(ctx context.Context, actor user.User, id string) (Question, Test, error) {
	q, err := svc.repo.GetQuestion(ctx, id)
	if err != nil {
		return Question{}, Test{}, err
	}
	t, err := svc.testForManagement(ctx, actor, q.TestID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Question{}, Test{}, ErrQuestionNotFound
		}
		return Question{}, Test{}, err
	}
	return q, t, nil
}

func (svc *Service) UpdateQuestion(ctx context.Context, actor user.User, id string, nq NewQuestion) (Question, error) {
	q, _, err := svc.questionForManagement(ctx, actor, id)
	if err != nil {
		return Question{}, err
	}
	updated := newQuestion(q.TestID, q.Position, nq, time.Now().UTC())
	updated.ID = q.ID
	updated.CreatedAt = q.CreatedAt
	if nq.Position != nil {
		updated.Position = *nq.Position
	}
	return svc.repo.UpdateQuestion(ctx, updated)
}

func (svc *Service) DeleteQuestion(ctx context.Context, actor user.User, id string) error {
	q, t, err := svc.questionForManagement(ctx, actor, id)
	if err != nil {
		return err
	}
	if t.Status == StatusActive {
		count, err := svc.repo.CountQuestions(ctx, t.ID)
		if err != nil {
			return errors.Wrap(err, "counting questions")
		}
		if count <= 1 {
			return ErrLastQuestion
		}
	}
	return svc.repo.DeleteQuestion(ctx, q.ID)
}

// TestByID returns the test identified by id regardless of the caller.
func (svc *Service) TestByID(ctx context.Context, id string) (Test, error) {
	return svc.repo.GetTest(ctx, id)
}

// Questions returns the questions of a test, answer keys included.
func (svc *Service) Questions(ctx context.Context, testID string) ([]Question, error) {
	return svc.repo.ListQuestions(ctx, testID)
}

// CanManageTest reports whether actor manages the course t belongs to.
func (svc *Service) CanManageTest(ctx context.Context, actor user.User, t Test) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	if _, err := svc.courses.GetForManagement(ctx, actor, t.CourseID); err != nil {
		switch errors.Cause(err) {
		case course.ErrNotFound, course.ErrForbidden:
			return false, nil
		}
		return false, err
	}
	return true, nil
}
