package course

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("course not found")
	ErrTopicNotFound    = core.NewNotFoundError("topic not found")
	ErrMaterialNotFound = core.NewNotFoundError("material not found")
	ErrForbidden        = core.NewForbiddenError("you cannot manage this course")
	ErrTutorNotFound    = core.NewValidationError(nil, core.FieldError{Field: "tutor_id", Error: "tutor not found"})
	ErrNoTopics         = core.NewValidationError(nil, core.FieldError{Field: "status", Error: "a course needs at least one topic to be active"})
	ErrLastTopic        = core.NewValidationError(errors.New("the last topic of an active course cannot be deleted"))
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Course.Title or Course.Description.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		DeleteCourse(ctx context.Context, id string) error

		CreateTopic(ctx context.Context, t Topic) (Topic, error)
		ListTopics(ctx context.Context, courseID string) ([]Topic, error)
		CountTopics(ctx context.Context, courseID string) (int, error)
		GetTopic(ctx context.Context, id string) (Topic, error)
		UpdateTopic(ctx context.Context, t Topic) (Topic, error)
		DeleteTopic(ctx context.Context, id string) error

		CreateMaterial(ctx context.Context, m Material) (Material, error)
		ListMaterials(ctx context.Context, topicID string) ([]Material, error)
		CountMaterials(ctx context.Context, topicID string) (int, error)
		GetMaterial(ctx context.Context, id string) (Material, error)
		UpdateMaterial(ctx context.Context, m Material) (Material, error)
		DeleteMaterial(ctx context.Context, id string) error
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, actor user.User, nc NewCourse) (Course, error)
		Query(ctx context.Context, actor *user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		Get(ctx context.Context, actor *user.User, id string) (Course, error)
		GetForManagement(ctx context.Context, actor user.User, id string) (Course, error)
		Update(ctx context.Context, actor user.User, id string, uc UpdateCourse) (Course, error)
		Delete(ctx context.Context, actor user.User, id string) error
		CanManage(actor user.User, c Course) bool

		CreateTopic(ctx context.Context, actor user.User, courseID string, nt NewTopic) (Topic, error)
		ListTopics(ctx context.Context, actor *user.User, courseID string) ([]Topic, error)
		UpdateTopic(ctx context.Context, actor user.User, id string, ut UpdateTopic) (Topic, error)
		DeleteTopic(ctx context.Context, actor user.User, id string) error

		CreateMaterial(ctx context.Context, actor user.User, topicID string, nm NewMaterial) (Material, error)
		ListMaterials(ctx context.Context, actor *user.User, topicID string) ([]Material, error)
		GetMaterial(ctx context.Context, actor *user.User, id string) (Material, error)
		UpdateMaterial(ctx context.Context, actor user.User, id string, um UpdateMaterial) (Material, error)
		DeleteMaterial(ctx context.Context, actor user.User, id string) error
	}

	Service struct {
		repo  Repository
		users UserGetter
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, users UserGetter) *Service {
	return &Service{repo: repo, users: users}
}

// CanManage reports whether actor may edit c: admins manage every course, tutors their own.
func (svc *Service) CanManage(actor user.User, c Course) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.IsTutor() && c.TutorID != "" && c.TutorID == actor.ID
}

// canSee reports whether actor (nil for anonymous callers) may see c.
func (svc *Service) canSee(actor *user.User, c Course) bool {
	if c.Status == StatusActive {
		return true
	}
	return actor != nil && svc.CanManage(*actor, c)
}

func (svc *Service) checkTutor(ctx context.Context, tutorID string) error {
	tutor, err := svc.users.GetByID(ctx, tutorID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return ErrTutorNotFound
		}
		return errors.Wrap(err, "finding tutor")
	}
	if !tutor.IsTutor() {
		return ErrTutorNotFound
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, actor user.User, nc NewCourse) (Course, error) {
	if !actor.IsStaff() {
		return Course{}, ErrForbidden
	}

	tutorID := nc.TutorID
	if !actor.IsAdmin() {
		tutorID = actor.ID // tutors create their own courses
	} else if tutorID != "" {
		if err := svc.checkTutor(ctx, tutorID); err != nil {
			return Course{}, err
		}
	}

	now := time.Now().UTC()
	c := Course{
		ID:          uuid.NewString(),
		Title:       nc.Title,
		Description: nc.Description,
		Category:    nc.Category,
		Price:       nc.Price,
		Status:      StatusDraft,
		TutorID:     tutorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateCourse(ctx, c)
}

func (svc *Service) Query(ctx context.Context, actor *user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	switch {
	case actor != nil && actor.IsAdmin():
	case actor != nil && actor.IsTutor():
		filter.VisibleTo = actor.ID
	default:
		filter.ActiveOnly = true
	}
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

func (svc *Service) Get(ctx context.Context, actor *user.User, id string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if !svc.canSee(actor, c) {
		return Course{}, ErrNotFound
	}
	return c, nil
}

// GetForManagement returns the course identified by id if actor can manage it.
func (svc *Service) GetForManagement(ctx context.Context, actor user.User, id string) (Course, error) {
	c, err := svc.Get(ctx, &actor, id)
	if err != nil {
		return Course{}, err
	}
	if !svc.CanManage(actor, c) {
		return Course{}, ErrForbidden
	}
	return c, nil
}

func (svc *Service) Update(ctx context.Context, actor user.User, id string, uc UpdateCourse) (Course, error) {
	c, err := svc.GetForManagement(ctx, actor, id)
	if err != nil {
		return Course{}, err
	}

	if uc.Title != nil {
		c.Title = *uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.Category != nil {
		c.Category = *uc.Category
	}
	if uc.Price != nil {
		c.Price = *uc.Price
	}
	if uc.TutorID != nil && *uc.TutorID != c.TutorID {
		if !actor.IsAdmin() {
			return Course{}, ErrForbidden
		}
		if *uc.TutorID != "" {
			if err := svc.checkTutor(ctx, *uc.TutorID); err != nil {
				return Course{}, err
			}
		}
		c.TutorID = *uc.TutorID
	}
	if uc.Status != "" && uc.Status != c.Status {
		if uc.Status == StatusActive {
			count, err := svc.repo.CountTopics(ctx, c.ID)
			if err != nil {
				return Course{}, errors.Wrap(err, "counting topics")
			}
			if count == 0 {
				return Course{}, ErrNoTopics
			}
		}
		c.Status = uc.Status
	}

	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	c, err := svc.GetForManagement(ctx, actor, id)
	if err != nil {
		return err
	}
	return svc.repo.DeleteCourse(ctx, c.ID)
}

// Topics

func (svc *Service) topicForManagement(ctx context.Context, actor user.User, id string) (Topic, Course, error) {
	t, err := svc.repo.GetTopic(ctx, id)
	if err != nil {
		return Topic{}, Course{}, err
	}
	c, err := svc.GetForManagement(ctx, actor, t.CourseID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Topic{}, Course{}, ErrTopicNotFound
		}
		return Topic{}, Course{}, err
	}
	return t, c, nil
}

func (svc *Service) CreateTopic(ctx context.Context, actor user.User, courseID string, nt NewTopic) (Topic, error) {
	c, err := svc.GetForManagement(ctx, actor, courseID)
	if err != nil {
		return Topic{}, err
	}

	position := 0
	if nt.Position != nil {
		position = *nt.Position
	} else {
		if position, err = svc.repo.CountTopics(ctx, c.ID); err != nil {
			return Topic{}, errors.Wrap(err, "counting topics")
		}
	}

	now := time.Now().UTC()
	return svc.repo.CreateTopic(ctx, Topic{
		ID:          uuid.NewString(),
		CourseID:    c.ID,
		Title:       nt.Title,
		Description: nt.Description,
		Position:    position,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) ListTopics(ctx context.Context, actor *user.User, courseID string) ([]Topic, error) {
	c, err := svc.Get(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	return svc.repo.ListTopics(ctx, c.ID)
}

func (svc *Service) UpdateTopic(ctx context.Context, actor user.User, id string, ut UpdateTopic) (Topic, error) {
	t, _, err := svc.topicForManagement(ctx, actor, id)
	if err != nil {
		return Topic{}, err
	}
	if ut.Title != nil {
		t.Title = *ut.Title
	}
	if ut.Description != nil {
		t.Description = *ut.Description
	}
	if ut.Position != nil {
		t.Position = *ut.Position
	}
	t.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTopic(ctx, t)
}

func (svc *Service) DeleteTopic(ctx context.Context, actor user.User, id string) error {
	t, c, err := svc.topicForManagement(ctx, actor, id)
	if err != nil {
		return err
	}
	if c.Status == StatusActive {
		count, err := svc.repo.CountTopics(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "counting topics")
		}
		if count <= 1 {
			return ErrLastTopic
		}
	}
	return svc.repo.DeleteTopic(ctx, t.ID)
}

// Materials

func (svc *Service) materialForManagement(ctx context.Context, actor user.User, id string) (Material, error) {
	m, err := svc.repo.GetMaterial(ctx, id)
	if err != nil {
		return Material{}, err
	}
	if _, _, err := svc.topicForManagement(ctx, actor, m.TopicID); err != nil {
		if errors.Cause(err) == ErrTopicNotFound {
			return Material{}, ErrMaterialNotFound
		}
		return Material{}, err
	}
	return m, nil
}

func (svc *Service) CreateMaterial(ctx context.Context, actor user.User, topicID string, nm NewMaterial) (Material, error) {
	t, _, err := svc.topicForManagement(ctx, actor, topicID)
	if err != nil {
		return Material{}, err
	}

	position := 0
	if nm.Position != nil {
		position = *nm.Position
	} else {
		if position, err = svc.repo.CountMaterials(ctx, t.ID); err != nil {
			return Material{}, errors.Wrap(err, "counting materials")
		}
	}

	now := time.Now().UTC()
	m := Material{
		ID:        uuid.NewString(),
		TopicID:   t.ID,
		Kind:      nm.Kind,
		Title:     nm.Title,
		URL:       nm.URL,
		Body:      nm.Body,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateMaterial(ctx, m)
}

func (svc *Service) ListMaterials(ctx context.Context, actor *user.User, topicID string) ([]Material, error) {
	t, err := svc.repo.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if _, err := svc.Get(ctx, actor, t.CourseID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, ErrTopicNotFound
		}
		return nil, err
	}
	return svc.repo.ListMaterials(ctx, t.ID)
}

func (svc *Service) GetMaterial(ctx context.Context, actor *user.User, id string) (Material, error) {
	m, err := svc.repo.GetMaterial(ctx, id)
	if err != nil {
		return Material{}, err
	}
	if _, err := svc.ListMaterials(ctx, actor, m.TopicID); err != nil {
		if errors.Cause(err) == ErrTopicNotFound {
			return Material{}, ErrMaterialNotFound
		}
		return Material{}, err
	}
	return m, nil
}

func (svc *Service) UpdateMaterial(ctx context.Context, actor user.User, id string, um UpdateMaterial) (Material, error) {
	m, err := svc.materialForManagement(ctx, actor, id)
	if err != nil {
		return Material{}, err
	}
	if um.Title != nil {
		m.Title = *um.Title
	}
	if um.URL != nil {
		m.URL = *um.URL
	}
	if um.Body != nil {
		m.Body = *um.Body
	}
	if um.Position != nil {
		m.Position = *um.Position
	}
	switch {
	case m.Kind == KindText && core.CleanString(m.Body) == "":
		return Material{}, core.NewValidationError(nil, core.FieldError{Field: "body", Error: bodyRequiredText})
	case m.Kind != KindText && m.URL == "":
		return Material{}, core.NewValidationError(nil, core.FieldError{Field: "url", Error: urlRequiredText})
	}
	m.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateMaterial(ctx, m)
}

func (svc *Service) DeleteMaterial(ctx context.Context, actor user.User, id string) error {
	m, err := svc.materialForManagement(ctx, actor, id)
	if err != nil {
		return err
	}
	return svc.repo.DeleteMaterial(ctx, m.ID)
}
