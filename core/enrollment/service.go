package enrollment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/course"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("enrollment not found")
	ErrForbidden        = core.NewForbiddenError("you cannot manage this enrollment")
	ErrAlreadyEnrolled  = core.NewConflictError("already enrolled in this course")
	ErrCourseClosed     = core.NewConflictError("this course is not open for enrollment")
	ErrNotPayable       = core.NewConflictError("this enrollment does not expect a payment")
	ErrNotRefundable    = core.NewConflictError("this enrollment has no payment to refund")
	ErrStudentsOnly     = core.NewForbiddenError("only students can enroll in courses")
	ErrInsufficientPaid = core.NewValidationError(nil, core.FieldError{Field: "amount", Error: "amount does not cover the course price"})
)

type (
	Repository interface {
		// Create fails with ErrAlreadyEnrolled if the student is already enrolled in the course.
		Create(ctx context.Context, e Enrollment) (Enrollment, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Enrollment, error)
		GetByID(ctx context.Context, id string) (Enrollment, error)
		GetByStudentAndCourse(ctx context.Context, studentID, courseID string) (Enrollment, error)
		Update(ctx context.Context, e Enrollment) (Enrollment, error)
	}

	CourseGetter interface {
		GetCourse(ctx context.Context, id string) (course.Course, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	ServiceInterface interface {
		Enroll(ctx context.Context, student user.User, courseID string) (Enrollment, error)
		RecordPayment(ctx context.Context, actor user.User, id string, p Payment) (Enrollment, error)
		Refund(ctx context.Context, actor user.User, id string) (Enrollment, error)
		UpdateStatus(ctx context.Context, actor user.User, id string, status string) (Enrollment, error)
		Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Enrollment, error)
		Get(ctx context.Context, actor user.User, id string) (Enrollment, error)
		IsActive(ctx context.Context, studentID, courseID string) (bool, error)
	}

	Service struct {
		repo    Repository
		courses CourseGetter
		users   UserGetter
		mailSvc core.EmailService
		logger  core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, courses CourseGetter, users UserGetter, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{repo: repo, courses: courses, users: users, mailSvc: mailSvc, logger: logger}
}

func (svc *Service) canManage(actor user.User, e Enrollment) bool {
	return actor.IsAdmin() || (actor.IsTutor() && e.TutorID != "" && e.TutorID == actor.ID)
}

func (svc *Service) canSee(actor user.User, e Enrollment) bool {
	return e.StudentID == actor.ID || svc.canManage(actor, e)
}

func (svc *Service) activate(e *Enrollment, now time.Time) {
	e.Status = StatusActive
	if e.ActivatedAt == nil {
		e.ActivatedAt = &now
	}
}

// Enroll enrolls student in the ACTIVE course identified by courseID.
// Free courses are activated right away; paid ones wait for a payment.
func (svc *Service) Enroll(ctx context.Context, student user.User, courseID string) (Enrollment, error) {
	if !student.IsStudent() {
		return Enrollment{}, ErrStudentsOnly
	}
	c, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if c.Status != course.StatusActive {
		return Enrollment{}, ErrCourseClosed
	}

	now := time.Now().UTC()
	e := Enrollment{
		ID:            uuid.NewString(),
		StudentID:     student.ID,
		CourseID:      c.ID,
		TutorID:       c.TutorID,
		Status:        StatusPending,
		PaymentStatus: PaymentUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if c.IsFree() {
		e.PaymentStatus = PaymentWaived
		svc.activate(&e, now)
	}

	e, err = svc.repo.Create(ctx, e)
	if err != nil {
		return Enrollment{}, err
	}
	if e.Status == StatusActive {
		svc.notifyActivated(student, c, e)
	}
	return e, nil
}

// RecordPayment records a payment covering the course price and activates the enrollment.
func (svc *Service) RecordPayment(ctx context.Context, actor user.User, id string, p Payment) (Enrollment, error) {
	if !actor.IsAdmin() {
		return Enrollment{}, ErrForbidden
	}
	e, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	if e.PaymentStatus != PaymentUnpaid || !e.IsOpen() {
		return Enrollment{}, ErrNotPayable
	}
	c, err := svc.courses.GetCourse(ctx, e.CourseID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "finding course")
	}
	if e.AmountPaid+p.Amount < c.Price {
		return Enrollment{}, ErrInsufficientPaid
	}

	now := time.Now().UTC()
	e.AmountPaid += p.Amount
	e.PaymentStatus = PaymentPaid
	svc.activate(&e, now)
	e.UpdatedAt = now
	if e, err = svc.repo.Update(ctx, e); err != nil {
		return Enrollment{}, err
	}

	if student, err := svc.users.GetByID(ctx, e.StudentID); err == nil {
		svc.notifyActivated(student, c, e)
	} else {
		svc.logger.Error(fmt.Sprintf("enrollment.RecordPayment: finding student: %v", err), err)
	}
	return e, nil
}

// Refund marks a paid enrollment as refunded and cancels it.
func (svc *Service) Refund(ctx context.Context, actor user.User, id string) (Enrollment, error) {
	if !actor.IsAdmin() {
		return Enrollment{}, ErrForbidden
	}
	e, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	if e.PaymentStatus != PaymentPaid {
		return Enrollment{}, ErrNotRefundable
	}
	e.PaymentStatus = PaymentRefunded
	e.Status = StatusCancelled
	e.UpdatedAt = time.Now().UTC()
	return svc.repo.Update(ctx, e)
}

// UpdateStatus sets the enrollment status. Staff (admins and the enrollment's tutor) may set any status;
// students may only cancel their own open enrollments.
func (svc *Service) UpdateStatus(ctx context.Context, actor user.User, id string, status string) (Enrollment, error) {
	e, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Enrollment{}, err
	}
	if !svc.canManage(actor, e) {
		// students may only cancel an open enrollment
		if status != StatusCancelled || (!e.IsOpen() && e.Status != StatusCancelled) {
			return Enrollment{}, ErrForbidden
		}
	}
	if e.Status == status {
		return e, nil
	}

	now := time.Now().UTC()
	if status == StatusActive {
		svc.activate(&e, now)
	} else {
		e.Status = status
	}
	e.UpdatedAt = now
	return svc.repo.Update(ctx, e)
}

func (svc *Service) Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Enrollment, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	switch {
	case actor.IsAdmin():
	case actor.IsTutor() && filter.StudentID != actor.ID:
		filter.TutorID = actor.ID
	default:
		filter.StudentID = actor.ID
	}
	return svc.repo.Query(ctx, filter, ordering)
}

func (svc *Service) Get(ctx context.Context, actor user.User, id string) (Enrollment, error) {
	e, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	if !svc.canSee(actor, e) {
		return Enrollment{}, ErrNotFound
	}
	return e, nil
}

// IsActive reports whether the student holds an ACTIVE enrollment in the course.
func (svc *Service) IsActive(ctx context.Context, studentID, courseID string) (bool, error) {
	e, err := svc.repo.GetByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return e.Status == StatusActive, nil
}

type activatedData struct {
	Name        string
	CourseTitle string
	CourseID    string
}

func (svc *Service) notifyActivated(student user.User, c course.Course, e Enrollment) {
	if student.Email == "" {
		return
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "Your enrollment is active",
		TemplateName: "enrollment_activated",
		TemplateData: activatedData{
			Name:        student.Name,
			CourseTitle: c.Title,
			CourseID:    c.ID,
		},
	}
	svc.mailSvc.SendMessages(msg)
}
