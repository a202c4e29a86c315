package enrollment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
)

// Statuses
const (
	StatusPending   = "PENDING"
	StatusActive    = "ACTIVE"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
)

// Payment statuses
const (
	PaymentUnpaid   = "UNPAID"
	PaymentPaid     = "PAID"
	PaymentWaived   = "WAIVED"
	PaymentRefunded = "REFUNDED"
)

type Enrollment struct {
	ID            string     `json:"id"`
	StudentID     string     `json:"student_id"`
	CourseID      string     `json:"course_id"`
	TutorID       string     `json:"tutor_id,omitempty"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	AmountPaid    int64      `json:"amount_paid"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsOpen reports whether the enrollment can still be paid for or cancelled by its student.
func (e Enrollment) IsOpen() bool {
	return e.Status == StatusPending || e.Status == StatusActive
}

type Payment struct {
	Amount int64 `json:"amount" validate:"required,min=1"`
}

func (p *Payment) Validate(validate *validator.Validate) error {
	return validate.Struct(p)
}

type StatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=PENDING ACTIVE COMPLETED CANCELLED"`
}

func (su *StatusUpdate) Validate(validate *validator.Validate) error {
	su.Status = core.CleanString(su.Status)
	return validate.Struct(su)
}

type QueryFilter struct {
	StudentID     string `query:"student_id"`
	CourseID      string `query:"course_id"`
	TutorID       string `query:"tutor_id"`
	Status        string `query:"status"`
	PaymentStatus string `query:"payment_status"`
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.CourseID = core.CleanString(qf.CourseID)
	qf.TutorID = core.CleanString(qf.TutorID)
	qf.Status = core.CleanString(qf.Status)
	qf.PaymentStatus = core.CleanString(qf.PaymentStatus)
}
