package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
)

// Statuses shared by courses.
const (
	StatusDraft    = "DRAFT"
	StatusActive   = "ACTIVE"
	StatusArchived = "ARCHIVED"
)

// Material kinds
const (
	KindPDF   = "PDF"
	KindVideo = "VIDEO"
	KindLink  = "LINK"
	KindText  = "TEXT"
)

type (
	Course struct {
		ID          string    `json:"id"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Category    string    `json:"category"`
		Price       int64     `json:"price"` // minor units
		Status      string    `json:"status"`
		TutorID     string    `json:"tutor_id,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	Topic struct {
		ID          string    `json:"id"`
		CourseID    string    `json:"course_id"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Position    int       `json:"position"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	Material struct {
		ID        string    `json:"id"`
		TopicID   string    `json:"topic_id"`
		Kind      string    `json:"kind"`
		Title     string    `json:"title"`
		URL       string    `json:"url,omitempty"`
		Body      string    `json:"body,omitempty"`
		Position  int       `json:"position"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}
)

func (c Course) IsFree() bool { return c.Price == 0 }

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Category    string `json:"category" validate:"max=100"`
	Price       int64  `json:"price" validate:"min=0"`
	TutorID     string `json:"tutor_id"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Category = core.CleanString(nc.Category)
	nc.TutorID = core.CleanString(nc.TutorID)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// nil fields are left untouched.
type UpdateCourse struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
	Price       *int64  `json:"price" validate:"omitempty,min=0"`
	Status      string  `json:"status" validate:"omitempty,oneof=DRAFT ACTIVE ARCHIVED"`
	TutorID     *string `json:"tutor_id"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	cleanPtr(uc.Title)
	cleanPtr(uc.Description)
	cleanPtr(uc.Category)
	cleanPtr(uc.TutorID)
	uc.Status = core.CleanString(uc.Status)
	return validate.Struct(uc)
}

type NewTopic struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Position    *int   `json:"position" validate:"omitempty,min=0"`
}

func (nt *NewTopic) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	return validate.Struct(nt)
}

type UpdateTopic struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description"`
	Position    *int    `json:"position" validate:"omitempty,min=0"`
}

func (ut *UpdateTopic) Validate(validate *validator.Validate) error {
	cleanPtr(ut.Title)
	cleanPtr(ut.Description)
	return validate.Struct(ut)
}

type NewMaterial struct {
	Kind     string `json:"kind" validate:"required,oneof=PDF VIDEO LINK TEXT"`
	Title    string `json:"title" validate:"required,max=200"`
	URL      string `json:"url" validate:"omitempty,url"`
	Body     string `json:"body"`
	Position *int   `json:"position" validate:"omitempty,min=0"`
}

func (nm *NewMaterial) Validate(validate *validator.Validate) error {
	nm.Kind = core.CleanString(nm.Kind)
	nm.Title = core.CleanString(nm.Title)
	nm.URL = core.CleanString(nm.URL)
	return validate.Struct(nm)
}

type UpdateMaterial struct {
	Title    *string `json:"title" validate:"omitempty,notblank,max=200"`
	URL      *string `json:"url" validate:"omitempty,url"`
	Body     *string `json:"body"`
	Position *int    `json:"position" validate:"omitempty,min=0"`
}

func (um *UpdateMaterial) Validate(validate *validator.Validate) error {
	cleanPtr(um.Title)
	cleanPtr(um.URL)
	return validate.Struct(um)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Category string `query:"category"`
	Status   string `query:"status"`
	TutorID  string `query:"tutor_id"`

	// VisibleTo restricts results to ACTIVE courses plus those tutored by VisibleTo.
	VisibleTo string `query:"-"`
	// ActiveOnly restricts results to ACTIVE courses.
	ActiveOnly bool `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Category = core.CleanString(qf.Category)
	qf.Status = core.CleanString(qf.Status)
	qf.TutorID = core.CleanString(qf.TutorID)
}

func cleanPtr(s *string) {
	if s != nil {
		*s = core.CleanString(*s)
	}
}
