package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/enrollment"
)

const enrollmentColumns = "id, student_id, course_id, tutor_id, status, payment_status, amount_paid, activated_at, created_at, updated_at"

type enrollmentRow struct {
	ID            string      `db:"id"`
	StudentID     string      `db:"student_id"`
	CourseID      string      `db:"course_id"`
	TutorID       null.String `db:"tutor_id"`
	Status        string      `db:"status"`
	PaymentStatus string      `db:"payment_status"`
	AmountPaid    int64       `db:"amount_paid"`
	ActivatedAt   null.Time   `db:"activated_at"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

type enrollmentRepository struct {
	exec core.DBExecutor
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sqlx.DB) *enrollmentRepository {
	return &enrollmentRepository{exec: db}
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	tt := t.Time.UTC()
	return &tt
}

func (repo enrollmentRepository) boil(e enrollment.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:            e.ID,
		StudentID:     e.StudentID,
		CourseID:      e.CourseID,
		TutorID:       null.NewString(e.TutorID, e.TutorID != ""),
		Status:        e.Status,
		PaymentStatus: e.PaymentStatus,
		AmountPaid:    e.AmountPaid,
		ActivatedAt:   nullTime(e.ActivatedAt),
		CreatedAt:     e.CreatedAt.UTC(),
		UpdatedAt:     e.UpdatedAt.UTC(),
	}
}

func (repo enrollmentRepository) unboil(row enrollmentRow) enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:            row.ID,
		StudentID:     row.StudentID,
		CourseID:      row.CourseID,
		TutorID:       row.TutorID.String,
		Status:        row.Status,
		PaymentStatus: row.PaymentStatus,
		AmountPaid:    row.AmountPaid,
		ActivatedAt:   timePtr(row.ActivatedAt),
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func (repo enrollmentRepository) Create(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	row := repo.boil(e)
	q := `INSERT INTO enrollments (` + enrollmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(q),
		row.ID, row.StudentID, row.CourseID, row.TutorID, row.Status, row.PaymentStatus, row.AmountPaid,
		row.ActivatedAt, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return repo.unboil(row), nil
}

func (repo enrollmentRepository) Query(ctx context.Context, filter *enrollment.QueryFilter, ordering []core.DBOrdering) ([]enrollment.Enrollment, error) {
	var w where

	if filter != nil {
		if filter.StudentID != "" {
			w.add("student_id = ?", filter.StudentID)
		}
		if filter.CourseID != "" {
			w.add("course_id = ?", filter.CourseID)
		}
		if filter.TutorID != "" {
			w.add("tutor_id = ?", filter.TutorID)
		}
		if filter.Status != "" {
			w.add("status = ?", filter.Status)
		}
		if filter.PaymentStatus != "" {
			w.add("payment_status = ?", filter.PaymentStatus)
		}
	}

	q := "SELECT " + enrollmentColumns + " FROM enrollments" + w.String() +
		orderBy(ordering, "created_at DESC", "status", "payment_status", "amount_paid", "activated_at", "created_at", "updated_at")

	var rows []enrollmentRow
	if err := repo.exec.SelectContext(ctx, &rows, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, repo.unboil(row))
	}
	return enrollments, nil
}

func (repo enrollmentRepository) getOne(ctx context.Context, cond string, args ...interface{}) (enrollment.Enrollment, error) {
	var row enrollmentRow
	q := "SELECT " + enrollmentColumns + " FROM enrollments WHERE " + cond
	if err := repo.exec.GetContext(ctx, &row, repo.exec.Rebind(q), args...); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "finding enrollment")
	}
	return repo.unboil(row), nil
}

func (repo enrollmentRepository) GetByID(ctx context.Context, id string) (enrollment.Enrollment, error) {
	return repo.getOne(ctx, "id = ?", id)
}

func (repo enrollmentRepository) GetByStudentAndCourse(ctx context.Context, studentID, courseID string) (enrollment.Enrollment, error) {
	return repo.getOne(ctx, "student_id = ? AND course_id = ?", studentID, courseID)
}

func (repo enrollmentRepository) Update(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	row := repo.boil(e)
	q := `UPDATE enrollments SET tutor_id = ?, status = ?, payment_status = ?, amount_paid = ?, activated_at = ?, updated_at = ?
		WHERE id = ?`
	res, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(q),
		row.TutorID, row.Status, row.PaymentStatus, row.AmountPaid, row.ActivatedAt, row.UpdatedAt, row.ID)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return repo.unboil(row), nil
}
