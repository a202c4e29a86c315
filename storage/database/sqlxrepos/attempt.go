package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/attempt"
)

const attemptColumns = "id, test_id, student_id, status, answers, graded, duration_seconds, started_at, resumed_at, " +
	"deadline_at, paused_at, elapsed_ms, pause_count, submitted_at, auto_submitted, score, max_score, percent, passed, " +
	"time_spent_seconds, version, created_at, updated_at"

type attemptRow struct {
	ID               string    `db:"id"`
	TestID           string    `db:"test_id"`
	StudentID        string    `db:"student_id"`
	Status           string    `db:"status"`
	Answers          string    `db:"answers"`
	Graded           string    `db:"graded"`
	DurationSeconds  int       `db:"duration_seconds"`
	StartedAt        time.Time `db:"started_at"`
	ResumedAt        null.Time `db:"resumed_at"`
	DeadlineAt       null.Time `db:"deadline_at"`
	PausedAt         null.Time `db:"paused_at"`
	ElapsedMS        int64     `db:"elapsed_ms"`
	PauseCount       int       `db:"pause_count"`
	SubmittedAt      null.Time `db:"submitted_at"`
	AutoSubmitted    bool      `db:"auto_submitted"`
	Score            int       `db:"score"`
	MaxScore         int       `db:"max_score"`
	Percent          float64   `db:"percent"`
	Passed           bool      `db:"passed"`
	TimeSpentSeconds int       `db:"time_spent_seconds"`
	Version          int       `db:"version"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

type attemptRepository struct {
	exec core.DBExecutor
}

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db *sqlx.DB) *attemptRepository {
	return &attemptRepository{exec: db}
}

func (repo attemptRepository) boil(a attempt.Attempt) (attemptRow, error) {
	row := attemptRow{
		ID:               a.ID,
		TestID:           a.TestID,
		StudentID:        a.StudentID,
		Status:           a.Status,
		DurationSeconds:  a.DurationSeconds,
		StartedAt:        a.StartedAt.UTC(),
		ResumedAt:        nullTime(a.ResumedAt),
		DeadlineAt:       nullTime(a.DeadlineAt),
		PausedAt:         nullTime(a.PausedAt),
		ElapsedMS:        a.Elapsed.Milliseconds(),
		PauseCount:       a.PauseCount,
		SubmittedAt:      nullTime(a.SubmittedAt),
		AutoSubmitted:    a.AutoSubmitted,
		Score:            a.Score,
		MaxScore:         a.MaxScore,
		Percent:          a.Percent,
		Passed:           a.Passed,
		TimeSpentSeconds: a.TimeSpentSeconds,
		Version:          a.Version,
		CreatedAt:        a.CreatedAt.UTC(),
		UpdatedAt:        a.UpdatedAt.UTC(),
	}
	answers := a.Answers
	if answers == nil {
		answers = assessment.Answers{}
	}
	graded := a.Graded
	if graded == nil {
		graded = []assessment.QuestionResult{}
	}
	var err error
	if row.Answers, err = toJSON(answers); err != nil {
		return row, errors.Wrap(err, "encoding attempt answers")
	}
	if row.Graded, err = toJSON(graded); err != nil {
		return row, errors.Wrap(err, "encoding attempt grading")
	}
	return row, nil
}

func (repo attemptRepository) unboil(row attemptRow) (attempt.Attempt, error) {
	a := attempt.Attempt{
		ID:               row.ID,
		TestID:           row.TestID,
		StudentID:        row.StudentID,
		Status:           row.Status,
		Answers:          assessment.Answers{},
		DurationSeconds:  row.DurationSeconds,
		StartedAt:        row.StartedAt.UTC(),
		ResumedAt:        timePtr(row.ResumedAt),
		DeadlineAt:       timePtr(row.DeadlineAt),
		PausedAt:         timePtr(row.PausedAt),
		Elapsed:          time.Duration(row.ElapsedMS) * time.Millisecond,
		PauseCount:       row.PauseCount,
		SubmittedAt:      timePtr(row.SubmittedAt),
		AutoSubmitted:    row.AutoSubmitted,
		Score:            row.Score,
		MaxScore:         row.MaxScore,
		Percent:          row.Percent,
		Passed:           row.Passed,
		TimeSpentSeconds: row.TimeSpentSeconds,
		Version:          row.Version,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
	if err := fromJSON(row.Answers, &a.Answers); err != nil {
		return a, errors.Wrap(err, "decoding attempt answers")
	}
	if err := fromJSON(row.Graded, &a.Graded); err != nil {
		return a, errors.Wrap(err, "decoding attempt grading")
	}
	return a, nil
}

func (repo attemptRepository) unboilSlice(rows []attemptRow) ([]attempt.Attempt, error) {
	attempts := make([]attempt.Attempt, 0, len(rows))
	for _, row := range rows {
		a, err := repo.unboil(row)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

func (repo attemptRepository) Create(ctx context.Context, a attempt.Attempt) (attempt.Attempt, error) {
	row, err := repo.boil(a)
	if err != nil {
		return attempt.Attempt{}, err
	}
	q := `INSERT INTO attempts (` + attemptColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = repo.exec.ExecContext(ctx, repo.exec.Rebind(q),
		row.ID, row.TestID, row.StudentID, row.Status, row.Answers, row.Graded, row.DurationSeconds, row.StartedAt,
		row.ResumedAt, row.DeadlineAt, row.PausedAt, row.ElapsedMS, row.PauseCount, row.SubmittedAt, row.AutoSubmitted,
		row.Score, row.MaxScore, row.Percent, row.Passed, row.TimeSpentSeconds, row.Version, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return attempt.Attempt{}, attempt.ErrOpenAttemptExists
		}
		return attempt.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return repo.unboil(row)
}

func (repo attemptRepository) getOne(ctx context.Context, cond string, args ...interface{}) (attempt.Attempt, error) {
	var row attemptRow
	q := "SELECT " + attemptColumns + " FROM attempts WHERE " + cond
	if err := repo.exec.GetContext(ctx, &row, repo.exec.Rebind(q), args...); err != nil {
		return attempt.Attempt{}, trapNoRowsErr(err, attempt.ErrNotFound, "finding attempt")
	}
	return repo.unboil(row)
}

func (repo attemptRepository) GetByID(ctx context.Context, id string) (attempt.Attempt, error) {
	return repo.getOne(ctx, "id = ?", id)
}

func (repo attemptRepository) GetOpen(ctx context.Context, studentID, testID string) (attempt.Attempt, error) {
	return repo.getOne(ctx, "student_id = ? AND test_id = ? AND status <> ?", studentID, testID, attempt.StatusSubmitted)
}

func (repo attemptRepository) CountSubmitted(ctx context.Context, studentID, testID string) (int, error) {
	var n int
	q := "SELECT COUNT(*) FROM attempts WHERE student_id = ? AND test_id = ? AND status = ?"
	err := repo.exec.GetContext(ctx, &n, repo.exec.Rebind(q), studentID, testID, attempt.StatusSubmitted)
	return n, errors.Wrap(err, "counting submitted attempts")
}

func (repo attemptRepository) Update(ctx context.Context, a attempt.Attempt) (attempt.Attempt, error) {
	row, err := repo.boil(a)
	if err != nil {
		return attempt.Attempt{}, err
	}
	q := `UPDATE attempts SET status = ?, answers = ?, graded = ?, resumed_at = ?, deadline_at = ?, paused_at = ?,
		elapsed_ms = ?, pause_count = ?, submitted_at = ?, auto_submitted = ?, score = ?, max_score = ?, percent = ?,
		passed = ?, time_spent_seconds = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(q),
		row.Status, row.Answers, row.Graded, row.ResumedAt, row.DeadlineAt, row.PausedAt,
		row.ElapsedMS, row.PauseCount, row.SubmittedAt, row.AutoSubmitted, row.Score, row.MaxScore, row.Percent,
		row.Passed, row.TimeSpentSeconds, row.UpdatedAt,
		row.ID, row.Version)
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "updating attempt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "updating attempt")
	}
	if n == 0 {
		if _, err := repo.GetByID(ctx, a.ID); err != nil {
			return attempt.Attempt{}, err
		}
		return attempt.Attempt{}, attempt.ErrVersionConflict
	}
	row.Version++
	return repo.unboil(row)
}

func (repo attemptRepository) Query(ctx context.Context, filter *attempt.QueryFilter, ordering []core.DBOrdering) ([]attempt.Attempt, error) {
	var w where

	if filter != nil {
		if filter.TestID != "" {
			w.add("test_id = ?", filter.TestID)
		}
		if filter.StudentID != "" {
			w.add("student_id = ?", filter.StudentID)
		}
		if filter.Status != "" {
			w.add("status = ?", filter.Status)
		}
	}

	q := "SELECT " + attemptColumns + " FROM attempts" + w.String() +
		orderBy(ordering, "started_at DESC", "status", "score", "percent", "started_at", "submitted_at", "created_at")

	var rows []attemptRow
	if err := repo.exec.SelectContext(ctx, &rows, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	return repo.unboilSlice(rows)
}

func (repo attemptRepository) ListOverdue(ctx context.Context, before time.Time, limit int) ([]attempt.Attempt, error) {
	q := "SELECT " + attemptColumns + " FROM attempts WHERE status = ? AND deadline_at <= ? ORDER BY deadline_at ASC LIMIT ?"
	var rows []attemptRow
	if err := repo.exec.SelectContext(ctx, &rows, repo.exec.Rebind(q), attempt.StatusRunning, before.UTC(), limit); err != nil {
		return nil, errors.Wrap(err, "listing overdue attempts")
	}
	return repo.unboilSlice(rows)
}
