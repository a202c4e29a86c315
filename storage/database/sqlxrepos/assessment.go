package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
)

const (
	testColumns = "id, course_id, topic_id, title, description, duration_seconds, passing_score, max_attempts, " +
		"allow_pause, status, created_by, created_at, updated_at"
	questionColumns = "id, test_id, position, kind, text, options, correct_choices, accepted_answers, points, created_at, updated_at"
)

type (
	testRow struct {
		ID              string      `db:"id"`
		CourseID        string      `db:"course_id"`
		TopicID         null.String `db:"topic_id"`
		Title           string      `db:"title"`
		Description     string      `db:"description"`
		DurationSeconds int         `db:"duration_seconds"`
		PassingScore    int         `db:"passing_score"`
		MaxAttempts     int         `db:"max_attempts"`
		AllowPause      bool        `db:"allow_pause"`
		Status          string      `db:"status"`
		CreatedBy       null.String `db:"created_by"`
		CreatedAt       time.Time   `db:"created_at"`
		UpdatedAt       time.Time   `db:"updated_at"`
	}

	questionRow struct {
		ID              string    `db:"id"`
		TestID          string    `db:"test_id"`
		Position        int       `db:"position"`
		Kind            string    `db:"kind"`
		Text            string    `db:"text"`
		Options         string    `db:"options"`
		CorrectChoices  string    `db:"correct_choices"`
		AcceptedAnswers string    `db:"accepted_answers"`
		Points          int       `db:"points"`
		CreatedAt       time.Time `db:"created_at"`
		UpdatedAt       time.Time `db:"updated_at"`
	}
)

type assessmentRepository struct {
	exec core.DBExecutor
	tx   core.Transactor
}

var _ assessment.Repository = (*assessmentRepository)(nil) // interface compliance check

func NewAssessmentRepository(db *sqlx.DB) *assessmentRepository {
	return &assessmentRepository{exec: db, tx: NewTransactor(db)}
}

func (repo assessmentRepository) boilTest(t assessment.Test) testRow {
	return testRow{
		ID:              t.ID,
		CourseID:        t.CourseID,
		TopicID:         null.NewString(t.TopicID, t.TopicID != ""),
		Title:           t.Title,
		Description:     t.Description,
		DurationSeconds: t.DurationSeconds,
		PassingScore:    t.PassingScore,
		MaxAttempts:     t.MaxAttempts,
		AllowPause:      t.AllowPause,
		Status:          t.Status,
		CreatedBy:       null.NewString(t.CreatedBy, t.CreatedBy != ""),
		CreatedAt:       t.CreatedAt.UTC(),
		UpdatedAt:       t.UpdatedAt.UTC(),
	}
}

func (repo assessmentRepository) unboilTest(row testRow) assessment.Test {
	return assessment.Test{
		ID:              row.ID,
		CourseID:        row.CourseID,
		TopicID:         row.TopicID.String,
		Title:           row.Title,
		Description:     row.Description,
		DurationSeconds: row.DurationSeconds,
		PassingScore:    row.PassingScore,
		MaxAttempts:     row.MaxAttempts,
		AllowPause:      row.AllowPause,
		Status:          row.Status,
		CreatedBy:       row.CreatedBy.String,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func (repo assessmentRepository) boilQuestion(q assessment.Question) (questionRow, error) {
	row := questionRow{
		ID:        q.ID,
		TestID:    q.TestID,
		Position:  q.Position,
		Kind:      q.Kind,
		Text:      q.Text,
		Points:    q.Points,
		CreatedAt: q.CreatedAt.UTC(),
		UpdatedAt: q.UpdatedAt.UTC(),
	}
	var err error
	if row.Options, err = toJSON(nonNilStrings(q.Options)); err != nil {
		return row, errors.Wrap(err, "encoding question options")
	}
	if row.CorrectChoices, err = toJSON(nonNilInts(q.CorrectChoices)); err != nil {
		return row, errors.Wrap(err, "encoding question correct choices")
	}
	if row.AcceptedAnswers, err = toJSON(nonNilStrings(q.AcceptedAnswers)); err != nil {
		return row, errors.Wrap(err, "encoding question accepted answers")
	}
	return row, nil
}

func (repo assessmentRepository) unboilQuestion(row questionRow) (assessment.Question, error) {
	q := assessment.Question{
		ID:        row.ID,
		TestID:    row.TestID,
		Position:  row.Position,
		Kind:      row.Kind,
		Text:      row.Text,
		Points:    row.Points,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if err := fromJSON(row.Options, &q.Options); err != nil {
		return q, errors.Wrap(err, "decoding question options")
	}
	if err := fromJSON(row.CorrectChoices, &q.CorrectChoices); err != nil {
		return q, errors.Wrap(err, "decoding question correct choices")
	}
	if err := fromJSON(row.AcceptedAnswers, &q.AcceptedAnswers); err != nil {
		return q, errors.Wrap(err, "decoding question accepted answers")
	}
	return q, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

func (repo assessmentRepository) CreateTest(ctx context.Context, t assessment.Test) (assessment.Test, error) {
	row := repo.boilTest(t)
	q := `INSERT INTO tests (` + testColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(q),
		row.ID, row.CourseID, row.TopicID, row.Title, row.Description, row.DurationSeconds, row.PassingScore,
		row.MaxAttempts, row.AllowPause, row.Status, row.CreatedBy, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return assessment.Test{}, errors.Wrap(err, "inserting test")
	}
	return repo.unboilTest(row), nil
}

func (repo assessmentRepository) QueryTests(ctx context.Context, filter *assessment.QueryFilter, ordering []core.DBOrdering) ([]assessment.Test, error) {
	var w where

	if filter != nil {
		if filter.CourseID != "" {
			w.add("course_id = ?", filter.CourseID)
		}
		if filter.ActiveOnly {
			w.add("status = ?", assessment.StatusActive)
		} else if filter.Status != "" {
			w.add("status = ?", filter.Status)
		}
	}

	q := "SELECT " + testColumns + " FROM tests" + w.String() +
		orderBy(ordering, "created_at ASC", "title", "status", "duration_seconds", "created_at", "updated_at")

	var rows []testRow
	if err := repo.exec.SelectContext(ctx, &rows, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying tests")
	}
	tests := make([]assessment.Test, 0, len(rows))
	for _, row := range rows {
		tests = append(tests, repo.unboilTest(row))
	}
	return tests, nil
}

func (repo assessmentRepository) GetTest(ctx context.Context, id string) (assessment.Test, error) {
	var row testRow
	q := "SELECT " + testColumns + " FROM tests WHERE id = ?"
	if err := repo.exec.GetContext(ctx, &row, repo.exec.Rebind(q), id); err != nil {
		return assessment.Test{}, trapNoRowsErr(err, assessment.ErrNotFound, "finding test")
	}
	return repo.unboilTest(row), nil
}

func (repo assessmentRepository) UpdateTest(ctx context.Context, t assessment.Test) (assessment.Test, error) {
	row := repo.boilTest(t)
	q := `UPDATE tests SET topic_id = ?, title = ?, description = ?, duration_seconds = ?, passing_score = ?,
		max_attempts = ?, allow_pause = ?, status = ?, updated_at = ? WHERE id = ?`
	res, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(q),
		row.TopicID, row.Title, row.Description, row.DurationSeconds, row.PassingScore,
		row.MaxAttempts, row.AllowPause, row.Status, row.UpdatedAt, row.ID)
	if err != nil {
		return assessment.Test{}, errors.Wrap(err, "updating test")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assessment.Test{}, assessment.ErrNotFound
	}
	return repo.unboilTest(row), nil
}

func (repo assessmentRepository) DeleteTest(ctx context.Context, id string) error {
	res, err := repo.exec.ExecContext(ctx, repo.exec.Rebind("DELETE FROM tests WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting test")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assessment.ErrNotFound
	}
	return nil
}

func (repo assessmentRepository) CreateQuestions(ctx context.Context, questions ...assessment.Question) error {
	if len(questions) == 0 {
		return nil
	}
	rows := make([]questionRow, 0, len(questions))
	for _, q := range questions {
		row, err := repo.boilQuestion(q)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return repo.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		q := exec.Rebind(`INSERT INTO questions (` + questionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		for _, row := range rows {
			_, err := exec.ExecContext(ctx, q,
				row.ID, row.TestID, row.Position, row.Kind, row.Text, row.Options, row.CorrectChoices,
				row.AcceptedAnswers, row.Points, row.CreatedAt, row.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, "inserting question")
			}
		}
		return nil
	})
}

func (repo assessmentRepository) ListQuestions(ctx context.Context, testID string) ([]assessment.Question, error) {
	var rows []questionRow
	q := "SELECT " + questionColumns + " FROM questions WHERE test_id = ? ORDER BY position ASC, created_at ASC"
	if err := repo.exec.SelectContext(ctx, &rows, repo.exec.Rebind(q), testID); err != nil {
		return nil, errors.Wrap(err, "listing questions")
	}
	questions := make([]assessment.Question, 0, len(rows))
	for _, row := range rows {
		qn, err := repo.unboilQuestion(row)
		if err != nil {
			return nil, err
		}
		questions = append(questions, qn)
	}
	return questions, nil
}

func (repo assessmentRepository) CountQuestions(ctx context.Context, testID string) (int, error) {
	var n int
	err := repo.exec.GetContext(ctx, &n, repo.exec.Rebind("SELECT COUNT(*) FROM questions WHERE test_id = ?"), testID)
	return n, errors.Wrap(err, "counting questions")
}

func (repo assessmentRepository) GetQuestion(ctx context.Context, id string) (assessment.Question, error) {
	var row questionRow
	q := "SELECT " + questionColumns + " FROM questions WHERE id = ?"
	if err := repo.exec.GetContext(ctx, &row, repo.exec.Rebind(q), id); err != nil {
		return assessment.Question{}, trapNoRowsErr(err, assessment.ErrQuestionNotFound, "finding question")
	}
	return repo.unboilQuestion(row)
}

func (repo assessmentRepository) UpdateQuestion(ctx context.Context, qn assessment.Question) (assessment.Question, error) {
	row, err := repo.boilQuestion(qn)
	if err != nil {
		return assessment.Question{}, err
	}
	q := `UPDATE questions SET position = ?, kind = ?, text = ?, options = ?, correct_choices = ?, accepted_answers = ?,
		points = ?, updated_at = ? WHERE id = ?`
	res, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(q),
		row.Position, row.Kind, row.Text, row.Options, row.CorrectChoices, row.AcceptedAnswers,
		row.Points, row.UpdatedAt, row.ID)
	if err != nil {
		return assessment.Question{}, errors.Wrap(err, "updating question")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assessment.Question{}, assessment.ErrQuestionNotFound
	}
	return repo.unboilQuestion(row)
}

func (repo assessmentRepository) DeleteQuestion(ctx context.Context, id string) error {
	res, err := repo.exec.ExecContext(ctx, repo.exec.Rebind("DELETE FROM questions WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting question")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assessment.ErrQuestionNotFound
	}
	return nil
}
