package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/course"
)

const (
	courseColumns   = "id, title, description, category, price, status, tutor_id, created_at, updated_at"
	topicColumns    = "id, course_id, title, description, position, created_at, updated_at"
	materialColumns = "id, topic_id, kind, title, url, body, position, created_at, updated_at"
)

type (
	courseRow struct {
		ID          string      `db:"id"`
		Title       string      `db:"title"`
		Description string      `db:"description"`
		Category    string      `db:"category"`
		Price       int64       `db:"price"`
		Status      string      `db:"status"`
		TutorID     null.String `db:"tutor_id"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	topicRow struct {
		ID          string    `db:"id"`
		CourseID    string    `db:"course_id"`
		Title       string    `db:"title"`
		Description string    `db:"description"`
		Position    int       `db:"position"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	materialRow struct {
		ID        string    `db:"id"`
		TopicID   string    `db:"topic_id"`
		Kind      string    `db:"kind"`
		Title     string    `db:"title"`
		URL       string    `db:"url"`
		Body      string    `db:"body"`
		Position  int       `db:"position"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
)

type courseRepository struct {
	exec core.DBExecutor
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{exec: db}
}

func (repo courseRepository) boil(c course.Course) courseRow {
	return courseRow{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Category:    c.Category,
		Price:       c.Price,
		Status:      c.Status,
		TutorID:     null.NewString(c.TutorID, c.TutorID != ""),
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) unboil(row courseRow) course.Course {
	return course.Course{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Category:    row.Category,
		Price:       row.Price,
		Status:      row.Status,
		TutorID:     row.TutorID.String,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) exec1(ctx context.Context, notFound error, msg, q string, args ...interface{}) error {
	res, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(q), args...)
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound
	}
	return nil
}

func (repo courseRepository) count(ctx context.Context, q string, args ...interface{}) (int, error) {
	var n int
	err := repo.exec.GetContext(ctx, &n, repo.exec.Rebind(q), args...)
	return n, err
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	row := repo.boil(c)
	q := `INSERT INTO courses (` + courseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(q),
		row.ID, row.Title, row.Description, row.Category, row.Price, row.Status, row.TutorID, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return repo.unboil(row), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	var w where

	if filter != nil {
		if filter.Search != "" {
			val := likePattern(filter.Search)
			w.add(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, val, val)
		}
		if filter.Category != "" {
			w.add("LOWER(category) = ?", core.CleanString(filter.Category, true /* lower */))
		}
		if filter.Status != "" {
			w.add("status = ?", filter.Status)
		}
		if filter.TutorID != "" {
			w.add("tutor_id = ?", filter.TutorID)
		}
		if filter.ActiveOnly {
			w.add("status = ?", course.StatusActive)
		} else if filter.VisibleTo != "" {
			w.add("(status = ? OR tutor_id = ?)", course.StatusActive, filter.VisibleTo)
		}
	}

	q := "SELECT " + courseColumns + " FROM courses" + w.String() +
		orderBy(ordering, "created_at DESC", "title", "category", "price", "status", "created_at", "updated_at")

	var rows []courseRow
	if err := repo.exec.SelectContext(ctx, &rows, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, repo.unboil(row))
	}
	return courses, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var row courseRow
	q := "SELECT " + courseColumns + " FROM courses WHERE id = ?"
	if err := repo.exec.GetContext(ctx, &row, repo.exec.Rebind(q), id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "finding course")
	}
	return repo.unboil(row), nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	row := repo.boil(c)
	err := repo.exec1(ctx, course.ErrNotFound, "updating course",
		`UPDATE courses SET title = ?, description = ?, category = ?, price = ?, status = ?, tutor_id = ?, updated_at = ?
		WHERE id = ?`,
		row.Title, row.Description, row.Category, row.Price, row.Status, row.TutorID, row.UpdatedAt, row.ID)
	if err != nil {
		return course.Course{}, err
	}
	return repo.unboil(row), nil
}

func (repo courseRepository) DeleteCourse(ctx context.Context, id string) error {
	return repo.exec1(ctx, course.ErrNotFound, "deleting course", "DELETE FROM courses WHERE id = ?", id)
}

func (repo courseRepository) unboilTopic(row topicRow) course.Topic {
	return course.Topic{
		ID:          row.ID,
		CourseID:    row.CourseID,
		Title:       row.Title,
		Description: row.Description,
		Position:    row.Position,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) CreateTopic(ctx context.Context, t course.Topic) (course.Topic, error) {
	t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()
	q := `INSERT INTO topics (` + topicColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(q),
		t.ID, t.CourseID, t.Title, t.Description, t.Position, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return course.Topic{}, errors.Wrap(err, "inserting topic")
	}
	return t, nil
}

func (repo courseRepository) ListTopics(ctx context.Context, courseID string) ([]course.Topic, error) {
	var rows []topicRow
	q := "SELECT " + topicColumns + " FROM topics WHERE course_id = ? ORDER BY position ASC, created_at ASC"
	if err := repo.exec.SelectContext(ctx, &rows, repo.exec.Rebind(q), courseID); err != nil {
		return nil, errors.Wrap(err, "listing topics")
	}
	topics := make([]course.Topic, 0, len(rows))
	for _, row := range rows {
		topics = append(topics, repo.unboilTopic(row))
	}
	return topics, nil
}

func (repo courseRepository) CountTopics(ctx context.Context, courseID string) (int, error) {
	n, err := repo.count(ctx, "SELECT COUNT(*) FROM topics WHERE course_id = ?", courseID)
	return n, errors.Wrap(err, "counting topics")
}

func (repo courseRepository) GetTopic(ctx context.Context, id string) (course.Topic, error) {
	var row topicRow
	q := "SELECT " + topicColumns + " FROM topics WHERE id = ?"
	if err := repo.exec.GetContext(ctx, &row, repo.exec.Rebind(q), id); err != nil {
		return course.Topic{}, trapNoRowsErr(err, course.ErrTopicNotFound, "finding topic")
	}
	return repo.unboilTopic(row), nil
}

func (repo courseRepository) UpdateTopic(ctx context.Context, t course.Topic) (course.Topic, error) {
	t.UpdatedAt = t.UpdatedAt.UTC()
	err := repo.exec1(ctx, course.ErrTopicNotFound, "updating topic",
		"UPDATE topics SET title = ?, description = ?, position = ?, updated_at = ? WHERE id = ?",
		t.Title, t.Description, t.Position, t.UpdatedAt, t.ID)
	if err != nil {
		return course.Topic{}, err
	}
	return t, nil
}

func (repo courseRepository) DeleteTopic(ctx context.Context, id string) error {
	return repo.exec1(ctx, course.ErrTopicNotFound, "deleting topic", "DELETE FROM topics WHERE id = ?", id)
}

func (repo courseRepository) unboilMaterial(row materialRow) course.Material {
	return course.Material{
		ID:        row.ID,
		TopicID:   row.TopicID,
		Kind:      row.Kind,
		Title:     row.Title,
		URL:       row.URL,
		Body:      row.Body,
		Position:  row.Position,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) CreateMaterial(ctx context.Context, m course.Material) (course.Material, error) {
	m.CreatedAt, m.UpdatedAt = m.CreatedAt.UTC(), m.UpdatedAt.UTC()
	q := `INSERT INTO materials (` + materialColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(q),
		m.ID, m.TopicID, m.Kind, m.Title, m.URL, m.Body, m.Position, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return course.Material{}, errors.Wrap(err, "inserting material")
	}
	return m, nil
}

func (repo courseRepository) ListMaterials(ctx context.Context, topicID string) ([]course.Material, error) {
	var rows []materialRow
	q := "SELECT " + materialColumns + " FROM materials WHERE topic_id = ? ORDER BY position ASC, created_at ASC"
	if err := repo.exec.SelectContext(ctx, &rows, repo.exec.Rebind(q), topicID); err != nil {
		return nil, errors.Wrap(err, "listing materials")
	}
	materials := make([]course.Material, 0, len(rows))
	for _, row := range rows {
		materials = append(materials, repo.unboilMaterial(row))
	}
	return materials, nil
}

func (repo courseRepository) CountMaterials(ctx context.Context, topicID string) (int, error) {
	n, err := repo.count(ctx, "SELECT COUNT(*) FROM materials WHERE topic_id = ?", topicID)
	return n, errors.Wrap(err, "counting materials")
}

func (repo courseRepository) GetMaterial(ctx context.Context, id string) (course.Material, error) {
	var row materialRow
	q := "SELECT " + materialColumns + " FROM materials WHERE id = ?"
	if err := repo.exec.GetContext(ctx, &row, repo.exec.Rebind(q), id); err != nil {
		return course.Material{}, trapNoRowsErr(err, course.ErrMaterialNotFound, "finding material")
	}
	return repo.unboilMaterial(row), nil
}

func (repo courseRepository) UpdateMaterial(ctx context.Context, m course.Material) (course.Material, error) {
	m.UpdatedAt = m.UpdatedAt.UTC()
	err := repo.exec1(ctx, course.ErrMaterialNotFound, "updating material",
		"UPDATE materials SET title = ?, url = ?, body = ?, position = ?, updated_at = ? WHERE id = ?",
		m.Title, m.URL, m.Body, m.Position, m.UpdatedAt, m.ID)
	if err != nil {
		return course.Material{}, err
	}
	return m, nil
}

func (repo courseRepository) DeleteMaterial(ctx context.Context, id string) error {
	return repo.exec1(ctx, course.ErrMaterialNotFound, "deleting material", "DELETE FROM materials WHERE id = ?", id)
}
