// Package testutil holds helpers shared by the test suites: an in-memory database and fixtures.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/course"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
	"github.com/saidstrong/nuet-prep-academy-sub001/storage/database"
)

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// PrepareDB opens a fresh, migrated in-memory sqlite database that is closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Name = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, NopLogger{}); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		ID:        uuid.NewString(),
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.Create(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

// CreateCourse inserts a course with one topic so that it can be activated.
func CreateCourse(t *testing.T, repo course.Repository, title, tutorID, status string, price int64) (course.Course, course.Topic) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	c, err := repo.CreateCourse(ctx, course.Course{
		ID:        uuid.NewString(),
		Title:     title,
		Category:  "NUET",
		Price:     price,
		Status:    status,
		TutorID:   tutorID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateCourse(): %v", err)
	}
	tp, err := repo.CreateTopic(ctx, course.Topic{
		ID:        uuid.NewString(),
		CourseID:  c.ID,
		Title:     title + ": basics",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateCourse(): %v", err)
	}
	return c, tp
}

// CreateTest inserts a test with one single choice question per answer key entry (correct option index).
func CreateTest(
	t *testing.T,
	repo assessment.Repository,
	courseID, title, status string,
	duration time.Duration,
	maxAttempts int,
	answerKey ...int,
) (assessment.Test, []assessment.Question) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	test, err := repo.CreateTest(ctx, assessment.Test{
		ID:              uuid.NewString(),
		CourseID:        courseID,
		Title:           title,
		DurationSeconds: int(duration / time.Second),
		PassingScore:    50,
		MaxAttempts:     maxAttempts,
		AllowPause:      true,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreateTest(): %v", err)
	}

	questions := make([]assessment.Question, 0, len(answerKey))
	for i, correct := range answerKey {
		questions = append(questions, assessment.Question{
			ID:             uuid.NewString(),
			TestID:         test.ID,
			Position:       i,
			Kind:           assessment.KindSingleChoice,
			Text:           fmt.Sprintf("Question %d", i+1),
			Options:        []string{"A", "B", "C", "D"},
			CorrectChoices: []int{correct},
			Points:         1,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if err = repo.CreateQuestions(ctx, questions...); err != nil {
		t.Fatalf("CreateTest(): %v", err)
	}
	return test, questions
}

var _ core.Logger = NopLogger{}
