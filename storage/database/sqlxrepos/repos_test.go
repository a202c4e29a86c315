package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saidstrong/nuet-prep-academy-sub001/core/assessment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/attempt"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/course"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/enrollment"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
	"github.com/saidstrong/nuet-prep-academy-sub001/storage/database/sqlxrepos"
	"github.com/saidstrong/nuet-prep-academy-sub001/testutil"
)

func courseIDs(courses []course.Course) []string {
	ids := make([]string, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestCourseRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	repo := sqlxrepos.NewCourseRepository(db)

	tutor := testutil.CreateUser(t, usrRepo, "Timur", "timur", "", "", []string{user.RoleTutor}, true)
	other := testutil.CreateUser(t, usrRepo, "Olzhas", "olzhas", "", "", []string{user.RoleTutor}, true)
	math, mathTopic := testutil.CreateCourse(t, repo, "Math 101", tutor.ID, course.StatusActive, 0)
	phys, _ := testutil.CreateCourse(t, repo, "Physics", tutor.ID, course.StatusDraft, 5000)
	crit, _ := testutil.CreateCourse(t, repo, "Critical thinking", other.ID, course.StatusDraft, 0)

	t.Run("visibility", func(t *testing.T) {
		courses, err := repo.QueryCourses(ctx, &course.QueryFilter{ActiveOnly: true}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{math.ID}, courseIDs(courses))

		courses, err = repo.QueryCourses(ctx, &course.QueryFilter{VisibleTo: other.ID}, nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{math.ID, crit.ID}, courseIDs(courses))

		courses, err = repo.QueryCourses(ctx, &course.QueryFilter{Search: "phys", TutorID: tutor.ID}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{phys.ID}, courseIDs(courses))
	})

	t.Run("topics and materials", func(t *testing.T) {
		now := time.Now().UTC()
		second, err := repo.CreateTopic(ctx, course.Topic{ID: uuid.NewString(), CourseID: math.ID, Title: "Algebra", Position: 1, CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)

		topics, err := repo.ListTopics(ctx, math.ID)
		require.NoError(t, err)
		require.Len(t, topics, 2)
		assert.Equal(t, mathTopic.ID, topics[0].ID)
		assert.Equal(t, second.ID, topics[1].ID)

		m, err := repo.CreateMaterial(ctx, course.Material{
			ID: uuid.NewString(), TopicID: second.ID, Kind: course.KindLink, Title: "Khan", URL: "https://khanacademy.org",
			CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
		n, err := repo.CountMaterials(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		// cascade
		require.NoError(t, repo.DeleteTopic(ctx, second.ID))
		_, err = repo.GetMaterial(ctx, m.ID)
		assert.Equal(t, course.ErrMaterialNotFound, errors.Cause(err))
		assert.Equal(t, course.ErrTopicNotFound, errors.Cause(repo.DeleteTopic(ctx, second.ID)))
	})

	t.Run("tutor removal keeps the course", func(t *testing.T) {
		require.NoError(t, usrRepo.Delete(ctx, other.ID))
		got, err := repo.GetCourse(ctx, crit.ID)
		require.NoError(t, err)
		assert.Equal(t, "", got.TutorID)
	})
}

func TestEnrollmentRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	crsRepo := sqlxrepos.NewCourseRepository(db)
	repo := sqlxrepos.NewEnrollmentRepository(db)

	student := testutil.CreateUser(t, usrRepo, "Saule", "saule", "", "", []string{user.RoleStudent}, true)
	c, _ := testutil.CreateCourse(t, crsRepo, "Math", "", course.StatusActive, 1000)

	now := time.Now().UTC()
	e := enrollment.Enrollment{
		ID: uuid.NewString(), StudentID: student.ID, CourseID: c.ID,
		Status: enrollment.StatusPending, PaymentStatus: enrollment.PaymentUnpaid, CreatedAt: now, UpdatedAt: now,
	}
	e, err := repo.Create(ctx, e)
	require.NoError(t, err)

	dup := e
	dup.ID = uuid.NewString()
	_, err = repo.Create(ctx, dup)
	assert.Equal(t, enrollment.ErrAlreadyEnrolled, errors.Cause(err))

	e.Status = enrollment.StatusActive
	e.PaymentStatus = enrollment.PaymentPaid
	e.AmountPaid = 1000
	e.ActivatedAt = &now
	_, err = repo.Update(ctx, e)
	require.NoError(t, err)

	got, err := repo.GetByStudentAndCourse(ctx, student.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusActive, got.Status)
	assert.Equal(t, int64(1000), got.AmountPaid)
	require.NotNil(t, got.ActivatedAt)
	assert.True(t, now.Equal(*got.ActivatedAt))

	list, err := repo.Query(ctx, &enrollment.QueryFilter{PaymentStatus: enrollment.PaymentUnpaid}, nil)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = repo.GetByID(ctx, "missing")
	assert.Equal(t, enrollment.ErrNotFound, errors.Cause(err))
}

func TestAssessmentRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	crsRepo := sqlxrepos.NewCourseRepository(db)
	repo := sqlxrepos.NewAssessmentRepository(db)

	c, _ := testutil.CreateCourse(t, crsRepo, "Math", "", course.StatusActive, 0)
	test, questions := testutil.CreateTest(t, repo, c.ID, "Quiz", assessment.StatusActive, 10*time.Minute, 0, 1, 2)

	t.Run("questions round trip", func(t *testing.T) {
		got, err := repo.ListQuestions(ctx, test.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, questions[0].ID, got[0].ID)
		assert.Equal(t, []string{"A", "B", "C", "D"}, got[0].Options)
		assert.Equal(t, []int{1}, got[0].CorrectChoices)
		assert.Empty(t, got[0].AcceptedAnswers)
	})

	t.Run("bulk insert is atomic", func(t *testing.T) {
		now := time.Now().UTC()
		good := assessment.Question{
			ID: uuid.NewString(), TestID: test.ID, Kind: assessment.KindShortAnswer, Text: "2+2?",
			AcceptedAnswers: []string{"4", "four"}, Points: 1, CreatedAt: now, UpdatedAt: now,
		}
		bad := good
		bad.TestID = "missing-test" // foreign key violation
		bad.ID = uuid.NewString()

		assert.Error(t, repo.CreateQuestions(ctx, good, bad))
		n, err := repo.CountQuestions(ctx, test.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, repo.CreateQuestions(ctx, good))
		got, err := repo.GetQuestion(ctx, good.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"4", "four"}, got.AcceptedAnswers)
	})

	t.Run("query", func(t *testing.T) {
		_, _ = testutil.CreateTest(t, repo, c.ID, "Draft quiz", assessment.StatusDraft, time.Minute, 0)
		tests, err := repo.QueryTests(ctx, &assessment.QueryFilter{CourseID: c.ID, ActiveOnly: true}, nil)
		require.NoError(t, err)
		require.Len(t, tests, 1)
		assert.Equal(t, test.ID, tests[0].ID)

		tests, err = repo.QueryTests(ctx, &assessment.QueryFilter{CourseID: c.ID}, nil)
		require.NoError(t, err)
		assert.Len(t, tests, 2)
	})
}

func TestAttemptRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	crsRepo := sqlxrepos.NewCourseRepository(db)
	testRepo := sqlxrepos.NewAssessmentRepository(db)
	repo := sqlxrepos.NewAttemptRepository(db)
	gamRepo := sqlxrepos.NewGamificationRepository(db)

	student := testutil.CreateUser(t, usrRepo, "Saule", "saule", "", "", []string{user.RoleStudent}, true)
	c, _ := testutil.CreateCourse(t, crsRepo, "Math", "", course.StatusActive, 0)
	test, questions := testutil.CreateTest(t, testRepo, c.ID, "Quiz", assessment.StatusActive, 10*time.Minute, 0, 0)

	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	deadline := t0.Add(10 * time.Minute)
	a := attempt.Attempt{
		ID: uuid.NewString(), TestID: test.ID, StudentID: student.ID, Status: attempt.StatusRunning,
		Answers: assessment.Answers{}, DurationSeconds: 600, StartedAt: t0, ResumedAt: &t0, DeadlineAt: &deadline,
		Version: 1, CreatedAt: t0, UpdatedAt: t0,
	}
	a, err := repo.Create(ctx, a)
	require.NoError(t, err)

	t.Run("one open attempt", func(t *testing.T) {
		dup := a
		dup.ID = uuid.NewString()
		_, err := repo.Create(ctx, dup)
		assert.Equal(t, attempt.ErrOpenAttemptExists, errors.Cause(err))

		open, err := repo.GetOpen(ctx, student.ID, test.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, open.ID)
	})

	t.Run("overdue", func(t *testing.T) {
		list, err := repo.ListOverdue(ctx, deadline.Add(-time.Second), 10)
		require.NoError(t, err)
		assert.Empty(t, list)

		list, err = repo.ListOverdue(ctx, deadline, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, a.ID, list[0].ID)
	})

	t.Run("optimistic update", func(t *testing.T) {
		stale := a

		a.Answers = assessment.Answers{questions[0].ID: {Choices: []int{0}}}
		a.Elapsed = 90 * time.Second
		a, err = repo.Update(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, 2, a.Version)

		stale.Status = attempt.StatusPaused
		_, err = repo.Update(ctx, stale)
		assert.Equal(t, attempt.ErrVersionConflict, errors.Cause(err))

		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, attempt.StatusRunning, got.Status)
		assert.Equal(t, []int{0}, got.Answers[questions[0].ID].Choices)
		assert.Equal(t, 90*time.Second, got.Elapsed)
		assert.True(t, deadline.Equal(*got.DeadlineAt))
	})

	t.Run("submitted attempts feed the stats", func(t *testing.T) {
		submitted := t0.Add(5 * time.Minute)
		a.Status = attempt.StatusSubmitted
		a.SubmittedAt = &submitted
		a.DeadlineAt = nil
		a.Score, a.MaxScore, a.Percent, a.Passed = 1, 1, 100, true
		a, err = repo.Update(ctx, a)
		require.NoError(t, err)

		n, err := repo.CountSubmitted(ctx, student.ID, test.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = repo.GetOpen(ctx, student.ID, test.ID)
		assert.Equal(t, attempt.ErrNotFound, errors.Cause(err))

		// a new attempt may now be opened
		next := a
		next.ID = uuid.NewString()
		next.Status = attempt.StatusRunning
		next.SubmittedAt = nil
		next.DeadlineAt = &deadline
		next.Score, next.Percent, next.Passed = 0, 0, false
		_, err = repo.Create(ctx, next)
		require.NoError(t, err)

		stats, err := gamRepo.TestStats(ctx, student.ID, c.ID)
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, 1, stats[0].Attempts)
		assert.Equal(t, 1, stats[0].BestScore)
		assert.Equal(t, 100.0, stats[0].BestPercent)
		assert.True(t, stats[0].Passed)
		assert.Equal(t, "Saule", stats[0].StudentName)

		times, err := gamRepo.SubmissionTimes(ctx, student.ID)
		require.NoError(t, err)
		require.Len(t, times, 1)
		assert.True(t, submitted.Equal(times[0]))

		list, err := repo.Query(ctx, &attempt.QueryFilter{StudentID: student.ID, Status: attempt.StatusSubmitted}, nil)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}
