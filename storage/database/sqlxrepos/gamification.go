package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/attempt"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/gamification"
)

type testStatRow struct {
	StudentID   string  `db:"student_id"`
	StudentName string  `db:"student_name"`
	TestID      string  `db:"test_id"`
	Attempts    int     `db:"attempts"`
	BestScore   int     `db:"best_score"`
	BestPercent float64 `db:"best_percent"`
	Passed      int     `db:"passed"`
}

// gamificationRepository only reads submitted attempts.
type gamificationRepository struct {
	exec core.DBExecutor
}

var _ gamification.Repository = (*gamificationRepository)(nil) // interface compliance check

func NewGamificationRepository(db *sqlx.DB) *gamificationRepository {
	return &gamificationRepository{exec: db}
}

func (repo gamificationRepository) TestStats(ctx context.Context, studentID, courseID string) ([]gamification.TestStat, error) {
	var w where
	w.add("a.status = ?", attempt.StatusSubmitted)
	if studentID != "" {
		w.add("a.student_id = ?", studentID)
	}
	if courseID != "" {
		w.add("t.course_id = ?", courseID)
	}

	q := `SELECT a.student_id, u.name AS student_name, a.test_id, COUNT(*) AS attempts,
			MAX(a.score) AS best_score, MAX(a.percent) AS best_percent,
			MAX(CASE WHEN a.passed THEN 1 ELSE 0 END) AS passed
		FROM attempts a
		JOIN users u ON u.id = a.student_id
		JOIN tests t ON t.id = a.test_id` + w.String() + `
		GROUP BY a.student_id, u.name, a.test_id
		ORDER BY a.student_id, a.test_id`

	var rows []testStatRow
	if err := repo.exec.SelectContext(ctx, &rows, repo.exec.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "aggregating test stats")
	}
	stats := make([]gamification.TestStat, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, gamification.TestStat{
			StudentID:   row.StudentID,
			StudentName: row.StudentName,
			TestID:      row.TestID,
			Attempts:    row.Attempts,
			BestScore:   row.BestScore,
			BestPercent: row.BestPercent,
			Passed:      row.Passed > 0,
		})
	}
	return stats, nil
}

func (repo gamificationRepository) SubmissionTimes(ctx context.Context, studentID string) ([]time.Time, error) {
	var times []time.Time
	q := `SELECT submitted_at FROM attempts
		WHERE student_id = ? AND status = ? AND submitted_at IS NOT NULL
		ORDER BY submitted_at ASC`
	if err := repo.exec.SelectContext(ctx, &times, repo.exec.Rebind(q), studentID, attempt.StatusSubmitted); err != nil {
		return nil, errors.Wrap(err, "listing submission times")
	}
	for i := range times {
		times[i] = times[i].UTC()
	}
	return times, nil
}
