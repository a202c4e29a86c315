package gamification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
	"github.com/saidstrong/nuet-prep-academy-sub001/core/user"
)

// NowFunc returns the current time.
var NowFunc = time.Now // mockable

var ErrForbidden = core.NewForbiddenError("you cannot see this profile")

type (
	// Repository reads aggregates of submitted attempts. Nothing is ever written.
	Repository interface {
		// TestStats groups submitted attempts by student and test.
		// Empty studentID or courseID means no filter on it.
		TestStats(ctx context.Context, studentID, courseID string) ([]TestStat, error)
		SubmissionTimes(ctx context.Context, studentID string) ([]time.Time, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	ServiceInterface interface {
		Profile(ctx context.Context, actor user.User, userID string) (Profile, error)
		Leaderboard(ctx context.Context, courseID string, limit int) ([]LeaderboardEntry, error)
	}

	Service struct {
		repo  Repository
		users UserGetter
		rules Rules
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(conf *core.Config, repo Repository, users UserGetter) *Service {
	return &Service{
		repo:  repo,
		users: users,
		rules: Rules{XPPerPoint: conf.Gamification.XPPerPoint, PassBonus: conf.Gamification.PassBonus},
	}
}

// Profile returns the profile of the user identified by userID (actor's own when empty).
// Students can only see their own profile.
func (svc *Service) Profile(ctx context.Context, actor user.User, userID string) (Profile, error) {
	if userID == "" {
		userID = actor.ID
	}
	if userID != actor.ID && !actor.IsStaff() {
		return Profile{}, ErrForbidden
	}

	usr, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	stats, err := svc.repo.TestStats(ctx, usr.ID, "")
	if err != nil {
		return Profile{}, errors.Wrap(err, "reading test stats")
	}
	submissions, err := svc.repo.SubmissionTimes(ctx, usr.ID)
	if err != nil {
		return Profile{}, errors.Wrap(err, "reading submission times")
	}
	return svc.rules.BuildProfile(usr.ID, usr.Name, stats, submissions, NowFunc().UTC()), nil
}

func (svc *Service) Leaderboard(ctx context.Context, courseID string, limit int) ([]LeaderboardEntry, error) {
	stats, err := svc.repo.TestStats(ctx, "", courseID)
	if err != nil {
		return nil, errors.Wrap(err, "reading test stats")
	}
	return svc.rules.BuildLeaderboard(stats, limit), nil
}
