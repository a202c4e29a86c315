// Package schedsvc runs the background jobs of the API process.
package schedsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
)

// AttemptSweeper auto-submits attempts whose time is up.
type AttemptSweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

type Scheduler struct {
	sched   *gocron.Scheduler
	sweeper AttemptSweeper
	timeout time.Duration
	logger  core.Logger
}

func NewScheduler(conf *core.Config, sweeper AttemptSweeper, logger core.Logger) (*Scheduler, error) {
	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()

	s := &Scheduler{
		sched:   sched,
		sweeper: sweeper,
		timeout: conf.Attempt.SweepInterval,
		logger:  logger,
	}
	if _, err := sched.Every(conf.Attempt.SweepInterval).Tag("attempt-sweeper").Do(s.sweep); err != nil {
		return nil, errors.Wrap(err, "scheduling attempt sweeper")
	}
	return s, nil
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.sweeper.SweepOverdue(ctx)
	if err != nil {
		s.logger.Error(fmt.Sprintf("sweeping overdue attempts: %v", err), err)
		return
	}
	if n > 0 {
		s.logger.Info(fmt.Sprintf("auto-submitted %d overdue attempt(s)", n))
	}
}

// Start runs the jobs in the background.
func (s *Scheduler) Start() {
	s.sched.StartAsync()
}

// Stop stops the scheduler; running jobs are not interrupted.
func (s *Scheduler) Stop() {
	s.sched.Stop()
}
