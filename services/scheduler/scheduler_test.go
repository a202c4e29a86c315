package schedsvc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
)

type countingSweeper struct {
	calls int32
	err   error
}

func (s *countingSweeper) SweepOverdue(context.Context) (int, error) {
	atomic.AddInt32(&s.calls, 1)
	return 1, s.err
}

type recLogger struct {
	infos, errs int32
}

func (l *recLogger) Debug(string, ...interface{}) {}
func (l *recLogger) Info(string, ...interface{})  { atomic.AddInt32(&l.infos, 1) }
func (l *recLogger) Warn(string, ...interface{})  {}
func (l *recLogger) Error(string, ...interface{}) { atomic.AddInt32(&l.errs, 1) }
func (l *recLogger) Fatal(string, ...interface{}) {}

func TestScheduler_runsSweeper(t *testing.T) {
	conf := &core.Config{Attempt: core.AttemptConfig{SweepInterval: 20 * time.Millisecond}}
	sweeper := new(countingSweeper)
	logger := new(recLogger)

	s, err := NewScheduler(conf, sweeper, logger)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&sweeper.calls) >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, atomic.LoadInt32(&logger.infos) >= 1)
}

func TestScheduler_sweepLogsErrors(t *testing.T) {
	conf := &core.Config{Attempt: core.AttemptConfig{SweepInterval: time.Minute}}
	sweeper := &countingSweeper{err: errors.New("db down")}
	logger := new(recLogger)

	s, err := NewScheduler(conf, sweeper, logger)
	require.NoError(t, err)
	s.sweep()

	assert.Equal(t, int32(1), atomic.LoadInt32(&sweeper.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&logger.errs))
	assert.Equal(t, int32(0), atomic.LoadInt32(&logger.infos))
}
