package scheduler

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/engine"
)

type countingRunner struct {
	calls int32
	err   error
}

func (r *countingRunner) RunBatch(_ context.Context) (*engine.BatchSummary, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.err != nil {
		return nil, r.err
	}
	return &engine.BatchSummary{Matched: 1, Completed: 1}, nil
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, time.Second)
	assert.Error(t, err)

	_, err = New(&countingRunner{}, 0)
	assert.Error(t, err)
}

func TestSchedulerTicks(t *testing.T) {
	runner := &countingRunner{}
	s, err := New(runner, 20*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runner.calls) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerStopHaltsTicks(t *testing.T) {
	runner := &countingRunner{}
	s, err := New(runner, 20*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	before := atomic.LoadInt32(&runner.calls)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, before, atomic.LoadInt32(&runner.calls))

	// Stop twice is safe
	s.Stop()
}

func TestSchedulerDoubleStart(t *testing.T) {
	s, err := New(&countingRunner{}, time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}

func TestRunOnce(t *testing.T) {
	runner := &countingRunner{}
	s, err := New(runner, time.Hour)
	require.NoError(t, err)

	summary, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.calls))
}

func TestRunOnceSurfacesErrors(t *testing.T) {
	runner := &countingRunner{err: stderrors.New("nats down")}
	s, err := New(runner, time.Hour)
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.Error(t, err)
}
