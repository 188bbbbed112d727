package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRejectsBadExpression(t *testing.T) {
	s := New(func(context.Context) error { return nil })
	assert.Error(t, s.Start("not a cron expr"))
}

func TestStartTwiceFails(t *testing.T) {
	s := New(func(context.Context) error { return nil })
	require.NoError(t, s.Start("0 2 * * *"))
	defer s.Stop()

	assert.Error(t, s.Start("0 2 * * *"))
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(func(context.Context) error { return nil })
	require.NoError(t, s.Start("0 2 * * *"))

	s.Stop()
	s.Stop()
	assert.True(t, s.NextRun().IsZero())
}

func TestNextRunWhileRunning(t *testing.T) {
	s := New(func(context.Context) error { return nil })
	require.NoError(t, s.Start("0 2 * * *"))
	defer s.Stop()

	assert.False(t, s.NextRun().IsZero())
}

func TestTickRecordsResult(t *testing.T) {
	calls := 0
	s := New(func(context.Context) error {
		calls++
		if calls == 2 {
			return assert.AnError
		}
		return nil
	})

	s.tick()
	last, err := s.LastRun()
	assert.False(t, last.IsZero())
	assert.NoError(t, err)

	s.tick()
	_, err = s.LastRun()
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, calls)
}

func TestTickSkipsWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0

	s := New(func(context.Context) error {
		calls++
		close(started)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.tick()
	}()

	<-started
	assert.True(t, s.InFlight())

	// Overlapping tick must be dropped, not queued.
	s.tick()
	assert.Equal(t, 1, calls)

	close(release)
	wg.Wait()
	assert.False(t, s.InFlight())
}

func TestStopCancelsRunContext(t *testing.T) {
	s := New(func(context.Context) error { return nil })
	require.NoError(t, s.Start("0 2 * * *"))
	s.Stop()

	assert.Error(t, s.ctx.Err())
}
