package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerAfterFires(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var executed atomic.Int32
	s := NewScheduler(clock, func(fn func()) {
		executed.Add(1)
		fn()
	})

	var fired atomic.Bool
	task := s.After(10*time.Second, func() { fired.Store(true) })
	assert.True(t, task.Pending())
	assert.Equal(t, 1, s.Pending())

	clock.Advance(9 * time.Second)
	assert.False(t, fired.Load())

	clock.Advance(time.Second)
	require.Eventually(t, fired.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), executed.Load())
	assert.False(t, task.Pending())
	assert.Equal(t, 0, s.Pending())
	assert.False(t, task.Cancel(), "cancelling a fired task is a no-op")
}

func TestTaskCancelIdempotent(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock, nil)

	var fired atomic.Bool
	task := s.After(time.Second, func() { fired.Store(true) })

	assert.True(t, task.Cancel())
	assert.False(t, task.Cancel())
	assert.Equal(t, 0, s.Pending())

	clock.Advance(time.Minute)
	assert.Never(t, fired.Load, 50*time.Millisecond, 5*time.Millisecond)

	var nilTask *Task
	assert.False(t, nilTask.Cancel())
	assert.False(t, nilTask.Pending())
}

func TestTaskCancelledWhileWaitingForExecutor(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var mu sync.Mutex
	var entered atomic.Bool
	s := NewScheduler(clock, func(fn func()) {
		entered.Store(true)
		mu.Lock()
		defer mu.Unlock()
		fn()
	})

	var fired atomic.Bool
	task := s.After(time.Second, func() { fired.Store(true) })

	mu.Lock()
	go clock.Advance(time.Second)
	require.Eventually(t, entered.Load, time.Second, 5*time.Millisecond)

	assert.True(t, task.Cancel())
	mu.Unlock()

	assert.Never(t, fired.Load, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSchedulerClose(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock, nil)

	var fired atomic.Int32
	a := s.After(time.Second, func() { fired.Add(1) })
	b := s.After(2*time.Second, func() { fired.Add(1) })
	require.Equal(t, 2, s.Pending())

	s.Close()
	assert.False(t, a.Pending())
	assert.False(t, b.Pending())

	late := s.After(time.Second, func() { fired.Add(1) })
	assert.False(t, late.Pending())
	assert.Equal(t, 0, s.Pending())

	clock.Advance(time.Minute)
	assert.Never(t, func() bool { return fired.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}
