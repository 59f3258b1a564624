package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingReconciler struct {
	expiredCalls  int64
	reminderCalls int64
	expiredErr    error
	panicOnce     int32
}

func (c *countingReconciler) CheckExpiredSubscriptions(ctx context.Context) ([]int64, error) {
	atomic.AddInt64(&c.expiredCalls, 1)
	if atomic.CompareAndSwapInt32(&c.panicOnce, 1, 0) {
		panic("boom")
	}
	return nil, c.expiredErr
}

func (c *countingReconciler) CheckRenewalReminders(ctx context.Context) ([]int64, error) {
	atomic.AddInt64(&c.reminderCalls, 1)
	return nil, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSchedulerRunsImmediatelyThenTicks(t *testing.T) {
	rec := &countingReconciler{}
	s := NewScheduler(rec, Config{Interval: 20 * time.Millisecond, ErrorBackoff: 20 * time.Millisecond}, zerolog.Nop())

	s.Start()
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&rec.expiredCalls) >= 2 })
	assert.GreaterOrEqual(t, atomic.LoadInt64(&rec.reminderCalls), int64(2))
}

func TestSchedulerSurvivesErrors(t *testing.T) {
	rec := &countingReconciler{expiredErr: errors.New("db down")}
	s := NewScheduler(rec, Config{Interval: time.Hour, ErrorBackoff: 10 * time.Millisecond}, zerolog.Nop())

	s.Start()
	defer s.Stop()

	// with the long interval, repeated calls can only come from error backoff
	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&rec.expiredCalls) >= 3 })
	assert.Zero(t, atomic.LoadInt64(&rec.reminderCalls), "reminders skipped when expiry pass fails")
}

func TestSchedulerSurvivesPanic(t *testing.T) {
	rec := &countingReconciler{panicOnce: 1}
	s := NewScheduler(rec, Config{Interval: time.Hour, ErrorBackoff: 10 * time.Millisecond}, zerolog.Nop())

	s.Start()
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&rec.expiredCalls) >= 2 })
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	rec := &countingReconciler{}
	s := NewScheduler(rec, Config{Interval: time.Hour, ErrorBackoff: time.Hour}, zerolog.Nop())

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	calls := atomic.LoadInt64(&rec.expiredCalls)
	assert.EqualValues(t, 1, calls, "double Start must not spawn a second loop")
}
