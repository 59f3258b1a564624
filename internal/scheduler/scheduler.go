// Package scheduler runs the periodic subscription reconciliation loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reconciler is the unit of work run on every tick. CheckExpired revokes
// lapsed access, CheckReminders sends expiry warnings.
type Reconciler interface {
	CheckExpiredSubscriptions(ctx context.Context) ([]int64, error)
	CheckRenewalReminders(ctx context.Context) ([]int64, error)
}

type Scheduler struct {
	ledger   Reconciler
	interval time.Duration
	backoff  time.Duration
	log      zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

type Config struct {
	Interval     time.Duration
	ErrorBackoff time.Duration
}

func NewScheduler(ledger Reconciler, config Config, log zerolog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		ledger:   ledger,
		interval: config.Interval,
		backoff:  config.ErrorBackoff,
		log:      log.With().Str("component", "scheduler").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")

	s.wg.Add(1)
	go s.loop()
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info().Msg("stopping scheduler")
	s.cancel()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// loop runs one reconciliation immediately, then on every tick. A failed
// pass shortens the wait to the error backoff instead of killing the loop.
func (s *Scheduler) loop() {
	defer s.wg.Done()

	for {
		wait := s.interval
		if err := s.runOnce(); err != nil {
			s.log.Error().Err(err).Dur("retry_in", s.backoff).Msg("reconciliation pass failed")
			wait = s.backoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) runOnce() (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("reconciliation panicked")
			err = errPanic
		}
	}()

	revoked, err := s.ledger.CheckExpiredSubscriptions(s.ctx)
	if err != nil {
		return err
	}
	if len(revoked) > 0 {
		s.log.Info().Int("count", len(revoked)).Msg("revoked expired subscriptions")
	}

	reminded, err := s.ledger.CheckRenewalReminders(s.ctx)
	if err != nil {
		return err
	}
	if len(reminded) > 0 {
		s.log.Info().Int("count", len(reminded)).Msg("sent renewal reminders")
	}

	return nil
}

var errPanic = panicError{}

type panicError struct{}

func (panicError) Error() string { return "reconciliation panic" }
