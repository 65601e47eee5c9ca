package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultCooldown    = 5 * time.Second
	DefaultStopTimeout = 3 * time.Second
)

// Job is one unit of periodic work. It should return promptly once ctx is
// cancelled.
type Job func(ctx context.Context) error

// Scheduler runs a Job in a background goroutine: after a success it waits
// the interval, after a failure the cooldown. Job errors never stop it.
type Scheduler struct {
	job         Job
	interval    time.Duration
	cooldown    time.Duration
	stopTimeout time.Duration
	logger      logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(job Job, interval time.Duration, logger logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		job:         job,
		interval:    interval,
		cooldown:    DefaultCooldown,
		stopTimeout: DefaultStopTimeout,
		logger:      logger,
	}
}

// SetCooldown changes the wait after a failed run.
func (s *Scheduler) SetCooldown(d time.Duration) { s.cooldown = d }

func (s *Scheduler) Interval() time.Duration { return s.interval }

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Scheduler) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Start launches the loop. It reports false, doing nothing, when the loop is
// already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		s.logger.Warn("scheduler already running")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go s.loop(ctx, done)

	s.logger.WithField("interval", s.interval.String()).Info("scheduler started")
	return true
}

// Stop cancels the loop and waits up to the stop timeout for it to exit.
// It is a no-op when the scheduler is not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.runningLocked() {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
	case <-time.After(s.stopTimeout):
		s.logger.Warn("scheduler did not stop in time")
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		wait := s.interval
		s.logger.Debug("scheduled run started")
		if err := s.job(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.WithError(err).Error("scheduled run failed")
			wait = s.cooldown
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
