package services

import (
	"context"
	"errors"
	"time"

	"github.com/open-teleop/mapbridge/domain/diagnostic"
	customlog "github.com/open-teleop/mapbridge/pkg/log"
)

// Runner runs one session attempt to completion
type Runner interface {
	Run(ctx context.Context) error
}

// DefaultMaxRetryInterval caps the backoff when RetryPolicy.MaxInterval is unset
const DefaultMaxRetryInterval = 30 * time.Second

// RetryPolicy spaces out consecutive failed joins. The delay starts at
// Interval, doubles after each failure and is capped at MaxInterval, or at
// DefaultMaxRetryInterval when MaxInterval is zero.
// A zero Interval retries immediately, forever.
type RetryPolicy struct {
	Interval    time.Duration
	MaxInterval time.Duration
}

func (p RetryPolicy) next(current time.Duration) time.Duration {
	if p.Interval <= 0 {
		return 0
	}
	limit := p.MaxInterval
	if limit <= 0 {
		limit = DefaultMaxRetryInterval
	}
	if limit < p.Interval {
		limit = p.Interval
	}
	if current <= 0 {
		return p.Interval
	}
	if current >= limit/2 {
		return limit
	}
	return current * 2
}

// ReconnectSupervisor restarts the session whenever it ends, until ctx is
// cancelled. There is no attempt limit.
type ReconnectSupervisor struct {
	runner Runner
	policy RetryPolicy
	diag   *diagnostic.DiagnosticService
	logger customlog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewReconnectSupervisor creates a supervisor around runner. diag may be nil.
func NewReconnectSupervisor(runner Runner, policy RetryPolicy, diag *diagnostic.DiagnosticService, logger customlog.Logger) *ReconnectSupervisor {
	return &ReconnectSupervisor{
		runner: runner,
		policy: policy,
		diag:   diag,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Run blocks until ctx is cancelled and returns ctx.Err()
func (s *ReconnectSupervisor) Run(ctx context.Context) error {
	var delay time.Duration

	for attempt := 1; ; attempt++ {
		if attempt > 1 && s.diag != nil {
			s.diag.RecordReconnectAttempt()
		}

		err := s.runner.Run(ctx)
		if ctx.Err() != nil {
			s.logger.Infof("Reconnect supervisor stopping: %v", ctx.Err())
			return ctx.Err()
		}
		if s.diag != nil {
			s.diag.RecordError(err)
		}

		// A session that was up gets one immediate retry
		if err == nil || errors.Is(err, ErrSessionLost) {
			s.logger.Warnf("Session ended (%v), reconnecting", err)
			delay = 0
			continue
		}

		delay = s.policy.next(delay)
		s.logger.Errorf("Failed to establish session (attempt %d): %v, retrying in %v", attempt, err, delay)

		if err := s.sleep(ctx, delay); err != nil {
			s.logger.Infof("Reconnect supervisor stopping: %v", err)
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
