// Package poller waits for asynchronous remote jobs by re-checking their
// status on a capped exponential schedule.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/worksheetgen/internal/model"
)

// ErrExhausted means the job was still not done when the attempt or time
// budget ran out.
var ErrExhausted = errors.New("job did not complete in time")

var errNotReady = errors.New("not ready")

// State is the lifecycle of one poll run.
type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateAbandoned State = "abandoned"
)

// Config controls the polling schedule.
type Config struct {
	InitialDelay        time.Duration
	Interval            time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxAttempts         int
	MaxElapsed          time.Duration
	// SlowAfter is the number of unfinished checks after which the run is
	// reported as slow. Zero disables the notification.
	SlowAfter int
}

// DefaultConfig returns the schedule used for a job kind.
func DefaultConfig(kind model.JobKind) Config {
	cfg := Config{
		InitialDelay: 15 * time.Second,
		Interval:     5 * time.Second,
		MaxInterval:  30 * time.Second,
		Multiplier:   1.5,
		MaxAttempts:  120,
		MaxElapsed:   time.Hour,
		SlowAfter:    12,
	}
	if kind == model.JobWorksheet {
		cfg.InitialDelay = 20 * time.Second
	}
	return cfg
}

// Check inspects the job once. It returns done=false while the job is still
// running; a non-nil error is retried unless the Job marks it permanent.
type Check[T any] func(ctx context.Context) (result T, done bool, err error)

// Job is one poll run.
type Job[T any] struct {
	Name   string
	Config Config
	Check  Check[T]
	// Permanent reports errors that end the run immediately.
	Permanent func(error) bool
	OnState   func(State)
	// OnSlow is called once, with the attempt count, when the run passes
	// Config.SlowAfter.
	OnSlow func(attempt int)
}

// Run waits the initial delay and then checks until the job is done, a
// permanent error occurs, ctx is cancelled or the budget is spent.
func (j Job[T]) Run(ctx context.Context) (T, error) {
	var zero T
	log := slog.With("job", j.Name, "run_id", uuid.NewString())
	cfg := j.Config

	j.setState(StateSubmitted)
	log.Debug("poll scheduled", "initial_delay", cfg.InitialDelay)

	if cfg.InitialDelay > 0 {
		t := time.NewTimer(cfg.InitialDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			j.setState(StateAbandoned)
			return zero, ctx.Err()
		case <-t.C:
		}
	}
	j.setState(StatePolling)

	attempt := 0
	slow := false
	op := func() (T, error) {
		attempt++
		res, done, err := j.Check(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return zero, backoff.Permanent(ctx.Err())
		case err != nil && j.Permanent != nil && j.Permanent(err):
			return zero, backoff.Permanent(err)
		case err == nil && done:
			return res, nil
		}
		if err != nil {
			log.Warn("poll check failed", "attempt", attempt, "error", err)
		} else {
			err = errNotReady
		}
		if !slow && cfg.SlowAfter > 0 && attempt >= cfg.SlowAfter {
			slow = true
			log.Info("job is taking longer than expected", "attempt", attempt)
			if j.OnSlow != nil {
				j.OnSlow(attempt)
			}
		}
		return zero, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(cfg.backOff()),
		// Zero disables the elapsed-time limit.
		backoff.WithMaxElapsedTime(cfg.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug("poll rescheduled", "attempt", attempt, "next", next)
		}),
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(cfg.MaxAttempts)))
	}

	res, err := backoff.Retry(ctx, op, opts...)
	switch {
	case err == nil:
		j.setState(StateCompleted)
		log.Debug("job completed", "attempts", attempt)
		return res, nil
	case ctx.Err() != nil:
		j.setState(StateAbandoned)
		log.Debug("poll cancelled", "attempts", attempt)
		return zero, ctx.Err()
	case errors.Is(err, errNotReady) || !j.permanent(err):
		j.setState(StateAbandoned)
		log.Warn("poll gave up", "attempts", attempt, "error", err)
		if errors.Is(err, errNotReady) {
			return zero, fmt.Errorf("%s after %d checks: %w", j.Name, attempt, ErrExhausted)
		}
		return zero, fmt.Errorf("%s after %d checks: %w: %w", j.Name, attempt, ErrExhausted, err)
	default:
		j.setState(StateAbandoned)
		return zero, err
	}
}

func (j Job[T]) permanent(err error) bool {
	return j.Permanent != nil && j.Permanent(err)
}

func (j Job[T]) setState(s State) {
	if j.OnState != nil {
		j.OnState(s)
	}
}

func (c Config) backOff() backoff.BackOff {
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	if c.MaxInterval < c.Interval {
		c.MaxInterval = c.Interval
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.Interval,
		RandomizationFactor: c.RandomizationFactor,
		Multiplier:          c.Multiplier,
		MaxInterval:         c.MaxInterval,
	}
	b.Reset()
	return b
}
