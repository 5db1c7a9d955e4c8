package wizard

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pavelanni/worksheetgen/internal/api"
	"github.com/pavelanni/worksheetgen/internal/model"
	"github.com/pavelanni/worksheetgen/internal/poller"
)

// startPollLocked polls a submitted job in the background. When the job
// completes, apply runs under c.mu and the session is saved. Results of a
// poll that was superseded in the meantime are dropped.
func startPollLocked[T any](c *Controller, token string, kind model.JobKind, jobID string,
	decode func(*api.JobResult) (T, bool, error), failID string, apply func(T) error) {

	c.cancelPollLocked()
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancelPoll = cancel
	c.busy = true
	c.slow = false
	gen := c.gen

	job := poller.Job[T]{
		Name:   string(kind),
		Config: c.polls[kind],
		Check: func(ctx context.Context) (T, bool, error) {
			res, err := c.api.FetchJobStatus(ctx, token, kind, jobID)
			if err != nil {
				var zero T
				return zero, false, err
			}
			return decode(res)
		},
		Permanent: func(err error) bool { return errors.Is(err, api.ErrAuthExpired) },
		OnSlow: func(int) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if !c.staleLocked(token, gen) {
				c.slow = true
				c.notice = &Message{ID: MsgStillProcessing}
			}
		},
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		res, err := job.Run(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.staleLocked(token, gen) {
			slog.Debug("dropping stale poll result", "job", kind, "job_id", jobID)
			return
		}
		c.busy = false
		c.slow = false
		c.notice = nil
		c.cancelPoll = nil

		switch {
		case err == nil:
			if err := apply(res); err != nil {
				slog.Error("cannot apply job result", "job", kind, "step", c.sess.Step, "error", err)
				c.errMsg = &Message{ID: failID, Detail: err.Error()}
				return
			}
			c.persistLocked()
		case errors.Is(err, poller.ErrExhausted):
			c.errMsg = &Message{ID: MsgPollGaveUp}
		default:
			c.failLocked(token, failID, err)
		}
	}()
}
