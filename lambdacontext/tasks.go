package lambdacontext

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mackee/lambdacore/lambdalog"
)

// TaskCollector tracks background work a handler starts but does not await
// before returning its response, so the driver can drain it before the next
// invocation begins (spec.md §5's "no leaked goroutines across
// invocations" rule). It plays the role the Lambda Web Adapter's fx.Hook
// OnStop drain plays for an HTTP server's in-flight requests, reduced to
// plain Go since the runtime core takes no dependency-injection framework.
type TaskCollector struct {
	mu  sync.Mutex
	wg  sync.WaitGroup
	log lambdalog.Logger
}

// NewTaskCollector builds an empty collector. log receives one line per
// panic recovered from a tracked task; pass lambdalog.Discard to ignore.
func NewTaskCollector(log lambdalog.Logger) *TaskCollector {
	if log == nil {
		log = lambdalog.Discard
	}
	return &TaskCollector{log: log}
}

// Go runs fn in a new goroutine, tracked by the collector. A panic inside
// fn is recovered and logged rather than crashing the process; panics in
// background work must not take down an otherwise-healthy invocation loop.
func (c *TaskCollector) Go(fn func(ctx context.Context)) {
	ctx := context.Background()
	taskID := uuid.NewString()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.log.Log(lambdalog.LevelError, "background task panicked",
					lambdalog.F("task_id", taskID), lambdalog.F("panic", r))
			}
		}()
		fn(ctx)
	}()
}

// Wait blocks until every tracked task has returned, or ctx is done first.
// It returns ctx.Err() in the latter case; tasks that are still running are
// left to finish on their own, since they share no cancellation with ctx.
func (c *TaskCollector) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
