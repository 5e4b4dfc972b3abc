package lambdacontext

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mackee/lambdacore/lambdalog"
)

func TestTaskCollectorWaitsForAllTasks(t *testing.T) {
	c := NewTaskCollector(lambdalog.Discard)
	var n int32
	for i := 0; i < 5; i++ {
		c.Go(func(ctx context.Context) {
			atomic.AddInt32(&n, 1)
		})
	}
	require.NoError(t, c.Wait(context.Background()))
	assert.Equal(t, int32(5), n)
}

func TestTaskCollectorRecoversPanics(t *testing.T) {
	c := NewTaskCollector(lambdalog.Discard)
	c.Go(func(ctx context.Context) {
		panic("boom")
	})
	require.NoError(t, c.Wait(context.Background()))
}

func TestTaskCollectorWaitTimesOut(t *testing.T) {
	c := NewTaskCollector(lambdalog.Discard)
	c.Go(func(ctx context.Context) {
		time.Sleep(200 * time.Millisecond)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)
}
