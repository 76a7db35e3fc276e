package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodicRunsTaskOnInterval(t *testing.T) {
	var runs int32
	p := NewPeriodic("test", 5*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&runs, 1)
	}, nil)

	require.True(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, time.Second, time.Millisecond)
	require.True(t, p.Stop())
	assert.False(t, p.Running())
}

func TestPeriodicStartIsIdempotent(t *testing.T) {
	p := NewPeriodic("test", time.Hour, func(context.Context) {}, nil)

	assert.True(t, p.Start(context.Background()))
	assert.False(t, p.Start(context.Background()))
	assert.True(t, p.Running())
	assert.True(t, p.Stop())
	assert.False(t, p.Stop())
}

func TestPeriodicStopWaitsForInFlightRun(t *testing.T) {
	entered := make(chan struct{})
	var finished int32
	p := NewPeriodic("test", time.Hour, func(ctx context.Context) {
		close(entered)
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	}, nil)
	p.RunOnStart = true

	p.Start(context.Background())
	<-entered
	p.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
}

func TestPeriodicCanRestart(t *testing.T) {
	var runs int32
	p := NewPeriodic("test", time.Hour, func(context.Context) { atomic.AddInt32(&runs, 1) }, nil)
	p.RunOnStart = true

	p.Start(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, time.Millisecond)
	p.Stop()
	p.Start(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 2 }, time.Second, time.Millisecond)
	p.Stop()
}
