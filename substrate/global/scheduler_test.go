package global_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/relaykernel/substrate/substrate/global"
)

type countingSlicer struct {
	remaining atomic.Int64
	processed atomic.Int64
	paused    atomic.Bool
}

func (c *countingSlicer) ProcessSlice(ctx context.Context, budget time.Duration) int {
	start := time.Now()
	n := 0
	for c.remaining.Load() > 0 && time.Since(start) < budget {
		c.remaining.Add(-1)
		c.processed.Add(1)
		n++
	}
	return n
}

func (c *countingSlicer) Paused() bool { return c.paused.Load() }

// TestFairScheduling grounds spec §8 scenario S7: once both round-robin
// subsystems have drained their queues, their processed counts differ by
// at most 1. Counts are not sampled between individual sweeps.
func TestFairScheduling(t *testing.T) {
	a := &countingSlicer{}
	a.remaining.Store(1000)
	b := &countingSlicer{}
	b.remaining.Store(1000)

	sch := global.New(global.Options{TickBudget: 20 * time.Millisecond})
	sch.Register("a", a)
	sch.Register("b", b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sch.Start(ctx)
	defer sch.Stop()

	deadline := time.After(5 * time.Second)
	for a.remaining.Load() > 0 || b.remaining.Load() > 0 {
		select {
		case <-deadline:
			t.Fatal("scheduler did not drain both subsystems in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	diff := a.processed.Load() - b.processed.Load()
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, int64(1))
}

func TestStartIsExplicit(t *testing.T) {
	sch := global.New(global.Options{})
	assert.False(t, sch.Running())
}

func TestStopIsIdempotentBeforeStart(t *testing.T) {
	sch := global.New(global.Options{})
	assert.NoError(t, sch.Stop())
}
