// Package global implements the global scheduler (cooperative time-slicing
// across registered subsystems) and the message-system router (scheme ->
// subsystem dispatch, immediate vs async delivery) described in spec §4.5.
package global

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/relaykernel/substrate/substrate/logging"
)

// Slicer is anything the scheduler can grant a cooperative time budget to.
// *subsystem.Subsystem satisfies this.
type Slicer interface {
	ProcessSlice(ctx context.Context, budget time.Duration) int
	Paused() bool
}

// Strategy selects the order subsystems are visited in a sweep.
type Strategy int

const (
	// RoundRobin visits subsystems in registration order every sweep.
	RoundRobin Strategy = iota
	// LeastRecentlyRun visits the subsystem with the oldest last-run
	// timestamp first, approximating fairness under uneven queue depths.
	LeastRecentlyRun
)

type entry struct {
	name    string
	s       Slicer
	lastRun time.Time
}

// Scheduler drives processSlice across every registered subsystem.
// start() must be called explicitly — spec §9 Open Questions rejects lazy
// start.
type Scheduler struct {
	mu       sync.Mutex
	entries  []*entry
	strategy Strategy

	tickBudget time.Duration
	clock      clock.Clock
	log        *logging.Logger

	running  bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	lastErr  error
}

// Options configures a Scheduler.
type Options struct {
	Strategy   Strategy
	TickBudget time.Duration
	Clock      clock.Clock
	Logger     *logging.Logger
}

// New creates a stopped Scheduler. TickBudget defaults to 20ms (spec §4.5).
func New(opts Options) *Scheduler {
	if opts.TickBudget <= 0 {
		opts.TickBudget = 20 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Scheduler{strategy: opts.Strategy, tickBudget: opts.TickBudget, clock: opts.Clock, log: opts.Logger}
}

// Register adds s (named name) to the set of subsystems eligible for time
// slicing.
func (sch *Scheduler) Register(name string, s Slicer) {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	sch.entries = append(sch.entries, &entry{name: name, s: s})
}

// Unregister removes the subsystem named name from scheduling.
func (sch *Scheduler) Unregister(name string) {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	for i, e := range sch.entries {
		if e.name == name {
			sch.entries = append(sch.entries[:i], sch.entries[i+1:]...)
			return
		}
	}
}

// Start launches the loop on a dedicated goroutine. Must be called
// explicitly; there is no lazy start (spec §9 Open Questions).
func (sch *Scheduler) Start(ctx context.Context) {
	sch.mu.Lock()
	if sch.running {
		sch.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	sch.cancel = cancel
	sch.running = true
	g, gctx := errgroup.WithContext(runCtx)
	sch.group = g
	sch.mu.Unlock()

	g.Go(func() error {
		return sch.loop(gctx)
	})
}

// Stop requests termination at the next sweep boundary and blocks until
// the loop goroutine exits (spec §5: "cooperative... completes the
// current tick, then exits; never preempts a running handler").
func (sch *Scheduler) Stop() error {
	sch.mu.Lock()
	if !sch.running {
		sch.mu.Unlock()
		return nil
	}
	cancel := sch.cancel
	g := sch.group
	sch.mu.Unlock()

	cancel()
	err := g.Wait()

	sch.mu.Lock()
	sch.running = false
	sch.lastErr = err
	sch.mu.Unlock()
	return err
}

// Running reports whether the scheduler loop is active.
func (sch *Scheduler) Running() bool {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	return sch.running
}

func (sch *Scheduler) loop(ctx context.Context) error {
	ticker := sch.clock.Ticker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sch.sweep(ctx)
		}
	}
}

// sweep visits every registered subsystem once, in strategy order, granting
// each tickBudget (spec §4.5: "within one subsystem, messages are processed
// in queue order; across subsystems, no ordering is guaranteed beyond
// time-slice boundaries").
func (sch *Scheduler) sweep(ctx context.Context) {
	sch.mu.Lock()
	order := sch.orderedEntries()
	sch.mu.Unlock()

	for _, e := range order {
		if e.s.Paused() {
			continue
		}
		e.s.ProcessSlice(ctx, sch.tickBudget)
		sch.mu.Lock()
		e.lastRun = sch.clock.Now()
		sch.mu.Unlock()
	}
}

func (sch *Scheduler) orderedEntries() []*entry {
	out := make([]*entry, len(sch.entries))
	copy(out, sch.entries)
	if sch.strategy == LeastRecentlyRun {
		// Simple insertion sort by lastRun ascending; entry counts per
		// MessageSystem are small (subsystem counts, not message counts).
		for i := 1; i < len(out); i++ {
			for j := i; j > 0 && out[j].lastRun.Before(out[j-1].lastRun); j-- {
				out[j], out[j-1] = out[j-1], out[j]
			}
		}
	}
	return out
}
