// Package subsystem implements the Subsystem facet aggregate: a named
// composition unit with its own queue, router, listener manager, and
// cooperative scheduler (spec §2, §4.4, §4.9).
package subsystem

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/relaykernel/substrate/substrate/facet"
	"github.com/relaykernel/substrate/substrate/listener"
	"github.com/relaykernel/substrate/substrate/logging"
	"github.com/relaykernel/substrate/substrate/message"
	"github.com/relaykernel/substrate/substrate/queue"
	"github.com/relaykernel/substrate/substrate/router"
)

// State is the subsystem lifecycle state, held in an atomic.Int32 and set
// with atomic stores.
type State int32

const (
	StateUnbuilt State = iota
	StateBuilt
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateDisposed:
		return "disposed"
	default:
		return "unbuilt"
	}
}

// ErrorSink receives best-effort notification of a handler error, letting
// the caller emit a kernel://error/record/<type> message without the
// scheduler loop ever re-throwing (spec §4.4).
type ErrorSink func(subsystemName string, path string, err error)

// Subsystem is a named composition unit. Its hierarchical Name determines
// the scheme it serves (spec §6: scheme -> subsystem dispatch).
type Subsystem struct {
	Name   string
	Parent string

	state atomic.Int32
	paused atomic.Bool

	mu             sync.Mutex
	facets         map[string]*facet.Facet
	installedOrder []string

	Queue     *queue.Queue
	Listeners *listener.Manager

	log       *logging.Logger
	errorSink ErrorSink
}

// Options configures a new Subsystem.
type Options struct {
	Parent    string
	Queue     queue.Options
	Logger    *logging.Logger
	ErrorSink ErrorSink
}

// New creates an unbuilt Subsystem named name.
func New(name string, opts Options) *Subsystem {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	q := opts.Queue
	if q.Capacity == 0 {
		q = queue.DefaultOptions()
	}
	return &Subsystem{
		Name:      name,
		Parent:    opts.Parent,
		Queue:     queue.New(q),
		Listeners: listener.New(),
		log:       opts.Logger.With(name),
		errorSink: opts.ErrorSink,
	}
}

// State returns the current lifecycle state.
func (s *Subsystem) State() State { return State(s.state.Load()) }

// Build runs b.Build against this subsystem's current facet map (empty on
// first build) and, on success, installs the result and transitions to
// StateBuilt.
func (s *Subsystem) Build(ctx *facet.Context, b *facet.Builder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Parent == "" {
		ctx.Parent = s.Parent
	}
	res, err := b.Build(ctx, s.Name, s.facets)
	if err != nil {
		return err
	}
	s.facets = res.Facets
	s.installedOrder = append(s.installedOrder, res.Installed...)
	s.state.Store(int32(StateBuilt))
	return nil
}

// Find returns the installed facet of the given kind, resolved fresh on
// every call so overwrite/decorator chains installed after the initial
// build are always honored (spec §4.2 Wrapping, §9).
func (s *Subsystem) Find(kind string) (*facet.Facet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facets[kind]
	return f, ok
}

func (s *Subsystem) router() (*router.Router, error) {
	f, ok := s.Find("router")
	if !ok {
		return nil, &NoRouterError{Name: s.Name}
	}
	r, ok := f.Value.(*router.Router)
	if !ok {
		return nil, &NoRouterError{Name: s.Name}
	}
	return r, nil
}

// Accept enqueues msg for asynchronous processing. Succeeds even while
// paused (spec §4.4: "a paused scheduler performs no work; accept still
// enqueues").
func (s *Subsystem) Accept(m *message.Message, options map[string]any) error {
	if s.State() == StateDisposed {
		return &DisposedError{Name: s.Name}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Queue.Enqueue(m, options)
}

// ProcessImmediately routes msg synchronously, bypassing the queue — used
// by the kernel for protected sends that must avoid trampoline latency
// (spec §4.5).
func (s *Subsystem) ProcessImmediately(ctx context.Context, m *message.Message, options map[string]any) (*router.RouteResult, error) {
	r, err := s.router()
	if err != nil {
		return nil, err
	}
	return r.Route(ctx, m, options)
}

// Pause stops ProcessSlice/ProcessTick from doing any work until Resume.
func (s *Subsystem) Pause() { s.paused.Store(true) }

// Resume re-enables scheduling.
func (s *Subsystem) Resume() { s.paused.Store(false) }

// Paused reports whether the subsystem's scheduler is currently paused.
func (s *Subsystem) Paused() bool { return s.paused.Load() }

// ProcessTick dequeues one pair and routes it, recording statistics. It
// returns false if the queue was empty or the subsystem is paused/disposed.
// A handler error is recorded in Queue.Stats and reported to ErrorSink on a
// best-effort basis; it never propagates to the caller (spec §4.4).
func (s *Subsystem) ProcessTick(ctx context.Context) bool {
	if s.paused.Load() || s.State() != StateBuilt {
		return false
	}
	s.mu.Lock()
	pair, ok := s.Queue.Dequeue()
	s.mu.Unlock()
	if !ok {
		return false
	}

	start := time.Now()
	r, err := s.router()
	if err == nil {
		_, err = r.Route(ctx, pair.Message, pair.Options)
	}
	s.Queue.Stats.RecordProcessed(time.Since(start))
	if err != nil {
		s.Queue.Stats.Errored++
		s.log.Debug("subsystem: handler error", zap.Error(err))
		if s.errorSink != nil {
			s.errorSink(s.Name, pair.Message.Path, err)
		}
	}
	return true
}

// ProcessSlice repeatedly calls ProcessTick until the queue empties,
// elapsed time reaches budget, or the scheduler is paused (spec §4.4).
func (s *Subsystem) ProcessSlice(ctx context.Context, budget time.Duration) int {
	start := time.Now()
	count := 0
	for {
		if s.paused.Load() {
			return count
		}
		if time.Since(start) >= budget {
			return count
		}
		if !s.ProcessTick(ctx) {
			return count
		}
		count++
	}
}

// Dispose pauses the scheduler, runs every installed facet's OnDispose in
// reverse build order, clears the facet map, and transitions to
// StateDisposed (spec §5).
func (s *Subsystem) Dispose() error {
	s.Pause()
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs error
	for i := len(s.installedOrder) - 1; i >= 0; i-- {
		f, ok := s.facets[s.installedOrder[i]]
		if !ok || f.OnDispose == nil {
			continue
		}
		if err := f.OnDispose(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	s.facets = nil
	s.installedOrder = nil
	s.state.Store(int32(StateDisposed))
	return errs
}
