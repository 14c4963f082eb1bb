// Package correlation implements the response manager: a correlationId ->
// PendingResponse map with a single monotonic sweeper that rejects entries
// past their deadline (spec §4.6).
package correlation

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RequestTimeoutError is returned to the awaiting caller when a pending
// response's deadline elapses before a matching response arrives.
type RequestTimeoutError struct{ CorrelationID string }

func (e *RequestTimeoutError) Error() string {
	return "correlation: request timed out: " + e.CorrelationID
}

// SubsystemDisposedError rejects every pending response targeted at a
// subsystem that is disposed before it replies.
type SubsystemDisposedError struct{ CorrelationID string }

func (e *SubsystemDisposedError) Error() string {
	return "correlation: subsystem disposed: " + e.CorrelationID
}

// ErrClosed is returned by Register once the Manager has been closed.
var ErrClosed = errors.New("correlation: response manager closed")

// Result is delivered to the waiter exactly once per pending entry, via
// resolve, reject-by-timeout, or reject-by-dispose (spec §8 invariant 5).
type Result struct {
	Value any
	Err   error
}

// PendingResponse tracks one outstanding request awaiting a correlated
// reply.
type PendingResponse struct {
	CorrelationID string
	Deadline      time.Time
	ch            chan Result
	done          bool
}

// Manager is the correlationId -> PendingResponse map plus its sweeper.
// Guarded by a single mutex, matching the single-executor model of spec §5.
type Manager struct {
	clock clock.Clock

	mu      sync.Mutex
	pending map[string]*PendingResponse

	lateResponses uint64
	closed        bool

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// Options configures a Manager.
type Options struct {
	Clock          clock.Clock
	SweepInterval  time.Duration
	DefaultTimeout time.Duration
}

// New creates a Manager and starts its background sweeper goroutine.
func New(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 10 * time.Millisecond
	}
	m := &Manager{
		clock:     opts.Clock,
		pending:   make(map[string]*PendingResponse),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go m.sweepLoop(opts.SweepInterval)
	return m
}

// Register creates a pending response awaiting correlationId, with an
// absolute deadline timeout from now. The returned channel receives
// exactly one Result.
func (m *Manager) Register(correlationID string, timeout time.Duration) (<-chan Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	pr := &PendingResponse{
		CorrelationID: correlationID,
		Deadline:      m.clock.Now().Add(timeout),
		ch:            make(chan Result, 1),
	}
	m.pending[correlationID] = pr
	return pr.ch, nil
}

// Resolve matches an incoming response by correlationId, completing the
// waiter with value and removing the entry. Returns false (and increments
// LateResponses) if no pending entry exists — the response arrived after
// timeout or twice.
func (m *Manager) Resolve(correlationID string, value any) bool {
	m.mu.Lock()
	pr, ok := m.pending[correlationID]
	if ok {
		delete(m.pending, correlationID)
	} else {
		m.lateResponses++
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.complete(pr, Result{Value: value})
	return true
}

// DisposeSubsystem rejects every pending entry whose correlationId is in
// ids with SubsystemDisposedError (spec §5: "Pending responses targeted at
// that subsystem are rejected with SubsystemDisposed").
func (m *Manager) DisposeSubsystem(ids []string) {
	m.mu.Lock()
	toReject := make([]*PendingResponse, 0, len(ids))
	for _, id := range ids {
		if pr, ok := m.pending[id]; ok {
			delete(m.pending, id)
			toReject = append(toReject, pr)
		}
	}
	m.mu.Unlock()

	for _, pr := range toReject {
		m.complete(pr, Result{Err: &SubsystemDisposedError{CorrelationID: pr.CorrelationID}})
	}
}

// LateResponses reports the count of responses that arrived with no
// matching pending entry (already resolved, rejected, or never
// registered).
func (m *Manager) LateResponses() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lateResponses
}

// Len reports the number of currently pending entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close stops the sweeper and rejects every remaining pending entry with
// SubsystemDisposedError.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	remaining := make([]*PendingResponse, 0, len(m.pending))
	for _, pr := range m.pending {
		remaining = append(remaining, pr)
	}
	m.pending = make(map[string]*PendingResponse)
	m.mu.Unlock()

	close(m.stopSweep)
	<-m.sweepDone

	for _, pr := range remaining {
		m.complete(pr, Result{Err: &SubsystemDisposedError{CorrelationID: pr.CorrelationID}})
	}
}

func (m *Manager) complete(pr *PendingResponse, res Result) {
	m.mu.Lock()
	if pr.done {
		m.mu.Unlock()
		return
	}
	pr.done = true
	m.mu.Unlock()
	pr.ch <- res
	close(pr.ch)
}

func (m *Manager) sweepLoop(interval time.Duration) {
	defer close(m.sweepDone)
	ticker := m.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

func (m *Manager) sweepExpired() {
	now := m.clock.Now()
	m.mu.Lock()
	var expired []*PendingResponse
	for id, pr := range m.pending {
		if !now.Before(pr.Deadline) {
			expired = append(expired, pr)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, pr := range expired {
		m.complete(pr, Result{Err: &RequestTimeoutError{CorrelationID: pr.CorrelationID}})
	}
}
