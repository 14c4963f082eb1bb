package global

import (
	"context"
	"fmt"

	"github.com/relaykernel/substrate/substrate/message"
	"github.com/relaykernel/substrate/substrate/path"
	"github.com/relaykernel/substrate/substrate/queue"
	"github.com/relaykernel/substrate/substrate/router"
)

// UnknownSubsystemError reports a message whose scheme has no registered
// subsystem (spec §4.5 Failure modes).
type UnknownSubsystemError struct{ Scheme string }

func (e *UnknownSubsystemError) Error() string {
	return fmt.Sprintf("global: unknown subsystem for scheme %q", e.Scheme)
}

// QueueFullError reports an enqueue rejected by a full queue under the
// reject overflow policy (spec §4.5 Failure modes).
type QueueFullError struct{ Subsystem string }

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("global: queue full for subsystem %q", e.Subsystem)
}

// Dispatchable is the subset of subsystem.Subsystem the message-system
// router depends on.
type Dispatchable interface {
	Accept(m *message.Message, options map[string]any) error
	ProcessImmediately(ctx context.Context, m *message.Message, options map[string]any) (*router.RouteResult, error)
}

// Lookup resolves a scheme to its registered subsystem.
type Lookup func(scheme string) (Dispatchable, bool)

// Router extracts the scheme from a message's path and dispatches it to
// the resolved subsystem, either enqueuing (async, default) or invoking
// ProcessImmediately (sync) per options["immediate"] (spec §4.5).
type Router struct {
	lookup Lookup
}

// NewRouter creates a message-system router backed by lookup.
func NewRouter(lookup Lookup) *Router {
	return &Router{lookup: lookup}
}

// Dispatch routes m according to options. immediate=true (default false)
// invokes ProcessImmediately synchronously; otherwise m is enqueued via
// Accept for asynchronous processing by the global scheduler.
func (r *Router) Dispatch(ctx context.Context, m *message.Message, options map[string]any) (*router.RouteResult, error) {
	scheme, err := path.Scheme(m.Path)
	if err != nil {
		return nil, err
	}
	target, ok := r.lookup(scheme)
	if !ok {
		return nil, &UnknownSubsystemError{Scheme: scheme}
	}

	immediate, _ := options["immediate"].(bool)
	if immediate {
		return target.ProcessImmediately(ctx, m, options)
	}

	if err := target.Accept(m, options); err != nil {
		if err == queue.ErrFull {
			return nil, &QueueFullError{Subsystem: scheme}
		}
		return nil, err
	}
	return nil, nil
}
