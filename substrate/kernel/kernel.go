// Package kernel implements the privileged subsystem described in spec
// §4.7: access-control, response-manager, channel-manager, profile-registry
// and error-manager children, plus the sendProtected pipeline that is the
// only path permitted to stamp a message's caller identity.
package kernel

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaykernel/substrate/substrate/channel"
	"github.com/relaykernel/substrate/substrate/correlation"
	"github.com/relaykernel/substrate/substrate/facet"
	"github.com/relaykernel/substrate/substrate/identity"
	"github.com/relaykernel/substrate/substrate/logging"
	"github.com/relaykernel/substrate/substrate/message"
	"github.com/relaykernel/substrate/substrate/router"
	"github.com/relaykernel/substrate/substrate/subsystem"
)

const responseScheme = "kernel://response/"

// MessageRouter is the message-system router the kernel dispatches
// protected sends through — satisfied by *global.Router. Declared as an
// interface here to avoid a kernel -> global import (global never needs
// the kernel).
type MessageRouter interface {
	Dispatch(ctx context.Context, m *message.Message, options map[string]any) (*router.RouteResult, error)
}

// Kernel is the privileged subsystem. Only its SendProtected/SendProtectedPooled
// methods may stamp a message's CallerID/CallerIDSetBy.
type Kernel struct {
	Identity identity.PKR

	Principals  *identity.Registry
	Profiles    *identity.ProfileRegistry
	Channels    *channel.Manager
	Correlation *correlation.Manager
	Errors      *ErrorManager

	Subsystem *subsystem.Subsystem

	defaultTimeout time.Duration
	debug          bool
	log            *logging.Logger
	msgRouter      MessageRouter
}

// Options configures a new Kernel.
type Options struct {
	DefaultTimeout time.Duration
	Debug          bool
	Logger         *logging.Logger
}

// New constructs a Kernel, establishes its kernel PKR against principals,
// and builds its own subsystem with the kernel:// route surface (spec §6).
func New(principals *identity.Registry, profiles *identity.ProfileRegistry, opts Options) (*Kernel, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 5 * time.Second
	}

	k := &Kernel{
		Identity:       principals.EstablishKernel(),
		Principals:     principals,
		Profiles:       profiles,
		Channels:       channel.NewManager(),
		Correlation:    correlation.New(correlation.Options{}),
		Errors:         NewErrorManager(0),
		defaultTimeout: opts.DefaultTimeout,
		debug:          opts.Debug,
		log:            opts.Logger.With("kernel"),
	}

	k.Subsystem = subsystem.New("kernel", subsystem.Options{Logger: opts.Logger})

	b := facet.NewBuilder()
	b.Use(&facet.Hook{
		Kind: "router",
		Fn: func(ctx *facet.Context, api *facet.API, name string) (*facet.Facet, error) {
			return &facet.Facet{Kind: "router", Value: k.buildRouter()}, nil
		},
	})
	if err := k.Subsystem.Build(&facet.Context{}, b); err != nil {
		return nil, err
	}
	return k, nil
}

// SetMessageRouter wires the message-system router the kernel dispatches
// through (spec §4.7 step 3: "Obtain the message-system router (cached)").
func (k *Kernel) SetMessageRouter(r MessageRouter) { k.msgRouter = r }

func (k *Kernel) buildRouter() *router.Router {
	r := router.New(router.Options{Logger: k.log})
	_ = r.Register("kernel://event/{name}", func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
		return nil, nil
	}, router.RegisterOptions{})
	_ = r.Register("kernel://error/record/{type}", func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
		k.Errors.Record(ErrorRecord{Type: params["type"], Message: errMessage(msg.Body), Path: msg.Path, At: time.Now()})
		return nil, nil
	}, router.RegisterOptions{})
	_ = r.Register("kernel://error/query/recent", func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
		return k.Errors.Recent(50), nil
	}, router.RegisterOptions{})
	_ = r.Register("kernel://error/query/by-type", func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
		typ, _ := msg.Body.(string)
		return k.Errors.ByType(typ), nil
	}, router.RegisterOptions{})
	_ = r.Register("kernel://error/query/summary", func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
		return k.Errors.Summary(), nil
	}, router.RegisterOptions{})
	_ = r.Register("kernel://response/{correlationId}", func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
		// Resolution already happened in SendProtected step 5; this route
		// exists only so the message-system router finds a handler.
		return nil, nil
	}, router.RegisterOptions{})
	return r
}

func errMessage(body any) string {
	if err, ok := body.(error); ok {
		return err.Error()
	}
	if s, ok := body.(string); ok {
		return s
	}
	return ""
}

// EmitBootstrapped emits kernel://event/kernel-bootstrapped, delivered
// through the normal dispatch path like any other kernel event.
func (k *Kernel) EmitBootstrapped(ctx context.Context) (*router.RouteResult, error) {
	return k.SendProtected(ctx, k.Identity, message.New("kernel://event/kernel-bootstrapped", nil, message.Event), nil)
}

// SendProtected runs the full security pipeline described in spec §4.7:
// identity stamping, channel ACL, correlation handling, then dispatch via
// the message-system router.
func (k *Kernel) SendProtected(ctx context.Context, caller identity.PKR, m *message.Message, options map[string]any) (*router.RouteResult, error) {
	if k.Identity == "" {
		return nil, ErrKernelNotReady
	}
	if caller == "" {
		return nil, ErrCallerRequired
	}

	opts := k.stampOptions(caller, options)

	isReply := strings.HasPrefix(m.Path, responseScheme)
	if !isReply {
		if err := k.Channels.Enforce(m.Path, caller, k.Identity); err != nil {
			return nil, err
		}
	}

	m.Meta.CallerID = string(caller)
	m.Meta.CallerIDSetBy = string(k.Identity)

	if m.Meta.IsResponse {
		k.Correlation.Resolve(m.Meta.CorrelationID, m.Body)
	} else if m.Meta.RequiresResponse {
		timeout := time.Duration(m.Meta.ResponseTimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = k.defaultTimeout
		}
		if _, err := k.Correlation.Register(m.Meta.CorrelationID, timeout); err != nil {
			return nil, err
		}
	}

	return k.msgRouter.Dispatch(ctx, m, opts)
}

// AwaitResponse registers a pending response for correlationID and blocks
// (respecting ctx) until it resolves, rejects by timeout, or the kernel
// shuts down. Pair with a request message whose Meta.RequiresResponse is
// true and Meta.CorrelationID == correlationID (spec §4.6).
func (k *Kernel) AwaitResponse(ctx context.Context, correlationID string, timeout time.Duration) (any, error) {
	ch, err := k.Correlation.Register(correlationID, timeout)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-ch:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stampOptions strips any caller-supplied callerId/callerIdSetBy (warning
// in debug mode) and stamps the kernel-verified caller (spec §4.7 step 2).
func (k *Kernel) stampOptions(caller identity.PKR, options map[string]any) map[string]any {
	out := make(map[string]any, len(options)+2)
	for key, v := range options {
		if key == "callerId" || key == "callerIdSetBy" {
			if k.debug {
				k.log.Warn("kernel: stripping caller-supplied identity option", zap.String("key", key))
			}
			continue
		}
		out[key] = v
	}
	out["callerId"] = string(caller)
	out["callerIdSetBy"] = string(k.Identity)
	return out
}

// SendProtectedPooled acquires m from pool, runs SendProtected, and
// releases it on completion regardless of error — the pool never holds a
// message still live in the system (spec §4.7 Pooled protected send).
func (k *Kernel) SendProtectedPooled(ctx context.Context, pool *message.Pool, caller identity.PKR, path string, body any, typ message.Type, options map[string]any) (*router.RouteResult, error) {
	m := pool.Acquire()
	m.ID = uuid.NewString()
	m.Path = path
	m.Body = body
	m.Meta.Type = typ
	m.Meta.TraceID = message.NewTraceID()
	m.Meta.CreatedAt = time.Now()
	defer pool.Release(m)

	// An async dispatch leaves the message queued after this call returns,
	// so a copy is sent and the pooled message goes back.
	if immediate, _ := options["immediate"].(bool); !immediate {
		return k.SendProtected(ctx, caller, m.Clone(), options)
	}
	return k.SendProtected(ctx, caller, m, options)
}
