// Package system implements MessageSystem, the top-level orchestrator that
// owns the kernel, subsystem registry, message-system router, global
// scheduler and message pool (spec §4.9).
package system

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relaykernel/substrate/substrate/channel"
	"github.com/relaykernel/substrate/substrate/facet"
	"github.com/relaykernel/substrate/substrate/global"
	"github.com/relaykernel/substrate/substrate/identity"
	"github.com/relaykernel/substrate/substrate/kernel"
	"github.com/relaykernel/substrate/substrate/logging"
	"github.com/relaykernel/substrate/substrate/message"
	"github.com/relaykernel/substrate/substrate/queue"
	"github.com/relaykernel/substrate/substrate/registry"
	"github.com/relaykernel/substrate/substrate/router"
	"github.com/relaykernel/substrate/substrate/subsystem"
)

// Config gathers MessageSystem's recognized top-level construction options
// (spec §6 Configuration).
type Config struct {
	Debug bool

	SchedulerTickBudgetMs int
	SchedulerStrategy     global.Strategy

	QueueCapacity int
	QueueOverflow queue.Overflow

	ResponseDefaultTimeoutMs int
	PoolCapacity             int

	Profiles map[string]map[string]string // role -> scope -> level ("r"/"rw"/"rwg")

	Logger *logging.Logger
}

// DefaultConfig returns Config populated with spec §6's documented
// defaults.
func DefaultConfig() Config {
	return Config{
		SchedulerTickBudgetMs:    20,
		SchedulerStrategy:        global.RoundRobin,
		QueueCapacity:            1024,
		QueueOverflow:            queue.Reject,
		ResponseDefaultTimeoutMs: 5000,
		PoolCapacity:             2048,
	}
}

// MessageSystem owns every shared collaborator: the kernel, the subsystem
// registry, the message-system router, the global scheduler, and the
// message pool.
type MessageSystem struct {
	cfg Config
	log *logging.Logger

	Kernel   *kernel.Kernel
	Registry *registry.Registry
	Router   *global.Router
	Sched    *global.Scheduler
	Pool     *message.Pool

	bootstrapped bool
}

// New constructs MessageSystem without bootstrapping it; call Bootstrap
// before registering subsystems or sending traffic.
func New(cfg Config) *MessageSystem {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.QueueCapacity == 0 {
		d := DefaultConfig()
		cfg.QueueCapacity = d.QueueCapacity
	}
	if cfg.PoolCapacity == 0 {
		cfg.PoolCapacity = DefaultConfig().PoolCapacity
	}
	if cfg.ResponseDefaultTimeoutMs == 0 {
		cfg.ResponseDefaultTimeoutMs = DefaultConfig().ResponseDefaultTimeoutMs
	}
	if cfg.SchedulerTickBudgetMs == 0 {
		cfg.SchedulerTickBudgetMs = DefaultConfig().SchedulerTickBudgetMs
	}

	return &MessageSystem{
		cfg:      cfg,
		log:      cfg.Logger.With("system"),
		Registry: registry.New(),
		Pool:     message.NewPool(cfg.PoolCapacity),
	}
}

// Bootstrap builds the kernel, then the registry (already created), then
// wires the message-system router against it, then the global scheduler;
// finally emits kernel://event/kernel-bootstrapped (spec §4.9).
func (ms *MessageSystem) Bootstrap(ctx context.Context) error {
	if ms.bootstrapped {
		return fmt.Errorf("system: already bootstrapped")
	}

	principals := identity.NewRegistry()
	profiles := identity.NewProfileRegistry()
	k, err := kernel.New(principals, profiles, kernel.Options{
		DefaultTimeout: time.Duration(ms.cfg.ResponseDefaultTimeoutMs) * time.Millisecond,
		Debug:          ms.cfg.Debug,
		Logger:         ms.cfg.Logger,
	})
	if err != nil {
		return err
	}
	ms.Kernel = k

	if err := ms.Registry.Register(registry.KernelName, k.Subsystem, true); err != nil {
		return err
	}

	msr := global.NewRouter(func(scheme string) (global.Dispatchable, bool) {
		s, ok := ms.Registry.Get(scheme)
		return s, ok
	})
	ms.Router = msr
	k.SetMessageRouter(msr)

	ms.Sched = global.New(global.Options{
		Strategy:   ms.cfg.SchedulerStrategy,
		TickBudget: time.Duration(ms.cfg.SchedulerTickBudgetMs) * time.Millisecond,
		Logger:     ms.cfg.Logger,
	})

	ms.bootstrapped = true

	if _, err := k.EmitBootstrapped(ctx); err != nil {
		ms.log.Warn("system: kernel-bootstrapped event had no route", zap.Error(err))
	}
	return nil
}

// RegisterSubsystem builds s against b, records it in the registry, and
// subscribes it to the global scheduler. Emits
// kernel://event/subsystem-registered.
func (ms *MessageSystem) RegisterSubsystem(ctx context.Context, name string, s *subsystem.Subsystem, b *facet.Builder) error {
	fctx := &facet.Context{Config: map[string]any{}, Debug: ms.cfg.Debug}
	if err := s.Build(fctx, b); err != nil {
		return err
	}
	if err := ms.Registry.Register(name, s, false); err != nil {
		return err
	}
	ms.Sched.Register(name, s)

	if _, err := ms.Kernel.SendProtected(ctx, ms.Kernel.Identity, message.New("kernel://event/subsystem-registered", name, message.Event), nil); err != nil {
		ms.log.Debug("system: subsystem-registered event had no route", zap.Error(err))
	}
	return nil
}

// InitializeProfiles populates the kernel's profile registry before any
// traffic begins (spec §4.9, §6).
func (ms *MessageSystem) InitializeProfiles(roles map[string]map[string]string) {
	for role, scopes := range roles {
		levels := make(map[string]identity.Level, len(scopes))
		for scope, lvl := range scopes {
			levels[scope] = identity.ParseLevel(lvl)
		}
		ms.Kernel.Profiles.Register(role, &identity.SecurityProfile{Name: role, Scopes: levels})
	}
}

// Send normalizes path/body/options into a Message and dispatches it via
// the message-system router, bypassing kernel protected-send machinery —
// use SendProtected (via Kernel) for caller-stamped delivery.
func (ms *MessageSystem) Send(ctx context.Context, path string, body any, typ message.Type, options map[string]any) (*router.RouteResult, error) {
	m := message.New(path, body, typ)
	return ms.Router.Dispatch(ctx, m, options)
}

// SendPooled acquires a Message from the pool, sends it, and releases it on
// completion regardless of error (spec §4.9).
func (ms *MessageSystem) SendPooled(ctx context.Context, path string, body any, typ message.Type, options map[string]any) (*router.RouteResult, error) {
	m := ms.Pool.Acquire()
	m.ID = message.NewCorrelationID()
	m.Path = path
	m.Body = body
	m.Meta.Type = typ
	m.Meta.TraceID = message.NewTraceID()
	m.Meta.CreatedAt = time.Now()
	defer ms.Pool.Release(m)

	// An async dispatch leaves the message queued after this call returns,
	// so the queue receives a copy and the pooled message goes back.
	if immediate, _ := options["immediate"].(bool); !immediate {
		return ms.Router.Dispatch(ctx, m.Clone(), options)
	}
	return ms.Router.Dispatch(ctx, m, options)
}

// CreateChannel registers a channel at route with the given participants
// (spec §4.6).
func (ms *MessageSystem) CreateChannel(route string, participants ...identity.PKR) *channel.Channel {
	return ms.Kernel.Channels.Create(route, participants...)
}

// Start launches the global scheduler loop. Must be called explicitly
// after Bootstrap (spec §9 Open Questions).
func (ms *MessageSystem) Start(ctx context.Context) {
	ms.Sched.Start(ctx)
}

// Stop requests scheduler termination and blocks until the loop exits.
func (ms *MessageSystem) Stop() error {
	return ms.Sched.Stop()
}
