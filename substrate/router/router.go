// Package router implements the per-subsystem path router: pattern
// registration, static/dynamic matching with a bounded LRU of positive
// matches, scope-enforced route invocation, and the overwrite/decorator
// mechanism handlers use to wrap the router facet itself (spec §4.2).
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/relaykernel/substrate/substrate/logging"
	"github.com/relaykernel/substrate/substrate/message"
	"github.com/relaykernel/substrate/substrate/path"
)

// Handler is a route's invocation target. params holds captured path
// segments; options carries the caller-supplied delivery options minus
// any kernel-only fields the router has already stripped.
type Handler func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error)

// ScopeFunc derives the scope string enforced for a message, when a route's
// scope is a function of the message rather than a literal.
type ScopeFunc func(msg *message.Message) string

// ScopeEnforcer is implemented by whatever identity/RWS layer the router is
// wired to (typically the kernel's access-control facet). The router calls
// it before invoking the handler whenever a route declares RequiredPermission
// and Scope (spec §4.7: the scope check runs before any RWS check).
type ScopeEnforcer interface {
	CheckScope(callerID, scope, required string) error
}

// Route is a registered pattern plus its handler and optional scope
// metadata.
type Route struct {
	Pattern            *path.Pattern
	Handler            Handler
	RequiredPermission string
	Scope              string
	ScopeFn            ScopeFunc
}

// Router holds one subsystem's static and dynamic route tables plus the
// positive-match cache. It is not safe for concurrent registration and
// matching; the single-executor model (spec §5) serializes both.
type Router struct {
	static   map[string]*Route
	dynamic  []*Route
	cache    *matchCache
	enforcer ScopeEnforcer
	log      *logging.Logger
}

// Options configures a new Router.
type Options struct {
	CacheCapacity int
	Enforcer      ScopeEnforcer
	Logger        *logging.Logger
}

// New creates an empty Router. CacheCapacity defaults to 1024 (spec §4.2).
func New(opts Options) *Router {
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = 1024
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Router{
		static:   make(map[string]*Route),
		cache:    newMatchCache(opts.CacheCapacity),
		enforcer: opts.Enforcer,
		log:      opts.Logger,
	}
}

// RegisterOptions carries optional scope metadata for a Register call.
type RegisterOptions struct {
	RequiredPermission string
	Scope              string
	ScopeFn            ScopeFunc
}

// Register compiles and installs a pattern. Duplicate exact patterns: last
// writer wins, with a warning (spec §4.2).
func (r *Router) Register(raw string, h Handler, opts RegisterOptions) error {
	p, err := path.CompilePattern(raw)
	if err != nil {
		return err
	}
	route := &Route{
		Pattern:            p,
		Handler:            h,
		RequiredPermission: opts.RequiredPermission,
		Scope:              opts.Scope,
		ScopeFn:            opts.ScopeFn,
	}

	if p.IsStatic() {
		if _, exists := r.static[raw]; exists {
			r.log.Warn("router: overwriting duplicate static route", zap.String("path", raw))
		}
		r.static[raw] = route
	} else {
		r.dynamic = append(r.dynamic, route)
	}
	r.cache.invalidate()
	return nil
}

// Overwrite replaces the route registered for raw with a new Handler that
// wraps the previous one, implementing the decorator chain used to layer
// e.g. scope-checking wrappers (spec §4.2, §9).
func (r *Router) Overwrite(raw string, wrap func(prev Handler) Handler) error {
	route, _, ok := r.lookupExact(raw)
	if !ok {
		return &NoRouteError{Path: raw}
	}
	wrapped := *route
	wrapped.Handler = wrap(route.Handler)
	if route.Pattern.IsStatic() {
		r.static[raw] = &wrapped
	} else {
		for i, d := range r.dynamic {
			if d == route {
				r.dynamic[i] = &wrapped
				break
			}
		}
	}
	r.cache.invalidate()
	return nil
}

func (r *Router) lookupExact(raw string) (*Route, map[string]string, bool) {
	if route, ok := r.static[raw]; ok {
		return route, map[string]string{}, true
	}
	for _, route := range r.dynamic {
		if route.Pattern.Raw() == raw {
			if params, ok := route.Pattern.Match(raw); ok {
				return route, params, true
			}
		}
	}
	return nil, nil, false
}

// Match resolves rawPath to a route and its captured params, consulting the
// static table, then the LRU cache, then the dynamic list in order.
func (r *Router) Match(rawPath string) (*Route, map[string]string, bool) {
	if route, ok := r.static[rawPath]; ok {
		return route, map[string]string{}, true
	}
	if route, params, ok := r.cache.get(rawPath); ok {
		return route, params, true
	}
	for _, route := range r.dynamic {
		if params, ok := route.Pattern.Match(rawPath); ok {
			r.cache.put(rawPath, route, params)
			return route, params, true
		}
	}
	return nil, nil, false
}

// RouteResult is the outcome of Route.
type RouteResult struct {
	Value any
}

// Route performs the full route() operation described in spec §4.2: match,
// optional scope enforcement, strip callerIdSetBy, invoke handler.
func (r *Router) Route(ctx context.Context, msg *message.Message, options map[string]any) (*RouteResult, error) {
	route, params, ok := r.Match(msg.Path)
	if !ok {
		return nil, &NoRouteError{Path: msg.Path}
	}

	if route.RequiredPermission != "" && (route.Scope != "" || route.ScopeFn != nil) {
		scope := route.Scope
		if route.ScopeFn != nil {
			scope = route.ScopeFn(msg)
		}
		callerID, _ := options["callerId"].(string)
		if r.enforcer != nil {
			if err := r.enforcer.CheckScope(callerID, scope, route.RequiredPermission); err != nil {
				return nil, err
			}
		}
	}

	handlerOptions := stripCallerIDSetBy(options)

	var v any
	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("handler panic: %v", p)
			}
		}()
		v, err = route.Handler(ctx, msg, params, handlerOptions)
	}()
	if err != nil {
		return nil, &HandlerError{Cause: err}
	}
	return &RouteResult{Value: v}, nil
}

// stripCallerIDSetBy returns a shallow copy of options with callerIdSetBy
// removed — it must never be visible to handler code (spec §8 invariant 4).
func stripCallerIDSetBy(options map[string]any) map[string]any {
	if options == nil {
		return nil
	}
	out := make(map[string]any, len(options))
	for k, v := range options {
		if k == "callerIdSetBy" {
			continue
		}
		out[k] = v
	}
	return out
}
