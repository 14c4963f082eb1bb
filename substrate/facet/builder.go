package facet

import (
	"container/heap"

	"go.uber.org/multierr"
)

// Builder accumulates pending hooks for a single subsystem build and runs
// the composition algorithm described in spec §4.1: dependency graph,
// cycle detection, stable topological sort, ordered fn invocation,
// contract validation, and atomic rollback on failure.
type Builder struct {
	hooks     []*Hook
	contracts map[string]*Contract
	cache     *GraphCache
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{contracts: make(map[string]*Contract)}
}

// Use appends a pending hook, in insertion order.
func (b *Builder) Use(h *Hook) *Builder {
	b.hooks = append(b.hooks, h)
	return b
}

// RegisterContract makes a named Contract available to hooks that declare
// Hook.Contract == c.Name.
func (b *Builder) RegisterContract(c *Contract) *Builder {
	b.contracts[c.Name] = c
	return b
}

// WithCache attaches a GraphCache shared across builds (e.g. one per
// MessageSystem) so repeated identical hook sets skip recomputing the
// topological order.
func (b *Builder) WithCache(c *GraphCache) *Builder {
	b.cache = c
	return b
}

// Result is the outcome of a successful Build: the merged facet map and
// the order in which newly-installed facets were added (used by the
// caller to extend its reverse-dispose order).
type Result struct {
	Facets      map[string]*Facet
	Installed   []string // kinds installed by this build, in install order
}

// Build runs the composition engine against existing (the subsystem's
// pre-build facet map, possibly empty) and returns either a Result or an
// error. On error, existing is returned completely untouched — no partial
// state is ever visible via Find (spec §8 invariant 2).
func (b *Builder) Build(ctx *Context, subsystemName string, existing map[string]*Facet) (*Result, error) {
	if len(b.hooks) == 0 {
		return &Result{Facets: cloneFacets(existing)}, nil
	}

	order, err := b.resolveOrder(subsystemName)
	if err != nil {
		return nil, err
	}

	working := cloneFacets(existing)
	installedOrder := make([]string, 0, len(order))
	initialized := make([]*Facet, 0, len(order))

	rollback := func(cause error) (*Result, error) {
		var disposeErr error
		for i := len(initialized) - 1; i >= 0; i-- {
			f := initialized[i]
			if f.OnDispose == nil {
				continue
			}
			if derr := f.OnDispose(); derr != nil {
				disposeErr = multierr.Append(disposeErr, derr)
			}
		}
		if disposeErr != nil {
			return nil, multierr.Append(cause, disposeErr)
		}
		return nil, cause
	}

	for _, idx := range order {
		h := b.hooks[idx]
		api := newAPI(subsystemName, working)

		f, err := h.Fn(ctx, api, subsystemName)
		if err != nil {
			return rollback(&HookFailureError{Kind: h.Kind, Cause: err})
		}
		if f.Kind == "" {
			f.Kind = h.Kind
		}
		f.Attach = f.Attach || h.Attach

		if h.Contract != "" {
			c, ok := b.contracts[h.Contract]
			if !ok {
				return rollback(&HookFailureError{Kind: h.Kind, Cause: &ContractViolationError{
					FacetKind: h.Kind, ContractName: h.Contract, Reason: "contract not registered",
				}})
			}
			if err := checkContract(ctx, api, subsystemName, c, f); err != nil {
				return rollback(&HookFailureError{Kind: h.Kind, Cause: err})
			}
		}

		working[h.Kind] = f
		installedOrder = append(installedOrder, h.Kind)
	}

	// Run onInit in installation order; roll back on first failure.
	for _, kind := range installedOrder {
		f := working[kind]
		if f.OnInit != nil {
			if err := f.OnInit(); err != nil {
				return rollback(&HookFailureError{Kind: kind, Cause: err})
			}
		}
		initialized = append(initialized, f)
	}

	return &Result{Facets: working, Installed: installedOrder}, nil
}

func cloneFacets(m map[string]*Facet) map[string]*Facet {
	out := make(map[string]*Facet, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// resolveOrder computes (or retrieves from cache) a valid topological
// order over b.hooks, stably tie-broken by insertion order.
func (b *Builder) resolveOrder(subsystemName string) ([]int, error) {
	key := cacheKey(b.hooks)
	if cached, ok := b.cache.lookup(key); ok {
		return cached, nil
	}

	n := len(b.hooks)
	// producer[kind] = index of the last hook declaring that kind.
	producer := make(map[string]int, n)
	for i, h := range b.hooks {
		producer[h.Kind] = i
	}

	// deps[i] = set of indices that must run before i.
	deps := make([][]int, n)
	for i, h := range b.hooks {
		for _, req := range h.Required {
			pi, ok := producer[req]
			if !ok {
				return nil, &MissingDependencyError{Kind: req, NeededBy: h.Kind, Subsystem: subsystemName}
			}
			if pi == i {
				continue
			}
			deps[i] = append(deps[i], pi)
		}
	}

	order, cyc := stableTopoSort(n, deps)
	if cyc != nil {
		cycle := make([]string, len(cyc.idxs))
		for i, idx := range cyc.idxs {
			cycle[i] = b.hooks[idx].Kind
		}
		return nil, &CyclicDependencyError{Kinds: cycle, Subsystem: subsystemName}
	}

	b.cache.store(key, order)
	return order, nil
}

// cyclicIdxError is an internal sentinel carrying raw indices; resolveOrder
// translates it into the public CyclicDependencyError with kind names.
type cyclicIdxError struct{ idxs []int }

func (e *cyclicIdxError) Error() string { return "facet: cyclic dependency" }

// stableTopoSort runs Kahn's algorithm with a min-heap over ready indices
// so ties break by insertion order, satisfying spec §8 invariant 8 (a
// valid linear extension of the DAG).
func stableTopoSort(n int, deps [][]int) ([]int, *cyclicIdxError) {
	indegree := make([]int, n)
	dependents := make([][]int, n)
	for i, ds := range deps {
		indegree[i] = len(ds)
		for _, d := range ds {
			dependents[d] = append(dependents[d], i)
		}
	}

	ready := &intHeap{}
	heap.Init(ready)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]int, 0, n)
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, i)
		for _, dep := range dependents[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				heap.Push(ready, dep)
			}
		}
	}

	if len(order) != n {
		remaining := make([]int, 0, n-len(order))
		seen := make(map[int]bool, len(order))
		for _, i := range order {
			seen[i] = true
		}
		for i := 0; i < n; i++ {
			if !seen[i] {
				remaining = append(remaining, i)
			}
		}
		return nil, &cyclicIdxError{idxs: remaining}
	}
	return order, nil
}

type intHeap []int

func (h intHeap) Len() int            { return len(h) }
func (h intHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)         { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
