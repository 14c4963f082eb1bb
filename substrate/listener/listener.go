// Package listener implements a subsystem's pub/sub manager: pattern-based
// subscriptions compiled once at subscription time, dispatched in
// subscription order, with per-subscription removal policies (spec §4.8).
package listener

import (
	"github.com/relaykernel/substrate/substrate/message"
	"github.com/relaykernel/substrate/substrate/path"
)

// Policy controls when a subscription is auto-removed.
type Policy int

const (
	// Multiple never auto-removes; any number of subscriptions may share a
	// pattern.
	Multiple Policy = iota
	// Single replaces any prior subscription registered at the same
	// pattern.
	Single
	// OnceSuccess auto-removes after the first invocation that returns a
	// nil error.
	OnceSuccess
	// OnceFailure auto-removes after the first invocation that returns a
	// non-nil error.
	OnceFailure
)

// Handler receives a matched event message and its captured path params.
type Handler func(msg *message.Message, params map[string]string) error

// Subscription is one compiled pattern plus its handler and policy.
type Subscription struct {
	pattern *path.Pattern
	handler Handler
	policy  Policy
	removed bool
}

// Manager dispatches emitted messages to matching subscriptions, in
// subscription order (spec §4.8).
type Manager struct {
	subs []*Subscription

	Errored uint64
}

// New creates an empty Manager.
func New() *Manager { return &Manager{} }

// On compiles pattern and registers handler under policy. Single replaces
// any existing subscription at the same exact pattern string.
func (m *Manager) On(pattern string, handler Handler, policy Policy) error {
	p, err := path.CompilePattern(pattern)
	if err != nil {
		return err
	}
	sub := &Subscription{pattern: p, handler: handler, policy: policy}

	if policy == Single {
		for i, existing := range m.subs {
			if !existing.removed && existing.pattern.Raw() == pattern {
				m.subs[i] = sub
				return nil
			}
		}
	}
	m.subs = append(m.subs, sub)
	return nil
}

// Off removes every live subscription registered at the exact pattern
// string.
func (m *Manager) Off(pattern string) {
	for _, s := range m.subs {
		if s.pattern.Raw() == pattern {
			s.removed = true
		}
	}
}

// Emit dispatches msg to every subscription whose pattern matches path, in
// subscription order. A handler error does not stop dispatch to the
// remaining subscriptions; it is counted in Errored (spec §4.8).
func (m *Manager) Emit(rawPath string, msg *message.Message) {
	live := m.subs[:0:0]
	for _, s := range m.subs {
		if s.removed {
			continue
		}
		params, ok := s.pattern.Match(rawPath)
		if !ok {
			live = append(live, s)
			continue
		}

		err := s.handler(msg, params)
		if err != nil {
			m.Errored++
		}

		switch s.policy {
		case OnceSuccess:
			if err == nil {
				continue // dropped: do not re-add to live
			}
		case OnceFailure:
			if err != nil {
				continue
			}
		}
		live = append(live, s)
	}
	m.compact(live)
}

// compact replaces the backing slice, dropping tombstoned entries so Emit's
// scan cost stays proportional to live subscriptions.
func (m *Manager) compact(live []*Subscription) {
	m.subs = live
}
