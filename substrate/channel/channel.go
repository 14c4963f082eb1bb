// Package channel implements a pre-created participant list with a stable
// route: a channel's membership is its ACL (spec §4.6, §4.7).
package channel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/relaykernel/substrate/substrate/identity"
)

// ForbiddenError reports a sendProtected attempt by a non-participant,
// non-kernel caller (spec §4.7 Failure modes: ChannelForbidden).
type ForbiddenError struct {
	Route  string
	Caller identity.PKR
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("channel: %s forbidden on route %q", e.Caller, e.Route)
}

// Channel is a named route with an explicit participant list.
type Channel struct {
	Route        string
	Participants map[identity.PKR]bool
	Metadata     map[string]any
}

// Manager holds every channel registered across the message system, keyed
// by route.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewManager creates an empty channel manager.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]*Channel)}
}

// Create registers a new channel at route with the given initial
// participants.
func (m *Manager) Create(route string, participants ...identity.PKR) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[identity.PKR]bool, len(participants))
	for _, p := range participants {
		set[p] = true
	}
	ch := &Channel{Route: route, Participants: set, Metadata: map[string]any{}}
	m.channels[route] = ch
	return ch
}

// Get returns the channel registered at route, if any.
func (m *Manager) Get(route string) (*Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[route]
	return ch, ok
}

// AddParticipant adds pkr to the channel at route.
func (m *Manager) AddParticipant(route string, pkr identity.PKR) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[route]
	if !ok {
		return fmt.Errorf("channel: unknown route %q", route)
	}
	ch.Participants[pkr] = true
	return nil
}

// RemoveParticipant removes pkr from the channel at route.
func (m *Manager) RemoveParticipant(route string, pkr identity.PKR) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[route]
	if !ok {
		return fmt.Errorf("channel: unknown route %q", route)
	}
	delete(ch.Participants, pkr)
	return nil
}

// Enforce checks route's ACL for caller: membership or kernel identity
// grants access; anything else fails with ForbiddenError. Routes with no
// registered channel, directly or as a sub-path of one, are not subject to
// ACL enforcement (spec §4.7 step 4: enforcement applies only "if the
// target path is a registered channel route"). A channel's route is its
// stable path root (spec §8 scenario S6): a message to a sub-path of that
// root (e.g. a channel at "chat://room/1" enforcing "chat://room/1/msg")
// is enforced against it too. When more than one registered channel's
// route is a prefix of the message path, the longest (most specific) one
// wins.
func (m *Manager) Enforce(route string, caller, kernelPKR identity.PKR) error {
	m.mu.RLock()
	ch := m.matchLocked(route)
	m.mu.RUnlock()
	if ch == nil {
		return nil
	}
	if caller == kernelPKR || ch.Participants[caller] {
		return nil
	}
	return &ForbiddenError{Route: ch.Route, Caller: caller}
}

// matchLocked returns the most specific registered channel whose route
// equals route or is a path-segment prefix of it. Callers must hold at
// least a read lock on m.mu.
func (m *Manager) matchLocked(route string) *Channel {
	var best *Channel
	for r, ch := range m.channels {
		if r != route && !strings.HasPrefix(route, r+"/") {
			continue
		}
		if best == nil || len(r) > len(best.Route) {
			best = ch
		}
	}
	return best
}
