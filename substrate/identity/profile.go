package identity

import "sync"

// SecurityProfile maps scope identifiers to the permission level a role
// holding this profile is granted (spec §4.7).
type SecurityProfile struct {
	Name   string
	Scopes map[string]Level
}

// ProfileRegistry maps role name to SecurityProfile. Populated once via
// MessageSystem.initializeProfiles before traffic begins (spec §4.9, §6).
type ProfileRegistry struct {
	mu       sync.RWMutex
	profiles map[string]*SecurityProfile
}

// NewProfileRegistry creates an empty ProfileRegistry.
func NewProfileRegistry() *ProfileRegistry {
	return &ProfileRegistry{profiles: make(map[string]*SecurityProfile)}
}

// Register installs or replaces the profile for a role.
func (p *ProfileRegistry) Register(role string, profile *SecurityProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[role] = profile
}

// Get returns the profile registered for role, if any.
func (p *ProfileRegistry) Get(role string) (*SecurityProfile, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pr, ok := p.profiles[role]
	return pr, ok
}

// CheckScope implements the scope-check algorithm of spec §4.7: resolve the
// caller's role, its profile, the level the profile grants for scope, and
// permit iff that level is at least required. It runs before any RWS check
// performed by handler code.
func CheckScope(registry *Registry, profiles *ProfileRegistry, callerID PKR, scope string, required Level) (granted Level, ok bool) {
	principal, found := registry.PrincipalOf(callerID)
	if !found {
		return LevelNone, false
	}
	profile, found := profiles.Get(principal.Role)
	if !found {
		return LevelNone, false
	}
	level := profile.Scopes[scope]
	return level, level >= required
}
