package kernel

import (
	"github.com/relaykernel/substrate/substrate/identity"
	"github.com/relaykernel/substrate/substrate/router"
)

// AccessControl adapts identity.Registry + identity.ProfileRegistry to
// router.ScopeEnforcer, wiring spec §4.7's scope-check algorithm into every
// subsystem router that enables it (spec §4.2 route invocation step 2).
type AccessControl struct {
	Registry *identity.Registry
	Profiles *identity.ProfileRegistry
}

// CheckScope implements router.ScopeEnforcer.
func (a *AccessControl) CheckScope(callerID, scope, required string) error {
	level := identity.ParseLevel(required)
	got, ok := identity.CheckScope(a.Registry, a.Profiles, identity.PKR(callerID), scope, level)
	if !ok {
		return &ScopeDeniedError{Scope: scope, Required: required, Got: got.String()}
	}
	return nil
}
