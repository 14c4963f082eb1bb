package facet

import "fmt"

// MissingDependencyError reports that no installed hook produces a kind
// some other hook's Required[] lists (spec §4.1).
type MissingDependencyError struct {
	Kind       string
	NeededBy   string
	Subsystem  string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("facet: subsystem %q: hook %q requires missing facet kind %q",
		e.Subsystem, e.NeededBy, e.Kind)
}

// CyclicDependencyError names every kind the build's topological sort could
// not order: the kinds in the cycle plus any kinds that depend on them.
type CyclicDependencyError struct {
	Kinds     []string
	Subsystem string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("facet: subsystem %q: cyclic dependency among kinds %v", e.Subsystem, e.Kinds)
}

// ContractViolationError reports that a facet's surface failed the
// contract declared by the hook that produced it.
type ContractViolationError struct {
	FacetKind    string
	ContractName string
	Reason       string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("facet: facet %q violates contract %q: %s", e.FacetKind, e.ContractName, e.Reason)
}

// HookFailureError wraps the error returned by a hook's fn, or a contract
// lookup failure, triggering rollback of the whole build.
type HookFailureError struct {
	Kind  string
	Cause error
}

func (e *HookFailureError) Error() string {
	return fmt.Sprintf("facet: hook %q failed: %v", e.Kind, e.Cause)
}

func (e *HookFailureError) Unwrap() error { return e.Cause }
