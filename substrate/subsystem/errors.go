package subsystem

import "fmt"

// DisposedError is returned by operations attempted against a disposed
// subsystem.
type DisposedError struct{ Name string }

func (e *DisposedError) Error() string { return fmt.Sprintf("subsystem %q: disposed", e.Name) }

// NotBuiltError reports an operation against a subsystem that has not been
// built. Find and ProcessTick do not return it: before Build, Find reports
// false and ProcessTick reports no work done.
type NotBuiltError struct{ Name string }

func (e *NotBuiltError) Error() string { return fmt.Sprintf("subsystem %q: not built", e.Name) }

// NoRouterError is returned when a subsystem has no installed "router"
// facet at invocation time.
type NoRouterError struct{ Name string }

func (e *NoRouterError) Error() string {
	return fmt.Sprintf("subsystem %q: no router facet installed", e.Name)
}
