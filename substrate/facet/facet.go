// Package facet implements substrate's composition engine: Hook, Facet,
// Contract and Builder. Given a subsystem's ordered list of pending hooks
// it produces an initialized facet map that satisfies declared
// dependencies, validates optional contracts, and either fully succeeds or
// leaves the subsystem's facet map exactly as it was before the build
// (spec §4.1).
package facet

// Facet is a named capability installed into a subsystem by a Hook. Value
// holds the concrete capability implementation (e.g. a *router.Router);
// the composition engine itself never inspects it beyond contract checks.
type Facet struct {
	Kind   string
	Value  any
	Attach bool

	// OnInit runs once, in installation order, after every facet in the
	// build has been registered. OnDispose runs in reverse order on
	// subsystem disposal, or during rollback of a failed build.
	OnInit    func() error
	OnDispose func() error
}

// Contract is a declarative constraint on a facet's surface, validated
// only at build time — contracts never participate in hot paths (spec
// §4.1).
type Contract struct {
	Name               string
	RequiredMethods    []string
	RequiredProperties []string
	Validate           func(ctx *Context, api *API, subsystem string, f *Facet) error
}

// MethodSet and PropertySet let a Facet's Value advertise which method and
// property names it exposes, so contracts can be checked without
// reflection. A facet whose Value does not implement these interfaces is
// treated as exposing no methods/properties for contract purposes.
type MethodSet interface{ Methods() []string }
type PropertySet interface{ Properties() []string }

func methodsOf(v any) []string {
	if ms, ok := v.(MethodSet); ok {
		return ms.Methods()
	}
	return nil
}

func propertiesOf(v any) []string {
	if ps, ok := v.(PropertySet); ok {
		return ps.Properties()
	}
	return nil
}

func contains(set []string, needle string) bool {
	for _, s := range set {
		if s == needle {
			return true
		}
	}
	return false
}

// checkContract validates f against c, returning a ContractViolationError
// describing the first failure found.
func checkContract(ctx *Context, api *API, subsystem string, c *Contract, f *Facet) error {
	methods := methodsOf(f.Value)
	for _, m := range c.RequiredMethods {
		if !contains(methods, m) {
			return &ContractViolationError{FacetKind: f.Kind, ContractName: c.Name,
				Reason: "missing required method " + m}
		}
	}
	props := propertiesOf(f.Value)
	for _, p := range c.RequiredProperties {
		if !contains(props, p) {
			return &ContractViolationError{FacetKind: f.Kind, ContractName: c.Name,
				Reason: "missing required property " + p}
		}
	}
	if c.Validate != nil {
		if err := c.Validate(ctx, api, subsystem, f); err != nil {
			return &ContractViolationError{FacetKind: f.Kind, ContractName: c.Name, Reason: err.Error()}
		}
	}
	return nil
}
