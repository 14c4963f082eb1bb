package facet

// Context is the immutable, per-build value passed to every hook's fn. It
// never changes across a single Builder.Build call.
type Context struct {
	Config map[string]any
	Debug  bool
	Parent string // hierarchical name of the parent subsystem, if any
	Cache  *GraphCache
}

// API exposes the facets already installed earlier in the current build's
// topological order (a read-only view — hooks cannot mutate it) plus the
// subsystem's own public identity (its hierarchical name).
type API struct {
	Identity  string
	installed map[string]*Facet
}

// Find returns the facet of the given kind if it has been installed so
// far in this build (or, outside a build, the subsystem's current facet
// map — see subsystem.Subsystem.Find).
func (a *API) Find(kind string) (*Facet, bool) {
	f, ok := a.installed[kind]
	return f, ok
}

func newAPI(identity string, installed map[string]*Facet) *API {
	return &API{Identity: identity, installed: installed}
}

// HookFn produces a Facet given the build context, the read-only API of
// facets installed so far, and the owning subsystem's identity.
type HookFn func(ctx *Context, api *API, subsystem string) (*Facet, error)

// Hook is factory metadata: a named capability producer plus its declared
// dependency edges (spec §3/§6 Hook metadata ABI).
type Hook struct {
	Kind      string
	Required  []string
	Attach    bool
	Overwrite bool
	Contract  string // name of a Contract registered on the Builder, or ""
	Fn        HookFn

	// Source distinguishes independently-authored hooks that happen to
	// share Kind (used only to build a stable GraphCache key); defaults
	// to Kind if left empty.
	Source string
}

func (h *Hook) source() string {
	if h.Source != "" {
		return h.Source
	}
	return h.Kind
}
