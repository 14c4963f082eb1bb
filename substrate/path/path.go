// Package path implements the message path grammar: scheme "://" route,
// where scheme matches [a-z][a-z0-9-]* and route is a "/"-separated list
// of literal, "{name}" single-segment capture, or a trailing "*"
// any-suffix wildcard segment (spec §3/§6).
package path

import (
	"fmt"
	"regexp"
	"strings"
)

var schemeRE = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Path is a parsed message path: the subsystem scheme plus its route
// segments.
type Path struct {
	Scheme   string
	Segments []string
}

// Parse splits raw into scheme and route segments, validating the scheme
// grammar. Route segments are not validated against any pattern grammar
// here — that only applies to registered patterns (see Pattern).
func Parse(raw string) (*Path, error) {
	scheme, route, ok := strings.Cut(raw, "://")
	if !ok {
		return nil, fmt.Errorf("path: missing scheme separator in %q", raw)
	}
	if !schemeRE.MatchString(scheme) {
		return nil, fmt.Errorf("path: invalid scheme %q", scheme)
	}
	route = strings.TrimPrefix(route, "/")
	var segments []string
	if route != "" {
		segments = strings.Split(route, "/")
	}
	return &Path{Scheme: scheme, Segments: segments}, nil
}

// Scheme extracts just the scheme portion of raw without fully parsing the
// route, used by the message-system router's fast dispatch path.
func Scheme(raw string) (string, error) {
	scheme, _, ok := strings.Cut(raw, "://")
	if !ok {
		return "", fmt.Errorf("path: missing scheme separator in %q", raw)
	}
	if !schemeRE.MatchString(scheme) {
		return "", fmt.Errorf("path: invalid scheme %q", scheme)
	}
	return scheme, nil
}

// String formats the Path back into its canonical "scheme://seg/seg" form.
// Parse(p.String()) round-trips to an equal Path (spec §8 invariant 7).
func (p *Path) String() string {
	var b strings.Builder
	b.WriteString(p.Scheme)
	b.WriteString("://")
	b.WriteString(strings.Join(p.Segments, "/"))
	return b.String()
}

// Equal reports whether two parsed paths are identical.
func (p *Path) Equal(o *Path) bool {
	if o == nil || p.Scheme != o.Scheme || len(p.Segments) != len(o.Segments) {
		return false
	}
	for i := range p.Segments {
		if p.Segments[i] != o.Segments[i] {
			return false
		}
	}
	return true
}

// Join builds a canonical path string from a scheme and segments, the
// inverse of Parse, for callers that synthesize paths rather than parse
// them.
func Join(scheme string, segments ...string) string {
	return scheme + "://" + strings.Join(segments, "/")
}
