package path

import (
	"fmt"
	"strings"
)

// segmentKind tags a compiled pattern segment. Hot-path matching switches
// over this tagged variant instead of re-parsing text per spec §9's
// "dynamic dispatch over many facet kinds" note applied here to pattern
// segments: a small enum plus precompiled data, never a regex built at
// dispatch time.
type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam
	segWildcard
)

type segment struct {
	kind  segmentKind
	value string // literal text, or the {name} capture name
}

// Pattern is a precompiled route pattern: a scheme plus a sequence of
// literal/param/wildcard segments. Patterns are compiled once at
// registration time and cached by the router/listener; never recompiled
// at match time (spec §9).
type Pattern struct {
	raw      string
	scheme   string
	segments []segment
	static   bool
}

// CompilePattern parses and compiles a full "scheme://route" pattern.
func CompilePattern(raw string) (*Pattern, error) {
	p, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	segments := make([]segment, 0, len(p.Segments))
	static := true
	for i, seg := range p.Segments {
		switch {
		case seg == "*":
			if i != len(p.Segments)-1 {
				return nil, fmt.Errorf("path: wildcard %q only allowed as the last segment", raw)
			}
			segments = append(segments, segment{kind: segWildcard})
			static = false
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") && len(seg) > 2:
			name := seg[1 : len(seg)-1]
			segments = append(segments, segment{kind: segParam, value: name})
			static = false
		default:
			segments = append(segments, segment{kind: segLiteral, value: seg})
		}
	}

	return &Pattern{raw: raw, scheme: p.Scheme, segments: segments, static: static}, nil
}

// Scheme returns the pattern's subsystem scheme.
func (p *Pattern) Scheme() string { return p.scheme }

// Raw returns the original pattern string, used as the static-table key
// and for duplicate-registration warnings.
func (p *Pattern) Raw() string { return p.raw }

// IsStatic reports whether the pattern contains no param/wildcard
// segments, i.e. it belongs in the router's constant-time static table.
func (p *Pattern) IsStatic() bool { return p.static }

// Match attempts to match path against the pattern, returning captured
// params on success.
func (p *Pattern) Match(raw string) (map[string]string, bool) {
	target, err := Parse(raw)
	if err != nil || target.Scheme != p.scheme {
		return nil, false
	}

	params := map[string]string{}
	ts := target.Segments
	for i, seg := range p.segments {
		switch seg.kind {
		case segWildcard:
			// Wildcard consumes the remainder, including zero segments.
			params["*"] = strings.Join(ts[i:], "/")
			return params, true
		case segParam:
			if i >= len(ts) {
				return nil, false
			}
			params[seg.value] = ts[i]
		default: // segLiteral
			if i >= len(ts) || ts[i] != seg.value {
				return nil, false
			}
		}
	}
	if len(p.segments) != len(ts) {
		return nil, false
	}
	return params, true
}
