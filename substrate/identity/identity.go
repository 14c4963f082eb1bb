// Package identity implements PKR identity, the per-principal RWS
// (reader/writer/granter) set, and security profiles mapping role to
// scope-level permissions (spec §4.7).
package identity

import "github.com/google/uuid"

// PKR is an immutable identity reference (Public Key Record).
type PKR string

// NewPKR mints a fresh, process-unique PKR.
func NewPKR() PKR { return PKR(uuid.NewString()) }

// Level is a scope permission level; higher covers lower (spec §4.7:
// r < rw < rwg).
type Level int

const (
	LevelNone Level = iota
	LevelRead
	LevelReadWrite
	LevelReadWriteGrant
)

// ParseLevel converts a permission level string to a Level. SecurityProfile
// scopes use the compact wire form ("r", "rw", "rwg"); route metadata's
// requiredPermission uses the spelled-out form (spec §3: "read", "write",
// "grant"). Both vocabularies name the same three levels, so both are
// accepted here rather than forcing every caller to translate first.
func ParseLevel(s string) Level {
	switch s {
	case "r", "read":
		return LevelRead
	case "rw", "write":
		return LevelReadWrite
	case "rwg", "grant":
		return LevelReadWriteGrant
	default:
		return LevelNone
	}
}

func (l Level) String() string {
	switch l {
	case LevelRead:
		return "r"
	case LevelReadWrite:
		return "rw"
	case LevelReadWriteGrant:
		return "rwg"
	default:
		return "none"
	}
}

// Principal is an identity with an optional role and the scope-level
// metadata security profiles record against it.
type Principal struct {
	PKR    PKR
	Role   string
	Scopes map[string]Level
}

func newPrincipal(pkr PKR) *Principal {
	return &Principal{PKR: pkr, Scopes: make(map[string]Level)}
}

// RWS is the reader/writer/granter set attached to one target principal.
type RWS struct {
	Readers  map[PKR]bool
	Writers  map[PKR]bool
	Granters map[PKR]bool
}

func newRWS() *RWS {
	return &RWS{Readers: map[PKR]bool{}, Writers: map[PKR]bool{}, Granters: map[PKR]bool{}}
}

func (r *RWS) canRead(pkr PKR) bool  { return r.Readers[pkr] || r.Writers[pkr] || r.Granters[pkr] }
func (r *RWS) canWrite(pkr PKR) bool { return r.Writers[pkr] || r.Granters[pkr] }
func (r *RWS) canGrant(pkr PKR) bool { return r.Granters[pkr] }
