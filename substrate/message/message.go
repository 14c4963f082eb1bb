// Package message defines the immutable envelope that every subsystem,
// router, queue and scheduler in substrate operates on: {id, path, body,
// meta}. Meta carries the fixed, immutable-once-set fields (traceId,
// createdAt, type) alongside the fields only the kernel may mutate
// (callerId, callerIdSetBy, correlationId, replyTo, isResponse,
// requiresResponse, responseTimeoutMs).
package message

import (
	"time"

	"github.com/google/uuid"
)

// Type is the fixed meta.type field; once set on a Message it never changes.
type Type string

const (
	Command  Type = "command"
	Query    Type = "query"
	Event    Type = "event"
	Response Type = "response"
)

// Meta carries both the fixed fields (TraceID, CreatedAt, Type) and the
// kernel-mutable fields. Handlers observe Meta by value; only the kernel's
// protected-send pipeline is permitted to rewrite the CallerID* and
// correlation fields (enforced by substrate/kernel, not by this package).
type Meta struct {
	// Fixed, set at creation and never rewritten.
	TraceID   string
	CreatedAt time.Time
	Type      Type

	// Kernel-controlled; any handler-visible copy must have CallerIDSetBy
	// equal to the kernel's own PKR uuid, or be empty.
	CallerID          string
	CallerIDSetBy     string
	IsResponse        bool
	CorrelationID     string
	ReplyTo           string
	RequiresResponse  bool
	ResponseTimeoutMs int
}

// Message is the immutable envelope routed between subsystems.
type Message struct {
	ID   string
	Path string
	Body any
	Meta Meta
}

// New creates a Message of the given type with a fresh ID and TraceID.
func New(path string, body any, typ Type) *Message {
	return &Message{
		ID:   uuid.NewString(),
		Path: path,
		Body: body,
		Meta: Meta{
			TraceID:   NewTraceID(),
			CreatedAt: time.Now(),
			Type:      typ,
		},
	}
}

// NewWithTrace creates a Message carrying a caller-supplied trace ID, used
// by transport adapters bridging an inbound X-Trace-Id/traceparent header
// (spec §6) instead of minting a fresh one.
func NewWithTrace(path string, body any, typ Type, traceID string) *Message {
	m := New(path, body, typ)
	if traceID != "" {
		m.Meta.TraceID = traceID
	}
	return m
}

// NewTraceID mints a 128-bit trace identifier.
func NewTraceID() string {
	return uuid.NewString()
}

// NewCorrelationID mints a correlation identifier for request/response
// pairing (spec §4.6).
func NewCorrelationID() string {
	return uuid.NewString()
}

// StripCallerFields clears every kernel-controlled caller-identity field.
// The kernel's protected-send path does not call it: it overwrites both
// fields when it stamps the caller, which equally keeps handlers from
// observing a caller-supplied identity (spec §3 invariant).
func (m *Message) StripCallerFields() {
	m.Meta.CallerID = ""
	m.Meta.CallerIDSetBy = ""
}

// Clone returns a shallow copy of the message; Body is not deep-copied
// since it is opaque to the core.
func (m *Message) Clone() *Message {
	clone := *m
	return &clone
}

// Reset clears a message back to its zero value so it is safe to
// re-acquire from a Pool. Never call this on a message still live in the
// routing system.
func (m *Message) Reset() {
	m.ID = ""
	m.Path = ""
	m.Body = nil
	m.Meta = Meta{}
}
