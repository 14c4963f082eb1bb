// Package websocket is an example driver (spec §1: "transports...
// out of scope for the core, treated as drivers") lifting inbound
// websocket frames into Messages and writing outbound Messages back as
// frames, using substrate/codec for the wire format and propagating trace
// IDs per spec §6.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/relaykernel/substrate/substrate/codec"
	"github.com/relaykernel/substrate/substrate/logging"
	"github.com/relaykernel/substrate/substrate/message"
)

// TraceHeader is the header inbound connections may carry a trace ID on.
// ReadMessage stamps that ID only onto decoded Messages whose frame carries
// no trace ID of its own; the driver never mints one (spec §6).
const TraceHeader = "X-Trace-Id"

// TraceParentHeader is the W3C trace-context header, checked after
// TraceHeader (spec §6).
const TraceParentHeader = "traceparent"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Sender is anything that can accept an inbound Message, e.g.
// *system.MessageSystem's Send or SendPooled.
type Sender func(ctx context.Context, m *message.Message) error

// Conn wraps one upgraded websocket connection, lifting inbound frames
// into Messages and serializing outbound Messages back as frames.
type Conn struct {
	ws  *websocket.Conn
	log *logging.Logger

	writeMu sync.Mutex
}

// Accept upgrades r/w into a websocket connection, preserving whichever
// trace header the client sent.
func Accept(w http.ResponseWriter, r *http.Request, log *logging.Logger) (*Conn, string, error) {
	if log == nil {
		log = logging.Nop()
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, "", err
	}
	trace := r.Header.Get(TraceHeader)
	if trace == "" {
		trace = r.Header.Get(TraceParentHeader)
	}
	return &Conn{ws: ws, log: log.With("transport/websocket")}, trace, nil
}

// Dial connects to url as a client, carrying traceID on the connect
// request if non-empty.
func Dial(url string, traceID string, log *logging.Logger) (*Conn, error) {
	if log == nil {
		log = logging.Nop()
	}
	header := http.Header{}
	if traceID != "" {
		header.Set(TraceHeader, traceID)
	}
	dialer := websocket.Dialer{}
	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: conn, log: log.With("transport/websocket")}, nil
}

// ReadMessage blocks for the next frame and decodes it into a Message. If
// traceID is non-empty and the decoded Message carries no trace ID of its
// own, traceID is stamped onto it (spec §6: "read on inbound").
func (c *Conn) ReadMessage(traceID string) (*message.Message, error) {
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(generic)
	if err != nil {
		return nil, err
	}
	m, err := codec.Decode(s)
	if err != nil {
		return nil, err
	}
	if m.Meta.TraceID == "" && traceID != "" {
		m.Meta.TraceID = traceID
	}
	return m, nil
}

// WriteMessage encodes m and writes it as a single text frame, stamping
// traceID onto the outbound traceparent-equivalent header is not possible
// over a raw frame — callers needing that propagate trace IDs via the
// initial HTTP upgrade request instead (spec §6: "written on outbound").
func (c *Conn) WriteMessage(m *message.Message) error {
	s, err := codec.Encode(m)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

// Serve reads frames from c in a loop until the connection closes or ctx
// is canceled, handing each decoded Message to deliver.
func (c *Conn) Serve(ctx context.Context, traceID string, deliver Sender) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m, err := c.ReadMessage(traceID)
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil
			}
			return err
		}
		if err := deliver(ctx, m); err != nil {
			c.log.Warn("transport/websocket: delivery failed", zap.Error(err))
		}
	}
}
