package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykernel/substrate/substrate/message"
	ws "github.com/relaykernel/substrate/substrate/transport/websocket"
)

func TestDialAcceptRoundTrip(t *testing.T) {
	received := make(chan *message.Message, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, trace, err := ws.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		m, err := conn.ReadMessage(trace)
		require.NoError(t, err)
		received <- m
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, err := ws.Dial(url, "trace-123", nil)
	require.NoError(t, err)
	defer conn.Close()

	out := message.New("api://widgets/1", map[string]any{"qty": float64(2)}, message.Command)
	require.NoError(t, conn.WriteMessage(out))

	select {
	case m := <-received:
		assert.Equal(t, out.Path, m.Path)
		assert.Equal(t, out.Meta.Type, m.Meta.Type)
		body := m.Body.(map[string]any)
		assert.Equal(t, float64(2), body["qty"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivered message")
	}
}

func TestServeDeliversUntilContextCanceled(t *testing.T) {
	delivered := make(chan *message.Message, 4)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, trace, err := ws.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		_ = conn.Serve(ctx, trace, func(ctx context.Context, m *message.Message) error {
			delivered <- m
			return nil
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, err := ws.Dial(url, "", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(message.New("api://ping", "hi", message.Query)))

	select {
	case m := <-delivered:
		assert.Equal(t, "api://ping", m.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}
