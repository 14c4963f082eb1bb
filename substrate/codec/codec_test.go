package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykernel/substrate/substrate/codec"
	"github.com/relaykernel/substrate/substrate/message"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := message.New("api://widgets/42", map[string]any{"name": "gizmo", "qty": float64(3)}, message.Command)
	m.Meta.CallerID = "caller-1"
	m.Meta.CallerIDSetBy = "kernel-1"
	m.Meta.CorrelationID = "corr-9"
	m.Meta.RequiresResponse = true
	m.Meta.ResponseTimeoutMs = 1500

	s, err := codec.Encode(m)
	require.NoError(t, err)

	out, err := codec.Decode(s)
	require.NoError(t, err)

	assert.Equal(t, m.ID, out.ID)
	assert.Equal(t, m.Path, out.Path)
	assert.Equal(t, m.Meta.Type, out.Meta.Type)
	assert.Equal(t, m.Meta.CallerID, out.Meta.CallerID)
	assert.Equal(t, m.Meta.CorrelationID, out.Meta.CorrelationID)
	assert.Equal(t, m.Meta.RequiresResponse, out.Meta.RequiresResponse)
	assert.Equal(t, m.Meta.ResponseTimeoutMs, out.Meta.ResponseTimeoutMs)
	assert.Equal(t, m.Meta.TraceID, out.Meta.TraceID)
	assert.WithinDuration(t, m.Meta.CreatedAt, out.Meta.CreatedAt, 0)

	body := out.Body.(map[string]any)
	assert.Equal(t, "gizmo", body["name"])
	assert.Equal(t, float64(3), body["qty"])
}

func TestEncodeDecodeNilBody(t *testing.T) {
	m := message.New("kernel://event/ping", nil, message.Event)
	s, err := codec.Encode(m)
	require.NoError(t, err)

	out, err := codec.Decode(s)
	require.NoError(t, err)
	assert.Nil(t, out.Body)
}
