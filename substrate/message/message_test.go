package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykernel/substrate/substrate/message"
)

func TestNewAssignsIDAndTrace(t *testing.T) {
	m := message.New("api://users/42", map[string]any{"x": 1}, message.Command)
	require.NotEmpty(t, m.ID)
	require.NotEmpty(t, m.Meta.TraceID)
	assert.Equal(t, message.Command, m.Meta.Type)
	assert.False(t, m.Meta.CreatedAt.IsZero())
}

func TestStripCallerFields(t *testing.T) {
	m := message.New("api://users/42", nil, message.Command)
	m.Meta.CallerID = "user-supplied"
	m.Meta.CallerIDSetBy = "user-supplied"

	m.StripCallerFields()

	assert.Empty(t, m.Meta.CallerID)
	assert.Empty(t, m.Meta.CallerIDSetBy)
}

func TestCloneIsIndependent(t *testing.T) {
	m := message.New("api://users/42", nil, message.Command)
	clone := m.Clone()
	clone.Meta.CallerID = "changed"

	assert.NotEqual(t, m.Meta.CallerID, clone.Meta.CallerID)
	assert.Equal(t, m.ID, clone.ID)
}

func TestNewWithTracePreservesCallerTrace(t *testing.T) {
	m := message.NewWithTrace("api://users/42", nil, message.Event, "trace-123")
	assert.Equal(t, "trace-123", m.Meta.TraceID)
}
