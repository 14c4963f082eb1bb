package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykernel/substrate/substrate/message"
	"github.com/relaykernel/substrate/substrate/queue"
)

func newMsg(typ message.Type) *message.Message {
	return message.New("api://x", nil, typ)
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := queue.New(queue.Options{Capacity: 4, Overflow: queue.Reject, Strategy: queue.FIFO})
	require.NoError(t, q.Enqueue(newMsg(message.Command), nil))
	require.NoError(t, q.Enqueue(newMsg(message.Query), nil))
	assert.Equal(t, 2, q.Size())

	p1, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, message.Command, p1.Message.Meta.Type)

	p2, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, message.Query, p2.Message.Meta.Type)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

// TestOverflowReject grounds spec §8 invariant 6: size unchanged and
// accepted not incremented on a rejected enqueue.
func TestOverflowReject(t *testing.T) {
	q := queue.New(queue.Options{Capacity: 2, Overflow: queue.Reject})
	require.NoError(t, q.Enqueue(newMsg(message.Event), nil))
	require.NoError(t, q.Enqueue(newMsg(message.Event), nil))

	err := q.Enqueue(newMsg(message.Event), nil)
	assert.ErrorIs(t, err, queue.ErrFull)
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, uint64(2), q.Stats.Accepted)
}

// TestOverflowDropOldest grounds spec §8 invariant 6's drop-oldest half:
// size stays at capacity, dropped increments by 1.
func TestOverflowDropOldest(t *testing.T) {
	q := queue.New(queue.Options{Capacity: 2, Overflow: queue.DropOldest})
	require.NoError(t, q.Enqueue(newMsg(message.Event), nil))
	require.NoError(t, q.Enqueue(newMsg(message.Event), nil))

	third := newMsg(message.Command)
	require.NoError(t, q.Enqueue(third, nil))
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, uint64(1), q.Stats.Dropped)

	p, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, message.Event, p.Message.Meta.Type)
}

func TestPriorityStrategyOrdering(t *testing.T) {
	q := queue.New(queue.Options{Capacity: 8, Strategy: queue.Priority})
	require.NoError(t, q.Enqueue(newMsg(message.Event), nil))
	require.NoError(t, q.Enqueue(newMsg(message.Query), nil))
	require.NoError(t, q.Enqueue(newMsg(message.Command), nil))
	require.NoError(t, q.Enqueue(newMsg(message.Response), nil))

	order := []message.Type{}
	for {
		p, ok := q.Dequeue()
		if !ok {
			break
		}
		order = append(order, p.Message.Meta.Type)
	}
	assert.Equal(t, []message.Type{message.Response, message.Command, message.Query, message.Event}, order)
}

func TestPriorityTieBrokenByArrivalOrder(t *testing.T) {
	q := queue.New(queue.Options{Capacity: 8, Strategy: queue.Priority})
	first := newMsg(message.Command)
	second := newMsg(message.Command)
	require.NoError(t, q.Enqueue(first, nil))
	require.NoError(t, q.Enqueue(second, nil))

	p, ok := q.Dequeue()
	require.True(t, ok)
	assert.Same(t, first, p.Message)
}

func TestStatisticsMeanProcessingTime(t *testing.T) {
	var s queue.Statistics
	assert.Equal(t, time.Duration(0), s.MeanProcessingTime())
	s.RecordProcessed(10 * time.Millisecond)
	s.RecordProcessed(20 * time.Millisecond)
	assert.Equal(t, 15*time.Millisecond, s.MeanProcessingTime())
}
