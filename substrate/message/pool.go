package message

import "sync/atomic"

// Pool is a bounded, lock-friendly free-list of Message objects, grounded
// on spec §4.7's "pooled message objects" and §9's re-architecture note:
// an explicit acquire/release free-list rather than a proxying or
// reflection-based pool. The kernel's pooled protected-send owns the
// lifecycle; callers never retain a pooled handle past the send that
// returned it, and a pooled Message must never be stored in a long-lived
// structure.
type Pool struct {
	free chan *Message

	acquired atomic.Uint64
	released atomic.Uint64
	created  atomic.Uint64
}

// NewPool creates a Pool with the given capacity (spec §6 pool.capacity,
// default 2048).
func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		capacity = 2048
	}
	return &Pool{free: make(chan *Message, capacity)}
}

// Acquire returns a Message from the free-list, or a freshly allocated one
// if the pool is currently empty.
func (p *Pool) Acquire() *Message {
	p.acquired.Add(1)
	select {
	case m := <-p.free:
		return m
	default:
		p.created.Add(1)
		return &Message{}
	}
}

// Release resets and returns a Message to the pool. If the pool is at
// capacity the message is simply discarded (spec §5: "overflow on release
// simply discards the message").
func (p *Pool) Release(m *Message) {
	if m == nil {
		return
	}
	m.Reset()
	p.released.Add(1)
	select {
	case p.free <- m:
	default:
	}
}

// Stats reports pool bookkeeping counters, used by tests to assert
// Acquired == Released at quiescence (spec §8 scenario S8).
type Stats struct {
	Acquired uint64
	Released uint64
	Created  uint64
	Free     int
}

func (p *Pool) Stats() Stats {
	return Stats{
		Acquired: p.acquired.Load(),
		Released: p.released.Load(),
		Created:  p.created.Load(),
		Free:     len(p.free),
	}
}

// Len reports how many messages currently sit in the free-list.
func (p *Pool) Len() int { return len(p.free) }
