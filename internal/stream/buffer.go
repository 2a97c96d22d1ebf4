package stream

import "sync"

// BufferedMessage is a sequenced, already-serialized message retained for
// resume replay. Payload is owned by the buffer; callers must not mutate it.
type BufferedMessage struct {
	Seq     uint64
	Payload []byte
}

// ReplayBuffer keeps the last capacity sequenced messages in FIFO order.
// Entries are only ever appended at the tail and evicted from the head, so
// the buffered seq range is always contiguous. Resume availability checks
// rely on that invariant; selective eviction must never be introduced.
type ReplayBuffer struct {
	mu       sync.Mutex
	capacity int
	msgs     []BufferedMessage
}

func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ReplayBuffer{
		capacity: capacity,
		msgs:     make([]BufferedMessage, 0, capacity),
	}
}

// Append inserts at the tail, then evicts from the head while the buffer
// exceeds capacity.
func (b *ReplayBuffer) Append(seq uint64, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.msgs = append(b.msgs, BufferedMessage{Seq: seq, Payload: payload})
	if n := len(b.msgs) - b.capacity; n > 0 {
		b.msgs = append(b.msgs[:0], b.msgs[n:]...)
	}
}

// MessagesFrom returns all buffered messages with seq >= from, in ascending
// order. The second return value is false when the requested range is not
// available: the buffer is empty, or the oldest buffered seq is already past
// from (the range has been evicted). Callers must then fall back to a full
// snapshot. A from beyond the newest seq is available and yields an empty
// slice: the client is simply caught up.
func (b *ReplayBuffer) MessagesFrom(from uint64) ([]BufferedMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.msgs) == 0 {
		return nil, false
	}
	if b.msgs[0].Seq > from {
		return nil, false
	}

	out := make([]BufferedMessage, 0, len(b.msgs))
	for _, m := range b.msgs {
		if m.Seq >= from {
			out = append(out, m)
		}
	}
	return out, true
}

// Len returns the number of buffered messages.
func (b *ReplayBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

// OldestSeq returns the seq of the oldest buffered message, if any.
func (b *ReplayBuffer) OldestSeq() (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.msgs) == 0 {
		return 0, false
	}
	return b.msgs[0].Seq, true
}
