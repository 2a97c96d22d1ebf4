package stream

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayBuffer_Bound(t *testing.T) {
	buf := NewReplayBuffer(10)

	for seq := uint64(1); seq <= 25; seq++ {
		buf.Append(seq, []byte(fmt.Sprintf("msg-%d", seq)))
	}

	assert.Equal(t, 10, buf.Len())

	oldest, ok := buf.OldestSeq()
	require.True(t, ok)
	assert.Equal(t, uint64(16), oldest)

	msgs, ok := buf.MessagesFrom(16)
	require.True(t, ok)
	require.Len(t, msgs, 10)
	for i, m := range msgs {
		assert.Equal(t, uint64(16+i), m.Seq)
		assert.Equal(t, []byte(fmt.Sprintf("msg-%d", 16+i)), m.Payload)
	}
}

func TestReplayBuffer_MessagesFrom(t *testing.T) {
	// Capacity 3 with appends 1..5 leaves 3,4,5 buffered.
	buf := NewReplayBuffer(3)
	for seq := uint64(1); seq <= 5; seq++ {
		buf.Append(seq, []byte{byte(seq)})
	}

	tests := []struct {
		name      string
		from      uint64
		available bool
		seqs      []uint64
	}{
		{name: "evicted range", from: 1, available: false},
		{name: "just below oldest", from: 2, available: false},
		{name: "from oldest", from: 3, available: true, seqs: []uint64{3, 4, 5}},
		{name: "mid range", from: 4, available: true, seqs: []uint64{4, 5}},
		{name: "newest only", from: 5, available: true, seqs: []uint64{5}},
		{name: "caught up", from: 6, available: true, seqs: []uint64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, ok := buf.MessagesFrom(tt.from)
			assert.Equal(t, tt.available, ok)
			if !tt.available {
				return
			}
			got := make([]uint64, 0, len(msgs))
			for _, m := range msgs {
				got = append(got, m.Seq)
			}
			assert.Equal(t, tt.seqs, got)
		})
	}
}

func TestReplayBuffer_EmptyNotAvailable(t *testing.T) {
	buf := NewReplayBuffer(3)

	_, ok := buf.MessagesFrom(1)
	assert.False(t, ok)

	_, ok = buf.OldestSeq()
	assert.False(t, ok)
	assert.Equal(t, 0, buf.Len())
}

func TestReplayBuffer_AscendingOrder(t *testing.T) {
	buf := NewReplayBuffer(100)
	for seq := uint64(1); seq <= 50; seq++ {
		buf.Append(seq, nil)
	}

	msgs, ok := buf.MessagesFrom(1)
	require.True(t, ok)
	for i := 1; i < len(msgs); i++ {
		assert.Less(t, msgs[i-1].Seq, msgs[i].Seq)
	}
}
