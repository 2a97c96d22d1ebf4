package stream

import "sync/atomic"

// Sequencer issues the strictly increasing sequence numbers that order every
// outbound message, across all message types and producers. One instance per
// process; the counter resets on restart.
type Sequencer struct {
	counter atomic.Uint64
}

func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next returns a fresh sequence number. Safe for concurrent use.
func (s *Sequencer) Next() uint64 {
	return s.counter.Add(1)
}

// Current returns the last issued sequence number without incrementing.
// Returns 0 if nothing has been issued yet.
func (s *Sequencer) Current() uint64 {
	return s.counter.Load()
}
