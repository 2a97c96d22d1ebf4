package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"meshview/internal/world"
)

// Hub owns the process-wide sequencer, replay buffer and connection registry,
// and is the single path every outbound broadcast takes: assign a seq,
// serialize, append to the replay buffer, fan out to subscribed connections.
//
// The emission mutex serializes that whole path. Timers and per-connection
// handlers touch the same sequencer and buffer concurrently; holding one lock
// across seq assignment, append and fan-out is what keeps sequence numbers,
// buffer order and per-connection delivery order mutually consistent.
type Hub struct {
	mu       sync.Mutex
	seq      *Sequencer
	buffer   *ReplayBuffer
	registry *Registry
	filter   *EventFilter
	log      *slog.Logger

	now func() time.Time
}

// NewHub builds a hub from cfg. The event filter, if configured, is compiled
// here so a bad expression fails startup rather than every broadcast.
func NewHub(cfg Config, log *slog.Logger) (*Hub, error) {
	if log == nil {
		log = slog.Default()
	}
	filter, err := CompileEventFilter(cfg.EventFilter)
	if err != nil {
		return nil, err
	}
	return &Hub{
		seq:      NewSequencer(),
		buffer:   NewReplayBuffer(cfg.BufferCapacity),
		registry: NewRegistry(log),
		filter:   filter,
		log:      log,
		now:      time.Now,
	}, nil
}

// Registry exposes the connection registry for transport adapters.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// BroadcastDelta injects a batch of delta events into the sequencing,
// buffering and broadcast path. It is the entry point for the change detector
// and for unrelated producers (the ingest bridge). Events rejected by the
// configured filter are dropped; if nothing survives, nothing is emitted and
// the current seq is returned unchanged.
func (h *Hub) BroadcastDelta(events []world.DeltaEvent) (uint64, time.Time) {
	events = h.filter.Apply(events)
	if len(events) == 0 {
		return h.seq.Current(), h.now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	seq := h.seq.Next()
	ts := h.now().UTC()
	payload, err := json.Marshal(DeltaMessage{
		Type:          TypeDelta,
		SchemaVersion: SchemaVersion,
		Seq:           seq,
		TS:            ts,
		Events:        events,
	})
	if err != nil {
		// Events are plain data types; this does not happen in practice.
		h.log.Error("failed to serialize delta message", "error", err)
		return seq, ts
	}

	h.buffer.Append(seq, payload)
	h.registry.BroadcastSubscribed(payload)
	return seq, ts
}

// Stats is a point-in-time operational summary of the hub.
type Stats struct {
	Connections int    `json:"connections"`
	Subscribed  int    `json:"subscribed"`
	BufferLen   int    `json:"bufferLen"`
	CurrentSeq  uint64 `json:"currentSeq"`
}

// Stats returns current counters for the operator endpoint.
func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.registry.Len(),
		Subscribed:  h.registry.SubscribedCount(),
		BufferLen:   h.buffer.Len(),
		CurrentSeq:  h.seq.Current(),
	}
}
