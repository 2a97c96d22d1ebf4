package ingest

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshview/internal/world"
)

type recordingBroadcaster struct {
	mu      sync.Mutex
	batches [][]world.DeltaEvent
	seq     uint64
}

func (b *recordingBroadcaster) BroadcastDelta(events []world.DeltaEvent) (uint64, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.batches = append(b.batches, events)
	return b.seq, time.Now()
}

func (b *recordingBroadcaster) all() [][]world.DeltaEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]world.DeltaEvent, len(b.batches))
	copy(out, b.batches)
	return out
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{Enabled: true}
	cfg.ApplyDefaults()

	assert.Equal(t, nats.DefaultURL, cfg.URL)
	assert.Equal(t, "meshview.deltas", cfg.Subject)

	custom := Config{URL: "nats://broker:4222", Subject: "topo.changes"}
	custom.ApplyDefaults()
	assert.Equal(t, "nats://broker:4222", custom.URL)
	assert.Equal(t, "topo.changes", custom.Subject)
}

func TestBridge_HandleInjectsEvents(t *testing.T) {
	hub := &recordingBroadcaster{}
	bridge := NewBridge(DefaultConfig(), hub, nil)

	events := []world.DeltaEvent{
		world.ServiceUpserted(world.Service{ID: "svc-1", Name: "one"}),
		world.EndpointRemoved("ep-9"),
	}
	payload, err := json.Marshal(events)
	require.NoError(t, err)

	bridge.handle(&nats.Msg{Subject: "meshview.deltas", Data: payload})

	batches := hub.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, world.EventServiceUpserted, batches[0][0].Type)
	assert.Equal(t, "ep-9", batches[0][1].EntityID)
}

func TestBridge_HandleDropsMalformed(t *testing.T) {
	hub := &recordingBroadcaster{}
	bridge := NewBridge(DefaultConfig(), hub, nil)

	bridge.handle(&nats.Msg{Subject: "meshview.deltas", Data: []byte(`{"not":"an array"}`)})

	assert.Empty(t, hub.all())
}

func TestBridge_HandleSkipsEmptyBatch(t *testing.T) {
	hub := &recordingBroadcaster{}
	bridge := NewBridge(DefaultConfig(), hub, nil)

	bridge.handle(&nats.Msg{Subject: "meshview.deltas", Data: []byte(`[]`)})

	assert.Empty(t, hub.all())
}

func TestBridge_StopWithoutStart(t *testing.T) {
	bridge := NewBridge(DefaultConfig(), &recordingBroadcaster{}, nil)
	assert.NotPanics(t, bridge.Stop)
	assert.NotPanics(t, bridge.Stop)
}
