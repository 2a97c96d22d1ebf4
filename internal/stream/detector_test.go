package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshview/internal/world"
)

func newTestDetector(t *testing.T) (*Detector, *Hub, *fakeProjector, *mockConn) {
	t.Helper()

	hub := newTestHub(t, 100)
	projector := &fakeProjector{}
	detector := NewDetector(hub, projector, DefaultConfig(), nil)

	conn := newMockConn()
	hub.registry.Add("alice", conn)
	hub.registry.MarkSubscribed("alice", conn)
	return detector, hub, projector, conn
}

func lastDelta(t *testing.T, conn *mockConn) DeltaMessage {
	t.Helper()
	msgs := conn.messages()
	require.NotEmpty(t, msgs)

	var delta DeltaMessage
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1], &delta))
	return delta
}

func TestDetector_MetricsTick(t *testing.T) {
	detector, _, projector, conn := newTestDetector(t)
	projector.setCached(testSnapshot())

	detector.metricsTick()

	delta := lastDelta(t, conn)
	assert.Equal(t, TypeDelta, delta.Type)
	require.Len(t, delta.Events, 4, "one metrics and one health event per endpoint, in one broadcast")

	byType := map[world.EventType]int{}
	for _, ev := range delta.Events {
		byType[ev.Type]++
		switch ev.Type {
		case world.EventEndpointMetrics:
			require.NotNil(t, ev.Metrics)
			assert.GreaterOrEqual(t, ev.Metrics.P95, ev.Metrics.P50)
			assert.GreaterOrEqual(t, ev.Metrics.RPS, 0.0)
			assert.GreaterOrEqual(t, ev.Metrics.ErrorRate, 0.0)
		case world.EventEndpointHealth:
			require.NotNil(t, ev.Health)
			assert.Contains(t, []world.HealthStatus{world.HealthHealthy, world.HealthDegraded, world.HealthDown}, ev.Health.Status)
		}
	}
	assert.Equal(t, 2, byType[world.EventEndpointMetrics])
	assert.Equal(t, 2, byType[world.EventEndpointHealth])
}

func TestDetector_MetricsTickNoModel(t *testing.T) {
	detector, hub, _, conn := newTestDetector(t)

	detector.metricsTick()

	assert.Empty(t, conn.messages())
	assert.Equal(t, uint64(0), hub.seq.Current())
}

func TestDetector_DiffTick(t *testing.T) {
	detector, _, projector, conn := newTestDetector(t)

	a := world.Endpoint{ID: "ep-a", ServiceID: "svc"}
	b := world.Endpoint{ID: "ep-b", ServiceID: "svc"}
	c := world.Endpoint{ID: "ep-c", ServiceID: "svc"}

	detector.baseline = &world.Snapshot{Endpoints: []world.Endpoint{a, b}}
	projector.setNext(&world.Snapshot{Endpoints: []world.Endpoint{b, c}})

	detector.diffTick(context.Background())

	delta := lastDelta(t, conn)
	require.Len(t, delta.Events, 2)

	types := map[world.EventType]string{}
	for _, ev := range delta.Events {
		types[ev.Type] = ev.EntityID
	}
	assert.Equal(t, "ep-c", types[world.EventEndpointUpserted])
	assert.Equal(t, "ep-a", types[world.EventEndpointRemoved])
}

func TestDetector_DiffTickNoChanges(t *testing.T) {
	detector, hub, projector, conn := newTestDetector(t)

	snap := testSnapshot()
	detector.baseline = snap
	projector.setNext(snap)

	detector.diffTick(context.Background())

	assert.Empty(t, conn.messages(), "identical snapshots must not broadcast")
	assert.Equal(t, uint64(0), hub.seq.Current())
}

func TestDetector_DiffTickFetchFailure(t *testing.T) {
	detector, hub, projector, conn := newTestDetector(t)

	baseline := testSnapshot()
	detector.baseline = baseline
	projector.fetchErr = errors.New("projector unreachable")

	detector.diffTick(context.Background())

	assert.Empty(t, conn.messages())
	assert.Equal(t, uint64(0), hub.seq.Current())
	assert.Same(t, baseline, detector.baseline, "failed fetch must not touch the baseline")
}

func TestDetector_DiffTickReplacesBaselineOnEmptyDiff(t *testing.T) {
	detector, _, projector, _ := newTestDetector(t)

	detector.baseline = testSnapshot()
	fresh := testSnapshot()
	projector.setNext(fresh)

	detector.diffTick(context.Background())

	assert.Same(t, fresh, detector.baseline, "baseline is always replaced on success")
}

func TestDetector_StartStopIdempotent(t *testing.T) {
	detector, _, projector, _ := newTestDetector(t)
	projector.setCached(testSnapshot())

	ctx := context.Background()
	detector.Start(ctx)
	require.NotNil(t, detector.cancel)

	// Second start is a no-op: the singleton guard stays armed.
	detector.Start(ctx)
	require.NotNil(t, detector.cancel)

	detector.Stop()
	assert.Nil(t, detector.cancel)
	detector.Stop()
	assert.Nil(t, detector.cancel)
}

func TestDetector_StartSeedsBaselineFromCache(t *testing.T) {
	detector, _, projector, _ := newTestDetector(t)
	snap := testSnapshot()
	projector.setCached(snap)

	detector.Start(context.Background())
	defer detector.Stop()

	// Wait for the goroutines to be scheduled at least once.
	time.Sleep(10 * time.Millisecond)
	detector.mu.Lock()
	baseline := detector.baseline
	detector.mu.Unlock()
	assert.Same(t, snap, baseline)
}
