package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventIndex(events []DeltaEvent) map[EventType][]string {
	idx := map[EventType][]string{}
	for _, ev := range events {
		idx[ev.Type] = append(idx[ev.Type], ev.EntityID)
	}
	return idx
}

func TestDiff_NilPrevUpsertsEverything(t *testing.T) {
	next := &Snapshot{
		Services:  []Service{{ID: "svc-1"}},
		Endpoints: []Endpoint{{ID: "ep-1", ServiceID: "svc-1"}},
		Edges:     []Edge{{ID: "edge-1"}},
	}

	events := Diff(nil, next)
	require.Len(t, events, 3)

	idx := eventIndex(events)
	assert.Equal(t, []string{"svc-1"}, idx[EventServiceUpserted])
	assert.Equal(t, []string{"ep-1"}, idx[EventEndpointUpserted])
	assert.Equal(t, []string{"edge-1"}, idx[EventEdgeUpserted])
}

func TestDiff_NilNext(t *testing.T) {
	assert.Nil(t, Diff(&Snapshot{Services: []Service{{ID: "svc-1"}}}, nil))
}

func TestDiff_Identical(t *testing.T) {
	snap := &Snapshot{
		Services:  []Service{{ID: "svc-1"}, {ID: "svc-2"}},
		Endpoints: []Endpoint{{ID: "ep-1"}},
	}
	assert.Empty(t, Diff(snap, snap))
}

func TestDiff_PresenceOnly(t *testing.T) {
	prev := &Snapshot{Services: []Service{{ID: "svc-1", Name: "old name"}}}
	next := &Snapshot{Services: []Service{{ID: "svc-1", Name: "new name"}}}

	// Same id on both sides emits nothing, even though the payload changed.
	assert.Empty(t, Diff(prev, next))
}

func TestDiff_Mixed(t *testing.T) {
	prev := &Snapshot{
		Services:  []Service{{ID: "svc-keep"}, {ID: "svc-gone"}},
		Endpoints: []Endpoint{{ID: "ep-gone"}},
		Edges:     []Edge{{ID: "edge-keep"}},
	}
	next := &Snapshot{
		Services:  []Service{{ID: "svc-keep"}, {ID: "svc-new", Name: "fresh"}},
		Endpoints: []Endpoint{{ID: "ep-new"}},
		Edges:     []Edge{{ID: "edge-keep"}, {ID: "edge-new"}},
	}

	events := Diff(prev, next)
	require.Len(t, events, 5)

	idx := eventIndex(events)
	assert.Equal(t, []string{"svc-new"}, idx[EventServiceUpserted])
	assert.Equal(t, []string{"svc-gone"}, idx[EventServiceRemoved])
	assert.Equal(t, []string{"ep-new"}, idx[EventEndpointUpserted])
	assert.Equal(t, []string{"ep-gone"}, idx[EventEndpointRemoved])
	assert.Equal(t, []string{"edge-new"}, idx[EventEdgeUpserted])

	// Upserts carry the new payload; removals carry only the id.
	for _, ev := range events {
		switch ev.Type {
		case EventServiceUpserted:
			require.NotNil(t, ev.Service)
			assert.Equal(t, "fresh", ev.Service.Name)
		case EventServiceRemoved, EventEndpointRemoved, EventEdgeRemoved:
			assert.Nil(t, ev.Service)
			assert.Nil(t, ev.Endpoint)
			assert.Nil(t, ev.Edge)
		}
	}
}
