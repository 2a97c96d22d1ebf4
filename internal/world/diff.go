package world

// Diff computes the structural delta between two snapshots by entity id.
// Presence is the only signal: ids found only in next produce upserts with
// the new payload, ids found only in prev produce removals. An entity present
// in both emits nothing, even if its payload changed. A nil prev is treated
// as empty, so the first diff upserts everything.
func Diff(prev, next *Snapshot) []DeltaEvent {
	if next == nil {
		return nil
	}
	if prev == nil {
		prev = &Snapshot{}
	}

	var events []DeltaEvent

	prevServices := make(map[string]struct{}, len(prev.Services))
	for _, s := range prev.Services {
		prevServices[s.ID] = struct{}{}
	}
	nextServices := make(map[string]struct{}, len(next.Services))
	for _, s := range next.Services {
		nextServices[s.ID] = struct{}{}
		if _, ok := prevServices[s.ID]; !ok {
			events = append(events, ServiceUpserted(s))
		}
	}
	for _, s := range prev.Services {
		if _, ok := nextServices[s.ID]; !ok {
			events = append(events, ServiceRemoved(s.ID))
		}
	}

	prevEndpoints := make(map[string]struct{}, len(prev.Endpoints))
	for _, ep := range prev.Endpoints {
		prevEndpoints[ep.ID] = struct{}{}
	}
	nextEndpoints := make(map[string]struct{}, len(next.Endpoints))
	for _, ep := range next.Endpoints {
		nextEndpoints[ep.ID] = struct{}{}
		if _, ok := prevEndpoints[ep.ID]; !ok {
			events = append(events, EndpointUpserted(ep))
		}
	}
	for _, ep := range prev.Endpoints {
		if _, ok := nextEndpoints[ep.ID]; !ok {
			events = append(events, EndpointRemoved(ep.ID))
		}
	}

	prevEdges := make(map[string]struct{}, len(prev.Edges))
	for _, e := range prev.Edges {
		prevEdges[e.ID] = struct{}{}
	}
	nextEdges := make(map[string]struct{}, len(next.Edges))
	for _, e := range next.Edges {
		nextEdges[e.ID] = struct{}{}
		if _, ok := prevEdges[e.ID]; !ok {
			events = append(events, EdgeUpserted(e))
		}
	}
	for _, e := range prev.Edges {
		if _, ok := nextEdges[e.ID]; !ok {
			events = append(events, EdgeRemoved(e.ID))
		}
	}

	return events
}
