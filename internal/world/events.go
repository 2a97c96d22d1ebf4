package world

// EventType discriminates the delta-event variants. The set is closed: eight
// variants covering upsert/remove of each entity kind plus the two periodic
// telemetry updates.
type EventType string

const (
	EventServiceUpserted  EventType = "service.upserted"
	EventServiceRemoved   EventType = "service.removed"
	EventEndpointUpserted EventType = "endpoint.upserted"
	EventEndpointRemoved  EventType = "endpoint.removed"
	EventEdgeUpserted     EventType = "edge.upserted"
	EventEdgeRemoved      EventType = "edge.removed"
	EventEndpointMetrics  EventType = "endpoint.metrics.updated"
	EventEndpointHealth   EventType = "endpoint.health.updated"
)

// HealthStatus is the coarse health classification of an endpoint.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
)

// EndpointMetrics is the telemetry payload attached to a metrics update.
type EndpointMetrics struct {
	RPS       float64 `json:"rps"`
	P50       float64 `json:"p50"`
	P95       float64 `json:"p95"`
	ErrorRate float64 `json:"errorRate"`
}

// EndpointHealth is the payload attached to a health update.
type EndpointHealth struct {
	Status HealthStatus `json:"status"`
}

// DeltaEvent is one tagged change notification. Exactly one payload field is
// set, matching Type; removals carry only EntityID.
type DeltaEvent struct {
	Type     EventType        `json:"type"`
	EntityID string           `json:"entityId"`
	Service  *Service         `json:"service,omitempty"`
	Endpoint *Endpoint        `json:"endpoint,omitempty"`
	Edge     *Edge            `json:"edge,omitempty"`
	Metrics  *EndpointMetrics `json:"metrics,omitempty"`
	Health   *EndpointHealth  `json:"health,omitempty"`
}

func ServiceUpserted(svc Service) DeltaEvent {
	return DeltaEvent{Type: EventServiceUpserted, EntityID: svc.ID, Service: &svc}
}

func ServiceRemoved(id string) DeltaEvent {
	return DeltaEvent{Type: EventServiceRemoved, EntityID: id}
}

func EndpointUpserted(ep Endpoint) DeltaEvent {
	return DeltaEvent{Type: EventEndpointUpserted, EntityID: ep.ID, Endpoint: &ep}
}

func EndpointRemoved(id string) DeltaEvent {
	return DeltaEvent{Type: EventEndpointRemoved, EntityID: id}
}

func EdgeUpserted(e Edge) DeltaEvent {
	return DeltaEvent{Type: EventEdgeUpserted, EntityID: e.ID, Edge: &e}
}

func EdgeRemoved(id string) DeltaEvent {
	return DeltaEvent{Type: EventEdgeRemoved, EntityID: id}
}

func MetricsUpdated(endpointID string, m EndpointMetrics) DeltaEvent {
	return DeltaEvent{Type: EventEndpointMetrics, EntityID: endpointID, Metrics: &m}
}

func HealthUpdated(endpointID string, status HealthStatus) DeltaEvent {
	return DeltaEvent{Type: EventEndpointHealth, EntityID: endpointID, Health: &EndpointHealth{Status: status}}
}
