package world

// Service is a deployable unit in the topology.
type Service struct {
	ID     string            `json:"id" yaml:"id" bson:"_id"`
	Name   string            `json:"name" yaml:"name" bson:"name"`
	Kind   string            `json:"kind,omitempty" yaml:"kind,omitempty" bson:"kind,omitempty"`
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty" bson:"labels,omitempty"`
}

// Endpoint is a callable surface exposed by a service.
type Endpoint struct {
	ID        string `json:"id" yaml:"id" bson:"_id"`
	ServiceID string `json:"serviceId" yaml:"service_id" bson:"service_id"`
	Method    string `json:"method,omitempty" yaml:"method,omitempty" bson:"method,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty" bson:"path,omitempty"`
}

// Edge is an observed call relationship between two services.
type Edge struct {
	ID       string `json:"id" yaml:"id" bson:"_id"`
	SourceID string `json:"sourceId" yaml:"source_id" bson:"source_id"`
	TargetID string `json:"targetId" yaml:"target_id" bson:"target_id"`
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty" bson:"protocol,omitempty"`
}

// Snapshot is one complete capture of the world model. It is treated as an
// immutable value once produced; a newer snapshot fully replaces it.
type Snapshot struct {
	Services  []Service  `json:"services" yaml:"services"`
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
	Edges     []Edge     `json:"edges" yaml:"edges"`
}

// Empty reports whether the snapshot carries no entities at all.
func (s *Snapshot) Empty() bool {
	if s == nil {
		return true
	}
	return len(s.Services) == 0 && len(s.Endpoints) == 0 && len(s.Edges) == 0
}
