package stream

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"meshview/internal/world"
)

// EventFilter gates delta events on the broadcast path with a compiled CEL
// expression over the event's type and entity id. A nil filter passes
// everything.
type EventFilter struct {
	prg cel.Program
}

// CompileEventFilter compiles expr into a filter. An empty expression yields
// a nil filter.
func CompileEventFilter(expr string) (*EventFilter, error) {
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("type", cel.StringType),
		cel.Variable("entityId", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("event filter must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation error: %w", err)
	}

	return &EventFilter{prg: prg}, nil
}

// Match reports whether the event passes the filter. Evaluation errors fail
// open: the event is kept.
func (f *EventFilter) Match(ev world.DeltaEvent) bool {
	if f == nil {
		return true
	}
	out, _, err := f.prg.Eval(map[string]interface{}{
		"type":     string(ev.Type),
		"entityId": ev.EntityID,
	})
	if err != nil {
		return true
	}
	keep, ok := out.Value().(bool)
	if !ok {
		return true
	}
	return keep
}

// Apply returns the events that pass the filter. With a nil filter the input
// is returned unchanged.
func (f *EventFilter) Apply(events []world.DeltaEvent) []world.DeltaEvent {
	if f == nil {
		return events
	}
	out := make([]world.DeltaEvent, 0, len(events))
	for _, ev := range events {
		if f.Match(ev) {
			out = append(out, ev)
		}
	}
	return out
}
