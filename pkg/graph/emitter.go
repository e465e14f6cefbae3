package graph

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/maestro-ai/maestro/pkg/models"
)

// Event messages emitted by the engine.
const (
	MsgNodeStart  = "node_start"
	MsgNodeEnd    = "node_end"
	MsgStateDelta = "state_delta"
	MsgRunEnd     = "run_end"
)

// Event is one observability event from a run. Delta is set only for
// state_delta events and carries just the fields the node changed.
type Event struct {
	RunID string
	Step  int
	Node  Node
	Msg   string
	Delta *models.StateDelta
	Meta  map[string]any
}

// Emitter receives engine events. Implementations must be safe for
// concurrent use and must not block the run; failures are logged, never
// propagated.
type Emitter interface {
	Emit(event Event)
}

// NullEmitter discards all events.
type NullEmitter struct{}

func (NullEmitter) Emit(Event) {}

// LogEmitter writes events through slog.
type LogEmitter struct {
	Level slog.Level
}

func (e *LogEmitter) Emit(event Event) {
	attrs := []any{
		"run_id", event.RunID,
		"step", event.Step,
		"node", string(event.Node),
	}
	for k, v := range event.Meta {
		attrs = append(attrs, k, v)
	}
	slog.Log(context.Background(), e.Level, event.Msg, attrs...)
}

// OTelEmitter records each event as a point-in-time span. Node duration
// arrives in Meta["duration_ms"] on node_end events.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter over the given tracer, typically
// otel.Tracer("maestro/graph").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (e *OTelEmitter) Emit(event Event) {
	_, span := e.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("maestro.run_id", event.RunID),
		attribute.Int("maestro.step", event.Step),
		attribute.String("maestro.node", string(event.Node)),
	)
	for key, value := range event.Meta {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String("maestro."+key, v))
		case int:
			span.SetAttributes(attribute.Int("maestro."+key, v))
		case int64:
			span.SetAttributes(attribute.Int64("maestro."+key, v))
		case float64:
			span.SetAttributes(attribute.Float64("maestro."+key, v))
		case bool:
			span.SetAttributes(attribute.Bool("maestro."+key, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64("maestro."+key+"_ms", v.Milliseconds()))
		}
	}
	if errMsg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
	}
}

// MultiEmitter fans events out to several emitters.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
