package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/doctrans/internal/model"
)

// EventSink receives task transition events. Publish must not block the
// pipeline for long; slow consumers should buffer.
type EventSink interface {
	Publish(ctx context.Context, ev model.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev model.Event)

// Publish calls f.
func (f EventSinkFunc) Publish(ctx context.Context, ev model.Event) { f(ctx, ev) }

// LogSink writes every event to the global logger.
type LogSink struct{}

// Publish logs ev.
func (LogSink) Publish(_ context.Context, ev model.Event) {
	fields := []zap.Field{
		zap.String("kind", string(ev.Kind)),
		zap.String("task_id", ev.TaskID),
		zap.String("stage", string(ev.Stage)),
		zap.String("status", string(ev.Status)),
	}
	if ev.PreviousStage != "" {
		fields = append(fields,
			zap.String("previous_stage", string(ev.PreviousStage)),
			zap.String("previous_status", string(ev.PreviousStatus)),
		)
	}
	if ev.Detail != "" {
		fields = append(fields, zap.String("detail", ev.Detail))
	}
	zap.L().Info("pipeline: event", fields...)
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []EventSink

// Publish forwards ev to every sink.
func (m MultiSink) Publish(ctx context.Context, ev model.Event) {
	for _, s := range m {
		s.Publish(ctx, ev)
	}
}
