package service

import (
	"github.com/helicon-e2e/trailhead/internal/tracking/model"
	"github.com/helicon-e2e/trailhead/pkg/event_bus"
	"go.uber.org/zap"
)

// EventBusTraceSink publishes terminal traces on the in-process event bus,
// decoupling the tracker from whoever persists execution history.
type EventBusTraceSink struct {
	bus    event_bus.TypedEventBus[model.Trace, model.Trace]
	logger *zap.Logger
}

func NewEventBusTraceSink(
	bus event_bus.TypedEventBus[model.Trace, model.Trace],
	logger *zap.Logger,
) *EventBusTraceSink {
	return &EventBusTraceSink{
		bus:    bus,
		logger: logger,
	}
}

func (s *EventBusTraceSink) RecordCompletedTrace(trace model.Trace) {
	if err := s.bus.Publish(event_bus.TraceCompletedTopic, trace); err != nil {
		s.logger.Error("Failed to publish completed trace",
			zap.String("correlation_id", trace.CorrelationID),
			zap.Error(err),
		)
	}
}
