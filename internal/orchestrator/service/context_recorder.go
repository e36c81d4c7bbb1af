package service

import (
	"time"

	"github.com/helicon-e2e/trailhead/internal/orchestrator/model"
	trackingModel "github.com/helicon-e2e/trailhead/internal/tracking/model"
	trackingService "github.com/helicon-e2e/trailhead/internal/tracking/service"
	"go.uber.org/zap"
)

// ContextRecorder is the orchestration-facing facade over the tracker and
// the flow recorder: every tracking call it forwards is mirrored into the
// test context's event log, and message records become service interactions
// on the context.
type ContextRecorder struct {
	tracker  *trackingService.CorrelationTracker
	recorder *trackingService.MessageFlowRecorder
	logger   *zap.Logger
}

func NewContextRecorder(
	tracker *trackingService.CorrelationTracker,
	recorder *trackingService.MessageFlowRecorder,
	logger *zap.Logger,
) *ContextRecorder {
	return &ContextRecorder{
		tracker:  tracker,
		recorder: recorder,
		logger:   logger,
	}
}

func (cr *ContextRecorder) StartTrace(tc *model.TestContext, description string) (trackingModel.Trace, error) {
	trace, err := cr.tracker.StartTrace(tc.CorrelationID(), tc.TestPlanID(), description)
	if err != nil {
		return trackingModel.Trace{}, err
	}
	cr.appendEvent(tc, "TRACE_STARTED", description, nil)
	return trace, nil
}

func (cr *ContextRecorder) StartSpan(tc *model.TestContext, service string, operation string) (trackingModel.Span, error) {
	span, err := cr.tracker.StartSpan(tc.CorrelationID(), service, operation)
	if err != nil {
		return trackingModel.Span{}, err
	}
	cr.appendEvent(tc, "SPAN_STARTED", operation, map[string]string{
		"span_id": span.SpanID,
		"service": service,
	})
	return span, nil
}

func (cr *ContextRecorder) FinishSpan(tc *model.TestContext, spanID string) bool {
	finished := cr.tracker.FinishSpan(tc.CorrelationID(), spanID)
	if finished {
		cr.appendEvent(tc, "SPAN_FINISHED", "", map[string]string{"span_id": spanID})
	}
	return finished
}

func (cr *ContextRecorder) RecordMessageSent(
	tc *model.TestContext,
	topic string,
	key string,
	payload []byte,
	interactionRef string,
) error {
	err := cr.recorder.RecordMessageSent(tc.CorrelationID(), topic, key, payload, interactionRef)
	if err != nil {
		return err
	}
	now := time.Now()
	tc.AddInteraction(model.ServiceInteraction{
		ServiceID: topic,
		Direction: model.InteractionOutbound,
		Timestamp: now,
	})
	cr.appendEvent(tc, "MESSAGE_SENT", topic, map[string]string{"key": key})
	return nil
}

func (cr *ContextRecorder) RecordMessageReceived(
	tc *model.TestContext,
	msg trackingModel.InboundMessage,
	interactionRef string,
) (bool, error) {
	recorded, err := cr.recorder.RecordMessageReceived(tc.CorrelationID(), msg, interactionRef)
	if err != nil || !recorded {
		return recorded, err
	}
	tc.AddInteraction(model.ServiceInteraction{
		ServiceID: msg.Topic,
		Direction: model.InteractionInbound,
		Timestamp: msg.Timestamp,
	})
	cr.appendEvent(tc, "MESSAGE_RECEIVED", msg.Topic, map[string]string{"key": msg.Key})
	return true, nil
}

func (cr *ContextRecorder) CompleteTrace(tc *model.TestContext) *trackingModel.Trace {
	trace := cr.tracker.CompleteTrace(tc.CorrelationID())
	if trace != nil {
		cr.appendEvent(tc, "TRACE_COMPLETED", "", nil)
	}
	return trace
}

func (cr *ContextRecorder) FailTrace(tc *model.TestContext, errorDetails string) *trackingModel.Trace {
	trace := cr.tracker.FailTrace(tc.CorrelationID(), errorDetails)
	if trace != nil {
		cr.appendEvent(tc, "TRACE_FAILED", errorDetails, nil)
	}
	return trace
}

func (cr *ContextRecorder) appendEvent(
	tc *model.TestContext,
	eventType string,
	description string,
	attributes map[string]string,
) {
	tc.AppendEvent(model.ContextEvent{
		Type:          eventType,
		CorrelationID: tc.CorrelationID(),
		Description:   description,
		Timestamp:     time.Now(),
		Attributes:    attributes,
	})
}
