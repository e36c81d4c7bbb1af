package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/helicon-e2e/trailhead/internal/tracking/model"
	"go.uber.org/zap"
)

// MessageFlowRecorder appends sent/received message events to the owning
// trace's ledger. It shares the tracker's registry so ledger appends take
// part in the same per-trace consistency domain as span mutation.
type MessageFlowRecorder struct {
	tracker *CorrelationTracker
	logger  *zap.Logger
}

func NewMessageFlowRecorder(tracker *CorrelationTracker, logger *zap.Logger) *MessageFlowRecorder {
	return &MessageFlowRecorder{
		tracker: tracker,
		logger:  logger,
	}
}

// RecordMessageSent appends a SENT event to the trace's ledger. The payload
// is stored opaque along with a digest for cheap ledger inspection.
func (mfr *MessageFlowRecorder) RecordMessageSent(
	correlationID string,
	topic string,
	key string,
	payload []byte,
	interactionRef string,
) error {
	event := model.MessageEvent{
		Direction:      model.DirectionSent,
		Topic:          topic,
		Key:            key,
		Payload:        payload,
		PayloadDigest:  digestPayload(payload),
		Timestamp:      time.Now(),
		CorrelationID:  correlationID,
		InteractionRef: interactionRef,
	}
	return mfr.append(correlationID, event)
}

// RecordMessageReceived appends a RECEIVED event for an inbound message whose
// embedded correlation id matches the monitored trace. Messages for other
// correlation ids are discarded, not recorded: this is how a shared topic is
// multiplexed across concurrently running tests. Returns true when the event
// was recorded.
func (mfr *MessageFlowRecorder) RecordMessageReceived(
	correlationID string,
	msg model.InboundMessage,
	interactionRef string,
) (bool, error) {
	embedded := msg.EmbeddedCorrelationID()
	if embedded != correlationID {
		mfr.logger.Debug("Discarded message for foreign correlation id",
			zap.String("monitored_correlation_id", correlationID),
			zap.String("embedded_correlation_id", embedded),
			zap.String("topic", msg.Topic),
		)
		return false, nil
	}

	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	event := model.MessageEvent{
		Direction:      model.DirectionReceived,
		Topic:          msg.Topic,
		Key:            msg.Key,
		Payload:        msg.Payload,
		PayloadDigest:  digestPayload(msg.Payload),
		Timestamp:      timestamp,
		CorrelationID:  correlationID,
		InteractionRef: interactionRef,
	}
	if err := mfr.append(correlationID, event); err != nil {
		return false, err
	}
	return true, nil
}

func (mfr *MessageFlowRecorder) append(correlationID string, event model.MessageEvent) error {
	entry, ok := mfr.tracker.traces.get(correlationID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTraceNotFound, correlationID)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.trace.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTraceNotFound, correlationID)
	}
	entry.ledger = append(entry.ledger, event)
	return nil
}

// GetMessageHistory returns the trace's ledger in arrival order; empty if the
// trace is unknown.
func (mfr *MessageFlowRecorder) GetMessageHistory(correlationID string) []model.MessageEvent {
	entry, ok := mfr.tracker.traces.get(correlationID)
	if !ok {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := make([]model.MessageEvent, len(entry.ledger))
	copy(out, entry.ledger)
	return out
}

func digestPayload(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}
