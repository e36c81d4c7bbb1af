package model

import "time"

type MessageDirection string

const (
	DirectionSent     MessageDirection = "SENT"
	DirectionReceived MessageDirection = "RECEIVED"
)

// CorrelationIDHeader is the header under which transport adapters embed the
// correlation id of the test run a message belongs to. Payloads are opaque at
// this layer, so the header is the only multiplexing key.
const CorrelationIDHeader = "correlation_id"

// MessageEvent is one entry in a trace's message ledger. Payload is carried
// as raw bytes and never interpreted here; interpretation belongs to the
// transport adapters.
type MessageEvent struct {
	Direction      MessageDirection `json:"direction"`
	Topic          string           `json:"topic"`
	Key            string           `json:"key,omitempty"`
	Payload        []byte           `json:"payload,omitempty"`
	PayloadDigest  string           `json:"payload_digest,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
	CorrelationID  string           `json:"correlation_id"`
	InteractionRef string           `json:"interaction_ref,omitempty"`
}

// InboundMessage is the abstract shape handed over by a consuming transport
// adapter: topic, key, opaque payload and headers including the embedded
// correlation id.
type InboundMessage struct {
	Topic     string            `json:"topic"`
	Key       string            `json:"key,omitempty"`
	Payload   []byte            `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// EmbeddedCorrelationID extracts the correlation id a producer stamped on the
// message, or "" if none is present.
func (m *InboundMessage) EmbeddedCorrelationID() string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[CorrelationIDHeader]
}
