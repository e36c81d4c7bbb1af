package model

import "time"

type SpanStatus string

const (
	SpanStatusActive    SpanStatus = "ACTIVE"
	SpanStatusFinished  SpanStatus = "FINISHED"
	SpanStatusError     SpanStatus = "ERROR"
	SpanStatusCancelled SpanStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s SpanStatus) Terminal() bool {
	return s == SpanStatusFinished || s == SpanStatusError || s == SpanStatusCancelled
}

// MaxSpanTags bounds the tag map of a single span. Additions past the bound
// are dropped rather than erroring, since tags are diagnostic metadata.
const MaxSpanTags = 64

type Span struct {
	SpanID        string            `json:"span_id"`
	ParentSpanID  string            `json:"parent_span_id,omitempty"`
	CorrelationID string            `json:"correlation_id"`
	ServiceName   string            `json:"service_name"`
	OperationName string            `json:"operation_name"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       *time.Time        `json:"end_time,omitempty"`
	DurationMs    int64             `json:"duration_ms"`
	Status        SpanStatus        `json:"status"`
	Tags          map[string]string `json:"tags,omitempty"`
	Logs          map[string]string `json:"logs,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
}
