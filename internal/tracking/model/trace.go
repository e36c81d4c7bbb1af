package model

import "time"

type TraceStatus string

const (
	TraceStatusActive    TraceStatus = "ACTIVE"
	TraceStatusCompleted TraceStatus = "COMPLETED"
	TraceStatusFailed    TraceStatus = "FAILED"
	TraceStatusCancelled TraceStatus = "CANCELLED"
	TraceStatusTimeout   TraceStatus = "TIMEOUT"
)

func (s TraceStatus) Terminal() bool {
	return s != TraceStatusActive
}

// Trace is the full record of one logical test run: the flat span list
// (parent/child resolved via ParentSpanID, not nesting) plus the message
// ledger in arrival order.
type Trace struct {
	CorrelationID string         `json:"correlation_id"`
	TestID        string         `json:"test_id"`
	Description   string         `json:"description,omitempty"`
	RootService   string         `json:"root_service,omitempty"`
	Spans         []Span         `json:"spans"`
	Messages      []MessageEvent `json:"messages"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       *time.Time     `json:"end_time,omitempty"`
	DurationMs    int64          `json:"duration_ms"`
	Status        TraceStatus    `json:"status"`
	ErrorDetails  string         `json:"error_details,omitempty"`
}

// ServiceFlow returns the distinct services touched by the trace's spans in
// first-appearance order. This is the grouping key used for pattern mining.
func (t *Trace) ServiceFlow() []string {
	seen := make(map[string]bool, len(t.Spans))
	flow := make([]string, 0, len(t.Spans))
	for _, span := range t.Spans {
		if !seen[span.ServiceName] {
			seen[span.ServiceName] = true
			flow = append(flow, span.ServiceName)
		}
	}
	return flow
}

// TraceSummary is the read-only digest exposed to the decision engine.
type TraceSummary struct {
	CorrelationID string                   `json:"correlation_id"`
	Status        TraceStatus              `json:"status"`
	DurationMs    int64                    `json:"duration_ms"`
	Services      []string                 `json:"services"`
	SpanCounts    map[SpanStatus]int       `json:"span_counts"`
	MessageCounts map[MessageDirection]int `json:"message_counts"`
}
