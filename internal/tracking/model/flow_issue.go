package model

import "time"

type FlowIssueType string

const (
	IssueMissingResponse   FlowIssueType = "MISSING_RESPONSE"
	IssueOrderingViolation FlowIssueType = "ORDERING_VIOLATION"
	IssueTimingIssue       FlowIssueType = "TIMING_ISSUE"
)

// FlowIssue is a structured finding derived from a trace's message ledger.
type FlowIssue struct {
	Type          FlowIssueType `json:"type"`
	CorrelationID string        `json:"correlation_id"`
	Topic         string        `json:"topic"`
	Key           string        `json:"key,omitempty"`
	Description   string        `json:"description"`
	LatencyMs     int64         `json:"latency_ms,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}
