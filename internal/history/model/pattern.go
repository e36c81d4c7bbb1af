package model

import "time"

type PatternType string

const (
	PatternSuccessFlow    PatternType = "SUCCESS_FLOW"
	PatternFailurePattern PatternType = "FAILURE_PATTERN"
	PatternTimeoutPattern PatternType = "TIMEOUT_PATTERN"
)

// Pattern is an aggregated, continuously refined summary of past executions
// sharing one service-flow signature. SuccessRate and AvgExecutionTimeMs are
// running aggregates maintained exclusively through the incremental update in
// the pattern service, which keeps them equal to the true mean/rate over all
// observed samples regardless of update order.
type Pattern struct {
	PatternID          string      `json:"pattern_id"`
	Label              string      `json:"label"`
	Type               PatternType `json:"type"`
	ServiceFlow        []string    `json:"service_flow"`
	Signature          string      `json:"signature"`
	UsageCount         int64       `json:"usage_count"`
	SuccessRate        float64     `json:"success_rate"`
	AvgExecutionTimeMs float64     `json:"avg_execution_time_ms"`
	LastUsed           time.Time   `json:"last_used"`
	Tags               []string    `json:"tags,omitempty"`
	EmbeddingKey       string      `json:"embedding_key,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}
