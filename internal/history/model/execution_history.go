package model

import (
	"strings"
	"time"
)

type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "COMPLETED"
	OutcomeFailed    OutcomeStatus = "FAILED"
	OutcomeTimeout   OutcomeStatus = "TIMEOUT"
	OutcomeCancelled OutcomeStatus = "CANCELLED"
)

type ExecutionFailure struct {
	FailureType string    `json:"failure_type"`
	Service     string    `json:"service,omitempty"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// ExecutionHistory is the durable record of one completed test execution.
// Immutable once stored; the store is append-only.
type ExecutionHistory struct {
	ExecutionID   string             `json:"execution_id"`
	TestPlanID    string             `json:"test_plan_id"`
	CorrelationID string             `json:"correlation_id"`
	Status        OutcomeStatus      `json:"status"`
	StartTime     time.Time          `json:"start_time"`
	EndTime       time.Time          `json:"end_time"`
	DurationMs    int64              `json:"duration_ms"`
	ServiceFlow   []string           `json:"service_flow"`
	Failures      []ExecutionFailure `json:"failures,omitempty"`
	Environment   string             `json:"environment,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// FlowSignature canonicalizes an ordered service list into the grouping key
// used for pattern extraction. Flows compare positionally.
func FlowSignature(serviceFlow []string) string {
	return strings.Join(serviceFlow, "->")
}
