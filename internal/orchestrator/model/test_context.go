package model

import (
	"sync"
	"time"
)

type InteractionDirection string

const (
	InteractionOutbound InteractionDirection = "OUTBOUND"
	InteractionInbound  InteractionDirection = "INBOUND"
)

// ServiceInteraction is the abstract interaction record handed over by the
// transport adapters: which service was touched, in which direction, with
// what outcome.
type ServiceInteraction struct {
	ServiceID string               `json:"service_id"`
	Direction InteractionDirection `json:"direction"`
	Status    string               `json:"status,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	LatencyMs int64                `json:"latency_ms,omitempty"`
}

// ContextEvent is one entry of a test context's event log.
type ContextEvent struct {
	Type          string            `json:"type"`
	CorrelationID string            `json:"correlation_id"`
	Description   string            `json:"description,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// TestContext carries the live state of one orchestrated test run: its
// correlation id, the service interactions observed so far, and a mutable
// event log the tracking core appends to as a side effect of tracking calls.
// Safe for concurrent use.
type TestContext struct {
	mu            sync.Mutex
	correlationID string
	testPlanID    string
	interactions  []ServiceInteraction
	events        []ContextEvent
}

func NewTestContext(correlationID string, testPlanID string) *TestContext {
	return &TestContext{
		correlationID: correlationID,
		testPlanID:    testPlanID,
	}
}

func (tc *TestContext) CorrelationID() string {
	return tc.correlationID
}

func (tc *TestContext) TestPlanID() string {
	return tc.testPlanID
}

func (tc *TestContext) AddInteraction(interaction ServiceInteraction) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.interactions = append(tc.interactions, interaction)
}

func (tc *TestContext) Interactions() []ServiceInteraction {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make([]ServiceInteraction, len(tc.interactions))
	copy(out, tc.interactions)
	return out
}

func (tc *TestContext) AppendEvent(event ContextEvent) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.events = append(tc.events, event)
}

func (tc *TestContext) Events() []ContextEvent {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make([]ContextEvent, len(tc.events))
	copy(out, tc.events)
	return out
}

// ServiceFlow returns the distinct services interacted with, in
// first-appearance order. This is the query shape for pattern similarity.
func (tc *TestContext) ServiceFlow() []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	seen := make(map[string]bool, len(tc.interactions))
	flow := make([]string, 0, len(tc.interactions))
	for _, interaction := range tc.interactions {
		if !seen[interaction.ServiceID] {
			seen[interaction.ServiceID] = true
			flow = append(flow, interaction.ServiceID)
		}
	}
	return flow
}
