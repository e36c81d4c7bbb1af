package service

import (
	"fmt"
	"time"

	"github.com/helicon-e2e/trailhead/internal/tracking/model"
	"go.uber.org/zap"
)

const defaultLatencyThreshold = 5 * time.Second

type FlowAnalyzerConfig struct {
	// LatencyThreshold is the maximum tolerated delta between a matched
	// SENT/RECEIVED pair before a TIMING_ISSUE is reported.
	LatencyThreshold time.Duration
}

func (c *FlowAnalyzerConfig) ApplyDefaults() {
	if c.LatencyThreshold <= 0 {
		c.LatencyThreshold = defaultLatencyThreshold
	}
}

// FlowAnalyzer derives ordering, missing-response and timing findings from a
// trace's message ledger. Analysis is read-only and side-effect free.
//
// Pairing rule: a SENT event is matched to the first unmatched RECEIVED event
// that follows it in ledger (arrival) order. Matching is correlation-id only;
// topic and key are carried on findings for diagnostics but are not part of
// the match predicate, since the transport may route replies through a
// different topic than the request.
type FlowAnalyzer struct {
	recorder *MessageFlowRecorder
	config   FlowAnalyzerConfig
	logger   *zap.Logger
}

func NewFlowAnalyzer(recorder *MessageFlowRecorder, config FlowAnalyzerConfig, logger *zap.Logger) *FlowAnalyzer {
	config.ApplyDefaults()
	return &FlowAnalyzer{
		recorder: recorder,
		config:   config,
		logger:   logger,
	}
}

// AnalyzeMessageFlow analyzes the live ledger of the given trace. An empty
// ledger (unknown trace included) produces an empty issue list, not an error:
// "no data" and "no problems" are indistinguishable at this layer.
func (fa *FlowAnalyzer) AnalyzeMessageFlow(correlationID string) []model.FlowIssue {
	return fa.AnalyzeLedger(fa.recorder.GetMessageHistory(correlationID))
}

// AnalyzeLedger runs the same analysis over an already-captured ledger, e.g.
// the message list of a completed trace snapshot.
func (fa *FlowAnalyzer) AnalyzeLedger(events []model.MessageEvent) []model.FlowIssue {
	issues := make([]model.FlowIssue, 0)
	if len(events) == 0 {
		return issues
	}

	matched := make([]bool, len(events))
	for i, event := range events {
		if event.Direction != model.DirectionSent {
			continue
		}

		responseIdx := -1
		for j := i + 1; j < len(events); j++ {
			if events[j].Direction == model.DirectionReceived && !matched[j] {
				responseIdx = j
				break
			}
		}

		if responseIdx == -1 {
			issues = append(issues, model.FlowIssue{
				Type:          model.IssueMissingResponse,
				CorrelationID: event.CorrelationID,
				Topic:         event.Topic,
				Key:           event.Key,
				Description:   fmt.Sprintf("no response observed for message sent on topic %q", event.Topic),
				Timestamp:     event.Timestamp,
			})
			continue
		}

		matched[responseIdx] = true
		response := events[responseIdx]
		if response.Timestamp.Before(event.Timestamp) {
			issues = append(issues, model.FlowIssue{
				Type:          model.IssueOrderingViolation,
				CorrelationID: event.CorrelationID,
				Topic:         response.Topic,
				Key:           response.Key,
				Description: fmt.Sprintf(
					"response on topic %q timestamped %s before its request",
					response.Topic,
					event.Timestamp.Sub(response.Timestamp),
				),
				Timestamp: response.Timestamp,
			})
			continue
		}

		latency := response.Timestamp.Sub(event.Timestamp)
		if latency > fa.config.LatencyThreshold {
			issues = append(issues, model.FlowIssue{
				Type:          model.IssueTimingIssue,
				CorrelationID: event.CorrelationID,
				Topic:         response.Topic,
				Key:           response.Key,
				Description: fmt.Sprintf(
					"response latency %s exceeded threshold %s",
					latency,
					fa.config.LatencyThreshold,
				),
				LatencyMs: latency.Milliseconds(),
				Timestamp: response.Timestamp,
			})
		}
	}
	return issues
}
