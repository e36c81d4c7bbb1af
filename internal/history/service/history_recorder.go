package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/helicon-e2e/trailhead/internal/history/model"
	trackingModel "github.com/helicon-e2e/trailhead/internal/tracking/model"
	"go.uber.org/zap"
)

const storeTimeout = 2 * time.Second

// TraceCleaner is the slice of the correlation tracker the retention path
// needs: force-failing traces that outlived their allowed age.
type TraceCleaner interface {
	CleanupOldTraces(maxAge time.Duration) int
}

// HistoryRecorder converts terminal traces into immutable execution history
// records and persists them. It satisfies the tracker's TraceSink interface.
type HistoryRecorder struct {
	store       ExecutionHistoryStore
	patterns    *PatternService
	traces      TraceCleaner
	environment string
	logger      *zap.Logger
}

// NewHistoryRecorder creates a recorder. patterns and traces may be nil to
// disable live pattern refinement and trace retention respectively.
func NewHistoryRecorder(
	store ExecutionHistoryStore,
	patterns *PatternService,
	traces TraceCleaner,
	environment string,
	logger *zap.Logger,
) *HistoryRecorder {
	return &HistoryRecorder{
		store:       store,
		patterns:    patterns,
		traces:      traces,
		environment: environment,
		logger:      logger,
	}
}

// RecordCompletedTrace persists the execution history derived from a
// terminal trace and folds its outcome into the pattern registered for its
// service flow.
func (hr *HistoryRecorder) RecordCompletedTrace(trace trackingModel.Trace) {
	history := hr.toExecutionHistory(trace)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := hr.store.StoreExecutionHistory(ctx, history); err != nil {
		hr.logger.Error("Failed to store execution history",
			zap.String("correlation_id", trace.CorrelationID),
			zap.Error(err),
		)
		return
	}

	if hr.patterns != nil {
		err := hr.patterns.RecordOutcome(
			ctx,
			history.ServiceFlow,
			history.Status == model.OutcomeCompleted,
			history.DurationMs,
		)
		if err != nil {
			hr.logger.Warn("Failed to fold execution outcome into pattern",
				zap.String("correlation_id", trace.CorrelationID),
				zap.Error(err),
			)
		}
	}
}

func (hr *HistoryRecorder) toExecutionHistory(trace trackingModel.Trace) model.ExecutionHistory {
	endTime := trace.StartTime
	if trace.EndTime != nil {
		endTime = *trace.EndTime
	}

	failures := make([]model.ExecutionFailure, 0)
	if trace.ErrorDetails != "" {
		failures = append(failures, model.ExecutionFailure{
			FailureType: string(trace.Status),
			Message:     trace.ErrorDetails,
			Timestamp:   endTime,
		})
	}
	for _, span := range trace.Spans {
		if span.Status != trackingModel.SpanStatusError || span.ErrorMessage == "" {
			continue
		}
		timestamp := span.StartTime
		if span.EndTime != nil {
			timestamp = *span.EndTime
		}
		failures = append(failures, model.ExecutionFailure{
			FailureType: "SPAN_ERROR",
			Service:     span.ServiceName,
			Message:     span.ErrorMessage,
			Timestamp:   timestamp,
		})
	}

	return model.ExecutionHistory{
		ExecutionID:   "exec-" + uuid.NewString(),
		TestPlanID:    trace.TestID,
		CorrelationID: trace.CorrelationID,
		Status:        outcomeForTrace(trace.Status),
		StartTime:     trace.StartTime,
		EndTime:       endTime,
		DurationMs:    trace.DurationMs,
		ServiceFlow:   trace.ServiceFlow(),
		Failures:      failures,
		Environment:   hr.environment,
		CreatedAt:     time.Now(),
	}
}

func outcomeForTrace(status trackingModel.TraceStatus) model.OutcomeStatus {
	switch status {
	case trackingModel.TraceStatusCompleted:
		return model.OutcomeCompleted
	case trackingModel.TraceStatusTimeout:
		return model.OutcomeTimeout
	case trackingModel.TraceStatusCancelled:
		return model.OutcomeCancelled
	default:
		return model.OutcomeFailed
	}
}

// CleanupOldData purges execution histories past the retention horizon and
// force-fails any still-registered trace older than the same horizon,
// returning the combined count removed.
func (hr *HistoryRecorder) CleanupOldData(ctx context.Context, retentionDays int) (int, error) {
	retention := time.Duration(retentionDays) * 24 * time.Hour
	cutoff := time.Now().Add(-retention)

	removed, err := hr.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if hr.traces != nil {
		removed += hr.traces.CleanupOldTraces(retention)
	}
	if removed > 0 {
		hr.logger.Info("Purged aged execution data",
			zap.Int("removed", removed),
			zap.Int("retention_days", retentionDays),
		)
	}
	return removed, nil
}
