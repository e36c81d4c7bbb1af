package service

import (
	"context"
	"testing"
	"time"

	"github.com/helicon-e2e/trailhead/internal/history/model"
	trackingModel "github.com/helicon-e2e/trailhead/internal/tracking/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHistoryRecorder_RecordCompletedTrace(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	end := base.Add(3 * time.Second)

	t.Run("Converts a completed trace into an immutable history record", func(t *testing.T) {
		store := NewInMemoryExecutionHistoryStore()
		recorder := NewHistoryRecorder(store, nil, nil, "staging", zap.NewNop())

		recorder.RecordCompletedTrace(trackingModel.Trace{
			CorrelationID: "T1",
			TestID:        "plan-1",
			Status:        trackingModel.TraceStatusCompleted,
			StartTime:     base,
			EndTime:       &end,
			DurationMs:    3000,
			Spans: []trackingModel.Span{
				{ServiceName: "order-service", Status: trackingModel.SpanStatusFinished},
				{ServiceName: "payment-service", Status: trackingModel.SpanStatusFinished},
				{ServiceName: "order-service", Status: trackingModel.SpanStatusFinished},
			},
		})

		histories, err := store.FindByCorrelationID(context.Background(), "T1")
		require.NoError(t, err)
		require.Len(t, histories, 1)
		history := histories[0]
		assert.Contains(t, history.ExecutionID, "exec-")
		assert.Equal(t, "plan-1", history.TestPlanID)
		assert.Equal(t, model.OutcomeCompleted, history.Status)
		assert.Equal(t, []string{"order-service", "payment-service"}, history.ServiceFlow)
		assert.Equal(t, "staging", history.Environment)
		assert.Empty(t, history.Failures)
	})

	t.Run("Collects trace and span failures on a failed trace", func(t *testing.T) {
		store := NewInMemoryExecutionHistoryStore()
		recorder := NewHistoryRecorder(store, nil, nil, "", zap.NewNop())

		recorder.RecordCompletedTrace(trackingModel.Trace{
			CorrelationID: "T2",
			Status:        trackingModel.TraceStatusFailed,
			StartTime:     base,
			EndTime:       &end,
			ErrorDetails:  "boom",
			Spans: []trackingModel.Span{
				{ServiceName: "order-service", Status: trackingModel.SpanStatusError, ErrorMessage: "trace failed: boom"},
			},
		})

		histories, err := store.FindByCorrelationID(context.Background(), "T2")
		require.NoError(t, err)
		require.Len(t, histories, 1)
		history := histories[0]
		assert.Equal(t, model.OutcomeFailed, history.Status)
		require.Len(t, history.Failures, 2)
		assert.Equal(t, string(trackingModel.TraceStatusFailed), history.Failures[0].FailureType)
		assert.Equal(t, "SPAN_ERROR", history.Failures[1].FailureType)
		assert.Equal(t, "order-service", history.Failures[1].Service)
	})

	t.Run("Maps a timed-out trace to the TIMEOUT outcome", func(t *testing.T) {
		store := NewInMemoryExecutionHistoryStore()
		recorder := NewHistoryRecorder(store, nil, nil, "", zap.NewNop())

		recorder.RecordCompletedTrace(trackingModel.Trace{
			CorrelationID: "T3",
			Status:        trackingModel.TraceStatusTimeout,
			StartTime:     base,
			EndTime:       &end,
		})

		histories, err := store.FindByCorrelationID(context.Background(), "T3")
		require.NoError(t, err)
		require.Len(t, histories, 1)
		assert.Equal(t, model.OutcomeTimeout, histories[0].Status)
	})

	t.Run("Folds the outcome into a registered pattern", func(t *testing.T) {
		store := NewInMemoryExecutionHistoryStore()
		patterns := NewPatternService(store, NewInMemoryPatternStore(), nil, PatternServiceConfig{}, zap.NewNop())
		recorder := NewHistoryRecorder(store, patterns, nil, "", zap.NewNop())

		// First completion seeds the history; extraction registers the pattern.
		recorder.RecordCompletedTrace(trackingModel.Trace{
			CorrelationID: "T4",
			Status:        trackingModel.TraceStatusCompleted,
			StartTime:     base,
			EndTime:       &end,
			DurationMs:    100,
			Spans:         []trackingModel.Span{{ServiceName: "order-service"}},
		})
		extracted, err := patterns.AnalyzeAndExtractPatterns(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, extracted, 1)

		recorder.RecordCompletedTrace(trackingModel.Trace{
			CorrelationID: "T5",
			Status:        trackingModel.TraceStatusCompleted,
			StartTime:     base.Add(time.Minute),
			EndTime:       &end,
			DurationMs:    300,
			Spans:         []trackingModel.Span{{ServiceName: "order-service"}},
		})

		updated := patterns.GetPattern(context.Background(), extracted[0].PatternID)
		require.NotNil(t, updated)
		assert.Equal(t, int64(2), updated.UsageCount)
		assert.InDelta(t, 200.0, updated.AvgExecutionTimeMs, 1e-9)
	})
}

func TestHistoryRecorder_CleanupOldData(t *testing.T) {
	t.Run("Combines purged histories with swept traces", func(t *testing.T) {
		store := NewInMemoryExecutionHistoryStore()
		old := time.Now().Add(-30 * 24 * time.Hour)
		require.NoError(t, store.StoreExecutionHistory(context.Background(), model.ExecutionHistory{
			ExecutionID:   "exec-old",
			CorrelationID: "T1",
			StartTime:     old,
			EndTime:       old.Add(time.Second),
		}))

		cleaner := &stubTraceCleaner{swept: 2}
		recorder := NewHistoryRecorder(store, nil, cleaner, "", zap.NewNop())

		removed, err := recorder.CleanupOldData(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, 3, removed)
		assert.Equal(t, 7*24*time.Hour, cleaner.maxAge)
	})
}

type stubTraceCleaner struct {
	swept  int
	maxAge time.Duration
}

func (s *stubTraceCleaner) CleanupOldTraces(maxAge time.Duration) int {
	s.maxAge = maxAge
	return s.swept
}
