package service

import (
	"sync"
	"testing"
	"time"

	"github.com/helicon-e2e/trailhead/internal/tracking/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCorrelationTracker_StartTrace(t *testing.T) {
	t.Run("Registers a new active trace", func(t *testing.T) {
		tracker := getNewTracker(nil)
		trace, err := tracker.StartTrace("T1", "plan-1", "checkout flow")
		require.NoError(t, err)
		assert.Equal(t, "T1", trace.CorrelationID)
		assert.Equal(t, model.TraceStatusActive, trace.Status)
		assert.Nil(t, trace.EndTime)
		assert.Equal(t, 1, tracker.GetActiveTraceCount())
	})

	t.Run("Generates a correlation id when none is supplied", func(t *testing.T) {
		tracker := getNewTracker(nil)
		trace, err := tracker.StartTrace("", "plan-1", "")
		require.NoError(t, err)
		assert.NotEmpty(t, trace.CorrelationID)
		assert.Contains(t, trace.CorrelationID, "trace-")
	})

	t.Run("Fails loudly when the correlation id is already active", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartTrace("T1", "plan-1", "")
		require.NoError(t, err)
		_, err = tracker.StartTrace("T1", "plan-2", "")
		assert.ErrorIs(t, err, ErrTraceAlreadyActive)
	})
}

func TestCorrelationTracker_StartSpan(t *testing.T) {
	t.Run("Returns error for an unknown trace", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartSpan("missing", "order-service", "submit")
		assert.ErrorIs(t, err, ErrTraceNotFound)
	})

	t.Run("Registers the span in the global index", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartTrace("T1", "plan-1", "")
		require.NoError(t, err)
		span, err := tracker.StartSpan("T1", "order-service", "submit")
		require.NoError(t, err)

		indexed, found := tracker.GetSpan(span.SpanID)
		assert.True(t, found)
		assert.Equal(t, "order-service", indexed.ServiceName)
		assert.Equal(t, model.SpanStatusActive, indexed.Status)
		assert.Nil(t, indexed.EndTime)
	})

	t.Run("Rejects a child span with an unknown parent", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartTrace("T1", "plan-1", "")
		require.NoError(t, err)
		_, err = tracker.StartChildSpan("T1", "span-nope", "order-service", "submit")
		assert.ErrorIs(t, err, ErrParentSpanNotFound)
	})

	t.Run("Links a child span to its parent", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartTrace("T1", "plan-1", "")
		require.NoError(t, err)
		parent, err := tracker.StartSpan("T1", "order-service", "submit")
		require.NoError(t, err)
		child, err := tracker.StartChildSpan("T1", parent.SpanID, "payment-service", "charge")
		require.NoError(t, err)
		assert.Equal(t, parent.SpanID, child.ParentSpanID)
	})
}

func TestCorrelationTracker_FinishSpan(t *testing.T) {
	t.Run("Stamps end time and duration", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartTrace("T1", "plan-1", "")
		require.NoError(t, err)
		span, err := tracker.StartSpan("T1", "order-service", "submit")
		require.NoError(t, err)

		assert.True(t, tracker.FinishSpan("T1", span.SpanID))
		finished, found := tracker.GetSpan(span.SpanID)
		require.True(t, found)
		assert.Equal(t, model.SpanStatusFinished, finished.Status)
		require.NotNil(t, finished.EndTime)
		assert.False(t, finished.EndTime.Before(finished.StartTime))
		assert.GreaterOrEqual(t, finished.DurationMs, int64(0))
	})

	t.Run("Second finish is a no-op, not an error", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartTrace("T1", "plan-1", "")
		require.NoError(t, err)
		span, err := tracker.StartSpan("T1", "order-service", "submit")
		require.NoError(t, err)

		assert.True(t, tracker.FinishSpan("T1", span.SpanID))
		assert.False(t, tracker.FinishSpan("T1", span.SpanID))
		assert.False(t, tracker.FinishSpanWithError("T1", span.SpanID, "late failure"))

		finished, _ := tracker.GetSpan(span.SpanID)
		assert.Equal(t, model.SpanStatusFinished, finished.Status)
		assert.Empty(t, finished.ErrorMessage)
	})

	t.Run("Returns false for unknown spans", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartTrace("T1", "plan-1", "")
		require.NoError(t, err)
		assert.False(t, tracker.FinishSpan("T1", "span-unknown"))
	})
}

func TestCorrelationTracker_SpanMetadata(t *testing.T) {
	t.Run("Attaches tags and logs to an existing span", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartTrace("T1", "plan-1", "")
		require.NoError(t, err)
		span, err := tracker.StartSpan("T1", "order-service", "submit")
		require.NoError(t, err)

		tracker.AddSpanTag("T1", span.SpanID, "http.status", "200")
		tracker.AddSpanLog("T1", span.SpanID, "checkpoint", "validated")

		current, _ := tracker.GetSpan(span.SpanID)
		assert.Equal(t, "200", current.Tags["http.status"])
		assert.Equal(t, "validated", current.Logs["checkpoint"])
	})

	t.Run("No-op on unknown span", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartTrace("T1", "plan-1", "")
		require.NoError(t, err)
		tracker.AddSpanTag("T1", "span-unknown", "k", "v")
		tracker.AddSpanLog("T-unknown", "span-unknown", "k", "v")
	})
}

func TestCorrelationTracker_CompleteTrace(t *testing.T) {
	t.Run("Completes the trace and force-finishes open spans", func(t *testing.T) {
		sink := &captureSink{}
		tracker := getNewTracker(sink)
		_, err := tracker.StartTrace("T1", "plan-1", "")
		require.NoError(t, err)
		span, err := tracker.StartSpan("T1", "order-service", "submit")
		require.NoError(t, err)
		assert.True(t, tracker.FinishSpan("T1", span.SpanID))

		trace := tracker.CompleteTrace("T1")
		require.NotNil(t, trace)
		assert.Equal(t, model.TraceStatusCompleted, trace.Status)
		assert.GreaterOrEqual(t, trace.DurationMs, int64(0))
		require.Len(t, trace.Spans, 1)
		assert.Equal(t, model.SpanStatusFinished, trace.Spans[0].Status)
		assert.Equal(t, 0, tracker.GetActiveTraceCount())
		require.Len(t, sink.traces(), 1)
		assert.Equal(t, "T1", sink.traces()[0].CorrelationID)
	})

	t.Run("Returns nil for an already-terminal trace", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartTrace("T1", "plan-1", "")
		require.NoError(t, err)
		require.NotNil(t, tracker.CompleteTrace("T1"))
		assert.Nil(t, tracker.CompleteTrace("T1"))
		assert.Nil(t, tracker.FailTrace("T1", "too late"))
	})

	t.Run("FailTrace marks every open span with the error details", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartTrace("T2", "plan-1", "")
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			_, err = tracker.StartSpan("T2", "order-service", "step")
			require.NoError(t, err)
		}

		trace := tracker.FailTrace("T2", "boom")
		require.NotNil(t, trace)
		assert.Equal(t, model.TraceStatusFailed, trace.Status)
		assert.Equal(t, "boom", trace.ErrorDetails)
		require.Len(t, trace.Spans, 3)
		for _, span := range trace.Spans {
			assert.Equal(t, model.SpanStatusError, span.Status)
			assert.Contains(t, span.ErrorMessage, "boom")
			require.NotNil(t, span.EndTime)
		}
	})

	t.Run("No span outlives its trace in ACTIVE state under concurrent starts", func(t *testing.T) {
		sink := &captureSink{}
		tracker := getNewTracker(sink)
		_, err := tracker.StartTrace("T3", "plan-1", "")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Either the span starts before completion and is force-finished,
				// or the start is rejected. Both uphold the invariant.
				_, _ = tracker.StartSpan("T3", "order-service", "concurrent")
			}()
		}
		trace := tracker.CompleteTrace("T3")
		wg.Wait()

		require.NotNil(t, trace)
		recorded := sink.traces()[0]
		for _, span := range recorded.Spans {
			assert.NotEqual(t, model.SpanStatusActive, span.Status)
		}
		assert.Equal(t, 0, tracker.GetActiveTraceCount())
	})
}

func TestCorrelationTracker_CleanupOldTraces(t *testing.T) {
	t.Run("Force-fails aged traces as TIMEOUT", func(t *testing.T) {
		sink := &captureSink{}
		tracker := getNewTracker(sink)
		_, err := tracker.StartTrace("T-old", "plan-1", "")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)

		swept := tracker.CleanupOldTraces(time.Millisecond)
		assert.Equal(t, 1, swept)
		assert.Equal(t, 0, tracker.GetActiveTraceCount())
		require.Len(t, sink.traces(), 1)
		assert.Equal(t, model.TraceStatusTimeout, sink.traces()[0].Status)
	})

	t.Run("Leaves young traces alone", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, err := tracker.StartTrace("T-young", "plan-1", "")
		require.NoError(t, err)
		assert.Equal(t, 0, tracker.CleanupOldTraces(time.Hour))
		assert.Equal(t, 1, tracker.GetActiveTraceCount())
	})
}

func TestCorrelationTracker_GenerateIDs(t *testing.T) {
	t.Run("Produces no duplicates across 10000 calls", func(t *testing.T) {
		tracker := getNewTracker(nil)
		seen := make(map[string]bool, 20000)
		for i := 0; i < 10000; i++ {
			correlationID := tracker.GenerateCorrelationID()
			spanID := tracker.GenerateSpanID()
			assert.False(t, seen[correlationID])
			assert.False(t, seen[spanID])
			seen[correlationID] = true
			seen[spanID] = true
		}
	})
}

func TestCorrelationTracker_SummarizeTrace(t *testing.T) {
	t.Run("Summarizes span and message counts", func(t *testing.T) {
		tracker := getNewTracker(nil)
		recorder := NewMessageFlowRecorder(tracker, zap.NewNop())
		_, err := tracker.StartTrace("T1", "plan-1", "")
		require.NoError(t, err)
		span, err := tracker.StartSpan("T1", "order-service", "submit")
		require.NoError(t, err)
		_, err = tracker.StartSpan("T1", "payment-service", "charge")
		require.NoError(t, err)
		require.True(t, tracker.FinishSpan("T1", span.SpanID))
		require.NoError(t, recorder.RecordMessageSent("T1", "orders", "k1", []byte("{}"), ""))

		summary, found := tracker.SummarizeTrace("T1")
		require.True(t, found)
		assert.Equal(t, []string{"order-service", "payment-service"}, summary.Services)
		assert.Equal(t, 1, summary.SpanCounts[model.SpanStatusFinished])
		assert.Equal(t, 1, summary.SpanCounts[model.SpanStatusActive])
		assert.Equal(t, 1, summary.MessageCounts[model.DirectionSent])
	})

	t.Run("Reports not found for unknown traces", func(t *testing.T) {
		tracker := getNewTracker(nil)
		_, found := tracker.SummarizeTrace("missing")
		assert.False(t, found)
	})
}

type captureSink struct {
	mu       sync.Mutex
	recorded []model.Trace
}

func (s *captureSink) RecordCompletedTrace(trace model.Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, trace)
}

func (s *captureSink) traces() []model.Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Trace, len(s.recorded))
	copy(out, s.recorded)
	return out
}

func getNewTracker(sink TraceSink) *CorrelationTracker {
	return NewCorrelationTracker(sink, zap.NewNop())
}
