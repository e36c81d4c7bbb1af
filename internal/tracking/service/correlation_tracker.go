package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/helicon-e2e/trailhead/internal/tracking/model"
	"go.uber.org/zap"
)

var (
	// ErrTraceAlreadyActive signals that two callers tried to register the
	// same correlation id, which would let them stomp each other's state.
	ErrTraceAlreadyActive = errors.New("trace already active for correlation id")
	ErrTraceNotFound      = errors.New("no active trace for correlation id")
	ErrParentSpanNotFound = errors.New("parent span not found in trace")
)

// TraceSink receives every trace that reaches a terminal status, exactly
// once, for history persistence.
type TraceSink interface {
	RecordCompletedTrace(trace model.Trace)
}

// CorrelationTracker owns the active-trace set and the global span index and
// enforces the span hierarchy and cascade-completion invariants. All methods
// are safe for concurrent use.
type CorrelationTracker struct {
	traces *traceRegistry
	spans  *spanIndex
	sink   TraceSink
	logger *zap.Logger
}

// NewCorrelationTracker creates a tracker. sink may be nil, in which case
// terminal traces are dropped after being returned to the caller.
func NewCorrelationTracker(sink TraceSink, logger *zap.Logger) *CorrelationTracker {
	return &CorrelationTracker{
		traces: newTraceRegistry(),
		spans:  newSpanIndex(),
		sink:   sink,
		logger: logger,
	}
}

// GenerateCorrelationID returns a globally unique, human-inspectable
// correlation id.
func (ct *CorrelationTracker) GenerateCorrelationID() string {
	return "trace-" + uuid.NewString()
}

// GenerateSpanID returns a globally unique span id.
func (ct *CorrelationTracker) GenerateSpanID() string {
	return "span-" + uuid.NewString()
}

// StartTrace creates and registers a new ACTIVE trace. An empty correlationID
// gets a generated one. Registering a correlation id that is already active
// is a caller bug and fails loudly.
func (ct *CorrelationTracker) StartTrace(correlationID string, testID string, description string) (model.Trace, error) {
	if correlationID == "" {
		correlationID = ct.GenerateCorrelationID()
	}
	entry := &traceEntry{
		trace: model.Trace{
			CorrelationID: correlationID,
			TestID:        testID,
			Description:   description,
			StartTime:     time.Now(),
			Status:        model.TraceStatusActive,
		},
		spanIdx: make(map[string]*model.Span),
	}
	if !ct.traces.insert(correlationID, entry) {
		return model.Trace{}, fmt.Errorf("%w: %s", ErrTraceAlreadyActive, correlationID)
	}
	ct.logger.Debug("Started trace",
		zap.String("correlation_id", correlationID),
		zap.String("test_id", testID),
	)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.snapshotLocked(), nil
}

// StartSpan allocates a new root-level ACTIVE span under the given trace.
func (ct *CorrelationTracker) StartSpan(correlationID string, service string, operation string) (model.Span, error) {
	return ct.StartChildSpan(correlationID, "", service, operation)
}

// StartChildSpan allocates a new ACTIVE span nested under parentSpanID. An
// empty parentSpanID creates a root-level span. Fails if the trace does not
// exist, is already terminal, or the parent span is unknown.
func (ct *CorrelationTracker) StartChildSpan(
	correlationID string,
	parentSpanID string,
	service string,
	operation string,
) (model.Span, error) {
	entry, ok := ct.traces.get(correlationID)
	if !ok {
		return model.Span{}, fmt.Errorf("%w: %s", ErrTraceNotFound, correlationID)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.trace.Status.Terminal() {
		return model.Span{}, fmt.Errorf("%w: %s", ErrTraceNotFound, correlationID)
	}
	if parentSpanID != "" {
		if _, exists := entry.spanIdx[parentSpanID]; !exists {
			return model.Span{}, fmt.Errorf("%w: %s", ErrParentSpanNotFound, parentSpanID)
		}
	}

	span := &model.Span{
		SpanID:        ct.GenerateSpanID(),
		ParentSpanID:  parentSpanID,
		CorrelationID: correlationID,
		ServiceName:   service,
		OperationName: operation,
		StartTime:     time.Now(),
		Status:        model.SpanStatusActive,
	}
	entry.spans = append(entry.spans, span)
	entry.spanIdx[span.SpanID] = span
	if entry.trace.RootService == "" {
		entry.trace.RootService = service
	}
	ct.spans.put(span.SpanID, spanRef{correlationID: correlationID, entry: entry})

	return copySpan(span), nil
}

// FinishSpan transitions the span ACTIVE -> FINISHED and stamps its end time.
// Returns false if the span is unknown or already terminal: that is a normal
// race outcome under concurrent completion, not a caller bug.
func (ct *CorrelationTracker) FinishSpan(correlationID string, spanID string) bool {
	return ct.finishSpan(correlationID, spanID, model.SpanStatusFinished, "")
}

// FinishSpanWithError transitions the span ACTIVE -> ERROR with the given
// message. Same no-op semantics as FinishSpan for unknown/terminal spans.
func (ct *CorrelationTracker) FinishSpanWithError(correlationID string, spanID string, message string) bool {
	return ct.finishSpan(correlationID, spanID, model.SpanStatusError, message)
}

func (ct *CorrelationTracker) finishSpan(
	correlationID string,
	spanID string,
	status model.SpanStatus,
	errorMessage string,
) bool {
	entry, ok := ct.traces.get(correlationID)
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	span, exists := entry.spanIdx[spanID]
	if !exists || span.Status.Terminal() {
		return false
	}
	finishSpanLocked(span, status, errorMessage, time.Now())
	return true
}

func finishSpanLocked(span *model.Span, status model.SpanStatus, errorMessage string, now time.Time) {
	end := now
	if end.Before(span.StartTime) {
		end = span.StartTime
	}
	span.EndTime = &end
	span.DurationMs = end.Sub(span.StartTime).Milliseconds()
	span.Status = status
	if errorMessage != "" {
		span.ErrorMessage = errorMessage
	}
}

// AddSpanTag attaches a key/value tag to an existing span; no-op on unknown
// spans. Tags past the per-span bound are dropped.
func (ct *CorrelationTracker) AddSpanTag(correlationID string, spanID string, key string, value string) {
	ct.mutateSpan(correlationID, spanID, func(span *model.Span) {
		if span.Tags == nil {
			span.Tags = make(map[string]string)
		}
		if _, exists := span.Tags[key]; !exists && len(span.Tags) >= model.MaxSpanTags {
			return
		}
		span.Tags[key] = value
	})
}

// AddSpanLog attaches a key/value log record to an existing span; no-op on
// unknown spans.
func (ct *CorrelationTracker) AddSpanLog(correlationID string, spanID string, key string, value string) {
	ct.mutateSpan(correlationID, spanID, func(span *model.Span) {
		if span.Logs == nil {
			span.Logs = make(map[string]string)
		}
		span.Logs[key] = value
	})
}

func (ct *CorrelationTracker) mutateSpan(correlationID string, spanID string, mutate func(span *model.Span)) {
	entry, ok := ct.traces.get(correlationID)
	if !ok {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if span, exists := entry.spanIdx[spanID]; exists {
		mutate(span)
	}
}

// CompleteTrace atomically force-finishes every still-ACTIVE span as
// FINISHED, marks the trace COMPLETED, unregisters it and hands it off for
// history persistence. Returns nil if the trace is already gone.
func (ct *CorrelationTracker) CompleteTrace(correlationID string) *model.Trace {
	return ct.terminateTrace(correlationID, model.TraceStatusCompleted, "")
}

// FailTrace is the failure-path twin of CompleteTrace: still-ACTIVE spans end
// in ERROR with a message derived from errorDetails, the trace ends FAILED.
func (ct *CorrelationTracker) FailTrace(correlationID string, errorDetails string) *model.Trace {
	return ct.terminateTrace(correlationID, model.TraceStatusFailed, errorDetails)
}

func (ct *CorrelationTracker) terminateTrace(
	correlationID string,
	status model.TraceStatus,
	errorDetails string,
) *model.Trace {
	entry, ok := ct.traces.get(correlationID)
	if !ok {
		return nil
	}

	entry.mu.Lock()
	if entry.trace.Status.Terminal() {
		entry.mu.Unlock()
		return nil
	}

	spanStatus := model.SpanStatusFinished
	spanError := ""
	switch status {
	case model.TraceStatusFailed:
		spanStatus = model.SpanStatusError
		spanError = "trace failed: " + errorDetails
	case model.TraceStatusTimeout:
		spanStatus = model.SpanStatusError
		spanError = "trace timed out: " + errorDetails
	case model.TraceStatusCancelled:
		spanStatus = model.SpanStatusCancelled
		spanError = errorDetails
	}

	now := time.Now()
	spanIDs := make([]string, 0, len(entry.spans))
	for _, span := range entry.spans {
		spanIDs = append(spanIDs, span.SpanID)
		if !span.Status.Terminal() {
			finishSpanLocked(span, spanStatus, spanError, now)
		}
	}

	end := now
	entry.trace.EndTime = &end
	entry.trace.DurationMs = end.Sub(entry.trace.StartTime).Milliseconds()
	entry.trace.Status = status
	entry.trace.ErrorDetails = errorDetails
	snapshot := entry.snapshotLocked()
	entry.mu.Unlock()

	ct.traces.remove(correlationID)
	ct.spans.removeAll(spanIDs)

	ct.logger.Info("Trace reached terminal status",
		zap.String("correlation_id", correlationID),
		zap.String("status", string(status)),
		zap.Int64("duration_ms", snapshot.DurationMs),
		zap.Int("span_count", len(snapshot.Spans)),
	)

	if ct.sink != nil {
		ct.sink.RecordCompletedTrace(snapshot)
	}
	return &snapshot
}

// CleanupOldTraces force-fails every trace whose start time is older than
// maxAge as TIMEOUT and removes it, returning the number of traces swept.
// Intended to run from the background sweeper, never inline with request
// handling.
func (ct *CorrelationTracker) CleanupOldTraces(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	swept := 0
	for _, correlationID := range ct.traces.keys() {
		entry, ok := ct.traces.get(correlationID)
		if !ok {
			continue
		}
		entry.mu.Lock()
		expired := !entry.trace.Status.Terminal() && entry.trace.StartTime.Before(cutoff)
		entry.mu.Unlock()
		if !expired {
			continue
		}
		if trace := ct.terminateTrace(
			correlationID,
			model.TraceStatusTimeout,
			fmt.Sprintf("exceeded maximum trace age of %s", maxAge),
		); trace != nil {
			swept++
		}
	}
	if swept > 0 {
		ct.logger.Warn("Swept expired traces", zap.Int("count", swept), zap.Duration("max_age", maxAge))
	}
	return swept
}

// GetTrace returns a consistent snapshot of an active trace.
func (ct *CorrelationTracker) GetTrace(correlationID string) (model.Trace, bool) {
	entry, ok := ct.traces.get(correlationID)
	if !ok {
		return model.Trace{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.snapshotLocked(), true
}

// GetSpan looks a span up by id alone via the global span index.
func (ct *CorrelationTracker) GetSpan(spanID string) (model.Span, bool) {
	ref, ok := ct.spans.get(spanID)
	if !ok {
		return model.Span{}, false
	}
	ref.entry.mu.Lock()
	defer ref.entry.mu.Unlock()
	span, exists := ref.entry.spanIdx[spanID]
	if !exists {
		return model.Span{}, false
	}
	return copySpan(span), true
}

// GetActiveTraceCount reports the number of currently registered traces.
func (ct *CorrelationTracker) GetActiveTraceCount() int {
	return ct.traces.count()
}

// SummarizeTrace produces the read-only digest of an active trace consumed by
// the decision engine.
func (ct *CorrelationTracker) SummarizeTrace(correlationID string) (model.TraceSummary, bool) {
	trace, ok := ct.GetTrace(correlationID)
	if !ok {
		return model.TraceSummary{}, false
	}
	summary := model.TraceSummary{
		CorrelationID: trace.CorrelationID,
		Status:        trace.Status,
		DurationMs:    trace.DurationMs,
		Services:      trace.ServiceFlow(),
		SpanCounts:    make(map[model.SpanStatus]int),
		MessageCounts: make(map[model.MessageDirection]int),
	}
	for _, span := range trace.Spans {
		summary.SpanCounts[span.Status]++
	}
	for _, event := range trace.Messages {
		summary.MessageCounts[event.Direction]++
	}
	return summary, true
}
