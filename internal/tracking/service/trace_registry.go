package service

import (
	"hash/fnv"
	"sync"

	"github.com/helicon-e2e/trailhead/internal/tracking/model"
)

const registryShardCount = 32

// traceEntry is the mutable in-flight state of one trace. All mutation of the
// trace, its span list and its message ledger happens under mu, which gives
// completeTrace an exclusive, consistent view for the force-finish cascade.
type traceEntry struct {
	mu      sync.Mutex
	trace   model.Trace
	spans   []*model.Span
	spanIdx map[string]*model.Span
	ledger  []model.MessageEvent
}

func (e *traceEntry) snapshotLocked() model.Trace {
	snapshot := e.trace
	snapshot.Spans = make([]model.Span, len(e.spans))
	for i, span := range e.spans {
		snapshot.Spans[i] = copySpan(span)
	}
	snapshot.Messages = make([]model.MessageEvent, len(e.ledger))
	copy(snapshot.Messages, e.ledger)
	return snapshot
}

func copySpan(span *model.Span) model.Span {
	out := *span
	if span.EndTime != nil {
		end := *span.EndTime
		out.EndTime = &end
	}
	out.Tags = copyStringMap(span.Tags)
	out.Logs = copyStringMap(span.Logs)
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// traceRegistry is the active-trace set: a striped-lock map keyed by
// correlation id, sized for high-fanout concurrent access from many
// simultaneous test runs.
type traceRegistry struct {
	shards [registryShardCount]registryShard
}

type registryShard struct {
	mu      sync.RWMutex
	entries map[string]*traceEntry
}

func newTraceRegistry() *traceRegistry {
	r := &traceRegistry{}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]*traceEntry)
	}
	return r
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % registryShardCount
}

func (r *traceRegistry) get(correlationID string) (*traceEntry, bool) {
	shard := &r.shards[shardFor(correlationID)]
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	entry, ok := shard.entries[correlationID]
	return entry, ok
}

// insert registers the entry, returning false if the correlation id is
// already present.
func (r *traceRegistry) insert(correlationID string, entry *traceEntry) bool {
	shard := &r.shards[shardFor(correlationID)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, exists := shard.entries[correlationID]; exists {
		return false
	}
	shard.entries[correlationID] = entry
	return true
}

func (r *traceRegistry) remove(correlationID string) {
	shard := &r.shards[shardFor(correlationID)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.entries, correlationID)
}

func (r *traceRegistry) count() int {
	total := 0
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}

// keys snapshots the registered correlation ids shard by shard. Entries
// inserted or removed during the walk may or may not be observed, which is
// acceptable for the sweep use case.
func (r *traceRegistry) keys() []string {
	out := make([]string, 0, 64)
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.RLock()
		for id := range shard.entries {
			out = append(out, id)
		}
		shard.mu.RUnlock()
	}
	return out
}

// spanIndex is the global span-id index for O(1) span lookup across traces.
type spanIndex struct {
	shards [registryShardCount]spanIndexShard
}

type spanIndexShard struct {
	mu      sync.RWMutex
	entries map[string]spanRef
}

type spanRef struct {
	correlationID string
	entry         *traceEntry
}

func newSpanIndex() *spanIndex {
	idx := &spanIndex{}
	for i := range idx.shards {
		idx.shards[i].entries = make(map[string]spanRef)
	}
	return idx
}

func (idx *spanIndex) put(spanID string, ref spanRef) {
	shard := &idx.shards[shardFor(spanID)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.entries[spanID] = ref
}

func (idx *spanIndex) get(spanID string) (spanRef, bool) {
	shard := &idx.shards[shardFor(spanID)]
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	ref, ok := shard.entries[spanID]
	return ref, ok
}

func (idx *spanIndex) removeAll(spanIDs []string) {
	for _, spanID := range spanIDs {
		shard := &idx.shards[shardFor(spanID)]
		shard.mu.Lock()
		delete(shard.entries, spanID)
		shard.mu.Unlock()
	}
}
