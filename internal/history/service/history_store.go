package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/helicon-e2e/trailhead/internal/history/model"
)

// ExecutionHistoryStore is the abstract, append-only store for completed
// test executions, indexed by correlation id and by start time.
type ExecutionHistoryStore interface {
	StoreExecutionHistory(ctx context.Context, history model.ExecutionHistory) error
	FindByCorrelationID(ctx context.Context, correlationID string) ([]model.ExecutionHistory, error)
	// FindRecent returns up to limit histories, most recent start time first.
	FindRecent(ctx context.Context, limit int) ([]model.ExecutionHistory, error)
	FindAll(ctx context.Context) ([]model.ExecutionHistory, error)
	// DeleteOlderThan purges histories whose start time precedes cutoff and
	// returns the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// InMemoryExecutionHistoryStore is the minimal store implementation: a
// mutex-guarded slice plus a correlation-id index. It is the default for
// tests and for deployments without a durable backend.
type InMemoryExecutionHistoryStore struct {
	mu            sync.RWMutex
	histories     []model.ExecutionHistory
	byCorrelation map[string][]int
}

func NewInMemoryExecutionHistoryStore() *InMemoryExecutionHistoryStore {
	return &InMemoryExecutionHistoryStore{
		byCorrelation: make(map[string][]int),
	}
}

func (s *InMemoryExecutionHistoryStore) StoreExecutionHistory(
	_ context.Context,
	history model.ExecutionHistory,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories = append(s.histories, history)
	s.byCorrelation[history.CorrelationID] = append(s.byCorrelation[history.CorrelationID], len(s.histories)-1)
	return nil
}

func (s *InMemoryExecutionHistoryStore) FindByCorrelationID(
	_ context.Context,
	correlationID string,
) ([]model.ExecutionHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	indices := s.byCorrelation[correlationID]
	out := make([]model.ExecutionHistory, 0, len(indices))
	for _, idx := range indices {
		out = append(out, s.histories[idx])
	}
	return out, nil
}

func (s *InMemoryExecutionHistoryStore) FindRecent(_ context.Context, limit int) ([]model.ExecutionHistory, error) {
	s.mu.RLock()
	out := make([]model.ExecutionHistory, len(s.histories))
	copy(out, s.histories)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryExecutionHistoryStore) FindAll(_ context.Context) ([]model.ExecutionHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ExecutionHistory, len(s.histories))
	copy(out, s.histories)
	return out, nil
}

func (s *InMemoryExecutionHistoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.histories[:0]
	removed := 0
	for _, history := range s.histories {
		if history.StartTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, history)
	}
	s.histories = kept
	s.byCorrelation = make(map[string][]int, len(s.histories))
	for idx, history := range s.histories {
		s.byCorrelation[history.CorrelationID] = append(s.byCorrelation[history.CorrelationID], idx)
	}
	return removed, nil
}
