package service

import (
	"context"
	"sync"

	"github.com/helicon-e2e/trailhead/internal/history/model"
)

// PatternStore holds aggregated patterns keyed by id and by flow signature.
// Update must apply its mutation atomically per pattern id: two executions
// finishing concurrently with the same signature must not lose an update.
type PatternStore interface {
	Get(ctx context.Context, patternID string) (*model.Pattern, error)
	GetBySignature(ctx context.Context, signature string) (*model.Pattern, error)
	FindByType(ctx context.Context, patternType model.PatternType) ([]model.Pattern, error)
	All(ctx context.Context) ([]model.Pattern, error)
	Save(ctx context.Context, pattern model.Pattern) error
	// Update applies mutate to the pattern under the store's per-pattern
	// serialization and returns the result, or nil if the id is unknown.
	Update(ctx context.Context, patternID string, mutate func(pattern *model.Pattern)) (*model.Pattern, error)
}

type InMemoryPatternStore struct {
	mu          sync.RWMutex
	byID        map[string]*model.Pattern
	bySignature map[string]string
}

func NewInMemoryPatternStore() *InMemoryPatternStore {
	return &InMemoryPatternStore{
		byID:        make(map[string]*model.Pattern),
		bySignature: make(map[string]string),
	}
}

func (s *InMemoryPatternStore) Get(_ context.Context, patternID string) (*model.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pattern, ok := s.byID[patternID]
	if !ok {
		return nil, nil
	}
	out := clonePattern(pattern)
	return &out, nil
}

func (s *InMemoryPatternStore) GetBySignature(_ context.Context, signature string) (*model.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patternID, ok := s.bySignature[signature]
	if !ok {
		return nil, nil
	}
	out := clonePattern(s.byID[patternID])
	return &out, nil
}

func (s *InMemoryPatternStore) FindByType(
	_ context.Context,
	patternType model.PatternType,
) ([]model.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Pattern, 0)
	for _, pattern := range s.byID {
		if pattern.Type == patternType {
			out = append(out, clonePattern(pattern))
		}
	}
	return out, nil
}

func (s *InMemoryPatternStore) All(_ context.Context) ([]model.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Pattern, 0, len(s.byID))
	for _, pattern := range s.byID {
		out = append(out, clonePattern(pattern))
	}
	return out, nil
}

func (s *InMemoryPatternStore) Save(_ context.Context, pattern model.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := clonePattern(&pattern)
	s.byID[pattern.PatternID] = &stored
	s.bySignature[pattern.Signature] = pattern.PatternID
	return nil
}

func (s *InMemoryPatternStore) Update(
	_ context.Context,
	patternID string,
	mutate func(pattern *model.Pattern),
) (*model.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pattern, ok := s.byID[patternID]
	if !ok {
		return nil, nil
	}
	mutate(pattern)
	out := clonePattern(pattern)
	return &out, nil
}

func clonePattern(pattern *model.Pattern) model.Pattern {
	out := *pattern
	out.ServiceFlow = append([]string(nil), pattern.ServiceFlow...)
	out.Tags = append([]string(nil), pattern.Tags...)
	return out
}
