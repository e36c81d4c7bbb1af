package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/helicon-e2e/trailhead/internal/db/elasticsearch/bootstrapper"
	"github.com/helicon-e2e/trailhead/internal/db/elasticsearch/client"
	"github.com/helicon-e2e/trailhead/internal/history/model"
	"github.com/helicon-e2e/trailhead/pkg/cache"
	"go.uber.org/zap"
)

var allHistoriesSize = 10000

// EsExecutionHistoryStore is the durable ExecutionHistoryStore backend.
// Writes go through the write-behind buffer and reach Elasticsearch in bulk;
// reads for a correlation id are served from the buffer's cache when
// possible and fall back to a search.
type EsExecutionHistoryStore struct {
	sc     client.StoreClient
	buffer cache.WriteBehindCache[model.ExecutionHistory]
	logger *zap.Logger
}

func NewEsExecutionHistoryStore(
	sc client.StoreClient,
	buffer cache.WriteBehindCache[model.ExecutionHistory],
	logger *zap.Logger,
) *EsExecutionHistoryStore {
	return &EsExecutionHistoryStore{
		sc:     sc,
		buffer: buffer,
		logger: logger,
	}
}

func (s *EsExecutionHistoryStore) StoreExecutionHistory(
	ctx context.Context,
	history model.ExecutionHistory,
) error {
	err := s.buffer.Put(ctx, history.CorrelationID, []model.ExecutionHistory{history})
	if err != nil {
		return fmt.Errorf("failed to buffer execution history: %w", err)
	}
	return nil
}

func (s *EsExecutionHistoryStore) FindByCorrelationID(
	ctx context.Context,
	correlationID string,
) ([]model.ExecutionHistory, error) {
	cached, err := s.buffer.Get(correlationID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrKeyNotFound) {
		s.logger.Warn("Cache lookup failed, falling back to search", zap.Error(err))
	}

	docs, err := s.sc.Search(ctx, buildCorrelationIDQuery(correlationID), []string{bootstrapper.HistoryIndexName}, &allHistoriesSize)
	if err != nil {
		return nil, fmt.Errorf("failed to search histories by correlation id: %w", err)
	}
	return convertToHistories(docs)
}

func (s *EsExecutionHistoryStore) FindRecent(ctx context.Context, limit int) ([]model.ExecutionHistory, error) {
	if limit <= 0 {
		limit = 10
	}
	docs, err := s.sc.Search(ctx, buildRecentQuery(), []string{bootstrapper.HistoryIndexName}, &limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search recent histories: %w", err)
	}
	return convertToHistories(docs)
}

func (s *EsExecutionHistoryStore) FindAll(ctx context.Context) ([]model.ExecutionHistory, error) {
	docs, err := s.sc.Search(ctx, buildMatchAllQuery(), []string{bootstrapper.HistoryIndexName}, &allHistoriesSize)
	if err != nil {
		return nil, fmt.Errorf("failed to search all histories: %w", err)
	}
	return convertToHistories(docs)
}

func (s *EsExecutionHistoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	deleted, err := s.sc.DeleteByQuery(ctx, buildOlderThanQuery(cutoff), []string{bootstrapper.HistoryIndexName})
	if err != nil {
		return 0, fmt.Errorf("failed to delete aged histories: %w", err)
	}
	return deleted, nil
}

// Flush forces the write-behind buffer out to Elasticsearch, e.g. on
// shutdown.
func (s *EsExecutionHistoryStore) Flush(ctx context.Context) error {
	return s.buffer.Flush(ctx)
}

func convertToHistories(docs []map[string]interface{}) ([]model.ExecutionHistory, error) {
	histories := make([]model.ExecutionHistory, 0, len(docs))
	for _, doc := range docs {
		delete(doc, "_id")
		docJSON, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history document: %w", err)
		}
		var history model.ExecutionHistory
		if err := json.Unmarshal(docJSON, &history); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history document: %w", err)
		}
		histories = append(histories, history)
	}
	return histories, nil
}
