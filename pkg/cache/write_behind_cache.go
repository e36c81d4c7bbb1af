package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/helicon-e2e/trailhead/internal/db/elasticsearch/client"
	"go.uber.org/zap"
)

// WriteBehindCache batches writes to a backend index while serving reads from
// an in-process cache. Cache eviction follows ristretto's LRU/LFU policies;
// the write queue is only drained by flushing, so no accepted write is lost
// to eviction.
type WriteBehindCache[ValueType any] interface {
	Get(key string) ([]ValueType, error)
	Put(ctx context.Context, key string, value []ValueType) error
	Flush(ctx context.Context) error
}

type WriteBehindCacheImpl[ValueType any] struct {
	cache          *ristretto.Cache
	mu             sync.Mutex
	writeQueue     map[string][]ValueType
	queued         int
	sc             client.StoreClient
	indexName      string
	flushThreshold int
	logger         *zap.Logger
}

const defaultFlushThreshold = 100

func NewWriteBehindCacheImpl[ValueType any](
	cache *ristretto.Cache,
	sc client.StoreClient,
	indexName string,
	flushThreshold int,
	logger *zap.Logger,
) *WriteBehindCacheImpl[ValueType] {
	if flushThreshold <= 0 {
		flushThreshold = defaultFlushThreshold
	}
	return &WriteBehindCacheImpl[ValueType]{
		cache:          cache,
		writeQueue:     make(map[string][]ValueType),
		sc:             sc,
		indexName:      indexName,
		flushThreshold: flushThreshold,
		logger:         logger,
	}
}

func (wbc *WriteBehindCacheImpl[ValueType]) Get(key string) ([]ValueType, error) {
	value, found := wbc.cache.Get(key)
	if !found {
		return nil, ErrKeyNotFound
	}
	typedValue, ok := value.([]ValueType)
	if !ok {
		return nil, fmt.Errorf("value not of expected type %T returned from cache when getting", value)
	}

	return typedValue, nil
}

func (wbc *WriteBehindCacheImpl[ValueType]) Put(ctx context.Context, key string, value []ValueType) error {
	wbc.mu.Lock()
	wbc.writeQueue[key] = append(wbc.writeQueue[key], value...)
	wbc.queued += len(value)
	shouldFlush := wbc.queued >= wbc.flushThreshold
	wbc.mu.Unlock()

	if shouldFlush {
		if err := wbc.Flush(ctx); err != nil {
			return fmt.Errorf("error flushing write queue: %w", err)
		}
	}

	oldValue, found := wbc.cache.Get(key)
	if found {
		typedOldValue, ok := oldValue.([]ValueType)
		if !ok {
			return fmt.Errorf("value not of expected type %T returned from cache when putting", value)
		}
		totalValue := append(typedOldValue, value...)
		set := wbc.cache.Set(key, totalValue, int64(len(totalValue)))
		if !set {
			return ErrSetFailed
		}
	} else {
		set := wbc.cache.Set(key, value, int64(len(value)))
		if !set {
			return ErrSetFailed
		}
	}
	return nil
}

// Flush drains the write queue into the backend index in one bulk request.
// On failure the drained documents are requeued.
func (wbc *WriteBehindCacheImpl[ValueType]) Flush(ctx context.Context) error {
	wbc.mu.Lock()
	if wbc.queued == 0 {
		wbc.mu.Unlock()
		return nil
	}
	drained := wbc.writeQueue
	wbc.writeQueue = make(map[string][]ValueType)
	wbc.queued = 0
	wbc.mu.Unlock()

	var documents []interface{}
	for _, docs := range drained {
		for _, doc := range docs {
			documents = append(documents, doc)
		}
	}

	err := wbc.sc.BulkIndex(ctx, documents, wbc.indexName)
	if err != nil {
		wbc.mu.Lock()
		for key, docs := range drained {
			wbc.writeQueue[key] = append(wbc.writeQueue[key], docs...)
			wbc.queued += len(docs)
		}
		wbc.mu.Unlock()
		return fmt.Errorf("error flushing to backend index %s: %w", wbc.indexName, err)
	}
	wbc.logger.Debug("Flushed write queue to backend index",
		zap.String("index", wbc.indexName),
		zap.Int("documents", len(documents)),
	)
	return nil
}

var (
	ErrKeyNotFound = errors.New("key not found within the cache")
	ErrSetFailed   = errors.New("failed to set value in cache")
)
