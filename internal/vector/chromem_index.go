package vector

import (
	"context"
	"errors"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const defaultCollectionName = "pattern_index"

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// CollectionName is the chromem collection patterns are stored in.
	CollectionName string
	// Path enables gob persistence when non-empty; the default is a purely
	// in-memory index.
	Path string
}

func (c *ChromemConfig) ApplyDefaults() {
	if c.CollectionName == "" {
		c.CollectionName = defaultCollectionName
	}
}

// ChromemIndex implements SearchIndex on chromem-go, an embeddable vector
// database with no external service dependency. All embeddings are
// precomputed by the caller; the collection's embedding function is never
// used.
type ChromemIndex struct {
	collection *chromem.Collection
	logger     *zap.Logger
}

func NewChromemIndex(config ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	config.ApplyDefaults()

	var db *chromem.DB
	var err error
	if config.Path != "" {
		db, err = chromem.NewPersistentDB(config.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create persistent chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(config.CollectionName, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create chromem collection %s: %w", config.CollectionName, err)
	}
	return &ChromemIndex{
		collection: collection,
		logger:     logger,
	}, nil
}

// rejectEmbeddingFunc guards against accidental text-embedding calls: every
// document and query in this index carries a precomputed vector.
func rejectEmbeddingFunc(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("chromem index requires precomputed embeddings")
}

func (ci *ChromemIndex) Upsert(
	ctx context.Context,
	id string,
	embedding []float32,
	metadata map[string]string,
) error {
	if len(embedding) == 0 {
		return errors.New("cannot index an empty embedding")
	}
	err := ci.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Metadata:  metadata,
		Embedding: embedding,
		Content:   id,
	})
	if err != nil {
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}
	return nil
}

func (ci *ChromemIndex) Search(ctx context.Context, query []float32, topK int) ([]Match, error) {
	if len(query) == 0 || topK <= 0 {
		return nil, nil
	}
	// chromem requires nResults <= document count.
	count := ci.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}
	results, err := ci.collection.QueryEmbedding(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromem collection: %w", err)
	}
	matches := make([]Match, len(results))
	for i, result := range results {
		matches[i] = Match{ID: result.ID, Score: result.Similarity}
	}
	return matches, nil
}
