// Package vector provides the similarity-search substrate for pattern
// matching: a narrow index interface with an embedded chromem-go
// implementation, plus deterministic service-flow embeddings.
package vector

import "context"

type Match struct {
	ID    string
	Score float32
}

// SearchIndex is the injected similarity-search dependency. Callers treat it
// as advisory: implementations may fail or time out, and the pattern layer
// degrades to empty results rather than propagating errors.
type SearchIndex interface {
	Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]string) error
	Search(ctx context.Context, query []float32, topK int) ([]Match, error)
}
