package vector

import (
	"fmt"
	"hash/fnv"
	"math"
)

// EmbeddingDim is the dimension of service-flow embeddings. Flows are short
// (a handful of services), so a small feature-hashed space separates them
// well without any learned model.
const EmbeddingDim = 64

// EmbedServiceFlow maps an ordered service list onto a normalized
// feature-hashed vector. Each service contributes one weighted component
// keyed by its name, and one keyed by name plus position, so flows sharing
// services score close while still being order-sensitive. Deterministic:
// identical flows always produce identical vectors.
func EmbedServiceFlow(serviceFlow []string) []float32 {
	if len(serviceFlow) == 0 {
		return nil
	}
	vec := make([]float32, EmbeddingDim)
	for position, service := range serviceFlow {
		addFeature(vec, service, 1.0)
		addFeature(vec, fmt.Sprintf("%s@%d", service, position), 0.5)
	}
	return normalize(vec)
}

func addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := sum % EmbeddingDim
	sign := float32(1)
	if sum&(1<<63) != 0 {
		sign = -1
	}
	vec[idx] += sign * weight
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
