package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedServiceFlow(t *testing.T) {
	t.Run("Identical flows embed to identical unit vectors", func(t *testing.T) {
		first := EmbedServiceFlow([]string{"order-service", "payment-service"})
		second := EmbedServiceFlow([]string{"order-service", "payment-service"})

		require.Len(t, first, EmbeddingDim)
		assert.Equal(t, first, second)
		assert.InDelta(t, 1.0, vectorNorm(first), 1e-5)
	})

	t.Run("Overlapping flows score closer than disjoint ones", func(t *testing.T) {
		base := EmbedServiceFlow([]string{"order-service", "payment-service", "shipping-service"})
		overlapping := EmbedServiceFlow([]string{"order-service", "payment-service", "notification-service"})
		disjoint := EmbedServiceFlow([]string{"auth-service", "user-service", "email-service"})

		assert.Greater(t, dot(base, overlapping), dot(base, disjoint))
	})

	t.Run("Embedding is order-sensitive", func(t *testing.T) {
		forward := EmbedServiceFlow([]string{"order-service", "payment-service"})
		reversed := EmbedServiceFlow([]string{"payment-service", "order-service"})

		assert.NotEqual(t, forward, reversed)
		assert.Less(t, dot(forward, reversed), float64(1.0))
	})

	t.Run("Empty flow embeds to nil", func(t *testing.T) {
		assert.Nil(t, EmbedServiceFlow(nil))
		assert.Nil(t, EmbedServiceFlow([]string{}))
	})
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func vectorNorm(vec []float32) float64 {
	return math.Sqrt(dot(vec, vec))
}
