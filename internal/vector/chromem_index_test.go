package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChromemIndex(t *testing.T) {
	t.Run("Returns the closest embedding first", func(t *testing.T) {
		index := newTestIndex(t)
		ctx := context.Background()

		orderFlow := EmbedServiceFlow([]string{"order-service", "payment-service"})
		authFlow := EmbedServiceFlow([]string{"auth-service", "user-service"})
		require.NoError(t, index.Upsert(ctx, "pattern-order", orderFlow, map[string]string{"type": "SUCCESS_FLOW"}))
		require.NoError(t, index.Upsert(ctx, "pattern-auth", authFlow, nil))

		matches, err := index.Search(ctx, orderFlow, 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "pattern-order", matches[0].ID)
		assert.InDelta(t, 1.0, float64(matches[0].Score), 1e-4)
		assert.Greater(t, matches[0].Score, matches[1].Score)
	})

	t.Run("Clamps topK to the number of stored documents", func(t *testing.T) {
		index := newTestIndex(t)
		ctx := context.Background()

		flow := EmbedServiceFlow([]string{"order-service"})
		require.NoError(t, index.Upsert(ctx, "pattern-only", flow, nil))

		matches, err := index.Search(ctx, flow, 10)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("Searching an empty collection yields no matches", func(t *testing.T) {
		index := newTestIndex(t)

		matches, err := index.Search(context.Background(), EmbedServiceFlow([]string{"order-service"}), 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("Rejects an empty embedding on upsert", func(t *testing.T) {
		index := newTestIndex(t)

		err := index.Upsert(context.Background(), "pattern-empty", nil, nil)
		assert.Error(t, err)
	})

	t.Run("Upsert replaces the embedding stored under an id", func(t *testing.T) {
		index := newTestIndex(t)
		ctx := context.Background()

		oldFlow := EmbedServiceFlow([]string{"order-service"})
		newFlow := EmbedServiceFlow([]string{"auth-service", "user-service"})
		require.NoError(t, index.Upsert(ctx, "pattern-1", oldFlow, nil))
		require.NoError(t, index.Upsert(ctx, "pattern-1", newFlow, nil))

		matches, err := index.Search(ctx, newFlow, 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "pattern-1", matches[0].ID)
		assert.InDelta(t, 1.0, float64(matches[0].Score), 1e-4)
	})
}

func newTestIndex(t *testing.T) *ChromemIndex {
	index, err := NewChromemIndex(ChromemConfig{CollectionName: "test_patterns"}, zap.NewNop())
	require.NoError(t, err)
	return index
}
