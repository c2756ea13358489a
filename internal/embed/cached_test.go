package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how often the provider is actually hit.
type countingEmbedder struct {
	*StaticEmbedder
	embeds  atomic.Int32
	batches atomic.Int32
	batched [][]string
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embeds.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches.Add(1)
	c.batched = append(c.batched, texts)
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_HitSkipsProvider(t *testing.T) {
	inner := newCountingEmbedder()
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	v1, err := cached.Embed(ctx, "incremental indexing")
	require.NoError(t, err)
	v2, err := cached.Embed(ctx, "incremental indexing")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), inner.embeds.Load())

	hits, misses := cached.CacheStats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachedEmbedder_BatchEmbedsOnlyMisses(t *testing.T) {
	inner := newCountingEmbedder()
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	// Given "alpha" is already cached
	_, err = cached.Embed(ctx, "alpha")
	require.NoError(t, err)

	// When a batch includes it alongside new texts
	vecs, err := cached.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// Then only the misses reach the provider, order preserved
	require.Equal(t, int32(1), inner.batches.Load())
	assert.Equal(t, []string{"beta", "gamma"}, inner.batched[0])

	direct, err := inner.StaticEmbedder.Embed(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, direct, vecs[0])
}

func TestCachedEmbedder_AllCachedBatch(t *testing.T) {
	inner := newCountingEmbedder()
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cached.EmbedBatch(ctx, []string{"one", "two"})
	require.NoError(t, err)
	_, err = cached.EmbedBatch(ctx, []string{"one", "two"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.batches.Load())
}

func TestCachedEmbedder_KeyIncludesModel(t *testing.T) {
	inner := newCountingEmbedder()
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)

	key := cached.cacheKey("same text")
	assert.NotEmpty(t, key)
	assert.NotEqual(t, cached.cacheKey("other text"), key)

	// A different model must produce a different key for the same text.
	other := &CachedEmbedder{inner: &OllamaEmbedder{model: "all-minilm"}, cache: cached.cache}
	assert.NotEqual(t, other.cacheKey("same text"), key)
}

func TestCachedEmbedder_DelegatesMetadata(t *testing.T) {
	inner := newCountingEmbedder()
	cached, err := NewCachedEmbedder(inner, 0)
	require.NoError(t, err)

	assert.Equal(t, inner.Dimensions(), cached.Dimensions())
	assert.Equal(t, inner.ModelName(), cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.NoError(t, cached.Close())
}
