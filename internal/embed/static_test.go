package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "database connection pooling")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "database connection pooling")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
}

func TestStaticEmbedder_Shape(t *testing.T) {
	e := NewStaticEmbedder()

	vec, err := e.Embed(context.Background(), "retry with exponential backoff")
	require.NoError(t, err)

	assert.Len(t, vec, DefaultDimensions)
	assert.Equal(t, DefaultDimensions, e.Dimensions())
	assert.Equal(t, staticModelName, e.ModelName())
	assert.True(t, e.Available(context.Background()))
	assert.InDelta(t, 1.0, vectorNorm(vec), 1e-4)
}

func TestStaticEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	base, err := e.Embed(ctx, "database connection pooling")
	require.NoError(t, err)
	near, err := e.Embed(ctx, "database connection pool")
	require.NoError(t, err)
	far, err := e.Embed(ctx, "quantum butterfly metamorphosis")
	require.NoError(t, err)

	assert.Greater(t, cosine(base, near), cosine(base, far))
}

func TestStaticEmbedder_IdentifierSplitting(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	camel, err := e.Embed(ctx, "parseJSON")
	require.NoError(t, err)
	snake, err := e.Embed(ctx, "parse_json")
	require.NoError(t, err)
	spaced, err := e.Embed(ctx, "parse json")
	require.NoError(t, err)

	// All three tokenize to the same terms, so the vectors coincide.
	assert.InDelta(t, 1.0, cosine(camel, spaced), 1e-6)
	assert.InDelta(t, 1.0, cosine(snake, spaced), 1e-6)
}

func TestStaticEmbedder_StopWordsOnly(t *testing.T) {
	e := NewStaticEmbedder()

	vec, err := e.Embed(context.Background(), "the and for a b")
	require.NoError(t, err)

	assert.InDelta(t, 0.0, vectorNorm(vec), 1e-9, "stop words contribute nothing")
}

func TestStaticEmbedder_BatchMatchesSingle(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()
	texts := []string{"first note", "second note", "third note"}

	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain words", "hello world", []string{"hello", "world"}},
		{"camel case", "getUserByID", []string{"get", "user", "by", "id"}},
		{"snake case", "max_file_size", []string{"max", "file", "size"}},
		{"digits split", "sha256sum", []string{"sha", "256", "sum"}},
		{"stop words dropped", "return the value", []string{"value"}},
		{"short tokens dropped", "a b cd", []string{"cd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.in))
		})
	}
}
