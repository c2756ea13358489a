// Package embed provides text embedding for semantic search.
//
// Two providers are available: an Ollama-backed embedder that talks to a
// local Ollama server over HTTP, and a deterministic hash-based embedder
// that needs no external runtime. The factory picks a provider based on
// configuration and availability, and wraps it in an LRU cache so repeated
// queries do not re-embed the same text.
package embed

import (
	"context"
	"math"
)

// DefaultDimensions is the embedding width shared by the default model
// (all-MiniLM-L6-v2) and the static fallback. Keeping both at the same
// width means an index built with one provider stays searchable when the
// other answers queries, even if the scores are not comparable.
const DefaultDimensions = 384

// Embedder converts text into dense vectors for semantic search.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds multiple texts in one call. Providers that
	// support server-side batching use it; others loop over Embed.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the width of vectors produced by this embedder.
	Dimensions() int

	// ModelName identifies the underlying model for cache keys and
	// compatibility checks.
	ModelName() string

	// Available reports whether the embedder can serve requests right now.
	Available(ctx context.Context) bool

	// Close releases any resources held by the embedder.
	Close() error
}

// normalizeVector scales v to unit length in place. Zero vectors are left
// untouched so cosine similarity against them stays defined as zero.
func normalizeVector(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
