package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kdex-dev/kdex/internal/config"
)

// providerEnv forces a specific provider: "ollama" or "static". An explicit
// choice fails hard instead of falling back, so misconfiguration surfaces.
const providerEnv = "KDEX_EMBEDDER"

// New selects an embedding provider for the given configuration and wraps
// it in an LRU cache. Ollama is preferred when its server is reachable;
// otherwise the deterministic static embedder serves as fallback so
// semantic indexing never blocks on a missing runtime.
func New(ctx context.Context, cfg *config.Config) (Embedder, error) {
	logger := slog.Default().With("component", "embed")

	inner, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(inner, 0)
}

func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Embedder, error) {
	switch os.Getenv(providerEnv) {
	case "static":
		logger.Debug("static embedder forced by environment")
		return NewStaticEmbedder(), nil
	case "ollama":
		e, err := NewOllamaEmbedder(ctx, "", cfg.EmbeddingModel, cfg.ModelsDir())
		if err != nil {
			return nil, fmt.Errorf("%s=ollama but the server is not usable: %w", providerEnv, err)
		}
		return e, nil
	}

	e, err := NewOllamaEmbedder(ctx, "", cfg.EmbeddingModel, cfg.ModelsDir())
	if err != nil {
		logger.Debug("ollama unavailable, using static embedder", "error", err)
		return NewStaticEmbedder(), nil
	}
	return e, nil
}
