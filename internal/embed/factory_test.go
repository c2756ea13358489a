package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdex-dev/kdex/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(t.TempDir())
	require.NoError(t, err)
	return cfg
}

func TestNew_StaticForced(t *testing.T) {
	t.Setenv(providerEnv, "static")

	e, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, staticModelName, e.ModelName())
	assert.Equal(t, DefaultDimensions, e.Dimensions())
}

func TestNew_FallsBackToStatic(t *testing.T) {
	t.Setenv(providerEnv, "")
	// Nothing listens here, so the Ollama probe fails fast.
	t.Setenv(hostEnv, "http://127.0.0.1:1")

	e, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, staticModelName, e.ModelName())
}

func TestNew_OllamaForcedButUnreachable(t *testing.T) {
	t.Setenv(providerEnv, "ollama")
	t.Setenv(hostEnv, "http://127.0.0.1:1")

	_, err := New(context.Background(), testConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KDEX_EMBEDDER")
}

func TestNew_WrapsInCache(t *testing.T) {
	t.Setenv(providerEnv, "static")

	e, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer e.Close()

	_, ok := e.(*CachedEmbedder)
	assert.True(t, ok, "factory output must be cached")
}
