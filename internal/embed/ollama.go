package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

const (
	defaultOllamaHost = "http://localhost:11434"

	// hostEnv overrides the Ollama address; the standard OLLAMA_HOST is
	// honored as a fallback.
	hostEnv         = "KDEX_OLLAMA_HOST"
	standardHostEnv = "OLLAMA_HOST"

	embedTimeout = 60 * time.Second
	probeTimeout = 2 * time.Second
	pullTimeout  = 10 * time.Minute
)

// modelAliases maps configured model names to their Ollama tags. Unknown
// names pass through unchanged so any locally pulled model can be used.
var modelAliases = map[string]string{
	"all-MiniLM-L6-v2": "all-minilm",
	"all-minilm-l6-v2": "all-minilm",
}

type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type pullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type pullResponse struct {
	Status string `json:"status"`
}

// OllamaEmbedder produces embeddings through a local Ollama server. The
// model is pulled on first use, guarded by a file lock so concurrent
// processes do not download it twice.
type OllamaEmbedder struct {
	host       string
	model      string
	dimensions int
	client     *http.Client
	logger     *slog.Logger
}

// NewOllamaEmbedder connects to the Ollama server at host (empty selects
// the configured or default address), ensures model is present, and probes
// its embedding width. lockDir holds the download lock; it is created if
// missing.
func NewOllamaEmbedder(ctx context.Context, host, model, lockDir string) (*OllamaEmbedder, error) {
	e := &OllamaEmbedder{
		host:   resolveHost(host),
		model:  resolveModel(model),
		client: &http.Client{Timeout: embedTimeout},
		logger: slog.Default().With("component", "embed.ollama"),
	}

	if !e.Available(ctx) {
		return nil, fmt.Errorf("ollama server not reachable at %s", e.host)
	}
	if err := e.ensureModel(ctx, lockDir); err != nil {
		return nil, err
	}

	probe, err := e.embedTexts(ctx, "dimension probe")
	if err != nil {
		return nil, fmt.Errorf("probing embedding dimensions: %w", err)
	}
	if len(probe) == 0 || len(probe[0]) == 0 {
		return nil, fmt.Errorf("model %s returned an empty embedding", e.model)
	}
	e.dimensions = len(probe[0])

	e.logger.Debug("ollama embedder ready",
		"host", e.host, "model", e.model, "dimensions", e.dimensions)
	return e, nil
}

func resolveHost(host string) string {
	if host != "" {
		return strings.TrimRight(host, "/")
	}
	if v := os.Getenv(hostEnv); v != "" {
		return strings.TrimRight(v, "/")
	}
	if v := os.Getenv(standardHostEnv); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		return strings.TrimRight(v, "/")
	}
	return defaultOllamaHost
}

func resolveModel(model string) string {
	if alias, ok := modelAliases[model]; ok {
		return alias
	}
	return model
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedTexts(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.embedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dimensions }

func (e *OllamaEmbedder) ModelName() string { return e.model }

// Available reports whether the server answers /api/tags within a short
// probe window.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// embedTexts posts input (a string or []string) to /api/embed with
// transient failures retried.
func (e *OllamaEmbedder) embedTexts(ctx context.Context, input any) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, err
	}

	raw, err := kerrors.RetryWithResult(ctx, embedRetryConfig(), func() ([]byte, error) {
		return e.post(ctx, "/api/embed", body)
	})
	if err != nil {
		return nil, err
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}

	out := make([][]float32, len(parsed.Embeddings))
	for i, emb := range parsed.Embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		normalizeVector(vec)
		out[i] = vec
	}
	return out, nil
}

func (e *OllamaEmbedder) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		// Connection failures are transient; the server may be starting.
		return nil, transientError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientError(err)
	}
	if resp.StatusCode >= 500 {
		return nil, transientError(fmt.Errorf("ollama %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// hasModel checks /api/tags for the configured model, tolerating the
// :latest suffix Ollama appends to bare names.
func (e *OllamaEmbedder) hasModel(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ollama %s", resp.Status)
	}

	var parsed tagsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return false, err
	}
	for _, m := range parsed.Models {
		if m.Name == e.model || strings.TrimSuffix(m.Name, ":latest") == e.model {
			return true, nil
		}
	}
	return false, nil
}

// ensureModel pulls the model if the server does not have it. The pull is
// serialized across processes through a file lock in lockDir.
func (e *OllamaEmbedder) ensureModel(ctx context.Context, lockDir string) error {
	has, err := e.hasModel(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	lock := NewDownloadLock(lockDir)
	if err := lock.Acquire(ctx); err != nil {
		return fmt.Errorf("acquiring model download lock: %w", err)
	}
	defer lock.Release()

	// Another process may have finished the pull while we waited.
	if has, err := e.hasModel(ctx); err == nil && has {
		return nil
	}

	e.logger.Info("pulling embedding model", "model", e.model)
	return e.pull(ctx)
}

func (e *OllamaEmbedder) pull(ctx context.Context) error {
	body, err := json.Marshal(pullRequest{Model: e.model, Stream: false})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", e.model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pulling model %s: %s: %s", e.model, resp.Status, strings.TrimSpace(string(raw)))
	}

	var parsed pullResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Status != "" && parsed.Status != "success" {
		return fmt.Errorf("pulling model %s: status %q", e.model, parsed.Status)
	}
	return nil
}

// embedRetryConfig bounds retries of transient Ollama failures to a few
// seconds so indexing degrades quickly instead of stalling.
func embedRetryConfig() kerrors.RetryConfig {
	return kerrors.RetryConfig{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		MaxElapsed:   10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		ShouldRetry:  isTransient,
	}
}

type transient struct{ err error }

func (t transient) Error() string { return t.err.Error() }
func (t transient) Unwrap() error { return t.err }

func transientError(err error) error { return transient{err: err} }

func isTransient(err error) bool {
	var t transient
	return errors.As(err, &t)
}
