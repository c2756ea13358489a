// Package search dispatches queries across the five retrieval modes:
// lexical (BM25), semantic (dense vectors), hybrid (RRF fusion of both),
// fuzzy (Jaro-Winkler rescoring), and regex (bounded pattern scan).
package search

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kdex-dev/kdex/internal/embed"
	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/store"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
	ModeFuzzy    Mode = "fuzzy"
	ModeRegex    Mode = "regex"
)

// ParseMode maps a config or flag value to a Mode, accepting the common
// aliases. Anything unrecognized falls back to lexical.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "semantic", "vector":
		return ModeSemantic
	case "hybrid", "combined":
		return ModeHybrid
	case "fuzzy":
		return ModeFuzzy
	case "regex":
		return ModeRegex
	default:
		return ModeLexical
	}
}

// DefaultLimit is the result count used when the caller passes none.
const DefaultLimit = 20

// snippetMaxChars caps condensed chunk snippets for semantic results.
const snippetMaxChars = 240

// Options tunes a single search call.
type Options struct {
	Mode    Mode
	Filters store.Filters
	Limit   int
	Offset  int

	// MinSimilarity is the fuzzy-mode score floor; zero means the default.
	MinSimilarity float64
	// ContextLines is the number of lines shown around a regex match on
	// each side; zero means the default.
	ContextLines int
}

// Result is one scored hit, uniform across modes. Line is set only by
// regex mode.
type Result struct {
	FileID   int64   `json:"-"`
	RepoName string  `json:"repo"`
	RelPath  string  `json:"file"`
	FileType string  `json:"file_type"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet"`
	Line     int     `json:"line,omitempty"`
	Mode     Mode    `json:"mode"`
}

// Searcher runs queries against the store, embedding them first when the
// mode needs vectors.
type Searcher struct {
	store    *store.Store
	embedder embed.Embedder
	logger   *slog.Logger
}

// New builds a Searcher. The embedder may be nil, which leaves semantic
// and hybrid modes unavailable.
func New(st *store.Store, em embed.Embedder) *Searcher {
	return &Searcher{
		store:    st,
		embedder: em,
		logger:   slog.Default().With("component", "search"),
	}
}

// Search runs one query in the selected mode. A blank query is rejected
// before anything touches the store.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, kerrors.EmptyQuery()
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	switch opts.Mode {
	case ModeLexical, "":
		return s.lexical(ctx, query, opts)
	case ModeSemantic:
		return s.semantic(ctx, query, opts)
	case ModeHybrid:
		return s.hybrid(ctx, query, opts)
	case ModeFuzzy:
		return s.fuzzy(ctx, query, opts)
	case ModeRegex:
		return s.regex(ctx, query, opts)
	default:
		return nil, kerrors.ModeUnavailable(string(opts.Mode), "unknown search mode")
	}
}

func (s *Searcher) lexical(ctx context.Context, query string, opts Options) ([]Result, error) {
	hits, err := s.store.LexicalSearch(ctx, query, opts.Filters, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, fromLexical(h))
	}
	return results, nil
}

func (s *Searcher) semantic(ctx context.Context, query string, opts Options) ([]Result, error) {
	if err := s.semanticReady(ctx); err != nil {
		return nil, err
	}
	merged, err := s.semanticDepth(ctx, query, opts.Filters, opts.Offset+opts.Limit)
	if err != nil {
		return nil, err
	}
	return window(merged, opts.Offset, opts.Limit), nil
}

// semanticDepth embeds the query and returns up to depth file results,
// duplicate files merged down to their best chunk.
func (s *Searcher) semanticDepth(ctx context.Context, query string, filters store.Filters, depth int) ([]Result, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	// Fetch extra chunks so merging duplicates still fills depth files.
	hits, err := s.store.VectorSearch(ctx, vec, filters, depth*4)
	if err != nil {
		return nil, err
	}
	return mergeBestChunk(hits, depth), nil
}

// semanticReady rejects vector modes before the query is embedded when
// nothing could answer them.
func (s *Searcher) semanticReady(ctx context.Context) error {
	if s.embedder == nil {
		return kerrors.ModeUnavailable("semantic", "no embedder is configured")
	}
	has, err := s.store.HasEmbeddings(ctx)
	if err != nil {
		return err
	}
	if !has {
		return kerrors.ModeUnavailable("semantic",
			"no embeddings are indexed; set enable_semantic_search = true and re-index")
	}
	return nil
}

// mergeBestChunk collapses chunk hits to one result per file. Hits arrive
// sorted by score, so the first chunk seen for a file is its best.
func mergeBestChunk(hits []store.VectorHit, depth int) []Result {
	seen := make(map[int64]struct{}, len(hits))
	var results []Result
	for _, h := range hits {
		if _, dup := seen[h.FileID]; dup {
			continue
		}
		seen[h.FileID] = struct{}{}
		results = append(results, Result{
			FileID:   h.FileID,
			RepoName: h.RepoName,
			RelPath:  h.RelPath,
			FileType: h.FileType,
			Score:    h.Score,
			Snippet:  condenseChunk(h.ChunkText),
			Mode:     ModeSemantic,
		})
		if len(results) == depth {
			break
		}
	}
	return results
}

func fromLexical(h store.SearchResult) Result {
	return Result{
		FileID:   h.FileID,
		RepoName: h.RepoName,
		RelPath:  h.RelPath,
		FileType: h.FileType,
		Score:    h.Score,
		Snippet:  h.Snippet,
		Mode:     ModeLexical,
	}
}

// condenseChunk flattens a chunk to a single line capped for display.
func condenseChunk(text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(flat) <= snippetMaxChars {
		return flat
	}
	runes := []rune(flat)
	return string(runes[:snippetMaxChars]) + "..."
}

func window(results []Result, offset, limit int) []Result {
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
