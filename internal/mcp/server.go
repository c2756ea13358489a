package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kdex-dev/kdex/internal/config"
	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/search"
	"github.com/kdex-dev/kdex/internal/store"
	"github.com/kdex-dev/kdex/pkg/version"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50

	defaultMaxChars     = 50000
	defaultContextLines = 10
)

const serverInstructions = "Search and retrieve content from indexed code repositories " +
	"and knowledge bases. Use 'search' to find relevant files, 'list_repos' to see " +
	"indexed repositories, 'get_file' to read full file content, and 'get_context' " +
	"to get context around specific lines."

// Server is the MCP server for kdex. It exposes the index to AI clients
// over stdio: search plus the retrieval tools that let a model read what
// search found.
type Server struct {
	mcp      *mcp.Server
	store    *store.Store
	searcher *search.Searcher
	cfg      *config.Config
	logger   *slog.Logger
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"the search query to execute"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
	Repo     string `json:"repo,omitempty" jsonschema:"only return results from repositories whose name contains this value"`
	FileType string `json:"file_type,omitempty" jsonschema:"only return results of this file type, e.g. markdown or go"`
	Mode     string `json:"mode,omitempty" jsonschema:"search mode: lexical, semantic, hybrid, fuzzy, or regex"`
}

// SearchResultOutput is a single entry in a search response.
type SearchResultOutput struct {
	File    string  `json:"file" jsonschema:"absolute path to the matched file"`
	Repo    string  `json:"repo" jsonschema:"repository the file belongs to"`
	Snippet string  `json:"snippet" jsonschema:"matched content with [ ] around the hits"`
	Line    int     `json:"line,omitempty" jsonschema:"1-based line of the match, regex mode only"`
	Score   float64 `json:"score" jsonschema:"relevance score, higher is better"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results   []SearchResultOutput `json:"results"`
	Total     int                  `json:"total"`
	Query     string               `json:"query"`
	Mode      string               `json:"mode"`
	Truncated bool                 `json:"truncated"`
	Hint      string               `json:"hint,omitempty"`
}

// ListReposInput defines the input schema for the list_repos tool (no parameters).
type ListReposInput struct{}

// RepoOutput describes one indexed repository.
type RepoOutput struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	FileCount   int64  `json:"file_count"`
	Status      string `json:"status"`
	LastIndexed string `json:"last_indexed,omitempty"`
}

// ListReposOutput defines the output schema for the list_repos tool.
type ListReposOutput struct {
	Repositories []RepoOutput `json:"repositories"`
	Total        int          `json:"total"`
}

// GetFileInput defines the input schema for the get_file tool.
type GetFileInput struct {
	Path     string `json:"path" jsonschema:"path to an indexed file: absolute, repository-relative, or a path suffix"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"maximum characters to return, default 50000"`
}

// GetFileOutput defines the output schema for the get_file tool.
type GetFileOutput struct {
	Path      string `json:"path"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
}

// GetContextInput defines the input schema for the get_context tool.
type GetContextInput struct {
	Path         string `json:"path" jsonschema:"path to an indexed file: absolute, repository-relative, or a path suffix"`
	Line         int    `json:"line" jsonschema:"1-based line number to center the context on"`
	ContextLines int    `json:"context_lines,omitempty" jsonschema:"lines of context on each side, default 10"`
}

// GetContextOutput defines the output schema for the get_context tool.
type GetContextOutput struct {
	Path      string   `json:"path"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Lines     []string `json:"lines" jsonschema:"numbered source lines for the requested window"`
}

// NewServer creates the MCP server and registers its tools.
func NewServer(st *store.Store, searcher *search.Searcher, cfg *config.Config) (*Server, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Server{
		store:    st,
		searcher: searcher,
		cfg:      cfg,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "kdex",
			Version: version.Version,
		},
		&mcp.ServerOptions{
			Instructions: serverInstructions,
		},
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve runs the server over stdio until the context is canceled or the
// client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_started",
		slog.String("transport", "stdio"),
		slog.String("version", version.Version))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search",
		Description: "Search indexed repositories. Returns matched files with highlighted " +
			"snippets; use 'get_file' or 'get_context' to read around a match.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_repos",
		Description: "List the indexed repositories with file counts and index status.",
	}, s.listReposHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_file",
		Description: "Read the full content of an indexed file.",
	}, s.getFileHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_context",
		Description: "Read the lines around a specific line of an indexed file.",
	}, s.getContextHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 4))
}

// searchHandler serves the search tool. Semantic or hybrid requests that
// cannot be served (no embedder, nothing embedded yet) degrade to lexical
// with a hint rather than failing the call.
func (s *Server) searchHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	limit := clampLimit(input.Limit, defaultSearchLimit, 1, maxSearchLimit)

	modeStr := input.Mode
	if modeStr == "" {
		modeStr = s.cfg.DefaultSearchMode
	}
	opts := search.Options{
		Mode:  search.ParseMode(modeStr),
		Limit: limit,
		Filters: store.Filters{
			Repo:     input.Repo,
			FileType: input.FileType,
		},
	}

	start := time.Now()
	var hints []string

	results, err := s.searcher.Search(ctx, input.Query, opts)
	if kerrors.IsCode(err, kerrors.CodeModeUnavailable) {
		hints = append(hints, "Semantic search is unavailable; results are from lexical search.")
		opts.Mode = search.ModeLexical
		results, err = s.searcher.Search(ctx, input.Query, opts)
	}
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	roots, err := s.repoRoots(ctx)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{
		Results: make([]SearchResultOutput, 0, len(results)),
		Total:   len(results),
		Query:   input.Query,
		Mode:    string(opts.Mode),
	}
	for _, r := range results {
		out.Results = append(out.Results, SearchResultOutput{
			File:    absolutePath(roots, r.RepoName, r.RelPath),
			Repo:    r.RepoName,
			Snippet: renderSnippet(r.Snippet),
			Line:    r.Line,
			Score:   r.Score,
		})
	}
	if len(results) >= limit {
		out.Truncated = true
		hints = append(hints, "Use 'limit' parameter to get more results, or use 'get_file' to read full content.")
	}
	out.Hint = strings.Join(hints, " ")

	s.logger.Info("mcp_search",
		slog.String("query", input.Query),
		slog.String("mode", out.Mode),
		slog.Int("results", out.Total),
		slog.Duration("took", time.Since(start)))

	return nil, out, nil
}

// listReposHandler serves the list_repos tool.
func (s *Server) listReposHandler(ctx context.Context, req *mcp.CallToolRequest, input ListReposInput) (
	*mcp.CallToolResult,
	ListReposOutput,
	error,
) {
	repos, err := s.store.Repositories(ctx)
	if err != nil {
		return nil, ListReposOutput{}, MapError(err)
	}

	out := ListReposOutput{
		Repositories: make([]RepoOutput, 0, len(repos)),
		Total:        len(repos),
	}
	for _, repo := range repos {
		entry := RepoOutput{
			Name:      repo.Name,
			Path:      repo.Path,
			FileCount: repo.FileCount,
			Status:    string(repo.Status),
		}
		if repo.LastIndexedAt != nil {
			entry.LastIndexed = repo.LastIndexedAt.UTC().Format(time.RFC3339)
		}
		out.Repositories = append(out.Repositories, entry)
	}
	return nil, out, nil
}

// getFileHandler serves the get_file tool. Content comes from the index,
// so it reflects the last indexed state of the file.
func (s *Server) getFileHandler(ctx context.Context, req *mcp.CallToolRequest, input GetFileInput) (
	*mcp.CallToolResult,
	GetFileOutput,
	error,
) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, GetFileOutput{}, NewInvalidParamsError("path parameter is required")
	}
	maxChars := input.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	file, text, err := s.lookupFile(ctx, input.Path)
	if err != nil {
		return nil, GetFileOutput{}, MapError(err)
	}

	out := GetFileOutput{
		Path:    s.displayPath(ctx, file),
		Type:    file.FileType,
		Content: text,
	}
	if runes := []rune(text); len(runes) > maxChars {
		out.Content = string(runes[:maxChars])
		out.Truncated = true
	}
	return nil, out, nil
}

// getContextHandler serves the get_context tool. The window saturates at
// the file boundaries, and a line past the end snaps to the last line so
// slightly stale line numbers still return useful context.
func (s *Server) getContextHandler(ctx context.Context, req *mcp.CallToolRequest, input GetContextInput) (
	*mcp.CallToolResult,
	GetContextOutput,
	error,
) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, GetContextOutput{}, NewInvalidParamsError("path parameter is required")
	}
	if input.Line < 1 {
		return nil, GetContextOutput{}, NewInvalidParamsError("line must be a positive 1-based line number")
	}
	contextLines := input.ContextLines
	if contextLines <= 0 {
		contextLines = defaultContextLines
	}

	file, text, err := s.lookupFile(ctx, input.Path)
	if err != nil {
		return nil, GetContextOutput{}, MapError(err)
	}

	lines := splitLines(text)
	line := input.Line
	if line > len(lines) {
		line = len(lines)
	}
	if line < 1 {
		line = 1
	}

	start := line - contextLines
	if start < 1 {
		start = 1
	}
	end := line + contextLines
	if end > len(lines) {
		end = len(lines)
	}

	out := GetContextOutput{
		Path:      s.displayPath(ctx, file),
		StartLine: start,
		EndLine:   end,
		Lines:     make([]string, 0, end-start+1),
	}
	for n := start; n <= end; n++ {
		out.Lines = append(out.Lines, fmt.Sprintf("%4d | %s", n, lines[n-1]))
	}
	return nil, out, nil
}

// lookupFile resolves a path to its indexed row and stored text.
func (s *Server) lookupFile(ctx context.Context, path string) (*store.File, string, error) {
	file, err := s.store.FileByPath(ctx, path)
	if err != nil {
		return nil, "", err
	}
	text, err := s.store.FileText(ctx, file.ID)
	if err != nil {
		return nil, "", err
	}
	return file, text, nil
}

// repoRoots maps repository names to their root paths.
func (s *Server) repoRoots(ctx context.Context) (map[string]string, error) {
	repos, err := s.store.Repositories(ctx)
	if err != nil {
		return nil, err
	}
	roots := make(map[string]string, len(repos))
	for _, repo := range repos {
		roots[repo.Name] = repo.Path
	}
	return roots, nil
}

// displayPath returns the absolute path for a file, falling back to the
// repository-relative one when the repository row is gone.
func (s *Server) displayPath(ctx context.Context, file *store.File) string {
	roots, err := s.repoRoots(ctx)
	if err != nil {
		return file.RelPath
	}
	return absolutePath(roots, file.RepoName, file.RelPath)
}

func absolutePath(roots map[string]string, repoName, relPath string) string {
	root, ok := roots[repoName]
	if !ok {
		return relPath
	}
	return filepath.Join(root, filepath.FromSlash(relPath))
}

// renderSnippet rewrites the store's match markers into the bracket form
// the CLI's plain output uses.
func renderSnippet(snippet string) string {
	snippet = strings.ReplaceAll(snippet, store.SnippetStart, "[")
	return strings.ReplaceAll(snippet, store.SnippetEnd, "]")
}

// splitLines splits file text into lines without a phantom entry for the
// trailing newline.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 1 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// clampLimit bounds a requested result count, substituting def when the
// request leaves it unset.
func clampLimit(requested, def, min, max int) int {
	if requested <= 0 {
		return def
	}
	if requested < min {
		return min
	}
	if requested > max {
		return max
	}
	return requested
}
