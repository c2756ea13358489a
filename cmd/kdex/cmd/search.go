package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/history"
	"github.com/kdex-dev/kdex/internal/output"
	"github.com/kdex-dev/kdex/internal/search"
	"github.com/kdex-dev/kdex/internal/store"
)

type searchResultJSON struct {
	Repo         string  `json:"repo"`
	File         string  `json:"file"`
	AbsolutePath string  `json:"absolute_path"`
	Snippet      string  `json:"snippet"`
	FileType     string  `json:"file_type"`
	Score        float64 `json:"score"`
	Line         int     `json:"line,omitempty"`
	SearchMode   string  `json:"search_mode"`
}

type searchOutputJSON struct {
	Results []searchResultJSON `json:"results"`
	Total   int                `json:"total"`
	Query   string             `json:"query"`
	Limit   int                `json:"limit"`
	Mode    string             `json:"mode"`
}

type searchFlags struct {
	repo     string
	fileType string
	tag      string
	limit    int
	lexical  bool
	semantic bool
	hybrid   bool
	fuzzy    bool
	regex    bool
}

func newSearchCmd() *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search across all indexed repositories",
		Long: `Search runs the query against every indexed repository. The default
mode is full-text keyword search; --semantic searches by meaning,
--hybrid blends both, --fuzzy tolerates typos, and --regex matches
line by line.

Since search is the default command, these are equivalent:

  kdex search "raft leader election"
  kdex "raft leader election"`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), flags)
		},
	}
	cmd.Flags().StringVar(&flags.repo, "repo", "", "Only search repositories whose name contains this value")
	cmd.Flags().StringVarP(&flags.fileType, "type", "t", "", "Only return files of this type (markdown, code, config, text)")
	cmd.Flags().StringVar(&flags.tag, "tag", "", "Only return files carrying this tag")
	cmd.Flags().IntVarP(&flags.limit, "limit", "n", search.DefaultLimit, "Maximum number of results")
	cmd.Flags().BoolVar(&flags.lexical, "lexical", false, "Full-text keyword search (default)")
	cmd.Flags().BoolVar(&flags.semantic, "semantic", false, "Search by meaning instead of keywords")
	cmd.Flags().BoolVar(&flags.hybrid, "hybrid", false, "Blend keyword and semantic ranking")
	cmd.Flags().BoolVar(&flags.fuzzy, "fuzzy", false, "Typo-tolerant search")
	cmd.Flags().BoolVar(&flags.regex, "regex", false, "Regular expression search")
	cmd.MarkFlagsMutuallyExclusive("lexical", "semantic", "hybrid", "fuzzy", "regex")
	return cmd
}

func runSearch(cmd *cobra.Command, query string, flags searchFlags) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	mode := pickMode(flags, cfg.DefaultSearchMode)
	searcher := search.New(st, newEmbedder(ctx, cfg, out))
	opts := search.Options{
		Mode:  mode,
		Limit: flags.limit,
		Filters: store.Filters{
			Repo:     flags.repo,
			FileType: flags.fileType,
			Tag:      flags.tag,
		},
	}

	results, err := searcher.Search(ctx, query, opts)
	if kerrors.IsCode(err, kerrors.CodeModeUnavailable) {
		out.Warning("Semantic search not available. Using lexical search.")
		mode = search.ModeLexical
		opts.Mode = mode
		results, err = searcher.Search(ctx, query, opts)
	}
	if err != nil {
		return err
	}

	if !out.JSON() {
		history.Record(cfg.HistoryPath(), query)
	}

	if out.JSON() {
		return out.EmitJSON(buildSearchJSON(ctx, st, query, string(mode), flags.limit, results))
	}
	printSearchResults(out, query, mode, results)
	return nil
}

// pickMode resolves the search mode from the mutually exclusive flags,
// falling back to the configured default.
func pickMode(flags searchFlags, configured string) search.Mode {
	switch {
	case flags.lexical:
		return search.ModeLexical
	case flags.semantic:
		return search.ModeSemantic
	case flags.hybrid:
		return search.ModeHybrid
	case flags.fuzzy:
		return search.ModeFuzzy
	case flags.regex:
		return search.ModeRegex
	}
	return search.ParseMode(configured)
}

func buildSearchJSON(ctx context.Context, st *store.Store, query, mode string, limit int, results []search.Result) searchOutputJSON {
	roots := make(map[string]string)
	if repos, err := st.Repositories(ctx); err == nil {
		for _, r := range repos {
			roots[r.Name] = r.Path
		}
	}

	outResults := make([]searchResultJSON, 0, len(results))
	for _, r := range results {
		abs := r.RelPath
		if root, ok := roots[r.RepoName]; ok {
			abs = filepath.Join(root, filepath.FromSlash(r.RelPath))
		}
		outResults = append(outResults, searchResultJSON{
			Repo:         r.RepoName,
			File:         r.RelPath,
			AbsolutePath: abs,
			Snippet:      r.Snippet,
			FileType:     r.FileType,
			Score:        r.Score,
			Line:         r.Line,
			SearchMode:   string(r.Mode),
		})
	}
	return searchOutputJSON{
		Results: outResults,
		Total:   len(outResults),
		Query:   query,
		Limit:   limit,
		Mode:    mode,
	}
}

func printSearchResults(out *output.Writer, query string, mode search.Mode, results []search.Result) {
	if len(results) == 0 {
		out.Printf("No results for %q\n", query)
		out.Println()
		out.Println("Suggestions:")
		out.Println("  • Check spelling")
		out.Println("  • Try broader search terms")
		if mode == search.ModeLexical {
			out.Println("  • Use prefix matching: \"func*\"")
			out.Println("  • Try --semantic for conceptual matching")
		}
		return
	}

	if mode != search.ModeLexical {
		out.Printf("Mode: %s search\n", mode)
		out.Println()
	}

	styles := out.Styles()
	for _, r := range results {
		loc := styles.Accent.Render(r.RepoName) + styles.Dim.Render(":") + styles.Label.Render(r.RelPath)
		if r.Line > 0 {
			loc += styles.Dim.Render(fmt.Sprintf(":%d", r.Line))
		}
		out.Println(loc)
		if snippet := strings.TrimSpace(r.Snippet); snippet != "" {
			for _, line := range strings.Split(out.Highlight(snippet), "\n") {
				out.Printf("  %s\n", line)
			}
		}
		out.Println()
	}
	out.Println(styles.Dim.Render(fmt.Sprintf("─ Showing %d result%s", len(results), plural(len(results)))))
}
