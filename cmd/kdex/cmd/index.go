package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/index"
	"github.com/kdex-dev/kdex/internal/output"
)

type indexResultJSON struct {
	Success        bool    `json:"success"`
	Path           string  `json:"path"`
	FilesAdded     int     `json:"files_added"`
	FilesUpdated   int     `json:"files_updated"`
	FilesDeleted   int     `json:"files_deleted"`
	FilesUnchanged int     `json:"files_unchanged"`
	FilesSkipped   int     `json:"files_skipped"`
	TotalBytes     int64   `json:"total_bytes"`
	ElapsedSecs    float64 `json:"elapsed_secs"`
}

func newIndexCmd() *cobra.Command {
	var (
		force bool
		name  string
	)
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory into the knowledge index",
		Long: `Index walks a directory, extracts text, tags, and wiki-links, and
stores everything in the local index. Re-running only processes files
whose size or modification time changed.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			return runIndex(cmd, path, name, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reindex every file even if unchanged")
	cmd.Flags().StringVar(&name, "name", "", "Repository name (default: directory name)")
	return cmd
}

func runIndex(cmd *cobra.Command, path, name string, force bool) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	defer lockInstance(cfg, out)()

	abs, err := filepath.Abs(path)
	if err != nil {
		return kerrors.PathNotFound(path)
	}
	out.Printf("Indexing %s...\n", abs)

	if existing, err := st.RepositoryByPath(ctx, abs); err == nil && existing.FileCount > 0 {
		out.Warningf("Repository already indexed (%d files). Updating...", existing.FileCount)
	}

	ix, err := index.New(st, cfg, newEmbedder(ctx, cfg, out))
	if err != nil {
		return err
	}
	repo, err := ix.Register(ctx, abs, index.RegisterOptions{Name: name})
	if err != nil {
		return err
	}
	res, err := ix.IndexRepository(ctx, repo, index.Options{Force: force, Progress: progressFunc(out)})
	out.ProgressDone()
	if err != nil {
		return err
	}

	if out.JSON() {
		return out.EmitJSON(indexResultJSON{
			Success:        true,
			Path:           abs,
			FilesAdded:     res.New,
			FilesUpdated:   res.Changed,
			FilesDeleted:   res.Deleted,
			FilesUnchanged: res.Unchanged,
			FilesSkipped:   res.Skipped,
			TotalBytes:     res.Bytes,
			ElapsedSecs:    res.Duration.Seconds(),
		})
	}

	printIndexSummary(out, res)
	out.Println()
	out.Println("What's next:")
	out.Printf("  • Search your knowledge: kdex \"your query\"\n")
	out.Printf("  • Watch for changes: kdex watch %s\n", repo.Name)
	return nil
}

// printIndexSummary prints the post-index counters, omitting zero rows.
func printIndexSummary(out *output.Writer, res *index.Result) {
	total := res.New + res.Changed + res.Unchanged
	out.Successf("Indexed %d file%s in %.1fs", total, plural(total), res.Duration.Seconds())
	if res.New > 0 {
		out.Printf("  Added:   %d\n", res.New)
	}
	if res.Changed > 0 {
		out.Printf("  Updated: %d\n", res.Changed)
	}
	if res.Deleted > 0 {
		out.Printf("  Deleted: %d\n", res.Deleted)
	}
	if res.Skipped > 0 {
		out.Printf("  Skipped: %d (binary or too large)\n", res.Skipped)
	}
}
