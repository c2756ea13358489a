package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/kdex-dev/kdex/internal/embed"
	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/index"
)

type rebuildResultJSON struct {
	Success      bool `json:"success"`
	Files        int  `json:"files"`
	Chunks       int  `json:"chunks"`
	Repositories int  `json:"repositories"`
}

func newRebuildEmbeddingsCmd() *cobra.Command {
	var repoFilter string
	cmd := &cobra.Command{
		Use:   "rebuild-embeddings",
		Short: "Regenerate semantic search embeddings",
		Long: `Rebuild-embeddings recomputes the embedding vectors for every indexed
file, for example after switching the embedding model. Requires
enable_semantic_search to be on.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRebuildEmbeddings(cmd, repoFilter)
		},
	}
	cmd.Flags().StringVar(&repoFilter, "repo", "", "Only rebuild repositories whose name contains this value")
	return cmd
}

func runRebuildEmbeddings(cmd *cobra.Command, repoFilter string) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	defer lockInstance(cfg, out)()

	if !cfg.EnableSemanticSearch {
		return kerrors.ModeUnavailable("semantic", "semantic search is disabled").
			WithSuggestion("Enable it with: kdex config set enable_semantic_search true")
	}

	out.Printf("Loading embedding model... ")
	em, err := embed.New(ctx, cfg)
	if err != nil {
		out.Println()
		return err
	}
	out.Println("done")

	ix, err := index.New(st, cfg, em)
	if err != nil {
		return err
	}

	repos, err := st.Repositories(ctx)
	if err != nil {
		return err
	}
	if repoFilter != "" {
		matched := repos[:0]
		for _, r := range repos {
			if strings.Contains(r.Name, repoFilter) {
				matched = append(matched, r)
			}
		}
		repos = matched
		if len(repos) == 0 {
			out.Warningf("No repositories matching %q", repoFilter)
			if out.JSON() {
				return out.EmitJSON(rebuildResultJSON{Success: true})
			}
			return nil
		}
	}

	totalFiles, totalChunks := 0, 0
	for _, repo := range repos {
		out.Printf("→ Processing %s (%d files)...\n", repo.Name, repo.FileCount)
		files, chunks, err := ix.RebuildEmbeddings(ctx, repo)
		if err != nil {
			return err
		}
		totalFiles += files
		totalChunks += chunks
	}

	if out.JSON() {
		return out.EmitJSON(rebuildResultJSON{
			Success:      true,
			Files:        totalFiles,
			Chunks:       totalChunks,
			Repositories: len(repos),
		})
	}
	out.Successf("Rebuilt embeddings for %d file%s (%d chunks) in %d %s",
		totalFiles, plural(totalFiles), totalChunks, len(repos), repoNoun(len(repos)))
	return nil
}
