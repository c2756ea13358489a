package cmd

import (
	"github.com/spf13/cobra"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/index"
)

type updateRepoJSON struct {
	Name           string `json:"name"`
	Success        bool   `json:"success"`
	FilesAdded     int    `json:"files_added"`
	FilesUpdated   int    `json:"files_updated"`
	FilesDeleted   int    `json:"files_deleted"`
	FilesUnchanged int    `json:"files_unchanged"`
	Error          string `json:"error,omitempty"`
}

type updateResultJSON struct {
	Success bool             `json:"success"`
	Results []updateRepoJSON `json:"results"`
}

func newUpdateCmd() *cobra.Command {
	var (
		all   bool
		force bool
	)
	cmd := &cobra.Command{
		Use:   "update [name]",
		Short: "Re-scan an indexed repository for changes",
		Long: `Update re-walks a repository already in the index, picking up new,
changed, and deleted files. Use --all to update every repository.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			if name == "" && !all {
				return kerrors.InvalidInput("specify a repository name or use --all to update all repositories")
			}
			return runUpdate(cmd, name, all, force)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Update every indexed repository")
	cmd.Flags().BoolVar(&force, "force", false, "Reindex every file even if unchanged")
	return cmd
}

func runUpdate(cmd *cobra.Command, name string, all, force bool) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	defer lockInstance(cfg, out)()

	ix, err := index.New(st, cfg, newEmbedder(ctx, cfg, out))
	if err != nil {
		return err
	}

	if !all {
		repo, err := st.RepositoryByName(ctx, name)
		if err != nil {
			return err
		}
		res, err := ix.IndexRepository(ctx, repo, index.Options{Force: force, Progress: progressFunc(out)})
		out.ProgressDone()
		if err != nil {
			return err
		}
		if out.JSON() {
			return out.EmitJSON(updateResultJSON{Success: true, Results: []updateRepoJSON{{
				Name:           repo.Name,
				Success:        true,
				FilesAdded:     res.New,
				FilesUpdated:   res.Changed,
				FilesDeleted:   res.Deleted,
				FilesUnchanged: res.Unchanged,
			}}})
		}
		out.Successf("Updated in %.1fs: +%d added, ~%d updated, -%d deleted, %d unchanged",
			res.Duration.Seconds(), res.New, res.Changed, res.Deleted, res.Unchanged)
		return nil
	}

	repos, err := st.Repositories(ctx)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		out.Warning("No repositories indexed yet.")
		if out.JSON() {
			return out.EmitJSON(updateResultJSON{Success: true, Results: []updateRepoJSON{}})
		}
		return nil
	}

	results := make([]updateRepoJSON, 0, len(repos))
	failed := 0
	for _, repo := range repos {
		out.Printf("Updating %s...\n", repo.Name)
		res, err := ix.IndexRepository(ctx, repo, index.Options{Force: force})
		if err != nil {
			failed++
			out.Warningf("%s: %v", repo.Name, err)
			results = append(results, updateRepoJSON{Name: repo.Name, Error: err.Error()})
			continue
		}
		out.Successf("%s: +%d ~%d -%d", repo.Name, res.New, res.Changed, res.Deleted)
		results = append(results, updateRepoJSON{
			Name:           repo.Name,
			Success:        true,
			FilesAdded:     res.New,
			FilesUpdated:   res.Changed,
			FilesDeleted:   res.Deleted,
			FilesUnchanged: res.Unchanged,
		})
	}

	if out.JSON() {
		return out.EmitJSON(updateResultJSON{Success: failed == 0, Results: results})
	}
	if failed > 0 {
		out.Warningf("Updated %d of %d repositories", len(repos)-failed, len(repos))
	}
	return nil
}
