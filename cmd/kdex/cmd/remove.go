package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kdex-dev/kdex/internal/remote"
	"github.com/kdex-dev/kdex/internal/store"
)

type removeResultJSON struct {
	Success      bool   `json:"success"`
	Name         string `json:"name"`
	Path         string `json:"path"`
	FilesRemoved int64  `json:"files_removed"`
	CloneDeleted bool   `json:"clone_deleted"`
	SourceType   string `json:"source_type"`
}

func newRemoveCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a repository from the index",
		Long: `Remove deletes a repository and all its indexed data. Local files are
never touched; clones managed by kdex are deleted from disk as well.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, args[0], force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")
	return cmd
}

func runRemove(cmd *cobra.Command, name string, force bool) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	defer lockInstance(cfg, out)()

	repo, err := st.RepositoryByName(ctx, name)
	if err != nil {
		return err
	}

	mgr := remote.NewManager(cfg.ReposDir())
	deleteClone := repo.Source == store.SourceRemote && mgr.Owns(repo.Path)

	if !force && !out.JSON() {
		var prompt string
		if deleteClone {
			prompt = fmt.Sprintf("Remove %q from index AND delete cloned files at %s? (%d files)",
				repo.Name, repo.Path, repo.FileCount)
		} else {
			prompt = fmt.Sprintf("Remove %q from the index? (%d files will be removed from the index)",
				repo.Name, repo.FileCount)
		}
		if !confirm(cmd, prompt) {
			out.Println("Cancelled.")
			return nil
		}
	}

	filesRemoved := repo.FileCount
	if err := st.DeleteRepository(ctx, repo.ID); err != nil {
		return err
	}

	cloneDeleted := false
	if deleteClone {
		if err := mgr.RemoveClone(repo.Path); err != nil {
			out.Warningf("Could not delete clone directory: %v", err)
		} else {
			cloneDeleted = true
		}
	}

	if out.JSON() {
		return out.EmitJSON(removeResultJSON{
			Success:      true,
			Name:         repo.Name,
			Path:         repo.Path,
			FilesRemoved: filesRemoved,
			CloneDeleted: cloneDeleted,
			SourceType:   string(repo.Source),
		})
	}

	out.Successf("Removed %q (%d files)", repo.Name, filesRemoved)
	if cloneDeleted {
		out.Println("Cloned directory deleted.")
	} else {
		out.Println("Note: The actual files were not affected.")
	}
	return nil
}
