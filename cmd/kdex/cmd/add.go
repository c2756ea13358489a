package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kdex-dev/kdex/internal/config"
	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/index"
	"github.com/kdex-dev/kdex/internal/output"
	"github.com/kdex-dev/kdex/internal/remote"
	"github.com/kdex-dev/kdex/internal/store"
)

type addResultJSON struct {
	Success      bool    `json:"success"`
	Type         string  `json:"type"`
	Name         string  `json:"name"`
	Path         string  `json:"path"`
	FilesAdded   int     `json:"files_added"`
	FilesUpdated int     `json:"files_updated"`
	ElapsedSecs  float64 `json:"elapsed_secs"`
}

func newAddCmd() *cobra.Command {
	var (
		remoteSpec string
		branch     string
		shallow    bool
		name       string
	)
	cmd := &cobra.Command{
		Use:   "add [path]",
		Short: "Add a local directory or remote repository to the index",
		Long: `Add registers a repository and indexes it. With a path (default ".")
it indexes a local directory in place. With --remote it clones the
repository under the managed clones directory first:

  kdex add ~/notes
  kdex add --remote golang/go
  kdex add --remote git@github.com:golang/go.git --branch release --shallow`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remoteSpec != "" {
				if len(args) > 0 {
					return kerrors.InvalidInput("add takes either a path or --remote, not both")
				}
				return runAddRemote(cmd, remoteSpec, branch, shallow, name)
			}
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			return runAddLocal(cmd, path, name)
		},
	}
	cmd.Flags().StringVar(&remoteSpec, "remote", "", "Remote repository (owner/repo or git URL)")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch to clone (default: remote HEAD)")
	cmd.Flags().BoolVar(&shallow, "shallow", false, "Clone with depth 1")
	cmd.Flags().StringVar(&name, "name", "", "Repository name (default: derived from path or URL)")
	return cmd
}

func runAddLocal(cmd *cobra.Command, path, name string) error {
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
	out.Printf("Adding local repository: %s\n", abs)

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
	res, err := ix.IndexRepository(ctx, repo, index.Options{Progress: progressFunc(out)})
	out.ProgressDone()
	if err != nil {
		return err
	}

	if out.JSON() {
		return out.EmitJSON(addResultJSON{
			Success:      true,
			Type:         "local",
			Name:         repo.Name,
			Path:         repo.Path,
			FilesAdded:   res.New,
			FilesUpdated: res.Changed,
			ElapsedSecs:  res.Duration.Seconds(),
		})
	}
	total := res.New + res.Changed + res.Unchanged
	out.Successf("Added local repository: %s (%d files in %.1fs)", repo.Name, total, res.Duration.Seconds())
	return nil
}

func runAddRemote(cmd *cobra.Command, rawSpec, branch string, shallow bool, name string) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	defer lockInstance(cfg, out)()

	spec, err := remote.ParseSpec(rawSpec)
	if err != nil {
		return err
	}
	out.Printf("Adding remote repository: %s/%s\n", spec.Owner, spec.Name)
	out.Printf("  URL: %s\n", spec.URL)
	out.Printf("  Clone path: %s\n", spec.ClonePath(cfg.ReposDir()))

	res, err := addRemoteRepo(ctx, out, cfg, st, spec, branch, shallow, name)
	if err != nil {
		return err
	}
	if res == nil {
		// Already cloned and registered; nothing to do.
		return nil
	}

	if out.JSON() {
		return out.EmitJSON(addResultJSON{
			Success:      true,
			Type:         "remote",
			Name:         res.repo.Name,
			Path:         res.repo.Path,
			FilesAdded:   res.index.New,
			FilesUpdated: res.index.Changed,
			ElapsedSecs:  res.index.Duration.Seconds(),
		})
	}
	total := res.index.New + res.index.Changed + res.index.Unchanged
	out.Successf("Added remote repository: %s (%d files in %.1fs)", res.repo.Name, total, res.index.Duration.Seconds())
	return nil
}

type addRemoteResult struct {
	repo  *store.Repository
	index *index.Result
}

// addRemoteRepo clones, registers, and indexes a remote repository. A nil
// result with nil error means the clone already exists and is registered.
// Shared by `kdex add --remote` and `kdex config import`.
func addRemoteRepo(ctx context.Context, out *output.Writer, cfg *config.Config, st *store.Store, spec *remote.Spec, branch string, shallow bool, name string) (*addRemoteResult, error) {
	mgr := remote.NewManager(cfg.ReposDir())
	clonePath := spec.ClonePath(cfg.ReposDir())

	if _, err := os.Stat(clonePath); err == nil {
		if existing, err := st.RepositoryByPath(ctx, clonePath); err == nil {
			out.Warningf("Repository already cloned (%d files). Use 'kdex sync' to update.", existing.FileCount)
			return nil, nil
		}
		// The clone directory exists but nothing references it; discard
		// it and clone fresh.
		if err := mgr.RemoveClone(clonePath); err != nil {
			return nil, err
		}
	}

	out.Println("Cloning repository...")
	cloned, err := mgr.Clone(ctx, spec, remote.CloneOptions{Branch: branch, Shallow: shallow})
	if err != nil {
		return nil, err
	}
	out.Success("Cloned successfully")

	ix, err := index.New(st, cfg, newEmbedder(ctx, cfg, out))
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = spec.Owner + "/" + spec.Name
	}
	repo, err := ix.Register(ctx, cloned.Path, index.RegisterOptions{
		Name:         name,
		Source:       store.SourceRemote,
		RemoteURL:    spec.URL,
		RemoteBranch: cloned.Branch,
		Shallow:      shallow,
	})
	if err != nil {
		return nil, err
	}

	out.Println()
	out.Println("Indexing repository...")
	res, err := ix.IndexRepository(ctx, repo, index.Options{Progress: progressFunc(out)})
	out.ProgressDone()
	if err != nil {
		return nil, err
	}
	if err := st.SetRepositorySynced(ctx, repo.ID); err != nil {
		return nil, err
	}
	return &addRemoteResult{repo: repo, index: res}, nil
}
