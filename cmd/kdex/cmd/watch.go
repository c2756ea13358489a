package cmd

import (
	"context"

	"github.com/spf13/cobra"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/index"
	"github.com/kdex-dev/kdex/internal/store"
	"github.com/kdex-dev/kdex/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [name...]",
		Short: "Watch repositories and re-index on change",
		Long: `Watch monitors repository directories and incrementally re-indexes
files as they change. Changes are debounced so editor save bursts
turn into a single indexing pass. Without arguments every indexed
repository is watched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args)
		},
	}
}

func runWatch(cmd *cobra.Command, names []string) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	defer lockInstance(cfg, out)()

	repos, err := selectRepos(ctx, st, names)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		out.Warning("No repositories to watch. Index a directory first.")
		return nil
	}

	ix, err := index.New(st, cfg, newEmbedder(ctx, cfg, out))
	if err != nil {
		return err
	}
	w, err := watcher.New(cfg, ix)
	if err != nil {
		return err
	}

	watched := make([]*store.Repository, 0, len(repos))
	for _, repo := range repos {
		err := w.Add(repo)
		switch {
		case err == nil:
			watched = append(watched, repo)
		case kerrors.IsCode(err, kerrors.CodeWatcherLimitExceeded):
			// Over the inotify budget: keep what we have, warn once.
			watched = append(watched, repo)
			out.Warningf("%v", err)
		default:
			out.Warningf("Cannot watch %s: %v", repo.Name, err)
		}
	}
	if len(watched) == 0 {
		out.Warning("No repositories to watch. Index a directory first.")
		return w.Close()
	}

	out.Printf("Watching %d %s for changes...\n", len(watched), repoNoun(len(watched)))
	for _, repo := range watched {
		out.Printf("  • %s\n", repo.Path)
	}
	out.Println("Press Ctrl+C to stop.")

	return w.Run(ctx)
}

// selectRepos resolves the positional names to repositories; no names
// means all of them. Unknown names fail with a suggestion.
func selectRepos(ctx context.Context, st *store.Store, names []string) ([]*store.Repository, error) {
	if len(names) == 0 {
		return st.Repositories(ctx)
	}
	repos := make([]*store.Repository, 0, len(names))
	for _, name := range names {
		repo, err := st.RepositoryByName(ctx, name)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, nil
}
