package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/kdex-dev/kdex/internal/index"
	"github.com/kdex-dev/kdex/internal/remote"
	"github.com/kdex-dev/kdex/internal/store"
)

type syncResultJSON struct {
	Success bool `json:"success"`
	Synced  int  `json:"synced"`
	Updated int  `json:"updated"`
	Failed  int  `json:"failed"`
}

func newSyncCmd() *cobra.Command {
	var noIndex bool
	cmd := &cobra.Command{
		Use:   "sync [name]",
		Short: "Fetch and fast-forward remote repositories",
		Long: `Sync fetches each managed clone and fast-forwards it to the remote
branch, then re-indexes whatever changed. With a name argument only
matching repositories are synced; the default is all of them.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			return runSync(cmd, filter, noIndex)
		},
	}
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Skip re-indexing after sync")
	return cmd
}

func runSync(cmd *cobra.Command, filter string, noIndex bool) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	defer lockInstance(cfg, out)()

	remotes, err := st.RemoteRepositories(ctx)
	if err != nil {
		return err
	}
	if len(remotes) == 0 {
		out.Warning("No remote repositories to sync. Add one with: kdex add --remote owner/repo")
		if out.JSON() {
			return out.EmitJSON(syncResultJSON{Success: true})
		}
		return nil
	}

	if filter != "" {
		matched := remotes[:0]
		for _, r := range remotes {
			if strings.Contains(r.Name, filter) || strings.Contains(r.Path, filter) {
				matched = append(matched, r)
			}
		}
		remotes = matched
		if len(remotes) == 0 {
			out.Warningf("No remote repositories matching %q", filter)
			if out.JSON() {
				return out.EmitJSON(syncResultJSON{Success: true})
			}
			return nil
		}
	}

	out.Printf("Syncing %d remote %s...\n", len(remotes), repoNoun(len(remotes)))

	mgr := remote.NewManager(cfg.ReposDir())
	ix, err := index.New(st, cfg, newEmbedder(ctx, cfg, out))
	if err != nil {
		return err
	}

	synced, updated, failed := 0, 0, 0
	for _, repo := range remotes {
		out.Printf("  %s ", repo.Name)
		res, err := mgr.Sync(ctx, repo.Name, repo.Path, repo.RemoteBranch)
		if err != nil {
			failed++
			out.Printf("failed: %v\n", err)
			_ = st.SetRepositoryStatus(ctx, repo.ID, store.StatusError, err.Error())
			continue
		}
		synced++
		if repo.Status == store.StatusError {
			_ = st.SetRepositoryStatus(ctx, repo.ID, store.StatusReady, "")
		}
		if err := st.SetRepositorySynced(ctx, repo.ID); err != nil {
			return err
		}

		if !res.Updated {
			out.Println("up to date")
			continue
		}
		updated++
		out.Println("updated")
		if noIndex {
			continue
		}
		out.Printf("    Re-indexing... ")
		ixRes, err := ix.IndexRepository(ctx, repo, index.Options{})
		if err != nil {
			out.Printf("error: %v\n", err)
			continue
		}
		total := ixRes.New + ixRes.Changed + ixRes.Unchanged
		out.Printf("%d files\n", total)
	}

	if out.JSON() {
		return out.EmitJSON(syncResultJSON{
			Success: failed == 0,
			Synced:  synced,
			Updated: updated,
			Failed:  failed,
		})
	}
	if failed > 0 {
		out.Warningf("Synced %d, failed %d", synced, failed)
	} else {
		out.Successf("Synced %d %s (%d updated)", synced, repoNoun(synced), updated)
	}
	return nil
}
