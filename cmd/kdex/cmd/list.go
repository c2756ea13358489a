package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/kdex-dev/kdex/internal/output"
	"github.com/kdex-dev/kdex/internal/store"
)

type repoJSON struct {
	Name           string `json:"name"`
	Path           string `json:"path"`
	Status         string `json:"status"`
	SourceType     string `json:"source_type"`
	Vault          string `json:"vault,omitempty"`
	RemoteURL      string `json:"remote_url,omitempty"`
	RemoteBranch   string `json:"remote_branch,omitempty"`
	FileCount      int64  `json:"file_count"`
	TotalSizeBytes int64  `json:"total_size_bytes"`
	CreatedAt      string `json:"created_at"`
	LastIndexedAt  string `json:"last_indexed_at,omitempty"`
	LastSyncedAt   string `json:"last_synced_at,omitempty"`
	LastError      string `json:"last_error,omitempty"`
}

type listResultJSON struct {
	Repositories []repoJSON `json:"repositories"`
	Total        int        `json:"total"`
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List indexed repositories",
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}
}

func runList(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	_, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	repos, err := st.Repositories(ctx)
	if err != nil {
		return err
	}

	if out.JSON() {
		return out.EmitJSON(buildListJSON(repos))
	}

	if len(repos) == 0 {
		out.Println("No repositories indexed yet.")
		out.Println()
		out.Println("Get started by indexing a project:")
		out.Println("  kdex add ~/notes")
		out.Println("  kdex add --remote owner/repo")
		return nil
	}

	styles := out.Styles()
	locals, remotes := 0, 0
	for _, r := range repos {
		if r.Source == store.SourceRemote {
			remotes++
		} else {
			locals++
		}
		cloud := " "
		if r.Source == store.SourceRemote {
			cloud = "☁"
		}
		out.Printf("%s%s %-20s │ %6d files │ %8s │ %s\n",
			statusIcon(styles, r.Status), cloud, r.Name, r.FileCount,
			output.FormatBytes(r.TotalSizeBytes), lastActivity(r))
	}
	out.Println()
	out.Printf("%d local, %d remote │ Status: %s ready  %s pending  %s indexing  %s error\n",
		locals, remotes,
		styles.Success.Render("●"), styles.Warning.Render("○"),
		styles.Accent.Render("◐"), styles.Error.Render("!"))
	return nil
}

func buildListJSON(repos []*store.Repository) listResultJSON {
	items := make([]repoJSON, 0, len(repos))
	for _, r := range repos {
		item := repoJSON{
			Name:           r.Name,
			Path:           r.Path,
			Status:         string(r.Status),
			SourceType:     string(r.Source),
			Vault:          r.Vault,
			RemoteURL:      r.RemoteURL,
			RemoteBranch:   r.RemoteBranch,
			FileCount:      r.FileCount,
			TotalSizeBytes: r.TotalSizeBytes,
			CreatedAt:      r.CreatedAt.UTC().Format(time.RFC3339),
			LastError:      r.LastError,
		}
		if r.LastIndexedAt != nil {
			item.LastIndexedAt = r.LastIndexedAt.UTC().Format(time.RFC3339)
		}
		if r.LastSyncedAt != nil {
			item.LastSyncedAt = r.LastSyncedAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return listResultJSON{Repositories: items, Total: len(items)}
}

func statusIcon(styles output.Styles, status store.RepoStatus) string {
	switch status {
	case store.StatusReady:
		return styles.Success.Render("●")
	case store.StatusIndexing:
		return styles.Accent.Render("◐")
	case store.StatusError:
		return styles.Error.Render("!")
	default:
		return styles.Warning.Render("○")
	}
}

// lastActivity formats the most recent of index/sync time for display.
func lastActivity(r *store.Repository) string {
	ts := r.LastIndexedAt
	if r.LastSyncedAt != nil && (ts == nil || r.LastSyncedAt.After(*ts)) {
		ts = r.LastSyncedAt
	}
	if ts == nil {
		return "never indexed"
	}
	return output.TimeAgo(*ts)
}
