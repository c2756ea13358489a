package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/store"
)

type backlinkJSON struct {
	File string `json:"file"`
	Repo string `json:"repo"`
}

type backlinksResultJSON struct {
	Target    string         `json:"target"`
	Count     int            `json:"count"`
	Backlinks []backlinkJSON `json:"backlinks"`
}

func newBacklinksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backlinks <file>",
		Short: "Show which files link to a note",
		Long: `Backlinks lists every file whose [[wiki-links]] point at the given
note. The argument may be a path or a bare note name; either way it
is matched by stem, so "ideas", "ideas.md", and "notes/ideas.md" all
refer to the same target.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacklinks(cmd, args[0])
		},
	}
}

func runBacklinks(cmd *cobra.Command, target string) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	stem := store.PathStem(target)
	if stem == "" {
		return kerrors.InvalidInput("backlinks expects a file name or path")
	}

	_, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	edges, err := st.Backlinks(ctx, target)
	if err != nil {
		return err
	}

	if out.JSON() {
		items := make([]backlinkJSON, 0, len(edges))
		for _, e := range edges {
			items = append(items, backlinkJSON{File: e.SourcePath, Repo: e.SourceRepo})
		}
		return out.EmitJSON(backlinksResultJSON{Target: stem, Count: len(items), Backlinks: items})
	}

	if len(edges) == 0 {
		out.Printf("No backlinks found for: %s\n", stem)
		out.Println()
		out.Println("Files link to each other with wiki-link syntax:")
		out.Printf("  [[%s]]\n", stem)
		return nil
	}

	styles := out.Styles()
	out.Printf("Backlinks to %s\n", styles.Accent.Render(stem))
	out.Println(styles.Dim.Render(strings.Repeat("─", 50)))
	for _, e := range edges {
		out.Printf("  %s: %s\n", styles.Accent.Render(e.SourceRepo), e.SourcePath)
	}
	out.Println()
	if len(edges) == 1 {
		out.Println("1 file links to this")
	} else {
		out.Printf("%d files link to this\n", len(edges))
	}
	return nil
}
