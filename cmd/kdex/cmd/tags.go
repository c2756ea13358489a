package cmd

import (
	"github.com/spf13/cobra"
)

type tagJSON struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type tagsResultJSON struct {
	TotalTags int       `json:"total_tags"`
	Tags      []tagJSON `json:"tags"`
}

func newTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List all tags across indexed files",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTags(cmd)
		},
	}
}

func runTags(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	_, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	tags, err := st.AllTags(ctx)
	if err != nil {
		return err
	}

	if out.JSON() {
		items := make([]tagJSON, 0, len(tags))
		for _, t := range tags {
			items = append(items, tagJSON{Tag: t.Tag, Count: t.Count})
		}
		return out.EmitJSON(tagsResultJSON{TotalTags: len(items), Tags: items})
	}

	if len(tags) == 0 {
		out.Println("No tags found.")
		out.Println()
		out.Println("Tags come from #hashtags in markdown and from frontmatter:")
		out.Println("  ---")
		out.Println("  tags: [project, ideas]")
		out.Println("  ---")
		return nil
	}

	styles := out.Styles()
	for _, t := range tags {
		out.Printf("  %s (%d)\n", styles.Accent.Render("#"+t.Tag), t.Count)
	}
	out.Println()
	out.Printf("%d unique tag%s\n", len(tags), plural(len(tags)))
	out.Println("Filter by tag: kdex search \"query\" --tag <tagname>")
	return nil
}
