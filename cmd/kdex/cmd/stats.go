package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/kdex-dev/kdex/internal/output"
)

type fileTypeJSON struct {
	FileType string `json:"file_type"`
	Count    int    `json:"count"`
}

type statsResultJSON struct {
	TotalRepos          int            `json:"total_repos"`
	TotalFiles          int            `json:"total_files"`
	FileTypes           []fileTypeJSON `json:"file_types"`
	TotalTags           int            `json:"total_tags"`
	TotalLinks          int            `json:"total_links"`
	FilesWithEmbeddings int            `json:"files_with_embeddings"`
	DatabaseSizeBytes   int64          `json:"database_size_bytes"`
	DatabaseSizeHuman   string         `json:"database_size_human"`
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd)
		},
	}
}

func runStats(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	_, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}

	types := make([]fileTypeJSON, 0, len(stats.FilesByType))
	for ft, n := range stats.FilesByType {
		types = append(types, fileTypeJSON{FileType: ft, Count: n})
	}
	sort.Slice(types, func(i, j int) bool {
		if types[i].Count != types[j].Count {
			return types[i].Count > types[j].Count
		}
		return types[i].FileType < types[j].FileType
	})

	if out.JSON() {
		return out.EmitJSON(statsResultJSON{
			TotalRepos:          stats.Repositories,
			TotalFiles:          stats.Files,
			FileTypes:           types,
			TotalTags:           stats.Tags,
			TotalLinks:          stats.Links,
			FilesWithEmbeddings: stats.EmbeddedFiles,
			DatabaseSizeBytes:   stats.DBSizeBytes,
			DatabaseSizeHuman:   output.FormatBytes(stats.DBSizeBytes),
		})
	}

	out.Header("Knowledge Index Statistics")
	out.Println()
	out.Println("Content")
	out.Printf("  Repositories: %d\n", stats.Repositories)
	out.Printf("  Total files:  %d\n", stats.Files)

	if len(types) > 0 {
		out.Println()
		out.Println("File Types")
		for _, t := range types {
			out.Printf("  %-10s %d\n", t.FileType, t.Count)
		}
	}

	out.Println()
	out.Println("Knowledge Graph")
	out.Printf("  Tags:  %d\n", stats.Tags)
	out.Printf("  Links: %d\n", stats.Links)

	out.Println()
	out.Println("Semantic Search")
	out.Printf("  Files with embeddings: %d\n", stats.EmbeddedFiles)
	if stats.Files > 0 {
		out.Printf("  Coverage: %.1f%%\n", float64(stats.EmbeddedFiles)*100/float64(stats.Files))
	}

	out.Println()
	out.Println("Storage")
	out.Printf("  Database: %s\n", output.FormatBytes(stats.DBSizeBytes))
	return nil
}
