package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kdex-dev/kdex/internal/output"
	"github.com/kdex-dev/kdex/internal/store"
)

const healthListCap = 10

type brokenLinkJSON struct {
	File   string `json:"file"`
	Repo   string `json:"repo"`
	Target string `json:"target"`
}

type orphanJSON struct {
	File string `json:"file"`
	Repo string `json:"repo"`
}

type healthSummaryJSON struct {
	TotalOrphans     int `json:"total_orphans"`
	TotalBrokenLinks int `json:"total_broken_links"`
	HealthScore      int `json:"health_score"`
}

type healthReportJSON struct {
	OrphanFiles []orphanJSON      `json:"orphan_files"`
	BrokenLinks []brokenLinkJSON  `json:"broken_links"`
	Summary     healthSummaryJSON `json:"summary"`
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report orphan notes and broken wiki-links",
		Long: `Health checks the knowledge graph: orphan files no other note links
to, and wiki-links whose target does not exist. The score starts at
100 and drops with every orphan and broken link.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd)
		},
	}
}

func runHealth(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	_, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	stems, err := st.MarkdownStems(ctx)
	if err != nil {
		return err
	}
	links, err := st.AllLinks(ctx)
	if err != nil {
		return err
	}
	orphans, err := st.Orphans(ctx)
	if err != nil {
		return err
	}
	repos, err := st.Repositories(ctx)
	if err != nil {
		return err
	}

	var paths []string
	mdCount := 0
	for _, repo := range repos {
		repoPaths, err := st.FilePaths(ctx, repo.ID)
		if err != nil {
			return err
		}
		for _, p := range repoPaths {
			lower := strings.ToLower(p)
			paths = append(paths, lower)
			if strings.HasSuffix(lower, ".md") {
				mdCount++
			}
		}
	}

	broken := brokenLinks(links, stems, paths)
	score := healthScore(mdCount, len(orphans), len(broken))

	if out.JSON() {
		report := healthReportJSON{
			OrphanFiles: make([]orphanJSON, 0, len(orphans)),
			BrokenLinks: make([]brokenLinkJSON, 0, len(broken)),
			Summary: healthSummaryJSON{
				TotalOrphans:     len(orphans),
				TotalBrokenLinks: len(broken),
				HealthScore:      score,
			},
		}
		for _, o := range orphans {
			report.OrphanFiles = append(report.OrphanFiles, orphanJSON{File: o.RelPath, Repo: o.RepoName})
		}
		for _, b := range broken {
			report.BrokenLinks = append(report.BrokenLinks, brokenLinkJSON{
				File: b.SourcePath, Repo: b.SourceRepo, Target: b.TargetStem,
			})
		}
		return out.EmitJSON(report)
	}

	styles := out.Styles()
	out.Header("Knowledge Index Health Report")
	out.Println()
	out.Printf("Health Score: %s\n", scoreStyle(styles, score).Render(fmt.Sprintf("%d/100", score)))
	out.Println()

	if len(broken) == 0 {
		out.Success("No broken links found")
	} else {
		out.Errorf("%d broken link%s:", len(broken), plural(len(broken)))
		for i, b := range broken {
			if i == healthListCap {
				out.Printf("  ... and %d more\n", len(broken)-healthListCap)
				break
			}
			out.Printf("  %s → %s (target: %s)\n", b.SourceRepo, b.SourcePath, b.TargetStem)
		}
	}

	if len(orphans) == 0 {
		out.Success("No orphan files")
	} else {
		out.Warningf("%d orphan file%s:", len(orphans), plural(len(orphans)))
		for i, o := range orphans {
			if i == healthListCap {
				out.Printf("  ... and %d more\n", len(orphans)-healthListCap)
				break
			}
			out.Printf("  %s: %s\n", o.RepoName, o.RelPath)
		}
	}
	return nil
}

// brokenLinks returns the link edges whose target stem resolves to no
// indexed file, neither by markdown stem nor by path fragment.
func brokenLinks(links []store.LinkEdge, stems map[string]struct{}, lowerPaths []string) []store.LinkEdge {
	var broken []store.LinkEdge
	for _, edge := range links {
		target := strings.ToLower(edge.TargetStem)
		if _, ok := stems[target]; ok {
			continue
		}
		if pathMatchesTarget(lowerPaths, target) {
			continue
		}
		broken = append(broken, edge)
	}
	return broken
}

func pathMatchesTarget(lowerPaths []string, target string) bool {
	suffix := "/" + target + ".md"
	for _, p := range lowerPaths {
		if strings.Contains(p, target) || strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// healthScore grades the graph: orphans can cost up to 50 points scaled
// by the markdown file count, broken links 5 points each up to 50. An
// index with no markdown is trivially healthy.
func healthScore(mdCount, orphans, broken int) int {
	if mdCount == 0 {
		return 100
	}
	orphanPenalty := orphans * 100 / mdCount
	if orphanPenalty > 50 {
		orphanPenalty = 50
	}
	brokenPenalty := broken * 5
	if brokenPenalty > 50 {
		brokenPenalty = 50
	}
	return 100 - orphanPenalty - brokenPenalty
}

func scoreStyle(styles output.Styles, score int) lipgloss.Style {
	switch {
	case score >= 80:
		return styles.Success
	case score >= 50:
		return styles.Warning
	default:
		return styles.Error
	}
}
