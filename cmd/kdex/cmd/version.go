package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kdex-dev/kdex/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := newWriter(cmd)
			if out.JSON() {
				return out.EmitJSON(version.GetInfo())
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		},
	}
}
