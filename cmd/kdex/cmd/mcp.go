package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kdex-dev/kdex/internal/config"
	"github.com/kdex-dev/kdex/internal/embed"
	"github.com/kdex-dev/kdex/internal/logging"
	"github.com/kdex-dev/kdex/internal/mcp"
	"github.com/kdex-dev/kdex/internal/search"
	"github.com/kdex-dev/kdex/internal/store"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long: `MCP starts a Model Context Protocol server speaking JSON-RPC over
stdin/stdout, exposing search, list_repos, get_file, and get_context
tools to AI assistants. Stdout carries protocol traffic only; logs go
to the log file.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context())
		},
	}
}

func runMCP(ctx context.Context) error {
	// The protocol owns stdout, so logging must never reach it.
	if cleanup, err := logging.SetupMCPMode(); err == nil {
		defer cleanup()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	var em embed.Embedder
	if cfg.EnableSemanticSearch {
		if e, err := embed.New(ctx, cfg); err == nil {
			em = e
		} else {
			slog.Warn("embedder_unavailable", slog.String("error", err.Error()))
		}
	}

	srv, err := mcp.NewServer(st, search.New(st, em), cfg)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}
