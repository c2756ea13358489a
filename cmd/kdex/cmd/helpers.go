package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kdex-dev/kdex/internal/config"
	"github.com/kdex-dev/kdex/internal/embed"
	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/index"
	"github.com/kdex-dev/kdex/internal/output"
	"github.com/kdex-dev/kdex/internal/store"
)

// usageArgs converts positional-argument validation failures into invalid
// input errors so they exit with the usage code.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return kerrors.InvalidInput(err.Error())
		}
		return nil
	}
}

// newWriter builds the output writer for a command from the global flags.
func newWriter(cmd *cobra.Command) *output.Writer {
	return output.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Options{
		JSON:    flagJSON,
		Quiet:   flagQuiet,
		NoColor: flagNoColor || output.DetectNoColor(),
	})
}

// openStore loads the configuration and opens the index database.
// The caller owns the store and must Close it.
func openStore(ctx context.Context) (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

// lockInstance takes the best-effort single-instance lock write commands
// hold while they touch the database. Failing to acquire it only warns:
// the store's busy retry still serializes concurrent writers, the lock
// just names the contention up front. The returned release is always
// safe to call.
func lockInstance(cfg *config.Config, out *output.Writer) func() {
	lock := config.NewInstanceLock(cfg.Dir())
	if acquired, err := lock.TryLock(); err == nil && !acquired {
		out.Warning("Another kdex process is writing to this index; waits on the database are likely.")
	}
	return func() { _ = lock.Unlock() }
}

// newEmbedder returns the configured embedder, or nil when semantic search
// is disabled or the model cannot be loaded. Loading failures degrade to
// lexical-only operation with a warning rather than aborting the command.
func newEmbedder(ctx context.Context, cfg *config.Config, out *output.Writer) embed.Embedder {
	if !cfg.EnableSemanticSearch {
		return nil
	}
	em, err := embed.New(ctx, cfg)
	if err != nil {
		out.Warningf("Could not load embedding model: %v. Falling back to lexical search.", err)
		return nil
	}
	return em
}

// progressFunc adapts the output progress bar to indexing callbacks.
func progressFunc(out *output.Writer) func(index.Progress) {
	return func(p index.Progress) {
		out.Progress(p.Processed, p.Total, p.Path)
	}
}

// confirm prompts on stdout and reads a y/N answer from the command's
// input stream. Anything but y/yes declines.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// plural returns "s" for counts other than one.
func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// repoNoun declines "repository" for the given count.
func repoNoun(n int) string {
	if n == 1 {
		return "repository"
	}
	return "repositories"
}
