// Package cmd provides the CLI commands for kdex.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/logging"
	"github.com/kdex-dev/kdex/internal/profiling"
	"github.com/kdex-dev/kdex/pkg/version"
)

// Output flags shared by every subcommand.
var (
	flagJSON    bool
	flagQuiet   bool
	flagNoColor bool
	flagDebug   bool
)

// Profiling flags.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profSession  *profiling.Session
	logCleanup   func()
)

// NewRootCmd creates the root command for the kdex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kdex",
		Short: "Local-first knowledge index across your repositories",
		Long: `kdex indexes markdown notes, code, and config files across many
repositories into a single local search index.

Add local directories or remote clones, then search them by keyword,
by meaning, or both. Running 'kdex <query>' searches directly:

  kdex "raft leader election"`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("kdex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Emit machine-readable JSON output")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")
	for _, name := range []string{"profile-cpu", "profile-mem", "profile-trace"} {
		_ = cmd.PersistentFlags().MarkHidden(name)
	}

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	// Flag parse failures are usage errors and exit with code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return kerrors.InvalidInput(err.Error())
	})
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newTagsCmd())
	cmd.AddCommand(newBacklinksCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newRebuildEmbeddingsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging configures slog and starts CPU/trace profiling
// if the flags are set. Logs always go to a file so command output stays
// clean; --debug raises the level and echoes to stderr.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if flagDebug {
		logCfg = logging.DebugConfig()
	}
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		logCleanup = cleanup
		slog.SetDefault(logger)
	} else {
		// An unwritable log dir must not break the command.
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	}

	opts := profiling.Options{CPUPath: profileCPU, HeapPath: profileMem, TracePath: profileTrace}
	if opts.Enabled() {
		s, err := profiling.Start(opts)
		if err != nil {
			return err
		}
		profSession = s
	}
	return nil
}

// stopProfilingAndLogging flushes the profiles (the heap snapshot is taken
// here) and the log file. The log is closed even if a profile write fails.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profSession != nil {
		err = profSession.Stop()
		profSession = nil
	}
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	return err
}

// Execute runs the CLI and returns the process exit code: 0 on success,
// 2 on usage errors, 1 on everything else.
func Execute() int {
	root := NewRootCmd()
	root.SetArgs(rewriteDefaultCommand(root, os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if flagJSON {
		fmt.Fprintln(os.Stderr, kerrors.FormatForJSON(err))
	} else {
		fmt.Fprintln(os.Stderr, kerrors.FormatForCLI(err, flagDebug))
		if !flagDebug {
			fmt.Fprintln(os.Stderr, "Run with --debug for more details.")
		}
	}
	return kerrors.ExitCode(err)
}

// rewriteDefaultCommand makes search the default command: `kdex <query>`
// becomes `kdex search <query>` when the first non-flag argument is not a
// known command name.
func rewriteDefaultCommand(root *cobra.Command, args []string) []string {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if arg == "help" || isCommandName(root, arg) {
			return args
		}
		rewritten := make([]string, 0, len(args)+1)
		rewritten = append(rewritten, args[:i]...)
		rewritten = append(rewritten, "search")
		rewritten = append(rewritten, args[i:]...)
		return rewritten
	}
	return args
}

func isCommandName(root *cobra.Command, name string) bool {
	for _, c := range root.Commands() {
		if c.Name() == name || c.HasAlias(name) {
			return true
		}
	}
	return false
}
