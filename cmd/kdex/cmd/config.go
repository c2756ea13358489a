package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kdex-dev/kdex/internal/config"
	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/index"
	"github.com/kdex-dev/kdex/internal/remote"
	"github.com/kdex-dev/kdex/internal/store"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage kdex configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigResetCmd())
	cmd.AddCommand(newConfigExportCmd())
	cmd.AddCommand(newConfigImportCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := newWriter(cmd)
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Dir(), config.ConfigFileName)

			if out.JSON() {
				settings := make(map[string]string, len(config.Keys()))
				for _, key := range config.Keys() {
					v, err := cfg.Get(key)
					if err != nil {
						return err
					}
					settings[key] = v
				}
				return out.EmitJSON(struct {
					ConfigPath string            `json:"config_path"`
					Settings   map[string]string `json:"settings"`
				}{ConfigPath: path, Settings: settings})
			}

			out.Printf("Configuration file: %s\n", path)
			out.Println()
			for _, key := range config.Keys() {
				v, err := cfg.Get(key)
				if err != nil {
					return err
				}
				out.Printf("  %-24s %s\n", key, v)
			}
			out.Println()
			out.Println("Tip: kdex config set <key> <value>")
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			// The bare value is the whole point of get; bypass quiet.
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newWriter(cmd)
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			out.Printf("Set %s = %s\n", args[0], args[1])
			return nil
		},
	}
}

func newConfigResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the configuration to defaults",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := newWriter(cmd)
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			backup, err := cfg.Backup()
			if err != nil {
				return err
			}
			dir := cfg.Dir()
			fresh := config.Default()
			fresh.SetDir(dir)
			if err := fresh.Save(); err != nil {
				return err
			}
			out.Println("Configuration reset to defaults.")
			if backup != "" {
				out.Printf("Previous configuration saved to %s\n", backup)
			}
			return nil
		},
	}
}

func newConfigExportCmd() *cobra.Command {
	var (
		outputPath  string
		remotesOnly bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export settings and repositories as portable YAML",
		Long: `Export writes a portable YAML document with the current settings and
the repository list, for replaying the setup on another machine with
'kdex config import'.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigExport(cmd, outputPath, remotesOnly)
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to a file instead of stdout")
	cmd.Flags().BoolVar(&remotesOnly, "remotes-only", false, "Export only remote repositories")
	return cmd
}

func runConfigExport(cmd *cobra.Command, outputPath string, remotesOnly bool) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	repos, err := st.Repositories(ctx)
	if err != nil {
		return err
	}
	portable := make([]config.PortableRepo, 0, len(repos))
	for _, r := range repos {
		if r.Source == store.SourceRemote {
			portable = append(portable, config.PortableRepo{
				Type:   "remote",
				URL:    r.RemoteURL,
				Branch: r.RemoteBranch,
			})
			continue
		}
		if remotesOnly {
			continue
		}
		portable = append(portable, config.PortableRepo{Type: "local", Path: r.Path})
	}

	data, err := config.Export(cfg, portable)
	if err != nil {
		return err
	}
	if outputPath == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return kerrors.Wrap(kerrors.CodeInvalidInput, err)
	}
	out.Successf("Exported configuration to %s", outputPath)
	return nil
}

func newConfigImportCmd() *cobra.Command {
	var (
		merge     bool
		skipClone bool
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a portable configuration",
		Long: `Import replays a document produced by 'kdex config export': settings
are applied and repositories are registered, cloning remotes that are
not present yet. Use "-" to read from stdin. With --merge, existing
local settings win over imported ones.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigImport(cmd, args[0], merge, skipClone)
		},
	}
	cmd.Flags().BoolVar(&merge, "merge", false, "Keep existing settings, only add what is missing")
	cmd.Flags().BoolVar(&skipClone, "skip-clone", false, "Register settings only, do not clone remotes")
	return cmd
}

func runConfigImport(cmd *cobra.Command, path string, merge, skipClone bool) error {
	ctx := cmd.Context()
	out := newWriter(cmd)

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return kerrors.PathNotFound(path)
	}

	portable, err := config.ParsePortable(data)
	if err != nil {
		return err
	}

	cfg, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	defer lockInstance(cfg, out)()

	cfg.ApplySettings(portable, merge)
	if err := cfg.Validate(); err != nil {
		return err
	}
	// Imported settings replace the file wholesale; keep a copy of what
	// was there. Merge mode never loses anything, so no backup.
	if !merge {
		if _, err := cfg.Backup(); err != nil {
			return err
		}
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	out.Success("Settings imported")

	added, skipped := 0, 0
	for _, entry := range portable.Repositories {
		switch entry.Type {
		case "remote":
			if skipClone {
				skipped++
				out.Printf("  Skipping clone of %s (--skip-clone)\n", entry.URL)
				continue
			}
			spec, err := remote.ParseSpec(entry.URL)
			if err != nil {
				skipped++
				out.Warningf("Skipping %s: %v", entry.URL, err)
				continue
			}
			res, err := addRemoteRepo(ctx, out, cfg, st, spec, entry.Branch, false, "")
			if err != nil {
				skipped++
				out.Warningf("Skipping %s: %v", entry.URL, err)
				continue
			}
			if res == nil {
				skipped++ // already cloned and registered
				continue
			}
			added++
		case "local":
			if info, err := os.Stat(entry.Path); err != nil || !info.IsDir() {
				skipped++
				out.Warningf("Skipping %s: directory not found on this machine", entry.Path)
				continue
			}
			ix, err := index.New(st, cfg, newEmbedder(ctx, cfg, out))
			if err != nil {
				return err
			}
			repo, err := ix.Register(ctx, entry.Path, index.RegisterOptions{})
			if err != nil {
				skipped++
				out.Warningf("Skipping %s: %v", entry.Path, err)
				continue
			}
			if _, err := ix.IndexRepository(ctx, repo, index.Options{}); err != nil {
				skipped++
				out.Warningf("Skipping %s: %v", entry.Path, err)
				continue
			}
			added++
		}
	}

	if out.JSON() {
		return out.EmitJSON(struct {
			Success      bool `json:"success"`
			ReposAdded   int  `json:"repos_added"`
			ReposSkipped int  `json:"repos_skipped"`
		}{Success: true, ReposAdded: added, ReposSkipped: skipped})
	}
	out.Successf("Imported configuration (%d repositories added, %d skipped)", added, skipped)
	return nil
}
