package commands

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/cfactory/internal/cli/ui"
)

// NewCacheCommand creates the cache command group
func NewCacheCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the fingerprint baseline",
		Long: `The baseline (cfactory_sha256.json) records the SHA-256 of every source
as of the last refresh. Builds compare against it but never change it
unless asked to.`,
	}

	cmd.AddCommand(newCacheRefreshCommand(flags))
	cmd.AddCommand(newCacheClearCommand(flags))
	cmd.AddCommand(newCacheShowCommand(flags))

	return cmd
}

func newCacheRefreshCommand(flags *globalFlags) *cobra.Command {
	var extension string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Record the current sources as the baseline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := flags.newBuildEnv(cmd)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			ext, err := extensionFlag(extension, env.config)
			if err != nil {
				return err
			}

			fingerprints, err := env.system.RefreshCache(ext)
			if err != nil {
				return err
			}

			ui.WriteSuccess(env.out, fmt.Sprintf("Recorded %d source(s) in %s",
				len(fingerprints), env.system.Cache().Path()), flags.noColor)
			return nil
		},
	}

	cmd.Flags().StringVar(&extension, "ext", "", "Source file extension (default from config: cpp)")
	return cmd
}

func newCacheClearCommand(flags *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the baseline so the next build compiles everything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := flags.newBuildEnv(cmd)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			store := env.system.Cache()
			if !store.Exists() {
				fmt.Fprint(env.out, ui.Info("No baseline to delete", flags.noColor))
				return nil
			}

			if !yes {
				ok, err := confirm(fmt.Sprintf("Delete %s?", store.Path()))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(env.out, "Aborted")
					return nil
				}
			}

			if err := store.Remove(); err != nil {
				return err
			}

			ui.WriteSuccess(env.out, fmt.Sprintf("Deleted %s", store.Path()), flags.noColor)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newCacheShowCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the fingerprints recorded in the baseline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := flags.newBuildEnv(cmd)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			store := env.system.Cache()
			cache, err := store.Load()
			if err != nil {
				return err
			}

			if len(cache) == 0 {
				fmt.Fprint(env.out, ui.Info(fmt.Sprintf("Baseline %s is empty", store.Path()), flags.noColor))
				return nil
			}

			paths := make([]string, 0, len(cache))
			for path := range cache {
				paths = append(paths, path)
			}
			sort.Strings(paths)

			root := env.config.ProjectRoot()
			table := ui.NewTable(env.out, []string{"Source", "SHA-256"}, &ui.TableOptions{NoColor: flags.noColor})
			for _, path := range paths {
				display := path
				if rel, err := filepath.Rel(root, path); err == nil {
					display = rel
				}
				table.AddRow(display, cache[path])
			}
			table.Render()
			return nil
		},
	}

	return cmd
}
