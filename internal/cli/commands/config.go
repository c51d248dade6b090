package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/cfactory/internal/cli/config"
	"github.com/conduit-lang/cfactory/internal/cli/ui"
)

// NewConfigCommand creates the config command group
func NewConfigCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create cfactory.yml",
	}

	cmd.AddCommand(newConfigShowCommand(flags))
	cmd.AddCommand(newConfigInitCommand(flags))

	return cmd
}

func newConfigShowCommand(flags *globalFlags) *cobra.Command {
	var paths bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, cfactory.yml, CFACTORY_*
environment variables and flags have been applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if paths {
				table := ui.NewKeyValueTable(out, flags.noColor)
				if file, ok := config.FindFile(cfg.Dir()); ok {
					table.AddRow("Config file", file)
				} else {
					table.AddRow("Config file", "(none, using defaults)")
				}
				table.AddRow("Project root", cfg.ProjectRoot())
				table.AddRow("Build directory", cfg.BuildPath())
				table.AddRow("Cache file", cfg.CachePath())
				table.Render()
				return nil
			}

			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&paths, "paths", false, "Show the resolved paths instead of the settings")
	return cmd
}

func newConfigInitCommand(flags *globalFlags) *cobra.Command {
	var (
		force       bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a cfactory.yml with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			if interactive {
				if cfg.Compiler, err = askInput("Compiler:", cfg.Compiler); err != nil {
					return err
				}
				if cfg.Extension, err = askInput("Source extension:", cfg.Extension); err != nil {
					return err
				}
				if cfg.ProjectName, err = askInput("Executable name:", cfg.ProjectName); err != nil {
					return err
				}
			}

			path := filepath.Join(cfg.Dir(), config.FileName+".yml")
			if err := config.Write(path, cfg, force); err != nil {
				return err
			}

			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Wrote %s", path), flags.noColor)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing cfactory.yml")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for the main settings")
	return cmd
}
