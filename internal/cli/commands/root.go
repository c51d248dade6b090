package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/cfactory/internal/cli/ui"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "cfactory",
		Short: "Incremental build driver for C and C++ projects",
		Long: color.CyanString(`cfactory - incremental native builds

cfactory finds the sources of a project, hashes them with SHA-256 and
compiles only those that changed since the last baseline. All object files
are then linked, together with the libraries found in the project tree,
into a single executable.

The baseline lives in cfactory_sha256.json next to where cfactory runs and
only moves when you ask for it (--refresh, --update-cache, cache refresh).`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags.register(rootCmd)

	// Add subcommands
	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewBuildCommand(flags))
	rootCmd.AddCommand(NewRunCommand(flags))
	rootCmd.AddCommand(NewStatusCommand(flags))
	rootCmd.AddCommand(NewCacheCommand(flags))
	rootCmd.AddCommand(NewWatchCommand(flags))
	rootCmd.AddCommand(NewConfigCommand(flags))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the cfactory version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			// Set GoVersion to actual runtime if not set at build time
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			table := ui.NewKeyValueTable(cmd.OutOrStdout(), false)
			table.AddRow("cfactory version", Version)
			table.AddRow("Git commit", GitCommit)
			table.AddRow("Build date", BuildDate)
			table.AddRow("Go version", goVer)
			table.Render()
		},
	}
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(rootCmd, err)
		return err
	}
	return nil
}

// reportError prints err with context and suggestions on stderr
func reportError(cmd *cobra.Command, err error) {
	var cfgErr *configLoadError
	if errors.As(err, &cfgErr) {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(cfgErr.Error(), color.NoColor))
		return
	}
	ui.WriteError(cmd.ErrOrStderr(), ui.ErrorOptionsFor(err))
}
