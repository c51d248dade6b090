package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/cfactory/internal/cli/ui"
)

// NewStatusCommand creates the status command
func NewStatusCommand(flags *globalFlags) *cobra.Command {
	var extension string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which sources differ from the baseline",
		Long: `Compare the sources on disk with the baseline without compiling anything.

Added and modified sources are what the next build compiles. Removed
sources are listed for information only; their object files stay in the
build directory until it is cleaned.`,
		Args: cobra.NoArgs,
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

			summary, err := env.system.Status(ext)
			if err != nil {
				return err
			}

			root := env.config.ProjectRoot()
			out := env.out

			ui.Header(out, fmt.Sprintf("Status of %s", root), flags.noColor)
			if !env.system.Cache().Exists() {
				fmt.Fprint(out, ui.Warning("No baseline yet: every source will be compiled",
					[]string{"cfactory cache refresh"}, flags.noColor))
			}

			ui.ChangeList(out, "Added", summary.Added, root, flags.noColor)
			ui.ChangeList(out, "Modified", summary.Modified, root, flags.noColor)
			ui.ChangeList(out, "Removed", summary.Removed, root, flags.noColor)

			if summary.IsEmpty() {
				ui.WriteSuccess(out, fmt.Sprintf("Up to date (%d sources)", len(summary.Unchanged)), flags.noColor)
			} else {
				fmt.Fprintf(out, "%d to compile, %d unchanged\n",
					len(summary.Added)+len(summary.Modified), len(summary.Unchanged))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&extension, "ext", "", "Source file extension (default from config: cpp)")
	return cmd
}
