package commands

import (
	"github.com/spf13/cobra"
)

// NewBuildCommand creates the build command
func NewBuildCommand(flags *globalFlags) *cobra.Command {
	bf := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile changed sources and link the executable",
		Long: `Compile the sources that changed since the baseline and link every
object file in the build directory into <build dir>/<project><suffix>.

The build process:
  1. Discovery - find *.<ext> sources under the project root
  2. Change detection - compare SHA-256 fingerprints with the baseline
  3. Compilation - run the compiler with -c on the changed sources only
  4. Linking - link all objects with the libraries found in the project

Linux links *.so libraries through -L/-l and an rpath and produces .bin
executables; Windows links *.lib files, copies *.dll files next to the
executable and produces .exe executables.`,
		Example: `  # Build with default settings
  cfactory build

  # Show the commands without running anything
  cfactory build --no-build

  # Rebuild incrementally and move the baseline forward
  cfactory build --update-cache

  # Compile C sources with gcc, keeping object files
  cfactory build --compiler gcc --ext c --compile-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := flags.newBuildEnv(cmd)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			req, err := bf.request(env.config)
			if err != nil {
				return err
			}

			result, err := env.system.Build(cmd.Context(), req)
			if err != nil {
				return err
			}

			reportBuild(env.out, result, flags.noColor)
			return nil
		},
	}

	bf.register(cmd)
	return cmd
}
