package commands

import (
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command
func NewRunCommand(flags *globalFlags) *cobra.Command {
	bf := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "run [-- program args...]",
		Short: "Build the project and run the executable",
		Long: `Build the project like 'cfactory build' and, once linking succeeds, run
the executable from the build directory. Arguments after -- are passed to
the program unchanged. The program's exit status is reported as an error
when it is nonzero.`,
		Example: `  # Build and run
  cfactory run

  # Pass arguments to the program
  cfactory run -- --input data.txt -n 3`,
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
			req.Run = true
			req.RunArgs = args
			req.CompileOnly = false

			result, err := env.system.Build(cmd.Context(), req)
			if err != nil {
				return err
			}

			if !result.Ran {
				reportBuild(env.out, result, flags.noColor)
			}
			return nil
		},
	}

	bf.register(cmd)
	cmd.Flags().Lookup("compile-only").Hidden = true
	return cmd
}
