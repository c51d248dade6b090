package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/cfactory/internal/cli/ui"
	"github.com/conduit-lang/cfactory/internal/tooling/build"
	"github.com/conduit-lang/cfactory/internal/watch"
)

// NewWatchCommand creates the watch command
func NewWatchCommand(flags *globalFlags) *cobra.Command {
	var (
		bf       buildFlags
		restart  bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [-- program args...]",
		Short: "Rebuild whenever sources change",
		Long: `Build the project, then watch the project tree and rebuild as soon as a
source file is written, created or removed.

Each successful build becomes the new baseline, so a rebuild only compiles
what changed since the previous one. With --run the executable is started
after every link and restarted when it is rebuilt.`,
		Example: `  # Rebuild on every change
  cfactory watch

  # Keep the program running with the latest build
  cfactory watch --run -- --port 8080`,
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
			if req.DeleteIntermediate {
				return errCleanUpdatesBaseline
			}
			req.UpdateCache = true

			ignore := append([]string{}, env.config.IgnoreDirs...)
			ignore = append(ignore, filepath.Base(env.config.BuildPath()))

			out := env.out
			session, err := watch.NewSession(env.system, watch.SessionConfig{
				Watcher: watch.WatcherOptions{
					Root:       env.config.ProjectRoot(),
					Patterns:   []string{"*." + req.Extension},
					IgnoreDirs: ignore,
					Debounce:   debounce,
				},
				Request: req,
				Restart: restart,
				RunArgs: args,
				OnBuild: func(changed []string, result *build.BuildResult, err error) {
					if err != nil {
						fmt.Fprint(cmd.ErrOrStderr(), ui.BuildError(err, flags.noColor))
						return
					}
					reportBuild(out, result, flags.noColor)
				},
				Stdout: out,
				Stderr: cmd.ErrOrStderr(),
				Logger: env.logger,
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprint(out, ui.Info(fmt.Sprintf("Watching %s for *.%s changes (Ctrl+C to stop)",
				env.config.ProjectRoot(), req.Extension), flags.noColor))

			return session.Run(ctx)
		},
	}

	bf.register(cmd)
	cmd.Flags().BoolVar(&restart, "run", false, "Run the executable after every link, restarting it on rebuild")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a batch of changes triggers a build")
	// The baseline always moves in watch mode
	cmd.Flags().MarkHidden("update-cache")

	return cmd
}
