package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/cfactory/internal/cli/config"
	"github.com/conduit-lang/cfactory/internal/cli/ui"
	"github.com/conduit-lang/cfactory/internal/tooling/build"
)

// newRunner creates the process runner used for compiler, linker and
// program invocations. Tests replace it with a recording fake.
var newRunner = func(stdout, stderr io.Writer) build.Runner {
	runner := build.NewExecRunner()
	runner.Stdout = stdout
	runner.Stderr = stderr
	return runner
}

// globalFlags are the persistent flags shared by every command
type globalFlags struct {
	dir      string
	root     string
	compiler string
	verbose  bool
	noColor  bool
}

func (f *globalFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.dir, "dir", "C", ".", "Run as if started in this directory (config and cache location)")
	pf.StringVar(&f.root, "root", "", "Project root (default: parent of the invocation directory)")
	pf.StringVar(&f.compiler, "compiler", "", "Compiler and linker driver (default: clang++)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Show detailed build logs")
	pf.BoolVar(&f.noColor, "no-color", false, "Disable colored output")

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if f.noColor {
			color.NoColor = true
		}
	}
}

// configLoadError marks failures to load or validate the configuration
type configLoadError struct {
	err error
}

func (e *configLoadError) Error() string { return e.err.Error() }
func (e *configLoadError) Unwrap() error { return e.err }

// loadConfig loads cfactory.yml from the invocation directory and applies
// flag overrides, which take precedence over the file and environment.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(f.dir)
	if err != nil {
		return nil, &configLoadError{err: err}
	}

	if f.root != "" {
		cfg.Root = f.root
	}
	if f.compiler != "" {
		cfg.Compiler = f.compiler
	}

	return cfg, nil
}

// newLogger selects a development logger for --verbose and a quiet
// production logger otherwise.
func (f *globalFlags) newLogger() (*zap.Logger, error) {
	if f.verbose {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// buildEnv bundles what a command needs to run builds
type buildEnv struct {
	config *config.Config
	system *build.System
	logger *zap.Logger
	out    io.Writer
}

// newBuildEnv loads configuration and creates a build system writing
// subprocess output and echoed commands to the command's streams.
func (f *globalFlags) newBuildEnv(cmd *cobra.Command) (*buildEnv, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := f.newLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	opts := cfg.BuildOptions()
	opts.CommandFunc = ui.NewCommandPrinter(cmd.OutOrStdout(), f.noColor).Func()

	system, err := build.NewSystem(opts, newRunner(cmd.OutOrStdout(), cmd.ErrOrStderr()), logger)
	if err != nil {
		return nil, err
	}

	return &buildEnv{
		config: cfg,
		system: system,
		logger: logger,
		out:    cmd.OutOrStdout(),
	}, nil
}

// buildFlags are the per-build switches shared by build, run and watch
type buildFlags struct {
	noBuild                  bool
	clean                    bool
	print                    bool
	refresh                  bool
	extension                string
	compileOnly              bool
	removeCache              bool
	updateCache              bool
	allowUnsupportedPlatform bool
}

func (b *buildFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.BoolVar(&b.noBuild, "no-build", false, "Assemble the commands without running them")
	fs.BoolVar(&b.clean, "clean", false, "Delete object files after linking")
	fs.BoolVar(&b.print, "print", false, "Print the compile and link commands")
	fs.BoolVar(&b.refresh, "refresh", false, "Refresh the baseline before computing changes")
	fs.StringVar(&b.extension, "ext", "", "Source file extension (default from config: cpp)")
	fs.BoolVar(&b.compileOnly, "compile-only", false, "Compile changed sources without linking")
	fs.BoolVar(&b.removeCache, "remove-cache", false, "Delete the baseline after the build")
	fs.BoolVar(&b.updateCache, "update-cache", false, "Save the fingerprints of this build as the new baseline")
	fs.BoolVar(&b.allowUnsupportedPlatform, "allow-unsupported-platform", false, "Link without platform libraries on unknown platforms")
}

// errCleanUpdatesBaseline rejects moving the baseline past objects that
// are about to be deleted
var errCleanUpdatesBaseline = errors.New("--clean cannot be combined with a baseline update: the next build would link without the deleted objects")

// extensionFlag returns the validated --ext value, or the configured
// extension when the flag is not set
func extensionFlag(flag string, cfg *config.Config) (string, error) {
	if flag == "" {
		return cfg.Extension, nil
	}
	ext, err := config.NormalizeExtension(flag)
	if err != nil {
		return "", fmt.Errorf("invalid --ext: %w", err)
	}
	return ext, nil
}

// request turns the flags into a build request, using the configured
// extension unless --ext is given.
func (b *buildFlags) request(cfg *config.Config) (build.BuildRequest, error) {
	ext, err := extensionFlag(b.extension, cfg)
	if err != nil {
		return build.BuildRequest{}, err
	}
	if b.updateCache && b.clean {
		return build.BuildRequest{}, errCleanUpdatesBaseline
	}

	req := build.DefaultBuildRequest()
	req.Build = !b.noBuild
	req.DeleteIntermediate = b.clean
	req.PrintCommands = b.print || b.noBuild
	req.RefreshCache = b.refresh
	req.Extension = ext
	req.CompileOnly = b.compileOnly
	req.RemoveCache = b.removeCache
	req.UpdateCache = b.updateCache
	req.AllowUnsupportedPlatform = b.allowUnsupportedPlatform
	return req, nil
}

// reportBuild prints a one-line summary of a finished build
func reportBuild(w io.Writer, result *build.BuildResult, noColor bool) {
	switch {
	case result.Linked:
		ui.WriteSuccess(w, fmt.Sprintf("Built %s (%d compiled, %d linked) in %s",
			result.Executable, len(result.Changed), len(result.Objects), result.Duration.Round(time.Millisecond)), noColor)
	case result.Compiled:
		ui.WriteSuccess(w, fmt.Sprintf("Compiled %d source(s) in %s",
			len(result.Changed), result.Duration.Round(time.Millisecond)), noColor)
	case len(result.Changed) == 0 && result.CompileCommand == nil && result.LinkCommand == nil:
		fmt.Fprint(w, ui.Info("Nothing to compile", noColor))
	}
}
