package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoObjects is returned when a link is requested but the build directory holds no object files
var ErrNoObjects = errors.New("no object files to link")

// Stage names a step of the build, in execution order
type Stage string

const (
	StageRefreshBaseline    Stage = "refresh_baseline"
	StageDiscoverSources    Stage = "discover_sources"
	StageLoadBaseline       Stage = "load_baseline"
	StageComputeChangeSet   Stage = "compute_changeset"
	StageResolveLibraries   Stage = "resolve_platform_libs"
	StageEnterBuildDir      Stage = "enter_build_dir"
	StageCompile            Stage = "compile"
	StageDiscoverObjects    Stage = "discover_objects"
	StageLink               Stage = "link"
	StageCopyRuntimeLibs    Stage = "copy_runtime_libs"
	StageSaveBaseline       Stage = "save_baseline"
	StageDeleteIntermediate Stage = "delete_intermediates"
	StageDeleteBaseline     Stage = "delete_baseline"
	StageRun                Stage = "run"
)

// Options configures a build system. Paths should be absolute; relative
// paths are resolved against the process working directory once, in NewSystem.
type Options struct {
	Compiler        string
	CompilerOptions []string
	LinkerOptions   []string
	// ProjectRoot is walked for sources and libraries
	ProjectRoot string
	// BuildDir receives object files and the executable
	BuildDir string
	// CacheDir holds the fingerprint cache (the invocation directory)
	CacheDir      string
	CacheFileName string
	// ProjectName names the executable; defaults to the base name of ProjectRoot
	ProjectName string
	// Platform is a platform identifier; defaults to runtime.GOOS
	Platform        string
	ObjectExtension string
	// IgnoreDirs are directory names never descended into during discovery.
	// The build directory is always ignored.
	IgnoreDirs []string
	// CommandFunc receives assembled commands when a request asks for them
	CommandFunc func(stage Stage, cmd Command)
}

// DefaultOptions returns options for building the parent of the current
// working directory with clang++ into <root>/build.
func DefaultOptions() (*Options, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	root := filepath.Dir(cwd)
	return &Options{
		Compiler:        "clang++",
		ProjectRoot:     root,
		BuildDir:        filepath.Join(root, "build"),
		CacheDir:        cwd,
		CacheFileName:   DefaultCacheFileName,
		Platform:        runtime.GOOS,
		ObjectExtension: "o",
		IgnoreDirs:      []string{".git"},
	}, nil
}

// BuildRequest holds the per-call switches of a build
type BuildRequest struct {
	// Build runs the compiler and linker. When false the commands are only
	// assembled (and printed if requested).
	Build bool
	// DeleteIntermediate removes object files after linking
	DeleteIntermediate bool
	// PrintCommands passes assembled commands to Options.CommandFunc
	PrintCommands bool
	// RefreshCache overwrites the baseline with the current fingerprints before diffing
	RefreshCache bool
	// Extension of source files, without the dot
	Extension string
	// CompileOnly stops after producing object files
	CompileOnly bool
	// UpdateCache saves the fingerprints this build compiled against as the
	// new baseline once compile and link succeed. It has no effect together
	// with DeleteIntermediate, since the baseline would then describe
	// objects that no longer exist.
	UpdateCache bool
	// RemoveCache deletes the baseline at the end of the build, including
	// builds that only assemble commands
	RemoveCache bool
	// AllowUnsupportedPlatform links with no libraries and no executable
	// suffix instead of failing on platforms other than Windows and Linux
	AllowUnsupportedPlatform bool
	// Run executes the linked program from the build directory
	Run     bool
	RunArgs []string
}

// DefaultBuildRequest compiles and links .cpp sources
func DefaultBuildRequest() BuildRequest {
	return BuildRequest{
		Build:     true,
		Extension: "cpp",
	}
}

// BuildResult describes what a build decided and did
type BuildResult struct {
	ID             string
	Sources        []string
	Changed        []string
	Objects        []string
	Libraries      *PlatformLibrarySet
	CompileCommand Command
	LinkCommand    Command
	Executable     string
	Compiled       bool
	Linked         bool
	Ran            bool
	Duration       time.Duration
}

// System coordinates discovery, change detection, compilation and linking.
// A System never changes the process working directory; subprocesses are
// started in the build directory instead.
type System struct {
	options *Options
	runner  Runner
	cache   *CacheStore
	logger  *zap.Logger
}

// NewSystem creates a build system. A nil runner selects NewExecRunner and a
// nil logger discards log output.
func NewSystem(opts *Options, runner Runner, logger *zap.Logger) (*System, error) {
	if opts == nil {
		defaults, err := DefaultOptions()
		if err != nil {
			return nil, err
		}
		opts = defaults
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	resolved := *opts
	if resolved.Compiler == "" {
		return nil, fmt.Errorf("compiler must be set")
	}
	if resolved.ProjectRoot == "" {
		return nil, fmt.Errorf("project root must be set")
	}
	if resolved.ObjectExtension == "" {
		resolved.ObjectExtension = "o"
	}
	if resolved.Platform == "" {
		resolved.Platform = runtime.GOOS
	}

	for _, p := range []*string{&resolved.ProjectRoot, &resolved.BuildDir, &resolved.CacheDir} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", *p, err)
		}
		*p = abs
	}
	if resolved.BuildDir == "" {
		resolved.BuildDir = filepath.Join(resolved.ProjectRoot, "build")
	}
	if resolved.CacheDir == "" {
		resolved.CacheDir = resolved.ProjectRoot
	}
	if resolved.ProjectName == "" {
		resolved.ProjectName = filepath.Base(resolved.ProjectRoot)
	}

	return &System{
		options: &resolved,
		runner:  runner,
		cache:   NewCacheStore(resolved.CacheDir, resolved.CacheFileName),
		logger:  logger,
	}, nil
}

// Options returns the resolved options
func (s *System) Options() Options {
	return *s.options
}

// Cache returns the fingerprint cache store
func (s *System) Cache() *CacheStore {
	return s.cache
}

// Platform returns the platform the system links for
func (s *System) Platform() Platform {
	return ParsePlatform(s.options.Platform)
}

// ExecutablePath returns where the linked program is written for platform p
func (s *System) ExecutablePath(p Platform) string {
	return filepath.Join(s.options.BuildDir, p.ExecutableName(s.options.ProjectName))
}

// ignoreDirs returns the directory names skipped during discovery
func (s *System) ignoreDirs() []string {
	ignore := append([]string{}, s.options.IgnoreDirs...)
	if filepath.Dir(s.options.BuildDir) == s.options.ProjectRoot {
		ignore = append(ignore, filepath.Base(s.options.BuildDir))
	}
	return ignore
}

// RefreshCache overwrites the baseline with the current fingerprints
func (s *System) RefreshCache(extension string) (Fingerprints, error) {
	return s.cache.Refresh(s.options.ProjectRoot, extension, s.ignoreDirs()...)
}

// Status compares the sources on disk with the baseline without building
func (s *System) Status(extension string) (*ChangeSummary, error) {
	current, err := FingerprintAll(s.options.ProjectRoot, extension, s.ignoreDirs()...)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint sources: %w", err)
	}

	baseline, err := s.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprint cache: %w", err)
	}

	return Summarize(current, baseline), nil
}

// Build runs one incremental build. Subprocess failures stop the build and
// are returned as *SubprocessError; object files already produced are left
// on disk for the next build.
func (s *System) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	startTime := time.Now()
	if req.Extension == "" {
		req.Extension = "cpp"
	}

	result := &BuildResult{ID: uuid.NewString()}
	log := s.logger.With(zap.String("build_id", result.ID))
	ignore := s.ignoreDirs()

	log.Info("starting build",
		zap.String("root", s.options.ProjectRoot),
		zap.String("build_dir", s.options.BuildDir),
		zap.String("extension", req.Extension),
		zap.Bool("build", req.Build))

	if req.RefreshCache {
		log.Debug("refreshing baseline", zap.String("cache", s.cache.Path()))
		if _, err := s.RefreshCache(req.Extension); err != nil {
			return nil, fmt.Errorf("%s: %w", StageRefreshBaseline, err)
		}
	}

	current, err := FingerprintAll(s.options.ProjectRoot, req.Extension, ignore...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageDiscoverSources, err)
	}
	result.Sources = current.Paths()

	baseline, err := s.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageLoadBaseline, err)
	}

	result.Changed = ChangedFiles(current, baseline)
	log.Info("computed changeset",
		zap.Int("sources", len(result.Sources)),
		zap.Int("changed", len(result.Changed)),
		zap.Bool("baseline_empty", len(baseline) == 0))
	warnObjectCollisions(log, result.Changed)

	platform := s.Platform()
	libs, err := s.resolveLibraries(platform, req.AllowUnsupportedPlatform, ignore)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageResolveLibraries, err)
	}
	result.Libraries = libs
	result.Executable = s.ExecutablePath(platform)

	if len(result.Changed) > 0 {
		result.CompileCommand, err = CompileCommand(s.options.Compiler, s.options.CompilerOptions, result.Changed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StageCompile, err)
		}
	}

	if !req.Build {
		// Report what would run against the objects already on disk
		if objects, err := s.findObjects(); err == nil {
			result.Objects = objects
		}
		result.LinkCommand, err = s.linkCommand(platform, libs, result.Objects)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StageLink, err)
		}
		s.report(req, StageCompile, result.CompileCommand)
		s.report(req, StageLink, result.LinkCommand)
		if req.RemoveCache {
			if err := s.removeBaseline(log); err != nil {
				return nil, err
			}
		}
		result.Duration = time.Since(startTime)
		return result, nil
	}

	if err := ensureDir(s.options.BuildDir); err != nil {
		return nil, fmt.Errorf("%s: %w", StageEnterBuildDir, err)
	}

	if result.CompileCommand != nil {
		s.report(req, StageCompile, result.CompileCommand)
		log.Info("compiling", zap.Strings("files", result.Changed))
		if err := s.runner.Run(ctx, s.options.BuildDir, result.CompileCommand); err != nil {
			return nil, fmt.Errorf("%s: %w", StageCompile, err)
		}
		result.Compiled = true
	} else {
		log.Info("no sources changed, skipping compilation")
	}

	result.Objects, err = s.findObjects()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageDiscoverObjects, err)
	}

	if !req.CompileOnly {
		if len(result.Objects) == 0 {
			return nil, fmt.Errorf("%s: %w in %s", StageLink, ErrNoObjects, s.options.BuildDir)
		}

		result.LinkCommand, err = s.linkCommand(platform, libs, result.Objects)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StageLink, err)
		}

		s.report(req, StageLink, result.LinkCommand)
		log.Info("linking", zap.String("executable", result.Executable), zap.Int("objects", len(result.Objects)))
		if err := s.runner.Run(ctx, s.options.BuildDir, result.LinkCommand); err != nil {
			return nil, fmt.Errorf("%s: %w", StageLink, err)
		}
		result.Linked = true

		if err := s.copyRuntimeLibraries(libs); err != nil {
			return nil, fmt.Errorf("%s: %w", StageCopyRuntimeLibs, err)
		}
	}

	switch {
	case req.UpdateCache && req.DeleteIntermediate:
		log.Warn("not saving baseline: object files are deleted after this build")
	case req.UpdateCache:
		if err := s.cache.Save(current.Map()); err != nil {
			return nil, fmt.Errorf("%s: %w", StageSaveBaseline, err)
		}
		log.Debug("saved baseline", zap.String("cache", s.cache.Path()), zap.Int("entries", len(current)))
	}

	if req.DeleteIntermediate {
		for _, object := range result.Objects {
			if err := os.Remove(object); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("%s: %w", StageDeleteIntermediate,
					&FileSystemError{Op: "remove", Path: object, Err: err})
			}
		}
		log.Debug("deleted intermediate objects", zap.Int("count", len(result.Objects)))
	}

	if req.RemoveCache {
		if err := s.removeBaseline(log); err != nil {
			return nil, err
		}
	}

	if req.Run && result.Linked {
		runCmd := append(Command{result.Executable}, req.RunArgs...)
		s.report(req, StageRun, runCmd)
		if err := s.runner.Run(ctx, s.options.BuildDir, runCmd); err != nil {
			return nil, fmt.Errorf("%s: %w", StageRun, err)
		}
		result.Ran = true
	}

	result.Duration = time.Since(startTime)
	log.Info("build finished",
		zap.Bool("compiled", result.Compiled),
		zap.Bool("linked", result.Linked),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (s *System) removeBaseline(log *zap.Logger) error {
	if err := s.cache.Remove(); err != nil {
		return fmt.Errorf("%s: %w", StageDeleteBaseline, err)
	}
	log.Debug("deleted baseline", zap.String("cache", s.cache.Path()))
	return nil
}

// resolveLibraries discovers the platform libraries, substituting an empty
// set for unsupported platforms when the caller allows it.
func (s *System) resolveLibraries(p Platform, allowUnsupported bool, ignore []string) (*PlatformLibrarySet, error) {
	libs, err := ResolveLibraries(p, s.options.ProjectRoot, ignore...)
	if err != nil {
		if allowUnsupported && errors.Is(err, ErrUnsupportedPlatform) {
			s.logger.Warn("linking without platform libraries", zap.String("platform", s.options.Platform))
			return &PlatformLibrarySet{Platform: p}, nil
		}
		if errors.Is(err, ErrUnsupportedPlatform) {
			return nil, &UnsupportedPlatformError{Platform: s.options.Platform}
		}
		return nil, err
	}
	return libs, nil
}

func (s *System) linkCommand(p Platform, libs *PlatformLibrarySet, objects []string) (Command, error) {
	return LinkCommand(s.options.Compiler, p.ExecutableName(s.options.ProjectName), libs, objects, s.options.LinkerOptions)
}

// findObjects lists the object files in the build directory. A build
// directory that does not exist yet holds no objects.
func (s *System) findObjects() ([]string, error) {
	if _, err := os.Stat(s.options.BuildDir); os.IsNotExist(err) {
		return []string{}, nil
	}

	objects, err := FindFiles(s.options.BuildDir, s.options.ObjectExtension)
	if err != nil {
		return nil, err
	}
	if objects == nil {
		objects = []string{}
	}
	return objects, nil
}

// copyRuntimeLibraries places Windows DLLs next to the executable
func (s *System) copyRuntimeLibraries(libs *PlatformLibrarySet) error {
	for _, lib := range libs.RuntimeCopies() {
		dst := filepath.Join(s.options.BuildDir, filepath.Base(lib))
		if dst == lib {
			continue
		}
		if err := copyFile(lib, dst); err != nil {
			return &FileSystemError{Op: "copy", Path: lib, Err: err}
		}
	}
	return nil
}

func (s *System) report(req BuildRequest, stage Stage, cmd Command) {
	if !req.PrintCommands || cmd == nil {
		return
	}
	if s.options.CommandFunc != nil {
		s.options.CommandFunc(stage, cmd)
		return
	}
	fmt.Printf("%s command: %s\n", stage, cmd)
}

// warnObjectCollisions logs sources that compile to the same object file
// name; the compiler writes every object into the build directory, so the
// later one overwrites the earlier.
func warnObjectCollisions(log *zap.Logger, sources []string) {
	seen := make(map[string]string, len(sources))
	for _, src := range sources {
		base := filepath.Base(src)
		object := base[:len(base)-len(filepath.Ext(base))]
		if other, ok := seen[object]; ok {
			log.Warn("sources share an object file name",
				zap.String("first", other),
				zap.String("second", src))
			continue
		}
		seen[object] = src
	}
}
