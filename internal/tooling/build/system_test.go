package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingRunner stands in for the compiler and linker. Compile commands
// produce one object per source in the working directory, link commands
// produce the output file.
type recordingRunner struct {
	calls []recordedCall
	fail  map[Stage]error
}

type recordedCall struct {
	Dir string
	Cmd Command
}

func (r *recordingRunner) Run(_ context.Context, dir string, cmd Command) error {
	r.calls = append(r.calls, recordedCall{Dir: dir, Cmd: cmd})

	switch {
	case containsArg(cmd, CompileOnlyFlag):
		if err := r.fail[StageCompile]; err != nil {
			return err
		}
		for _, arg := range cmd {
			if strings.HasSuffix(arg, ".cpp") {
				base := strings.TrimSuffix(filepath.Base(arg), ".cpp")
				if err := os.WriteFile(filepath.Join(dir, base+".o"), []byte(arg), 0644); err != nil {
					return err
				}
			}
		}
	case containsArg(cmd, OutputFlag):
		if err := r.fail[StageLink]; err != nil {
			return err
		}
		for i, arg := range cmd {
			if arg == OutputFlag && i+1 < len(cmd) {
				return os.WriteFile(filepath.Join(dir, cmd[i+1]), []byte("exe"), 0755)
			}
		}
	default:
		if err := r.fail[StageRun]; err != nil {
			return err
		}
	}
	return nil
}

func containsArg(cmd Command, arg string) bool {
	for _, a := range cmd {
		if a == arg {
			return true
		}
	}
	return false
}

type testProject struct {
	root     string
	buildDir string
	cacheDir string
	runner   *recordingRunner
	system   *System
}

func newTestProject(t *testing.T, platform string) *testProject {
	t.Helper()

	root := filepath.Join(t.TempDir(), "proj")
	cacheDir := filepath.Join(root, "tools")
	require.NoError(t, os.MkdirAll(cacheDir, 0755))

	p := &testProject{
		root:     root,
		buildDir: filepath.Join(root, "build"),
		cacheDir: cacheDir,
		runner:   &recordingRunner{fail: make(map[Stage]error)},
	}

	system, err := NewSystem(&Options{
		Compiler:    "clang++",
		ProjectRoot: root,
		BuildDir:    p.buildDir,
		CacheDir:    cacheDir,
		Platform:    platform,
	}, p.runner, zap.NewNop())
	require.NoError(t, err)
	p.system = system

	return p
}

func (p *testProject) refresh(t *testing.T) {
	t.Helper()
	_, err := p.system.RefreshCache("cpp")
	require.NoError(t, err)
}

func TestNewSystem_Defaults(t *testing.T) {
	root := t.TempDir()

	system, err := NewSystem(&Options{Compiler: "clang++", ProjectRoot: root}, &recordingRunner{}, nil)
	require.NoError(t, err)

	opts := system.Options()
	assert.Equal(t, filepath.Join(root, "build"), opts.BuildDir)
	assert.Equal(t, root, opts.CacheDir)
	assert.Equal(t, filepath.Base(root), opts.ProjectName)
	assert.Equal(t, "o", opts.ObjectExtension)
	assert.NotEmpty(t, opts.Platform)
	assert.Equal(t, filepath.Join(root, DefaultCacheFileName), system.Cache().Path())
}

func TestNewSystem_Validation(t *testing.T) {
	_, err := NewSystem(&Options{ProjectRoot: t.TempDir()}, nil, nil)
	assert.Error(t, err)

	_, err = NewSystem(&Options{Compiler: "cc"}, nil, nil)
	assert.Error(t, err)
}

func TestBuild_FirstBuildCompilesEverything(t *testing.T) {
	p := newTestProject(t, "linux")
	a := writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	b := writeFile(t, filepath.Join(p.root, "b.cpp"), "int main() {}")

	result, err := p.system.Build(context.Background(), DefaultBuildRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, result.ID)
	assert.Equal(t, []string{a, b}, result.Changed)
	assert.True(t, result.Compiled)
	assert.True(t, result.Linked)
	assert.Equal(t, filepath.Join(p.buildDir, "proj.bin"), result.Executable)

	require.Len(t, p.runner.calls, 2)
	assert.Equal(t, Command{"clang++", "-c", a, b}, p.runner.calls[0].Cmd)
	assert.Equal(t, p.buildDir, p.runner.calls[0].Dir)

	objA, objB := filepath.Join(p.buildDir, "a.o"), filepath.Join(p.buildDir, "b.o")
	assert.Equal(t, Command{"clang++", objA, objB, "-o", "proj.bin"}, p.runner.calls[1].Cmd)
	assert.Equal(t, p.buildDir, p.runner.calls[1].Dir)
	assert.FileExists(t, result.Executable)

	// Builds never write the baseline
	assert.False(t, p.system.Cache().Exists())
}

func TestBuild_UnchangedSourcesSkipCompilation(t *testing.T) {
	p := newTestProject(t, "linux")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	writeFile(t, filepath.Join(p.root, "b.cpp"), "int main() {}")

	_, err := p.system.Build(context.Background(), DefaultBuildRequest())
	require.NoError(t, err)
	p.refresh(t)
	p.runner.calls = nil

	result, err := p.system.Build(context.Background(), DefaultBuildRequest())
	require.NoError(t, err)

	assert.Empty(t, result.Changed)
	assert.False(t, result.Compiled)
	assert.True(t, result.Linked)
	require.Len(t, p.runner.calls, 1)
	assert.Equal(t, OutputFlag, p.runner.calls[0].Cmd[3])
}

func TestBuild_OnlyModifiedSourceIsRecompiled(t *testing.T) {
	p := newTestProject(t, "linux")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	b := writeFile(t, filepath.Join(p.root, "b.cpp"), "int main() {}")

	_, err := p.system.Build(context.Background(), DefaultBuildRequest())
	require.NoError(t, err)
	p.refresh(t)
	p.runner.calls = nil

	writeFile(t, b, "int main() { return 1; }")

	result, err := p.system.Build(context.Background(), DefaultBuildRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{b}, result.Changed)
	require.Len(t, p.runner.calls, 2)
	assert.Equal(t, Command{"clang++", "-c", b}, p.runner.calls[0].Cmd)

	// Both objects are linked, including the one compiled earlier
	assert.Len(t, result.Objects, 2)
}

func TestBuild_BaselineOnlyMovesOnRefresh(t *testing.T) {
	p := newTestProject(t, "linux")
	a := writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	p.refresh(t)

	writeFile(t, a, "int a = 1;")

	for i := 0; i < 2; i++ {
		result, err := p.system.Build(context.Background(), DefaultBuildRequest())
		require.NoError(t, err)
		assert.Equal(t, []string{a}, result.Changed, "build %d", i)
	}

	req := DefaultBuildRequest()
	req.RefreshCache = true
	result, err := p.system.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, result.Changed)
}

func TestBuild_IgnoresSourcesInBuildDir(t *testing.T) {
	p := newTestProject(t, "linux")
	a := writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	writeFile(t, filepath.Join(p.buildDir, "generated.cpp"), "int g;")

	result, err := p.system.Build(context.Background(), DefaultBuildRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{a}, result.Changed)
}

func TestBuild_NoBuildSpawnsNothing(t *testing.T) {
	p := newTestProject(t, "linux")
	a := writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")

	var printed []Stage
	opts := p.system.Options()
	opts.CommandFunc = func(stage Stage, cmd Command) {
		printed = append(printed, stage)
	}
	system, err := NewSystem(&opts, p.runner, nil)
	require.NoError(t, err)

	req := DefaultBuildRequest()
	req.Build = false
	req.PrintCommands = true

	result, err := system.Build(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, p.runner.calls)
	assert.Equal(t, Command{"clang++", "-c", a}, result.CompileCommand)
	assert.Equal(t, Command{"clang++", "-o", "proj.bin"}, result.LinkCommand)
	assert.Equal(t, []Stage{StageCompile, StageLink}, printed)
	assert.NoDirExists(t, p.buildDir)
}

func TestBuild_CompileOnly(t *testing.T) {
	p := newTestProject(t, "linux")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")

	req := DefaultBuildRequest()
	req.CompileOnly = true

	result, err := p.system.Build(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Compiled)
	assert.False(t, result.Linked)
	assert.Nil(t, result.LinkCommand)
	require.Len(t, p.runner.calls, 1)
	assert.FileExists(t, filepath.Join(p.buildDir, "a.o"))
}

func TestBuild_NoObjectsToLink(t *testing.T) {
	p := newTestProject(t, "linux")
	require.NoError(t, os.MkdirAll(p.root, 0755))

	_, err := p.system.Build(context.Background(), DefaultBuildRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoObjects))
	assert.Empty(t, p.runner.calls)
}

func TestBuild_CompileFailureStopsBuild(t *testing.T) {
	p := newTestProject(t, "linux")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int a")
	p.runner.fail[StageCompile] = &SubprocessError{Argv: []string{"clang++"}, ExitCode: 1}

	_, err := p.system.Build(context.Background(), DefaultBuildRequest())
	require.Error(t, err)

	var subErr *SubprocessError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, 1, subErr.ExitCode)
	assert.Len(t, p.runner.calls, 1)
}

func TestBuild_DeleteIntermediate(t *testing.T) {
	p := newTestProject(t, "linux")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")

	req := DefaultBuildRequest()
	req.DeleteIntermediate = true

	result, err := p.system.Build(context.Background(), req)
	require.NoError(t, err)

	for _, object := range result.Objects {
		assert.NoFileExists(t, object)
	}
	assert.FileExists(t, result.Executable)
}

func TestBuild_RemoveCache(t *testing.T) {
	p := newTestProject(t, "linux")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	p.refresh(t)
	require.True(t, p.system.Cache().Exists())

	req := DefaultBuildRequest()
	req.RemoveCache = true

	_, err := p.system.Build(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, p.system.Cache().Exists())
}

func TestBuild_LinuxLibraries(t *testing.T) {
	p := newTestProject(t, "linux")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	libDir := filepath.Join(p.root, "x")
	writeFile(t, filepath.Join(libDir, "libfoo.so"), "")

	result, err := p.system.Build(context.Background(), DefaultBuildRequest())
	require.NoError(t, err)

	assert.Equal(t, Command{
		"clang++", filepath.Join(p.buildDir, "a.o"),
		"-o", "proj.bin",
		"-L" + libDir, "-lfoo",
		"-Wl,-rpath," + libDir,
	}, result.LinkCommand)
}

func TestBuild_WindowsCopiesRuntimeLibraries(t *testing.T) {
	p := newTestProject(t, "windows")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	lib := writeFile(t, filepath.Join(p.root, "lib", "foo.lib"), "")
	writeFile(t, filepath.Join(p.root, "lib", "foo.dll"), "dll")

	result, err := p.system.Build(context.Background(), DefaultBuildRequest())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(p.buildDir, "proj.exe"), result.Executable)
	assert.Equal(t, Command{"clang++", filepath.Join(p.buildDir, "a.o"), "-o", "proj.exe", lib}, result.LinkCommand)

	copied, err := os.ReadFile(filepath.Join(p.buildDir, "foo.dll"))
	require.NoError(t, err)
	assert.Equal(t, "dll", string(copied))
}

func TestBuild_UnsupportedPlatform(t *testing.T) {
	p := newTestProject(t, "plan9")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")

	_, err := p.system.Build(context.Background(), DefaultBuildRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedPlatform))
	assert.Contains(t, err.Error(), "plan9")
	assert.Empty(t, p.runner.calls)

	req := DefaultBuildRequest()
	req.AllowUnsupportedPlatform = true
	result, err := p.system.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.buildDir, "proj"), result.Executable)
	assert.Equal(t, Command{"clang++", filepath.Join(p.buildDir, "a.o"), "-o", "proj"}, result.LinkCommand)
}

func TestBuild_RunExecutable(t *testing.T) {
	p := newTestProject(t, "linux")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int main() {}")

	req := DefaultBuildRequest()
	req.Run = true
	req.RunArgs = []string{"--flag", "value"}

	result, err := p.system.Build(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Ran)

	require.Len(t, p.runner.calls, 3)
	assert.Equal(t, Command{result.Executable, "--flag", "value"}, p.runner.calls[2].Cmd)
	assert.Equal(t, p.buildDir, p.runner.calls[2].Dir)
}

func TestBuild_CompilerOptionsAndLinkerOptions(t *testing.T) {
	p := newTestProject(t, "linux")
	a := writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")

	opts := p.system.Options()
	opts.CompilerOptions = []string{"-std=c++20", "-O2"}
	opts.LinkerOptions = []string{"-pthread"}
	system, err := NewSystem(&opts, p.runner, nil)
	require.NoError(t, err)

	result, err := system.Build(context.Background(), DefaultBuildRequest())
	require.NoError(t, err)

	assert.Equal(t, Command{"clang++", "-std=c++20", "-O2", "-c", a}, result.CompileCommand)
	assert.Equal(t, "-pthread", result.LinkCommand[len(result.LinkCommand)-1])
}

func TestBuild_MalformedCacheIsFatal(t *testing.T) {
	p := newTestProject(t, "linux")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	require.NoError(t, os.WriteFile(p.system.Cache().Path(), []byte("{broken"), 0644))

	_, err := p.system.Build(context.Background(), DefaultBuildRequest())
	var formatErr *CacheFormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Empty(t, p.runner.calls)
}

func TestStatus(t *testing.T) {
	p := newTestProject(t, "linux")
	a := writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	p.refresh(t)

	b := writeFile(t, filepath.Join(p.root, "b.cpp"), "int b;")
	writeFile(t, a, "int a = 2;")

	summary, err := p.system.Status("cpp")
	require.NoError(t, err)
	assert.Equal(t, []string{b}, summary.Added)
	assert.Equal(t, []string{a}, summary.Modified)
	assert.Empty(t, p.runner.calls)
}

func TestBuild_UpdateCacheMakesNextBuildIncremental(t *testing.T) {
	p := newTestProject(t, "linux")
	a := writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	b := writeFile(t, filepath.Join(p.root, "b.cpp"), "int main() {}")

	req := DefaultBuildRequest()
	req.UpdateCache = true

	result, err := p.system.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, result.Changed)
	assert.True(t, p.system.Cache().Exists())

	writeFile(t, a, "int a = 3;")
	result, err = p.system.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, result.Changed)

	result, err = p.system.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, result.Changed)
}

func TestBuild_UpdateCacheSkippedOnFailure(t *testing.T) {
	p := newTestProject(t, "linux")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int a")
	p.runner.fail[StageCompile] = errors.New("compile failed")

	req := DefaultBuildRequest()
	req.UpdateCache = true

	_, err := p.system.Build(context.Background(), req)
	require.Error(t, err)
	assert.False(t, p.system.Cache().Exists())
}

func TestBuild_UpdateCacheWithDeleteIntermediateKeepsFullRebuild(t *testing.T) {
	p := newTestProject(t, "linux")
	a := writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	b := writeFile(t, filepath.Join(p.root, "b.cpp"), "int main() {}")

	req := DefaultBuildRequest()
	req.UpdateCache = true
	req.DeleteIntermediate = true

	_, err := p.system.Build(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, p.system.Cache().Exists())

	writeFile(t, a, "int a = 3;")
	result, err := p.system.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, result.Changed)
	assert.Len(t, result.Objects, 2)

	// Nothing changed, but every object was deleted: still a full build
	result, err = p.system.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, result.Changed)
	assert.True(t, result.Linked)
}

func TestBuild_NoBuildHonorsRemoveCache(t *testing.T) {
	p := newTestProject(t, "linux")
	writeFile(t, filepath.Join(p.root, "a.cpp"), "int a;")
	p.refresh(t)
	require.True(t, p.system.Cache().Exists())

	req := DefaultBuildRequest()
	req.Build = false
	req.RemoveCache = true

	_, err := p.system.Build(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, p.system.Cache().Exists())
	assert.Empty(t, p.runner.calls)
}
