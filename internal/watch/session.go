package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/cfactory/internal/tooling/build"
)

// Builder runs one build; *build.System implements it
type Builder interface {
	Build(ctx context.Context, req build.BuildRequest) (*build.BuildResult, error)
}

// SessionConfig configures a watch session
type SessionConfig struct {
	Watcher WatcherOptions
	// Request is the build request issued for every rebuild
	Request build.BuildRequest
	// Restart runs the executable after every successful link, stopping
	// the previous instance first
	Restart bool
	RunArgs []string
	// StopTimeout bounds how long a running program may take to exit
	// before it is killed; defaults to 5s
	StopTimeout time.Duration
	// OnBuild is called after every build attempt
	OnBuild func(changed []string, result *build.BuildResult, err error)
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *zap.Logger
}

// Session rebuilds a project whenever its sources change. Rebuilds never
// overlap: changes that arrive during a build are folded into one
// follow-up build.
type Session struct {
	builder Builder
	config  SessionConfig
	watcher *FileWatcher
	logger  *zap.Logger
	ctx     context.Context

	buildMutex sync.Mutex
	isBuilding bool
	pending    []string

	appProcess      *os.Process
	appDone         chan struct{}
	appProcessMutex sync.Mutex
}

// NewSession creates a watch session around builder
func NewSession(builder Builder, config SessionConfig) (*Session, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 5 * time.Second
	}
	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}
	if config.Watcher.Logger == nil {
		config.Watcher.Logger = logger
	}

	// Running is owned by the session, not by the build
	config.Request.Run = false

	s := &Session{
		builder: builder,
		config:  config,
		logger:  logger,
		ctx:     context.Background(),
	}

	watcher, err := NewFileWatcher(config.Watcher, s.HandleChange)
	if err != nil {
		return nil, err
	}
	s.watcher = watcher

	return s, nil
}

// Run performs an initial build, then rebuilds on changes until ctx is
// cancelled. A failing initial build does not end the session.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx

	if err := s.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	s.logger.Info("watching for changes", zap.String("root", s.config.Watcher.Root))

	if err := s.HandleChange(nil); err != nil {
		s.logger.Warn("initial build failed", zap.Error(err))
	}

	<-ctx.Done()
	return s.Stop()
}

// Stop stops watching and terminates the running program, if any
func (s *Session) Stop() error {
	if err := s.stopApp(); err != nil {
		s.logger.Warn("failed to stop program", zap.Error(err))
	}
	return s.watcher.Stop()
}

// HandleChange rebuilds for a batch of changed files. If a build is
// already running the batch is queued and picked up when it finishes.
func (s *Session) HandleChange(files []string) error {
	s.buildMutex.Lock()
	if s.isBuilding {
		s.pending = append(s.pending, files...)
		if s.pending == nil {
			s.pending = []string{}
		}
		s.buildMutex.Unlock()
		s.logger.Debug("build in progress, queueing changes", zap.Int("files", len(files)))
		return nil
	}
	s.isBuilding = true
	s.buildMutex.Unlock()

	var lastErr error
	for {
		lastErr = s.rebuild(files)

		s.buildMutex.Lock()
		if s.pending == nil {
			s.isBuilding = false
			s.buildMutex.Unlock()
			return lastErr
		}
		files, s.pending = s.pending, nil
		s.buildMutex.Unlock()
	}
}

func (s *Session) rebuild(files []string) error {
	if len(files) > 0 {
		s.logger.Info("sources changed", zap.Strings("files", files))
	}

	result, err := s.builder.Build(s.ctx, s.config.Request)
	if s.config.OnBuild != nil {
		s.config.OnBuild(files, result, err)
	}
	if err != nil {
		return err
	}

	if s.config.Restart && result.Linked {
		return s.restartApp(result.Executable, result)
	}
	return nil
}

// restartApp stops the running program and starts the new executable
func (s *Session) restartApp(executable string, result *build.BuildResult) error {
	if len(result.Changed) == 0 && s.appRunning() {
		return nil
	}

	if err := s.stopApp(); err != nil {
		return err
	}
	return s.startApp(executable)
}

func (s *Session) appRunning() bool {
	s.appProcessMutex.Lock()
	defer s.appProcessMutex.Unlock()
	return s.appProcess != nil
}

// startApp starts the program in its build directory
func (s *Session) startApp(executable string) error {
	cmd := exec.Command(executable, s.config.RunArgs...)
	cmd.Dir = filepath.Dir(executable)
	cmd.Stdout = s.config.Stdout
	cmd.Stderr = s.config.Stderr

	if err := cmd.Start(); err != nil {
		return &build.SubprocessError{
			Argv:     append([]string{executable}, s.config.RunArgs...),
			Dir:      cmd.Dir,
			ExitCode: -1,
			Err:      err,
		}
	}

	done := make(chan struct{})
	s.appProcessMutex.Lock()
	s.appProcess = cmd.Process
	s.appDone = done
	s.appProcessMutex.Unlock()

	s.logger.Info("program started", zap.String("executable", executable), zap.Int("pid", cmd.Process.Pid))

	// Monitor process in background and clean up if it exits on its own
	go func() {
		err := cmd.Wait()
		s.logger.Info("program exited", zap.Int("pid", cmd.Process.Pid), zap.Error(err))

		s.appProcessMutex.Lock()
		if s.appProcess != nil && s.appProcess.Pid == cmd.Process.Pid {
			s.appProcess = nil
		}
		s.appProcessMutex.Unlock()
		close(done)
	}()

	return nil
}

// stopApp interrupts the running program and kills it if it does not
// exit within StopTimeout.
func (s *Session) stopApp() error {
	s.appProcessMutex.Lock()
	proc, done := s.appProcess, s.appDone
	s.appProcessMutex.Unlock()

	if proc == nil {
		return nil
	}

	s.logger.Debug("stopping program", zap.Int("pid", proc.Pid))

	if err := proc.Signal(os.Interrupt); err != nil {
		// Interrupt is unsupported on Windows and fails for exited processes
		if err := proc.Kill(); err != nil {
			s.logger.Debug("program already gone", zap.Int("pid", proc.Pid))
		}
	}

	select {
	case <-done:
	case <-time.After(s.config.StopTimeout):
		s.logger.Warn("timeout waiting for program to exit, forcing kill", zap.Int("pid", proc.Pid))
		if err := proc.Kill(); err != nil {
			return fmt.Errorf("failed to kill program: %w", err)
		}
		<-done
	}

	s.appProcessMutex.Lock()
	if s.appProcess == proc {
		s.appProcess = nil
	}
	s.appProcessMutex.Unlock()

	return nil
}
