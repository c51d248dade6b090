package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/cfactory/internal/tooling/build"
)

// fakeBuilder counts builds; block, when set, holds every build until closed
type fakeBuilder struct {
	mu       sync.Mutex
	requests []build.BuildRequest
	result   *build.BuildResult
	err      error
	block    chan struct{}
	started  chan struct{}
}

func (b *fakeBuilder) Build(ctx context.Context, req build.BuildRequest) (*build.BuildResult, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.block != nil {
		<-b.block
	}

	if b.err != nil {
		return nil, b.err
	}
	if b.result != nil {
		return b.result, nil
	}
	return &build.BuildResult{ID: "test"}, nil
}

func (b *fakeBuilder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func TestSession_HandleChangeBuilds(t *testing.T) {
	builder := &fakeBuilder{}

	var changedBatches [][]string
	session, err := NewSession(builder, SessionConfig{
		Watcher: WatcherOptions{Root: t.TempDir()},
		Request: build.BuildRequest{Build: true, Extension: "cpp", Run: true, UpdateCache: true},
		OnBuild: func(changed []string, result *build.BuildResult, err error) {
			changedBatches = append(changedBatches, changed)
		},
	})
	require.NoError(t, err)

	require.NoError(t, session.HandleChange([]string{"/p/a.cpp"}))

	require.Equal(t, 1, builder.count())
	assert.False(t, builder.requests[0].Run, "the session owns running the program")
	assert.True(t, builder.requests[0].UpdateCache)
	assert.Equal(t, [][]string{{"/p/a.cpp"}}, changedBatches)
}

func TestSession_BuildErrorIsReturned(t *testing.T) {
	builder := &fakeBuilder{err: errors.New("compile failed")}

	var reported error
	session, err := NewSession(builder, SessionConfig{
		Watcher: WatcherOptions{Root: t.TempDir()},
		OnBuild: func(_ []string, _ *build.BuildResult, err error) { reported = err },
	})
	require.NoError(t, err)

	err = session.HandleChange([]string{"/p/a.cpp"})
	assert.EqualError(t, err, "compile failed")
	assert.Equal(t, err, reported)
}

func TestSession_ChangesDuringBuildAreFoldedIntoOneRebuild(t *testing.T) {
	builder := &fakeBuilder{
		block:   make(chan struct{}),
		started: make(chan struct{}, 10),
	}

	session, err := NewSession(builder, SessionConfig{Watcher: WatcherOptions{Root: t.TempDir()}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- session.HandleChange([]string{"/p/a.cpp"}) }()
	<-builder.started

	// Both batches arrive while the first build is running
	require.NoError(t, session.HandleChange([]string{"/p/b.cpp"}))
	require.NoError(t, session.HandleChange([]string{"/p/c.cpp"}))

	close(builder.block)
	require.NoError(t, <-done)

	assert.Equal(t, 2, builder.count())
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	builder := &fakeBuilder{}
	session, err := NewSession(builder, SessionConfig{
		Watcher: WatcherOptions{Root: t.TempDir(), Debounce: 20 * time.Millisecond},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	assert.Eventually(t, func() bool { return builder.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSession_RestartsProgram(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the program")
	}

	buildDir := t.TempDir()
	executable := filepath.Join(buildDir, "proj.bin")
	require.NoError(t, os.WriteFile(executable, []byte("#!/bin/sh\nexec sleep 30\n"), 0755))

	builder := &fakeBuilder{result: &build.BuildResult{
		Changed:    []string{"/p/a.cpp"},
		Linked:     true,
		Executable: executable,
	}}

	session, err := NewSession(builder, SessionConfig{
		Watcher:     WatcherOptions{Root: t.TempDir()},
		Restart:     true,
		StopTimeout: time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, session.HandleChange(nil))
	require.True(t, session.appRunning())
	first := session.appProcess.Pid

	require.NoError(t, session.HandleChange([]string{"/p/a.cpp"}))
	require.True(t, session.appRunning())
	assert.NotEqual(t, first, session.appProcess.Pid)

	require.NoError(t, session.Stop())
	assert.False(t, session.appRunning())
}
