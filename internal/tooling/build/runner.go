package build

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// Runner executes compiler, linker and program invocations.
// dir is the working directory of the child process only.
type Runner interface {
	Run(ctx context.Context, dir string, cmd Command) error
}

// ExecRunner implements Runner with os/exec, streaming the child's output
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner creates a runner attached to the current process's stdio
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run starts cmd in dir and waits for it. A nonzero exit or a failure to
// start is reported as *SubprocessError.
func (r *ExecRunner) Run(ctx context.Context, dir string, cmd Command) error {
	if len(cmd) == 0 {
		return &SubprocessError{Dir: dir, ExitCode: -1, Err: errors.New("empty command")}
	}

	c := exec.CommandContext(ctx, cmd.Program(), cmd.Args()...)
	c.Dir = dir
	c.Stdin = r.Stdin
	c.Stdout = r.Stdout
	c.Stderr = r.Stderr

	if err := c.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &SubprocessError{
			Argv:     append([]string(nil), cmd...),
			Dir:      dir,
			ExitCode: exitCode,
			Err:      err,
		}
	}

	return nil
}
