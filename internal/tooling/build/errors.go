package build

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAnchorNotFound is matched by AnchorNotFoundError
	ErrAnchorNotFound = errors.New("anchor not found")
	// ErrUnsupportedPlatform is matched by UnsupportedPlatformError
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// FileSystemError reports a failed filesystem operation (hashing, walking,
// creating the build directory). It is always fatal for the build.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// CacheFormatError reports a fingerprint cache document that could not be decoded
type CacheFormatError struct {
	Path string
	Err  error
}

func (e *CacheFormatError) Error() string {
	return fmt.Sprintf("malformed fingerprint cache %s: %v", e.Path, e.Err)
}

func (e *CacheFormatError) Unwrap() error {
	return e.Err
}

// AnchorNotFoundError is returned when arguments are inserted after a token
// that is not part of the command.
type AnchorNotFoundError struct {
	Anchor  string
	Command Command
}

func (e *AnchorNotFoundError) Error() string {
	return fmt.Sprintf("anchor %q not found in command %v", e.Anchor, []string(e.Command))
}

func (e *AnchorNotFoundError) Is(target error) bool {
	return target == ErrAnchorNotFound
}

// SubprocessError reports a compiler, linker or executable run that could
// not be started or exited with a nonzero status.
type SubprocessError struct {
	Argv     []string
	Dir      string
	ExitCode int
	Err      error
}

func (e *SubprocessError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s exited with status %d", strings.Join(e.Argv, " "), e.ExitCode)
	}
	return fmt.Sprintf("%s failed: %v", strings.Join(e.Argv, " "), e.Err)
}

func (e *SubprocessError) Unwrap() error {
	return e.Err
}

// UnsupportedPlatformError is returned for platform identifiers outside the
// Windows and Linux branches.
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform %q (supported: windows, linux)", e.Platform)
}

func (e *UnsupportedPlatformError) Is(target error) bool {
	return target == ErrUnsupportedPlatform
}
