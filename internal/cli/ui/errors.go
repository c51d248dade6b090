package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/cfactory/internal/tooling/build"
)

// ErrorLevel represents the severity of a message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Consequence  string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError creates a standardized error message with suggestions and help commands
//
// Example output:
//
//	❌ COMPILE FAILED: clang++ -c main.cpp exited with status 1
//
//	   Try: fix the compiler errors above and rebuild
//
//	   → Show the commands: cfactory build --no-build --print
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var headerColor, bodyColor *color.Color
	var symbol string

	switch opts.Level {
	case ErrorLevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "⚠️"
	case ErrorLevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "ℹ️"
	default:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "❌"
	}

	if opts.NoColor {
		headerColor.DisableColor()
		bodyColor.DisableColor()
	}

	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if opts.Consequence != "" {
		b.WriteString("\n")
		bodyColor.Fprintf(&b, "   %s\n", opts.Consequence)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow := color.New(color.FgYellow)
		if opts.NoColor {
			yellow.DisableColor()
		}
		for _, s := range opts.Suggestions {
			yellow.Fprintf(&b, "   Try: %s\n", s)
		}
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := color.New(color.FgCyan)
		if opts.NoColor {
			cyan.DisableColor()
		}
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// Warning creates a standardized warning message
func Warning(message string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelWarning,
		Problem:     message,
		Suggestions: suggestions,
		NoColor:     noColor,
	})
}

// Info creates a standardized info message
func Info(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelInfo,
		Problem: message,
		NoColor: noColor,
	})
}

// ConfigError creates a standardized configuration error
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context: "CONFIGURATION ERROR",
		Problem: message,
		HelpCommands: []string{
			"Show the effective config: cfactory config show",
			"Write a default config: cfactory config init",
		},
		NoColor: noColor,
	})
}

// ErrorOptionsFor maps an error returned by the build system to a
// message with context and suggestions. Unknown errors are reported as
// plain build failures.
func ErrorOptionsFor(err error) ErrorOptions {
	opts := ErrorOptions{
		Context: "BUILD FAILED",
		Problem: err.Error(),
	}

	var (
		subErr      *build.SubprocessError
		formatErr   *build.CacheFormatError
		platformErr *build.UnsupportedPlatformError
		fsErr       *build.FileSystemError
	)

	switch {
	case errors.As(err, &subErr):
		opts.Problem = subErr.Error()
		if len(subErr.Argv) > 0 {
			opts.Context = fmt.Sprintf("%s FAILED", strings.ToUpper(stageOf(err)))
		}
		if subErr.ExitCode < 0 {
			opts.Suggestions = []string{
				fmt.Sprintf("check that %q is installed and on PATH", subErr.Argv[0]),
				"set the compiler in cfactory.yml or CFACTORY_COMPILER",
			}
		} else {
			opts.Suggestions = []string{"fix the errors reported above and rebuild"}
		}
		opts.HelpCommands = []string{"Show the commands: cfactory build --no-build --print"}

	case errors.As(err, &formatErr):
		opts.Context = "CACHE ERROR"
		opts.Problem = fmt.Sprintf("fingerprint cache %s is not valid JSON", formatErr.Path)
		opts.Consequence = "Every source would be recompiled once the cache is rebuilt."
		opts.HelpCommands = []string{
			"Delete it: cfactory cache clear",
			"Rebuild it: cfactory cache refresh",
		}

	case errors.As(err, &platformErr):
		opts.Context = "UNSUPPORTED PLATFORM"
		opts.Problem = platformErr.Error()
		opts.Suggestions = []string{"pass --allow-unsupported-platform to link without libraries"}

	case errors.Is(err, build.ErrNoObjects):
		opts.Context = "LINK FAILED"
		opts.Suggestions = []string{
			"add source files with the configured extension",
			"force a full rebuild with: cfactory cache clear --yes",
		}

	case errors.As(err, &fsErr):
		opts.Context = "FILESYSTEM ERROR"
	}

	return opts
}

// BuildError formats an error returned by the build system
func BuildError(err error, noColor bool) string {
	opts := ErrorOptionsFor(err)
	opts.NoColor = noColor
	return FormatError(opts)
}

// stageOf extracts the stage prefix the build system puts on its errors
func stageOf(err error) string {
	msg := err.Error()
	for _, stage := range []build.Stage{build.StageCompile, build.StageLink, build.StageRun} {
		if strings.HasPrefix(msg, string(stage)+":") {
			return string(stage)
		}
	}
	return "build"
}
