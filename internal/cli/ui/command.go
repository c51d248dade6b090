package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/cfactory/internal/tooling/build"
)

// CommandPrinter echoes assembled compiler and linker commands
type CommandPrinter struct {
	writer  io.Writer
	noColor bool
}

// NewCommandPrinter creates a printer writing to w
func NewCommandPrinter(w io.Writer, noColor bool) *CommandPrinter {
	return &CommandPrinter{writer: w, noColor: noColor}
}

// Print writes one command, labelled with its stage:
//
//	compile: clang++ -c /src/main.cpp
func (p *CommandPrinter) Print(stage build.Stage, cmd build.Command) {
	label := color.New(color.FgCyan, color.Bold)
	program := color.New(color.FgGreen)
	if p.noColor {
		label.DisableColor()
		program.DisableColor()
	}

	label.Fprintf(p.writer, "%s:", stage)
	fmt.Fprint(p.writer, " ")
	program.Fprint(p.writer, cmd.Program())
	if args := cmd.Args(); len(args) > 0 {
		rest := build.Command(append([]string{""}, args...)).String()
		fmt.Fprint(p.writer, rest)
	}
	fmt.Fprintln(p.writer)
}

// Func adapts the printer to build.Options.CommandFunc
func (p *CommandPrinter) Func() func(stage build.Stage, cmd build.Command) {
	return p.Print
}

// ChangeList renders a list of paths under a heading, relative to root
// when possible.
func ChangeList(w io.Writer, heading string, paths []string, root string, noColor bool) {
	if len(paths) == 0 {
		return
	}

	bold := color.New(color.Bold)
	bullet := color.New(color.FgCyan)
	if noColor {
		bold.DisableColor()
		bullet.DisableColor()
	}

	bold.Fprintf(w, "%s (%d)\n", heading, len(paths))
	for _, path := range paths {
		bullet.Fprint(w, "  • ")
		fmt.Fprintln(w, relativeTo(root, path))
	}
}

func relativeTo(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
