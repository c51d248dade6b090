package build

import (
	"slices"
	"strings"
)

// CompileOnlyFlag makes the compiler stop after producing object files
const CompileOnlyFlag = "-c"

// OutputFlag names the link output
const OutputFlag = "-o"

// Command is an ordered compiler or linker argv, program name first
type Command []string

// InsertAfter inserts group immediately after the first occurrence of
// anchor, keeping the group's internal order. Successive insertions after
// the same anchor stack up against it, so the most recent group ends up
// closest to the anchor:
//
//	[cc -o] InsertAfter("-o", "a", "b") => [cc -o a b]
//	[cc -o a b] InsertAfter("-o", "z")  => [cc -o z a b]
//
// If anchor is absent the command is left untouched and an
// *AnchorNotFoundError is returned; nothing is ever appended at the end in
// its place.
func (c *Command) InsertAfter(anchor string, group ...string) error {
	idx := slices.Index(*c, anchor)
	if idx < 0 {
		return &AnchorNotFoundError{Anchor: anchor, Command: slices.Clone(*c)}
	}

	*c = slices.Insert(*c, idx+1, group...)
	return nil
}

// Append adds arguments at the end of the command
func (c *Command) Append(args ...string) {
	*c = append(*c, args...)
}

// Program returns the executable the command runs
func (c Command) Program() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// Args returns the arguments after the program name
func (c Command) Args() []string {
	if len(c) < 2 {
		return nil
	}
	return c[1:]
}

// String renders the command for display; arguments containing spaces are quoted
func (c Command) String() string {
	parts := make([]string, len(c))
	for i, arg := range c {
		if strings.ContainsAny(arg, " \t") {
			parts[i] = "'" + arg + "'"
		} else {
			parts[i] = arg
		}
	}
	return strings.Join(parts, " ")
}

// CompileCommand assembles [compiler options... -c files...]. Callers must
// not run it when files is empty.
func CompileCommand(compiler string, options, files []string) (Command, error) {
	cmd := Command{compiler, CompileOnlyFlag}

	if err := cmd.InsertAfter(CompileOnlyFlag, files...); err != nil {
		return nil, err
	}
	if err := cmd.InsertAfter(compiler, options...); err != nil {
		return nil, err
	}

	return cmd, nil
}

// LinkCommand assembles the link invocation:
//
//	[compiler objects... -o output libraryTokens... searchPath? options...]
//
// The output name goes after -o, library tokens after the output name and
// the platform search-path token at the end. Objects precede the libraries.
func LinkCommand(compiler, output string, libs *PlatformLibrarySet, objects, options []string) (Command, error) {
	cmd := Command{compiler, OutputFlag}

	// Libraries go in one group with the output name, which may be
	// spelled like the compiler and so cannot serve as an anchor.
	group := []string{output}
	if libs != nil {
		group = append(group, libs.LinkTokens()...)
	}
	if err := cmd.InsertAfter(OutputFlag, group...); err != nil {
		return nil, err
	}

	if libs != nil {
		if token := libs.SearchPathToken(); token != "" {
			cmd.Append(token)
		}
	}

	cmd.Append(options...)

	if err := cmd.InsertAfter(compiler, objects...); err != nil {
		return nil, err
	}

	return cmd, nil
}
