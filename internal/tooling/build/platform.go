package build

import (
	"path/filepath"
	"strings"
)

// Platform selects the library-linking convention used for the link step
type Platform int

const (
	// PlatformOther is any platform without a linking convention
	PlatformOther Platform = iota
	// PlatformWindows links import/static .lib files and ships .dll files beside the executable
	PlatformWindows
	// PlatformLinux links .so files through -L/-l and an rpath
	PlatformLinux
)

func (p Platform) String() string {
	switch p {
	case PlatformWindows:
		return "windows"
	case PlatformLinux:
		return "linux"
	default:
		return "other"
	}
}

// ParsePlatform maps a platform identifier to a Platform. Both Go's GOOS
// spelling ("linux") and the capitalised system name ("Linux") are accepted.
func ParsePlatform(id string) Platform {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "windows":
		return PlatformWindows
	case "linux":
		return PlatformLinux
	default:
		return PlatformOther
	}
}

// ExecutableSuffix returns the file suffix of linked executables
func (p Platform) ExecutableSuffix() string {
	switch p {
	case PlatformWindows:
		return ".exe"
	case PlatformLinux:
		return ".bin"
	default:
		return ""
	}
}

// ExecutableName returns the executable file name for a project
func (p Platform) ExecutableName(project string) string {
	return project + p.ExecutableSuffix()
}

// PlatformLibrarySet holds the libraries discovered for one platform
type PlatformLibrarySet struct {
	Platform Platform
	// Static libraries are passed to the linker by path
	Static []string
	// Dynamic libraries are linked by name (Linux) or copied next to the executable (Windows)
	Dynamic []string
	// SearchDirs are the directories holding dynamic libraries
	SearchDirs []string
}

// ResolveLibraries discovers the libraries under root for platform p.
// PlatformOther fails with an *UnsupportedPlatformError.
func ResolveLibraries(p Platform, root string, ignore ...string) (*PlatformLibrarySet, error) {
	set := &PlatformLibrarySet{Platform: p}

	var staticExt, dynamicExt string
	switch p {
	case PlatformWindows:
		staticExt, dynamicExt = "lib", "dll"
	case PlatformLinux:
		staticExt, dynamicExt = "a", "so"
	default:
		return nil, &UnsupportedPlatformError{Platform: p.String()}
	}

	var err error
	if set.Static, err = FindFiles(root, staticExt, ignore...); err != nil {
		return nil, err
	}
	if set.Dynamic, err = FindFiles(root, dynamicExt, ignore...); err != nil {
		return nil, err
	}
	if set.SearchDirs, err = FindFileDirs(root, dynamicExt, ignore...); err != nil {
		return nil, err
	}

	return set, nil
}

// LinkTokens returns the library arguments placed after the output name
func (s *PlatformLibrarySet) LinkTokens() []string {
	tokens := make([]string, 0, len(s.Static)+len(s.Dynamic)+len(s.SearchDirs))

	switch s.Platform {
	case PlatformWindows:
		tokens = append(tokens, s.Static...)
	case PlatformLinux:
		for _, dir := range s.SearchDirs {
			tokens = append(tokens, "-L"+dir)
		}
		tokens = append(tokens, s.Static...)
		for _, lib := range s.Dynamic {
			tokens = append(tokens, "-l"+LibraryName(lib))
		}
	}

	return tokens
}

// SearchPathToken returns the single combined runtime search-path argument,
// or "" when the platform has none or no dynamic libraries were found.
func (s *PlatformLibrarySet) SearchPathToken() string {
	if s.Platform != PlatformLinux || len(s.SearchDirs) == 0 {
		return ""
	}
	return "-Wl,-rpath," + strings.Join(s.SearchDirs, ":")
}

// RuntimeCopies returns the libraries that must sit beside the executable
// for it to start (Windows DLLs).
func (s *PlatformLibrarySet) RuntimeCopies() []string {
	if s.Platform != PlatformWindows {
		return nil
	}
	return s.Dynamic
}

// LibraryName derives the -l name of a shared library: "libfoo.so" gives
// "foo". Files without the lib prefix are linked by exact file name
// (":bar.so").
func LibraryName(path string) string {
	base := filepath.Base(path)
	if name, ok := strings.CutPrefix(base, "lib"); ok && name != filepath.Ext(base) {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return ":" + base
}
