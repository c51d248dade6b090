package build

import (
	"io/fs"
	"iter"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// WalkFiles lazily yields the full path of every file under root whose name
// matches *.<extension>. Entries are produced in lexical walk order, which
// makes every pass over an unchanged tree identical. Directories whose name
// is listed in ignore are skipped (the root itself is always walked).
//
// Each range over the returned sequence walks the tree again.
func WalkFiles(root, extension string, ignore ...string) iter.Seq2[string, error] {
	pattern := "*." + strings.TrimPrefix(extension, ".")

	return func(yield func(string, error) bool) {
		stopped := false

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return &FileSystemError{Op: "walk", Path: path, Err: err}
			}

			if d.IsDir() {
				if path != root && slices.Contains(ignore, d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}

			if !matchName(pattern, d.Name()) {
				return nil
			}

			if !yield(path, nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})

		if err != nil && !stopped {
			yield("", err)
		}
	}
}

// FindFiles recursively finds all files under root with the given extension
func FindFiles(root, extension string, ignore ...string) ([]string, error) {
	var files []string

	for path, err := range WalkFiles(root, extension, ignore...) {
		if err != nil {
			return nil, err
		}
		files = append(files, path)
	}

	return files, nil
}

// FindFileDirs returns the sorted, deduplicated set of directories that
// contain at least one file with the given extension.
func FindFileDirs(root, extension string, ignore ...string) ([]string, error) {
	seen := make(map[string]struct{})
	dirs := make([]string, 0)

	for path, err := range WalkFiles(root, extension, ignore...) {
		if err != nil {
			return nil, err
		}

		dir := filepath.Dir(path)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	slices.Sort(dirs)
	return dirs, nil
}

// matchName follows the host filesystem convention: case-insensitive on
// Windows, exact everywhere else.
func matchName(pattern, name string) bool {
	if runtime.GOOS == "windows" {
		pattern = strings.ToLower(pattern)
		name = strings.ToLower(name)
	}

	matched, err := filepath.Match(pattern, name)
	return err == nil && matched
}
