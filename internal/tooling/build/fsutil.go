package build

import (
	"io"
	"os"
	"path/filepath"
)

// copyFile copies src to dst through a temporary file in dst's directory,
// keeping the source permissions.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".cfactory-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		_ = tmpFile.Close()
		return err
	}

	srcInfo, err := srcFile.Stat()
	if err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Chmod(srcInfo.Mode()); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}

// ensureDir creates dir if it does not exist yet
func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return &FileSystemError{Op: "mkdir", Path: dir, Err: os.ErrExist}
		}
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return &FileSystemError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}
