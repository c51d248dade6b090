package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultCacheFileName is the fingerprint cache written next to the invocation directory
const DefaultCacheFileName = "cfactory_sha256.json"

// FingerprintCache maps source paths to their SHA-256 hashes as of the last
// explicit refresh. It is the baseline that builds diff against.
type FingerprintCache map[string]string

// CacheStore persists a FingerprintCache as a flat JSON object
type CacheStore struct {
	path string
}

// NewCacheStore creates a store for <dir>/<name>. An empty name selects
// DefaultCacheFileName.
func NewCacheStore(dir, name string) *CacheStore {
	if name == "" {
		name = DefaultCacheFileName
	}
	return &CacheStore{path: filepath.Join(dir, name)}
}

// Path returns the location of the cache document
func (s *CacheStore) Path() string {
	return s.path
}

// Exists reports whether a cache document is present
func (s *CacheStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the cache. A missing document yields an empty cache; a
// document that is not a JSON object of strings is a CacheFormatError.
func (s *CacheStore) Load() (FingerprintCache, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(FingerprintCache), nil
		}
		return nil, &FileSystemError{Op: "read", Path: s.path, Err: err}
	}

	var cache FingerprintCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, &CacheFormatError{Path: s.path, Err: err}
	}

	// A literal "null" document decodes to a nil map
	if cache == nil {
		cache = make(FingerprintCache)
	}

	return cache, nil
}

// Save overwrites the whole cache document atomically
func (s *CacheStore) Save(cache FingerprintCache) error {
	if cache == nil {
		cache = make(FingerprintCache)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return &FileSystemError{Op: "mkdir", Path: filepath.Dir(s.path), Err: err}
	}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode fingerprint cache: %w", err)
	}

	// Create temporary file for atomic write
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return &FileSystemError{Op: "write", Path: tmpPath, Err: err}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return &FileSystemError{Op: "rename", Path: s.path, Err: err}
	}

	return nil
}

// Remove deletes the cache document. Removing an absent cache is not an error.
func (s *CacheStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return &FileSystemError{Op: "remove", Path: s.path, Err: err}
	}
	return nil
}

// Refresh fingerprints the sources under root and overwrites the cache
// with the result.
func (s *CacheStore) Refresh(root, extension string, ignore ...string) (Fingerprints, error) {
	fingerprints, err := FingerprintAll(root, extension, ignore...)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint sources: %w", err)
	}

	if err := s.Save(fingerprints.Map()); err != nil {
		return nil, err
	}

	return fingerprints, nil
}
