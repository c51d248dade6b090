package build

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
)

// FileFingerprint is the content hash of a single source file
type FileFingerprint struct {
	Path string
	Hash string
}

// Fingerprints is the fingerprint set of one discovery pass, kept in
// discovery order so that compile commands are deterministic.
type Fingerprints []FileFingerprint

// Paths returns the fingerprinted paths in discovery order
func (f Fingerprints) Paths() []string {
	paths := make([]string, len(f))
	for i, fp := range f {
		paths[i] = fp.Path
	}
	return paths
}

// Map converts the set to the cache representation
func (f Fingerprints) Map() FingerprintCache {
	cache := make(FingerprintCache, len(f))
	for _, fp := range f {
		cache[fp.Path] = fp.Hash
	}
	return cache
}

// HashFile computes the lowercase hex SHA-256 of a file's contents.
//
// The file is consumed in chunks of sha256.BlockSize bytes. A short read is
// still fed to the hash before the next read reports EOF, so the final
// partial chunk is never dropped and a zero-byte file hashes to the digest
// of the empty input.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", &FileSystemError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	hasher := sha256.New()
	reader := bufio.NewReader(file)
	chunk := make([]byte, hasher.BlockSize())

	for {
		n, err := io.ReadFull(reader, chunk)
		if n > 0 {
			hasher.Write(chunk[:n])
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return "", &FileSystemError{Op: "read", Path: path, Err: err}
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashContent computes the lowercase hex SHA-256 of in-memory content
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FingerprintAll hashes every file under root matching extension, in
// discovery order. Directories named in ignore are not descended into.
func FingerprintAll(root, extension string, ignore ...string) (Fingerprints, error) {
	fingerprints := make(Fingerprints, 0)

	for path, err := range WalkFiles(root, extension, ignore...) {
		if err != nil {
			return nil, err
		}

		hash, err := HashFile(path)
		if err != nil {
			return nil, err
		}

		fingerprints = append(fingerprints, FileFingerprint{Path: path, Hash: hash})
	}

	return fingerprints, nil
}
