// Package storage defines the output-vault file-system abstraction.
package storage

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/starford/bookzettel/internal/models"
)

// Provider is the interface for vault file operations. Paths are relative to
// the vault root.
type Provider interface {
	// Root returns the absolute vault directory.
	Root() string
	// List returns metadata for every file directly inside dir whose name
	// ends in the provider's note extension. Hidden files are skipped.
	List(dir string) ([]models.NoteMetadata, error)
	// Exists reports whether a regular file is present at path.
	Exists(path string) (bool, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, replacing any existing file.
	Write(path string, content []byte) error
	// Create atomically writes content to path only if nothing is there yet.
	// It returns an error matching fs.ErrExist otherwise.
	Create(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}

// Checksum returns the hex-encoded SHA-256 of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
