// Package notestore persists compiled notes, one file per canonical id.
package notestore

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/starford/bookzettel/internal/apperr"
	"github.com/starford/bookzettel/internal/models"
	"github.com/starford/bookzettel/internal/storage"
)

// Store is the set of materialized notes in one output directory. It holds at
// most one artifact per canonical id and assumes a single writer.
type Store struct {
	fs  storage.Provider
	ext string
}

// New creates a Store over p. ext is the note extension with or without the
// leading dot.
func New(p storage.Provider, ext string) *Store {
	if ext == "" {
		ext = ".md"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &Store{fs: p, ext: ext}
}

// Root returns the absolute output directory.
func (s *Store) Root() string { return s.fs.Root() }

// Ext returns the note extension including the leading dot.
func (s *Store) Ext() string { return s.ext }

// Path returns the file name of id relative to the output directory.
func (s *Store) Path(id models.CanonicalID) string {
	return string(id) + s.ext
}

// IDFromPath returns the id stored at path, or false when path is not a note file.
func (s *Store) IDFromPath(path string) (models.CanonicalID, bool) {
	if strings.ContainsAny(path, `/\`) || !strings.HasSuffix(path, s.ext) {
		return "", false
	}
	stem := strings.TrimSuffix(path, s.ext)
	if stem == "" {
		return "", false
	}
	return models.CanonicalID(stem), true
}

// Exists reports whether a note with id is present.
func (s *Store) Exists(id models.CanonicalID) (bool, error) {
	ok, err := s.fs.Exists(s.Path(id))
	if err != nil {
		return false, fmt.Errorf("notestore: exists %s: %w", id, err)
	}
	return ok, nil
}

// Write persists a. Without overwrite an existing note is left untouched and
// the outcome is skipped_duplicate. Failures are *apperr.StoreWriteError.
func (s *Store) Write(a *models.NoteArtifact, overwrite bool) (models.WriteOutcome, error) {
	path := s.Path(a.ID)
	body := []byte(a.Body)

	if !overwrite {
		err := s.fs.Create(path, body)
		switch {
		case err == nil:
			return models.OutcomeCreated, nil
		case errors.Is(err, fs.ErrExist):
			return models.OutcomeSkippedDuplicate, nil
		default:
			return "", &apperr.StoreWriteError{Path: path, Err: err}
		}
	}

	existed, err := s.fs.Exists(path)
	if err != nil {
		return "", &apperr.StoreWriteError{Path: path, Err: err}
	}
	if err := s.fs.Write(path, body); err != nil {
		return "", &apperr.StoreWriteError{Path: path, Err: err}
	}
	if existed {
		return models.OutcomeOverwritten, nil
	}
	return models.OutcomeCreated, nil
}

// WriteIndex replaces the index artifact name (without extension) and
// returns its path. Index artifacts are the one kind of file the store
// always overwrites.
func (s *Store) WriteIndex(name string, body []byte) (string, error) {
	path := name + s.ext
	if err := s.fs.Write(path, body); err != nil {
		return "", &apperr.StoreWriteError{Path: path, Err: err}
	}
	return path, nil
}

// Read returns the raw note for id.
func (s *Store) Read(id models.CanonicalID) ([]byte, error) {
	data, err := s.fs.Read(s.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("notestore: %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// ListIDs returns every note id in the output directory, sorted.
func (s *Store) ListIDs() ([]models.CanonicalID, error) {
	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	ids := make([]models.CanonicalID, 0, len(metas))
	for _, m := range metas {
		if id, ok := s.IDFromPath(m.Path); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// List returns file metadata for every note in the output directory.
func (s *Store) List() ([]models.NoteMetadata, error) {
	metas, err := s.fs.List("")
	if err != nil {
		return nil, fmt.Errorf("notestore: list: %w", err)
	}
	return metas, nil
}
