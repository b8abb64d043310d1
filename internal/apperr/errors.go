// Package apperr holds the error taxonomy shared by the compiler, store and surfaces.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidTitle  = errors.New("invalid title")
	ErrInvalidRecord = errors.New("invalid concept record")
	ErrTemplate      = errors.New("template error")
	ErrExtraction    = errors.New("extraction failed")
	ErrAnalysis      = errors.New("analysis failed")
	ErrStoreWrite    = errors.New("store write failed")
)

// InvalidTitleError is returned when a title normalizes to nothing.
type InvalidTitleError struct {
	Title string
}

func (e *InvalidTitleError) Error() string {
	return fmt.Sprintf("invalid title %q: normalizes to an empty identifier", e.Title)
}

func (e *InvalidTitleError) Is(target error) bool { return target == ErrInvalidTitle }

// TemplateError is returned when a note template cannot be loaded or lacks
// the structure the renderer depends on.
type TemplateError struct {
	Path   string
	Reason string
	Err    error
}

func (e *TemplateError) Error() string {
	path := e.Path
	if path == "" {
		path = "<inline>"
	}
	if e.Err != nil {
		return fmt.Sprintf("template %s: %s: %v", path, e.Reason, e.Err)
	}
	return fmt.Sprintf("template %s: %s", path, e.Reason)
}

func (e *TemplateError) Is(target error) bool { return target == ErrTemplate }

func (e *TemplateError) Unwrap() error { return e.Err }

// ExtractionError is returned by text sources.
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

func (e *ExtractionError) Unwrap() error { return e.Err }

// AnalysisError is returned by the analysis collaborator once its retries are spent.
type AnalysisError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *AnalysisError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("analysis via %s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
	}
	return fmt.Sprintf("analysis via %s failed: %v", e.Provider, e.Err)
}

func (e *AnalysisError) Is(target error) bool { return target == ErrAnalysis }

func (e *AnalysisError) Unwrap() error { return e.Err }

// StoreWriteError is returned when a note or index file cannot be persisted.
type StoreWriteError struct {
	Path string
	Err  error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *StoreWriteError) Is(target error) bool { return target == ErrStoreWrite }

func (e *StoreWriteError) Unwrap() error { return e.Err }

// RecordValidationError names the record in an analysis response that failed validation.
type RecordValidationError struct {
	Index int
	Title string
	Err   error
}

func (e *RecordValidationError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("record %d (%q): %v", e.Index, e.Title, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordValidationError) Is(target error) bool { return target == ErrInvalidRecord }

func (e *RecordValidationError) Unwrap() error { return e.Err }
