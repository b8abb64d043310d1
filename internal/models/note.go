// Package models defines the domain types for bookzettel.
package models

import "time"

// CanonicalID is the normalized, filesystem-safe key of a note. It is both
// the filename stem and the text inside [[link]] markers.
type CanonicalID string

// ConceptRecord is one concept produced by the analysis step.
type ConceptRecord struct {
	Title    string   `json:"title" yaml:"title"`
	Summary  string   `json:"summary" yaml:"summary"`
	Examples string   `json:"examples,omitempty" yaml:"examples,omitempty"`
	Tags     []string `json:"tags" yaml:"tags"`
}

// NoteArtifact is a fully rendered note ready for the store.
type NoteArtifact struct {
	ID        CanonicalID `json:"id"`
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	Chapter   string      `json:"chapter,omitempty"`
	Tags      []string    `json:"tags"`
	CreatedAt time.Time   `json:"created_at"`
	// Links holds the canonical ids of the related concepts in first-seen order.
	Links []string `json:"links,omitempty"`
}

// ChapterBucket is one chapter section of an index artifact.
type ChapterBucket struct {
	Chapter string        `json:"chapter"`
	Notes   []CanonicalID `json:"notes"`
}

// IndexArtifact is the map of content for one source document.
type IndexArtifact struct {
	Name          string          `json:"name"`
	DocumentTitle string          `json:"document_title"`
	Author        string          `json:"author"`
	Overview      string          `json:"overview"`
	Chapters      []ChapterBucket `json:"chapters"`
	AllNotes      []CanonicalID   `json:"all_notes"`
	RecentlyAdded []CanonicalID   `json:"recently_added,omitempty"`
	Body          string          `json:"-"`
}

// RunContext is the immutable per-invocation configuration shared by all
// components of one run.
type RunContext struct {
	OutputDir     string
	DocumentTitle string
	Author        string
	Overview      string
	ChapterLabel  string
	// IndexName is the map of content note that notes link back to. Empty
	// falls back to the normalized DocumentTitle.
	IndexName    string
	Template     string
	TemplatePath string
	DefaultTags  []string
}

// WriteOutcome reports what a store write did.
type WriteOutcome string

const (
	OutcomeCreated          WriteOutcome = "created"
	OutcomeSkippedDuplicate WriteOutcome = "skipped_duplicate"
	OutcomeOverwritten      WriteOutcome = "overwritten"
)

// RecordFailure describes a record that was skipped because it could not be compiled.
type RecordFailure struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Error string `json:"error"`
}

// RunSummary is returned to the caller after a run.
type RunSummary struct {
	RunID       string                       `json:"run_id"`
	Written     int                          `json:"written"`
	Overwritten int                          `json:"overwritten"`
	Skipped     int                          `json:"skipped"`
	Invalid     []RecordFailure              `json:"invalid,omitempty"`
	IDs         []CanonicalID                `json:"ids"`
	Outcomes    map[CanonicalID]WriteOutcome `json:"outcomes"`
	Unresolved  map[CanonicalID][]string     `json:"unresolved,omitempty"`
	IndexPath   string                       `json:"index_path,omitempty"`
	ChapterPath string                       `json:"chapter_index_path,omitempty"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
