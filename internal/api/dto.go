package api

import (
	"encoding/json"

	"github.com/starford/bookzettel/internal/index"
	"github.com/starford/bookzettel/internal/models"
	"github.com/starford/bookzettel/internal/noteservice"
)

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// CompileRequest is the request body of POST /compile. Records are kept raw
// so they pass through the same schema validation as analysis output.
type CompileRequest struct {
	Records           json.RawMessage `json:"records" swaggertype:"array,object" validate:"required"`
	Chapter           string          `json:"chapter" example:"Chapter 3"`
	Overwrite         bool            `json:"overwrite"`
	BuildMOC          bool            `json:"build_moc"`
	BuildChapterIndex bool            `json:"build_chapter_index"`
}

// CompileFailure is returned when a run aborts after writing some notes.
type CompileFailure struct {
	Error   string             `json:"error"`
	Summary *models.RunSummary `json:"summary"`
}

// RebuildRequest is the optional request body of POST /rebuild.
type RebuildRequest struct {
	Chapter string `json:"chapter" example:"Chapter 3"`
}

// BacklinksResponse lists the notes linking to ID.
type BacklinksResponse struct {
	ID        string   `json:"id" example:"Random Walk Theory" validate:"required"`
	Backlinks []string `json:"backlinks" validate:"required"`
}

// DanglingResponse wraps unresolved links.
type DanglingResponse struct {
	Links []index.DanglingLink `json:"links" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// GraphResponse wraps the note link graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes" validate:"required"`
	Links []index.GraphLink `json:"links" validate:"required"`
}
