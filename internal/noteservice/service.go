// Package noteservice is the read and compile surface shared by the HTTP API
// and the MCP server.
package noteservice

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/starford/bookzettel/internal/apperr"
	"github.com/starford/bookzettel/internal/engine"
	"github.com/starford/bookzettel/internal/index"
	"github.com/starford/bookzettel/internal/models"
	"github.com/starford/bookzettel/internal/notestore"
	"github.com/starford/bookzettel/internal/parser"
	"github.com/starford/bookzettel/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Kind        string         `json:"kind"`
	Chapter     string         `json:"chapter"`
	Content     string         `json:"content"`
	HTML        string         `json:"html,omitempty"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Links       []string       `json:"links"`
	Backlinks   []string       `json:"backlinks"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind"`
	Chapter   string    `json:"chapter"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompileRequest is one batch of concept records submitted by a client.
type CompileRequest struct {
	Records           []models.ConceptRecord `json:"records"`
	Chapter           string                 `json:"chapter"`
	Overwrite         bool                   `json:"overwrite"`
	BuildMOC          bool                   `json:"build_moc"`
	BuildChapterIndex bool                   `json:"build_chapter_index"`
}

// Validate implements validation.Validatable.
func (r CompileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Records, validation.Required),
		validation.Field(&r.Chapter, validation.Length(0, 200)),
	)
}

func (r CompileRequest) options() engine.Options {
	return engine.Options{Overwrite: r.Overwrite, BuildMOC: r.BuildMOC, BuildChapterIndex: r.BuildChapterIndex}
}

// Service coordinates the note store, the link catalog and the engine.
// Compile and Rebuild are serialized because the store has a single writer.
type Service struct {
	engine  *engine.Engine
	store   *notestore.Store
	catalog *index.Catalog
	db      *index.DB
	base    models.RunContext
	md      goldmark.Markdown
	onRun   func(*models.RunSummary)

	mu sync.Mutex
}

// BaseContext returns a copy of the run context applied to every request.
func (s *Service) BaseContext() models.RunContext {
	return s.runContext("")
}

// OnRun registers fn to be called after every successful Compile or Rebuild.
func (s *Service) OnRun(fn func(*models.RunSummary)) {
	s.onRun = fn
}

func (s *Service) notify(summary *models.RunSummary, err error) (*models.RunSummary, error) {
	if err == nil && s.onRun != nil {
		s.onRun(summary)
	}
	return summary, err
}

// NewService creates a note service. base carries the book metadata and
// template applied to every compile request.
func NewService(eng *engine.Engine, cat *index.Catalog, base models.RunContext) *Service {
	return &Service{
		engine:  eng,
		store:   eng.Store(),
		catalog: cat,
		db:      cat.DB(),
		base:    base,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// GetNote reads a note from the store and enriches it with its links and backlinks.
func (s *Service) GetNote(_ context.Context, id string) (*NoteDetail, error) {
	data, err := s.store.Read(models.CanonicalID(id))
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(id, data)
}

// RenderHTML returns the note body as HTML. Wikilinks become links to
// linkBase + the escaped target id.
func (s *Service) RenderHTML(ctx context.Context, id, linkBase string) (*NoteDetail, error) {
	note, err := s.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	res, _ := parser.Parse([]byte(note.Content))
	body := parser.ReplaceLinks(res.Body, func(target, alias string) (string, bool) {
		text := alias
		if text == "" {
			text = target
		}
		return "[" + text + "](" + linkBase + url.PathEscape(target) + ")", true
	})
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(body), &buf); err != nil {
		return nil, fmt.Errorf("noteservice: render %s: %w", id, err)
	}
	note.HTML = buf.String()
	return note, nil
}

// MOC returns the map of content of the configured book.
func (s *Service) MOC(ctx context.Context) (*NoteDetail, error) {
	name, err := s.engine.MOCName(s.base)
	if err != nil {
		return nil, fmt.Errorf("noteservice: %w", apperr.ErrNotFound)
	}
	return s.GetNote(ctx, name)
}

// ListNotes returns one page of catalog rows.
func (s *Service) ListNotes(_ context.Context, q index.ListQuery) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(q)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			ID:        r.ID,
			Title:     r.Title,
			Kind:      r.Kind,
			Chapter:   r.Chapter,
			Checksum:  r.Checksum,
			Tags:      nonNilSlice(r.Tags),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Graph returns all nodes and resolved links for graph visualization.
func (s *Service) Graph(_ context.Context) ([]index.GraphNode, []index.GraphLink, error) {
	return s.db.Graph()
}

// Backlinks returns the ids of all notes that link to id.
func (s *Service) Backlinks(_ context.Context, id string) ([]string, error) {
	bl, err := s.db.Backlinks(id)
	return nonNilSlice(bl), err
}

// Dangling lists links whose target note does not exist.
func (s *Service) Dangling(_ context.Context) ([]index.DanglingLink, error) {
	d, err := s.db.DanglingLinks()
	return nonNilSlice(d), err
}

// Compile writes a batch of records and refreshes the catalog.
func (s *Service) Compile(ctx context.Context, req CompileRequest) (*models.RunSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidRecord, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notify(s.engine.Compile(ctx, s.runContext(req.Chapter), req.Records, req.options()))
}

// Rebuild regenerates the map of content, and the chapter index when a
// chapter is given.
func (s *Service) Rebuild(ctx context.Context, chapter string) (*models.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts := engine.Options{BuildMOC: true, BuildChapterIndex: chapter != ""}
	return s.notify(s.engine.Rebuild(ctx, s.runContext(chapter), opts))
}

// Sync re-reads the output directory into the catalog.
func (s *Service) Sync(ctx context.Context) error {
	return s.catalog.Sync(ctx)
}

func (s *Service) runContext(chapter string) models.RunContext {
	rc := s.base
	rc.ChapterLabel = strings.TrimSpace(chapter)
	rc.DefaultTags = append([]string(nil), s.base.DefaultTags...)
	return rc
}

// buildNoteDetail constructs a NoteDetail from raw data without re-reading the file.
func (s *Service) buildNoteDetail(id string, data []byte) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(id)
	if err != nil {
		return nil, err
	}
	out, err := s.db.Outlinks(id)
	if err != nil {
		return nil, err
	}
	detail := &NoteDetail{
		ID:          id,
		Title:       res.Title,
		Kind:        res.Field("type"),
		Chapter:     res.Field("chapter"),
		Content:     string(data),
		Checksum:    storage.Checksum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Links:       nonNilSlice(out),
		Backlinks:   nonNilSlice(bl),
		UpdatedAt:   time.Now(),
	}
	if detail.Title == "" {
		detail.Title = id
	}
	if detail.Kind == "" {
		detail.Kind = index.KindNote
	}
	if row, err := s.db.GetNote(id); err == nil && row != nil {
		detail.UpdatedAt = row.UpdatedAt
	}
	return detail, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
