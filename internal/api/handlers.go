package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bookzettel/internal/analysis"
	"github.com/starford/bookzettel/internal/apperr"
	"github.com/starford/bookzettel/internal/index"
	"github.com/starford/bookzettel/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// noteID extracts the note id from the URL. Ids contain spaces, so clients
// send them percent-encoded.
func noteID(r *http.Request) string {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalidRecord), errors.Is(err, analysis.ErrMalformedResponse):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrTemplate):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes with optional pagination and filtering
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			chapter	query		string	false	"Filter by chapter"
//	@Param			kind	query		string	false	"Filter by kind"	Enums(note, map-of-content, chapter-index)
//	@Param			sort	query		string	false	"Sort field"	Enums(id, updated)
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListNotes(r.Context(), index.ListQuery{
		Limit:   limit,
		Offset:  offset,
		Tag:     q.Get("tag"),
		Chapter: q.Get("chapter"),
		Kind:    q.Get("kind"),
		Sort:    q.Get("sort"),
	})
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by id
//	@Tags			notes
//	@Produce		json
//	@Param			id		path		string	true	"Canonical note id"
//	@Param			format	query		string	false	"Add an HTML rendering"	Enums(html)
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := noteID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	var (
		note *NoteDetail
		err  error
	)
	if r.URL.Query().Get("format") == "html" {
		note, err = h.svc.RenderHTML(r.Context(), id, "/api/notes/")
	} else {
		note, err = h.svc.GetNote(r.Context(), id)
	}
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Backlinks handles GET /api/notes/{id}/backlinks.
//
//	@Summary		List notes linking to a note
//	@Tags			links
//	@Produce		json
//	@Param			id	path		string	true	"Canonical note id"
//	@Success		200	{object}	BacklinksResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	id := noteID(r)
	bl, err := h.svc.Backlinks(r.Context(), id)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{ID: id, Backlinks: bl})
}

// MOC handles GET /api/moc.
//
//	@Summary		Get the map of content of the configured book
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/moc [get]
func (h *Handler) MOC(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.MOC(r.Context())
	if err != nil {
		writeError(w, "moc", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Compile handles POST /api/compile.
//
//	@Summary		Compile a batch of concept records into notes
//	@Tags			compile
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CompileRequest	true	"Concept records and run options"
//	@Success		200		{object}	models.RunSummary
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/compile [post]
func (h *Handler) Compile(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if !readJSON(w, r, &req, false) {
		return
	}
	if len(req.Records) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("records are required"))
		return
	}
	records, err := analysis.DecodeRecords(string(req.Records))
	if err != nil {
		writeError(w, "compile", err)
		return
	}

	summary, err := h.svc.Compile(r.Context(), noteservice.CompileRequest{
		Records:           records,
		Chapter:           req.Chapter,
		Overwrite:         req.Overwrite,
		BuildMOC:          req.BuildMOC,
		BuildChapterIndex: req.BuildChapterIndex,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrStoreWrite) && summary != nil {
			slog.Error("compile aborted", slog.String("run_id", summary.RunID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, CompileFailure{Error: err.Error(), Summary: summary})
			return
		}
		writeError(w, "compile", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Rebuild handles POST /api/rebuild.
//
//	@Summary		Regenerate the map of content and optionally one chapter index
//	@Tags			compile
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RebuildRequest	false	"Chapter to index"
//	@Success		200		{object}	models.RunSummary
//	@Security		BearerAuth
//	@Router			/rebuild [post]
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req RebuildRequest
	if !readJSON(w, r, &req, true) {
		return
	}
	summary, err := h.svc.Rebuild(r.Context(), req.Chapter)
	if err != nil {
		writeError(w, "rebuild", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Dangling handles GET /api/links/dangling.
//
//	@Summary		List links whose target note does not exist
//	@Tags			links
//	@Produce		json
//	@Success		200	{object}	DanglingResponse
//	@Security		BearerAuth
//	@Router			/links/dangling [get]
func (h *Handler) Dangling(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.Dangling(r.Context())
	if err != nil {
		writeError(w, "dangling links", err)
		return
	}
	writeJSON(w, http.StatusOK, DanglingResponse{Links: links})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the note link graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	if nodes == nil {
		nodes = []index.GraphNode{}
	}
	if links == nil {
		links = []index.GraphLink{}
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Links: links})
}
