package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bookzettel/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Get("/notes/{id}", h.GetNote)
	r.Get("/notes/{id}/backlinks", h.Backlinks)
	r.Get("/moc", h.MOC)

	// Writes, serialized by the service.
	r.Post("/compile", h.Compile)
	r.Post("/rebuild", h.Rebuild)

	// Link graph.
	r.Get("/links/dangling", h.Dangling)
	r.Get("/search", h.Search)
	r.Get("/graph", h.Graph)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
