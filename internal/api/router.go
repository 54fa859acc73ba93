package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Library listings and search.
	r.Get("/library/search", h.Search)
	r.Get("/library/{category}", h.ListLibrary)

	// Records.
	r.Get("/records/{id}", h.GetRecord)
	r.Get("/records/{id}/content", h.GetContent)
	r.Get("/records/{id}/part", h.GetPart)
	r.Delete("/records/{id}", h.DeleteRecord)

	// Archiving.
	r.Post("/templates", h.SaveTemplate)
	r.Post("/resources", h.SaveResource)

	// Ingestion without archiving.
	r.Post("/ingest", h.Ingest)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
