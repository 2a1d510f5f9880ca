package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/indexer"
	"github.com/starford/ansuz/internal/snapshot"
	"github.com/starford/ansuz/internal/tools"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(store *snapshot.Store, ix *indexer.Indexer, d *tools.Dispatcher, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(store, ix, d)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Indexing.
	r.Post("/index", h.Index)
	r.Post("/snapshots/{id}/delta", h.ApplyDelta)

	// Snapshots.
	r.Get("/snapshots", h.ListSnapshots)
	r.Get("/snapshots/{id}", h.GetSnapshot)
	r.Delete("/snapshots/{id}", h.DeleteSnapshot)

	// Tools.
	r.Get("/tools", h.ListTools)
	r.Post("/tools/{name}", h.CallTool)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
