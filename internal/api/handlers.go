package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/indexer"
	"github.com/starford/ansuz/internal/snapshot"
	"github.com/starford/ansuz/internal/tools"
)

// Handler holds API route handlers.
type Handler struct {
	store   *snapshot.Store
	indexer *indexer.Indexer
	tools   *tools.Dispatcher
}

// NewHandler creates a new Handler.
func NewHandler(store *snapshot.Store, ix *indexer.Indexer, d *tools.Dispatcher) *Handler {
	return &Handler{store: store, indexer: ix, tools: d}
}

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Index handles POST /index.
//
//	@Summary		Index a repository into a new snapshot
//	@Tags			snapshots
//	@Accept			json
//	@Produce		json
//	@Param			body	body		IndexRequest	true	"Repository to index"
//	@Success		201		{object}	IndexResult
//	@Failure		400		{object}	IndexResult
//	@Security		BearerAuth
//	@Router			/index [post]
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if !readJSON(w, r, &req) {
		return
	}
	res := h.indexer.BuildIndex(r.Context(), req)
	if res.Error != "" {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ApplyDelta handles POST /snapshots/{id}/delta.
//
//	@Summary		Re-index changed files and drop removed files
//	@Tags			snapshots
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Snapshot id"
//	@Param			body	body		DeltaRequest	true	"Changed and removed files"
//	@Success		200		{object}	IndexResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/snapshots/{id}/delta [post]
func (h *Handler) ApplyDelta(w http.ResponseWriter, r *http.Request) {
	var body DeltaRequest
	if !readJSON(w, r, &body) {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.indexer.ApplyDelta(r.Context(), indexer.DeltaRequest{
		SnapshotID:   id,
		RootPath:     body.RootPath,
		ChangedFiles: body.ChangedFiles,
		RemovedFiles: body.RemovedFiles,
	})
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			slog.Error("apply delta failed", slog.String("snapshot_id", id), slog.String("error", err.Error()))
			writeJSON(w, status, errorBody("internal error"))
			return
		}
		writeJSON(w, status, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListSnapshots handles GET /snapshots.
//
//	@Summary		List snapshots, most recently updated first
//	@Tags			snapshots
//	@Produce		json
//	@Param			root	query		string	false	"Filter by repository root"
//	@Success		200		{object}	SnapshotListResponse
//	@Security		BearerAuth
//	@Router			/snapshots [get]
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	infos := h.store.List(r.URL.Query().Get("root"))
	writeJSON(w, http.StatusOK, SnapshotListResponse{Snapshots: infos, Total: len(infos)})
}

// GetSnapshot handles GET /snapshots/{id}.
//
//	@Summary		Describe a snapshot
//	@Tags			snapshots
//	@Produce		json
//	@Param			id	path		string	true	"Snapshot id"
//	@Success		200	{object}	SnapshotInfo
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/snapshots/{id} [get]
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.Info(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, statusFor(err), errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// DeleteSnapshot handles DELETE /snapshots/{id}.
//
//	@Summary		Delete a snapshot
//	@Tags			snapshots
//	@Param			id	path	string	true	"Snapshot id"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/snapshots/{id} [delete]
func (h *Handler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.store.Delete(r.Context(), chi.URLParam(r, "id")) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTools handles GET /tools.
//
//	@Summary		Describe the available tools
//	@Tags			tools
//	@Produce		json
//	@Success		200	{array}	tools.Definition
//	@Security		BearerAuth
//	@Router			/tools [get]
func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tools.Definitions())
}

// CallTool handles POST /tools/{name}.
//
//	@Summary		Invoke a tool
//	@Tags			tools
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string			true	"Tool name"
//	@Param			body	body		object			false	"Tool arguments"
//	@Success		200		{object}	ToolResponse
//	@Failure		400		{object}	ToolResponse
//	@Failure		404		{object}	ToolResponse
//	@Security		BearerAuth
//	@Router			/tools/{name} [post]
func (h *Handler) CallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	args := tools.Args{}
	if !readJSON(w, r, &args) {
		return
	}

	data, err := h.tools.Invoke(r.Context(), name, args)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			slog.Error("tool call failed", slog.String("tool", name), slog.String("error", err.Error()))
		}
		writeJSON(w, status, ToolResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ToolResponse{Success: true, Data: data})
}
