package api

import (
	"github.com/starford/ansuz/internal/indexer"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/tools"
)

// IndexRequest is the request body for indexing a repository.
type IndexRequest = indexer.Request

// DeltaRequest is the request body for applying a delta. The snapshot id
// comes from the URL.
type DeltaRequest struct {
	RootPath     string   `json:"rootPath,omitempty" example:"/src/project"`
	ChangedFiles []string `json:"changedFiles,omitempty"`
	RemovedFiles []string `json:"removedFiles,omitempty"`
}

// IndexResult is the response of indexing and delta operations.
type IndexResult = indexer.Result

// SnapshotInfo describes one snapshot.
type SnapshotInfo = models.SnapshotInfo

// SnapshotListResponse wraps snapshot listings.
type SnapshotListResponse struct {
	Snapshots []SnapshotInfo `json:"snapshots" validate:"required"`
	Total     int            `json:"total" example:"3" validate:"required"`
}

// ToolResponse is the response of POST /tools/{name}.
type ToolResponse = tools.Response
