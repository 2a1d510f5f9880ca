// Package tools exposes graph queries and indexing as named tool calls.
//
// Every call either succeeds with a typed result or fails with an error
// wrapping one of the apperr sentinels. Call folds both into a Response so a
// bad call never escapes as a panic or transport error.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/indexer"
	"github.com/starford/ansuz/internal/metrics"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/snapshot"
)

// Tool names.
const (
	GetFileDependencies     = "get_file_dependencies"
	GetFileDependents       = "get_file_dependents"
	GetArchitecturalHubs    = "get_architectural_hubs"
	GetCircularDependencies = "get_circular_dependencies"
	ListFiles               = "list_files"
	GetImpactAnalysis       = "get_impact_analysis"
	IndexRepository         = "index_repository"
	ApplyDelta              = "apply_delta"
	ListSnapshots           = "list_snapshots"
)

// Defaults for optional arguments.
const (
	DefaultHubThreshold   = 5
	DefaultImpactMaxDepth = 3
	DefaultCacheSize      = 256
)

// Response is the transport-neutral outcome of a tool call.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type handler func(ctx context.Context, args Args) (any, error)

// Dispatcher routes tool calls by name.
type Dispatcher struct {
	store    *snapshot.Store
	indexer  *indexer.Indexer
	cache    *lru.Cache[string, any]
	logger   *slog.Logger
	handlers map[string]handler
}

// NewDispatcher returns a dispatcher over store and ix. cacheSize bounds the
// memoized results of the expensive whole-graph queries; values <= 0 use
// DefaultCacheSize.
func NewDispatcher(store *snapshot.Store, ix *indexer.Indexer, logger *slog.Logger, cacheSize int) (*Dispatcher, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, any](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("tools: create cache: %w", err)
	}
	d := &Dispatcher{
		store:   store,
		indexer: ix,
		cache:   cache,
		logger:  logger,
	}
	d.handlers = map[string]handler{
		GetFileDependencies:     d.dependencies,
		GetFileDependents:       d.dependents,
		GetArchitecturalHubs:    d.hubs,
		GetCircularDependencies: d.cycles,
		ListFiles:               d.listFiles,
		GetImpactAnalysis:       d.impact,
		IndexRepository:         d.indexRepository,
		ApplyDelta:              d.applyDelta,
		ListSnapshots:           d.listSnapshots,
	}
	return d, nil
}

// Invoke runs the named tool.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args Args) (any, error) {
	h, ok := d.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnknownTool, name)
	}
	if args == nil {
		args = Args{}
	}
	return h(ctx, args)
}

// Call runs the named tool and never fails: errors become an unsuccessful
// Response.
func (d *Dispatcher) Call(ctx context.Context, name string, args Args) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tools: handler panic", slog.String("tool", name), slog.Any("panic", r))
			resp = Response{Error: fmt.Sprintf("internal error in %s", name)}
			metrics.ToolCalls.WithLabelValues(metricName(name), "error").Inc()
		}
	}()

	data, err := d.Invoke(ctx, name, args)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(metricName(name), "error").Inc()
		d.logger.Debug("tools: call failed", slog.String("tool", name), slog.String("error", err.Error()))
		return Response{Error: err.Error()}
	}
	metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
	return Response{Success: true, Data: data}
}

// metricName keeps label cardinality bounded for unknown tool names.
func metricName(name string) string {
	for _, def := range definitions {
		if def.Name == name {
			return name
		}
	}
	return "unknown"
}

// IsClientError reports whether err was caused by the caller.
func IsClientError(err error) bool {
	return errors.Is(err, apperr.ErrInvalidArgument) ||
		errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrUnknownTool)
}

// query runs fn against the live snapshot named by the snapshotId argument.
func (d *Dispatcher) query(args Args, fn func(*models.Snapshot) (any, error)) (any, error) {
	id, err := args.String("snapshotId", true)
	if err != nil {
		return nil, err
	}
	var out any
	err = d.store.View(id, func(s *models.Snapshot) error {
		var ferr error
		out, ferr = fn(s)
		return ferr
	})
	return out, err
}

// cached memoizes fn per snapshot version, so any mutation of the snapshot
// invalidates earlier entries.
func (d *Dispatcher) cached(tool string, s *models.Snapshot, argKey string, fn func() any) any {
	key := fmt.Sprintf("%s|%d|%s|%s", s.ID, s.Version, tool, argKey)
	if v, ok := d.cache.Get(key); ok {
		metrics.ToolCacheHits.WithLabelValues(tool).Inc()
		return v
	}
	v := fn()
	d.cache.Add(key, v)
	return v
}

// filePath returns the filePath argument as a snapshot key. Absolute paths
// under the snapshot root are made relative.
func filePath(args Args, s *models.Snapshot) (string, error) {
	p, err := args.String("filePath", true)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(s.RootPath, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			p = rel
		}
	}
	return path.Clean(filepath.ToSlash(p)), nil
}
