// Package indexer builds and incrementally updates repository snapshots.
//
// A build discovers files, processes them in fixed-size batches and hands
// the merged result to the snapshot store in a single update. Batches run
// one after another; files inside a batch are processed concurrently and
// merged back in discovery order, so the outcome does not depend on
// scheduling.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/discovery"
	"github.com/starford/ansuz/internal/metrics"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/resolver"
	"github.com/starford/ansuz/internal/snapshot"
	"github.com/starford/ansuz/internal/storage"
)

// Defaults.
const (
	DefaultBatchSize    = 50
	DefaultMaxFileBytes = 5_000_000
)

var tracer = otel.Tracer("github.com/starford/ansuz/internal/indexer")

// Request describes a full index build.
type Request struct {
	RootPath string `json:"rootPath"`
	// Files, when set, replaces discovery.
	Files           []string `json:"files,omitempty"`
	IncludePatterns []string `json:"includePatterns,omitempty"`
	ExcludePatterns []string `json:"excludePatterns,omitempty"`
	// RespectVCSIgnore defaults to the indexer setting when nil.
	RespectVCSIgnore *bool `json:"respectVersionControlIgnore,omitempty"`
	// MaxFileBytes defaults to the indexer setting when zero.
	MaxFileBytes int64 `json:"maxFileBytes,omitempty"`
}

// DeltaRequest describes an incremental update of an existing snapshot.
type DeltaRequest struct {
	SnapshotID string `json:"snapshotId"`
	// RootPath defaults to the snapshot's root.
	RootPath     string   `json:"rootPath,omitempty"`
	ChangedFiles []string `json:"changedFiles,omitempty"`
	RemovedFiles []string `json:"removedFiles,omitempty"`
}

// Result reports the outcome of a build or delta.
type Result struct {
	SnapshotID      string `json:"snapshotId,omitempty"`
	FileCount       int    `json:"fileCount"`
	BytesIndexed    int64  `json:"bytesIndexed"`
	TookMs          int64  `json:"tookMs"`
	SkippedFiles    int    `json:"skippedFiles"`
	ParseErrors     int    `json:"parseErrors"`
	DependencyCount int    `json:"dependencyCount"`
	Error           string `json:"error,omitempty"`
}

func resultFromStats(id string, st models.IndexStats, deps int) Result {
	return Result{
		SnapshotID:      id,
		FileCount:       st.FilesProcessed,
		BytesIndexed:    st.BytesProcessed,
		TookMs:          st.Elapsed.Milliseconds(),
		SkippedFiles:    st.FilesSkipped,
		ParseErrors:     st.ParseErrors,
		DependencyCount: deps,
	}
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithBatchSize sets the number of files per batch.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithWorkers sets how many files of a batch are processed concurrently.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// WithMaxFileBytes sets the default size cutoff.
func WithMaxFileBytes(n int64) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.maxFileBytes = n
		}
	}
}

// WithRespectVCSIgnore sets the default for using git's file listing.
func WithRespectVCSIgnore(v bool) Option {
	return func(ix *Indexer) { ix.respectVCS = v }
}

// WithExtraExcludeDirs extends the directory denylist used by discovery.
func WithExtraExcludeDirs(dirs []string) Option {
	return func(ix *Indexer) { ix.extraExcludeDirs = dirs }
}

// WithClock overrides time.Now for IndexedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(ix *Indexer) { ix.now = now }
}

// Indexer turns repository trees into snapshots.
type Indexer struct {
	store   *snapshot.Store
	parsers *parser.Registry
	logger  *slog.Logger

	batchSize        int
	workers          int
	maxFileBytes     int64
	respectVCS       bool
	extraExcludeDirs []string
	now              func() time.Time
}

// New returns an Indexer writing into store.
func New(store *snapshot.Store, parsers *parser.Registry, logger *slog.Logger, opts ...Option) *Indexer {
	ix := &Indexer{
		store:        store,
		parsers:      parsers,
		logger:       logger,
		batchSize:    DefaultBatchSize,
		workers:      runtime.NumCPU(),
		maxFileBytes: DefaultMaxFileBytes,
		respectVCS:   true,
		now:          time.Now,
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// BuildIndex indexes a repository into a new snapshot. Input problems are
// reported in Result.Error with ParseErrors set to 1; no error is returned.
func (ix *Indexer) BuildIndex(ctx context.Context, req Request) Result {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "indexer.BuildIndex", trace.WithAttributes(
		attribute.String("root", req.RootPath),
	))
	defer span.End()

	fail := func(msg string) Result {
		span.SetStatus(codes.Error, msg)
		metrics.IndexRuns.WithLabelValues("build", "error").Inc()
		ix.logger.Warn("indexer: build rejected", slog.String("root", req.RootPath), slog.String("error", msg))
		return Result{ParseErrors: 1, TookMs: time.Since(start).Milliseconds(), Error: msg}
	}

	if req.RootPath == "" {
		return fail("rootPath is required")
	}
	root, err := filepath.Abs(req.RootPath)
	if err != nil {
		return fail(err.Error())
	}
	fs, err := storage.NewFS(root)
	if err != nil {
		return fail(err.Error())
	}

	respect := ix.respectVCS
	if req.RespectVCSIgnore != nil {
		respect = *req.RespectVCSIgnore
	}
	paths, source, err := discovery.Discover(ctx, fs, discovery.Options{
		Files:            req.Files,
		Include:          req.IncludePatterns,
		Exclude:          req.ExcludePatterns,
		RespectVCSIgnore: respect,
		ExtraExcludeDirs: ix.extraExcludeDirs,
	}, ix.logger)
	if err != nil {
		return fail(err.Error())
	}

	id := ix.store.Create(ctx, root)
	maxBytes := req.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = ix.maxFileBytes
	}
	files, edges, stats := ix.process(ctx, fileJob{fs: fs, resolver: resolver.New(fs), maxBytes: maxBytes}, paths)
	if err := ix.store.Update(ctx, id, files, edges); err != nil {
		// Only possible if the snapshot was deleted concurrently.
		return fail(err.Error())
	}
	info, _ := ix.store.Info(id)
	stats.Elapsed = time.Since(start)

	res := resultFromStats(id, stats, info.EdgeCount)
	ix.observe("build", stats)
	span.SetAttributes(
		attribute.String("snapshot_id", id),
		attribute.String("source", string(source)),
		attribute.Int("files", res.FileCount),
		attribute.Int("skipped", res.SkippedFiles),
	)
	ix.logger.Info("indexer: build complete",
		slog.String("snapshot_id", id),
		slog.String("root", root),
		slog.String("source", string(source)),
		slog.Int("files", res.FileCount),
		slog.Int("skipped", res.SkippedFiles),
		slog.Int("parse_errors", res.ParseErrors),
		slog.Int("dependencies", res.DependencyCount),
		slog.Int64("took_ms", res.TookMs),
	)
	return res
}

// ApplyDelta removes and re-processes the listed files of an existing
// snapshot. Files not listed are left untouched. An unknown snapshot yields
// an error wrapping apperr.ErrNotFound.
func (ix *Indexer) ApplyDelta(ctx context.Context, req DeltaRequest) (Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "indexer.ApplyDelta", trace.WithAttributes(
		attribute.String("snapshot_id", req.SnapshotID),
	))
	defer span.End()

	res, err := ix.applyDelta(ctx, req, start)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.IndexRuns.WithLabelValues("delta", "error").Inc()
		return Result{}, err
	}
	return res, nil
}

func (ix *Indexer) applyDelta(ctx context.Context, req DeltaRequest, start time.Time) (Result, error) {
	if req.SnapshotID == "" {
		return Result{}, fmt.Errorf("snapshotId is required: %w", apperr.ErrInvalidArgument)
	}
	info, err := ix.store.Info(req.SnapshotID)
	if err != nil {
		return Result{}, err
	}
	root := req.RootPath
	if root == "" {
		root = info.RootPath
	}
	fs, err := storage.NewFS(root)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
	}

	if len(req.RemovedFiles) > 0 {
		if err := ix.store.RemoveFiles(ctx, req.SnapshotID, normalize(fs, req.RemovedFiles)); err != nil {
			return Result{}, err
		}
	}

	var stats models.IndexStats
	if len(req.ChangedFiles) > 0 {
		var (
			files map[string]*models.FileRecord
			edges map[string]models.PathSet
		)
		job := fileJob{fs: fs, resolver: resolver.New(fs), maxBytes: ix.maxFileBytes}
		files, edges, stats = ix.process(ctx, job, normalize(fs, req.ChangedFiles))
		if err := ix.store.Update(ctx, req.SnapshotID, files, edges); err != nil {
			return Result{}, err
		}
	}
	stats.Elapsed = time.Since(start)

	info, err = ix.store.Info(req.SnapshotID)
	if err != nil {
		return Result{}, err
	}
	res := resultFromStats(req.SnapshotID, stats, info.EdgeCount)
	ix.observe("delta", stats)
	ix.logger.Info("indexer: delta applied",
		slog.String("snapshot_id", req.SnapshotID),
		slog.Int("changed", len(req.ChangedFiles)),
		slog.Int("removed", len(req.RemovedFiles)),
		slog.Int("files", res.FileCount),
		slog.Int("skipped", res.SkippedFiles),
		slog.Int64("took_ms", res.TookMs),
	)
	return res, nil
}

// normalize maps absolute or relative paths onto root-relative keys. Paths
// outside the root keep their cleaned forward-slash form so they match
// nothing and are skipped downstream.
func normalize(fs *storage.FS, paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		rel, err := fs.Rel(p)
		if err != nil {
			rel = filepath.ToSlash(filepath.Clean(p))
		}
		if _, dup := seen[rel]; dup {
			continue
		}
		seen[rel] = struct{}{}
		out = append(out, rel)
	}
	return out
}

// process runs the per-file pipeline over paths, batch by batch, and merges
// the results in input order.
func (ix *Indexer) process(ctx context.Context, job fileJob, paths []string) (map[string]*models.FileRecord, map[string]models.PathSet, models.IndexStats) {
	files := make(map[string]*models.FileRecord, len(paths))
	edges := make(map[string]models.PathSet, len(paths))
	var stats models.IndexStats

	for lo := 0; lo < len(paths); lo += ix.batchSize {
		hi := min(lo+ix.batchSize, len(paths))
		batch := paths[lo:hi]
		results := ix.runBatch(ctx, job, batch)

		for i, r := range results {
			switch r.outcome {
			case outcomeSkipped:
				stats.FilesSkipped++
			case outcomeParseError:
				stats.ParseErrors++
			case outcomeIndexed:
				p := batch[i]
				files[p] = r.record
				edges[p] = r.deps
				stats.FilesProcessed++
				stats.BytesProcessed += r.bytes
				if r.degraded {
					stats.ParseErrors++
				}
			}
		}
	}
	return files, edges, stats
}

func (ix *Indexer) runBatch(ctx context.Context, job fileJob, batch []string) []fileResult {
	ctx, span := tracer.Start(ctx, "indexer.batch", trace.WithAttributes(attribute.Int("size", len(batch))))
	defer span.End()

	results := make([]fileResult, len(batch))
	g := new(errgroup.Group)
	g.SetLimit(min(ix.workers, len(batch)))
	for i, p := range batch {
		g.Go(func() error {
			results[i] = ix.processFile(ctx, job, p)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (ix *Indexer) observe(op string, st models.IndexStats) {
	metrics.IndexRuns.WithLabelValues(op, "ok").Inc()
	metrics.IndexDuration.WithLabelValues(op).Observe(st.Elapsed.Seconds())
	metrics.IndexFiles.WithLabelValues("indexed").Add(float64(st.FilesProcessed))
	metrics.IndexFiles.WithLabelValues("skipped").Add(float64(st.FilesSkipped))
	metrics.IndexFiles.WithLabelValues("parse_error").Add(float64(st.ParseErrors))
	metrics.IndexBytes.Add(float64(st.BytesProcessed))
}
