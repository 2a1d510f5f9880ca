// Package snapshot owns the in-memory set of repository snapshots.
//
// Every read and write takes the same mutex for its full duration. Callers
// receive copies, never the live maps. When a Persister is configured every
// mutation is written through before the lock is released; persistence
// failures are logged and never fail the in-memory operation.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/metrics"
	"github.com/starford/ansuz/internal/models"
)

// Event kinds passed to an EventFunc.
const (
	EventCreated = "snapshot.created"
	EventUpdated = "snapshot.updated"
	EventDeleted = "snapshot.deleted"
)

// EventFunc is called after a mutation completes, outside the store lock.
type EventFunc func(kind string, info models.SnapshotInfo)

// Persister writes snapshots to durable storage.
type Persister interface {
	Save(ctx context.Context, s *models.Snapshot) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]*models.Snapshot, error)
	Close() error
}

// Option configures a Store.
type Option func(*Store)

// WithPersister enables write-through persistence.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithEventFunc registers a mutation observer.
func WithEventFunc(fn EventFunc) Option {
	return func(s *Store) { s.onEvent = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the snapshot registry.
type Store struct {
	mu        sync.Mutex
	snapshots map[string]*models.Snapshot
	order     map[string]uint64 // insertion sequence, breaks createdAt ties
	seq       uint64

	persister Persister
	onEvent   EventFunc
	now       func() time.Time
	logger    *slog.Logger
}

// New returns an empty Store.
func New(logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		snapshots: make(map[string]*models.Snapshot),
		order:     make(map[string]uint64),
		now:       time.Now,
		logger:    logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load adds every persisted snapshot not already held and returns how many
// were added. It is meant to be called once at startup.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	loaded, err := s.persister.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot: load: %w", err)
	}
	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].CreatedAt.Before(loaded[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, snap := range loaded {
		if _, ok := s.snapshots[snap.ID]; ok {
			continue
		}
		s.register(snap)
		n++
	}
	metrics.Snapshots.Set(float64(len(s.snapshots)))
	return n, nil
}

func (s *Store) register(snap *models.Snapshot) {
	s.seq++
	s.snapshots[snap.ID] = snap
	s.order[snap.ID] = s.seq
}

// Create allocates an empty snapshot for root and returns its id.
func (s *Store) Create(ctx context.Context, root string) string {
	id := uuid.NewString()
	snap := models.NewSnapshot(id, root, s.now())

	s.mu.Lock()
	s.register(snap)
	s.persist(ctx, "create", snap)
	info := snap.Info()
	metrics.Snapshots.Set(float64(len(s.snapshots)))
	s.mu.Unlock()

	s.emit(EventCreated, info)
	return id
}

// Get returns a copy of the snapshot or apperr.ErrNotFound.
func (s *Store) Get(id string) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, notFound(id)
	}
	return snap.Clone(), nil
}

// View runs fn against the live snapshot while holding the store lock.
// fn must not retain or modify the snapshot.
func (s *Store) View(id string, fn func(*models.Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return notFound(id)
	}
	return fn(snap)
}

// Info returns the summary of one snapshot.
func (s *Store) Info(id string) (models.SnapshotInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return models.SnapshotInfo{}, notFound(id)
	}
	return snap.Info(), nil
}

// FindLatestByRoot returns a copy of the newest snapshot for root.
// Roots compare after cleaning and case folding. Among snapshots created at
// the same instant the one registered last wins.
func (s *Store) FindLatestByRoot(root string) (*models.Snapshot, error) {
	want := NormalizeRoot(root)

	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.Snapshot
	for _, snap := range s.snapshots {
		if NormalizeRoot(snap.RootPath) != want {
			continue
		}
		if best == nil || s.newer(snap, best) {
			best = snap
		}
	}
	if best == nil {
		return nil, fmt.Errorf("snapshot for root %q: %w", root, apperr.ErrNotFound)
	}
	return best.Clone(), nil
}

func (s *Store) newer(a, b *models.Snapshot) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return s.order[a.ID] > s.order[b.ID]
}

// Update merges files into the snapshot and replaces the edge set of every
// path present in edges. Edges whose source or target is not a file of the
// snapshot are dropped.
func (s *Store) Update(ctx context.Context, id string, files map[string]*models.FileRecord, edges map[string]models.PathSet) error {
	s.mu.Lock()
	snap, ok := s.snapshots[id]
	if !ok {
		s.mu.Unlock()
		return notFound(id)
	}
	for p, f := range files {
		snap.Files[p] = f
	}
	for p, deps := range edges {
		if _, ok := snap.Files[p]; !ok {
			continue
		}
		kept := make(models.PathSet, len(deps))
		for dep := range deps {
			if _, ok := snap.Files[dep]; ok && dep != p {
				kept.Add(dep)
			}
		}
		snap.Graph[p] = kept
	}
	snap.LastUpdated = s.stamp(snap)
	snap.Version++
	s.persist(ctx, "update", snap)
	info := snap.Info()
	s.mu.Unlock()

	s.emit(EventUpdated, info)
	return nil
}

// RemoveFiles deletes paths from the snapshot together with every edge that
// points at them.
func (s *Store) RemoveFiles(ctx context.Context, id string, paths []string) error {
	s.mu.Lock()
	snap, ok := s.snapshots[id]
	if !ok {
		s.mu.Unlock()
		return notFound(id)
	}
	for _, p := range paths {
		delete(snap.Files, p)
		delete(snap.Graph, p)
	}
	for _, deps := range snap.Graph {
		for _, p := range paths {
			delete(deps, p)
		}
	}
	snap.LastUpdated = s.stamp(snap)
	snap.Version++
	s.persist(ctx, "remove_files", snap)
	info := snap.Info()
	s.mu.Unlock()

	s.emit(EventUpdated, info)
	return nil
}

// stamp returns a LastUpdated value that never moves backwards.
func (s *Store) stamp(snap *models.Snapshot) time.Time {
	now := s.now()
	if now.Before(snap.LastUpdated) {
		return snap.LastUpdated
	}
	return now
}

// List returns summaries ordered by LastUpdated, newest first. A non-empty
// rootFilter keeps only snapshots of that root.
func (s *Store) List(rootFilter string) []models.SnapshotInfo {
	var want string
	if rootFilter != "" {
		want = NormalizeRoot(rootFilter)
	}

	s.mu.Lock()
	out := make([]models.SnapshotInfo, 0, len(s.snapshots))
	seq := make(map[string]uint64, len(s.snapshots))
	for id, snap := range s.snapshots {
		if want != "" && NormalizeRoot(snap.RootPath) != want {
			continue
		}
		out = append(out, snap.Info())
		seq[id] = s.order[id]
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.After(out[j].LastUpdated)
		}
		return seq[out[i].ID] > seq[out[j].ID]
	})
	return out
}

// Delete removes a snapshot. It reports whether the snapshot existed.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	snap, ok := s.snapshots[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	info := snap.Info()
	delete(s.snapshots, id)
	delete(s.order, id)
	if s.persister != nil {
		if err := s.persister.Delete(ctx, id); err != nil {
			s.persistFailed("delete", id, err)
		}
	}
	metrics.Snapshots.Set(float64(len(s.snapshots)))
	s.mu.Unlock()

	s.emit(EventDeleted, info)
	return true
}

// Close releases the persister.
func (s *Store) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Close()
}

func (s *Store) persist(ctx context.Context, op string, snap *models.Snapshot) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(ctx, snap); err != nil {
		s.persistFailed(op, snap.ID, err)
	}
}

func (s *Store) persistFailed(op, id string, err error) {
	metrics.PersistErrors.WithLabelValues(op).Inc()
	s.logger.Error("snapshot: persist failed",
		slog.String("op", op),
		slog.String("snapshot_id", id),
		slog.String("error", err.Error()),
	)
}

func (s *Store) emit(kind string, info models.SnapshotInfo) {
	if s.onEvent != nil {
		s.onEvent(kind, info)
	}
}

func notFound(id string) error {
	return fmt.Errorf("snapshot %q: %w", id, apperr.ErrNotFound)
}

// NormalizeRoot returns the comparison key for a root path: cleaned,
// forward-slash and lower-cased.
func NormalizeRoot(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return strings.ToLower(filepath.ToSlash(filepath.Clean(p)))
}
