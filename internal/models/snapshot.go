package models

import (
	"sort"
	"time"
)

// PathSet is a set of repository-relative paths.
type PathSet map[string]struct{}

// NewPathSet returns a set holding paths.
func NewPathSet(paths ...string) PathSet {
	s := make(PathSet, len(paths))
	for _, p := range paths {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts p.
func (s PathSet) Add(p string) { s[p] = struct{}{} }

// Has reports whether p is in the set.
func (s PathSet) Has(p string) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the members in lexicographic order.
func (s PathSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s PathSet) Clone() PathSet {
	c := make(PathSet, len(s))
	for p := range s {
		c[p] = struct{}{}
	}
	return c
}

// Snapshot is a versioned capture of one repository root.
//
// Invariants: every key of Graph is a key of Files, and every path inside an
// edge set is a key of Files.
type Snapshot struct {
	ID          string
	RootPath    string
	CreatedAt   time.Time
	LastUpdated time.Time
	Version     uint64 // increases on every mutation, not persisted
	Files       map[string]*FileRecord
	Graph       map[string]PathSet
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot(id, root string, now time.Time) *Snapshot {
	return &Snapshot{
		ID:          id,
		RootPath:    root,
		CreatedAt:   now,
		LastUpdated: now,
		Files:       make(map[string]*FileRecord),
		Graph:       make(map[string]PathSet),
	}
}

// Clone returns a deep copy of the snapshot's maps. FileRecords are shared:
// they are never mutated after construction.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		ID:          s.ID,
		RootPath:    s.RootPath,
		CreatedAt:   s.CreatedAt,
		LastUpdated: s.LastUpdated,
		Version:     s.Version,
		Files:       make(map[string]*FileRecord, len(s.Files)),
		Graph:       make(map[string]PathSet, len(s.Graph)),
	}
	for p, f := range s.Files {
		c.Files[p] = f
	}
	for p, deps := range s.Graph {
		c.Graph[p] = deps.Clone()
	}
	return c
}

// EdgeCount returns the total number of dependency edges.
func (s *Snapshot) EdgeCount() int {
	n := 0
	for _, deps := range s.Graph {
		n += len(deps)
	}
	return n
}

// Info summarises the snapshot.
func (s *Snapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		ID:          s.ID,
		RootPath:    s.RootPath,
		CreatedAt:   s.CreatedAt,
		LastUpdated: s.LastUpdated,
		FileCount:   len(s.Files),
		EdgeCount:   s.EdgeCount(),
	}
}

// SnapshotInfo is the listing form of a Snapshot.
type SnapshotInfo struct {
	ID          string    `json:"snapshotId"`
	RootPath    string    `json:"rootPath"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
	FileCount   int       `json:"fileCount"`
	EdgeCount   int       `json:"edgeCount"`
}
