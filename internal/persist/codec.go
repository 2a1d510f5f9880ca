package persist

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// payload is the serialized body of a snapshot. Edge sets are stored as
// sorted lists.
type payload struct {
	Files           map[string]*models.FileRecord `json:"files"`
	DependencyGraph map[string][]string           `json:"dependencyGraph"`
}

// record is a payload together with the snapshot metadata, for stores that
// keep everything in one value.
type record struct {
	ID          string    `json:"snapshotId"`
	RootPath    string    `json:"rootPath"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
	payload
}

func toPayload(s *models.Snapshot) payload {
	g := make(map[string][]string, len(s.Graph))
	for p, deps := range s.Graph {
		g[p] = deps.Sorted()
	}
	return payload{Files: s.Files, DependencyGraph: g}
}

func encodePayload(s *models.Snapshot) ([]byte, error) {
	b, err := json.Marshal(toPayload(s))
	if err != nil {
		return nil, fmt.Errorf("persist: encode snapshot %s: %w", s.ID, err)
	}
	return b, nil
}

func decodePayload(s *models.Snapshot, data []byte) error {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("persist: decode snapshot %s: %w", s.ID, err)
	}
	fill(s, p)
	return nil
}

func encodeRecord(s *models.Snapshot) ([]byte, error) {
	b, err := json.Marshal(record{
		ID:          s.ID,
		RootPath:    s.RootPath,
		CreatedAt:   s.CreatedAt,
		LastUpdated: s.LastUpdated,
		payload:     toPayload(s),
	})
	if err != nil {
		return nil, fmt.Errorf("persist: encode snapshot %s: %w", s.ID, err)
	}
	return b, nil
}

func decodeRecord(data []byte) (*models.Snapshot, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("persist: decode record: %w", err)
	}
	s := models.NewSnapshot(r.ID, r.RootPath, r.CreatedAt)
	s.LastUpdated = r.LastUpdated
	fill(s, r.payload)
	return s, nil
}

func fill(s *models.Snapshot, p payload) {
	for path, f := range p.Files {
		if f != nil {
			s.Files[path] = f
		}
	}
	for path, deps := range p.DependencyGraph {
		s.Graph[path] = models.NewPathSet(deps...)
	}
}
