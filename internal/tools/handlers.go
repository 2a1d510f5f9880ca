package tools

import (
	"context"
	"fmt"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/indexer"
	"github.com/starford/ansuz/internal/models"
)

// DependenciesResult is returned by get_file_dependencies.
type DependenciesResult struct {
	File      string   `json:"file"`
	DependsOn []string `json:"dependsOn"`
	Count     int      `json:"count"`
}

// DependentsResult is returned by get_file_dependents.
type DependentsResult struct {
	File       string   `json:"file"`
	ImportedBy []string `json:"importedBy"`
	Count      int      `json:"count"`
}

// HubsResult is returned by get_architectural_hubs.
type HubsResult struct {
	Threshold int         `json:"threshold"`
	Hubs      []graph.Hub `json:"hubs"`
	Count     int         `json:"count"`
}

// CyclesResult is returned by get_circular_dependencies.
type CyclesResult struct {
	Cycles [][]string `json:"cycles"`
	Count  int        `json:"count"`
}

// FilesResult is returned by list_files.
type FilesResult struct {
	Files []models.FileSummary `json:"files"`
	Count int                  `json:"count"`
}

// ImpactResult is returned by get_impact_analysis.
type ImpactResult struct {
	ChangedFile   string        `json:"changedFile"`
	MaxDepth      int           `json:"maxDepth"`
	AffectedFiles []graph.Level `json:"affectedFiles"`
	TotalAffected int           `json:"totalAffected"`
}

// SnapshotsResult is returned by list_snapshots.
type SnapshotsResult struct {
	Snapshots []models.SnapshotInfo `json:"snapshots"`
	Count     int                   `json:"count"`
}

func (d *Dispatcher) dependencies(_ context.Context, args Args) (any, error) {
	return d.query(args, func(s *models.Snapshot) (any, error) {
		p, err := filePath(args, s)
		if err != nil {
			return nil, err
		}
		deps := graph.Dependencies(s, p)
		return DependenciesResult{File: p, DependsOn: deps, Count: len(deps)}, nil
	})
}

func (d *Dispatcher) dependents(_ context.Context, args Args) (any, error) {
	return d.query(args, func(s *models.Snapshot) (any, error) {
		p, err := filePath(args, s)
		if err != nil {
			return nil, err
		}
		deps := graph.Dependents(s, p)
		return DependentsResult{File: p, ImportedBy: deps, Count: len(deps)}, nil
	})
}

func (d *Dispatcher) hubs(_ context.Context, args Args) (any, error) {
	threshold, err := args.Int("threshold", DefaultHubThreshold)
	if err != nil {
		return nil, err
	}
	if threshold < 0 {
		return nil, fmt.Errorf("%w: threshold must not be negative", apperr.ErrInvalidArgument)
	}
	return d.query(args, func(s *models.Snapshot) (any, error) {
		hubs := d.cached(GetArchitecturalHubs, s, fmt.Sprint(threshold), func() any {
			return graph.Hubs(s, threshold)
		}).([]graph.Hub)
		return HubsResult{Threshold: threshold, Hubs: hubs, Count: len(hubs)}, nil
	})
}

func (d *Dispatcher) cycles(_ context.Context, args Args) (any, error) {
	return d.query(args, func(s *models.Snapshot) (any, error) {
		cycles := d.cached(GetCircularDependencies, s, "", func() any {
			c := graph.Cycles(s)
			if c == nil {
				c = [][]string{}
			}
			return c
		}).([][]string)
		return CyclesResult{Cycles: cycles, Count: len(cycles)}, nil
	})
}

func (d *Dispatcher) listFiles(_ context.Context, args Args) (any, error) {
	language, err := args.String("language", false)
	if err != nil {
		return nil, err
	}
	return d.query(args, func(s *models.Snapshot) (any, error) {
		files := graph.ListFiles(s, language)
		return FilesResult{Files: files, Count: len(files)}, nil
	})
}

func (d *Dispatcher) impact(_ context.Context, args Args) (any, error) {
	maxDepth, err := args.Int("maxDepth", DefaultImpactMaxDepth)
	if err != nil {
		return nil, err
	}
	return d.query(args, func(s *models.Snapshot) (any, error) {
		p, err := filePath(args, s)
		if err != nil {
			return nil, err
		}
		levels := graph.Impact(s, p, maxDepth)
		total := 0
		for _, l := range levels {
			total += len(l.Files)
		}
		return ImpactResult{ChangedFile: p, MaxDepth: maxDepth, AffectedFiles: levels, TotalAffected: total}, nil
	})
}

func (d *Dispatcher) indexRepository(ctx context.Context, args Args) (any, error) {
	var (
		req indexer.Request
		err error
	)
	if req.RootPath, err = args.String("rootPath", true); err != nil {
		return nil, err
	}
	if req.Files, err = args.Strings("files"); err != nil {
		return nil, err
	}
	if req.IncludePatterns, err = args.Strings("includePatterns"); err != nil {
		return nil, err
	}
	if req.ExcludePatterns, err = args.Strings("excludePatterns"); err != nil {
		return nil, err
	}
	if req.RespectVCSIgnore, err = args.Bool("respectVersionControlIgnore"); err != nil {
		return nil, err
	}
	maxBytes, err := args.Int("maxFileBytes", 0)
	if err != nil {
		return nil, err
	}
	req.MaxFileBytes = int64(maxBytes)

	res := d.indexer.BuildIndex(ctx, req)
	if res.Error != "" {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidArgument, res.Error)
	}
	return res, nil
}

func (d *Dispatcher) applyDelta(ctx context.Context, args Args) (any, error) {
	var (
		req indexer.DeltaRequest
		err error
	)
	if req.SnapshotID, err = args.String("snapshotId", true); err != nil {
		return nil, err
	}
	if req.RootPath, err = args.String("rootPath", false); err != nil {
		return nil, err
	}
	if req.ChangedFiles, err = args.Strings("changedFiles"); err != nil {
		return nil, err
	}
	if req.RemovedFiles, err = args.Strings("removedFiles"); err != nil {
		return nil, err
	}
	return d.indexer.ApplyDelta(ctx, req)
}

func (d *Dispatcher) listSnapshots(_ context.Context, args Args) (any, error) {
	root, err := args.String("rootPath", false)
	if err != nil {
		return nil, err
	}
	infos := d.store.List(root)
	return SnapshotsResult{Snapshots: infos, Count: len(infos)}, nil
}
