// Package persist writes snapshots to an embedded database so they survive
// restarts. Two backends exist: SQLite (one row per snapshot) and badger
// (one key per snapshot). Each locks its database path with a lock file so
// only one process uses it at a time.
package persist

import (
	"fmt"
	"log/slog"

	"github.com/starford/ansuz/internal/snapshot"
)

// Drivers.
const (
	DriverNone   = "none"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Config selects and configures a backend.
type Config struct {
	Driver     string
	Path       string
	SyncWrites bool
}

// Open returns the configured persister, or nil for DriverNone.
func Open(cfg Config, logger *slog.Logger) (snapshot.Persister, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverSQLite:
		db, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case DriverBadger:
		db, err := OpenBadger(BadgerConfig{
			Path:       cfg.Path,
			SyncWrites: cfg.SyncWrites,
			Logger:     logger.With(slog.String("component", "badger")),
		})
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("persist: unknown driver %q", cfg.Driver)
	}
}

var (
	_ snapshot.Persister = (*SQLite)(nil)
	_ snapshot.Persister = (*Badger)(nil)
)
