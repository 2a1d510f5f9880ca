package persist

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/starford/ansuz/internal/models"
)

const keyPrefix = "snapshot/"

// BadgerConfig configures the badger store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Badger stores each snapshot as one key.
type Badger struct {
	db   *badger.DB
	lock *fileLock
}

// OpenBadger opens the badger store described by cfg.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	var (
		opts badger.Options
		lock *fileLock
	)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("persist: badger path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("persist: create badger directory %s: %w", cfg.Path, err)
		}
		l, err := acquire(cfg.Path)
		if err != nil {
			return nil, err
		}
		lock = l
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("persist: open badger: %w", err)
	}
	return &Badger{db: db, lock: lock}, nil
}

// Save writes the snapshot under its key.
func (b *Badger) Save(_ context.Context, s *models.Snapshot) error {
	val, err := encodeRecord(s)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+s.ID), val)
	})
}

// Delete removes the snapshot key.
func (b *Badger) Delete(_ context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + id))
	})
}

// LoadAll reads every stored snapshot.
func (b *Badger) LoadAll(ctx context.Context) ([]*models.Snapshot, error) {
	var out []*models.Snapshot
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				s, err := decodeRecord(val)
				if err != nil {
					return err
				}
				out = append(out, s)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist: load badger snapshots: %w", err)
	}
	return out, nil
}

// Close closes the database and releases the lock.
func (b *Badger) Close() error {
	err := b.db.Close()
	b.lock.release()
	return err
}
