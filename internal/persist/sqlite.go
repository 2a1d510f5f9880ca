package persist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/ansuz/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	id           TEXT PRIMARY KEY,
	root_path    TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	blob         BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_root ON snapshots(root_path);
`

// SQLite stores one row per snapshot.
type SQLite struct {
	conn *sql.DB
	lock *fileLock
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// The database is locked against other processes until Close.
func OpenSQLite(path string) (*SQLite, error) {
	lock, err := acquire(path)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("persist: open sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		lock.release()
		return nil, fmt.Errorf("persist: ping sqlite: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		lock.release()
		return nil, fmt.Errorf("persist: apply schema: %w", err)
	}
	return &SQLite{conn: conn, lock: lock}, nil
}

// Save upserts the snapshot row.
func (db *SQLite) Save(ctx context.Context, s *models.Snapshot) error {
	blob, err := encodePayload(s)
	if err != nil {
		return err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, root_path, created_at, last_updated, blob)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			root_path    = excluded.root_path,
			last_updated = excluded.last_updated,
			blob         = excluded.blob
	`, s.ID, s.RootPath, formatTime(s.CreatedAt), formatTime(s.LastUpdated), blob)
	if err != nil {
		return fmt.Errorf("persist: upsert snapshot %s: %w", s.ID, err)
	}
	return tx.Commit()
}

// Delete removes the snapshot row, if any.
func (db *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("persist: delete snapshot %s: %w", id, err)
	}
	return nil
}

// LoadAll reads every stored snapshot.
func (db *SQLite) LoadAll(ctx context.Context) ([]*models.Snapshot, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, root_path, created_at, last_updated, blob
		FROM snapshots ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("persist: query snapshots: %w", err)
	}
	defer rows.Close()

	var out []*models.Snapshot
	for rows.Next() {
		var (
			id, root, created, updated string
			blob                       []byte
		)
		if err := rows.Scan(&id, &root, &created, &updated, &blob); err != nil {
			return nil, fmt.Errorf("persist: scan snapshot: %w", err)
		}
		createdAt, err := parseTime(created)
		if err != nil {
			return nil, err
		}
		lastUpdated, err := parseTime(updated)
		if err != nil {
			return nil, err
		}
		s := models.NewSnapshot(id, root, createdAt)
		s.LastUpdated = lastUpdated
		if err := decodePayload(s, blob); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database and releases the lock.
func (db *SQLite) Close() error {
	err := db.conn.Close()
	db.lock.release()
	return err
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("persist: parse time %q: %w", s, err)
	}
	return t, nil
}
