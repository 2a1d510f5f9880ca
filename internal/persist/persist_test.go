package persist

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/snapshot"
	"github.com/starford/ansuz/internal/testutil"
)

func sample(id string) *models.Snapshot {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := models.NewSnapshot(id, "/repo", created)
	s.LastUpdated = created.Add(time.Minute)
	s.Files["a.py"] = &models.FileRecord{Path: "a.py", Language: "python", Size: 10, ContentHash: "h1"}
	s.Files["b.py"] = &models.FileRecord{Path: "b.py", Language: "python", Size: 4, ContentHash: "h2"}
	s.Graph["a.py"] = models.NewPathSet("b.py")
	s.Graph["b.py"] = models.NewPathSet()
	return s
}

func roundTrip(t *testing.T, p snapshot.Persister) {
	t.Helper()
	ctx := context.Background()
	want := sample("snap-1")
	if err := p.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Overwrite must replace, not duplicate.
	want.Files["c.py"] = &models.FileRecord{Path: "c.py", Language: "python"}
	if err := p.Save(ctx, want); err != nil {
		t.Fatalf("Save again: %v", err)
	}
	if err := p.Save(ctx, sample("snap-2")); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	all, err := p.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("loaded %d snapshots, want 2", len(all))
	}
	var got *models.Snapshot
	for _, s := range all {
		if s.ID == "snap-1" {
			got = s
		}
	}
	if got == nil {
		t.Fatal("snap-1 missing")
	}
	if got.RootPath != "/repo" || !got.CreatedAt.Equal(want.CreatedAt) || !got.LastUpdated.Equal(want.LastUpdated) {
		t.Errorf("metadata mismatch: %+v", got)
	}
	if len(got.Files) != 3 || got.Files["a.py"].ContentHash != "h1" {
		t.Errorf("files = %+v", got.Files)
	}
	if !got.Graph["a.py"].Has("b.py") || len(got.Graph["b.py"]) != 0 {
		t.Errorf("graph = %+v", got.Graph)
	}

	if err := p.Delete(ctx, "snap-2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	all, _ = p.LoadAll(ctx)
	if len(all) != 1 {
		t.Errorf("after delete: %d snapshots", len(all))
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	db, err := OpenSQLite(testutil.TestDBPath(t, "ansuz.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	roundTrip(t, db)
}

func TestBadgerRoundTrip(t *testing.T) {
	db, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	roundTrip(t, db)
}

func TestSQLiteLockedByAnotherHandle(t *testing.T) {
	path := testutil.TestDBPath(t, "locked.db")
	first, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	if second, err := OpenSQLite(path); err == nil {
		second.Close()
		t.Fatal("expected the second open to fail while the lock is held")
	}
}

func TestSQLiteReopen(t *testing.T) {
	path := testutil.TestDBPath(t, "reopen.db")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Save(context.Background(), sample("keep")); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	all, err := db.LoadAll(context.Background())
	if err != nil || len(all) != 1 || all[0].ID != "keep" {
		t.Errorf("after reopen: %v, %v", all, err)
	}
}

func TestOpenDrivers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := Open(Config{Driver: DriverNone}, logger)
	if err != nil || p != nil {
		t.Errorf("none driver = %v, %v", p, err)
	}
	if _, err := Open(Config{Driver: "mongo"}, logger); err == nil {
		t.Error("expected error for unknown driver")
	}
	p, err = Open(Config{Driver: DriverBadger, Path: filepath.Join(t.TempDir(), "badger")}, logger)
	if err != nil {
		t.Fatalf("badger driver: %v", err)
	}
	p.Close()
}

func TestStoreWithSQLite(t *testing.T) {
	db, err := OpenSQLite(testutil.TestDBPath(t, "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	s := snapshot.New(logger, snapshot.WithPersister(db))
	id := s.Create(ctx, "/repo")
	_ = s.Update(ctx, id, map[string]*models.FileRecord{"x.py": {Path: "x.py"}}, nil)

	fresh := snapshot.New(logger, snapshot.WithPersister(db))
	if n, err := fresh.Load(ctx); err != nil || n != 1 {
		t.Fatalf("Load = %d, %v", n, err)
	}
	got, err := fresh.Get(id)
	if err != nil || len(got.Files) != 1 {
		t.Errorf("reloaded = %+v, %v", got, err)
	}
}
