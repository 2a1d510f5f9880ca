package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/indexer"
	"github.com/starford/ansuz/internal/persist"
	"github.com/starford/ansuz/internal/testutil"
)

func testConfig(t *testing.T, driver string) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Index.RespectVCSIgnore = false
	cfg.Persistence.Driver = driver
	cfg.Persistence.Path = filepath.Join(t.TempDir(), "ansuz.db")
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestRunIndex_PrintsResult(t *testing.T) {
	root, _ := testutil.TestRepo(t, map[string]string{
		"a.py": "import b\n",
		"b.py": "",
	})
	var out bytes.Buffer
	err := RunIndex(context.Background(), root, WithConfig(testConfig(t, persist.DriverNone)), WithOutput(&out))
	if err != nil {
		t.Fatalf("RunIndex: %v", err)
	}
	var res indexer.Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if res.SnapshotID == "" || res.FileCount != 2 || res.DependencyCount != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunIndex_InvalidRoot(t *testing.T) {
	var out bytes.Buffer
	err := RunIndex(context.Background(), filepath.Join(t.TempDir(), "missing"),
		WithConfig(testConfig(t, persist.DriverNone)), WithOutput(&out))
	if err == nil {
		t.Fatal("expected error for missing root")
	}
	var res indexer.Result
	_ = json.Unmarshal(out.Bytes(), &res)
	if res.Error == "" || res.ParseErrors != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunIndex_RequiresConfig(t *testing.T) {
	if err := RunIndex(context.Background(), "."); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestServices_RestoreFromSQLite(t *testing.T) {
	root, _ := testutil.TestRepo(t, map[string]string{"a.py": ""})
	cfg := testConfig(t, persist.DriverSQLite)

	if err := RunIndex(context.Background(), root, WithConfig(cfg), WithOutput(io.Discard)); err != nil {
		t.Fatalf("RunIndex: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := newServices(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("newServices: %v", err)
	}
	defer svc.Close(logger)

	snap, err := svc.store.FindLatestByRoot(root)
	if err != nil {
		t.Fatalf("snapshot not restored: %v", err)
	}
	if _, ok := snap.Files["a.py"]; !ok {
		t.Errorf("restored files = %v", snap.Files)
	}
}
