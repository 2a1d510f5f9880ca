package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/lang"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/snapshot"
	"github.com/starford/ansuz/internal/testutil"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newIndexer(t *testing.T, opts ...Option) (*Indexer, *snapshot.Store) {
	t.Helper()
	store := snapshot.New(discard())
	opts = append([]Option{WithRespectVCSIgnore(false)}, opts...)
	return New(store, parser.NewRegistry(), discard(), opts...), store
}

func TestBuildIndexSkipsOversizedFiles(t *testing.T) {
	big := strings.Repeat("x = 1\n", 40)
	root, _ := testutil.TestRepo(t, map[string]string{
		"a.py":    "import b\n",
		"b.py":    "VALUE = 1\n",
		"c.py":    "from a import thing\n",
		"big1.py": big,
		"big2.py": big,
	})
	ix, _ := newIndexer(t)
	res := ix.BuildIndex(context.Background(), Request{RootPath: root, MaxFileBytes: 100})
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.FileCount != 3 || res.SkippedFiles != 2 || res.ParseErrors != 0 {
		t.Errorf("result = %+v, want fileCount=3 skipped=2 parseErrors=0", res)
	}
	if res.DependencyCount != 2 {
		t.Errorf("dependencyCount = %d, want 2", res.DependencyCount)
	}
}

func TestBuildIndexEdges(t *testing.T) {
	root, _ := testutil.TestRepo(t, map[string]string{
		"x.py":            "import y\nimport os\nimport x\n",
		"y.py":            "",
		"pkg/__init__.py": "from . import mod\n",
		"pkg/mod.py":      "from ..y import thing\n",
	})
	ix, store := newIndexer(t)
	res := ix.BuildIndex(context.Background(), Request{RootPath: root})
	snap, err := store.Get(res.SnapshotID)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]string{
		"x.py":            {"y.py"},
		"y.py":            {},
		"pkg/__init__.py": {"pkg/mod.py"},
		"pkg/mod.py":      {"y.py"},
	}
	for p, deps := range want {
		got := snap.Graph[p].Sorted()
		if len(got) != len(deps) {
			t.Errorf("%s -> %v, want %v", p, got, deps)
			continue
		}
		for i := range deps {
			if got[i] != deps[i] {
				t.Errorf("%s -> %v, want %v", p, got, deps)
			}
		}
	}
	if _, ok := snap.Graph["y.py"]; !ok {
		t.Error("files without imports should still have an (empty) edge set")
	}
	rec := snap.Files["x.py"]
	if rec.Language != lang.Python || rec.ContentHash == "" || len(rec.ImportedSymbols) != 3 {
		t.Errorf("record = %+v", rec)
	}
}

func TestBuildIndexInvalidRoot(t *testing.T) {
	ix, store := newIndexer(t)
	for _, root := range []string{"", "/definitely/not/a/real/path"} {
		res := ix.BuildIndex(context.Background(), Request{RootPath: root})
		if res.ParseErrors != 1 || res.FileCount != 0 || res.SnapshotID != "" || res.Error == "" {
			t.Errorf("root %q: result = %+v", root, res)
		}
	}
	if n := len(store.List("")); n != 0 {
		t.Errorf("no snapshot should be created, got %d", n)
	}
}

func TestBuildIndexIdempotent(t *testing.T) {
	root, _ := testutil.TestRepo(t, map[string]string{
		"a.py": "import b\n",
		"b.py": "import c\n",
		"c.py": "",
		"d.md": "not source",
	})
	ix, store := newIndexer(t)
	first := ix.BuildIndex(context.Background(), Request{RootPath: root})
	second := ix.BuildIndex(context.Background(), Request{RootPath: root})
	if first.FileCount != second.FileCount || first.BytesIndexed != second.BytesIndexed || first.SkippedFiles != second.SkippedFiles {
		t.Errorf("runs differ: %+v vs %+v", first, second)
	}
	a, _ := store.Get(first.SnapshotID)
	b, _ := store.Get(second.SnapshotID)
	for p, rec := range a.Files {
		if b.Files[p] == nil || b.Files[p].ContentHash != rec.ContentHash {
			t.Errorf("hash for %s changed between runs", p)
		}
	}
	latest, _ := store.FindLatestByRoot(root)
	if latest.ID != second.SnapshotID {
		t.Error("latest snapshot should be the second build")
	}
}

func TestBuildIndexBinaryAndSmallBatches(t *testing.T) {
	files := map[string]string{
		"bin.py": "abc\x00def",
	}
	for _, name := range []string{"m0", "m1", "m2", "m3", "m4", "m5", "m6"} {
		files[name+".py"] = "import m0\n"
	}
	root, _ := testutil.TestRepo(t, files)
	ix, store := newIndexer(t, WithBatchSize(2), WithWorkers(3))
	res := ix.BuildIndex(context.Background(), Request{RootPath: root})
	if res.FileCount != 7 || res.SkippedFiles != 1 {
		t.Errorf("result = %+v", res)
	}
	// m0 importing itself is dropped, so six edges remain.
	if res.DependencyCount != 6 {
		t.Errorf("dependencyCount = %d, want 6", res.DependencyCount)
	}
	snap, _ := store.Get(res.SnapshotID)
	if _, ok := snap.Files["bin.py"]; ok {
		t.Error("binary file should be omitted")
	}
}

func TestBuildIndexExplicitFiles(t *testing.T) {
	root, _ := testutil.TestRepo(t, map[string]string{
		"a.py": "import b\n",
		"b.py": "",
		"c.py": "",
	})
	ix, store := newIndexer(t)
	res := ix.BuildIndex(context.Background(), Request{RootPath: root, Files: []string{"a.py", "b.py", "gone.py"}})
	if res.FileCount != 2 || res.SkippedFiles != 1 {
		t.Errorf("result = %+v", res)
	}
	snap, _ := store.Get(res.SnapshotID)
	if _, ok := snap.Files["c.py"]; ok {
		t.Error("unlisted file was indexed")
	}
}

func TestBuildIndexExplicitSymlinkEscape(t *testing.T) {
	root, _ := testutil.TestRepo(t, map[string]string{"a.py": ""})
	outside := t.TempDir()
	testutil.WriteFile(t, outside, "secret.py", "TOKEN = 'x'\n")
	if err := os.Symlink(filepath.Join(outside, "secret.py"), filepath.Join(root, "link.py")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	ix, store := newIndexer(t)

	walked := ix.BuildIndex(context.Background(), Request{RootPath: root})
	listed := ix.BuildIndex(context.Background(), Request{RootPath: root, Files: []string{"a.py", "link.py"}})
	if walked.FileCount != 1 || listed.FileCount != 1 {
		t.Errorf("walk indexed %d files, explicit list indexed %d, want 1 each", walked.FileCount, listed.FileCount)
	}
	snap, _ := store.Get(listed.SnapshotID)
	if _, ok := snap.Files["link.py"]; ok {
		t.Error("symlink escaping the root was indexed")
	}
}

type panicky struct{}

func (panicky) Summarize(context.Context, string, []byte) (parser.Summary, error) {
	panic("boom")
}

type degraded struct{}

func (degraded) Summarize(context.Context, string, []byte) (parser.Summary, error) {
	return parser.Summary{ParseError: "bad syntax"}, nil
}

func TestBuildIndexParserFailures(t *testing.T) {
	root, _ := testutil.TestRepo(t, map[string]string{
		"a.py": "",
		"b.go": "package b\n",
	})
	reg := parser.NewRegistry()
	reg.Register(lang.Python, panicky{})
	reg.Register(lang.Go, degraded{})
	store := snapshot.New(discard())
	ix := New(store, reg, discard(), WithRespectVCSIgnore(false))

	res := ix.BuildIndex(context.Background(), Request{RootPath: root})
	if res.FileCount != 1 || res.ParseErrors != 2 {
		t.Errorf("result = %+v, want fileCount=1 parseErrors=2", res)
	}
	snap, _ := store.Get(res.SnapshotID)
	if snap.Files["b.go"] == nil || snap.Files["b.go"].ParseError != "bad syntax" {
		t.Error("file with recoverable syntax errors should be kept")
	}
	if _, ok := snap.Files["a.py"]; ok {
		t.Error("file whose parser panicked should be omitted")
	}
}

func TestApplyDelta(t *testing.T) {
	root, _ := testutil.TestRepo(t, map[string]string{
		"a.py": "import b\n",
		"b.py": "import c\n",
		"c.py": "",
	})
	ix, store := newIndexer(t)
	ctx := context.Background()
	built := ix.BuildIndex(ctx, Request{RootPath: root})

	testutil.WriteFile(t, root, "a.py", "import c\n")
	testutil.WriteFile(t, root, "d.py", "import a\n")
	res, err := ix.ApplyDelta(ctx, DeltaRequest{
		SnapshotID:   built.SnapshotID,
		ChangedFiles: []string{"a.py", root + "/d.py", "missing.py"},
		RemovedFiles: []string{"b.py"},
	})
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if res.FileCount != 2 || res.SkippedFiles != 1 {
		t.Errorf("result = %+v", res)
	}

	snap, _ := store.Get(built.SnapshotID)
	if _, ok := snap.Files["b.py"]; ok {
		t.Error("b.py should be removed")
	}
	if got := snap.Graph["a.py"].Sorted(); len(got) != 1 || got[0] != "c.py" {
		t.Errorf("a.py deps = %v", got)
	}
	if !snap.Graph["d.py"].Has("a.py") {
		t.Error("d.py should depend on a.py")
	}
	if _, ok := snap.Files["c.py"]; !ok {
		t.Error("unlisted c.py should be untouched")
	}
	for src, deps := range snap.Graph {
		for dep := range deps {
			if _, ok := snap.Files[dep]; !ok {
				t.Errorf("dangling edge %s -> %s", src, dep)
			}
		}
	}
}

func TestApplyDeltaUnknownSnapshot(t *testing.T) {
	ix, _ := newIndexer(t)
	_, err := ix.ApplyDelta(context.Background(), DeltaRequest{SnapshotID: "nope"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	_, err = ix.ApplyDelta(context.Background(), DeltaRequest{})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestNewlineStyle(t *testing.T) {
	tests := []struct {
		in   string
		want models.NewlineStyle
	}{
		{"", models.NewlineLF},
		{"a\nb\n", models.NewlineLF},
		{"a\r\nb\r\n", models.NewlineCRLF},
		{"a\r\nb\n", models.NewlineMixed},
	}
	for _, tt := range tests {
		if got := newlineStyle([]byte(tt.in)); got != tt.want {
			t.Errorf("newlineStyle(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestIsBinary(t *testing.T) {
	if !isBinary([]byte("a\x00b")) {
		t.Error("NUL byte should mark binary")
	}
	if !isBinary([]byte{0xff, 0xfe, 0xfd}) {
		t.Error("invalid UTF-8 should mark binary")
	}
	if isBinary([]byte("héllo\n")) {
		t.Error("UTF-8 text is not binary")
	}
}
