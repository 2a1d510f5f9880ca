package discovery

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/starford/ansuz/internal/testutil"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDiscoverWalkPrunesDenylist(t *testing.T) {
	_, store := testutil.TestRepo(t, map[string]string{
		"app/main.py":               "",
		"app/util.py":               "",
		"README.md":                 "",
		"node_modules/pkg/index.js": "",
		"app/__pycache__/main.py":   "",
		".venv/lib/site.py":         "",
		"web/src/index.ts":          "",
		"generated/skip.py":         "",
		"notes.txt":                 "",
	})
	got, src, err := Discover(context.Background(), store, Options{
		ExtraExcludeDirs: []string{"generated"},
	}, discard())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if src != SourceWalk {
		t.Errorf("source = %q, want walk", src)
	}
	want := []string{"app/main.py", "app/util.py", "web/src/index.ts"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("files = %v, want %v", got, want)
	}
}

func TestDiscoverPatterns(t *testing.T) {
	_, store := testutil.TestRepo(t, map[string]string{
		"app/main.py":      "",
		"app/main_test.py": "",
		"tools/gen.py":     "",
		"web/index.ts":     "",
	})
	got, _, err := Discover(context.Background(), store, Options{
		Include: []string{"**/*.py"},
		Exclude: []string{"*_test.py", "tools/**"},
	}, discard())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []string{"app/main.py"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("files = %v, want %v", got, want)
	}
}

func TestDiscoverExplicit(t *testing.T) {
	root, store := testutil.TestRepo(t, map[string]string{
		"b.py": "",
		"a.py": "",
		"c.py": "",
	})
	got, src, err := Discover(context.Background(), store, Options{
		Files: []string{"b.py", root + "/a.py", "../escape.py", "a.py"},
	}, discard())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if src != SourceExplicit {
		t.Errorf("source = %q", src)
	}
	want := []string{"a.py", "b.py"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("files = %v, want %v", got, want)
	}
}

func TestDiscoverInvalidPattern(t *testing.T) {
	_, store := testutil.TestRepo(t, nil)
	if _, _, err := Discover(context.Background(), store, Options{Include: []string{"[unclosed"}}, discard()); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestMatcher(t *testing.T) {
	m := NewMatcher(nil, []string{"docs/**"})
	if !m.Match("src/a.py") {
		t.Error("empty includes should match everything not excluded")
	}
	if m.Match("docs/conf.py") {
		t.Error("excluded path matched")
	}
}
