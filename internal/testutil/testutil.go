// Package testutil provides shared test helpers for setting up repositories and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/storage"
)

// TestRepo creates a temporary repository populated with files
// (root-relative, forward-slash path -> content).
func TestRepo(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	fs, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return fs.Root(), fs
}

// WriteFile writes content to root/rel, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestDBPath returns a path for a temporary database file that is removed
// when the test ends.
func TestDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}
