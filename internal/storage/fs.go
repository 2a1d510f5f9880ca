package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root  string // absolute, symlink-resolved repository root
	alias string // absolute root as given, before resolving symlinks
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	s := &FS{root: abs, alias: abs}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		s.root = real
	}
	return s, nil
}

// Root returns the absolute repository root.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !f.contains(abs) {
		return "", fmt.Errorf("storage: path escapes root: %s", rel)
	}
	return abs, nil
}

func (f *FS) contains(abs string) bool {
	return abs == f.root || strings.HasPrefix(abs, f.root+string(os.PathSeparator))
}

// resolved follows symlinks and confirms the target still lies under root.
func (f *FS) resolved(rel string) (string, bool) {
	abs, err := f.safePath(rel)
	if err != nil {
		return "", false
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", false
	}
	return real, f.contains(real)
}

// open resolves path for Stat and Read. Symlinks are followed only while
// the target stays under root.
func (f *FS) open(path string) (string, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	if !f.contains(real) {
		return "", fmt.Errorf("storage: symlink escapes root: %s", path)
	}
	return real, nil
}

// Stat returns file info for a file under root.
func (f *FS) Stat(path string) (fs.FileInfo, error) {
	real, err := f.open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return info, nil
}

// Read returns the raw bytes of a file under root.
func (f *FS) Read(path string) ([]byte, error) {
	real, err := f.open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	data, err := os.ReadFile(real)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// IsFile reports whether path is a regular file inside root.
func (f *FS) IsFile(path string) bool {
	real, ok := f.resolved(path)
	if !ok {
		return false
	}
	info, err := os.Stat(real)
	return err == nil && info.Mode().IsRegular()
}

// IsDir reports whether path is a directory inside root.
func (f *FS) IsDir(path string) bool {
	real, ok := f.resolved(path)
	if !ok {
		return false
	}
	info, err := os.Stat(real)
	return err == nil && info.IsDir()
}

// Rel converts an absolute or root-relative path into a forward-slash path
// relative to root. It fails for paths outside root.
func (f *FS) Rel(p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(f.root, filepath.FromSlash(p))
	}
	p = filepath.Clean(p)
	base := f.root
	switch {
	case f.contains(p):
	case p == f.alias || strings.HasPrefix(p, f.alias+string(os.PathSeparator)):
		base = f.alias
	default:
		real, err := filepath.EvalSymlinks(p)
		if err != nil || !f.contains(real) {
			return "", fmt.Errorf("storage: path outside root: %s", p)
		}
		p = real
	}
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return "", fmt.Errorf("storage: rel %s: %w", p, err)
	}
	if rel == "." {
		return "", fmt.Errorf("storage: path is the root itself: %s", p)
	}
	return filepath.ToSlash(rel), nil
}
