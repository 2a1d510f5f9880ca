// Package storage provides read access to files under a repository root.
package storage

import "io/fs"

// Provider is the interface for repository file access.
type Provider interface {
	// Root returns the absolute repository root.
	Root() string
	// Stat returns file info for path (relative to root).
	Stat(path string) (fs.FileInfo, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// IsFile reports whether path names a regular file that resolves inside root.
	IsFile(path string) bool
	// IsDir reports whether path names a directory that resolves inside root.
	IsDir(path string) bool
}
