// Package models defines the domain types shared by the indexer, the snapshot store and the query layer.
package models

import "time"

// NewlineStyle describes the line terminators used by a file.
type NewlineStyle string

const (
	NewlineLF    NewlineStyle = "LF"
	NewlineCRLF  NewlineStyle = "CRLF"
	NewlineMixed NewlineStyle = "MIXED"
)

// ImportKind distinguishes package-relative imports from absolute ones.
type ImportKind string

const (
	ImportRelative ImportKind = "relative"
	ImportAbsolute ImportKind = "absolute"
)

// ImportDescriptor is one import statement as reported by a Parser.
// Module keeps its leading ascent markers for relative imports (e.g. "..pkg.mod").
type ImportDescriptor struct {
	Kind       ImportKind `json:"kind"`
	Module     string     `json:"module"`
	SourceFile string     `json:"sourceFile"`
	Line       int        `json:"line,omitempty"`
}

// Symbol is a declaration found in a file.
type Symbol struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Line   int    `json:"line"`
	Parent string `json:"parent,omitempty"`
}

// FileRecord is one indexed file. Records are replaced wholesale on re-index.
type FileRecord struct {
	Path            string             `json:"path"`
	Language        string             `json:"language"`
	Size            int64              `json:"size"`
	ContentHash     string             `json:"contentHash"`
	NewlineStyle    NewlineStyle       `json:"newlineStyle"`
	Content         string             `json:"content"`
	ImportedSymbols []ImportDescriptor `json:"importedSymbols"`
	DeclaredSymbols []Symbol           `json:"declaredSymbols"`
	ParseError      string             `json:"parseError,omitempty"`
	IndexedAt       time.Time          `json:"indexedAt"`
}

// FileSummary is the lightweight listing form of a FileRecord.
type FileSummary struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Size     int64  `json:"size"`
}

// IndexStats counts the work done by one indexing or delta operation.
type IndexStats struct {
	FilesProcessed int
	BytesProcessed int64
	FilesSkipped   int
	ParseErrors    int
	Elapsed        time.Duration
}
