package indexer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/lang"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/resolver"
	"github.com/starford/ansuz/internal/storage"
)

// binarySniffLen is how many leading bytes are checked for NUL.
const binarySniffLen = 8000

type outcome int

const (
	outcomeIndexed outcome = iota
	outcomeSkipped
	outcomeParseError
)

// fileResult is the product of processing one file.
type fileResult struct {
	outcome outcome
	record  *models.FileRecord
	deps    models.PathSet
	bytes   int64
	// degraded marks an indexed file whose parser reported syntax errors.
	degraded bool
}

// fileJob carries what the per-file pipeline needs.
type fileJob struct {
	fs       *storage.FS
	resolver *resolver.Resolver
	maxBytes int64
}

// processFile reads, hashes, parses and resolves one file. It never fails:
// problems turn into a skipped or parse-error outcome.
func (ix *Indexer) processFile(ctx context.Context, job fileJob, rel string) fileResult {
	info, err := job.fs.Stat(rel)
	if err != nil {
		ix.logger.Warn("indexer: stat failed", slog.String("path", rel), slog.String("error", err.Error()))
		return fileResult{outcome: outcomeSkipped}
	}
	if !info.Mode().IsRegular() {
		return fileResult{outcome: outcomeSkipped}
	}
	if info.Size() > job.maxBytes {
		ix.logger.Debug("indexer: file too large", slog.String("path", rel), slog.Int64("size", info.Size()))
		return fileResult{outcome: outcomeSkipped}
	}
	data, err := job.fs.Read(rel)
	if err != nil {
		ix.logger.Warn("indexer: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return fileResult{outcome: outcomeSkipped}
	}
	if int64(len(data)) > job.maxBytes {
		return fileResult{outcome: outcomeSkipped}
	}
	if isBinary(data) {
		ix.logger.Debug("indexer: binary file", slog.String("path", rel))
		return fileResult{outcome: outcomeSkipped}
	}

	language := lang.Detect(rel)
	summary, err := summarize(ctx, ix.parsers.For(language), rel, data)
	if err != nil {
		ix.logger.Warn("indexer: parse failed", slog.String("path", rel), slog.String("error", err.Error()))
		return fileResult{outcome: outcomeParseError}
	}

	deps := models.NewPathSet()
	for _, imp := range summary.Imports {
		target, ok := job.resolver.Resolve(imp, language)
		if ok && target != rel {
			deps.Add(target)
		}
	}

	rec := &models.FileRecord{
		Path:            rel,
		Language:        language,
		Size:            int64(len(data)),
		ContentHash:     checksum.Sum(data),
		NewlineStyle:    newlineStyle(data),
		Content:         string(data),
		ImportedSymbols: summary.Imports,
		DeclaredSymbols: summary.Symbols,
		ParseError:      summary.ParseError,
		IndexedAt:       ix.now(),
	}
	return fileResult{
		outcome:  outcomeIndexed,
		record:   rec,
		deps:     deps,
		bytes:    rec.Size,
		degraded: summary.ParseError != "",
	}
}

// summarize calls the parser and turns a panic into an error.
func summarize(ctx context.Context, p parser.Parser, path string, data []byte) (s parser.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	return p.Summarize(ctx, path, data)
}

func isBinary(data []byte) bool {
	head := data
	if len(head) > binarySniffLen {
		head = head[:binarySniffLen]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	return !utf8.Valid(data)
}

func newlineStyle(data []byte) models.NewlineStyle {
	crlf := bytes.Count(data, []byte("\r\n"))
	lf := bytes.Count(data, []byte("\n")) - crlf
	switch {
	case crlf > 0 && lf > 0:
		return models.NewlineMixed
	case crlf > 0:
		return models.NewlineCRLF
	default:
		return models.NewlineLF
	}
}
