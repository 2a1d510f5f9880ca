// Package parser turns raw source text into import descriptors and declared
// symbols. Parsers are selected per language through a Registry; languages
// without a dedicated parser get a no-op summary.
package parser

import (
	"context"

	"github.com/starford/ansuz/internal/lang"
	"github.com/starford/ansuz/internal/models"
)

// Summary is the output contract of a Parser.
type Summary struct {
	Imports []models.ImportDescriptor
	Symbols []models.Symbol
	// ParseError is set when the source had syntax errors. The summary is
	// still usable; whatever could be recovered is reported.
	ParseError string
}

// Parser summarises a single file.
type Parser interface {
	Summarize(ctx context.Context, path string, content []byte) (Summary, error)
}

// Noop returns an empty summary for every file.
type Noop struct{}

// Summarize implements Parser.
func (Noop) Summarize(context.Context, string, []byte) (Summary, error) {
	return Summary{}, nil
}

// Registry maps language tags to parsers.
type Registry struct {
	parsers  map[string]Parser
	fallback Parser
}

// NewRegistry returns a registry with the built-in parsers registered.
func NewRegistry() *Registry {
	r := &Registry{
		parsers:  make(map[string]Parser),
		fallback: Noop{},
	}
	r.Register(lang.Python, NewPython())
	return r
}

// Register installs p for language, replacing any previous parser.
func (r *Registry) Register(language string, p Parser) {
	r.parsers[language] = p
}

// For returns the parser for language, or the no-op parser.
func (r *Registry) For(language string) Parser {
	if p, ok := r.parsers[language]; ok {
		return p
	}
	return r.fallback
}
