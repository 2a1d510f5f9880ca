// Package discovery lists the source files of a repository.
//
// Files come from an explicit list, from git (which honours .gitignore), or
// from a directory walk that prunes dependency, build and cache directories.
// Whatever the source, the same filters apply and results are sorted.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/lang"
	"github.com/starford/ansuz/internal/storage"
)

// Source names where a file list came from.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceGit      Source = "git"
	SourceWalk     Source = "walk"
)

// ignoredDirs are never descended into and never contribute files.
var ignoredDirs = map[string]struct{}{
	".git": {}, ".hg": {}, ".svn": {},
	"node_modules": {}, "__pycache__": {}, ".venv": {}, "venv": {}, "env": {},
	".tox": {}, ".mypy_cache": {}, ".pytest_cache": {}, ".idea": {}, ".vscode": {},
	"dist": {}, "build": {}, "target": {}, "vendor": {}, ".cache": {}, ".next": {},
	"coverage": {}, "site-packages": {}, ".eggs": {},
}

// IgnoredDir reports whether name is on the built-in directory denylist.
func IgnoredDir(name string) bool {
	_, ok := ignoredDirs[name]
	return ok
}

// Options controls a discovery run.
type Options struct {
	// Files, when non-empty, replaces discovery with an explicit list of
	// absolute or root-relative paths.
	Files            []string
	Include          []string
	Exclude          []string
	RespectVCSIgnore bool
	// ExtraExcludeDirs extends the built-in directory denylist.
	ExtraExcludeDirs []string
}

// Discover returns the sorted, root-relative, forward-slash paths of the
// candidate source files under store's root.
func Discover(ctx context.Context, store *storage.FS, opts Options, logger *slog.Logger) ([]string, Source, error) {
	m := NewMatcher(opts.Include, opts.Exclude)
	if err := m.Validate(); err != nil {
		return nil, "", err
	}
	d := &discoverer{
		store:   store,
		matcher: m,
		denied:  make(map[string]struct{}, len(ignoredDirs)+len(opts.ExtraExcludeDirs)),
		logger:  logger,
	}
	for dir := range ignoredDirs {
		d.denied[dir] = struct{}{}
	}
	for _, dir := range opts.ExtraExcludeDirs {
		d.denied[dir] = struct{}{}
	}

	var (
		raw    []string
		source Source
	)
	switch {
	case len(opts.Files) > 0:
		raw, source = d.explicit(opts.Files), SourceExplicit
	case opts.RespectVCSIgnore:
		files, err := gitListing(ctx, store.Root())
		if err == nil {
			raw, source = files, SourceGit
			break
		}
		logger.Debug("discovery: git listing unavailable, walking", slog.String("root", store.Root()), slog.String("error", err.Error()))
		fallthrough
	default:
		files, err := d.walk(ctx)
		if err != nil {
			return nil, "", err
		}
		raw, source = files, SourceWalk
	}

	out := d.filter(raw, source == SourceGit)
	logger.Debug("discovery: done",
		slog.String("root", store.Root()),
		slog.String("source", string(source)),
		slog.Int("candidates", len(raw)),
		slog.Int("files", len(out)),
	)
	return out, source, nil
}

type discoverer struct {
	store   *storage.FS
	matcher *Matcher
	denied  map[string]struct{}
	logger  *slog.Logger
}

func (d *discoverer) explicit(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := d.store.Rel(f)
		if err != nil {
			d.logger.Warn("discovery: ignoring file", slog.String("path", f), slog.String("error", err.Error()))
			continue
		}
		out = append(out, rel)
	}
	return out
}

// filter applies the denylist, glob patterns and language allow-list, drops
// duplicates and sorts. checkExists drops paths git still tracks but that
// are gone from disk.
func (d *discoverer) filter(paths []string, checkExists bool) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if d.deniedPath(p) || !d.matcher.Match(p) || !lang.Known(p) {
			continue
		}
		if checkExists && !d.store.IsFile(p) {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (d *discoverer) deniedPath(p string) bool {
	parts := strings.Split(p, "/")
	for _, dir := range parts[:len(parts)-1] {
		if _, ok := d.denied[dir]; ok {
			return true
		}
	}
	return false
}

func (d *discoverer) walk(ctx context.Context) ([]string, error) {
	root := d.store.Root()
	var out []string
	err := filepath.WalkDir(root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			d.logger.Warn("discovery: walk error", slog.String("path", p), slog.String("error", err.Error()))
			if e != nil && e.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if e.IsDir() {
			if p != root {
				if _, ok := d.denied[e.Name()]; ok {
					return fs.SkipDir
				}
			}
			return nil
		}
		if !e.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: walk %s: %w", root, err)
	}
	return out, nil
}

// gitListing returns tracked and untracked-but-not-ignored files.
func gitListing(ctx context.Context, root string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", root, "ls-files", "--cached", "--others", "--exclude-standard", "-z")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	var out []string
	for _, f := range bytes.Split(stdout.Bytes(), []byte{0}) {
		if len(f) > 0 {
			out = append(out, filepath.ToSlash(string(f)))
		}
	}
	return out, nil
}
