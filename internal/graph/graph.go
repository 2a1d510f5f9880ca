// Package graph answers structural queries against a snapshot's dependency
// graph. Every function is read-only and returns results in a stable order.
package graph

import (
	"sort"

	"github.com/starford/ansuz/internal/models"
)

// Hub is a file together with how many files depend on it.
type Hub struct {
	File           string `json:"file"`
	DependentCount int    `json:"dependentCount"`
}

// Level groups the files first reached at a given depth of an impact walk.
type Level struct {
	Depth int      `json:"depth"`
	Files []string `json:"files"`
}

// Dependencies returns the files p imports, sorted.
func Dependencies(s *models.Snapshot, p string) []string {
	return s.Graph[p].Sorted()
}

// Dependents returns the files that import p, sorted. There is no reverse
// index; every edge set is scanned.
func Dependents(s *models.Snapshot, p string) []string {
	out := []string{}
	for src, deps := range s.Graph {
		if deps.Has(p) {
			out = append(out, src)
		}
	}
	sort.Strings(out)
	return out
}

// Hubs returns every file with at least threshold dependents, ordered by
// dependent count descending and then by path.
func Hubs(s *models.Snapshot, threshold int) []Hub {
	counts := make(map[string]int, len(s.Files))
	for p := range s.Files {
		counts[p] = 0
	}
	for _, deps := range s.Graph {
		for dep := range deps {
			if _, ok := counts[dep]; ok {
				counts[dep]++
			}
		}
	}

	out := []Hub{}
	for p, n := range counts {
		if n >= threshold {
			out = append(out, Hub{File: p, DependentCount: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DependentCount != out[j].DependentCount {
			return out[i].DependentCount > out[j].DependentCount
		}
		return out[i].File < out[j].File
	})
	return out
}

// Cycles returns every distinct import cycle. A cycle is reported starting
// at its lexicographically smallest file and closed by repeating that file,
// e.g. [a b c a]. Results are sorted.
func Cycles(s *models.Snapshot) [][]string {
	starts := make([]string, 0, len(s.Files))
	for p := range s.Files {
		starts = append(starts, p)
	}
	sort.Strings(starts)

	neighbours := make(map[string][]string, len(s.Graph))
	for p, deps := range s.Graph {
		var ns []string
		for dep := range deps {
			if _, ok := s.Files[dep]; ok {
				ns = append(ns, dep)
			}
		}
		sort.Strings(ns)
		neighbours[p] = ns
	}

	seen := make(map[string]struct{})
	var out [][]string
	record := func(cycle []string) {
		c := canonical(cycle)
		key := joinKey(c)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}

	for _, start := range starts {
		visited := make(map[string]bool)
		onStack := make(map[string]int)
		var stack []string

		var visit func(n string)
		visit = func(n string) {
			visited[n] = true
			onStack[n] = len(stack)
			stack = append(stack, n)
			for _, next := range neighbours[n] {
				if i, ok := onStack[next]; ok {
					cycle := append(append([]string{}, stack[i:]...), next)
					record(cycle)
					continue
				}
				if !visited[next] {
					visit(next)
				}
			}
			stack = stack[:len(stack)-1]
			delete(onStack, n)
		}
		visit(start)
	}

	sort.Slice(out, func(i, j int) bool { return lessPaths(out[i], out[j]) })
	return out
}

// canonical rotates a closed cycle [n0 ... nk n0] so it starts at its
// smallest member and closes on it again.
func canonical(closed []string) []string {
	nodes := closed[:len(closed)-1]
	lo := 0
	for i, n := range nodes {
		if n < nodes[lo] {
			lo = i
		}
	}
	out := make([]string, 0, len(closed))
	out = append(out, nodes[lo:]...)
	out = append(out, nodes[:lo]...)
	return append(out, nodes[lo])
}

func joinKey(c []string) string {
	n := 0
	for _, p := range c {
		n += len(p) + 1
	}
	b := make([]byte, 0, n)
	for _, p := range c {
		b = append(b, p...)
		b = append(b, 0)
	}
	return string(b)
}

func lessPaths(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Impact walks the dependents relation breadth-first from p for up to
// maxDepth levels. Each file appears once, at the depth it was first
// reached; p itself is never included. maxDepth <= 0 yields no levels.
func Impact(s *models.Snapshot, p string, maxDepth int) []Level {
	levels := []Level{}
	if maxDepth <= 0 {
		return levels
	}

	reverse := make(map[string][]string)
	for src, deps := range s.Graph {
		for dep := range deps {
			reverse[dep] = append(reverse[dep], src)
		}
	}

	seen := map[string]bool{p: true}
	frontier := []string{p}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, f := range frontier {
			for _, dependent := range reverse[f] {
				if seen[dependent] {
					continue
				}
				seen[dependent] = true
				next = append(next, dependent)
			}
		}
		if len(next) == 0 {
			break
		}
		sort.Strings(next)
		levels = append(levels, Level{Depth: depth, Files: next})
		frontier = next
	}
	return levels
}

// ListFiles returns file summaries sorted by path. A non-empty language
// keeps only files of that language.
func ListFiles(s *models.Snapshot, language string) []models.FileSummary {
	out := []models.FileSummary{}
	for p, f := range s.Files {
		if language != "" && f.Language != language {
			continue
		}
		out = append(out, models.FileSummary{Path: p, Language: f.Language, Size: f.Size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
