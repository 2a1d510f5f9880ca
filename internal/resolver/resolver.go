// Package resolver maps import descriptors onto files inside a repository root.
//
// Resolution only checks what exists on disk. An import that does not map to
// a file inside the root yields no edge.
package resolver

import (
	"path"
	"strings"

	"github.com/starford/ansuz/internal/lang"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
)

// Resolver resolves imports for one repository root.
type Resolver struct {
	fs storage.Provider
}

// New returns a Resolver backed by fs.
func New(fs storage.Provider) *Resolver {
	return &Resolver{fs: fs}
}

// Resolve returns the root-relative, forward-slash path the import refers to.
// language selects the module layout; languages without one never resolve.
func (r *Resolver) Resolve(imp models.ImportDescriptor, language string) (string, bool) {
	layout, ok := lang.Layout(language)
	if !ok || imp.Module == "" {
		return "", false
	}
	switch imp.Kind {
	case models.ImportAbsolute:
		return r.lookup("", segments(imp.Module, layout.Separator), layout)
	case models.ImportRelative:
		return r.relative(imp, layout)
	default:
		return "", false
	}
}

func (r *Resolver) relative(imp models.ImportDescriptor, layout lang.ModuleLayout) (string, bool) {
	rest := strings.TrimLeft(imp.Module, layout.Separator)
	ascent := len(imp.Module) - len(rest)
	if ascent == 0 {
		return "", false
	}

	base := path.Dir(imp.SourceFile)
	for i := 1; i < ascent; i++ {
		if base == "." || base == "" {
			return "", false
		}
		base = path.Dir(base)
	}
	if base == "." {
		base = ""
	}
	if base == ".." || strings.HasPrefix(base, "../") || strings.HasPrefix(base, "/") {
		return "", false
	}
	return r.lookup(base, segments(rest, layout.Separator), layout)
}

// lookup checks candidate+suffix first, then candidate/initfile.
// With no segments only the package init file of dir is considered.
func (r *Resolver) lookup(dir string, segs []string, layout lang.ModuleLayout) (string, bool) {
	if len(segs) == 0 {
		return r.existing(path.Join(dir, layout.InitFile))
	}
	candidate := path.Join(append([]string{dir}, segs...)...)
	if p, ok := r.existing(candidate + layout.Suffix); ok {
		return p, true
	}
	return r.existing(path.Join(candidate, layout.InitFile))
}

func (r *Resolver) existing(p string) (string, bool) {
	if p == "" || strings.HasPrefix(p, "../") || p == ".." {
		return "", false
	}
	if !r.fs.IsFile(p) {
		return "", false
	}
	return p, true
}

func segments(module, sep string) []string {
	if module == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(module, sep) {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
