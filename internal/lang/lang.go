// Package lang maps file extensions to language tags and describes how each
// language lays modules out on disk.
package lang

import (
	"path"
	"strings"
)

// Other is the tag for files whose extension maps to no known source language.
const Other = "other"

const (
	Python     = "python"
	Go         = "go"
	JavaScript = "javascript"
	TypeScript = "typescript"
	Java       = "java"
	Rust       = "rust"
	Ruby       = "ruby"
	C          = "c"
	CPP        = "cpp"
	CSharp     = "csharp"
	Kotlin     = "kotlin"
	Swift      = "swift"
	PHP        = "php"
	Scala      = "scala"
)

var extensions = map[string]string{
	".py":    Python,
	".pyi":   Python,
	".go":    Go,
	".js":    JavaScript,
	".jsx":   JavaScript,
	".mjs":   JavaScript,
	".cjs":   JavaScript,
	".ts":    TypeScript,
	".tsx":   TypeScript,
	".java":  Java,
	".rs":    Rust,
	".rb":    Ruby,
	".c":     C,
	".h":     C,
	".cc":    CPP,
	".cpp":   CPP,
	".cxx":   CPP,
	".hpp":   CPP,
	".cs":    CSharp,
	".kt":    Kotlin,
	".kts":   Kotlin,
	".swift": Swift,
	".php":   PHP,
	".scala": Scala,
}

// Detect returns the language tag for a path based on its extension.
func Detect(p string) string {
	if l, ok := extensions[strings.ToLower(path.Ext(p))]; ok {
		return l
	}
	return Other
}

// Known reports whether p maps to a supported source language.
func Known(p string) bool {
	return Detect(p) != Other
}

// ModuleLayout describes how a dotted module identifier maps onto files.
type ModuleLayout struct {
	// Suffix is appended to a module path to name its source file.
	Suffix string
	// InitFile marks a directory as a package.
	InitFile string
	// Separator splits module identifiers into path segments.
	Separator string
}

var moduleLayouts = map[string]ModuleLayout{
	Python: {Suffix: ".py", InitFile: "__init__.py", Separator: "."},
}

// Layout returns the module layout for a language, if it has one.
func Layout(language string) (ModuleLayout, bool) {
	s, ok := moduleLayouts[language]
	return s, ok
}
