package tools

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array" // of strings
)

// Param describes one tool argument.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
}

// Definition describes a tool for transports that advertise a schema.
type Definition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
}

var snapshotParam = Param{Name: "snapshotId", Type: TypeString, Description: "Snapshot to query", Required: true}

var definitions = []Definition{
	{
		Name:        GetFileDependencies,
		Description: "List the files a file imports",
		Params: []Param{
			snapshotParam,
			{Name: "filePath", Type: TypeString, Description: "Repository-relative file path", Required: true},
		},
	},
	{
		Name:        GetFileDependents,
		Description: "List the files that import a file",
		Params: []Param{
			snapshotParam,
			{Name: "filePath", Type: TypeString, Description: "Repository-relative file path", Required: true},
		},
	},
	{
		Name:        GetArchitecturalHubs,
		Description: "List files imported by at least threshold other files, most depended-on first",
		Params: []Param{
			snapshotParam,
			{Name: "threshold", Type: TypeNumber, Description: "Minimum dependent count (default 5)"},
		},
	},
	{
		Name:        GetCircularDependencies,
		Description: "List distinct import cycles",
		Params:      []Param{snapshotParam},
	},
	{
		Name:        ListFiles,
		Description: "List indexed files sorted by path",
		Params: []Param{
			snapshotParam,
			{Name: "language", Type: TypeString, Description: "Only files of this language"},
		},
	},
	{
		Name:        GetImpactAnalysis,
		Description: "List files transitively affected by a change to a file, grouped by depth",
		Params: []Param{
			snapshotParam,
			{Name: "filePath", Type: TypeString, Description: "Repository-relative file path", Required: true},
			{Name: "maxDepth", Type: TypeNumber, Description: "Maximum traversal depth (default 3)"},
		},
	},
	{
		Name:        IndexRepository,
		Description: "Index a repository into a new snapshot",
		Params: []Param{
			{Name: "rootPath", Type: TypeString, Description: "Repository root directory", Required: true},
			{Name: "files", Type: TypeArray, Description: "Explicit file list; skips discovery"},
			{Name: "includePatterns", Type: TypeArray, Description: "Glob patterns a file must match"},
			{Name: "excludePatterns", Type: TypeArray, Description: "Glob patterns that drop a file"},
			{Name: "respectVersionControlIgnore", Type: TypeBoolean, Description: "List files through git (default true)"},
			{Name: "maxFileBytes", Type: TypeNumber, Description: "Skip files larger than this (default 5000000)"},
		},
	},
	{
		Name:        ApplyDelta,
		Description: "Re-index changed files and drop removed files of an existing snapshot",
		Params: []Param{
			snapshotParam,
			{Name: "rootPath", Type: TypeString, Description: "Repository root (defaults to the snapshot's)"},
			{Name: "changedFiles", Type: TypeArray, Description: "Files to re-index"},
			{Name: "removedFiles", Type: TypeArray, Description: "Files to drop"},
		},
	},
	{
		Name:        ListSnapshots,
		Description: "List snapshots, most recently updated first",
		Params: []Param{
			{Name: "rootPath", Type: TypeString, Description: "Only snapshots of this root"},
		},
	},
}

// Definitions returns the schema of every tool.
func (d *Dispatcher) Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}
