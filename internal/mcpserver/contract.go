package mcpserver

// GraphModel describes how snapshots and query results should be read by
// LLM consumers.
const GraphModel = `# Ansuz Dependency Graph Model

## Snapshots

- ` + "`" + `index_repository` + "`" + ` captures a repository root into a snapshot and returns its ` + "`" + `snapshotId` + "`" + `.
- Every query tool takes a ` + "`" + `snapshotId` + "`" + `. Re-indexing creates a new snapshot; the old one is unchanged.
- ` + "`" + `apply_delta` + "`" + ` updates an existing snapshot in place for the listed files only.
- ` + "`" + `list_snapshots` + "`" + ` lists snapshots, most recently updated first.

## Files and edges

1. File paths are relative to the repository root and use forward slashes.
2. An edge A -> B means file A imports something that resolved to file B.
3. Edges only connect indexed files. Imports of external packages produce no edge.
4. Resolution is conservative: a missing edge means "not found on disk", not "no dependency".
5. A file never depends on itself.

## Query results

- **Dependencies / dependents** are sorted by path.
- **Hubs** are ordered by dependent count (highest first), then by path. ` + "`" + `threshold=0` + "`" + ` returns every file.
- **Cycles** start at their lexicographically smallest file and repeat it at the end:
  ` + "`" + `["a.py", "b.py", "a.py"]` + "`" + `. Each cycle is reported once.
- **Impact analysis** groups the files that (transitively) import the changed file by the
  depth at which they were first reached. The changed file itself is never listed.
  ` + "`" + `maxDepth=0` + "`" + ` returns no levels.

## Errors

A failed call returns an error result naming the cause: unknown tool, unknown snapshot,
or a missing or malformed argument.
`
