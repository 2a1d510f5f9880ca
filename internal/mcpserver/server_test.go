package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/indexer"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/snapshot"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/tools"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := snapshot.New(logger)
	ix := indexer.New(store, parser.NewRegistry(), logger, indexer.WithRespectVCSIgnore(false))
	d, err := tools.NewDispatcher(store, ix, logger, 0)
	if err != nil {
		t.Fatal(err)
	}
	root, _ := testutil.TestRepo(t, map[string]string{
		"x.py": "import y\n",
		"y.py": "",
	})
	return New(d, "test"), root
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := srv.handle(name)(context.Background(), req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func indexRepo(t *testing.T, srv *Server, root string) string {
	t.Helper()
	r := callTool(t, srv, tools.IndexRepository, map[string]interface{}{"rootPath": root})
	if r.IsError {
		t.Fatalf("index_repository failed: %s", resultText(r))
	}
	var res indexer.Result
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return res.SnapshotID
}

func TestIndexAndQuery(t *testing.T) {
	srv, root := testServer(t)
	id := indexRepo(t, srv, root)

	r := callTool(t, srv, tools.GetFileDependents, map[string]interface{}{
		"snapshotId": id,
		"filePath":   "y.py",
	})
	var got tools.DependentsResult
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.File != "y.py" || got.Count != 1 || got.ImportedBy[0] != "x.py" {
		t.Errorf("dependents = %+v", got)
	}
}

func TestUnknownSnapshotIsErrorResult(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, tools.ListFiles, map[string]interface{}{"snapshotId": "nope"})
	if !r.IsError {
		t.Error("expected error result for unknown snapshot")
	}
	if !strings.Contains(resultText(r), "not found") {
		t.Errorf("error text = %q", resultText(r))
	}
}

func TestMissingArgumentIsErrorResult(t *testing.T) {
	srv, root := testServer(t)
	id := indexRepo(t, srv, root)
	r := callTool(t, srv, tools.GetImpactAnalysis, map[string]interface{}{"snapshotId": id})
	if !r.IsError {
		t.Error("expected error result for missing filePath")
	}
}

func TestToolSchema(t *testing.T) {
	srv, _ := testServer(t)
	for _, def := range srv.tools.Definitions() {
		tool := toolFor(def)
		if tool.Name != def.Name {
			t.Errorf("tool name = %s, want %s", tool.Name, def.Name)
		}
		var required int
		for _, p := range def.Params {
			if _, ok := tool.InputSchema.Properties[p.Name]; !ok {
				t.Errorf("%s: missing property %s", def.Name, p.Name)
			}
			if p.Required {
				required++
			}
		}
		if len(tool.InputSchema.Required) != required {
			t.Errorf("%s: required = %v", def.Name, tool.InputSchema.Required)
		}
	}
}

func TestGraphModel(t *testing.T) {
	srv, _ := testServer(t)
	r, err := srv.getGraphModel(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resultText(r), "Cycles") {
		t.Error("graph model text missing")
	}
}
