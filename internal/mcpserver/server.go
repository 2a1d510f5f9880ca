// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Ansuz graph tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/tools"
)

const graphModelURI = "ansuz://graph-model"

// Server wraps the MCP server with the Ansuz tools.
type Server struct {
	mcp   *server.MCPServer
	tools *tools.Dispatcher
}

// New creates a new MCP server with every dispatcher tool registered.
func New(d *tools.Dispatcher, version string) *Server {
	s := &Server{tools: d}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	for _, def := range d.Definitions() {
		s.mcp.AddTool(toolFor(def), s.handle(def.Name))
	}

	s.mcp.AddTool(mcp.NewTool("get_graph_model",
		mcp.WithDescription("Returns how files, dependency edges and query results are modelled. "+
			"Read this before interpreting cycles, hubs or impact results."),
	), s.getGraphModel)

	s.mcp.AddResource(
		mcp.NewResource(graphModelURI, "Dependency Graph Model",
			mcp.WithResourceDescription("How Ansuz models files, dependency edges and query results."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGraphModelResource,
	)

	return s
}

func toolFor(def tools.Definition) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(def.Description)}
	for _, p := range def.Params {
		popts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			popts = append(popts, mcp.Required())
		}
		switch p.Type {
		case tools.TypeNumber:
			opts = append(opts, mcp.WithNumber(p.Name, popts...))
		case tools.TypeBoolean:
			opts = append(opts, mcp.WithBoolean(p.Name, popts...))
		case tools.TypeArray:
			popts = append(popts, mcp.Items(map[string]any{"type": "string"}))
			opts = append(opts, mcp.WithArray(p.Name, popts...))
		default:
			opts = append(opts, mcp.WithString(p.Name, popts...))
		}
	}
	return mcp.NewTool(def.Name, opts...)
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// handle adapts a dispatcher tool to an MCP handler. Tool failures are
// reported as error results, never as protocol errors.
func (s *Server) handle(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp := s.tools.Call(ctx, name, tools.Args(req.GetArguments()))
		if !resp.Success {
			return mcp.NewToolResultError(resp.Error), nil
		}
		out, err := json.MarshalIndent(resp.Data, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

func (s *Server) getGraphModel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(GraphModel), nil
}

func (s *Server) readGraphModelResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      graphModelURI,
			MIMEType: "text/markdown",
			Text:     GraphModel,
		},
	}, nil
}
