// Package mcpserver exposes the todo tools over the Model Context Protocol so
// an external agent can drive the list directly. Every tool of the configured
// catalog is published with the same name, description and parameters the
// orchestrator shows its own model. An optional "instruct" tool forwards a
// free-text instruction through the full conversation loop.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hupe1980/todomesh"
	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/logging"
	"github.com/hupe1980/todomesh/tool"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// InstructToolName is the name of the tool that runs a whole conversation turn.
const InstructToolName = "instruct"

// Options configures the Server.
type Options struct {
	Name    string
	Version string
	// Mesh enables the instruct tool when non-nil.
	Mesh   *todomesh.TodoMesh
	Logger logging.Logger
}

// Server wraps an MCP server publishing a tool registry.
type Server struct {
	mcp      *server.MCPServer
	registry *tool.Registry
	mesh     *todomesh.TodoMesh
	logger   logging.Logger
	tools    []server.ServerTool
}

// New builds a Server publishing every tool in registry.
func New(registry *tool.Registry, optFns ...func(o *Options)) *Server {
	opts := Options{Name: "todomesh", Version: Version, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		mcp: server.NewMCPServer(
			opts.Name,
			opts.Version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
			server.WithInstructions(instructions(registry)),
		),
		registry: registry,
		mesh:     opts.Mesh,
		logger:   logging.OrNoOp(opts.Logger),
	}

	for _, t := range registry.Tools() {
		s.tools = append(s.tools, server.ServerTool{Tool: Definition(t), Handler: s.dispatchHandler(t.Name())})
	}
	if s.mesh != nil {
		s.tools = append(s.tools, server.ServerTool{Tool: instructDefinition(), Handler: s.handleInstruct})
	}
	s.mcp.AddTools(s.tools...)
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Tools returns the published tools with their handlers.
func (s *Server) Tools() []server.ServerTool { return s.tools }

// ServeStdio serves MCP over stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// Definition converts a tool's JSON Schema parameters into an MCP tool.
func Definition(t tool.Tool) mcp.Tool {
	params := t.Parameters()
	required := map[string]bool{}
	for _, name := range stringSlice(params["required"]) {
		required[name] = true
	}

	props, _ := params["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	toolOpts := []mcp.ToolOption{mcp.WithDescription(t.Description())}
	for _, name := range names {
		prop, _ := props[name].(map[string]any)

		var propOpts []mcp.PropertyOption
		if desc, ok := prop["description"].(string); ok && desc != "" {
			propOpts = append(propOpts, mcp.Description(desc))
		}
		if required[name] {
			propOpts = append(propOpts, mcp.Required())
		}

		switch prop["type"] {
		case "number", "integer":
			toolOpts = append(toolOpts, mcp.WithNumber(name, propOpts...))
		case "boolean":
			toolOpts = append(toolOpts, mcp.WithBoolean(name, propOpts...))
		case "array":
			toolOpts = append(toolOpts, mcp.WithArray(name, propOpts...))
		case "object":
			toolOpts = append(toolOpts, mcp.WithObject(name, propOpts...))
		default:
			toolOpts = append(toolOpts, mcp.WithString(name, propOpts...))
		}
	}
	return mcp.NewTool(t.Name(), toolOpts...)
}

func (s *Server) dispatchHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		res, err := s.registry.Dispatch(ctx, core.FunctionCall{Name: name, Arguments: string(raw)})
		if err != nil {
			s.logger.Error("mcp.tool.failed", "tool", name, "error", err.Error())
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res.Err != nil {
			return mcp.NewToolResultError(res.Content), nil
		}
		return mcp.NewToolResultText(res.Content), nil
	}
}

func instructDefinition() mcp.Tool {
	return mcp.NewTool(InstructToolName,
		mcp.WithDescription("Run a free-text instruction against the todo list, e.g. 'add buy milk' or 'what is left?'. Returns the assistant's answer and the current list."),
		mcp.WithString("instruction",
			mcp.Required(),
			mcp.Description("What to do with the list"),
		),
		mcp.WithString("session_id",
			mcp.Description("Conversation to continue (default: default)"),
		),
	)
}

func (s *Server) handleInstruct(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instruction := req.GetString("instruction", "")
	if instruction == "" {
		return mcp.NewToolResultError("'instruction' is required"), nil
	}

	reply, err := s.mesh.Handle(ctx, req.GetString("session_id", ""), instruction)
	if err != nil {
		s.logger.Error("mcp.instruct.failed", "error", err.Error())
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := json.Marshal(struct {
		SessionID string      `json:"session_id"`
		Answer    string      `json:"answer"`
		Items     []core.Item `json:"items"`
	}{reply.SessionID, reply.Answer, reply.Items})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func instructions(registry *tool.Registry) string {
	return fmt.Sprintf("todomesh manages a single todo list. Items are matched by meaning, so a rough description is enough to mark or remove one. Tools: %v.", registry.Names())
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
