package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/blueprint/internal/engine"
	"github.com/rendis/blueprint/internal/nodes"
	"github.com/rendis/blueprint/internal/store"
	"github.com/rendis/blueprint/pkg/schema"
)

// KindCatalog lists the registered node kinds.
type KindCatalog interface {
	List() []nodes.KindInfo
}

// ArtifactHistory lists recent compile artifacts.
type ArtifactHistory interface {
	ListArtifacts(ctx context.Context, filter store.ArtifactFilter) ([]*schema.CompiledArtifact, error)
}

// BlueprintServerDeps holds the dependencies for creating a BlueprintServer.
type BlueprintServerDeps struct {
	Compiler *engine.Compiler
	Kinds    KindCatalog
	History  ArtifactHistory // optional; blueprint.history errors without it
	Logger   *slog.Logger
}

// BlueprintServer wraps an MCP server with the blueprint compiler tools.
type BlueprintServer struct {
	compiler  *engine.Compiler
	kinds     KindCatalog
	history   ArtifactHistory
	logger    *slog.Logger
	notifier  *Notifier
	mcpServer *server.MCPServer
}

// NewBlueprintServer creates a BlueprintServer with all 5 tools registered.
func NewBlueprintServer(deps BlueprintServerDeps) *BlueprintServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &BlueprintServer{
		compiler: deps.Compiler,
		kinds:    deps.Kinds,
		history:  deps.History,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"blueprint",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Blueprint compiles visual node graphs into source text. Use blueprint.kinds to discover node kinds and their ports, blueprint.validate to check a graph, blueprint.compile to generate code, blueprint.diagram to visualize a graph and blueprint.history to list past compiles."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewNotifier(mcpSrv)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *BlueprintServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *BlueprintServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *BlueprintServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: compileTool(), Handler: s.handleCompile},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: kindsTool(), Handler: s.handleKinds},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: historyTool(), Handler: s.handleHistory},
	}
}

// --- Tool definitions ---

func compileTool() mcp.Tool {
	return mcp.NewTool("blueprint.compile",
		mcp.WithDescription("Compile a blueprint graph into source text"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Graph definition: {name, nodes: [{id, kind, config}], edges: [{from, from_port, to, to_port}]}")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("blueprint.validate",
		mcp.WithDescription("Validate a blueprint graph without compiling it"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Graph definition object")),
	)
}

func kindsTool() mcp.Tool {
	return mcp.NewTool("blueprint.kinds",
		mcp.WithDescription("List registered node kinds and their ports"),
		mcp.WithString("category", mcp.Description("Only list kinds of this category")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("blueprint.diagram",
		mcp.WithDescription("Render a blueprint graph as a diagram. Returns Mermaid flowchart syntax, ASCII art, or a base64-encoded PNG image"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Graph definition object")),
		mcp.WithString("format",
			mcp.Enum("mermaid", "ascii", "image"),
			mcp.Description("Output format (default: mermaid)"),
		),
		mcp.WithString("include_status", mcp.Description("Compile first and overlay the outcome: true or false (default: false)")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("blueprint.history",
		mcp.WithDescription("List recent compile artifacts, newest first"),
		mcp.WithString("graph_name", mcp.Description("Only artifacts of this graph")),
		mcp.WithString("status", mcp.Enum("compiled", "failed", "cancelled"), mcp.Description("Only artifacts that ended in this state")),
		mcp.WithString("limit", mcp.Description("Maximum number of artifacts (default: 20)")),
	)
}
