package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faultline/faultline/internal/engine"
)

// FaultlineServer wraps an MCP server with the troubleshooting tool surface.
type FaultlineServer struct {
	engine    *engine.Service
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFaultlineServer creates a FaultlineServer with all 7 tools registered.
func NewFaultlineServer(svc *engine.Service, logger *slog.Logger) *FaultlineServer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FaultlineServer{engine: svc, logger: logger}

	mcpSrv := server.NewMCPServer(
		"faultline",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Faultline is a turn-based equipment troubleshooting engine. Use faultline.compile to register flowcharts, faultline.start to open a guided session, faultline.act to apply button presses, faultline.ask to route free-text queries, faultline.accept/faultline.reject to review generated guides, and faultline.query to inspect gaps, guides, versions, and drafts."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FaultlineServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FaultlineServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FaultlineServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: compileTool(), Handler: s.handleCompile},
		{Tool: startTool(), Handler: s.handleStart},
		{Tool: actTool(), Handler: s.handleAct},
		{Tool: askTool(), Handler: s.handleAsk},
		{Tool: acceptTool(), Handler: s.handleAccept},
		{Tool: rejectTool(), Handler: s.handleReject},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func compileTool() mcp.Tool {
	return mcp.NewTool("faultline.compile",
		mcp.WithDescription("Compile flowchart source and register it as the active version for its topic"),
		mcp.WithString("source", mcp.Required(), mcp.Description("Flowchart DSL source")),
	)
}

func startTool() mcp.Tool {
	return mcp.NewTool("faultline.start",
		mcp.WithDescription("Open a guided troubleshooting session on the latest version of a topic"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Chat session identifier")),
		mcp.WithString("message_id", mcp.Required(), mcp.Description("Message to render into; later turns edit it in place")),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Equipment topic to troubleshoot")),
	)
}

func actTool() mcp.Tool {
	return mcp.NewTool("faultline.act",
		mcp.WithDescription("Apply a button press to a session: select an edge, go back, or restart"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Chat session identifier")),
		mcp.WithString("message_id", mcp.Required(), mcp.Description("Message carrying the pressed button")),
		mcp.WithString("token", mcp.Required(), mcp.Description("Navigation token from the pressed render")),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("select", "back", "restart", "save", "referral"),
			mcp.Description("Action kind"),
		),
		mcp.WithString("label", mcp.Description("Selected edge label (required for select)")),
		mcp.WithString("topic", mcp.Description("Reset topic when the token cannot be restored")),
	)
}

func askTool() mcp.Tool {
	return mcp.NewTool("faultline.ask",
		mcp.WithDescription("Route a free-text troubleshooting query: lookup, research, clarify, or escalate"),
		mcp.WithString("equipment", mcp.Required(), mcp.Description("Equipment descriptor, e.g. 'Bosch WAT28400 washing machine'")),
		mcp.WithString("problem", mcp.Required(), mcp.Description("Problem description in the user's words")),
		mcp.WithString("context", mcp.Description("Additional context: symptoms, history, environment")),
	)
}

func acceptTool() mcp.Tool {
	return mcp.NewTool("faultline.accept",
		mcp.WithDescription("Accept a generated guide and promote it to a draft graph fragment"),
		mcp.WithString("guide_id", mcp.Required(), mcp.Description("ID of the guide to accept")),
		mcp.WithBoolean("activate", mcp.Description("Also register the draft as a live graph version")),
	)
}

func rejectTool() mcp.Tool {
	return mcp.NewTool("faultline.reject",
		mcp.WithDescription("Reject a generated guide; the knowledge gap record is kept"),
		mcp.WithString("guide_id", mcp.Required(), mcp.Description("ID of the guide to reject")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("faultline.query",
		mcp.WithDescription("List knowledge gaps, guides, graph versions, or drafts"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("gaps", "guides", "versions", "drafts"),
			mcp.Description("Resource type to list"),
		),
		mcp.WithObject("filter", mcp.Description("Resource-specific filters: status, route, topic, overdue_only, since, limit")),
	)
}
