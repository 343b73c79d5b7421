package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/roach88/dojo/internal/dojo"
)

// Tool is an MCP tool handler.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Tools returns every dojo tool bound to sys.
func Tools(sys *dojo.System) []Tool {
	return []Tool{
		NewIngestTool(sys),
		NewLinkTool(sys),
		NewQueryTool(sys),
		NewInspectTool(sys),
		NewCompatibleTool(sys),
		NewTrainTool(sys),
		NewDeployTool(sys),
		NewBenchmarkTool(sys),
		NewRetireTool(sys),
		NewStatusTool(sys),
		NewListTool(sys),
		NewRequestEscalationTool(sys),
		NewApproveEscalationTool(sys),
		NewSubmitTool(sys),
		NewCancelTool(sys),
		NewTaskTool(sys),
		NewStatsTool(sys),
		NewCapabilitiesTool(sys),
	}
}

// NewServer creates an MCP server with every dojo tool registered.
func NewServer(sys *dojo.System, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"dojo",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	for _, t := range Tools(sys) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

const instructions = `Dojo keeps a graph of mathematical patterns and trains domain specialists from it.

Typical flow: dojo_ingest patterns, dojo_link them, dojo_query a domain, then dojo_train
or dojo_submit_task. Actions default to the sandboxed privilege level; deploying a
specialist requires actor "desktop". A sandboxed specialist can be raised with
dojo_request_escalation followed by a desktop dojo_approve_escalation.`
