package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/roach88/dojo/internal/dojo"
	"github.com/roach88/dojo/internal/privilege"
)

// StatsTool handles the dojo_stats MCP tool.
type StatsTool struct {
	sys *dojo.System
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(sys *dojo.System) *StatsTool {
	return &StatsTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_stats",
		mcp.WithDescription(
			"Summarize the dojo: patterns per field and status, relationships per kind, "+
				"tasks and specialists per state, and privilege decisions per action.",
		),
	)
}

// Handle processes the dojo_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.sys.Stats())
}

// CapabilitiesTool handles the dojo_capabilities MCP tool.
type CapabilitiesTool struct {
	sys *dojo.System
}

// NewCapabilitiesTool creates a CapabilitiesTool.
func NewCapabilitiesTool(sys *dojo.System) *CapabilitiesTool {
	return &CapabilitiesTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_capabilities.
func (t *CapabilitiesTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_capabilities",
		mcp.WithDescription("List the actions a privilege level may and may not perform."),
		mcp.WithString("level",
			mcp.Required(),
			mcp.Description("Privilege level"),
			mcp.Enum(string(privilege.Sandboxed), string(privilege.Desktop)),
		),
	)
}

// Handle processes the dojo_capabilities tool call.
func (t *CapabilitiesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	level, err := privilege.ParseLevel(req.GetString("level", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(privilege.CapabilitiesOf(level))
}
