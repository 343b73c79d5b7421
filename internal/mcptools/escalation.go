package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/dojo"
)

// ─── RequestEscalationTool ──────────────────────────────────────────────────

// RequestEscalationTool handles the dojo_request_escalation MCP tool.
type RequestEscalationTool struct {
	sys *dojo.System
}

// NewRequestEscalationTool creates a RequestEscalationTool.
func NewRequestEscalationTool(sys *dojo.System) *RequestEscalationTool {
	return &RequestEscalationTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_request_escalation.
func (t *RequestEscalationTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_request_escalation",
		mcp.WithDescription(
			"Ask for a specialist to run at desktop privilege. Any actor may ask; "+
				"the request stays pending until a desktop actor approves it with dojo_approve_escalation.",
		),
		mcp.WithString("specialist_id",
			mcp.Required(),
			mcp.Description("Specialist ID"),
		),
		mcp.WithString("reason",
			mcp.Description("Why the specialist needs the higher level"),
		),
		withActor(),
	)
}

// Handle processes the dojo_request_escalation tool call.
func (t *RequestEscalationTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("specialist_id", "")
	if id == "" {
		return mcp.NewToolResultError("'specialist_id' is required"), nil
	}
	actor, err := actorArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	e, err := t.sys.RequestEscalation(ctx, actor, arena.SpecialistID(id), req.GetString("reason", ""))
	if err != nil {
		return errorResult("request escalation", err), nil
	}
	return jsonResult(e)
}

// ─── ApproveEscalationTool ──────────────────────────────────────────────────

// ApproveEscalationTool handles the dojo_approve_escalation MCP tool.
type ApproveEscalationTool struct {
	sys *dojo.System
}

// NewApproveEscalationTool creates an ApproveEscalationTool.
func NewApproveEscalationTool(sys *dojo.System) *ApproveEscalationTool {
	return &ApproveEscalationTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_approve_escalation.
func (t *ApproveEscalationTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_approve_escalation",
		mcp.WithDescription("Approve a pending escalation request and raise the specialist's level. Requires desktop privilege."),
		mcp.WithString("request_id",
			mcp.Required(),
			mcp.Description("Escalation request ID returned by dojo_request_escalation"),
		),
		withActor(),
	)
}

// Handle processes the dojo_approve_escalation tool call.
func (t *ApproveEscalationTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("request_id", "")
	if id == "" {
		return mcp.NewToolResultError("'request_id' is required"), nil
	}
	actor, err := actorArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	e, err := t.sys.ApproveEscalation(ctx, actor, id)
	if err != nil {
		return errorResult("approve escalation", err), nil
	}
	return jsonResult(e)
}
