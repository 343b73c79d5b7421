package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/dojo"
)

// ─── SubmitTool ─────────────────────────────────────────────────────────────

// SubmitTool handles the dojo_submit_task MCP tool.
type SubmitTool struct {
	sys *dojo.System
}

// NewSubmitTool creates a SubmitTool.
func NewSubmitTool(sys *dojo.System) *SubmitTool {
	return &SubmitTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_submit_task.
func (t *SubmitTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_submit_task",
		mcp.WithDescription(
			"Queue a task for a domain. A worker assigns it to the domain's specialist, "+
				"training one first if none exists. Tasks of one domain run in submission order.",
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What the task asks for"),
		),
		mcp.WithString("domain",
			mcp.Required(),
			mcp.Description("Field or composite domain"),
		),
		mcp.WithString("priority",
			mcp.Description("Informational priority (default: medium)"),
			mcp.Enum(string(arena.PriorityHigh), string(arena.PriorityMedium), string(arena.PriorityLow)),
		),
		withActor(),
	)
}

// Handle processes the dojo_submit_task tool call.
func (t *SubmitTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description := req.GetString("description", "")
	if description == "" {
		return mcp.NewToolResultError("'description' is required"), nil
	}
	domain := req.GetString("domain", "")
	if domain == "" {
		return mcp.NewToolResultError("'domain' is required"), nil
	}
	priority, err := arena.ParsePriority(req.GetString("priority", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actor, err := actorArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := t.sys.Arena.Submit(ctx, arena.TaskRequest{
		Description: description,
		Domain:      domain,
		Privilege:   actor,
		Priority:    priority,
	})
	if err != nil {
		return errorResult("submit", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s queued (queue depth %d)", id, t.sys.Arena.Stats().QueueDepth)), nil
}

// ─── CancelTool ─────────────────────────────────────────────────────────────

// CancelTool handles the dojo_cancel_task MCP tool.
type CancelTool struct {
	sys *dojo.System
}

// NewCancelTool creates a CancelTool.
func NewCancelTool(sys *dojo.System) *CancelTool {
	return &CancelTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_cancel_task.
func (t *CancelTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_cancel_task",
		mcp.WithDescription("Cancel a task that is still queued. Assigned tasks cannot be cancelled."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	)
}

// Handle processes the dojo_cancel_task tool call.
func (t *CancelTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("task_id", "")
	if id == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}

	if err := t.sys.Arena.Cancel(ctx, arena.TaskID(id)); err != nil {
		return errorResult("cancel", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s cancelled", id)), nil
}

// ─── TaskTool ───────────────────────────────────────────────────────────────

// TaskTool handles the dojo_task MCP tool.
type TaskTool struct {
	sys *dojo.System
}

// NewTaskTool creates a TaskTool.
func NewTaskTool(sys *dojo.System) *TaskTool {
	return &TaskTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_task.
func (t *TaskTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_task",
		mcp.WithDescription("Show a task's state, assigned specialist and error, if any."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	)
}

// Handle processes the dojo_task tool call.
func (t *TaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("task_id", "")
	if id == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}

	task, err := t.sys.Task(ctx, arena.TaskID(id))
	if err != nil {
		return errorResult("task", err), nil
	}
	return jsonResult(task)
}
