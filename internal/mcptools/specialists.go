package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/dojo"
)

// ─── TrainTool ──────────────────────────────────────────────────────────────

// TrainTool handles the dojo_train MCP tool.
type TrainTool struct {
	sys *dojo.System
}

// NewTrainTool creates a TrainTool.
func NewTrainTool(sys *dojo.System) *TrainTool {
	return &TrainTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_train.
func (t *TrainTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_train",
		mcp.WithDescription(
			"Spawn and train a specialist for a domain from the graph's applicable patterns, then "+
				"benchmark it. Desktop callers get a deployed specialist; sandboxed training halts "+
				"at benchmarking until dojo_deploy is called with desktop privilege.",
		),
		mcp.WithString("domain",
			mcp.Required(),
			mcp.Description("Field or composite domain"),
		),
		withActor(),
	)
}

// Handle processes the dojo_train tool call.
func (t *TrainTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	domain := req.GetString("domain", "")
	if domain == "" {
		return mcp.NewToolResultError("'domain' is required"), nil
	}
	actor, err := actorArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := t.sys.Train(ctx, actor, domain)
	if err != nil {
		if id != "" {
			return errorResult(fmt.Sprintf("training specialist %s", id), err), nil
		}
		return errorResult("train", err), nil
	}

	sp, err := t.sys.Arena.Status(id)
	if err != nil {
		return errorResult("status", err), nil
	}
	return jsonResult(sp)
}

// ─── DeployTool ─────────────────────────────────────────────────────────────

// DeployTool handles the dojo_deploy MCP tool.
type DeployTool struct {
	sys *dojo.System
}

// NewDeployTool creates a DeployTool.
func NewDeployTool(sys *dojo.System) *DeployTool {
	return &DeployTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_deploy.
func (t *DeployTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_deploy",
		mcp.WithDescription("Promote a specialist halted at benchmarking to deployed. Requires desktop privilege."),
		mcp.WithString("specialist_id",
			mcp.Required(),
			mcp.Description("Specialist ID"),
		),
		withActor(),
	)
}

// Handle processes the dojo_deploy tool call.
func (t *DeployTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("specialist_id", "")
	if id == "" {
		return mcp.NewToolResultError("'specialist_id' is required"), nil
	}
	actor, err := actorArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := t.sys.Deploy(ctx, actor, arena.SpecialistID(id)); err != nil {
		return errorResult("deploy", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Specialist %s deployed", id)), nil
}

// ─── BenchmarkTool ──────────────────────────────────────────────────────────

// BenchmarkTool handles the dojo_benchmark MCP tool.
type BenchmarkTool struct {
	sys *dojo.System
}

// NewBenchmarkTool creates a BenchmarkTool.
func NewBenchmarkTool(sys *dojo.System) *BenchmarkTool {
	return &BenchmarkTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_benchmark.
func (t *BenchmarkTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_benchmark",
		mcp.WithDescription(
			"Re-run the compression benchmark for a specialist halted at benchmarking. "+
				"A ratio below the minimum retires the specialist.",
		),
		mcp.WithString("specialist_id",
			mcp.Required(),
			mcp.Description("Specialist ID"),
		),
		withActor(),
	)
}

// Handle processes the dojo_benchmark tool call.
func (t *BenchmarkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("specialist_id", "")
	if id == "" {
		return mcp.NewToolResultError("'specialist_id' is required"), nil
	}
	actor, err := actorArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := t.sys.Benchmark(ctx, actor, arena.SpecialistID(id)); err != nil {
		return errorResult("benchmark", err), nil
	}
	sp, err := t.sys.Arena.Status(arena.SpecialistID(id))
	if err != nil {
		return errorResult("status", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Specialist %s ratio %.2f", id, sp.CompressionRatio)), nil
}

// ─── RetireTool ─────────────────────────────────────────────────────────────

// RetireTool handles the dojo_retire MCP tool.
type RetireTool struct {
	sys *dojo.System
}

// NewRetireTool creates a RetireTool.
func NewRetireTool(sys *dojo.System) *RetireTool {
	return &RetireTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_retire.
func (t *RetireTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_retire",
		mcp.WithDescription(
			"Retire a specialist. A specialist in the middle of training is retired as soon as "+
				"its current step completes.",
		),
		mcp.WithString("specialist_id",
			mcp.Required(),
			mcp.Description("Specialist ID"),
		),
	)
}

// Handle processes the dojo_retire tool call.
func (t *RetireTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("specialist_id", "")
	if id == "" {
		return mcp.NewToolResultError("'specialist_id' is required"), nil
	}

	if err := t.sys.Retire(ctx, arena.SpecialistID(id)); err != nil {
		return errorResult("retire", err), nil
	}
	sp, err := t.sys.Arena.Status(arena.SpecialistID(id))
	if err != nil {
		return errorResult("status", err), nil
	}
	if sp.RetirePending {
		return mcp.NewToolResultText(fmt.Sprintf("Specialist %s will retire when its current step completes", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Specialist %s retired", id)), nil
}

// ─── StatusTool ─────────────────────────────────────────────────────────────

// StatusTool handles the dojo_status MCP tool.
type StatusTool struct {
	sys *dojo.System
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(sys *dojo.System) *StatusTool {
	return &StatusTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_status",
		mcp.WithDescription("Show a specialist's state, privilege level, compression ratio and trained patterns."),
		mcp.WithString("specialist_id",
			mcp.Required(),
			mcp.Description("Specialist ID"),
		),
	)
}

// Handle processes the dojo_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("specialist_id", "")
	if id == "" {
		return mcp.NewToolResultError("'specialist_id' is required"), nil
	}

	sp, err := t.sys.Specialist(ctx, arena.SpecialistID(id))
	if err != nil {
		return errorResult("status", err), nil
	}
	return jsonResult(sp)
}

// ─── ListTool ───────────────────────────────────────────────────────────────

// ListTool handles the dojo_list_specialists MCP tool.
type ListTool struct {
	sys *dojo.System
}

// NewListTool creates a ListTool.
func NewListTool(sys *dojo.System) *ListTool {
	return &ListTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_list_specialists.
func (t *ListTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_list_specialists",
		mcp.WithDescription("List specialists, optionally for a single domain, oldest first."),
		mcp.WithString("domain",
			mcp.Description("Only list specialists of this domain"),
		),
	)
}

// Handle processes the dojo_list_specialists tool call.
func (t *ListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.sys.Arena.Specialists(req.GetString("domain", "")))
}
