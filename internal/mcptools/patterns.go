package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/roach88/dojo/internal/dojo"
	"github.com/roach88/dojo/internal/graph"
	"github.com/roach88/dojo/internal/pattern"
)

// ─── IngestTool ─────────────────────────────────────────────────────────────

// IngestTool handles the dojo_ingest MCP tool.
type IngestTool struct {
	sys *dojo.System
}

// NewIngestTool creates an IngestTool.
func NewIngestTool(sys *dojo.System) *IngestTool {
	return &IngestTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_ingest.
func (t *IngestTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_ingest",
		mcp.WithDescription(
			"Record a discovered mathematical pattern. The payload is validated against the field's "+
				"constraints; equal payloads in the same field are rejected as duplicates.",
		),
		mcp.WithString("field",
			mcp.Required(),
			mcp.Description("Mathematical field, e.g. arithmetic, algebra, geometry"),
		),
		mcp.WithString("payload",
			mcp.Required(),
			mcp.Description("The pattern itself; opaque to the dojo"),
		),
		withActor(),
	)
}

// Handle processes the dojo_ingest tool call.
func (t *IngestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	field := req.GetString("field", "")
	if field == "" {
		return mcp.NewToolResultError("'field' is required"), nil
	}
	payload := req.GetString("payload", "")
	if payload == "" {
		return mcp.NewToolResultError("'payload' is required"), nil
	}
	actor, err := actorArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := t.sys.Ingest(ctx, actor, pattern.Field(field), payload)
	if err != nil {
		return errorResult("ingest", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Pattern %s recorded in %s", id, field)), nil
}

// ─── LinkTool ───────────────────────────────────────────────────────────────

// LinkTool handles the dojo_link MCP tool.
type LinkTool struct {
	sys *dojo.System
}

// NewLinkTool creates a LinkTool.
func NewLinkTool(sys *dojo.System) *LinkTool {
	return &LinkTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_link.
func (t *LinkTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_link",
		mcp.WithDescription(
			"Create a typed, weighted relationship between two validated patterns. "+
				"Both endpoints' impact scores are recomputed.",
		),
		mcp.WithNumber("source",
			mcp.Required(),
			mcp.Description("Source pattern ID"),
		),
		mcp.WithNumber("target",
			mcp.Required(),
			mcp.Description("Target pattern ID"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Relationship kind"),
			mcp.Enum(kindNames()...),
		),
		mcp.WithNumber("weight",
			mcp.Description("Non-negative relationship weight (default: 1)"),
		),
		withActor(),
	)
}

// Handle processes the dojo_link tool call.
func (t *LinkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := intArg(req, "source", 0)
	target := intArg(req, "target", 0)
	if source == 0 {
		return mcp.NewToolResultError("'source' is required"), nil
	}
	if target == 0 {
		return mcp.NewToolResultError("'target' is required"), nil
	}
	kind, err := graph.ParseKind(req.GetString("kind", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actor, err := actorArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	weight := req.GetFloat("weight", 1)
	id, err := t.sys.Link(ctx, actor, pattern.ID(source), pattern.ID(target), kind, weight)
	if err != nil {
		return errorResult("link", err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Relationship %s created: %s -[%s %.2f]-> %s\nScores: %s=%.2f %s=%.2f",
		id, pattern.ID(source), kind, weight, pattern.ID(target),
		pattern.ID(source), t.sys.Graph.Score(pattern.ID(source)),
		pattern.ID(target), t.sys.Graph.Score(pattern.ID(target)),
	)), nil
}

// ─── QueryTool ──────────────────────────────────────────────────────────────

// QueryTool handles the dojo_query MCP tool.
type QueryTool struct {
	sys *dojo.System
}

// NewQueryTool creates a QueryTool.
func NewQueryTool(sys *dojo.System) *QueryTool {
	return &QueryTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_query.
func (t *QueryTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_query",
		mcp.WithDescription(
			"List the validated patterns of a domain by impact score, each with the patterns it "+
				"relates to. Composite domains join fields with '+', e.g. 'algebra+geometry'.",
		),
		mcp.WithString("domain",
			mcp.Required(),
			mcp.Description("Field or composite domain"),
		),
		mcp.WithString("kinds",
			mcp.Description("Comma-separated relationship kinds to follow (default: all)"),
		),
		withActor(),
	)
}

// Handle processes the dojo_query tool call.
func (t *QueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	domain := req.GetString("domain", "")
	if domain == "" {
		return mcp.NewToolResultError("'domain' is required"), nil
	}
	actor, err := actorArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	kinds, err := kindsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rows, err := t.sys.Query(actor, domain, kinds...)
	if err != nil {
		return errorResult("query", err), nil
	}
	return jsonResult(rows)
}

// ─── InspectTool ────────────────────────────────────────────────────────────

// InspectTool handles the dojo_inspect MCP tool.
type InspectTool struct {
	sys *dojo.System
}

// NewInspectTool creates an InspectTool.
func NewInspectTool(sys *dojo.System) *InspectTool {
	return &InspectTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_inspect.
func (t *InspectTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_inspect",
		mcp.WithDescription(
			"Show one pattern with its incident relationships, its conflicts and the patterns "+
				"reachable from it. Traversal visits each pattern once, so cycles are cut.",
		),
		mcp.WithNumber("pattern",
			mcp.Required(),
			mcp.Description("Pattern ID"),
		),
		mcp.WithString("kinds",
			mcp.Description("Comma-separated relationship kinds to follow (default: all)"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Maximum traversal depth, 0 for unbounded (default: 0)"),
		),
		withActor(),
	)
}

// Handle processes the dojo_inspect tool call.
func (t *InspectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := intArg(req, "pattern", 0)
	if id == 0 {
		return mcp.NewToolResultError("'pattern' is required"), nil
	}
	kinds, err := kindsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actor, err := actorArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	n, err := t.sys.Inspect(ctx, actor, pattern.ID(id), kinds, int(intArg(req, "depth", 0)))
	if err != nil {
		return errorResult("inspect", err), nil
	}
	return jsonResult(n)
}

// ─── CompatibleTool ─────────────────────────────────────────────────────────

// CompatibleTool handles the dojo_compatible MCP tool.
type CompatibleTool struct {
	sys *dojo.System
}

// NewCompatibleTool creates a CompatibleTool.
func NewCompatibleTool(sys *dojo.System) *CompatibleTool {
	return &CompatibleTool{sys: sys}
}

// Definition returns the MCP tool definition for dojo_compatible.
func (t *CompatibleTool) Definition() mcp.Tool {
	return mcp.NewTool("dojo_compatible",
		mcp.WithDescription("Report whether two patterns may be used together, i.e. no conflicts-with edge joins them."),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First pattern ID")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second pattern ID")),
		withActor(),
	)
}

// Handle processes the dojo_compatible tool call.
func (t *CompatibleTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := intArg(req, "a", 0)
	b := intArg(req, "b", 0)
	if a == 0 || b == 0 {
		return mcp.NewToolResultError("'a' and 'b' are required"), nil
	}
	actor, err := actorArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ok, err := t.sys.Compatible(actor, pattern.ID(a), pattern.ID(b))
	if err != nil {
		return errorResult("compatible", err), nil
	}
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("%s and %s are in conflict", pattern.ID(a), pattern.ID(b))), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s and %s are compatible", pattern.ID(a), pattern.ID(b))), nil
}

// kindsArg parses the comma-separated "kinds" argument.
func kindsArg(req mcp.CallToolRequest) ([]graph.Kind, error) {
	var kinds []graph.Kind
	for name := range strings.SplitSeq(req.GetString("kinds", ""), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		k, err := graph.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func kindNames() []string {
	names := make([]string, len(graph.Kinds))
	for i, k := range graph.Kinds {
		names[i] = string(k)
	}
	return names
}
