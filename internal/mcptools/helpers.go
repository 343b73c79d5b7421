// Package mcptools exposes the dojo ingestion, query and control boundary
// as MCP tools.
//
// Each tool follows the same shape:
//   - A struct holding the *dojo.System, injected via constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() processes the request and returns a result
//
// Domain failures (validation, privilege, busy) are returned as tool
// errors, never as Go errors, so the client sees the reason. Tools that act
// on behalf of a caller take an "actor" privilege level that defaults to
// sandboxed.
package mcptools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/roach88/dojo/internal/privilege"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int64) int64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int64(v)
}

// actorArg reads the "actor" privilege level, defaulting to sandboxed.
func actorArg(req mcp.CallToolRequest) (privilege.Level, error) {
	return privilege.ParseLevel(req.GetString("actor", string(privilege.Sandboxed)))
}

// withActor is the shared "actor" parameter.
func withActor() mcp.ToolOption {
	return mcp.WithString("actor",
		mcp.Description("Privilege level of the caller (default: sandboxed)"),
		mcp.Enum(string(privilege.Sandboxed), string(privilege.Desktop)),
	)
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports a failed operation to the client.
func errorResult(op string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}
