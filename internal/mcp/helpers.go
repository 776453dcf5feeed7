// Package mcp provides the MCP server implementation for ABAP ADT tools.
// helpers.go contains shared utility functions used across handlers.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oisee/abap-adt-mcp/pkg/adt"
)

// newToolResultError creates an error result for tool execution failures.
func newToolResultError(message string) *mcp.CallToolResult {
	result := mcp.NewToolResultText(message)
	result.IsError = true
	return result
}

// invalidParamsMeta marks a result produced by argument validation. Such
// results are answered with a JSON-RPC invalid-params error on the wire.
const invalidParamsMeta = "invalidParams"

// newInvalidParamsResult creates an error result for malformed arguments.
func newInvalidParamsResult(message string) *mcp.CallToolResult {
	result := newToolResultError(message)
	result.Meta = map[string]any{invalidParamsMeta: true}
	return result
}

// isInvalidParams reports whether result came from argument validation.
func isInvalidParams(result *mcp.CallToolResult) bool {
	if result == nil {
		return false
	}
	marked, _ := result.Meta[invalidParamsMeta].(bool)
	return marked
}

// newToolResultJSON creates a successful result with JSON-formatted output.
func newToolResultJSON(v any) *mcp.CallToolResult {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errResult(fmt.Errorf("encoding result: %w", err))
	}
	return mcp.NewToolResultText(string(output))
}

// okResult renders a raw ADT response as a single text block.
func okResult(resp *adt.Response) *mcp.CallToolResult {
	return mcp.NewToolResultText(resp.Text())
}

// errResult renders a failure as an error result.
func errResult(err error) *mcp.CallToolResult {
	return newToolResultError(errText(err))
}

// errText is the user visible text of a failure. An HTTP error that carries
// a body is shown as that body; anything else as its message.
func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	var apiErr *adt.APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Body) != "" {
		return apiErr.Body
	}
	return err.Error()
}

// --- Parameter extraction helpers ---

// getStr extracts a string parameter, returning empty string if not found.
func getStr(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// getInt extracts an integer parameter from float64, returning default if not found.
func getInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// getBool extracts a boolean parameter, returning default if not found.
func getBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

// requireStr extracts a required string parameter, returning error result if missing.
func requireStr(args map[string]any, key string) (string, *mcp.CallToolResult) {
	if v := getStr(args, key); v != "" {
		return v, nil
	}
	return "", newInvalidParamsResult(key + " is required")
}

// objectKindAliases maps the type spellings clients send to object kinds.
var objectKindAliases = map[string]adt.ObjectKind{
	"PROG":    adt.KindProgram,
	"PROG/P":  adt.KindProgram,
	"PROGRAM": adt.KindProgram,
	"INCL":    adt.KindInclude,
	"PROG/I":  adt.KindInclude,
	"INCLUDE": adt.KindInclude,
	"CLAS":    adt.KindClass,
	"CLAS/OC": adt.KindClass,
	"CLASS":   adt.KindClass,
}

// parseObjectKind resolves an object_type argument, restricted to allowed kinds.
func parseObjectKind(raw string, def adt.ObjectKind, allowed ...adt.ObjectKind) (adt.ObjectKind, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	kind, ok := objectKindAliases[strings.ToUpper(strings.TrimSpace(raw))]
	if ok {
		for _, a := range allowed {
			if a == kind {
				return kind, nil
			}
		}
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return "", fmt.Errorf("unsupported object_type %q: use one of %s", raw, strings.Join(names, ", "))
}
