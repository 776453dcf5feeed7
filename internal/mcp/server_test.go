package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oisee/abap-adt-mcp/pkg/adt"
)

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("nil result")
	}
	if len(result.Content) != 1 {
		t.Fatalf("Expected 1 content item, got %d", len(result.Content))
	}
	textContent, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Content should be TextContent, got %T", result.Content[0])
	}
	if textContent.Type != "text" {
		t.Errorf("Type = %v, want text", textContent.Type)
	}
	return textContent.Text
}

func newRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestNewToolResultError(t *testing.T) {
	result := newToolResultError("test error message")

	if !result.IsError {
		t.Error("IsError should be true")
	}
	if text := resultText(t, result); text != "test error message" {
		t.Errorf("Text = %v, want 'test error message'", text)
	}
}

func TestErrResult_Envelope(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"api error with body", &adt.APIError{StatusCode: 404, Body: "<exc:exception>not found</exc:exception>", Path: "/x"}, "<exc:exception>not found</exc:exception>"},
		{"wrapped api error", errors.Join(errors.New("getting PROG X"), &adt.APIError{StatusCode: 500, Body: "dump"}), "dump"},
		{"api error without body", &adt.APIError{StatusCode: 502, Path: "/x"}, "ADT API error: status 502 at /x: "},
		{"plain error", errors.New("connection refused"), "connection refused"},
		{"config error", &adt.ConfigError{Field: "url", Reason: "is required"}, "invalid SAP configuration: url is required"},
		{"nil", nil, "unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errResult(tt.err)
			if !result.IsError {
				t.Error("IsError should be true")
			}
			if text := resultText(t, result); text != tt.want {
				t.Errorf("Text = %q, want %q", text, tt.want)
			}
		})
	}
}

func TestOkResult(t *testing.T) {
	result := okResult(&adt.Response{StatusCode: 200, Body: []byte("REPORT ztest.")})
	if result.IsError {
		t.Error("IsError should be false")
	}
	if text := resultText(t, result); text != "REPORT ztest." {
		t.Errorf("Text = %v", text)
	}
}

func TestGuard_RecoversPanic(t *testing.T) {
	s := NewServer(nil)
	handler := s.guard("Boom", func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		panic("index out of range")
	})

	result, err := handler(context.Background(), newRequest(nil))
	if err != nil {
		t.Fatalf("guard must not return an error, got %v", err)
	}
	if !result.IsError {
		t.Error("IsError should be true")
	}
	if text := resultText(t, result); !strings.Contains(text, "Boom failed") || !strings.Contains(text, "index out of range") {
		t.Errorf("Text = %v", text)
	}
}

func TestGuard_ConvertsErrors(t *testing.T) {
	s := NewServer(nil)
	handler := s.guard("Fails", func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, &adt.APIError{StatusCode: 403, Body: "no authorization"}
	})

	result, err := handler(context.Background(), newRequest(nil))
	if err != nil {
		t.Fatalf("guard must not return an error, got %v", err)
	}
	if text := resultText(t, result); text != "no authorization" || !result.IsError {
		t.Errorf("result = %v / %v", text, result.IsError)
	}

	nilHandler := s.guard("Nil", func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, nil
	})
	result, _ = nilHandler(context.Background(), newRequest(nil))
	if !result.IsError {
		t.Error("a nil result should become an error result")
	}
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := NewServer(&Config{ADT: adt.NewConfig("https://sap.example.com:44300", adt.WithBasicAuth("u", "p"))})

	if s.mcpServer == nil {
		t.Fatal("MCP server should not be nil")
	}
	if s.adtClient != nil {
		t.Error("ADT client should be created lazily")
	}

	want := []string{
		"GetIncludesList", "GetObjectsList", "GetEnhancements", "GetObjectInfo",
		"GetProgram", "GetClass", "GetInterface", "GetInclude", "GetFunctionGroup", "GetFunction",
		"GetTable", "GetStructure", "GetView", "GetDomain", "GetDataElement", "GetTypeInfo",
		"GetTransaction", "GetBdef", "GetEnhancementSpot", "GetEnhancementImpl", "GetPackage",
		"SearchObject", "GetTableContents", "GetSqlQuery",
	}
	registered := make(map[string]int)
	for _, name := range s.Tools() {
		registered[name]++
	}
	for _, name := range want {
		if registered[name] != 1 {
			t.Errorf("tool %s registered %d times, want 1", name, registered[name])
		}
	}
	if len(s.Tools()) != len(want) {
		t.Errorf("registered %d tools, want %d: %v", len(s.Tools()), len(want), s.Tools())
	}
}

func TestServer_ConfigErrorOnFirstUse(t *testing.T) {
	s := NewServer(&Config{ADT: adt.NewConfig("", adt.WithBasicAuth("u", "p"))})

	result, err := s.handleSource(sourceTools[0])(context.Background(), newRequest(map[string]any{"program_name": "ZTEST"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("IsError should be true")
	}
	if text := resultText(t, result); !strings.Contains(text, "url is required") {
		t.Errorf("Text = %v", text)
	}
}

func TestServer_ResetRecreatesClient(t *testing.T) {
	s := NewServer(&Config{ADT: adt.NewConfig("https://sap.example.com:44300", adt.WithBasicAuth("u", "p"))})

	first, err := s.client()
	if err != nil {
		t.Fatalf("client() failed: %v", err)
	}
	again, _ := s.client()
	if first != again {
		t.Error("client should be reused")
	}

	s.Reset()
	second, err := s.client()
	if err != nil {
		t.Fatalf("client() after Reset failed: %v", err)
	}
	if first == second {
		t.Error("Reset should drop the client")
	}
}

// TestAllHandlersAreRegistered verifies that every handler method defined in
// handlers_*.go is referenced from registration code, so no handler is dead.
func TestAllHandlersAreRegistered(t *testing.T) {
	pkgDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}

	definedHandlers := make(map[string]string)
	handlerFiles, _ := filepath.Glob(filepath.Join(pkgDir, "handlers_*.go"))

	fset := token.NewFileSet()
	for _, file := range handlerFiles {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}
		node, parseErr := parser.ParseFile(fset, file, nil, 0)
		if parseErr != nil {
			t.Fatalf("Failed to parse %s: %v", file, parseErr)
		}

		for _, decl := range node.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv == nil || len(fn.Recv.List) != 1 {
				continue
			}
			starExpr, ok := fn.Recv.List[0].Type.(*ast.StarExpr)
			if !ok {
				continue
			}
			ident, ok := starExpr.X.(*ast.Ident)
			if !ok || ident.Name != "Server" {
				continue
			}
			if strings.HasPrefix(fn.Name.Name, "handle") {
				definedHandlers[fn.Name.Name] = filepath.Base(file)
			}
		}
	}

	referenced := make(map[string]bool)
	allGoFiles, _ := filepath.Glob(filepath.Join(pkgDir, "*.go"))
	for _, file := range allGoFiles {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}
		node, err := parser.ParseFile(fset, file, nil, 0)
		if err != nil {
			continue
		}
		ast.Inspect(node, func(n ast.Node) bool {
			if sel, ok := n.(*ast.SelectorExpr); ok && strings.HasPrefix(sel.Sel.Name, "handle") {
				referenced[sel.Sel.Name] = true
			}
			return true
		})
	}

	var unregistered []string
	for handler, sourceFile := range definedHandlers {
		if !referenced[handler] {
			unregistered = append(unregistered, handler+" ("+sourceFile+")")
		}
	}
	if len(unregistered) > 0 {
		t.Errorf("Found %d handler(s) that are defined but never registered:\n  - %s",
			len(unregistered), strings.Join(unregistered, "\n  - "))
	}
}

func TestHandleMessage_MissingArgumentIsInvalidParams(t *testing.T) {
	s := NewServer(nil)

	resp := s.HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"GetProgram","arguments":{}}}`))

	rpcErr, ok := resp.(mcp.JSONRPCError)
	if !ok {
		t.Fatalf("response = %#v, want JSONRPCError", resp)
	}
	if rpcErr.Error.Code != mcp.INVALID_PARAMS {
		t.Errorf("code = %d, want %d", rpcErr.Error.Code, mcp.INVALID_PARAMS)
	}
	if rpcErr.Error.Message != "program_name is required" {
		t.Errorf("message = %q", rpcErr.Error.Message)
	}
}

func TestHandleMessage_UnsupportedObjectTypeIsInvalidParams(t *testing.T) {
	s := NewServer(nil)

	resp := s.HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"GetIncludesList","arguments":{"object_name":"ZX","object_type":"TABL"}}}`))

	rpcErr, ok := resp.(mcp.JSONRPCError)
	if !ok {
		t.Fatalf("response = %#v, want JSONRPCError", resp)
	}
	if rpcErr.Error.Code != mcp.INVALID_PARAMS {
		t.Errorf("code = %d, want %d", rpcErr.Error.Code, mcp.INVALID_PARAMS)
	}
}

func TestHandleMessage_ToolFailureStaysInEnvelope(t *testing.T) {
	s := NewServer(nil)

	resp := s.HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"GetProgram","arguments":{"program_name":"ZX"}}}`))

	r, ok := resp.(mcp.JSONRPCResponse)
	if !ok {
		t.Fatalf("response = %#v, want JSONRPCResponse", resp)
	}
	result, ok := r.Result.(mcp.CallToolResult)
	if !ok {
		t.Fatalf("result = %T, want CallToolResult", r.Result)
	}
	if !result.IsError {
		t.Error("IsError should be true without a configured system")
	}
	if isInvalidParams(&result) {
		t.Error("a configuration failure is not an argument error")
	}
}

func TestListen(t *testing.T) {
	s := NewServer(nil)
	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"GetProgram","arguments":{}}}` + "\n" +
			"not json\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	var out bytes.Buffer

	if err := s.Listen(context.Background(), in, &out); err != nil {
		t.Fatalf("Listen returned %v at EOF", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d responses, want 3:\n%s", len(lines), out.String())
	}

	var first, second struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Error.Code != mcp.INVALID_PARAMS {
		t.Errorf("first code = %d, want %d", first.Error.Code, mcp.INVALID_PARAMS)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if second.Error.Code != mcp.PARSE_ERROR {
		t.Errorf("second code = %d, want %d", second.Error.Code, mcp.PARSE_ERROR)
	}

	var list struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(lines[2]), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Result.Tools) != len(s.Tools()) {
		t.Errorf("tools/list returned %d tools, want %d", len(list.Result.Tools), len(s.Tools()))
	}
}
