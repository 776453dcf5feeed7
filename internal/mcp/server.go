// Package mcp provides the MCP server implementation for ABAP ADT tools.
package mcp

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/oisee/abap-adt-mcp/pkg/adt"
)

const serverName = "abap-adt-mcp"

// Server wraps the MCP server with a lazily created ADT client.
type Server struct {
	mcpServer *server.MCPServer
	config    *Config
	logger    *log.Logger

	mu        sync.Mutex
	adtClient *adt.Client

	tools []string
}

// Config holds MCP server configuration.
type Config struct {
	// ADT is the resolved SAP connection. It is validated on first use.
	ADT *adt.Config
	// Logger receives tool invocation logs. Defaults to a discard logger.
	Logger *log.Logger
	// Version is reported to MCP clients.
	Version string
}

// NewServer creates a new MCP server for ABAP ADT tools.
// The ADT client is not created until the first tool call needs it.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	s := &Server{
		mcpServer: server.NewMCPServer(
			serverName,
			version,
			server.WithResourceCapabilities(true, true),
			server.WithLogging(),
		),
		config: cfg,
		logger: logger,
	}

	s.registerTools()

	return s
}

// NewServerWithClient creates a server bound to an existing ADT client.
// This is useful for testing.
func NewServerWithClient(client *adt.Client, logger *log.Logger) *Server {
	s := NewServer(&Config{Logger: logger})
	s.adtClient = client
	return s
}

// Tools returns the names of all registered tools in registration order.
func (s *Server) Tools() []string {
	out := make([]string, len(s.tools))
	copy(out, s.tools)
	return out
}

// client returns the shared ADT client, creating it on first use.
func (s *Server) client() (*adt.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adtClient != nil {
		return s.adtClient, nil
	}
	if s.config.ADT == nil {
		return nil, &adt.ConfigError{Field: "url", Reason: "is required"}
	}
	if err := s.config.ADT.Validate(); err != nil {
		return nil, err
	}
	s.adtClient = adt.NewClient(s.config.ADT)
	s.logger.Debug("ADT client created", "url", s.config.ADT.BaseURL, "client", s.config.ADT.Client)
	return s.adtClient, nil
}

// Reset closes the shared ADT client and drops its session. The next tool
// call creates a fresh client.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adtClient != nil {
		s.adtClient.Close()
		s.adtClient = nil
	}
}

// addTool registers a tool behind guard.
func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.tools = append(s.tools, tool.Name)
	s.mcpServer.AddTool(tool, s.guard(tool.Name, handler))
}

// guard logs each invocation and turns handler errors and panics into error
// results, so a tool call always yields a content envelope.
func (s *Server) guard(name string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		logger := s.logger.With("tool", name, "invocation", uuid.NewString())
		start := time.Now()
		logger.Debug("tool called")

		defer func() {
			if r := recover(); r != nil {
				logger.Error("tool panicked", "panic", r)
				result = newToolResultError(fmt.Sprintf("%s failed: internal error: %v", name, r))
			}
			err = nil
			if result == nil {
				result = newToolResultError(name + " returned no result")
			}
			if result.IsError {
				logger.Warn("tool failed", "duration", time.Since(start))
			} else {
				logger.Info("tool finished", "duration", time.Since(start))
			}
		}()

		result, err = handler(ctx, request)
		if err != nil {
			result = errResult(err)
		}
		return result, nil
	}
}

// registerTools registers all ADT tools with the MCP server.
func (s *Server) registerTools() {
	s.registerSourceTools()

	// GetFunction
	s.addTool(mcp.NewTool("GetFunction",
		mcp.WithDescription("Retrieve ABAP Function Module source code"),
		mcp.WithString("function_name",
			mcp.Required(),
			mcp.Description("Name of the function module"),
		),
		mcp.WithString("function_group",
			mcp.Required(),
			mcp.Description("Name of the function group"),
		),
	), s.handleGetFunction)

	// GetTypeInfo
	s.addTool(mcp.NewTool("GetTypeInfo",
		mcp.WithDescription("Retrieve ABAP type information (domain, falling back to data element)"),
		mcp.WithString("type_name",
			mcp.Required(),
			mcp.Description("Name of the ABAP type"),
		),
	), s.handleGetTypeInfo)

	// GetPackage
	s.addTool(mcp.NewTool("GetPackage",
		mcp.WithDescription("Retrieve ABAP package contents"),
		mcp.WithString("package_name",
			mcp.Required(),
			mcp.Description("Name of the ABAP package"),
		),
	), s.handleGetPackage)

	// SearchObject
	s.addTool(mcp.NewTool("SearchObject",
		mcp.WithDescription("Search for ABAP objects using quick search"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string (use * wildcard for partial match)"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of results to return (default 100)"),
		),
	), s.handleSearchObject)

	// GetTableContents
	s.addTool(mcp.NewTool("GetTableContents",
		mcp.WithDescription("Retrieve contents of an ABAP table"),
		mcp.WithString("table_name",
			mcp.Required(),
			mcp.Description("Name of the ABAP table"),
		),
		mcp.WithNumber("max_rows",
			mcp.Description("Maximum number of rows to retrieve (default 100)"),
		),
		mcp.WithString("sql_query",
			mcp.Description("Optional full SELECT statement to filter results (e.g., \"SELECT * FROM T000 WHERE MANDT = '001'\")"),
		),
	), s.handleGetTableContents)

	// GetSqlQuery
	s.addTool(mcp.NewTool("GetSqlQuery",
		mcp.WithDescription("Execute a freestyle SQL query against the SAP database"),
		mcp.WithString("sql_query",
			mcp.Required(),
			mcp.Description("SQL query to execute (e.g., \"SELECT * FROM T000 WHERE MANDT = '001'\")"),
		),
		mcp.WithNumber("row_number",
			mcp.Description("Maximum number of rows to retrieve (default 100)"),
		),
	), s.handleGetSqlQuery)

	// --- Recursive discovery ---

	// GetIncludesList
	s.addTool(mcp.NewTool("GetIncludesList",
		mcp.WithDescription("Recursively list the includes used by an ABAP program or include"),
		mcp.WithString("object_name",
			mcp.Required(),
			mcp.Description("Name of the program or include"),
		),
		mcp.WithString("object_type",
			mcp.Description("PROG (default) or INCL"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum include nesting to follow (default: unlimited)"),
		),
	), s.handleGetIncludesList)

	// GetObjectsList
	s.addTool(mcp.NewTool("GetObjectsList",
		mcp.WithDescription("Recursively list the repository objects below a parent object"),
		mcp.WithString("parent_name",
			mcp.Required(),
			mcp.Description("Name of the parent object"),
		),
		mcp.WithString("parent_type",
			mcp.Required(),
			mcp.Description("ADT type of the parent object (e.g. PROG/P, CLAS/OC, FUGR/F, DEVC/K)"),
		),
		mcp.WithString("parent_tech_name",
			mcp.Description("Technical name of the parent object"),
		),
		mcp.WithBoolean("with_descriptions",
			mcp.Description("Include short descriptions (default true)"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum tree depth to expand (default: unlimited)"),
		),
	), s.handleGetObjectsList)

	// GetObjectInfo
	s.addTool(mcp.NewTool("GetObjectInfo",
		mcp.WithDescription("Retrieve the object tree of an ABAP object as nested nodes"),
		mcp.WithString("parent_type",
			mcp.Required(),
			mcp.Description("ADT type of the object (e.g. PROG/P, CLAS/OC)"),
		),
		mcp.WithString("parent_name",
			mcp.Required(),
			mcp.Description("Name of the object"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Tree depth to expand (default 1)"),
		),
		mcp.WithBoolean("with_descriptions",
			mcp.Description("Include short descriptions (default true)"),
		),
	), s.handleGetObjectInfo)

	// GetEnhancements
	s.addTool(mcp.NewTool("GetEnhancements",
		mcp.WithDescription("Retrieve source code enhancements of a program, include or class"),
		mcp.WithString("object_name",
			mcp.Required(),
			mcp.Description("Name of the object"),
		),
		mcp.WithString("object_type",
			mcp.Description("PROG (default), INCL or CLAS"),
		),
		mcp.WithBoolean("nested",
			mcp.Description("Also collect enhancements of every include reached from the object (default false)"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum include nesting to follow when nested (default: unlimited)"),
		),
	), s.handleGetEnhancements)
}
