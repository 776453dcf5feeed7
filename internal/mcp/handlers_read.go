// Package mcp provides the MCP server implementation for ABAP ADT tools.
// handlers_read.go contains handlers for read operations (GetProgram, GetClass, GetTable, etc.)
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/oisee/abap-adt-mcp/pkg/adt"
)

// sourceTool is a tool that fetches one object by name and returns the body as is.
type sourceTool struct {
	name        string
	description string
	kind        adt.ObjectKind
	arg         string
	argDesc     string
}

var sourceTools = []sourceTool{
	{"GetProgram", "Retrieve ABAP program source code", adt.KindProgram, "program_name", "Name of the ABAP program"},
	{"GetClass", "Retrieve ABAP class source code", adt.KindClass, "class_name", "Name of the ABAP class"},
	{"GetInterface", "Retrieve ABAP interface source code", adt.KindInterface, "interface_name", "Name of the ABAP interface"},
	{"GetInclude", "Retrieve ABAP Include Source Code", adt.KindInclude, "include_name", "Name of the ABAP Include"},
	{"GetFunctionGroup", "Retrieve ABAP Function Group source code", adt.KindFunctionGroup, "function_group", "Name of the function group"},
	{"GetTable", "Retrieve ABAP table structure", adt.KindTable, "table_name", "Name of the ABAP table"},
	{"GetStructure", "Retrieve ABAP Structure", adt.KindStructure, "structure_name", "Name of the ABAP Structure"},
	{"GetView", "Retrieve ABAP dictionary view definition", adt.KindView, "view_name", "Name of the dictionary view"},
	{"GetDomain", "Retrieve ABAP domain metadata", adt.KindDomain, "domain_name", "Name of the domain"},
	{"GetDataElement", "Retrieve ABAP data element metadata", adt.KindDataElement, "data_element_name", "Name of the data element"},
	{"GetTransaction", "Retrieve ABAP transaction details", adt.KindTransaction, "transaction_name", "Name of the ABAP transaction"},
	{"GetBdef", "Retrieve RAP behavior definition source", adt.KindBehaviorDef, "bdef_name", "Name of the behavior definition"},
	{"GetEnhancementSpot", "Retrieve enhancement spot metadata", adt.KindEnhSpot, "spot_name", "Name of the enhancement spot"},
	{"GetEnhancementImpl", "Retrieve enhancement implementation source", adt.KindEnhImpl, "enhancement_name", "Name of the enhancement implementation"},
}

func (s *Server) registerSourceTools() {
	for _, t := range sourceTools {
		s.addTool(mcp.NewTool(t.name,
			mcp.WithDescription(t.description),
			mcp.WithString(t.arg,
				mcp.Required(),
				mcp.Description(t.argDesc),
			),
		), s.handleSource(t))
	}
}

// handleSource builds the handler of a sourceTool.
func (s *Server) handleSource(t sourceTool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, errRes := requireStr(request.Params.Arguments, t.arg)
		if errRes != nil {
			return errRes, nil
		}

		client, err := s.client()
		if err != nil {
			return errResult(err), nil
		}

		resp, err := client.GetSource(ctx, t.kind, name)
		if err != nil {
			return errResult(err), nil
		}
		return okResult(resp), nil
	}
}

func (s *Server) handleGetFunction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	functionName, errRes := requireStr(args, "function_name")
	if errRes != nil {
		return errRes, nil
	}
	functionGroup, errRes := requireStr(args, "function_group")
	if errRes != nil {
		return errRes, nil
	}

	client, err := s.client()
	if err != nil {
		return errResult(err), nil
	}

	resp, err := client.GetFunction(ctx, functionName, functionGroup)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(resp), nil
}

func (s *Server) handleGetTypeInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeName, errRes := requireStr(request.Params.Arguments, "type_name")
	if errRes != nil {
		return errRes, nil
	}

	client, err := s.client()
	if err != nil {
		return errResult(err), nil
	}

	resp, err := client.GetTypeInfo(ctx, typeName)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(resp), nil
}

func (s *Server) handleGetPackage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	packageName, errRes := requireStr(request.Params.Arguments, "package_name")
	if errRes != nil {
		return errRes, nil
	}

	client, err := s.client()
	if err != nil {
		return errResult(err), nil
	}

	pkg, err := client.GetPackage(ctx, packageName)
	if err != nil {
		return errResult(err), nil
	}
	return newToolResultJSON(pkg), nil
}

func (s *Server) handleSearchObject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	query, errRes := requireStr(args, "query")
	if errRes != nil {
		return errRes, nil
	}
	maxResults := getInt(args, "maxResults", 100)

	client, err := s.client()
	if err != nil {
		return errResult(err), nil
	}

	results, err := client.SearchObject(ctx, query, maxResults)
	if err != nil {
		return errResult(err), nil
	}
	return newToolResultJSON(results), nil
}

func (s *Server) handleGetTableContents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	tableName, errRes := requireStr(args, "table_name")
	if errRes != nil {
		return errRes, nil
	}
	maxRows := getInt(args, "max_rows", 100)
	sqlQuery := getStr(args, "sql_query")

	client, err := s.client()
	if err != nil {
		return errResult(err), nil
	}

	resp, err := client.GetTableContents(ctx, tableName, maxRows, sqlQuery)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(resp), nil
}

func (s *Server) handleGetSqlQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	sqlQuery, errRes := requireStr(args, "sql_query")
	if errRes != nil {
		return errRes, nil
	}
	rowNumber := getInt(args, "row_number", 100)
	if rowNumber < 0 {
		return newInvalidParamsResult(fmt.Sprintf("row_number must not be negative, got %d", rowNumber)), nil
	}

	client, err := s.client()
	if err != nil {
		return errResult(err), nil
	}

	resp, err := client.RunQuery(ctx, sqlQuery, rowNumber)
	if err != nil {
		return errResult(err), nil
	}
	return okResult(resp), nil
}
