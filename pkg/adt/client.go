package adt

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Client is the main ADT API client.
type Client struct {
	transport *Transport
	config    *Config
}

// NewClient creates a new ADT client with the given configuration.
func NewClient(cfg *Config) *Client {
	return &Client{
		transport: NewTransport(cfg),
		config:    cfg,
	}
}

// NewClientWithTransport creates a new client with a custom transport.
// This is useful for testing.
func NewClientWithTransport(cfg *Config, transport *Transport) *Client {
	return &Client{
		transport: transport,
		config:    cfg,
	}
}

// Transport returns the underlying transport.
func (c *Client) Transport() *Transport {
	return c.transport
}

// Close tears down the transport and its session.
func (c *Client) Close() {
	c.transport.Close()
}

// ObjectKind is the short ADT object type used to pick a source endpoint.
type ObjectKind string

const (
	KindProgram       ObjectKind = "PROG"
	KindClass         ObjectKind = "CLAS"
	KindInterface     ObjectKind = "INTF"
	KindInclude       ObjectKind = "INCL"
	KindFunctionGroup ObjectKind = "FUGR"
	KindTable         ObjectKind = "TABL"
	KindStructure     ObjectKind = "STRU"
	KindView          ObjectKind = "VIEW"
	KindDomain        ObjectKind = "DOMA"
	KindDataElement   ObjectKind = "DTEL"
	KindBehaviorDef   ObjectKind = "BDEF"
	KindEnhSpot       ObjectKind = "ENHS"
	KindEnhImpl       ObjectKind = "ENHO"
	KindTransaction   ObjectKind = "TRAN"
)

// sourcePaths maps object kinds to their ADT resource; %s is the escaped name.
var sourcePaths = map[ObjectKind]string{
	KindProgram:       "/sap/bc/adt/programs/programs/%s/source/main",
	KindClass:         "/sap/bc/adt/oo/classes/%s/source/main",
	KindInterface:     "/sap/bc/adt/oo/interfaces/%s/source/main",
	KindInclude:       "/sap/bc/adt/programs/includes/%s/source/main",
	KindFunctionGroup: "/sap/bc/adt/functions/groups/%s/source/main",
	KindTable:         "/sap/bc/adt/ddic/tables/%s/source/main",
	KindStructure:     "/sap/bc/adt/ddic/structures/%s/source/main",
	KindView:          "/sap/bc/adt/ddic/views/%s/source/main",
	KindDomain:        "/sap/bc/adt/ddic/domains/%s",
	KindDataElement:   "/sap/bc/adt/ddic/dataelements/%s",
	KindBehaviorDef:   "/sap/bc/adt/bo/behaviordefinitions/%s/source/main",
	KindEnhSpot:       "/sap/bc/adt/enhancements/enhsxsb/%s",
	KindEnhImpl:       "/sap/bc/adt/enhancements/enhoxhh/%s/source/main",
	KindTransaction:   "/sap/bc/adt/vit/wb/object_type/TRAN/object_name/%s",
}

// SourcePath returns the ADT path for an object of the given kind.
// Namespaced names like /UI5/CL_X are escaped.
func SourcePath(kind ObjectKind, name string) (string, error) {
	tmpl, ok := sourcePaths[kind]
	if !ok {
		return "", fmt.Errorf("unsupported object kind: %s", kind)
	}
	return fmt.Sprintf(tmpl, url.PathEscape(strings.ToUpper(name))), nil
}

// GetSource retrieves the raw source or metadata document of an object.
func (c *Client) GetSource(ctx context.Context, kind ObjectKind, name string) (*Response, error) {
	path, err := SourcePath(kind, name)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Request(ctx, path, &RequestOptions{Method: http.MethodGet})
	if err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", kind, strings.ToUpper(name), err)
	}
	return resp, nil
}

// GetProgram retrieves the source code of an ABAP program.
func (c *Client) GetProgram(ctx context.Context, programName string) (string, error) {
	resp, err := c.GetSource(ctx, KindProgram, programName)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// GetInclude retrieves the source code of an ABAP include.
func (c *Client) GetInclude(ctx context.Context, includeName string) (string, error) {
	resp, err := c.GetSource(ctx, KindInclude, includeName)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// GetFunction retrieves the source code of a function module.
func (c *Client) GetFunction(ctx context.Context, functionName, groupName string) (*Response, error) {
	path := fmt.Sprintf("/sap/bc/adt/functions/groups/%s/fmodules/%s/source/main",
		url.PathEscape(strings.ToUpper(groupName)), url.PathEscape(strings.ToUpper(functionName)))

	resp, err := c.transport.Request(ctx, path, &RequestOptions{
		Method: http.MethodGet,
		Accept: "text/plain",
	})
	if err != nil {
		return nil, fmt.Errorf("getting function source: %w", err)
	}
	return resp, nil
}

// GetTypeInfo looks a type up as a domain first and as a data element second.
func (c *Client) GetTypeInfo(ctx context.Context, typeName string) (*Response, error) {
	resp, err := c.GetSource(ctx, KindDomain, typeName)
	if err == nil {
		return resp, nil
	}
	if !IsNotFoundError(err) {
		return nil, err
	}
	return c.GetSource(ctx, KindDataElement, typeName)
}

// SearchObject searches for ABAP objects by name pattern.
// The query parameter supports wildcards (* for multiple chars, ? for single char).
func (c *Client) SearchObject(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 100
	}

	params := url.Values{}
	params.Set("operation", "quickSearch")
	params.Set("query", query)
	params.Set("maxResults", fmt.Sprintf("%d", maxResults))

	resp, err := c.transport.Request(ctx, "/sap/bc/adt/repository/informationsystem/search", &RequestOptions{
		Method: http.MethodGet,
		Query:  params,
		Accept: "application/xml",
	})
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	return ParseSearchResults(resp.Body)
}

// GetTableContents retrieves data from a database table via data preview.
// sqlFilter, when set, is sent as the request body.
func (c *Client) GetTableContents(ctx context.Context, tableName string, maxRows int, sqlFilter string) (*Response, error) {
	tableName = strings.ToUpper(tableName)
	if maxRows <= 0 {
		maxRows = 100
	}

	params := url.Values{}
	params.Set("rowNumber", fmt.Sprintf("%d", maxRows))
	params.Set("ddicEntityName", tableName)

	body := sqlFilter
	if body == "" {
		body = fmt.Sprintf("SELECT * FROM %s", tableName)
	}

	resp, err := c.transport.Request(ctx, "/sap/bc/adt/datapreview/ddic", &RequestOptions{
		Method:  http.MethodPost,
		Query:   params,
		Accept:  "application/*",
		Body:    []byte(body),
		Timeout: LongTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("getting table contents: %w", err)
	}
	return resp, nil
}

// RunQuery executes a freestyle SQL query against the SAP database.
func (c *Client) RunQuery(ctx context.Context, sqlQuery string, maxRows int) (*Response, error) {
	if strings.TrimSpace(sqlQuery) == "" {
		return nil, fmt.Errorf("SQL query is required")
	}
	if maxRows <= 0 {
		maxRows = 100
	}

	params := url.Values{}
	params.Set("rowNumber", fmt.Sprintf("%d", maxRows))

	resp, err := c.transport.Request(ctx, "/sap/bc/adt/datapreview/freestyle", &RequestOptions{
		Method:  http.MethodPost,
		Query:   params,
		Accept:  "application/*",
		Body:    []byte(sqlQuery),
		Timeout: LongTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}
	return resp, nil
}
