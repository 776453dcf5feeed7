package adt

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RootNodeID is the node id that starts a fresh node structure traversal.
const RootNodeID = "000000"

// NodeStructureRequest identifies one node of the repository tree.
type NodeStructureRequest struct {
	ParentName       string
	ParentTechName   string
	ParentType       string
	NodeID           string
	WithDescriptions bool
}

// NodeStructure issues one POST to the repository nodestructure resource and
// returns the raw XML. It does not retry; failures propagate to the caller.
func (c *Client) NodeStructure(ctx context.Context, r NodeStructureRequest) ([]byte, error) {
	params := url.Values{}
	params.Set("parent_type", r.ParentType)
	params.Set("parent_name", r.ParentName)
	if r.ParentTechName != "" {
		params.Set("parent_tech_name", r.ParentTechName)
	}
	params.Set("withShortDescriptions", fmt.Sprintf("%t", r.WithDescriptions))

	nodeID := r.NodeID
	if nodeID == "" {
		nodeID = RootNodeID
	}

	resp, err := c.transport.Request(ctx, "/sap/bc/adt/repository/nodestructure", &RequestOptions{
		Method:      http.MethodPost,
		Query:       params,
		Body:        []byte(nodeKeyBody(nodeID)),
		ContentType: "application/vnd.sap.as+xml; charset=UTF-8",
		Accept:      "application/vnd.sap.as+xml",
	})
	if err != nil {
		return nil, fmt.Errorf("getting node structure of %s %s (node %s): %w", r.ParentType, r.ParentName, nodeID, err)
	}
	return resp.Body, nil
}

// FetchNodes calls NodeStructure and parses the result.
func (c *Client) FetchNodes(ctx context.Context, r NodeStructureRequest) (*NodeStructureResult, error) {
	data, err := c.NodeStructure(ctx, r)
	if err != nil {
		return nil, err
	}
	return ParseNodeStructure(data)
}

func nodeKeyBody(nodeID string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<asx:abap xmlns:asx="http://www.sap.com/abapxml" version="1.0"><asx:values><DATA><TV_NODEKEY>`)
	b.WriteString(XMLEscape(nodeID))
	b.WriteString(`</TV_NODEKEY></DATA></asx:values></asx:abap>`)
	return b.String()
}

// GetPackage retrieves the contents of a package using the nodestructure API.
func (c *Client) GetPackage(ctx context.Context, packageName string) (*PackageContent, error) {
	packageName = strings.ToUpper(packageName)

	result, err := c.FetchNodes(ctx, NodeStructureRequest{
		ParentName:       packageName,
		ParentType:       "DEVC/K",
		WithDescriptions: true,
	})
	if err != nil {
		return nil, fmt.Errorf("getting package contents: %w", err)
	}
	return packageFromNodes(packageName, result.Nodes), nil
}

// XMLEscape escapes special XML characters for safe inclusion in XML content.
func XMLEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
