package adt

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NodeKind distinguishes object entries from type folders in a node structure.
type NodeKind string

const (
	// NodeObject is a repository object (SEU_ADT_REPOSITORY_OBJ_NODE).
	NodeObject NodeKind = "object"
	// NodeTypeFolder is an object type grouping (SEU_ADT_OBJECT_TYPE_INFO).
	NodeTypeFolder NodeKind = "type"
)

// RepositoryNode is one entry of a nodestructure response. All fields are optional.
type RepositoryNode struct {
	Kind        NodeKind `xml:"-" json:"kind"`
	ObjectType  string   `xml:"OBJECT_TYPE" json:"objectType,omitempty"`
	ObjectName  string   `xml:"OBJECT_NAME" json:"objectName,omitempty"`
	TechName    string   `xml:"TECH_NAME" json:"techName,omitempty"`
	ObjectURI   string   `xml:"OBJECT_URI" json:"objectUri,omitempty"`
	VitURI      string   `xml:"OBJECT_VIT_URI" json:"vitUri,omitempty"`
	Expandable  string   `xml:"EXPANDABLE" json:"expandable,omitempty"`
	NodeID      string   `xml:"NODE_ID" json:"nodeId,omitempty"`
	Description string   `xml:"DESCRIPTION" json:"description,omitempty"`
}

// Key identifies the node for deduplication: its node id when present,
// otherwise its upper-cased type and name.
func (n RepositoryNode) Key() string {
	if n.NodeID != "" {
		return "node:" + n.NodeID
	}
	return strings.ToUpper(n.ObjectType) + ":" + strings.ToUpper(n.ObjectName)
}

// ObjectTypeInfo describes an object type folder below a parent object.
type ObjectTypeInfo struct {
	ObjectType    string `xml:"OBJECT_TYPE" json:"objectType"`
	NodeID        string `xml:"NODE_ID" json:"nodeId,omitempty"`
	Label         string `xml:"OBJECT_TYPE_LABEL" json:"label,omitempty"`
	Category      string `xml:"CATEGORY_TAG" json:"category,omitempty"`
	CategoryLabel string `xml:"CATEGORY_LABEL" json:"categoryLabel,omitempty"`
}

// AsNode converts the folder into a RepositoryNode so it can be walked.
func (i ObjectTypeInfo) AsNode() RepositoryNode {
	return RepositoryNode{
		Kind:        NodeTypeFolder,
		ObjectType:  i.ObjectType,
		NodeID:      i.NodeID,
		Description: i.Label,
	}
}

// NodeStructureResult holds everything a nodestructure call returned.
type NodeStructureResult struct {
	Nodes []RepositoryNode
	Types []ObjectTypeInfo
}

// Children returns the type folders followed by the object nodes.
func (r *NodeStructureResult) Children() []RepositoryNode {
	out := make([]RepositoryNode, 0, len(r.Types)+len(r.Nodes))
	for _, t := range r.Types {
		out = append(out, t.AsNode())
	}
	return append(out, r.Nodes...)
}

// ParseNodeStructure extracts repository nodes and type folders from a
// nodestructure response. Blocks are found wherever they occur in the document.
func ParseNodeStructure(data []byte) (*NodeStructureResult, error) {
	result := &NodeStructureResult{}
	if len(bytes.TrimSpace(data)) == 0 {
		return result, nil
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing nodestructure: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "SEU_ADT_REPOSITORY_OBJ_NODE":
			var n RepositoryNode
			if err := dec.DecodeElement(&n, &start); err != nil {
				return nil, fmt.Errorf("parsing repository node: %w", err)
			}
			n.Kind = NodeObject
			result.Nodes = append(result.Nodes, n)
		case "SEU_ADT_OBJECT_TYPE_INFO":
			var i ObjectTypeInfo
			if err := dec.DecodeElement(&i, &start); err != nil {
				return nil, fmt.Errorf("parsing object type info: %w", err)
			}
			result.Types = append(result.Types, i)
		}
	}
	return result, nil
}

// SearchResult represents a single search result.
type SearchResult struct {
	URI         string `xml:"uri,attr" json:"uri"`
	Type        string `xml:"type,attr" json:"type"`
	Name        string `xml:"name,attr" json:"name"`
	PackageName string `xml:"packageName,attr,omitempty" json:"packageName,omitempty"`
	Description string `xml:"description,attr,omitempty" json:"description,omitempty"`
}

// SearchResults wraps search results from the ADT API.
type SearchResults struct {
	XMLName xml.Name       `xml:"objectReferences"`
	Results []SearchResult `xml:"objectReference"`
}

// ParseSearchResults parses a quickSearch response.
func ParseSearchResults(data []byte) ([]SearchResult, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []SearchResult{}, nil
	}
	var results SearchResults
	if err := xml.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("parsing search results: %w", err)
	}
	if results.Results == nil {
		return []SearchResult{}, nil
	}
	return results.Results, nil
}

// PackageObject represents an object within a package.
type PackageObject struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	URI         string `json:"uri,omitempty"`
	Description string `json:"description,omitempty"`
}

// PackageContent represents the contents of a package.
type PackageContent struct {
	Name        string          `json:"name"`
	Objects     []PackageObject `json:"objects"`
	SubPackages []string        `json:"subPackages"`
}

// packageFromNodes splits package nodes into sub-packages and objects.
func packageFromNodes(packageName string, nodes []RepositoryNode) *PackageContent {
	pkg := &PackageContent{
		Name:        packageName,
		Objects:     []PackageObject{},
		SubPackages: []string{},
	}
	for _, node := range nodes {
		if node.ObjectName == "" {
			continue
		}
		if node.ObjectType == "DEVC/K" {
			pkg.SubPackages = append(pkg.SubPackages, node.ObjectName)
			continue
		}
		pkg.Objects = append(pkg.Objects, PackageObject{
			Type:        node.ObjectType,
			Name:        node.ObjectName,
			URI:         node.ObjectURI,
			Description: node.Description,
		})
	}
	return pkg
}

// EnhancementElement is one source code enhancement attached to an object.
type EnhancementElement struct {
	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	URI      string `json:"uri,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Position string `json:"position,omitempty"`
	Source   string `json:"source"`
}

// ParseEnhancementElements extracts enhancement sources from an
// enhancements/elements response. Each <source> element is attributed to the
// nearest enclosing element carrying a name; base64 sources are decoded.
func ParseEnhancementElements(data []byte) ([]EnhancementElement, error) {
	elements := []EnhancementElement{}
	if len(bytes.TrimSpace(data)) == 0 {
		return elements, nil
	}

	var stack []map[string]string
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing enhancements: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "source" {
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return nil, fmt.Errorf("parsing enhancement source: %w", err)
				}
				elements = append(elements, newEnhancementElement(stack, text))
				continue
			}
			attrs := make(map[string]string, len(t.Attr))
			for _, a := range t.Attr {
				attrs[a.Name.Local] = a.Value
			}
			stack = append(stack, attrs)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return elements, nil
}

func newEnhancementElement(stack []map[string]string, source string) EnhancementElement {
	el := EnhancementElement{Source: decodeEnhancementSource(source)}
	for i := len(stack) - 1; i >= 0; i-- {
		attrs := stack[i]
		if attrs["name"] == "" && attrs["fullName"] == "" {
			continue
		}
		el.Name = attrs["name"]
		el.Type = attrs["type"]
		el.URI = attrs["uri"]
		el.FullName = attrs["fullName"]
		el.Position = attrs["position"]
		break
	}
	return el
}

// decodeEnhancementSource returns the base64-decoded source when s is valid
// base64 of printable UTF-8 text; anything else is plain source and kept.
func decodeEnhancementSource(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil || !isSourceText(decoded) {
		return s
	}
	return string(decoded)
}

func isSourceText(b []byte) bool {
	if len(b) == 0 || !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if r != '\n' && r != '\r' && r != '\t' && !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
