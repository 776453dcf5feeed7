package mcp

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oisee/abap-adt-mcp/pkg/adt"
	"github.com/oisee/abap-adt-mcp/pkg/walk"
)

// maxListedNodes caps a single object listing.
const maxListedNodes = 5000

// nodeWalker expands repository nodes through the nodestructure resource.
// Every expansion is issued against the root object; only the node id changes.
func nodeWalker(client *adt.Client, logger *log.Logger, root adt.NodeStructureRequest, maxDepth int) *walk.Walker[adt.RepositoryNode] {
	return &walk.Walker[adt.RepositoryNode]{
		Fetch: func(ctx context.Context, n adt.RepositoryNode) ([]byte, error) {
			r := root
			r.NodeID = n.NodeID
			return client.NodeStructure(ctx, r)
		},
		Extract: func(_ adt.RepositoryNode, payload []byte) ([]adt.RepositoryNode, error) {
			result, err := adt.ParseNodeStructure(payload)
			if err != nil {
				return nil, err
			}
			return result.Children(), nil
		},
		Key: adt.RepositoryNode.Key,
		Descend: func(n adt.RepositoryNode) bool {
			return n.NodeID != ""
		},
		MaxDepth: maxDepth,
		MaxNodes: maxListedNodes,
		Logger:   logger,
	}
}

// rootNode is the starting point of a nodestructure walk.
func rootNode(r adt.NodeStructureRequest) adt.RepositoryNode {
	return adt.RepositoryNode{
		Kind:       adt.NodeObject,
		ObjectType: r.ParentType,
		ObjectName: r.ParentName,
		TechName:   r.ParentTechName,
		NodeID:     adt.RootNodeID,
	}
}

func nodeRequest(args map[string]any, nameKey, typeKey string) (adt.NodeStructureRequest, *mcp.CallToolResult) {
	name, errRes := requireStr(args, nameKey)
	if errRes != nil {
		return adt.NodeStructureRequest{}, errRes
	}
	typ, errRes := requireStr(args, typeKey)
	if errRes != nil {
		return adt.NodeStructureRequest{}, errRes
	}
	return adt.NodeStructureRequest{
		ParentName:       strings.ToUpper(name),
		ParentTechName:   strings.ToUpper(getStr(args, "parent_tech_name")),
		ParentType:       strings.ToUpper(typ),
		NodeID:           adt.RootNodeID,
		WithDescriptions: getBool(args, "with_descriptions", true),
	}, nil
}

type objectsList struct {
	ParentName string               `json:"parent_name"`
	ParentType string               `json:"parent_type"`
	Total      int                  `json:"total"`
	Objects    []adt.RepositoryNode `json:"objects"`
}

func (s *Server) handleGetObjectsList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	req, errRes := nodeRequest(args, "parent_name", "parent_type")
	if errRes != nil {
		return errRes, nil
	}

	client, err := s.client()
	if err != nil {
		return errResult(err), nil
	}

	found, err := nodeWalker(client, s.logger, req, getInt(args, "max_depth", 0)).Walk(ctx, rootNode(req))
	if err != nil {
		return errResult(err), nil
	}

	list := objectsList{
		ParentName: req.ParentName,
		ParentType: req.ParentType,
		Objects:    []adt.RepositoryNode{},
	}
	for _, f := range found {
		if f.Node.Kind == adt.NodeObject && f.Node.ObjectName != "" {
			list.Objects = append(list.Objects, f.Node)
		}
	}
	list.Total = len(list.Objects)
	return newToolResultJSON(list), nil
}

// objectTree is one node of GetObjectInfo's output.
type objectTree struct {
	Node     adt.RepositoryNode `json:"node"`
	Children []*objectTree      `json:"children,omitempty"`
}

// buildObjectTree nests walk results under their parents. A node reached
// again on a shorter path may name a parent listed after it, so every node is
// indexed before any is linked.
func buildObjectTree(root adt.RepositoryNode, found []walk.Found[adt.RepositoryNode]) *objectTree {
	tree := &objectTree{Node: root}
	index := map[string]*objectTree{root.Key(): tree}
	nodes := make([]*objectTree, len(found))
	for i, f := range found {
		nodes[i] = &objectTree{Node: f.Node}
		index[f.Node.Key()] = nodes[i]
	}
	for i, f := range found {
		parent, ok := index[f.Parent]
		if !ok {
			parent = tree
		}
		parent.Children = append(parent.Children, nodes[i])
	}
	return tree
}

func (s *Server) handleGetObjectInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	req, errRes := nodeRequest(args, "parent_name", "parent_type")
	if errRes != nil {
		return errRes, nil
	}
	maxDepth := getInt(args, "max_depth", 1)
	if maxDepth < 1 {
		maxDepth = 1
	}

	client, err := s.client()
	if err != nil {
		return errResult(err), nil
	}

	root := rootNode(req)
	found, err := nodeWalker(client, s.logger, req, maxDepth).Walk(ctx, root)
	if err != nil {
		return errResult(err), nil
	}
	return newToolResultJSON(buildObjectTree(root, found)), nil
}
