package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oisee/abap-adt-mcp/pkg/adt"
)

type enhancementsResult struct {
	ObjectName   string                   `json:"object_name"`
	ObjectType   string                   `json:"object_type"`
	Enhancements []adt.EnhancementElement `json:"enhancements"`
	Total        int                      `json:"total"`
	Error        string                   `json:"error,omitempty"`
}

type nestedEnhancements struct {
	ObjectName        string               `json:"object_name"`
	ObjectType        string               `json:"object_type"`
	Nested            bool                 `json:"nested"`
	Objects           []enhancementsResult `json:"objects"`
	TotalEnhancements int                  `json:"total_enhancements"`
}

func (s *Server) handleGetEnhancements(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	objectName, errRes := requireStr(args, "object_name")
	if errRes != nil {
		return errRes, nil
	}
	kind, err := parseObjectKind(getStr(args, "object_type"), adt.KindProgram,
		adt.KindProgram, adt.KindInclude, adt.KindClass)
	if err != nil {
		return newInvalidParamsResult(err.Error()), nil
	}
	objectName = strings.ToUpper(objectName)

	client, err := s.client()
	if err != nil {
		return errResult(err), nil
	}

	if !getBool(args, "nested", false) || kind == adt.KindClass {
		elements, err := client.GetEnhancements(ctx, kind, objectName)
		if err != nil {
			return errResult(err), nil
		}
		return newToolResultJSON(enhancementsResult{
			ObjectName:   objectName,
			ObjectType:   string(kind),
			Enhancements: elements,
			Total:        len(elements),
		}), nil
	}

	// Flatten the include tree first, then query each object once.
	root := includeRef{Name: objectName, Kind: kind}
	found, err := includeWalker(client, s.logger, getInt(args, "max_depth", 0)).Walk(ctx, root)
	if err != nil {
		return errResult(err), nil
	}

	targets := make([]includeRef, 0, len(found)+1)
	targets = append(targets, root)
	for _, f := range found {
		targets = append(targets, f.Node)
	}

	out := nestedEnhancements{
		ObjectName: objectName,
		ObjectType: string(kind),
		Nested:     true,
		Objects:    make([]enhancementsResult, 0, len(targets)),
	}
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return errResult(err), nil
		}
		entry := enhancementsResult{
			ObjectName:   t.Name,
			ObjectType:   string(t.Kind),
			Enhancements: []adt.EnhancementElement{},
		}
		elements, err := client.GetEnhancements(ctx, t.Kind, t.Name)
		if err != nil {
			s.logger.Warn("enhancement lookup failed", "object", t.key(), "err", err)
			entry.Error = errText(err)
		} else {
			entry.Enhancements = elements
			entry.Total = len(elements)
			out.TotalEnhancements += len(elements)
		}
		out.Objects = append(out.Objects, entry)
	}
	return newToolResultJSON(out), nil
}
