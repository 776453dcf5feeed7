package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oisee/abap-adt-mcp/pkg/adt"
	"github.com/oisee/abap-adt-mcp/pkg/walk"
)

// includeRef is a program or include reached while following INCLUDE statements.
type includeRef struct {
	Name string
	Kind adt.ObjectKind
}

func (r includeRef) key() string {
	return string(r.Kind) + ":" + strings.ToUpper(r.Name)
}

// includeWalker follows INCLUDE statements in ABAP source.
func includeWalker(client *adt.Client, logger *log.Logger, maxDepth int) *walk.Walker[includeRef] {
	return &walk.Walker[includeRef]{
		Fetch: func(ctx context.Context, r includeRef) ([]byte, error) {
			resp, err := client.GetSource(ctx, r.Kind, r.Name)
			if err != nil {
				return nil, err
			}
			return resp.Body, nil
		},
		Extract: func(_ includeRef, source []byte) ([]includeRef, error) {
			names := adt.ParseIncludeStatements(string(source))
			refs := make([]includeRef, len(names))
			for i, n := range names {
				refs[i] = includeRef{Name: n, Kind: adt.KindInclude}
			}
			return refs, nil
		},
		Key:      includeRef.key,
		MaxDepth: maxDepth,
		Logger:   logger,
	}
}

type includeEntry struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
	Depth  int    `json:"depth"`
}

type includesList struct {
	ObjectName string         `json:"object_name"`
	ObjectType string         `json:"object_type"`
	Includes   []includeEntry `json:"includes"`
	Total      int            `json:"total"`
}

func (s *Server) handleGetIncludesList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	objectName, errRes := requireStr(args, "object_name")
	if errRes != nil {
		return errRes, nil
	}
	kind, err := parseObjectKind(getStr(args, "object_type"), adt.KindProgram, adt.KindProgram, adt.KindInclude)
	if err != nil {
		return newInvalidParamsResult(err.Error()), nil
	}
	objectName = strings.ToUpper(objectName)

	client, err := s.client()
	if err != nil {
		return errResult(err), nil
	}

	found, err := includeWalker(client, s.logger, getInt(args, "max_depth", 0)).
		Walk(ctx, includeRef{Name: objectName, Kind: kind})
	if err != nil {
		return errResult(err), nil
	}

	if len(found) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No includes found in %s %s", kind, objectName)), nil
	}

	list := includesList{
		ObjectName: objectName,
		ObjectType: string(kind),
		Includes:   make([]includeEntry, 0, len(found)),
		Total:      len(found),
	}
	for _, f := range found {
		_, parent, _ := strings.Cut(f.Parent, ":")
		list.Includes = append(list.Includes, includeEntry{
			Name:   f.Node.Name,
			Parent: parent,
			Depth:  f.Depth,
		})
	}
	return newToolResultJSON(list), nil
}
