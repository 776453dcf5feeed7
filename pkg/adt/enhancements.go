package adt

import (
	"context"
	"fmt"
	"net/http"
)

// enhancementHosts are the object kinds that carry source code enhancements.
var enhancementHosts = map[ObjectKind]bool{
	KindProgram: true,
	KindInclude: true,
	KindClass:   true,
}

// EnhancementsPath returns the enhancements/elements resource of an object.
func EnhancementsPath(kind ObjectKind, name string) (string, error) {
	if !enhancementHosts[kind] {
		return "", fmt.Errorf("object type %s has no source enhancements", kind)
	}
	path, err := SourcePath(kind, name)
	if err != nil {
		return "", err
	}
	return path + "/enhancements/elements", nil
}

// GetEnhancements lists the source code enhancements of a program, include
// or class. An object without enhancements yields an empty list.
func (c *Client) GetEnhancements(ctx context.Context, kind ObjectKind, name string) ([]EnhancementElement, error) {
	path, err := EnhancementsPath(kind, name)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.Request(ctx, path, &RequestOptions{
		Method: http.MethodGet,
		Accept: "application/xml",
	})
	if err != nil {
		if IsNotFoundError(err) {
			return []EnhancementElement{}, nil
		}
		return nil, fmt.Errorf("getting enhancements of %s %s: %w", kind, name, err)
	}
	return ParseEnhancementElements(resp.Body)
}
