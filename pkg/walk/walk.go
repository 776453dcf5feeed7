// Package walk implements a cycle-safe, depth-bounded traversal over trees
// whose children are discovered by fetching and parsing a remote resource.
package walk

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// Found is a node discovered during a walk.
type Found[N any] struct {
	Node N
	// Parent is the key of the node whose payload listed this one.
	Parent string
	// Depth is the number of edges from the root; direct children have depth 1.
	Depth int
}

// Walker traverses the graph reachable from a root node.
//
// Fetch loads the payload of a node and Extract turns it into child nodes.
// Key normalizes nodes for deduplication. Descend decides whether a child is
// expanded; a nil Descend expands every child. MaxDepth bounds the number of
// edges between the root and any returned node, and MaxNodes bounds the
// result size; zero means unbounded for both.
//
// Children are visited sequentially, depth-first, in the order Extract
// returned them. A child whose expansion fails is logged and left out of the
// result together with its subtree; only a failure to expand the root is
// returned as an error.
//
// A node reached again on a strictly shorter path takes that path's parent
// and depth, and its subtree is revisited with the larger remaining depth
// budget. Payloads are fetched at most once per node.
type Walker[N any] struct {
	Fetch    func(ctx context.Context, node N) ([]byte, error)
	Extract  func(node N, payload []byte) ([]N, error)
	Key      func(node N) string
	Descend  func(node N) bool
	MaxDepth int
	MaxNodes int
	Logger   *log.Logger
}

type walkState[N any] struct {
	// depth is the shortest distance from the root seen for each key.
	depth map[string]int
	// index is the position of each key in found.
	index    map[string]int
	children map[string][]N
	failed   map[string]bool
	found    []Found[N]
	full     bool
}

// Walk returns every node reachable from root, root excluded, each exactly once.
// If ctx ends mid-walk the nodes found so far are returned with ctx's error.
func (w *Walker[N]) Walk(ctx context.Context, root N) ([]Found[N], error) {
	if w.Fetch == nil || w.Extract == nil || w.Key == nil {
		return nil, fmt.Errorf("walker requires Fetch, Extract and Key")
	}

	rootKey := w.Key(root)
	children, err := w.expand(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("expanding %s: %w", rootKey, err)
	}

	s := &walkState[N]{
		depth:    map[string]int{rootKey: 0},
		index:    map[string]int{},
		children: map[string][]N{rootKey: children},
		failed:   map[string]bool{},
		found:    []Found[N]{},
	}
	if err := w.visit(ctx, s, rootKey, children, 1); err != nil {
		return s.found, err
	}
	return s.found, nil
}

func (w *Walker[N]) visit(ctx context.Context, s *walkState[N], parent string, children []N, depth int) error {
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.full {
			return nil
		}

		key := w.Key(child)
		prev, seen := s.depth[key]
		if seen && (prev <= depth || s.failed[key]) {
			continue
		}
		s.depth[key] = depth
		if i, ok := s.index[key]; ok {
			s.found[i].Parent = parent
			s.found[i].Depth = depth
		}

		if !w.descend(child) || (w.MaxDepth > 0 && depth >= w.MaxDepth) {
			if !seen {
				w.add(s, key, Found[N]{Node: child, Parent: parent, Depth: depth})
			}
			continue
		}

		grandchildren, expanded := s.children[key]
		if !expanded {
			var err error
			grandchildren, err = w.expand(ctx, child)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				w.logger().Warn("skipping branch", "node", key, "depth", depth, "err", err)
				if !seen {
					s.failed[key] = true
				}
				continue
			}
			s.children[key] = grandchildren
		}

		if !seen {
			w.add(s, key, Found[N]{Node: child, Parent: parent, Depth: depth})
		}
		if err := w.visit(ctx, s, key, grandchildren, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker[N]) expand(ctx context.Context, node N) ([]N, error) {
	payload, err := w.Fetch(ctx, node)
	if err != nil {
		return nil, err
	}
	return w.Extract(node, payload)
}

func (w *Walker[N]) add(s *walkState[N], key string, f Found[N]) {
	s.index[key] = len(s.found)
	s.found = append(s.found, f)
	if w.MaxNodes > 0 && len(s.found) >= w.MaxNodes {
		w.logger().Debug("node limit reached", "limit", w.MaxNodes)
		s.full = true
	}
}

func (w *Walker[N]) descend(node N) bool {
	return w.Descend == nil || w.Descend(node)
}

var discard = log.New(io.Discard)

func (w *Walker[N]) logger() *log.Logger {
	if w.Logger == nil {
		return discard
	}
	return w.Logger
}

// Nodes drops the traversal metadata.
func Nodes[N any](found []Found[N]) []N {
	out := make([]N, len(found))
	for i, f := range found {
		out[i] = f.Node
	}
	return out
}
