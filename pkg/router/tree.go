package router

import "strings"

// node is a radix tree node. Static children are tried before the
// parameter child, and the catch-all child is the last resort.
type node struct {
	// segment is the static path segment this node matches
	segment string

	// isParam indicates a parameter segment (:id)
	isParam bool

	// isCatchAll indicates a catch-all segment (*path)
	isCatchAll bool

	// paramName is the parameter name (without : or *)
	paramName string

	// slot is the bound slot name; "" means the node is not a leaf
	slot string

	// pattern is the original pattern text of the bound leaf
	pattern string

	children      []*node
	paramChild    *node
	catchAllChild *node
}

func newNode(segment string) *node {
	return &node{segment: segment}
}

// findChild finds a static child with an exact segment match.
func (n *node) findChild(segment string) *node {
	for _, child := range n.children {
		if child.segment == segment {
			return child
		}
	}
	return nil
}

// addChild adds or retrieves the static child for segment.
func (n *node) addChild(segment string) *node {
	if child := n.findChild(segment); child != nil {
		return child
	}
	child := newNode(segment)
	n.children = append(n.children, child)
	return child
}

// addParamChild sets or retrieves the parameter child. Two patterns that
// name the parameter differently at the same position would be ambiguous,
// so that is reported as a conflict.
func (n *node) addParamChild(name string) (*node, error) {
	if n.paramChild != nil {
		if n.paramChild.paramName != name {
			return nil, ErrPatternConflict
		}
		return n.paramChild, nil
	}
	child := newNode("")
	child.isParam = true
	child.paramName = name
	n.paramChild = child
	return child, nil
}

// addCatchAllChild sets or retrieves the catch-all child.
func (n *node) addCatchAllChild(name string) (*node, error) {
	if n.catchAllChild != nil {
		if n.catchAllChild.paramName != name {
			return nil, ErrPatternConflict
		}
		return n.catchAllChild, nil
	}
	child := newNode("")
	child.isCatchAll = true
	child.paramName = name
	n.catchAllChild = child
	return child, nil
}

// insert walks pattern into the tree and returns the leaf node.
func (n *node) insert(pattern string) (*node, error) {
	segments := splitPath(pattern)
	current := n

	for i, seg := range segments {
		switch {
		case strings.HasPrefix(seg, "*"):
			if i != len(segments)-1 {
				return nil, ErrInvalidPattern
			}
			child, err := current.addCatchAllChild(seg[1:])
			if err != nil {
				return nil, err
			}
			current = child
		case strings.HasPrefix(seg, ":"):
			if len(seg) == 1 {
				return nil, ErrInvalidPattern
			}
			child, err := current.addParamChild(seg[1:])
			if err != nil {
				return nil, err
			}
			current = child
		default:
			current = current.addChild(seg)
		}
	}

	return current, nil
}

// match finds the leaf for the given path segments, filling params along
// the way. Params written on a branch that fails are backtracked.
func (n *node) match(segments []string, params map[string]string) (*node, bool) {
	if len(segments) == 0 {
		if n.slot != "" {
			return n, true
		}
		return nil, false
	}

	segment := segments[0]
	remaining := segments[1:]

	// Exact match first.
	if child := n.findChild(segment); child != nil {
		if leaf, ok := child.match(remaining, params); ok {
			return leaf, true
		}
	}

	// Parameter match.
	if n.paramChild != nil {
		value, err := DecodeSegment(segment, false)
		if err == nil {
			params[n.paramChild.paramName] = value
			if leaf, ok := n.paramChild.match(remaining, params); ok {
				return leaf, true
			}
			delete(params, n.paramChild.paramName)
		}
	}

	// Catch-all consumes the remainder.
	if n.catchAllChild != nil && n.catchAllChild.slot != "" {
		rest := strings.Join(append([]string{segment}, remaining...), "/")
		value, err := DecodeSegment(rest, true)
		if err == nil {
			params[n.catchAllChild.paramName] = value
			return n.catchAllChild, true
		}
	}

	return nil, false
}

// splitPath splits a path into segments.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
