// Package index implements the in-memory secondary index: a trie per model
// field whose edges are stringified values. It is never persisted and is
// rebuilt lazily from partitions the store has already decoded.
package index

// Node is one trie node. Items accumulate at the node a path ends on.
type Node[T any] struct {
	children map[string]*Node[T]
	items    []T
}

// NewNode returns an empty root node.
func NewNode[T any]() *Node[T] {
	return &Node[T]{children: make(map[string]*Node[T])}
}

// Insert appends item at path, creating intermediate nodes.
func (n *Node[T]) Insert(path []string, item T) {
	cur := n
	for _, seg := range path {
		next, ok := cur.children[seg]
		if !ok {
			next = NewNode[T]()
			cur.children[seg] = next
		}
		cur = next
	}
	cur.items = append(cur.items, item)
}

// Search returns the items stored at path, in insertion order. It returns
// nil when any segment is missing.
func (n *Node[T]) Search(path []string) []T {
	cur := n
	for _, seg := range path {
		next, ok := cur.children[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur.items
}

// Len returns the number of items stored in the subtree rooted at n.
func (n *Node[T]) Len() int {
	total := len(n.items)
	for _, child := range n.children {
		total += child.Len()
	}
	return total
}
