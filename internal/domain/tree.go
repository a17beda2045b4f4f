package domain

import (
	"fmt"
	"sort"
)

// TreeNode is a node placed in the hierarchy
type TreeNode struct {
	Node     `yaml:",inline"`
	FatherID int64       `json:"father_id" yaml:"father_id"`
	Sequence int         `json:"sequence" yaml:"sequence"`
	Children []*TreeNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// Tree is the whole note hierarchy hanging from the virtual root
type Tree struct {
	Roots []*TreeNode `json:"roots" yaml:"roots"`
	// Orphans hang from a father that does not exist
	Orphans []*TreeNode `json:"orphans,omitempty" yaml:"orphans,omitempty"`

	index map[int64]*TreeNode
}

// BuildTree assembles nodes and relations into a Tree. Siblings are ordered
// by sequence, ties broken by id. Nodes without a relation are left out;
// Verify reports them.
func BuildTree(nodes []Node, relations []Relation) *Tree {
	byID := make(map[int64]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	rels := make([]Relation, 0, len(relations))
	for _, r := range relations {
		if _, ok := byID[r.NodeID]; ok {
			rels = append(rels, r)
		}
	}
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].Sequence != rels[j].Sequence {
			return rels[i].Sequence < rels[j].Sequence
		}
		return rels[i].NodeID < rels[j].NodeID
	})

	tree := &Tree{index: make(map[int64]*TreeNode, len(rels))}
	for _, r := range rels {
		tree.index[r.NodeID] = &TreeNode{
			Node:     byID[r.NodeID],
			FatherID: r.FatherID,
			Sequence: r.Sequence,
		}
	}

	for _, r := range rels {
		tn := tree.index[r.NodeID]
		switch father, ok := tree.index[r.FatherID]; {
		case r.FatherID == RootID:
			tree.Roots = append(tree.Roots, tn)
		case ok:
			father.Children = append(father.Children, tn)
		default:
			tree.Orphans = append(tree.Orphans, tn)
		}
	}

	return tree
}

// Find returns the placed node with the given id
func (t *Tree) Find(id int64) (*TreeNode, bool) {
	tn, ok := t.index[id]
	return tn, ok
}

// Len returns the number of placed nodes, including unreachable ones
func (t *Tree) Len() int {
	return len(t.index)
}

// Walk visits every node reachable from the roots in depth-first pre-order,
// passing the node's depth below the virtual root. Returning false from fn
// skips the node's subtree.
func (t *Tree) Walk(fn func(tn *TreeNode, depth int) bool) {
	type frame struct {
		tn    *TreeNode
		depth int
	}

	stack := make([]frame, 0, len(t.Roots))
	for i := len(t.Roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{t.Roots[i], 0})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(f.tn, f.depth) {
			continue
		}
		for i := len(f.tn.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.tn.Children[i], f.depth + 1})
		}
	}
}

// ViolationKind classifies a broken tree invariant
type ViolationKind string

const (
	ViolationLevel           ViolationKind = "level"
	ViolationDanglingParent  ViolationKind = "dangling_parent"
	ViolationCycle           ViolationKind = "cycle"
	ViolationMissingRelation ViolationKind = "missing_relation"
	ViolationAttachment      ViolationKind = "attachment"
)

// Violation is one broken invariant found by Verify
type Violation struct {
	Kind   ViolationKind `json:"kind" yaml:"kind"`
	NodeID int64         `json:"node_id" yaml:"node_id"`
	Detail string        `json:"detail" yaml:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: node %d: %s", v.Kind, v.NodeID, v.Detail)
}

// CheckTree verifies the structural invariants of a built tree: every node
// is reachable from the virtual root and carries level = depth.
func CheckTree(t *Tree, nodes []Node) []Violation {
	var out []Violation

	reached := make(map[int64]bool, t.Len())
	t.Walk(func(tn *TreeNode, depth int) bool {
		reached[tn.ID] = true
		if tn.Level != depth {
			out = append(out, Violation{
				Kind:   ViolationLevel,
				NodeID: tn.ID,
				Detail: fmt.Sprintf("level %d, depth %d", tn.Level, depth),
			})
		}
		return true
	})

	for _, o := range t.Orphans {
		reached[o.ID] = true
		out = append(out, Violation{
			Kind:   ViolationDanglingParent,
			NodeID: o.ID,
			Detail: fmt.Sprintf("father %d does not exist", o.FatherID),
		})
	}

	ids := make([]int64, 0, len(t.index))
	for id := range t.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if reached[id] || isBelowOrphan(t, id) {
			continue
		}
		out = append(out, Violation{
			Kind:   ViolationCycle,
			NodeID: id,
			Detail: "not reachable from the root",
		})
	}

	for _, n := range nodes {
		if _, ok := t.index[n.ID]; !ok {
			out = append(out, Violation{
				Kind:   ViolationMissingRelation,
				NodeID: n.ID,
				Detail: "node has no relation row",
			})
		}
	}

	return out
}

// isBelowOrphan reports whether id sits in the subtree of an orphan, which is
// already reported once at the orphan itself.
func isBelowOrphan(t *Tree, id int64) bool {
	seen := make(map[int64]bool)
	for cur, ok := t.index[id]; ok; cur, ok = t.index[cur.FatherID] {
		if seen[cur.ID] {
			return false
		}
		seen[cur.ID] = true
		if cur.FatherID == RootID {
			return false
		}
		if _, fatherPlaced := t.index[cur.FatherID]; !fatherPlaced {
			return true
		}
	}
	return false
}
