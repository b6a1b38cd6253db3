package node

import (
	"fmt"
	"sync/atomic"

	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

// FakeTree is an in-memory node tree with acquire/release accounting
// (for testing only). Every Child call counts as an acquire; the counters
// let tests assert that the walker releases exactly what it acquired.
type FakeTree struct {
	Root *FakeNode

	acquires int64
	releases int64
}

// FakeNode is one node in a FakeTree
type FakeNode struct {
	Class    string
	Resource string
	NodeText string
	Desc     string
	B        types.Bounds
	F        types.Flags
	Children []*FakeNode

	tree     *FakeTree
	released int32

	// ChildErr, when set for an index, makes Child(i) fail (for testing only)
	ChildErr map[int]error
}

// NewFakeTree wires the tree pointer through all nodes and counts the root
// as acquired, mirroring the real source which hands out an acquired root.
func NewFakeTree(root *FakeNode) *FakeTree {
	t := &FakeTree{Root: root}
	var wire func(n *FakeNode)
	wire = func(n *FakeNode) {
		n.tree = t
		for _, c := range n.Children {
			wire(c)
		}
	}
	wire(root)
	atomic.AddInt64(&t.acquires, 1)
	return t
}

// Acquires returns the number of handles handed out so far
func (t *FakeTree) Acquires() int64 { return atomic.LoadInt64(&t.acquires) }

// Releases returns the number of handles released so far
func (t *FakeTree) Releases() int64 { return atomic.LoadInt64(&t.releases) }

// Balanced reports whether every acquired handle has been released
func (t *FakeTree) Balanced() bool { return t.Acquires() == t.Releases() }

func (n *FakeNode) ClassName() string    { return n.Class }
func (n *FakeNode) ResourceID() string   { return n.Resource }
func (n *FakeNode) Text() string         { return n.NodeText }
func (n *FakeNode) Label() string        { return n.Desc }
func (n *FakeNode) Bounds() types.Bounds { return n.B }
func (n *FakeNode) Flags() types.Flags   { return n.F }
func (n *FakeNode) ChildCount() int      { return len(n.Children) }

func (n *FakeNode) Child(i int) (Handle, error) {
	if i < 0 || i >= len(n.Children) {
		return nil, fmt.Errorf("child index %d out of range", i)
	}
	if err, ok := n.ChildErr[i]; ok && err != nil {
		return nil, err
	}
	atomic.AddInt64(&n.tree.acquires, 1)
	return n.Children[i], nil
}

func (n *FakeNode) Release() {
	if atomic.AddInt32(&n.released, 1) == 1 {
		atomic.AddInt64(&n.tree.releases, 1)
		return
	}
	// double release is the exact bug the walker must never have
	panic(fmt.Sprintf("double release of node %q", n.Resource))
}

// Leaf builds a childless node (for testing only)
func Leaf(class, resource, text string) *FakeNode {
	return &FakeNode{Class: class, Resource: resource, NodeText: text, F: types.Flags{Enabled: true}}
}

// Branch builds a container node with the given children (for testing only)
func Branch(class, resource string, children ...*FakeNode) *FakeNode {
	return &FakeNode{Class: class, Resource: resource, Children: children, F: types.Flags{Enabled: true}}
}

// DeepChain builds a single-path tree of the given depth (for testing only)
func DeepChain(depth int) *FakeNode {
	n := Leaf("android.view.View", fmt.Sprintf("node_%d", depth-1), "")
	for i := depth - 2; i >= 0; i-- {
		n = &FakeNode{
			Class:    "android.view.ViewGroup",
			Resource: fmt.Sprintf("node_%d", i),
			Children: []*FakeNode{n},
			F:        types.Flags{Enabled: true},
		}
	}
	return n
}
