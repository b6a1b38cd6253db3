// Package walker implements bounded traversal over the externally-owned node
// tree. The walker owns the acquire/release boundary for every handle it
// touches: visitors see a Handle but never release it, and every handle is
// released exactly once on every exit path, including visitor panics and
// cancellation mid-walk.
package walker

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkjhawar/NewAvanues-sub007/internal/logging"
	"github.com/mkjhawar/NewAvanues-sub007/internal/node"
)

// DefaultMaxDepth is the absolute depth ceiling for a traversal
const DefaultMaxDepth = 100

// Decision is the visitor's verdict for one node
type Decision int

const (
	// Continue descends into the node's children
	Continue Decision = iota
	// SkipChildren visits the node but not its subtree
	SkipChildren
	// Stop ends the whole traversal
	Stop
)

// Order selects the traversal strategy
type Order int

const (
	// DepthFirst visits in document order (depth-first, left-to-right)
	DepthFirst Order = iota
	// BreadthFirst visits level by level, left-to-right within a level
	BreadthFirst
)

// Visitor is called once per visited node. Returning an error aborts the
// node's subtree but not the rest of the traversal.
type Visitor func(n node.Handle, depth int) (Decision, error)

// Stats summarizes one traversal
type Stats struct {
	Visited           int
	TruncatedBranches int
	VisitorErrors     int
}

// Walker traverses node trees with a depth ceiling
type Walker struct {
	MaxDepth int
	Order    Order
}

// New returns a depth-first walker with the default ceiling
func New() *Walker {
	return &Walker{MaxDepth: DefaultMaxDepth, Order: DepthFirst}
}

// Walk traverses the tree rooted at root. The walker takes ownership of root
// and releases it. Returns stats plus the first non-visitor error (context
// cancellation); visitor errors are counted, logged, and contained.
func (w *Walker) Walk(ctx context.Context, root node.Handle, visit Visitor) (Stats, error) {
	if root == nil {
		return Stats{}, errors.New("nil root handle")
	}
	maxDepth := w.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	st := &Stats{}
	var err error
	if w.Order == BreadthFirst {
		err = walkBreadth(ctx, root, visit, maxDepth, st)
	} else {
		_, err = walkDepth(ctx, root, visit, 0, maxDepth, st)
	}
	return *st, err
}

// walkDepth visits n and its subtree. It releases n exactly once: the release
// is deferred before anything else can fail. Returns stop=true when the
// visitor asked to end the whole traversal.
func walkDepth(ctx context.Context, n node.Handle, visit Visitor, depth, maxDepth int, st *Stats) (stop bool, err error) {
	defer n.Release()

	if err := ctx.Err(); err != nil {
		return true, err
	}

	dec, verr := safeVisit(visit, n, depth)
	st.Visited++
	if verr != nil {
		st.VisitorErrors++
		logging.Warn("walker", "visitor error at depth %d (%s): %v", depth, n.ResourceID(), verr)
		return false, nil // abort this subtree only
	}
	switch dec {
	case Stop:
		return true, nil
	case SkipChildren:
		return false, nil
	}

	if n.ChildCount() > 0 && depth+1 >= maxDepth {
		st.TruncatedBranches++
		logging.Warn("walker", "depth ceiling %d reached at %s, not descending", maxDepth, n.ResourceID())
		return false, nil
	}

	for i := 0; i < n.ChildCount(); i++ {
		child, cerr := n.Child(i)
		if cerr != nil {
			logging.Debug("walker", "child %d of %s unavailable: %v", i, n.ResourceID(), cerr)
			continue
		}
		stop, err := walkDepth(ctx, child, visit, depth+1, maxDepth, st)
		if stop || err != nil {
			return stop, err
		}
	}
	return false, nil
}

// walkBreadth visits level by level. Queued handles are owned by the queue;
// on any exit the remainder is drained and released.
func walkBreadth(ctx context.Context, root node.Handle, visit Visitor, maxDepth int, st *Stats) (err error) {
	type entry struct {
		h     node.Handle
		depth int
	}
	queue := []entry{{root, 0}}
	defer func() {
		for _, e := range queue {
			e.h.Release()
		}
	}()

	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		if cerr := ctx.Err(); cerr != nil {
			e.h.Release()
			return cerr
		}

		stop := func() bool {
			defer e.h.Release()

			dec, verr := safeVisit(visit, e.h, e.depth)
			st.Visited++
			if verr != nil {
				st.VisitorErrors++
				logging.Warn("walker", "visitor error at depth %d (%s): %v", e.depth, e.h.ResourceID(), verr)
				return false
			}
			switch dec {
			case Stop:
				return true
			case SkipChildren:
				return false
			}

			if e.h.ChildCount() > 0 && e.depth+1 >= maxDepth {
				st.TruncatedBranches++
				logging.Warn("walker", "depth ceiling %d reached at %s, not descending", maxDepth, e.h.ResourceID())
				return false
			}
			for i := 0; i < e.h.ChildCount(); i++ {
				child, cerr := e.h.Child(i)
				if cerr != nil {
					logging.Debug("walker", "child %d of %s unavailable: %v", i, e.h.ResourceID(), cerr)
					continue
				}
				queue = append(queue, entry{child, e.depth + 1})
			}
			return false
		}()
		if stop {
			return nil
		}
	}
	return nil
}

// safeVisit runs the visitor with panic containment so a panicking visitor
// cannot leak handles above it.
func safeVisit(visit Visitor, n node.Handle, depth int) (dec Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			dec = SkipChildren
			err = fmt.Errorf("visitor panic: %v", r)
		}
	}()
	return visit(n, depth)
}
