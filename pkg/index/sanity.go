package index

import (
	"bytes"

	"github.com/pkg/errors"

	"bptreedb/pkg/layout"
)

// SanityCheck walks the whole tree breadth-first and verifies its
// structural invariants:
//
//  1. every node reachable at a given depth has the same kind (the
//     leaf level is homogeneous; no leaf appears above another leaf)
//  2. every non-root interior node and every leaf is at least half
//     full
//  3. leaf values are non-descending when the leaves are visited in
//     left-to-right order
//
// The reference implementation this is grounded on has a bug here: an
// interior case falls through into the leaf case (double-processing
// interior nodes as leaves), and the outer loop never tests whether
// its work queue is empty, so it never terminates. This version fixes
// both: the switch has explicit cases with no fallthrough, and the
// BFS queue is drained by length.
func (ix *Index) SanityCheck() error {
	type queued struct {
		id    uint32
		depth int
	}
	rootID := ix.rootBlock()
	root, err := ix.readNode(rootID)
	if err != nil {
		return err
	}
	// A tree with no keys at all is the bootstrap state (§8: "insert
	// into an empty tree creates exactly one leaf under the root; the
	// root still has zero keys and one pointer"), and its sole leaf is
	// legitimately below the half-full bound.
	singletonEmpty := root.Kind() == layout.KindRoot && root.NumKeys() == 0

	queue := []queued{{id: rootID, depth: 0}}
	depthKind := map[int]layout.Kind{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		node, err := ix.readNode(cur.id)
		if err != nil {
			return err
		}

		if want, ok := depthKind[cur.depth]; ok {
			if node.Kind() != want {
				return errors.Wrapf(ErrInsane, "block %d: depth %d mixes kinds %s and %s", cur.id, cur.depth, want, node.Kind())
			}
		} else {
			depthKind[cur.depth] = node.Kind()
		}

		switch node.Kind() {
		case layout.KindLeaf:
			if !singletonEmpty && node.NumKeys() < node.LeafCapacity()/2 {
				return errors.Wrapf(ErrInsane, "leaf %d underfull: %d/%d", cur.id, node.NumKeys(), node.LeafCapacity())
			}
		case layout.KindInterior:
			if node.NumKeys() < node.InteriorCapacity()/2 {
				return errors.Wrapf(ErrInsane, "interior %d underfull: %d/%d", cur.id, node.NumKeys(), node.InteriorCapacity())
			}
			_, ptrs, err := interiorEntries(node)
			if err != nil {
				return err
			}
			for _, p := range ptrs {
				queue = append(queue, queued{id: p, depth: cur.depth + 1})
			}
		case layout.KindRoot:
			_, ptrs, err := interiorEntries(node)
			if err != nil {
				return err
			}
			for _, p := range ptrs {
				queue = append(queue, queued{id: p, depth: cur.depth + 1})
			}
		default:
			return errors.Wrapf(ErrInsane, "block %d has unexpected kind %s in traversal", cur.id, node.Kind())
		}
	}

	return ix.checkLeafOrdering()
}

// checkLeafOrdering walks the leaf level left-to-right via the
// interior structure (not the BFS order above, which does not
// guarantee left-to-right adjacency across subtrees) and verifies §9
// invariant (d): values appear in non-descending order across all
// leaves in left-to-right order.
func (ix *Index) checkLeafOrdering() error {
	var prev []byte
	var walk func(id uint32) error
	walk = func(id uint32) error {
		node, err := ix.readNode(id)
		if err != nil {
			return err
		}
		switch node.Kind() {
		case layout.KindLeaf:
			_, values, err := leafEntries(node)
			if err != nil {
				return err
			}
			for _, v := range values {
				if prev != nil && bytes.Compare(prev, v) > 0 {
					return errors.Wrapf(ErrInsane, "leaf %d: value %x out of order after %x", id, v, prev)
				}
				prev = v
			}
			return nil
		case layout.KindRoot, layout.KindInterior:
			_, ptrs, err := interiorEntries(node)
			if err != nil {
				return err
			}
			for _, p := range ptrs {
				if err := walk(p); err != nil {
					return err
				}
			}
			return nil
		default:
			return errors.Wrapf(ErrInsane, "block %d has unexpected kind %s", id, node.Kind())
		}
	}
	return walk(ix.rootBlock())
}
