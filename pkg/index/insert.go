package index

import (
	"bytes"

	"github.com/pkg/errors"

	"bptreedb/pkg/layout"
)

// descendCollectPath walks from the root to the leaf that should hold
// key, recording every interior/root block visited along the way. The
// design notes call for an explicit stack of breadcrumbs in place of
// relying on cheap deep recursion; path[0] is always the root, and
// path[len(path)-1] is the leaf's immediate parent.
func (ix *Index) descendCollectPath(key []byte) (path []uint32, leafID uint32, leaf *layout.Node, err error) {
	id := ix.rootBlock()
	for {
		node, rerr := ix.readNode(id)
		if rerr != nil {
			return nil, 0, nil, rerr
		}
		if node.Kind() == layout.KindLeaf {
			return path, id, node, nil
		}
		if node.Kind() != layout.KindRoot && node.Kind() != layout.KindInterior {
			return nil, 0, nil, errors.Wrapf(ErrInsane, "block %d has unexpected kind %s", id, node.Kind())
		}
		path = append(path, id)
		next, cerr := childFor(node, key)
		if cerr != nil {
			return nil, 0, nil, cerr
		}
		id = next
	}
}

// Insert adds key -> value to the tree, splitting leaves and interior
// ancestors on overflow and growing the tree height by one when the
// root itself overflows. A second Insert of an existing key overwrites
// its value in place (first-match-wins, see SPEC_FULL.md's Open
// Question resolution) rather than creating a duplicate slot.
func (ix *Index) Insert(key, value []byte) error {
	if err := ix.checkKeyLen(key); err != nil {
		return err
	}
	if err := ix.checkValueLen(value); err != nil {
		return err
	}

	path, leafID, leaf, err := ix.descendCollectPath(key)
	if err != nil {
		return err
	}

	if i, ferr := leafFind(leaf, key); ferr != nil {
		return ferr
	} else if i >= 0 {
		if err := leaf.SetValue(i, value); err != nil {
			return err
		}
		ix.log.WithField("leaf", leafID).Debug("insert overwrote existing key")
		return ix.writeNode(leafID, leaf)
	}

	if leaf.NumKeys() < leaf.LeafCapacity() {
		if err := insertIntoLeafInPlace(leaf, key, value); err != nil {
			return err
		}
		ix.log.WithField("leaf", leafID).Debug("insert wrote into leaf slack")
		return ix.writeNode(leafID, leaf)
	}

	sepKey, rightID, err := ix.splitLeafAndInsert(leafID, leaf, key, value)
	if err != nil {
		return err
	}
	ix.log.WithFields(map[string]interface{}{"leaf": leafID, "right": rightID}).Debug("leaf split")
	return ix.promote(path, sepKey, rightID)
}

// promote inserts (sepKey, rightID) into the innermost open parent in
// path, splitting interior ancestors on overflow and growing the root
// when the overflow reaches the top.
func (ix *Index) promote(path []uint32, sepKey []byte, rightID uint32) error {
	for i := len(path) - 1; i >= 0; i-- {
		parentID := path[i]
		parent, err := ix.readNode(parentID)
		if err != nil {
			return err
		}

		if parent.FreeInteriorSlots() > 0 {
			if err := insertIntoInteriorInPlace(parent, sepKey, rightID); err != nil {
				return err
			}
			return ix.writeNode(parentID, parent)
		}

		if parent.Kind() == layout.KindRoot {
			return ix.splitRoot(parentID, parent, sepKey, rightID)
		}

		newSep, newRight, err := ix.splitInteriorAndInsert(parentID, parent, sepKey, rightID)
		if err != nil {
			return err
		}
		sepKey, rightID = newSep, newRight
	}
	return errors.Wrap(ErrInsane, "promote: path did not begin at the root")
}

// splitRoot handles §4.4.3: the current root overflows, so it is
// demoted to a plain interior node (keeping its block index and
// content, now split into a left/right pair), and a brand-new root
// block is allocated holding the single promoted separator and the
// two pointers (demoted-old-root, new-right-sibling). This is the
// only operation that increases tree height.
func (ix *Index) splitRoot(oldRootID uint32, oldRoot *layout.Node, newKey []byte, newPtr uint32) error {
	// Secure the new root's block first. If the freelist is already
	// exhausted here, the old root hasn't been touched yet — bail
	// before splitInteriorAndInsert would demote and truncate it.
	newRootID, err := ix.alloc.Allocate()
	if err != nil {
		return err
	}

	oldRoot.SetKind(layout.KindInterior)
	sepKey, rightID, err := ix.splitInteriorAndInsert(oldRootID, oldRoot, newKey, newPtr)
	if err != nil {
		return err
	}

	newRoot := layout.New(layout.KindRoot, uint32(ix.keySize), uint32(ix.valueSize), uint32(ix.dev.BlockSize()))
	newRoot.SetNumKeys(1)
	if err := newRoot.SetKey(0, sepKey); err != nil {
		return err
	}
	if err := newRoot.SetPointer(0, oldRootID); err != nil {
		return err
	}
	if err := newRoot.SetPointer(1, rightID); err != nil {
		return err
	}
	if err := ix.writeNode(newRootID, newRoot); err != nil {
		return err
	}

	ix.alloc.Superblock().SetRootBlock(newRootID)
	ix.log.WithField("new_root", newRootID).Info("tree height grew by one")
	return ix.alloc.Persist()
}

// insertIntoLeafInPlace locates the first slot whose key is >= K,
// shifts the suffix right by one, and writes (K,V) at the freed slot.
func insertIntoLeafInPlace(leaf *layout.Node, key, value []byte) error {
	keys, values, err := leafEntries(leaf)
	if err != nil {
		return err
	}
	pos := len(keys)
	for i, k := range keys {
		if bytes.Compare(key, k) < 0 {
			pos = i
			break
		}
	}
	keys = append(keys, nil)
	copy(keys[pos+1:], keys[pos:])
	keys[pos] = key
	values = append(values, nil)
	copy(values[pos+1:], values[pos:])
	values[pos] = value
	return writeLeafEntries(leaf, keys, values)
}

// insertIntoInteriorInPlace locates where newKey sorts among the
// node's existing keys and inserts (newKey, newPtr) as the pointer
// immediately to the right of that position.
func insertIntoInteriorInPlace(node *layout.Node, newKey []byte, newPtr uint32) error {
	keys, ptrs, err := interiorEntries(node)
	if err != nil {
		return err
	}
	pos := len(keys)
	for i, k := range keys {
		if bytes.Compare(newKey, k) < 0 {
			pos = i
			break
		}
	}
	keys = append(keys, nil)
	copy(keys[pos+1:], keys[pos:])
	keys[pos] = newKey

	ptrs = append(ptrs, 0)
	copy(ptrs[pos+2:], ptrs[pos+1:])
	ptrs[pos+1] = newPtr

	return writeInteriorEntries(node, keys, ptrs)
}

// splitLeafAndInsert handles §4.4.1's leaf split: conceptually insert
// into a buffer of leaf_capacity+1 slots, then split so the left
// (m = ceil((leaf_capacity+1)/2) entries) keeps the lower half
// including the median and the right keeps the rest. The separator
// promoted to the parent is the minimum key of the right leaf.
func (ix *Index) splitLeafAndInsert(leafID uint32, leaf *layout.Node, key, value []byte) ([]byte, uint32, error) {
	keys, values, err := leafEntries(leaf)
	if err != nil {
		return nil, 0, err
	}
	pos := len(keys)
	for i, k := range keys {
		if bytes.Compare(key, k) < 0 {
			pos = i
			break
		}
	}
	keys = insertAt(keys, pos, key)
	values = insertAt(values, pos, value)

	total := len(keys)
	m := ceilDiv(total, 2)

	leftKeys, rightKeys := keys[:m], keys[m:]
	leftValues, rightValues := values[:m], values[m:]

	// Secure the right sibling's block before touching the original
	// leaf: the original still holds every one of these keys durably
	// until the moment it is overwritten below, so a NoSpace here
	// leaves the tree exactly as it was pre-insert (§8: exhausting the
	// freelist must not corrupt the tree).
	rightID, err := ix.alloc.Allocate()
	if err != nil {
		return nil, 0, err
	}
	right := layout.New(layout.KindLeaf, uint32(ix.keySize), uint32(ix.valueSize), uint32(ix.dev.BlockSize()))
	right.SetParentBlock(leaf.ParentBlock())
	if err := writeLeafEntries(right, rightKeys, rightValues); err != nil {
		return nil, 0, err
	}
	if err := ix.writeNode(rightID, right); err != nil {
		return nil, 0, err
	}

	leaf.SetNumKeys(0)
	if err := writeLeafEntries(leaf, leftKeys, leftValues); err != nil {
		return nil, 0, err
	}
	if err := ix.writeNode(leafID, leaf); err != nil {
		return nil, 0, err
	}

	return rightKeys[0], rightID, nil
}

// splitInteriorAndInsert handles §4.4.2: conceptually insert
// (newKey, newPtr) into a buffer of interior_capacity+1 keys and
// interior_capacity+2 pointers, then split at
// L = floor((interior_capacity+1)/2): left keeps L keys / L+1
// pointers, right keeps the remaining keys/pointers, and the
// (L+1)-th conceptual key is promoted to the grandparent rather than
// stored in either child.
func (ix *Index) splitInteriorAndInsert(nodeID uint32, node *layout.Node, newKey []byte, newPtr uint32) ([]byte, uint32, error) {
	keys, ptrs, err := interiorEntries(node)
	if err != nil {
		return nil, 0, err
	}
	pos := len(keys)
	for i, k := range keys {
		if bytes.Compare(newKey, k) < 0 {
			pos = i
			break
		}
	}
	keys = insertAt(keys, pos, newKey)
	ptrs = insertPointerAt(ptrs, pos+1, newPtr)

	capacityPlusOne := len(keys)
	l := capacityPlusOne / 2

	leftKeys, rightKeys := keys[:l], keys[l+1:]
	leftPtrs, rightPtrs := ptrs[:l+1], ptrs[l+1:]
	promoted := keys[l]

	// Same ordering rationale as splitLeafAndInsert: secure the right
	// sibling before overwriting node with just the left half.
	rightID, err := ix.alloc.Allocate()
	if err != nil {
		return nil, 0, err
	}
	right := layout.New(layout.KindInterior, uint32(ix.keySize), uint32(ix.valueSize), uint32(ix.dev.BlockSize()))
	right.SetParentBlock(node.ParentBlock())
	if err := writeInteriorEntries(right, rightKeys, rightPtrs); err != nil {
		return nil, 0, err
	}
	if err := ix.writeNode(rightID, right); err != nil {
		return nil, 0, err
	}

	node.SetNumKeys(0)
	if err := writeInteriorEntries(node, leftKeys, leftPtrs); err != nil {
		return nil, 0, err
	}
	if err := ix.writeNode(nodeID, node); err != nil {
		return nil, 0, err
	}

	return promoted, rightID, nil
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func insertAt(s [][]byte, pos int, v []byte) [][]byte {
	s = append(s, nil)
	copy(s[pos+1:], s[pos:])
	s[pos] = v
	return s
}

func insertPointerAt(s []uint32, pos int, v uint32) []uint32 {
	s = append(s, 0)
	copy(s[pos+1:], s[pos:])
	s[pos] = v
	return s
}

// leafEntries decodes every (key,value) pair currently stored in leaf.
func leafEntries(leaf *layout.Node) ([][]byte, [][]byte, error) {
	n := leaf.NumKeys()
	keys := make([][]byte, n)
	values := make([][]byte, n)
	for i := 0; i < n; i++ {
		k, err := leaf.GetKey(i)
		if err != nil {
			return nil, nil, err
		}
		v, err := leaf.GetValue(i)
		if err != nil {
			return nil, nil, err
		}
		keys[i] = k
		values[i] = v
	}
	return keys, values, nil
}

// writeLeafEntries overwrites leaf's slots with the given keys/values
// and sets NumKeys accordingly. Capacity is the caller's
// responsibility to have checked.
func writeLeafEntries(leaf *layout.Node, keys, values [][]byte) error {
	leaf.SetNumKeys(len(keys))
	for i := range keys {
		if err := leaf.SetKey(i, keys[i]); err != nil {
			return err
		}
		if err := leaf.SetValue(i, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// interiorEntries decodes an interior/root node's keys and its
// len(keys)+1 child pointers.
func interiorEntries(node *layout.Node) ([][]byte, []uint32, error) {
	n := node.NumKeys()
	keys := make([][]byte, n)
	ptrs := make([]uint32, n+1)
	for i := 0; i < n; i++ {
		k, err := node.GetKey(i)
		if err != nil {
			return nil, nil, err
		}
		keys[i] = k
	}
	for i := 0; i <= n; i++ {
		p, err := node.GetPointer(i)
		if err != nil {
			return nil, nil, err
		}
		ptrs[i] = p
	}
	return keys, ptrs, nil
}

// writeInteriorEntries overwrites node's slots with the given keys and
// pointers (len(ptrs) must be len(keys)+1) and sets NumKeys.
func writeInteriorEntries(node *layout.Node, keys [][]byte, ptrs []uint32) error {
	node.SetNumKeys(len(keys))
	for i := range keys {
		if err := node.SetKey(i, keys[i]); err != nil {
			return err
		}
	}
	for i := range ptrs {
		if err := node.SetPointer(i, ptrs[i]); err != nil {
			return err
		}
	}
	return nil
}
