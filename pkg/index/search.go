package index

import (
	"bytes"

	"github.com/pkg/errors"

	"bptreedb/pkg/layout"
)

// descendToLeaf walks from the root to the leaf that would contain
// key, per §4.3/§9: at every interior node, scan keys in ascending
// slot order and take the pointer immediately before the first key
// strictly greater than key (ties route right, into the subtree whose
// minimum key the tie-breaking key was promoted from); if no key
// qualifies, take the rightmost pointer; if num_keys == 0, route
// through P0 (the degenerate initial root with a single empty leaf
// child).
func (ix *Index) descendToLeaf(key []byte) (uint32, *layout.Node, error) {
	id := ix.rootBlock()
	for {
		node, err := ix.readNode(id)
		if err != nil {
			return 0, nil, err
		}
		switch node.Kind() {
		case layout.KindLeaf:
			return id, node, nil
		case layout.KindRoot, layout.KindInterior:
			next, err := childFor(node, key)
			if err != nil {
				return 0, nil, err
			}
			id = next
		default:
			return 0, nil, errors.Wrapf(ErrInsane, "block %d has unexpected kind %s", id, node.Kind())
		}
	}
}

// childFor picks which child pointer to descend into for key, per the
// tie-break rule described above: the first key strictly greater than
// key determines the pointer immediately to its left.
func childFor(node *layout.Node, key []byte) (uint32, error) {
	n := node.NumKeys()
	if n == 0 {
		return node.GetPointer(0)
	}
	for i := 0; i < n; i++ {
		ki, err := node.GetKey(i)
		if err != nil {
			return 0, err
		}
		if bytes.Compare(key, ki) < 0 {
			return node.GetPointer(i)
		}
	}
	return node.GetPointer(n)
}

// leafFind returns the slot index of key within a leaf node, or -1 if
// absent.
func leafFind(leaf *layout.Node, key []byte) (int, error) {
	n := leaf.NumKeys()
	for i := 0; i < n; i++ {
		ki, err := leaf.GetKey(i)
		if err != nil {
			return -1, err
		}
		if bytes.Equal(ki, key) {
			return i, nil
		}
	}
	return -1, nil
}

// Lookup performs a point lookup, returning ErrNotFound if key is
// absent.
func (ix *Index) Lookup(key []byte) ([]byte, error) {
	if err := ix.checkKeyLen(key); err != nil {
		return nil, err
	}
	_, leaf, err := ix.descendToLeaf(key)
	if err != nil {
		return nil, err
	}
	i, err := leafFind(leaf, key)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, ErrNotFound
	}
	return leaf.GetValue(i)
}

func (ix *Index) checkKeyLen(key []byte) error {
	if len(key) != ix.keySize {
		return errors.Errorf("index: key length %d != configured key size %d", len(key), ix.keySize)
	}
	return nil
}

func (ix *Index) checkValueLen(value []byte) error {
	if len(value) != ix.valueSize {
		return errors.Errorf("index: value length %d != configured value size %d", len(value), ix.valueSize)
	}
	return nil
}
