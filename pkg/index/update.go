package index

// Update overwrites the value stored at an existing key, returning
// ErrNotFound if key is absent. Unlike Insert, Update never grows the
// tree — it only ever rewrites a single leaf slot.
func (ix *Index) Update(key, value []byte) error {
	if err := ix.checkKeyLen(key); err != nil {
		return err
	}
	if err := ix.checkValueLen(value); err != nil {
		return err
	}

	leafID, leaf, err := ix.descendToLeaf(key)
	if err != nil {
		return err
	}
	i, err := leafFind(leaf, key)
	if err != nil {
		return err
	}
	if i < 0 {
		return ErrNotFound
	}
	if err := leaf.SetValue(i, value); err != nil {
		return err
	}
	return ix.writeNode(leafID, leaf)
}
