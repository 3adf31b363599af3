package index

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bptreedb/pkg/blockio"
	"bptreedb/pkg/layout"
)

// Spec's literal scenario sizing (§8): key_size=4, value_size=4,
// block_size chosen so leaf_capacity=3, interior_capacity=2.
const (
	testKeySize   = 4
	testValueSize = 4
	testBlockSize = 48
	testNumBlocks = 16
)

func newAttached(t *testing.T, numBlocks uint32) (*Index, *blockio.FileDevice) {
	t.Helper()
	dir := t.TempDir()
	fp := filepath.Join(dir, "idx.bin")
	dev, err := blockio.CreateFileDevice(fp, testBlockSize, numBlocks)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	ix := New(testKeySize, testValueSize, dev)
	require.NoError(t, ix.Attach(0, true))
	return ix, dev
}

func TestEmptyLookupNotFound(t *testing.T) {
	ix, _ := newAttached(t, testNumBlocks)
	_, err := ix.Lookup([]byte("aaaa"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSingleInsertLookup(t *testing.T) {
	ix, _ := newAttached(t, testNumBlocks)
	require.NoError(t, ix.Insert([]byte("bbbb"), []byte("0001")))

	v, err := ix.Lookup([]byte("bbbb"))
	require.NoError(t, err)
	require.Equal(t, "0001", string(v))

	_, err = ix.Lookup([]byte("cccc"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInsertIntoEmptyTreeLeavesRootWithOnePointer(t *testing.T) {
	ix, _ := newAttached(t, testNumBlocks)
	require.NoError(t, ix.Insert([]byte("aaaa"), padValue("A")))

	root, err := ix.readNode(ix.rootBlock())
	require.NoError(t, err)
	require.Equal(t, 0, root.NumKeys())
	p0, err := root.GetPointer(0)
	require.NoError(t, err)

	leaf, err := ix.readNode(p0)
	require.NoError(t, err)
	require.Equal(t, 1, leaf.NumKeys())
}

// §8 scenario 3: four inserts with leaf_capacity=3 force exactly one
// leaf split, producing two leaves and a single separator in the root.
func TestLeafSplitProducesTwoLeavesAndOneSeparator(t *testing.T) {
	ix, _ := newAttached(t, testNumBlocks)

	for _, kv := range [][2]string{
		{"aaaa", "A"},
		{"bbbb", "B"},
		{"cccc", "C"},
		{"dddd", "D"},
	} {
		require.NoError(t, ix.Insert([]byte(kv[0]), padValue(kv[1])))
	}

	root, err := ix.readNode(ix.rootBlock())
	require.NoError(t, err)
	require.Equal(t, 1, root.NumKeys())
	sep, err := root.GetKey(0)
	require.NoError(t, err)
	require.Equal(t, "cccc", string(sep))

	p0, _ := root.GetPointer(0)
	p1, _ := root.GetPointer(1)
	left, err := ix.readNode(p0)
	require.NoError(t, err)
	right, err := ix.readNode(p1)
	require.NoError(t, err)

	leftKeys, _, err := leafEntries(left)
	require.NoError(t, err)
	rightKeys, _, err := leafEntries(right)
	require.NoError(t, err)
	require.Equal(t, []string{"aaaa", "bbbb"}, keysToStrings(leftKeys))
	require.Equal(t, []string{"cccc", "dddd"}, keysToStrings(rightKeys))

	// The exact-match tie-break lands on the right leaf, per SPEC_FULL's
	// resolution of the lookup-vs-split tie-break open question.
	v, err := ix.Lookup([]byte("cccc"))
	require.NoError(t, err)
	require.Equal(t, "C", string(bytes.TrimRight(v, "\x00")))
}

// §8 scenario 4: continuing past the 8th distinct key overflows the
// root and grows the tree's height to 3.
func TestRootOverflowGrowsHeightByOne(t *testing.T) {
	ix, _ := newAttached(t, testNumBlocks*4)

	keys := []string{"aaaa", "bbbb", "cccc", "dddd", "eeee", "ffff", "gggg", "hhhh", "iiii", "jjjj"}
	for i, key := range keys {
		require.NoError(t, ix.Insert([]byte(key), padValue(fmt.Sprintf("%d", i))))
	}

	require.Equal(t, 3, treeHeight(t, ix))

	for i, key := range keys {
		v, err := ix.Lookup([]byte(key))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("%d", i), string(bytes.TrimRight(v, "\x00")))
	}
}

// §8 scenario 5.
func TestUpdateExistingAndMissing(t *testing.T) {
	ix, _ := newAttached(t, testNumBlocks)
	require.NoError(t, ix.Insert([]byte("bbbb"), padValue("B")))

	require.NoError(t, ix.Update([]byte("bbbb"), padValue("B2")))
	v, err := ix.Lookup([]byte("bbbb"))
	require.NoError(t, err)
	require.Equal(t, "B2", string(bytes.TrimRight(v, "\x00")))

	err = ix.Update([]byte("zzzz"), padValue("?"))
	require.ErrorIs(t, err, ErrNotFound)
}

// §8's chosen semantics: a second Insert of an existing key overwrites
// in place rather than erroring or creating a duplicate slot.
func TestSecondInsertOfExistingKeyOverwrites(t *testing.T) {
	ix, _ := newAttached(t, testNumBlocks)
	require.NoError(t, ix.Insert([]byte("bbbb"), padValue("B1")))
	require.NoError(t, ix.Insert([]byte("bbbb"), padValue("B2")))

	v, err := ix.Lookup([]byte("bbbb"))
	require.NoError(t, err)
	require.Equal(t, "B2", string(bytes.TrimRight(v, "\x00")))
	require.NoError(t, ix.SanityCheck())
}

// §8 scenario 6: exhausting the freelist must surface NoSpace without
// corrupting anything already written.
func TestFreelistExhaustionSurfacesNoSpace(t *testing.T) {
	ix, _ := newAttached(t, 6) // superblock + root + leaf + 3 freelist blocks

	var inserted [][2]string
	var sawNoSpace bool
	for i := 0; i < 64 && !sawNoSpace; i++ {
		key := []byte(fmt.Sprintf("k%03d", i))
		val := padValue(fmt.Sprintf("%d", i))
		err := ix.Insert(key, val)
		if errors.Is(err, ErrNoSpace) {
			sawNoSpace = true
			break
		}
		require.NoError(t, err)
		inserted = append(inserted, [2]string{string(key), string(val)})
	}
	require.True(t, sawNoSpace, "expected freelist exhaustion within 64 inserts")

	for _, kv := range inserted {
		v, err := ix.Lookup([]byte(kv[0]))
		require.NoError(t, err)
		require.Equal(t, kv[1], string(v))
	}
}

func TestAttachDetachAttachRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "idx.bin")
	dev, err := blockio.CreateFileDevice(fp, testBlockSize, testNumBlocks)
	require.NoError(t, err)

	ix := New(testKeySize, testValueSize, dev)
	require.NoError(t, ix.Attach(0, true))
	require.NoError(t, ix.Detach())
	require.NoError(t, dev.Close())

	dev2, err := blockio.OpenFileDevice(fp, testBlockSize)
	require.NoError(t, err)
	defer dev2.Close()

	ix2 := New(testKeySize, testValueSize, dev2)
	require.NoError(t, ix2.Attach(0, false))
	_, err = ix2.Lookup([]byte("aaaa"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSanityCheckPassesAfterManyInserts(t *testing.T) {
	ix, _ := newAttached(t, testNumBlocks*8)
	for i := 0; i < 40; i++ {
		key := []byte(fmt.Sprintf("k%03d", i))
		require.NoError(t, ix.Insert(key, padValue(fmt.Sprintf("%04d", i))))
	}
	require.NoError(t, ix.SanityCheck())
}

// padValue right-pads/truncates s to the test value size with zero
// bytes so callers can write short literals like "A" or "B2".
func padValue(s string) []byte {
	v := make([]byte, testValueSize)
	copy(v, s)
	return v
}

func keysToStrings(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// treeHeight counts root-to-leaf depth (root counts as depth 1).
func treeHeight(t *testing.T, ix *Index) int {
	t.Helper()
	depth := 0
	id := ix.rootBlock()
	for {
		node, err := ix.readNode(id)
		require.NoError(t, err)
		depth++
		if node.Kind() == layout.KindLeaf {
			return depth
		}
		p0, err := node.GetPointer(0)
		require.NoError(t, err)
		id = p0
	}
}
