// Package index implements the B+Tree search and mutation engines
// (§4.3–§4.4 of the spec) directly over blocks decoded with
// pkg/layout, allocated through pkg/alloc, and read/written through a
// pkg/blockio.Device. It exposes the public Index surface: New,
// Attach, Detach, Lookup, Insert, Update, Display, SanityCheck.
package index

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bptreedb/pkg/alloc"
	"bptreedb/pkg/blockio"
	"bptreedb/pkg/layout"
)

var (
	// ErrNotFound is returned by Lookup/Update when no slot matches the
	// queried key (a.k.a. NonExistent in the spec's error taxonomy).
	ErrNotFound = errors.New("index: key not found")
	// ErrNoSpace is returned by Insert when the allocator's freelist is
	// exhausted.
	ErrNoSpace = alloc.ErrNoSpace
	// ErrInsane is returned when a structural invariant is violated:
	// an unrecognized node kind or a SanityCheck failure. An
	// out-of-range slot access is not wrapped as ErrInsane; it surfaces
	// as layout.ErrBadSlot.
	ErrInsane = errors.New("index: invariant violation")
	// ErrBadAttach is returned by Attach when initialBlock != 0.
	ErrBadAttach = errors.New("index: initial block must be 0")
	// ErrSizeMismatch is returned by Attach(create=false) when the
	// persisted superblock's key/value sizing disagrees with the
	// sizes New was constructed with.
	ErrSizeMismatch = errors.New("index: key/value size mismatch with existing superblock")
)

// rootBlockIndex and firstLeafBlockIndex are the fixed bootstrap
// layout from original_source/btree.cc's Attach(create=true): the
// superblock occupies block 0, the initial root occupies block 1, and
// its sole leaf occupies block 2. Everything from block 3 onward is
// threaded onto the freelist.
const (
	rootBlockIndex      = 1
	firstLeafBlockIndex = 2
	firstFreelistBlock  = 3
)

// Index is the public B+Tree index: an ordered, disk-resident
// key→value map over fixed-size keys and values.
type Index struct {
	dev       blockio.Device
	alloc     *alloc.Allocator
	keySize   int
	valueSize int
	log       *logrus.Entry
}

// New constructs an Index bound to dev, with the given fixed key and
// value sizes. The index is not usable until Attach succeeds.
func New(keySize, valueSize int, dev blockio.Device) *Index {
	return &Index{
		dev:       dev,
		keySize:   keySize,
		valueSize: valueSize,
		log:       logrus.WithField("component", "index"),
	}
}

// Attach mounts the index. initialBlock must be 0. If create, it lays
// down the superblock, an empty interior root, an empty leaf, and
// threads the remaining blocks onto the freelist. Otherwise it reads
// the existing superblock in place and verifies its sizing matches
// the sizes New was called with.
func (ix *Index) Attach(initialBlock uint32, create bool) error {
	if initialBlock != 0 {
		return ErrBadAttach
	}

	if !create {
		a, err := alloc.Open(ix.dev)
		if err != nil {
			return err
		}
		sb := a.Superblock()
		if sb.KeySize() != ix.keySize || sb.ValueSize() != ix.valueSize {
			return ErrSizeMismatch
		}
		ix.alloc = a
		ix.log.Info("attached existing index")
		return nil
	}

	numBlocks := ix.dev.NumBlocks()
	if numBlocks < firstFreelistBlock {
		return errors.Errorf("index: need at least %d blocks to bootstrap, got %d", firstFreelistBlock, numBlocks)
	}
	blockSize := uint32(ix.dev.BlockSize())

	a, err := alloc.Bootstrap(ix.dev, uint32(ix.keySize), uint32(ix.valueSize), firstFreelistBlock, numBlocks)
	if err != nil {
		return err
	}

	leaf := layout.New(layout.KindLeaf, uint32(ix.keySize), uint32(ix.valueSize), blockSize)
	leaf.SetParentBlock(rootBlockIndex)
	ix.dev.NotifyAllocate(firstLeafBlockIndex)
	if err := ix.dev.WriteBlock(firstLeafBlockIndex, leaf.Bytes()); err != nil {
		return errors.Wrap(err, "index: write bootstrap leaf")
	}

	root := layout.New(layout.KindRoot, uint32(ix.keySize), uint32(ix.valueSize), blockSize)
	root.SetNumKeys(0)
	if err := root.SetPointer(0, firstLeafBlockIndex); err != nil {
		return err
	}
	ix.dev.NotifyAllocate(rootBlockIndex)
	if err := ix.dev.WriteBlock(rootBlockIndex, root.Bytes()); err != nil {
		return errors.Wrap(err, "index: write bootstrap root")
	}

	a.Superblock().SetRootBlock(rootBlockIndex)
	ix.dev.NotifyAllocate(alloc.SuperblockIndex)
	if err := a.Persist(); err != nil {
		return err
	}

	ix.alloc = a
	ix.log.WithFields(logrus.Fields{
		"key_size":   ix.keySize,
		"value_size": ix.valueSize,
		"block_size": ix.dev.BlockSize(),
	}).Info("created new index")
	return nil
}

// Detach flushes the superblock. Data blocks are already flushed by
// their own mutations.
func (ix *Index) Detach() error {
	return ix.alloc.Persist()
}

// readNode reads and decodes the node at block i.
func (ix *Index) readNode(i uint32) (*layout.Node, error) {
	raw, err := ix.dev.ReadBlock(i)
	if err != nil {
		return nil, errors.Wrapf(err, "index: read block %d", i)
	}
	n, err := layout.Decode(raw)
	if err != nil {
		return nil, errors.Wrapf(ErrInsane, "block %d: %v", i, err)
	}
	return n, nil
}

// writeNode persists a mutated node view back to block i.
func (ix *Index) writeNode(i uint32, n *layout.Node) error {
	if err := ix.dev.WriteBlock(i, n.Bytes()); err != nil {
		return errors.Wrapf(err, "index: write block %d", i)
	}
	return nil
}

func (ix *Index) rootBlock() uint32 {
	return ix.alloc.Superblock().RootBlock()
}

// KeySize and ValueSize expose the fixed sizing the index was opened
// with, so callers (e.g. the CLI) can validate key/value lengths
// without reaching into internals.
func (ix *Index) KeySize() int   { return ix.keySize }
func (ix *Index) ValueSize() int { return ix.valueSize }
