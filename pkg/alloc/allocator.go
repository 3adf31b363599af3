// Package alloc implements the freelist-backed node allocator: a
// singly-linked chain of unallocated blocks rooted in the superblock,
// providing O(1) allocate/deallocate in block I/Os.
package alloc

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bptreedb/pkg/blockio"
	"bptreedb/pkg/layout"
)

// ErrNoSpace is returned by Allocate when the freelist is empty.
var ErrNoSpace = errors.New("alloc: freelist exhausted")

// SuperblockIndex is the fixed block holding the index header.
const SuperblockIndex = 0

// Allocator owns the freelist threaded through the superblock and
// cooperates with a blockio.Device for the actual reads/writes. It
// keeps an in-memory copy of the superblock and re-persists it on
// every change, per §5's "the implementation holds an in-memory copy
// and re-persists it immediately on any change".
type Allocator struct {
	dev blockio.Device
	sb  *layout.Node
}

// Open reads the existing superblock at block 0.
func Open(dev blockio.Device) (*Allocator, error) {
	raw, err := dev.ReadBlock(SuperblockIndex)
	if err != nil {
		return nil, errors.Wrap(err, "alloc: read superblock")
	}
	sb, err := layout.Decode(raw)
	if err != nil {
		return nil, err
	}
	if sb.Kind() != layout.KindSuperblock {
		return nil, errors.Wrap(ErrCorruption, "block 0 is not a superblock")
	}
	return &Allocator{dev: dev, sb: sb}, nil
}

// ErrCorruption flags structural corruption detected by the allocator:
// a freelist walk reaching a block that is not Unallocated, or a
// deallocate of a block that already is.
var ErrCorruption = errors.New("alloc: structural corruption")

// Bootstrap lays down a fresh superblock for a newly created index and
// threads every block from firstFree through numBlocks-1 onto the
// freelist. It does not write the superblock's root pointer — the
// caller (pkg/index) fills that in once the initial root/leaf blocks
// exist, then calls Persist.
func Bootstrap(dev blockio.Device, keySize, valueSize uint32, firstFree, numBlocks uint32) (*Allocator, error) {
	blockSize := uint32(dev.BlockSize())
	sb := layout.New(layout.KindSuperblock, keySize, valueSize, blockSize)
	sb.SetFreelistHead(firstFree)
	a := &Allocator{dev: dev, sb: sb}

	for i := firstFree; i < numBlocks; i++ {
		free := layout.New(layout.KindUnallocated, keySize, valueSize, blockSize)
		next := i + 1
		if next >= numBlocks {
			next = 0
		}
		free.SetFreelistNext(next)
		if err := dev.WriteBlock(i, free.Bytes()); err != nil {
			return nil, errors.Wrapf(err, "alloc: bootstrap freelist block %d", i)
		}
	}
	return a, nil
}

// Superblock returns the allocator's in-memory superblock view. Callers
// (pkg/index) may read RootBlock()/sizing fields directly; any mutation
// of aux0 (root block) must be followed by Persist.
func (a *Allocator) Superblock() *layout.Node { return a.sb }

// Persist writes the in-memory superblock back to block 0.
func (a *Allocator) Persist() error {
	if err := a.dev.WriteBlock(SuperblockIndex, a.sb.Bytes()); err != nil {
		return errors.Wrap(err, "alloc: persist superblock")
	}
	return nil
}

// Reload re-reads the superblock from the device, discarding the
// in-memory copy. Call this after any operation that might have
// mutated the superblock through a different Allocator handle (the
// core never shares handles across goroutines, but reload keeps the
// invariant explicit per the design notes on allocator reentrancy).
func (a *Allocator) Reload() error {
	raw, err := a.dev.ReadBlock(SuperblockIndex)
	if err != nil {
		return errors.Wrap(err, "alloc: reload superblock")
	}
	sb, err := layout.Decode(raw)
	if err != nil {
		return err
	}
	a.sb = sb
	return nil
}

// Allocate pops a block off the freelist and returns its index. The
// returned block is uninitialized with respect to its eventual kind;
// the caller must immediately write a valid header before anyone else
// can observe it.
func (a *Allocator) Allocate() (uint32, error) {
	head := a.sb.FreelistHead()
	if head == 0 {
		return 0, ErrNoSpace
	}
	raw, err := a.dev.ReadBlock(head)
	if err != nil {
		return 0, errors.Wrapf(err, "alloc: read freelist head %d", head)
	}
	node, err := layout.Decode(raw)
	if err != nil {
		return 0, err
	}
	if node.Kind() != layout.KindUnallocated {
		return 0, errors.Wrapf(ErrCorruption, "freelist head %d is not unallocated", head)
	}
	a.sb.SetFreelistHead(node.FreelistNext())
	if err := a.Persist(); err != nil {
		return 0, err
	}
	a.dev.NotifyAllocate(head)
	logrus.WithField("block", head).Debug("node allocated")
	return head, nil
}

// Deallocate returns block b to the freelist.
func (a *Allocator) Deallocate(b uint32) error {
	raw, err := a.dev.ReadBlock(b)
	if err != nil {
		return errors.Wrapf(err, "alloc: read block %d", b)
	}
	node, err := layout.Decode(raw)
	if err != nil {
		return err
	}
	if node.Kind() == layout.KindUnallocated {
		return errors.Wrapf(ErrCorruption, "block %d already unallocated", b)
	}
	node.SetKind(layout.KindUnallocated)
	node.SetFreelistNext(a.sb.FreelistHead())
	if err := a.dev.WriteBlock(b, node.Bytes()); err != nil {
		return errors.Wrapf(err, "alloc: write freed block %d", b)
	}
	a.sb.SetFreelistHead(b)
	if err := a.Persist(); err != nil {
		return err
	}
	a.dev.NotifyDeallocate(b)
	logrus.WithField("block", b).Debug("node deallocated")
	return nil
}
