// Package layout implements the on-block byte codec for the four node
// kinds the B+Tree core persists: superblock, root/interior, leaf, and
// unallocated. It knows nothing about disk files or caches (that's
// pkg/blockio) and nothing about search/split algorithms (that's
// pkg/index) — it only translates between a block's raw bytes and a
// slot-addressed view onto them.
package layout

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Kind discriminates what a block currently represents.
type Kind byte

const (
	KindSuperblock  Kind = 0
	KindRoot        Kind = 1
	KindInterior    Kind = 2
	KindLeaf        Kind = 3
	KindUnallocated Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindSuperblock:
		return "superblock"
	case KindRoot:
		return "root"
	case KindInterior:
		return "interior"
	case KindLeaf:
		return "leaf"
	case KindUnallocated:
		return "unallocated"
	default:
		return "unknown"
	}
}

// PointerSize is the width of a block-index pointer field. Pointer 0
// means "no such block" everywhere it appears (freelist terminator,
// empty-subtree marker).
const PointerSize = 4

// HeaderSize is the fixed header every block kind shares:
//
//	kind(1) reserved(1) numKeys(2) keySize(4) valueSize(4) blockSize(4) aux0(4) aux1(4)
//
// aux0/aux1 are parentBlock/freelistNext on live nodes, and
// rootBlock/freelistHead when the block is the superblock.
const HeaderSize = 1 + 1 + 2 + 4 + 4 + 4 + 4 + 4

const (
	offKind      = 0
	offReserved  = 1
	offNumKeys   = 2
	offKeySize   = 4
	offValueSize = 8
	offBlockSize = 12
	offAux0      = 16
	offAux1      = 20
)

var (
	// ErrBadSlot is returned by bounds-checked accessors when a slot
	// index is outside the valid range for the node's kind and
	// num_keys.
	ErrBadSlot = errors.New("layout: slot index out of range")
	// ErrUnrecognizedKind is returned by Decode when the block's kind
	// byte isn't one of the five known kinds — structural corruption.
	ErrUnrecognizedKind = errors.New("layout: unrecognized node kind")
	// ErrWrongKind is returned when an accessor valid for one kind is
	// invoked against a node of a different kind.
	ErrWrongKind = errors.New("layout: accessor not valid for this node kind")
)

// Node is a mutable, slot-addressed view over a block's raw bytes. The
// view shares its backing buffer with the caller — mutations through
// the accessors below are visible in buf without a re-encode step;
// Bytes returns that same buffer for handing to the block device.
type Node struct {
	buf []byte
}

// New builds a fresh, zeroed node of the given kind and sizing,
// ready to be populated via the slot accessors. blockSize must be the
// index's fixed physical block size.
func New(kind Kind, keySize, valueSize, blockSize uint32) *Node {
	buf := make([]byte, blockSize)
	n := &Node{buf: buf}
	n.buf[offKind] = byte(kind)
	binary.LittleEndian.PutUint16(n.buf[offNumKeys:], 0)
	binary.LittleEndian.PutUint32(n.buf[offKeySize:], keySize)
	binary.LittleEndian.PutUint32(n.buf[offValueSize:], valueSize)
	binary.LittleEndian.PutUint32(n.buf[offBlockSize:], blockSize)
	binary.LittleEndian.PutUint32(n.buf[offAux0:], 0)
	binary.LittleEndian.PutUint32(n.buf[offAux1:], 0)
	return n
}

// Decode wraps an existing block buffer as a Node, validating the kind
// byte. The returned Node shares buf's backing array.
func Decode(buf []byte) (*Node, error) {
	if len(buf) < HeaderSize {
		return nil, errors.Wrap(ErrUnrecognizedKind, "buffer shorter than header")
	}
	k := Kind(buf[offKind])
	switch k {
	case KindSuperblock, KindRoot, KindInterior, KindLeaf, KindUnallocated:
	default:
		return nil, errors.Wrapf(ErrUnrecognizedKind, "kind byte %d", buf[offKind])
	}
	return &Node{buf: buf}, nil
}

// Bytes returns the node's backing buffer, mutated in place by the
// slot accessors below. Callers write this straight to the block
// device; there is no separate Encode step to invoke.
func (n *Node) Bytes() []byte { return n.buf }

func (n *Node) Kind() Kind { return Kind(n.buf[offKind]) }

func (n *Node) SetKind(k Kind) { n.buf[offKind] = byte(k) }

func (n *Node) NumKeys() int {
	return int(binary.LittleEndian.Uint16(n.buf[offNumKeys:]))
}

func (n *Node) SetNumKeys(c int) {
	binary.LittleEndian.PutUint16(n.buf[offNumKeys:], uint16(c))
}

func (n *Node) KeySize() int   { return int(binary.LittleEndian.Uint32(n.buf[offKeySize:])) }
func (n *Node) ValueSize() int { return int(binary.LittleEndian.Uint32(n.buf[offValueSize:])) }
func (n *Node) BlockSize() int { return int(binary.LittleEndian.Uint32(n.buf[offBlockSize:])) }

// ParentBlock / SetParentBlock address the aux0 header field on live
// nodes (root/interior/leaf). The core never walks upward through it:
// it is set when a node is created (a split sibling copies the
// splitting node's value) and is not updated when a split moves
// children under a new sibling or demotes the root.
func (n *Node) ParentBlock() uint32 { return binary.LittleEndian.Uint32(n.buf[offAux0:]) }
func (n *Node) SetParentBlock(p uint32) {
	binary.LittleEndian.PutUint32(n.buf[offAux0:], p)
}

// FreelistNext / SetFreelistNext address the aux1 header field, valid
// only when Kind() == KindUnallocated. Live nodes always persist this
// as 0 (see SPEC_FULL.md's Open Question resolution on dropping the
// per-node freelist field from live nodes).
func (n *Node) FreelistNext() uint32 { return binary.LittleEndian.Uint32(n.buf[offAux1:]) }
func (n *Node) SetFreelistNext(p uint32) {
	binary.LittleEndian.PutUint32(n.buf[offAux1:], p)
}

// RootBlock / SetRootBlock address the aux0 field when the node is the
// superblock.
func (n *Node) RootBlock() uint32     { return binary.LittleEndian.Uint32(n.buf[offAux0:]) }
func (n *Node) SetRootBlock(b uint32) { binary.LittleEndian.PutUint32(n.buf[offAux0:], b) }

// FreelistHead / SetFreelistHead address the aux1 field when the node
// is the superblock.
func (n *Node) FreelistHead() uint32     { return binary.LittleEndian.Uint32(n.buf[offAux1:]) }
func (n *Node) SetFreelistHead(b uint32) { binary.LittleEndian.PutUint32(n.buf[offAux1:], b) }

// LeafCapacity is the maximum number of (key,value) pairs a leaf of
// this sizing can hold.
func (n *Node) LeafCapacity() int {
	return leafCapacity(n.BlockSize(), n.KeySize(), n.ValueSize())
}

func leafCapacity(blockSize, keySize, valueSize int) int {
	return (blockSize - HeaderSize) / (keySize + valueSize)
}

// InteriorCapacity is the maximum number of keys an interior node of
// this sizing can hold (there is always one more pointer than keys).
func (n *Node) InteriorCapacity() int {
	return interiorCapacity(n.BlockSize(), n.KeySize())
}

func interiorCapacity(blockSize, keySize int) int {
	return (blockSize - HeaderSize - PointerSize) / (keySize + PointerSize)
}

func (n *Node) FreeLeafSlots() int     { return n.LeafCapacity() - n.NumKeys() }
func (n *Node) FreeInteriorSlots() int { return n.InteriorCapacity() - n.NumKeys() }

// ResolveKeyOffset returns the byte offset of key slot i within buf.
// Valid for leaf and interior/root kinds; leaves lay out
// (K0 V0)(K1 V1).., interior/root lay out P0 K0 P1 K1 .. Kn-1 Pn.
func (n *Node) ResolveKeyOffset(i int) (int, error) {
	switch n.Kind() {
	case KindLeaf:
		if i < 0 || i >= n.NumKeys() {
			return 0, ErrBadSlot
		}
		entry := n.KeySize() + n.ValueSize()
		return HeaderSize + i*entry, nil
	case KindRoot, KindInterior:
		if i < 0 || i >= n.NumKeys() {
			return 0, ErrBadSlot
		}
		entry := PointerSize + n.KeySize()
		return HeaderSize + PointerSize + i*entry, nil
	default:
		return 0, ErrWrongKind
	}
}

// ResolvePointerOffset returns the byte offset of pointer slot i
// within buf. Valid only for interior/root kinds, where pointer i
// ranges over [0, NumKeys()].
func (n *Node) ResolvePointerOffset(i int) (int, error) {
	switch n.Kind() {
	case KindRoot, KindInterior:
		if i < 0 || i > n.NumKeys() {
			return 0, ErrBadSlot
		}
		entry := PointerSize + n.KeySize()
		return HeaderSize + i*entry, nil
	default:
		return 0, ErrWrongKind
	}
}

// GetKey returns a copy of key slot i.
func (n *Node) GetKey(i int) ([]byte, error) {
	off, err := n.ResolveKeyOffset(i)
	if err != nil {
		return nil, err
	}
	ks := n.KeySize()
	out := make([]byte, ks)
	copy(out, n.buf[off:off+ks])
	return out, nil
}

// SetKey overwrites key slot i with k (must be exactly KeySize bytes).
func (n *Node) SetKey(i int, k []byte) error {
	off, err := n.ResolveKeyOffset(i)
	if err != nil {
		return err
	}
	ks := n.KeySize()
	if len(k) != ks {
		return errors.Errorf("layout: key length %d != keySize %d", len(k), ks)
	}
	copy(n.buf[off:off+ks], k)
	return nil
}

// GetValue returns a copy of value slot i. Leaf-only.
func (n *Node) GetValue(i int) ([]byte, error) {
	if n.Kind() != KindLeaf {
		return nil, ErrWrongKind
	}
	if i < 0 || i >= n.NumKeys() {
		return nil, ErrBadSlot
	}
	ks, vs := n.KeySize(), n.ValueSize()
	off := HeaderSize + i*(ks+vs) + ks
	out := make([]byte, vs)
	copy(out, n.buf[off:off+vs])
	return out, nil
}

// SetValue overwrites value slot i with v (must be exactly ValueSize
// bytes). Leaf-only.
func (n *Node) SetValue(i int, v []byte) error {
	if n.Kind() != KindLeaf {
		return ErrWrongKind
	}
	if i < 0 || i >= n.NumKeys() {
		return ErrBadSlot
	}
	ks, vs := n.KeySize(), n.ValueSize()
	if len(v) != vs {
		return errors.Errorf("layout: value length %d != valueSize %d", len(v), vs)
	}
	off := HeaderSize + i*(ks+vs) + ks
	copy(n.buf[off:off+vs], v)
	return nil
}

// GetPointer returns child pointer i (0..NumKeys inclusive). Valid
// only for interior/root kinds.
func (n *Node) GetPointer(i int) (uint32, error) {
	off, err := n.ResolvePointerOffset(i)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(n.buf[off:]), nil
}

// SetPointer overwrites child pointer i. Valid only for
// interior/root kinds.
func (n *Node) SetPointer(i int, p uint32) error {
	off, err := n.ResolvePointerOffset(i)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(n.buf[off:], p)
	return nil
}
