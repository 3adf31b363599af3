package layout

import (
	"errors"
	"testing"
)

const (
	testKeySize   = 4
	testValueSize = 4
	testBlockSize = 48 // leaf_capacity=3, interior_capacity=2, per spec's literal example
)

func k(s string) []byte { return []byte(s) }

func TestCapacities(t *testing.T) {
	n := New(KindLeaf, testKeySize, testValueSize, testBlockSize)
	if got := n.LeafCapacity(); got != 3 {
		t.Fatalf("LeafCapacity() = %d, want 3", got)
	}
	if got := n.InteriorCapacity(); got != 2 {
		t.Fatalf("InteriorCapacity() = %d, want 2", got)
	}
}

func TestLeafSlotRoundTrip(t *testing.T) {
	n := New(KindLeaf, testKeySize, testValueSize, testBlockSize)
	n.SetNumKeys(2)
	if err := n.SetKey(0, k("aaaa")); err != nil {
		t.Fatalf("SetKey(0): %v", err)
	}
	if err := n.SetValue(0, k("0001")); err != nil {
		t.Fatalf("SetValue(0): %v", err)
	}
	if err := n.SetKey(1, k("bbbb")); err != nil {
		t.Fatalf("SetKey(1): %v", err)
	}
	if err := n.SetValue(1, k("0002")); err != nil {
		t.Fatalf("SetValue(1): %v", err)
	}

	got0, err := n.GetKey(0)
	if err != nil || string(got0) != "aaaa" {
		t.Fatalf("GetKey(0) = %q, %v", got0, err)
	}
	got1, err := n.GetValue(1)
	if err != nil || string(got1) != "0002" {
		t.Fatalf("GetValue(1) = %q, %v", got1, err)
	}
}

func TestSlotOutOfRange(t *testing.T) {
	n := New(KindLeaf, testKeySize, testValueSize, testBlockSize)
	n.SetNumKeys(1)
	if _, err := n.GetKey(1); err != ErrBadSlot {
		t.Fatalf("GetKey(1) on a 1-key leaf = %v, want ErrBadSlot", err)
	}
	if _, err := n.GetKey(-1); err != ErrBadSlot {
		t.Fatalf("GetKey(-1) = %v, want ErrBadSlot", err)
	}
}

func TestInteriorPointerSlots(t *testing.T) {
	n := New(KindInterior, testKeySize, testValueSize, testBlockSize)
	n.SetNumKeys(1)
	if err := n.SetPointer(0, 7); err != nil {
		t.Fatalf("SetPointer(0): %v", err)
	}
	if err := n.SetPointer(1, 9); err != nil {
		t.Fatalf("SetPointer(1): %v", err)
	}
	if _, err := n.GetPointer(2); err != ErrBadSlot {
		t.Fatalf("GetPointer(2) on a 1-key interior = %v, want ErrBadSlot", err)
	}
	p0, _ := n.GetPointer(0)
	p1, _ := n.GetPointer(1)
	if p0 != 7 || p1 != 9 {
		t.Fatalf("pointers = %d, %d, want 7, 9", p0, p1)
	}
}

func TestDecodeRejectsUnrecognizedKind(t *testing.T) {
	n := New(KindLeaf, testKeySize, testValueSize, testBlockSize)
	buf := n.Bytes()
	buf[offKind] = 0xFF
	if _, err := Decode(buf); !errors.Is(err, ErrUnrecognizedKind) {
		t.Fatalf("Decode of corrupted kind = %v, want ErrUnrecognizedKind", err)
	}
}

func TestSuperblockAuxFields(t *testing.T) {
	sb := New(KindSuperblock, testKeySize, testValueSize, testBlockSize)
	sb.SetRootBlock(1)
	sb.SetFreelistHead(3)
	if sb.RootBlock() != 1 {
		t.Fatalf("RootBlock() = %d, want 1", sb.RootBlock())
	}
	if sb.FreelistHead() != 3 {
		t.Fatalf("FreelistHead() = %d, want 3", sb.FreelistHead())
	}
}

func TestBufferAliasing(t *testing.T) {
	n := New(KindLeaf, testKeySize, testValueSize, testBlockSize)
	n.SetNumKeys(1)
	_ = n.SetKey(0, k("aaaa"))
	buf := n.Bytes()

	redecoded, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := redecoded.SetKey(0, k("zzzz")); err != nil {
		t.Fatalf("SetKey via redecoded view: %v", err)
	}
	got, _ := n.GetKey(0)
	if string(got) != "zzzz" {
		t.Fatalf("mutation through redecoded view not visible on original: got %q", got)
	}
}
