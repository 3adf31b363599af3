package blockio

import (
	"errors"
	"path/filepath"
	"testing"
)

func createTemp(t *testing.T, blockSize int, numBlocks uint32) *FileDevice {
	t.Helper()
	dir := t.TempDir()
	fp := filepath.Join(dir, "blocks.bin")
	d, err := CreateFileDevice(fp, blockSize, numBlocks)
	if err != nil {
		t.Fatalf("CreateFileDevice: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestFileDevice_RoundTrip(t *testing.T) {
	d := createTemp(t, 64, 4)

	payloads := [][]byte{
		[]byte("first block payload"),
		[]byte("second"),
	}
	for i, p := range payloads {
		buf := make([]byte, 64)
		copy(buf, p)
		if err := d.WriteBlock(uint32(i), buf); err != nil {
			t.Fatalf("WriteBlock(%d): %v", i, err)
		}
	}
	for i, p := range payloads {
		got, err := d.ReadBlock(uint32(i))
		if err != nil {
			t.Fatalf("ReadBlock(%d): %v", i, err)
		}
		if string(got[:len(p)]) != string(p) {
			t.Fatalf("block %d payload mismatch: got %q, want prefix %q", i, got, p)
		}
	}
}

func TestFileDevice_ChecksumDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "blocks.bin")
	d, err := CreateFileDevice(fp, 32, 2)
	if err != nil {
		t.Fatalf("CreateFileDevice: %v", err)
	}
	defer d.Close()

	buf := make([]byte, 32)
	copy(buf, []byte("integrity"))
	if err := d.WriteBlock(0, buf); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	// Flip a payload byte directly on disk, behind the device's back.
	corrupt := make([]byte, 1)
	if _, err := d.f.ReadAt(corrupt, blockOffset(0, 32)+checksumSize); err != nil {
		t.Fatalf("read raw byte: %v", err)
	}
	corrupt[0] ^= 0xFF
	if _, err := d.f.WriteAt(corrupt, blockOffset(0, 32)+checksumSize); err != nil {
		t.Fatalf("write raw byte: %v", err)
	}

	if _, err := d.ReadBlock(0); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("ReadBlock after corruption = %v, want ErrChecksumMismatch", err)
	}
}

func TestFileDevice_OutOfRange(t *testing.T) {
	d := createTemp(t, 32, 2)
	if _, err := d.ReadBlock(5); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("ReadBlock(5) = %v, want ErrOutOfRange", err)
	}
	if err := d.WriteBlock(5, make([]byte, 32)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("WriteBlock(5) = %v, want ErrOutOfRange", err)
	}
}

func TestFileDevice_DataWrongSize(t *testing.T) {
	d := createTemp(t, 32, 2)
	if err := d.WriteBlock(0, make([]byte, 31)); !errors.Is(err, ErrDataTooLarge) {
		t.Fatalf("WriteBlock(short) = %v, want ErrDataTooLarge", err)
	}
}

func TestOpenFileDevice_DerivesNumBlocks(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "blocks.bin")
	created, err := CreateFileDevice(fp, 32, 7)
	if err != nil {
		t.Fatalf("CreateFileDevice: %v", err)
	}
	_ = created.Close()

	opened, err := OpenFileDevice(fp, 32)
	if err != nil {
		t.Fatalf("OpenFileDevice: %v", err)
	}
	defer opened.Close()
	if opened.NumBlocks() != 7 {
		t.Fatalf("NumBlocks() = %d, want 7", opened.NumBlocks())
	}
}

func TestNotifyCountersAdvisory(t *testing.T) {
	d := createTemp(t, 32, 2)
	d.NotifyAllocate(0)
	d.NotifyAllocate(1)
	d.NotifyDeallocate(0)
	st := d.Stats()
	if st.Allocations != 2 || st.Deallocations != 1 {
		t.Fatalf("Stats() = %+v, want {Allocations:2 Deallocations:1}", st)
	}
}
