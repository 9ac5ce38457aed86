package breader

import (
	"errors"
	"testing"
)

func TestReads(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})
	if v, err := r.ReadU8(); err != nil || v != 0x01 {
		t.Fatalf("ReadU8 = %v, %v", v, err)
	}
	if v, err := r.ReadU16BE(); err != nil || v != 0x0203 {
		t.Fatalf("ReadU16BE = %#x, %v", v, err)
	}
	if v, err := r.ReadU16LE(); err != nil || v != 0x0504 {
		t.Fatalf("ReadU16LE = %#x, %v", v, err)
	}
	if r.Pos() != 5 || r.Remaining() != 3 {
		t.Fatalf("Pos/Remaining = %d/%d", r.Pos(), r.Remaining())
	}
	if !r.HasBytes(3) || r.HasBytes(4) {
		t.Fatal("HasBytes wrong")
	}
	if _, err := r.ReadU32BE(); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("short ReadU32BE err = %v", err)
	}
}

func TestSliceAndSkip(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})
	b, err := r.Slice(2)
	if err != nil || b[0] != 1 || b[1] != 2 {
		t.Fatalf("Slice = %v, %v", b, err)
	}
	if err := r.Skip(1); err != nil {
		t.Fatal(err)
	}
	if err := r.Skip(2); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("skip past end err = %v", err)
	}
	if _, err := r.Slice(-1); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("negative slice err = %v", err)
	}
}

func TestLittleEndian(t *testing.T) {
	r := NewReader([]byte{0x80, 0xbb, 0x00, 0x00})
	v, err := r.ReadU32LE()
	if err != nil || v != 48000 {
		t.Fatalf("ReadU32LE = %d, %v", v, err)
	}
}
