// Package breader provides a bounded cursor over a byte slice with
// fixed-width big-endian reads. Every read past the end of the buffer fails
// explicitly instead of truncating.
package breader

import (
	"errors"

	"github.com/ottpack/pdk/utils/bits/pio"
)

// ErrShortBuffer is returned when fewer bytes remain than a read requires.
var ErrShortBuffer = errors.New("breader: not enough bytes remain")

// Reader is a cursor over an immutable byte slice. The zero value is an empty
// reader.
type Reader struct {
	b   []byte
	pos int
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Pos returns the current cursor offset from the start of the buffer.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.b) - r.pos
}

// HasBytes reports whether at least n unread bytes remain.
func (r *Reader) HasBytes(n int) bool {
	return r.Remaining() >= n
}

func (r *Reader) ReadU8() (uint8, error) {
	if !r.HasBytes(1) {
		return 0, ErrShortBuffer
	}
	v := pio.U8(r.b[r.pos:])
	r.pos++
	return v, nil
}

func (r *Reader) ReadU16BE() (uint16, error) {
	if !r.HasBytes(2) {
		return 0, ErrShortBuffer
	}
	v := pio.U16BE(r.b[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadU32BE() (uint32, error) {
	if !r.HasBytes(4) {
		return 0, ErrShortBuffer
	}
	v := pio.U32BE(r.b[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadU16LE() (uint16, error) {
	if !r.HasBytes(2) {
		return 0, ErrShortBuffer
	}
	v := pio.U16LE(r.b[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadU32LE() (uint32, error) {
	if !r.HasBytes(4) {
		return 0, ErrShortBuffer
	}
	v := pio.U32LE(r.b[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadU64BE() (uint64, error) {
	if !r.HasBytes(8) {
		return 0, ErrShortBuffer
	}
	v := pio.U64BE(r.b[r.pos:])
	r.pos += 8
	return v, nil
}

// Slice returns a non-owning view of the next n bytes and advances past them.
func (r *Reader) Slice(n int) ([]byte, error) {
	if n < 0 || !r.HasBytes(n) {
		return nil, ErrShortBuffer
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || !r.HasBytes(n) {
		return ErrShortBuffer
	}
	r.pos += n
	return nil
}
