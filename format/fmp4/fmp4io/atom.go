package fmp4io

import (
	"github.com/ottpack/pdk/utils/bits/pio"
)

type Tag uint32

func (a Tag) String() string {
	var b [4]byte
	pio.PutU32BE(b[:], uint32(a))
	for i := 0; i < 4; i++ {
		if b[i] == 0 {
			b[i] = ' '
		}
	}
	return string(b[:])
}

func StringToTag(tag string) Tag {
	var b [4]byte
	copy(b[:], []byte(tag))
	return Tag(pio.U32BE(b[:]))
}

type Atom interface {
	Pos() (int, int)
	Tag() Tag
	Marshal([]byte) int
	Unmarshal([]byte, int) (int, error)
	Len() int
	Children() []Atom
}

type AtomPos struct {
	Offset int
	Size   int
}

func (a AtomPos) Pos() (int, int) {
	return a.Offset, a.Size
}

func (a *AtomPos) setPos(offset int, size int) {
	a.Offset, a.Size = offset, size
}

type Dummy struct {
	Data []byte
	Tag_ Tag
	AtomPos
}

func (a Dummy) Children() []Atom {
	return nil
}

func (a Dummy) Tag() Tag {
	return a.Tag_
}

func (a Dummy) Len() int {
	return len(a.Data)
}

func (a Dummy) Marshal(b []byte) int {
	copy(b, a.Data)
	return len(a.Data)
}

func (a *Dummy) Unmarshal(b []byte, offset int) (n int, err error) {
	(&a.AtomPos).setPos(offset, len(b))
	a.Data = b
	n = len(b)
	return
}

type FullAtom struct {
	Version uint8
	Flags   uint32
	AtomPos
}

func (f FullAtom) marshalAtom(b []byte, tag Tag) (n int) {
	pio.PutU32BE(b[4:], uint32(tag))
	pio.PutU8(b[8:], f.Version)
	pio.PutU24BE(b[9:], f.Flags)
	return 12
}

func (f FullAtom) atomLen() int {
	return 12
}

func (f *FullAtom) unmarshalAtom(b []byte, offset int) (n int, err error) {
	f.AtomPos.setPos(offset, len(b))
	n = 8
	if len(b) < n+4 {
		return 0, parseErr("fullAtom", offset, nil)
	}
	f.Version = pio.U8(b[n:])
	f.Flags = pio.U24BE(b[n+1:])
	n += 4
	return
}
