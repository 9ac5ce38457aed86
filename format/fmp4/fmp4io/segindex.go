package fmp4io

import "github.com/ottpack/pdk/utils/bits/pio"

const SIDX = Tag(0x73696478)

// SegmentIndex is one sidx box summarizing the subsegments of a media
// segment.
type SegmentIndex struct {
	FullAtom
	ReferenceID uint32
	TimeScale   uint32
	EarliestPTS uint64
	FirstOffset uint64
	References  []SegmentIndexReference
}

// SegmentIndexReference is the wire form of one sidx reference entry.
type SegmentIndexReference struct {
	ReferencesBox      bool
	ReferencedSize     uint32
	SubsegmentDuration uint32
	StartsWithSAP      bool
	SAPType            uint8
	SAPDeltaTime       uint32
}

func (s SegmentIndex) Tag() Tag {
	return SIDX
}

func (s SegmentIndex) Len() (n int) {
	n = s.FullAtom.atomLen()
	n += 4
	n += 4
	if s.Version == 0 {
		n += 8
	} else {
		n += 16
	}
	n += 2
	n += 2
	n += 12 * len(s.References)
	return
}

func (s SegmentIndex) Marshal(b []byte) (n int) {
	n = s.FullAtom.marshalAtom(b, SIDX)
	pio.PutU32BE(b[n:], s.ReferenceID)
	n += 4
	pio.PutU32BE(b[n:], s.TimeScale)
	n += 4
	if s.Version == 0 {
		pio.PutU32BE(b[n:], uint32(s.EarliestPTS))
		n += 4
		pio.PutU32BE(b[n:], uint32(s.FirstOffset))
		n += 4
	} else {
		pio.PutU64BE(b[n:], s.EarliestPTS)
		n += 8
		pio.PutU64BE(b[n:], s.FirstOffset)
		n += 8
	}
	n += 2
	pio.PutU16BE(b[n:], uint16(len(s.References)))
	n += 2
	for _, ref := range s.References {
		v := ref.ReferencedSize & 0x7fffffff
		if ref.ReferencesBox {
			v |= 1 << 31
		}
		pio.PutU32BE(b[n:], v)
		n += 4
		pio.PutU32BE(b[n:], ref.SubsegmentDuration)
		n += 4
		v = (uint32(ref.SAPType&0x7) << 28) | (ref.SAPDeltaTime & 0x0fffffff)
		if ref.StartsWithSAP {
			v |= 1 << 31
		}
		pio.PutU32BE(b[n:], v)
		n += 4
	}
	pio.PutU32BE(b, uint32(n))
	return
}

func (s *SegmentIndex) Unmarshal(b []byte, offset int) (n int, err error) {
	n, err = s.FullAtom.unmarshalAtom(b, offset)
	if err != nil {
		return
	}
	if len(b) < n+8 {
		return 0, parseErr("ReferenceID", n+offset, nil)
	}
	s.ReferenceID = pio.U32BE(b[n:])
	n += 4
	s.TimeScale = pio.U32BE(b[n:])
	n += 4
	if s.Version == 0 {
		if len(b) < n+8 {
			return 0, parseErr("EarliestPTS", n+offset, nil)
		}
		s.EarliestPTS = uint64(pio.U32BE(b[n:]))
		n += 4
		s.FirstOffset = uint64(pio.U32BE(b[n:]))
		n += 4
	} else {
		if len(b) < n+16 {
			return 0, parseErr("EarliestPTS", n+offset, nil)
		}
		s.EarliestPTS = pio.U64BE(b[n:])
		n += 8
		s.FirstOffset = pio.U64BE(b[n:])
		n += 8
	}
	if len(b) < n+4 {
		return 0, parseErr("ReferenceCount", n+offset, nil)
	}
	n += 2
	refCount := int(pio.U16BE(b[n:]))
	n += 2
	if len(b) < n+(12*refCount) {
		return 0, parseErr("SegmentIndexReference", n+offset, nil)
	}
	s.References = make([]SegmentIndexReference, refCount)
	for i := range s.References {
		ref := &s.References[i]
		refSize := pio.U32BE(b[n:])
		n += 4
		ref.ReferencesBox = refSize&(1<<31) != 0
		ref.ReferencedSize = refSize & 0x7fffffff
		ref.SubsegmentDuration = pio.U32BE(b[n:])
		n += 4
		sap := pio.U32BE(b[n:])
		n += 4
		ref.StartsWithSAP = sap&(1<<31) != 0
		ref.SAPType = uint8(0x7 & (sap >> 28))
		ref.SAPDeltaTime = sap & 0x0fffffff
	}
	return
}

func (s SegmentIndex) Children() []Atom {
	return nil
}
