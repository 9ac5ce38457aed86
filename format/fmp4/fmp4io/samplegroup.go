package fmp4io

import (
	"github.com/ottpack/pdk/utils/bits/pio"
)

// Group description indexes in an sbgp entry are biased by where the
// referenced sgpd lives: track-level descriptions count from 1, fragment
// -level descriptions count from 0x10001.
const (
	TrackGroupDescriptionIndexBase    = 0
	FragmentGroupDescriptionIndexBase = 0x10000
)

// RollGroupingType is the grouping type for roll-recovery sample groups,
// used to signal audio seek preroll.
var RollGroupingType = StringToTag("roll")

const SGPD = Tag(0x73677064)

// SampleGroupDescription is one sgpd box. Entries are opaque per-group
// payloads; when every payload has the same size it is written once as the
// default length.
type SampleGroupDescription struct {
	FullAtom
	GroupingType  Tag
	DefaultLength uint32
	Entries       [][]byte
}

// RollGroupDescription builds the single-entry 'roll' description carrying a
// signed roll distance in samples.
func RollGroupDescription(rollDistance int16) *SampleGroupDescription {
	entry := make([]byte, 2)
	pio.PutI16BE(entry, rollDistance)
	return &SampleGroupDescription{
		FullAtom:      FullAtom{Version: 1},
		GroupingType:  RollGroupingType,
		DefaultLength: 2,
		Entries:       [][]byte{entry},
	}
}

func (a SampleGroupDescription) Tag() Tag {
	return SGPD
}

func (a SampleGroupDescription) Len() (n int) {
	n = a.FullAtom.atomLen()
	n += 4
	if a.Version >= 1 {
		n += 4
	}
	n += 4
	for _, entry := range a.Entries {
		if a.Version >= 1 && a.DefaultLength == 0 {
			n += 4
		}
		n += len(entry)
	}
	return
}

func (a SampleGroupDescription) Marshal(b []byte) (n int) {
	n = a.FullAtom.marshalAtom(b, SGPD)
	pio.PutU32BE(b[n:], uint32(a.GroupingType))
	n += 4
	if a.Version >= 1 {
		pio.PutU32BE(b[n:], a.DefaultLength)
		n += 4
	}
	pio.PutU32BE(b[n:], uint32(len(a.Entries)))
	n += 4
	for _, entry := range a.Entries {
		if a.Version >= 1 && a.DefaultLength == 0 {
			pio.PutU32BE(b[n:], uint32(len(entry)))
			n += 4
		}
		copy(b[n:], entry)
		n += len(entry)
	}
	pio.PutU32BE(b, uint32(n))
	return
}

func (a *SampleGroupDescription) Unmarshal(b []byte, offset int) (n int, err error) {
	n, err = a.FullAtom.unmarshalAtom(b, offset)
	if err != nil {
		return
	}
	if len(b) < n+8 {
		return 0, parseErr("GroupingType", n+offset, nil)
	}
	a.GroupingType = Tag(pio.U32BE(b[n:]))
	n += 4
	if a.Version >= 1 {
		a.DefaultLength = pio.U32BE(b[n:])
		n += 4
	}
	if len(b) < n+4 {
		return 0, parseErr("EntryCount", n+offset, nil)
	}
	entryCount := int(pio.U32BE(b[n:]))
	n += 4
	for i := 0; i < entryCount; i++ {
		length := int(a.DefaultLength)
		if a.Version >= 1 && a.DefaultLength == 0 {
			if len(b) < n+4 {
				return 0, parseErr("DescriptionLength", n+offset, nil)
			}
			length = int(pio.U32BE(b[n:]))
			n += 4
		}
		if len(b) < n+length {
			return 0, parseErr("Entry", n+offset, nil)
		}
		a.Entries = append(a.Entries, b[n:n+length])
		n += length
	}
	return
}

func (a SampleGroupDescription) Children() (r []Atom) {
	return
}

const SBGP = Tag(0x73626770)

// SampleToGroup is one sbgp box mapping runs of consecutive samples to a
// group description.
type SampleToGroup struct {
	FullAtom
	GroupingType Tag
	Entries      []SampleToGroupEntry
}

type SampleToGroupEntry struct {
	SampleCount           uint32
	GroupDescriptionIndex uint32
}

func (a SampleToGroup) Tag() Tag {
	return SBGP
}

func (a SampleToGroup) Len() (n int) {
	n = a.FullAtom.atomLen()
	n += 4
	n += 4
	n += 8 * len(a.Entries)
	return
}

func (a SampleToGroup) Marshal(b []byte) (n int) {
	n = a.FullAtom.marshalAtom(b, SBGP)
	pio.PutU32BE(b[n:], uint32(a.GroupingType))
	n += 4
	pio.PutU32BE(b[n:], uint32(len(a.Entries)))
	n += 4
	for _, entry := range a.Entries {
		pio.PutU32BE(b[n:], entry.SampleCount)
		n += 4
		pio.PutU32BE(b[n:], entry.GroupDescriptionIndex)
		n += 4
	}
	pio.PutU32BE(b, uint32(n))
	return
}

func (a *SampleToGroup) Unmarshal(b []byte, offset int) (n int, err error) {
	n, err = a.FullAtom.unmarshalAtom(b, offset)
	if err != nil {
		return
	}
	if len(b) < n+8 {
		return 0, parseErr("GroupingType", n+offset, nil)
	}
	a.GroupingType = Tag(pio.U32BE(b[n:]))
	n += 4
	entryCount := int(pio.U32BE(b[n:]))
	n += 4
	if len(b) < n+8*entryCount {
		return 0, parseErr("Entries", n+offset, nil)
	}
	a.Entries = make([]SampleToGroupEntry, entryCount)
	for i := range a.Entries {
		a.Entries[i].SampleCount = pio.U32BE(b[n:])
		n += 4
		a.Entries[i].GroupDescriptionIndex = pio.U32BE(b[n:])
		n += 4
	}
	return
}

func (a SampleToGroup) Children() (r []Atom) {
	return
}
