package fmp4

import (
	"github.com/ottpack/pdk/format/fmp4/fmp4io"
	"github.com/ottpack/pdk/format/fmp4/fragment"
	"github.com/ottpack/pdk/utils/bits/pio"
)

// MarshalFragment serializes the finalized fragment as one moof+mdat pair.
// The trun data offset is pointed at the first byte of mdat payload,
// relative to the start of moof.
func (f *Fragmenter) MarshalFragment(seqnum uint32) fragment.Fragment {
	moof := &fmp4io.MovieFrag{
		Header: &fmp4io.MovieFragHeader{
			Seqnum: seqnum,
		},
		Tracks: []*fmp4io.TrackFrag{f.traf},
	}
	moofLen := moof.Len()
	f.traf.Run.DataOffset = uint32(moofLen + 8)

	b := make([]byte, moofLen+8, moofLen+8+len(f.data))
	n := moof.Marshal(b)
	pio.PutU32BE(b[n:], uint32(8+len(f.data)))
	pio.PutU32BE(b[n+4:], uint32(fmp4io.MDAT))
	b = append(b, f.data...)

	return fragment.Fragment{
		Bytes:       b,
		Length:      len(b),
		Independent: f.startsWithSAP(),
		Duration:    f.duration,
	}
}
