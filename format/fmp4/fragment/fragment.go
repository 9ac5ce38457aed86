// Package fragment carries serialized media fragments between producers and
// delivery sinks.
package fragment

// Fragment is one serialized moof+mdat pair.
type Fragment struct {
	Bytes       []byte
	Length      int
	Independent bool // playback can start at this fragment
	Duration    int64
}

// Writer consumes fragments in order.
type Writer interface {
	WriteFragment(frag Fragment) error
}
