package fmp4

import (
	"errors"
	"log/slog"

	"github.com/ottpack/pdk/av"
	"github.com/ottpack/pdk/format/fmp4/fmp4io"
)

// TimestampMode selects which sample timestamp drives the media timeline
// (the earliest presentation time reported in segment references).
type TimestampMode int

const (
	// TimestampPresentation uses presentation timestamps.
	TimestampPresentation TimestampMode = iota
	// TimestampDecode uses decode timestamps instead. Works around players
	// that build buffered ranges from decode timestamps.
	TimestampDecode
)

// ErrInvalidSampleDuration reports a caller bug: every sample must carry a
// positive duration. The fragment being built is unusable and must be
// restarted with Initialize before the Fragmenter is reused.
var ErrInvalidSampleDuration = errors.New("fmp4: sample duration must be positive")

// SAPType classifies a stream access point in a segment reference.
type SAPType uint8

const (
	SAPTypeUnknown SAPType = 0
	SAPType1       SAPType = 1
)

// SegmentReference summarizes one finalized fragment for a segment index
// builder. Timestamps and durations are in track timescale ticks.
type SegmentReference struct {
	ReferencesBox            bool
	ReferencedSize           uint32
	SubsegmentDuration       int64
	EarliestPresentationTime int64
	StartsWithSAP            bool
	SAPType                  SAPType
	SAPDeltaTime             int64
}

// Fragmenter accumulates timed samples into a caller-owned TrackFrag, one
// fragment at a time. The TrackFrag is mutated in place: Initialize resets
// it, AddSample grows it, Finalize freezes it for serialization. A
// Fragmenter serves a single track and must not be shared across goroutines;
// independent tracks get independent Fragmenters.
type Fragmenter struct {
	traf        *fmp4io.TrackFrag
	seekPreroll uint64
	mode        TimestampMode

	initialized bool
	finalized   bool

	duration        int64
	earliestPTS     int64
	hasEarliestPTS  bool
	firstSAPTime    int64
	hasFirstSAPTime bool

	// concatenated sample payloads of the current fragment, replaced
	// wholesale on every Initialize
	data []byte
}

// NewFragmenter binds a fragmenter to a caller-owned traf. Seek preroll from
// info drives 'roll' sample grouping and is honored for audio tracks only.
func NewFragmenter(info av.StreamInfo, traf *fmp4io.TrackFrag, mode TimestampMode) *Fragmenter {
	return &Fragmenter{
		traf:        traf,
		seekPreroll: seekPreroll(info),
		mode:        mode,
	}
}

func seekPreroll(info av.StreamInfo) uint64 {
	if !info.CodecType.IsAudio() {
		return 0
	}
	return info.SeekPreroll
}

// Initialize begins a new fragment whose first sample decodes at
// firstSampleDTS, discarding whatever the previous fragment left behind.
func (f *Fragmenter) Initialize(firstSampleDTS int64) {
	f.initialized = true
	f.finalized = false
	if f.traf.Header == nil {
		f.traf.Header = &fmp4io.TrackFragHeader{}
	}
	hdr := f.traf.Header
	hdr.Flags = fmp4io.TrackFragDefaultBaseIsMOOF | fmp4io.TrackFragStsdID
	hdr.StsdID = 1 // sample description indexes are 1-based
	hdr.DefaultDuration = 0
	hdr.DefaultSize = 0
	hdr.DefaultFlags = 0
	f.traf.DecodeTime = &fmp4io.TrackFragDecodeTime{
		Version: 1,
		Time:    uint64(firstSampleDTS),
	}
	f.traf.Run = &fmp4io.TrackFragRun{
		Flags: fmp4io.TrackRunDataOffset,
	}
	f.traf.SampleGroupDescriptions = nil
	f.traf.SampleToGroups = nil
	f.duration = 0
	f.hasEarliestPTS = false
	f.hasFirstSAPTime = false
	f.data = make([]byte, 0, 4096)
}

// AddSample appends one sample to the open fragment, starting a new fragment
// at the sample's decode time if none is open.
func (f *Fragmenter) AddSample(sample av.Sample) error {
	if sample.Duration <= 0 {
		return ErrInvalidSampleDuration
	}
	if !f.initialized {
		f.Initialize(sample.DTS)
	}
	if len(sample.SideData) > 0 {
		slog.Warn("fmp4: samples do not support side data, side data ignored")
	}

	flags := fmp4io.SampleNonKeyframe
	if sample.IsKeyFrame {
		flags = fmp4io.SampleNoDependencies
	}
	run := f.traf.Run
	run.Entries = append(run.Entries, fmp4io.TrackFragRunEntry{
		Duration: uint32(sample.Duration),
		Size:     uint32(len(sample.Data)),
		Flags:    flags,
		CTS:      int32(sample.PTS - sample.DTS),
	})
	f.data = append(f.data, sample.Data...)
	f.duration += sample.Duration

	timestamp := sample.PTS
	if f.mode == TimestampDecode {
		timestamp = sample.DTS
	}
	if !f.hasEarliestPTS || timestamp < f.earliestPTS {
		f.earliestPTS = timestamp
		f.hasEarliestPTS = true
	}

	if sample.PTS != sample.DTS {
		run.Flags |= fmp4io.TrackRunSampleCTS
		if sample.PTS < sample.DTS {
			// negative composition offsets need trun version 1
			run.Version = 1
		}
	}

	if sample.IsKeyFrame && !f.hasFirstSAPTime {
		f.firstSAPTime = sample.PTS
		f.hasFirstSAPTime = true
	}
	return nil
}

// Finalize freezes the open fragment: per-sample fields whose values are
// uniform across the run are promoted to header defaults, the rest stay in
// the run with their presence flags set, and sample-to-group mappings are
// derived. The fragment is read-only afterwards until Initialize; calling
// Finalize again without an open fragment is a no-op.
func (f *Fragmenter) Finalize() {
	if !f.initialized {
		return
	}
	run := f.traf.Run
	hdr := f.traf.Header
	entries := run.Entries

	uniformDuration, uniformSize, uniformFlags := len(entries) > 0, len(entries) > 0, len(entries) > 0
	for i := 1; i < len(entries); i++ {
		uniformDuration = uniformDuration && entries[i].Duration == entries[0].Duration
		uniformSize = uniformSize && entries[i].Size == entries[0].Size
		uniformFlags = uniformFlags && entries[i].Flags == entries[0].Flags
	}
	if uniformDuration {
		hdr.DefaultDuration = entries[0].Duration
		hdr.Flags |= fmp4io.TrackFragDefaultDuration
	} else {
		run.Flags |= fmp4io.TrackRunSampleDuration
	}
	if uniformSize {
		hdr.DefaultSize = entries[0].Size
		hdr.Flags |= fmp4io.TrackFragDefaultSize
	} else {
		run.Flags |= fmp4io.TrackRunSampleSize
	}
	if uniformFlags {
		hdr.DefaultFlags = entries[0].Flags
		hdr.Flags |= fmp4io.TrackFragDefaultFlags
	} else {
		run.Flags |= fmp4io.TrackRunSampleFlags
	}

	// One 'roll' mapping referencing the track-level group description when
	// the track needs seek preroll, then one mapping per fragment-level
	// group description attached before finalize. Every mapping covers the
	// whole run.
	sampleCount := run.SampleCount()
	if f.seekPreroll > 0 {
		f.traf.SampleToGroups = append(f.traf.SampleToGroups, &fmp4io.SampleToGroup{
			GroupingType: fmp4io.RollGroupingType,
			Entries: []fmp4io.SampleToGroupEntry{{
				SampleCount:           sampleCount,
				GroupDescriptionIndex: fmp4io.TrackGroupDescriptionIndexBase + 1,
			}},
		})
	}
	for _, desc := range f.traf.SampleGroupDescriptions {
		f.traf.SampleToGroups = append(f.traf.SampleToGroups, &fmp4io.SampleToGroup{
			GroupingType: desc.GroupingType,
			Entries: []fmp4io.SampleToGroupEntry{{
				SampleCount:           sampleCount,
				GroupDescriptionIndex: fmp4io.FragmentGroupDescriptionIndexBase + 1,
			}},
		})
	}

	f.finalized = true
	f.initialized = false
}

// GenerateSegmentReference fills ref from the finalized fragment. It leaves
// ref untouched until Finalize has run. Daisy-chained references are not
// supported: the reference always points at media, never at another segment
// index.
func (f *Fragmenter) GenerateSegmentReference(ref *SegmentReference) {
	if !f.finalized {
		return
	}
	ref.ReferencesBox = false
	ref.SubsegmentDuration = f.duration
	ref.StartsWithSAP = f.startsWithSAP()
	if !f.hasFirstSAPTime {
		ref.SAPType = SAPTypeUnknown
		ref.SAPDeltaTime = 0
	} else {
		ref.SAPType = SAPType1
		ref.SAPDeltaTime = f.firstSAPTime - f.earliestPTS
	}
	ref.EarliestPresentationTime = f.earliestPTS
}

// startsWithSAP inspects the first sample's effective flags, from the run if
// per-sample flags were retained, else from the promoted header default.
func (f *Fragmenter) startsWithSAP() bool {
	run := f.traf.Run
	if run == nil || len(run.Entries) == 0 {
		return false
	}
	flags := f.traf.Header.DefaultFlags
	if run.Flags&fmp4io.TrackRunSampleFlags != 0 {
		flags = run.Entries[0].Flags
	}
	return flags.IsSync()
}

// Data returns the concatenated sample payloads of the current fragment.
func (f *Fragmenter) Data() []byte {
	return f.data
}
