package fmp4

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ottpack/pdk/av"
	"github.com/ottpack/pdk/format/fmp4/fmp4io"
	"github.com/ottpack/pdk/utils/bits/pio"
)

func videoInfo() av.StreamInfo {
	return av.StreamInfo{CodecType: av.H264, TimeScale: 90000}
}

func opusInfo() av.StreamInfo {
	return av.StreamInfo{CodecType: av.OPUS, TimeScale: 48000, SeekPreroll: 3840}
}

func newVideoFragmenter() (*Fragmenter, *fmp4io.TrackFrag) {
	traf := &fmp4io.TrackFrag{Header: &fmp4io.TrackFragHeader{TrackID: 1}}
	return NewFragmenter(videoInfo(), traf, TimestampPresentation), traf
}

func TestAddSampleRejectsNonPositiveDuration(t *testing.T) {
	f, _ := newVideoFragmenter()
	err := f.AddSample(av.Sample{Duration: 0, Data: []byte{1}})
	require.ErrorIs(t, err, ErrInvalidSampleDuration)
	err = f.AddSample(av.Sample{Duration: -10, Data: []byte{1}})
	require.ErrorIs(t, err, ErrInvalidSampleDuration)
}

func TestAddSampleImplicitlyOpensFragment(t *testing.T) {
	f, traf := newVideoFragmenter()
	require.NoError(t, f.AddSample(av.Sample{DTS: 9000, Duration: 10, IsKeyFrame: true, Data: []byte{1}}))
	require.NotNil(t, traf.DecodeTime)
	require.Equal(t, uint64(9000), traf.DecodeTime.Time)
	require.Equal(t, uint32(1), traf.Header.TrackID)
	require.NotZero(t, traf.Header.Flags&fmp4io.TrackFragDefaultBaseIsMOOF)
	require.Equal(t, uint32(1), traf.Header.StsdID)
}

func TestFinalizePromotesUniformFields(t *testing.T) {
	f, traf := newVideoFragmenter()
	f.Initialize(0)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.AddSample(av.Sample{
			PTS: int64(i) * 10, DTS: int64(i) * 10, Duration: 10,
			IsKeyFrame: true, Data: []byte{0xaa, 0xbb},
		}))
	}
	f.Finalize()

	hdr, run := traf.Header, traf.Run
	require.NotZero(t, hdr.Flags&fmp4io.TrackFragDefaultDuration)
	require.Equal(t, uint32(10), hdr.DefaultDuration)
	require.NotZero(t, hdr.Flags&fmp4io.TrackFragDefaultSize)
	require.Equal(t, uint32(2), hdr.DefaultSize)
	require.NotZero(t, hdr.Flags&fmp4io.TrackFragDefaultFlags)
	require.Equal(t, fmp4io.SampleNoDependencies, hdr.DefaultFlags)
	require.Zero(t, run.Flags&fmp4io.TrackRunSampleDuration)
	require.Zero(t, run.Flags&fmp4io.TrackRunSampleSize)
	require.Zero(t, run.Flags&fmp4io.TrackRunSampleFlags)
	require.Zero(t, run.Flags&fmp4io.TrackRunSampleCTS)
}

func TestFinalizeKeepsNonUniformFieldsInRun(t *testing.T) {
	f, traf := newVideoFragmenter()
	f.Initialize(0)
	require.NoError(t, f.AddSample(av.Sample{PTS: 0, DTS: 0, Duration: 10, IsKeyFrame: true, Data: []byte{1, 2, 3}}))
	require.NoError(t, f.AddSample(av.Sample{PTS: 10, DTS: 10, Duration: 10, Data: []byte{4}}))
	require.NoError(t, f.AddSample(av.Sample{PTS: 20, DTS: 20, Duration: 12, Data: []byte{5}}))
	f.Finalize()

	run := traf.Run
	require.NotZero(t, run.Flags&fmp4io.TrackRunSampleDuration)
	require.NotZero(t, run.Flags&fmp4io.TrackRunSampleSize)
	require.NotZero(t, run.Flags&fmp4io.TrackRunSampleFlags)
	require.Equal(t, fmp4io.SampleNoDependencies, run.Entries[0].Flags)
	require.Equal(t, fmp4io.SampleNonKeyframe, run.Entries[1].Flags)
}

func TestReorderedSamplesSetCompositionOffsets(t *testing.T) {
	f, traf := newVideoFragmenter()
	f.Initialize(0)
	require.NoError(t, f.AddSample(av.Sample{PTS: 0, DTS: 0, Duration: 10, IsKeyFrame: true, Data: []byte{1}}))
	require.NoError(t, f.AddSample(av.Sample{PTS: 30, DTS: 10, Duration: 10, Data: []byte{2}}))
	require.NoError(t, f.AddSample(av.Sample{PTS: 20, DTS: 20, Duration: 10, Data: []byte{3}}))
	f.Finalize()

	run := traf.Run
	require.NotZero(t, run.Flags&fmp4io.TrackRunSampleCTS)
	require.Equal(t, uint8(0), run.Version)
	require.Equal(t, int32(20), run.Entries[1].CTS)

	var ref SegmentReference
	f.GenerateSegmentReference(&ref)
	require.Equal(t, int64(0), ref.EarliestPresentationTime)
	require.Equal(t, int64(30), ref.SubsegmentDuration)
	require.True(t, ref.StartsWithSAP)
	require.Equal(t, SAPType1, ref.SAPType)
	require.Equal(t, int64(0), ref.SAPDeltaTime)
	require.False(t, ref.ReferencesBox)
}

func TestNegativeCompositionOffsetUpgradesRunVersion(t *testing.T) {
	f, traf := newVideoFragmenter()
	f.Initialize(0)
	require.NoError(t, f.AddSample(av.Sample{PTS: 0, DTS: 10, Duration: 10, IsKeyFrame: true, Data: []byte{1}}))
	require.Equal(t, uint8(1), traf.Run.Version)
	require.Equal(t, int32(-10), traf.Run.Entries[0].CTS)
}

func TestDecodeTimestampMode(t *testing.T) {
	traf := &fmp4io.TrackFrag{Header: &fmp4io.TrackFragHeader{TrackID: 1}}
	f := NewFragmenter(videoInfo(), traf, TimestampDecode)
	f.Initialize(10)
	require.NoError(t, f.AddSample(av.Sample{PTS: 30, DTS: 10, Duration: 10, IsKeyFrame: true, Data: []byte{1}}))
	f.Finalize()

	var ref SegmentReference
	f.GenerateSegmentReference(&ref)
	require.Equal(t, int64(10), ref.EarliestPresentationTime)
	require.Equal(t, int64(20), ref.SAPDeltaTime)
}

func TestNoKeyframeYieldsUnknownSAP(t *testing.T) {
	f, _ := newVideoFragmenter()
	f.Initialize(0)
	require.NoError(t, f.AddSample(av.Sample{PTS: 0, DTS: 0, Duration: 10, Data: []byte{1}}))
	f.Finalize()

	var ref SegmentReference
	f.GenerateSegmentReference(&ref)
	require.False(t, ref.StartsWithSAP)
	require.Equal(t, SAPTypeUnknown, ref.SAPType)
	require.Equal(t, int64(0), ref.SAPDeltaTime)
}

func TestSeekPrerollEmitsRollGroup(t *testing.T) {
	traf := &fmp4io.TrackFrag{Header: &fmp4io.TrackFragHeader{TrackID: 2}}
	f := NewFragmenter(opusInfo(), traf, TimestampPresentation)
	f.Initialize(0)
	for i := 0; i < 4; i++ {
		require.NoError(t, f.AddSample(av.Sample{
			PTS: int64(i) * 960, DTS: int64(i) * 960, Duration: 960,
			IsKeyFrame: true, Data: []byte{0xf8, 0x01},
		}))
	}
	f.Finalize()

	require.Len(t, traf.SampleToGroups, 1)
	sbgp := traf.SampleToGroups[0]
	require.Equal(t, fmp4io.RollGroupingType, sbgp.GroupingType)
	require.Len(t, sbgp.Entries, 1)
	require.Equal(t, uint32(4), sbgp.Entries[0].SampleCount)
	require.Equal(t, uint32(fmp4io.TrackGroupDescriptionIndexBase+1), sbgp.Entries[0].GroupDescriptionIndex)
}

func TestVideoTrackIgnoresSeekPreroll(t *testing.T) {
	info := videoInfo()
	info.SeekPreroll = 3840
	traf := &fmp4io.TrackFrag{Header: &fmp4io.TrackFragHeader{TrackID: 1}}
	f := NewFragmenter(info, traf, TimestampPresentation)
	f.Initialize(0)
	require.NoError(t, f.AddSample(av.Sample{Duration: 10, IsKeyFrame: true, Data: []byte{1}}))
	f.Finalize()
	require.Empty(t, traf.SampleToGroups)
}

func TestFragmentGroupDescriptionsGetMappings(t *testing.T) {
	f, traf := newVideoFragmenter()
	f.Initialize(0)
	require.NoError(t, f.AddSample(av.Sample{Duration: 10, IsKeyFrame: true, Data: []byte{1}}))
	require.NoError(t, f.AddSample(av.Sample{PTS: 10, DTS: 10, Duration: 10, Data: []byte{2}}))
	traf.SampleGroupDescriptions = append(traf.SampleGroupDescriptions, fmp4io.RollGroupDescription(-2))
	f.Finalize()

	require.Len(t, traf.SampleToGroups, 1)
	sbgp := traf.SampleToGroups[0]
	require.Equal(t, fmp4io.RollGroupingType, sbgp.GroupingType)
	require.Equal(t, uint32(2), sbgp.Entries[0].SampleCount)
	require.Equal(t, uint32(fmp4io.FragmentGroupDescriptionIndexBase+1), sbgp.Entries[0].GroupDescriptionIndex)
}

func TestFinalizeTwiceIsNoOp(t *testing.T) {
	traf := &fmp4io.TrackFrag{Header: &fmp4io.TrackFragHeader{TrackID: 2}}
	f := NewFragmenter(opusInfo(), traf, TimestampPresentation)
	f.Initialize(0)
	require.NoError(t, f.AddSample(av.Sample{Duration: 960, IsKeyFrame: true, Data: []byte{0xf8}}))
	f.Finalize()
	f.Finalize()
	require.Len(t, traf.SampleToGroups, 1)
}

func TestGenerateSegmentReferenceBeforeFinalize(t *testing.T) {
	f, _ := newVideoFragmenter()
	f.Initialize(0)
	require.NoError(t, f.AddSample(av.Sample{Duration: 10, IsKeyFrame: true, Data: []byte{1}}))

	ref := SegmentReference{SubsegmentDuration: -1}
	f.GenerateSegmentReference(&ref)
	require.Equal(t, int64(-1), ref.SubsegmentDuration)

	f.Finalize()
	f.GenerateSegmentReference(&ref)
	require.Equal(t, int64(10), ref.SubsegmentDuration)
	require.True(t, ref.StartsWithSAP)
}

func TestInitializeResetsState(t *testing.T) {
	f, traf := newVideoFragmenter()
	f.Initialize(0)
	require.NoError(t, f.AddSample(av.Sample{Duration: 10, IsKeyFrame: true, Data: []byte{1, 2, 3}}))
	f.Finalize()

	f.Initialize(100)
	require.Empty(t, traf.Run.Entries)
	require.Empty(t, traf.SampleToGroups)
	require.Empty(t, f.Data())
	require.Equal(t, uint64(100), traf.DecodeTime.Time)

	require.NoError(t, f.AddSample(av.Sample{PTS: 100, DTS: 100, Duration: 10, Data: []byte{4}}))
	f.Finalize()
	var ref SegmentReference
	f.GenerateSegmentReference(&ref)
	require.Equal(t, int64(100), ref.EarliestPresentationTime)
	require.Equal(t, int64(10), ref.SubsegmentDuration)
}

func TestMarshalFragment(t *testing.T) {
	f, traf := newVideoFragmenter()
	f.Initialize(0)
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, f.AddSample(av.Sample{Duration: 10, IsKeyFrame: true, Data: payload}))
	f.Finalize()

	frag := f.MarshalFragment(7)
	require.Equal(t, len(frag.Bytes), frag.Length)
	require.True(t, frag.Independent)
	require.Equal(t, int64(10), frag.Duration)

	moofSize := int(pio.U32BE(frag.Bytes))
	var moof fmp4io.MovieFrag
	_, err := moof.Unmarshal(frag.Bytes[:moofSize], 0)
	require.NoError(t, err)
	require.Equal(t, uint32(7), moof.Header.Seqnum)
	require.Len(t, moof.Tracks, 1)
	require.Equal(t, uint32(moofSize+8), moof.Tracks[0].Run.DataOffset)

	mdat := frag.Bytes[moofSize:]
	require.Equal(t, uint32(len(mdat)), pio.U32BE(mdat))
	require.Equal(t, uint32(fmp4io.MDAT), pio.U32BE(mdat[4:]))
	require.Equal(t, payload, mdat[8:])

	require.Equal(t, uint32(1), traf.Run.SampleCount())
}
