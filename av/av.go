// Package av defines the basic types shared by the codec parsers and the
// fragmenting muxers.
package av

// CodecType represents a video/audio codec type, e.g. H264/AAC/OPUS.
type CodecType uint32

const codecTypeAudioBit = 0x1
const codecTypeOtherBits = 1

const avCodecTypeMagic = 233333

var (
	H264 = MakeVideoCodecType(avCodecTypeMagic + 1)
	AAC  = MakeAudioCodecType(avCodecTypeMagic + 1)
	OPUS = MakeAudioCodecType(avCodecTypeMagic + 2)
)

func (ct CodecType) String() string {
	switch ct {
	case H264:
		return "H264"
	case AAC:
		return "AAC"
	case OPUS:
		return "OPUS"
	}
	return ""
}

func (ct CodecType) IsAudio() bool {
	return ct&codecTypeAudioBit != 0
}

func (ct CodecType) IsVideo() bool {
	return ct&codecTypeAudioBit == 0
}

func MakeAudioCodecType(base uint32) (c CodecType) {
	c = CodecType(base)<<codecTypeOtherBits | CodecType(codecTypeAudioBit)
	return
}

func MakeVideoCodecType(base uint32) (c CodecType) {
	c = CodecType(base) << codecTypeOtherBits
	return
}

// CodecData is some bytes and metadata which the decoder needs to start
// decoding a stream, e.g. an SPS/PPS pair for H264.
type CodecData interface {
	Type() CodecType
}

type VideoCodecData interface {
	CodecData
	Width() int
	Height() int
}

// Sample is one timed media sample handed to a fragmenter. Timestamps and
// duration are expressed in the owning track's timescale ticks.
type Sample struct {
	PTS        int64
	DTS        int64
	Duration   int64 // must be positive
	IsKeyFrame bool
	Data       []byte
	SideData   []byte // fragmented MP4 has no carriage for side data
}

// StreamInfo carries the per-track metadata a fragmenter needs.
type StreamInfo struct {
	CodecType CodecType
	TimeScale uint32

	// SeekPreroll is the amount of media, in timescale ticks, that must be
	// decoded ahead of a seek point before output is valid. Meaningful for
	// audio codecs only (e.g. Opus).
	SeekPreroll uint64
}
