// Package opusparser parses Opus identification headers and packet TOCs.
package opusparser

import (
	"bytes"
	"errors"
	"time"

	"github.com/ottpack/pdk/av"
	"github.com/ottpack/pdk/utils/bits/breader"
)

var (
	ErrEmptyPacket  = errors.New("opusparser: empty packet")
	ErrInvalidToc   = errors.New("opusparser: invalid packet toc")
	ErrNotOpusHead  = errors.New("opusparser: not an OpusHead header")
	ErrHeadVersion  = errors.New("opusparser: unsupported OpusHead version")
	ErrHeadTooShort = errors.New("opusparser: OpusHead too short")
)

var opusHeadMagic = []byte("OpusHead")

// SeekPreroll is the decoder convergence period recommended by RFC 7845: 80ms
// of media must be decoded after a seek before output is valid. Expressed
// here in 48kHz ticks.
const SeekPreroll = 80 * 48

// CodecData holds the decoded identification header of an Opus stream.
type CodecData struct {
	Version         uint8
	Channels        int
	PreSkip         uint16
	InputSampleRate uint32
	OutputGain      int16
	MappingFamily   uint8
}

func NewCodecData(channels int) *CodecData {
	return &CodecData{Version: 1, Channels: channels, InputSampleRate: 48000}
}

// NewCodecDataFromOpusHead parses the 'OpusHead' identification header
// (RFC 7845 section 5.1).
func NewCodecDataFromOpusHead(b []byte) (*CodecData, error) {
	if len(b) < 8 || !bytes.Equal(b[:8], opusHeadMagic) {
		return nil, ErrNotOpusHead
	}
	r := breader.NewReader(b[8:])
	version, err := r.ReadU8()
	if err != nil {
		return nil, ErrHeadTooShort
	}
	// only the major version nibble must match
	if version>>4 != 0 {
		return nil, ErrHeadVersion
	}
	d := &CodecData{Version: version}
	channels, err := r.ReadU8()
	if err != nil {
		return nil, ErrHeadTooShort
	}
	d.Channels = int(channels)
	if d.PreSkip, err = r.ReadU16LE(); err != nil {
		return nil, ErrHeadTooShort
	}
	if d.InputSampleRate, err = r.ReadU32LE(); err != nil {
		return nil, ErrHeadTooShort
	}
	gain, err := r.ReadU16LE()
	if err != nil {
		return nil, ErrHeadTooShort
	}
	d.OutputGain = int16(gain)
	if d.MappingFamily, err = r.ReadU8(); err != nil {
		return nil, ErrHeadTooShort
	}
	return d, nil
}

func (d CodecData) Type() av.CodecType {
	return av.OPUS
}

// SampleRate returns the rate Opus decoders always output at.
func (d CodecData) SampleRate() int {
	return 48000
}

// StreamInfo builds the fragmenter-facing track metadata, including the
// RFC 7845 seek preroll.
func (d CodecData) StreamInfo() av.StreamInfo {
	return av.StreamInfo{
		CodecType:   av.OPUS,
		TimeScale:   48000,
		SeekPreroll: SeekPreroll,
	}
}

func (d CodecData) PacketDuration(pkt []byte) (time.Duration, error) {
	return PacketDuration(pkt)
}

// Channels reports the channel count encoded in a packet's TOC byte.
func Channels(pkt []byte) int {
	if len(pkt) > 0 && (pkt[0]&0x4) == 0 {
		return 1
	}
	return 2
}

// PacketDuration decodes the TOC byte and frame-count code of one packet.
func PacketDuration(pkt []byte) (time.Duration, error) {
	if len(pkt) < 1 {
		return 0, ErrEmptyPacket
	}
	toc := pkt[0]
	config := toc >> 3
	code := toc & 0x3
	numFrames := 0
	switch code {
	case 0:
		if len(pkt) > 1 {
			numFrames = 1
		}
	case 1, 2:
		if len(pkt) > 2 {
			numFrames = 2
		}
	case 3:
		if len(pkt) < 2 {
			return 0, ErrInvalidToc
		}
		numFrames = int(pkt[1] & 0x3f)
	}
	return time.Duration(numFrames) * opusFrameTimes[config], nil
}

var opusFrameTimes = []time.Duration{
	// SILK NB
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
	// SILK MB
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
	// SILK WB
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
	// Hybrid SWB
	10 * time.Millisecond,
	20 * time.Millisecond,
	// Hybrid FB
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT NB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT WB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT SWB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT FB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
}
