package h264parser

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ottpack/pdk/utils/bits/breader"
	"github.com/ottpack/pdk/utils/bits/pio"
)

// Causes carried by ParseError for programmatic matching.
var (
	ErrRecordVersion      = errors.New("configuration record version must be 1")
	ErrReservedLengthSize = errors.New("reserved NALU length size encoding")
	ErrNALUType           = errors.New("unexpected NALU type")
)

// ParseError describes why a decoder configuration record was rejected.
type ParseError struct {
	Field  string
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("h264parser: %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErr(field string, offset int, cause error) error {
	return &ParseError{Field: field, Offset: offset, Err: cause}
}

// AVCDecoderConfRecord is a parsed AVCDecoderConfigurationRecord
// (ISO 14496-15 sec 5.3.3.1.2). It is immutable once parsed; a failed parse
// yields no record.
type AVCDecoderConfRecord struct {
	Version              uint8
	AVCProfileIndication uint8
	ProfileCompatibility uint8
	AVCLevelIndication   uint8
	NALULengthSize       int

	// parameter set payloads, in record order
	SPS    [][]byte
	PPS    [][]byte
	SPSExt [][]byte

	// derived from the first SPS
	SPSInfo                 SPSInfo
	CodedWidth              int
	CodedHeight             int
	PixelWidth              int
	PixelHeight             int
	TransferCharacteristics uint

	// NoParameterSets is set when the record carries zero SPS units. The
	// record is still valid; consumers needing resolution must decide for
	// themselves.
	NoParameterSets bool

	// ExtensionSkipped is set when the profile calls for an extension block
	// but fewer than 4 bytes remained. The parse still succeeds with the
	// extension omitted.
	ExtensionSkipped bool
}

// extension block applies only to these profiles
func hasProfileExtension(profileIndication uint8) bool {
	switch profileIndication {
	case 100, 110, 122, 144:
		return true
	}
	return false
}

// ParseAVCDecoderConfRecord parses raw configuration record bytes. Any
// structural violation aborts the parse; non-fatal conditions are reported
// on the returned record.
func ParseAVCDecoderConfRecord(b []byte) (AVCDecoderConfRecord, error) {
	var rec AVCDecoderConfRecord
	r := breader.NewReader(b)

	var err error
	if rec.Version, err = r.ReadU8(); err != nil {
		return AVCDecoderConfRecord{}, parseErr("Version", r.Pos(), err)
	}
	if rec.Version != 1 {
		return AVCDecoderConfRecord{}, parseErr("Version", 0, ErrRecordVersion)
	}
	if rec.AVCProfileIndication, err = r.ReadU8(); err != nil {
		return AVCDecoderConfRecord{}, parseErr("AVCProfileIndication", r.Pos(), err)
	}
	if rec.ProfileCompatibility, err = r.ReadU8(); err != nil {
		return AVCDecoderConfRecord{}, parseErr("ProfileCompatibility", r.Pos(), err)
	}
	if rec.AVCLevelIndication, err = r.ReadU8(); err != nil {
		return AVCDecoderConfRecord{}, parseErr("AVCLevelIndication", r.Pos(), err)
	}

	var lengthSize uint8
	if lengthSize, err = r.ReadU8(); err != nil {
		return AVCDecoderConfRecord{}, parseErr("LengthSize", r.Pos(), err)
	}
	if lengthSize&0x3 == 2 {
		return AVCDecoderConfRecord{}, parseErr("LengthSize", r.Pos()-1, ErrReservedLengthSize)
	}
	rec.NALULengthSize = int(lengthSize&0x3) + 1

	var numSPS uint8
	if numSPS, err = r.ReadU8(); err != nil {
		return AVCDecoderConfRecord{}, parseErr("SPSCount", r.Pos(), err)
	}
	numSPS &= 0x1f
	if numSPS == 0 {
		rec.NoParameterSets = true
		slog.Debug("h264parser: configuration record carries no SPS")
	}
	for i := uint8(0); i < numSPS; i++ {
		nalu, perr := readUnit(r, "SPS", NALU_SPS)
		if perr != nil {
			return AVCDecoderConfRecord{}, perr
		}
		rec.SPS = append(rec.SPS, nalu.Data)
		if i == 0 {
			// More than one SPS is unlikely in practice, and the stream
			// metadata has a single resolution slot anyway.
			if rec.SPSInfo, err = ParseSPS(nalu.Data); err != nil {
				return AVCDecoderConfRecord{}, parseErr("SPS", r.Pos(), err)
			}
			rec.CodedWidth = int(rec.SPSInfo.Width)
			rec.CodedHeight = int(rec.SPSInfo.Height)
			rec.PixelWidth = int(rec.SPSInfo.SARWidth)
			rec.PixelHeight = int(rec.SPSInfo.SARHeight)
			rec.TransferCharacteristics = rec.SPSInfo.TransferCharacteristics
		}
	}

	var numPPS uint8
	if numPPS, err = r.ReadU8(); err != nil {
		return AVCDecoderConfRecord{}, parseErr("PPSCount", r.Pos(), err)
	}
	for i := uint8(0); i < numPPS; i++ {
		nalu, perr := readUnit(r, "PPS", NALU_PPS)
		if perr != nil {
			return AVCDecoderConfRecord{}, perr
		}
		rec.PPS = append(rec.PPS, nalu.Data)
	}

	if hasProfileExtension(rec.AVCProfileIndication) {
		if !r.HasBytes(4) {
			rec.ExtensionSkipped = true
			slog.Warn("h264parser: configuration record too short for profile extension block, skipping",
				"profile", rec.AVCProfileIndication, "remaining", r.Remaining())
			return rec, nil
		}
		// chroma_format, bit_depth_luma_minus8, bit_depth_chroma_minus8
		if err = r.Skip(3); err != nil {
			return AVCDecoderConfRecord{}, parseErr("Extension", r.Pos(), err)
		}
		var numExt uint8
		if numExt, err = r.ReadU8(); err != nil {
			return AVCDecoderConfRecord{}, parseErr("SPSExtCount", r.Pos(), err)
		}
		for i := uint8(0); i < numExt; i++ {
			// Extension units are checked against the PPS type, not
			// NALU_SPSEXT. Existing packaged content depends on this check;
			// do not change it without verifying against real samples.
			nalu, perr := readUnit(r, "SPSExt", NALU_PPS)
			if perr != nil {
				return AVCDecoderConfRecord{}, perr
			}
			rec.SPSExt = append(rec.SPSExt, nalu.Data)
		}
	}
	return rec, nil
}

// readUnit reads one 2-byte length-prefixed NAL unit and requires it to
// classify as the given type.
func readUnit(r *breader.Reader, field string, typ uint8) (NALU, error) {
	size, err := r.ReadU16BE()
	if err != nil {
		return NALU{}, parseErr(field, r.Pos(), err)
	}
	data, err := r.Slice(int(size))
	if err != nil {
		return NALU{}, parseErr(field, r.Pos(), err)
	}
	nalu, err := ParseNALU(data)
	if err != nil {
		return NALU{}, parseErr(field, r.Pos(), err)
	}
	if nalu.Type != typ {
		return NALU{}, parseErr(field, r.Pos(), ErrNALUType)
	}
	return nalu, nil
}

// CodecString formats the RFC 6381 codec string for a sample entry fourcc,
// e.g. CodecString("avc1", 0x64, 0x00, 0x1f) == "avc1.64001f".
func CodecString(fourcc string, profileIndication, profileCompatibility, levelIndication uint8) string {
	return fmt.Sprintf("%s.%02x%02x%02x", fourcc, profileIndication, profileCompatibility, levelIndication)
}

func (rec AVCDecoderConfRecord) CodecString(fourcc string) string {
	return CodecString(fourcc, rec.AVCProfileIndication, rec.ProfileCompatibility, rec.AVCLevelIndication)
}

func (rec AVCDecoderConfRecord) Len() (n int) {
	n = 7
	for _, sps := range rec.SPS {
		n += 2 + len(sps)
	}
	for _, pps := range rec.PPS {
		n += 2 + len(pps)
	}
	return
}

func (rec AVCDecoderConfRecord) Marshal(b []byte) (n int) {
	b[0] = 1
	b[1] = rec.AVCProfileIndication
	b[2] = rec.ProfileCompatibility
	b[3] = rec.AVCLevelIndication
	b[4] = 0xfc | byte(rec.NALULengthSize-1)
	b[5] = 0xe0 | byte(len(rec.SPS))
	n += 6
	for _, sps := range rec.SPS {
		pio.PutU16BE(b[n:], uint16(len(sps)))
		n += 2
		copy(b[n:], sps)
		n += len(sps)
	}
	b[n] = byte(len(rec.PPS))
	n++
	for _, pps := range rec.PPS {
		pio.PutU16BE(b[n:], uint16(len(pps)))
		n += 2
		copy(b[n:], pps)
		n += len(pps)
	}
	return
}
