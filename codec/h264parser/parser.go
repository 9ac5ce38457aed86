package h264parser

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ottpack/pdk/av"
	"github.com/ottpack/pdk/utils/bits"
	"github.com/ottpack/pdk/utils/bits/pio"
)

const (
	NALU_NON_IDR = 1
	NALU_PART_A  = 2
	NALU_PART_B  = 3
	NALU_PART_C  = 4
	NALU_IDR     = 5
	NALU_SEI     = 6
	NALU_SPS     = 7
	NALU_PPS     = 8
	NALU_AUD     = 9
	NALU_EOSEQ   = 10
	NALU_EOSTREAM = 11
	NALU_FILLER  = 12
	NALU_SPSEXT  = 13
)

var ErrNALUInvalid = errors.New("h264parser: invalid NALU")

// NALU is a non-owning typed view of a single H.264 NAL unit inside a larger
// buffer.
type NALU struct {
	Type uint8
	Data []byte
}

// ParseNALU classifies a byte span as an H.264 NAL unit. The span must start
// at the NAL header byte and the forbidden_zero_bit must be clear.
func ParseNALU(b []byte) (nalu NALU, err error) {
	if len(b) == 0 || b[0]&0x80 != 0 {
		err = ErrNALUInvalid
		return
	}
	nalu.Type = b[0] & 0x1f
	nalu.Data = b
	return
}

func IsDataNALU(b []byte) bool {
	typ := b[0] & 0x1f
	return typ >= 1 && typ <= 5
}

var StartCodeBytes = []byte{0, 0, 1}
var AUDBytes = []byte{0, 0, 0, 1, 0x9, 0xf0, 0, 0, 0, 1} // AUD

const (
	NALU_RAW = iota
	NALU_AVCC
	NALU_ANNEXB
)

func CheckNALUsType(b []byte) (typ int) {
	_, typ = SplitNALUs(b)
	return
}

func SplitNALUs(b []byte) (nalus [][]byte, typ int) {
	if len(b) < 4 {
		return [][]byte{b}, NALU_RAW
	}
	val3 := pio.U24BE(b)
	val4 := pio.U32BE(b)
	if val4 <= uint32(len(b)) {
		_val4 := val4
		_b := b[4:]
		nalus := [][]byte{}
		for {
			nalus = append(nalus, _b[:_val4])
			_b = _b[_val4:]
			if len(_b) < 4 {
				break
			}
			_val4 = pio.U32BE(_b)
			_b = _b[4:]
			if _val4 > uint32(len(_b)) {
				break
			}
		}
		if len(_b) == 0 {
			return nalus, NALU_AVCC
		}
	}
	if val3 == 1 || val4 == 1 {
		_val3 := val3
		_val4 := val4
		start := 0
		pos := 0
		for {
			if start != pos {
				nalus = append(nalus, b[start:pos])
			}
			if _val3 == 1 {
				pos += 3
			} else if _val4 == 1 {
				pos += 4
			}
			start = pos
			if start == len(b) {
				break
			}
			_val3 = 0
			_val4 = 0
			for pos < len(b) {
				if pos+2 < len(b) && b[pos] == 0 {
					_val3 = pio.U24BE(b[pos:])
					if _val3 == 0 {
						if pos+3 < len(b) {
							_val4 = uint32(b[pos+3])
							if _val4 == 1 {
								break
							}
						}
					} else if _val3 == 1 {
						break
					}
					pos++
				} else {
					pos++
				}
			}
		}
		typ = NALU_ANNEXB
		return
	}

	return [][]byte{b}, NALU_RAW
}

type SPSInfo struct {
	Id         uint
	ProfileIdc uint
	LevelIdc   uint

	MbWidth  uint
	MbHeight uint

	CropLeft   uint
	CropRight  uint
	CropTop    uint
	CropBottom uint

	Width  uint
	Height uint

	SARWidth  uint
	SARHeight uint

	TransferCharacteristics uint

	chromaFormatIdc     uint
	separateColourPlane uint
	frameMbsOnly        uint
}

// sample aspect ratios for aspect_ratio_idc 1..16
var sarTable = [16][2]uint{
	{1, 1}, {12, 11}, {10, 11}, {16, 11}, {40, 33}, {24, 11}, {20, 11}, {32, 11},
	{80, 33}, {18, 11}, {15, 11}, {64, 33}, {160, 99}, {4, 3}, {3, 2}, {2, 1},
}

// ParseSPS decodes a sequence parameter set NAL unit, including the NAL
// header byte, into resolution, pixel aspect and transfer-characteristics
// metadata.
func ParseSPS(sps []byte) (ctx SPSInfo, err error) {
	if len(sps) < 4 {
		err = ErrNALUInvalid
		return
	}
	rbsp := nal2rbsp(sps[1:])
	br := &bits.GolombBitReader{R: bytes.NewReader(rbsp)}

	if ctx.ProfileIdc, err = br.ReadBits(8); err != nil {
		return
	}
	// constraint_set flags plus reserved bits
	if _, err = br.ReadBits(8); err != nil {
		return
	}
	if ctx.LevelIdc, err = br.ReadBits(8); err != nil {
		return
	}
	if ctx.Id, err = br.ReadExponentialGolombCode(); err != nil {
		return
	}

	ctx.chromaFormatIdc = 1
	switch ctx.ProfileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134:
		if ctx.chromaFormatIdc, err = br.ReadExponentialGolombCode(); err != nil {
			return
		}
		if ctx.chromaFormatIdc == 3 {
			if ctx.separateColourPlane, err = br.ReadBit(); err != nil {
				return
			}
		}
		// bit_depth_luma_minus8
		if _, err = br.ReadExponentialGolombCode(); err != nil {
			return
		}
		// bit_depth_chroma_minus8
		if _, err = br.ReadExponentialGolombCode(); err != nil {
			return
		}
		// qpprime_y_zero_transform_bypass_flag
		if _, err = br.ReadBit(); err != nil {
			return
		}
		var scalingMatrixPresent uint
		if scalingMatrixPresent, err = br.ReadBit(); err != nil {
			return
		}
		if scalingMatrixPresent != 0 {
			count := 8
			if ctx.chromaFormatIdc == 3 {
				count = 12
			}
			for i := 0; i < count; i++ {
				var present uint
				if present, err = br.ReadBit(); err != nil {
					return
				}
				if present != 0 {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err = skipScalingList(br, size); err != nil {
						return
					}
				}
			}
		}
	}

	// log2_max_frame_num_minus4
	if _, err = br.ReadExponentialGolombCode(); err != nil {
		return
	}
	var picOrderCntType uint
	if picOrderCntType, err = br.ReadExponentialGolombCode(); err != nil {
		return
	}
	if picOrderCntType == 0 {
		// log2_max_pic_order_cnt_lsb_minus4
		if _, err = br.ReadExponentialGolombCode(); err != nil {
			return
		}
	} else if picOrderCntType == 1 {
		// delta_pic_order_always_zero_flag
		if _, err = br.ReadBit(); err != nil {
			return
		}
		// offset_for_non_ref_pic
		if _, err = br.ReadSE(); err != nil {
			return
		}
		// offset_for_top_to_bottom_field
		if _, err = br.ReadSE(); err != nil {
			return
		}
		var cycle uint
		if cycle, err = br.ReadExponentialGolombCode(); err != nil {
			return
		}
		for i := uint(0); i < cycle; i++ {
			if _, err = br.ReadSE(); err != nil {
				return
			}
		}
	}
	// max_num_ref_frames
	if _, err = br.ReadExponentialGolombCode(); err != nil {
		return
	}
	// gaps_in_frame_num_value_allowed_flag
	if _, err = br.ReadBit(); err != nil {
		return
	}
	if ctx.MbWidth, err = br.ReadExponentialGolombCode(); err != nil {
		return
	}
	ctx.MbWidth++
	if ctx.MbHeight, err = br.ReadExponentialGolombCode(); err != nil {
		return
	}
	ctx.MbHeight++
	if ctx.frameMbsOnly, err = br.ReadBit(); err != nil {
		return
	}
	if ctx.frameMbsOnly == 0 {
		// mb_adaptive_frame_field_flag
		if _, err = br.ReadBit(); err != nil {
			return
		}
	}
	// direct_8x8_inference_flag
	if _, err = br.ReadBit(); err != nil {
		return
	}
	var cropping uint
	if cropping, err = br.ReadBit(); err != nil {
		return
	}
	if cropping != 0 {
		if ctx.CropLeft, err = br.ReadExponentialGolombCode(); err != nil {
			return
		}
		if ctx.CropRight, err = br.ReadExponentialGolombCode(); err != nil {
			return
		}
		if ctx.CropTop, err = br.ReadExponentialGolombCode(); err != nil {
			return
		}
		if ctx.CropBottom, err = br.ReadExponentialGolombCode(); err != nil {
			return
		}
	}

	cropX, cropY := ctx.cropUnits()
	ctx.Width = ctx.MbWidth*16 - cropX*(ctx.CropLeft+ctx.CropRight)
	ctx.Height = (2-ctx.frameMbsOnly)*ctx.MbHeight*16 - cropY*(ctx.CropTop+ctx.CropBottom)

	ctx.SARWidth, ctx.SARHeight = 1, 1
	var vuiPresent uint
	if vuiPresent, err = br.ReadBit(); err != nil {
		return
	}
	if vuiPresent != 0 {
		if err = parseVUI(br, &ctx); err != nil {
			return
		}
	}
	return
}

// cropUnits derives the frame cropping units from the chroma format,
// per ISO 14496-10 table 6-1.
func (ctx *SPSInfo) cropUnits() (cropX, cropY uint) {
	chromaArrayType := ctx.chromaFormatIdc
	if ctx.separateColourPlane != 0 {
		chromaArrayType = 0
	}
	switch chromaArrayType {
	case 1:
		cropX, cropY = 2, 2
	case 2:
		cropX, cropY = 2, 1
	default:
		cropX, cropY = 1, 1
	}
	cropY *= 2 - ctx.frameMbsOnly
	return
}

func parseVUI(br *bits.GolombBitReader, ctx *SPSInfo) (err error) {
	var aspectInfoPresent uint
	if aspectInfoPresent, err = br.ReadBit(); err != nil {
		return
	}
	if aspectInfoPresent != 0 {
		var idc uint
		if idc, err = br.ReadBits(8); err != nil {
			return
		}
		if idc == 255 {
			// Extended_SAR
			if ctx.SARWidth, err = br.ReadBits(16); err != nil {
				return
			}
			if ctx.SARHeight, err = br.ReadBits(16); err != nil {
				return
			}
			if ctx.SARWidth == 0 || ctx.SARHeight == 0 {
				ctx.SARWidth, ctx.SARHeight = 1, 1
			}
		} else if idc >= 1 && idc <= 16 {
			ctx.SARWidth, ctx.SARHeight = sarTable[idc-1][0], sarTable[idc-1][1]
		}
	}
	var overscanPresent uint
	if overscanPresent, err = br.ReadBit(); err != nil {
		return
	}
	if overscanPresent != 0 {
		if _, err = br.ReadBit(); err != nil {
			return
		}
	}
	var signalTypePresent uint
	if signalTypePresent, err = br.ReadBit(); err != nil {
		return
	}
	if signalTypePresent != 0 {
		// video_format, video_full_range_flag
		if _, err = br.ReadBits(4); err != nil {
			return
		}
		var colourDescPresent uint
		if colourDescPresent, err = br.ReadBit(); err != nil {
			return
		}
		if colourDescPresent != 0 {
			// colour_primaries
			if _, err = br.ReadBits(8); err != nil {
				return
			}
			if ctx.TransferCharacteristics, err = br.ReadBits(8); err != nil {
				return
			}
			// matrix_coefficients
			if _, err = br.ReadBits(8); err != nil {
				return
			}
		}
	}
	return
}

func skipScalingList(br *bits.GolombBitReader, size int) (err error) {
	lastScale, nextScale := 8, 8
	for i := 0; i < size; i++ {
		if nextScale != 0 {
			var ue uint
			if ue, err = br.ReadExponentialGolombCode(); err != nil {
				return
			}
			delta := int(ue+1) / 2
			if ue&1 == 0 {
				delta = -delta
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return
}

func nal2rbsp(nal []byte) []byte {
	return bytes.Replace(nal, []byte{0x0, 0x0, 0x3}, []byte{0x0, 0x0}, -1)
}

// CodecData holds a parsed AVC decoder configuration record along with the
// raw bytes it came from.
type CodecData struct {
	Record     []byte
	RecordInfo AVCDecoderConfRecord
}

func (d CodecData) Type() av.CodecType {
	return av.H264
}

func (d CodecData) AVCDecoderConfRecordBytes() []byte {
	return d.Record
}

func (d CodecData) SPS() []byte {
	return d.RecordInfo.SPS[0]
}

func (d CodecData) PPS() []byte {
	return d.RecordInfo.PPS[0]
}

func (d CodecData) Width() int {
	return d.RecordInfo.CodedWidth
}

func (d CodecData) Height() int {
	return d.RecordInfo.CodedHeight
}

func (d CodecData) Resolution() string {
	return fmt.Sprintf("%vx%v", d.Width(), d.Height())
}

func (d CodecData) Tag() string {
	return d.RecordInfo.CodecString("avc1")
}

func NewCodecDataFromAVCDecoderConfRecord(record []byte) (d CodecData, err error) {
	d.Record = record
	if d.RecordInfo, err = ParseAVCDecoderConfRecord(record); err != nil {
		return CodecData{}, err
	}
	if d.RecordInfo.NoParameterSets {
		return CodecData{}, fmt.Errorf("h264parser: no SPS found in AVCDecoderConfRecord")
	}
	return
}

func NewCodecDataFromSPSAndPPS(sps, pps []byte) (d CodecData, err error) {
	recordinfo := AVCDecoderConfRecord{}
	recordinfo.Version = 1
	recordinfo.AVCProfileIndication = sps[1]
	recordinfo.ProfileCompatibility = sps[2]
	recordinfo.AVCLevelIndication = sps[3]
	recordinfo.SPS = [][]byte{sps}
	recordinfo.PPS = [][]byte{pps}
	recordinfo.NALULengthSize = 4
	buf := make([]byte, recordinfo.Len())
	recordinfo.Marshal(buf)
	return NewCodecDataFromAVCDecoderConfRecord(buf)
}
