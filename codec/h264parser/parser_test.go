package h264parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// spsWriter builds SPS bitstreams for tests, MSB first.
type spsWriter struct {
	b    []byte
	nbit uint
}

func (w *spsWriter) writeBit(v uint) {
	if w.nbit%8 == 0 {
		w.b = append(w.b, 0)
	}
	if v != 0 {
		w.b[len(w.b)-1] |= 1 << (7 - w.nbit%8)
	}
	w.nbit++
}

func (w *spsWriter) writeBits(v uint, n int) {
	for i := n - 1; i >= 0; i-- {
		w.writeBit((v >> uint(i)) & 1)
	}
}

func (w *spsWriter) writeUE(v uint) {
	n := 0
	for t := v + 1; t > 1; t >>= 1 {
		n++
	}
	for i := 0; i < n; i++ {
		w.writeBit(0)
	}
	w.writeBits(v+1, n+1)
}

func (w *spsWriter) bytes() []byte {
	w.writeBit(1) // rbsp stop bit
	return w.b
}

// baseline profile, 20x15 macroblocks, no cropping, no VUI
func makeBaselineSPS(t *testing.T) []byte {
	t.Helper()
	w := &spsWriter{b: []byte{0x67}}
	w.nbit = 8
	w.writeBits(66, 8)   // profile_idc
	w.writeBits(0xc0, 8) // constraint flags
	w.writeBits(30, 8)   // level_idc
	w.writeUE(0)         // seq_parameter_set_id
	w.writeUE(0)         // log2_max_frame_num_minus4
	w.writeUE(0)         // pic_order_cnt_type
	w.writeUE(0)         // log2_max_pic_order_cnt_lsb_minus4
	w.writeUE(1)         // max_num_ref_frames
	w.writeBit(0)        // gaps_in_frame_num_value_allowed_flag
	w.writeUE(19)        // pic_width_in_mbs_minus1
	w.writeUE(14)        // pic_height_in_map_units_minus1
	w.writeBit(1)        // frame_mbs_only_flag
	w.writeBit(1)        // direct_8x8_inference_flag
	w.writeBit(0)        // frame_cropping_flag
	w.writeBit(0)        // vui_parameters_present_flag
	return w.bytes()
}

// high profile, 4:2:0, 120x68 macroblocks cropped to 1920x1080, VUI with
// Extended_SAR 4:3 and BT.2100 PQ transfer
func makeHighProfileSPS(t *testing.T) []byte {
	t.Helper()
	w := &spsWriter{b: []byte{0x67}}
	w.nbit = 8
	w.writeBits(100, 8)
	w.writeBits(0, 8)
	w.writeBits(40, 8)
	w.writeUE(0)  // seq_parameter_set_id
	w.writeUE(1)  // chroma_format_idc
	w.writeUE(0)  // bit_depth_luma_minus8
	w.writeUE(0)  // bit_depth_chroma_minus8
	w.writeBit(0) // qpprime_y_zero_transform_bypass_flag
	w.writeBit(0) // seq_scaling_matrix_present_flag
	w.writeUE(0)  // log2_max_frame_num_minus4
	w.writeUE(0)  // pic_order_cnt_type
	w.writeUE(0)  // log2_max_pic_order_cnt_lsb_minus4
	w.writeUE(1)  // max_num_ref_frames
	w.writeBit(0)
	w.writeUE(119) // pic_width_in_mbs_minus1
	w.writeUE(67)  // pic_height_in_map_units_minus1
	w.writeBit(1)  // frame_mbs_only_flag
	w.writeBit(1)  // direct_8x8_inference_flag
	w.writeBit(1)  // frame_cropping_flag
	w.writeUE(0)   // crop left
	w.writeUE(0)   // crop right
	w.writeUE(0)   // crop top
	w.writeUE(4)   // crop bottom: 1088 - 2*4 = 1080
	w.writeBit(1)  // vui_parameters_present_flag
	w.writeBit(1)  // aspect_ratio_info_present_flag
	w.writeBits(255, 8)
	w.writeBits(4, 16) // sar width
	w.writeBits(3, 16) // sar height
	w.writeBit(0)      // overscan_info_present_flag
	w.writeBit(1)      // video_signal_type_present_flag
	w.writeBits(5, 3)  // video_format
	w.writeBit(0)      // video_full_range_flag
	w.writeBit(1)      // colour_description_present_flag
	w.writeBits(9, 8)  // colour_primaries
	w.writeBits(16, 8) // transfer_characteristics
	w.writeBits(9, 8)  // matrix_coefficients
	return w.bytes()
}

func TestParseSPSBaseline(t *testing.T) {
	info, err := ParseSPS(makeBaselineSPS(t))
	require.NoError(t, err)
	require.Equal(t, uint(66), info.ProfileIdc)
	require.Equal(t, uint(30), info.LevelIdc)
	require.Equal(t, uint(320), info.Width)
	require.Equal(t, uint(240), info.Height)
	require.Equal(t, uint(1), info.SARWidth)
	require.Equal(t, uint(1), info.SARHeight)
	require.Equal(t, uint(0), info.TransferCharacteristics)
}

func TestParseSPSHighProfileVUI(t *testing.T) {
	info, err := ParseSPS(makeHighProfileSPS(t))
	require.NoError(t, err)
	require.Equal(t, uint(100), info.ProfileIdc)
	require.Equal(t, uint(1920), info.Width)
	require.Equal(t, uint(1080), info.Height)
	require.Equal(t, uint(4), info.SARWidth)
	require.Equal(t, uint(3), info.SARHeight)
	require.Equal(t, uint(16), info.TransferCharacteristics)
}

func TestParseSPSTooShort(t *testing.T) {
	_, err := ParseSPS([]byte{0x67, 0x42})
	require.Error(t, err)
}

func TestParseNALU(t *testing.T) {
	nalu, err := ParseNALU([]byte{0x67, 0x42})
	require.NoError(t, err)
	require.Equal(t, uint8(NALU_SPS), nalu.Type)

	_, err = ParseNALU([]byte{0xe7})
	require.ErrorIs(t, err, ErrNALUInvalid)

	_, err = ParseNALU(nil)
	require.ErrorIs(t, err, ErrNALUInvalid)
}

func TestSplitNALUs(t *testing.T) {
	annexb := []byte{0, 0, 1, 0x67, 0x42, 0, 0, 1, 0x68, 0xce}
	nalus, typ := SplitNALUs(annexb)
	require.Equal(t, NALU_ANNEXB, typ)
	require.Len(t, nalus, 2)
	require.Equal(t, []byte{0x67, 0x42}, nalus[0])

	avcc := []byte{0, 0, 0, 2, 0x67, 0x42, 0, 0, 0, 2, 0x68, 0xce}
	nalus, typ = SplitNALUs(avcc)
	require.Equal(t, NALU_AVCC, typ)
	require.Len(t, nalus, 2)
	require.Equal(t, []byte{0x68, 0xce}, nalus[1])
}

func TestNewCodecDataFromSPSAndPPS(t *testing.T) {
	sps := makeBaselineSPS(t)
	pps := []byte{0x68, 0xce, 0x3c, 0x80}
	d, err := NewCodecDataFromSPSAndPPS(sps, pps)
	require.NoError(t, err)
	require.Equal(t, 320, d.Width())
	require.Equal(t, 240, d.Height())
	require.Equal(t, "320x240", d.Resolution())
	require.Equal(t, "avc1.42c01e", d.Tag())
	require.Equal(t, sps, d.SPS())
	require.Equal(t, pps, d.PPS())
}
