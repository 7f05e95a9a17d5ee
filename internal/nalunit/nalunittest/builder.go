// Package nalunittest synthesizes small H.264 elementary streams for
// tests. Field values are chosen so that no emulation prevention
// bytes are needed.
package nalunittest

import (
	"github.com/streamtools/h264au/internal/bitdata"
	"github.com/streamtools/h264au/internal/entities"
)

// NAL wraps an RBSP in a NAL unit with a start-code prefix.
func NAL(refIDC byte, unitType entities.NALUnitType, rbsp []byte) []byte {
	header := refIDC<<5 | byte(unitType)
	return append([]byte{0x00, 0x00, 0x01, header}, rbsp...)
}

// SPSOpts controls the sequence parameter set builder. The zero value
// gives main profile, pic_order_cnt_type 0, 4 bit frame numbers and
// picture order counts, frames only.
type SPSOpts struct {
	FrameMbsOnly0 bool // emit frame_mbs_only_flag 0 (field coding allowed)

	ProfileIDC      uint32 // 0 means main (77)
	NoMainObedience bool   // clear constraint_set1_flag
}

// SPS builds sequence parameter set id 0.
func SPS(o SPSOpts) []byte {
	profile := o.ProfileIDC
	if profile == 0 {
		profile = 77
	}
	w := bitdata.NewWriter()
	w.PutBits(8, profile) // profile_idc
	w.PutBit(0)           // constraint_set0_flag
	if o.NoMainObedience {
		w.PutBit(0) // constraint_set1_flag
	} else {
		w.PutBit(1)
	}
	w.PutBit(0)        // constraint_set2_flag
	w.PutBits(5, 0)    // reserved_zero_5bits
	w.PutBits(8, 30)   // level_idc
	w.PutExpGolomb(0)  // seq_parameter_set_id
	w.PutExpGolomb(0)  // log2_max_frame_num_minus4
	w.PutExpGolomb(0)  // pic_order_cnt_type
	w.PutExpGolomb(0)  // log2_max_pic_order_cnt_lsb_minus4
	w.PutExpGolomb(1)  // num_ref_frames
	w.PutBit(0)        // gaps_in_frame_num_value_allowed_flag
	w.PutExpGolomb(10) // pic_width_in_mbs_minus1
	w.PutExpGolomb(8)  // pic_height_in_map_units_minus1
	if o.FrameMbsOnly0 {
		w.PutBit(0) // frame_mbs_only_flag
	} else {
		w.PutBit(1)
	}
	w.PutTrailingBits()
	return NAL(3, entities.NALSeqParamSet, w.Bytes())
}

// PPS builds picture parameter set id 0 referring to sequence
// parameter set id 0, with no slice groups and no redundant pictures.
type PPSOpts struct {
	RedundantPicCntPresent bool
}

func PPS(o PPSOpts) []byte {
	w := bitdata.NewWriter()
	w.PutExpGolomb(0)       // pic_parameter_set_id
	w.PutExpGolomb(0)       // seq_parameter_set_id
	w.PutBit(0)             // entropy_coding_mode_flag
	w.PutBit(0)             // pic_order_present_flag
	w.PutExpGolomb(0)       // num_slice_groups_minus1
	w.PutExpGolomb(0)       // num_ref_idx_l0_active_minus1
	w.PutExpGolomb(0)       // num_ref_idx_l1_active_minus1
	w.PutBit(0)             // weighted_pred_flag
	w.PutBits(2, 0)         // weighted_bipred_idc
	w.PutSignedExpGolomb(0) // pic_init_qp_minus26
	w.PutSignedExpGolomb(0) // pic_init_qs_minus26
	w.PutSignedExpGolomb(0) // chroma_qp_index_offset
	w.PutBit(1)             // deblocking_filter_control_present_flag
	w.PutBit(0) // constrained_intra_pred_flag
	if o.RedundantPicCntPresent {
		w.PutBit(1) // redundant_pic_cnt_present_flag
	} else {
		w.PutBit(0)
	}
	w.PutTrailingBits()
	return NAL(3, entities.NALPicParamSet, w.Bytes())
}

// SliceOpts controls the slice builder. Field flags are only written
// when the stream's SPS was built with FrameMbsOnly0.
type SliceOpts struct {
	RefIDC    byte
	IDR       bool
	SliceType uint32
	FrameNum  uint32
	IDRPicID  uint32
	PocLsb    uint32

	FieldPic    bool
	BottomField bool
	WriteFields bool // emit field_pic_flag (SPS has frame_mbs_only_flag 0)

	RedundantPicCnt uint32 // written only when the PPS announces it
	WriteRedundant  bool
}

// Slice builds a slice header referring to picture parameter set 0,
// followed by a stop bit in place of slice data.
func Slice(o SliceOpts) []byte {
	w := bitdata.NewWriter()
	w.PutExpGolomb(0) // first_mb_in_slice
	w.PutExpGolomb(o.SliceType)
	w.PutExpGolomb(0)        // pic_parameter_set_id
	w.PutBits(4, o.FrameNum) // sized by SPS
	if o.WriteFields {
		if o.FieldPic {
			w.PutBit(1)
			if o.BottomField {
				w.PutBit(1)
			} else {
				w.PutBit(0)
			}
		} else {
			w.PutBit(0)
		}
	}
	if o.IDR {
		w.PutExpGolomb(o.IDRPicID)
	}
	w.PutBits(4, o.PocLsb)
	if o.WriteRedundant {
		w.PutExpGolomb(o.RedundantPicCnt)
	}
	w.PutTrailingBits()
	unitType := entities.NALNonIDRSlice
	if o.IDR {
		unitType = entities.NALIDRSlice
	}
	return NAL(o.RefIDC, unitType, w.Bytes())
}

// AUD builds an access unit delimiter allowing all slice types.
func AUD() []byte {
	w := bitdata.NewWriter()
	w.PutBits(3, 7) // primary_pic_type
	w.PutTrailingBits()
	return NAL(0, entities.NALAccessUnitDelimiter, w.Bytes())
}

// SEIRecovery builds an SEI recovery point.
func SEIRecovery(recoveryFrameCnt uint32) []byte {
	w := bitdata.NewWriter()
	w.PutExpGolomb(recoveryFrameCnt)
	w.PutBit(1)     // exact_match_flag
	w.PutBit(0)     // broken_link_flag
	w.PutBits(2, 0) // changing_slice_group_idc
	w.PutTrailingBits()
	payload := w.Bytes()

	out := bitdata.NewWriter()
	out.PutBits(8, 6) // payloadType: recovery point
	out.PutBits(8, uint32(len(payload)))
	for _, b := range payload {
		out.PutBits(8, uint32(b))
	}
	out.PutTrailingBits()
	return NAL(0, entities.NALSEI, out.Bytes())
}

// EndOfSequence builds an end of sequence NAL unit.
func EndOfSequence() []byte {
	return NAL(0, entities.NALEndOfSequence, nil)
}

// EndOfStream builds an end of stream NAL unit.
func EndOfStream() []byte {
	return NAL(0, entities.NALEndOfStream, nil)
}

// Stream concatenates NAL units into one elementary stream.
func Stream(units ...[]byte) []byte {
	var out []byte
	for _, u := range units {
		out = append(out, u...)
	}
	return out
}
