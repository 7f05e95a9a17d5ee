package nalunit

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/streamtools/h264au/internal/entities"
)

// SliceData holds the slice header fields that matter for picture
// boundary detection.
type SliceData struct {
	FirstMbInSlice uint32
	SliceType      entities.SliceType
	PicParamSetID  uint32
	FrameNum       uint32

	FieldPicFlag           byte
	BottomFieldFlag        byte
	BottomFieldFlagPresent bool

	IDRPicID               uint32
	PicOrderCntLsb         uint32
	DeltaPicOrderCntBottom int32
	DeltaPicOrderCnt       [2]int32
	RedundantPicCnt        uint32
	RedundantPicCntPresent bool

	// PicOrderCntType is copied from the active sequence parameter set
	// so boundary detection need not look it up again.
	PicOrderCntType uint32
}

// SeqParamData holds the sequence parameter set fields we decode.
// Log2MaxFrameNum and Log2MaxPicOrderCntLsb are stored with the +4 of
// their minus4 wire form already applied.
type SeqParamData struct {
	ProfileIDC         byte
	ConstraintSet0Flag byte
	ConstraintSet1Flag byte
	ConstraintSet2Flag byte
	LevelIDC           byte

	SeqParamSetID               uint32
	Log2MaxFrameNum             int
	PicOrderCntType             uint32
	Log2MaxPicOrderCntLsb       int
	DeltaPicOrderAlwaysZeroFlag byte
	FrameMbsOnlyFlag            byte
}

// PicParamData holds the picture parameter set fields we decode.
type PicParamData struct {
	PicParamSetID              uint32
	SeqParamSetID              uint32
	EntropyCodingModeFlag      byte
	PicOrderPresentFlag        byte
	NumSliceGroups             uint32
	SliceGroupMapType          uint32
	RedundantPicCntPresentFlag byte
}

// SEIRecoveryData holds an SEI recovery point (payload type 6).
type SEIRecoveryData struct {
	PayloadType uint32
	PayloadSize uint32

	RecoveryFrameCnt      uint32
	ExactMatchFlag        byte
	BrokenLinkFlag        byte
	ChangingSliceGroupIDC uint32
}

// decodeRBSP reads the decodable fields of the unit's RBSP. Calling it
// again once decoded is a no-op. If either dictionary is nil and the
// unit is a slice, only the fields before the frame number are read
// and the unit is not marked decoded, so a later call with
// dictionaries rereads from scratch.
func (n *NALUnit) decodeRBSP(seqParams *ParamDict[SeqParamData], picParams *ParamDict[PicParamData], l *zap.SugaredLogger, showDetails bool) error {
	if n.Decoded {
		return nil
	}
	n.prepareRBSP()
	defer func() { n.rbsp = nil }()

	var err error
	switch n.UnitType {
	case entities.NALNonIDRSlice, entities.NALIDRSlice:
		err = n.decodeSliceHeader(seqParams, picParams, l, showDetails)
	case entities.NALSeqParamSet:
		err = n.decodeSeqParamSet(l, showDetails)
	case entities.NALPicParamSet:
		err = n.decodePicParamSet(l, showDetails)
	case entities.NALSEI:
		err = n.decodeSEI(l, showDetails)
	default:
		if showDetails {
			l.Infow("NAL unit", "nal", n.String())
		}
	}
	if err != nil {
		return fmt.Errorf("reading RBSP data for %s NAL unit at %s: %w",
			n.UnitType, n.StartPosn(), err)
	}
	return nil
}

func (n *NALUnit) decodeSliceHeader(seqParams *ParamDict[SeqParamData], picParams *ParamDict[PicParamData], l *zap.SugaredLogger, showDetails bool) error {
	bd := n.rbsp
	d := &SliceData{}
	n.Slice = d

	var err error
	if d.FirstMbInSlice, err = bd.ReadExpGolomb(); err != nil {
		return fmt.Errorf("first_mb_in_slice: %w", err)
	}
	sliceType, err := bd.ReadExpGolomb()
	if err != nil {
		return fmt.Errorf("slice_type: %w", err)
	}
	d.SliceType = entities.SliceType(sliceType)
	if d.PicParamSetID, err = bd.ReadExpGolomb(); err != nil {
		return fmt.Errorf("pic_parameter_set_id: %w", err)
	}

	if showDetails {
		l.Infow("slice header",
			"nal", n.String(),
			"firstMbInSlice", d.FirstMbInSlice,
			"sliceType", d.SliceType,
			"picParamSetID", d.PicParamSetID,
		)
	}

	// Without the parameter dictionaries we cannot size the frame
	// number field, so stop here. The caller knew what it was doing.
	if seqParams == nil || picParams == nil {
		return nil
	}

	pic, ok := picParams.Lookup(d.PicParamSetID)
	if !ok {
		return fmt.Errorf("%w %d", entities.ErrUnknownPicParamSet, d.PicParamSetID)
	}
	seq, ok := seqParams.Lookup(pic.SeqParamSetID)
	if !ok {
		return fmt.Errorf("%w %d", entities.ErrUnknownSeqParamSet, pic.SeqParamSetID)
	}
	d.PicOrderCntType = seq.PicOrderCntType

	if d.FrameNum, err = bd.ReadBits(seq.Log2MaxFrameNum); err != nil {
		return fmt.Errorf("frame_num: %w", err)
	}

	if seq.FrameMbsOnlyFlag == 0 {
		if d.FieldPicFlag, err = bd.ReadBit(); err != nil {
			return fmt.Errorf("field_pic_flag: %w", err)
		}
		if d.FieldPicFlag == 1 {
			d.BottomFieldFlagPresent = true
			if d.BottomFieldFlag, err = bd.ReadBit(); err != nil {
				return fmt.Errorf("bottom_field_flag: %w", err)
			}
		}
	}

	if n.UnitType == entities.NALIDRSlice {
		if d.IDRPicID, err = bd.ReadExpGolomb(); err != nil {
			return fmt.Errorf("idr_pic_id: %w", err)
		}
	}

	switch {
	case seq.PicOrderCntType == 0:
		if d.PicOrderCntLsb, err = bd.ReadBits(seq.Log2MaxPicOrderCntLsb); err != nil {
			return fmt.Errorf("pic_order_cnt_lsb: %w", err)
		}
		if pic.PicOrderPresentFlag == 1 && d.FieldPicFlag == 0 {
			if d.DeltaPicOrderCntBottom, err = bd.ReadSignedExpGolomb(); err != nil {
				return fmt.Errorf("delta_pic_order_cnt_bottom: %w", err)
			}
		}
	case seq.PicOrderCntType == 1 && seq.DeltaPicOrderAlwaysZeroFlag == 0:
		if d.DeltaPicOrderCnt[0], err = bd.ReadSignedExpGolomb(); err != nil {
			return fmt.Errorf("delta_pic_order_cnt[0]: %w", err)
		}
		if pic.PicOrderPresentFlag == 1 && d.FieldPicFlag == 0 {
			if d.DeltaPicOrderCnt[1], err = bd.ReadSignedExpGolomb(); err != nil {
				return fmt.Errorf("delta_pic_order_cnt[1]: %w", err)
			}
		}
	}

	// Redundant pictures are not supported, but reading the count lets
	// us recognize and drop them instead of mis-assembling pictures.
	if pic.RedundantPicCntPresentFlag == 1 {
		d.RedundantPicCntPresent = true
		if d.RedundantPicCnt, err = bd.ReadExpGolomb(); err != nil {
			return fmt.Errorf("redundant_pic_cnt: %w", err)
		}
	}

	if showDetails {
		l.Infow("slice header fields",
			"frameNum", d.FrameNum,
			"fieldPicFlag", d.FieldPicFlag,
			"bottomFieldFlag", d.BottomFieldFlag,
			"picOrderCntLsb", d.PicOrderCntLsb,
			"redundantPicCnt", d.RedundantPicCnt,
		)
	}

	n.Decoded = true
	return nil
}

func (n *NALUnit) decodeSeqParamSet(l *zap.SugaredLogger, showDetails bool) error {
	bd := n.rbsp
	d := &SeqParamData{}
	n.Seq = d

	var err error
	if d.ProfileIDC, err = bd.ReadBitsIntoByte(8); err != nil {
		return fmt.Errorf("profile_idc: %w", err)
	}
	if d.ConstraintSet0Flag, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("constraint_set0_flag: %w", err)
	}
	if d.ConstraintSet1Flag, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("constraint_set1_flag: %w", err)
	}
	if d.ConstraintSet2Flag, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("constraint_set2_flag: %w", err)
	}
	reserved, err := bd.ReadBitsIntoByte(5)
	if err != nil {
		return fmt.Errorf("reserved_zero_5bits: %w", err)
	}
	if reserved != 0 {
		// if this is broken we cannot really trust the rest
		return fmt.Errorf("%w (%#02x) in sequence parameter set at %s",
			entities.ErrReservedBitsSet, reserved, n.StartPosn())
	}
	if d.LevelIDC, err = bd.ReadBitsIntoByte(8); err != nil {
		return fmt.Errorf("level_idc: %w", err)
	}
	if d.SeqParamSetID, err = bd.ReadExpGolomb(); err != nil {
		return fmt.Errorf("seq_parameter_set_id: %w", err)
	}
	log2MaxFrameNum, err := bd.ReadExpGolomb()
	if err != nil {
		return fmt.Errorf("log2_max_frame_num_minus4: %w", err)
	}
	d.Log2MaxFrameNum = int(log2MaxFrameNum) + 4
	if d.PicOrderCntType, err = bd.ReadExpGolomb(); err != nil {
		return fmt.Errorf("pic_order_cnt_type: %w", err)
	}

	switch d.PicOrderCntType {
	case 0:
		log2MaxLsb, err := bd.ReadExpGolomb()
		if err != nil {
			return fmt.Errorf("log2_max_pic_order_cnt_lsb_minus4: %w", err)
		}
		d.Log2MaxPicOrderCntLsb = int(log2MaxLsb) + 4
	case 1:
		if d.DeltaPicOrderAlwaysZeroFlag, err = bd.ReadBit(); err != nil {
			return fmt.Errorf("delta_pic_order_always_zero_flag: %w", err)
		}
		if _, err = bd.ReadSignedExpGolomb(); err != nil {
			return fmt.Errorf("offset_for_non_ref_pic: %w", err)
		}
		if _, err = bd.ReadSignedExpGolomb(); err != nil {
			return fmt.Errorf("offset_for_top_to_bottom_field: %w", err)
		}
		numRefFrames, err := bd.ReadExpGolomb()
		if err != nil {
			return fmt.Errorf("num_ref_frames_in_pic_order_cnt_cycle: %w", err)
		}
		for i := uint32(0); i < numRefFrames; i++ {
			if _, err = bd.ReadSignedExpGolomb(); err != nil {
				return fmt.Errorf("offset_for_ref_frame[%d]: %w", i, err)
			}
		}
	}

	if _, err = bd.ReadExpGolomb(); err != nil {
		return fmt.Errorf("num_ref_frames: %w", err)
	}
	if _, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("gaps_in_frame_num_value_allowed_flag: %w", err)
	}
	if _, err = bd.ReadExpGolomb(); err != nil {
		return fmt.Errorf("pic_width_in_mbs_minus1: %w", err)
	}
	if _, err = bd.ReadExpGolomb(); err != nil {
		return fmt.Errorf("pic_height_in_map_units_minus1: %w", err)
	}
	if d.FrameMbsOnlyFlag, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("frame_mbs_only_flag: %w", err)
	}

	if showDetails {
		l.Infow("sequence parameter set",
			"nal", n.String(),
			"profileIDC", d.ProfileIDC,
			"levelIDC", d.LevelIDC,
			"seqParamSetID", d.SeqParamSetID,
			"log2MaxFrameNum", d.Log2MaxFrameNum,
			"picOrderCntType", d.PicOrderCntType,
			"frameMbsOnlyFlag", d.FrameMbsOnlyFlag,
		)
	}

	n.Decoded = true
	return nil
}

func (n *NALUnit) decodePicParamSet(l *zap.SugaredLogger, showDetails bool) error {
	bd := n.rbsp
	d := &PicParamData{}
	n.Pic = d

	var err error
	if d.PicParamSetID, err = bd.ReadExpGolomb(); err != nil {
		return fmt.Errorf("pic_parameter_set_id: %w", err)
	}
	if d.SeqParamSetID, err = bd.ReadExpGolomb(); err != nil {
		return fmt.Errorf("seq_parameter_set_id: %w", err)
	}
	if d.EntropyCodingModeFlag, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("entropy_coding_mode_flag: %w", err)
	}
	if d.PicOrderPresentFlag, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("pic_order_present_flag: %w", err)
	}

	numSliceGroups, err := bd.ReadExpGolomb()
	if err != nil {
		return fmt.Errorf("num_slice_groups_minus1: %w", err)
	}
	d.NumSliceGroups = numSliceGroups + 1

	// The rest of the parameter set is only skipped over so that the
	// redundant_pic_cnt_present_flag at the very end can be read.
	if d.NumSliceGroups > 1 {
		if d.SliceGroupMapType, err = bd.ReadExpGolomb(); err != nil {
			return fmt.Errorf("slice_group_map_type: %w", err)
		}
		switch d.SliceGroupMapType {
		case 0:
			for i := uint32(0); i < d.NumSliceGroups; i++ {
				if _, err = bd.ReadExpGolomb(); err != nil {
					return fmt.Errorf("run_length_minus1[%d]: %w", i, err)
				}
			}
		case 2:
			for i := uint32(0); i < d.NumSliceGroups-1; i++ {
				if _, err = bd.ReadExpGolomb(); err != nil {
					return fmt.Errorf("top_left[%d]: %w", i, err)
				}
				if _, err = bd.ReadExpGolomb(); err != nil {
					return fmt.Errorf("bottom_right[%d]: %w", i, err)
				}
			}
		case 3, 4, 5:
			if _, err = bd.ReadBit(); err != nil {
				return fmt.Errorf("slice_group_change_direction_flag: %w", err)
			}
			if _, err = bd.ReadExpGolomb(); err != nil {
				return fmt.Errorf("slice_group_change_rate_minus1: %w", err)
			}
		case 6:
			picSizeInMapUnits, err := bd.ReadExpGolomb()
			if err != nil {
				return fmt.Errorf("pic_size_in_map_units_minus1: %w", err)
			}
			picSizeInMapUnits++
			size := int(math.Ceil(math.Log2(float64(d.NumSliceGroups))))
			for i := uint32(0); i < picSizeInMapUnits; i++ {
				if _, err = bd.ReadBits(size); err != nil {
					return fmt.Errorf("slice_group_id[%d]: %w", i, err)
				}
			}
		}
	}

	if _, err = bd.ReadExpGolomb(); err != nil {
		return fmt.Errorf("num_ref_idx_l0_active_minus1: %w", err)
	}
	if _, err = bd.ReadExpGolomb(); err != nil {
		return fmt.Errorf("num_ref_idx_l1_active_minus1: %w", err)
	}
	if _, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("weighted_pred_flag: %w", err)
	}
	if _, err = bd.ReadBits(2); err != nil {
		return fmt.Errorf("weighted_bipred_idc: %w", err)
	}
	if _, err = bd.ReadSignedExpGolomb(); err != nil {
		return fmt.Errorf("pic_init_qp_minus26: %w", err)
	}
	if _, err = bd.ReadSignedExpGolomb(); err != nil {
		return fmt.Errorf("pic_init_qs_minus26: %w", err)
	}
	if _, err = bd.ReadSignedExpGolomb(); err != nil {
		return fmt.Errorf("chroma_qp_index_offset: %w", err)
	}
	if _, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("deblocking_filter_control_present_flag: %w", err)
	}
	if _, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("constrained_intra_pred_flag: %w", err)
	}
	if d.RedundantPicCntPresentFlag, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("redundant_pic_cnt_present_flag: %w", err)
	}

	if showDetails {
		l.Infow("picture parameter set",
			"nal", n.String(),
			"picParamSetID", d.PicParamSetID,
			"seqParamSetID", d.SeqParamSetID,
			"entropyCodingModeFlag", d.EntropyCodingModeFlag,
			"picOrderPresentFlag", d.PicOrderPresentFlag,
			"numSliceGroups", d.NumSliceGroups,
			"redundantPicCntPresentFlag", d.RedundantPicCntPresentFlag,
		)
	}

	n.Decoded = true
	return nil
}

// decodeSEI reads an SEI payload header and, for a recovery point
// (payload type 6), the recovery point fields.
func (n *NALUnit) decodeSEI(l *zap.SugaredLogger, showDetails bool) error {
	bd := n.rbsp
	d := &SEIRecoveryData{}
	n.SEIRecovery = d

	// payload type and size both use 0xFF continuation bytes
	for {
		b, err := bd.ReadBits(8)
		if err != nil {
			return fmt.Errorf("payloadType: %w", err)
		}
		d.PayloadType += b
		if b != 0xFF {
			break
		}
	}
	for {
		b, err := bd.ReadBits(8)
		if err != nil {
			return fmt.Errorf("payloadSize: %w", err)
		}
		d.PayloadSize += b
		if b != 0xFF {
			break
		}
	}

	if d.PayloadType != 6 {
		return nil
	}

	var err error
	if d.RecoveryFrameCnt, err = bd.ReadExpGolomb(); err != nil {
		return fmt.Errorf("recovery_frame_cnt: %w", err)
	}
	if d.ExactMatchFlag, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("exact_match_flag: %w", err)
	}
	if d.BrokenLinkFlag, err = bd.ReadBit(); err != nil {
		return fmt.Errorf("broken_link_flag: %w", err)
	}
	if d.ChangingSliceGroupIDC, err = bd.ReadBits(2); err != nil {
		return fmt.Errorf("changing_slice_group_idc: %w", err)
	}
	n.Decoded = true

	if showDetails {
		l.Infow("SEI recovery point",
			"recoveryFrameCnt", d.RecoveryFrameCnt,
			"exactMatchFlag", d.ExactMatchFlag,
			"brokenLinkFlag", d.BrokenLinkFlag,
			"changingSliceGroupIDC", d.ChangingSliceGroupIDC,
		)
	}
	return nil
}
