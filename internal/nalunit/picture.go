package nalunit

import (
	"github.com/streamtools/h264au/internal/entities"
)

// PrimaryStart is a value copy of the fields of a slice NAL unit that
// picture boundary detection compares against. Copying them keeps the
// comparison data alive after the NAL unit itself has been handed on
// (or merged into an access unit and possibly discarded).
type PrimaryStart struct {
	RefIDC   byte
	UnitType entities.NALUnitType
	Slice    SliceData
}

// AsPrimaryStart captures the unit's boundary comparison fields.
// Returns nil if the unit is not a decoded slice.
func (n *NALUnit) AsPrimaryStart() *PrimaryStart {
	if !n.IsSlice() || !n.Decoded || n.Slice == nil {
		return nil
	}
	return &PrimaryStart{
		RefIDC:   n.RefIDC,
		UnitType: n.UnitType,
		Slice:    *n.Slice,
	}
}

// IsFirstVCLNAL decides whether this slice begins a new primary coded
// picture, comparing against the slice that began the previous one
// (H.264 7.4.1.2.4). The decision and its reason are memoized on the
// unit. A nil last means there is nothing to compare against, in
// which case any slice starts a picture.
func (n *NALUnit) IsFirstVCLNAL(last *PrimaryStart) bool {
	if n.startsPictureDecided {
		return n.startsPicture
	}
	if !n.Decoded {
		// cannot decide without interpreted RBSP data; do not memoize
		// so a later decode can still answer
		return false
	}

	if !n.IsSlice() {
		n.startsPicture = false
		n.startsPictureDecided = true
		return false
	}

	n.startsPicture = true
	n.startsPictureDecided = true

	if last == nil {
		n.StartReason = "First slice in data stream"
		return true
	}

	this, that := n.Slice, &last.Slice
	switch {
	case this.FrameNum != that.FrameNum:
		n.StartReason = "Frame number differs"
	case this.FieldPicFlag != that.FieldPicFlag:
		n.StartReason = "One is field, the other frame"
	case this.BottomFieldFlagPresent && that.BottomFieldFlagPresent &&
		this.BottomFieldFlag != that.BottomFieldFlag:
		n.StartReason = "One is bottom field, the other top"
	case n.RefIDC != last.RefIDC && (n.RefIDC == 0 || last.RefIDC == 0):
		n.StartReason = "One is reference picture, the other is not"
	case this.PicOrderCntType == 0 && that.PicOrderCntType == 0 &&
		(this.PicOrderCntLsb != that.PicOrderCntLsb ||
			this.DeltaPicOrderCntBottom != that.DeltaPicOrderCntBottom):
		n.StartReason = "Picture order counts differ"
	case this.PicOrderCntType == 1 && that.PicOrderCntType == 1 &&
		(this.DeltaPicOrderCnt[0] != that.DeltaPicOrderCnt[0] ||
			this.DeltaPicOrderCnt[1] != that.DeltaPicOrderCnt[1]):
		n.StartReason = "Picture delta counts differ"
	case (n.UnitType == entities.NALIDRSlice || last.UnitType == entities.NALIDRSlice) &&
		n.UnitType != last.UnitType:
		n.StartReason = "One IDR, one not"
	case n.UnitType == entities.NALIDRSlice && last.UnitType == entities.NALIDRSlice &&
		this.IDRPicID != that.IDRPicID:
		n.StartReason = "Different IDRs"
	default:
		n.startsPicture = false
	}

	return n.startsPicture
}
