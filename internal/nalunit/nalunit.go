// Package nalunit reads H.264 NAL units out of an elementary stream
// and decodes the header fields needed to delimit pictures: slice
// headers, sequence and picture parameter sets and SEI recovery
// points. Payload decode stops where picture boundary detection stops
// needing it; macroblock data is never touched.
package nalunit

import (
	"fmt"

	"github.com/streamtools/h264au/internal/bitdata"
	"github.com/streamtools/h264au/internal/entities"
	"github.com/streamtools/h264au/internal/es"
)

// NALUnit is a single NAL unit and whatever was decoded from its RBSP.
type NALUnit struct {
	RefIDC   byte
	UnitType entities.NALUnitType

	// Unit is the elementary stream unit the NAL unit arrived in; its
	// Data keeps the 00 00 01 prefix so the unit can be re-emitted.
	Unit *es.Unit

	// Decoded is set once the RBSP fields were read successfully.
	Decoded bool

	Slice       *SliceData
	Seq         *SeqParamData
	Pic         *PicParamData
	SEIRecovery *SEIRecoveryData

	// StartReason says why this unit was taken to start a new primary
	// picture, when it was.
	StartReason string

	rbsp *bitdata.Reader

	startsPicture        bool
	startsPictureDecided bool
}

// newNALUnit reads the NAL unit header out of an elementary stream
// unit. The RBSP is not decoded yet.
func newNALUnit(unit *es.Unit) (*NALUnit, error) {
	payload := unit.Payload()
	if len(payload) == 0 {
		return nil, fmt.Errorf("NAL unit at %s has no header byte", unit.StartPosn)
	}
	header := payload[0]
	if header&0x80 != 0 {
		hint := ""
		if header == 0xB3 {
			hint = " (maybe MPEG-2 data?)"
		}
		return nil, fmt.Errorf("%w in NAL unit at %s%s",
			entities.ErrForbiddenZeroBit, unit.StartPosn, hint)
	}
	return &NALUnit{
		RefIDC:   (header >> 5) & 0x03,
		UnitType: entities.NALUnitType(header & 0x1F),
		Unit:     unit,
	}, nil
}

// Payload returns the unit's bytes after the start-code prefix,
// beginning with the header byte.
func (n *NALUnit) Payload() []byte {
	return n.Unit.Payload()
}

func (n *NALUnit) StartPosn() entities.ESOffset {
	return n.Unit.StartPosn
}

// IsSlice reports whether the unit is a coded slice, IDR or not.
func (n *NALUnit) IsSlice() bool {
	return n.UnitType == entities.NALNonIDRSlice || n.UnitType == entities.NALIDRSlice
}

// IsRedundant reports whether the unit is a redundant coded slice.
func (n *NALUnit) IsRedundant() bool {
	return n.IsSlice() && n.Decoded && n.Slice != nil &&
		n.Slice.RedundantPicCntPresent && n.Slice.RedundantPicCnt > 0
}

func (n *NALUnit) String() string {
	s := fmt.Sprintf("NAL unit %d/%d (%s) at %s, %d bytes",
		n.RefIDC, byte(n.UnitType), n.UnitType, n.Unit.StartPosn, len(n.Unit.Data))
	if n.IsSlice() && n.Decoded && n.Slice != nil {
		s += fmt.Sprintf(" {frame %d, %s}", n.Slice.FrameNum, n.Slice.SliceType)
	}
	return s
}

// prepareRBSP extracts the unit's RBSP and wraps it in a bit reader.
// The RBSP is transient: it is dropped again once decode finishes, so
// a retry re-extracts it.
func (n *NALUnit) prepareRBSP() {
	if n.rbsp != nil {
		return
	}
	n.rbsp = bitdata.NewReader(ExtractRBSP(n.Payload()[1:]))
}

// ExtractRBSP undoes emulation prevention: a 0x03 byte directly after
// two zero bytes is dropped, everything else is copied through.
func ExtractRBSP(data []byte) []byte {
	rbsp := make([]byte, 0, len(data))
	var prev1, prev2 byte
	for _, b := range data {
		if !(b == 0x03 && prev1 == 0x00 && prev2 == 0x00) {
			rbsp = append(rbsp, b)
		}
		prev2 = prev1
		prev1 = b
	}
	return rbsp
}
