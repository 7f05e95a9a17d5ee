// Package accessunit assembles decoded NAL units into H.264 access
// units, one per primary coded picture, and optionally pairs top and
// bottom field pictures into frames.
package accessunit

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/streamtools/h264au/internal/entities"
	"github.com/streamtools/h264au/internal/nalunit"
)

// AccessUnit is a sequence of NAL units belonging to one primary coded
// picture, in stream order.
type AccessUnit struct {
	NALUnits []*nalunit.NALUnit

	// Index counts access units from 1 as they were read.
	Index uint32

	// PrimaryStart points at the NAL unit within NALUnits that began
	// the primary picture, nil for an access unit with no picture.
	PrimaryStart          *nalunit.NALUnit
	StartedPrimaryPicture bool

	// FrameNum, FieldPicFlag and BottomFieldFlag are copied from the
	// primary start slice.
	FrameNum        uint32
	FieldPicFlag    byte
	BottomFieldFlag byte

	// IgnoredBrokenNALUnits counts units that were skipped while this
	// access unit was being assembled.
	IgnoredBrokenNALUnits int
}

func newAccessUnit(index uint32) *AccessUnit {
	return &AccessUnit{Index: index}
}

// append adds a NAL unit, preceded by any pending units that were held
// back waiting for it. A nil nal appends just the pending units.
func (au *AccessUnit) append(nal *nalunit.NALUnit, startsPrimary bool, pending []*nalunit.NALUnit) error {
	if startsPrimary && au.StartedPrimaryPicture {
		// the caller should have started a new access unit instead
		return fmt.Errorf("access unit %d already has a primary picture start", au.Index)
	}
	if startsPrimary {
		au.PrimaryStart = nal
		au.StartedPrimaryPicture = true
		au.FrameNum = nal.Slice.FrameNum
		au.FieldPicFlag = nal.Slice.FieldPicFlag
		au.BottomFieldFlag = nal.Slice.BottomFieldFlag
	}
	au.NALUnits = append(au.NALUnits, pending...)
	if nal != nil {
		au.NALUnits = append(au.NALUnits, nal)
	}
	return nil
}

// mergeNALs moves the second access unit's NAL units onto the end of
// this one, making it look like a frame.
func (au *AccessUnit) mergeNALs(second *AccessUnit) {
	au.NALUnits = append(au.NALUnits, second.NALUnits...)
	au.IgnoredBrokenNALUnits += second.IgnoredBrokenNALUnits
	au.FieldPicFlag = 0
}

// NumSlices counts the VCL NAL units of the access unit.
func (au *AccessUnit) NumSlices() int {
	count := 0
	for _, nal := range au.NALUnits {
		if nal.IsSlice() {
			count++
		}
	}
	return count
}

// Bounds returns where the access unit starts in the stream it was
// read from, and the total length in bytes of its NAL units including
// their start-code prefixes.
func (au *AccessUnit) Bounds() (entities.ESOffset, int, error) {
	if au.PrimaryStart == nil {
		return entities.ESOffset{}, 0, entities.ErrEmptyAccessUnit
	}
	length := 0
	for _, nal := range au.NALUnits {
		length += len(nal.Unit.Data)
	}
	return au.NALUnits[0].StartPosn(), length, nil
}

// slice type queries below mirror each other: the primary start slice
// answers directly when it declares "all slices are X", otherwise
// every slice must agree

// AllSlicesI reports whether every slice in the access unit is an I slice.
func (au *AccessUnit) AllSlicesI() bool {
	return au.allSlices(entities.SliceI, entities.AllSlicesI)
}

// AllSlicesP reports whether every slice in the access unit is a P slice.
func (au *AccessUnit) AllSlicesP() bool {
	return au.allSlices(entities.SliceP, entities.AllSlicesP)
}

// AllSlicesB reports whether every slice in the access unit is a B slice.
func (au *AccessUnit) AllSlicesB() bool {
	return au.allSlices(entities.SliceB, entities.AllSlicesB)
}

func (au *AccessUnit) allSlices(single, all entities.SliceType) bool {
	if au.PrimaryStart == nil || !au.PrimaryStart.IsSlice() {
		return false
	}
	if au.PrimaryStart.Slice.SliceType == all {
		return true
	}
	if au.NumSlices() == 1 && au.PrimaryStart.Slice.SliceType == single {
		return true
	}
	for _, nal := range au.NALUnits {
		if nal.IsSlice() && nal.Slice.SliceType != single {
			return false
		}
	}
	return true
}

// AllSlicesIOrP reports whether every slice is an I or a P slice.
func (au *AccessUnit) AllSlicesIOrP() bool {
	if au.PrimaryStart == nil || !au.PrimaryStart.IsSlice() {
		return false
	}
	st := au.PrimaryStart.Slice.SliceType
	if st == entities.AllSlicesI || st == entities.AllSlicesP {
		return true
	}
	if au.NumSlices() == 1 && (st == entities.SliceI || st == entities.SliceP) {
		return true
	}
	for _, nal := range au.NALUnits {
		if !nal.IsSlice() {
			continue
		}
		if nal.Slice.SliceType != entities.SliceI && nal.Slice.SliceType != entities.SliceP {
			return false
		}
	}
	return true
}

// Report logs a description of the access unit, one line per NAL unit.
// The primary start slice is marked with a star.
func (au *AccessUnit) Report(l *zap.SugaredLogger) {
	picture := fmt.Sprintf("frame %d", au.FrameNum)
	if au.FieldPicFlag == 1 {
		half := "top"
		if au.BottomFieldFlag == 1 {
			half = "bottom"
		}
		picture = fmt.Sprintf("%s field of frame %d", half, au.FrameNum)
	}
	fields := []interface{}{
		"index", au.Index,
		"picture", picture,
		"nalUnits", len(au.NALUnits),
	}
	if au.StartedPrimaryPicture && au.PrimaryStart != nil {
		fields = append(fields, "startReason", au.PrimaryStart.StartReason)
	}
	if au.IgnoredBrokenNALUnits > 0 {
		fields = append(fields, "ignoredBrokenNALUnits", au.IgnoredBrokenNALUnits)
	}
	l.Infow("access unit", fields...)

	for _, nal := range au.NALUnits {
		marker := " "
		if nal == au.PrimaryStart {
			marker = "*"
		}
		l.Infow(fmt.Sprintf("  %s %s", marker, nal))
	}
}
