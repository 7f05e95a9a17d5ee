package accessunit

import (
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/streamtools/h264au/internal/entities"
	"github.com/streamtools/h264au/internal/es"
	"github.com/streamtools/h264au/internal/nalunit"
)

// Context assembles access units from the NAL units of an elementary
// stream.
type Context struct {
	nc *nalunit.Context
	c  *entities.Config
	l  *zap.SugaredLogger

	// EndOfSequence and EndOfStream remember the marker NAL units that
	// ended the most recent access unit, when one did. EndOfStream
	// also distinguishes a marked stream end from plain end of input.
	EndOfSequence *nalunit.NALUnit
	EndOfStream   *nalunit.NALUnit

	// pendingNAL is a slice that was found to start the next primary
	// picture while the previous access unit was being assembled.
	pendingNAL *nalunit.NALUnit

	// pendingList holds non-VCL units (parameter sets, SEI and
	// friends) that belong to whichever access unit starts next.
	pendingList []*nalunit.NALUnit

	earlierPrimaryStart *nalunit.PrimaryStart

	accessUnitIndex uint32
	noMoreData      bool
}

func NewContext(src es.Source, c *entities.Config, log *zap.SugaredLogger) *Context {
	return &Context{
		nc: nalunit.NewContext(src, c, log),
		c:  c,
		l:  log,
	}
}

// NALContext exposes the underlying NAL unit context, mostly for its
// parameter set dictionaries and unit count.
func (c *Context) NALContext() *nalunit.Context {
	return c.nc
}

// NextAccessUnit retrieves the next access unit from the stream.
//
// It returns io.EOF when there is no more data; that can mean real end
// of input or an end of stream NAL unit, distinguished by EndOfStream
// being non-nil. An access unit can legitimately come back empty, for
// instance between two end of sequence markers, so callers counting
// pictures should check PrimaryStart.
func (c *Context) NextAccessUnit() (*AccessUnit, error) {
	if c.noMoreData {
		return nil, io.EOF
	}

	au := newAccessUnit(c.accessUnitIndex + 1)

	// anything left over from the previous call starts this unit
	if c.pendingNAL != nil {
		if err := au.append(c.pendingNAL, true, c.pendingList); err != nil {
			return nil, err
		}
		c.pendingNAL = nil
		c.pendingList = nil
	}

	for {
		nal, err := c.nc.Next()
		if errors.Is(err, io.EOF) {
			c.noMoreData = true
			return c.finish(au)
		}
		if errors.Is(err, entities.ErrBrokenNALUnit) {
			// ignore it and pretend it never happened; giving up on
			// the whole access unit would lose more data than the one
			// unit that is actually damaged
			c.l.Warnw("ignoring broken NAL unit", "error", err)
			au.IgnoredBrokenNALUnits++
			continue
		}
		if err != nil {
			return nil, err
		}

		switch {
		case nal.IsSlice():
			if done, err := c.addSlice(au, nal); err != nil {
				return nil, err
			} else if done {
				return c.finish(au)
			}

		case nal.UnitType == entities.NALAccessUnitDelimiter:
			// a delimiter always starts an access unit
			if au.StartedPrimaryPicture {
				c.pendingList = append(c.pendingList, nal)
				return c.finish(au)
			}
			if len(c.pendingList) > 0 || len(au.NALUnits) > 0 {
				c.l.Warnw("ignoring incomplete access unit",
					"nalUnits", len(au.NALUnits),
					"pending", len(c.pendingList),
				)
				au.NALUnits = nil
				c.pendingList = nil
			}
			if err := au.append(nal, false, nil); err != nil {
				return nil, err
			}

		case nal.UnitType == entities.NALSEI:
			// SEI units precede the primary coded picture, so they
			// also implicitly end any access unit that already has one
			c.pendingList = append(c.pendingList, nal)
			if au.StartedPrimaryPicture {
				return c.finish(au)
			}

		case nal.UnitType == entities.NALSeqParamSet,
			nal.UnitType == entities.NALPicParamSet,
			nal.UnitType >= 13 && nal.UnitType <= 18:
			// these start a new access unit if they follow the last
			// VCL NAL of the previous one, which we only learn once
			// the next access unit actually starts; hold them in hand
			c.pendingList = append(c.pendingList, nal)

		case nal.UnitType == entities.NALEndOfSequence:
			c.discardPending("end of sequence")
			c.EndOfSequence = nal
			return c.finish(au)

		case nal.UnitType == entities.NALEndOfStream:
			c.discardPending("end of stream")
			c.EndOfStream = nal
			// next call reports EOF
			c.noMoreData = true
			return c.finish(au)

		default:
			// nothing we need for assembling pictures
		}
	}
}

// addSlice handles a slice NAL unit; done is true when the slice
// belongs to the next access unit and au is complete.
func (c *Context) addSlice(au *AccessUnit, nal *nalunit.NALUnit) (done bool, err error) {
	switch {
	case !au.StartedPrimaryPicture:
		// no slice yet, so be lazy and assume this must be the first.
		// (what we are not checking is whether the first access unit
		// in the bitstream starts with an IDR)
		nal.StartReason = "First slice of new access unit"
		if err := au.append(nal, true, c.pendingList); err != nil {
			return false, err
		}
		c.pendingList = nil
		c.earlierPrimaryStart = nal.AsPrimaryStart()

	case nal.IsFirstVCLNAL(c.earlierPrimaryStart):
		// this slice starts the next access unit; remember it for the
		// next call and return the one in hand
		c.earlierPrimaryStart = nal.AsPrimaryStart()
		c.pendingNAL = nal
		return true, nil

	case nal.IsRedundant():
		// not supported, drop it

	default:
		// part of the same access unit, but not special
		if err := au.append(nal, false, c.pendingList); err != nil {
			return false, err
		}
		c.pendingList = nil
	}
	return false, nil
}

func (c *Context) discardPending(before string) {
	if len(c.pendingList) == 0 {
		return
	}
	c.l.Warnw("ignoring items after last VCL NAL unit",
		"before", before,
		"discarded", len(c.pendingList),
	)
	c.pendingList = nil
}

func (c *Context) finish(au *AccessUnit) (*AccessUnit, error) {
	// end of input with nothing since the last access unit
	if c.noMoreData && len(au.NALUnits) == 0 {
		return nil, io.EOF
	}
	if c.c.ShowAUDetails {
		au.Report(c.l)
	}
	c.accessUnitIndex++
	return au, nil
}

// NextNonEmptyAccessUnit skips access units without a primary picture.
func (c *Context) NextNonEmptyAccessUnit() (*AccessUnit, error) {
	for {
		au, err := c.NextAccessUnit()
		if err != nil {
			return nil, err
		}
		if au.PrimaryStart != nil {
			return au, nil
		}
	}
}

// NextFrame retrieves the next frame. A frame access unit is returned
// as is; a field access unit is merged with the matching second field
// of its frame. If a field with one frame number is followed by a
// field with another, synchronisation has been lost: the first field
// is discarded and the second field of the newer frame is tried once
// more before giving up with entities.ErrFieldSyncLost.
func (c *Context) NextFrame() (*AccessUnit, error) {
	au, err := c.NextNonEmptyAccessUnit()
	if err != nil {
		return nil, err
	}
	if au.FieldPicFlag == 1 {
		return c.nextFieldOfPair(au, true)
	}
	return au, nil
}

func (c *Context) nextFieldOfPair(first *AccessUnit, firstTime bool) (*AccessUnit, error) {
	if c.c.ShowAUDetails {
		c.l.Infow("looking for second field", "frameNum", first.FrameNum)
	}
	second, err := c.NextNonEmptyAccessUnit()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			c.l.Errorw("trying to read second field", "error", err)
		}
		return nil, err
	}

	switch {
	case second.FieldPicFlag == 0:
		if !c.c.Quiet {
			c.l.Warnw("field followed by a frame, ignoring the field",
				"fieldFrameNum", first.FrameNum,
			)
		}
		return second, nil

	case first.FrameNum == second.FrameNum:
		// matching fields, make a frame from them
		first.mergeNALs(second)
		if c.c.ShowAUDetails {
			first.Report(c.l)
		}
		return first, nil

	case firstTime:
		if !c.c.Quiet {
			c.l.Warnw("adjacent fields with different frame numbers, ignoring first field",
				"firstFrameNum", first.FrameNum,
				"secondFrameNum", second.FrameNum,
			)
		}
		return c.nextFieldOfPair(second, false)

	default:
		return nil, entities.ErrFieldSyncLost
	}
}

// Reset abandons all in-progress assembly state, ready to continue
// reading from wherever the underlying stream is now. The parameter
// set dictionaries are kept.
func (c *Context) Reset() {
	c.pendingNAL = nil
	c.pendingList = nil
	c.earlierPrimaryStart = nil
	c.EndOfSequence = nil
	c.EndOfStream = nil
	c.noMoreData = false
}

// Rewind resets the context and repositions the stream at its start.
func (c *Context) Rewind() error {
	c.Reset()
	c.accessUnitIndex = 0
	return c.nc.Rewind()
}
