package nalunit

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/streamtools/h264au/internal/entities"
	"github.com/streamtools/h264au/internal/es"
)

// Context reads NAL units from an elementary stream source and keeps
// the parameter set dictionaries that decoding slice headers needs.
type Context struct {
	src es.Source
	c   *entities.Config
	l   *zap.SugaredLogger

	SeqParams *ParamDict[SeqParamData]
	PicParams *ParamDict[PicParamData]

	count           int
	checkedFirstSPS bool
}

func NewContext(src es.Source, c *entities.Config, log *zap.SugaredLogger) *Context {
	return &Context{
		src:       src,
		c:         c,
		l:         log,
		SeqParams: NewParamDict[SeqParamData](),
		PicParams: NewParamDict[PicParamData](),
	}
}

// Count returns how many NAL units have been read so far.
func (c *Context) Count() int {
	return c.count
}

// SeqParamSet returns the remembered sequence parameter set with the
// given id.
func (c *Context) SeqParamSet(id uint32) (SeqParamData, error) {
	d, ok := c.SeqParams.Lookup(id)
	if !ok {
		return SeqParamData{}, fmt.Errorf("%w %d", entities.ErrUnknownSeqParamSet, id)
	}
	return d, nil
}

// PicParamSet returns the remembered picture parameter set with the
// given id.
func (c *Context) PicParamSet(id uint32) (PicParamData, error) {
	d, ok := c.PicParams.Lookup(id)
	if !ok {
		return PicParamData{}, fmt.Errorf("%w %d", entities.ErrUnknownPicParamSet, id)
	}
	return d, nil
}

// Next finds and decodes the next NAL unit.
//
// It returns io.EOF when the stream is exhausted, and an error
// wrapping entities.ErrBrokenNALUnit when the unit's RBSP data could
// not be understood; the caller should drop that unit and carry on.
// Other errors are fatal. Parameter sets are remembered as a side
// effect, so later slice headers can be decoded.
func (c *Context) Next() (*NALUnit, error) {
	unit, err := c.src.NextUnit()
	if err != nil {
		return nil, err
	}

	nal, err := newNALUnit(unit)
	if err != nil {
		return nil, err
	}
	c.count++

	if c.c.ShowNALDetails {
		c.l.Infow("found NAL unit", "nal", nal.String())
	}

	err = nal.decodeRBSP(c.SeqParams, c.PicParams, c.l, c.c.ShowNALDetails)

	// The first sequence parameter set tells us whether the bitstream
	// matches what we claim to support, and bootstraps everything else.
	if nal.UnitType == entities.NALSeqParamSet && !c.checkedFirstSPS {
		c.checkedFirstSPS = true
		if err == nil {
			c.checkProfile(nal)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrBrokenNALUnit, err)
	}

	switch nal.UnitType {
	case entities.NALSeqParamSet:
		c.SeqParams.Remember(nal.Seq.SeqParamSetID, *nal.Seq,
			nal.StartPosn(), len(nal.Payload()))
	case entities.NALPicParamSet:
		c.PicParams.Remember(nal.Pic.PicParamSetID, *nal.Pic,
			nal.StartPosn(), len(nal.Payload()))
	}

	return nal, nil
}

// Rewind repositions the source at the start of the stream. The
// parameter set dictionaries deliberately survive: the stream already
// defined those sets and they stay active.
func (c *Context) Rewind() error {
	return c.src.Seek(entities.ESOffset{})
}

// checkProfile warns if the bitstream declares a profile other than
// main and does not claim to obey main profile constraints.
func (c *Context) checkProfile(nal *NALUnit) {
	d := nal.Seq
	if d.ProfileIDC == 77 || d.ConstraintSet1Flag == 1 {
		return
	}

	name := "<unknown>"
	switch d.ProfileIDC {
	case 66:
		name = "baseline"
	case 88:
		name = "extended"
	}

	var obeys []string
	if d.ConstraintSet0Flag == 1 {
		obeys = append(obeys, "baseline")
	}
	if d.ConstraintSet1Flag == 1 {
		obeys = append(obeys, "main")
	}
	if d.ConstraintSet2Flag == 1 {
		obeys = append(obeys, "extended")
	}

	c.l.Warnw("bitstream declares an unsupported profile and may give incorrect results",
		"profile", name,
		"profileIDC", d.ProfileIDC,
		"obeysConstraintsOf", strings.Join(obeys, " "),
	)
}
