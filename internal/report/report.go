// Package report walks an input file access unit by access unit and logs
// what it finds. It is the glue between the command line and the decoding
// contexts.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/streamtools/h264au/internal/accessunit"
	"github.com/streamtools/h264au/internal/entities"
	"github.com/streamtools/h264au/internal/es"
	"github.com/streamtools/h264au/internal/mapper"
	"go.uber.org/zap"
)

type Reporter struct {
	c *entities.Config
	l *zap.SugaredLogger
	m *mapper.Mapper
}

func NewReporter(
	c *entities.Config,
	log *zap.SugaredLogger,
	m *mapper.Mapper,
) *Reporter {
	return &Reporter{
		c: c,
		l: log,
		m: m,
	}
}

// Summary is what a full pass over the input amounts to.
type Summary struct {
	AccessUnits  int
	Frames       int
	NALUnits     int
	Slices       int
	ISlices      int
	PSlices      int
	BSlices      int
	IgnoredNALs  int
	SawEndOfSeq  bool
	SawEndOfStrm bool
}

// Run opens the configured input, reports on it and logs the summary.
func (r *Reporter) Run() error {
	if r.c.Input == "" {
		return entities.ErrMissingInput
	}
	f, err := os.Open(r.c.Input)
	if err != nil {
		return fmt.Errorf("opening %s: %w", r.c.Input, err)
	}
	defer f.Close()

	src, err := r.source(f)
	if err != nil {
		return err
	}
	sum, err := r.Report(src)
	if err != nil {
		return err
	}

	r.l.Infow("finished reading input",
		"input", r.c.Input,
		"accessUnits", sum.AccessUnits,
		"frames", sum.Frames,
		"nalUnits", sum.NALUnits,
		"slices", sum.Slices,
		"iSlices", sum.ISlices,
		"pSlices", sum.PSlices,
		"bSlices", sum.BSlices,
	)
	if sum.IgnoredNALs > 0 {
		r.l.Warnw("some NAL units could not be decoded and were ignored",
			"count", sum.IgnoredNALs)
	}
	if sum.SawEndOfStrm {
		r.l.Infow("stream is terminated by an end of stream NAL unit")
	}
	return nil
}

func (r *Reporter) source(f io.ReadSeeker) (es.Source, error) {
	switch r.c.InputFormat {
	case entities.FormatES:
		return es.NewFileSource(f), nil
	case entities.FormatMpegTS:
		return es.NewTSSource(f, r.m, r.l), nil
	}
	return nil, fmt.Errorf("%w: %q", entities.ErrUnsupportedFormat, r.c.InputFormat)
}

// Report reads src to its end, or to the configured access unit limit, and
// tallies up what went past.
func (r *Reporter) Report(src es.Source) (Summary, error) {
	ctx := accessunit.NewContext(src, r.c, r.l)
	var sum Summary
	for {
		var au *accessunit.AccessUnit
		var err error
		if r.c.PairFields {
			au, err = ctx.NextFrame()
		} else {
			au, err = ctx.NextAccessUnit()
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("reading access unit %d: %w", sum.AccessUnits+1, err)
		}

		sum.AccessUnits++
		sum.IgnoredNALs += au.IgnoredBrokenNALUnits
		r.tally(&sum, au)
		if au.PrimaryStart != nil {
			sum.Frames++
			r.describe(au)
		}
		if r.c.MaxAccessUnits > 0 && sum.Frames >= r.c.MaxAccessUnits {
			break
		}
	}
	sum.NALUnits = ctx.NALContext().Count()
	sum.SawEndOfSeq = ctx.EndOfSequence != nil
	sum.SawEndOfStrm = ctx.EndOfStream != nil
	return sum, nil
}

func (r *Reporter) tally(sum *Summary, au *accessunit.AccessUnit) {
	for _, nal := range au.NALUnits {
		if !nal.IsSlice() || nal.Slice == nil {
			continue
		}
		sum.Slices++
		switch nal.Slice.SliceType {
		case entities.SliceI, entities.AllSlicesI, entities.SliceSI, entities.AllSlicesSI:
			sum.ISlices++
		case entities.SliceP, entities.AllSlicesP, entities.SliceSP, entities.AllSlicesSP:
			sum.PSlices++
		case entities.SliceB, entities.AllSlicesB:
			sum.BSlices++
		}
	}
}

func (r *Reporter) describe(au *accessunit.AccessUnit) {
	if r.c.Quiet {
		return
	}
	fields := []interface{}{
		"index", au.Index,
		"nalUnits", len(au.NALUnits),
		"slices", au.NumSlices(),
		"kind", r.m.FromSliceTypeToFrameKind(au.PrimaryStart.Slice.SliceType),
	}
	if posn, size, err := au.Bounds(); err == nil {
		fields = append(fields, "start", posn.String(), "dataLen", size)
	}
	if au.FieldPicFlag == 1 {
		field := "top"
		if au.BottomFieldFlag == 1 {
			field = "bottom"
		}
		fields = append(fields, "field", field)
	}
	r.l.Infow("access unit", fields...)
}
