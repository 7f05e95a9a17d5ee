package accessunit

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamtools/h264au/internal/entities"
	"github.com/streamtools/h264au/internal/es"
	"github.com/streamtools/h264au/internal/nalunit/nalunittest"
)

func newTestContext(stream []byte) *Context {
	return NewContext(es.NewBytesSource(stream), &entities.Config{}, zap.NewNop().Sugar())
}

func TestNextAccessUnitEndToEnd(t *testing.T) {
	// one complete access unit, a trailing SEI that gets discarded by
	// the end of sequence marker, then end of input
	idr := nalunittest.SliceOpts{RefIDC: 3, IDR: true, SliceType: 7}
	stream := nalunittest.Stream(
		nalunittest.AUD(),
		nalunittest.SPS(nalunittest.SPSOpts{}),
		nalunittest.PPS(nalunittest.PPSOpts{}),
		nalunittest.Slice(idr),
		nalunittest.Slice(idr), // second slice of the same picture
		nalunittest.SEIRecovery(0),
		nalunittest.EndOfSequence(),
	)
	ctx := newTestContext(stream)

	au, err := ctx.NextAccessUnit()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), au.Index)
	require.Len(t, au.NALUnits, 5) // AUD SPS PPS slice slice
	require.NotNil(t, au.PrimaryStart)
	assert.Same(t, au.NALUnits[3], au.PrimaryStart)
	assert.Equal(t, "First slice of new access unit", au.PrimaryStart.StartReason)
	assert.Equal(t, 2, au.NumSlices())
	assert.True(t, au.AllSlicesI())
	assert.False(t, au.AllSlicesB())
	assert.Equal(t, uint32(0), au.FrameNum)

	start, length, err := au.Bounds()
	require.NoError(t, err)
	assert.Equal(t, entities.ESOffset{}, start)
	// everything except the SEI and the end of sequence marker
	wantLen := len(stream) - len(nalunittest.SEIRecovery(0)) - len(nalunittest.EndOfSequence())
	assert.Equal(t, wantLen, length)

	// the end of sequence marker closes a second, empty access unit;
	// the pending SEI before it is discarded
	au, err = ctx.NextAccessUnit()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), au.Index)
	assert.Empty(t, au.NALUnits)
	assert.Nil(t, au.PrimaryStart)
	require.NotNil(t, ctx.EndOfSequence)
	assert.Equal(t, entities.NALEndOfSequence, ctx.EndOfSequence.UnitType)

	_, _, err = au.Bounds()
	assert.ErrorIs(t, err, entities.ErrEmptyAccessUnit)

	_, err = ctx.NextAccessUnit()
	assert.ErrorIs(t, err, io.EOF)
	assert.Nil(t, ctx.EndOfStream) // true end of input
}

func TestSliceBoundariesSplitAccessUnits(t *testing.T) {
	stream := nalunittest.Stream(
		nalunittest.SPS(nalunittest.SPSOpts{}),
		nalunittest.PPS(nalunittest.PPSOpts{}),
		nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 3, IDR: true, SliceType: 7}),
		nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 2, SliceType: 5, FrameNum: 1, PocLsb: 2}),
		nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 2, SliceType: 5, FrameNum: 2, PocLsb: 4}),
	)
	ctx := newTestContext(stream)

	au, err := ctx.NextAccessUnit()
	require.NoError(t, err)
	assert.Len(t, au.NALUnits, 3) // SPS and PPS travel with the first slice
	assert.Equal(t, uint32(0), au.FrameNum)

	au, err = ctx.NextAccessUnit()
	require.NoError(t, err)
	require.Len(t, au.NALUnits, 1)
	assert.Equal(t, uint32(1), au.FrameNum)
	assert.Equal(t, "Frame number differs", au.PrimaryStart.StartReason)
	assert.True(t, au.AllSlicesP())
	assert.True(t, au.AllSlicesIOrP())

	au, err = ctx.NextAccessUnit()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), au.FrameNum)
	assert.Equal(t, uint32(3), au.Index)

	_, err = ctx.NextAccessUnit()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEndOfStreamMarker(t *testing.T) {
	stream := nalunittest.Stream(
		nalunittest.SPS(nalunittest.SPSOpts{}),
		nalunittest.PPS(nalunittest.PPSOpts{}),
		nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 3, IDR: true, SliceType: 7}),
		nalunittest.EndOfStream(),
	)
	ctx := newTestContext(stream)

	au, err := ctx.NextAccessUnit()
	require.NoError(t, err)
	assert.Len(t, au.NALUnits, 3)
	require.NotNil(t, ctx.EndOfStream)
	assert.Equal(t, entities.NALEndOfStream, ctx.EndOfStream.UnitType)

	_, err = ctx.NextAccessUnit()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBrokenNALUnitsAreCounted(t *testing.T) {
	truncated := nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 2, SliceType: 5, FrameNum: 1})[:5]
	stream := nalunittest.Stream(
		nalunittest.SPS(nalunittest.SPSOpts{}),
		nalunittest.PPS(nalunittest.PPSOpts{}),
		nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 3, IDR: true, SliceType: 7}),
		truncated,
		nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 2, SliceType: 5, FrameNum: 1, PocLsb: 2}),
	)
	ctx := newTestContext(stream)

	au, err := ctx.NextAccessUnit()
	require.NoError(t, err)
	assert.Len(t, au.NALUnits, 3)
	assert.Equal(t, 1, au.IgnoredBrokenNALUnits)

	au, err = ctx.NextAccessUnit()
	require.NoError(t, err)
	assert.Len(t, au.NALUnits, 1)
	assert.Equal(t, 0, au.IgnoredBrokenNALUnits)
}

func TestRedundantSlicesAreDropped(t *testing.T) {
	primary := nalunittest.SliceOpts{RefIDC: 3, IDR: true, SliceType: 7, WriteRedundant: true}
	redundant := primary
	redundant.RedundantPicCnt = 1
	stream := nalunittest.Stream(
		nalunittest.SPS(nalunittest.SPSOpts{}),
		nalunittest.PPS(nalunittest.PPSOpts{RedundantPicCntPresent: true}),
		nalunittest.Slice(primary),
		nalunittest.Slice(redundant),
		nalunittest.Slice(nalunittest.SliceOpts{
			RefIDC: 2, SliceType: 5, FrameNum: 1, WriteRedundant: true,
		}),
	)
	ctx := newTestContext(stream)

	au, err := ctx.NextAccessUnit()
	require.NoError(t, err)
	assert.Len(t, au.NALUnits, 3)
	assert.Equal(t, 1, au.NumSlices())
	assert.Equal(t, 0, au.IgnoredBrokenNALUnits)

	au, err = ctx.NextAccessUnit()
	require.NoError(t, err)
	assert.Equal(t, 1, au.NumSlices())
}

func TestDelimiterStartsAccessUnit(t *testing.T) {
	stream := nalunittest.Stream(
		nalunittest.AUD(),
		nalunittest.SPS(nalunittest.SPSOpts{}),
		nalunittest.PPS(nalunittest.PPSOpts{}),
		nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 3, IDR: true, SliceType: 7}),
		nalunittest.AUD(),
		nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 2, SliceType: 5, FrameNum: 1, PocLsb: 2}),
	)
	ctx := newTestContext(stream)

	au, err := ctx.NextAccessUnit()
	require.NoError(t, err)
	assert.Len(t, au.NALUnits, 4)
	assert.Equal(t, entities.NALAccessUnitDelimiter, au.NALUnits[0].UnitType)

	au, err = ctx.NextAccessUnit()
	require.NoError(t, err)
	require.Len(t, au.NALUnits, 2)
	assert.Equal(t, entities.NALAccessUnitDelimiter, au.NALUnits[0].UnitType)
	assert.True(t, au.NALUnits[1].IsSlice())
}

func TestDelimiterDiscardsIncompleteAccessUnit(t *testing.T) {
	// parameter sets with no slice before the delimiter are dropped,
	// though they stay remembered in the dictionaries
	stream := nalunittest.Stream(
		nalunittest.SPS(nalunittest.SPSOpts{}),
		nalunittest.PPS(nalunittest.PPSOpts{}),
		nalunittest.AUD(),
	)
	ctx := newTestContext(stream)

	au, err := ctx.NextAccessUnit()
	require.NoError(t, err)
	require.Len(t, au.NALUnits, 1)
	assert.Equal(t, entities.NALAccessUnitDelimiter, au.NALUnits[0].UnitType)
	assert.Nil(t, au.PrimaryStart)

	_, err = ctx.NALContext().SeqParamSet(0)
	assert.NoError(t, err)
}

func fieldStream(extra ...[]byte) []byte {
	units := [][]byte{
		nalunittest.SPS(nalunittest.SPSOpts{FrameMbsOnly0: true}),
		nalunittest.PPS(nalunittest.PPSOpts{}),
		nalunittest.Slice(nalunittest.SliceOpts{
			RefIDC: 3, IDR: true, SliceType: 7,
			WriteFields: true, FieldPic: true,
		}),
	}
	units = append(units, extra...)
	return nalunittest.Stream(units...)
}

func TestNextFramePairsFields(t *testing.T) {
	ctx := newTestContext(fieldStream(
		nalunittest.Slice(nalunittest.SliceOpts{
			RefIDC: 3, IDR: true, SliceType: 7,
			WriteFields: true, FieldPic: true, BottomField: true,
		}),
	))

	frame, err := ctx.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, byte(0), frame.FieldPicFlag)
	assert.Len(t, frame.NALUnits, 4) // SPS PPS top bottom
	assert.Equal(t, 2, frame.NumSlices())
	assert.Equal(t, "One is bottom field, the other top",
		frame.NALUnits[3].StartReason)

	_, err = ctx.NextFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestNextFrameFieldThenFrame(t *testing.T) {
	ctx := newTestContext(fieldStream(
		nalunittest.Slice(nalunittest.SliceOpts{
			RefIDC: 2, SliceType: 5, FrameNum: 1, PocLsb: 2,
			WriteFields: true,
		}),
	))

	// the unpaired field is dropped and the frame returned instead
	frame, err := ctx.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, byte(0), frame.FieldPicFlag)
	assert.Equal(t, uint32(1), frame.FrameNum)
	assert.Equal(t, 1, frame.NumSlices())
}

func TestNextFrameFieldSyncLost(t *testing.T) {
	ctx := newTestContext(fieldStream(
		nalunittest.Slice(nalunittest.SliceOpts{
			RefIDC: 2, SliceType: 5, FrameNum: 1, PocLsb: 2,
			WriteFields: true, FieldPic: true,
		}),
		nalunittest.Slice(nalunittest.SliceOpts{
			RefIDC: 2, SliceType: 5, FrameNum: 2, PocLsb: 4,
			WriteFields: true, FieldPic: true,
		}),
	))

	// three successive fields with three different frame numbers: the
	// first is dropped, the retry fails too
	_, err := ctx.NextFrame()
	assert.ErrorIs(t, err, entities.ErrFieldSyncLost)
}

func TestRewind(t *testing.T) {
	stream := nalunittest.Stream(
		nalunittest.SPS(nalunittest.SPSOpts{}),
		nalunittest.PPS(nalunittest.PPSOpts{}),
		nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 3, IDR: true, SliceType: 7}),
		nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 2, SliceType: 5, FrameNum: 1, PocLsb: 2}),
	)
	ctx := newTestContext(stream)

	var indices []uint32
	for {
		au, err := ctx.NextAccessUnit()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		indices = append(indices, au.Index)
	}
	assert.Equal(t, []uint32{1, 2}, indices)

	require.NoError(t, ctx.Rewind())

	// same access units again, and the parameter dictionaries are
	// still populated from the first pass
	au, err := ctx.NextAccessUnit()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), au.Index)
	assert.Len(t, au.NALUnits, 3)

	au, err = ctx.NextAccessUnit()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), au.Index)
	assert.Equal(t, uint32(1), au.FrameNum)

	_, err = ctx.NextAccessUnit()
	assert.ErrorIs(t, err, io.EOF)
}
