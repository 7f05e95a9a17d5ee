package report_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/streamtools/h264au/internal/entities"
	"github.com/streamtools/h264au/internal/es"
	"github.com/streamtools/h264au/internal/mapper"
	"github.com/streamtools/h264au/internal/nalunit/nalunittest"
	"github.com/streamtools/h264au/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func populateReporter(t *testing.T, input string, format entities.InputFormat) *report.Reporter {
	var r *report.Reporter
	fxtest.New(t,
		report.Dependencies(input, format),
		fx.Populate(&r),
	)
	return r
}

func sampleStream() []byte {
	return nalunittest.Stream(
		nalunittest.AUD(),
		nalunittest.SPS(nalunittest.SPSOpts{}),
		nalunittest.PPS(nalunittest.PPSOpts{}),
		nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 3, IDR: true, SliceType: 7}),
		nalunittest.Slice(nalunittest.SliceOpts{RefIDC: 2, SliceType: 5, FrameNum: 1}),
		nalunittest.EndOfStream(),
	)
}

func writeSampleFile(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "sample.264")
	require.NoError(t, os.WriteFile(path, sampleStream(), 0o644))
	return path
}

func TestRunElementaryStreamFile(t *testing.T) {
	r := populateReporter(t, writeSampleFile(t), entities.FormatES)
	assert.NoError(t, r.Run())
}

func TestRunMissingInput(t *testing.T) {
	r := populateReporter(t, "", entities.FormatES)
	assert.ErrorIs(t, r.Run(), entities.ErrMissingInput)
}

func TestRunUnsupportedFormat(t *testing.T) {
	r := populateReporter(t, writeSampleFile(t), entities.InputFormat("avi"))
	assert.ErrorIs(t, r.Run(), entities.ErrUnsupportedFormat)
}

func TestReportSummary(t *testing.T) {
	c := &entities.Config{}
	log := zap.NewNop().Sugar()
	r := report.NewReporter(c, log, mapper.NewMapper(log))

	sum, err := r.Report(es.NewBytesSource(sampleStream()))
	require.NoError(t, err)

	assert.Equal(t, 2, sum.AccessUnits)
	assert.Equal(t, 2, sum.Frames)
	assert.Equal(t, 6, sum.NALUnits)
	assert.Equal(t, 2, sum.Slices)
	assert.Equal(t, 1, sum.ISlices)
	assert.Equal(t, 1, sum.PSlices)
	assert.Equal(t, 0, sum.BSlices)
	assert.Equal(t, 0, sum.IgnoredNALs)
	assert.False(t, sum.SawEndOfSeq)
	assert.True(t, sum.SawEndOfStrm)
}

func TestReportHonorsMaxAccessUnits(t *testing.T) {
	c := &entities.Config{MaxAccessUnits: 1}
	log := zap.NewNop().Sugar()
	r := report.NewReporter(c, log, mapper.NewMapper(log))

	sum, err := r.Report(es.NewBytesSource(sampleStream()))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Frames)
	assert.Equal(t, 1, sum.AccessUnits)
}

func TestReportTransportStream(t *testing.T) {
	f, err := os.Open(filepath.Join("..", "es", "testdata", "stream.ts"))
	require.NoError(t, err)
	defer f.Close()

	c := &entities.Config{Quiet: true}
	log := zap.NewNop().Sugar()
	m := mapper.NewMapper(log)
	r := report.NewReporter(c, log, m)

	sum, err := r.Report(es.NewTSSource(f, m, log))
	require.NoError(t, err)

	// The fixture carries a delimiter, two slices with no parameter sets
	// behind them, and an end of sequence marker. The slices cannot be
	// decoded and are ignored.
	assert.Equal(t, 4, sum.NALUnits)
	assert.Equal(t, 2, sum.IgnoredNALs)
	assert.Equal(t, 0, sum.Frames)
	assert.True(t, sum.SawEndOfSeq)
	assert.False(t, sum.SawEndOfStrm)
}
