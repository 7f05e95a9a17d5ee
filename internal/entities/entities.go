package entities

import "fmt"

// NALUnitType identifies the payload class of a NAL unit.
// Rec. ITU-T H.264, table 7-1.
type NALUnitType byte

const (
	NALUnspecified          NALUnitType = 0
	NALNonIDRSlice          NALUnitType = 1 // coded slice of a non-IDR picture
	NALPartitionA           NALUnitType = 2
	NALPartitionB           NALUnitType = 3
	NALPartitionC           NALUnitType = 4
	NALIDRSlice             NALUnitType = 5 // coded slice of an IDR picture
	NALSEI                  NALUnitType = 6
	NALSeqParamSet          NALUnitType = 7
	NALPicParamSet          NALUnitType = 8
	NALAccessUnitDelimiter  NALUnitType = 9
	NALEndOfSequence        NALUnitType = 10
	NALEndOfStream          NALUnitType = 11
	NALFillerData           NALUnitType = 12
	NALSeqParamSetExtension NALUnitType = 13
	NALPrefix               NALUnitType = 14
	NALSubsetSeqParamSet    NALUnitType = 15
	NALDepthParamSet        NALUnitType = 16
	NALReserved17           NALUnitType = 17
	NALReserved18           NALUnitType = 18
	NALAuxiliarySlice       NALUnitType = 19
	NALSliceExtension       NALUnitType = 20
)

func (t NALUnitType) String() string {
	switch t {
	case NALNonIDRSlice:
		return "non-IDR slice"
	case NALPartitionA:
		return "slice partition A"
	case NALPartitionB:
		return "slice partition B"
	case NALPartitionC:
		return "slice partition C"
	case NALIDRSlice:
		return "IDR slice"
	case NALSEI:
		return "SEI"
	case NALSeqParamSet:
		return "sequence parameter set"
	case NALPicParamSet:
		return "picture parameter set"
	case NALAccessUnitDelimiter:
		return "access unit delimiter"
	case NALEndOfSequence:
		return "end of sequence"
	case NALEndOfStream:
		return "end of stream"
	case NALFillerData:
		return "filler data"
	case NALSeqParamSetExtension:
		return "SPS extension"
	case NALPrefix:
		return "prefix NAL unit"
	case NALSubsetSeqParamSet:
		return "subset SPS"
	case NALDepthParamSet:
		return "depth parameter set"
	case NALAuxiliarySlice:
		return "auxiliary slice"
	case NALSliceExtension:
		return "slice extension"
	}
	if t >= 24 {
		return fmt.Sprintf("unspecified %d", byte(t))
	}
	return fmt.Sprintf("reserved %d", byte(t))
}

// SliceType is the slice_type field of a slice header.
// Values 5..9 additionally assert that every slice of the picture has the
// same type.
type SliceType uint32

const (
	SliceP SliceType = iota
	SliceB
	SliceI
	SliceSP
	SliceSI
	AllSlicesP
	AllSlicesB
	AllSlicesI
	AllSlicesSP
	AllSlicesSI
)

func (s SliceType) String() string {
	switch s {
	case SliceP:
		return "P"
	case SliceB:
		return "B"
	case SliceI:
		return "I"
	case SliceSP:
		return "SP"
	case SliceSI:
		return "SI"
	case AllSlicesP:
		return "All P"
	case AllSlicesB:
		return "All B"
	case AllSlicesI:
		return "All I"
	case AllSlicesSP:
		return "All SP"
	case AllSlicesSI:
		return "All SI"
	}
	return fmt.Sprintf("unknown %d", uint32(s))
}

type Codec string

const (
	UnknownCodec Codec = "unknownCodec"
	H264         Codec = "h264"
	H265         Codec = "h265"
	AAC          Codec = "aac"
)

// ESOffset locates a byte within an elementary stream. Infile is the byte
// offset in the underlying file; Inpacket is the offset within the demuxed
// packet when the stream came out of a packetized container, and 0 for raw
// files. The decoder only ever compares and reports these values.
type ESOffset struct {
	Infile   int64
	Inpacket int
}

func (o ESOffset) String() string {
	return fmt.Sprintf("%08d/%04d", o.Infile, o.Inpacket)
}

// Before reports whether o strictly precedes other in the stream.
func (o ESOffset) Before(other ESOffset) bool {
	if o.Infile != other.Infile {
		return o.Infile < other.Infile
	}
	return o.Inpacket < other.Inpacket
}

// InputFormat selects how the input file is scanned for NAL units.
type InputFormat string

const (
	FormatES     InputFormat = "es"     // raw Annex B elementary stream
	FormatMpegTS InputFormat = "mpegts" // H.264 PES inside MPEG-TS
)

type Config struct {
	// ShowNALDetails logs every decoded field of every NAL unit.
	ShowNALDetails bool `required:"true" default:"false"`
	// ShowAUDetails logs a per-access-unit content summary.
	ShowAUDetails bool `required:"true" default:"false"`
	// Quiet suppresses the advisory warnings about repaired stream anomalies.
	Quiet bool `required:"true" default:"false"`

	// PairFields merges interlaced field pairs into frames while reporting.
	PairFields bool `required:"true" default:"false"`
	// MaxAccessUnits stops the report after this many units; 0 means all.
	MaxAccessUnits int `required:"true" default:"0"`

	// Filled in from the command line rather than the environment.
	Input       string      `ignored:"true"`
	InputFormat InputFormat `ignored:"true"`
}
