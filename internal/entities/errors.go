package entities

import "errors"

var ErrInsufficientBits = errors.New("no more bits to read from RBSP")
var ErrForbiddenZeroBit = errors.New("NAL forbidden_zero_bit is set")
var ErrReservedBitsSet = errors.New("SPS reserved_zero_5bits are not zero")

// ErrBrokenNALUnit tells the caller to drop the current NAL unit and keep
// decoding; it is distinct from stream-level failures and from io.EOF.
var ErrBrokenNALUnit = errors.New("broken NAL unit")

var ErrUnknownSeqParamSet = errors.New("unknown sequence parameter set id")
var ErrUnknownPicParamSet = errors.New("unknown picture parameter set id")
var ErrNotDecoded = errors.New("NAL unit RBSP has not been decoded")

var ErrEmptyAccessUnit = errors.New("access unit has no content")
var ErrFieldSyncLost = errors.New("adjacent fields do not share frame numbers")

var ErrUnsupportedSeek = errors.New("source cannot seek to that offset")
var ErrMissingVideoStream = errors.New("no H.264 stream found in transport stream")
var ErrMissingInput = errors.New("input path must not be empty")
var ErrUnsupportedFormat = errors.New("unsupported input format")
