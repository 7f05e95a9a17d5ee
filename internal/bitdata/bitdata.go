// Package bitdata reads byte data as bit data, in particular the
// Exp-Golomb codes of H.264 clause 10.
package bitdata

import (
	"github.com/streamtools/h264au/internal/entities"
)

// Reader is a bit-level cursor over a borrowed byte slice. It does no I/O
// and never mutates the underlying data.
type Reader struct {
	data    []byte
	curByte int
	curBit  int // 0..7, -1 before the first read
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data, curByte: 0, curBit: -1}
}

func (r *Reader) next() (byte, error) {
	r.curBit++
	if r.curBit == 8 {
		r.curBit = 0
		r.curByte++
	}
	if r.curByte >= len(r.data) {
		return 0, entities.ErrInsufficientBits
	}
	return (r.data[r.curByte] >> (7 - r.curBit)) & 1, nil
}

// ReadBit returns the next bit.
func (r *Reader) ReadBit() (byte, error) {
	return r.next()
}

// ReadBits reads count bits, 0 <= count <= 32, MSB first.
func (r *Reader) ReadBits(count int) (uint32, error) {
	var result uint32
	for i := 0; i < count; i++ {
		bit, err := r.next()
		if err != nil {
			return 0, err
		}
		result = result<<1 | uint32(bit)
	}
	return result, nil
}

// ReadBitsIntoByte reads count bits, 0 <= count <= 8, into a byte.
func (r *Reader) ReadBitsIntoByte(count int) (byte, error) {
	var result byte
	for i := 0; i < count; i++ {
		bit, err := r.next()
		if err != nil {
			return 0, err
		}
		result = result<<1 | bit
	}
	return result, nil
}

// CountZeroBits reads zero bits, counting them, and stops after the first
// one-bit. The terminating one-bit is consumed, not unread.
func (r *Reader) CountZeroBits() (int, error) {
	count := 0
	for {
		bit, err := r.next()
		if err != nil {
			return count, err
		}
		if bit != 0 {
			return count, nil
		}
		count++
	}
}

// ReadExpGolomb reads and decodes an unsigned Exp-Golomb code
// (H.264 clause 10.1).
func (r *Reader) ReadExpGolomb() (uint32, error) {
	leadingZeroBits, err := r.CountZeroBits()
	if err != nil {
		return 0, err
	}
	suffix, err := r.ReadBits(leadingZeroBits)
	if err != nil {
		return 0, err
	}
	return uint32(uint64(1)<<leadingZeroBits - 1 + uint64(suffix)), nil
}

// ReadSignedExpGolomb reads and decodes a signed Exp-Golomb code:
// code 0 is 0, then 1, -1, 2, -2, ...
func (r *Reader) ReadSignedExpGolomb() (int32, error) {
	val, err := r.ReadExpGolomb()
	if err != nil {
		return 0, err
	}
	if val%2 == 0 {
		return -int32(val / 2), nil
	}
	return int32(val/2 + 1), nil
}
