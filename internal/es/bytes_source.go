package es

import (
	"io"

	"github.com/asticode/go-astikit"

	"github.com/streamtools/h264au/internal/entities"
)

// BytesSource reads units out of an elementary stream held entirely in
// memory. Unit data aliases the backing slice, so callers must not
// mutate it while units are live.
type BytesSource struct {
	data []byte
	iter *astikit.BytesIterator
}

func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{
		data: data,
		iter: astikit.NewBytesIterator(data),
	}
}

func (s *BytesSource) NextUnit() (*Unit, error) {
	for {
		start, err := s.findStartCodePrefix()
		if err != nil {
			return nil, io.EOF
		}
		end := s.iter.Len()
		next, err := s.findStartCodePrefix()
		if err == nil {
			end = next
			s.iter.Seek(next)
		}
		if end-start < 4 {
			// start code with no header byte: at end of stream it is
			// trailing junk, mid-stream it hides the next real unit
			if err != nil {
				return nil, io.EOF
			}
			continue
		}
		data := s.data[start:end]
		return &Unit{
			Data:          data,
			StartPosn:     entities.ESOffset{Infile: int64(start)},
			StartCodeByte: data[3],
		}, nil
	}
}

// findStartCodePrefix advances the iterator past the next 00 00 01 and
// returns the offset of its first zero byte.
func (s *BytesSource) findStartCodePrefix() (int, error) {
	zeroes := 0
	for s.iter.HasBytesLeft() {
		b, err := s.iter.NextByte()
		if err != nil {
			return 0, io.EOF
		}
		switch {
		case b == 0x00:
			zeroes++
		case b == 0x01 && zeroes >= 2:
			return s.iter.Offset() - 3, nil
		default:
			zeroes = 0
		}
	}
	return 0, io.EOF
}

func (s *BytesSource) Seek(posn entities.ESOffset) error {
	if posn.Inpacket != 0 {
		return entities.ErrUnsupportedSeek
	}
	s.iter.Seek(int(posn.Infile))
	return nil
}
