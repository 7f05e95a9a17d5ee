// Package es splits an H.264 elementary stream into its start-code
// delimited units. A unit runs from one 00 00 01 prefix up to (but not
// including) the next, so the byte after the prefix is the NAL unit
// header. Sources exist for in-memory data, plain files and MPEG-TS
// files; all of them report where each unit started so callers can
// seek back to it later.
package es

import (
	"fmt"
	"io"

	"github.com/streamtools/h264au/internal/entities"
)

// Unit is a single start-code delimited chunk of the stream. Data
// retains the three prefix bytes so the unit can be written back out
// verbatim.
type Unit struct {
	Data          []byte
	StartPosn     entities.ESOffset
	StartCodeByte byte
}

// Payload returns the unit's bytes after the 00 00 01 prefix. The
// first payload byte is the NAL unit header.
func (u *Unit) Payload() []byte {
	return u.Data[3:]
}

func (u *Unit) String() string {
	return fmt.Sprintf("unit at %s, %d bytes", u.StartPosn, len(u.Data))
}

// Source produces successive units from an elementary stream.
type Source interface {
	// NextUnit returns the next unit, or io.EOF when the stream is
	// exhausted. Stream content before the first start code is skipped.
	NextUnit() (*Unit, error)

	// Seek repositions the source at a unit start position previously
	// reported by NextUnit. Sources that cannot reach the given
	// position return entities.ErrUnsupportedSeek.
	Seek(posn entities.ESOffset) error
}

// scanner finds start-code prefixes in a byte stream read one byte at
// a time. It underlies the file and transport stream sources; the
// in-memory source slices its backing array directly instead.
type scanner struct {
	read      func() (byte, error)
	offset    int64
	unitStart int64
	primed    bool
}

// nextUnit returns the bytes of the next unit, including a
// normalized three byte prefix, together with the stream offset of
// that prefix. Four byte start codes leave their extra zero at the
// tail of the preceding unit.
func (s *scanner) nextUnit() ([]byte, int64, error) {
	if !s.primed {
		if err := s.hunt(); err != nil {
			return nil, 0, err
		}
	}
	data := []byte{0x00, 0x00, 0x01}
	start := s.unitStart
	zeroes := 0
	for {
		b, err := s.read()
		if err != nil {
			s.primed = false
			if len(data) < 4 {
				// a trailing start code with no header byte is not a unit
				return nil, 0, io.EOF
			}
			return data, start, nil
		}
		s.offset++
		data = append(data, b)
		switch {
		case b == 0x00:
			zeroes++
		case b == 0x01 && zeroes >= 2:
			data = data[:len(data)-3]
			s.unitStart = s.offset - 3
			s.primed = true
			if len(data) < 4 {
				// adjacent start codes, restart from the new prefix
				data = append(data[:0], 0x00, 0x00, 0x01)
				start = s.unitStart
				zeroes = 0
				continue
			}
			return data, start, nil
		default:
			zeroes = 0
		}
	}
}

// hunt consumes bytes up to and including the first 00 00 01 prefix.
func (s *scanner) hunt() error {
	zeroes := 0
	for {
		b, err := s.read()
		if err != nil {
			return io.EOF
		}
		s.offset++
		switch {
		case b == 0x00:
			zeroes++
		case b == 0x01 && zeroes >= 2:
			s.unitStart = s.offset - 3
			s.primed = true
			return nil
		default:
			zeroes = 0
		}
	}
}

func (s *scanner) reset(offset int64) {
	s.offset = offset
	s.unitStart = 0
	s.primed = false
}
