package es

import (
	"bufio"
	"io"

	"github.com/streamtools/h264au/internal/entities"
)

// FileSource reads units incrementally from a seekable byte stream,
// typically a file too large to slurp into memory.
type FileSource struct {
	r  io.ReadSeeker
	br *bufio.Reader
	sc scanner
}

func NewFileSource(r io.ReadSeeker) *FileSource {
	s := &FileSource{
		r:  r,
		br: bufio.NewReaderSize(r, 64*1024),
	}
	s.sc.read = func() (byte, error) {
		b, err := s.br.ReadByte()
		if err != nil {
			return 0, io.EOF
		}
		return b, nil
	}
	return s
}

func (s *FileSource) NextUnit() (*Unit, error) {
	data, start, err := s.sc.nextUnit()
	if err != nil {
		return nil, err
	}
	return &Unit{
		Data:          data,
		StartPosn:     entities.ESOffset{Infile: start},
		StartCodeByte: data[3],
	}, nil
}

func (s *FileSource) Seek(posn entities.ESOffset) error {
	if posn.Inpacket != 0 {
		return entities.ErrUnsupportedSeek
	}
	if _, err := s.r.Seek(posn.Infile, io.SeekStart); err != nil {
		return err
	}
	s.br.Reset(s.r)
	s.sc.reset(posn.Infile)
	return nil
}
