package es

import (
	"context"
	"errors"
	"io"

	"github.com/asticode/go-astits"
	"go.uber.org/zap"

	"github.com/streamtools/h264au/internal/entities"
	"github.com/streamtools/h264au/internal/mapper"
)

// TSSource reads units from the H.264 elementary stream carried inside
// an MPEG transport stream. The video PID is discovered from the first
// PMT naming an H.264 stream. Unit positions are two part: Infile is
// the ordinal of the PES packet the unit starts in and Inpacket the
// byte offset of the unit within that packet's payload.
type TSSource struct {
	r   io.ReadSeeker
	l   *zap.SugaredLogger
	m   *mapper.Mapper
	ctx context.Context
	dmx *astits.Demuxer

	pid      uint16
	havePID  bool
	pesCount int64

	// demuxed payload bytes not yet consumed by the scanner
	queue []byte
	qpos  int
	total int64
	segs  []tsSegment

	sc scanner
}

// tsSegment records which PES packet the flat stream offsets from
// flatStart onward came from.
type tsSegment struct {
	flatStart int64
	pesIndex  int64
}

func NewTSSource(r io.ReadSeeker, m *mapper.Mapper, log *zap.SugaredLogger) *TSSource {
	s := &TSSource{
		r:   r,
		l:   log,
		m:   m,
		ctx: context.Background(),
	}
	s.dmx = astits.NewDemuxer(s.ctx, r)
	s.sc.read = s.readByte
	return s
}

func (s *TSSource) NextUnit() (*Unit, error) {
	data, start, err := s.sc.nextUnit()
	if err != nil {
		return nil, err
	}
	return &Unit{
		Data:          data,
		StartPosn:     s.locate(start),
		StartCodeByte: data[3],
	}, nil
}

func (s *TSSource) readByte() (byte, error) {
	for s.qpos >= len(s.queue) {
		if err := s.refill(); err != nil {
			return 0, err
		}
	}
	b := s.queue[s.qpos]
	s.qpos++
	return b, nil
}

// refill demuxes transport packets until another payload for the video
// PID arrives, appending its bytes to the queue.
func (s *TSSource) refill() error {
	if s.qpos == len(s.queue) {
		s.queue = s.queue[:0]
		s.qpos = 0
	}
	for {
		d, err := s.dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				if !s.havePID {
					return entities.ErrMissingVideoStream
				}
				return io.EOF
			}
			return err
		}
		if d.PMT != nil && !s.havePID {
			for _, st := range d.PMT.ElementaryStreams {
				if s.m.FromMpegTsStreamTypeToCodec(st.StreamType) == entities.H264 {
					s.pid = st.ElementaryPID
					s.havePID = true
					s.l.Infow("found H.264 video stream",
						"pid", s.pid,
					)
					break
				}
			}
		}
		if d.PES == nil || !s.havePID || d.PID != s.pid {
			continue
		}
		s.segs = append(s.segs, tsSegment{flatStart: s.total, pesIndex: s.pesCount})
		s.total += int64(len(d.PES.Data))
		s.pesCount++
		s.queue = append(s.queue, d.PES.Data...)
		return nil
	}
}

// locate converts a flat stream offset into a PES packet / offset pair.
func (s *TSSource) locate(flat int64) entities.ESOffset {
	var posn entities.ESOffset
	for _, seg := range s.segs {
		if seg.flatStart > flat {
			break
		}
		posn = entities.ESOffset{
			Infile:   seg.pesIndex,
			Inpacket: int(flat - seg.flatStart),
		}
	}
	return posn
}

// Seek supports rewinding to the start of the stream only: transport
// packets would have to be re-demuxed to reach any other position.
func (s *TSSource) Seek(posn entities.ESOffset) error {
	if posn != (entities.ESOffset{}) {
		return entities.ErrUnsupportedSeek
	}
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.dmx = astits.NewDemuxer(s.ctx, s.r)
	s.havePID = false
	s.pid = 0
	s.pesCount = 0
	s.queue = s.queue[:0]
	s.qpos = 0
	s.total = 0
	s.segs = s.segs[:0]
	s.sc.reset(0)
	return nil
}
