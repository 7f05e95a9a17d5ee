package mapper

import (
	"github.com/asticode/go-astits"
	"go.uber.org/zap"

	"github.com/streamtools/h264au/internal/entities"
)

type Mapper struct {
	l *zap.SugaredLogger
}

func NewMapper(log *zap.SugaredLogger) *Mapper {
	return &Mapper{
		l: log,
	}
}

func (m *Mapper) FromMpegTsStreamTypeToCodec(st astits.StreamType) entities.Codec {
	switch st {
	case astits.StreamTypeH264Video:
		return entities.H264
	case astits.StreamTypeH265Video:
		return entities.H265
	case astits.StreamTypeAACAudio:
		return entities.AAC
	}
	m.l.Infow("no codec mapping for transport stream type",
		"streamType", st,
	)
	return entities.UnknownCodec
}

func (m *Mapper) FromSliceTypeToFrameKind(st entities.SliceType) string {
	switch st {
	case entities.SliceI, entities.AllSlicesI:
		return "I"
	case entities.SliceP, entities.AllSlicesP:
		return "P"
	case entities.SliceB, entities.AllSlicesB:
		return "B"
	case entities.SliceSP, entities.AllSlicesSP:
		return "SP"
	case entities.SliceSI, entities.AllSlicesSI:
		return "SI"
	}
	return "?"
}
