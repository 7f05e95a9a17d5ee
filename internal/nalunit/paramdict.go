package nalunit

import (
	"github.com/streamtools/h264au/internal/entities"
)

// ParamDict remembers parameter sets by id. Later sets with the same
// id overwrite earlier ones, which is what the stream semantics want:
// the active set is always the last one seen. Ids are sparse and few,
// so parallel slices with a last-lookup cache beat a map here.
type ParamDict[T any] struct {
	ids      []uint32
	params   []T
	posns    []entities.ESOffset
	dataLens []int

	lastIndex int
}

func NewParamDict[T any]() *ParamDict[T] {
	return &ParamDict[T]{lastIndex: -1}
}

// Remember stores the decoded parameter set with the given id,
// together with where it was found and how big its NAL unit was.
func (d *ParamDict[T]) Remember(id uint32, params T, posn entities.ESOffset, dataLen int) {
	for i, known := range d.ids {
		if known == id {
			d.params[i] = params
			d.posns[i] = posn
			d.dataLens[i] = dataLen
			d.lastIndex = i
			return
		}
	}
	d.ids = append(d.ids, id)
	d.params = append(d.params, params)
	d.posns = append(d.posns, posn)
	d.dataLens = append(d.dataLens, dataLen)
	d.lastIndex = len(d.ids) - 1
}

// Lookup returns a copy of the parameter set with the given id.
func (d *ParamDict[T]) Lookup(id uint32) (T, bool) {
	if d.lastIndex >= 0 && d.ids[d.lastIndex] == id {
		return d.params[d.lastIndex], true
	}
	for i, known := range d.ids {
		if known == id {
			d.lastIndex = i
			return d.params[i], true
		}
	}
	var zero T
	return zero, false
}

// Posn returns where the parameter set with the given id was read
// from, and the size of its NAL unit.
func (d *ParamDict[T]) Posn(id uint32) (entities.ESOffset, int, bool) {
	for i, known := range d.ids {
		if known == id {
			return d.posns[i], d.dataLens[i], true
		}
	}
	return entities.ESOffset{}, 0, false
}

// IDs returns the remembered ids in insertion order.
func (d *ParamDict[T]) IDs() []uint32 {
	return d.ids
}

func (d *ParamDict[T]) Len() int {
	return len(d.ids)
}
