package bitdata

// Writer emits bits MSB-first into a growing byte slice. It is the
// counterpart of Reader, used to synthesize headers.
type Writer struct {
	data   []byte
	bitPos int
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) PutBit(v byte) {
	if w.bitPos == len(w.data)*8 {
		w.data = append(w.data, 0)
	}
	if v != 0 {
		w.data[w.bitPos/8] |= 1 << (7 - w.bitPos%8)
	}
	w.bitPos++
}

// PutBits writes the low count bits of v, MSB first.
func (w *Writer) PutBits(count int, v uint32) {
	for i := count - 1; i >= 0; i-- {
		w.PutBit(byte(v >> i & 1))
	}
}

// PutExpGolomb writes v as an unsigned Exp-Golomb code.
func (w *Writer) PutExpGolomb(v uint32) {
	code := uint64(v) + 1
	width := 0
	for c := code; c > 0; c >>= 1 {
		width++
	}
	for i := 0; i < width-1; i++ {
		w.PutBit(0)
	}
	for i := width - 1; i >= 0; i-- {
		w.PutBit(byte(code >> i & 1))
	}
}

// PutSignedExpGolomb writes v as a signed Exp-Golomb code.
func (w *Writer) PutSignedExpGolomb(v int32) {
	if v > 0 {
		w.PutExpGolomb(uint32(2*v - 1))
	} else {
		w.PutExpGolomb(uint32(-2 * v))
	}
}

// PutTrailingBits writes the RBSP stop bit and aligns to a byte boundary.
func (w *Writer) PutTrailingBits() {
	w.PutBit(1)
	for w.bitPos%8 != 0 {
		w.PutBit(0)
	}
}

// Bytes returns the written data, zero-padded to a whole byte.
func (w *Writer) Bytes() []byte {
	return w.data
}
