package vcf2bgen

import (
	"io"
)

// Via https://play.golang.org/p/rn0bAjeEGtK

type bitReader struct {
	reader io.ByteReader
	byte   byte
	offset byte

	errCache    error
	lastBit     bool
	resultCache uint64
}

func newBitReader(r io.ByteReader) *bitReader {
	return &bitReader{r, 0, 0, nil, false, 0}
}

func (r *bitReader) ReadBit() (bool, error) {
	if r.offset == 8 {
		r.offset = 0
	}
	if r.offset == 0 {
		if r.byte, r.errCache = r.reader.ReadByte(); r.errCache != nil {
			return false, r.errCache
		}
	}
	r.lastBit = (r.byte & (0x80 >> r.offset)) != 0
	r.offset++
	return r.lastBit, nil
}

// ReadUintLittleEndian reads an nbits-wide unsigned integer whose bytes are
// stored least significant first, which is how probabilities are packed into
// variant blocks.
func (r *bitReader) ReadUintLittleEndian(nbits int) (uint64, error) {
	loops := nbits / 8
	remainder := nbits % 8

	r.resultCache = 0

	for loop := 0; loop < loops; loop++ {
		for i := 8 - 1; i >= 0; i-- {
			r.lastBit, r.errCache = r.ReadBit()
			if r.errCache != nil {
				return 0, r.errCache
			}
			if r.lastBit {
				r.resultCache |= 1 << uint(i+(8*loop))
			}
		}
	}
	if remainder > 0 {
		for i := remainder - 1; i >= 0; i-- {
			r.lastBit, r.errCache = r.ReadBit()
			if r.errCache != nil {
				return 0, r.errCache
			}
			if r.lastBit {
				r.resultCache |= 1 << uint(i+(8*loops))
			}
		}
	}

	return r.resultCache, nil
}

// bitWriter is the mirror image of bitReader: it packs unsigned integers of
// a fixed bit width into a byte slice so that ReadUintLittleEndian recovers
// them. Partial trailing bytes are zero-padded by Flush.
type bitWriter struct {
	out    []byte
	byte   byte
	offset byte
}

func newBitWriter(capacityBytes int) *bitWriter {
	return &bitWriter{out: make([]byte, 0, capacityBytes)}
}

func (w *bitWriter) WriteBit(bit bool) {
	if bit {
		w.byte |= 0x80 >> w.offset
	}
	w.offset++
	if w.offset == 8 {
		w.out = append(w.out, w.byte)
		w.byte = 0
		w.offset = 0
	}
}

// WriteUintLittleEndian packs the low nbits of v, bytes least significant
// first, matching bitReader.ReadUintLittleEndian.
func (w *bitWriter) WriteUintLittleEndian(v uint64, nbits int) {
	loops := nbits / 8
	remainder := nbits % 8

	for loop := 0; loop < loops; loop++ {
		for i := 8 - 1; i >= 0; i-- {
			w.WriteBit(v&(1<<uint(i+(8*loop))) != 0)
		}
	}
	if remainder > 0 {
		for i := remainder - 1; i >= 0; i-- {
			w.WriteBit(v&(1<<uint(i+(8*loops))) != 0)
		}
	}
}

// Flush pads any partially filled byte with zero bits and returns the packed
// stream. The writer must not be reused afterward.
func (w *bitWriter) Flush() []byte {
	if w.offset > 0 {
		w.out = append(w.out, w.byte)
		w.byte = 0
		w.offset = 0
	}

	return w.out
}
