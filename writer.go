package vcf2bgen

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/carbocation/pfx"
)

// BgenOffsetEntry records where one variant block landed in the output file.
// One entry is emitted per written variant, in write order; it is the sole
// side channel between the writer and the index builder.
type BgenOffsetEntry struct {
	Chromosome        string
	Position          uint32
	RSID              string
	NAlleles          uint16
	Allele1           Allele
	Allele2           Allele
	FileStartPosition int64
	SizeInBytes       int64
}

// BgenWriter serializes the BGEN container: a fixed 20-byte header, the
// sample identifier block, then one variant block per call to WriteVariant.
//
// The variant-count header field cannot be known up front for a streamed
// input, so the writer uses a seek-and-patch discipline: a provisional zero
// is written by NewBgenWriter and patched by Finalize. The destination must
// therefore support seeking; converting to a pipe is not supported.
type BgenWriter struct {
	ws          io.WriteSeeker
	buf         *bufio.Writer
	compression Compression

	nSamples  uint32
	nVariants uint32
	offset    int64 // bytes written so far
	finalized bool
}

// NewBgenWriter writes the provisional header and the sample identifier
// block for the given SampleSet, in order, and returns a writer positioned
// at the first variant block.
func NewBgenWriter(ws io.WriteSeeker, samples SampleSet, compression Compression) (*BgenWriter, error) {
	for _, id := range samples {
		if len(id) > math.MaxUint16 {
			return nil, pfx.Err(fmt.Errorf("sample identifier of %d bytes exceeds the 16-bit length prefix", len(id)))
		}
	}

	w := &BgenWriter{
		ws:          ws,
		buf:         bufio.NewWriterSize(ws, 1<<16),
		compression: compression,
		nSamples:    uint32(len(samples)),
	}

	sampleBlockLen := uint32(8)
	for _, id := range samples {
		sampleBlockLen += 2 + uint32(len(id))
	}

	// Header: offset to first variant block (relative to byte 4), header
	// length, variant count (patched later), sample count, magic, flags.
	flags := uint32(compression) | uint32(Layout2)<<2 | 1<<31

	header := make([]byte, 0, bgenHeaderLength+4)
	header = binary.LittleEndian.AppendUint32(header, bgenHeaderLength+sampleBlockLen)
	header = binary.LittleEndian.AppendUint32(header, bgenHeaderLength)
	header = binary.LittleEndian.AppendUint32(header, 0) // variant count, deferred
	header = binary.LittleEndian.AppendUint32(header, w.nSamples)
	header = append(header, MagicNumber...)
	header = binary.LittleEndian.AppendUint32(header, flags)
	if err := w.write(header); err != nil {
		return nil, err
	}

	block := make([]byte, 0, sampleBlockLen)
	block = binary.LittleEndian.AppendUint32(block, sampleBlockLen)
	block = binary.LittleEndian.AppendUint32(block, w.nSamples)
	for _, id := range samples {
		block = binary.LittleEndian.AppendUint16(block, uint16(len(id)))
		block = append(block, id...)
	}
	if err := w.write(block); err != nil {
		return nil, err
	}

	return w, nil
}

// CreateBgen creates path and returns a BgenWriter over it. Close the
// returned file after Finalize.
func CreateBgen(path string, samples SampleSet, compression Compression) (*BgenWriter, *os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, pfx.Err(err)
	}

	w, err := NewBgenWriter(f, samples, compression)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, nil, err
	}

	return w, f, nil
}

func (w *BgenWriter) write(p []byte) error {
	n, err := w.buf.Write(p)
	w.offset += int64(n)
	if err != nil {
		return pfx.Err(err)
	}
	return nil
}

// WriteVariant appends one variant block: length-prefixed metadata, then the
// (optionally compressed) probability payload with its own length prefix so
// readers can skip it without decoding. rec supplies the metadata; block is
// consumed and must belong to the same record.
func (w *BgenWriter) WriteVariant(rec *VariantRecord, block *EncodedProbabilityBlock) (BgenOffsetEntry, error) {
	if w.finalized {
		return BgenOffsetEntry{}, pfx.Err(fmt.Errorf("write after Finalize"))
	}
	if block.NSamples != w.nSamples {
		return BgenOffsetEntry{}, pfx.Err(fmt.Errorf("probability block has %d samples; file has %d", block.NSamples, w.nSamples))
	}

	chromCode, ok := ChromosomeCode(rec.Chromosome)
	if !ok {
		return BgenOffsetEntry{}, formatErrf(rec.Line, "chromosome %q has no two-character code", rec.Chromosome)
	}

	id := rec.ID
	if id == "" || id == "." {
		id = variantID(rec)
	}

	start := w.offset

	meta := make([]byte, 0, 64)
	meta = appendString16(meta, id)
	meta = appendString16(meta, id) // rsid mirrors the identifier
	meta = appendString16(meta, chromCode)
	meta = binary.LittleEndian.AppendUint32(meta, rec.Position)
	meta = binary.LittleEndian.AppendUint16(meta, block.NAlleles)
	for _, allele := range rec.Alleles() {
		meta = binary.LittleEndian.AppendUint32(meta, uint32(len(allele)))
		meta = append(meta, allele...)
	}
	if err := w.write(meta); err != nil {
		return BgenOffsetEntry{}, err
	}

	payload, err := w.compression.Compress(block.Data)
	if err != nil {
		return BgenOffsetEntry{}, err
	}

	sizes := make([]byte, 0, 8)
	if w.compression == CompressionDisabled {
		sizes = binary.LittleEndian.AppendUint32(sizes, uint32(len(payload)))
	} else {
		sizes = binary.LittleEndian.AppendUint32(sizes, uint32(len(payload))+4)
		sizes = binary.LittleEndian.AppendUint32(sizes, uint32(len(block.Data)))
	}
	if err := w.write(sizes); err != nil {
		return BgenOffsetEntry{}, err
	}
	if err := w.write(payload); err != nil {
		return BgenOffsetEntry{}, err
	}

	w.nVariants++

	entry := BgenOffsetEntry{
		Chromosome:        chromCode,
		Position:          rec.Position,
		RSID:              id,
		NAlleles:          block.NAlleles,
		Allele1:           Allele(rec.Ref),
		Allele2:           Allele(joinAlts(rec.Alts)),
		FileStartPosition: start,
		SizeInBytes:       w.offset - start,
	}

	return entry, nil
}

// NVariants is the number of variant blocks written so far.
func (w *BgenWriter) NVariants() uint32 {
	return w.nVariants
}

// Finalize flushes buffered output and patches the deferred variant-count
// header field. The writer accepts no further variants afterward.
func (w *BgenWriter) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true

	if err := w.buf.Flush(); err != nil {
		return pfx.Err(err)
	}

	if _, err := w.ws.Seek(offsetNumberVariants, io.SeekStart); err != nil {
		return pfx.Err(err)
	}
	count := make([]byte, 4)
	binary.LittleEndian.PutUint32(count, w.nVariants)
	if _, err := w.ws.Write(count); err != nil {
		return pfx.Err(err)
	}
	if _, err := w.ws.Seek(w.offset, io.SeekStart); err != nil {
		return pfx.Err(err)
	}

	return nil
}

func appendString16(dst []byte, s string) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(s)))
	return append(dst, s...)
}

// variantID synthesizes chr:pos:ref:alt identifiers for sites whose VCF ID
// column is empty.
func variantID(rec *VariantRecord) string {
	return rec.Chromosome + ":" + strconv.FormatUint(uint64(rec.Position), 10) + ":" + rec.Ref + ":" + joinAlts(rec.Alts)
}

func joinAlts(alts []string) string {
	if len(alts) == 1 {
		return alts[0]
	}

	n := len(alts) - 1
	for _, a := range alts {
		n += len(a)
	}
	out := make([]byte, 0, n)
	for i, a := range alts {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, a...)
	}
	return string(out)
}
