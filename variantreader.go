package vcf2bgen

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/carbocation/pfx"
)

// VariantReader iterates over the variant blocks of an open BGEN file in file
// order, decoding each block's metadata and genotype probabilities.
type VariantReader struct {
	VariantsSeen  uint32
	b             *BGEN
	currentOffset int64
	err           error

	// Cached values
	buffer []byte
}

func (b *BGEN) NewVariantReader() *VariantReader {
	vr := &VariantReader{
		currentOffset: int64(b.VariantsStart),
		b:             b,
	}

	return vr
}

func (vr *VariantReader) Error() error {
	return vr.err
}

// Offset is the byte offset at which the next unread variant block begins.
func (vr *VariantReader) Offset() int64 {
	return vr.currentOffset
}

// Read returns the next variant, or nil once the file is exhausted. After a
// nil result, Error reports whether iteration stopped cleanly.
func (vr *VariantReader) Read() *Variant {
	v, newOffset, err := vr.parseVariantAtOffset(vr.currentOffset)
	if err != nil {
		if err == io.EOF {
			return nil
		}
		vr.err = pfx.Err(err)
		return nil
	}

	vr.VariantsSeen++
	vr.currentOffset = newOffset

	return v
}

// parseVariantAtOffset does not mutate the reader's position; the caller
// advances to the returned offset.
func (vr *VariantReader) parseVariantAtOffset(offset int64) (*Variant, int64, error) {
	v := &Variant{}

	var err error
	if v.ID, offset, err = vr.readString16At(offset); err != nil {
		return nil, 0, err
	}
	if v.RSID, offset, err = vr.readString16At(offset); err != nil {
		return nil, 0, err
	}
	if v.Chromosome, offset, err = vr.readString16At(offset); err != nil {
		return nil, 0, err
	}
	if len(v.Chromosome) != 2 {
		return nil, 0, fmt.Errorf("chromosome field size is %d bytes; expected 2", len(v.Chromosome))
	}

	if err = vr.readNBytesAtOffset(4, offset); err != nil {
		return nil, 0, err
	}
	offset += 4
	v.Position = binary.LittleEndian.Uint32(vr.buffer[:4])

	if err = vr.readNBytesAtOffset(2, offset); err != nil {
		return nil, 0, err
	}
	offset += 2
	v.NAlleles = binary.LittleEndian.Uint16(vr.buffer[:2])

	for i := uint16(0); i < v.NAlleles; i++ {
		if err = vr.readNBytesAtOffset(4, offset); err != nil {
			return nil, 0, err
		}
		offset += 4
		alleleLength := int(binary.LittleEndian.Uint32(vr.buffer[:4]))

		if err = vr.readNBytesAtOffset(alleleLength, offset); err != nil {
			return nil, 0, err
		}
		offset += int64(alleleLength)
		v.Alleles = append(v.Alleles, Allele(vr.buffer[:alleleLength]))
	}

	// The genotype data block leads with a 4 byte chunk that indicates how
	// much data is left for this variant; skipping ahead by that much lands
	// on the next variant block.
	if err = vr.readNBytesAtOffset(4, offset); err != nil {
		return nil, 0, err
	}
	offset += 4
	payloadLength := binary.LittleEndian.Uint32(vr.buffer[:4])

	var uncompressed []byte
	if vr.b.FlagCompression == CompressionDisabled {
		if err = vr.readNBytesAtOffset(int(payloadLength), offset); err != nil {
			return nil, 0, err
		}
		offset += int64(payloadLength)
		uncompressed = append([]byte(nil), vr.buffer[:payloadLength]...)
	} else {
		// With compression enabled there is a second 4 byte chunk holding
		// the decompressed size, and the compressed data is 4 bytes shorter
		// than the declared payload length.
		if err = vr.readNBytesAtOffset(4, offset); err != nil {
			return nil, 0, err
		}
		offset += 4
		decompressedLength := binary.LittleEndian.Uint32(vr.buffer[:4])

		compressedLength := int(payloadLength) - 4
		if err = vr.readNBytesAtOffset(compressedLength, offset); err != nil {
			return nil, 0, err
		}
		offset += int64(compressedLength)

		uncompressed, err = vr.b.FlagCompression.Decompress(vr.buffer[:compressedLength], int(decompressedLength))
		if err != nil {
			return nil, 0, err
		}
	}

	if v.Probabilities, err = decodeProbabilities(uncompressed); err != nil {
		return nil, 0, fmt.Errorf("variant %s at %s:%d: %w", v.ID, v.Chromosome, v.Position, err)
	}

	return v, offset, nil
}

func (vr *VariantReader) readString16At(offset int64) (string, int64, error) {
	if err := vr.readNBytesAtOffset(2, offset); err != nil {
		return "", 0, err
	}
	offset += 2
	stringSize := int(binary.LittleEndian.Uint16(vr.buffer[:2]))

	if err := vr.readNBytesAtOffset(stringSize, offset); err != nil {
		return "", 0, err
	}
	offset += int64(stringSize)

	return string(vr.buffer[:stringSize]), offset, nil
}

func (vr *VariantReader) readNBytesAtOffset(N int, offset int64) error {
	if vr.buffer == nil || len(vr.buffer) < N {
		vr.buffer = make([]byte, N)
	}

	_, err := vr.b.File.ReadAt(vr.buffer[:N], offset)
	return err
}

// decodeProbabilities unpacks an uncompressed genotype data block, restoring
// the implicit final probability of each sample so that every non-missing
// sample's probabilities sum to 1.
func decodeProbabilities(data []byte) (*Probability, error) {
	if len(data) < 10 {
		return nil, fmt.Errorf("genotype data block is %d bytes; expected at least 10", len(data))
	}

	p := &Probability{
		NSamples:      binary.LittleEndian.Uint32(data[0:4]),
		NAlleles:      binary.LittleEndian.Uint16(data[4:6]),
		MinimumPloidy: data[6],
		MaximumPloidy: data[7],
	}

	nSamples := int(p.NSamples)
	if len(data) < 10+nSamples {
		return nil, fmt.Errorf("genotype data block is %d bytes; expected at least %d", len(data), 10+nSamples)
	}
	ploidyBytes := data[8 : 8+nSamples]
	phased := data[8+nSamples]
	p.NProbabilityBits = data[9+nSamples]
	if phased != 0 {
		return nil, fmt.Errorf("phased probability data is not supported")
	}
	if p.NProbabilityBits < 1 || p.NProbabilityBits > 32 {
		return nil, fmt.Errorf("probability bit depth %d is out of range", p.NProbabilityBits)
	}

	denom := float64(uint64(1)<<uint(p.NProbabilityBits) - 1)
	br := newBitReader(bytes.NewReader(data[10+nSamples:]))

	p.SampleProbabilities = make([]*SampleProbability, nSamples)
	for i := 0; i < nSamples; i++ {
		sp := &SampleProbability{
			Missing: ploidyBytes[i]&ploidyMissingBit != 0,
			Ploidy:  ploidyBytes[i] &^ ploidyMissingBit,
		}

		nGeno := NGenotypes(int(p.NAlleles), int(sp.Ploidy))
		sp.Probabilities = make([]float64, nGeno)

		var sum float64
		for g := 0; g < nGeno-1; g++ {
			raw, err := br.ReadUintLittleEndian(int(p.NProbabilityBits))
			if err != nil {
				return nil, fmt.Errorf("truncated probability data: %w", err)
			}
			sp.Probabilities[g] = float64(raw) / denom
			sum += sp.Probabilities[g]
		}
		if !sp.Missing {
			sp.Probabilities[nGeno-1] = 1 - sum
		}

		p.SampleProbabilities[i] = sp
	}

	return p, nil
}
