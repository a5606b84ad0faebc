package vcf2bgen

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// PloidyPolicy controls how each sample's ploidy is determined during
// encoding.
type PloidyPolicy uint8

const (
	// FixedDiploid requires every explicit call to carry exactly two
	// alleles; anything else is an encoding error.
	FixedDiploid PloidyPolicy = iota
	// RecordDeclared takes each sample's ploidy from its call arity.
	// Likelihood-only calls are assumed diploid.
	RecordDeclared
)

func (p PloidyPolicy) String() string {
	switch p {
	case FixedDiploid:
		return "fixed-diploid"
	case RecordDeclared:
		return "record-declared"
	default:
		return "Illegal selection"
	}
}

// ParsePloidyPolicy maps a user-facing selector to a PloidyPolicy.
func ParsePloidyPolicy(s string) (PloidyPolicy, error) {
	switch s {
	case "fixed-diploid":
		return FixedDiploid, nil
	case "record-declared":
		return RecordDeclared, nil
	}

	return 0, fmt.Errorf("unknown ploidy policy %q (want fixed-diploid or record-declared)", s)
}

const (
	maxPloidy        = 63
	ploidyMissingBit = 1 << 7
)

// EncodedProbabilityBlock is the uncompressed genotype data block of one
// variant: sample count, allele count, ploidy bytes, and the bit-packed
// quantized probabilities (the last probability of each sample is implicit).
// It is handed to the writer, optionally compressed there, and never retained
// across variants.
type EncodedProbabilityBlock struct {
	NSamples  uint32
	NAlleles  uint16
	MinPloidy uint8
	MaxPloidy uint8
	Bits      uint8
	Data      []byte
}

// Encoder converts the SampleSet-ordered genotype calls of one VariantRecord
// into an EncodedProbabilityBlock. It is a pure function of its inputs and
// configuration and is therefore safe to run from multiple goroutines.
type Encoder struct {
	Bits   uint8
	Policy PloidyPolicy
}

// NewEncoder validates the bit depth and returns an Encoder. Supported
// depths are 8, 16, 24, and 32 bits per probability.
func NewEncoder(bits uint8, policy PloidyPolicy) (*Encoder, error) {
	switch bits {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d (want 8, 16, 24, or 32)", bits)
	}

	return &Encoder{Bits: bits, Policy: policy}, nil
}

// maxValue is the largest representable quantized probability: 2^Bits - 1.
func (e *Encoder) maxValue() uint64 {
	return 1<<uint(e.Bits) - 1
}

// Encode builds the genotype data block for rec. Every non-missing sample's
// quantized values sum exactly to 2^Bits-1; missing samples carry the
// missingness bit and all-zero probabilities.
func (e *Encoder) Encode(rec *VariantRecord) (*EncodedProbabilityBlock, error) {
	nAlleles := rec.NAlleles()
	nSamples := len(rec.Calls)

	ploidies := make([]uint8, nSamples)
	missing := make([]bool, nSamples)
	minPloidy, maxPloidyObserved := uint8(maxPloidy), uint8(0)

	for i := range rec.Calls {
		p, m, err := e.samplePloidy(rec, &rec.Calls[i])
		if err != nil {
			return nil, err
		}
		ploidies[i] = p
		missing[i] = m
		if p < minPloidy {
			minPloidy = p
		}
		if p > maxPloidyObserved {
			maxPloidyObserved = p
		}
	}
	if nSamples == 0 {
		minPloidy, maxPloidyObserved = 2, 2
	}

	// Fixed-size prefix: nsamples, nalleles, min/max ploidy, then one
	// ploidy/missingness byte per sample, then phased flag and bit depth.
	header := make([]byte, 0, 10+nSamples)
	header = binary.LittleEndian.AppendUint32(header, uint32(nSamples))
	header = binary.LittleEndian.AppendUint16(header, uint16(nAlleles))
	header = append(header, minPloidy, maxPloidyObserved)
	for i := range ploidies {
		b := ploidies[i]
		if missing[i] {
			b |= ploidyMissingBit
		}
		header = append(header, b)
	}
	header = append(header, 0 /* unphased */, e.Bits)

	packedBits := 0
	for i := range ploidies {
		packedBits += (NGenotypes(nAlleles, int(ploidies[i])) - 1) * int(e.Bits)
	}
	bw := newBitWriter((packedBits + 7) / 8)

	quantized := make([]uint64, 0, NGenotypes(nAlleles, int(maxPloidyObserved)))
	for i := range rec.Calls {
		nGeno := NGenotypes(nAlleles, int(ploidies[i]))

		if missing[i] {
			for g := 0; g < nGeno-1; g++ {
				bw.WriteUintLittleEndian(0, int(e.Bits))
			}
			continue
		}

		var err error
		quantized, err = e.quantizeCall(rec, &rec.Calls[i], nAlleles, nGeno, quantized[:0])
		if err != nil {
			return nil, err
		}
		for g := 0; g < nGeno-1; g++ {
			bw.WriteUintLittleEndian(quantized[g], int(e.Bits))
		}
	}

	return &EncodedProbabilityBlock{
		NSamples:  uint32(nSamples),
		NAlleles:  uint16(nAlleles),
		MinPloidy: minPloidy,
		MaxPloidy: maxPloidyObserved,
		Bits:      e.Bits,
		Data:      append(header, bw.Flush()...),
	}, nil
}

func (e *Encoder) samplePloidy(rec *VariantRecord, call *GenotypeCall) (ploidy uint8, missing bool, err error) {
	switch call.Kind {
	case CallMissing:
		if e.Policy == RecordDeclared && len(call.Alleles) > 0 {
			return uint8(len(call.Alleles)), true, nil
		}
		return 2, true, nil
	case CallAlleles:
		n := len(call.Alleles)
		if e.Policy == FixedDiploid && n != 2 {
			return 0, false, encodingErrf(rec.Chromosome, rec.Position, "call has ploidy %d under the fixed-diploid policy", n)
		}
		if n < 1 || n > maxPloidy {
			return 0, false, encodingErrf(rec.Chromosome, rec.Position, "call ploidy %d is out of range", n)
		}
		return uint8(n), false, nil
	case CallLikelihoods:
		return 2, false, nil
	}

	return 0, false, encodingErrf(rec.Chromosome, rec.Position, "unknown call kind %d", call.Kind)
}

// quantizeCall produces the sample's full quantized genotype vector, summing
// exactly to maxValue, into dst.
func (e *Encoder) quantizeCall(rec *VariantRecord, call *GenotypeCall, nAlleles, nGeno int, dst []uint64) ([]uint64, error) {
	switch call.Kind {
	case CallAlleles:
		sorted := make([]int, len(call.Alleles))
		copy(sorted, call.Alleles)
		sort.Ints(sorted)
		if sorted[len(sorted)-1] >= nAlleles {
			return nil, encodingErrf(rec.Chromosome, rec.Position, "GT references allele %d but the site has %d alleles", sorted[len(sorted)-1], nAlleles)
		}

		idx := GenotypeIndex(sorted, nAlleles)
		for g := 0; g < nGeno; g++ {
			if g == idx {
				dst = append(dst, e.maxValue())
			} else {
				dst = append(dst, 0)
			}
		}
		return dst, nil

	case CallLikelihoods:
		if len(call.Likelihoods) != nGeno {
			return nil, encodingErrf(rec.Chromosome, rec.Position, "likelihood vector has %d values; site has %d genotypes", len(call.Likelihoods), nGeno)
		}
		return e.quantizeVector(rec, call.Likelihoods, dst)
	}

	return nil, encodingErrf(rec.Chromosome, rec.Position, "unknown call kind %d", call.Kind)
}

// quantizeVector normalizes a non-negative likelihood vector and quantizes it
// with largest-remainder rounding so the integer values sum exactly to
// 2^Bits-1, which is the reconstruction rule BGEN readers rely on.
func (e *Encoder) quantizeVector(rec *VariantRecord, likelihoods []float64, dst []uint64) ([]uint64, error) {
	var sum float64
	for _, v := range likelihoods {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, encodingErrf(rec.Chromosome, rec.Position, "non-finite probability vector")
		}
		sum += v
	}
	if sum == 0 {
		return nil, encodingErrf(rec.Chromosome, rec.Position, "non-finite probability vector")
	}

	maxVal := e.maxValue()
	scale := float64(maxVal) / sum

	type remainder struct {
		idx  int
		frac float64
	}

	var total uint64
	remainders := make([]remainder, len(likelihoods))
	start := len(dst)
	for i, v := range likelihoods {
		exact := v * scale
		floor := math.Floor(exact)
		dst = append(dst, uint64(floor))
		total += uint64(floor)
		remainders[i] = remainder{idx: i, frac: exact - floor}
	}

	// Distribute the rounding deficit to the largest remainders; ties break
	// toward the lower genotype index so the result is deterministic.
	sort.SliceStable(remainders, func(i, j int) bool {
		return remainders[i].frac > remainders[j].frac
	})
	for i := 0; total < maxVal && i < len(remainders); i++ {
		dst[start+remainders[i].idx]++
		total++
	}
	if total != maxVal {
		return nil, encodingErrf(rec.Chromosome, rec.Position, "quantized vector sums to %d; expected %d", total, maxVal)
	}

	return dst, nil
}
