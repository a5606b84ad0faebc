package vcf2bgen

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diploidRecord(chrom string, pos uint32, alts []string, calls ...GenotypeCall) *VariantRecord {
	return &VariantRecord{
		Chromosome: chrom,
		Position:   pos,
		ID:         ".",
		Ref:        "A",
		Alts:       alts,
		Line:       2,
		Calls:      calls,
	}
}

func gt(alleles ...int) GenotypeCall {
	return GenotypeCall{Kind: CallAlleles, Alleles: alleles}
}

func likelihoods(v ...float64) GenotypeCall {
	return GenotypeCall{Kind: CallLikelihoods, Likelihoods: v}
}

// rawValues unpacks the quantized integers of an encoded block, per sample.
func rawValues(t *testing.T, block *EncodedProbabilityBlock) [][]uint64 {
	t.Helper()

	nSamples := int(block.NSamples)
	ploidyBytes := block.Data[8 : 8+nSamples]
	br := newBitReader(bytes.NewReader(block.Data[10+nSamples:]))

	out := make([][]uint64, nSamples)
	for i := 0; i < nSamples; i++ {
		ploidy := int(ploidyBytes[i] &^ ploidyMissingBit)
		nGeno := NGenotypes(int(block.NAlleles), ploidy)
		vals := make([]uint64, 0, nGeno-1)
		for g := 0; g < nGeno-1; g++ {
			v, err := br.ReadUintLittleEndian(int(block.Bits))
			require.NoError(t, err)
			vals = append(vals, v)
		}
		out[i] = vals
	}

	return out
}

func TestEncodePointMassRoundTrip(t *testing.T) {
	for _, bits := range []uint8{8, 16, 24, 32} {
		enc, err := NewEncoder(bits, FixedDiploid)
		require.NoError(t, err)

		rec := diploidRecord("1", 100, []string{"G"}, gt(0, 0), gt(0, 1), gt(1, 1))

		block, err := enc.Encode(rec)
		require.NoError(t, err)

		prob, err := decodeProbabilities(block.Data)
		require.NoError(t, err)
		require.Len(t, prob.SampleProbabilities, 3)

		for sample, wantIdx := range []int{0, 1, 2} {
			sp := prob.SampleProbabilities[sample]
			assert.False(t, sp.Missing)
			require.Len(t, sp.Probabilities, 3)
			for g, p := range sp.Probabilities {
				if g == wantIdx {
					assert.Equalf(t, 1.0, p, "bits=%d sample=%d genotype=%d", bits, sample, g)
				} else {
					assert.Equalf(t, 0.0, p, "bits=%d sample=%d genotype=%d", bits, sample, g)
				}
			}
		}
	}
}

func TestEncodeQuantizedSumInvariant(t *testing.T) {
	vectors := [][]float64{
		{1, 1, 1},
		{0.2, 0.3, 0.5},
		{1e-8, 1, 1e-8},
		{3, 2, 1},
		{0.1, 0.1, 0.1},
	}

	for _, bits := range []uint8{8, 16, 24, 32} {
		enc, err := NewEncoder(bits, FixedDiploid)
		require.NoError(t, err)
		maxVal := uint64(1)<<uint(bits) - 1

		for _, vec := range vectors {
			rec := diploidRecord("1", 100, []string{"G"}, likelihoods(vec...))

			// Largest-remainder law: the full quantized vector sums to the
			// maximum representable integer, exactly.
			quantized, err := enc.quantizeVector(rec, vec, nil)
			require.NoError(t, err)
			require.Len(t, quantized, len(vec))
			var sum uint64
			for _, v := range quantized {
				sum += v
			}
			assert.Equal(t, maxVal, sum, "bits=%d vec=%v", bits, vec)

			// And the stored (truncated) representation decodes to a
			// distribution.
			block, err := enc.Encode(rec)
			require.NoError(t, err)
			stored := rawValues(t, block)[0]
			require.Len(t, stored, len(vec)-1)

			prob, err := decodeProbabilities(block.Data)
			require.NoError(t, err)
			var total float64
			for _, p := range prob.SampleProbabilities[0].Probabilities {
				assert.GreaterOrEqual(t, p, 0.0)
				total += p
			}
			assert.InDelta(t, 1.0, total, 1e-9, "bits=%d vec=%v", bits, vec)
		}
	}
}

func TestEncodeNormalizesLikelihoods(t *testing.T) {
	enc, err := NewEncoder(16, FixedDiploid)
	require.NoError(t, err)

	// 3:1 odds between the first two genotypes.
	rec := diploidRecord("1", 100, []string{"G"}, likelihoods(3, 1, 0))

	block, err := enc.Encode(rec)
	require.NoError(t, err)

	prob, err := decodeProbabilities(block.Data)
	require.NoError(t, err)

	p := prob.SampleProbabilities[0].Probabilities
	assert.InDelta(t, 0.75, p[0], 1e-4)
	assert.InDelta(t, 0.25, p[1], 1e-4)
	assert.InDelta(t, 0.0, p[2], 1e-4)
}

func TestEncodeZeroSumLikelihoodFails(t *testing.T) {
	enc, err := NewEncoder(16, FixedDiploid)
	require.NoError(t, err)

	rec := diploidRecord("7", 1234, []string{"G"}, likelihoods(0, 0, 0))

	_, err = enc.Encode(rec)
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "7", encErr.Chromosome)
	assert.Equal(t, uint32(1234), encErr.Position)
	assert.Contains(t, encErr.Msg, "non-finite probability vector")
}

func TestEncodeMissingCall(t *testing.T) {
	enc, err := NewEncoder(8, FixedDiploid)
	require.NoError(t, err)

	rec := diploidRecord("1", 100, []string{"G"}, gt(0, 1), GenotypeCall{Kind: CallMissing})

	block, err := enc.Encode(rec)
	require.NoError(t, err)

	prob, err := decodeProbabilities(block.Data)
	require.NoError(t, err)

	require.Len(t, prob.SampleProbabilities, 2)
	assert.False(t, prob.SampleProbabilities[0].Missing)

	sp := prob.SampleProbabilities[1]
	assert.True(t, sp.Missing)
	assert.Equal(t, uint8(2), sp.Ploidy)
	for _, p := range sp.Probabilities {
		assert.Equal(t, 0.0, p)
	}
}

func TestEncodeMultiallelic(t *testing.T) {
	enc, err := NewEncoder(16, FixedDiploid)
	require.NoError(t, err)

	// Three alternates expand to NGenotypes(4, 2) = 10 genotypes.
	rec := diploidRecord("1", 100, []string{"C", "G", "T"}, gt(1, 2), gt(3, 3))

	block, err := enc.Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, uint16(4), block.NAlleles)

	prob, err := decodeProbabilities(block.Data)
	require.NoError(t, err)

	first := prob.SampleProbabilities[0].Probabilities
	require.Len(t, first, 10)
	assert.Equal(t, 1.0, first[GenotypeIndex([]int{1, 2}, 4)])

	second := prob.SampleProbabilities[1].Probabilities
	assert.Equal(t, 1.0, second[GenotypeIndex([]int{3, 3}, 4)])
}

func TestEncodeBiallelicAndTriallelicBothSucceed(t *testing.T) {
	enc, err := NewEncoder(16, FixedDiploid)
	require.NoError(t, err)

	biallelic := diploidRecord("1", 100, []string{"G"}, gt(0, 1))
	_, err = enc.Encode(biallelic)
	assert.NoError(t, err)

	triallelic := diploidRecord("1", 101, []string{"G", "T", "TA"}, gt(0, 3))
	_, err = enc.Encode(triallelic)
	assert.NoError(t, err)
}

func TestEncodeRecordDeclaredPloidy(t *testing.T) {
	enc, err := NewEncoder(16, RecordDeclared)
	require.NoError(t, err)

	// chrX-style mix: one haploid call, one diploid call.
	rec := diploidRecord("X", 100, []string{"G"}, gt(1), gt(0, 1))

	block, err := enc.Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), block.MinPloidy)
	assert.Equal(t, uint8(2), block.MaxPloidy)

	prob, err := decodeProbabilities(block.Data)
	require.NoError(t, err)

	haploid := prob.SampleProbabilities[0]
	assert.Equal(t, uint8(1), haploid.Ploidy)
	require.Len(t, haploid.Probabilities, 2)
	assert.Equal(t, 0.0, haploid.Probabilities[0])
	assert.Equal(t, 1.0, haploid.Probabilities[1])
}

func TestEncodeFixedDiploidRejectsOtherPloidy(t *testing.T) {
	enc, err := NewEncoder(16, FixedDiploid)
	require.NoError(t, err)

	rec := diploidRecord("1", 100, []string{"G"}, gt(1))

	_, err = enc.Encode(rec)
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Contains(t, encErr.Msg, "fixed-diploid")
}

func TestEncodeRejectsOutOfRangeAllele(t *testing.T) {
	enc, err := NewEncoder(16, FixedDiploid)
	require.NoError(t, err)

	rec := diploidRecord("1", 100, []string{"G"}, gt(0, 2))

	_, err = enc.Encode(rec)
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
}

func TestEncodeRejectsWrongLikelihoodArity(t *testing.T) {
	enc, err := NewEncoder(16, FixedDiploid)
	require.NoError(t, err)

	rec := diploidRecord("1", 100, []string{"G"}, likelihoods(0.5, 0.5))

	_, err = enc.Encode(rec)
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
}

func TestNewEncoderRejectsOddBitDepth(t *testing.T) {
	for _, bits := range []uint8{0, 1, 7, 12, 31} {
		_, err := NewEncoder(bits, FixedDiploid)
		assert.Error(t, err, "bits=%d", bits)
	}
}
