package vcf2bgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBiallelicPassthrough(t *testing.T) {
	rec := diploidRecord("1", 100, []string{"G"}, gt(0, 1))

	out, err := SplitMultiallelic(rec)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Same(t, rec, out[0])
}

func TestSplitTriallelic(t *testing.T) {
	rec := &VariantRecord{
		Chromosome: "1",
		Position:   100,
		ID:         "rs1",
		Ref:        "A",
		Alts:       []string{"G", "T"},
		Line:       7,
		Calls: []GenotypeCall{
			gt(0, 1),                // het on the first alternate
			gt(0, 2),                // het on the second alternate
			gt(1, 2),                // touches both alternates
			gt(0, 0),                // hom ref
			{Kind: CallMissing},     // stays missing
		},
	}

	out, err := SplitMultiallelic(rec)
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, "1:100:A:G", first.ID)
	assert.Equal(t, []string{"G"}, first.Alts)
	assert.Equal(t, "A", first.Ref)
	assert.Equal(t, 7, first.Line)
	require.Len(t, first.Calls, 5)
	assert.Equal(t, []int{0, 1}, first.Calls[0].Alleles)
	assert.Equal(t, CallMissing, first.Calls[1].Kind) // 0/2 says nothing about G
	assert.Equal(t, CallMissing, first.Calls[2].Kind) // 1/2 touches another alternate
	assert.Equal(t, []int{0, 0}, first.Calls[3].Alleles)
	assert.Equal(t, CallMissing, first.Calls[4].Kind)

	second := out[1]
	assert.Equal(t, "1:100:A:T", second.ID)
	assert.Equal(t, []string{"T"}, second.Alts)
	assert.Equal(t, CallMissing, second.Calls[0].Kind)
	assert.Equal(t, []int{0, 1}, second.Calls[1].Alleles) // allele 2 recoded to 1
	assert.Equal(t, CallMissing, second.Calls[2].Kind)
	assert.Equal(t, []int{0, 0}, second.Calls[3].Alleles)
}

func TestSplitHomAlt(t *testing.T) {
	rec := &VariantRecord{
		Chromosome: "2",
		Position:   50,
		Ref:        "C",
		Alts:       []string{"G", "T"},
		Calls:      []GenotypeCall{gt(2, 2)},
	}

	out, err := SplitMultiallelic(rec)
	require.NoError(t, err)

	assert.Equal(t, CallMissing, out[0].Calls[0].Kind)
	assert.Equal(t, []int{1, 1}, out[1].Calls[0].Alleles)
}

func TestSplitPreservesPhasing(t *testing.T) {
	rec := &VariantRecord{
		Chromosome: "1",
		Position:   100,
		Ref:        "A",
		Alts:       []string{"G", "T"},
		Calls:      []GenotypeCall{{Kind: CallAlleles, Alleles: []int{1, 0}, Phased: true}},
	}

	out, err := SplitMultiallelic(rec)
	require.NoError(t, err)

	assert.True(t, out[0].Calls[0].Phased)
	assert.Equal(t, []int{1, 0}, out[0].Calls[0].Alleles)
}

func TestSplitRejectsLikelihoodCalls(t *testing.T) {
	rec := &VariantRecord{
		Chromosome: "3",
		Position:   77,
		Ref:        "A",
		Alts:       []string{"G", "T"},
		Calls:      []GenotypeCall{likelihoods(0.1, 0.2, 0.3, 0.1, 0.2, 0.1)},
	}

	_, err := SplitMultiallelic(rec)
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "3", encErr.Chromosome)
	assert.Equal(t, uint32(77), encErr.Position)
}
