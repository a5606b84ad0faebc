package vcf2bgen

// Probability holds the decoded genotype probability data of one variant.
type Probability struct {
	NSamples            uint32
	NAlleles            uint16
	MinimumPloidy       uint8
	MaximumPloidy       uint8
	Phased              bool
	NProbabilityBits    uint8 // nbits. Must be 1-32 inclusive (there is no uint4 which would otherwise suffice)
	SampleProbabilities []*SampleProbability
}

// SampleProbability represents the variant data for one specific individual at
// one specific locus, including information on whether this data is missing,
// what that individual's ploidy is, and the probabilities for the genotypes.
// The implicit final probability of the packed representation has been
// restored, so len(Probabilities) equals the full genotype count.
type SampleProbability struct {
	Missing       bool
	Ploidy        uint8 // Limited to 0-63
	Probabilities []float64
}
