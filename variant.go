package vcf2bgen

// Allele is one allele sequence as stored in a variant block.
type Allele string

// Variant is one site decoded from a BGEN file by VariantReader.
type Variant struct {
	ID            string
	RSID          string
	Chromosome    string
	Position      uint32
	NAlleles      uint16
	Alleles       []Allele
	Probabilities *Probability
}
