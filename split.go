package vcf2bgen

import "strconv"

// SplitMultiallelic rewrites one multiallelic site as a sequence of biallelic
// VariantRecords, one per alternate allele, each carrying a chr:pos:ref:alt
// identifier. Per-sample calls are recoded against the single target allele:
// the target becomes allele 1, the reference stays 0, and a call touching any
// other allele is treated as missing for that split. Biallelic input is
// passed through untouched.
//
// Splitting requires explicit allele calls; a likelihood vector over the full
// multiallelic genotype space cannot be projected onto one alternate.
func SplitMultiallelic(rec *VariantRecord) ([]*VariantRecord, error) {
	if len(rec.Alts) == 1 {
		return []*VariantRecord{rec}, nil
	}

	out := make([]*VariantRecord, len(rec.Alts))
	for altIdx, alt := range rec.Alts {
		target := altIdx + 1

		split := &VariantRecord{
			Chromosome: rec.Chromosome,
			Position:   rec.Position,
			ID:         rec.Chromosome + ":" + strconv.FormatUint(uint64(rec.Position), 10) + ":" + rec.Ref + ":" + alt,
			Ref:        rec.Ref,
			Alts:       []string{alt},
			Line:       rec.Line,
		}

		if rec.Calls != nil {
			split.Calls = make([]GenotypeCall, len(rec.Calls))
			for i := range rec.Calls {
				call, err := recodeCall(rec, &rec.Calls[i], target)
				if err != nil {
					return nil, err
				}
				split.Calls[i] = call
			}
		}

		out[altIdx] = split
	}

	return out, nil
}

func recodeCall(rec *VariantRecord, call *GenotypeCall, target int) (GenotypeCall, error) {
	switch call.Kind {
	case CallMissing:
		return GenotypeCall{Kind: CallMissing}, nil
	case CallLikelihoods:
		return GenotypeCall{}, encodingErrf(rec.Chromosome, rec.Position,
			"multiallelic splitting requires explicit GT calls; got a likelihood vector")
	case CallAlleles:
		recoded := make([]int, len(call.Alleles))
		for i, a := range call.Alleles {
			switch a {
			case 0:
				recoded[i] = 0
			case target:
				recoded[i] = 1
			default:
				// The call involves a different alternate; against this
				// split it carries no information.
				return GenotypeCall{Kind: CallMissing}, nil
			}
		}
		return GenotypeCall{Kind: CallAlleles, Alleles: recoded, Phased: call.Phased}, nil
	}

	return GenotypeCall{}, encodingErrf(rec.Chromosome, rec.Position, "unknown call kind %d", call.Kind)
}
