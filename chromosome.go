package vcf2bgen

import "strings"

// ChromosomeCode normalizes a VCF chromosome name to the fixed two-character
// code stored in the chromosome field of each variant block ("1" and "chr1"
// both become "01", "X" becomes "0X"). Contig names with no two-character
// form are rejected, since the block layout reserves exactly two bytes.
func ChromosomeCode(name string) (string, bool) {
	s := strings.TrimPrefix(name, "chr")

	switch s {
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		return "0" + s, true
	case "X", "Y":
		return "0" + s, true
	case "M", "MT":
		return "MT", true
	case "XY":
		return "XY", true
	}

	// Two-character names ("10" through "22", or already-normalized codes)
	// pass through verbatim.
	if len(s) == 2 {
		return s, true
	}

	return "", false
}

// DisplayChromosome reverses ChromosomeCode for human-facing output,
// stripping the zero padding ("01" -> "1", "0X" -> "X").
func DisplayChromosome(code string) string {
	if len(code) == 2 && code[0] == '0' {
		return code[1:]
	}

	return code
}
