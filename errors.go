package vcf2bgen

import (
	"errors"
	"fmt"
)

// errRunTwice guards Pipeline.Run: the VCF sequence is forward-only, so a
// pipeline cannot be rewound and re-run.
var errRunTwice = errors.New("pipeline has already run; create a new one to convert again")

// FormatError reports malformed VCF input. It is always fatal and carries the
// 1-based line number of the offending line (0 when the problem is the header
// as a whole, e.g. a missing #CHROM line).
type FormatError struct {
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("vcf format error at line %d: %s", e.Line, e.Msg)
}

// EncodingError reports invalid numeric input to probability encoding, such
// as a zero-sum likelihood vector. It carries the coordinates of the variant
// so the offending input line can be located.
type EncodingError struct {
	Chromosome string
	Position   uint32
	Msg        string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error at %s:%d: %s", e.Chromosome, e.Position, e.Msg)
}

func formatErrf(line int, format string, args ...interface{}) error {
	return &FormatError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

func encodingErrf(chromosome string, position uint32, format string, args ...interface{}) error {
	return &EncodingError{Chromosome: chromosome, Position: position, Msg: fmt.Sprintf(format, args...)}
}
