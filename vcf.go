package vcf2bgen

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/klauspost/compress/gzip"
)

// SampleSet is the ordered sequence of sample identifiers declared by the
// VCF header. The order is fixed for the whole conversion and defines the
// per-variant genotype column order in both formats.
type SampleSet []string

// CallKind discriminates the three shapes a per-sample genotype call can take.
type CallKind uint8

const (
	CallMissing CallKind = iota
	CallAlleles
	CallLikelihoods
)

// GenotypeCall is one sample's call at one site: an explicit allele tuple
// (with optional phasing), a likelihood vector over the genotype space, or
// missing. Likelihoods need not sum to 1; normalization happens during
// encoding.
type GenotypeCall struct {
	Kind        CallKind
	Alleles     []int // allele indexes; len is the call's ploidy
	Phased      bool
	Likelihoods []float64
}

// VariantRecord is one VCF site, constructed by VCFReader and consumed within
// a single pipeline step.
type VariantRecord struct {
	Chromosome string
	Position   uint32
	ID         string
	Ref        string
	Alts       []string
	Line       int // 1-based input line number, for error reporting
	Calls      []GenotypeCall
}

// NAlleles is the total allele count of the site (reference plus alternates).
func (r *VariantRecord) NAlleles() int {
	return 1 + len(r.Alts)
}

// Alleles returns the site's alleles in canonical order, reference first.
func (r *VariantRecord) Alleles() []string {
	out := make([]string, 0, r.NAlleles())
	out = append(out, r.Ref)
	out = append(out, r.Alts...)
	return out
}

const vcfFixedColumns = 9 // CHROM POS ID REF ALT QUAL FILTER INFO FORMAT

// formatSchema is the per-record dispatch table derived from the FORMAT
// column: which sub-fields are present and at which index. Looked up once
// per record, then applied to every sample column.
type formatSchema struct {
	gt int // genotype
	gp int // genotype probabilities
	pl int // phred-scaled likelihoods
}

func parseFormatSchema(format string) formatSchema {
	s := formatSchema{gt: -1, gp: -1, pl: -1}
	for i, key := range strings.Split(format, ":") {
		switch key {
		case "GT":
			s.gt = i
		case "GP":
			s.gp = i
		case "PL":
			s.pl = i
		}
	}
	return s
}

// VCFReader produces a lazy, forward-only sequence of VariantRecord from a
// VCF byte stream. The header is consumed by NewVCFReader; each call to Next
// parses exactly one data line. Consuming the sequence twice requires
// re-opening the source.
type VCFReader struct {
	reader  *bufio.Reader
	file    *os.File
	gz      *gzip.Reader
	line    int
	samples SampleSet
	meta    []string
}

// OpenVCF opens a plain or gzipped VCF file. The path "-" reads standard
// input.
func OpenVCF(path string) (*VCFReader, error) {
	if path == "-" {
		return NewVCFReader(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	r, err := NewVCFReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file

	return r, nil
}

// NewVCFReader wraps an arbitrary byte stream. Gzip input is detected by its
// magic bytes, so both plain and bgzip/gzip streams work unannounced.
func NewVCFReader(src io.Reader) (*VCFReader, error) {
	br := bufio.NewReaderSize(src, 1<<16)

	r := &VCFReader{reader: br}

	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, pfx.Err(err)
		}
		r.gz = gz
		r.reader = bufio.NewReaderSize(gz, 1<<16)
	}

	if err := r.parseHeader(); err != nil {
		return nil, err
	}

	return r, nil
}

// Samples returns the SampleSet declared by the #CHROM header line.
func (r *VCFReader) Samples() SampleSet {
	return r.samples
}

// MetaLines returns the raw ## meta-information lines.
func (r *VCFReader) MetaLines() []string {
	return r.meta
}

// LineNumber is the 1-based number of the most recently consumed line.
func (r *VCFReader) LineNumber() int {
	return r.line
}

func (r *VCFReader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func (r *VCFReader) readLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if len(line) > 0 {
		r.line++
	}
	if err != nil && (err != io.EOF || len(line) == 0) {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func (r *VCFReader) parseHeader() error {
	for {
		line, err := r.readLine()
		if err == io.EOF {
			return formatErrf(r.line, "no #CHROM header line found")
		} else if err != nil {
			return pfx.Err(err)
		}

		if strings.HasPrefix(line, "##") {
			r.meta = append(r.meta, line)
			continue
		}

		if strings.HasPrefix(line, "#CHROM") || strings.HasPrefix(line, "#") {
			fields := strings.Split(line, "\t")
			if !strings.HasPrefix(line, "#CHROM") || len(fields) < vcfFixedColumns-1 {
				return formatErrf(r.line, "malformed column header line %q", line)
			}
			if len(fields) > vcfFixedColumns {
				r.samples = SampleSet(fields[vcfFixedColumns:])
			}
			return nil
		}

		return formatErrf(r.line, "data line encountered before #CHROM header line")
	}
}

// Next parses one data line into a VariantRecord. It returns nil, nil at end
// of input.
func (r *VCFReader) Next() (*VariantRecord, error) {
	var line string
	for {
		var err error
		line, err = r.readLine()
		if err == io.EOF {
			return nil, nil
		} else if err != nil {
			return nil, pfx.Err(err)
		}
		if line != "" {
			break
		}
	}

	return r.parseDataLine(line)
}

func (r *VCFReader) parseDataLine(line string) (*VariantRecord, error) {
	fields := strings.Split(line, "\t")
	want := vcfFixedColumns + len(r.samples)
	if len(r.samples) == 0 {
		// Sites-only VCF may omit the FORMAT column entirely.
		want = vcfFixedColumns - 1
	}
	if len(fields) < want {
		return nil, formatErrf(r.line, "expected %d columns for %d samples, found %d", want, len(r.samples), len(fields))
	}
	if len(r.samples) > 0 && len(fields) != want {
		return nil, formatErrf(r.line, "expected %d columns for %d samples, found %d", want, len(r.samples), len(fields))
	}

	pos, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return nil, formatErrf(r.line, "invalid position %q", fields[1])
	}

	rec := &VariantRecord{
		Chromosome: fields[0],
		Position:   uint32(pos),
		ID:         fields[2],
		Ref:        fields[3],
		Alts:       strings.Split(fields[4], ","),
		Line:       r.line,
	}
	if fields[4] == "" || fields[4] == "." {
		return nil, formatErrf(r.line, "missing alternate allele field")
	}

	if len(r.samples) == 0 {
		return rec, nil
	}

	schema := parseFormatSchema(fields[vcfFixedColumns-1])
	if schema.gt < 0 && schema.gp < 0 && schema.pl < 0 {
		return nil, formatErrf(r.line, "FORMAT %q declares none of GT, GP, PL", fields[vcfFixedColumns-1])
	}

	nGenotypes := NGenotypes(rec.NAlleles(), 2)
	rec.Calls = make([]GenotypeCall, len(r.samples))
	for i, col := range fields[vcfFixedColumns:] {
		call, err := r.parseSampleColumn(col, schema, nGenotypes)
		if err != nil {
			return nil, err
		}
		rec.Calls[i] = call
	}

	return rec, nil
}

func (r *VCFReader) parseSampleColumn(col string, schema formatSchema, nGenotypes int) (GenotypeCall, error) {
	sub := strings.Split(col, ":")

	// A sample column may drop trailing sub-fields; within-range lookups are
	// required to parse against the declared schema.
	field := func(i int) string {
		if i < 0 || i >= len(sub) {
			return ""
		}
		return sub[i]
	}

	if gt := field(schema.gt); gt != "" && gt != "." {
		call, ok, err := r.parseGT(gt)
		if err != nil {
			return GenotypeCall{}, err
		}
		if ok {
			return call, nil
		}
	}

	if gp := field(schema.gp); gp != "" && gp != "." {
		probs, err := r.parseFloatVector(gp, "GP")
		if err != nil {
			return GenotypeCall{}, err
		}
		if len(probs) != nGenotypes {
			return GenotypeCall{}, formatErrf(r.line, "GP field has %d values; site has %d genotypes", len(probs), nGenotypes)
		}
		return GenotypeCall{Kind: CallLikelihoods, Likelihoods: probs}, nil
	}

	if pl := field(schema.pl); pl != "" && pl != "." {
		phred, err := r.parseFloatVector(pl, "PL")
		if err != nil {
			return GenotypeCall{}, err
		}
		if len(phred) != nGenotypes {
			return GenotypeCall{}, formatErrf(r.line, "PL field has %d values; site has %d genotypes", len(phred), nGenotypes)
		}
		likelihoods := make([]float64, len(phred))
		for i, p := range phred {
			likelihoods[i] = math.Pow(10, -p/10)
		}
		return GenotypeCall{Kind: CallLikelihoods, Likelihoods: likelihoods}, nil
	}

	return GenotypeCall{Kind: CallMissing}, nil
}

// parseGT parses a genotype like 0/1, 0|1, or 1 into an allele tuple. A call
// containing any missing allele ('.') yields ok=false so that a likelihood
// sub-field, if declared, can speak for the sample instead.
func (r *VCFReader) parseGT(gt string) (GenotypeCall, bool, error) {
	phased := strings.ContainsRune(gt, '|')

	var parts []string
	if phased {
		parts = strings.Split(gt, "|")
	} else {
		parts = strings.Split(gt, "/")
	}

	alleles := make([]int, 0, len(parts))
	for _, p := range parts {
		if p == "." {
			return GenotypeCall{}, false, nil
		}
		a, err := strconv.Atoi(p)
		if err != nil || a < 0 {
			return GenotypeCall{}, false, formatErrf(r.line, "invalid GT allele %q", p)
		}
		alleles = append(alleles, a)
	}

	if len(alleles) == 0 {
		return GenotypeCall{}, false, nil
	}

	return GenotypeCall{Kind: CallAlleles, Alleles: alleles, Phased: phased}, true, nil
}

func (r *VCFReader) parseFloatVector(s, name string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, formatErrf(r.line, "invalid %s value %q", name, p)
		}
		out[i] = v
	}
	return out, nil
}
