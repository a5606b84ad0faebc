package vcf2bgen

import "fmt"

// Config is the full configuration surface of one conversion run. Zero
// values are filled in by applyDefaults, so the minimal useful Config is
// {InputPath, OutputPath}.
type Config struct {
	// InputPath names the VCF source; "-" reads standard input.
	InputPath string
	// OutputPath names the BGEN destination. It must be seekable, since
	// the deferred variant-count header field is patched at finalization.
	OutputPath string
	// IndexPath names the .bgi companion store. Defaults to OutputPath + ".bgi".
	IndexPath string

	// Bits is the probability quantization depth: 8, 16, 24, or 32. Default 16.
	Bits uint8
	// Compression selects the per-variant payload compression. The zero
	// value disables compression.
	Compression Compression
	// PloidyPolicy selects fixed-diploid or record-declared ploidy handling.
	PloidyPolicy PloidyPolicy

	// SplitMultiallelic rewrites each multiallelic site as one biallelic
	// variant per alternate allele before encoding.
	SplitMultiallelic bool

	// EncodeWorkers > 1 runs probability encoding on a worker pool whose
	// results are re-joined in input order before writing. Reading and
	// writing stay single-threaded either way.
	EncodeWorkers int

	// ProgressEvery logs a progress line after every N written variants.
	// Zero disables progress logging.
	ProgressEvery int
}

func (c *Config) applyDefaults() {
	if c.Bits == 0 {
		c.Bits = 16
	}
	if c.IndexPath == "" && c.OutputPath != "" {
		c.IndexPath = c.OutputPath + ".bgi"
	}
	if c.EncodeWorkers < 1 {
		c.EncodeWorkers = 1
	}
}

func (c *Config) validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("no input path configured")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("no output path configured")
	}
	switch c.Bits {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth %d (want 8, 16, 24, or 32)", c.Bits)
	}
	if c.Compression > CompressionZStandard {
		return fmt.Errorf("unknown compression flag %d", c.Compression)
	}

	return nil
}
