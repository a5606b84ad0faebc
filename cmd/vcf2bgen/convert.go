package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carbocation/vcf2bgen"
)

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a VCF file to BGEN with a .bgi index",
		Long: `Convert streams a VCF file (plain or gzipped; "-" for stdin) into a
BGEN v1.2 file, quantizing per-sample genotype probabilities at the chosen
bit depth and writing a SQLite .bgi index keyed by chromosome and position.`,
		Example: `  vcf2bgen convert -i calls.vcf.gz -o calls.bgen
  vcf2bgen convert -i - -o calls.bgen --bits 8 --compression zstd
  vcf2bgen convert -i calls.vcf -o calls.bgen --split-multiallelic`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert()
		},
	}

	fl := cmd.Flags()
	fl.StringP("input", "i", "", "Input VCF path, or - for stdin (required)")
	fl.StringP("output", "o", "", "Output BGEN path (required)")
	fl.String("index", "", "Output index path (default: <output>.bgi)")
	fl.Int("bits", 16, "Probability bit depth: 8, 16, 24, or 32")
	fl.String("compression", "zlib", "Variant block compression: none, zlib, or zstd")
	fl.String("ploidy", "fixed-diploid", "Ploidy policy: fixed-diploid or record-declared")
	fl.Bool("split-multiallelic", false, "Write one biallelic variant per alternate allele")
	fl.Int("encode-workers", 1, "Parallel probability-encoding workers")
	fl.Int("progress-every", 100000, "Log progress every N variants (0 disables)")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")

	return cmd
}

func runConvert() error {
	compression, err := vcf2bgen.ParseCompression(viper.GetString("compression"))
	if err != nil {
		return err
	}
	ploidy, err := vcf2bgen.ParsePloidyPolicy(viper.GetString("ploidy"))
	if err != nil {
		return err
	}

	bits := viper.GetInt("bits")
	if bits < 0 || bits > 32 {
		return fmt.Errorf("unsupported bit depth %d (want 8, 16, 24, or 32)", bits)
	}

	cfg := vcf2bgen.Config{
		InputPath:         viper.GetString("input"),
		OutputPath:        viper.GetString("output"),
		IndexPath:         viper.GetString("index"),
		Bits:              uint8(bits),
		Compression:       compression,
		PloidyPolicy:      ploidy,
		SplitMultiallelic: viper.GetBool("split-multiallelic"),
		EncodeWorkers:     viper.GetInt("encode-workers"),
		ProgressEvery:     viper.GetInt("progress-every"),
	}

	pipeline, err := vcf2bgen.NewPipeline(cfg)
	if err != nil {
		return err
	}
	pipeline.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return pipeline.Run(ctx)
}
