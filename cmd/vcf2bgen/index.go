package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/carbocation/vcf2bgen"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the .bgi index for an existing BGEN file",
		Long: `Index streams the variant blocks of an existing BGEN file and writes a
fresh SQLite .bgi index for it, replacing any stale index.`,
		Example: `  vcf2bgen index --bgen calls.bgen
  vcf2bgen index --bgen calls.bgen --bgi /elsewhere/calls.bgen.bgi`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex()
		},
	}

	cmd.Flags().String("bgen", "", "BGEN file to index (required)")
	cmd.Flags().String("bgi", "", "Index path to write (default: <bgen>.bgi)")
	cmd.MarkFlagRequired("bgen")

	return cmd
}

func runIndex() error {
	bgenPath := viper.GetString("bgen")
	indexPath := viper.GetString("bgi")
	if indexPath == "" {
		indexPath = bgenPath + ".bgi"
	}

	bg, err := vcf2bgen.Open(bgenPath)
	if err != nil {
		return err
	}
	defer bg.Close()

	builder, err := vcf2bgen.NewVariantIndexBuilder(indexPath, bgenPath)
	if err != nil {
		return err
	}

	vr := bg.NewVariantReader()
	offset := int64(bg.VariantsStart)
	for {
		v := vr.Read()
		if v == nil {
			break
		}

		next := vr.Offset()
		entry := vcf2bgen.BgenOffsetEntry{
			Chromosome:        v.Chromosome,
			Position:          v.Position,
			RSID:              v.RSID,
			NAlleles:          v.NAlleles,
			FileStartPosition: offset,
			SizeInBytes:       next - offset,
		}
		if len(v.Alleles) > 0 {
			entry.Allele1 = v.Alleles[0]
		}
		if len(v.Alleles) > 1 {
			entry.Allele2 = joinAlleles(v.Alleles[1:])
		}

		if err := builder.Add(entry); err != nil {
			builder.Abort()
			return err
		}
		offset = next
	}
	if err := vr.Error(); err != nil {
		builder.Abort()
		return err
	}

	if err := builder.Close(); err != nil {
		return err
	}

	logger.Info("index rebuilt",
		zap.Int64("variants", builder.NEntries()),
		zap.String("bgen", bgenPath),
		zap.String("bgi", indexPath))

	return nil
}

func joinAlleles(alleles []vcf2bgen.Allele) vcf2bgen.Allele {
	out := alleles[0]
	for _, a := range alleles[1:] {
		out += "," + a
	}
	return out
}
