package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carbocation/vcf2bgen"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the header, samples, and first variants of a BGEN file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect()
		},
	}

	cmd.Flags().String("bgen", "", "BGEN file to inspect (required)")
	cmd.Flags().Int("variants", 10, "Number of variants to print")
	cmd.Flags().Int("samples", 10, "Number of sample IDs to print")
	cmd.MarkFlagRequired("bgen")

	return cmd
}

func runInspect() error {
	bg, err := vcf2bgen.Open(viper.GetString("bgen"))
	if err != nil {
		return err
	}
	defer bg.Close()

	fmt.Printf("file: %s\n", bg.FilePath)
	fmt.Printf("variants: %d\n", bg.NVariants)
	fmt.Printf("samples: %d\n", bg.NSamples)
	fmt.Printf("layout: %s\n", bg.FlagLayout)
	fmt.Printf("compression: %s\n", bg.FlagCompression)

	if bg.FlagHasSampleIDs != 0 {
		samples, err := vcf2bgen.ReadSamples(bg)
		if err != nil {
			return err
		}
		max := viper.GetInt("samples")
		for i, s := range samples {
			if i >= max {
				fmt.Printf("... and %d more samples\n", len(samples)-i)
				break
			}
			fmt.Printf("sample %d: %s\n", i, s.SampleID)
		}
	}

	vr := bg.NewVariantReader()
	max := viper.GetInt("variants")
	for i := 0; i < max; i++ {
		v := vr.Read()
		if v == nil {
			break
		}
		fmt.Printf("variant %d: %s %s:%d alleles=%v\n",
			i, v.RSID, vcf2bgen.DisplayChromosome(v.Chromosome), v.Position, v.Alleles)
	}

	return vr.Error()
}
