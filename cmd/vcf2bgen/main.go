// Command vcf2bgen converts VCF variant call data into the BGEN binary
// genotype-probability format, writing a .bgi SQLite index alongside the
// output for random access.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "vcf2bgen",
		Short:         "Convert VCF variant calls to BGEN genotype probabilities",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, verbose)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newConvertCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newInspectCmd())

	return cmd
}

// initConfig wires viper to an optional ~/.vcf2bgen.yaml and to the
// command's flags, so persistent settings and command-line overrides share
// one lookup path.
func initConfig(cmd *cobra.Command, verbose bool) error {
	viper.SetConfigName(".vcf2bgen")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	return initLogger(verbose)
}

var logger = zap.NewNop()

func initLogger(verbose bool) error {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	logger = l

	return nil
}
