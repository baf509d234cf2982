package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spektr-org/dashspec/logger"
	"github.com/spektr-org/dashspec/schema"
)

var (
	discoverName    string
	discoverVersion string
	discoverSample  int
	discoverOut     string
	discoverJSON    bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover <csv-file>",
	Short: "Infer a field schema from a CSV file",
	Long: `Samples a CSV file, infers a type for every column and prints the
result as a schema registry entry (TOML). With --json the column profiles
(nulls, unique values, samples) are printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

func init() {
	def := schema.DefaultDiscoverOptions()
	discoverCmd.Flags().StringVar(&discoverName, "name", def.Name, "schema name")
	discoverCmd.Flags().StringVar(&discoverVersion, "version", def.Version, "schema version")
	discoverCmd.Flags().IntVar(&discoverSample, "sample", def.SampleSize, "rows to inspect (0 = all)")
	discoverCmd.Flags().StringVarP(&discoverOut, "out", "o", "", "write to a file instead of stdout")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "print column profiles as JSON")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	opts := schema.DefaultDiscoverOptions()
	opts.Name = discoverName
	opts.Version = discoverVersion
	opts.SampleSize = discoverSample

	disc, err := schema.DiscoverFromCSV(data, opts)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	logger.Info("discovered %s: %d field(s) from %d sampled row(s)", disc.Schema.Key(), disc.Schema.Len(), disc.SampledRows)

	var out []byte
	if discoverJSON {
		out, err = json.MarshalIndent(disc, "", "  ")
	} else {
		out, err = schema.MarshalRegistry(disc.Schema)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	if discoverOut == "" {
		cmd.Print(string(out))
		if discoverJSON {
			cmd.Println()
		}
		return nil
	}
	if err := os.WriteFile(discoverOut, out, 0o644); err != nil {
		return err
	}
	logger.Info("schema written to %s", discoverOut)
	return nil
}
