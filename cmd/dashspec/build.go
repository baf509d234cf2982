package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spektr-org/dashspec"
	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/logger"
)

var (
	buildOut      string
	buildRegistry []string
)

var buildCmd = &cobra.Command{
	Use:   "build <spec-file>",
	Short: "Compile a dashboard document and print its IR as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "write the IR to a file instead of stdout")
	buildCmd.Flags().StringArrayVarP(&buildRegistry, "registry", "r", nil, "schema registry file (repeatable)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	d, err := compileFile(cmd, args[0], buildRegistry)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal IR: %w", err)
	}
	if buildOut == "" {
		cmd.Println(string(data))
		return nil
	}
	if err := os.WriteFile(buildOut, append(data, '\n'), 0o644); err != nil {
		return err
	}
	logger.Info("IR of %s (fingerprint %s) written to %s", d.ID, d.FingerprintHex(), buildOut)
	return nil
}

// compileFile compiles a spec file. Blocking findings are printed to
// stderr before the error is returned; others are logged.
func compileFile(cmd *cobra.Command, path string, regPaths []string) (*ir.Dashboard, error) {
	reg, err := registry(regPaths)
	if err != nil {
		return nil, err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, vs, err := dashspec.Compile(text, reg)
	if err != nil {
		if len(vs) > 0 {
			p := newPrinter(cmd.ErrOrStderr())
			for _, v := range vs {
				p.violation(v)
			}
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, v := range vs {
		logger.Warn("%s", v)
	}
	return d, nil
}
