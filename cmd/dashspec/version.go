package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/spektr-org/dashspec"
	"github.com/spektr-org/dashspec/engine"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("dashspec version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Exit codes.
const (
	exitFailure     = 1
	exitInvalidSpec = 2
	exitUnavailable = 3
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, dashspec.ErrInvalidSpec):
		return exitInvalidSpec
	case errors.Is(err, engine.ErrProviderUnavailable):
		return exitUnavailable
	}
	return exitFailure
}
