package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spektr-org/dashspec/config"
	"github.com/spektr-org/dashspec/logger"
	"github.com/spektr-org/dashspec/metrics"
	"github.com/spektr-org/dashspec/metrics/prom"
	"github.com/spektr-org/dashspec/schema"
)

// ============================================================================
// DASHSPEC CLI: compile and execute dashboard specifications
// ============================================================================

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	verbose    bool

	// cfg is loaded before every command runs.
	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "dashspec",
	Short: "Compile and run declarative dashboard specifications",
	Long: `dashspec validates dashboard documents against their data schema,
compiles them into an intermediate representation and executes it
against CSV files, SQLite databases or Postgres tables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(*cobra.Command, []string) error {
		return metrics.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $"+config.EnvVar+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug and info logs")
}

// setup loads the configuration and wires logging and metrics from it.
func setup(*cobra.Command, []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = c
	logger.SetVerbose(verbose || cfg.Log.Verbose)

	switch cfg.Metrics.Backend {
	case config.BackendPrometheus:
		b, err := prom.NewBackend(cfg.Metrics.Textfile)
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
	default:
		metrics.SetBackend(nil)
	}
	return nil
}

// registry loads the configured schema registry files, or returns nil when
// none are configured. extra paths from flags are appended.
func registry(extra []string) (*schema.Registry, error) {
	paths := append(append([]string{}, cfg.Registry.Paths...), extra...)
	if len(paths) == 0 {
		return nil, nil
	}
	reg, err := schema.LoadRegistry(paths...)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	logger.Debug("registry: %d schema(s) from %d file(s)", reg.Len(), len(paths))
	return reg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
