package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/spektr-org/dashspec"
	"github.com/spektr-org/dashspec/logger"
	"github.com/spektr-org/dashspec/rules"
	"github.com/spektr-org/dashspec/schema"
	"github.com/spektr-org/dashspec/spec"
)

var (
	validateJSON     bool
	validateWatch    bool
	validateRegistry []string
)

var validateCmd = &cobra.Command{
	Use:   "validate <spec-file>",
	Short: "Check a dashboard document and report violations",
	Long: `Parses and validates a dashboard document against its schema.
Every finding is printed with its severity, code, location and a repair hint.
Exits non-zero when an ERROR or CRITICAL finding is present.

With --watch the file is re-validated whenever it changes, until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "output findings as JSON")
	validateCmd.Flags().BoolVarP(&validateWatch, "watch", "w", false, "re-validate when the file changes")
	validateCmd.Flags().StringArrayVarP(&validateRegistry, "registry", "r", nil, "schema registry file (repeatable)")
	rootCmd.AddCommand(validateCmd)
}

// validateReport is the JSON form of one validation pass.
type validateReport struct {
	File       string            `json:"file"`
	Valid      bool              `json:"valid"`
	ParseError string            `json:"parseError,omitempty"`
	Violations []rules.Violation `json:"violations"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	reg, err := registry(validateRegistry)
	if err != nil {
		return err
	}
	path := args[0]
	if !validateWatch {
		return checkFile(cmd, path, reg)
	}
	return watchFile(cmd.Context(), path, func() {
		if err := checkFile(cmd, path, reg); err != nil && !errors.Is(err, dashspec.ErrInvalidSpec) {
			logger.Error("%v", err)
		}
	})
}

// checkFile validates one file and prints the report. It returns
// dashspec.ErrInvalidSpec when the document has blocking findings.
func checkFile(cmd *cobra.Command, path string, reg *schema.Registry) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rep := validateReport{File: path, Violations: []rules.Violation{}}

	_, vs, err := dashspec.Compile(text, reg)
	var pe *spec.ParseError
	switch {
	case errors.As(err, &pe):
		rep.ParseError = pe.Error()
	case err != nil && !errors.Is(err, dashspec.ErrInvalidSpec):
		// Build failures after a clean validation are reported like
		// parse failures; the document cannot be compiled either way.
		rep.ParseError = err.Error()
	}
	if vs != nil {
		rep.Violations = vs
	}
	rep.Valid = err == nil

	if validateJSON {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
	} else {
		printReport(newPrinter(cmd.OutOrStdout()), rep)
	}

	if !rep.Valid {
		return fmt.Errorf("%s: %w", path, dashspec.ErrInvalidSpec)
	}
	return nil
}

func printReport(p *printer, rep validateReport) {
	p.title(rep.File)
	if rep.ParseError != "" {
		p.printf("%s %s\n", p.style(critStyle, "CRITICAL"), rep.ParseError)
		return
	}
	for _, v := range rep.Violations {
		p.violation(v)
	}
	p.tally(rep.Violations)
}

// watchFile calls check once, then again after every change to path, until
// ctx is done. Editors often replace files on save, so the directory is
// watched rather than the file.
func watchFile(ctx context.Context, path string, check func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	logger.Info("watching %s", path)
	check()

	const settle = 100 * time.Millisecond
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			pending = time.After(settle)
		case <-pending:
			pending = nil
			check()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch: %v", err)
		}
	}
}
