package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spektr-org/dashspec"
	"github.com/spektr-org/dashspec/engine"
	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/logger"
)

var (
	runData     string
	runInputs   []string
	runJSON     bool
	runSlices   bool
	runRegistry []string
)

var runCmd = &cobra.Command{
	Use:   "run <spec-file>",
	Short: "Compile a dashboard document and execute it against data",
	Long: `Compiles the document, then executes every page against the data
source named in the [data] section of the config file (CSV by default).

Filter inputs are given as id=value. Values are read as JSON when they
parse, so lists and booleans work:

  dashspec run sales.yaml --data sales.csv \
      --input region='["north","south"]' --input refunded=false`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runData, "data", "d", "", "data file (CSV or SQLite database), overrides [data] path")
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "filter input id=value (repeatable)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full result as JSON")
	runCmd.Flags().BoolVar(&runSlices, "slices", true, "compute visualization data")
	runCmd.Flags().StringArrayVarP(&runRegistry, "registry", "r", nil, "schema registry file (repeatable)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	inputs, err := parseInputs(runInputs)
	if err != nil {
		return err
	}
	d, err := compileFile(cmd, args[0], runRegistry)
	if err != nil {
		return err
	}

	data := cfg.Data
	if runData != "" {
		data.Path = runData
	}
	ctx := cmd.Context()
	p, closeFn, err := openProvider(ctx, data, d.Schema())
	if err != nil {
		return err
	}
	defer closeFn()

	opts := []engine.Option{engine.WithWorkers(cfg.Engine.Workers)}
	if !runSlices {
		opts = append(opts, engine.WithoutSlices())
	}
	res, err := dashspec.Run(ctx, d, inputs, p, opts...)
	if err != nil {
		return err
	}
	for _, w := range res.Failed() {
		logger.Warn("%v", w.Error)
	}

	if runJSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}
	printResult(newPrinter(cmd.OutOrStdout()), d, res)
	return nil
}

// parseInputs turns id=value flags into filter inputs. A value that is
// valid JSON is decoded; anything else is kept as a string. "id=null"
// disables the filter.
func parseInputs(flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	inputs := make(map[string]any, len(flags))
	for _, f := range flags {
		id, raw, ok := strings.Cut(f, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid --input %q: want id=value", f)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		inputs[id] = v
	}
	return inputs, nil
}

func printResult(p *printer, d *ir.Dashboard, res *engine.Result) {
	p.title(fmt.Sprintf("%s (%s)", d.Title, res.Fingerprint))
	for i := range res.Pages {
		pr := &res.Pages[i]
		page, _ := d.Page(pr.ID)

		name := pr.ID
		if pr.Title != "" && pr.Title != pr.ID {
			name = fmt.Sprintf("%s: %s", pr.ID, pr.Title)
		}
		p.printf("\n%s %s\n", p.style(titleStyle, "▸"), name)
		if pr.Error != nil {
			p.printf("  %s %s\n", p.style(errStyle, "FAILED"), pr.Error.Error())
			continue
		}
		p.printf("  %s\n", p.style(mutedStyle, fmt.Sprintf("%s of %s rows", engine.FormatInt(pr.Rows), engine.FormatInt(pr.SourceRows))))

		for _, id := range metricOrder(page, pr) {
			text, ok := pr.Formatted[id]
			if !ok {
				text = pr.Metrics[id].String()
			}
			p.printf("  %-20s %s\n", id, text)
		}
		if n := len(pr.Visualizations); n > 0 {
			p.printf("  %s\n", p.style(mutedStyle, fmt.Sprintf("%d visualization(s) computed", n)))
		}
		for _, w := range pr.Warnings {
			p.printf("  %s %s\n", p.style(warnStyle, "warning:"), w.String())
		}
	}
}

// metricOrder lists metric ids in declaration order, falling back to
// sorted keys when the page is unknown.
func metricOrder(page *ir.Page, pr *engine.PageResult) []string {
	if page != nil {
		ids := make([]string, 0, len(page.Metrics))
		for _, m := range page.Metrics {
			ids = append(ids, m.ID)
		}
		return ids
	}
	ids := make([]string, 0, len(pr.Metrics))
	for id := range pr.Metrics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
