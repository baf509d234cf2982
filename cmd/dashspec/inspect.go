package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spektr-org/dashspec/engine"
	"github.com/spektr-org/dashspec/helpers"
	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/schema"
)

var (
	inspectColumn string
	inspectHead   int
	inspectJSON   bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <csv-file>",
	Short: "Show rows, columns, missing values and a sample of a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectColumn, "column", "c", "", "describe one column in detail")
	inspectCmd.Flags().IntVarP(&inspectHead, "head", "n", 5, "sample rows to show")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(inspectCmd)
}

// columnInfo describes one column of an inspected dataset.
type columnInfo struct {
	Field  string           `json:"field"`
	Type   schema.FieldType `json:"type"`
	Nulls  int              `json:"nulls"`
	Unique int              `json:"unique"`
	Min    *engine.Number   `json:"min,omitempty"`
	Max    *engine.Number   `json:"max,omitempty"`
	Mean   *engine.Number   `json:"mean,omitempty"`
	Top    []string         `json:"top,omitempty"`
}

// datasetInfo is the inspect output.
type datasetInfo struct {
	File    string       `json:"file"`
	Rows    int          `json:"rows"`
	Columns []columnInfo `json:"columns"`
	Head    [][]any      `json:"head,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	view, fs, err := helpers.ParseCSVAuto(raw)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	info := datasetInfo{File: args[0], Rows: view.Len()}
	for _, f := range fs.Fields() {
		if inspectColumn != "" && f.Name != inspectColumn {
			continue
		}
		info.Columns = append(info.Columns, describeColumn(view, f, inspectColumn != ""))
	}
	if inspectColumn != "" && len(info.Columns) == 0 {
		return fmt.Errorf("inspect: no column %q (have %v)", inspectColumn, fs.FieldNames())
	}
	for i := 0; i < view.Len() && i < inspectHead; i++ {
		row := make([]any, 0, len(view.Fields()))
		for _, f := range view.Fields() {
			row = append(row, view.Value(i, f))
		}
		info.Head = append(info.Head, row)
	}

	if inspectJSON {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal dataset info: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printDataset(newPrinter(cmd.OutOrStdout()), view, info)
	return nil
}

func describeColumn(ds engine.Dataset, f schema.Field, detail bool) columnInfo {
	c := columnInfo{Field: f.Name, Type: f.Type}
	for i := 0; i < ds.Len(); i++ {
		if ds.Value(i, f.Name) == nil {
			c.Nulls++
		}
	}
	uniq := engine.UniqueValues(ds, f.Name)
	c.Unique = len(uniq)
	if !detail {
		return c
	}
	if f.Type.IsNumeric() {
		for agg, dst := range map[ir.Aggregation]**engine.Number{
			ir.AggMin:  &c.Min,
			ir.AggMax:  &c.Max,
			ir.AggMean: &c.Mean,
		} {
			if n, err := engine.Aggregate(ds, f.Name, agg); err == nil {
				*dst = &n
			}
		}
		return c
	}
	groups, err := engine.GroupAndAggregate(ds, []string{f.Name}, "", ir.AggCount, "value_desc", 5)
	if err == nil {
		for _, g := range groups {
			c.Top = append(c.Top, fmt.Sprintf("%s (%s)", g.Label, g.Value))
		}
	}
	return c
}

func printDataset(p *printer, view engine.Dataset, info datasetInfo) {
	p.title(info.File)
	p.printf("Rows:    %s\nColumns: %d\n\n", engine.FormatInt(info.Rows), len(view.Fields()))

	p.printf("%-24s %-10s %8s %8s\n", "COLUMN", "TYPE", "NULLS", "UNIQUE")
	for _, c := range info.Columns {
		p.printf("%-24s %-10s %8d %8d\n", c.Field, c.Type, c.Nulls, c.Unique)
		if c.Min != nil {
			p.printf("  min %s  max %s  mean %s\n", c.Min, c.Max, c.Mean)
		}
		for _, t := range c.Top {
			p.printf("  %s\n", t)
		}
	}

	if len(info.Head) > 0 {
		p.printf("\n%s\n", p.style(mutedStyle, fmt.Sprintf("first %d row(s): %v", len(info.Head), view.Fields())))
		for _, row := range info.Head {
			p.printf("  %v\n", row)
		}
	}
}
