// Package dashspec compiles declarative dashboard documents and executes
// them against tabular data.
//
// Usage:
//
//	import "github.com/spektr-org/dashspec"
//
//	d, findings, err := dashspec.Compile(text, registry)
//	if err != nil {
//	    // errors.Is(err, dashspec.ErrInvalidSpec): findings holds the reasons
//	}
//	res, err := dashspec.Run(ctx, d, map[string]any{"region": "north"}, provider)
//
// Compile runs parse → validate → build. Validation findings of severity
// INFO and WARNING are returned alongside the dashboard; any ERROR or
// CRITICAL finding stops compilation. Run executes the compiled dashboard
// page by page; a failing page is marked in the result, other pages still
// compute.
package dashspec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spektr-org/dashspec/engine"
	"github.com/spektr-org/dashspec/ir"
	"github.com/spektr-org/dashspec/logger"
	"github.com/spektr-org/dashspec/metrics"
	"github.com/spektr-org/dashspec/rules"
	"github.com/spektr-org/dashspec/schema"
	"github.com/spektr-org/dashspec/spec"
)

// ErrInvalidSpec is returned by Compile when validation found blocking
// violations.
var ErrInvalidSpec = errors.New("dashspec: invalid dashboard specification")

// Compile parses, validates and builds a dashboard document. reg may be nil
// when the document declares its schema inline.
//
// The returned violations are always the full validation report, also when
// err is ErrInvalidSpec. A *spec.ParseError is returned unwrapped.
func Compile(text []byte, reg *schema.Registry) (*ir.Dashboard, []rules.Violation, error) {
	start := time.Now()
	doc, err := spec.Parse(text)
	metrics.RecordStep("", "parse", err, time.Since(start))
	if err != nil {
		return nil, nil, err
	}
	id, _ := doc.Root().Get("dashboard").Get("id").Text()

	start = time.Now()
	vs := rules.Validate(doc, reg)
	for _, v := range vs {
		metrics.RecordViolation(string(v.Code), v.Severity.String())
	}
	if rules.HasBlocking(vs) {
		n := len(rules.AtLeast(vs, rules.SeverityError))
		err := fmt.Errorf("%w: %d blocking violation(s)", ErrInvalidSpec, n)
		metrics.RecordStep(id, "validate", err, time.Since(start))
		return nil, vs, err
	}
	metrics.RecordStep(id, "validate", nil, time.Since(start))
	if len(vs) > 0 {
		logger.Debug("dashspec: %s: %d non-blocking finding(s)", id, len(vs))
	}

	start = time.Now()
	d, err := ir.Build(doc, reg)
	metrics.RecordStep(id, "build", err, time.Since(start))
	if err != nil {
		return nil, vs, err
	}
	return d, vs, nil
}

// Run executes a compiled dashboard. It is engine.Execute.
func Run(ctx context.Context, d *ir.Dashboard, inputs map[string]any, p engine.Provider, opts ...engine.Option) (*engine.Result, error) {
	return engine.Execute(ctx, d, inputs, p, opts...)
}
