package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/spektr-org/dashspec/rules"
)

// ============================================================================
// STYLES: terminal colouring of CLI output
// ============================================================================

var (
	critStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F38BA8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
)

// printer writes CLI output, colouring it only when w is a terminal.
type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer) *printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &printer{w: w, color: color}
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) title(text string) {
	p.printf("%s\n", p.style(titleStyle, text))
}

func severityStyle(s rules.Severity) lipgloss.Style {
	switch s {
	case rules.SeverityCritical:
		return critStyle
	case rules.SeverityError:
		return errStyle
	case rules.SeverityWarning:
		return warnStyle
	}
	return infoStyle
}

// violation prints one finding as
//
//	SEVERITY CODE path: message
//	  repair: hint
func (p *printer) violation(v rules.Violation) {
	where := v.Path.String()
	if v.Line > 0 {
		where = fmt.Sprintf("%s (line %d)", where, v.Line)
	}
	p.printf("%s %s %s: %s\n", p.style(severityStyle(v.Severity), v.Severity.String()), v.Code, where, v.Message)
	if v.Repair != "" {
		p.printf("  %s %s\n", p.style(mutedStyle, "repair:"), v.Repair)
	}
}

// tally prints "N critical, N error(s), ..." for the severities present.
func (p *printer) tally(vs []rules.Violation) {
	if len(vs) == 0 {
		p.printf("%s\n", p.style(okStyle, "ok: no findings"))
		return
	}
	counts := rules.Count(vs)
	sevs := make([]rules.Severity, 0, len(counts))
	for s := range counts {
		sevs = append(sevs, s)
	}
	sort.Slice(sevs, func(i, j int) bool { return sevs[i] > sevs[j] })

	line := ""
	for i, s := range sevs {
		if i > 0 {
			line += ", "
		}
		line += fmt.Sprintf("%d %s", counts[s], s)
	}
	st := okStyle
	if rules.HasBlocking(vs) {
		st = errStyle
	}
	p.printf("%s\n", p.style(st, line))
}
