// Package report renders tuning progress and results for people: styled
// console rows, terminal charts and PNG plots.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/rolltune/internal/experiment"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaa00"))
	panelStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// Console prints one styled line per snapshot.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Report(_ context.Context, s experiment.Snapshot) error {
	_, err := fmt.Fprintln(c.w, FormatSnapshot(s))
	return err
}

func FormatSnapshot(s experiment.Snapshot) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("[%3d]", s.Iteration)))
	field := func(label, value string) {
		b.WriteString(" ")
		b.WriteString(labelStyle.Render(label + "="))
		b.WriteString(valueStyle.Render(value))
	}
	field("Kp", fmt.Sprintf("%.6g", s.Gains.Kp))
	field("Ki", fmt.Sprintf("%.6g", s.Gains.Ki))
	field("Kd", fmt.Sprintf("%.6g", s.Gains.Kd))
	field("overshoot", fmt.Sprintf("%.2f%%", s.OvershootPercent))
	field("osc", fmt.Sprintf("%d", s.OscillationCount))
	field("sse", fmt.Sprintf("%.3f%%", s.SteadyStateErrorPercent))
	if s.Saturations > 0 {
		b.WriteString(" ")
		b.WriteString(warnStyle.Render(fmt.Sprintf("saturated×%d", s.Saturations)))
	}
	return b.String()
}

// Summary renders the outcome of a tuning run in a bordered panel.
func Summary(res experiment.Result, runErr error) string {
	lines := []string{
		headerStyle.Render("Tuning summary"),
		fmt.Sprintf("%s %s", labelStyle.Render("final gains:"), valueStyle.Render(res.Gains.String())),
		fmt.Sprintf("%s %d", labelStyle.Render("completed:  "), res.Completed),
		fmt.Sprintf("%s %v", labelStyle.Render("skipped:    "), res.Skipped),
		fmt.Sprintf("%s %d", labelStyle.Render("saturations:"), res.Saturations),
	}
	if runErr != nil {
		lines = append(lines, warnStyle.Render("stopped: "+runErr.Error()))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// MultiReporter fans a snapshot out to several reporters, stopping at the
// first error.
type MultiReporter []experiment.Reporter

func (m MultiReporter) Report(ctx context.Context, s experiment.Snapshot) error {
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
