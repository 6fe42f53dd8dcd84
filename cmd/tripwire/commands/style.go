package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/moolen/tripwire/internal/anomaly"
	"github.com/moolen/tripwire/internal/incident"
	"golang.org/x/term"
)

var (
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	healthyStyle = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	metricStyle  = lipgloss.NewStyle().Foreground(colorWarning)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
)

// printer writes command output, styled when stdout is a terminal.
type printer struct {
	w      io.Writer
	styled bool
}

func newPrinter() *printer {
	return &printer{w: os.Stdout, styled: term.IsTerminal(int(os.Stdout.Fd()))}
}

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p *printer) println(s string) {
	fmt.Fprintln(p.w, s)
}

// anomalies prints one "metric: value (threshold: t)" line per record, or
// the healthy message.
func (p *printer) anomalies(records []anomaly.Record) {
	if len(records) == 0 {
		p.println(p.render(healthyStyle, "No anomalies detected. System healthy."))
		return
	}
	p.println(p.render(titleStyle, fmt.Sprintf("Detected %d anomalies:", len(records))))
	for _, r := range records {
		p.println("  " + formatRecord(r, p))
	}
}

func formatRecord(r anomaly.Record, p *printer) string {
	return fmt.Sprintf("%s: %s (threshold: %s)",
		p.render(metricStyle, r.MetricName),
		formatFloat(r.Value),
		formatFloat(r.Threshold))
}

// formatFloat prints up to four decimals without trailing zeros.
func formatFloat(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func (p *printer) incidentLine(inc *incident.Incident) {
	p.println(fmt.Sprintf("%s  %s  %d anomalies  %s",
		inc.ID,
		inc.TriggeredAt.UTC().Format(time.RFC3339),
		len(inc.Anomalies),
		p.render(mutedStyle, strings.Join(inc.Metrics(), ", "))))
}
