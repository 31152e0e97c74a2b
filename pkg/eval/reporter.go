package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorPass  = lipgloss.Color("#2CD7C7")
	colorWarn  = lipgloss.Color("#F4D03F")
	colorFail  = lipgloss.Color("#E74C3C")
	colorMuted = lipgloss.Color("#5F7A83")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPass)
	passStyle  = lipgloss.NewStyle().Foreground(colorPass)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle  = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

// Reporter formats and outputs evaluation results.
type Reporter struct {
	writer io.Writer
	color  bool
}

// NewReporter creates a new reporter that writes to the given writer.
// Output is coloured only when w is a terminal.
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stdout
	}
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Reporter{writer: w, color: color}
}

func (r *Reporter) paint(style lipgloss.Style, s string) string {
	if !r.color {
		return s
	}
	return style.Render(s)
}

func (r *Reporter) statusStyle(s CaseStatus) lipgloss.Style {
	switch s {
	case StatusPass:
		return passStyle
	case StatusKilled, StatusNotStarted:
		return warnStyle
	default:
		return failStyle
	}
}

// PrintSummary prints a human-readable summary of results.
func (r *Reporter) PrintSummary(result *EvalResult) {
	w := r.writer

	fmt.Fprintln(w)
	fmt.Fprintln(w, r.paint(titleStyle, "Pattern Match Evaluation"))
	fmt.Fprintln(w, r.paint(mutedStyle, strings.Repeat("─", 48)))
	fmt.Fprintf(w, "Suite:    %s\n", result.SuiteName)
	fmt.Fprintf(w, "Run:      %s\n", result.RunID)
	fmt.Fprintf(w, "Time:     %s\n", result.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Duration: %v\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintln(w)

	passRate := 0.0
	if result.TotalTests > 0 {
		passRate = float64(result.PassedTests) / float64(result.TotalTests)
	}
	style := passStyle
	if !result.Passed() {
		style = warnStyle
	}
	if passRate < 0.5 {
		style = failStyle
	}
	fmt.Fprintf(w, "Tests: %s %s\n",
		r.paint(style, fmt.Sprintf("%d/%d passed (%.1f%%)", result.PassedTests, result.TotalTests, passRate*100)),
		r.progressBar(passRate, 20))
	fmt.Fprintln(w)

	r.printCountRow(w, StatusFail, result.FailedTests)
	r.printCountRow(w, StatusKilled, result.Killed)
	r.printCountRow(w, StatusNotStarted, result.NotStarted)
	r.printCountRow(w, StatusError, result.Errors)
	fmt.Fprintf(w, "  %-12s %d\n", "verified", result.Verified)
	if result.Cache != nil {
		fmt.Fprintf(w, "  %-12s %s\n", "cache", result.Cache)
	}
	fmt.Fprintln(w)
}

func (r *Reporter) printCountRow(w io.Writer, s CaseStatus, n int) {
	text := fmt.Sprintf("%d", n)
	if n > 0 {
		text = r.paint(r.statusStyle(s), text)
	}
	fmt.Fprintf(w, "  %-12s %s\n", s, text)
}

// progressBar creates a visual progress bar.
func (r *Reporter) progressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + r.paint(passStyle, strings.Repeat("█", filled)) + strings.Repeat("░", width-filled) + "]"
}

// PrintDetails prints detailed per-test results.
func (r *Reporter) PrintDetails(result *EvalResult) {
	w := r.writer

	fmt.Fprintln(w)
	fmt.Fprintln(w, r.paint(titleStyle, "Per-Test Results"))
	fmt.Fprintln(w, r.paint(mutedStyle, strings.Repeat("─", 48)))

	for i, tr := range result.Results {
		tag := r.paint(r.statusStyle(tr.Status), fmt.Sprintf("%-11s", strings.ToUpper(string(tr.Status))))
		fmt.Fprintf(w, "%s Test %d: %s\n", tag, i+1, tr.TestCase.Name)
		fmt.Fprintf(w, "   Pattern: %q\n", truncate(oneLine(tr.TestCase.Pattern), 60))
		fmt.Fprintf(w, "   Outcome: %s | Rows: %d | Duration: %v\n",
			orDash(tr.MatchStatus), len(tr.Rows), tr.Duration.Round(time.Microsecond))
		fmt.Fprintf(w, "   Assignments: %d | Prunes: %d | Backjumps: %d\n",
			tr.Stats.Assignments, tr.Stats.Prunes, tr.Stats.Backjumps)
		if tr.Error != "" {
			fmt.Fprintf(w, "   %s %s\n", r.paint(mutedStyle, "Error:"), tr.Error)
		}
		if tr.Status == StatusFail {
			if tr.TestCase.Expect != nil {
				fmt.Fprintf(w, "   Expected: %s\n", formatRows(tr.TestCase.Expect, 5))
			}
			if tr.Reference != nil {
				fmt.Fprintf(w, "   Reference: %s\n", formatRows(tr.Reference, 5))
			}
			fmt.Fprintf(w, "   Got:      %s\n", formatRows(tr.Rows, 5))
		}
		fmt.Fprintln(w)
	}
}

// PrintJSON outputs results as JSON.
func (r *Reporter) PrintJSON(result *EvalResult) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// SaveJSON saves results to a JSON file.
func (r *Reporter) SaveJSON(result *EvalResult, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// PrintCompact prints a one-line summary.
func (r *Reporter) PrintCompact(result *EvalResult) {
	status := r.paint(passStyle, "PASS")
	if !result.Passed() {
		status = r.paint(failStyle, "FAIL")
	}

	fmt.Fprintf(r.writer, "[%s] %d/%d tests | fail=%d killed=%d not_started=%d error=%d verified=%d | %v\n",
		status,
		result.PassedTests, result.TotalTests,
		result.FailedTests,
		result.Killed,
		result.NotStarted,
		result.Errors,
		result.Verified,
		result.Duration.Round(time.Millisecond),
	)
}

func formatRows(rows [][]string, limit int) string {
	parts := make([]string, 0, min(len(rows), limit))
	for i, row := range rows {
		if i == limit {
			parts = append(parts, fmt.Sprintf("... (%d more)", len(rows)-limit))
			break
		}
		parts = append(parts, "("+strings.Join(row, ",")+")")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
