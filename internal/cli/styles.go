package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/leveller/internal/batch"
	"github.com/linuxmatters/leveller/internal/preset"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#2E86AB") // Leveller blue
	mutedColor   = lipgloss.Color("#888888") // Gray
	textColor    = lipgloss.Color("#FFFFFF") // White
	okColor      = lipgloss.Color("#00AA00")
	failColor    = lipgloss.Color("#A40000")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(failColor)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(okColor)

	// Key-value pair styles
	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)
)

// PrintVersion prints version information, with the engine version when known
func PrintVersion(w io.Writer, version, engineVersion string) {
	fmt.Fprintln(w, TitleStyle.Render("Leveller 🎚"))
	fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	if engineVersion != "" {
		fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("Engine: "), ValueStyle.Render(engineVersion))
	}
	fmt.Fprintln(w)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintPresets lists the preset catalog
func PrintPresets(w io.Writer) {
	fmt.Fprintln(w, TitleStyle.Render("Presets"))
	for _, p := range preset.All() {
		band := "full range"
		if p.HighPass != nil && p.LowPass != nil {
			band = fmt.Sprintf("%.0f-%.0f Hz", *p.HighPass, *p.LowPass)
		}
		fmt.Fprintf(w, "  %s %s\n", ValueStyle.Render(fmt.Sprintf("%-10s", p.Name)), p.Description)
		fmt.Fprintf(w, "             %s\n", KeyStyle.Render(fmt.Sprintf(
			"%.1f LUFS | %.1f dBTP | LRA %.0f LU | %s", p.TargetLUFS, p.TargetPeak, p.TargetLRA, band)))
	}
	fmt.Fprintln(w)
}

// PrintSummary prints the batch counts and the reason for every file that
// did not succeed
func PrintSummary(w io.Writer, result *batch.Result) {
	fmt.Fprintln(w)
	counts := fmt.Sprintf("%d succeeded, %d failed, %d cancelled",
		result.Succeeded, result.Failed, result.Cancelled)
	if result.OK() {
		fmt.Fprintln(w, SuccessStyle.Render("✓ "+counts))
		return
	}
	fmt.Fprintln(w, ErrorStyle.Render("✗ "+counts))
	for _, o := range result.Failures() {
		fmt.Fprintf(w, "  %s %s\n", KeyStyle.Render(filepath.Base(o.Source)+":"), o.Message())
	}
}
