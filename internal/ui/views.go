package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/leveller/internal/processor"
)

var (
	accentColor = lipgloss.Color("#2E86AB")
	okColor     = lipgloss.Color("#00AA00")
	warnColor   = lipgloss.Color("#FFA500")
	failColor   = lipgloss.Color("#A40000")
	mutedColor  = lipgloss.Color("#888888")
)

// renderProcessingView renders the main processing view
func renderProcessingView(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")

	b.WriteString(renderFileQueue(m))
	b.WriteString("\n")

	b.WriteString(renderOverallProgress(m))

	return b.String()
}

// renderHeader renders the application header
func renderHeader(m Model) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(accentColor).
		Render("Leveller - Loudness Normaliser")

	subtitle := lipgloss.NewStyle().
		Foreground(mutedColor).
		Italic(true).
		Render(fmt.Sprintf("%d file(s) | preset %s | %.1f LUFS, %.1f dBTP",
			len(m.Files), m.PresetName, m.Target.I, m.Target.TP))

	return title + "\n" + subtitle
}

// renderFileQueue renders the list of files with their status
func renderFileQueue(m Model) string {
	var b strings.Builder
	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file, m.spinner.View()))
		b.WriteString("\n")
	}
	return b.String()
}

func icon(color lipgloss.Color, s string) string {
	return lipgloss.NewStyle().Foreground(color).Render(s)
}

// renderFileEntry renders a single file entry in the queue
func renderFileEntry(file FileProgress, spin string) string {
	fileName := filepath.Base(file.InputPath)

	switch file.Status {
	case StatusComplete:
		return fmt.Sprintf(" %s %s\n   %s", icon(okColor, "✓"), fileName, outcomeSummary(file.Outcome))

	case StatusMeasuring, StatusNormalising, StatusVerifying:
		elapsed := time.Since(file.StartTime).Round(100 * time.Millisecond)
		pass := file.PassName
		if pass == "" {
			pass = "Starting"
		}
		return fmt.Sprintf(" %s %s\n   Pass %d/3: %s (%s)", spin, fileName, max(file.CurrentPass, 1), pass, elapsed)

	case StatusError:
		msg := ""
		if file.Outcome != nil {
			msg = file.Outcome.Message()
		}
		return fmt.Sprintf(" %s %s\n   Error: %s", icon(failColor, "✗"), fileName, msg)

	case StatusCancelled:
		return fmt.Sprintf(" %s %s\n   Cancelled", icon(warnColor, "⊘"), fileName)

	default:
		return fmt.Sprintf(" %s %s\n   Queued...", icon(mutedColor, "○"), fileName)
	}
}

// outcomeSummary is the one-line result of a successful file
func outcomeSummary(o *processor.Outcome) string {
	if o == nil {
		return ""
	}
	parts := []string{string(o.Mode)}
	switch {
	case o.Before != nil && o.After != nil:
		parts = append(parts, fmt.Sprintf("%.1f → %.1f LUFS | Δ %+.1f dB",
			o.Before.InputI, o.After.InputI, o.After.InputI-o.Before.InputI))
	case o.Before != nil:
		parts = append(parts, fmt.Sprintf("input %.1f LUFS", o.Before.InputI))
	}
	if len(o.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("%d warning(s)", len(o.Warnings)))
	}
	return strings.Join(parts, " | ")
}

// renderOverallProgress renders the overall progress footer
func renderOverallProgress(m Model) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mutedColor).
		Padding(0, 1).
		Width(60)

	var pct float64
	if len(m.Files) > 0 {
		pct = float64(m.Finished()) / float64(len(m.Files))
	}

	status := fmt.Sprintf("%d/%d done (%d failed)", m.Finished(), len(m.Files), m.Failed)
	if m.Cancelling {
		status += " | cancelling, waiting for running files..."
	} else {
		status += " | q to cancel"
	}

	return box.Render(m.progress.ViewAs(pct) + "\n" + status)
}

// renderCompletionSummary renders the final completion summary
func renderCompletionSummary(m Model) string {
	var b strings.Builder

	color, heading := okColor, "✨ Processing Complete!"
	switch {
	case m.Err != nil:
		color, heading = failColor, "Processing Failed"
	case m.Failed > 0 || m.Cancelled > 0:
		color, heading = warnColor, "Processing Finished With Problems"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(color).Render(heading))
	b.WriteString("\n\n")

	if m.Err != nil {
		b.WriteString(fmt.Sprintf(" %v\n", m.Err))
	}
	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file, ""))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 60))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%d succeeded, %d failed, %d cancelled in %s\n",
		m.Completed, m.Failed, m.Cancelled, time.Since(m.StartTime).Round(time.Second)))

	return b.String()
}
