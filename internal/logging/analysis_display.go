package logging

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/linuxmatters/leveller/internal/engine"
	"github.com/linuxmatters/leveller/internal/processor"
)

// NormToleranceLU is the acceptable deviation from the loudness target.
// ±0.5 LU is the usual compliance window.
const NormToleranceLU = 0.5

// DisplayComparison writes the before/after loudness table for one outcome.
func DisplayComparison(w io.Writer, o processor.Outcome, target processor.Target) {
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "ANALYSIS: %s\n", filepath.Base(o.Source))
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "Output:  %s\n", o.Destination)
	fmt.Fprintf(w, "Mode:    %s", o.Mode)
	if o.Fallback {
		fmt.Fprint(w, " (measurement unavailable)")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	before, after := o.Before, o.After
	table := NewMetricTable()
	table.AddRow("Integrated Loudness", []string{
		formatMetricLUFS(value(before, func(m *processor.Measurement) float64 { return m.InputI }), 1),
		formatMetricLUFS(value(after, func(m *processor.Measurement) float64 { return m.InputI }), 1),
		formatMetric(target.I, 1),
	}, "LUFS", interpretLoudness(after, target))
	table.AddRow("True Peak", []string{
		formatMetric(value(before, func(m *processor.Measurement) float64 { return m.InputTP }), 1),
		formatMetric(value(after, func(m *processor.Measurement) float64 { return m.InputTP }), 1),
		formatMetric(target.TP, 1),
	}, "dBTP", interpretPeak(after, target))
	table.AddMetricRow("Loudness Range",
		value(before, (*processor.Measurement).LRA),
		value(after, (*processor.Measurement).LRA),
		target.LRA, 1, "LU", "")
	table.AddMetricRow("Threshold",
		value(before, (*processor.Measurement).Thresh),
		value(after, (*processor.Measurement).Thresh),
		math.NaN(), 1, "LUFS", "")
	fmt.Fprint(w, table.String())

	if before != nil && after != nil {
		fmt.Fprintf(w, "\nGain applied: %s dB\n", formatMetricSigned(after.InputI-before.InputI, 1))
	}
	for _, warning := range o.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}

	if tips := GenerateRecordingTips(before, target); len(tips) > 0 {
		fmt.Fprintln(w, "\nRecording tips:")
		for _, tip := range tips {
			fmt.Fprintf(w, "  - %s\n", wrapText(tip.Message, 66, "    "))
		}
	}
	fmt.Fprintln(w)
}

func value(m *processor.Measurement, get func(*processor.Measurement) float64) float64 {
	if m == nil {
		return math.NaN()
	}
	return get(m)
}

func interpretLoudness(after *processor.Measurement, target processor.Target) string {
	if after == nil {
		return ""
	}
	diff := after.InputI - target.I
	switch {
	case math.Abs(diff) <= NormToleranceLU:
		return "on target"
	case diff < 0:
		return fmt.Sprintf("%.1f LU under target", -diff)
	default:
		return fmt.Sprintf("%.1f LU over target", diff)
	}
}

func interpretPeak(after *processor.Measurement, target processor.Target) string {
	if after == nil {
		return ""
	}
	if after.InputTP > target.TP+0.1 {
		return "exceeds ceiling"
	}
	return "within ceiling"
}

// DisplayFileInfo writes what --info reports for one file. Either source
// may be nil.
func DisplayFileInfo(w io.Writer, path string, info *processor.FileInfo, probe *engine.ProbeInfo) {
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "FILE: %s\n", filepath.Base(path))
	fmt.Fprintln(w, strings.Repeat("=", 70))

	switch {
	case probe != nil:
		fmt.Fprintf(w, "Format:      %s\n", probe.Format.FormatName)
		if d, err := parseSeconds(probe.Format.Duration); err == nil {
			fmt.Fprintf(w, "Duration:    %s\n", formatDurationHMS(d))
		}
		if s := probe.AudioStream(); s != nil {
			fmt.Fprintf(w, "Codec:       %s\n", s.CodecName)
			fmt.Fprintf(w, "Sample Rate: %s Hz\n", s.SampleRate)
			fmt.Fprintf(w, "Channels:    %s\n", channelName(s.Channels))
		} else {
			fmt.Fprintln(w, "No audio stream")
		}
		if probe.Format.BitRate != "" {
			fmt.Fprintf(w, "Bit Rate:    %s b/s\n", probe.Format.BitRate)
		}
	case info != nil:
		fmt.Fprintln(w, "Format:      wav")
		fmt.Fprintf(w, "Duration:    %s\n", formatDurationHMS(info.Duration.Seconds()))
		fmt.Fprintf(w, "Sample Rate: %d Hz\n", info.SampleRate)
		fmt.Fprintf(w, "Channels:    %s\n", channelName(info.Channels))
		fmt.Fprintf(w, "Bit Depth:   %d\n", info.BitDepth)
	}
	if info != nil {
		fmt.Fprintf(w, "Size:        %s\n", formatBytes(info.Size))
	}
	fmt.Fprintln(w)
}

func parseSeconds(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// channelName describes a channel count.
func channelName(n int) string {
	switch n {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%d channels", n)
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatDurationHMS formats duration as "Xh Ym Zs" or "Ym Zs" or "Z.Xs".
func formatDurationHMS(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}

	totalSeconds := int(seconds)
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	secs := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	}
	return fmt.Sprintf("%dm %ds", minutes, secs)
}
