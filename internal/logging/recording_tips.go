package logging

import (
	"fmt"
	"sort"
	"strings"

	"github.com/linuxmatters/leveller/internal/processor"
)

// RecordingTip represents a single piece of actionable recording advice
// derived from loudness measurements.
type RecordingTip struct {
	Priority int    // Higher = more important (1-10)
	Message  string // Human-readable advice (1-2 sentences)
	RuleID   string // Identifier for testing/logging (e.g., "level_too_quiet")
}

// MaxRecordingTips is the maximum number of tips to return.
const MaxRecordingTips = 3

// tipRule inspects a source measurement against the target.
type tipRule func(m *processor.Measurement, target processor.Target) *RecordingTip

// GenerateRecordingTips returns prioritised advice for the source
// measurement of a job. Nil when nothing was measured.
func GenerateRecordingTips(m *processor.Measurement, target processor.Target) []RecordingTip {
	if m == nil {
		return nil
	}

	rules := []tipRule{
		tipSilent,
		tipLevelTooHot,
		tipLevelTooQuiet,
		tipLevelQuiet,
		tipWideRange,
		tipNoHeadroom,
	}

	var tips []RecordingTip
	fired := make(map[string]bool)
	for _, rule := range rules {
		if tip := rule(m, target); tip != nil {
			tips = append(tips, *tip)
			fired[tip.RuleID] = true
		}
	}

	tips = applyExclusions(tips, fired)

	sort.SliceStable(tips, func(i, j int) bool {
		return tips[i].Priority > tips[j].Priority
	})

	if len(tips) > MaxRecordingTips {
		tips = tips[:MaxRecordingTips]
	}
	return tips
}

// applyExclusions drops tips implied by a more specific one.
func applyExclusions(tips []RecordingTip, fired map[string]bool) []RecordingTip {
	var result []RecordingTip
	for _, tip := range tips {
		switch tip.RuleID {
		case "level_too_quiet", "level_quiet", "no_headroom":
			if fired["silent"] || fired["level_clipping"] {
				continue
			}
		case "level_near_clipping":
			if fired["silent"] {
				continue
			}
		}
		result = append(result, tip)
	}
	return result
}

// wrapText wraps text at word boundaries to fit within maxWidth columns.
// Continuation lines are prefixed with indent.
func wrapText(text string, maxWidth int, indent string) string {
	words := strings.Fields(text)
	var lines []string
	currentLine := ""

	for _, word := range words {
		if currentLine == "" {
			currentLine = word
		} else if len(currentLine)+1+len(word) <= maxWidth {
			currentLine += " " + word
		} else {
			lines = append(lines, currentLine)
			currentLine = word
		}
	}
	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return strings.Join(lines, "\n"+indent)
}

// tipSilent fires when the source is below the gating floor.
func tipSilent(m *processor.Measurement, _ processor.Target) *RecordingTip {
	if m.InputI >= LUFSMeasurementFloor {
		return nil
	}
	return &RecordingTip{
		Priority: 10,
		RuleID:   "silent",
		Message:  "This file is effectively silent - check that the right input was recorded.",
	}
}

// tipLevelTooHot fires when true peak approaches or exceeds 0 dBTP.
func tipLevelTooHot(m *processor.Measurement, _ processor.Target) *RecordingTip {
	if m.InputTP <= -1.0 {
		return nil
	}
	if m.InputTP > 0.0 {
		return &RecordingTip{
			Priority: 10,
			RuleID:   "level_clipping",
			Message:  "Your recording is clipping - turn your input gain down by 6-10 dB to prevent distortion.",
		}
	}
	return &RecordingTip{
		Priority: 9,
		RuleID:   "level_near_clipping",
		Message:  "Your recording is very close to clipping - turn your input gain down by 3-6 dB to leave some headroom.",
	}
}

// tipLevelTooQuiet fires when more than 20 dB of gain is needed.
func tipLevelTooQuiet(m *processor.Measurement, target processor.Target) *RecordingTip {
	gain := target.I - m.InputI
	if gain <= 20 {
		return nil
	}
	return &RecordingTip{
		Priority: 8,
		RuleID:   "level_too_quiet",
		Message:  fmt.Sprintf("Your recording needed %.0f dB of gain - record louder so normalisation does not raise the noise floor.", gain),
	}
}

// tipLevelQuiet fires when 12-20 dB of gain is needed.
func tipLevelQuiet(m *processor.Measurement, target processor.Target) *RecordingTip {
	gain := target.I - m.InputI
	if gain <= 12 || gain > 20 {
		return nil
	}
	return &RecordingTip{
		Priority: 6,
		RuleID:   "level_quiet",
		Message:  fmt.Sprintf("Your recording is a bit quiet - about %.0f dB more input gain would improve quality.", gain),
	}
}

// tipWideRange fires when the loudness range is well beyond the target.
func tipWideRange(m *processor.Measurement, target processor.Target) *RecordingTip {
	if m.InputLRA == nil || *m.InputLRA <= target.LRA+5 {
		return nil
	}
	return &RecordingTip{
		Priority: 5,
		RuleID:   "wide_range",
		Message:  fmt.Sprintf("Loudness range is %.1f LU against a %.0f LU target - try --compression to even out quiet and loud passages.", *m.InputLRA, target.LRA),
	}
}

// tipNoHeadroom fires when linear normalisation cannot reach the target.
func tipNoHeadroom(m *processor.Measurement, target processor.Target) *RecordingTip {
	maxI, linear := processor.LinearHeadroom(m, target)
	if linear {
		return nil
	}
	return &RecordingTip{
		Priority: 4,
		RuleID:   "no_headroom",
		Message:  fmt.Sprintf("Peaks limit clean gain to %.1f LUFS, so dynamic normalisation was needed - a limiter while recording would help.", maxI),
	}
}
