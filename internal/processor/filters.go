// Package processor measures, filters and renders audio files through the
// external engine.
package processor

import (
	"fmt"
	"math"
	"strings"

	"github.com/linuxmatters/leveller/internal/preset"
)

// FilterID identifies a stage in the normalisation chain
type FilterID string

// Filter identifiers for the normalisation chain
const (
	FilterHighPass   FilterID = "highpass"
	FilterLowPass    FilterID = "lowpass"
	FilterDehum      FilterID = "dehum" // Mains hum notch at fundamental + harmonics
	FilterLoudnorm   FilterID = "loudnorm"
	FilterCompressor FilterID = "compressor"
	FilterLimiter    FilterID = "limiter" // Safety limiter at the preset's peak ceiling
)

// NormaliseFilterOrder defines the chain order for the correction pass.
// Band limiting runs before loudness is measured inside loudnorm, so the
// integrated loudness target applies to the band-limited signal. The
// limiter is always last.
var NormaliseFilterOrder = []FilterID{
	FilterHighPass,
	FilterLowPass,
	FilterDehum,
	FilterLoudnorm,
	FilterCompressor,
	FilterLimiter,
}

// Hum notch defaults
const (
	humDefaultHarmonics = 4    // 50, 100, 150, 200 Hz for 50 Hz mains
	humDefaultQ         = 30.0 // Narrow notch, little impact on voice
)

// loudnorm accepts LRA targets in 1..50 LU
const maxLoudnormLRA = 50.0

// Target is the loudness goal handed to loudnorm.
type Target struct {
	I   float64 // integrated loudness, LUFS
	TP  float64 // true peak, dBTP
	LRA float64 // loudness range, LU
}

// TargetFor returns the loudness goal of a preset.
func TargetFor(p preset.Preset) Target {
	return Target{I: p.TargetLUFS, TP: p.TargetPeak, LRA: p.TargetLRA}
}

// Stage is one element of a FilterChain.
type Stage interface {
	ID() FilterID
}

// HighPass removes content below Frequency.
type HighPass struct {
	Frequency float64
	Poles     int
	Width     float64 // Q
}

// LowPass removes content above Frequency.
type LowPass struct {
	Frequency float64
	Poles     int
	Width     float64 // Q
}

// HumNotch rejects the mains fundamental and its harmonics.
type HumNotch struct {
	Frequency float64
	Harmonics int
	Q         float64
}

// Loudnorm is the EBU R128 normaliser. A non-nil Measured selects the
// two-pass linear form.
type Loudnorm struct {
	Target   Target
	Measured *Measurement
}

// Compressor is a feed-forward RMS compressor.
type Compressor struct {
	ThresholdDB float64
	Ratio       float64
	AttackMs    float64
	ReleaseMs   float64
	Knee        float64
}

// Limiter is a brickwall limiter at CeilingDB.
type Limiter struct {
	CeilingDB float64
	AttackMs  float64
	ReleaseMs float64
}

func (HighPass) ID() FilterID   { return FilterHighPass }
func (LowPass) ID() FilterID    { return FilterLowPass }
func (HumNotch) ID() FilterID   { return FilterDehum }
func (Loudnorm) ID() FilterID   { return FilterLoudnorm }
func (Compressor) ID() FilterID { return FilterCompressor }
func (Limiter) ID() FilterID    { return FilterLimiter }

// TwoPass reports whether the stage uses measured values.
func (l Loudnorm) TwoPass() bool { return l.Measured != nil }

// EffectiveLRA is the LRA target sent to the engine. In two-pass mode a
// source wider than the target raises it, otherwise loudnorm abandons
// linear mode.
func (l Loudnorm) EffectiveLRA() float64 {
	lra := l.Target.LRA
	if l.Measured != nil && l.Measured.InputLRA != nil && *l.Measured.InputLRA > lra {
		lra = math.Min(*l.Measured.InputLRA, maxLoudnormLRA)
	}
	return lra
}

// ChainOptions are the per-job switches that shape the chain.
type ChainOptions struct {
	Compression  bool
	HumFrequency float64 // mains Hz, 0 disables the notch
}

// FilterChain is an ordered list of stages.
type FilterChain struct {
	Stages []Stage
}

// String serializes the chain in the engine's filter graph syntax.
func (c FilterChain) String() string {
	specs := make([]string, 0, len(c.Stages))
	for _, s := range c.Stages {
		if spec := formatStage(s); spec != "" {
			specs = append(specs, spec)
		}
	}
	return strings.Join(specs, ",")
}

// Has reports whether a stage with id is present.
func (c FilterChain) Has(id FilterID) bool {
	for _, s := range c.Stages {
		if s.ID() == id {
			return true
		}
	}
	return false
}

// Loudnorm returns the chain's loudnorm stage.
func (c FilterChain) Loudnorm() (Loudnorm, bool) {
	for _, s := range c.Stages {
		if l, ok := s.(Loudnorm); ok {
			return l, true
		}
	}
	return Loudnorm{}, false
}

// Mode describes how loudnorm will run.
func (c FilterChain) Mode() Mode {
	if l, ok := c.Loudnorm(); ok && l.TwoPass() {
		return ModeTwoPassLinear
	}
	return ModeSinglePassDynamic
}

// chainInput is what the stage builders see.
type chainInput struct {
	preset   preset.Preset
	measured *Measurement
	opts     ChainOptions
}

// stageBuilderFunc returns nil when the stage does not apply.
type stageBuilderFunc func(*chainInput) Stage

// stageBuilders maps FilterID to its builder.
var stageBuilders = map[FilterID]stageBuilderFunc{
	FilterHighPass:   buildHighPass,
	FilterLowPass:    buildLowPass,
	FilterDehum:      buildHumNotch,
	FilterLoudnorm:   buildLoudnorm,
	FilterCompressor: buildCompressor,
	FilterLimiter:    buildLimiter,
}

// BuildFilterChain assembles the correction pass chain for a preset. A nil
// measurement gives single-pass dynamic normalisation.
func BuildFilterChain(p preset.Preset, m *Measurement, opts ChainOptions) FilterChain {
	in := &chainInput{preset: p, measured: m, opts: opts}

	var chain FilterChain
	for _, id := range NormaliseFilterOrder {
		if build, ok := stageBuilders[id]; ok {
			if s := build(in); s != nil {
				chain.Stages = append(chain.Stages, s)
			}
		}
	}
	return chain
}

func buildHighPass(in *chainInput) Stage {
	if in.preset.HighPass == nil {
		return nil
	}
	return HighPass{Frequency: *in.preset.HighPass, Poles: 2, Width: 0.707}
}

func buildLowPass(in *chainInput) Stage {
	if in.preset.LowPass == nil {
		return nil
	}
	return LowPass{Frequency: *in.preset.LowPass, Poles: 2, Width: 0.707}
}

func buildHumNotch(in *chainInput) Stage {
	if in.opts.HumFrequency <= 0 {
		return nil
	}
	return HumNotch{Frequency: in.opts.HumFrequency, Harmonics: humDefaultHarmonics, Q: humDefaultQ}
}

func buildLoudnorm(in *chainInput) Stage {
	return Loudnorm{Target: TargetFor(in.preset), Measured: in.measured}
}

func buildCompressor(in *chainInput) Stage {
	if !in.opts.Compression {
		return nil
	}
	c := in.preset.Compressor
	return Compressor{
		ThresholdDB: c.ThresholdDB,
		Ratio:       c.Ratio,
		AttackMs:    c.AttackMs,
		ReleaseMs:   c.ReleaseMs,
		Knee:        2.5,
	}
}

func buildLimiter(in *chainInput) Stage {
	return Limiter{CeilingDB: in.preset.TargetPeak, AttackMs: 5, ReleaseMs: 50}
}

// formatStage is the single serializer for every stage type.
func formatStage(s Stage) string {
	switch st := s.(type) {
	case HighPass:
		return fmt.Sprintf("highpass=f=%.0f:poles=%d:width_type=q:width=%.3f:normalize=1",
			st.Frequency, st.Poles, st.Width)
	case LowPass:
		return fmt.Sprintf("lowpass=f=%.0f:poles=%d:width_type=q:width=%.3f:normalize=1",
			st.Frequency, st.Poles, st.Width)
	case HumNotch:
		notches := make([]string, 0, st.Harmonics)
		for h := 1; h <= st.Harmonics; h++ {
			notches = append(notches, fmt.Sprintf("bandreject=f=%.0f:width_type=q:width=%.1f",
				st.Frequency*float64(h), st.Q))
		}
		return strings.Join(notches, ",")
	case Loudnorm:
		return formatLoudnorm(st)
	case Compressor:
		// acompressor takes its threshold as linear amplitude
		return fmt.Sprintf(
			"acompressor=threshold=%.6f:ratio=%.1f:attack=%.0f:release=%.0f:"+
				"makeup=1.00:knee=%.1f:detection=rms:mix=1.00",
			DbToLinear(st.ThresholdDB),
			st.Ratio,
			st.AttackMs,
			st.ReleaseMs,
			st.Knee,
		)
	case Limiter:
		return fmt.Sprintf(
			"alimiter=limit=%.6f:attack=%.1f:release=%.1f:level_in=1.0000:level_out=1.0000:level=0:latency=1:asc=0",
			DbToLinear(st.CeilingDB),
			st.AttackMs,
			st.ReleaseMs,
		)
	}
	return ""
}

func formatLoudnorm(l Loudnorm) string {
	var b strings.Builder
	fmt.Fprintf(&b, "loudnorm=I=%.1f:TP=%.1f:LRA=%.1f", l.Target.I, l.Target.TP, l.EffectiveLRA())

	if m := l.Measured; m != nil {
		fmt.Fprintf(&b, ":measured_I=%.2f:measured_TP=%.2f", m.InputI, m.InputTP)
		if m.InputLRA != nil {
			fmt.Fprintf(&b, ":measured_LRA=%.2f", *m.InputLRA)
		}
		if m.InputThresh != nil {
			fmt.Fprintf(&b, ":measured_thresh=%.2f", *m.InputThresh)
		}
		if m.TargetOffset != nil {
			fmt.Fprintf(&b, ":offset=%.2f", *m.TargetOffset)
		}
		b.WriteString(":linear=" + boolToString(true))
	}

	b.WriteString(":print_format=json")
	return b.String()
}

// LinearHeadroom predicts whether loudnorm can reach target in linear mode:
// measured_TP + (target_I - measured_I) must not exceed target_TP. It
// returns the highest integrated loudness that still allows linear mode,
// less a 0.1 dB margin for rounding inside the engine.
func LinearHeadroom(m *Measurement, target Target) (maxLinearI float64, linear bool) {
	const safetyMargin = 0.1
	maxLinearI = target.TP - m.InputTP + m.InputI - safetyMargin
	return maxLinearI, target.I <= maxLinearI
}

// DbToLinear converts decibel value to linear amplitude.
func DbToLinear(db float64) float64 {
	return math.Pow(10, db/20.0)
}

// LinearToDb converts linear amplitude to decibel value.
func LinearToDb(linear float64) float64 {
	if linear <= 0 {
		return -120.0 // Practical floor for audio
	}
	return 20.0 * math.Log10(linear)
}

// boolToString converts bool to loudnorm's expected string format
func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
