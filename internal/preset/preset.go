// Package preset holds the catalog of loudness normalisation policies.
package preset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPreset is returned by Resolve for names outside the catalog.
var ErrUnknownPreset = errors.New("unknown preset")

// ErrInvalidTarget is returned when a loudness or peak target is outside
// the range the engine accepts.
var ErrInvalidTarget = errors.New("invalid target")

// Target bounds. Loudness stays inside -40..0 LUFS and at or below loudnorm's
// -5 LUFS maximum; the peak stays inside loudnorm's -9..0 dBTP range, which
// also keeps the alimiter ceiling above its 0.0625 minimum.
const (
	MinTargetLUFS = -40.0
	MaxTargetLUFS = -5.0
	MinTargetPeak = -9.0
	MaxTargetPeak = 0.0
)

// Compressor holds the dynamics settings applied when compression is enabled.
type Compressor struct {
	ThresholdDB float64 // dBFS, level above which gain reduction starts
	Ratio       float64 // n:1
	AttackMs    float64
	ReleaseMs   float64
}

// Preset is an immutable normalisation policy.
type Preset struct {
	Name        string
	Description string

	TargetLUFS float64 // Integrated loudness target (LUFS)
	TargetPeak float64 // True peak ceiling (dBTP), always negative
	TargetLRA  float64 // Loudness range target handed to loudnorm (LU)

	// Band limits in Hz; nil means the stage is not applied
	HighPass *float64
	LowPass  *float64

	Compressor Compressor
}

func hz(f float64) *float64 { return &f }

// catalog is the process-wide preset table. Order matters: it is the order
// reported by Names and shown in help output.
var catalog = []Preset{
	{
		Name:        "broadcast",
		Description: "EBU R128 broadcast delivery, full range",
		TargetLUFS:  -23.0,
		TargetPeak:  -1.0,
		TargetLRA:   15.0,
		Compressor:  Compressor{ThresholdDB: -18, Ratio: 2, AttackMs: 20, ReleaseMs: 250},
	},
	{
		Name:        "streaming",
		Description: "Music and video streaming platforms",
		TargetLUFS:  -14.0,
		TargetPeak:  -1.0,
		TargetLRA:   11.0,
		HighPass:    hz(30),
		LowPass:     hz(18000),
		Compressor:  Compressor{ThresholdDB: -16, Ratio: 3, AttackMs: 10, ReleaseMs: 200},
	},
	{
		Name:        "gaming",
		Description: "Game audio assets and in-game dialogue",
		TargetLUFS:  -16.0,
		TargetPeak:  -1.0,
		TargetLRA:   11.0,
		HighPass:    hz(40),
		LowPass:     hz(16000),
		Compressor:  Compressor{ThresholdDB: -14, Ratio: 4, AttackMs: 5, ReleaseMs: 100},
	},
	{
		Name:        "voice",
		Description: "Spoken word, podcasts and voice-over",
		TargetLUFS:  -20.0,
		TargetPeak:  -1.5,
		TargetLRA:   7.0,
		HighPass:    hz(80),
		LowPass:     hz(8000),
		Compressor:  Compressor{ThresholdDB: -20, Ratio: 3, AttackMs: 10, ReleaseMs: 200},
	},
	{
		Name:        "music",
		Description: "Music masters, full range",
		TargetLUFS:  -14.0,
		TargetPeak:  -1.0,
		TargetLRA:   15.0,
		Compressor:  Compressor{ThresholdDB: -12, Ratio: 2, AttackMs: 30, ReleaseMs: 300},
	},
	{
		Name:        "radio",
		Description: "Narrow-band radio voice, 300 Hz to 3 kHz",
		TargetLUFS:  -23.0,
		TargetPeak:  -1.0,
		TargetLRA:   5.0,
		HighPass:    hz(300),
		LowPass:     hz(3000),
		Compressor:  Compressor{ThresholdDB: -24, Ratio: 4, AttackMs: 5, ReleaseMs: 80},
	},
}

// Default is the preset used when none is named.
const Default = "broadcast"

// Names returns the preset names in catalog order.
func Names() []string {
	names := make([]string, len(catalog))
	for i, p := range catalog {
		names[i] = p.Name
	}
	return names
}

// All returns a copy of the catalog.
func All() []Preset {
	out := make([]Preset, len(catalog))
	for i, p := range catalog {
		out[i] = p.clone()
	}
	return out
}

// Resolve returns the preset with the given name.
func Resolve(name string) (Preset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, p := range catalog {
		if p.Name == key {
			return p.clone(), nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q (choose one of: %s)", ErrUnknownPreset, name, strings.Join(Names(), ", "))
}

// clone copies the cutoff pointers so callers cannot mutate the catalog.
func (p Preset) clone() Preset {
	if p.HighPass != nil {
		p.HighPass = hz(*p.HighPass)
	}
	if p.LowPass != nil {
		p.LowPass = hz(*p.LowPass)
	}
	return p
}

// WithTargets replaces the numeric targets, keeping the band limits and
// compressor shape. A nil argument keeps the preset's own value.
func (p Preset) WithTargets(lufs, peak *float64) (Preset, error) {
	out := p.clone()
	if lufs != nil {
		out.TargetLUFS = *lufs
	}
	if peak != nil {
		out.TargetPeak = *peak
	}
	if err := out.Validate(); err != nil {
		return Preset{}, err
	}
	return out, nil
}

// FullRange returns a copy with the high-pass and low-pass stages removed.
func (p Preset) FullRange() Preset {
	p.HighPass = nil
	p.LowPass = nil
	return p
}

// Validate checks the preset invariants.
func (p Preset) Validate() error {
	if p.TargetPeak < MinTargetPeak || p.TargetPeak >= MaxTargetPeak {
		return fmt.Errorf("%w: preset %s: target peak must be at least %.0f and below %.0f dBTP, got %.1f",
			ErrInvalidTarget, p.Name, MinTargetPeak, MaxTargetPeak, p.TargetPeak)
	}
	if p.TargetLUFS < MinTargetLUFS || p.TargetLUFS > MaxTargetLUFS {
		return fmt.Errorf("%w: preset %s: target loudness must be between %.0f and %.0f LUFS, got %.1f",
			ErrInvalidTarget, p.Name, MinTargetLUFS, MaxTargetLUFS, p.TargetLUFS)
	}
	if p.HighPass != nil && *p.HighPass <= 0 {
		return fmt.Errorf("preset %s: high-pass cutoff must be positive", p.Name)
	}
	if p.LowPass != nil && *p.LowPass <= 0 {
		return fmt.Errorf("preset %s: low-pass cutoff must be positive", p.Name)
	}
	if p.HighPass != nil && p.LowPass != nil && *p.HighPass >= *p.LowPass {
		return fmt.Errorf("preset %s: high-pass cutoff %.0f Hz must be below low-pass cutoff %.0f Hz",
			p.Name, *p.HighPass, *p.LowPass)
	}
	c := p.Compressor
	if c.Ratio < 1 || c.AttackMs <= 0 || c.ReleaseMs <= 0 {
		return fmt.Errorf("preset %s: invalid compressor settings", p.Name)
	}
	return nil
}
