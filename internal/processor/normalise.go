package processor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/linuxmatters/leveller/internal/engine"
)

// ErrMeasurementParse means the engine's diagnostic stream held no usable
// loudnorm statistics.
var ErrMeasurementParse = errors.New("failed to parse loudness measurement")

// Mode is how loudnorm ran for a job.
type Mode string

const (
	ModeTwoPassLinear     Mode = "two-pass linear"
	ModeSinglePassDynamic Mode = "single-pass dynamic"
)

// Measurement is the loudness analysis of one file as reported by loudnorm.
// Optional values are nil when the engine did not report them.
type Measurement struct {
	InputI       float64 // integrated loudness (LUFS)
	InputTP      float64 // true peak (dBTP)
	InputLRA     *float64
	InputThresh  *float64
	TargetOffset *float64

	// NormalizationType is "linear" or "dynamic", as reported by a
	// correction pass
	NormalizationType string

	// SampleRate of the source in Hz, from the engine's stream banner
	SampleRate int
}

// LRA returns the loudness range or NaN when absent.
func (m *Measurement) LRA() float64 { return valueOr(m.InputLRA, math.NaN()) }

// Thresh returns the gating threshold or NaN when absent.
func (m *Measurement) Thresh() float64 { return valueOr(m.InputThresh, math.NaN()) }

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// fieldSpec declares one loudnorm JSON key.
type fieldSpec struct {
	key      string
	required bool
}

// measurementSchema lists the keys read from a loudnorm report. Keys are
// relative to a prefix: "input_" for the source, "output_" for what the
// correction pass produced.
var measurementSchema = []fieldSpec{
	{key: "i", required: true},
	{key: "tp", required: true},
	{key: "lra"},
	{key: "thresh"},
}

// ParseResult is the outcome of parsing a diagnostic stream. Reason is set
// when Measurement could not be built.
type ParseResult struct {
	Measurement *Measurement
	Reason      string
}

// OK reports whether every required field parsed to a finite value.
func (r ParseResult) OK() bool { return r.Measurement != nil && r.Reason == "" }

var (
	// "input_i" : "-27.30",
	statLine = regexp.MustCompile(`^\s*"([a-z_]+)"\s*:\s*"([^"]*)"\s*,?\s*$`)
	// Stream #0:0: Audio: pcm_s16le (...), 48000 Hz, 2 channels, s16, 1536 kb/s
	audioBanner = regexp.MustCompile(`Audio: .*?, (\d+) Hz`)
)

// ParseMeasurement extracts the source statistics (input_*) from loudnorm's
// print_format=json output.
func ParseMeasurement(stderr string) ParseResult {
	return parseStats(stderr, "input_")
}

// ParseOutputMeasurement extracts the statistics loudnorm reports for its
// own output (output_*) at the end of a correction pass.
func ParseOutputMeasurement(stderr string) ParseResult {
	return parseStats(stderr, "output_")
}

func parseStats(stderr, prefix string) ParseResult {
	raw := make(map[string]string)
	sampleRate := 0

	scanner := bufio.NewScanner(strings.NewReader(stderr))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := statLine.FindStringSubmatch(line); m != nil {
			raw[m[1]] = m[2]
			continue
		}
		if sampleRate == 0 {
			if m := audioBanner.FindStringSubmatch(line); m != nil {
				sampleRate, _ = strconv.Atoi(m[1])
			}
		}
	}

	values := make(map[string]*float64, len(measurementSchema))
	for _, f := range measurementSchema {
		key := prefix + f.key
		s, present := raw[key]
		if !present {
			if f.required {
				return ParseResult{Reason: fmt.Sprintf("missing %s", key)}
			}
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			if f.required {
				return ParseResult{Reason: fmt.Sprintf("%s is not a finite number: %q", key, s)}
			}
			continue
		}
		values[f.key] = &v
	}

	m := &Measurement{
		InputI:            *values["i"],
		InputTP:           *values["tp"],
		InputLRA:          values["lra"],
		InputThresh:       values["thresh"],
		NormalizationType: raw["normalization_type"],
		SampleRate:        sampleRate,
	}
	if s, ok := raw["target_offset"]; ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
			m.TargetOffset = &v
		}
	}
	return ParseResult{Measurement: m}
}

// Runner invokes the engine and returns its diagnostic stream.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// measureArgs builds the analysis invocation. Nothing is written: the
// null muxer discards the audio.
func measureArgs(path string, target Target) []string {
	filter := fmt.Sprintf("loudnorm=I=%.1f:TP=%.1f:LRA=%.1f:print_format=json",
		target.I, target.TP, target.LRA)
	return []string{
		"-hide_banner",
		"-nostats",
		"-i", path,
		"-af", filter,
		"-f", "null",
		"-",
	}
}

// Measure runs loudnorm's analysis pass over path.
func Measure(ctx context.Context, runner Runner, path string, target Target) (*Measurement, error) {
	stderr, err := runner.Run(ctx, measureArgs(path, target)...)
	if err != nil {
		if errors.Is(err, engine.ErrEngineUnavailable) || ctx.Err() != nil {
			return nil, err
		}
		var execErr *engine.ExecutionError
		if errors.As(err, &execErr) && execErr.TimedOut {
			return nil, err
		}
		// Unreadable input: the engine exits nonzero before loudnorm reports
		return nil, fmt.Errorf("%w: %s: %w", ErrMeasurementParse, path, err)
	}

	result := ParseMeasurement(stderr)
	if !result.OK() {
		return nil, fmt.Errorf("%w: %s: %s", ErrMeasurementParse, path, result.Reason)
	}
	return result.Measurement, nil
}
