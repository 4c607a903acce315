package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/linuxmatters/leveller/internal/engine"
	"github.com/linuxmatters/leveller/internal/preset"
)

// ErrInvalidInput means the source is missing or not a regular file.
var ErrInvalidInput = errors.New("invalid input")

// Status is the terminal state of a job.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Pass numbers reported to a ProgressFunc
const (
	PassMeasure   = 1
	PassNormalise = 2
	PassVerify    = 3
)

// ProgressFunc is called when a job enters a pass.
type ProgressFunc func(pass int, passName string)

// Job is one source file to normalise.
type Job struct {
	Source      string
	Destination string
	Preset      preset.Preset

	Compression  bool
	Analyze      bool    // measure the output and report before/after
	Overwrite    bool    // replace an existing destination
	HumFrequency float64 // mains Hz for the hum notch, 0 disables it
}

// Outcome is what happened to a Job. Failures are values, never panics.
type Outcome struct {
	Source      string
	Destination string
	Status      Status
	Err         error

	Before *Measurement // source loudness, nil when not measured
	After  *Measurement // output loudness, nil unless analysed

	// Rendered is what loudnorm reported for its own output during the
	// correction pass
	Rendered *Measurement

	Chain    string // filter graph handed to the engine
	Mode     Mode
	Fallback bool // two-pass measurement failed, single-pass was used

	Warnings []string
	Duration time.Duration
}

// Message is the failure reason, empty on success.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Report measures a file for before/after comparison.
func Report(ctx context.Context, runner Runner, path string, target Target) (*Measurement, error) {
	return Measure(ctx, runner, path, target)
}

// ProcessJob runs the full pipeline for one job: measure, build the chain,
// render, and optionally re-measure the output.
func ProcessJob(ctx context.Context, runner Runner, job Job, progress ProgressFunc) Outcome {
	start := time.Now()
	out := Outcome{
		Source:      job.Source,
		Destination: job.Destination,
		Status:      StatusFailed,
	}
	if progress == nil {
		progress = func(int, string) {}
	}
	finish := func(err error) Outcome {
		out.Duration = time.Since(start)
		switch {
		case err == nil:
			out.Status = StatusSucceeded
		case ctx.Err() != nil:
			out.Status = StatusCancelled
			out.Err = err
		default:
			out.Err = err
		}
		return out
	}

	if err := checkSource(job.Source); err != nil {
		return finish(err)
	}
	target := TargetFor(job.Preset)

	// Pass 1: loudnorm analysis
	progress(PassMeasure, "Measuring")
	measured, err := Measure(ctx, runner, job.Source, target)
	if err != nil {
		if !errors.Is(err, ErrMeasurementParse) || job.Analyze || ctx.Err() != nil {
			return finish(err)
		}
		out.Fallback = true
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("measurement unavailable, using single-pass dynamic normalisation: %v", err))
	}
	out.Before = measured

	chain := BuildFilterChain(job.Preset, measured, ChainOptions{
		Compression:  job.Compression,
		HumFrequency: job.HumFrequency,
	})
	out.Chain = chain.String()
	out.Mode = chain.Mode()

	if measured != nil {
		if maxI, linear := LinearHeadroom(measured, target); !linear {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("true peak %.1f dBTP leaves room for %.1f LUFS in linear mode; loudnorm may switch to dynamic",
					measured.InputTP, maxI))
		}
	}

	// Pass 2: correction
	progress(PassNormalise, "Normalising")
	rendered, err := Execute(ctx, runner, job.Source, job.Destination, chain, ExecuteOptions{
		Overwrite:  job.Overwrite,
		SampleRate: sourceSampleRate(job.Source, measured),
	})
	if err != nil {
		return finish(err)
	}
	out.Rendered = rendered
	if rendered != nil && out.Mode == ModeTwoPassLinear && rendered.NormalizationType == "dynamic" {
		out.Warnings = append(out.Warnings, "loudnorm fell back to dynamic normalisation")
	}

	// Pass 3: verification
	if job.Analyze {
		progress(PassVerify, "Verifying")
		after, err := Report(ctx, runner, job.Destination, target)
		if err != nil {
			if ctx.Err() != nil {
				return finish(err)
			}
			out.Warnings = append(out.Warnings, fmt.Sprintf("could not measure output: %v", err))
		}
		out.After = after
	}

	return finish(nil)
}

func checkSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrInvalidInput, path)
	}
	return nil
}

// sourceSampleRate prefers the rate the engine reported, then the WAV
// header, then 0 for the engine's default.
func sourceSampleRate(path string, m *Measurement) int {
	if m != nil && m.SampleRate > 0 {
		return m.SampleRate
	}
	if info, err := Inspect(path); err == nil {
		return info.SampleRate
	}
	return 0
}

// IsUnavailable reports whether err means the engine could not be started
// for this job.
func IsUnavailable(err error) bool {
	return errors.Is(err, engine.ErrEngineUnavailable)
}
