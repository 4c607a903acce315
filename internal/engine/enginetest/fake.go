// Package enginetest provides an in-process stand-in for the audio engine.
//
// The fake understands the two invocations the processor makes: a
// measurement run ("-f null -") and a render run whose last argument is
// the output file. Rendered files contain a "LUFS:<value>" marker so a
// later measurement of that file reports the rendered loudness.
package enginetest

import (
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/linuxmatters/leveller/internal/engine"
)

// DefaultLUFS is reported for inputs that carry no marker.
const DefaultLUFS = -27.3

var targetIPattern = regexp.MustCompile(`loudnorm=I=(-?[0-9.]+)`)

// Fake records invocations and answers them like FFmpeg would.
type Fake struct {
	SampleRate int           // reported in the input banner, 48000 if zero
	Delay      time.Duration // per invocation, honours cancellation

	// FailRender makes render runs for inputs whose path contains the
	// given substring exit with status 1.
	FailRender string

	mu    sync.Mutex
	calls [][]string
}

// New returns a Fake with default settings.
func New() *Fake {
	return &Fake{SampleRate: 48000}
}

// Calls returns a copy of every argument list seen so far.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Run implements processor.Runner.
func (f *Fake) Run(ctx context.Context, args ...string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", &engine.ExecutionError{ExitCode: -1, Err: ctx.Err()}
		case <-time.After(f.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return "", &engine.ExecutionError{ExitCode: -1, Err: err}
	}

	input := argAfter(args, "-i")
	inputLUFS, err := readMarker(input)
	if err != nil {
		tail := fmt.Sprintf("%s: Invalid data found when processing input", input)
		return tail, &engine.ExecutionError{ExitCode: 1, DiagnosticTail: tail, Err: err}
	}

	target := inputLUFS
	if m := targetIPattern.FindStringSubmatch(argAfter(args, "-af")); m != nil {
		target, _ = strconv.ParseFloat(m[1], 64)
	}
	stderr := f.banner(input) + Report(inputLUFS, target)

	if isMeasurement(args) {
		return stderr, nil
	}

	output := args[len(args)-1]
	if f.FailRender != "" && strings.Contains(input, f.FailRender) {
		tail := "Conversion failed!"
		return stderr + tail, &engine.ExecutionError{ExitCode: 1, DiagnosticTail: tail}
	}
	if slices.Contains(args, "-n") {
		if _, err := os.Stat(output); err == nil {
			tail := fmt.Sprintf("File '%s' already exists. Exiting.", output)
			return stderr + tail, &engine.ExecutionError{ExitCode: 1, DiagnosticTail: tail}
		}
	}
	if err := os.WriteFile(output, []byte(fmt.Sprintf("LUFS:%.1f", target)), 0o644); err != nil {
		return stderr, &engine.ExecutionError{ExitCode: 1, DiagnosticTail: err.Error(), Err: err}
	}
	return stderr, nil
}

func (f *Fake) banner(input string) string {
	rate := f.SampleRate
	if rate == 0 {
		rate = 48000
	}
	return fmt.Sprintf("Input #0, wav, from '%s':\n"+
		"  Duration: 00:00:10.00, bitrate: 1536 kb/s\n"+
		"  Stream #0:0: Audio: pcm_s16le ([1][0][0][0] / 0x0001), %d Hz, 2 channels, s16, 1536 kb/s\n",
		input, rate)
}

// Report renders a loudnorm JSON block the way FFmpeg prints it.
func Report(inputI, outputI float64) string {
	return fmt.Sprintf(`[Parsed_loudnorm_0 @ 0x55d1c8a0]
{
	"input_i" : "%.2f",
	"input_tp" : "%.2f",
	"input_lra" : "6.20",
	"input_thresh" : "%.2f",
	"output_i" : "%.2f",
	"output_tp" : "%.2f",
	"output_lra" : "5.10",
	"output_thresh" : "%.2f",
	"normalization_type" : "linear",
	"target_offset" : "0.10"
}
`, inputI, peakFor(inputI), inputI-10.3, outputI, peakFor(outputI), outputI-10.1)
}

func peakFor(lufs float64) float64 {
	return math.Min(lufs+17, -1.6)
}

// readMarker returns the loudness encoded in a file written by the fake,
// DefaultLUFS for any other non-empty file, and an error for empty or
// missing files.
func readMarker(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("empty input")
	}
	if v, ok := strings.CutPrefix(string(data), "LUFS:"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, nil
		}
	}
	return DefaultLUFS, nil
}

func isMeasurement(args []string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-f" && args[i+1] == "null" {
			return true
		}
	}
	return false
}

func argAfter(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
