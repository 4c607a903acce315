package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linuxmatters/leveller/internal/engine"
	"github.com/linuxmatters/leveller/internal/engine/enginetest"
)

const loudnormReport = `Input #0, wav, from 'speech.wav':
  Duration: 00:01:02.00, bitrate: 705 kb/s
  Stream #0:0: Audio: pcm_s16le ([1][0][0][0] / 0x0001), 44100 Hz, 1 channels, s16, 705 kb/s
Stream mapping:
  Stream #0:0 -> #0:0 (pcm_s16le (native) -> pcm_s16le (native))
[Parsed_loudnorm_0 @ 0x600003c2c000]
{
	"input_i" : "-27.30",
	"input_tp" : "-4.10",
	"input_lra" : "6.20",
	"input_thresh" : "-37.60",
	"output_i" : "-22.98",
	"output_tp" : "-1.02",
	"output_lra" : "5.40",
	"output_thresh" : "-33.31",
	"normalization_type" : "linear",
	"target_offset" : "-0.02"
}
[out#0/null @ 0x600003a30000] video:0KiB audio:5341KiB subtitle:0KiB
`

func TestParseMeasurement(t *testing.T) {
	result := ParseMeasurement(loudnormReport)
	if !result.OK() {
		t.Fatalf("ParseMeasurement() not OK: %s", result.Reason)
	}
	m := result.Measurement

	if m.InputI != -27.30 {
		t.Errorf("InputI = %.2f, want -27.30", m.InputI)
	}
	if m.InputTP != -4.10 {
		t.Errorf("InputTP = %.2f, want -4.10", m.InputTP)
	}
	if m.InputLRA == nil || *m.InputLRA != 6.20 {
		t.Errorf("InputLRA = %v, want 6.20", m.InputLRA)
	}
	if m.InputThresh == nil || *m.InputThresh != -37.60 {
		t.Errorf("InputThresh = %v, want -37.60", m.InputThresh)
	}
	if m.TargetOffset == nil || *m.TargetOffset != -0.02 {
		t.Errorf("TargetOffset = %v, want -0.02", m.TargetOffset)
	}
	if m.NormalizationType != "linear" {
		t.Errorf("NormalizationType = %q, want linear", m.NormalizationType)
	}
	if m.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", m.SampleRate)
	}
}

func TestParseOutputMeasurement(t *testing.T) {
	result := ParseOutputMeasurement(loudnormReport)
	if !result.OK() {
		t.Fatalf("ParseOutputMeasurement() not OK: %s", result.Reason)
	}
	if result.Measurement.InputI != -22.98 {
		t.Errorf("output I = %.2f, want -22.98", result.Measurement.InputI)
	}
	if result.Measurement.InputTP != -1.02 {
		t.Errorf("output TP = %.2f, want -1.02", result.Measurement.InputTP)
	}
}

func TestParseMeasurement_Tolerance(t *testing.T) {
	tests := []struct {
		name       string
		stderr     string
		wantOK     bool
		wantReason string
	}{
		{
			name:   "required fields only",
			stderr: "{\n\"input_i\" : \"-16.00\",\n\"input_tp\" : \"-1.50\"\n}\n",
			wantOK: true,
		},
		{
			name:   "unparseable optional field ignored",
			stderr: "\"input_i\" : \"-16.00\",\n\"input_tp\" : \"-1.50\",\n\"input_lra\" : \"n/a\",\n",
			wantOK: true,
		},
		{
			name:   "surrounding noise and CRLF",
			stderr: "[warning] something\r\n  \"input_i\" : \"-20.1\",\r\n  \"input_tp\" : \"-3.0\"\r\nsize=N/A\r\n",
			wantOK: true,
		},
		{
			name:       "empty stream",
			stderr:     "",
			wantReason: "missing input_i",
		},
		{
			name:       "missing true peak",
			stderr:     "\"input_i\" : \"-16.00\",\n",
			wantReason: "missing input_tp",
		},
		{
			name:       "silent input",
			stderr:     "\"input_i\" : \"-inf\",\n\"input_tp\" : \"-inf\",\n",
			wantReason: "input_i is not a finite number",
		},
		{
			name:       "garbage value",
			stderr:     "\"input_i\" : \"loud\",\n\"input_tp\" : \"-1.0\",\n",
			wantReason: "input_i is not a finite number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseMeasurement(tt.stderr)
			if result.OK() != tt.wantOK {
				t.Fatalf("OK() = %v, want %v (reason %q)", result.OK(), tt.wantOK, result.Reason)
			}
			if tt.wantReason != "" && !strings.Contains(result.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want to contain %q", result.Reason, tt.wantReason)
			}
			if !tt.wantOK && result.Measurement != nil {
				t.Errorf("Measurement = %+v, want nil on failure", result.Measurement)
			}
		})
	}
}

func TestMeasureArgs(t *testing.T) {
	args := measureArgs("in.wav", Target{I: -20, TP: -1.5, LRA: 7})
	got := strings.Join(args, " ")
	want := "-hide_banner -nostats -i in.wav -af loudnorm=I=-20.0:TP=-1.5:LRA=7.0:print_format=json -f null -"
	if got != want {
		t.Errorf("measureArgs() = %q, want %q", got, want)
	}
}

func TestMeasure(t *testing.T) {
	dir := t.TempDir()
	src := generateTestAudio(t, dir, "tone.wav", TestAudioOptions{ToneFreq: 1000, ToneLevel: -20})

	fake := enginetest.New()
	m, err := Measure(context.Background(), fake, src, Target{I: -23, TP: -1, LRA: 15})
	if err != nil {
		t.Fatalf("Measure() error = %v", err)
	}
	if m.InputI != enginetest.DefaultLUFS {
		t.Errorf("InputI = %.2f, want %.2f", m.InputI, enginetest.DefaultLUFS)
	}
	if m.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000 from the stream banner", m.SampleRate)
	}

	// source is only read
	if names := listDir(t, dir); len(names) != 1 {
		t.Errorf("directory contents = %v, want only the source", names)
	}
}

func TestMeasure_UnreadableInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty.wav")
	if err := os.WriteFile(src, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Measure(context.Background(), enginetest.New(), src, Target{I: -23, TP: -1, LRA: 15})
	if !errors.Is(err, ErrMeasurementParse) {
		t.Fatalf("Measure() error = %v, want ErrMeasurementParse", err)
	}
	var execErr *engine.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Measure() error = %v, want execution detail kept", err)
	}
	if !strings.Contains(execErr.DiagnosticTail, "Invalid data found") {
		t.Errorf("DiagnosticTail = %q", execErr.DiagnosticTail)
	}
}

type stubRunner struct {
	stderr string
	err    error
}

func (s stubRunner) Run(context.Context, ...string) (string, error) { return s.stderr, s.err }

func TestMeasure_Failures(t *testing.T) {
	target := Target{I: -23, TP: -1, LRA: 15}

	tests := []struct {
		name      string
		runner    Runner
		wantIs    error
		wantNotIs error
	}{
		{
			name:   "no stats block",
			runner: stubRunner{stderr: "size=N/A time=00:00:10.00\n"},
			wantIs: ErrMeasurementParse,
		},
		{
			name:      "engine unavailable is not a parse failure",
			runner:    stubRunner{err: engine.ErrEngineUnavailable},
			wantIs:    engine.ErrEngineUnavailable,
			wantNotIs: ErrMeasurementParse,
		},
		{
			name:      "timeout is not a parse failure",
			runner:    stubRunner{err: &engine.ExecutionError{ExitCode: -1, TimedOut: true, Err: context.DeadlineExceeded}},
			wantIs:    engine.ErrEngineExecutionFailed,
			wantNotIs: ErrMeasurementParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Measure(context.Background(), tt.runner, "in.wav", target)
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("Measure() error = %v, want %v", err, tt.wantIs)
			}
			if tt.wantNotIs != nil && errors.Is(err, tt.wantNotIs) {
				t.Errorf("Measure() error = %v, must not match %v", err, tt.wantNotIs)
			}
		})
	}
}
