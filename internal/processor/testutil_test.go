package processor

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// TestAudioOptions configures the synthetic audio to generate
type TestAudioOptions struct {
	DurationSecs float64 // Total duration in seconds (default: 1)
	SampleRate   int     // Sample rate (default: 44100)
	Channels     int     // Channel count (default: 1)
	ToneFreq     float64 // Sine wave frequency in Hz (0 = silence)
	ToneLevel    float64 // Tone level in dBFS (e.g., -23.0)
}

// generateTestAudio writes a 16-bit PCM WAV file into dir and returns its path.
func generateTestAudio(t *testing.T, dir, name string, opts TestAudioOptions) string {
	t.Helper()

	if opts.SampleRate == 0 {
		opts.SampleRate = 44100
	}
	if opts.DurationSecs == 0 {
		opts.DurationSecs = 1.0
	}
	if opts.Channels == 0 {
		opts.Channels = 1
	}

	frames := int(opts.DurationSecs * float64(opts.SampleRate))
	data := make([]int, frames*opts.Channels)

	amp := 0.0
	if opts.ToneFreq > 0 && opts.ToneLevel < 0 {
		amp = math.Pow(10.0, opts.ToneLevel/20.0)
	}
	for i := 0; i < frames; i++ {
		ts := float64(i) / float64(opts.SampleRate)
		v := int(amp * math.Sin(2.0*math.Pi*opts.ToneFreq*ts) * math.MaxInt16)
		for c := 0; c < opts.Channels; c++ {
			data[i*opts.Channels+c] = v
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, opts.SampleRate, 16, opts.Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: opts.Channels, SampleRate: opts.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("failed to write WAV data: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to finalise WAV file: %v", err)
	}
	return path
}

// listDir returns the names in dir.
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func ptr(f float64) *float64 { return &f }
