package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxmatters/leveller/internal/engine"
	"github.com/linuxmatters/leveller/internal/engine/enginetest"
	"github.com/linuxmatters/leveller/internal/preset"
	"github.com/linuxmatters/leveller/internal/processor"
)

// writeFiles creates files in dir; a nil body makes an empty file.
func writeFiles(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), body, 0o644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func audio() []byte { return []byte("RIFF....WAVEfmt pretend pcm") }

func TestRun_DirectoryVoice(t *testing.T) {
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "levelled")
	writeFiles(t, in, map[string][]byte{
		"b.wav":     audio(),
		"a.wav":     audio(),
		"notes.txt": []byte("not audio"),
	})

	fake := enginetest.New()
	result, err := Run(context.Background(), fake, in, Options{Output: out, Preset: "voice"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.True(t, result.OK())
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, filepath.Join(in, "a.wav"), result.Outcomes[0].Source)
	assert.Equal(t, filepath.Join(in, "b.wav"), result.Outcomes[1].Source)

	for _, name := range []string{"a.wav", "b.wav"} {
		assert.Equal(t, "LUFS:-20.0", readFile(t, filepath.Join(out, name)))
	}
	_, err = os.Stat(filepath.Join(out, "notes.txt"))
	assert.True(t, os.IsNotExist(err), "non-matching files are skipped")
}

func TestRun_FailureIsolation(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFiles(t, in, map[string][]byte{
		"a.wav": audio(),
		"b.wav": nil, // unreadable
		"c.wav": audio(),
	})

	result, err := Run(context.Background(), enginetest.New(), in, Options{Output: out})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.OK())

	failures := result.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, filepath.Join(in, "b.wav"), failures[0].Source)
	assert.NotEmpty(t, failures[0].Message())

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"a.wav", "c.wav"}, names, "no partial output or temp files")
}

func TestRun_SingleFile(t *testing.T) {
	in := t.TempDir()
	writeFiles(t, in, map[string][]byte{"take.wav": audio()})
	src := filepath.Join(in, "take.wav")

	t.Run("explicit destination", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "nested", "master.wav")
		result, err := Run(context.Background(), enginetest.New(), src, Options{Output: dst, Preset: "streaming"})
		require.NoError(t, err)
		require.Equal(t, 1, result.Succeeded)
		assert.Equal(t, "LUFS:-14.0", readFile(t, dst))
	})

	t.Run("existing directory destination", func(t *testing.T) {
		dir := t.TempDir()
		result, err := Run(context.Background(), enginetest.New(), src, Options{Output: dir})
		require.NoError(t, err)
		require.Equal(t, 1, result.Succeeded)
		assert.Equal(t, "LUFS:-23.0", readFile(t, filepath.Join(dir, "take.wav")))
	})

	t.Run("trailing separator destination", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "new") + string(os.PathSeparator)
		result, err := Run(context.Background(), enginetest.New(), src, Options{Output: dir})
		require.NoError(t, err)
		require.Equal(t, 1, result.Succeeded)
		assert.FileExists(t, filepath.Join(dir, "take.wav"))
	})
}

func TestRun_TargetOverride(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFiles(t, in, map[string][]byte{"a.wav": audio()})

	lufs := -18.0
	result, err := Run(context.Background(), enginetest.New(), in, Options{
		Output:     out,
		Preset:     "voice",
		TargetLUFS: &lufs,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Succeeded)
	assert.Equal(t, "LUFS:-18.0", readFile(t, filepath.Join(out, "a.wav")))
	assert.Contains(t, result.Outcomes[0].Chain, "highpass=f=80", "band limits survive a target override")
}

func TestRun_SetupErrors(t *testing.T) {
	in := t.TempDir()
	writeFiles(t, in, map[string][]byte{"a.wav": audio()})
	file := filepath.Join(in, "a.wav")
	lowPeak := -12.0

	tests := []struct {
		name   string
		input  string
		opts   Options
		wantIs error
	}{
		{"unknown preset", in, Options{Output: t.TempDir(), Preset: "ultra"}, preset.ErrUnknownPreset},
		{"peak outside engine range", in, Options{Output: t.TempDir(), TargetPeak: &lowPeak}, preset.ErrInvalidTarget},
		{"bad pattern", in, Options{Output: t.TempDir(), Pattern: "[a-"}, filepath.ErrBadPattern},
		{"batch needs directory", file, Options{Output: t.TempDir(), Batch: true}, ErrNotDirectory},
		{"missing input", filepath.Join(in, "gone"), Options{Output: t.TempDir()}, processor.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := enginetest.New()
			_, err := Run(context.Background(), fake, tt.input, tt.opts)
			require.ErrorIs(t, err, tt.wantIs)
			assert.Empty(t, fake.Calls(), "no engine call on setup errors")
		})
	}
}

func TestRun_Parallel(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	files := map[string][]byte{}
	for _, name := range []string{"01.wav", "02.wav", "03.wav", "04.wav", "05.wav", "06.wav"} {
		files[name] = audio()
	}
	writeFiles(t, in, files)

	fake := enginetest.New()
	fake.Delay = 10 * time.Millisecond

	var mu sync.Mutex
	var starts, completes int
	result, err := Run(context.Background(), fake, in, Options{
		Output:      out,
		Concurrency: 3,
		OnEvent: func(ev Event) {
			mu.Lock()
			defer mu.Unlock()
			switch ev.Kind {
			case EventFileStart:
				starts++
			case EventFileComplete:
				completes++
				assert.NotNil(t, ev.Outcome)
			}
			assert.Equal(t, 6, ev.Total)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 6, result.Succeeded)
	assert.Equal(t, 6, starts)
	assert.Equal(t, 6, completes)
	for i, o := range result.Outcomes {
		assert.Equal(t, filepath.Join(in, []string{"01.wav", "02.wav", "03.wav", "04.wav", "05.wav", "06.wav"}[i]), o.Source)
	}
}

func TestRun_Cancellation(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFiles(t, in, map[string][]byte{"a.wav": audio(), "b.wav": audio(), "c.wav": audio()})

	fake := enginetest.New()
	fake.Delay = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	result, err := Run(ctx, fake, in, Options{Output: out})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 3, result.Cancelled)
	for _, o := range result.Outcomes {
		assert.Equal(t, processor.StatusCancelled, o.Status)
	}
	assert.Len(t, fake.Calls(), 1, "only the in-flight job reached the engine")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial output after cancellation")
}

func TestRun_EmptyDirectory(t *testing.T) {
	result, err := Run(context.Background(), enginetest.New(), t.TempDir(), Options{Output: t.TempDir()})
	require.NoError(t, err)
	assert.Empty(t, result.Outcomes)
	assert.True(t, result.OK())
}

func TestRun_ExistingDestination(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFiles(t, in, map[string][]byte{"a.wav": audio()})
	writeFiles(t, out, map[string][]byte{"a.wav": []byte("previous master")})

	result, err := Run(context.Background(), enginetest.New(), in, Options{Output: out})
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	assert.ErrorIs(t, result.Outcomes[0].Err, processor.ErrDestinationExists)
	assert.Equal(t, "previous master", readFile(t, filepath.Join(out, "a.wav")))

	result, err = Run(context.Background(), enginetest.New(), in, Options{Output: out, Overwrite: true})
	require.NoError(t, err)
	require.Equal(t, 1, result.Succeeded)
	assert.Equal(t, "LUFS:-23.0", readFile(t, filepath.Join(out, "a.wav")))
}

// flakyEngine fails its first call as if the binary were briefly missing,
// then behaves like the fake.
type flakyEngine struct {
	mu    sync.Mutex
	calls int
	next  *enginetest.Fake
}

func (f *flakyEngine) Run(ctx context.Context, args ...string) (string, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()
	if first {
		return "", fmt.Errorf("%w: ffmpeg: text file busy", engine.ErrEngineUnavailable)
	}
	return f.next.Run(ctx, args...)
}

func TestRun_EngineUnavailableFailsOnlyAffectedJob(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFiles(t, in, map[string][]byte{"a.wav": audio(), "b.wav": audio(), "c.wav": audio()})

	runner := &flakyEngine{next: enginetest.New()}
	result, err := Run(context.Background(), runner, in, Options{Output: out})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, processor.StatusFailed, result.Outcomes[0].Status)
	assert.ErrorIs(t, result.Outcomes[0].Err, engine.ErrEngineUnavailable)
	for _, o := range result.Outcomes[1:] {
		assert.Equal(t, processor.StatusSucceeded, o.Status, o.Source)
	}
	assert.Greater(t, runner.calls, 2, "later jobs still call the engine")
}

func TestRun_VoiceAnalyzeWithCorruptFile(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFiles(t, in, map[string][]byte{"a.wav": audio(), "b.wav": nil})

	fake := enginetest.New()
	result, err := Run(context.Background(), fake, in, Options{Output: out, Preset: "voice", Analyze: true})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	a := result.Outcomes[0]
	require.NotNil(t, a.Before)
	require.NotNil(t, a.After)
	assert.InDelta(t, enginetest.DefaultLUFS, a.Before.InputI, 0.01)
	assert.InDelta(t, -20.0, a.After.InputI, 0.5)
	assert.Equal(t, processor.ModeTwoPassLinear, a.Mode)

	b := result.Outcomes[1]
	assert.Equal(t, processor.StatusFailed, b.Status)
	assert.ErrorIs(t, b.Err, processor.ErrMeasurementParse)
	assert.False(t, b.Fallback, "analyze makes a failed measurement fatal")
}
