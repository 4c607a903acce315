package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrDestinationExists means the output path is taken and overwriting was
// not requested.
var ErrDestinationExists = errors.New("destination already exists")

// ExecuteOptions controls the correction pass.
type ExecuteOptions struct {
	Overwrite  bool
	SampleRate int // output rate in Hz, 0 leaves the engine's default
}

// tempPathFor names the scratch file the engine renders into. It lives in
// the destination directory so the final move is a same-filesystem rename,
// and keeps an audio extension so the engine picks the right muxer.
func tempPathFor(out, in string) string {
	dir, base := filepath.Split(out)
	ext := filepath.Ext(base)
	if ext == "" {
		ext = filepath.Ext(in)
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp%s", name, uuid.NewString(), ext))
}

func executeArgs(in, tmp string, chain FilterChain, opts ExecuteOptions) []string {
	args := []string{
		"-hide_banner",
		"-nostats",
		"-n", // never clobber; the scratch name is unique
		"-i", in,
		"-af", chain.String(),
	}
	// loudnorm upsamples to 192 kHz internally
	if opts.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(opts.SampleRate))
	}
	return append(args, tmp)
}

// Execute renders in through chain into out. The engine writes a scratch
// file beside out which is moved into place only on success. It returns the
// statistics loudnorm reported for its own output, or nil when there were
// none.
func Execute(ctx context.Context, runner Runner, in, out string, chain FilterChain, opts ExecuteOptions) (*Measurement, error) {
	if !opts.Overwrite {
		if err := checkFree(out); err != nil {
			return nil, err
		}
	}

	tmp := tempPathFor(out, in)
	stderr, err := runner.Run(ctx, executeArgs(in, tmp, chain, opts)...)
	if err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to render %s: %w", in, err)
	}

	if err := moveIntoPlace(tmp, out, opts.Overwrite); err != nil {
		os.Remove(tmp)
		return nil, err
	}

	if result := ParseOutputMeasurement(stderr); result.OK() {
		return result.Measurement, nil
	}
	return nil, nil
}

func checkFree(out string) error {
	_, err := os.Lstat(out)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s (use --overwrite to replace it)", ErrDestinationExists, out)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("failed to check destination: %w", err)
	}
}

// moveIntoPlace publishes tmp as out. Without overwrite a hard link gives
// an atomic no-clobber publish; filesystems without links fall back to a
// re-checked rename.
func moveIntoPlace(tmp, out string, overwrite bool) error {
	if overwrite {
		if err := os.Rename(tmp, out); err != nil {
			return fmt.Errorf("failed to move output into place: %w", err)
		}
		return nil
	}

	err := os.Link(tmp, out)
	if err == nil {
		os.Remove(tmp)
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", ErrDestinationExists, out)
	}

	if err := checkFree(out); err != nil {
		return err
	}
	if err := os.Rename(tmp, out); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
