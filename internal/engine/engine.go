// Package engine locates and invokes the external audio engine (FFmpeg).
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultPath is the engine looked up on PATH when no override is given.
const DefaultPath = "ffmpeg"

// diagnosticTailLines is how much of stderr is kept on failure.
const diagnosticTailLines = 12

var (
	// ErrEngineUnavailable means the engine binary could not be found or started.
	ErrEngineUnavailable = errors.New("audio engine unavailable")

	// ErrEngineExecutionFailed means the engine ran but did not succeed:
	// nonzero exit, timeout or cancellation.
	ErrEngineExecutionFailed = errors.New("audio engine execution failed")
)

// ExecutionError describes a failed engine invocation.
type ExecutionError struct {
	ExitCode       int    // -1 when the process was killed
	DiagnosticTail string // last lines of the engine's diagnostic stream
	TimedOut       bool
	Err            error
}

func (e *ExecutionError) Error() string {
	var b strings.Builder
	switch {
	case e.TimedOut:
		b.WriteString("audio engine timed out")
	case e.ExitCode >= 0:
		fmt.Fprintf(&b, "audio engine exited with status %d", e.ExitCode)
	default:
		fmt.Fprintf(&b, "audio engine failed: %v", e.Err)
	}
	if e.DiagnosticTail != "" {
		b.WriteString(": ")
		b.WriteString(lastLine(e.DiagnosticTail))
	}
	return b.String()
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *ExecutionError) Unwrap() []error {
	return []error{ErrEngineExecutionFailed, e.Err}
}

// Engine is a located engine binary plus per-invocation settings.
type Engine struct {
	Path      string        // resolved ffmpeg executable
	ProbePath string        // resolved ffprobe executable, empty if none
	Timeout   time.Duration // per invocation, zero means unbounded
}

// Locate resolves the engine executable. An empty path means DefaultPath.
func Locate(path string) (*Engine, error) {
	if path == "" {
		path = DefaultPath
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, unavailable(path, err)
	}
	return &Engine{
		Path:      resolved,
		ProbePath: probePathFor(resolved),
	}, nil
}

// probePathFor finds the ffprobe that ships alongside the engine, falling
// back to the one on PATH.
func probePathFor(enginePath string) string {
	dir, base := filepath.Split(enginePath)
	if strings.Contains(base, "ffmpeg") {
		candidate := filepath.Join(dir, strings.Replace(base, "ffmpeg", "ffprobe", 1))
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	if p, err := exec.LookPath("ffprobe"); err == nil {
		return p
	}
	return ""
}

func unavailable(path string, err error) error {
	return fmt.Errorf("%w: %q could not be run (%v). Install FFmpeg and make sure it is on your PATH, or point --engine-path at the ffmpeg executable",
		ErrEngineUnavailable, path, err)
}

// Run invokes the engine with args and returns its diagnostic stream.
// Standard output is discarded.
func (e *Engine) Run(ctx context.Context, args ...string) (string, error) {
	_, stderr, err := e.exec(ctx, e.Path, args...)
	return stderr, err
}

// Version returns the first line of the engine's -version banner.
func (e *Engine) Version(ctx context.Context) (string, error) {
	stdout, _, err := e.exec(ctx, e.Path, "-version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(stdout), "\n")
	return line, nil
}

func (e *Engine) exec(ctx context.Context, bin string, args ...string) (string, string, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if err == nil {
		return stdout.String(), stderr.String(), nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return stdout.String(), stderr.String(), unavailable(bin, err)
	}

	execErr := &ExecutionError{
		ExitCode:       -1,
		DiagnosticTail: Tail(stderr.String(), diagnosticTailLines),
		Err:            err,
	}
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		execErr.TimedOut = true
		execErr.Err = ctxErr
	case ctxErr != nil:
		execErr.Err = ctxErr
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}
	}
	return stdout.String(), stderr.String(), execErr
}

// Tail returns the last n non-empty lines of s.
func Tail(s string, n int) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	var kept []string
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			kept = append(kept, line)
		}
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
