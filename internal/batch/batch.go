// Package batch turns an input path into normalisation jobs and runs them.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/linuxmatters/leveller/internal/preset"
	"github.com/linuxmatters/leveller/internal/processor"
)

// ErrNotDirectory means batch mode was requested for a non-directory input.
var ErrNotDirectory = errors.New("input is not a directory")

// DefaultPattern selects the files processed in directory mode.
const DefaultPattern = "*.wav"

// Options configure a run. Zero values select the defaults.
type Options struct {
	Output  string // file or directory; see Plan
	Pattern string // glob for directory mode, DefaultPattern if empty

	Preset     string   // preset name, preset.Default if empty
	TargetLUFS *float64 // overrides the preset's loudness target
	TargetPeak *float64 // overrides the preset's true peak ceiling
	FullRange  bool     // drop the preset's band limits

	Compression  bool
	Analyze      bool
	Overwrite    bool
	HumFrequency float64 // mains Hz for the hum notch, 0 disables it

	Concurrency int  // parallel jobs, 1 if < 1
	Batch       bool // require input to be a directory

	// OnEvent receives progress. Calls are serialized.
	OnEvent func(Event)
	Logger  *log.Logger
}

// EventKind identifies an Event.
type EventKind int

const (
	EventPlanned EventKind = iota // Sources lists every job, in order
	EventFileStart
	EventPass
	EventFileComplete
)

// Event reports batch progress to a UI.
type Event struct {
	Kind     EventKind
	Index    int // job index, valid for per-file events
	Total    int
	Source   string
	Sources  []string           // EventPlanned only
	Pass     int                // EventPass only
	PassName string             // EventPass only
	Outcome  *processor.Outcome // EventFileComplete only
}

// Result is the summary of a run. Outcomes are in job order.
type Result struct {
	Succeeded int
	Failed    int
	Cancelled int
	Outcomes  []processor.Outcome
}

// Failures returns the outcomes that did not succeed.
func (r *Result) Failures() []processor.Outcome {
	var out []processor.Outcome
	for _, o := range r.Outcomes {
		if o.Status != processor.StatusSucceeded {
			out = append(out, o)
		}
	}
	return out
}

// OK reports whether every job succeeded.
func (r *Result) OK() bool {
	return r.Failed == 0 && r.Cancelled == 0
}

// ResolvePreset applies the preset name and overrides in opts.
func ResolvePreset(opts Options) (preset.Preset, error) {
	name := opts.Preset
	if name == "" {
		name = preset.Default
	}
	p, err := preset.Resolve(name)
	if err != nil {
		return preset.Preset{}, err
	}
	if opts.TargetLUFS != nil || opts.TargetPeak != nil {
		if p, err = p.WithTargets(opts.TargetLUFS, opts.TargetPeak); err != nil {
			return preset.Preset{}, err
		}
	}
	if opts.FullRange {
		p = p.FullRange()
	}
	return p, nil
}

// Plan expands input into jobs without touching the engine. A file input
// gives one job whose destination is Output, or Output/<name> when Output
// is a directory or ends in a path separator. A directory input gives one
// job per matching regular file, in lexicographic order, mirrored by name
// under Output.
func Plan(input string, p preset.Preset, opts Options) ([]processor.Job, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}
	if opts.Output == "" {
		return nil, errors.New("no output path given")
	}

	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", processor.ErrInvalidInput, err)
	}

	newJob := func(src, dst string) processor.Job {
		return processor.Job{
			Source:       src,
			Destination:  dst,
			Preset:       p,
			Compression:  opts.Compression,
			Analyze:      opts.Analyze,
			Overwrite:    opts.Overwrite,
			HumFrequency: opts.HumFrequency,
		}
	}

	if !info.IsDir() {
		if opts.Batch {
			return nil, fmt.Errorf("%w: %s", ErrNotDirectory, input)
		}
		return []processor.Job{newJob(input, singleDestination(input, opts.Output))}, nil
	}

	sources, err := discover(input, pattern)
	if err != nil {
		return nil, err
	}
	jobs := make([]processor.Job, 0, len(sources))
	for _, src := range sources {
		jobs = append(jobs, newJob(src, filepath.Join(opts.Output, filepath.Base(src))))
	}
	return jobs, nil
}

func singleDestination(src, output string) string {
	if strings.HasSuffix(output, string(os.PathSeparator)) || strings.HasSuffix(output, "/") {
		return filepath.Join(output, filepath.Base(src))
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, filepath.Base(src))
	}
	return output
}

// discover lists the regular files directly inside dir whose names match
// pattern. os.ReadDir returns entries sorted by name.
func discover(dir, pattern string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var sources []string
	for _, e := range entries {
		if ok, _ := filepath.Match(pattern, e.Name()); !ok {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path) // follows symlinks
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		sources = append(sources, path)
	}
	return sources, nil
}

// Run resolves the preset, plans the jobs and processes them with at most
// opts.Concurrency in flight. Setup problems are returned as errors before
// any engine call; per-file problems are recorded in the Result.
func Run(ctx context.Context, runner processor.Runner, input string, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	p, err := ResolvePreset(opts)
	if err != nil {
		return nil, err
	}
	jobs, err := Plan(input, p, opts)
	if err != nil {
		return nil, err
	}
	if err := prepareOutputs(input, opts.Output, jobs); err != nil {
		return nil, err
	}

	logger.Debug("planned", "input", input, "jobs", len(jobs), "preset", p.Name,
		"target_lufs", p.TargetLUFS, "target_peak", p.TargetPeak)
	if len(jobs) == 0 {
		logger.Warn("no files matched", "input", input, "pattern", patternOrDefault(opts.Pattern))
	}

	var emitMu sync.Mutex
	emit := func(ev Event) {
		if opts.OnEvent == nil {
			return
		}
		emitMu.Lock()
		defer emitMu.Unlock()
		ev.Total = len(jobs)
		opts.OnEvent(ev)
	}

	sources := make([]string, len(jobs))
	for i, j := range jobs {
		sources[i] = j.Source
	}
	emit(Event{Kind: EventPlanned, Sources: sources})

	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}

	// Each goroutine writes only its own slot
	outcomes := make([]processor.Outcome, len(jobs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, job := range jobs {
		i, job := i, job // per-iteration copies (go.mod targets Go 1.21)
		if ctx.Err() != nil {
			outcomes[i] = cancelled(job, ctx.Err())
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = cancelled(job, ctx.Err())
				return nil
			}
			emit(Event{Kind: EventFileStart, Index: i, Source: job.Source})
			o := processor.ProcessJob(ctx, runner, job, func(pass int, name string) {
				emit(Event{Kind: EventPass, Index: i, Source: job.Source, Pass: pass, PassName: name})
			})
			outcomes[i] = o

			logOutcome(logger, o)
			emit(Event{Kind: EventFileComplete, Index: i, Source: job.Source, Outcome: &o})
			return nil
		})
	}
	_ = g.Wait() // jobs report failures through their Outcome

	result := &Result{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case processor.StatusSucceeded:
			result.Succeeded++
		case processor.StatusCancelled:
			result.Cancelled++
		default:
			result.Failed++
		}
	}
	return result, nil
}

// prepareOutputs creates the directories destinations are written into.
func prepareOutputs(input, output string, jobs []processor.Job) error {
	if info, err := os.Stat(input); err == nil && info.IsDir() {
		if err := os.MkdirAll(output, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		return nil
	}
	for _, j := range jobs {
		if err := os.MkdirAll(filepath.Dir(j.Destination), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return nil
}

func cancelled(job processor.Job, err error) processor.Outcome {
	return processor.Outcome{
		Source:      job.Source,
		Destination: job.Destination,
		Status:      processor.StatusCancelled,
		Err:         fmt.Errorf("not started: %w", err),
	}
}

func logOutcome(logger *log.Logger, o processor.Outcome) {
	for _, w := range o.Warnings {
		logger.Warn(w, "file", o.Source)
	}
	switch o.Status {
	case processor.StatusSucceeded:
		kv := []any{"file", o.Source, "output", o.Destination, "mode", o.Mode, "took", o.Duration.Round(10 * time.Millisecond)}
		if o.Before != nil {
			kv = append(kv, "input_i", o.Before.InputI)
		}
		if o.After != nil {
			kv = append(kv, "output_i", o.After.InputI)
		}
		logger.Info("normalised", kv...)
		logger.Debug("filter chain", "file", o.Source, "chain", o.Chain)
	case processor.StatusCancelled:
		logger.Warn("cancelled", "file", o.Source)
	default:
		if processor.IsUnavailable(o.Err) {
			logger.Error("engine unavailable", "file", o.Source, "err", o.Err)
			return
		}
		logger.Error("failed", "file", o.Source, "err", o.Err)
	}
}

func patternOrDefault(p string) string {
	if p == "" {
		return DefaultPattern
	}
	return p
}
