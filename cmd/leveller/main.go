package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"

	"github.com/linuxmatters/leveller/internal/batch"
	"github.com/linuxmatters/leveller/internal/cli"
	"github.com/linuxmatters/leveller/internal/config"
	"github.com/linuxmatters/leveller/internal/engine"
	"github.com/linuxmatters/leveller/internal/logging"
	"github.com/linuxmatters/leveller/internal/mains"
	"github.com/linuxmatters/leveller/internal/processor"
	"github.com/linuxmatters/leveller/internal/ui"
)

var (
	version = "0.0.1"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1 // at least one file failed or was cancelled
	exitSetup  = 2 // usage, configuration or engine problem
)

// versionWait bounds the engine call made for --version
const versionWait = 5 * time.Second

// CLI defines the command-line interface
type CLI struct {
	Input  string `arg:"" optional:"" name:"input" help:"Audio file or directory to normalise"`
	Output string `arg:"" optional:"" name:"output" help:"Output file or directory"`

	Preset      string   `short:"p" help:"Normalisation preset (see below)" placeholder:"NAME" group:"Loudness"`
	TargetLUFS  *float64 `name:"target-lufs" help:"Override the preset's integrated loudness target" placeholder:"LUFS" group:"Loudness"`
	TargetPeak  *float64 `name:"target-peak" help:"Override the preset's true peak ceiling" placeholder:"DBTP" group:"Loudness"`
	Compression bool     `help:"Apply the preset's compressor before normalising" group:"Loudness"`
	FullRange   bool     `name:"full-range" help:"Skip the preset's high-pass and low-pass filters" group:"Loudness"`
	Dehum       bool     `help:"Notch out mains hum and its harmonics" group:"Loudness"`
	MainsHz     float64  `name:"mains-hz" help:"Mains frequency for --dehum, detected from the timezone when unset" placeholder:"HZ" group:"Loudness"`

	Batch       bool   `short:"b" help:"Process every matching file in the input directory" group:"Files"`
	FilePattern string `name:"file-pattern" help:"Glob selecting files in directory mode" placeholder:"GLOB" group:"Files"`
	Jobs        int    `short:"j" help:"Files processed in parallel" placeholder:"N" group:"Files"`
	Overwrite   bool   `help:"Replace existing output files" group:"Files"`
	Analyze     bool   `short:"a" help:"Measure the output and show a before/after comparison"`
	Info        bool   `help:"Show file information and exit"`
	ListPresets bool   `name:"list-presets" help:"List the available presets and exit"`

	EnginePath string        `name:"engine-path" help:"Path to the ffmpeg executable" placeholder:"PATH" group:"Engine"`
	Timeout    time.Duration `help:"Limit for each engine invocation, e.g. 10m" placeholder:"DURATION" group:"Engine"`
	Config     string        `short:"c" type:"path" help:"Path to TOML config file (optional)"`
	Plain      bool          `help:"Plain log output instead of the interactive display"`
	Debug      bool          `help:"Log filter chains and other detail"`
	Version    bool          `short:"v" help:"Show version information"`
}

func main() {
	os.Exit(run())
}

func run() int {
	cliArgs := &CLI{}
	parser, err := kong.New(cliArgs,
		kong.Name("leveller"),
		kong.Description("Two-pass loudness normalisation with FFmpeg"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)
	if err != nil {
		cli.PrintError(err.Error())
		return exitSetup
	}
	kctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.Errorf("%s", err)
		return exitSetup
	}

	if cliArgs.ListPresets {
		cli.PrintPresets(os.Stdout)
		return exitOK
	}

	cfg, err := config.Load(cliArgs.Config)
	if err != nil {
		cli.PrintError(err.Error())
		return exitSetup
	}
	applyFlags(cfg, cliArgs)
	if err := cfg.Validate(); err != nil {
		cli.PrintError(err.Error())
		return exitSetup
	}

	if cliArgs.Version {
		engineVersion := ""
		if eng, err := engine.Locate(cfg.EnginePath); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), versionWait)
			engineVersion, _ = eng.Version(ctx)
			cancel()
		}
		cli.PrintVersion(os.Stdout, version, engineVersion)
		return exitOK
	}

	if cliArgs.Input == "" {
		cli.PrintError("No input specified")
		_ = kctx.PrintUsage(false)
		return exitSetup
	}

	logger, closeLog, err := newLogger(cfg, cliArgs)
	if err != nil {
		cli.PrintError(err.Error())
		return exitSetup
	}
	defer closeLog()

	eng, err := engine.Locate(cfg.EnginePath)
	if err != nil {
		cli.PrintError(err.Error())
		return exitSetup
	}
	eng.Timeout = cfg.Timeout.Duration

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cliArgs.Info {
		return showInfo(ctx, eng, cliArgs.Input, cfg.FilePattern)
	}

	if cliArgs.Output == "" {
		cli.PrintError("No output specified")
		_ = kctx.PrintUsage(false)
		return exitSetup
	}

	opts := batch.Options{
		Output:      cliArgs.Output,
		Pattern:     cfg.FilePattern,
		Preset:      cfg.Preset,
		TargetLUFS:  cliArgs.TargetLUFS,
		TargetPeak:  cliArgs.TargetPeak,
		FullRange:   cliArgs.FullRange,
		Compression: cliArgs.Compression,
		Analyze:     cliArgs.Analyze,
		Overwrite:   cfg.Overwrite,
		Concurrency: cfg.Jobs,
		Batch:       cliArgs.Batch,
		Logger:      logger,
	}
	if cliArgs.Dehum {
		det := mains.Resolve(cfg.MainsHz)
		opts.HumFrequency = det.Hz
		logger.Info("hum notch", "hz", det.Hz, "source", det.Source, "timezone", det.Timezone, "country", det.Country)
	}

	p, err := batch.ResolvePreset(opts)
	if err != nil {
		cli.PrintError(err.Error())
		return exitSetup
	}
	target := processor.TargetFor(p)

	var result *batch.Result
	if useTUI(cliArgs) {
		result, err = runWithUI(ctx, eng, cliArgs.Input, opts, p.Name, target)
	} else {
		result, err = batch.Run(ctx, eng, cliArgs.Input, opts)
	}
	if err != nil {
		cli.PrintError(err.Error())
		return exitSetup
	}

	if cliArgs.Analyze {
		for _, o := range result.Outcomes {
			if o.Status == processor.StatusSucceeded {
				logging.DisplayComparison(os.Stdout, o, target)
			}
		}
	}

	cli.PrintSummary(os.Stdout, result)
	if !result.OK() {
		return exitFailed
	}
	return exitOK
}

// applyFlags overrides config values with the flags that were given.
func applyFlags(cfg *config.Config, c *CLI) {
	if c.EnginePath != "" {
		cfg.EnginePath = c.EnginePath
	}
	if c.Timeout > 0 {
		cfg.Timeout.Duration = c.Timeout
	}
	if c.Jobs > 0 {
		cfg.Jobs = c.Jobs
	}
	if c.Preset != "" {
		cfg.Preset = c.Preset
	}
	if c.FilePattern != "" {
		cfg.FilePattern = c.FilePattern
	}
	if c.Overwrite {
		cfg.Overwrite = true
	}
	if c.MainsHz != 0 {
		cfg.MainsHz = c.MainsHz
	}
}

// newLogger returns the logger handed to the batch. The log_file setting
// takes it over entirely; the interactive display gets a silent one.
func newLogger(cfg *config.Config, c *CLI) (*log.Logger, func(), error) {
	if cfg.LogFile != "" {
		logger, f, err := logging.OpenFileLogger(cfg.LogFile)
		if err != nil {
			return nil, nil, err
		}
		return logger, func() { _ = f.Close() }, nil
	}
	if useTUI(c) {
		return logging.NewLogger(io.Discard, c.Debug), func() {}, nil
	}
	return logging.NewLogger(os.Stderr, c.Debug), func() {}, nil
}

func useTUI(c *CLI) bool {
	return !c.Plain && !c.Info && isatty.IsTerminal(os.Stdout.Fd())
}

// runWithUI runs the batch in the background and feeds its events to the
// Bubbletea program.
func runWithUI(ctx context.Context, eng *engine.Engine, input string, opts batch.Options, presetName string, target processor.Target) (*batch.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.NewModel(presetName, target, cancel), tea.WithAltScreen())

	opts.OnEvent = func(ev batch.Event) {
		if msg := ui.MessageFor(ev); msg != nil {
			p.Send(msg)
		}
	}

	type runResult struct {
		result *batch.Result
		err    error
	}
	done := make(chan runResult, 1)
	go func() {
		result, err := batch.Run(ctx, eng, input, opts)
		done <- runResult{result, err}
		p.Send(ui.AllCompleteMsg{Result: result, Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		cli.PrintError(fmt.Sprintf("UI error: %v", err))
	}
	r := <-done
	return r.result, r.err
}

// showInfo prints --info for a file, or for every matching file of a
// directory.
func showInfo(ctx context.Context, eng *engine.Engine, input, pattern string) int {
	paths := []string{input}
	if st, err := os.Stat(input); err == nil && st.IsDir() {
		matches, err := filepath.Glob(filepath.Join(input, pattern))
		if err != nil {
			cli.PrintError(err.Error())
			return exitSetup
		}
		paths = matches
	}

	code := exitOK
	for _, path := range paths {
		info, inspectErr := processor.Inspect(path)
		probe, probeErr := eng.Probe(ctx, path)
		if info == nil && probe == nil {
			cli.PrintError(fmt.Sprintf("%s: %v", path, errors.Join(inspectErr, probeErr)))
			code = exitFailed
			continue
		}
		if info == nil {
			if st, err := os.Stat(path); err == nil {
				info = &processor.FileInfo{Path: path, Size: st.Size()}
			}
		}
		logging.DisplayFileInfo(os.Stdout, path, info, probe)
	}
	return code
}
