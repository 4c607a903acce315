package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// ProbeInfo is the subset of ffprobe's JSON report shown by --info.
type ProbeInfo struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat describes the container.
type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream describes one elementary stream.
type ProbeStream struct {
	CodecType     string `json:"codec_type"`
	CodecName     string `json:"codec_name"`
	SampleRate    string `json:"sample_rate"`
	Channels      int    `json:"channels"`
	ChannelLayout string `json:"channel_layout"`
}

// AudioStream returns the first audio stream, or nil.
func (p *ProbeInfo) AudioStream() *ProbeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

// SampleRate returns the first audio stream's rate in Hz, or 0.
func (p *ProbeInfo) SampleRate() int {
	s := p.AudioStream()
	if s == nil {
		return 0
	}
	rate, err := strconv.Atoi(s.SampleRate)
	if err != nil {
		return 0
	}
	return rate
}

// Probe runs ffprobe against path.
func (e *Engine) Probe(ctx context.Context, path string) (*ProbeInfo, error) {
	if e.ProbePath == "" {
		return nil, fmt.Errorf("%w: ffprobe not found next to %s or on PATH", ErrEngineUnavailable, e.Path)
	}
	stdout, _, err := e.exec(ctx, e.ProbePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}

	var info ProbeInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &info, nil
}
