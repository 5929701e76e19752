package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

var (
	ErrNoProber    = errors.New("no metadata prober available")
	ErrNoVideo     = errors.New("no video stream found")
	defaultTimeout = 15 * time.Second
)

// ProbeResult is the container metadata the validator needs.
type ProbeResult struct {
	Duration   float64
	Width      int
	Height     int
	FormatName string
}

type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// runProbe executes the probe binary and returns its stdout.
var runProbe = func(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, bin, args...).Output()
}

// FFProbe reads metadata with the ffprobe command line tool.
type FFProbe struct {
	Bin     string
	Timeout time.Duration
}

func NewFFProbe(bin string) *FFProbe {
	if bin == "" {
		bin = "ffprobe"
	}
	return &FFProbe{Bin: bin, Timeout: defaultTimeout}
}

func (p *FFProbe) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	out, err := runProbe(ctx, p.Bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbeOutput(out)
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

func parseProbeOutput(b []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		res := &ProbeResult{Width: s.Width, Height: s.Height, FormatName: out.Format.FormatName}
		dur := out.Format.Duration
		if dur == "" || dur == "N/A" {
			dur = s.Duration
		}
		if d, err := strconv.ParseFloat(dur, 64); err == nil {
			res.Duration = d
		}
		return res, nil
	}

	return nil, ErrNoVideo
}
