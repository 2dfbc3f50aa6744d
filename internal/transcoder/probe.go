package transcoder

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
)

// probeOutput is the subset of ffprobe's JSON output we read.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		Duration string `json:"duration"`
	} `json:"streams"`
}

// FFprobe implements Prober using the ffprobe CLI.
type FFprobe struct {
	path   string
	logger *slog.Logger
}

var _ Prober = (*FFprobe)(nil)

// NewFFprobe creates a prober running the binary at path.
// If path is empty, "ffprobe" is looked up in PATH.
func NewFFprobe(path string, logger *slog.Logger) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFprobe{path: path, logger: logger}
}

// Probe returns the container duration, falling back to the first stream
// that reports one. Any failure yields UnknownDuration.
func (p *FFprobe) Probe(ctx context.Context, path string) Duration {
	cmd := exec.CommandContext(ctx, p.path, buildProbeArgs(path)...)
	out, err := cmd.Output()
	if err != nil {
		p.logger.Debug("ffprobe failed", "path", path, "error", err)
		return UnknownDuration
	}

	d, err := parseProbeOutput(out)
	if err != nil {
		p.logger.Debug("ffprobe output unreadable", "path", path, "error", err)
		return UnknownDuration
	}
	return d
}

func buildProbeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
}

// parseProbeOutput extracts the duration from ffprobe JSON. Values that are
// missing, unparseable ("N/A") or not positive are skipped.
func parseProbeOutput(data []byte) (Duration, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return UnknownDuration, err
	}

	if d, ok := parseSeconds(out.Format.Duration); ok {
		return d, nil
	}
	for _, s := range out.Streams {
		if d, ok := parseSeconds(s.Duration); ok {
			return d, nil
		}
	}
	return UnknownDuration, nil
}

func parseSeconds(s string) (Duration, bool) {
	if s == "" {
		return UnknownDuration, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return UnknownDuration, false
	}
	return KnownDuration(v), true
}
