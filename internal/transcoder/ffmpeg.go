package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// FFmpegConfig holds configuration for the FFmpeg transcoder.
type FFmpegConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	// If empty, "ffmpeg" will be used (assumes it's in PATH).
	FFmpegPath string

	// FFprobePath is the path to the ffprobe binary.
	// If empty, "ffprobe" will be used.
	FFprobePath string

	// VideoCodec is the video codec to use.
	// Default: libvpx-vp9
	VideoCodec string

	// PixelFormat must carry an alpha plane so transparent emotes stay transparent.
	// Default: yuva420p
	PixelFormat string

	// CRF is the constant quality level (lower is better). Zero selects
	// the default.
	// Default: 32
	CRF int

	// ChunkSize is the read size used by Stream.
	// Default: 8192
	ChunkSize int

	// WaitDelay bounds how long pipe I/O may linger after the process
	// is killed or exits.
	// Default: 5s
	WaitDelay time.Duration

	// MaxStderrBytes limits how much diagnostic output is retained for
	// classification and logging.
	// Default: 64KiB
	MaxStderrBytes int
}

// DefaultFFmpegConfig returns an FFmpegConfig with production-ready defaults.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		VideoCodec:     "libvpx-vp9",
		PixelFormat:    "yuva420p",
		CRF:            32,
		ChunkSize:      8192,
		WaitDelay:      5 * time.Second,
		MaxStderrBytes: 64 << 10,
	}
}

func (c FFmpegConfig) withDefaults() FFmpegConfig {
	d := DefaultFFmpegConfig()
	if c.FFmpegPath == "" {
		c.FFmpegPath = d.FFmpegPath
	}
	if c.FFprobePath == "" {
		c.FFprobePath = d.FFprobePath
	}
	if c.VideoCodec == "" {
		c.VideoCodec = d.VideoCodec
	}
	if c.PixelFormat == "" {
		c.PixelFormat = d.PixelFormat
	}
	if c.CRF <= 0 {
		c.CRF = d.CRF
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.WaitDelay <= 0 {
		c.WaitDelay = d.WaitDelay
	}
	if c.MaxStderrBytes <= 0 {
		c.MaxStderrBytes = d.MaxStderrBytes
	}
	return c
}

// FFmpegTranscoder implements Transcoder using FFmpeg CLI.
type FFmpegTranscoder struct {
	config FFmpegConfig
	prober Prober
	logger *slog.Logger
}

// Compile-time verification that FFmpegTranscoder implements Transcoder.
var _ Transcoder = (*FFmpegTranscoder)(nil)

// NewFFmpegTranscoder creates a new FFmpeg-based transcoder. Zero fields of
// cfg take their values from DefaultFFmpegConfig.
func NewFFmpegTranscoder(cfg FFmpegConfig, logger *slog.Logger) *FFmpegTranscoder {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &FFmpegTranscoder{
		config: cfg,
		prober: NewFFprobe(cfg.FFprobePath, logger),
		logger: logger,
	}
}

// Convert probes the input, plans the filters and runs ffmpeg to completion.
// On failure any partial output file is removed.
func (t *FFmpegTranscoder) Convert(ctx context.Context, inputPath, outputPath string) (*ConvertResult, error) {
	if err := t.validateInput(inputPath); err != nil {
		return nil, unexpected(err)
	}

	duration := t.prober.Probe(ctx, inputPath)
	plan := PlanFor(duration)

	cmd := t.command(ctx, t.buildConvertArgs(inputPath, outputPath, plan))
	stderr := newBoundedBuffer(t.config.MaxStderrBytes)
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		t.removePartial(outputPath)

		if ctx.Err() != nil {
			return nil, unexpected(fmt.Errorf("conversion cancelled: %w", ctx.Err()))
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			t.logger.Error("ffmpeg conversion failed",
				"input", inputPath,
				"exit_code", exitErr.ExitCode(),
				"stderr", stderr.String(),
			)
			return nil, Classify(stderr.String())
		}

		t.logger.Error("unexpected error during conversion", "input", inputPath, "error", err)
		return nil, unexpected(err)
	}

	return &ConvertResult{
		OutputPath: outputPath,
		Duration:   duration,
		Plan:       plan,
	}, nil
}

// Stream starts ffmpeg writing a WebM clip of source to its stdout.
func (t *FFmpegTranscoder) Stream(ctx context.Context, source string) (*Stream, error) {
	if source == "" {
		return nil, streamSetup(errors.New("empty source"))
	}

	cmd := t.command(ctx, t.buildStreamArgs(source))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, streamSetup(err)
	}
	stderr := newBoundedBuffer(t.config.MaxStderrBytes)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		t.logger.Error("failed to start ffmpeg stream", "source", source, "error", err)
		return nil, streamSetup(err)
	}

	return &Stream{
		ctx:    ctx,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		buf:    make([]byte, t.config.ChunkSize),
		source: source,
		logger: t.logger,
	}, nil
}

// command builds an ffmpeg invocation in its own process group. Context
// cancellation kills the whole group.
func (t *FFmpegTranscoder) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, t.config.FFmpegPath, args...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = t.config.WaitDelay
	return cmd
}

// validateInput checks if the input file exists and is readable.
func (t *FFmpegTranscoder) validateInput(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", inputPath)
		}
		return fmt.Errorf("failed to access input file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a file: %s", inputPath)
	}

	return nil
}

func (t *FFmpegTranscoder) removePartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		t.logger.Warn("failed to remove partial output", "path", path, "error", err)
	}
}

// buildConvertArgs constructs the arguments for a file-to-file conversion.
func (t *FFmpegTranscoder) buildConvertArgs(inputPath, outputPath string, plan Plan) []string {
	args := []string{"-hide_banner", "-i", inputPath}
	args = append(args, t.encodeArgs(plan)...)
	return append(args,
		"-y", // Overwrite output files without asking
		outputPath,
	)
}

// buildStreamArgs constructs the arguments for a conversion written to stdout.
// The pipe has no extension, so the container is named explicitly.
func (t *FFmpegTranscoder) buildStreamArgs(source string) []string {
	args := []string{"-hide_banner", "-i", source}
	args = append(args, t.encodeArgs(StreamPlan())...)
	return append(args, "-f", "webm", "pipe:1")
}

// encodeArgs returns the filter, codec and duration options shared by both modes.
func (t *FFmpegTranscoder) encodeArgs(plan Plan) []string {
	args := []string{
		"-vf", plan.FilterGraph(),
		"-an",
		"-c:v", t.config.VideoCodec,
		"-pix_fmt", t.config.PixelFormat,
		"-b:v", "0", // Pure constant-quality mode
		"-crf", strconv.Itoa(t.config.CRF),
		"-auto-alt-ref", "0",
	}
	if plan.MaxOutput > 0 {
		args = append(args, "-t", strconv.FormatFloat(plan.MaxOutput.Seconds(), 'f', -1, 64))
	}
	return args
}

// boundedBuffer keeps the first limit bytes written to it and discards the rest.
// It is only read after the writing process has been waited for.
type boundedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	return b.buf.String()
}
