package transcoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

type mockProber struct {
	probeFn func(ctx context.Context, path string) Duration
}

func (m *mockProber) Probe(ctx context.Context, path string) Duration {
	if m.probeFn != nil {
		return m.probeFn(ctx, path)
	}
	return UnknownDuration
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg scripts require /bin/sh")
	}
}

// writeScript writes an executable shell script standing in for ffmpeg or ffprobe.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func newTestTranscoder(ffmpegPath string, probe Duration) *FFmpegTranscoder {
	cfg := DefaultFFmpegConfig()
	cfg.FFmpegPath = ffmpegPath
	cfg.WaitDelay = time.Second
	tr := NewFFmpegTranscoder(cfg, nil)
	tr.prober = &mockProber{probeFn: func(context.Context, string) Duration { return probe }}
	return tr
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emote_input-abc")
	if err := os.WriteFile(path, []byte("GIF89a"), 0644); err != nil {
		t.Fatalf("failed to create input file: %v", err)
	}
	return path
}

func TestDefaultFFmpegConfig(t *testing.T) {
	cfg := DefaultFFmpegConfig()

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"FFmpegPath", cfg.FFmpegPath, "ffmpeg"},
		{"FFprobePath", cfg.FFprobePath, "ffprobe"},
		{"VideoCodec", cfg.VideoCodec, "libvpx-vp9"},
		{"PixelFormat", cfg.PixelFormat, "yuva420p"},
		{"CRF", cfg.CRF, 32},
		{"ChunkSize", cfg.ChunkSize, 8192},
		{"WaitDelay", cfg.WaitDelay, 5 * time.Second},
		{"MaxStderrBytes", cfg.MaxStderrBytes, 64 << 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %v, expected %v", tt.got, tt.expected)
			}
		})
	}
}

func TestNewFFmpegTranscoder_FillsZeroConfig(t *testing.T) {
	transcoder := NewFFmpegTranscoder(FFmpegConfig{FFmpegPath: "/usr/bin/ffmpeg"}, nil)

	if transcoder.config.FFmpegPath != "/usr/bin/ffmpeg" {
		t.Errorf("FFmpegPath = %q, explicit value should be kept", transcoder.config.FFmpegPath)
	}
	if transcoder.config.WaitDelay != 5*time.Second {
		t.Errorf("WaitDelay = %v, want 5s", transcoder.config.WaitDelay)
	}
	if transcoder.config.FFprobePath != "ffprobe" {
		t.Errorf("FFprobePath = %q, want ffprobe", transcoder.config.FFprobePath)
	}

	args := strings.Join(transcoder.buildStreamArgs("https://cdn.7tv.app/emote/abc/4x.gif"), " ")
	for _, want := range []string{"-c:v libvpx-vp9", "-pix_fmt yuva420p", "-b:v 0", "-crf 32", "-auto-alt-ref 0"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestFFmpegTranscoder_ValidateInput(t *testing.T) {
	transcoder := NewFFmpegTranscoder(DefaultFFmpegConfig(), nil)

	t.Run("non-existent file returns error", func(t *testing.T) {
		if err := transcoder.validateInput("/non/existent/file.gif"); err == nil {
			t.Error("expected error for non-existent file")
		}
	})

	t.Run("directory returns error", func(t *testing.T) {
		if err := transcoder.validateInput(t.TempDir()); err == nil {
			t.Error("expected error when input is a directory")
		}
	})

	t.Run("existing file succeeds", func(t *testing.T) {
		if err := transcoder.validateInput(writeInput(t)); err != nil {
			t.Errorf("unexpected error for existing file: %v", err)
		}
	})
}

func TestFFmpegTranscoder_BuildConvertArgs(t *testing.T) {
	transcoder := NewFFmpegTranscoder(DefaultFFmpegConfig(), nil)

	args := transcoder.buildConvertArgs("/in/emote.gif", "/out/emote.webm", PlanFor(KnownDuration(6)))

	expectedArgs := []string{
		"-hide_banner",
		"-i", "/in/emote.gif",
		"-vf", "scale=w='if(gt(iw,ih),512,trunc(512*iw/ih/2)*2)':h='if(gt(ih,iw),512,trunc(512*ih/iw/2)*2)',setpts=PTS/2",
		"-an",
		"-c:v", "libvpx-vp9",
		"-pix_fmt", "yuva420p",
		"-b:v", "0",
		"-crf", "32",
		"-auto-alt-ref", "0",
		"-t", "3",
		"-y",
		"/out/emote.webm",
	}

	if len(args) != len(expectedArgs) {
		t.Fatalf("arg count mismatch: got %d, expected %d\n%v", len(args), len(expectedArgs), args)
	}

	for i, expected := range expectedArgs {
		if args[i] != expected {
			t.Errorf("arg[%d]: got %q, expected %q", i, args[i], expected)
		}
	}
}

func TestFFmpegTranscoder_BuildConvertArgs_ShortSource(t *testing.T) {
	transcoder := NewFFmpegTranscoder(DefaultFFmpegConfig(), nil)

	args := transcoder.buildConvertArgs("/in.gif", "/out.webm", PlanFor(KnownDuration(2)))

	for i, arg := range args {
		if arg == "-t" {
			t.Errorf("unexpected -t at %d for a short source", i)
		}
		if strings.Contains(arg, "setpts") {
			t.Errorf("unexpected speed filter %q", arg)
		}
	}
}

func TestFFmpegTranscoder_BuildConvertArgs_CustomConfig(t *testing.T) {
	cfg := DefaultFFmpegConfig()
	cfg.VideoCodec = "libvpx"
	cfg.PixelFormat = "yuva444p"
	cfg.CRF = 20
	transcoder := NewFFmpegTranscoder(cfg, nil)

	args := transcoder.buildConvertArgs("/in.gif", "/out.webm", PlanFor(UnknownDuration))

	tests := []struct {
		name     string
		argIndex int
		expected string
	}{
		{"video codec", 7, "libvpx"},
		{"pixel format", 9, "yuva444p"},
		{"crf", 13, "20"},
		{"time cap for unknown duration", 17, "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if args[tt.argIndex] != tt.expected {
				t.Errorf("got %q, expected %q", args[tt.argIndex], tt.expected)
			}
		})
	}
}

func TestFFmpegTranscoder_BuildStreamArgs(t *testing.T) {
	transcoder := NewFFmpegTranscoder(DefaultFFmpegConfig(), nil)

	args := transcoder.buildStreamArgs("https://cdn.7tv.app/emote/abc/4x.gif")

	expectedArgs := []string{
		"-hide_banner",
		"-i", "https://cdn.7tv.app/emote/abc/4x.gif",
		"-vf", "scale=w='if(gt(iw,ih),512,trunc(512*iw/ih/2)*2)':h='if(gt(ih,iw),512,trunc(512*ih/iw/2)*2)'",
		"-an",
		"-c:v", "libvpx-vp9",
		"-pix_fmt", "yuva420p",
		"-b:v", "0",
		"-crf", "32",
		"-auto-alt-ref", "0",
		"-t", "3",
		"-f", "webm",
		"pipe:1",
	}

	if len(args) != len(expectedArgs) {
		t.Fatalf("arg count mismatch: got %d, expected %d\n%v", len(args), len(expectedArgs), args)
	}

	for i, expected := range expectedArgs {
		if args[i] != expected {
			t.Errorf("arg[%d]: got %q, expected %q", i, args[i], expected)
		}
	}
}

func TestFFmpegTranscoder_Convert(t *testing.T) {
	requireShell(t)
	ctx := context.Background()

	t.Run("writes output and passes planned args", func(t *testing.T) {
		argsFile := filepath.Join(t.TempDir(), "args")
		bin := writeScript(t, "ffmpeg", `printf '%s\n' "$@" > '`+argsFile+`'
for a; do last=$a; done
printf 'webm' > "$last"`)
		transcoder := newTestTranscoder(bin, KnownDuration(9))
		output := filepath.Join(t.TempDir(), "out.webm")

		result, err := transcoder.Convert(ctx, writeInput(t), output)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.OutputPath != output {
			t.Errorf("OutputPath = %q, want %q", result.OutputPath, output)
		}
		if result.Duration != KnownDuration(9) {
			t.Errorf("Duration = %v", result.Duration)
		}
		if result.Plan.SpeedFactor != 3 {
			t.Errorf("SpeedFactor = %v, want 3", result.Plan.SpeedFactor)
		}
		if data, _ := os.ReadFile(output); string(data) != "webm" {
			t.Errorf("output content = %q", data)
		}

		recorded, err := os.ReadFile(argsFile)
		if err != nil {
			t.Fatalf("failed to read recorded args: %v", err)
		}
		if !strings.Contains(string(recorded), "setpts=PTS/3") {
			t.Errorf("recorded args missing speed filter:\n%s", recorded)
		}
	})

	t.Run("classifies failure and removes partial output", func(t *testing.T) {
		bin := writeScript(t, "ffmpeg", `for a; do last=$a; done
printf 'partial' > "$last"
echo 'emote_input-abc: Invalid data found when processing input' >&2
exit 1`)
		transcoder := newTestTranscoder(bin, UnknownDuration)
		output := filepath.Join(t.TempDir(), "out.webm")

		_, err := transcoder.Convert(ctx, writeInput(t), output)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
		if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
			t.Error("expected partial output to be removed")
		}
	})

	t.Run("generic failure carries bounded excerpt", func(t *testing.T) {
		bin := writeScript(t, "ffmpeg", `i=0
while [ $i -lt 50 ]; do printf 'encoder exploded ' >&2; i=$((i+1)); done
exit 1`)
		transcoder := newTestTranscoder(bin, UnknownDuration)

		_, err := transcoder.Convert(ctx, writeInput(t), filepath.Join(t.TempDir(), "out.webm"))

		var terr *Error
		if !errors.As(err, &terr) {
			t.Fatalf("expected *Error, got %v", err)
		}
		if terr.Kind != KindConversionFailed {
			t.Errorf("Kind = %v", terr.Kind)
		}
		if len(terr.Detail) != maxDetailRunes {
			t.Errorf("Detail length = %d, want %d", len(terr.Detail), maxDetailRunes)
		}
	})

	t.Run("missing input is unexpected", func(t *testing.T) {
		transcoder := newTestTranscoder("/bin/true", UnknownDuration)

		_, err := transcoder.Convert(ctx, "/non/existent.gif", filepath.Join(t.TempDir(), "out.webm"))
		if !errors.Is(err, ErrUnexpected) {
			t.Errorf("expected ErrUnexpected, got %v", err)
		}
	})

	t.Run("missing binary is unexpected", func(t *testing.T) {
		transcoder := newTestTranscoder("/non/existent/ffmpeg", UnknownDuration)

		_, err := transcoder.Convert(ctx, writeInput(t), filepath.Join(t.TempDir(), "out.webm"))
		if !errors.Is(err, ErrUnexpected) {
			t.Errorf("expected ErrUnexpected, got %v", err)
		}
	})

	t.Run("cancellation kills ffmpeg", func(t *testing.T) {
		bin := writeScript(t, "ffmpeg", `exec sleep 30`)
		transcoder := newTestTranscoder(bin, UnknownDuration)

		ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := transcoder.Convert(ctx, writeInput(t), filepath.Join(t.TempDir(), "out.webm"))
		if !errors.Is(err, ErrUnexpected) {
			t.Errorf("expected ErrUnexpected, got %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline cause, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > 10*time.Second {
			t.Errorf("Convert returned after %v", elapsed)
		}
	})
}

func TestFFmpegTranscoder_Convert_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not installed")
	}

	tests := []struct {
		name         string
		sourceSecs   int
		wantSpeedUp  bool
		wantDuration float64
		tolerance    float64
	}{
		{name: "long source is sped up to the clip length", sourceSecs: 6, wantSpeedUp: true, wantDuration: 3, tolerance: 0.1},
		{name: "short source keeps its length", sourceSecs: 2, wantDuration: 2, tolerance: 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			input := filepath.Join(dir, "in.gif")
			gen := exec.Command(ffmpegPath, "-hide_banner", "-f", "lavfi",
				"-i", fmt.Sprintf("testsrc=duration=%d:size=200x100:rate=10", tt.sourceSecs), "-y", input)
			if out, err := gen.CombinedOutput(); err != nil {
				t.Skipf("cannot generate test gif: %v\n%s", err, out)
			}

			cfg := DefaultFFmpegConfig()
			cfg.FFmpegPath = ffmpegPath
			cfg.FFprobePath = ffprobePath
			transcoder := NewFFmpegTranscoder(cfg, nil)

			output := filepath.Join(dir, "out.webm")
			result, err := transcoder.Convert(context.Background(), input, output)
			if errors.Is(err, ErrConversionFailed) && strings.Contains(err.Error(), "libvpx") {
				t.Skip("ffmpeg built without libvpx")
			}
			if err != nil {
				t.Fatalf("Convert failed: %v", err)
			}

			if sped := result.Plan.SpeedFactor > 1; sped != tt.wantSpeedUp {
				t.Errorf("speed factor = %v, want speed-up %v", result.Plan.SpeedFactor, tt.wantSpeedUp)
			}

			got := NewFFprobe(ffprobePath, nil).Probe(context.Background(), output)
			if !got.Known {
				t.Fatal("output duration is unknown")
			}
			if math.Abs(got.Seconds-tt.wantDuration) > tt.tolerance {
				t.Errorf("output duration = %.2fs, want %.1fs ± %.1f", got.Seconds, tt.wantDuration, tt.tolerance)
			}

			stream := probeVideoStream(t, ffprobePath, output)
			if stream.CodecName != "vp9" {
				t.Errorf("codec = %q, want vp9", stream.CodecName)
			}
			if stream.Width != 512 || stream.Height != 256 {
				t.Errorf("size = %dx%d, want 512x256", stream.Width, stream.Height)
			}
			// VP9 alpha is carried as a side plane; the container flags it.
			if stream.Tags["alpha_mode"] != "1" && stream.Tags["ALPHA_MODE"] != "1" {
				t.Errorf("stream is not alpha-capable: tags %v, pix_fmt %q", stream.Tags, stream.PixFmt)
			}
		})
	}
}

type probedStream struct {
	CodecName string            `json:"codec_name"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	PixFmt    string            `json:"pix_fmt"`
	Tags      map[string]string `json:"tags"`
}

func probeVideoStream(t *testing.T, ffprobePath, path string) probedStream {
	t.Helper()
	out, err := exec.Command(ffprobePath, "-v", "quiet", "-print_format", "json",
		"-show_streams", "-select_streams", "v:0", path).Output()
	if err != nil {
		t.Fatalf("ffprobe failed: %v", err)
	}
	var res struct {
		Streams []probedStream `json:"streams"`
	}
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("failed to decode ffprobe output: %v", err)
	}
	if len(res.Streams) == 0 {
		t.Fatal("output has no video stream")
	}
	return res.Streams[0]
}
