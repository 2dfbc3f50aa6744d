package transcoder

import (
	"context"
	"testing"
)

func TestParseProbeOutput(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Duration
	}{
		{
			name: "format duration",
			json: `{"format":{"duration":"4.500000"},"streams":[{"duration":"1.0"}]}`,
			want: KnownDuration(4.5),
		},
		{
			name: "falls back to first stream with duration",
			json: `{"format":{},"streams":[{"codec_type":"video"},{"duration":"2.25"},{"duration":"9"}]}`,
			want: KnownDuration(2.25),
		},
		{
			name: "N/A is skipped",
			json: `{"format":{"duration":"N/A"},"streams":[{"duration":"N/A"},{"duration":"1.5"}]}`,
			want: KnownDuration(1.5),
		},
		{
			name: "zero is not a duration",
			json: `{"format":{"duration":"0.000000"},"streams":[]}`,
			want: UnknownDuration,
		},
		{
			name: "negative is not a duration",
			json: `{"format":{"duration":"-1"}}`,
			want: UnknownDuration,
		},
		{
			name: "nan is not a duration",
			json: `{"format":{"duration":"NaN"}}`,
			want: UnknownDuration,
		},
		{
			name: "nothing",
			json: `{}`,
			want: UnknownDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProbeOutput([]byte(tt.json))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseProbeOutput_Corrupt(t *testing.T) {
	got, err := parseProbeOutput([]byte(`{"format":`))
	if err == nil {
		t.Error("expected error for truncated JSON")
	}
	if got.Known {
		t.Errorf("got %v, want unknown", got)
	}
}

func TestBuildProbeArgs(t *testing.T) {
	args := buildProbeArgs("/tmp/in.gif")
	expected := []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", "/tmp/in.gif"}

	if len(args) != len(expected) {
		t.Fatalf("args length = %d, expected %d", len(args), len(expected))
	}
	for i, arg := range args {
		if arg != expected[i] {
			t.Errorf("args[%d] = %q, expected %q", i, arg, expected[i])
		}
	}
}

func TestFFprobe_Probe(t *testing.T) {
	requireShell(t)

	t.Run("missing binary is unknown", func(t *testing.T) {
		p := NewFFprobe("/non/existent/ffprobe", nil)
		if got := p.Probe(context.Background(), "/tmp/in.gif"); got.Known {
			t.Errorf("got %v, want unknown", got)
		}
	})

	t.Run("nonzero exit is unknown", func(t *testing.T) {
		bin := writeScript(t, "ffprobe", `echo '{"format":{"duration":"5"}}'; exit 1`)
		p := NewFFprobe(bin, nil)
		if got := p.Probe(context.Background(), "/tmp/in.gif"); got.Known {
			t.Errorf("got %v, want unknown", got)
		}
	})

	t.Run("garbage output is unknown", func(t *testing.T) {
		bin := writeScript(t, "ffprobe", `echo 'not json'`)
		p := NewFFprobe(bin, nil)
		if got := p.Probe(context.Background(), "/tmp/in.gif"); got.Known {
			t.Errorf("got %v, want unknown", got)
		}
	})

	t.Run("reads duration", func(t *testing.T) {
		bin := writeScript(t, "ffprobe", `echo '{"format":{"duration":"7.2"}}'`)
		p := NewFFprobe(bin, nil)
		if got := p.Probe(context.Background(), "/tmp/in.gif"); got != KnownDuration(7.2) {
			t.Errorf("got %v, want 7.2s", got)
		}
	})
}
