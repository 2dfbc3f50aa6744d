package transcoder

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// LongEdge is the target size in pixels of the output's longer dimension.
	LongEdge = 512
	// ClipLength is the maximum output duration.
	ClipLength = 3 * time.Second
)

// Duration is a probed media duration. Known is false when the duration
// could not be determined.
type Duration struct {
	Seconds float64
	Known   bool
}

// KnownDuration returns a known Duration of s seconds.
func KnownDuration(s float64) Duration {
	return Duration{Seconds: s, Known: true}
}

// UnknownDuration is returned when probing fails.
var UnknownDuration = Duration{}

func (d Duration) String() string {
	if !d.Known {
		return "unknown"
	}
	return strconv.FormatFloat(d.Seconds, 'f', -1, 64) + "s"
}

// Scale holds the ffmpeg scale expressions. They are evaluated by ffmpeg
// against the input dimensions (iw, ih).
type Scale struct {
	Width  string
	Height string
}

// Plan describes the filters and output limits for one conversion.
type Plan struct {
	Scale Scale
	// SpeedFactor compresses the timeline by this factor. Zero means no speed change.
	SpeedFactor float64
	// MaxOutput caps the output duration. Zero means uncapped.
	MaxOutput time.Duration
}

// ScaleToLongEdge fits the longer dimension to n pixels and scales the other
// proportionally, rounded down to an even number.
func ScaleToLongEdge(n int) Scale {
	return Scale{
		Width:  fmt.Sprintf("if(gt(iw,ih),%d,trunc(%d*iw/ih/2)*2)", n, n),
		Height: fmt.Sprintf("if(gt(ih,iw),%d,trunc(%d*ih/iw/2)*2)", n, n),
	}
}

// PlanFor returns the conversion plan for a source of duration d.
//
// Sources longer than the clip length are sped up to fit it exactly.
// The output is capped at the clip length unless the source is known to
// be no longer than it.
func PlanFor(d Duration) Plan {
	limit := ClipLength.Seconds()
	p := Plan{Scale: ScaleToLongEdge(LongEdge)}

	if d.Known && d.Seconds > limit {
		p.SpeedFactor = d.Seconds / limit
	}
	if p.SpeedFactor > 0 || !d.Known || d.Seconds > limit {
		p.MaxOutput = ClipLength
	}
	return p
}

// StreamPlan returns the plan used for streaming conversions, where the
// source duration is never known.
func StreamPlan() Plan {
	return PlanFor(UnknownDuration)
}

// FilterGraph renders the plan as an ffmpeg -vf argument.
func (p Plan) FilterGraph() string {
	graph := fmt.Sprintf("scale=w='%s':h='%s'", p.Scale.Width, p.Scale.Height)
	if p.SpeedFactor > 0 {
		graph += ",setpts=PTS/" + strconv.FormatFloat(p.SpeedFactor, 'f', -1, 64)
	}
	return graph
}
