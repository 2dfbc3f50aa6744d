package transcoder

import (
	"context"
)

// ConvertResult contains the result of a file-to-file conversion.
type ConvertResult struct {
	// OutputPath is the path of the written WebM file.
	OutputPath string
	// Duration is the probed source duration (may be unknown).
	Duration Duration
	// Plan is the filter plan the conversion ran with.
	Plan Plan
}

// Prober reads media metadata.
type Prober interface {
	// Probe returns the duration of the media at path.
	// Probing never fails: any problem yields an unknown Duration.
	Probe(ctx context.Context, path string) Duration
}

// Transcoder defines the media conversion operations used by the service.
type Transcoder interface {
	// Convert transcodes the local file at inputPath into a WebM clip at outputPath.
	// The source is probed first so long inputs can be sped up to fit the clip length.
	//
	// Returns *Error for every failure; use errors.Is with the Err* sentinels
	// to branch on the kind.
	Convert(ctx context.Context, inputPath, outputPath string) (*ConvertResult, error)

	// Stream starts a transcoder writing a WebM clip of source to a pipe.
	// source may be a local path or a remote URL; it is never probed.
	//
	// The caller owns the returned Stream and must Close it (or drain it
	// through Chunks/WriteTo, which close on return).
	Stream(ctx context.Context, source string) (*Stream, error)
}
