package transcoder

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"os/exec"
	"sync"
)

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("transcoder: stream closed")

// Stream is a running streaming conversion. Chunks are pulled with Next
// until it returns io.EOF or a classified *Error.
//
// A Stream is not safe for concurrent use. Close must be called when the
// consumer stops early; it is safe to call more than once.
type Stream struct {
	ctx    context.Context
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *boundedBuffer
	buf    []byte
	source string
	logger *slog.Logger

	// err is the terminal result, returned by every Next call once set.
	err error

	once    sync.Once
	waitErr error
	killErr error
}

// Next returns the next chunk of WebM output. The returned slice is only
// valid until the following call to Next.
//
// After the last chunk Next waits for ffmpeg to exit and returns io.EOF on
// success or a classified *Error if it exited nonzero, even when chunks
// were already delivered.
func (s *Stream) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}

	for {
		n, err := s.stdout.Read(s.buf)
		if n > 0 {
			// A read error alongside data repeats on the next Read.
			return s.buf[:n], nil
		}
		if err != nil {
			s.err = s.finish(err)
			return nil, s.err
		}
	}
}

// Close stops the conversion. If ffmpeg is still running its process group
// is killed; in every case the process is reaped and both pipes closed.
func (s *Stream) Close() error {
	if s.err == nil {
		s.err = ErrStreamClosed
	}
	s.teardown(true)
	return s.killErr
}

// Chunks returns the stream as a range-over-func sequence. A terminal
// error is yielded as the last element. The stream is closed when the loop
// ends, including on break.
func (s *Stream) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer s.Close()
		for {
			chunk, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// WriteTo copies the whole stream to w and closes it.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for chunk, err := range s.Chunks() {
		if err != nil {
			return written, err
		}
		n, werr := w.Write(chunk)
		written += int64(n)
		if werr != nil {
			return written, werr
		}
	}
	return written, nil
}

// finish resolves the terminal result after stdout stopped yielding data.
func (s *Stream) finish(readErr error) error {
	if !errors.Is(readErr, io.EOF) {
		s.teardown(true)
		if s.ctx.Err() != nil {
			return unexpected(s.ctx.Err())
		}
		return unexpected(readErr)
	}

	waitErr := s.teardown(false)
	if waitErr == nil {
		return io.EOF
	}
	if s.ctx.Err() != nil {
		return unexpected(s.ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		s.logger.Error("ffmpeg stream failed",
			"source", s.source,
			"exit_code", exitErr.ExitCode(),
			"stderr", s.stderr.String(),
		)
		return Classify(s.stderr.String())
	}

	s.logger.Error("unexpected error during stream", "source", s.source, "error", waitErr)
	return unexpected(waitErr)
}

// teardown runs exactly once. Wait closes the stdout pipe and waits for the
// stderr copy, bounded by the command's WaitDelay.
func (s *Stream) teardown(kill bool) error {
	s.once.Do(func() {
		if kill {
			s.killErr = killProcessGroup(s.cmd)
		}
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}
