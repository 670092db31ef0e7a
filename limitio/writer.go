package limitio

import (
	"context"
	"io"
)

type Writer struct {
	w io.Writer
	throttle
}

// NewWriter returns a writer that implements io.Writer with rate limiting.
func NewWriter(w io.Writer) *Writer {
	return NewWriterContext(context.Background(), w)
}

// NewWriterContext returns a rate limited writer giving up when ctx is done.
func NewWriterContext(ctx context.Context, w io.Writer) *Writer {
	return &Writer{
		w:        w,
		throttle: throttle{ctx: ctx},
	}
}

// SetRateLimit sets rate limit (bytes/sec) to the writer.
func (s *Writer) SetRateLimit(bytesPerSec float64, burst int) {
	s.set(bytesPerSec, burst)
}

// Write writes bytes from p.
func (s *Writer) Write(p []byte) (int, error) {
	if s.limiter == nil {
		if err := s.context().Err(); err != nil {
			return 0, err
		}
		return s.w.Write(p)
	}
	err := s.before()
	if err != nil {
		return 0, err
	}
	n, err := s.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, s.after(n)
}
