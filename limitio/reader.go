package limitio

import (
	"context"
	"io"
)

type Reader struct {
	source io.Reader
	throttle
}

// NewReader returns a reader that implements io.Reader with rate limiting.
func NewReader(r io.Reader) *Reader {
	return NewReaderContext(context.Background(), r)
}

// NewReaderContext returns a rate limited reader giving up when ctx is done.
func NewReaderContext(ctx context.Context, r io.Reader) *Reader {
	return &Reader{
		source:   r,
		throttle: throttle{ctx: ctx},
	}
}

// SetRateLimit sets rate limit (bytes/sec) to the reader.
func (s *Reader) SetRateLimit(bytesPerSec float64, burst int) {
	s.set(bytesPerSec, burst)
}

// Read bytes into p.
func (s *Reader) Read(p []byte) (int, error) {
	if s.limiter == nil {
		if err := s.context().Err(); err != nil {
			return 0, err
		}
		return s.source.Read(p)
	}
	err := s.before()
	if err != nil {
		return 0, err
	}
	n, err := s.source.Read(p)
	if err != nil {
		return n, err
	}
	return n, s.after(n)
}
