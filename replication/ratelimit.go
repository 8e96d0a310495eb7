package replication

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// limitedReader throttles Read to the limiter's rate, one token per byte
// actually delivered to the caller. The limiter's burst is its own rate
// (bytes/sec), so WaitN is capped to that many bytes per call regardless of
// how large the caller's buffer is.
type limitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	burst   int
}

func newLimitedReader(r io.Reader, limiter *rate.Limiter) io.Reader {
	return &limitedReader{r: r, limiter: limiter, burst: limiter.Burst()}
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.burst > 0 && len(p) > l.burst {
		p = p[:l.burst]
	}

	n, err := l.r.Read(p)
	if n > 0 {
		if waitErr := l.limiter.WaitN(context.Background(), n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
