package limitio

import (
	"context"

	"golang.org/x/time/rate"
)

// throttle spreads the transfer of n bytes over the rate of the limiter
type throttle struct {
	ctx     context.Context
	limiter *rate.Limiter
}

func (t *throttle) set(bytesPerSec float64, burst int) {
	if burst <= 0 {
		burst = 1
	}
	t.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

func (t *throttle) context() context.Context {
	if t.ctx == nil {
		return context.Background()
	}
	return t.ctx
}

// before asks for a first burst of data
func (t *throttle) before() error {
	return t.limiter.WaitN(t.context(), t.limiter.Burst())
}

// after waits for the tokens of the n bytes transferred beyond the first burst
func (t *throttle) after(n int) error {
	burst := t.limiter.Burst()
	left := n - burst
	for left > 0 {
		chunk := min(left, burst)
		err := t.limiter.WaitN(t.context(), chunk)
		if err != nil {
			return err
		}
		left -= chunk
	}
	return nil
}
