package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled wraps an Invoker with an outbound token-bucket limiter so a
// burst of collaborative fan-outs cannot flood the upstream API.
type Throttled struct {
	inner   Invoker
	limiter *rate.Limiter
}

// NewThrottled creates a throttled invoker allowing rps requests per second
// with the given burst.
func NewThrottled(inner Invoker, rps float64, burst int) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (t *Throttled) Invoke(ctx context.Context, req Request) (*Result, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: throttle wait: %v", ErrUpstream, err)
	}
	return t.inner.Invoke(ctx, req)
}

// InvokeStream delegates when the wrapped backend streams; the throttle
// still applies per call.
func (t *Throttled) InvokeStream(ctx context.Context, req Request, onChunk func(string) error) (*Result, error) {
	s, ok := t.inner.(Streamer)
	if !ok {
		res, err := t.Invoke(ctx, req)
		if err != nil {
			return nil, err
		}
		if onChunk != nil {
			if err := onChunk(res.Text); err != nil {
				return nil, err
			}
		}
		return res, nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: throttle wait: %v", ErrUpstream, err)
	}
	return s.InvokeStream(ctx, req, onChunk)
}
