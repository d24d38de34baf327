package provider

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited wraps p so that every Query first waits on limiter.
// A nil limiter returns p unchanged.
func Limited(p Provider, limiter *rate.Limiter) Provider {
	if limiter == nil {
		return p
	}
	return ProviderFunc(func(ctx context.Context, req Request) (Response, error) {
		if err := limiter.Wait(ctx); err != nil {
			return Response{}, &TransportError{Provider: "ratelimit", Err: err}
		}
		return p.Query(ctx, req)
	})
}

// PerMinute builds a limiter allowing n requests per minute with a burst of one.
// n <= 0 means unlimited and yields nil.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(n)/60.0), 1)
}
