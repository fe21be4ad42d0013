// Package ai holds the Gemini collaborators: an embedding client on the
// official genai SDK and a generation client on the REST generateContent
// endpoint. Both share a token-bucket rate limit and bound every call with
// a deadline, so a stalled upstream never hangs a request. Failures surface
// as domain.ErrUpstream; retrying is the caller's business.
package ai

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Config carries the collaborator settings. The API key comes from the
// environment, never from a config file.
type Config struct {
	APIKey            string
	EmbedModel        string
	EmbedTaskType     string
	GenerateModel     string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Timeout
}

// NewLimiter builds the shared token bucket for one provider account.
func NewLimiter(cfg Config) *rate.Limiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2.0
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 4
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// bound applies the configured timeout when the caller supplied no deadline.
func bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
