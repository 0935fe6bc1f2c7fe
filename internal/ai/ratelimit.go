package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/roundtable-games/roundtable/internal/orchestrator"
)

// RateLimited bounds the request rate of a provider shared by every game.
type RateLimited struct {
	next    orchestrator.ReasoningProvider
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with the given burst.
// A burst below 1 is raised to 1.
func NewRateLimited(next orchestrator.ReasoningProvider, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Generate waits for a token and then calls the wrapped provider.
func (r *RateLimited) Generate(ctx context.Context, gameID, participantID, phase, hint string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Generate(ctx, gameID, participantID, phase, hint)
}
