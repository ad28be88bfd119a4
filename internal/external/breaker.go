package external

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"seasonmail/internal/types"
)

// BreakerProvider wraps an EmailProvider with a circuit breaker so a dead or
// throttling mail endpoint fails fast instead of stalling the batch on every
// recipient. An open breaker surfaces as ErrCodeUpstreamUnavailable, which
// the ledger records like any other failure and the retry sweeper picks up
// later.
type BreakerProvider struct {
	inner   EmailProvider
	breaker *gobreaker.CircuitBreaker[string]
}

// NewBreakerProvider wraps inner with a fresh circuit breaker. The breaker
// trips after 5 consecutive failures and probes again after 30 seconds.
func NewBreakerProvider(name string, inner EmailProvider) *BreakerProvider {
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return &BreakerProvider{inner: inner, breaker: cb}
}

// Send delegates to the wrapped provider through the breaker.
func (b *BreakerProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	msgID, err := b.breaker.Execute(func() (string, error) {
		return b.inner.Send(ctx, input)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"mail provider circuit open", err)
	}
	return msgID, err
}

// Compile-time assertion that BreakerProvider satisfies EmailProvider.
var _ EmailProvider = (*BreakerProvider)(nil)
