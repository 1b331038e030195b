package deposits

import (
	"context"

	"github.com/merakimarket/meraki/internal/circuitbreaker"
)

// GuardedProvider stops calling a failing payment provider for a while so
// card deposits fail fast with 503 instead of piling up on timeouts.
type GuardedProvider struct {
	inner   PaymentProvider
	breaker *circuitbreaker.Breaker
	key     string
}

// Guard wraps p with breaker under key.
func Guard(p PaymentProvider, breaker *circuitbreaker.Breaker, key string) *GuardedProvider {
	return &GuardedProvider{inner: p, breaker: breaker, key: key}
}

var _ PaymentProvider = (*GuardedProvider)(nil)

func (g *GuardedProvider) CreatePayment(ctx context.Context, depositID string, amount int64) (ref, clientSecret string, err error) {
	err = g.breaker.Do(ctx, g.key, func(ctx context.Context) error {
		var callErr error
		ref, clientSecret, callErr = g.inner.CreatePayment(ctx, depositID, amount)
		return callErr
	})
	return ref, clientSecret, err
}
