package commission

import (
	"context"
	"fmt"

	"github.com/craftconnect/marketplace-backend/pkg/config"
)

// RateSource yields the commission rate to apply to the next settlement.
// Implementations are consulted on every call so rate changes apply without a
// restart.
type RateSource interface {
	CurrentRate(ctx context.Context) (Rate, error)
}

// StaticRateSource always returns the same rate. Tests and tools that pin a
// rate use it; the API reads EnvRateSource.
type StaticRateSource struct {
	Rate Rate
}

func (s StaticRateSource) CurrentRate(context.Context) (Rate, error) {
	return s.Rate, nil
}

// EnvRateSource re-reads the commission section from the environment on each
// call.
type EnvRateSource struct{}

func (EnvRateSource) CurrentRate(context.Context) (Rate, error) {
	cfg, err := config.LoadCommission()
	if err != nil {
		return Rate{}, err
	}
	rate, err := ParseRate(cfg.Rate)
	if err != nil {
		return Rate{}, fmt.Errorf("%s: %w", config.EnvCommissionRate, err)
	}
	return rate, nil
}

// RateSourceFunc adapts a function to RateSource, mostly for tests that need
// a failing or changing source.
type RateSourceFunc func(ctx context.Context) (Rate, error)

func (f RateSourceFunc) CurrentRate(ctx context.Context) (Rate, error) {
	return f(ctx)
}
