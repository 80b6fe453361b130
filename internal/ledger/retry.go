package ledger

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
)

// RetryPolicy bounds how often a unit of work is re-run after a persistence
// conflict.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, BaseBackoff: 25 * time.Millisecond}

func (p RetryPolicy) backoff() retry.Backoff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseBackoff
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// runWithRetry re-runs fn while it fails with a persistence conflict. Every
// other error, and the last conflict once attempts are exhausted, is returned
// as is.
func (s *Service) runWithRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, s.retry.backoff(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.metrics.IncRetry(op)
			retryCtx := s.logg.WithFields(ctx, map[string]any{"operation": op, "attempt": attempt})
			s.logg.Warn(retryCtx, "ledger.retry")
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if pkgerrors.HasCode(err, pkgerrors.CodePersistenceConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}
