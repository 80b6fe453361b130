package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/craftconnect/marketplace-backend/pkg/redis"
)

const (
	markProcessing = "processing"
	markDone       = "done"
)

// processingTTL bounds how long a crashed attempt blocks redelivery.
const (
	processingTTL  = 2 * time.Minute
	releaseTimeout = 2 * time.Second
)

var errEventIDRequired = errors.New("event id is required")

// Claim is the guard's verdict for one delivery.
type Claim int

const (
	// ClaimAcquired means this delivery owns the event and must Complete or Release it.
	ClaimAcquired Claim = iota
	// ClaimInFlight means another delivery of the same event has not finished.
	ClaimInFlight
	// ClaimDone means the event was committed by an earlier delivery.
	ClaimDone
)

// GuardStore is the redis surface the guard needs.
type GuardStore interface {
	redis.IdempotencyStore
	Set(context.Context, string, any, time.Duration) error
}

// IdempotencyGuard drops re-delivered gateway events before they reach the
// ledger. A delivery first marks the event as processing; only a successful
// ledger call turns the mark into done. The ledger's unique idempotency key
// stays authoritative.
type IdempotencyGuard struct {
	store GuardStore
	ttl   time.Duration
	scope string
}

// NewIdempotencyGuard builds a guard whose done marks expire after ttl. A
// zero ttl keeps done marks until Release.
func NewIdempotencyGuard(store GuardStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Claim marks eventID as processing with SETNX. When the key already exists
// its value decides between ClaimDone and ClaimInFlight.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (Claim, error) {
	key, err := g.key(eventID)
	if err != nil {
		return ClaimInFlight, err
	}
	fresh, err := g.store.SetNX(ctx, key, markProcessing, g.processingTTL())
	if err != nil {
		return ClaimInFlight, fmt.Errorf("mark event %s: %w", eventID, err)
	}
	if fresh {
		return ClaimAcquired, nil
	}

	current, err := g.store.Get(ctx, key)
	if err != nil && !errors.Is(err, goredis.Nil) {
		return ClaimInFlight, fmt.Errorf("read event mark %s: %w", eventID, err)
	}
	if current == markDone {
		return ClaimDone, nil
	}
	return ClaimInFlight, nil
}

// Complete records that the ledger committed eventID. It survives a canceled
// request context since the commit already happened.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := g.store.Set(ctx, key, markDone, g.ttl); err != nil {
		return fmt.Errorf("complete event %s: %w", eventID, err)
	}
	return nil
}

// Release clears the mark so the gateway's retry is processed again. It runs
// on a detached context because the request context is often what failed.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := g.store.Del(ctx, key); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}

func (g *IdempotencyGuard) processingTTL() time.Duration {
	if g.ttl > 0 && g.ttl < processingTTL {
		return g.ttl
	}
	return processingTTL
}

func (g *IdempotencyGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errEventIDRequired
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
}
