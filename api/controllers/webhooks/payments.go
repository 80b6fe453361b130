package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/craftconnect/marketplace-backend/api/responses"
	"github.com/craftconnect/marketplace-backend/internal/ledger"
	"github.com/craftconnect/marketplace-backend/internal/webhooks/payments"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

const maxWebhookBodyBytes = 1 << 20

// PaymentEventService settles or fails one normalized gateway event.
type PaymentEventService interface {
	HandleEvent(ctx context.Context, event payments.Event) (*ledger.SettleResult, error)
}

type webhookGuard interface {
	Claim(ctx context.Context, eventID string) (payments.Claim, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type webhookAck struct {
	EventID       string `json:"event_id"`
	Outcome       string `json:"outcome"`
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status,omitempty"`
}

// PaymentCallback handles the HMAC signed settlement callback.
func PaymentCallback(svc PaymentEventService, secret string, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment webhook unavailable"))
			return
		}

		payload, err := readBody(w, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := payments.VerifySignature(secret, payload, r.Header.Get(payments.SignatureHeader)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		event, err := payments.ParseCallback(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		dispatch(ctx, svc, guard, logg, w, event)
	}
}

// dispatch runs the event through the replay guard and the ledger. Only a
// committed event is acked as already processed; a duplicate of an event
// still in flight gets a 409 so the gateway retries it later.
func dispatch(ctx context.Context, svc PaymentEventService, guard webhookGuard, logg *logger.Logger, w http.ResponseWriter, event payments.Event) {
	claim, err := guard.Claim(ctx, event.EventID)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	switch claim {
	case payments.ClaimDone:
		responses.WriteSuccess(w, webhookAck{EventID: event.EventID, Outcome: string(ledger.OutcomeAlreadyProcessed)})
		return
	case payments.ClaimInFlight:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "event is already being processed").
			WithDetails(map[string]any{"event_id": event.EventID}))
		return
	}

	result, err := svc.HandleEvent(ctx, event)
	if err != nil {
		if relErr := guard.Release(ctx, event.EventID); relErr != nil && logg != nil {
			logg.Error(ctx, "webhook.guard_release_failed", relErr)
		}
		responses.WriteError(ctx, logg, w, err)
		return
	}
	if err := guard.Complete(ctx, event.EventID); err != nil && logg != nil {
		logg.Error(ctx, "webhook.guard_complete_failed", err)
	}

	ack := webhookAck{EventID: event.EventID, Outcome: string(result.Outcome)}
	if result.Transaction != nil {
		ack.TransactionID = result.Transaction.ID.String()
		ack.Status = result.Transaction.Status.String()
	}
	responses.WriteSuccess(w, ack)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	return payload, nil
}
