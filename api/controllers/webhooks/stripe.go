package webhooks

import (
	"net/http"

	"github.com/stripe/stripe-go/v74"

	"github.com/craftconnect/marketplace-backend/api/responses"
	"github.com/craftconnect/marketplace-backend/internal/webhooks/payments"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

const stripeSignatureHeader = "Stripe-Signature"

type stripeVerifier interface {
	VerifyEvent(payload []byte, header string) (stripe.Event, error)
}

// StripeWebhook settles payment_intent events. Any other verified event is
// acknowledged as ignored so Stripe stops redelivering it.
func StripeWebhook(svc PaymentEventService, client stripeVerifier, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || guard == nil || client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook unavailable"))
			return
		}

		stripeEvent, err := verifyStripe(w, r, client)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		event, ok, err := payments.FromStripeEvent(stripeEvent)
		switch {
		case err != nil:
			responses.WriteError(ctx, logg, w, err)
		case !ok:
			if logg != nil {
				logg.Info(logg.WithFields(ctx, map[string]any{
					"event_id":   stripeEvent.ID,
					"event_type": string(stripeEvent.Type),
				}), "stripe.event_ignored")
			}
			responses.WriteSuccess(w, webhookAck{EventID: stripeEvent.ID, Outcome: "ignored"})
		default:
			dispatch(ctx, svc, guard, logg, w, event)
		}
	}
}

func verifyStripe(w http.ResponseWriter, r *http.Request, client stripeVerifier) (stripe.Event, error) {
	payload, err := readBody(w, r)
	if err != nil {
		return stripe.Event{}, err
	}
	header := r.Header.Get(stripeSignatureHeader)
	if header == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "stripe signature missing")
	}
	event, err := client.VerifyEvent(payload, header)
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify signature")
	}
	return event, nil
}
