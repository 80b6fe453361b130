package payments

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"

	"github.com/craftconnect/marketplace-backend/pkg/enums"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
)

const (
	stripeEventPaymentSucceeded = "payment_intent.succeeded"
	stripeEventPaymentFailed    = "payment_intent.payment_failed"

	// stripeOrderIDKey is set on the PaymentIntent metadata at checkout.
	stripeOrderIDKey = "order_id"
)

var stripeMethods = map[string]enums.PaymentMethod{
	"card":             enums.PaymentMethodCard,
	"link":             enums.PaymentMethodCard,
	"customer_balance": enums.PaymentMethodBankTransfer,
	"us_bank_account":  enums.PaymentMethodBankTransfer,
}

// FromStripeEvent maps a verified Stripe event onto an Event. The boolean is
// false for event types the ledger does not consume.
func FromStripeEvent(event stripe.Event) (Event, bool, error) {
	var status Status
	switch string(event.Type) {
	case stripeEventPaymentSucceeded:
		status = StatusSucceeded
	case stripeEventPaymentFailed:
		status = StatusFailed
	default:
		return Event{}, false, nil
	}
	if event.Data == nil {
		return Event{}, false, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return Event{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}

	orderID, err := uuid.Parse(strings.TrimSpace(intent.Metadata[stripeOrderIDKey]))
	if err != nil {
		return Event{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment intent metadata missing order_id").
			WithDetails(map[string]any{"payment_intent_id": intent.ID})
	}

	out := Event{
		Source:                   SourceStripe,
		EventID:                  event.ID,
		OrderID:                  orderID,
		AmountCents:              intent.Amount,
		ExternalPaymentReference: intent.ID,
		Status:                   status,
		Metadata: map[string]string{
			"payment_intent_id": intent.ID,
			"currency":          strings.ToUpper(string(intent.Currency)),
		},
	}
	for _, kind := range intent.PaymentMethodTypes {
		if method, ok := stripeMethods[kind]; ok {
			out.PaymentMethod = &method
			break
		}
	}
	if status == StatusFailed && intent.LastPaymentError != nil {
		out.FailureReason = intent.LastPaymentError.Msg
		if code := string(intent.LastPaymentError.Code); code != "" {
			out.Metadata["failure_code"] = code
		}
	}
	return out, true, out.Validate()
}
