package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/pkg/enums"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
)

const SignatureHeader = "X-Signature"

var ErrInvalidSignature = errors.New("invalid callback signature")

// CallbackPayload is the JSON body posted by the payment gateway.
type CallbackPayload struct {
	EventID                  string            `json:"event_id"`
	OrderID                  string            `json:"order_id"`
	AmountMinorUnits         int64             `json:"amount_minor_units"`
	ExternalPaymentReference string            `json:"external_payment_reference"`
	Status                   string            `json:"status"`
	PaymentMethod            string            `json:"payment_method,omitempty"`
	FailureReason            string            `json:"failure_reason,omitempty"`
	Metadata                 map[string]string `json:"metadata,omitempty"`
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the X-Signature header against the body in
// constant time. An optional "sha256=" prefix is accepted.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "callback secret not configured")
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	provided, err := hex.DecodeString(signature)
	if err != nil || len(provided) == 0 {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, ErrInvalidSignature, "callback signature malformed")
	}
	expected, _ := hex.DecodeString(Sign(secret, body))
	if !hmac.Equal(provided, expected) {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, ErrInvalidSignature, "callback signature mismatch")
	}
	return nil
}

// ParseCallback decodes a verified callback body into an Event.
func ParseCallback(body []byte) (Event, error) {
	var payload CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid callback body")
	}

	orderID, err := uuid.Parse(strings.TrimSpace(payload.OrderID))
	if err != nil {
		return Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}

	event := Event{
		Source:                   SourceCallback,
		EventID:                  strings.TrimSpace(payload.EventID),
		OrderID:                  orderID,
		AmountCents:              payload.AmountMinorUnits,
		ExternalPaymentReference: strings.TrimSpace(payload.ExternalPaymentReference),
		Status:                   Status(strings.ToLower(strings.TrimSpace(payload.Status))),
		FailureReason:            payload.FailureReason,
		Metadata:                 payload.Metadata,
	}
	if raw := strings.TrimSpace(payload.PaymentMethod); raw != "" {
		method, err := enums.ParsePaymentMethod(strings.ToLower(raw))
		if err != nil {
			return Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
		}
		event.PaymentMethod = &method
	}
	return event, event.Validate()
}
