package payments

import (
	"strings"

	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/pkg/enums"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
)

// Status is the gateway's verdict on a payment attempt.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

const (
	SourceCallback = "callback"
	SourceStripe   = "stripe"
)

// Event is a gateway callback normalized to the fields the ledger needs.
type Event struct {
	Source                   string
	EventID                  string
	OrderID                  uuid.UUID
	AmountCents              int64
	ExternalPaymentReference string
	Status                   Status
	PaymentMethod            *enums.PaymentMethod
	FailureReason            string
	Metadata                 map[string]string
}

func (e Event) Validate() error {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	case e.OrderID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	case strings.TrimSpace(e.ExternalPaymentReference) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "external payment reference is required")
	case e.AmountCents < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-negative")
	}
	if e.Status != StatusSucceeded && e.Status != StatusFailed {
		return pkgerrors.New(pkgerrors.CodeValidation, "status must be succeeded or failed").
			WithDetails(map[string]any{"status": string(e.Status)})
	}
	return nil
}

// gatewayMetadata merges the caller metadata with the event identifiers so the
// ledger row records where it came from.
func (e Event) gatewayMetadata() map[string]string {
	out := make(map[string]string, len(e.Metadata)+2)
	for key, value := range e.Metadata {
		out[key] = value
	}
	out["event_id"] = e.EventID
	if e.Source != "" {
		out["source"] = e.Source
	}
	return out
}
