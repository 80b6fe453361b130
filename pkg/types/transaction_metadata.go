package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MetadataKind discriminates the structured payload carried by a transaction.
type MetadataKind string

const (
	MetadataKindSettlement MetadataKind = "settlement"
	MetadataKindRefund     MetadataKind = "refund"
	MetadataKindFailure    MetadataKind = "failure"
)

// TransactionMetadata is the additive detail recorded next to a transaction's
// integer amounts. Exactly one payload matching Kind is set. The amounts on the
// transaction row stay authoritative.
type TransactionMetadata struct {
	Kind       MetadataKind      `json:"kind"`
	Settlement *SettlementDetail `json:"settlement,omitempty"`
	Refund     *RefundDetail     `json:"refund,omitempty"`
	Failure    *FailureDetail    `json:"failure,omitempty"`
	Gateway    map[string]string `json:"gateway,omitempty"`
}

// ItemCommission is the per line item share of an order level split.
type ItemCommission struct {
	ItemID      uuid.UUID `json:"item_id"`
	ProductID   uuid.UUID `json:"product_id"`
	Category    string    `json:"category,omitempty"`
	GrossCents  int64     `json:"gross_cents"`
	FeeCents    int64     `json:"fee_cents"`
	SellerCents int64     `json:"seller_cents"`
}

// SettlementDetail records the item level commission breakdown.
type SettlementDetail struct {
	Items []ItemCommission `json:"items"`
}

// RefundDetail references the reversed transaction.
type RefundDetail struct {
	OriginalTransactionID uuid.UUID `json:"original_transaction_id"`
	Reason                string    `json:"reason,omitempty"`
	Full                  bool      `json:"full"`
}

// FailureDetail captures why the gateway rejected a payment.
type FailureDetail struct {
	Reason  string `json:"reason,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// NewSettlementMetadata builds settlement metadata.
func NewSettlementMetadata(items []ItemCommission, gateway map[string]string) *TransactionMetadata {
	return &TransactionMetadata{
		Kind:       MetadataKindSettlement,
		Settlement: &SettlementDetail{Items: items},
		Gateway:    gateway,
	}
}

// NewRefundMetadata builds refund metadata pointing at the original transaction.
func NewRefundMetadata(original uuid.UUID, reason string, full bool) *TransactionMetadata {
	return &TransactionMetadata{
		Kind: MetadataKindRefund,
		Refund: &RefundDetail{
			OriginalTransactionID: original,
			Reason:                reason,
			Full:                  full,
		},
	}
}

// NewFailureMetadata builds failure metadata.
func NewFailureMetadata(reason, eventID string, gateway map[string]string) *TransactionMetadata {
	return &TransactionMetadata{
		Kind:    MetadataKindFailure,
		Failure: &FailureDetail{Reason: reason, EventID: eventID},
		Gateway: gateway,
	}
}

// Validate ensures the payload matches the discriminant.
func (m *TransactionMetadata) Validate() error {
	if m == nil {
		return nil
	}
	set := 0
	for _, present := range []bool{m.Settlement != nil, m.Refund != nil, m.Failure != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("metadata must carry exactly one payload, got %d", set)
	}
	switch m.Kind {
	case MetadataKindSettlement:
		if m.Settlement == nil {
			return fmt.Errorf("settlement metadata missing settlement payload")
		}
	case MetadataKindRefund:
		if m.Refund == nil {
			return fmt.Errorf("refund metadata missing refund payload")
		}
	case MetadataKindFailure:
		if m.Failure == nil {
			return fmt.Errorf("failure metadata missing failure payload")
		}
	default:
		return fmt.Errorf("unknown metadata kind %q", m.Kind)
	}
	return nil
}

// Value serializes the metadata to JSON.
func (m *TransactionMetadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan decodes JSONB into the metadata struct.
func (m *TransactionMetadata) Scan(value any) error {
	switch raw := value.(type) {
	case nil:
		*m = TransactionMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(raw, m)
	case string:
		return json.Unmarshal([]byte(raw), m)
	default:
		return fmt.Errorf("unsupported scan type %T", value)
	}
}
