package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/pkg/db/models"
)

// LedgerTransactionEvent describes one ledger row. It is the payload of
// payment_settled, payment_failed and refund_recorded.
type LedgerTransactionEvent struct {
	TransactionID            uuid.UUID  `json:"transaction_id"`
	OrderID                  uuid.UUID  `json:"order_id"`
	SellerID                 uuid.UUID  `json:"seller_id"`
	OriginalTransactionID    *uuid.UUID `json:"original_transaction_id,omitempty"`
	Status                   string     `json:"status"`
	GrossAmountCents         int64      `json:"gross_amount_cents"`
	AdminFeeCents            int64      `json:"admin_fee_cents"`
	SellerAmountCents        int64      `json:"seller_amount_cents"`
	CommissionRate           string     `json:"commission_rate"`
	Currency                 string     `json:"currency"`
	ExternalPaymentReference string     `json:"external_payment_reference"`
	PaymentMethod            string     `json:"payment_method,omitempty"`
	Category                 string     `json:"category,omitempty"`
	RecordedAt               time.Time  `json:"recorded_at"`
}

func NewLedgerTransactionEvent(txn *models.Transaction) LedgerTransactionEvent {
	event := LedgerTransactionEvent{
		TransactionID:            txn.ID,
		OrderID:                  txn.OrderID,
		SellerID:                 txn.SellerID,
		OriginalTransactionID:    txn.OriginalTransactionID,
		Status:                   txn.Status.String(),
		GrossAmountCents:         txn.GrossAmountCents,
		AdminFeeCents:            txn.AdminFeeCents,
		SellerAmountCents:        txn.SellerAmountCents,
		CommissionRate:           txn.CommissionRate.String(),
		Currency:                 string(txn.Currency),
		ExternalPaymentReference: txn.ExternalPaymentReference,
		RecordedAt:               txn.CreatedAt.UTC(),
	}
	if txn.PaymentMethod != nil {
		event.PaymentMethod = string(*txn.PaymentMethod)
	}
	if txn.Category != nil {
		event.Category = *txn.Category
	}
	return event
}
