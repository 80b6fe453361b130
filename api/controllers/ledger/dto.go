package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
	"github.com/craftconnect/marketplace-backend/pkg/types"
)

// TransactionResponse is the public view of a ledger row. Amounts are minor
// units; the rate is rendered as a decimal string.
type TransactionResponse struct {
	ID                       uuid.UUID                  `json:"id"`
	OrderID                  uuid.UUID                  `json:"order_id"`
	SellerID                 uuid.UUID                  `json:"seller_id"`
	OriginalTransactionID    *uuid.UUID                 `json:"original_transaction_id,omitempty"`
	GrossAmountCents         int64                      `json:"gross_amount_cents"`
	AdminFeeCents            int64                      `json:"admin_fee_cents"`
	SellerAmountCents        int64                      `json:"seller_amount_cents"`
	CommissionRate           string                     `json:"commission_rate"`
	RefundedGrossCents       int64                      `json:"refunded_gross_cents"`
	Status                   enums.TransactionStatus    `json:"status"`
	ExternalPaymentReference string                     `json:"external_payment_reference"`
	Currency                 enums.Currency             `json:"currency"`
	PaymentMethod            *enums.PaymentMethod       `json:"payment_method,omitempty"`
	Category                 *string                    `json:"category,omitempty"`
	Metadata                 *types.TransactionMetadata `json:"metadata,omitempty"`
	CreatedAt                time.Time                  `json:"created_at"`
}

func newTransactionResponse(txn *models.Transaction) *TransactionResponse {
	if txn == nil {
		return nil
	}
	return &TransactionResponse{
		ID:                       txn.ID,
		OrderID:                  txn.OrderID,
		SellerID:                 txn.SellerID,
		OriginalTransactionID:    txn.OriginalTransactionID,
		GrossAmountCents:         txn.GrossAmountCents,
		AdminFeeCents:            txn.AdminFeeCents,
		SellerAmountCents:        txn.SellerAmountCents,
		CommissionRate:           txn.CommissionRate.String(),
		RefundedGrossCents:       txn.RefundedGrossCents,
		Status:                   txn.Status,
		ExternalPaymentReference: txn.ExternalPaymentReference,
		Currency:                 txn.Currency,
		PaymentMethod:            txn.PaymentMethod,
		Category:                 txn.Category,
		Metadata:                 txn.Metadata,
		CreatedAt:                txn.CreatedAt.UTC(),
	}
}

func newTransactionResponses(txns []models.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, *newTransactionResponse(&txns[i]))
	}
	return out
}

// BalanceResponse is the public view of a seller's running balance.
type BalanceResponse struct {
	SellerID              uuid.UUID      `json:"seller_id"`
	AvailableBalanceCents int64          `json:"available_balance_cents"`
	PendingBalanceCents   int64          `json:"pending_balance_cents"`
	Currency              enums.Currency `json:"currency"`
	UpdatedAt             *time.Time     `json:"updated_at,omitempty"`
}

func newBalanceResponse(balance *models.SellerBalance) *BalanceResponse {
	if balance == nil {
		return nil
	}
	out := &BalanceResponse{
		SellerID:              balance.SellerID,
		AvailableBalanceCents: balance.AvailableBalanceCents,
		PendingBalanceCents:   balance.PendingBalanceCents,
		Currency:              balance.Currency,
	}
	if !balance.UpdatedAt.IsZero() {
		updated := balance.UpdatedAt.UTC()
		out.UpdatedAt = &updated
	}
	return out
}

// RefundResponse reports the refund row and the original after reversal.
type RefundResponse struct {
	Outcome       string               `json:"outcome"`
	Refund        *TransactionResponse `json:"refund"`
	Original      *TransactionResponse `json:"original"`
	SellerBalance *BalanceResponse     `json:"seller_balance,omitempty"`
}
