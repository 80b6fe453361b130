package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/craftconnect/marketplace-backend/pkg/enums"
	"github.com/craftconnect/marketplace-backend/pkg/types"
)

// Transaction is an immutable ledger entry. Only Status, the refunded counters
// and Metadata change after insert.
type Transaction struct {
	ID                       uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID                  uuid.UUID                  `gorm:"column:order_id;type:uuid;not null"`
	SellerID                 uuid.UUID                  `gorm:"column:seller_id;type:uuid;not null"`
	OriginalTransactionID    *uuid.UUID                 `gorm:"column:original_transaction_id;type:uuid"`
	GrossAmountCents         int64                      `gorm:"column:gross_amount_cents;not null"`
	AdminFeeCents            int64                      `gorm:"column:admin_fee_cents;not null"`
	SellerAmountCents        int64                      `gorm:"column:seller_amount_cents;not null"`
	CommissionRate           decimal.Decimal            `gorm:"column:commission_rate;type:numeric(7,6);not null"`
	RefundedGrossCents       int64                      `gorm:"column:refunded_gross_cents;not null;default:0"`
	RefundedFeeCents         int64                      `gorm:"column:refunded_fee_cents;not null;default:0"`
	RefundedSellerCents      int64                      `gorm:"column:refunded_seller_cents;not null;default:0"`
	Status                   enums.TransactionStatus    `gorm:"column:status;type:transaction_status;not null"`
	ExternalPaymentReference string                     `gorm:"column:external_payment_reference;not null"`
	IdempotencyKey           *string                    `gorm:"column:idempotency_key"`
	Currency                 enums.Currency             `gorm:"column:currency;type:text;not null;default:'PHP'"`
	PaymentMethod            *enums.PaymentMethod       `gorm:"column:payment_method;type:text"`
	Category                 *string                    `gorm:"column:category"`
	Metadata                 *types.TransactionMetadata `gorm:"column:metadata;type:jsonb"`
	CreatedAt                time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// IsRefund reports whether the row reverses another transaction.
func (t Transaction) IsRefund() bool {
	return t.OriginalTransactionID != nil
}

// RemainingGrossCents is the gross still refundable against this transaction.
func (t Transaction) RemainingGrossCents() int64 {
	return t.GrossAmountCents - t.RefundedGrossCents
}

// RemainingFeeCents is the admin fee not yet reversed.
func (t Transaction) RemainingFeeCents() int64 {
	return t.AdminFeeCents - t.RefundedFeeCents
}

// RemainingSellerCents is the seller amount not yet reversed.
func (t Transaction) RemainingSellerCents() int64 {
	return t.SellerAmountCents - t.RefundedSellerCents
}
