package reporting

import (
	"time"

	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
)

// Filter narrows every report. From is inclusive and To is exclusive.
type Filter struct {
	From     *time.Time
	To       *time.Time
	SellerID *uuid.UUID
	Category string
	// Status narrows ListTransactions, including to failed attempts.
	// Aggregates ignore it.
	Status   enums.TransactionStatus
}

// Totals are net sums: refund rows carry negative amounts and reduce them.
type Totals struct {
	GrossCents       int64 `gorm:"column:gross_cents" json:"gross_cents"`
	AdminFeeCents    int64 `gorm:"column:admin_fee_cents" json:"admin_fee_cents"`
	SellerCents      int64 `gorm:"column:seller_cents" json:"seller_cents"`
	TransactionCount int64 `gorm:"column:transaction_count" json:"transaction_count"`
}

type DayTotal struct {
	Day string `gorm:"column:day" json:"day"`
	Totals
}

type SellerTotal struct {
	SellerID uuid.UUID `gorm:"column:seller_id" json:"seller_id"`
	Totals
}

type CategoryTotal struct {
	Category string `gorm:"column:category" json:"category"`
	Totals
}

type PaymentMethodTotal struct {
	PaymentMethod string `gorm:"column:payment_method" json:"payment_method"`
	Totals
}

// Dashboard bundles the admin overview.
type Dashboard struct {
	Totals     Totals          `json:"totals"`
	ByDay      []DayTotal      `json:"by_day"`
	ByCategory []CategoryTotal `json:"by_category"`
}

type ListParams struct {
	Filter Filter
	Limit  int
	Cursor string
}

type TransactionPage struct {
	Transactions []models.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}
