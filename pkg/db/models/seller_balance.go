package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/pkg/enums"
)

// SellerBalance is the running per-seller aggregate. Both balances stay >= 0.
type SellerBalance struct {
	ID                    uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	SellerID              uuid.UUID      `gorm:"column:seller_id;type:uuid;not null;uniqueIndex"`
	AvailableBalanceCents int64          `gorm:"column:available_balance_cents;not null;default:0"`
	PendingBalanceCents   int64          `gorm:"column:pending_balance_cents;not null;default:0"`
	Currency              enums.Currency `gorm:"column:currency;type:text;not null;default:'PHP'"`
	CreatedAt             time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
