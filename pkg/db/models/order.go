package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/pkg/enums"
)

// Order is owned by the cart/checkout flow; the ledger reads it and flips its
// payment status.
type Order struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID    uuid.UUID            `gorm:"column:customer_id;type:uuid;not null"`
	OrderNumber   int64                `gorm:"column:order_number;not null"`
	Status        enums.OrderStatus    `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus enums.PaymentStatus  `gorm:"column:payment_status;type:payment_status;not null;default:'unpaid'"`
	PaymentMethod *enums.PaymentMethod `gorm:"column:payment_method;type:text"`
	Currency      enums.Currency       `gorm:"column:currency;type:text;not null;default:'PHP'"`
	PaidAt        *time.Time           `gorm:"column:paid_at"`
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// TotalCents is the sum of unit price times quantity over all items.
func (o Order) TotalCents() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.LineTotalCents()
	}
	return total
}

// SellerIDs returns the distinct sellers across the order's items in item order.
func (o Order) SellerIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(o.Items))
	ids := make([]uuid.UUID, 0, 1)
	for _, item := range o.Items {
		if item.SellerID == uuid.Nil {
			continue
		}
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		ids = append(ids, item.SellerID)
	}
	return ids
}

// PrimaryCategory returns the category carrying the largest share of gross.
// Ties keep the first category seen.
func (o Order) PrimaryCategory() string {
	totals := map[string]int64{}
	order := []string{}
	for _, item := range o.Items {
		if item.Category == "" {
			continue
		}
		if _, ok := totals[item.Category]; !ok {
			order = append(order, item.Category)
		}
		totals[item.Category] += item.LineTotalCents()
	}
	best := ""
	var bestTotal int64 = -1
	for _, category := range order {
		if totals[category] > bestTotal {
			best = category
			bestTotal = totals[category]
		}
	}
	return best
}

// OrderItem snapshots one purchased product.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	SellerID       uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	Category       string    `gorm:"column:category;not null;default:''"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// LineTotalCents is unit price times quantity.
func (i OrderItem) LineTotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}
