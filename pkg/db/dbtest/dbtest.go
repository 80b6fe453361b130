// Package dbtest provides an in-memory SQLite database with the ledger schema
// for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  order_number INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  payment_method TEXT,
  currency TEXT NOT NULL DEFAULT 'PHP',
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  seller_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  unit_price_cents INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  original_transaction_id TEXT,
  gross_amount_cents INTEGER NOT NULL,
  admin_fee_cents INTEGER NOT NULL,
  seller_amount_cents INTEGER NOT NULL,
  commission_rate TEXT NOT NULL,
  refunded_gross_cents INTEGER NOT NULL DEFAULT 0,
  refunded_fee_cents INTEGER NOT NULL DEFAULT 0,
  refunded_seller_cents INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  external_payment_reference TEXT NOT NULL,
  idempotency_key TEXT,
  currency TEXT NOT NULL DEFAULT 'PHP',
  payment_method TEXT,
  category TEXT,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (gross_amount_cents = admin_fee_cents + seller_amount_cents)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_idempotency_key ON transactions (idempotency_key);
CREATE INDEX IF NOT EXISTS idx_transactions_order_reference ON transactions (order_id, external_payment_reference);
CREATE TABLE IF NOT EXISTS seller_balances (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  available_balance_cents INTEGER NOT NULL DEFAULT 0,
  pending_balance_cents INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'PHP',
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (available_balance_cents >= 0 AND pending_balance_cents >= 0)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_seller_balances_seller_id ON seller_balances (seller_id);
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate ON outbox_events (event_type, aggregate_id);
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);
`

// Open returns a fresh database private to the calling test. The pool is
// capped at one connection so concurrent callers serialize on SQLite's single
// writer instead of failing with SQLITE_BUSY.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

// Item describes one line item for CreateOrder.
type Item struct {
	SellerID       uuid.UUID
	Category       string
	UnitPriceCents int64
	Quantity       int
}

var orderNumber int64 = 1000

// CreateOrder inserts an unpaid order with the given items.
func CreateOrder(t *testing.T, db *gorm.DB, items ...Item) *models.Order {
	t.Helper()

	number := atomic.AddInt64(&orderNumber, 1)
	now := time.Now().UTC()
	order := &models.Order{
		ID:            uuid.New(),
		CustomerID:    uuid.New(),
		OrderNumber:   number,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusUnpaid,
		Currency:      enums.CurrencyPHP,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, db.Omit("Items").Create(order).Error)

	for i, item := range items {
		row := models.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			SellerID:       item.SellerID,
			ProductID:      uuid.New(),
			Name:           fmt.Sprintf("item-%d", i+1),
			Category:       item.Category,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			CreatedAt:      now.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, db.Create(&row).Error)
		order.Items = append(order.Items, row)
	}
	return order
}

// SeedBalance writes an available balance for the seller directly.
func SeedBalance(t *testing.T, db *gorm.DB, sellerID uuid.UUID, availableCents int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.SellerBalance{
		ID:                    uuid.New(),
		SellerID:              sellerID,
		AvailableBalanceCents: availableCents,
		Currency:              enums.CurrencyPHP,
	}).Error)
}

// AvailableBalance reads a seller's available balance, zero when absent.
func AvailableBalance(t *testing.T, db *gorm.DB, sellerID uuid.UUID) int64 {
	t.Helper()
	var balance models.SellerBalance
	err := db.Where("seller_id = ?", sellerID).Limit(1).Find(&balance).Error
	require.NoError(t, err)
	return balance.AvailableBalanceCents
}

// CountTransactions counts ledger rows for an order.
func CountTransactions(t *testing.T, db *gorm.DB, orderID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).Where("order_id = ?", orderID).Count(&count).Error)
	return count
}
