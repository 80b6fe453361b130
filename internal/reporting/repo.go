package reporting

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
	"github.com/craftconnect/marketplace-backend/pkg/pagination"
)

const (
	sumColumns = `COALESCE(SUM(gross_amount_cents), 0) AS gross_cents,
COALESCE(SUM(admin_fee_cents), 0) AS admin_fee_cents,
COALESCE(SUM(seller_amount_cents), 0) AS seller_cents,
COUNT(*) AS transaction_count`

	uncategorized = "uncategorized"
	unknownMethod = "unknown"
)

// Repository runs the read-only ledger aggregations.
type Repository interface {
	Totals(ctx context.Context, filter Filter) (Totals, error)
	ByDay(ctx context.Context, filter Filter) ([]DayTotal, error)
	BySeller(ctx context.Context, filter Filter) ([]SellerTotal, error)
	ByCategory(ctx context.Context, filter Filter) ([]CategoryTotal, error)
	ByPaymentMethod(ctx context.Context, filter Filter) ([]PaymentMethodTotal, error)
	ListTransactions(ctx context.Context, filter Filter, limit int, cursor *pagination.Cursor) ([]models.Transaction, *pagination.Cursor, error)
	SellerBalance(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reporting repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) postgres() bool {
	return r.db.Dialector.Name() == "postgres"
}

// dayExpr buckets created_at into a UTC calendar day.
func (r *repository) dayExpr() string {
	if r.postgres() {
		return "to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}
	return "substr(created_at, 1, 10)"
}

func (r *repository) textExpr(column string) string {
	if r.postgres() {
		return column + "::text"
	}
	return column
}

// scoped is the base for every aggregate: failed attempts never moved money.
func (r *repository) scoped(ctx context.Context, filter Filter) *gorm.DB {
	return r.filtered(ctx, filter).Where("status <> ?", enums.TransactionStatusFailed)
}

func (r *repository) filtered(ctx context.Context, filter Filter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.From != nil {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", filter.To.UTC())
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	return query
}

func (r *repository) Totals(ctx context.Context, filter Filter) (Totals, error) {
	var totals Totals
	err := r.scoped(ctx, filter).Select(sumColumns).Scan(&totals).Error
	return totals, err
}

func (r *repository) ByDay(ctx context.Context, filter Filter) ([]DayTotal, error) {
	var rows []DayTotal
	err := r.scoped(ctx, filter).
		Select(r.dayExpr() + " AS day, " + sumColumns).
		Group(r.dayExpr()).
		Order("day ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) BySeller(ctx context.Context, filter Filter) ([]SellerTotal, error) {
	var rows []SellerTotal
	err := r.scoped(ctx, filter).
		Select("seller_id, " + sumColumns).
		Group("seller_id").
		Order("gross_cents DESC, seller_id ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) ByCategory(ctx context.Context, filter Filter) ([]CategoryTotal, error) {
	expr := "COALESCE(category, '" + uncategorized + "')"
	var rows []CategoryTotal
	err := r.scoped(ctx, filter).
		Select(expr + " AS category, " + sumColumns).
		Group(expr).
		Order("gross_cents DESC, category ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) ByPaymentMethod(ctx context.Context, filter Filter) ([]PaymentMethodTotal, error) {
	expr := "COALESCE(" + r.textExpr("payment_method") + ", '" + unknownMethod + "')"
	var rows []PaymentMethodTotal
	err := r.scoped(ctx, filter).
		Select(expr + " AS payment_method, " + sumColumns).
		Group(expr).
		Order("gross_cents DESC, payment_method ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) ListTransactions(ctx context.Context, filter Filter, limit int, cursor *pagination.Cursor) ([]models.Transaction, *pagination.Cursor, error) {
	var query *gorm.DB
	if filter.Status != "" {
		query = r.filtered(ctx, filter).Where("status = ?", filter.Status)
	} else {
		query = r.scoped(ctx, filter)
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt.UTC(), cursor.ID)
	}

	var txns []models.Transaction
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&txns).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(txns, limit, func(t models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return page, next, nil
}

func (r *repository) SellerBalance(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error) {
	var balance models.SellerBalance
	err := r.db.WithContext(ctx).Where("seller_id = ?", sellerID).Take(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}
