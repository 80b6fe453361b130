package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
)

// Repository manages persistence for ledger transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	FindSettlement(ctx context.Context, orderID uuid.UUID, reference string) (*models.Transaction, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	ListRefunds(ctx context.Context, originalID uuid.UUID) ([]models.Transaction, error)
	ApplyRefund(ctx context.Context, id uuid.UUID, refund RefundTotals, status enums.TransactionStatus) error
}

// RefundTotals is the positive gross/fee/seller amount reversed by one refund.
type RefundTotals struct {
	GrossCents  int64
	FeeCents    int64
	SellerCents int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return r.takeOne(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return r.takeOne(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	return r.takeOne(r.db.WithContext(ctx).Where("idempotency_key = ?", key))
}

// FindSettlement returns the settled transaction for an order and gateway
// reference, including one that has since been refunded.
func (r *repository) FindSettlement(ctx context.Context, orderID uuid.UUID, reference string) (*models.Transaction, error) {
	return r.takeOne(r.db.WithContext(ctx).
		Where("order_id = ? AND external_payment_reference = ?", orderID, reference).
		Where("original_transaction_id IS NULL").
		Where("status IN ?", []enums.TransactionStatus{enums.TransactionStatusSucceeded, enums.TransactionStatusRefunded}).
		Order("created_at ASC"))
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListRefunds(ctx context.Context, originalID uuid.UUID) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("original_transaction_id = ?", originalID).
		Order("created_at ASC, id ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ApplyRefund bumps the cumulative refund counters on an original transaction.
func (r *repository) ApplyRefund(ctx context.Context, id uuid.UUID, refund RefundTotals, status enums.TransactionStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"refunded_gross_cents":  gorm.Expr("refunded_gross_cents + ?", refund.GrossCents),
			"refunded_fee_cents":    gorm.Expr("refunded_fee_cents + ?", refund.FeeCents),
			"refunded_seller_cents": gorm.Expr("refunded_seller_cents + ?", refund.SellerCents),
			"status":                status,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) takeOne(query *gorm.DB) (*models.Transaction, error) {
	var txn models.Transaction
	if err := query.Take(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}
