package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindOrder loads the order with its items and holds a row lock on the order
// until the surrounding transaction ends.
func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", id).
		Take(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaid records payment completion. A pending order moves to
// processing; later fulfillment states are left alone. An order that is
// already paid or refunded is never touched.
func (r *repository) MarkOrderPaid(ctx context.Context, id uuid.UUID, method *enums.PaymentMethod, paidAt time.Time) error {
	updates := map[string]any{
		"payment_status": enums.PaymentStatusPaid,
		"status": gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END",
			enums.OrderStatusPending, enums.OrderStatusProcessing),
		"paid_at":    paidAt,
		"updated_at": paidAt,
	}
	if method != nil {
		updates["payment_method"] = *method
	}

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status NOT IN ?", id, enums.SettledPaymentStatuses).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrOrderNotFound
	}
	return ErrOrderAlreadySettled
}

// MarkPaymentFailed flags a failed attempt unless the order has already been
// paid; a late failure callback never downgrades a settled order.
func (r *repository) MarkPaymentFailed(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status NOT IN ?", id, enums.SettledPaymentStatuses).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusFailed,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusRefunded,
			"updated_at":     time.Now().UTC(),
		}).Error
}
