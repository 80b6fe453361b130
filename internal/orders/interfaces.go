package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
)

var (
	// ErrOrderNotFound is returned when no order matches the id.
	ErrOrderNotFound       = errors.New("order not found")
	// ErrOrderAlreadySettled is returned when a paid or refunded order is marked paid again.
	ErrOrderAlreadySettled = errors.New("order already settled")
)

// Repository exposes the slice of the order tables the ledger depends on.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID, method *enums.PaymentMethod, paidAt time.Time) error
	MarkPaymentFailed(ctx context.Context, id uuid.UUID) error
	MarkRefunded(ctx context.Context, id uuid.UUID) error
}
