package ledger

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

// BalanceRepository owns the only code paths that mutate seller_balances.
// Credit and debit must run on a transaction handle from WithTx: the row lock
// they take is held until that transaction ends.
type BalanceRepository interface {
	WithTx(tx *gorm.DB) BalanceRepository
	CreditAvailable(ctx context.Context, sellerID uuid.UUID, amountCents int64) (*models.SellerBalance, error)
	DebitAvailable(ctx context.Context, sellerID uuid.UUID, amountCents int64) (*models.SellerBalance, error)
	FindBySellerID(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error)
}

type balanceRepository struct {
	db       *gorm.DB
	currency enums.Currency
}

// NewBalanceRepository returns a balance repository bound to the provided database.
func NewBalanceRepository(db *gorm.DB) BalanceRepository {
	return &balanceRepository{db: db, currency: enums.CurrencyPHP}
}

func (r *balanceRepository) WithTx(tx *gorm.DB) BalanceRepository {
	if tx == nil {
		return r
	}
	return &balanceRepository{db: tx, currency: r.currency}
}

func (r *balanceRepository) CreditAvailable(ctx context.Context, sellerID uuid.UUID, amountCents int64) (*models.SellerBalance, error) {
	if amountCents < 0 {
		return nil, validation(ErrNegativeAmount, "credit amount must be non-negative")
	}
	balance, err := r.lock(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if err := r.adjust(ctx, sellerID, amountCents); err != nil {
		return nil, err
	}
	balance.AvailableBalanceCents += amountCents
	return balance, nil
}

func (r *balanceRepository) DebitAvailable(ctx context.Context, sellerID uuid.UUID, amountCents int64) (*models.SellerBalance, error) {
	if amountCents < 0 {
		return nil, validation(ErrNegativeAmount, "debit amount must be non-negative")
	}
	balance, err := r.lock(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if balance.AvailableBalanceCents < amountCents {
		return nil, insufficientBalance(balance.AvailableBalanceCents, amountCents)
	}
	if err := r.adjust(ctx, sellerID, -amountCents); err != nil {
		return nil, err
	}
	balance.AvailableBalanceCents -= amountCents
	return balance, nil
}

// FindBySellerID returns nil when the seller has never been credited.
func (r *balanceRepository) FindBySellerID(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error) {
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

// lock creates the zero row on first use, then takes a row lock on it.
func (r *balanceRepository) lock(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error) {
	seed := models.SellerBalance{
		ID:       uuid.New(),
		SellerID: sellerID,
		Currency: r.currency,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "seller_id"}},
			DoNothing: true,
		}).
		Create(&seed).Error; err != nil {
		return nil, err
	}

	var balance models.SellerBalance
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("seller_id = ?", sellerID).
		Take(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *balanceRepository) adjust(ctx context.Context, sellerID uuid.UUID, deltaCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.SellerBalance{}).
		Where("seller_id = ?", sellerID).
		Updates(map[string]any{
			"available_balance_cents": gorm.Expr("available_balance_cents + ?", deltaCents),
			"updated_at":              time.Now().UTC(),
		}).Error
}
