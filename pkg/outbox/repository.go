package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/craftconnect/marketplace-backend/pkg/db/models"
)

var errTxRequired = errors.New("transaction required")

// Repository reads and updates outbox_events. Publisher methods take the
// caller's transaction so row locks last until the batch commits.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForPublish locks up to limit pending rows that still have
// attempts left, oldest first. Concurrent publishers skip each other's rows.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	var rows []models.OutboxEvent
	err := pending(tx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("attempt_count < ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return byID(tx, id).Update("published_at", time.Now().UTC()).Error
}

// MarkFailedTx counts one failed attempt against the row.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	return recordFailure(tx, id, err, gorm.Expr("attempt_count + 1"))
}

// MarkTerminalTx pins attempt_count at terminalAttempts so the row is never
// fetched again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	return recordFailure(tx, id, err, terminalAttempts)
}

// DeletePublishedBefore removes published rows older than cutoff, along with
// dead rows that reached minAttemptCount before cutoff.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Where("published_at < ?", cutoff).
		Or("published_at IS NULL AND attempt_count >= ? AND created_at < ?", minAttemptCount, cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// CountPending reports rows the publisher has not delivered yet, dead rows
// included.
func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := pending(r.db.WithContext(ctx)).Count(&count).Error
	return count, err
}

func pending(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.OutboxEvent{}).Where("published_at IS NULL")
}

func byID(tx *gorm.DB, id uuid.UUID) *gorm.DB {
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id)
}

func recordFailure(tx *gorm.DB, id uuid.UUID, cause error, attempts any) error {
	var message *string
	if cause != nil {
		clipped := clipErrorMessage(cause.Error())
		message = &clipped
	}
	return byID(tx, id).Updates(map[string]any{
		"last_error":    message,
		"attempt_count": attempts,
	}).Error
}
