package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultOutboxDeadAttempts  = 10
	defaultBacklogThreshold    = 1000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	// RetentionDays is how long published and dead rows are kept.
	RetentionDays int
	// DeadAttempts is the attempt count at which an unpublished row is dead.
	// It matches the publisher's max attempts.
	DeadAttempts int
}

// OutboxRetentionJob prunes delivered and dead outbox rows. Dead rows are
// already copied to outbox_dlq by the publisher.
type OutboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	repo         outboxRetentionRepo
	retention    time.Duration
	deadAttempts int
	now          func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (*OutboxRetentionJob, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultOutboxRetentionDays
	}
	dead := params.DeadAttempts
	if dead <= 0 {
		dead = defaultOutboxDeadAttempts
	}
	return &OutboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		retention:    time.Duration(days) * 24 * time.Hour,
		deadAttempts: dead,
		now:          time.Now,
	}, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.deadAttempts)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff.Format(time.RFC3339),
		"rows_deleted": deleted,
	}), "cron.outbox_retention_done")
	return nil
}

type outboxCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

type deadLetterCounter interface {
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

type OutboxBacklogJobParams struct {
	Logger *logger.Logger
	Outbox outboxCounter
	// DeadLetters is optional; when set the job also reports rows
	// dead-lettered since the previous window.
	DeadLetters deadLetterCounter
	Threshold   int64
	Window      time.Duration
}

// OutboxBacklogJob warns when undelivered ledger events pile up, which
// usually means the publisher is down or Pub/Sub is rejecting messages.
type OutboxBacklogJob struct {
	logg      *logger.Logger
	repo      outboxCounter
	dlq       deadLetterCounter
	threshold int64
	window    time.Duration
	now       func() time.Time
}

func NewOutboxBacklogJob(params OutboxBacklogJobParams) (*OutboxBacklogJob, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox repository required")
	}
	threshold := params.Threshold
	if threshold <= 0 {
		threshold = defaultBacklogThreshold
	}
	window := params.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &OutboxBacklogJob{
		logg:      params.Logger,
		repo:      params.Outbox,
		dlq:       params.DeadLetters,
		threshold: threshold,
		window:    window,
		now:       time.Now,
	}, nil
}

func (j *OutboxBacklogJob) Name() string { return "outbox-backlog" }

func (j *OutboxBacklogJob) Run(ctx context.Context) error {
	pending, err := j.repo.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("count pending outbox rows: %w", err)
	}
	fields := map[string]any{
		"pending":   pending,
		"threshold": j.threshold,
	}
	var dead int64
	if j.dlq != nil {
		dead, err = j.dlq.CountSince(ctx, j.now().UTC().Add(-j.window))
		if err != nil {
			return fmt.Errorf("count dead-lettered rows: %w", err)
		}
		fields["dead_lettered"] = dead
	}
	logCtx := j.logg.WithFields(ctx, fields)
	if pending >= j.threshold || dead > 0 {
		j.logg.Warn(logCtx, "cron.outbox_backlog_high")
		return nil
	}
	j.logg.Info(logCtx, "cron.outbox_backlog_ok")
	return nil
}
