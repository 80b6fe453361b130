package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/craftconnect/marketplace-backend/pkg/db/dbtest"
	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

func newTestService(t *testing.T) (*Service, *Repository, *gorm.DB) {
	t.Helper()
	gdb := dbtest.Open(t)
	repo := NewRepository(gdb)
	logg := logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard})
	return NewService(repo, logg), repo, gdb
}

func settledEvent(aggregateID uuid.UUID) DomainEvent {
	return DomainEvent{
		EventType:     enums.EventPaymentSettled,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   aggregateID,
		Data:          map[string]any{"gross_amount_cents": 50000},
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEmitWritesEnvelope(t *testing.T) {
	svc, repo, gdb := newTestService(t)
	aggregateID := uuid.New()

	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, settledEvent(aggregateID))
	}))

	var rows []models.OutboxEvent
	require.NoError(t, gdb.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventPaymentSettled, rows[0].EventType)
	assert.Equal(t, aggregateID, rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	assert.JSONEq(t, `{"gross_amount_cents":50000}`, string(envelope.Data))

	pending, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	svc, repo, gdb := newTestService(t)
	boom := errors.New("ledger write failed")

	err := gdb.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, settledEvent(uuid.New())))
		return boom
	})
	require.ErrorIs(t, err, boom)

	pending, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestEmitValidates(t *testing.T) {
	svc, _, gdb := newTestService(t)
	ctx := context.Background()

	require.Error(t, svc.Emit(ctx, nil, settledEvent(uuid.New())))

	unknown := settledEvent(uuid.New())
	unknown.EventType = enums.OutboxEventType("seller_paid_out")
	require.Error(t, svc.Emit(ctx, gdb, unknown))

	missing := settledEvent(uuid.Nil)
	require.Error(t, svc.Emit(ctx, gdb, missing))

	unmarshalable := settledEvent(uuid.New())
	unmarshalable.Data = make(chan int)
	require.Error(t, svc.Emit(ctx, gdb, unmarshalable))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	svc, repo, gdb := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Emit(ctx, gdb, settledEvent(uuid.New())))
	}

	rows, err := repo.FetchUnpublishedForPublish(gdb, 2, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublishedTx(gdb, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(gdb, rows[1].ID, errors.New("deadline exceeded")))

	var failed models.OutboxEvent
	require.NoError(t, gdb.First(&failed, "id = ?", rows[1].ID).Error)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "deadline exceeded", *failed.LastError)

	require.NoError(t, repo.MarkTerminalTx(gdb, rows[1].ID, errors.New("gave up"), 3))

	remaining, err := repo.FetchUnpublishedForPublish(gdb, 10, 3)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.NotEqual(t, rows[0].ID, remaining[0].ID)
	assert.NotEqual(t, rows[1].ID, remaining[0].ID)
}

func TestDeletePublishedBefore(t *testing.T) {
	svc, repo, gdb := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Emit(ctx, gdb, settledEvent(uuid.New())))
	}
	var rows []models.OutboxEvent
	require.NoError(t, gdb.Order("created_at ASC").Find(&rows).Error)
	require.Len(t, rows, 3)

	old := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).Where("id = ?", rows[0].ID).
		Updates(map[string]any{"published_at": old, "created_at": old}).Error)
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).Where("id = ?", rows[1].ID).
		Updates(map[string]any{"attempt_count": 5, "created_at": old}).Error)

	deleted, err := repo.DeletePublishedBefore(ctx, gdb, time.Now().UTC().Add(-24*time.Hour), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var left []models.OutboxEvent
	require.NoError(t, gdb.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, rows[2].ID, left[0].ID)
}

func TestDLQRepositoryTruncatesMessage(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := NewDLQRepository(gdb)

	long := make([]byte, maxErrorLen+50)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	eventID := uuid.New()
	require.NoError(t, repo.InsertTx(gdb, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventRefundRecorded,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		FailedAt:      time.Now().UTC(),
	}))

	entry, err := repo.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, entry.ErrorMessage)
	assert.Len(t, *entry.ErrorMessage, maxErrorLen)

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	recent, err := repo.CountSince(context.Background(), time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), recent)
	future, err := repo.CountSince(context.Background(), time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, future)
}

func TestClipErrorMessageKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", maxErrorLen-1) + "ñ"
	clipped := clipErrorMessage(msg)
	assert.Equal(t, maxErrorLen-1, len(clipped))
	assert.True(t, utf8.ValidString(clipped))
	assert.Equal(t, "short", clipErrorMessage("short"))
}

func TestDecodeEnvelope(t *testing.T) {
	envelope, err := DecodeEnvelope([]byte(`{"version":1,"event_id":"e1","occurred_at":"2026-03-01T12:00:00Z","data":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "e1", envelope.EventID)
	assert.JSONEq(t, `{"a":1}`, string(envelope.Data))

	_, err = DecodeEnvelope([]byte(`{"version":2,"event_id":"e1","data":{}}`))
	require.ErrorIs(t, err, ErrEnvelopeVersion)

	_, err = DecodeEnvelope([]byte(`{"version":1,"event_id":"e1","data":null}`))
	require.ErrorIs(t, err, ErrEnvelopeEmpty)

	_, err = DecodeEnvelope([]byte(`{"version":`))
	require.Error(t, err)
}
