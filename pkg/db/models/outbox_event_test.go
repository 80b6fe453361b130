package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/pkg/enums"
)

func TestOutboxEventDeadLetter(t *testing.T) {
	event := OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventRefundRecorded,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		AttemptCount:  3,
	}
	failedAt := time.Date(2026, 3, 1, 20, 0, 0, 0, time.FixedZone("PHT", 8*3600))

	entry := event.DeadLetter(enums.OutboxDLQReasonMaxAttempts, errors.New("deadline exceeded"), failedAt)
	if entry.EventID != event.ID || entry.AggregateID != event.AggregateID {
		t.Fatalf("expected identifiers copied from event")
	}
	if entry.AttemptCount != 4 {
		t.Fatalf("expected failing attempt counted, got %d", entry.AttemptCount)
	}
	if entry.FailedAt.Location() != time.UTC || !entry.FailedAt.Equal(failedAt) {
		t.Fatalf("expected failed_at normalized to UTC, got %s", entry.FailedAt)
	}
	if entry.ErrorMessage == nil || *entry.ErrorMessage != "deadline exceeded" {
		t.Fatalf("unexpected error message %v", entry.ErrorMessage)
	}

	if bare := event.DeadLetter(enums.OutboxDLQReasonNonRetryable, nil, failedAt); bare.ErrorMessage != nil {
		t.Fatalf("expected nil message without cause")
	}
}
