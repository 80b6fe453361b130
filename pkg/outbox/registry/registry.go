package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/pkg/config"
	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
	"github.com/craftconnect/marketplace-backend/pkg/outbox"
	"github.com/craftconnect/marketplace-backend/pkg/outbox/payloads"
)

// Route says where one event type is published and which aggregate it
// must be attached to.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed every structural check.
type ResolvedEvent struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  *payloads.LedgerTransactionEvent
}

// EventRegistry knows the route of every event type the publisher relays.
type EventRegistry struct {
	routes map[enums.OutboxEventType]Route
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry routes every ledger event to the payment events topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.PaymentEventsTopic)
	if topic == "" {
		return nil, errors.New("payment events topic is required")
	}
	routes := make(map[enums.OutboxEventType]Route, len(enums.LedgerEventTypes))
	for _, eventType := range enums.LedgerEventTypes {
		routes[eventType] = Route{
			EventType:     eventType,
			AggregateType: enums.AggregateTransaction,
			Topic:         topic,
		}
	}
	return &EventRegistry{routes: routes}, nil
}

// Resolve checks the row against its route and decodes the ledger payload.
// Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, fmt.Errorf("unsupported event type %s", event.EventType)
	case route.AggregateType != event.AggregateType:
		return nil, fmt.Errorf("aggregate mismatch: expected %s got %s", route.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errors.New("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", event.EventType, err)
	}
	var payload payloads.LedgerTransactionEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", event.EventType, err)
	}
	if payload.TransactionID != event.AggregateID {
		return nil, fmt.Errorf("%s payload transaction %s does not match aggregate %s", event.EventType, payload.TransactionID, event.AggregateID)
	}

	return &ResolvedEvent{Route: route, Envelope: envelope, Payload: &payload}, nil
}
