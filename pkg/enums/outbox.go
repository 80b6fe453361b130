package enums

// OutboxAggregateType maps to the outbox_aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateTransaction OutboxAggregateType = "transaction"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateTransaction
}

// OutboxEventType maps to the outbox_event_type enum in Postgres.
type OutboxEventType string

const (
	EventPaymentSettled OutboxEventType = "payment_settled"
	EventPaymentFailed  OutboxEventType = "payment_failed"
	EventRefundRecorded OutboxEventType = "refund_recorded"
)

// LedgerEventTypes lists every event the ledger emits, in publish order.
var LedgerEventTypes = []OutboxEventType{
	EventPaymentSettled,
	EventPaymentFailed,
	EventRefundRecorded,
}

func (e OutboxEventType) IsValid() bool { return member(LedgerEventTypes, e) }

// OutboxDLQErrorReason records why the publisher stopped retrying a row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
