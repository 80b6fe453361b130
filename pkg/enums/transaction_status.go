package enums

// TransactionStatus tracks the lifecycle of a ledger transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSucceeded TransactionStatus = "succeeded"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusSucceeded,
	TransactionStatusFailed,
	TransactionStatusRefunded,
}

func (s TransactionStatus) String() string { return string(s) }

func (s TransactionStatus) IsValid() bool { return member(validTransactionStatuses, s) }

// IsTerminal reports whether no further transitions are expected.
func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusPending && s.IsValid()
}

func ParseTransactionStatus(value string) (TransactionStatus, error) {
	return parse(validTransactionStatuses, "transaction status", value)
}
