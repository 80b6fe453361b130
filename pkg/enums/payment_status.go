package enums

// PaymentStatus is the payment state the ledger maintains on an order.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusUnpaid,
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

// SettledPaymentStatuses are the states a late failure callback must not
// overwrite.
var SettledPaymentStatuses = []PaymentStatus{PaymentStatusPaid, PaymentStatusRefunded}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return member(validPaymentStatuses, p) }

// Settled reports whether the order already carries a completed payment.
func (p PaymentStatus) Settled() bool { return member(SettledPaymentStatuses, p) }
