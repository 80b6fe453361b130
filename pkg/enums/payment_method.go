package enums

// PaymentMethod describes how a buyer settled an order.
type PaymentMethod string

const (
	PaymentMethodGCash        PaymentMethod = "gcash"
	PaymentMethodMaya         PaymentMethod = "maya"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCOD          PaymentMethod = "cod"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodGCash,
	PaymentMethodMaya,
	PaymentMethodCard,
	PaymentMethodBankTransfer,
	PaymentMethodCOD,
}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return member(validPaymentMethods, p) }

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse(validPaymentMethods, "payment method", value)
}
