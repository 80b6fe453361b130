package enums

// Currency is an ISO 4217 code. All ledger amounts are integer minor units
// (centavos for PHP).
type Currency string

const (
	CurrencyPHP Currency = "PHP"
	CurrencyUSD Currency = "USD"
)

var validCurrencies = []Currency{CurrencyPHP, CurrencyUSD}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return member(validCurrencies, c) }
