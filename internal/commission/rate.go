package commission

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxRateScale is the number of decimal places a stored commission rate keeps.
const MaxRateScale = 6

var one = decimal.NewFromInt(1)

// Rate is a commission rate in [0,1]. The zero value is a 0% rate.
type Rate struct {
	value decimal.Decimal
}

// NewRate validates the decimal and wraps it as a Rate. Rates finer than
// MaxRateScale places are rejected so the stored rate reproduces the fee.
func NewRate(value decimal.Decimal) (Rate, error) {
	if value.IsNegative() || value.GreaterThan(one) {
		return Rate{}, fmt.Errorf("%w: %s is outside [0,1]", ErrInvalidRate, value.String())
	}
	if !value.Equal(value.Truncate(MaxRateScale)) {
		return Rate{}, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidRate, value.String(), MaxRateScale)
	}
	return Rate{value: value}, nil
}

// ParseRate parses configuration input such as "0.02".
func ParseRate(raw string) (Rate, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Rate{}, fmt.Errorf("%w: empty value", ErrInvalidRate)
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Rate{}, fmt.Errorf("%w: %q: %v", ErrInvalidRate, raw, err)
	}
	return NewRate(value)
}

// MustRate is ParseRate for constants and tests.
func MustRate(raw string) Rate {
	rate, err := ParseRate(raw)
	if err != nil {
		panic(err)
	}
	return rate
}

// Decimal exposes the underlying value for persistence.
func (r Rate) Decimal() decimal.Decimal {
	return r.value
}

// String implements fmt.Stringer.
func (r Rate) String() string {
	return r.value.String()
}

// Equal compares two rates numerically.
func (r Rate) Equal(other Rate) bool {
	return r.value.Equal(other.value)
}
