package commission

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRate    = errors.New("invalid commission rate")
	ErrAmountTooLarge = errors.New("amount out of range")
)

// Split is the fee/payout breakdown of one gross amount. For every split
// AdminFeeCents + SellerCents == GrossCents.
type Split struct {
	GrossCents    int64
	AdminFeeCents int64
	SellerCents   int64
	Rate          Rate
}

// ComputeSplit derives the platform fee and seller payout for gross.
//
// The fee is |gross| * rate rounded half-up to the nearest minor unit and the
// seller amount is the remainder, so the two always sum to gross. Negative gross
// is split on its absolute value and both parts are negated.
func ComputeSplit(grossCents int64, rate Rate) (Split, error) {
	if grossCents == math.MinInt64 {
		return Split{}, fmt.Errorf("%w: %d", ErrAmountTooLarge, grossCents)
	}
	if grossCents == 0 {
		return Split{Rate: rate}, nil
	}

	abs := grossCents
	if abs < 0 {
		abs = -abs
	}

	fee := decimal.NewFromInt(abs).Mul(rate.value).Round(0).IntPart()
	split := Split{
		GrossCents:    abs,
		AdminFeeCents: fee,
		SellerCents:   abs - fee,
		Rate:          rate,
	}
	if grossCents < 0 {
		return split.Negate(), nil
	}
	return split, nil
}

// Negate returns the reversed triple used for refund rows.
func (s Split) Negate() Split {
	return Split{
		GrossCents:    -s.GrossCents,
		AdminFeeCents: -s.AdminFeeCents,
		SellerCents:   -s.SellerCents,
		Rate:          s.Rate,
	}
}

// Balanced reports whether fee and seller amount add up to gross.
func (s Split) Balanced() bool {
	return s.AdminFeeCents+s.SellerCents == s.GrossCents
}
