package commission

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemShare is one line item's contribution to an order's gross.
type ItemShare struct {
	ItemID     uuid.UUID
	GrossCents int64
}

// ItemAllocation is the slice of an order level split assigned to one item.
type ItemAllocation struct {
	ItemID      uuid.UUID
	GrossCents  int64
	FeeCents    int64
	SellerCents int64
}

// AllocateItems spreads split's admin fee across items in proportion to their
// gross using the largest remainder method. Item fees sum exactly to the order
// fee and ties go to the earlier item, so the result is deterministic.
func AllocateItems(split Split, items []ItemShare) ([]ItemAllocation, error) {
	if split.GrossCents < 0 {
		return nil, fmt.Errorf("allocate: negative gross %d", split.GrossCents)
	}

	var total int64
	for _, item := range items {
		if item.GrossCents < 0 {
			return nil, fmt.Errorf("allocate: item %s has negative gross", item.ItemID)
		}
		total += item.GrossCents
	}
	if total != split.GrossCents {
		return nil, fmt.Errorf("allocate: items sum to %d, split gross is %d", total, split.GrossCents)
	}

	out := make([]ItemAllocation, len(items))
	if total == 0 {
		for i, item := range items {
			out[i] = ItemAllocation{ItemID: item.ItemID}
		}
		return out, nil
	}

	type remainder struct {
		index int
		value decimal.Decimal
	}

	fee := decimal.NewFromInt(split.AdminFeeCents)
	denominator := decimal.NewFromInt(total)
	remainders := make([]remainder, len(items))
	var assigned int64
	for i, item := range items {
		q, r := fee.Mul(decimal.NewFromInt(item.GrossCents)).QuoRem(denominator, 0)
		share := q.IntPart()
		assigned += share
		out[i] = ItemAllocation{ItemID: item.ItemID, GrossCents: item.GrossCents, FeeCents: share}
		remainders[i] = remainder{index: i, value: r}
	}

	sort.SliceStable(remainders, func(a, b int) bool {
		return remainders[a].value.GreaterThan(remainders[b].value)
	})
	for i := int64(0); i < split.AdminFeeCents-assigned; i++ {
		out[remainders[i].index].FeeCents++
	}

	for i := range out {
		out[i].SellerCents = out[i].GrossCents - out[i].FeeCents
	}
	return out, nil
}
