package commission

import (
	"testing"

	"github.com/google/uuid"
)

func TestAllocateItems(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	cases := []struct {
		name       string
		split      Split
		items      []ItemShare
		wantFees   []int64
		wantSeller []int64
	}{
		{
			name:       "exact proportions",
			split:      Split{GrossCents: 50000, AdminFeeCents: 1000, SellerCents: 49000},
			items:      []ItemShare{{ItemID: a, GrossCents: 30000}, {ItemID: b, GrossCents: 20000}},
			wantFees:   []int64{600, 400},
			wantSeller: []int64{29400, 19600},
		},
		{
			name:       "equal remainders go to earlier items",
			split:      Split{GrossCents: 300, AdminFeeCents: 2, SellerCents: 298},
			items:      []ItemShare{{ItemID: a, GrossCents: 100}, {ItemID: b, GrossCents: 100}, {ItemID: c, GrossCents: 100}},
			wantFees:   []int64{1, 1, 0},
			wantSeller: []int64{99, 99, 100},
		},
		{
			name:       "largest remainder wins",
			split:      Split{GrossCents: 300, AdminFeeCents: 7, SellerCents: 293},
			items:      []ItemShare{{ItemID: a, GrossCents: 50}, {ItemID: b, GrossCents: 250}},
			wantFees:   []int64{1, 6},
			wantSeller: []int64{49, 244},
		},
		{
			name:       "zero gross",
			split:      Split{},
			items:      []ItemShare{{ItemID: a}},
			wantFees:   []int64{0},
			wantSeller: []int64{0},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AllocateItems(tc.split, tc.items)
			if err != nil {
				t.Fatalf("AllocateItems: %v", err)
			}
			var feeSum, sellerSum int64
			for i, alloc := range got {
				if alloc.ItemID != tc.items[i].ItemID {
					t.Fatalf("item order changed at %d", i)
				}
				if alloc.FeeCents != tc.wantFees[i] {
					t.Fatalf("item %d fee %d, want %d", i, alloc.FeeCents, tc.wantFees[i])
				}
				if alloc.SellerCents != tc.wantSeller[i] {
					t.Fatalf("item %d seller %d, want %d", i, alloc.SellerCents, tc.wantSeller[i])
				}
				feeSum += alloc.FeeCents
				sellerSum += alloc.SellerCents
			}
			if feeSum != tc.split.AdminFeeCents || sellerSum != tc.split.SellerCents {
				t.Fatalf("allocations do not reconcile: fee %d/%d seller %d/%d", feeSum, tc.split.AdminFeeCents, sellerSum, tc.split.SellerCents)
			}
		})
	}
}

func TestAllocateItemsRejectsMismatchedTotals(t *testing.T) {
	split := Split{GrossCents: 1000, AdminFeeCents: 20, SellerCents: 980}
	if _, err := AllocateItems(split, []ItemShare{{ItemID: uuid.New(), GrossCents: 999}}); err == nil {
		t.Fatalf("expected mismatch error")
	}
	if _, err := AllocateItems(split.Negate(), nil); err == nil {
		t.Fatalf("expected negative gross error")
	}
}
