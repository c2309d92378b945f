package split

import "github.com/shopspring/decimal"

// mismatchTolerance is one cent: item prices that drift further from the
// stored subtotal get flagged, never corrected.
var mismatchTolerance = decimal.NewFromFloat(0.01)

// Allocate computes each eligible person's owed total for the given items
// under the given assignments. Items with a nil or non-positive price
// contribute nothing. Each included item's price is divided evenly across
// its target set (the explicit assignment when non-empty, else everyone);
// rounding to two places happens once per person at the end, half away
// from zero, so per-item shares never accumulate rounding error.
//
// Allocate is total: zero items, all-nil prices, or an empty people list
// yield an empty or all-zero result, never an error. Calling it twice with
// unchanged inputs yields identical output.
func Allocate(items []Item, assignments *Assignments, people []Person) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal, len(people))
	everyone := make([]string, 0, len(people))
	for _, p := range people {
		totals[p.ID] = decimal.Zero
		everyone = append(everyone, p.ID)
	}

	for _, item := range items {
		if item.Price == nil || *item.Price <= 0 {
			continue
		}

		targets := everyone
		if assignments != nil {
			if explicit := assignments.Assigned(item.ID); len(explicit) > 0 {
				targets = explicit
			}
		}
		if len(targets) == 0 {
			continue
		}

		share := decimal.NewFromFloat(*item.Price).Div(decimal.NewFromInt(int64(len(targets))))
		for _, id := range targets {
			if running, ok := totals[id]; ok {
				totals[id] = running.Add(share)
			}
		}
	}

	for id, total := range totals {
		totals[id] = total.Round(2)
	}
	return totals
}

// SubtotalMismatch reports whether the sum of the non-nil item prices
// drifts more than one cent from the stored subtotal. Either value being
// absent means no signal. The mismatch is a warning for the user to
// verify; neither value is ever adjusted.
func SubtotalMismatch(items []Item, subtotal *float64) bool {
	if subtotal == nil {
		return false
	}

	sum := decimal.Zero
	for _, item := range items {
		if item.Price == nil {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(*item.Price))
	}

	diff := sum.Sub(decimal.NewFromFloat(*subtotal)).Abs()
	return diff.GreaterThan(mismatchTolerance)
}
