// Package calculator works out how much each member of a split owes.
package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// cent is the smallest amount a share is rounded to.
var cent = decimal.New(1, -2)

// PersonSplit represents the calculated split for one person
type PersonSplit struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Item represents a single item on the bill
type Item struct {
	Description string
	Amount      decimal.Decimal
	AssignedTo  []string
}

// CalculateSplit computes how much each person owes including proportional tax.
// Based on the algorithm: person_total = person_subtotal × (1 + (total_tax / bill_subtotal))
//
// Totals are rounded to cents. Rounding leftovers are handed out a cent at a
// time in participant order, so the shares add up to the rounded sum of the
// unrounded shares (the bill total when every item is assigned).
func CalculateSplit(items []Item, billTotal, billSubtotal decimal.Decimal, participants []string) (map[string]*PersonSplit, error) {
	if billSubtotal.IsZero() {
		return nil, fmt.Errorf("subtotal cannot be zero")
	}
	if billSubtotal.IsNegative() || billTotal.IsNegative() {
		return nil, fmt.Errorf("amounts cannot be negative")
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("must have at least one participant")
	}

	splits := make(map[string]*PersonSplit, len(participants))
	for _, p := range participants {
		if _, dup := splits[p]; dup {
			return nil, fmt.Errorf("duplicate participant %q", p)
		}
		splits[p] = &PersonSplit{}
	}

	tax := billTotal.Sub(billSubtotal)
	count := decimal.NewFromInt(int64(len(participants)))

	if len(items) == 0 {
		// No items: split the whole bill equally.
		for _, split := range splits {
			split.Subtotal = billSubtotal.Div(count)
			split.Tax = tax.Div(count)
			split.Total = billTotal.Div(count)
		}
	} else {
		for _, item := range items {
			if item.Amount.IsNegative() {
				return nil, fmt.Errorf("item %q has a negative amount", item.Description)
			}
			if len(item.AssignedTo) == 0 {
				continue
			}

			perPerson := item.Amount.Div(decimal.NewFromInt(int64(len(item.AssignedTo))))
			for _, person := range item.AssignedTo {
				split, ok := splits[person]
				if !ok {
					return nil, fmt.Errorf("item %q assigned to unknown participant %q", item.Description, person)
				}
				split.Subtotal = split.Subtotal.Add(perPerson)
			}
		}

		rate := tax.Div(billSubtotal)
		for _, split := range splits {
			split.Tax = split.Subtotal.Mul(rate)
			split.Total = split.Subtotal.Add(split.Tax)
		}
	}

	roundShares(splits, participants)
	return splits, nil
}

// roundShares rounds every share to cents and spreads the rounding drift.
func roundShares(splits map[string]*PersonSplit, participants []string) {
	exact := decimal.Zero
	rounded := decimal.Zero
	for _, p := range participants {
		s := splits[p]
		exact = exact.Add(s.Total)
		s.Subtotal = s.Subtotal.Round(2)
		s.Tax = s.Tax.Round(2)
		s.Total = s.Total.RoundDown(2)
		rounded = rounded.Add(s.Total)
	}

	drift := exact.Round(2).Sub(rounded)
	for i := 0; drift.GreaterThan(decimal.Zero); i = (i + 1) % len(participants) {
		s := splits[participants[i]]
		s.Total = s.Total.Add(cent)
		drift = drift.Sub(cent)
	}
}
