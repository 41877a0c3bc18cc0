// Package lineitem turns recognized receipt text into candidate line items.
package lineitem

// Amount is a currency amount in whole đồng. The currency has no minor
// unit, so amounts are always integers.
type Amount int64

// Item is a candidate line item read from a receipt.
//
// LineTotal is the net payable amount for the line after DiscountApplied
// has been taken off. It is never a tax-exclusive subtotal.
type Item struct {
	Description     string   `json:"description"`
	Quantity        *float64 `json:"quantity,omitempty"`
	UnitPrice       *Amount  `json:"unit_price,omitempty"`
	LineTotal       Amount   `json:"line_total"`
	DiscountApplied Amount   `json:"discount_applied"`
}

// applyDiscount takes d off the line total. The discount is clamped so the
// total never goes negative.
func (it Item) applyDiscount(d Amount) Item {
	if d < 0 {
		d = -d
	}
	if d > it.LineTotal {
		d = it.LineTotal
	}
	it.DiscountApplied += d
	it.LineTotal -= d
	return it
}
