package category

import (
	"unicode/utf8"

	"github.com/zombor/receipt-ledger/internal/lineitem"
	"github.com/zombor/receipt-ledger/internal/textnorm"
)

// Confidence tells whether a category came from a keyword or the default.
type Confidence string

const (
	Matched   Confidence = "matched"
	Defaulted Confidence = "defaulted"
)

// Result is the outcome of matching one description.
type Result struct {
	Category   string     `json:"category"`
	Confidence Confidence `json:"match_confidence"`
	Keyword    string     `json:"keyword,omitempty"`
}

// Item is a candidate line item with its assigned category.
type Item struct {
	lineitem.Item
	Category   string     `json:"category"`
	Confidence Confidence `json:"match_confidence"`
}

// Match picks the category for description. The longest matching keyword
// wins; equal lengths go to the higher priority, then to the category
// declared first. Without any match the dictionary default is returned.
func Match(description string, d *Dictionary) Result {
	folded := textnorm.Fold(description)

	best := -1
	bestLen := 0
	bestKeyword := ""
	for i, keywords := range d.keywords {
		for _, kw := range keywords {
			if !textnorm.ContainsWord(folded, kw.folded) {
				continue
			}
			n := utf8.RuneCountInString(kw.folded)
			if best < 0 || n > bestLen || (n == bestLen && d.categories[i].Priority > d.categories[best].Priority) {
				best, bestLen, bestKeyword = i, n, kw.raw
			}
		}
	}

	if best < 0 {
		return Result{Category: d.fallback, Confidence: Defaulted}
	}
	return Result{Category: d.categories[best].Name, Confidence: Matched, Keyword: bestKeyword}
}

// Categorize assigns a category to a candidate line item.
func Categorize(item lineitem.Item, d *Dictionary) Item {
	r := Match(item.Description, d)
	return Item{Item: item, Category: r.Category, Confidence: r.Confidence}
}

// CategorizeAll assigns categories to every item, keeping their order.
func CategorizeAll(items []lineitem.Item, d *Dictionary) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, Categorize(it, d))
	}
	return out
}
