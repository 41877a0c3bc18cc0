package scanning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-ledger/internal/lineitem"
)

// receiptItemsPrompt is the instruction contract shared by the vision
// providers.
const receiptItemsPrompt = `You are reading a shop receipt. Extract the purchased items.

Rules:
1. Only include genuine purchased-item lines. Skip store headers, cashier names, dates, totals, payment and change lines.
2. For each item, "line_total" is the RIGHT-MOST amount on that item's row: the final amount actually payable for the line, after discounts and with tax included. Never use the unit price or a pre-discount subtotal.
3. If a discount line (negative amount, "giảm giá", "chiết khấu", "KM", "discount") follows an item, fold it into that item: subtract it from "line_total" and report it as "discount". Never output a discount as its own item.
4. Omit tax / VAT summary lines entirely. Item prices already include tax.
5. Amounts are whole Vietnamese đồng. "100.000đ" and "100,000" both mean 100000.

Return ONLY valid JSON in this exact format:
{
  "items": [
    {"description": "Item name as printed", "quantity": 1, "unit_price": 0, "line_total": 0, "discount": 0}
  ]
}

- "description" and "line_total" are required for every item.
- "quantity", "unit_price" and "discount" may be null when not printed.
- All amounts are numbers, not strings.
- If there are no items, return {"items": []}.
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

func promptFor(lang LanguageHint) string {
	switch lang {
	case LanguageEnglish:
		return receiptItemsPrompt + "\n\nThe receipt is printed in English. Keep item descriptions exactly as printed."
	default:
		return receiptItemsPrompt + "\n\nThe receipt is printed in Vietnamese. Keep item descriptions exactly as printed, with diacritics."
	}
}

type rawItem struct {
	Description json.RawMessage `json:"description"`
	Quantity    json.RawMessage `json:"quantity"`
	UnitPrice   json.RawMessage `json:"unit_price"`
	LineTotal   json.RawMessage `json:"line_total"`
	Discount    json.RawMessage `json:"discount"`
}

// parseItemsJSON validates a service response and converts it to line
// items. Any invalid item fails the whole response.
func parseItemsJSON(text string) ([]lineitem.Item, error) {
	body, err := jsonBody(text)
	if err != nil {
		return nil, malformed("locating JSON", err)
	}

	var raws []rawItem
	if body[0] == '[' {
		err = json.Unmarshal(body, &raws)
	} else {
		var envelope struct {
			Items *[]rawItem `json:"items"`
		}
		err = json.Unmarshal(body, &envelope)
		if err == nil && envelope.Items == nil {
			err = errors.New(`missing "items"`)
		}
		if envelope.Items != nil {
			raws = *envelope.Items
		}
	}
	if err != nil {
		return nil, malformed("decoding items", err)
	}

	items := make([]lineitem.Item, 0, len(raws))
	for i, raw := range raws {
		item, err := raw.toItem()
		if err != nil {
			return nil, malformed(fmt.Sprintf("item %d", i), err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r rawItem) toItem() (lineitem.Item, error) {
	var item lineitem.Item

	if isNull(r.Description) {
		return item, errors.New("description is required")
	}
	if err := json.Unmarshal(r.Description, &item.Description); err != nil {
		return item, fmt.Errorf("description: %w", err)
	}
	item.Description = strings.TrimSpace(item.Description)
	if item.Description == "" {
		return item, errors.New("description is empty")
	}

	if isNull(r.LineTotal) {
		return item, errors.New("line_total is required")
	}
	total, err := parseNumber(r.LineTotal)
	if err != nil {
		return item, fmt.Errorf("line_total: %w", err)
	}
	if total.IsNegative() {
		return item, fmt.Errorf("line_total is negative: %s", total)
	}
	item.LineTotal = toAmount(total)

	if !isNull(r.Quantity) {
		q, err := parseNumber(r.Quantity)
		if err != nil {
			return item, fmt.Errorf("quantity: %w", err)
		}
		if !q.IsPositive() {
			return item, fmt.Errorf("quantity must be positive: %s", q)
		}
		f := q.InexactFloat64()
		item.Quantity = &f
	}

	if !isNull(r.UnitPrice) {
		p, err := parseNumber(r.UnitPrice)
		if err != nil {
			return item, fmt.Errorf("unit_price: %w", err)
		}
		if p.IsNegative() {
			return item, fmt.Errorf("unit_price is negative: %s", p)
		}
		unit := toAmount(p)
		item.UnitPrice = &unit
	}

	if !isNull(r.Discount) {
		d, err := parseNumber(r.Discount)
		if err != nil {
			return item, fmt.Errorf("discount: %w", err)
		}
		if d.IsNegative() {
			// Some models report the discount as printed, with its sign.
			d = d.Neg()
		}
		item.DiscountApplied = toAmount(d)
	}

	return item, nil
}

// jsonBody strips markdown fences and surrounding prose.
func jsonBody(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return nil, errors.New("no JSON found in response")
	}
	closing := "}"
	if text[start] == '[' {
		closing = "]"
	}
	end := strings.LastIndex(text, closing)
	if end < start {
		return nil, errors.New("unterminated JSON in response")
	}
	return []byte(text[start : end+1]), nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// parseNumber accepts JSON numbers only; quoted amounts are rejected.
func parseNumber(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return decimal.Decimal{}, fmt.Errorf("not a number: %s", raw)
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a number: %s", raw)
	}
	return d, nil
}

func toAmount(d decimal.Decimal) lineitem.Amount {
	return lineitem.Amount(d.Round(0).IntPart())
}
