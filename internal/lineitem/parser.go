package lineitem

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/zombor/receipt-ledger/internal/textnorm"
)

// State is a state of the line item parser.
type State int

const (
	// StateItemHeader expects an indexed item description line.
	StateItemHeader State = iota
	// StatePriceLine expects the amounts for the open item.
	StatePriceLine
	// StateDiscountLookahead peeks for a discount line after a priced item.
	StateDiscountLookahead
	// StateDone ignores everything after the document totals.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateItemHeader:
		return "item_header"
	case StatePriceLine:
		return "price_line"
	case StateDiscountLookahead:
		return "discount_lookahead"
	case StateDone:
		return "done"
	}
	return "unknown"
}

var (
	headerPattern   = regexp.MustCompile(`^\s*\d{1,4}[.)]?\s+(.+)$`)
	quantityPattern = regexp.MustCompile(`(?i)(?:^|\s)(\d+(?:[.,]\d+)?)\s*[x×*](?:\s|$)|\b(?:sl|qty)\s*[:.]?\s*(\d+(?:[.,]\d+)?)`)
)

// Folded phrases that open the totals section of a receipt.
var totalPhrases = []string{
	"tong cong", "tong tien", "tong thanh toan", "tong so luong",
	"tong giam gia", "tong chiet khau", "tong khuyen mai",
	"cong tien hang", "tien hang", "can thanh toan", "thanh toan",
	"khach tra", "tien mat", "tien thua",
	"subtotal", "sub-total", "sub total", "grand total", "amount due",
}

// Folded words that open the totals section only when the rest of the
// line is amounts or other such words, as in "Total: 120.000đ".
var totalWords = []string{
	"tong", "total", "thue", "vat", "gtgt", "tax", "payment", "cash", "change",
}

// Folded tags that mark a discount line.
var discountTags = []string{
	"giam gia", "giam", "chiet khau", "khuyen mai", "km", "ck",
	"discount", "promo", "promotion",
}

// accumulator holds the item being built while the parser moves between
// states.
type accumulator struct {
	open bool
	item Item
}

// transition is the result of feeding one line to the state machine.
type transition struct {
	state    State
	acc      accumulator
	emitted  *Item
	consumed bool
}

// Parse converts recognized text lines, ordered top to bottom, into
// candidate line items. It never fails: lines it cannot make sense of are
// skipped, and a receipt without any item header yields an empty slice.
func Parse(lines []string) []Item {
	items := []Item{}
	state := StateItemHeader
	var acc accumulator

	for i := 0; i < len(lines) && state != StateDone; {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			i++
			continue
		}
		t := step(state, acc, line)
		if t.emitted != nil {
			items = append(items, *t.emitted)
		}
		state, acc = t.state, t.acc
		if t.consumed {
			i++
		}
	}

	if state == StateDiscountLookahead && acc.open {
		items = append(items, acc.item)
	}
	return items
}

// ParseText splits raw recognized text into lines and parses them.
func ParseText(text string) []Item {
	return Parse(strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))
}

// step is the transition function of the parser. It depends only on its
// arguments.
func step(state State, acc accumulator, line string) transition {
	switch state {
	case StateItemHeader:
		return stepHeader(line)
	case StatePriceLine:
		return stepPrice(acc, line)
	case StateDiscountLookahead:
		return stepDiscount(acc, line)
	}
	return transition{state: StateDone, consumed: true}
}

func stepHeader(line string) transition {
	if isTotalMarker(line) {
		return transition{state: StateDone, consumed: true}
	}
	item, priced, ok := parseHeader(line)
	if !ok {
		return transition{state: StateItemHeader, consumed: true}
	}
	next := StatePriceLine
	if priced {
		next = StateDiscountLookahead
	}
	return transition{state: next, acc: accumulator{open: true, item: item}, consumed: true}
}

func stepPrice(acc accumulator, line string) transition {
	if isTotalMarker(line) {
		// The open item never got a price and is dropped.
		return transition{state: StateDone, consumed: true}
	}

	if item, ok := priceLine(acc.item, line); ok {
		return transition{state: StateDiscountLookahead, acc: accumulator{open: true, item: item}, consumed: true}
	}

	if item, priced, ok := parseHeader(line); ok {
		next := StatePriceLine
		if priced {
			next = StateDiscountLookahead
		}
		return transition{state: next, acc: accumulator{open: true, item: item}, consumed: true}
	}

	if hasWordField(line) {
		acc.item.Description = strings.TrimSpace(acc.item.Description + " " + line)
	}
	return transition{state: StatePriceLine, acc: acc, consumed: true}
}

func stepDiscount(acc accumulator, line string) transition {
	d, ok := discountLine(acc.item.LineTotal, line)
	if !ok {
		emitted := acc.item
		return transition{state: StateItemHeader, emitted: &emitted, consumed: false}
	}
	emitted := acc.item.applyDiscount(d)
	return transition{state: StateItemHeader, emitted: &emitted, consumed: true}
}

// parseHeader reads "001 Widget A" or a single line item such as
// "004 Widget D 5 10,000đ 50,000đ". priced reports whether the line
// already carried the line total.
func parseHeader(line string) (item Item, priced bool, ok bool) {
	m := headerPattern.FindStringSubmatch(line)
	if m == nil {
		return Item{}, false, false
	}
	fields := strings.Fields(m[1])
	start, amounts, qty := trailingRun(fields)

	if len(amounts) > 0 && amounts[len(amounts)-1].price() {
		desc := strings.Join(fields[:start], " ")
		if !isDescription(desc) {
			return Item{}, false, false
		}
		item = Item{Description: desc}
		return fillFromRun(item, amounts, qty), true, true
	}

	desc := strings.Join(fields, " ")
	if !isDescription(desc) {
		return Item{}, false, false
	}
	return Item{Description: desc}, false, true
}

// trailingRun collects the amounts at the end of a header line. It
// returns the index of the first field belonging to the run.
func trailingRun(fields []string) (int, []token, *float64) {
	var (
		amounts    []token
		qty        *float64
		markerSeen bool
	)
	start := len(fields)
	for i := len(fields) - 1; i >= 0; i-- {
		f := fields[i]
		if isCurrencyWord(f) && i > 0 && isAmountField(fields[i-1]) {
			start = i
			continue
		}
		if isQuantityMarker(f) {
			markerSeen = true
			start = i
			continue
		}
		if q, ok := quantityToken(f); ok && qty == nil {
			qty = &q
			start = i
			continue
		}
		tok, ok := parseToken(f)
		if !ok || tok.isPct || tok.negative {
			break
		}
		if markerSeen && qty == nil {
			q := float64(tok.value)
			qty = &q
			markerSeen = false
		} else {
			amounts = append([]token{tok}, amounts...)
		}
		start = i
	}
	return start, amounts, qty
}

// fillFromRun sets total, unit price and quantity from a run of amounts
// laid out left to right as quantity, unit price, total.
func fillFromRun(item Item, amounts []token, qty *float64) Item {
	n := len(amounts)
	item.LineTotal = amounts[n-1].value
	switch {
	case n >= 3:
		unit := amounts[n-2].value
		item.UnitPrice = &unit
		if qty == nil && amounts[n-3].plain && amounts[n-3].value > 0 {
			q := float64(amounts[n-3].value)
			qty = &q
		}
	case n == 2:
		first := amounts[0]
		if qty == nil && first.plain && first.value > 0 && first.value < minPlainPrice {
			q := float64(first.value)
			qty = &q
		} else {
			unit := first.value
			item.UnitPrice = &unit
		}
	}
	item.Quantity = qty
	return item
}

// priceLine applies a price line to the open item. The right-most price
// on the line is the payable amount; anything to its left is quantity or
// unit price.
func priceLine(item Item, line string) (Item, bool) {
	tokens := scanTokens(line)
	total := -1
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i].price() {
			total = i
			break
		}
	}
	if total < 0 {
		return item, false
	}

	item.LineTotal = tokens[total].value
	for i := total - 1; i >= 0; i-- {
		if tokens[i].price() {
			unit := tokens[i].value
			item.UnitPrice = &unit
			break
		}
	}
	if q, ok := lineQuantity(line); ok {
		item.Quantity = &q
	}
	return item, true
}

// discountLine reports whether line adjusts the previous item and by how
// much. Negative or parenthesized amounts always count; otherwise the
// line needs a discount tag.
func discountLine(total Amount, line string) (Amount, bool) {
	if isTotalMarker(line) {
		return 0, false
	}
	tokens := scanTokens(line)
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i].negative {
			return discountValue(total, tokens[i]), true
		}
	}

	if _, _, ok := parseHeader(line); ok {
		return 0, false
	}
	if !hasDiscountTag(line) {
		return 0, false
	}

	for i := len(tokens) - 1; i >= 0; i-- {
		if !tokens[i].isPct {
			return tokens[i].value, true
		}
	}
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i].isPct {
			return discountValue(total, tokens[i]), true
		}
	}
	// A tag without an amount is absorbed without changing the item.
	return 0, true
}

func discountValue(total Amount, tok token) Amount {
	if !tok.isPct {
		return tok.value
	}
	return Amount(float64(total)*tok.percent/100 + 0.5)
}

func lineQuantity(line string) (float64, bool) {
	m := quantityPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	digits := m[1]
	if digits == "" {
		digits = m[2]
	}
	q, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", "."), 64)
	if err != nil || q <= 0 {
		return 0, false
	}
	return q, true
}

func isAmountField(f string) bool {
	_, ok := parseToken(f)
	return ok
}

func isTotalMarker(line string) bool {
	folded := textnorm.Fold(line)
	for _, phrase := range totalPhrases {
		if textnorm.HasPrefixWord(folded, phrase) {
			return true
		}
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	first := 0
	if markerWord(fields[0]) == "tien" && len(fields) > 1 && markerWord(fields[1]) == "thue" {
		first = 1
	}
	word := markerWord(fields[first])
	if !slices.Contains(totalWords, word) {
		return false
	}
	// Folding merges "thuế" (tax) with "thuê" (rent).
	if word == "thue" && !isTaxWord(fields[first]) {
		return false
	}
	for _, f := range fields[first+1:] {
		if hasLetter(f) && !isAmountField(f) && !isCurrencyWord(f) && !slices.Contains(totalWords, markerWord(f)) {
			return false
		}
	}
	return true
}

func markerWord(f string) string {
	return textnorm.Fold(strings.TrimRight(f, ":.;"))
}

// isTaxWord accepts "thuế" and the diacritic-free "thue" OCR sometimes
// produces, but not "thuê".
func isTaxWord(f string) bool {
	w := strings.ToLower(norm.NFC.String(strings.TrimRight(f, ":.;")))
	return w == "thuế" || w == "thue"
}

func hasDiscountTag(line string) bool {
	folded := textnorm.Fold(line)
	for _, tag := range discountTags {
		if textnorm.ContainsWord(folded, tag) {
			return true
		}
	}
	return false
}

func isDescription(s string) bool {
	if isQuantityMarker(s) {
		return false
	}
	return hasLetter(s)
}

// hasWordField reports whether some field of line is text rather than a
// number carrying a currency glyph.
func hasWordField(line string) bool {
	for _, f := range strings.Fields(line) {
		if hasLetter(f) && !isCurrencyWord(f) && !numericWithGlyph(f) {
			return true
		}
	}
	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
