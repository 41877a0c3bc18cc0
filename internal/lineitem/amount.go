package lineitem

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrInvalidAmount is returned when a token is not a currency amount.
var ErrInvalidAmount = errors.New("invalid amount")

// minPlainPrice is the smallest bare integer (no separators, no currency
// glyph) accepted as a price. Smaller bare numbers on a receipt are
// quantities or codes.
const minPlainPrice Amount = 1000

var (
	groupedPattern  = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{3})+(?:[.,]\d{1,2})?$`)
	simplePattern   = regexp.MustCompile(`^\d+(?:[.,]\d{1,2})?$`)
	qtyTokenPattern = regexp.MustCompile(`^(?:[xX×*](\d+)|(\d+)[xX×*])$`)
)

var currencySuffixes = []string{"vnđ", "vnd", "đ", "₫", "d"}

// token is one whitespace separated amount found on a line.
type token struct {
	value    Amount
	percent  float64
	negative bool
	isPct    bool
	// plain means a bare integer with no separators or currency glyph.
	plain bool
}

// price reports whether the token can stand for a line price.
func (t token) price() bool {
	if t.isPct || t.negative {
		return false
	}
	return !t.plain || t.value >= minPlainPrice
}

// ParseAmount parses a single amount such as "100,000đ", "50.000 ₫",
// "-10.000" or "1.234.567,50". Thousands separators may be dots or
// commas; a trailing group of one or two digits is a decimal fraction and
// is rounded half-up to whole đồng. Negative and parenthesized amounts
// return a negative value.
func ParseAmount(s string) (Amount, error) {
	s = strings.Join(strings.Fields(s), "")
	tok, ok := parseToken(s)
	if !ok || tok.isPct {
		return 0, ErrInvalidAmount
	}
	if tok.negative {
		return -tok.value, nil
	}
	return tok.value, nil
}

func parseToken(s string) (token, bool) {
	var t token
	glyph := false
	s = strings.TrimLeft(s, ":=")
	s = strings.TrimRight(s, ":;")
	if s == "" {
		return t, false
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		t.negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "−") {
		t.negative = true
		_, size := utf8.DecodeRuneInString(s)
		s = s[size:]
	}
	if strings.HasPrefix(s, "₫") {
		s = strings.TrimPrefix(s, "₫")
		glyph = true
	}
	if strings.HasSuffix(s, "%") {
		t.isPct = true
		s = strings.TrimSuffix(s, "%")
	}
	lower := strings.ToLower(s)
	for _, suffix := range currencySuffixes {
		if strings.HasSuffix(lower, suffix) && len(lower) > len(suffix) {
			s = s[:len(s)-len(suffix)]
			glyph = true
			break
		}
	}

	switch {
	case t.isPct:
		if !simplePattern.MatchString(s) {
			return t, false
		}
		pct, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil {
			return t, false
		}
		t.percent = pct
		return t, true
	case groupedPattern.MatchString(s):
		v, ok := groupedValue(s)
		if !ok {
			return t, false
		}
		t.value = v
	case simplePattern.MatchString(s):
		v, ok := simpleValue(s)
		if !ok {
			return t, false
		}
		t.value = v
		t.plain = !glyph && !t.negative && !strings.ContainsAny(s, ".,")
	default:
		return t, false
	}
	return t, true
}

// groupedValue reads "100,000", "1.234.567" or "53.000,00".
func groupedValue(s string) (Amount, bool) {
	groups := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == ',' })
	frac := ""
	if last := groups[len(groups)-1]; len(last) < 3 {
		frac = last
		groups = groups[:len(groups)-1]
	}
	return roundHalfUp(strings.Join(groups, ""), frac)
}

// simpleValue reads "50000" or "12.50".
func simpleValue(s string) (Amount, bool) {
	whole, frac, _ := strings.Cut(strings.ReplaceAll(s, ",", "."), ".")
	return roundHalfUp(whole, frac)
}

// roundHalfUp reports false when the digits do not fit an Amount.
func roundHalfUp(whole, frac string) (Amount, bool) {
	v, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, false
	}
	if frac != "" && frac[0] >= '5' {
		if v == math.MaxInt64 {
			return 0, false
		}
		v++
	}
	return Amount(v), true
}

// isCurrencyWord reports whether f is a lone currency glyph or code.
func isCurrencyWord(f string) bool {
	switch strings.ToLower(f) {
	case "đ", "₫", "d", "vnd", "vnđ":
		return true
	}
	return false
}

// numericWithGlyph reports whether f is digits followed by a currency
// glyph, whether or not the digits form a valid amount.
func numericWithGlyph(f string) bool {
	lower := strings.ToLower(f)
	for _, suffix := range currencySuffixes {
		if strings.HasSuffix(lower, suffix) && len(lower) > len(suffix) {
			digits := strings.Trim(lower[:len(lower)-len(suffix)], "()-−₫")
			return digits != "" && strings.Trim(digits, "0123456789.,") == ""
		}
	}
	return false
}

// isQuantityMarker reports whether f separates a quantity from a price,
// as in "2 x 25.000".
func isQuantityMarker(f string) bool {
	switch f {
	case "x", "X", "×", "*", "@":
		return true
	}
	return false
}

// quantityToken parses compact quantity forms such as "x2" or "3x".
func quantityToken(f string) (float64, bool) {
	m := qtyTokenPattern.FindStringSubmatch(f)
	if m == nil {
		return 0, false
	}
	digits := m[1]
	if digits == "" {
		digits = m[2]
	}
	q, err := strconv.ParseFloat(digits, 64)
	if err != nil || q <= 0 {
		return 0, false
	}
	return q, true
}

// scanTokens returns every amount on the line in left-to-right order.
func scanTokens(line string) []token {
	var out []token
	for _, f := range strings.Fields(line) {
		if tok, ok := parseToken(f); ok {
			out = append(out, tok)
		}
	}
	return out
}
