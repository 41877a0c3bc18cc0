// Package textnorm folds receipt and category text into a comparable form.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, removes diacritics and collapses whitespace.
// "Cà phê  SỮA" and "ca phe sua" fold to the same string. The Vietnamese
// letter đ has no decomposition and is mapped to d explicitly.
func Fold(s string) string {
	// Chains carry internal buffers, so one is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.Map(func(r rune) rune {
		switch r {
		case 'đ', 'Đ':
			return 'd'
		}
		return unicode.ToLower(r)
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

// ContainsWord reports whether needle occurs in haystack on word
// boundaries. Both arguments are expected to be folded already.
func ContainsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	from := 0
	for {
		idx := strings.Index(haystack[from:], needle)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(needle)
		if isBoundary(haystack, start-1) && isBoundary(haystack, end) {
			return true
		}
		from = start + 1
	}
}

// HasPrefixWord reports whether s starts with prefix followed by a word
// boundary.
func HasPrefixWord(s, prefix string) bool {
	return strings.HasPrefix(s, prefix) && isBoundary(s, len(prefix))
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	if c >= 0x80 {
		// Folded text only keeps non-ASCII bytes for letters outside
		// Latin, which never act as separators.
		return false
	}
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
}
