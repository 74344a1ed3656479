// Package normalize turns raw contractor fields into the exact-match keys
// used for identity resolution. Every function here is pure and idempotent.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tollFree lists the North American toll-free area codes. Toll-free numbers
// are shared call-center lines and never identify a single business.
var tollFree = map[string]bool{
	"800": true,
	"888": true,
	"877": true,
	"866": true,
	"855": true,
	"844": true,
	"833": true,
}

// Phone reduces a raw phone to its 10 digits. It returns false for anything
// that is not a 10-digit (or 1 + 10-digit) North American number, for
// toll-free numbers, for area codes starting with 0 or 1 and for
// placeholders made of a single repeated digit.
func Phone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	if tollFree[digits[:3]] {
		return "", false
	}
	if digits[0] == '0' || digits[0] == '1' {
		return "", false
	}
	if strings.Count(digits, digits[:1]) == len(digits) {
		return "", false
	}
	return digits, true
}

// FormatPhone renders a normalized phone as (555) 111-2222. Values that do
// not normalize are returned trimmed but otherwise unchanged.
func FormatPhone(raw string) string {
	p, ok := Phone(raw)
	if !ok {
		return strings.TrimSpace(raw)
	}
	return "(" + p[:3] + ") " + p[3:6] + "-" + p[6:]
}

// Domain reduces a website or domain to a bare lowercase host. The host
// must contain a dot between non-empty labels, which rules out
// placeholders such as "N/A", "none" or "-".
func Domain(raw string) (string, bool) {
	d := strings.ToLower(strings.TrimSpace(raw))
	for {
		before := d
		d = strings.TrimPrefix(d, "https://")
		d = strings.TrimPrefix(d, "http://")
		d = strings.TrimPrefix(d, "www.")
		if d == before {
			break
		}
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.IndexByte(d, ':'); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimSpace(d)
	if strings.ContainsFunc(d, unicode.IsSpace) || strings.ContainsRune(d, '@') {
		return "", false
	}
	d = strings.TrimRight(d, ".")
	labels := strings.Split(d, ".")
	if len(labels) < 2 {
		return "", false
	}
	for _, l := range labels {
		if l == "" {
			return "", false
		}
	}
	return d, true
}

// legalSuffixes are trailing tokens stripped from names. Punctuation has
// already been removed when these are checked, so "L.L.C." arrives as "LLC".
var legalSuffixes = map[string]bool{
	"LLC":          true,
	"INC":          true,
	"INCORPORATED": true,
	"CORP":         true,
	"CORPORATION":  true,
	"CO":           true,
	"COMPANY":      true,
	"LTD":          true,
	"LIMITED":      true,
	"LP":           true,
	"LLP":          true,
	"PLLC":         true,
}

// Name builds the exact-match name key: diacritics folded, uppercased,
// punctuation removed, whitespace collapsed and trailing legal-entity
// suffixes stripped. A name that is only a suffix ("LLC") keeps it.
func Name(raw string) string {
	s := foldDiacritics(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	s = strings.ToUpper(s)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '&':
			b.WriteString(" AND ")
		case r == '.' || r == ',' || r == '\'' || r == '"' || r == '’':
			// dropped so "L.L.C." and "Joe's" collapse onto one token
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	for len(tokens) > 1 && legalSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
