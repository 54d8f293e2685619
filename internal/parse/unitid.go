package parse

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const nbsp = "\u00a0"

// NormalizeUnitID canonicalizes a unit identifier for comparison.
//
// Non-breaking spaces become spaces, compatibility forms are folded (NFKC),
// whitespace runs collapse into a single "-" separator (a run next to an
// existing "-" is absorbed), the ends are trimmed and the result is
// uppercased. The function is total and idempotent.
func NormalizeUnitID(raw string) string {
	s := strings.ReplaceAll(raw, nbsp, " ")
	s = norm.NFKC.String(s)

	fields := strings.FieldsFunc(s, unicode.IsSpace)
	if len(fields) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(fields[0])
	for _, f := range fields[1:] {
		// "AQUA - VND" and "AQUA- VND" keep their single hyphen.
		if !strings.HasSuffix(b.String(), "-") && !strings.HasPrefix(f, "-") {
			b.WriteByte('-')
		}
		b.WriteString(f)
	}
	return strings.ToUpper(b.String())
}

// SameUnit reports whether two identifiers refer to the same unit.
func SameUnit(a, b string) bool {
	return NormalizeUnitID(a) == NormalizeUnitID(b)
}
