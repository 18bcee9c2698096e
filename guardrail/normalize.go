package guardrail

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// digitLetters maps ASCII digits to the letters they are commonly used to
// spell in leetspeak.
var digitLetters = map[rune]rune{
	'0': 'o',
	'1': 'l',
	'2': 'z',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'6': 'g',
	'7': 't',
	'8': 'b',
	'9': 'g',
}

// Normalize canonicalizes text into a matchable token stream.
//
// The result is lowercase, has no diacritics, has every digit replaced by
// its look-alike letter, and consists only of [a-z] words separated by
// single spaces. Normalize is idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	lowered := strings.ToLower(text)

	// The transformer is stateful, so one is built per call.
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(stripper, lowered)
	if err != nil {
		stripped = lowered
	}

	var b strings.Builder
	b.Grow(len(stripped))
	gap := false
	for _, r := range stripped {
		if l, ok := digitLetters[r]; ok {
			r = l
		}
		if r < 'a' || r > 'z' {
			gap = true
			continue
		}
		if gap && b.Len() > 0 {
			b.WriteByte(' ')
		}
		gap = false
		b.WriteRune(r)
	}
	return b.String()
}
