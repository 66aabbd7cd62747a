package store

import (
	"strings"
	"unicode"
)

// apostropheReplacer folds typographic apostrophes, common in auto-generated
// captions, into ASCII.
var apostropheReplacer = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")

// NormalizeText lowercases s and folds apostrophe variants.
func NormalizeText(s string) string {
	return strings.ToLower(apostropheReplacer.Replace(s))
}

// Terms splits text into lowercase runs of letters and digits, the same
// boundaries SQLite's unicode61 tokenizer uses.
func Terms(text string) []string {
	return strings.FieldsFunc(NormalizeText(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
