// Package textutil holds the tokenization shared by scoring and dedup.
package textutil

import (
	"strings"
	"unicode"
)

// Tokens lower-cases s and splits it into runs of letters and digits.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Normalize lower-cases s, strips punctuation and collapses whitespace.
func Normalize(s string) string {
	return strings.Join(Tokens(s), " ")
}

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an the and or but if of to in on at by for with from as into about
		is are was were be been being am do does did has have had can could should would will shall may might must
		what who whom whose when where why how which that this these those it its they them their there here
		i you he she we me my your our his her not no yes so than then too very also just s t`) {
		stopwords[w] = struct{}{}
	}
}

// IsStopword reports whether tok carries no topical meaning.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

// ContentWords filters stopwords out of tokens.
func ContentWords(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !IsStopword(tok) {
			out = append(out, tok)
		}
	}
	return out
}
