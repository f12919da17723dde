package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// tokenize splits text into NFC-normalized lowercase tokens.
// Removes punctuation, single characters and common stop words.
func tokenize(text string) []string {
	text = strings.ToLower(norm.NFC.String(text))

	words := strings.FieldsFunc(text, func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})

	var tokens []string
	for _, word := range words {
		if len([]rune(word)) < 2 {
			continue
		}
		if stopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// qualify prefixes a token with its field name.
func qualify(field, token string) string {
	return strings.ToLower(field) + ":" + token
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "he": true, "in": true, "is": true,
	"it": true, "its": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "to": true, "was": true, "were": true,
	"with": true, "this": true, "but": true, "they": true,
	"we": true, "you": true, "your": true, "my": true, "their": true,
	"been": true, "do": true, "does": true, "did": true,
}
