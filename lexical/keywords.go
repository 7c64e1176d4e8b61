package lexical

import (
	"strings"
	"unicode"
)

// stopWords are dropped from queries before scoring.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "were": true, "to": true, "of": true, "and": true, "in": true,
	"that": true, "have": true, "has": true, "had": true, "it": true, "for": true,
	"not": true, "on": true, "with": true, "as": true, "you": true, "do": true,
	"does": true, "at": true, "this": true, "but": true, "by": true, "from": true,
	"or": true, "what": true, "which": true, "who": true, "how": true, "when": true,
	"where": true, "why": true, "i": true, "me": true, "my": true, "we": true,
	"our": true, "your": true, "he": true, "she": true, "they": true, "them": true,
	"his": true, "her": true, "their": true, "there": true, "then": true, "so": true,
	"if": true, "about": true, "into": true, "can": true, "will": true, "would": true,
	"should": true, "could": true, "say": true, "says": true, "said": true, "unto": true,
	"thee": true, "thou": true, "thy": true, "ye": true, "shall": true, "am": true,
	"all": true, "any": true, "some": true, "tell": true, "bible": true,
	"verse": true, "verses": true, "scripture": true,
}

// boostTerms are thematically significant words. They are ordered ahead of
// other keywords and earn a scoring bonus when matched.
var boostTerms = map[string]bool{
	"love": true, "faith": true, "hope": true, "grace": true, "peace": true,
	"joy": true, "mercy": true, "forgive": true, "forgiveness": true, "salvation": true,
	"sin": true, "pray": true, "prayer": true, "god": true, "lord": true,
	"jesus": true, "christ": true, "spirit": true, "heaven": true, "eternal": true,
	"life": true, "death": true, "fear": true, "strength": true, "comfort": true,
	"wisdom": true, "truth": true, "righteous": true, "righteousness": true, "holy": true,
	"kingdom": true, "repent": true, "blessed": true, "trust": true, "patience": true,
	"anxiety": true, "worry": true, "grief": true, "shepherd": true, "light": true,
}

// IsStopWord reports whether word is ignored during keyword extraction.
func IsStopWord(word string) bool {
	return stopWords[word]
}

// IsBoostTerm reports whether word is a thematically significant term.
func IsBoostTerm(word string) bool {
	return boostTerms[word]
}

// tokenize lowercases text and splits it on runs of non-word runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// ExtractKeywords turns a query into its distinct significant terms.
// Stop words and single-rune tokens are dropped. Boost terms come first;
// within each group the query order is kept.
func ExtractKeywords(query string) []string {
	seen := make(map[string]bool)
	var boosted, generic []string
	for _, tok := range tokenize(query) {
		if len([]rune(tok)) < 2 || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		if boostTerms[tok] {
			boosted = append(boosted, tok)
		} else {
			generic = append(generic, tok)
		}
	}
	return append(boosted, generic...)
}
