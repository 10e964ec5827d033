// Package textnorm normalises multilingual construction vocabulary for
// matching: accents are folded ("peinture à l'huile" → "peinture a l'huile"),
// case is lowered, and text is split into word tokens.
//
// All functions are pure and safe for concurrent use.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s and strips combining diacritics. Ligatures common in
// French ("œ", "æ") are expanded so "cœur" folds to "coeur".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	return ligatures.Replace(out)
}

var ligatures = strings.NewReplacer("œ", "oe", "æ", "ae", "²", "2", "³", "3")

// Tokens folds s and splits it on any rune that is not a letter or digit.
// Apostrophe elisions ("l'huile", "d'enduit") are split into separate tokens.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keywords returns the tokens of s that are not stop words and are at least
// three runes long. Order is preserved and duplicates are removed.
func Keywords(s string) []string {
	toks := Tokens(s)
	seen := make(map[string]struct{}, len(toks))
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if len([]rune(t)) < 3 || IsStopWord(t) {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// IsStopWord reports whether the folded token tok is an English or French
// function word that carries no material meaning.
func IsStopWord(tok string) bool {
	_, ok := stopWords[tok]
	return ok
}

var stopWords = toSet(
	// English
	"the", "and", "for", "with", "need", "needs", "want", "some", "our", "your",
	"this", "that", "from", "into", "also", "plus", "all", "are", "will", "have",
	"new", "please", "get", "use", "put", "about", "around", "them", "then",
	// French
	"les", "des", "une", "pour", "avec", "dans", "sur", "est", "sont", "faut",
	"besoin", "aussi", "mur", "murs", "nous", "vous", "qui", "que", "par", "aux",
	"del", "ces", "cette", "mettre", "poser", "refaire",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
