// Package phonetic scores how closely a spoken or mistyped material word
// matches catalog vocabulary, using Double Metaphone phonetic codes combined
// with Jaro-Winkler string similarity.
//
// Two words are compared in two stages:
//
//  1. Phonetic gate: when the Double Metaphone codes of both words overlap,
//     the pair is accepted if its Jaro-Winkler score reaches the phonetic
//     threshold (default 0.70). "adhesiv" and "adhesive" pass here.
//
//  2. Pure fuzzy pass: without a phonetic overlap the pair needs the stricter
//     fuzzy threshold (default 0.85), which still catches typos such as
//     "waterprof" that change the phonetic code.
//
// Inputs are expected to be folded already (see package textnorm); the
// matcher lower-cases but does not strip accents.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetically
// overlapping pair. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a pair without
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher compares material words. It is read-only after construction and
// safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Similarity returns a score in [0,1] for the word pair a, b. Identical words
// score 1; pairs that clear neither threshold score 0.
func (m *Matcher) Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	jw := matchr.JaroWinkler(a, b, false)
	if codesOverlap(codes(a), codes(b)) {
		if jw >= m.phoneticThreshold {
			return jw
		}
		return 0
	}
	if jw >= m.fuzzyThreshold {
		return jw
	}
	return 0
}

// BestMatch returns the vocabulary word most similar to word and its score.
// When nothing clears the thresholds, it returns "" and 0.
func (m *Matcher) BestMatch(word string, vocabulary []string) (string, float64) {
	var (
		best      string
		bestScore float64
	)
	for _, v := range vocabulary {
		s := m.Similarity(word, v)
		if s > bestScore {
			best, bestScore = v, s
			if s == 1 {
				break
			}
		}
	}
	return best, bestScore
}

// Coverage reports how well the query tokens are covered by the text tokens:
// the mean, over query tokens, of each token's best match score. An empty
// query covers nothing.
func (m *Matcher) Coverage(query, text []string) float64 {
	if len(query) == 0 || len(text) == 0 {
		return 0
	}
	var sum float64
	for _, q := range query {
		_, s := m.BestMatch(q, text)
		sum += s
	}
	return sum / float64(len(query))
}

// codes returns the non-empty Double Metaphone codes of word.
func codes(word string) []string {
	p, s := matchr.DoubleMetaphone(word)
	out := make([]string, 0, 2)
	if p != "" {
		out = append(out, p)
	}
	if s != "" && s != p {
		out = append(out, s)
	}
	return out
}

func codesOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
