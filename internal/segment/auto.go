package segment

import "github.com/MrWong99/renoquote/internal/textnorm"

// AutoSegmenter detects the transcript language and delegates to the
// matching [Rules]. When the detected language yields nothing, the
// remaining segmenters are tried in order.
type AutoSegmenter struct {
	rules []*Rules
}

var _ Segmenter = (*AutoSegmenter)(nil)

// Auto returns a segmenter over rules, by default English then French.
func Auto(rules ...*Rules) *AutoSegmenter {
	if len(rules) == 0 {
		rules = []*Rules{English(), French()}
	}
	return &AutoSegmenter{rules: rules}
}

// Segment implements [Segmenter].
func (a *AutoSegmenter) Segment(transcript string) []Need {
	first := a.Detect(transcript)
	if needs := first.Segment(transcript); len(needs) > 0 {
		return needs
	}
	for _, r := range a.rules {
		if r == first {
			continue
		}
		if needs := r.Segment(transcript); len(needs) > 0 {
			return needs
		}
	}
	return nil
}

// Detect returns the segmenter whose language markers occur most often in
// transcript. Ties go to the earlier segmenter.
func (a *AutoSegmenter) Detect(transcript string) *Rules {
	tokens := textnorm.Tokens(transcript)
	best, bestScore := a.rules[0], -1
	for _, r := range a.rules {
		markers := set(r.lang.Markers)
		score := 0
		for _, tok := range tokens {
			if _, ok := markers[tok]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = r, score
		}
	}
	return best
}
