package catalog

import (
	"cmp"
	"slices"

	"github.com/MrWong99/renoquote/internal/phonetic"
	"github.com/MrWong99/renoquote/internal/textnorm"
)

var rankMatcher = phonetic.New()

// RankByText orders candidates by how well the keywords of query are covered
// by each record's name and description, tolerating typos and phonetic
// spellings. Records sharing no vocabulary with query are dropped and at most
// k records are returned. Backends whose native text search is coarse use it
// to rank what they fetched.
func RankByText(query string, candidates []MaterialRecord, k int) []MaterialRecord {
	keywords := textnorm.Keywords(query)
	if len(keywords) == 0 || k <= 0 {
		return nil
	}

	type scored struct {
		rec   MaterialRecord
		score float64
	}
	var hits []scored
	for _, r := range candidates {
		words := textnorm.Tokens(r.Name + " " + r.Description)
		if score := rankMatcher.Coverage(keywords, words); score > 0 {
			hits = append(hits, scored{rec: r, score: score})
		}
	}
	slices.SortFunc(hits, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return compareRecords(a.rec, b.rec)
	})
	hits = truncate(hits, k)

	out := make([]MaterialRecord, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out
}
