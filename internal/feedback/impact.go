package feedback

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MrWong99/renoquote/internal/textnorm"
	"github.com/MrWong99/renoquote/pkg/types"
)

var verdictWeights = map[Verdict]float64{
	VerdictRejected:    1.0,
	VerdictOverpriced:  0.8,
	VerdictUnderpriced: 0.8,
	VerdictModified:    0.6,
	VerdictAccepted:    0.3,
}

var userWeights = map[types.UserType]float64{
	types.UserContractor: 1.0,
	types.UserArchitect:  0.9,
	types.UserClient:     0.7,
}

// ImpactScore rates how much an entry should move future pricing, in
// [0, 1]. Negative verdicts weigh more on low-confidence quotes, and
// expensive quotes weigh more than cheap ones, up to twice at 2000 €.
func ImpactScore(v Verdict, u types.UserType, quoteConfidence float64, quoteTotal decimal.Decimal) float64 {
	score := 0.5
	if w, ok := verdictWeights[v]; ok {
		score *= w
	} else {
		score *= 0.5
	}
	if w, ok := userWeights[u]; ok {
		score *= w
	} else {
		score *= 0.5
	}
	if v.Negative() {
		score *= 1 + (1 - quoteConfidence)
	}
	score *= min(quoteTotal.InexactFloat64()/1000, 2)
	return max(0, min(1, score))
}

// Insights derives review hints from an entry.
func Insights(e Entry) []string {
	var out []string
	switch e.Verdict {
	case VerdictRejected:
		out = append(out, "Quote was completely rejected - review pricing strategy")
	case VerdictOverpriced:
		out = append(out, "Quote was overpriced - consider reducing margins or finding cheaper materials")
	case VerdictUnderpriced:
		out = append(out, "Quote was underpriced - review cost calculations and margins")
	case VerdictModified:
		out = append(out, "Quote was modified - analyze what changes were made")
	}

	switch {
	case e.QuoteConfidence > 0.8 && (e.Verdict == VerdictRejected || e.Verdict == VerdictOverpriced):
		out = append(out, "High confidence quote was rejected - review confidence scoring logic")
	case e.QuoteConfidence < 0.5 && e.Verdict == VerdictAccepted:
		out = append(out, "Low confidence quote was accepted - may be too conservative")
	}

	if e.Region != "" {
		out = append(out, fmt.Sprintf("Regional feedback for %s - update regional pricing if needed", e.Region))
	}

	for _, material := range sortedKeys(e.MaterialFeedback) {
		text := strings.ToLower(e.MaterialFeedback[material])
		switch {
		case strings.Contains(text, "expensive"):
			out = append(out, fmt.Sprintf("Material %s considered expensive - review pricing", material))
		case strings.Contains(text, "quality"):
			out = append(out, fmt.Sprintf("Quality feedback for %s - consider alternative suppliers", material))
		}
	}
	for _, aspect := range sortedKeys(e.PricingFeedback) {
		out = append(out, fmt.Sprintf("Pricing feedback on %s: %s", aspect, e.PricingFeedback[aspect]))
	}

	if c := textnorm.Fold(e.Comment); c != "" {
		switch {
		case containsAny(c, "expensive", "overpriced", "high", "cher"):
			out = append(out, "User indicated pricing was too high")
		case containsAny(c, "cheap", "good price", "reasonable", "raisonnable"):
			out = append(out, "User indicated pricing was reasonable")
		case containsAny(c, "quality", "material", "qualite", "materiau"):
			out = append(out, "User provided material quality feedback")
		}
	}

	if len(out) == 0 {
		out = append(out, "Feedback received - monitoring for patterns")
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
