package feedback

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/renoquote/pkg/catalog"
	"github.com/MrWong99/renoquote/pkg/types"
)

// ErrInvalidGroupBy is returned (wrapped in a [types.ValidationError]) for
// an unknown aggregation key.
var ErrInvalidGroupBy = errors.New("invalid group by")

// GroupBy selects what [Aggregate] groups entries by.
type GroupBy string

const (
	ByMaterial GroupBy = "material"
	ByRegion   GroupBy = "region"
	ByVendor   GroupBy = "vendor"
)

// ParseGroupBy validates s.
func ParseGroupBy(s string) (GroupBy, error) {
	g := GroupBy(strings.ToLower(strings.TrimSpace(s)))
	switch g {
	case ByMaterial, ByRegion, ByVendor:
		return g, nil
	}
	return "", types.NewValidationError("group_by", s, ErrInvalidGroupBy)
}

// Aggregate counts the verdicts given for one material, region or vendor.
type Aggregate struct {
	Key            string          `json:"key"`
	Total          int             `json:"total"`
	Counts         map[Verdict]int `json:"counts"`
	AcceptanceRate float64         `json:"acceptance_rate"`
}

// Aggregates groups entries by material, region or vendor. An entry counts
// once for every distinct key it mentions; entries without a key for the
// grouping are skipped. Results are ordered by key.
func Aggregates(entries []Entry, by GroupBy) []Aggregate {
	groups := make(map[string]*Aggregate)
	for _, e := range entries {
		for _, key := range groupKeys(e, by) {
			a, ok := groups[key]
			if !ok {
				a = &Aggregate{Key: key, Counts: make(map[Verdict]int)}
				groups[key] = a
			}
			a.Total++
			a.Counts[e.Verdict]++
		}
	}

	out := make([]Aggregate, 0, len(groups))
	for _, key := range sortedKeys(groups) {
		a := groups[key]
		a.AcceptanceRate = float64(a.Counts[VerdictAccepted]) / float64(a.Total)
		out = append(out, *a)
	}
	return out
}

// groupKeys returns the distinct keys of e under by. Regions and vendors are
// folded so that spelling variants share a group.
func groupKeys(e Entry, by GroupBy) []string {
	var keys []string
	add := func(k string) {
		if k != "" && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	switch by {
	case ByRegion:
		add(catalog.Key(e.Region))
	case ByMaterial:
		for _, m := range e.Materials {
			add(m.ID)
		}
	case ByVendor:
		for _, m := range e.Materials {
			add(catalog.Key(m.Vendor))
		}
	}
	return keys
}

// VendorReliability returns the acceptance rate of every vendor mentioned
// in entries, keyed by folded vendor name. It can seed
// confidence.Config.VendorReliability.
func VendorReliability(entries []Entry) map[string]float64 {
	out := make(map[string]float64)
	for _, a := range Aggregates(entries, ByVendor) {
		out[a.Key] = a.AcceptanceRate
	}
	return out
}

// AnalyticsOptions filters [Analyze].
type AnalyticsOptions struct {
	UserType types.UserType
	Since    time.Time
	Until    time.Time
}

func (o AnalyticsOptions) filter() Filter {
	return Filter{UserType: o.UserType, Since: o.Since, Until: o.Until}
}

// Analytics summarises a period of feedback.
type Analytics struct {
	Total               int                `json:"total_feedback"`
	VerdictDistribution map[Verdict]int    `json:"verdict_distribution"`
	AverageImpact       float64            `json:"average_impact_score"`
	RegionalAcceptance  map[string]float64 `json:"regional_acceptance_rates"`
	Since               *time.Time         `json:"since,omitempty"`
	Until               *time.Time         `json:"until,omitempty"`
}

// Analyze summarises the entries matching opts.
func Analyze(entries []Entry, opts AnalyticsOptions) Analytics {
	f := opts.filter()
	a := Analytics{
		VerdictDistribution: make(map[Verdict]int),
		RegionalAcceptance:  make(map[string]float64),
	}
	if !opts.Since.IsZero() {
		a.Since = &opts.Since
	}
	if !opts.Until.IsZero() {
		a.Until = &opts.Until
	}

	var (
		impact  float64
		matched []Entry
	)
	for _, e := range entries {
		if !f.Matches(e) {
			continue
		}
		matched = append(matched, e)
		a.VerdictDistribution[e.Verdict]++
		impact += e.ImpactScore
	}
	a.Total = len(matched)
	if a.Total == 0 {
		return a
	}
	a.AverageImpact = impact / float64(a.Total)
	for _, g := range Aggregates(matched, ByRegion) {
		a.RegionalAcceptance[g.Key] = g.AcceptanceRate
	}
	return a
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
