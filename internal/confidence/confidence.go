// Package confidence scores how much a caller should trust a material match.
//
// A [Scorer] blends four signals in [0, 1] with fixed weights:
//
//   - semantic similarity between the query and the record,
//   - regional match between the requested region and the record's region,
//   - price plausibility against the category's historical distribution,
//   - vendor reliability.
//
// The scorer is stateless and deterministic: the same inputs always produce
// the same score. Its configuration is copied at construction and never
// changes afterwards.
package confidence

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/MrWong99/renoquote/pkg/catalog"
)

// Tier is the discretised label of a confidence score.
type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
)

// Tier thresholds.
const (
	HighThreshold   = 0.8
	MediumThreshold = 0.5
)

// TierFor returns the label for score.
func TierFor(score float64) Tier {
	switch {
	case score >= HighThreshold:
		return TierHigh
	case score >= MediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// Weights are the relative contributions of the four signals.
type Weights struct {
	Semantic float64 `yaml:"semantic"`
	Region   float64 `yaml:"region"`
	Price    float64 `yaml:"price"`
	Vendor   float64 `yaml:"vendor"`
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.40, Region: 0.25, Price: 0.20, Vendor: 0.15}
}

// Validate checks that all weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	var errs []error
	for name, v := range map[string]float64{
		"semantic": w.Semantic, "region": w.Region, "price": w.Price, "vendor": w.Vendor,
	} {
		if v < 0 || math.IsNaN(v) {
			errs = append(errs, fmt.Errorf("weight %s is %v, must be >= 0", name, v))
		}
	}
	if sum := w.Semantic + w.Region + w.Price + w.Vendor; math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Errorf("weights sum to %v, must sum to 1", sum))
	}
	return errors.Join(errs...)
}

// Config parameterises a [Scorer].
type Config struct {
	Weights Weights

	// RegionalPartial is the region signal for a candidate in the same broader
	// area as the requested region. Default: 0.5.
	RegionalPartial float64

	// UnknownVendor is the vendor signal for vendors absent from
	// VendorReliability. Default: 0.5.
	UnknownVendor float64

	// VendorReliability maps a vendor name (matched as a case- and
	// accent-insensitive substring) to a trust score in [0, 1].
	VendorReliability map[string]float64

	// RegionAreas maps cities or sub-areas to the pricing region containing
	// them, e.g. "paris" → "Île-de-France".
	RegionAreas map[string]string
}

// DefaultVendorReliability returns the built-in vendor trust table.
func DefaultVendorReliability() map[string]float64 {
	return map[string]float64{
		"leroy merlin": 0.9,
		"castorama":    0.85,
		"brico depot":  0.8,
		"weldom":       0.75,
	}
}

// Signals holds the four sub-scores behind a confidence score.
type Signals struct {
	Semantic float64 `json:"semantic"`
	Region   float64 `json:"region"`
	Price    float64 `json:"price"`
	Vendor   float64 `json:"vendor"`
}

// Result is a scored match.
type Result struct {
	Score   float64 `json:"score"`
	Tier    Tier    `json:"tier"`
	Signals Signals `json:"signals"`
}

// Input is everything the scorer needs about one candidate.
type Input struct {
	// Similarity is the search similarity in [0, 1].
	Similarity float64

	Record catalog.MaterialRecord

	// Region is the requested region; empty means no preference.
	Region string

	// Stats is the price distribution of the record's category. A zero
	// value means unknown.
	Stats catalog.PriceStats
}

type vendorScore struct {
	key   string
	score float64
}

// Scorer computes confidence scores. It is safe for concurrent use.
type Scorer struct {
	weights         Weights
	regionalPartial float64
	unknownVendor   float64
	vendors         []vendorScore
	areas           map[string]string
}

// NewScorer validates cfg and returns a [Scorer]. Zero RegionalPartial and
// UnknownVendor take their defaults; a zero Weights value takes
// [DefaultWeights].
func NewScorer(cfg Config) (*Scorer, error) {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("confidence: %w", err)
	}
	if cfg.RegionalPartial == 0 {
		cfg.RegionalPartial = 0.5
	}
	if cfg.UnknownVendor == 0 {
		cfg.UnknownVendor = 0.5
	}
	if cfg.VendorReliability == nil {
		cfg.VendorReliability = DefaultVendorReliability()
	}

	s := &Scorer{
		weights:         cfg.Weights,
		regionalPartial: catalog.ClampUnit(cfg.RegionalPartial),
		unknownVendor:   catalog.ClampUnit(cfg.UnknownVendor),
		areas:           make(map[string]string, len(cfg.RegionAreas)),
	}
	for name, v := range cfg.VendorReliability {
		s.vendors = append(s.vendors, vendorScore{key: catalog.Key(name), score: catalog.ClampUnit(v)})
	}
	// Longest name first so "brico depot pro" wins over "brico depot".
	slices.SortFunc(s.vendors, func(a, b vendorScore) int {
		if c := cmp.Compare(len(b.key), len(a.key)); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})
	for alias, area := range cfg.RegionAreas {
		s.areas[catalog.Key(alias)] = catalog.Key(area)
	}
	return s, nil
}

// Score computes the confidence of in.
func (s *Scorer) Score(in Input) Result {
	sig := Signals{
		Semantic: catalog.ClampUnit(in.Similarity),
		Region:   s.RegionMatch(in.Region, in.Record.Region),
		Price:    PricePlausibility(in.Record.UnitPrice.InexactFloat64(), in.Stats),
		Vendor:   s.VendorReliability(in.Record.Vendor),
	}
	w := s.weights
	score := catalog.ClampUnit(sig.Semantic*w.Semantic + sig.Region*w.Region + sig.Price*w.Price + sig.Vendor*w.Vendor)
	return Result{Score: score, Tier: TierFor(score), Signals: sig}
}

// Weights returns the scorer's weights.
func (s *Scorer) Weights() Weights { return s.weights }

// RegionMatch scores a candidate region against the requested one:
//
//   - 1 when nothing was requested, when both are equal, or when the
//     requested place lies in the candidate's region ("Paris" in
//     "Île-de-France");
//   - the partial score when both lie in the same area or one name contains
//     the other;
//   - 0 otherwise.
func (s *Scorer) RegionMatch(requested, candidate string) float64 {
	req, cand := catalog.Key(requested), catalog.Key(candidate)
	switch {
	case req == "":
		return 1
	case cand == "":
		return 0
	case req == cand:
		return 1
	case s.area(req) == cand:
		return 1
	case s.area(req) == s.area(cand):
		return s.regionalPartial
	case strings.Contains(req, cand), strings.Contains(cand, req):
		return s.regionalPartial
	}
	return 0
}

// Area returns the pricing region containing region when region is a known
// city or sub-area, and region itself otherwise. Known aliases resolve to
// the folded region key.
func (s *Scorer) Area(region string) string {
	if a, ok := s.areas[catalog.Key(region)]; ok {
		return a
	}
	return region
}

func (s *Scorer) area(key string) string {
	if a, ok := s.areas[key]; ok {
		return a
	}
	return key
}

// VendorReliability returns the trust score of vendor.
func (s *Scorer) VendorReliability(vendor string) float64 {
	key := catalog.Key(vendor)
	if key == "" {
		return s.unknownVendor
	}
	for _, v := range s.vendors {
		if strings.Contains(key, v.key) {
			return v.score
		}
	}
	return s.unknownVendor
}

// PricePlausibility scores price against stats: 1 within one standard
// deviation of the mean, falling linearly to 0 at three deviations. With
// fewer than two samples the result is a neutral 0.5; with zero deviation it
// is 1 at the mean and 0.5 elsewhere.
func PricePlausibility(price float64, stats catalog.PriceStats) float64 {
	if stats.Count < 2 {
		return 0.5
	}
	diff := math.Abs(price - stats.Mean)
	if stats.StdDev <= 0 {
		if diff < 1e-9 {
			return 1
		}
		return 0.5
	}
	z := diff / stats.StdDev
	switch {
	case z <= 1:
		return 1
	case z >= 3:
		return 0
	}
	return 1 - (z-1)/2
}
