package confidence

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MrWong99/renoquote/pkg/catalog"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(Config{
		RegionAreas: map[string]string{
			"Paris":      "Île-de-France",
			"Versailles": "Île-de-France",
			"Lyon":       "Auvergne-Rhône-Alpes",
		},
	})
	if err != nil {
		t.Fatalf("NewScorer: unexpected error: %v", err)
	}
	return s
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTierFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  Tier
	}{
		{1, TierHigh},
		{0.8, TierHigh},
		{0.7999, TierMedium},
		{0.5, TierMedium},
		{0.4999, TierLow},
		{0, TierLow},
	}
	for _, tt := range tests {
		if got := TierFor(tt.score); got != tt.want {
			t.Errorf("TierFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestWeights_Validate(t *testing.T) {
	t.Parallel()

	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("DefaultWeights().Validate() = %v, want nil", err)
	}
	if err := (Weights{Semantic: 0.5, Region: 0.5, Price: 0.5}).Validate(); err == nil {
		t.Error("weights summing to 1.5: expected error")
	}
	if err := (Weights{Semantic: 1.2, Region: -0.2}).Validate(); err == nil {
		t.Error("negative weight: expected error")
	}
	if _, err := NewScorer(Config{Weights: Weights{Semantic: 2}}); err == nil {
		t.Error("NewScorer with invalid weights: expected error")
	}
}

func TestRegionMatch(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	tests := []struct {
		requested, candidate string
		want                 float64
	}{
		{"", "Bretagne", 1},
		{"Bretagne", "bretagne", 1},
		{"Paris", "Île-de-France", 1},
		{"Paris", "Versailles", 0.5},
		{"Île-de-France", "Paris", 0.5},
		{"Provence", "Provence-Alpes-Côte d'Azur", 0.5},
		{"Paris", "Lyon", 0},
		{"Paris", "", 0},
	}
	for _, tt := range tests {
		if got := s.RegionMatch(tt.requested, tt.candidate); got != tt.want {
			t.Errorf("RegionMatch(%q, %q) = %v, want %v", tt.requested, tt.candidate, got, tt.want)
		}
	}
}

func TestArea(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	tests := []struct {
		region string
		want   string
	}{
		{"Paris", "ile-de-france"},
		{"  PARIS ", "ile-de-france"},
		{"Lyon", "auvergne-rhone-alpes"},
		{"Bretagne", "Bretagne"},
		{"Île-de-France", "Île-de-France"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := s.Area(tt.region); got != tt.want {
			t.Errorf("Area(%q) = %q, want %q", tt.region, got, tt.want)
		}
	}
}

func TestVendorReliability(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	tests := map[string]float64{
		"Leroy Merlin":         0.9,
		"LEROY MERLIN Ivry":    0.9,
		"Castorama":            0.85,
		"Brico Dépôt":          0.8,
		"Weldom":               0.75,
		"Quincaillerie Dupont": 0.5,
		"":                     0.5,
	}
	for vendor, want := range tests {
		if got := s.VendorReliability(vendor); got != want {
			t.Errorf("VendorReliability(%q) = %v, want %v", vendor, got, want)
		}
	}
}

func TestPricePlausibility(t *testing.T) {
	t.Parallel()

	stats := catalog.PriceStats{Mean: 20, StdDev: 5, Count: 10}
	tests := []struct {
		name  string
		price float64
		stats catalog.PriceStats
		want  float64
	}{
		{name: "at mean", price: 20, stats: stats, want: 1},
		{name: "one sd", price: 25, stats: stats, want: 1},
		{name: "two sd", price: 10, stats: stats, want: 0.5},
		{name: "three sd", price: 35, stats: stats, want: 0},
		{name: "far out", price: 200, stats: stats, want: 0},
		{name: "no stats", price: 200, stats: catalog.PriceStats{}, want: 0.5},
		{name: "single sample", price: 20, stats: catalog.PriceStats{Mean: 20, Count: 1}, want: 0.5},
		{name: "zero sd at mean", price: 20, stats: catalog.PriceStats{Mean: 20, Count: 3}, want: 1},
		{name: "zero sd off mean", price: 21, stats: catalog.PriceStats{Mean: 20, Count: 3}, want: 0.5},
	}
	for _, tt := range tests {
		if got := PricePlausibility(tt.price, tt.stats); !approx(got, tt.want) {
			t.Errorf("%s: PricePlausibility(%v) = %v, want %v", tt.name, tt.price, got, tt.want)
		}
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	rec := catalog.MaterialRecord{
		ID:        "glue",
		UnitPrice: decimal.RequireFromString("18.90"),
		Region:    "Île-de-France",
		Vendor:    "Leroy Merlin",
	}
	stats := catalog.PriceStats{Mean: 18, StdDev: 4, Count: 12}

	got := s.Score(Input{Similarity: 0.9, Record: rec, Region: "Paris", Stats: stats})
	// 0.40*0.9 + 0.25*1 + 0.20*1 + 0.15*0.9
	if want := 0.945; !approx(got.Score, want) {
		t.Fatalf("Score = %v, want %v", got.Score, want)
	}
	if got.Tier != TierHigh {
		t.Errorf("Tier = %s, want HIGH", got.Tier)
	}
	if got.Signals != (Signals{Semantic: 0.9, Region: 1, Price: 1, Vendor: 0.9}) {
		t.Errorf("Signals = %+v", got.Signals)
	}

	far := s.Score(Input{Similarity: 0.2, Record: rec, Region: "Lyon"})
	// 0.40*0.2 + 0 + 0.20*0.5 + 0.15*0.9
	if want := 0.315; !approx(far.Score, want) || far.Tier != TierLow {
		t.Fatalf("Score(far) = %v %s, want %v LOW", far.Score, far.Tier, want)
	}
}

func TestScore_BoundedAndMonotonic(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t)
	rec := catalog.MaterialRecord{UnitPrice: decimal.NewFromInt(3), Region: "Corse", Vendor: "Weldom"}
	prev := -1.0
	for i := -2; i <= 12; i++ {
		sim := float64(i) / 10
		got := s.Score(Input{Similarity: sim, Record: rec, Region: "Bretagne"}).Score
		if got < 0 || got > 1 {
			t.Fatalf("Score(sim=%v) = %v out of [0,1]", sim, got)
		}
		if got < prev {
			t.Fatalf("Score(sim=%v) = %v decreased from %v", sim, got, prev)
		}
		prev = got
	}
}
