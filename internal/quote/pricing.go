package quote

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MrWong99/renoquote/internal/segment"
	"github.com/MrWong99/renoquote/pkg/catalog"
	"github.com/MrWong99/renoquote/pkg/types"
)

// Pricing holds the immutable pricing rules of an [Assembler].
type Pricing struct {
	// Margin is the fraction added on top of material cost. Default: 0.25.
	Margin decimal.Decimal

	VATRenovation decimal.Decimal
	VATNewBuild   decimal.Decimal

	// Materials with a quality score at or above QualityHighThreshold cost
	// QualityHighMultiplier times their unit price; at or below
	// QualityLowThreshold, QualityLowMultiplier times.
	QualityHighThreshold  int
	QualityHighMultiplier decimal.Decimal
	QualityLowThreshold   int
	QualityLowMultiplier  decimal.Decimal

	// RegionalMultipliers is keyed by region name. Unknown regions price at
	// 1.0.
	RegionalMultipliers map[string]decimal.Decimal

	// RegionAreas resolves cities to the region that prices them
	// ("Paris" → "Île-de-France").
	RegionAreas map[string]string

	// LaborRates is the hourly labor rate per task type.
	LaborRates map[segment.Task]decimal.Decimal

	// BaseDays is the base duration of each task type.
	BaseDays map[segment.Task]int

	// TaskPriors is the prior confidence of each task type, blended into
	// the task confidence with weight TaskPriorWeight.
	TaskPriors      map[segment.Task]float64
	TaskPriorWeight float64
}

// DefaultPricing returns the production pricing rules.
func DefaultPricing() Pricing {
	return Pricing{
		Margin:                decimal.RequireFromString("0.25"),
		VATRenovation:         decimal.RequireFromString("0.10"),
		VATNewBuild:           decimal.RequireFromString("0.20"),
		QualityHighThreshold:  8,
		QualityHighMultiplier: decimal.RequireFromString("1.1"),
		QualityLowThreshold:   3,
		QualityLowMultiplier:  decimal.RequireFromString("0.9"),
		RegionalMultipliers:   DefaultRegionalMultipliers(),
		RegionAreas: map[string]string{
			"paris":     "Île-de-France",
			"marseille": "Provence-Alpes-Côte d'Azur",
			"nice":      "Provence-Alpes-Côte d'Azur",
			"lyon":      "Auvergne-Rhône-Alpes",
			"toulouse":  "Occitanie",
			"bordeaux":  "Nouvelle-Aquitaine",
			"lille":     "Hauts-de-France",
			"nantes":    "Pays de la Loire",
			"rennes":    "Bretagne",
		},
		LaborRates: map[segment.Task]decimal.Decimal{
			segment.TaskTiling:     decimal.NewFromInt(45),
			segment.TaskPainting:   decimal.NewFromInt(35),
			segment.TaskPlumbing:   decimal.NewFromInt(55),
			segment.TaskElectrical: decimal.NewFromInt(50),
			segment.TaskCarpentry:  decimal.NewFromInt(40),
			segment.TaskGeneral:    decimal.NewFromInt(40),
		},
		BaseDays: map[segment.Task]int{
			segment.TaskTiling:     2,
			segment.TaskPainting:   1,
			segment.TaskPlumbing:   1,
			segment.TaskElectrical: 1,
			segment.TaskCarpentry:  2,
			segment.TaskGeneral:    1,
		},
		TaskPriors: map[segment.Task]float64{
			segment.TaskTiling:     0.8,
			segment.TaskPainting:   0.9,
			segment.TaskPlumbing:   0.7,
			segment.TaskElectrical: 0.6,
			segment.TaskCarpentry:  0.7,
			segment.TaskGeneral:    0.5,
		},
		TaskPriorWeight: 0.3,
	}
}

// DefaultRegionalMultipliers returns the price level of the French regions
// relative to the national average.
func DefaultRegionalMultipliers() map[string]decimal.Decimal {
	m := map[string]string{
		"Île-de-France":              "1.15",
		"Provence-Alpes-Côte d'Azur": "1.10",
		"Auvergne-Rhône-Alpes":       "1.05",
		"Occitanie":                  "1.00",
		"Nouvelle-Aquitaine":         "0.95",
		"Hauts-de-France":            "0.90",
		"Grand Est":                  "0.95",
		"Bourgogne-Franche-Comté":    "0.90",
		"Centre-Val de Loire":        "0.95",
		"Normandie":                  "0.90",
		"Bretagne":                   "0.95",
		"Pays de la Loire":           "0.95",
		"Corse":                      "1.20",
	}
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = decimal.RequireFromString(v)
	}
	return out
}

// Validate reports every rule that is out of range.
func (p Pricing) Validate() error {
	var errs []error
	if p.Margin.IsNegative() {
		errs = append(errs, fmt.Errorf("margin %s must be >= 0", p.Margin))
	}
	for name, v := range map[string]decimal.Decimal{"vat_renovation": p.VATRenovation, "vat_new_build": p.VATNewBuild} {
		if v.IsNegative() || v.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			errs = append(errs, fmt.Errorf("%s %s must be in [0, 1)", name, v))
		}
	}
	if p.QualityLowThreshold >= p.QualityHighThreshold {
		errs = append(errs, fmt.Errorf("quality_low_threshold %d must be below quality_high_threshold %d",
			p.QualityLowThreshold, p.QualityHighThreshold))
	}
	if !p.QualityHighMultiplier.IsPositive() || !p.QualityLowMultiplier.IsPositive() {
		errs = append(errs, errors.New("quality multipliers must be > 0"))
	}
	for region, m := range p.RegionalMultipliers {
		if !m.IsPositive() {
			errs = append(errs, fmt.Errorf("regional multiplier for %q must be > 0", region))
		}
	}
	if p.TaskPriorWeight < 0 || p.TaskPriorWeight > 1 {
		errs = append(errs, fmt.Errorf("task_prior_weight %v must be in [0, 1]", p.TaskPriorWeight))
	}
	return errors.Join(errs...)
}

// VATRate returns the VAT rate of a project type. Unspecified projects are
// taxed as new builds.
func (p Pricing) VATRate(pt types.ProjectType) decimal.Decimal {
	if pt == types.ProjectRenovation {
		return p.VATRenovation
	}
	return p.VATNewBuild
}

// QualityMultiplier returns the price factor for a quality score.
func (p Pricing) QualityMultiplier(score int) decimal.Decimal {
	switch {
	case score >= p.QualityHighThreshold:
		return p.QualityHighMultiplier
	case score <= p.QualityLowThreshold:
		return p.QualityLowMultiplier
	}
	return decimal.NewFromInt(1)
}

// RegionalMultiplier returns the price factor of region. Cities listed in
// RegionAreas use their region's factor; anything unknown is 1.
func (p Pricing) RegionalMultiplier(region string) decimal.Decimal {
	key := catalog.Key(region)
	if key == "" {
		return decimal.NewFromInt(1)
	}
	for alias, r := range p.RegionAreas {
		if catalog.Key(alias) == key {
			key = catalog.Key(r)
			break
		}
	}
	for name, m := range p.RegionalMultipliers {
		if catalog.Key(name) == key {
			return m
		}
	}
	return decimal.NewFromInt(1)
}

// Duration returns the working time of a task of type t with n materials.
// Tasks with more than five materials take one extra day.
func (p Pricing) Duration(t segment.Task, n int) Duration {
	days, ok := p.BaseDays[t]
	if !ok || days < 1 {
		days = 1
	}
	if n > 5 {
		days++
	}
	return Duration{Days: days}
}

// Labor returns the labor estimate of a task: eight hours per day at the
// task's hourly rate, scaled by the regional multiplier.
func (p Pricing) Labor(t segment.Task, d Duration, regional decimal.Decimal) decimal.Decimal {
	rate, ok := p.LaborRates[t]
	if !ok {
		rate = p.LaborRates[segment.TaskGeneral]
	}
	hours := decimal.NewFromInt(int64(d.Days * 8))
	return hours.Mul(rate).Mul(regional).Round(2)
}

// TaskConfidence blends the material confidence of a task with the prior
// of its type.
func (p Pricing) TaskConfidence(t segment.Task, materials float64) float64 {
	prior, ok := p.TaskPriors[t]
	if !ok {
		prior = 0.5
	}
	w := p.TaskPriorWeight
	return catalog.ClampUnit((1-w)*materials + w*prior)
}
