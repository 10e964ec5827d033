package quote

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MrWong99/renoquote/internal/segment"
	"github.com/MrWong99/renoquote/internal/textnorm"
	"github.com/MrWong99/renoquote/pkg/catalog"
)

// QuantityEstimator decides how much of a material a need calls for.
type QuantityEstimator interface {
	Estimate(need segment.Need, rec catalog.MaterialRecord) decimal.Decimal
}

// LexiconQuantities uses a quantity stated in the need ("20 m2 of tiles")
// when there is one, and a per-category base quantity otherwise.
type LexiconQuantities struct {
	Base    map[catalog.Category]decimal.Decimal
	Default decimal.Decimal
}

var _ QuantityEstimator = LexiconQuantities{}

// DefaultQuantities returns the built-in base quantities.
func DefaultQuantities() LexiconQuantities {
	return LexiconQuantities{
		Base: map[catalog.Category]decimal.Decimal{
			catalog.CategoryTiles:      decimal.NewFromInt(10),
			catalog.CategoryAdhesives:  decimal.NewFromInt(5),
			catalog.CategoryPaints:     decimal.NewFromInt(5),
			catalog.CategoryPlumbing:   decimal.NewFromInt(10),
			catalog.CategoryElectrical: decimal.NewFromInt(20),
			catalog.CategoryWood:       decimal.NewFromInt(5),
		},
		Default: decimal.NewFromInt(1),
	}
}

// quantityPattern matches a standalone number such as the "20" of "20 m2"
// or the "2,5" of "2,5 kg". Digits inside words ("m2") do not match.
var quantityPattern = regexp.MustCompile(`\b(\d+(?:[.,]\d+)?)\b`)

// measuredPattern matches a number followed by a unit of measure or of
// packaging, in folded English or French.
var measuredPattern = regexp.MustCompile(`\b(\d+(?:[.,]\d+)?)\s*` +
	`(?:m2|m3|ml|mm|cm|m|kg|g|l|sq ?m|square (?:meters?|metres?)|metres?|meters?|litres?|liters?|` +
	`sacs?|bags?|rouleaux|rolls?|pots?|seaux|seau|buckets?|boites?|boxes|box|pieces?|pcs|units?|unites?)\b`)

// Estimate implements [QuantityEstimator]. A number in the material part of
// the need is its quantity ("3 pots of paint"). A number in the purpose part
// counts only with a unit: "tiles for 20 m2" is 20 but "paint for the 2
// bedrooms" falls back to the base quantity. The record's category is used
// when the need has none of its own.
func (l LexiconQuantities) Estimate(need segment.Need, rec catalog.MaterialRecord) decimal.Decimal {
	head := need.Head
	if head == "" && need.Purpose == "" {
		head = need.Raw
	}
	if q, ok := ExplicitQuantity(head); ok {
		return q
	}
	if q, ok := MeasuredQuantity(need.Purpose); ok {
		return q
	}
	cat := need.Category
	if cat == "" || cat == catalog.CategoryOther {
		cat = rec.Category
	}
	if q, ok := l.Base[cat]; ok {
		return q
	}
	if l.Default.IsPositive() {
		return l.Default
	}
	return decimal.NewFromInt(1)
}

// ExplicitQuantity returns the first positive quantity stated in s.
func ExplicitQuantity(s string) (decimal.Decimal, bool) {
	for _, m := range quantityPattern.FindAllStringSubmatch(s, -1) {
		if q, ok := parseQuantity(m[1]); ok {
			return q, true
		}
	}
	return decimal.Decimal{}, false
}

// MeasuredQuantity returns the first positive quantity in s that is followed
// by a unit.
func MeasuredQuantity(s string) (decimal.Decimal, bool) {
	for _, m := range measuredPattern.FindAllStringSubmatch(textnorm.Fold(s), -1) {
		if q, ok := parseQuantity(m[1]); ok {
			return q, true
		}
	}
	return decimal.Decimal{}, false
}

func parseQuantity(s string) (decimal.Decimal, bool) {
	q, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil || !q.IsPositive() {
		return decimal.Decimal{}, false
	}
	return q, true
}
