package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrWong99/renoquote/internal/confidence"
	"github.com/MrWong99/renoquote/internal/search"
	"github.com/MrWong99/renoquote/pkg/catalog"
	"github.com/MrWong99/renoquote/pkg/types"
)

var errNotANumber = errors.New("not a number")

// MaterialMatch is one search result as returned to clients.
type MaterialMatch struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	UnitPrice       decimal.Decimal    `json:"unit_price"`
	Unit            string             `json:"unit"`
	Region          string             `json:"region"`
	Vendor          string             `json:"vendor,omitempty"`
	Category        catalog.Category   `json:"category,omitempty"`
	QualityScore    int                `json:"quality_score"`
	SimilarityScore float64            `json:"similarity_score"`
	Confidence      float64            `json:"confidence"`
	ConfidenceTier  confidence.Tier    `json:"confidence_tier"`
	Signals         confidence.Signals `json:"signals"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Source          string             `json:"source,omitempty"`
}

// SearchResponse is the body of GET /v1/materials/search.
type SearchResponse struct {
	Matches  []MaterialMatch `json:"matches"`
	Tier     search.Tier     `json:"tier"`
	Degraded bool            `json:"degraded"`
}

func toMaterialMatch(m search.Match) MaterialMatch {
	r := m.Record
	return MaterialMatch{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		UnitPrice:       r.UnitPrice,
		Unit:            r.Unit,
		Region:          r.Region,
		Vendor:          r.Vendor,
		Category:        r.Category,
		QualityScore:    r.QualityScore,
		SimilarityScore: m.Similarity,
		Confidence:      m.Confidence.Score,
		ConfidenceTier:  m.Confidence.Tier,
		Signals:         m.Confidence.Signals,
		UpdatedAt:       r.UpdatedAt,
		Source:          r.Source,
	}
}

func (s *Server) searchMaterials(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r.URL.Query())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	res, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	out := SearchResponse{
		Matches:  make([]MaterialMatch, 0, len(res.Matches)),
		Tier:     res.Tier,
		Degraded: res.Degraded,
	}
	for _, m := range res.Matches {
		out.Matches = append(out.Matches, toMaterialMatch(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// parseSearchRequest builds a [search.Request] from query parameters. Range
// checks are left to the searcher; only syntax is checked here.
func parseSearchRequest(q url.Values) (search.Request, error) {
	req := search.Request{
		Query: q.Get("query"),
		Limit: DefaultSearchLimit,
		Filters: catalog.Filters{
			Region:   q.Get("region"),
			Unit:     q.Get("unit"),
			Vendor:   q.Get("vendor"),
			Category: catalog.Category(strings.ToLower(q.Get("category"))),
		},
	}
	if req.Query == "" {
		req.Query = q.Get("q")
	}

	var errs []error
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, types.NewValidationError("limit", v, search.ErrInvalidLimit))
		}
		req.Limit = n
	}
	if v := q.Get("quality_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, types.NewValidationError("quality_score", v, errNotANumber))
		}
		req.Filters.MinQuality = n
	}
	for _, p := range []struct {
		name string
		dst  *decimal.NullDecimal
	}{
		{"min_price", &req.Filters.MinPrice},
		{"max_price", &req.Filters.MaxPrice},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, types.NewValidationError(p.name, v, errNotANumber))
			continue
		}
		*p.dst = decimal.NewNullDecimal(d)
	}
	return req, errors.Join(errs...)
}
