package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrWong99/renoquote/internal/feedback"
	"github.com/MrWong99/renoquote/internal/quote"
	"github.com/MrWong99/renoquote/pkg/types"
)

var errBadTime = errors.New("want RFC 3339 timestamp or YYYY-MM-DD date")

// FeedbackRequest is the body of POST /v1/feedback.
type FeedbackRequest struct {
	QuoteID          string            `json:"quote_id"`
	UserType         string            `json:"user_type"`
	Verdict          string            `json:"verdict"`
	Comment          string            `json:"comment,omitempty"`
	MaterialFeedback map[string]string `json:"material_feedback,omitempty"`
	PricingFeedback  map[string]string `json:"pricing_feedback,omitempty"`
}

// FeedbackList is the body of GET /v1/quotes/{id}/feedback.
type FeedbackList struct {
	Entries []feedback.Entry `json:"entries"`
}

// AggregateList is the body of GET /v1/feedback/aggregates.
type AggregateList struct {
	GroupBy    feedback.GroupBy     `json:"group_by"`
	Aggregates []feedback.Aggregate `json:"aggregates"`
}

func (s *Server) recordFeedback(w http.ResponseWriter, r *http.Request) {
	var body FeedbackRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	e, err := s.feedback.Record(r.Context(), feedback.Request{
		QuoteID:          body.QuoteID,
		UserType:         body.UserType,
		Verdict:          body.Verdict,
		Comment:          body.Comment,
		MaterialFeedback: body.MaterialFeedback,
		PricingFeedback:  body.PricingFeedback,
	})
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) quoteFeedback(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.quotes.Exists(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if !ok {
		writeError(r.Context(), w, quote.ErrNotFound)
		return
	}
	entries, err := s.feedback.History(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if entries == nil {
		entries = []feedback.Entry{}
	}
	writeJSON(w, http.StatusOK, FeedbackList{Entries: entries})
}

func (s *Server) feedbackAggregates(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("group_by")
	if v == "" {
		v = string(feedback.ByMaterial)
	}
	by, err := feedback.ParseGroupBy(v)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	aggs, err := s.feedback.Aggregates(r.Context(), by)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if aggs == nil {
		aggs = []feedback.Aggregate{}
	}
	writeJSON(w, http.StatusOK, AggregateList{GroupBy: by, Aggregates: aggs})
}

func (s *Server) feedbackAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		opts feedback.AnalyticsOptions
		errs []error
		err  error
	)
	if v := q.Get("user_type"); v != "" {
		if opts.UserType, err = types.ParseUserType(v); err != nil {
			errs = append(errs, err)
		}
	}
	if opts.Since, err = parseTime("since", q.Get("since"), false); err != nil {
		errs = append(errs, err)
	}
	if opts.Until, err = parseTime("until", q.Get("until"), true); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	a, err := s.feedback.Analytics(r.Context(), opts)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// parseTime accepts an RFC 3339 timestamp or a bare date. A bare date used
// as an upper bound covers the whole day.
func parseTime(field, v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, types.NewValidationError(field, v, errBadTime)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
