// Package feedback records verdicts on issued quotes.
//
// Feedback is append-only: an [Entry] is written once and never changed or
// deleted. Each entry keeps a snapshot of the quote it refers to (region,
// materials, total, confidence) so that aggregates over materials, regions
// and vendors can be computed from the feedback log alone.
//
// After an entry is stored the [Recorder] announces it through a
// [Publisher] for downstream recalibration consumers. Publishing is best
// effort; see natspub for the NATS implementation.
package feedback

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrWong99/renoquote/pkg/types"
)

// ErrInvalidVerdict is returned (wrapped in a [types.ValidationError]) for
// a verdict outside the supported set.
var ErrInvalidVerdict = errors.New("invalid verdict")

// Verdict is the outcome a user reports for a quote.
type Verdict string

const (
	VerdictAccepted    Verdict = "accepted"
	VerdictRejected    Verdict = "rejected"
	VerdictOverpriced  Verdict = "overpriced"
	VerdictUnderpriced Verdict = "underpriced"
	VerdictModified    Verdict = "modified"
)

// Verdicts lists every verdict.
var Verdicts = []Verdict{VerdictAccepted, VerdictRejected, VerdictOverpriced, VerdictUnderpriced, VerdictModified}

// IsValid reports whether v is a recognised verdict.
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictAccepted, VerdictRejected, VerdictOverpriced, VerdictUnderpriced, VerdictModified:
		return true
	}
	return false
}

// Negative reports whether v says the quote's price was wrong.
func (v Verdict) Negative() bool {
	return v == VerdictRejected || v == VerdictOverpriced || v == VerdictUnderpriced
}

// ParseVerdict normalises s and validates it.
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(strings.ToLower(strings.TrimSpace(s)))
	if !v.IsValid() {
		return "", types.NewValidationError("verdict", s, ErrInvalidVerdict)
	}
	return v, nil
}

// MaterialRef identifies a material of the quote an entry refers to.
type MaterialRef struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Vendor string `json:"vendor,omitempty"`
}

// Entry is one recorded verdict.
type Entry struct {
	ID       string         `json:"id"`
	QuoteID  string         `json:"quote_id"`
	UserType types.UserType `json:"user_type"`
	Verdict  Verdict        `json:"verdict"`
	Comment  string         `json:"comment,omitempty"`

	// MaterialFeedback holds free-text remarks keyed by material name or ID.
	MaterialFeedback map[string]string `json:"material_feedback,omitempty"`

	// PricingFeedback holds free-text remarks keyed by pricing aspect.
	PricingFeedback map[string]string `json:"pricing_feedback,omitempty"`

	ImpactScore float64  `json:"impact_score"`
	Insights    []string `json:"insights"`

	// Snapshot of the quote when the feedback was given.
	Region          string          `json:"region,omitempty"`
	Materials       []MaterialRef   `json:"materials,omitempty"`
	QuoteTotal      decimal.Decimal `json:"quote_total"`
	QuoteConfidence float64         `json:"quote_confidence"`

	CreatedAt time.Time `json:"created_at"`
}

// Filter selects entries. Zero fields match everything; Since and Until are
// inclusive.
type Filter struct {
	QuoteID  string
	UserType types.UserType
	Since    time.Time
	Until    time.Time
}

// Matches reports whether e satisfies f.
func (f Filter) Matches(e Entry) bool {
	switch {
	case f.QuoteID != "" && e.QuoteID != f.QuoteID:
		return false
	case f.UserType != "" && e.UserType != f.UserType:
		return false
	case !f.Since.IsZero() && e.CreatedAt.Before(f.Since):
		return false
	case !f.Until.IsZero() && e.CreatedAt.After(f.Until):
		return false
	}
	return true
}

// Repository is the append-only feedback log. Implementations must be safe
// for concurrent use.
type Repository interface {
	// Append stores e.
	Append(ctx context.Context, e Entry) error

	// List returns the entries matching f, oldest first.
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// Publisher announces recorded entries.
type Publisher interface {
	Publish(ctx context.Context, e Entry) error
}

// NopPublisher discards every entry.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

// Publish implements [Publisher].
func (NopPublisher) Publish(context.Context, Entry) error { return nil }
