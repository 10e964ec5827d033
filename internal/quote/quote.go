// Package quote turns a job transcript into a priced, versioned quote.
//
// The [Assembler] segments the transcript into material needs, searches the
// catalog for each need concurrently, groups the chosen materials into tasks
// and prices every task with the configured margin, quality and regional
// multipliers. Quotes are immutable once saved: corrections go through
// [Assembler.Revise], which issues a new version that supersedes the old
// one.
//
// All money is carried as [decimal.Decimal] and rounded to cents at the task
// level, so a quote's total always equals the sum of its task prices.
package quote

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrWong99/renoquote/internal/confidence"
	"github.com/MrWong99/renoquote/internal/search"
	"github.com/MrWong99/renoquote/internal/segment"
	"github.com/MrWong99/renoquote/pkg/types"
)

var (
	// ErrEmptyTranscript is returned (wrapped in a [types.ValidationError])
	// when a transcript is empty or only whitespace.
	ErrEmptyTranscript = errors.New("empty transcript")

	// ErrNotFound is returned when no quote has the requested ID.
	ErrNotFound = errors.New("quote not found")

	// ErrAlreadyExists is returned by [Repository.Save] for an ID that is
	// already stored. Quotes are never overwritten.
	ErrAlreadyExists = errors.New("quote already exists")
)

// Line is one priced material inside a task.
type Line struct {
	MaterialID string          `json:"material_id"`
	Name       string          `json:"name"`
	Vendor     string          `json:"vendor,omitempty"`
	Region     string          `json:"region"`
	Unit       string          `json:"unit"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`

	// QualityMultiplier is the factor the record's quality score applies to
	// the line cost.
	QualityMultiplier decimal.Decimal `json:"quality_multiplier"`

	// Cost is UnitPrice × Quantity × QualityMultiplier, rounded to cents for
	// display. Task prices are computed from the unrounded costs.
	Cost decimal.Decimal `json:"cost"`

	// Need is the search phrase the material was found for.
	Need string `json:"need"`

	Confidence confidence.Result `json:"confidence"`
	SearchTier search.Tier       `json:"search_tier"`
}

// Duration is the estimated working time of a task.
type Duration struct {
	Days int `json:"days"`
}

func (d Duration) String() string {
	if d.Days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", d.Days)
}

// Task is a group of materials belonging to one kind of work.
type Task struct {
	Type  segment.Task `json:"type"`
	Label string       `json:"label"`
	Lines []Line       `json:"materials"`

	// Price is the margin-protected price of the task, VAT excluded.
	Price decimal.Decimal `json:"price"`

	Duration Duration `json:"duration"`

	// LaborEstimate is informational and not included in Price.
	LaborEstimate decimal.Decimal `json:"labor_estimate"`

	Confidence     float64         `json:"confidence"`
	ConfidenceTier confidence.Tier `json:"confidence_tier"`
}

// Quote is an issued price proposal. Values are never modified after
// [Repository.Save].
type Quote struct {
	ID      string `json:"quote_id"`
	Version int    `json:"version"`

	// Supersedes is the ID of the quote this one revises, if any.
	Supersedes string `json:"supersedes,omitempty"`

	Transcript  string            `json:"transcript"`
	UserType    types.UserType    `json:"user_type"`
	Region      string            `json:"region,omitempty"`
	ProjectType types.ProjectType `json:"project_type,omitempty"`
	Tasks       []Task            `json:"tasks"`

	// TotalEstimate is the sum of task prices, VAT excluded.
	TotalEstimate    decimal.Decimal `json:"total_estimate"`
	VATRate          decimal.Decimal `json:"vat_rate"`
	VATAmount        decimal.Decimal `json:"vat_amount"`
	TotalWithVAT     decimal.Decimal `json:"total_with_vat"`
	MarginPercentage decimal.Decimal `json:"margin_percentage"`

	Confidence     float64         `json:"confidence_score"`
	ConfidenceTier confidence.Tier `json:"confidence_tier"`

	// Degraded is set when any material came from a fallback search tier.
	Degraded bool `json:"degraded"`

	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of q.
func (q Quote) Clone() Quote {
	out := q
	out.Tasks = make([]Task, len(q.Tasks))
	for i, t := range q.Tasks {
		t.Lines = append([]Line(nil), t.Lines...)
		out.Tasks[i] = t
	}
	return out
}
