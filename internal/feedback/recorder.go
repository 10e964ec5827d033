package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/renoquote/internal/observe"
	"github.com/MrWong99/renoquote/internal/quote"
	"github.com/MrWong99/renoquote/pkg/types"
)

// QuoteSource looks up issued quotes. [quote.Repository] implements it.
type QuoteSource interface {
	Get(ctx context.Context, id string) (quote.Quote, error)
}

// Request is a verdict submission.
type Request struct {
	QuoteID          string
	UserType         string
	Verdict          string
	Comment          string
	MaterialFeedback map[string]string
	PricingFeedback  map[string]string
}

// Option is a functional option for [NewRecorder].
type Option func(*Recorder)

// WithPublisher sets where recorded entries are announced. Default:
// [NopPublisher].
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock sets the function that stamps CreatedAt. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder validates and stores feedback. It is safe for concurrent use.
type Recorder struct {
	quotes    QuoteSource
	repo      Repository
	publisher Publisher
	metrics   *observe.Metrics
	now       func() time.Time
}

// NewRecorder returns a [Recorder] that checks quote IDs against quotes and
// appends entries to repo.
func NewRecorder(quotes QuoteSource, repo Repository, opts ...Option) (*Recorder, error) {
	if quotes == nil || repo == nil {
		return nil, errors.New("feedback: quote source and repository must not be nil")
	}
	r := &Recorder{
		quotes:    quotes,
		repo:      repo,
		publisher: NopPublisher{},
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r, nil
}

// Record validates req, stores the entry and publishes it. Unknown quote
// IDs fail with an error wrapping [quote.ErrNotFound] and store nothing.
// A failed publish is logged and does not fail the call.
func (r *Recorder) Record(ctx context.Context, req Request) (Entry, error) {
	var errs []error
	userType, err := types.ParseUserType(req.UserType)
	if err != nil {
		errs = append(errs, err)
	}
	verdict, err := ParseVerdict(req.Verdict)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return Entry{}, err
	}

	ctx, span := observe.StartSpan(ctx, "feedback.Record")
	defer span.End()
	span.SetAttributes(
		attribute.String("feedback.quote_id", req.QuoteID),
		attribute.String("feedback.verdict", string(verdict)),
	)

	if req.QuoteID == "" {
		return Entry{}, fmt.Errorf("feedback: record: %w", quote.ErrNotFound)
	}
	q, err := r.quotes.Get(ctx, req.QuoteID)
	if err != nil {
		observe.Fail(span, err, "quote lookup failed")
		return Entry{}, fmt.Errorf("feedback: record: %w", err)
	}

	e := Entry{
		ID:               uuid.NewString(),
		QuoteID:          q.ID,
		UserType:         userType,
		Verdict:          verdict,
		Comment:          req.Comment,
		MaterialFeedback: req.MaterialFeedback,
		PricingFeedback:  req.PricingFeedback,
		Region:           q.Region,
		Materials:        materialsOf(q),
		QuoteTotal:       q.TotalEstimate,
		QuoteConfidence:  q.Confidence,
		CreatedAt:        r.now().UTC(),
	}
	e.ImpactScore = ImpactScore(verdict, userType, q.Confidence, q.TotalEstimate)
	e.Insights = Insights(e)

	if err := r.repo.Append(ctx, e); err != nil {
		observe.Fail(span, err, "append failed")
		return Entry{}, fmt.Errorf("feedback: append: %w", err)
	}
	r.metrics.RecordFeedback(ctx, string(verdict), string(userType))

	if err := r.publisher.Publish(ctx, e); err != nil {
		r.metrics.PublishErrors.Add(ctx, 1)
		observe.Logger(ctx).Warn("feedback: publish failed", "entry_id", e.ID, "err", err)
	}

	observe.Logger(ctx).Info("feedback recorded",
		"entry_id", e.ID,
		"quote_id", e.QuoteID,
		"verdict", e.Verdict,
		"impact", e.ImpactScore,
	)
	return e, nil
}

// History returns the feedback on one quote, oldest first.
func (r *Recorder) History(ctx context.Context, quoteID string) ([]Entry, error) {
	entries, err := r.repo.List(ctx, Filter{QuoteID: quoteID})
	if err != nil {
		return nil, fmt.Errorf("feedback: history: %w", err)
	}
	return entries, nil
}

// Aggregates returns verdict counts grouped by material, region or vendor.
func (r *Recorder) Aggregates(ctx context.Context, by GroupBy) ([]Aggregate, error) {
	entries, err := r.repo.List(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("feedback: aggregates: %w", err)
	}
	return Aggregates(entries, by), nil
}

// Analytics summarises the feedback matching opts.
func (r *Recorder) Analytics(ctx context.Context, opts AnalyticsOptions) (Analytics, error) {
	entries, err := r.repo.List(ctx, opts.filter())
	if err != nil {
		return Analytics{}, fmt.Errorf("feedback: analytics: %w", err)
	}
	return Analyze(entries, opts), nil
}

// VendorReliability returns the acceptance rate of every vendor that has
// received feedback.
func (r *Recorder) VendorReliability(ctx context.Context) (map[string]float64, error) {
	entries, err := r.repo.List(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("feedback: vendor reliability: %w", err)
	}
	return VendorReliability(entries), nil
}

func materialsOf(q quote.Quote) []MaterialRef {
	var out []MaterialRef
	for _, t := range q.Tasks {
		for _, l := range t.Lines {
			out = append(out, MaterialRef{ID: l.MaterialID, Name: l.Name, Vendor: l.Vendor})
		}
	}
	return out
}
