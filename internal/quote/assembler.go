package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/renoquote/internal/confidence"
	"github.com/MrWong99/renoquote/internal/observe"
	"github.com/MrWong99/renoquote/internal/search"
	"github.com/MrWong99/renoquote/internal/segment"
	"github.com/MrWong99/renoquote/pkg/types"
)

// Searcher finds catalog materials for one need. *search.Searcher
// implements it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (search.Result, error)
}

var _ Searcher = (*search.Searcher)(nil)

// Request asks for a new quote.
type Request struct {
	Transcript string

	// UserType must parse with [types.ParseUserType].
	UserType string

	// Region ranks materials and selects the regional multiplier. Optional.
	Region string

	// ProjectType selects the VAT rate; see [types.ParseProjectType].
	ProjectType string
}

// taskLabels are the display names of the task types.
var taskLabels = map[segment.Task]string{
	segment.TaskTiling:     "Tile Installation",
	segment.TaskPainting:   "Painting",
	segment.TaskPlumbing:   "Plumbing Work",
	segment.TaskElectrical: "Electrical Work",
	segment.TaskCarpentry:  "Carpentry Work",
	segment.TaskGeneral:    "General Renovation",
}

// Option is a functional option for [NewAssembler].
type Option func(*Assembler)

// WithSegmenter replaces the default [segment.Auto] segmenter.
func WithSegmenter(s segment.Segmenter) Option {
	return func(a *Assembler) { a.segmenter = s }
}

// WithQuantities replaces [DefaultQuantities].
func WithQuantities(q QuantityEstimator) Option {
	return func(a *Assembler) { a.quantities = q }
}

// WithClock sets the function that stamps CreatedAt. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

// WithConcurrency bounds how many catalog searches one quote runs at once.
// Default: 4.
func WithConcurrency(n int) Option {
	return func(a *Assembler) { a.maxConcurrent = n }
}

// WithCandidatesPerNeed sets how many matches are requested per need before
// the best one is chosen. Default: 3.
func WithCandidatesPerNeed(n int) Option {
	return func(a *Assembler) { a.candidatesPerNeed = n }
}

// Assembler builds, prices and stores quotes. It is safe for concurrent
// use; all of its configuration is fixed at construction.
type Assembler struct {
	searcher   Searcher
	repo       Repository
	pricing    Pricing
	segmenter  segment.Segmenter
	quantities QuantityEstimator
	metrics    *observe.Metrics
	now        func() time.Time

	maxConcurrent     int
	candidatesPerNeed int
}

// NewAssembler validates pricing and returns an [Assembler].
func NewAssembler(searcher Searcher, repo Repository, pricing Pricing, opts ...Option) (*Assembler, error) {
	if searcher == nil {
		return nil, errors.New("quote: searcher must not be nil")
	}
	if repo == nil {
		return nil, errors.New("quote: repository must not be nil")
	}
	if err := pricing.Validate(); err != nil {
		return nil, fmt.Errorf("quote: pricing: %w", err)
	}
	a := &Assembler{
		searcher:          searcher,
		repo:              repo,
		pricing:           pricing,
		segmenter:         segment.Auto(),
		quantities:        DefaultQuantities(),
		now:               time.Now,
		maxConcurrent:     4,
		candidatesPerNeed: 3,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.maxConcurrent = max(a.maxConcurrent, 1)
	a.candidatesPerNeed = max(a.candidatesPerNeed, 1)
	return a, nil
}

// Pricing returns the assembler's pricing rules.
func (a *Assembler) Pricing() Pricing { return a.pricing }

// draft carries everything that identifies a quote before it is priced.
type draft struct {
	transcript  string
	userType    types.UserType
	region      string
	projectType types.ProjectType
	version     int
	supersedes  string
}

// Generate builds, stores and returns a quote for req.
//
// A transcript without any recognisable material yields a stored quote
// with no tasks, a zero total and zero confidence. Search failures other
// than degradation fail the whole quote and nothing is stored.
func (a *Assembler) Generate(ctx context.Context, req Request) (Quote, error) {
	var errs []error
	if strings.TrimSpace(req.Transcript) == "" {
		errs = append(errs, types.NewValidationError("transcript", req.Transcript, ErrEmptyTranscript))
	}
	userType, err := types.ParseUserType(req.UserType)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return Quote{}, err
	}
	return a.issue(ctx, draft{
		transcript:  strings.TrimSpace(req.Transcript),
		userType:    userType,
		region:      strings.TrimSpace(req.Region),
		projectType: types.ParseProjectType(req.ProjectType),
		version:     1,
	})
}

// Revise issues a new version of the quote priorID for a corrected
// transcript. The prior quote's user type, region and project type carry
// over; the prior quote itself is left untouched.
func (a *Assembler) Revise(ctx context.Context, priorID, transcript string) (Quote, error) {
	if strings.TrimSpace(transcript) == "" {
		return Quote{}, types.NewValidationError("transcript", transcript, ErrEmptyTranscript)
	}
	prior, err := a.repo.Get(ctx, priorID)
	if err != nil {
		return Quote{}, fmt.Errorf("quote: revise: %w", err)
	}
	return a.issue(ctx, draft{
		transcript:  strings.TrimSpace(transcript),
		userType:    prior.UserType,
		region:      prior.Region,
		projectType: prior.ProjectType,
		version:     prior.Version + 1,
		supersedes:  prior.ID,
	})
}

func (a *Assembler) issue(ctx context.Context, d draft) (Quote, error) {
	ctx, span := observe.StartSpan(ctx, "quote.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("quote.user_type", string(d.userType)),
		attribute.String("quote.region", d.region),
		attribute.Int("quote.version", d.version),
	)
	start := time.Now()

	needs := a.segmenter.Segment(d.transcript)
	picks, err := a.selectMaterials(ctx, needs, d.region)
	if err != nil {
		observe.Fail(span, err, "material search failed")
		return Quote{}, fmt.Errorf("quote: generate: %w", err)
	}

	regional := a.pricing.RegionalMultiplier(d.region)
	q := Quote{
		ID:               uuid.NewString(),
		Version:          d.version,
		Supersedes:       d.supersedes,
		Transcript:       d.transcript,
		UserType:         d.userType,
		Region:           d.region,
		ProjectType:      d.projectType,
		Tasks:            a.buildTasks(picks, regional),
		MarginPercentage: a.pricing.Margin,
		VATRate:          a.pricing.VATRate(d.projectType),
		CreatedAt:        a.now().UTC(),
	}
	a.totals(&q)
	for _, p := range picks {
		if p.match.Tier != search.TierSemantic {
			q.Degraded = true
		}
	}

	if err := a.repo.Save(ctx, q); err != nil {
		observe.Fail(span, err, "save failed")
		return Quote{}, fmt.Errorf("quote: save: %w", err)
	}

	projectType := string(q.ProjectType)
	if projectType == "" {
		projectType = "unspecified"
	}
	a.metrics.RecordQuote(ctx, projectType, string(q.UserType),
		q.TotalEstimate.InexactFloat64(), q.Confidence, time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("quote.id", q.ID),
		attribute.Int("quote.tasks", len(q.Tasks)),
	)
	observe.Logger(ctx).Info("quote issued",
		"quote_id", q.ID,
		"version", q.Version,
		"needs", len(needs),
		"tasks", len(q.Tasks),
		"total", q.TotalEstimate.StringFixed(2),
		"confidence", q.Confidence,
		"degraded", q.Degraded,
	)
	return q, nil
}

// pick is the material chosen for one need.
type pick struct {
	need  segment.Need
	match search.Match
}

// selectMaterials searches the catalog for every need, at most
// maxConcurrent at a time, and returns the chosen material per need in need
// order. Needs without any match are dropped.
func (a *Assembler) selectMaterials(ctx context.Context, needs []segment.Need, region string) ([]pick, error) {
	results := make([]*pick, len(needs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrent)
	for i, n := range needs {
		g.Go(func() error {
			res, err := a.searcher.Search(gctx, search.Request{
				Query:       n.Text,
				Limit:       a.candidatesPerNeed,
				ScoreRegion: region,
			})
			if err != nil {
				return fmt.Errorf("need %q: %w", n.Text, err)
			}
			if m, ok := best(n, res.Matches); ok {
				results[i] = &pick{need: n, match: m}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	picks := make([]pick, 0, len(needs))
	for i, p := range results {
		if p == nil {
			slog.Debug("no material for need", "need", needs[i].Text)
			continue
		}
		picks = append(picks, *p)
	}
	return picks, nil
}

// best returns the highest-confidence match, preferring matches of the
// need's own category. Ties keep search order.
func best(n segment.Need, matches []search.Match) (search.Match, bool) {
	var (
		top     search.Match
		found   bool
		topSame bool
	)
	for _, m := range matches {
		same := n.Category != "" && m.Record.Category == n.Category
		switch {
		case !found:
		case same && !topSame:
		case same == topSame && m.Confidence.Score > top.Confidence.Score:
		default:
			continue
		}
		top, found, topSame = m, true, same
	}
	return top, found
}

// taskBuilder accumulates the lines of one task together with their
// unrounded costs.
type taskBuilder struct {
	typ   segment.Task
	lines []Line
	costs []decimal.Decimal
}

func (b *taskBuilder) add(l Line, cost decimal.Decimal) {
	for i := range b.lines {
		if b.lines[i].MaterialID == l.MaterialID {
			b.lines[i].Quantity = b.lines[i].Quantity.Add(l.Quantity)
			b.costs[i] = b.costs[i].Add(cost)
			b.lines[i].Cost = b.costs[i].Round(2)
			return
		}
	}
	b.lines = append(b.lines, l)
	b.costs = append(b.costs, cost)
}

// buildTasks groups picks by task type, in order of first appearance, and
// prices every task.
func (a *Assembler) buildTasks(picks []pick, regional decimal.Decimal) []Task {
	var (
		builders []*taskBuilder
		byType   = make(map[segment.Task]*taskBuilder)
	)
	for _, p := range picks {
		b, ok := byType[p.need.Task]
		if !ok {
			b = &taskBuilder{typ: p.need.Task}
			byType[p.need.Task] = b
			builders = append(builders, b)
		}
		rec := p.match.Record
		qty := a.quantities.Estimate(p.need, rec)
		qm := a.pricing.QualityMultiplier(rec.QualityScore)
		cost := rec.UnitPrice.Mul(qty).Mul(qm)
		b.add(Line{
			MaterialID:        rec.ID,
			Name:              rec.Name,
			Vendor:            rec.Vendor,
			Region:            rec.Region,
			Unit:              rec.Unit,
			Quantity:          qty,
			UnitPrice:         rec.UnitPrice,
			QualityMultiplier: qm,
			Cost:              cost.Round(2),
			Need:              p.need.Text,
			Confidence:        p.match.Confidence,
			SearchTier:        p.match.Tier,
		}, cost)
	}

	tasks := make([]Task, 0, len(builders))
	for _, b := range builders {
		tasks = append(tasks, a.priceTask(b, regional))
	}
	return tasks
}

func (a *Assembler) priceTask(b *taskBuilder, regional decimal.Decimal) Task {
	material := decimal.Sum(decimal.Zero, b.costs...)
	price := material.
		Mul(decimal.NewFromInt(1).Add(a.pricing.Margin)).
		Mul(regional).
		Round(2)

	// Confidence of the materials, weighted by what each one costs.
	var weighted, weights, plain float64
	for i, l := range b.lines {
		w := b.costs[i].InexactFloat64()
		weighted += l.Confidence.Score * w
		weights += w
		plain += l.Confidence.Score
	}
	mean := plain / float64(len(b.lines))
	if weights > 0 {
		mean = weighted / weights
	}
	conf := a.pricing.TaskConfidence(b.typ, mean)

	dur := a.pricing.Duration(b.typ, len(b.lines))
	return Task{
		Type:           b.typ,
		Label:          label(b.typ, b.lines),
		Lines:          b.lines,
		Price:          price,
		Duration:       dur,
		LaborEstimate:  a.pricing.Labor(b.typ, dur, regional),
		Confidence:     conf,
		ConfidenceTier: confidence.TierFor(conf),
	}
}

// totals fills the quote's total, VAT and overall confidence from its
// tasks. Overall confidence weights each task by its share of the total.
func (a *Assembler) totals(q *Quote) {
	total := decimal.Zero
	for _, t := range q.Tasks {
		total = total.Add(t.Price)
	}
	q.TotalEstimate = total
	q.VATAmount = total.Mul(q.VATRate).Round(2)
	q.TotalWithVAT = total.Add(q.VATAmount)

	if len(q.Tasks) == 0 {
		q.Confidence = 0
		q.ConfidenceTier = confidence.TierFor(0)
		return
	}
	var weighted, plain float64
	for _, t := range q.Tasks {
		weighted += t.Confidence * t.Price.InexactFloat64()
		plain += t.Confidence
	}
	if total.IsPositive() {
		q.Confidence = weighted / total.InexactFloat64()
	} else {
		q.Confidence = plain / float64(len(q.Tasks))
	}
	q.ConfidenceTier = confidence.TierFor(q.Confidence)
}

// label names a task after its type and up to two of its materials.
func label(t segment.Task, lines []Line) string {
	base, ok := taskLabels[t]
	if !ok {
		base = taskLabels[segment.TaskGeneral]
	}
	names := make([]string, 0, 2)
	for _, l := range lines {
		if len(names) == 2 {
			break
		}
		names = append(names, l.Name)
	}
	if len(names) == 0 {
		return base
	}
	return base + " - " + strings.Join(names, ", ")
}
