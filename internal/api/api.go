// Package api binds the pricing engine to HTTP.
//
// The handlers are a thin JSON layer over [search.Searcher],
// [quote.Assembler] and [feedback.Recorder]: they decode query strings and
// bodies, call the engine, and map its sentinel errors onto status codes.
// Routes use the method and wildcard patterns of [http.ServeMux], so
// [observe.Middleware] labels latency by route pattern rather than by raw
// path.
package api

import (
	"context"
	"net/http"

	"github.com/MrWong99/renoquote/internal/feedback"
	"github.com/MrWong99/renoquote/internal/quote"
	"github.com/MrWong99/renoquote/internal/search"
)

// MaterialSearcher answers material searches. *search.Searcher implements
// it.
type MaterialSearcher interface {
	Search(ctx context.Context, req search.Request) (search.Result, error)
}

// ProposalGenerator issues and revises quotes. *quote.Assembler implements
// it.
type ProposalGenerator interface {
	Generate(ctx context.Context, req quote.Request) (quote.Quote, error)
	Revise(ctx context.Context, priorID, transcript string) (quote.Quote, error)
}

// FeedbackService records and reports feedback. *feedback.Recorder
// implements it.
type FeedbackService interface {
	Record(ctx context.Context, req feedback.Request) (feedback.Entry, error)
	History(ctx context.Context, quoteID string) ([]feedback.Entry, error)
	Aggregates(ctx context.Context, by feedback.GroupBy) ([]feedback.Aggregate, error)
	Analytics(ctx context.Context, opts feedback.AnalyticsOptions) (feedback.Analytics, error)
}

var (
	_ MaterialSearcher  = (*search.Searcher)(nil)
	_ ProposalGenerator = (*quote.Assembler)(nil)
	_ FeedbackService   = (*feedback.Recorder)(nil)
)

// DefaultSearchLimit is the limit used when a search request names none.
const DefaultSearchLimit = 10

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server holds the engine components the handlers call.
type Server struct {
	searcher  MaterialSearcher
	proposals ProposalGenerator
	quotes    quote.Repository
	feedback  FeedbackService
}

// New creates a Server. All arguments are required.
func New(searcher MaterialSearcher, proposals ProposalGenerator, quotes quote.Repository, fb FeedbackService) *Server {
	return &Server{
		searcher:  searcher,
		proposals: proposals,
		quotes:    quotes,
		feedback:  fb,
	}
}

// Register adds every API route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/materials/search", s.searchMaterials)

	mux.HandleFunc("POST /v1/proposals", s.generateProposal)
	mux.HandleFunc("GET /v1/quotes", s.listQuotes)
	mux.HandleFunc("GET /v1/quotes/{id}", s.getQuote)
	mux.HandleFunc("HEAD /v1/quotes/{id}", s.headQuote)
	mux.HandleFunc("POST /v1/quotes/{id}/revisions", s.reviseQuote)
	mux.HandleFunc("GET /v1/quotes/{id}/feedback", s.quoteFeedback)

	mux.HandleFunc("POST /v1/feedback", s.recordFeedback)
	mux.HandleFunc("GET /v1/feedback/aggregates", s.feedbackAggregates)
	mux.HandleFunc("GET /v1/feedback/analytics", s.feedbackAnalytics)
}

// Handler returns a new mux serving only the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}
