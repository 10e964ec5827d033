// Package openai embeds catalog and query text through the OpenAI embeddings
// API or any gateway that speaks it.
//
// The text-embedding-3 models can shorten their output, so a catalog stored
// in a 768-dimension pgvector column can still use them via WithDimensions.
// Large imports are split into requests of at most WithBatchSize inputs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/renoquote/pkg/provider/embeddings"
)

// DefaultModel is used when New receives an empty model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// The API accepts up to 2048 inputs per request; smaller requests retry
// more cheaply.
const (
	defaultBatchSize   = 256
	defaultConcurrency = 4
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider embeds text with an OpenAI-compatible endpoint.
type Provider struct {
	client      oai.Client
	model       string
	dimensions  int
	batchSize   int
	concurrency int
}

type settings struct {
	requestOpts []option.RequestOption
	dimensions  int
	batchSize   int
	concurrency int
}

// Option configures a Provider.
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible gateway.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.requestOpts = append(s.requestOpts, option.WithBaseURL(url)) }
}

// WithOrganization sends the organization header.
func WithOrganization(org string) Option {
	return func(s *settings) { s.requestOpts = append(s.requestOpts, option.WithOrganization(org)) }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.requestOpts = append(s.requestOpts, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// WithMaxRetries sets the client's retry budget. Default: 2.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.requestOpts = append(s.requestOpts, option.WithMaxRetries(n)) }
}

// WithDimensions requests vectors of n dimensions.
func WithDimensions(n int) Option {
	return func(s *settings) { s.dimensions = n }
}

// WithBatchSize caps the inputs sent per request by EmbedBatch.
func WithBatchSize(n int) Option {
	return func(s *settings) { s.batchSize = n }
}

// WithConcurrency caps the requests EmbedBatch keeps in flight.
func WithConcurrency(n int) Option {
	return func(s *settings) { s.concurrency = n }
}

// New returns a Provider for model, or DefaultModel when model is empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai embeddings: api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	s := settings{
		requestOpts: []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(2)},
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o(&s)
	}

	return &Provider{
		client:      oai.NewClient(s.requestOpts...),
		model:       model,
		dimensions:  s.dimensions,
		batchSize:   s.batchSize,
		concurrency: s.concurrency,
	}, nil
}

// Embed embeds a single query.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.request(ctx, oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)}, 1)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most the configured batch size.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := embeddings.EmbedInChunks(ctx, texts, p.batchSize, p.concurrency,
		func(ctx context.Context, chunk []string) ([][]float32, error) {
			return p.request(ctx, oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: chunk}, len(chunk))
		})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed batch: %w", err)
	}
	return vecs, nil
}

// request sends one embeddings call expecting n vectors. Vectors are placed
// by the index the API reports.
func (p *Provider) request(ctx context.Context, input oai.EmbeddingNewParamsInputUnion, n int) ([][]float32, error) {
	params := oai.EmbeddingNewParams{Model: p.model, Input: input}
	if p.dimensions > 0 {
		params.Dimensions = param.NewOpt(int64(p.dimensions))
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != n {
		return nil, fmt.Errorf("got %d embeddings, want %d", len(resp.Data), n)
	}

	out := make([][]float32, n)
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= n || out[d.Index] != nil {
			return nil, fmt.Errorf("bad embedding index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// Dimensions reports the requested size, or the model's native size.
func (p *Provider) Dimensions() int {
	if p.dimensions > 0 {
		return p.dimensions
	}
	if strings.Contains(strings.ToLower(p.model), "text-embedding-3-large") {
		return 3072
	}
	// text-embedding-3-small, ada-002 and most gateways.
	return 1536
}

// ModelID returns the model name.
func (p *Provider) ModelID() string { return p.model }

// Ping checks that the API key can see the configured model.
func (p *Provider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.Get(ctx, p.model); err != nil {
		return fmt.Errorf("openai embeddings: ping: %w", err)
	}
	return nil
}
