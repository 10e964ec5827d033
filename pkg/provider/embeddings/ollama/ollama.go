// Package ollama embeds text with a local Ollama server through its official
// Go client.
//
// nomic-embed-text (768 dimensions) is the default catalog model; it copes
// with the mixed French and English vocabulary of renovation catalogs.
//
//	p, err := ollama.New("", "nomic-embed-text")
//	vec, err := p.Embed(ctx, "colle carrelage étanche")
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/MrWong99/renoquote/pkg/provider/embeddings"
)

// DefaultBaseURL is where a local Ollama listens by default.
const DefaultBaseURL = "http://localhost:11434"

const defaultBatchSize = 64

// ErrUnexpectedStatus wraps error responses from the server.
var ErrUnexpectedStatus = errors.New("unexpected status")

var _ embeddings.Provider = (*Provider)(nil)

// Provider embeds text with an Ollama model.
//
// The vector length comes from WithDimensions, then from a table of known
// models, and otherwise from one probe request the first time Dimensions is
// called.
type Provider struct {
	client    *api.Client
	model     string
	keepAlive *api.Duration
	batchSize int

	dimensions int
	probeOnce  sync.Once
}

type settings struct {
	hc         *http.Client
	timeout    time.Duration
	dimensions int
	keepAlive  *api.Duration
	batchSize  int
}

// Option configures a Provider.
type Option func(*settings)

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithDimensions pins the vector length and disables probing.
func WithDimensions(n int) Option {
	return func(s *settings) { s.dimensions = n }
}

// WithKeepAlive sets how long the server keeps the model loaded after a
// request. A negative value keeps it loaded indefinitely.
func WithKeepAlive(d time.Duration) Option {
	return func(s *settings) { s.keepAlive = &api.Duration{Duration: d} }
}

// WithBatchSize caps the inputs sent per request by EmbedBatch.
func WithBatchSize(n int) Option {
	return func(s *settings) { s.batchSize = n }
}

// WithHTTPClient replaces the HTTP client; WithTimeout is then ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) { s.hc = hc }
}

// New returns a Provider for model on the server at baseURL, or
// DefaultBaseURL when baseURL is empty.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama embeddings: model is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: base url: %w", err)
	}

	s := settings{batchSize: defaultBatchSize}
	for _, o := range opts {
		o(&s)
	}
	if s.hc == nil {
		s.hc = &http.Client{Timeout: s.timeout}
	}

	dims := s.dimensions
	if dims == 0 {
		dims = knownDimensions(model)
	}
	return &Provider{
		client:     api.NewClient(u, s.hc),
		model:      model,
		keepAlive:  s.keepAlive,
		batchSize:  s.batchSize,
		dimensions: dims,
	}, nil
}

// Embed embeds a single query.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in sequential requests of at most the configured
// batch size. A local server gains nothing from parallel requests.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := embeddings.EmbedInChunks(ctx, texts, p.batchSize, 1, p.embed)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed batch: %w", err)
	}
	return vecs, nil
}

func (p *Provider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model:     p.model,
		Input:     texts,
		KeepAlive: p.keepAlive,
	})
	if err != nil {
		return nil, statusError(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings, want %d", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// Dimensions reports the vector length; 0 when an unknown model could not
// be probed.
func (p *Provider) Dimensions() int {
	p.probeOnce.Do(func() {
		if p.dimensions != 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if vecs, err := p.embed(ctx, []string{"probe"}); err == nil {
			p.dimensions = len(vecs[0])
		}
	})
	return p.dimensions
}

// ModelID returns the model name.
func (p *Provider) ModelID() string { return p.model }

// Ping asks the server for its version.
func (p *Provider) Ping(ctx context.Context) error {
	if _, err := p.client.Version(ctx); err != nil {
		return fmt.Errorf("ollama embeddings: ping: %w", statusError(err))
	}
	return nil
}

func statusError(err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, se.StatusCode, se.ErrorMessage)
	}
	return err
}

// knownDimensions returns the output size of common embedding models, or 0.
func knownDimensions(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "nomic-embed-text"):
		return 768
	case strings.Contains(m, "mxbai-embed-large"), strings.Contains(m, "bge-m3"):
		return 1024
	case strings.Contains(m, "all-minilm"):
		return 384
	}
	return 0
}
