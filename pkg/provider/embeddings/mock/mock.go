// Package mock provides a test double for the embeddings.Provider interface.
//
// Provider either returns fixed vectors or delegates to EmbedFunc, which lets
// a test map query texts onto hand-picked directions:
//
//	p := &mock.Provider{
//	    DimensionsValue: 2,
//	    EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
//	        if strings.Contains(text, "glue") {
//	            return []float32{1, 0}, nil
//	        }
//	        return []float32{0, 1}, nil
//	    },
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/renoquote/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// EmbedFunc, when set, computes every vector for Embed and EmbedBatch.
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedResult and EmbedErr are returned by Embed when EmbedFunc is nil.
	EmbedResult []float32
	EmbedErr    error

	// EmbedBatchErr, if non-nil, fails EmbedBatch before EmbedFunc is used.
	EmbedBatchErr error

	DimensionsValue int
	ModelIDValue    string

	// --- Call records ---

	// EmbedCalls records the text of every Embed call in order.
	EmbedCalls []string

	// EmbedBatchCalls records a copy of every EmbedBatch input.
	EmbedBatchCalls [][]string
}

// Embed records the call and returns a vector from EmbedFunc or EmbedResult.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	fn, res, err := p.EmbedFunc, p.EmbedResult, p.EmbedErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return res, err
}

// EmbedBatch records the call and embeds every text. Without EmbedFunc each
// text gets EmbedResult.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, slices.Clone(texts))
	fn, res, err := p.EmbedFunc, p.EmbedResult, p.EmbedBatchErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if fn == nil {
			out[i] = res
			continue
		}
		v, err := fn(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Calls returns a copy of the texts passed to Embed so far.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.EmbedCalls)
}
