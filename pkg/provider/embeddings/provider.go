// Package embeddings defines the Provider interface for text embedding
// backends.
//
// The pricing engine embeds two kinds of text: catalog records at import time
// (name plus description) and material queries at search time. Both must be
// embedded by the same model so that cosine similarity between them is
// meaningful; the catalog's configured dimensionality is checked against
// [Provider.Dimensions] at startup.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Provider is the abstraction over any text-embedding backend.
type Provider interface {
	// Embed returns the embedding of a single text. The text is passed
	// through verbatim; any model-specific prefix is the caller's concern.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one provider call. The i-th result belongs
	// to texts[i]. On error no partial result is returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for example
	// "nomic-embed-text" or "text-embedding-3-small".
	ModelID() string
}

// CheckDimensions returns an error when p produces vectors of a different
// length than want. A provider reporting 0 (not yet known) passes.
func CheckDimensions(p Provider, want int) error {
	got := p.Dimensions()
	if got != 0 && want != 0 && got != want {
		return fmt.Errorf("embeddings: model %q produces %d dimensions, catalog expects %d", p.ModelID(), got, want)
	}
	return nil
}

// BatchFunc embeds one request's worth of texts.
type BatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// EmbedInChunks splits texts into runs of at most size and embeds up to
// parallel runs at a time. The result keeps the order of texts. The first
// failing run cancels the others and its error is returned.
func EmbedInChunks(ctx context.Context, texts []string, size, parallel int, embed BatchFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if size <= 0 || size > len(texts) {
		size = len(texts)
	}
	if parallel <= 0 {
		parallel = 1
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		g.Go(func() error {
			vecs, err := embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("texts %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("texts %d-%d: got %d embeddings, want %d", start, end-1, len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
