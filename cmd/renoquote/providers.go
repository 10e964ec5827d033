package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/renoquote/internal/app"
	"github.com/MrWong99/renoquote/internal/config"
	"github.com/MrWong99/renoquote/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/renoquote/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/renoquote/pkg/provider/embeddings/openai"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the embedding provider factories that ship
// with renoquote into reg. Each factory receives the configured entry and
// the catalog's embedding dimensionality.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry, dims int) (embeddings.Provider, error) {
		opts := []oaembed.Option{oaembed.WithDimensions(dims)}
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaembed.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaembed.WithTimeout(d))
		}
		if n, ok := optInt(entry.Options, "max_retries"); ok {
			opts = append(opts, oaembed.WithMaxRetries(n))
		}
		if n, ok := optInt(entry.Options, "batch_size"); ok {
			opts = append(opts, oaembed.WithBatchSize(n))
		}
		if n, ok := optInt(entry.Options, "concurrency"); ok {
			opts = append(opts, oaembed.WithConcurrency(n))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry, dims int) (embeddings.Provider, error) {
		opts := []ollamaembed.Option{ollamaembed.WithDimensions(dims)}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ollamaembed.WithTimeout(d))
		}
		if ka := optDuration(entry.Options, "keep_alive"); ka != 0 {
			opts = append(opts, ollamaembed.WithKeepAlive(ka))
		}
		if n, ok := optInt(entry.Options, "batch_size"); ok {
			opts = append(opts, ollamaembed.WithBatchSize(n))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	for _, name := range reg.Names() {
		slog.Debug("registered provider", "kind", "embeddings", "name", name)
	}
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings, cfg.Catalog.EmbeddingDimensions)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			return nil, fmt.Errorf("embeddings provider %q is not available (known: %v)", name, reg.Names())
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", p.ModelID())
	}

	return ps, nil
}

// optString extracts a string value from a provider options map.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// optInt extracts an integer from a provider options map. YAML decodes
// whole numbers as int.
func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// optDuration parses a duration string such as "30s". Invalid values are
// logged and ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid provider option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
