package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"embeddings": {"ollama", "openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Validate checks that cfg, with defaults applied, contains a coherent set
// of values. It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Catalog
	cat := cfg.Catalog
	switch {
	case !cat.Backend.IsValid():
		errs = append(errs, fmt.Errorf("catalog.backend %q is invalid; valid values: memory, postgres, qdrant", cat.Backend))
	case cat.Backend == CatalogPostgres && cat.PostgresDSN == "":
		errs = append(errs, errors.New("catalog.postgres_dsn is required when backend is postgres"))
	case cat.Backend == CatalogQdrant && cat.QdrantAddr == "":
		errs = append(errs, errors.New("catalog.qdrant_addr is required when backend is qdrant"))
	case cat.Backend == CatalogMemory && len(cat.Files) == 0:
		slog.Warn("catalog.backend is memory but no catalog.files are configured; every search will report the store unavailable")
	}
	if cat.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("catalog.embedding_dimensions %d must be > 0", cat.EmbeddingDimensions))
	}

	// Search
	s := cfg.Search
	if s.MinSimilarity <= 0 || s.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("search.min_similarity %v is out of range (0, 1]", s.MinSimilarity))
	}
	if s.DegradedCeiling <= 0 || s.DegradedCeiling > 1 {
		errs = append(errs, fmt.Errorf("search.degraded_ceiling %v is out of range (0, 1]", s.DegradedCeiling))
	}
	if s.MaxLimit < 1 {
		errs = append(errs, fmt.Errorf("search.max_limit %d must be >= 1", s.MaxLimit))
	}
	if s.CandidatePool < 1 || s.MaxCandidatePool < s.CandidatePool {
		errs = append(errs, fmt.Errorf("search.candidate_pool %d and max_candidate_pool %d must satisfy 1 <= candidate_pool <= max_candidate_pool",
			s.CandidatePool, s.MaxCandidatePool))
	}
	if s.EmbedTimeout < 0 {
		errs = append(errs, fmt.Errorf("search.embed_timeout %s must be >= 0", s.EmbedTimeout))
	}
	if s.EmbedRateLimit < 0 {
		errs = append(errs, fmt.Errorf("search.embed_rate_limit %v must be >= 0", s.EmbedRateLimit))
	}

	// Confidence
	if err := cfg.Confidence.Weights.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("confidence.weights: %w", err))
	}
	for name, v := range map[string]float64{
		"regional_partial": cfg.Confidence.RegionalPartial,
		"unknown_vendor":   cfg.Confidence.UnknownVendor,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("confidence.%s %v is out of range [0, 1]", name, v))
		}
	}
	for vendor, v := range cfg.Confidence.VendorReliability {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("confidence.vendor_reliability[%q] %v is out of range [0, 1]", vendor, v))
		}
	}

	// Pricing
	if err := cfg.PricingRules().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pricing: %w", err))
	}
	if cfg.Pricing.MaxConcurrentSearches < 1 {
		errs = append(errs, fmt.Errorf("pricing.max_concurrent_searches %d must be >= 1", cfg.Pricing.MaxConcurrentSearches))
	}
	if n := cfg.Pricing.CandidatesPerNeed; n < 1 || n > s.MaxLimit {
		errs = append(errs, fmt.Errorf("pricing.candidates_per_need %d must be in [1, search.max_limit]", n))
	}
	for c, q := range cfg.Pricing.BaseQuantities {
		if !q.IsPositive() {
			errs = append(errs, fmt.Errorf("pricing.base_quantities[%q] %s must be > 0", c, q))
		}
	}

	// Storage
	st := cfg.Storage
	if st.Quotes != StoreMemory && st.Quotes != StorePostgres {
		errs = append(errs, fmt.Errorf("storage.quotes %q is invalid; valid values: memory, postgres", st.Quotes))
	}
	switch st.Feedback {
	case StoreMemory, StoreFile, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.feedback %q is invalid; valid values: memory, file, postgres", st.Feedback))
	}
	if (st.Quotes == StorePostgres || st.Feedback == StorePostgres) && st.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn (or catalog.postgres_dsn) is required for postgres storage"))
	}
	if st.Quotes == StoreMemory && st.Feedback != StoreMemory {
		slog.Warn("quotes are kept in memory while feedback is persisted; feedback will reference quotes lost on restart")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
