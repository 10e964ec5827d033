// Package config provides the configuration schema, loader, embedding
// provider registry and file watcher for the renoquote server.
package config

import (
	"log/slog"
	"maps"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrWong99/renoquote/internal/confidence"
	"github.com/MrWong99/renoquote/internal/quote"
	"github.com/MrWong99/renoquote/internal/search"
	"github.com/MrWong99/renoquote/internal/segment"
	"github.com/MrWong99/renoquote/pkg/catalog"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto a [slog.Level]. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CatalogBackend selects where material records are stored.
type CatalogBackend string

const (
	CatalogMemory   CatalogBackend = "memory"
	CatalogPostgres CatalogBackend = "postgres"
	CatalogQdrant   CatalogBackend = "qdrant"
)

// IsValid reports whether b is a recognised catalog backend.
func (b CatalogBackend) IsValid() bool {
	switch b {
	case CatalogMemory, CatalogPostgres, CatalogQdrant:
		return true
	}
	return false
}

// StoreBackend selects where quotes or feedback entries are kept.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StoreFile     StoreBackend = "file"
	StorePostgres StoreBackend = "postgres"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Search        SearchConfig        `yaml:"search"`
	Confidence    ConfidenceConfig    `yaml:"confidence"`
	Pricing       PricingConfig       `yaml:"pricing"`
	Storage       StorageConfig       `yaml:"storage"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the API (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is the only setting applied without a
	// restart.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the API. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares the provider used for each external model.
type ProvidersConfig struct {
	// Embeddings serves the semantic search tier. When Name is empty the
	// search starts at the fuzzy tier.
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "ollama", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// CatalogConfig selects and seeds the material catalog.
type CatalogConfig struct {
	Backend CatalogBackend `yaml:"backend"`

	// Files are catalog seed YAML files imported at startup.
	Files []string `yaml:"files"`

	PostgresDSN      string `yaml:"postgres_dsn"`
	QdrantAddr       string `yaml:"qdrant_addr"`
	QdrantCollection string `yaml:"qdrant_collection"`

	// EmbeddingDimensions must match the embedding provider's output.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// SearchConfig tunes the tiered similarity search.
type SearchConfig struct {
	MinSimilarity    float64       `yaml:"min_similarity"`
	MaxLimit         int           `yaml:"max_limit"`
	CandidatePool    int           `yaml:"candidate_pool"`
	MaxCandidatePool int           `yaml:"max_candidate_pool"`
	EmbedTimeout     time.Duration `yaml:"embed_timeout"`

	// EmbedRateLimit is in requests per second; 0 disables limiting.
	EmbedRateLimit float64 `yaml:"embed_rate_limit"`
	EmbedBurst     int     `yaml:"embed_burst"`

	// DegradedCeiling caps the confidence of emergency matches.
	DegradedCeiling float64 `yaml:"degraded_ceiling"`
}

// ConfidenceConfig holds the scorer settings. They are fixed for the life
// of the process.
type ConfidenceConfig struct {
	Weights           confidence.Weights `yaml:"weights"`
	RegionalPartial   float64            `yaml:"regional_partial"`
	UnknownVendor     float64            `yaml:"unknown_vendor"`
	VendorReliability map[string]float64 `yaml:"vendor_reliability"`

	// RegionAreas maps cities to the region containing them. It serves both
	// region matching and regional pricing.
	RegionAreas map[string]string `yaml:"region_areas"`
}

// PricingConfig holds the quote pricing rules. Map entries override the
// built-in table key by key.
type PricingConfig struct {
	Margin        *decimal.Decimal `yaml:"margin"`
	VATRenovation *decimal.Decimal `yaml:"vat_renovation"`
	VATNewBuild   *decimal.Decimal `yaml:"vat_new_build"`

	QualityHighThreshold  int             `yaml:"quality_high_threshold"`
	QualityHighMultiplier decimal.Decimal `yaml:"quality_high_multiplier"`
	QualityLowThreshold   int             `yaml:"quality_low_threshold"`
	QualityLowMultiplier  decimal.Decimal `yaml:"quality_low_multiplier"`

	RegionalMultipliers map[string]decimal.Decimal           `yaml:"regional_multipliers"`
	BaseQuantities      map[catalog.Category]decimal.Decimal `yaml:"base_quantities"`
	LaborRates          map[segment.Task]decimal.Decimal     `yaml:"labor_rates"`
	TaskPriors          map[segment.Task]float64             `yaml:"task_priors"`
	TaskPriorWeight     *float64                             `yaml:"task_prior_weight"`

	MaxConcurrentSearches int `yaml:"max_concurrent_searches"`
	CandidatesPerNeed     int `yaml:"candidates_per_need"`
}

// StorageConfig selects the quote and feedback repositories.
type StorageConfig struct {
	// Quotes is memory or postgres.
	Quotes StoreBackend `yaml:"quotes"`

	// Feedback is memory, file or postgres.
	Feedback     StoreBackend `yaml:"feedback"`
	FeedbackFile string       `yaml:"feedback_file"`

	// PostgresDSN defaults to catalog.postgres_dsn.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EventsConfig configures feedback event publishing. An empty NATSURL
// disables publishing.
type EventsConfig struct {
	NATSURL         string `yaml:"nats_url"`
	FeedbackSubject string `yaml:"feedback_subject"`
}

// ObservabilityConfig configures telemetry.
type ObservabilityConfig struct {
	ServiceName string `yaml:"service_name"`

	// MetricsAddr is the listen address of the Prometheus endpoint. Empty
	// disables it.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default values applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr          = ":8080"
	DefaultEmbeddingDimensions = 768
	DefaultQdrantCollection    = "materials"
	DefaultFeedbackFile        = "feedback.jsonl"
	DefaultFeedbackSubject     = "renoquote.feedback.recorded"
	DefaultServiceName         = "renoquote"
)

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}

	if c.Catalog.Backend == "" {
		c.Catalog.Backend = CatalogMemory
	}
	if c.Catalog.EmbeddingDimensions == 0 {
		c.Catalog.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if c.Catalog.QdrantCollection == "" {
		c.Catalog.QdrantCollection = DefaultQdrantCollection
	}

	sd := search.DefaultConfig()
	s := &c.Search
	if s.MinSimilarity == 0 {
		s.MinSimilarity = sd.MinSimilarity
	}
	if s.MaxLimit == 0 {
		s.MaxLimit = sd.MaxLimit
	}
	if s.CandidatePool == 0 {
		s.CandidatePool = sd.CandidatePool
	}
	if s.MaxCandidatePool == 0 {
		s.MaxCandidatePool = max(sd.MaxCandidatePool, s.CandidatePool)
	}
	if s.EmbedTimeout == 0 {
		s.EmbedTimeout = sd.EmbedTimeout
	}
	if s.EmbedBurst == 0 {
		s.EmbedBurst = 1
	}
	if s.DegradedCeiling == 0 {
		s.DegradedCeiling = sd.DegradedCeiling
	}

	pd := quote.DefaultPricing()
	cf := &c.Confidence
	if cf.Weights == (confidence.Weights{}) {
		cf.Weights = confidence.DefaultWeights()
	}
	if cf.RegionalPartial == 0 {
		cf.RegionalPartial = 0.5
	}
	if cf.UnknownVendor == 0 {
		cf.UnknownVendor = 0.5
	}
	cf.VendorReliability = overlay(confidence.DefaultVendorReliability(), cf.VendorReliability)
	cf.RegionAreas = overlay(pd.RegionAreas, cf.RegionAreas)

	p := &c.Pricing
	if p.Margin == nil {
		p.Margin = &pd.Margin
	}
	if p.VATRenovation == nil {
		p.VATRenovation = &pd.VATRenovation
	}
	if p.VATNewBuild == nil {
		p.VATNewBuild = &pd.VATNewBuild
	}
	if p.QualityHighThreshold == 0 {
		p.QualityHighThreshold = pd.QualityHighThreshold
	}
	if p.QualityHighMultiplier.IsZero() {
		p.QualityHighMultiplier = pd.QualityHighMultiplier
	}
	if p.QualityLowThreshold == 0 {
		p.QualityLowThreshold = pd.QualityLowThreshold
	}
	if p.QualityLowMultiplier.IsZero() {
		p.QualityLowMultiplier = pd.QualityLowMultiplier
	}
	p.RegionalMultipliers = overlay(pd.RegionalMultipliers, p.RegionalMultipliers)
	p.BaseQuantities = overlay(quote.DefaultQuantities().Base, p.BaseQuantities)
	p.LaborRates = overlay(pd.LaborRates, p.LaborRates)
	p.TaskPriors = overlay(pd.TaskPriors, p.TaskPriors)
	if p.TaskPriorWeight == nil {
		w := pd.TaskPriorWeight
		p.TaskPriorWeight = &w
	}
	if p.MaxConcurrentSearches == 0 {
		p.MaxConcurrentSearches = 4
	}
	if p.CandidatesPerNeed == 0 {
		p.CandidatesPerNeed = 3
	}

	if c.Storage.Quotes == "" {
		c.Storage.Quotes = StoreMemory
	}
	if c.Storage.Feedback == "" {
		c.Storage.Feedback = StoreMemory
	}
	if c.Storage.FeedbackFile == "" {
		c.Storage.FeedbackFile = DefaultFeedbackFile
	}
	if c.Storage.PostgresDSN == "" {
		c.Storage.PostgresDSN = c.Catalog.PostgresDSN
	}

	if c.Events.FeedbackSubject == "" {
		c.Events.FeedbackSubject = DefaultFeedbackSubject
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = DefaultServiceName
	}
}

// overlay returns a copy of base with every entry of override applied.
func overlay[K comparable, V any](base, override map[K]V) map[K]V {
	out := make(map[K]V, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}

// SearchOptions converts the search section for [search.New].
func (c *Config) SearchOptions() search.Config {
	cfg := search.DefaultConfig()
	cfg.MinSimilarity = c.Search.MinSimilarity
	cfg.MaxLimit = c.Search.MaxLimit
	cfg.CandidatePool = c.Search.CandidatePool
	cfg.MaxCandidatePool = c.Search.MaxCandidatePool
	cfg.EmbedTimeout = c.Search.EmbedTimeout
	cfg.EmbedRateLimit = c.Search.EmbedRateLimit
	cfg.EmbedBurst = c.Search.EmbedBurst
	cfg.DegradedCeiling = c.Search.DegradedCeiling
	return cfg
}

// ScorerOptions converts the confidence section for [confidence.NewScorer].
func (c *Config) ScorerOptions() confidence.Config {
	return confidence.Config{
		Weights:           c.Confidence.Weights,
		RegionalPartial:   c.Confidence.RegionalPartial,
		UnknownVendor:     c.Confidence.UnknownVendor,
		VendorReliability: maps.Clone(c.Confidence.VendorReliability),
		RegionAreas:       maps.Clone(c.Confidence.RegionAreas),
	}
}

// PricingRules converts the pricing section into [quote.Pricing]. Base days
// are not configurable. Call after [Config.ApplyDefaults].
func (c *Config) PricingRules() quote.Pricing {
	p := quote.DefaultPricing()
	pc := c.Pricing
	if pc.Margin != nil {
		p.Margin = *pc.Margin
	}
	if pc.VATRenovation != nil {
		p.VATRenovation = *pc.VATRenovation
	}
	if pc.VATNewBuild != nil {
		p.VATNewBuild = *pc.VATNewBuild
	}
	p.QualityHighThreshold = pc.QualityHighThreshold
	p.QualityHighMultiplier = pc.QualityHighMultiplier
	p.QualityLowThreshold = pc.QualityLowThreshold
	p.QualityLowMultiplier = pc.QualityLowMultiplier
	p.RegionalMultipliers = maps.Clone(pc.RegionalMultipliers)
	p.RegionAreas = maps.Clone(c.Confidence.RegionAreas)
	p.LaborRates = maps.Clone(pc.LaborRates)
	p.TaskPriors = maps.Clone(pc.TaskPriors)
	if pc.TaskPriorWeight != nil {
		p.TaskPriorWeight = *pc.TaskPriorWeight
	}
	return p
}

// Quantities returns the quantity estimator described by the pricing
// section.
func (c *Config) Quantities() quote.LexiconQuantities {
	q := quote.DefaultQuantities()
	q.Base = maps.Clone(c.Pricing.BaseQuantities)
	return q
}
