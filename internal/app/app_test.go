package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/renoquote/internal/api"
	"github.com/MrWong99/renoquote/internal/app"
	"github.com/MrWong99/renoquote/internal/config"
	"github.com/MrWong99/renoquote/internal/feedback"
	"github.com/MrWong99/renoquote/internal/observe"
	"github.com/MrWong99/renoquote/internal/quote"
	"github.com/MrWong99/renoquote/internal/search"
	embedmock "github.com/MrWong99/renoquote/pkg/provider/embeddings/mock"
)

const seedYAML = `
catalog:
  name: test
  currency: EUR
materials:
  - id: glue
    name: HydroFix Waterproof Adhesive
    description: Waterproof tile glue for bathrooms
    unit_price: 18.90
    unit: kg
    region: Île-de-France
    vendor: Leroy Merlin
    category: adhesives
    quality_score: 8
    source: test
    updated_at: 2025-03-01T00:00:00Z
  - id: paint
    name: Matte wall paint
    description: White interior paint
    unit_price: 32.50
    unit: L
    region: Bretagne
    vendor: Castorama
    category: paints
    quality_score: 6
    source: test
    updated_at: 2025-03-01T00:00:00Z
`

// writeSeed writes the seed catalog into a temp dir and returns its path.
func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// testConfig returns a memory-backed config with the seed catalog.
func testConfig(t *testing.T, dims int) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server:  config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Catalog: config.CatalogConfig{Files: []string{writeSeed(t)}, EmbeddingDimensions: dims},
	}
	cfg.ApplyDefaults()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

// axisEmbedder maps glue-like texts onto x and everything else onto y.
func axisEmbedder() *embedmock.Provider {
	return &embedmock.Provider{
		DimensionsValue: 2,
		ModelIDValue:    "axis",
		EmbedFunc: func(_ context.Context, text string) ([]float32, error) {
			lower := strings.ToLower(text)
			if strings.Contains(lower, "glue") || strings.Contains(lower, "adhesive") {
				return []float32{1, 0}, nil
			}
			return []float32{0, 1}, nil
		},
	}
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	opts = append([]app.Option{app.WithMetrics(m)}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_SemanticSearchOverSeedCatalog(t *testing.T) {
	t.Parallel()

	embedder := axisEmbedder()
	a := newApp(t, testConfig(t, 2), &app.Providers{Embeddings: embedder})

	rec := serve(t, a.Handler(), http.MethodGet, "/v1/materials/search?query=waterproof+glue&limit=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusOK, rec.Body)
	}
	var resp api.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Tier != search.TierSemantic || resp.Degraded {
		t.Errorf("Tier/Degraded = %s/%v, want semantic/false", resp.Tier, resp.Degraded)
	}
	if len(resp.Matches) == 0 || resp.Matches[0].ID != "glue" {
		t.Fatalf("matches = %+v, want glue first", resp.Matches)
	}
	if resp.Matches[0].SimilarityScore != 1 {
		t.Errorf("similarity = %v, want 1", resp.Matches[0].SimilarityScore)
	}

	if got := len(embedder.EmbedBatchCalls); got != 1 {
		t.Errorf("EmbedBatch calls = %d, want 1 for the seed import", got)
	}
	if got := len(embedder.Calls()); got != 1 {
		t.Errorf("Embed calls = %d, want 1 for the query", got)
	}
}

func TestNew_WithoutEmbedderFallsBackToFuzzy(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t, 2), nil)

	res, err := a.Searcher().Search(context.Background(), search.Request{Query: "waterproof adhesive", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Tier != search.TierFuzzy || !res.Degraded {
		t.Errorf("Tier/Degraded = %s/%v, want fuzzy/true", res.Tier, res.Degraded)
	}
	if len(res.Matches) == 0 || res.Matches[0].Record.ID != "glue" {
		t.Errorf("matches = %+v, want glue first", res.Matches)
	}
}

func TestNew_QuoteAndFeedbackFlow(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, 2)
	cfg.Storage.Feedback = config.StoreFile
	cfg.Storage.FeedbackFile = filepath.Join(t.TempDir(), "feedback.jsonl")
	quotes := quote.NewMemRepository()
	a := newApp(t, cfg, &app.Providers{Embeddings: axisEmbedder()}, app.WithQuoteRepository(quotes))

	rec := serve(t, a.Handler(), http.MethodPost, "/v1/proposals",
		`{"transcript":"Tile the bathroom with waterproof glue","user_type":"contractor","region":"Paris","project_type":"renovation"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("proposal status = %d, want %d; body %s", rec.Code, http.StatusCreated, rec.Body)
	}
	var q quote.Quote
	if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok, _ := quotes.Exists(context.Background(), q.ID); !ok {
		t.Fatalf("quote %s not saved in the injected repository", q.ID)
	}

	e, err := a.Recorder().Record(context.Background(), feedback.Request{
		QuoteID: q.ID, UserType: "client", Verdict: "accepted",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	data, err := os.ReadFile(cfg.Storage.FeedbackFile)
	if err != nil {
		t.Fatalf("feedback file: %v", err)
	}
	if !strings.Contains(string(data), e.ID) {
		t.Errorf("feedback file does not contain entry %s", e.ID)
	}
}

func TestNew_HealthRoutes(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t, 2), nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		if rec := serve(t, a.Handler(), http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*config.Config)
		providers *app.Providers
	}{
		{
			name:      "embedding dimension mismatch",
			mutate:    func(c *config.Config) { c.Catalog.EmbeddingDimensions = 768 },
			providers: &app.Providers{Embeddings: axisEmbedder()},
		},
		{
			name:   "missing seed file",
			mutate: func(c *config.Config) { c.Catalog.Files = []string{"/nonexistent/seed.yaml"} },
		},
		{
			name: "embedding failure during import",
			providers: &app.Providers{Embeddings: &embedmock.Provider{
				DimensionsValue: 2,
				EmbedBatchErr:   errors.New("model offline"),
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t, 2)
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			m, err := observe.NewMetrics(noop.NewMeterProvider())
			if err != nil {
				t.Fatalf("NewMetrics: %v", err)
			}
			if _, err := app.New(context.Background(), cfg, tt.providers, app.WithMetrics(m)); err == nil {
				t.Error("New() succeeded, want error")
			}
		})
	}
}

func TestApp_Reload(t *testing.T) {
	t.Parallel()

	var lv slog.LevelVar
	old := testConfig(t, 2)
	a := newApp(t, old, nil, app.WithLevelVar(&lv))

	updated := *old
	updated.Server.LogLevel = config.LogDebug
	a.Reload(old, &updated)
	if got := lv.Level(); got != slog.LevelDebug {
		t.Errorf("level = %v, want %v", got, slog.LevelDebug)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t, 2), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	// Give Run a moment to start listening.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}
