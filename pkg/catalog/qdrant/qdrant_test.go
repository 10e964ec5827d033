package qdrant

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"

	"github.com/MrWong99/renoquote/pkg/catalog"
)

// --- Mocks ---

type mockPoints struct {
	upserts  []*pb.UpsertPoints
	searches []*pb.SearchPoints
	scrolls  []*pb.ScrollPoints

	searchResp *pb.SearchResponse
	searchErr  error
	// scrollPages is served in order, one page per Scroll call.
	scrollPages []*pb.ScrollResponse
	scrollErr   error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserts = append(m.upserts, in)
	return &pb.PointsOperationResponse{}, nil
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searches = append(m.searches, in)
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	m.scrolls = append(m.scrolls, in)
	if m.scrollErr != nil {
		return nil, m.scrollErr
	}
	if len(m.scrollPages) == 0 {
		return &pb.ScrollResponse{}, nil
	}
	page := m.scrollPages[0]
	m.scrollPages = m.scrollPages[1:]
	return page, nil
}

type mockCollections struct {
	existing []string
	created  []*pb.CreateCollection
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	resp := &pb.ListCollectionsResponse{}
	for _, n := range m.existing {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: n})
	}
	return resp, nil
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = append(m.created, in)
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func material(id string, quality int, region string) catalog.MaterialRecord {
	return catalog.MaterialRecord{
		ID:           id,
		Name:         "Colle carrelage " + id,
		Description:  "Waterproof tile glue",
		UnitPrice:    decimal.RequireFromString("12.40"),
		Unit:         "kg",
		Region:       region,
		Vendor:       "Castorama",
		Category:     catalog.CategoryAdhesives,
		QualityScore: quality,
		Embedding:    []float32{0.1, 0.2},
		UpdatedAt:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func retrieved(r catalog.MaterialRecord) *pb.RetrievedPoint {
	return &pb.RetrievedPoint{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.ID)}},
		Payload: toPayload(r),
	}
}

// --- Tests ---

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	in := material("mat-1", 8, "Île-de-France")
	out := fromPayload(toPayload(in))
	in.Embedding = nil
	if !out.UnitPrice.Equal(in.UnitPrice) || !out.UpdatedAt.Equal(in.UpdatedAt) {
		t.Fatalf("price/time = %s/%s, want %s/%s", out.UnitPrice, out.UpdatedAt, in.UnitPrice, in.UpdatedAt)
	}
	out.UnitPrice, in.UnitPrice = decimal.Zero, decimal.Zero
	out.UpdatedAt, in.UpdatedAt = time.Time{}, time.Time{}
	if out.ID != in.ID || out.Name != in.Name || out.Region != in.Region || out.QualityScore != in.QualityScore ||
		out.Category != in.Category || out.Vendor != in.Vendor || out.Unit != in.Unit {
		t.Fatalf("fromPayload(toPayload()) = %+v, want %+v", out, in)
	}
}

func TestPointID_Deterministic(t *testing.T) {
	t.Parallel()

	if PointID("mat-1") != PointID("mat-1") {
		t.Fatal("PointID not deterministic")
	}
	if PointID("mat-1") == PointID("mat-2") {
		t.Fatal("PointID collision for different ids")
	}
}

func TestToFilter(t *testing.T) {
	t.Parallel()

	if f := toFilter(catalog.Filters{}); f != nil {
		t.Fatalf("toFilter(zero) = %v, want nil", f)
	}

	f := toFilter(catalog.Filters{
		Region:     "Île-de-France",
		Unit:       "KG",
		MinQuality: 6,
		MaxPrice:   decimal.NewNullDecimal(decimal.NewFromInt(50)),
		Vendor:     "castorama",
	})
	// Vendor is post-filtered on the client.
	if got := len(f.GetMust()); got != 4 {
		t.Fatalf("len(Must) = %d, want 4", got)
	}
	region := f.GetMust()[0].GetField()
	if region.GetKey() != keyRegionKey || region.GetMatch().GetKeyword() != "ile-de-france" {
		t.Errorf("region condition = %v", region)
	}
	price := f.GetMust()[3].GetField().GetRange()
	if price.Lte == nil || *price.Lte != 50 || price.Gte != nil {
		t.Errorf("price range = %v, want lte 50", price)
	}
}

func TestEnsureCollection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	cols := &mockCollections{existing: []string{"materials"}}
	s := newStore(&mockPoints{}, cols, nil, "materials", 768)
	if err := s.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: unexpected error: %v", err)
	}
	if len(cols.created) != 0 {
		t.Fatal("EnsureCollection created an existing collection")
	}

	cols = &mockCollections{}
	s = newStore(&mockPoints{}, cols, nil, "materials", 768)
	if err := s.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: unexpected error: %v", err)
	}
	if len(cols.created) != 1 || cols.created[0].GetVectorsConfig().GetParams().GetSize() != 768 {
		t.Fatalf("created = %v, want one 768-dim collection", cols.created)
	}
}

func TestUpsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pts := &mockPoints{}
	s := newStore(pts, &mockCollections{}, nil, "materials", 2)

	if err := s.Upsert(ctx, material("a", 5, "Bretagne"), material("b", 6, "Bretagne")); err != nil {
		t.Fatalf("Upsert: unexpected error: %v", err)
	}
	if len(pts.upserts) != 1 || len(pts.upserts[0].GetPoints()) != 2 {
		t.Fatalf("upserts = %d calls", len(pts.upserts))
	}
	if got := pts.upserts[0].GetPoints()[0].GetId().GetUuid(); got != PointID("a") {
		t.Errorf("point id = %s, want %s", got, PointID("a"))
	}

	noVec := material("c", 5, "Bretagne")
	noVec.Embedding = nil
	if err := s.Upsert(ctx, noVec); err == nil {
		t.Fatal("Upsert: expected error for record without embedding")
	}
}

func TestNearest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := material("a", 7, "Occitanie")
	pts := &mockPoints{searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		{Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID("a")}}, Payload: toPayload(r), Score: 0.91},
		{Payload: toPayload(material("b", 4, "Occitanie")), Score: -0.2},
	}}}
	s := newStore(pts, &mockCollections{}, nil, "materials", 2)

	got, err := s.Nearest(ctx, []float32{1, 0}, 5, catalog.Filters{Region: "occitanie"})
	if err != nil {
		t.Fatalf("Nearest: unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Record.ID != "a" {
		t.Fatalf("Nearest = %+v", got)
	}
	if got[0].Similarity < 0.909 || got[0].Similarity > 0.911 {
		t.Errorf("similarity = %v, want 0.91", got[0].Similarity)
	}
	if got[1].Similarity != 0 {
		t.Errorf("negative score not clamped: %v", got[1].Similarity)
	}
	if pts.searches[0].GetLimit() != 5 || pts.searches[0].GetFilter() == nil {
		t.Errorf("search request = %v", pts.searches[0])
	}

	if _, err := s.Nearest(ctx, []float32{1}, 5, catalog.Filters{}); !errors.Is(err, catalog.ErrDimensionMismatch) {
		t.Fatalf("Nearest wrong dims: err = %v", err)
	}
}

func TestTopByRegion_Pages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	next := &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID("b")}}
	pts := &mockPoints{scrollPages: []*pb.ScrollResponse{
		{Result: []*pb.RetrievedPoint{retrieved(material("a", 3, "Bretagne"))}, NextPageOffset: next},
		{Result: []*pb.RetrievedPoint{retrieved(material("b", 9, "Bretagne")), retrieved(material("c", 6, "Bretagne"))}},
	}}
	s := newStore(pts, &mockCollections{}, nil, "materials", 2)

	got, err := s.TopByRegion(ctx, "Bretagne", 2)
	if err != nil {
		t.Fatalf("TopByRegion: unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("TopByRegion = %v, want [b c]", got)
	}
	if len(pts.scrolls) != 2 || pts.scrolls[1].GetOffset().GetUuid() != PointID("b") {
		t.Fatalf("scroll calls = %d, second offset = %v", len(pts.scrolls), pts.scrolls[1].GetOffset())
	}
}

func TestTextSearch_ScrollError(t *testing.T) {
	t.Parallel()

	errDown := errors.New("unavailable")
	s := newStore(&mockPoints{scrollErr: errDown}, &mockCollections{}, nil, "materials", 2)
	if _, err := s.TextSearch(context.Background(), "glue", catalog.Filters{}, 3); !errors.Is(err, errDown) {
		t.Fatalf("TextSearch: err = %v, want wrapped errDown", err)
	}
}

func TestPriceStats(t *testing.T) {
	t.Parallel()

	cheap := material("a", 5, "Bretagne")
	cheap.UnitPrice = decimal.NewFromInt(10)
	dear := material("b", 5, "Bretagne")
	dear.UnitPrice = decimal.NewFromInt(20)
	pts := &mockPoints{scrollPages: []*pb.ScrollResponse{
		{Result: []*pb.RetrievedPoint{retrieved(cheap), retrieved(dear)}},
	}}
	s := newStore(pts, &mockCollections{}, nil, "materials", 2)

	got, err := s.PriceStats(context.Background(), catalog.CategoryAdhesives, "Bretagne")
	if err != nil {
		t.Fatalf("PriceStats: unexpected error: %v", err)
	}
	if got.Count != 2 || got.Mean != 15 || got.StdDev != 5 {
		t.Fatalf("PriceStats = %+v, want {15 5 2}", got)
	}
}

// TestIntegration runs against a live Qdrant when RENOQUOTE_TEST_QDRANT_ADDR
// is set (for example "localhost:6334").
func TestIntegration(t *testing.T) {
	addr := os.Getenv("RENOQUOTE_TEST_QDRANT_ADDR")
	if addr == "" {
		t.Skip("RENOQUOTE_TEST_QDRANT_ADDR not set; skipping Qdrant integration test")
	}

	ctx := context.Background()
	s, err := New(addr, "renoquote_test_"+time.Now().Format("20060102150405"), 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	a := material("a", 8, "Bretagne")
	b := material("b", 5, "Bretagne")
	b.Embedding = []float32{1, 0}
	if err := s.Upsert(ctx, a, b); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Nearest(ctx, []float32{1, 0}, 1, catalog.Filters{Region: "bretagne"})
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(got) != 1 || got[0].Record.ID != "b" {
		t.Fatalf("Nearest = %+v, want b", got)
	}
}
