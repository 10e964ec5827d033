// Package qdrant implements catalog.Store on top of a Qdrant collection
// reached over gRPC.
//
// Each material is one point. Its catalog ID is mapped to a deterministic
// UUID point ID and the record's fields are stored in the payload, including
// folded copies of region and unit so that keyword filters are case- and
// accent-insensitive. Nearest runs a filtered vector search; TextSearch,
// TopByRegion and PriceStats scroll the filtered collection and rank on the
// client.
package qdrant

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/MrWong99/renoquote/pkg/catalog"
)

// Payload keys.
const (
	keyID          = "id"
	keyName        = "name"
	keyDescription = "description"
	keyUnitPrice   = "unit_price"
	keyPriceNum    = "unit_price_num"
	keyUnit        = "unit"
	keyUnitKey     = "unit_key"
	keyRegion      = "region"
	keyRegionKey   = "region_key"
	keyVendor      = "vendor"
	keyCategory    = "category"
	keyQuality     = "quality_score"
	keySource      = "source"
	keyUpdatedAt   = "updated_at"
)

// pointNamespace seeds the deterministic point IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://renoquote/materials"))

// defaultScanLimit caps how many points a scroll-based query reads.
const defaultScanLimit = 2000

const scrollPage = 256

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

type healthAPI interface {
	HealthCheck(ctx context.Context, in *pb.HealthCheckRequest, opts ...grpc.CallOption) (*pb.HealthCheckReply, error)
}

// Compile-time interface assertions.
var (
	_ catalog.Store        = (*Store)(nil)
	_ catalog.Writer       = (*Store)(nil)
	_ catalog.PriceStatter = (*Store)(nil)
)

// Option configures a [Store].
type Option func(*Store)

// WithScanLimit caps the number of points read by scroll-based queries.
func WithScanLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.scanLimit = n
		}
	}
}

// Store is a Qdrant-backed material catalog.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	health      healthAPI
	collection  string
	dims        int
	scanLimit   int
}

// New connects to Qdrant at the gRPC address addr. The collection is not
// created until [Store.EnsureCollection] is called.
func New(addr, collection string, dims int, opts ...Option) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	s := newStore(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), pb.NewQdrantClient(conn), collection, dims, opts...)
	s.conn = conn
	return s, nil
}

func newStore(points pointsAPI, collections collectionsAPI, health healthAPI, collection string, dims int, opts ...Option) *Store {
	s := &Store{
		points:      points,
		collections: collections,
		health:      health,
		collection:  collection,
		dims:        dims,
		scanLimit:   defaultScanLimit,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Ping checks that the Qdrant server answers health checks.
func (s *Store) Ping(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	if _, err := s.health.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet.
func (s *Store) EnsureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert implements [catalog.Writer]. Records must carry an embedding.
func (s *Store) Upsert(ctx context.Context, records ...catalog.MaterialRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		if err := catalog.Validate(r, s.dims); err != nil {
			return fmt.Errorf("qdrant: upsert: %w", err)
		}
		if len(r.Embedding) == 0 {
			return fmt.Errorf("qdrant: upsert %q: record has no embedding", r.ID)
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: toPayload(r),
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %d points: %w", len(records), err)
	}
	return nil
}

// Nearest implements [catalog.Store.Nearest]. The vendor filter cannot be
// expressed as a keyword match and is left to the caller's post-filter.
func (s *Store) Nearest(ctx context.Context, vec []float32, k int, f catalog.Filters) ([]catalog.Neighbor, error) {
	if s.dims > 0 && len(vec) != s.dims {
		return nil, fmt.Errorf("qdrant: nearest: %w: got %d, want %d", catalog.ErrDimensionMismatch, len(vec), s.dims)
	}
	if k <= 0 {
		return nil, nil
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vec,
		Limit:          uint64(k),
		Filter:         toFilter(f),
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}
	out := make([]catalog.Neighbor, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		out = append(out, catalog.Neighbor{
			Record:     fromPayload(p.GetPayload()),
			Similarity: catalog.ClampUnit(float64(p.GetScore())),
		})
	}
	return out, nil
}

// TextSearch implements [catalog.Store.TextSearch].
func (s *Store) TextSearch(ctx context.Context, query string, f catalog.Filters, k int) ([]catalog.MaterialRecord, error) {
	recs, err := s.scroll(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("qdrant: text search: %w", err)
	}
	return catalog.RankByText(query, recs, k), nil
}

// TopByRegion implements [catalog.Store.TopByRegion].
func (s *Store) TopByRegion(ctx context.Context, region string, k int) ([]catalog.MaterialRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	recs, err := s.scroll(ctx, catalog.Filters{Region: region})
	if err != nil {
		return nil, fmt.Errorf("qdrant: top by region: %w", err)
	}
	sortRecords(recs)
	if len(recs) > k {
		recs = recs[:k]
	}
	return recs, nil
}

// PriceStats implements [catalog.PriceStatter].
func (s *Store) PriceStats(ctx context.Context, category catalog.Category, region string) (catalog.PriceStats, error) {
	recs, err := s.scroll(ctx, catalog.Filters{Category: category})
	if err != nil {
		return catalog.PriceStats{}, fmt.Errorf("qdrant: price stats: %w", err)
	}
	return catalog.CategoryStats(recs, region), nil
}

// scroll reads up to scanLimit points matching f, applying the conditions
// Qdrant cannot evaluate on the client.
func (s *Store) scroll(ctx context.Context, f catalog.Filters) ([]catalog.MaterialRecord, error) {
	var (
		out    []catalog.MaterialRecord
		offset *pb.PointId
		filter = toFilter(f)
	)
	for len(out) < s.scanLimit {
		limit := uint32(min(scrollPage, s.scanLimit-len(out)))
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    withPayload(),
		})
		if err != nil {
			return nil, err
		}
		for _, p := range resp.GetResult() {
			if r := fromPayload(p.GetPayload()); f.Match(r) {
				out = append(out, r)
			}
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}
	return out, nil
}

// PointID returns the Qdrant point UUID for a catalog record ID.
func PointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Payload mapping
// ─────────────────────────────────────────────────────────────────────────────

func toPayload(r catalog.MaterialRecord) map[string]*pb.Value {
	str := func(v string) *pb.Value { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}} }
	payload := map[string]*pb.Value{
		keyID:          str(r.ID),
		keyName:        str(r.Name),
		keyDescription: str(r.Description),
		keyUnitPrice:   str(r.UnitPrice.String()),
		keyPriceNum:    {Kind: &pb.Value_DoubleValue{DoubleValue: r.UnitPrice.InexactFloat64()}},
		keyUnit:        str(r.Unit),
		keyUnitKey:     str(catalog.Key(r.Unit)),
		keyRegion:      str(r.Region),
		keyRegionKey:   str(catalog.Key(r.Region)),
		keyVendor:      str(r.Vendor),
		keyCategory:    str(string(r.Category)),
		keyQuality:     {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.QualityScore)}},
		keySource:      str(r.Source),
	}
	if !r.UpdatedAt.IsZero() {
		payload[keyUpdatedAt] = str(r.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	return payload
}

func fromPayload(p map[string]*pb.Value) catalog.MaterialRecord {
	str := func(k string) string { return p[k].GetStringValue() }
	r := catalog.MaterialRecord{
		ID:           str(keyID),
		Name:         str(keyName),
		Description:  str(keyDescription),
		Unit:         str(keyUnit),
		Region:       str(keyRegion),
		Vendor:       str(keyVendor),
		Category:     catalog.Category(str(keyCategory)),
		QualityScore: int(p[keyQuality].GetIntegerValue()),
		Source:       str(keySource),
	}
	if price, err := decimal.NewFromString(str(keyUnitPrice)); err == nil {
		r.UnitPrice = price
	}
	if ts, err := time.Parse(time.RFC3339Nano, str(keyUpdatedAt)); err == nil {
		r.UpdatedAt = ts
	}
	return r
}

// toFilter converts the keyword- and range-expressible parts of f.
func toFilter(f catalog.Filters) *pb.Filter {
	var must []*pb.Condition
	if f.Region != "" {
		must = append(must, keywordMatch(keyRegionKey, catalog.Key(f.Region)))
	}
	if f.Unit != "" {
		must = append(must, keywordMatch(keyUnitKey, catalog.Key(f.Unit)))
	}
	if f.Category != "" {
		must = append(must, keywordMatch(keyCategory, string(f.Category)))
	}
	if f.MinQuality > 0 {
		q := float64(f.MinQuality)
		must = append(must, rangeMatch(keyQuality, &pb.Range{Gte: &q}))
	}
	if f.MinPrice.Valid || f.MaxPrice.Valid {
		rng := &pb.Range{}
		if f.MinPrice.Valid {
			v := f.MinPrice.Decimal.InexactFloat64()
			rng.Gte = &v
		}
		if f.MaxPrice.Valid {
			v := f.MaxPrice.Decimal.InexactFloat64()
			rng.Lte = &v
		}
		must = append(must, rangeMatch(keyPriceNum, rng))
	}
	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}

func keywordMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func rangeMatch(key string, r *pb.Range) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Range: r},
		},
	}
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func sortRecords(recs []catalog.MaterialRecord) {
	slices.SortFunc(recs, func(a, b catalog.MaterialRecord) int {
		switch {
		case catalog.Less(a, b):
			return -1
		case catalog.Less(b, a):
			return 1
		}
		return 0
	})
}
