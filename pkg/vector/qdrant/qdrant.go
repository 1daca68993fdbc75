// Package qdrant provides a Qdrant vector database driver over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name.
	DefaultCollectionName = "chronicle"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	docIDKey   = "doc_id"
	contentKey = "content"
	metaPrefix = "meta_"
)

// pointNamespace derives stable point UUIDs from entity IDs, which Qdrant
// does not accept as point IDs directly.
var pointNamespace = uuid.MustParse("6f1c2a8e-3b0d-4c61-9a57-2e4b8f0d7c13")

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is host[:port] of the gRPC endpoint.
	Target string

	// APIKey authenticates against Qdrant Cloud; optional for local servers.
	APIKey string

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool

	// CollectionName defaults to DefaultCollectionName.
	CollectionName string

	// Dimensions is the embedding size used when creating the collection.
	Dimensions uint
}

// Driver implements vector.Driver against Qdrant.
type Driver struct {
	client     *qdrant.Client
	collection string
	logger     *zap.Logger
}

// NewDriver connects to Qdrant and ensures the collection exists with the
// cosine distance.
func NewDriver(ctx context.Context, c Config, logger *zap.Logger) (*Driver, error) {
	if c.Target == "" {
		return nil, fmt.Errorf("qdrant target is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host, port, err := splitTarget(c.Target)
	if err != nil {
		return nil, err
	}

	collection := c.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection %q: %v", vector.ErrConnection, collection, err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %q: %w", collection, err)
		}
	}

	logger.Info("connected to Qdrant",
		zap.String("target", c.Target),
		zap.String("collection", collection),
		zap.Bool("created", !exists),
	)

	return &Driver{client: client, collection: collection, logger: logger}, nil
}

func splitTarget(target string) (string, int, error) {
	target = strings.TrimPrefix(strings.TrimPrefix(target, "http://"), "https://")
	if !strings.Contains(target, ":") {
		return target, DefaultPort, nil
	}

	host, p, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant target %q: %w", target, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", p, err)
	}
	return host, port, nil
}

// PointID maps a document ID to its Qdrant point UUID.
func PointID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

func pointIDs(ids []string) []*qdrant.PointId {
	out := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		out[i] = qdrant.NewID(PointID(id))
	}
	return out
}

func payload(doc vector.Document) map[string]*qdrant.Value {
	p := map[string]*qdrant.Value{
		docIDKey:   qdrant.NewValueString(doc.ID),
		contentKey: qdrant.NewValueString(doc.Content),
	}
	for k, v := range doc.Metadata {
		p[metaPrefix+k] = qdrant.NewValueString(v)
	}
	return p
}

func fromPayload(p map[string]*qdrant.Value) vector.Document {
	doc := vector.Document{
		ID:      p[docIDKey].GetStringValue(),
		Content: p[contentKey].GetStringValue(),
	}
	for k, v := range p {
		if name, ok := strings.CutPrefix(k, metaPrefix); ok {
			if doc.Metadata == nil {
				doc.Metadata = make(map[string]string)
			}
			doc.Metadata[name] = v.GetStringValue()
		}
	}
	return doc
}

// Add upserts documents.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(doc.ID)),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload(doc),
		}
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant",
		zap.String("collection", d.collection),
		zap.Int("count", len(docs)),
	)

	return nil
}

// Filter converts a metadata filter to a Qdrant payload filter.
func Filter(f vector.Filter) *qdrant.Filter {
	if len(f) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(f))
	for k, v := range f {
		must = append(must, qdrant.NewMatch(metaPrefix+k, v))
	}
	return &qdrant.Filter{Must: must}
}

// Query finds the topK most similar documents.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         Filter(filter),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		results = append(results, vector.QueryResult{
			Document: fromPayload(p.GetPayload()),
			Score:    vector.ClampScore(p.GetScore()),
		})
	}

	d.logger.Debug("queried qdrant",
		zap.String("collection", d.collection),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Get retrieves documents with their vectors.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs(ids),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting points: %w", err)
	}

	return retrieved(points), nil
}

// List scrolls the whole collection.
func (d *Driver) List(ctx context.Context) ([]vector.Document, error) {
	n, err := d.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: d.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("counting points: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	points, err := d.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: d.collection,
		Limit:          qdrant.PtrOf(uint32(n)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling points: %w", err)
	}

	return retrieved(points), nil
}

func retrieved(points []*qdrant.RetrievedPoint) []vector.Document {
	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		doc := fromPayload(p.GetPayload())
		doc.Embedding = p.GetVectors().GetVector().GetData()
		docs = append(docs, doc)
	}
	return docs
}

// Delete removes documents by ID.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs(ids)...),
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	d.logger.Debug("deleted documents from qdrant",
		zap.String("collection", d.collection),
		zap.Int("count", len(ids)),
	)

	return nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

var _ vector.Driver = (*Driver)(nil)
