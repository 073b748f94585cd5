package vectorindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kadirpekel/conduit/pkg/memory"
)

// QdrantConfig configures a Qdrant-backed long-tier index.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

func (c QdrantConfig) withDefaults() QdrantConfig {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "conduit_memory"
	}
	return c
}

// Qdrant is an external-service-backed VectorStore, a drop-in alternative
// to Chromem when semantic recall needs to scale beyond one process.
type Qdrant struct {
	client *qdrant.Client
	cfg    QdrantConfig
}

var _ memory.VectorStore = (*Qdrant)(nil)

// NewQdrant connects to a Qdrant instance per cfg.
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	cfg = cfg.withDefaults()
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: connecting to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Qdrant{client: client, cfg: cfg}, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("vectorindex: check collection: %w", err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("vectorindex: create collection: %w", err)
	}
	return nil
}

func (q *Qdrant) AddDocuments(ctx context.Context, docs []memory.VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx, len(docs[0].Embedding)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, d := range docs {
		payload := map[string]*qdrant.Value{}
		if contentVal, err := qdrant.NewValue(d.Content); err == nil {
			payload["content"] = contentVal
		}
		for k, v := range d.Metadata {
			val, err := qdrant.NewValue(v)
			if err != nil {
				return fmt.Errorf("vectorindex: convert metadata %q: %w", k, err)
			}
			payload[k] = val
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(d.ID),
			Vectors: qdrant.NewVectors(d.Embedding...),
			Payload: payload,
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.cfg.Collection, Points: points})
	if err != nil {
		return fmt.Errorf("vectorindex: upsert points: %w", err)
	}
	return nil
}

func (q *Qdrant) SearchByVector(ctx context.Context, vector []float32, opts memory.VectorSearchOptions) ([]memory.VectorResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = memory.DefaultRecallLimit
	}

	searchRequest := &qdrant.SearchPoints{
		CollectionName: q.cfg.Collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(opts.Filter) > 0 {
		searchRequest.Filter = buildFilter(opts.Filter)
	}

	searchResult, err := q.client.GetPointsClient().Search(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search: %w", err)
	}

	out := make([]memory.VectorResult, 0, len(searchResult.Result))
	for _, point := range searchResult.Result {
		if float64(point.Score) < opts.MinScore {
			continue
		}
		metadata := make(map[string]any, len(point.Payload))
		content := ""
		for key, value := range point.Payload {
			switch v := value.Kind.(type) {
			case *qdrant.Value_StringValue:
				if key == "content" {
					content = v.StringValue
				} else {
					metadata[key] = v.StringValue
				}
			case *qdrant.Value_IntegerValue:
				metadata[key] = v.IntegerValue
			case *qdrant.Value_DoubleValue:
				metadata[key] = v.DoubleValue
			case *qdrant.Value_BoolValue:
				metadata[key] = v.BoolValue
			}
		}
		out = append(out, memory.VectorResult{ID: pointIDString(point.Id), Score: float64(point.Score), Content: content, Metadata: metadata})
	}
	return out, nil
}

func (q *Qdrant) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{Points: &qdrant.PointsIdsList{Ids: pointIDs}},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: delete points: %w", err)
	}
	return nil
}

func buildFilter(filter map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		val, err := qdrant.NewValue(value)
		if err != nil {
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   key,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: val.GetStringValue()}},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil || id.PointIdOptions == nil {
		return ""
	}
	switch idType := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return idType.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", idType.Num)
	default:
		return ""
	}
}
