// Package vectorindex implements memory.VectorStore backends for the long
// memory tier's semantic recall: an embedded chromem-go index (the
// default, zero-dependency option) and an optional Qdrant-backed one.
package vectorindex

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/kadirpekel/conduit/pkg/memory"
)

// Chromem is an in-process, embedded vector index. Vectors are supplied
// pre-computed by the caller; chromem-go is used purely as a similarity
// index, not as an embedding provider.
type Chromem struct {
	db         *chromem.DB
	collection string

	mu  sync.Mutex
	col *chromem.Collection
}

var _ memory.VectorStore = (*Chromem)(nil)

// NewChromem creates an in-memory chromem-backed index scoped to one
// collection (typically one per agent).
func NewChromem(collection string) *Chromem {
	if collection == "" {
		collection = "conduit_memory"
	}
	return &Chromem{db: chromem.NewDB(), collection: collection}
}

func (c *Chromem) collectionRef() (*chromem.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.col != nil {
		return c.col, nil
	}

	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("vectorindex: embeddings are precomputed, identity func should not be called")
	}
	col, err := c.db.GetOrCreateCollection(c.collection, nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: get/create collection: %w", err)
	}
	c.col = col
	return col, nil
}

func (c *Chromem) AddDocuments(ctx context.Context, docs []memory.VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}
	col, err := c.collectionRef()
	if err != nil {
		return err
	}

	batch := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		strMetadata := make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			strMetadata[k] = fmt.Sprint(v)
		}
		batch = append(batch, chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  strMetadata,
			Embedding: d.Embedding,
		})
	}

	if err := col.AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
		return fmt.Errorf("vectorindex: add documents: %w", err)
	}
	return nil
}

func (c *Chromem) SearchByVector(ctx context.Context, vector []float32, opts memory.VectorSearchOptions) ([]memory.VectorResult, error) {
	col, err := c.collectionRef()
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = memory.DefaultRecallLimit
	}
	// chromem errors if topK exceeds the number of stored documents.
	if n := col.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	var whereFilter map[string]string
	if len(opts.Filter) > 0 {
		whereFilter = make(map[string]string, len(opts.Filter))
		for k, v := range opts.Filter {
			whereFilter[k] = fmt.Sprint(v)
		}
	}

	results, err := col.QueryEmbedding(ctx, vector, limit, whereFilter, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: query: %w", err)
	}

	out := make([]memory.VectorResult, 0, len(results))
	for _, r := range results {
		if float64(r.Similarity) < opts.MinScore {
			continue
		}
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		out = append(out, memory.VectorResult{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Content:  r.Content,
			Metadata: metadata,
		})
	}
	return out, nil
}

func (c *Chromem) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := c.collectionRef()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := col.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("vectorindex: delete %q: %w", id, err)
		}
	}
	return nil
}
