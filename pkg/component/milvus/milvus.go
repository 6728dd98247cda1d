// Package milvus wraps the Milvus v2 SDK for a single collection keyed by
// string ids with an IVF_FLAT cosine index.
package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/handbook-rag/pkg/options/milvus"
)

// Field names every collection created here carries.
const (
	FieldID        = "id"
	FieldEmbedding = "embedding"
)

const defaultIDMaxLen = 512

// Client is a connected Milvus client.
type Client struct {
	mc     *milvusclient.Client
	nlist  int
	nprobe int
}

// New connects to Milvus within opts.Timeout.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	mc, err := milvusclient.New(dialCtx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus at %s: %w", opts.Address, err)
	}
	return &Client{mc: mc, nlist: opts.NList, nprobe: opts.NProbe}, nil
}

// Close releases the connection.
func (c *Client) Close(ctx context.Context) error {
	return c.mc.Close(ctx)
}

// CollectionSchema describes a collection: id, embedding and scalar fields.
type CollectionSchema struct {
	Name        string
	Description string
	Dimension   int
	IDMaxLen    int
	MetaFields  []MetaField
	// Recreate drops an existing collection first.
	Recreate bool
}

// MetaField is a scalar field; MaxLen applies to VarChar only.
type MetaField struct {
	Name     string
	DataType entity.FieldType
	MaxLen   int
}

func (s *CollectionSchema) build() *entity.Schema {
	idLen := s.IDMaxLen
	if idLen <= 0 {
		idLen = defaultIDMaxLen
	}

	schema := entity.NewSchema().WithName(s.Name).WithDescription(s.Description).
		WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(int64(idLen)).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(s.Dimension)))

	for _, f := range s.MetaFields {
		field := entity.NewField().WithName(f.Name).WithDataType(f.DataType)
		if f.DataType == entity.FieldTypeVarChar && f.MaxLen > 0 {
			field.WithMaxLength(int64(f.MaxLen))
		}
		schema.WithField(field)
	}
	return schema
}

// EnsureCollection creates the collection and its index when missing, then
// loads it into memory.
func (c *Client) EnsureCollection(ctx context.Context, schema *CollectionSchema) error {
	exists, err := c.mc.HasCollection(ctx, milvusclient.NewHasCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("has collection %s: %w", schema.Name, err)
	}

	if exists && schema.Recreate {
		if err := c.mc.DropCollection(ctx, milvusclient.NewDropCollectionOption(schema.Name)); err != nil {
			return fmt.Errorf("drop collection %s: %w", schema.Name, err)
		}
		exists = false
	}

	if !exists {
		if err := c.mc.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(schema.Name, schema.build())); err != nil {
			return fmt.Errorf("create collection %s: %w", schema.Name, err)
		}
		task, err := c.mc.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, FieldEmbedding,
			index.NewIvfFlatIndex(entity.COSINE, c.nlist)))
		if err != nil {
			return fmt.Errorf("create index on %s: %w", schema.Name, err)
		}
		if err := task.Await(ctx); err != nil {
			return fmt.Errorf("await index on %s: %w", schema.Name, err)
		}
	}

	task, err := c.mc.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("load collection %s: %w", schema.Name, err)
	}
	return task.Await(ctx)
}

// Upsert writes columns, replacing rows with the same id, and flushes so the
// rows are searchable when it returns.
func (c *Client) Upsert(ctx context.Context, collection string, columns ...column.Column) error {
	if _, err := c.mc.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(collection, columns...)); err != nil {
		return fmt.Errorf("upsert into %s: %w", collection, err)
	}
	task, err := c.mc.Flush(ctx, milvusclient.NewFlushOption(collection))
	if err != nil {
		return fmt.Errorf("flush %s: %w", collection, err)
	}
	return task.Await(ctx)
}

// Hit is one search result with the requested output fields.
type Hit struct {
	ID     string
	Score  float32
	Fields map[string]any
}

// Search runs a cosine ANN search over the embedding field. filter is a
// Milvus boolean expression, "" for none.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, topK int, filter string, outputFields []string) ([]Hit, error) {
	opt := milvusclient.NewSearchOption(collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(FieldEmbedding).
		WithSearchParam("nprobe", strconv.Itoa(c.nprobe)).
		WithOutputFields(outputFields...)
	if filter != "" {
		opt = opt.WithFilter(filter)
	}

	sets, err := c.mc.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	if len(sets) == 0 {
		return nil, nil
	}

	rs := sets[0]
	hits := make([]Hit, rs.ResultCount)
	for i := range hits {
		hits[i] = Hit{Score: rs.Scores[i], Fields: make(map[string]any, len(rs.Fields))}
		if id, err := rs.IDs.Get(i); err == nil {
			hits[i].ID, _ = id.(string)
		}
		for _, col := range rs.Fields {
			if v, err := col.Get(i); err == nil {
				hits[i].Fields[col.Name()] = v
			}
		}
	}
	return hits, nil
}

// Count returns the number of rows in collection.
func (c *Client) Count(ctx context.Context, collection string) (int64, error) {
	stats, err := c.mc.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collection))
	if err != nil {
		return 0, fmt.Errorf("stats of %s: %w", collection, err)
	}
	raw, ok := stats["row_count"]
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
