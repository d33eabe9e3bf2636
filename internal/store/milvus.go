package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

// Common errors for Milvus operations
var (
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrConnectionFailed = errors.New("failed to connect to Milvus")
	ErrInsertFailed     = errors.New("failed to insert records")
	ErrSearchFailed     = errors.New("failed to search vectors")
	ErrContentTooLong   = errors.New("content exceeds Milvus varchar limit")
)

// maxContentBytes is the max_length of the content field.
const maxContentBytes = 65535

const (
	fieldID         = "id"
	fieldType       = "type"
	fieldBookTitle  = "book_title"
	fieldBookNum    = "book_num"
	fieldChapterNum = "chapter_num"
	fieldVersion    = "version"
	fieldEditor     = "editor"
	fieldContent    = "content"
	fieldMetadata   = "metadata"
	fieldCreatedAt  = "created_at"
	fieldEmbedding  = "embedding"
)

var scalarOutputFields = []string{
	fieldID, fieldType, fieldBookTitle, fieldBookNum, fieldChapterNum,
	fieldVersion, fieldEditor, fieldContent, fieldMetadata, fieldCreatedAt,
}

// MilvusConfig holds configuration for Milvus connection and collection
type MilvusConfig struct {
	Address        string // Milvus server address (e.g., "localhost:19530")
	CollectionName string // Name of the collection
	Dimension      int    // Vector dimension, must match the embedder
	IndexType      string // Index type (default: "HNSW")
	MetricType     string // Similarity metric (default: "COSINE")

	// HNSW index parameters
	M              int // HNSW M parameter (default: 16)
	EfConstruction int // HNSW efConstruction (default: 256)
}

// DefaultMilvusConfig returns default configuration from environment variables
func DefaultMilvusConfig() MilvusConfig {
	address := os.Getenv("MILVUS_ADDRESS")
	if address == "" {
		address = "localhost:19530"
	}

	collection := os.Getenv("MILVUS_COLLECTION")
	if collection == "" {
		collection = "book_chapter_versions"
	}

	return MilvusConfig{
		Address:        address,
		CollectionName: collection,
		Dimension:      1536, // text-embedding-3-small
		IndexType:      "HNSW",
		MetricType:     "COSINE",
		M:              16,
		EfConstruction: 256,
	}
}

// MilvusStore implements VectorStore using Milvus
type MilvusStore struct {
	client   client.Client
	config   MilvusConfig
	embedder Embedder
	logger   *zap.Logger
	now      func() time.Time
}

// NewMilvusStore creates a new Milvus vector store instance.
// Connects to Milvus and ensures the collection exists with proper schema.
func NewMilvusStore(ctx context.Context, config MilvusConfig, embedder Embedder, logger *zap.Logger) (*MilvusStore, error) {
	if config.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if embedder.GetDimension() != config.Dimension {
		return nil, fmt.Errorf("%w: embedder produces %d, collection expects %d",
			ErrInvalidDimension, embedder.GetDimension(), config.Dimension)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &MilvusStore{
		client:   c,
		config:   config,
		embedder: embedder,
		logger:   logger.Named("milvus"),
		now:      time.Now,
	}

	if err := store.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the collection with schema if it doesn't exist
func (m *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.config.CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if has {
		if err := m.client.LoadCollection(ctx, m.config.CollectionName, false); err != nil {
			return fmt.Errorf("failed to load collection: %w", err)
		}
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.config.CollectionName,
		AutoID:         false,
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       fieldType,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
			{
				Name:       fieldBookTitle,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "256"},
			},
			{Name: fieldBookNum, DataType: entity.FieldTypeInt64},
			{Name: fieldChapterNum, DataType: entity.FieldTypeInt64},
			{Name: fieldVersion, DataType: entity.FieldTypeInt64},
			{
				Name:       fieldEditor,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "256"},
			},
			{
				Name:       fieldContent,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": strconv.Itoa(maxContentBytes)},
			},
			{Name: fieldMetadata, DataType: entity.FieldTypeJSON},
			{Name: fieldCreatedAt, DataType: entity.FieldTypeInt64}, // Unix nanoseconds
			{
				Name:       fieldEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(m.config.Dimension)},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, m.config.M, m.config.EfConstruction)
	if err != nil {
		return fmt.Errorf("failed to create index config: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.config.CollectionName, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	m.logger.Info("created collection", zap.String("collection", m.config.CollectionName))
	return nil
}

// Put inserts doc unless a row with the same id exists.
func (m *MilvusStore) Put(ctx context.Context, doc Document) (bool, error) {
	if doc.ID == "" {
		return false, ErrEmptyID
	}
	if err := checkContent(doc); err != nil {
		return false, err
	}

	existing, err := m.Get(ctx, []string{doc.ID})
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	vec, err := embedOne(ctx, m.embedder, doc.Content)
	if err != nil {
		return false, err
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = m.now()
	}

	columns, err := m.columns(doc, vec)
	if err != nil {
		return false, err
	}
	if _, err := m.client.Insert(ctx, m.config.CollectionName, "", columns...); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}
	if err := m.client.Flush(ctx, m.config.CollectionName, false); err != nil {
		return false, fmt.Errorf("failed to flush data: %w", err)
	}
	return true, nil
}

// checkContent rejects documents whose content the content field cannot
// hold. The limit is in bytes, so multibyte text hits it sooner.
func checkContent(doc Document) error {
	if len(doc.Content) > maxContentBytes {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrContentTooLong, doc.ID, len(doc.Content), maxContentBytes)
	}
	return nil
}

// columns converts a document to single-row insert columns.
func (m *MilvusStore) columns(doc Document, vec []float32) ([]entity.Column, error) {
	if err := checkContent(doc); err != nil {
		return nil, err
	}
	if len(vec) != m.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(vec))
	}
	meta := doc.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	return []entity.Column{
		entity.NewColumnVarChar(fieldID, []string{doc.ID}),
		entity.NewColumnVarChar(fieldType, []string{doc.Fields.Type}),
		entity.NewColumnVarChar(fieldBookTitle, []string{doc.Fields.BookTitle}),
		entity.NewColumnInt64(fieldBookNum, []int64{int64(doc.Fields.BookNum)}),
		entity.NewColumnInt64(fieldChapterNum, []int64{int64(doc.Fields.ChapterNum)}),
		entity.NewColumnInt64(fieldVersion, []int64{int64(doc.Fields.Version)}),
		entity.NewColumnVarChar(fieldEditor, []string{doc.Fields.Editor}),
		entity.NewColumnVarChar(fieldContent, []string{doc.Content}),
		entity.NewColumnJSONBytes(fieldMetadata, [][]byte{metaJSON}),
		entity.NewColumnInt64(fieldCreatedAt, []int64{doc.CreatedAt.UnixNano()}),
		entity.NewColumnFloatVector(fieldEmbedding, m.config.Dimension, [][]float32{vec}),
	}, nil
}

// Get returns the documents that exist among ids.
func (m *MilvusStore) Get(ctx context.Context, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return []Document{}, nil
	}

	rows, err := m.client.Query(ctx, m.config.CollectionName, nil, idExpr(ids), scalarOutputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	found, _, err := decodeRows(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Document, len(found))
	for _, doc := range found {
		byID[doc.ID] = doc
	}
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// UpdateMetadata reads the full row, merges patch and upserts it back.
func (m *MilvusStore) UpdateMetadata(ctx context.Context, id string, patch map[string]any) error {
	fields := append(append([]string{}, scalarOutputFields...), fieldEmbedding)
	rows, err := m.client.Query(ctx, m.config.CollectionName, nil, idExpr([]string{id}), fields)
	if err != nil {
		return fmt.Errorf("failed to query document %s: %w", id, err)
	}
	docs, vectors, err := decodeRows(rows)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	doc := docs[0]
	doc.Metadata = mergeMetadata(doc.Metadata, patch)
	columns, err := m.columns(doc, vectors[0])
	if err != nil {
		return err
	}
	if _, err := m.client.Upsert(ctx, m.config.CollectionName, "", columns...); err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", id, err)
	}
	if err := m.client.Flush(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to flush data: %w", err)
	}
	return nil
}

// Query performs a filtered top-K similarity search, or a plain filtered
// query when text is empty.
func (m *MilvusStore) Query(ctx context.Context, text string, filter Filter, limit int) ([]Hit, error) {
	expr := filterExpr(filter)

	if text == "" {
		if expr == "" {
			expr = fmt.Sprintf(`%s != ""`, fieldID)
		}
		var opts []client.SearchQueryOptionFunc
		if limit > 0 {
			opts = append(opts, client.WithLimit(int64(limit)))
		}
		rows, err := m.client.Query(ctx, m.config.CollectionName, nil, expr, scalarOutputFields, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to query documents: %w", err)
		}
		docs, _, err := decodeRows(rows)
		if err != nil {
			return nil, err
		}
		hits := make([]Hit, len(docs))
		for i, doc := range docs {
			hits[i] = Hit{Document: doc}
		}
		return hits, nil
	}

	if limit <= 0 {
		limit = 5
	}
	vec, err := embedOne(ctx, m.embedder, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != m.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(vec))
	}

	sp, err := entity.NewIndexHNSWSearchParam(64) // ef parameter for search
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	results, err := m.client.Search(
		ctx,
		m.config.CollectionName,
		nil, // partition names
		expr,
		scalarOutputFields,
		[]entity.Vector{entity.FloatVector(vec)},
		fieldEmbedding,
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	if len(results) == 0 {
		return []Hit{}, nil
	}

	docs, _, err := decodeRows(results[0].Fields)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(docs))
	for i, doc := range docs {
		hit := Hit{Document: doc}
		if i < len(results[0].Scores) {
			hit.Score = results[0].Scores[i]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Close releases resources and closes the Milvus connection
func (m *MilvusStore) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// decodeRows converts column-oriented results into documents. Vectors are
// returned only when the embedding column was requested.
func decodeRows(columns []entity.Column) ([]Document, [][]float32, error) {
	n := 0
	for _, col := range columns {
		if col.Len() > n {
			n = col.Len()
		}
	}
	docs := make([]Document, n)
	var vectors [][]float32

	for _, col := range columns {
		switch c := col.(type) {
		case *entity.ColumnVarChar:
			for i, v := range c.Data() {
				switch c.Name() {
				case fieldID:
					docs[i].ID = v
				case fieldType:
					docs[i].Fields.Type = v
				case fieldBookTitle:
					docs[i].Fields.BookTitle = v
				case fieldEditor:
					docs[i].Fields.Editor = v
				case fieldContent:
					docs[i].Content = v
				}
			}
		case *entity.ColumnInt64:
			for i, v := range c.Data() {
				switch c.Name() {
				case fieldBookNum:
					docs[i].Fields.BookNum = int(v)
				case fieldChapterNum:
					docs[i].Fields.ChapterNum = int(v)
				case fieldVersion:
					docs[i].Fields.Version = int(v)
				case fieldCreatedAt:
					docs[i].CreatedAt = time.Unix(0, v)
				}
			}
		case *entity.ColumnJSONBytes:
			for i, raw := range c.Data() {
				if len(raw) == 0 {
					continue
				}
				meta := map[string]any{}
				if err := json.Unmarshal(raw, &meta); err != nil {
					return nil, nil, fmt.Errorf("failed to decode metadata: %w", err)
				}
				docs[i].Metadata = meta
			}
		case *entity.ColumnFloatVector:
			vectors = c.Data()
		}
	}
	return docs, vectors, nil
}

func quote(s string) string {
	return strconv.Quote(s)
}

func idExpr(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quote(id)
	}
	return fmt.Sprintf("%s in [%s]", fieldID, strings.Join(quoted, ", "))
}

// filterExpr renders a Filter as a Milvus boolean expression.
func filterExpr(f Filter) string {
	var clauses []string
	if f.Type != "" {
		clauses = append(clauses, fmt.Sprintf("%s == %s", fieldType, quote(f.Type)))
	}
	if f.BookTitle != "" {
		clauses = append(clauses, fmt.Sprintf("%s == %s", fieldBookTitle, quote(f.BookTitle)))
	}
	if f.BookNum != nil {
		clauses = append(clauses, fmt.Sprintf("%s == %d", fieldBookNum, *f.BookNum))
	}
	if f.ChapterNum != nil {
		clauses = append(clauses, fmt.Sprintf("%s == %d", fieldChapterNum, *f.ChapterNum))
	}
	if f.Version != nil {
		clauses = append(clauses, fmt.Sprintf("%s == %d", fieldVersion, *f.Version))
	}
	if f.Editor != "" {
		clauses = append(clauses, fmt.Sprintf("%s == %s", fieldEditor, quote(f.Editor)))
	}
	return strings.Join(clauses, " and ")
}
