// Package store persists revision documents with their embeddings and serves
// filtered similarity search over them. Two backends are provided: an
// embedded Badger store for single-machine use and a Milvus store.
package store

import (
	"context"
	"errors"
	"time"
)

// Common errors for store operations
var (
	ErrNotFound       = errors.New("document not found")
	ErrEmptyID        = errors.New("document id is required")
	ErrStoreClosed    = errors.New("store is closed")
	ErrInvalidFilter  = errors.New("invalid filter")
	ErrEmbeddingShape = errors.New("embedding has unexpected dimension")
)

// Fields are the scalar attributes of a document that queries can filter on.
type Fields struct {
	Type       string `json:"type"`
	BookTitle  string `json:"book_title"`
	BookNum    int    `json:"book_num"`
	ChapterNum int    `json:"chapter_num"`
	Version    int    `json:"version"`
	Editor     string `json:"editor,omitempty"`
}

// Document is a stored text payload with its filterable fields and free-form
// metadata.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Fields    Fields         `json:"fields"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter narrows a query. Every non-empty field must match (logical AND).
type Filter struct {
	Type       string
	BookTitle  string
	BookNum    *int
	ChapterNum *int
	Version    *int
	Editor     string
}

// Matches reports whether f accepts the given fields.
func (f Filter) Matches(fields Fields) bool {
	if f.Type != "" && f.Type != fields.Type {
		return false
	}
	if f.BookTitle != "" && f.BookTitle != fields.BookTitle {
		return false
	}
	if f.BookNum != nil && *f.BookNum != fields.BookNum {
		return false
	}
	if f.ChapterNum != nil && *f.ChapterNum != fields.ChapterNum {
		return false
	}
	if f.Version != nil && *f.Version != fields.Version {
		return false
	}
	if f.Editor != "" && f.Editor != fields.Editor {
		return false
	}
	return true
}

// Hit is a query result. Score is the cosine similarity to the query text, or
// zero when the query had no text.
type Hit struct {
	Document
	Score float32 `json:"score"`
}

// VectorStore is the storage collaborator used by the revision ledger.
type VectorStore interface {
	// Put stores doc unless a document with the same ID exists. The returned
	// bool is true when the document was written.
	Put(ctx context.Context, doc Document) (bool, error)

	// Get returns the documents that exist among ids, in the order requested.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// UpdateMetadata merges patch into the metadata of an existing document.
	UpdateMetadata(ctx context.Context, id string, patch map[string]any) error

	// Query returns up to limit documents matching filter. When text is not
	// empty results are ranked by similarity to it; otherwise order is
	// unspecified and limit <= 0 means no limit.
	Query(ctx context.Context, text string, filter Filter, limit int) ([]Hit, error)

	// Close releases resources held by the store.
	Close() error
}

// IntPtr returns a pointer to v for use in Filter.
func IntPtr(v int) *int {
	return &v
}

func mergeMetadata(dst, patch map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		dst[k] = v
	}
	return dst
}
