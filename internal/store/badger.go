package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var docPrefix = []byte("doc/")

// BadgerConfig holds configuration for the embedded store.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool
}

// DefaultBadgerConfig returns the configuration used for local sessions.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		Path:       "./ledger_data",
		SyncWrites: true,
	}
}

// BadgerStore implements VectorStore on an embedded BadgerDB. Similarity
// search is a brute-force cosine scan, which is adequate for the size of a
// single operator's revision history.
type BadgerStore struct {
	db       *badger.DB
	embedder Embedder
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
}

// storedDocument is the on-disk representation of a document.
type storedDocument struct {
	Document
	Embedding []float32 `json:"embedding,omitempty"`
}

// zapBadgerLogger adapts zap to BadgerDB's Logger interface.
type zapBadgerLogger struct {
	s *zap.SugaredLogger
}

func (l zapBadgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l zapBadgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l zapBadgerLogger) Infof(format string, args ...interface{})    { l.s.Debugf(format, args...) }
func (l zapBadgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }

// NewBadgerStore opens (or creates) an embedded store.
func NewBadgerStore(config BadgerConfig, embedder Embedder, logger *zap.Logger) (*BadgerStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("badger")

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.Path == "" {
			return nil, fmt.Errorf("badger path is required when not in memory")
		}
		if err := os.MkdirAll(config.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		opts = badger.DefaultOptions(config.Path)
	}
	opts = opts.WithSyncWrites(config.SyncWrites).WithLogger(zapBadgerLogger{s: logger.Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &BadgerStore{
		db:       db,
		embedder: embedder,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func docKey(id string) []byte {
	return append(append([]byte{}, docPrefix...), id...)
}

func (b *BadgerStore) checkOpen() error {
	if b.closed {
		return ErrStoreClosed
	}
	return nil
}

// Put stores doc unless its ID already exists.
func (b *BadgerStore) Put(ctx context.Context, doc Document) (bool, error) {
	if doc.ID == "" {
		return false, ErrEmptyID
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return false, err
	}

	exists, err := b.exists(doc.ID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	vec, err := embedOne(ctx, b.embedder, doc.Content)
	if err != nil {
		return false, err
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = b.now()
	}

	value, err := json.Marshal(storedDocument{Document: doc, Embedding: vec})
	if err != nil {
		return false, fmt.Errorf("failed to encode document: %w", err)
	}

	written := false
	err = b.db.Update(func(txn *badger.Txn) error {
		// re-check inside the transaction so concurrent puts stay idempotent
		if _, err := txn.Get(docKey(doc.ID)); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		written = true
		return txn.Set(docKey(doc.ID), value)
	})
	if err != nil {
		return false, fmt.Errorf("failed to write document %s: %w", doc.ID, err)
	}
	return written, nil
}

func (b *BadgerStore) exists(id string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(docKey(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", id, err)
	}
	return true, nil
}

// Get returns the documents that exist among ids.
func (b *BadgerStore) Get(_ context.Context, ids []string) ([]Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(ids))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			stored, err := readDocument(txn, id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			docs = append(docs, stored.Document)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

func readDocument(txn *badger.Txn, id string) (storedDocument, error) {
	var stored storedDocument
	item, err := txn.Get(docKey(id))
	if err != nil {
		return stored, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &stored)
	})
	return stored, err
}

// UpdateMetadata merges patch into the metadata of an existing document.
func (b *BadgerStore) UpdateMetadata(_ context.Context, id string, patch map[string]any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		stored, err := readDocument(txn, id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		stored.Metadata = mergeMetadata(stored.Metadata, patch)
		value, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return txn.Set(docKey(id), value)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to update metadata for %s: %w", id, err)
	}
	return nil
}

// Query scans every document, applies filter and ranks by cosine similarity
// to text when text is given.
func (b *BadgerStore) Query(ctx context.Context, text string, filter Filter, limit int) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var queryVec []float32
	if text != "" {
		vec, err := embedOne(ctx, b.embedder, text)
		if err != nil {
			return nil, err
		}
		queryVec = vec
	}

	var hits []Hit
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(docPrefix); it.ValidForPrefix(docPrefix); it.Next() {
			var stored storedDocument
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}
			if !filter.Matches(stored.Fields) {
				continue
			}
			hit := Hit{Document: stored.Document}
			if queryVec != nil {
				hit.Score = cosine(queryVec, stored.Embedding)
			}
			hits = append(hits, hit)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}

	if queryVec != nil {
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Close releases the underlying database.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
