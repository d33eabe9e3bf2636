package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is the persistent prompt score mapping. It owns the in-memory catalog
// and writes the whole mapping back to disk after every mutation.
//
// Store is safe for concurrent use; mutations are serialized so that a
// read-modify-write never interleaves with another.
type Store struct {
	path   string
	bounds Bounds
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	catalog Catalog
}

// NewStore creates a store backed by the JSON file at path. Call Load before use.
func NewStore(path string, bounds Bounds, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:    path,
		bounds:  bounds,
		logger:  logger.Named("prompts"),
		now:     time.Now,
		catalog: Catalog{},
	}
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Bounds returns the score bounds the store enforces.
func (s *Store) Bounds() Bounds {
	return s.bounds
}

// Load reads the persisted catalog. When the file does not exist the built-in
// seed set is used instead. The loaded catalog replaces the in-memory one and a
// copy is returned.
func (s *Store) Load() (Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("prompt score file not found, using seed templates", zap.String("path", s.path))
		s.catalog = SeedCatalog(s.now())
		return s.catalog.Clone(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt scores: %w", err)
	}

	catalog := Catalog{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptFile, s.path, err)
		}
	}
	for name, rec := range catalog {
		rec.Score = s.bounds.Clamp(rec.Score)
		catalog[name] = rec
	}
	if len(catalog) == 0 {
		s.logger.Warn("prompt score file is empty, using seed templates", zap.String("path", s.path))
		catalog = SeedCatalog(s.now())
	}

	s.catalog = catalog
	s.logger.Info("loaded prompt scores", zap.Int("prompts", len(catalog)), zap.String("path", s.path))
	return s.catalog.Clone(), nil
}

// Save replaces the in-memory catalog with catalog and persists it atomically.
func (s *Store) Save(catalog Catalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.catalog = catalog.Clone()
	return s.persistLocked()
}

// Snapshot returns a copy of the current catalog.
func (s *Store) Snapshot() Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Clone()
}

// Get returns the record stored under name.
func (s *Store) Get(name string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.catalog[name]
	return rec, ok
}

// AddTemplate inserts a new prompt and persists the catalog. Adding a name that
// already exists leaves the catalog untouched and returns ErrExists.
func (s *Store) AddTemplate(name, template string, initialScore float64, origin Origin) error {
	if name == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalog[name]; ok {
		s.logger.Warn("prompt already exists, not adding", zap.String("prompt", name))
		return fmt.Errorf("%w: %s", ErrExists, name)
	}

	s.catalog[name] = Record{
		Template:  template,
		Score:     s.bounds.Clamp(initialScore),
		Origin:    origin,
		CreatedAt: s.now(),
	}
	s.logger.Info("added prompt template", zap.String("prompt", name), zap.String("origin", string(origin)))
	return s.persistLocked()
}

// UpdateScore applies score = clamp(score + learningRate*reward) to name and
// persists the catalog. Sentinel and unknown names are skipped; the returned
// bool reports whether a score was changed.
func (s *Store) UpdateScore(name string, reward, learningRate float64) (float64, bool, error) {
	if IsSentinel(name) {
		s.logger.Debug("skipping score update for sentinel prompt", zap.String("prompt", name))
		return 0, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.catalog[name]
	if !ok {
		s.logger.Warn("score update for unknown prompt ignored", zap.String("prompt", name))
		return 0, false, nil
	}

	old := rec.Score
	now := s.now()
	rec.Score = s.bounds.Clamp(rec.Score + learningRate*reward)
	rec.Uses++
	rec.TotalReward += reward
	rec.LastReward = reward
	rec.LastUsedAt = &now
	s.catalog[name] = rec

	s.logger.Info("updated prompt score",
		zap.String("prompt", name),
		zap.Float64("reward", reward),
		zap.Float64("old_score", old),
		zap.Float64("new_score", rec.Score))

	if err := s.persistLocked(); err != nil {
		return rec.Score, true, err
	}
	return rec.Score, true, nil
}

// persistLocked writes the catalog to a temporary sibling file and renames it
// over the target so readers never observe a partial write.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode prompt scores: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create prompt score directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write prompt scores: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync prompt scores: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close prompt scores: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace prompt scores: %w", err)
	}
	return nil
}
