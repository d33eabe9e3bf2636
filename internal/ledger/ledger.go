package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yates-Labs/respin/internal/store"
	"go.uber.org/zap"
)

// Ledger is the sole writer of revision entries. Writes are create-or-fetch:
// re-issuing a write for an existing id returns the stored entry.
type Ledger struct {
	store  store.VectorStore
	logger *zap.Logger
	now    func() time.Time
}

// New creates a ledger over the given store.
func New(s store.VectorStore, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:  s,
		logger: logger.Named("ledger"),
		now:    time.Now,
	}
}

// AddOriginal records the source text of a chapter at version 0.
func (l *Ledger) AddOriginal(ctx context.Context, chapter ChapterRef, content string, source SourceDetails) (Entry, error) {
	return l.append(ctx, Entry{
		Chapter: chapter,
		Version: 0,
		Type:    TypeOriginal,
		Content: content,
		Source:  &source,
	})
}

// AddSpin records an AI rewrite. version must be one past the chapter's
// current maximum.
func (l *Ledger) AddSpin(ctx context.Context, chapter ChapterRef, content string, version int, spin SpinDetails) (Entry, error) {
	return l.append(ctx, Entry{
		Chapter: chapter,
		Version: version,
		Type:    TypeSpin,
		Content: content,
		Spin:    &spin,
	})
}

// AddReview records a review of reviewedID at the same version. A review of a
// human edit is stored as ai_review_after_human.
func (l *Ledger) AddReview(ctx context.Context, chapter ChapterRef, content string, version int, model, reviewedID string) (Entry, error) {
	reviewed, err := l.Get(ctx, reviewedID)
	if errors.Is(err, ErrNotFound) {
		l.logger.Warn("review references a missing entry",
			zap.String("chapter", chapter.BaseID()),
			zap.String("reviewed_id", reviewedID))
		return Entry{}, fmt.Errorf("%w: reviewed entry %s does not exist", ErrOutOfOrder, reviewedID)
	}
	if err != nil {
		return Entry{}, err
	}

	typ := TypeReview
	if reviewed.Type == TypeHumanEdit {
		typ = TypeReviewAfterHuman
	}
	return l.append(ctx, Entry{
		Chapter: chapter,
		Version: version,
		Type:    typ,
		Content: content,
		Review:  &ReviewDetails{Model: model, ReviewedID: reviewedID},
	})
}

// AddHumanEdit records content edited by the operator.
func (l *Ledger) AddHumanEdit(ctx context.Context, chapter ChapterRef, content string, version int, outcome OutcomeDetails) (Entry, error) {
	return l.append(ctx, Entry{
		Chapter: chapter,
		Version: version,
		Type:    TypeHumanEdit,
		Content: content,
		Outcome: &outcome,
	})
}

// AddFinal records the accepted content and annotates the chapter's original
// entry with the final reward. No further writes are accepted for the
// chapter afterwards.
func (l *Ledger) AddFinal(ctx context.Context, chapter ChapterRef, content string, version int, outcome OutcomeDetails) (Entry, error) {
	final, err := l.append(ctx, Entry{
		Chapter: chapter,
		Version: version,
		Type:    TypeFinal,
		Content: content,
		Outcome: &outcome,
	})
	if err != nil {
		return Entry{}, err
	}

	if err := l.annotate(ctx, chapter, final); err != nil {
		return final, err
	}
	return final, nil
}

// Annotate records final on the chapter's original entry. It completes a
// finalization whose annotation failed after the final entry was stored.
func (l *Ledger) Annotate(ctx context.Context, chapter ChapterRef, final Entry) error {
	if final.Type != TypeFinal {
		return fmt.Errorf("%w: %s is not a final version", ErrInvalidType, final.ID)
	}
	return l.annotate(ctx, chapter, final)
}

// annotate attaches the final annotation to the original entry. It is the
// only path that modifies a stored entry and succeeds at most once per
// chapter.
func (l *Ledger) annotate(ctx context.Context, chapter ChapterRef, final Entry) error {
	originalID := chapter.EntryID(0, TypeOriginal)
	original, err := l.Get(ctx, originalID)
	if err != nil {
		return fmt.Errorf("failed to annotate original: %w", err)
	}
	if original.Final != nil {
		if original.Final.FinalizedVersionID == final.ID {
			return nil
		}
		return fmt.Errorf("%w: %s finalized by %s", ErrAlreadyAnnotated, originalID, original.Final.FinalizedVersionID)
	}

	var reward float64
	if final.Outcome != nil {
		reward = final.Outcome.Reward
	}
	annotation, err := toMap(FinalAnnotation{
		FinalChapterReward: reward,
		FinalizedVersionID: final.ID,
		FinalizedAt:        l.now(),
	})
	if err != nil {
		return err
	}
	if err := l.store.UpdateMetadata(ctx, originalID, map[string]any{"final": annotation}); err != nil {
		return fmt.Errorf("failed to annotate original %s: %w", originalID, err)
	}

	l.logger.Info("annotated original with final reward",
		zap.String("id", originalID),
		zap.String("final_id", final.ID),
		zap.Float64("reward", reward))
	return nil
}

// Get returns the entry with the given id.
func (l *Ledger) Get(ctx context.Context, id string) (Entry, error) {
	docs, err := l.store.Get(ctx, []string{id})
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read entry %s: %w", id, err)
	}
	if len(docs) == 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entryFromDocument(docs[0])
}

// append validates e against the chapter's history and stores it.
func (l *Ledger) append(ctx context.Context, e Entry) (Entry, error) {
	if err := e.Chapter.Validate(); err != nil {
		return Entry{}, err
	}
	e.ID = e.Chapter.EntryID(e.Version, e.Type)
	logger := l.logger.With(zap.String("id", e.ID))

	existing, err := l.Get(ctx, e.ID)
	if err == nil {
		logger.Warn("entry already exists, returning stored entry")
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Entry{}, err
	}

	entries, err := l.chapterEntries(ctx, e.Chapter)
	if err != nil {
		return Entry{}, err
	}
	if err := validateAppend(e, entries); err != nil {
		logger.Warn("rejected ledger write", zap.Error(err))
		return Entry{}, err
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	doc, err := e.document()
	if err != nil {
		return Entry{}, err
	}
	written, err := l.store.Put(ctx, doc)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to store entry %s: %w", e.ID, err)
	}
	if !written {
		// lost a race with another writer; the stored entry wins
		return l.Get(ctx, e.ID)
	}

	logger.Debug("appended entry", zap.Int("version", e.Version), zap.String("type", string(e.Type)))
	return e, nil
}

// validateAppend enforces version ordering for a new entry given the
// chapter's existing entries.
func validateAppend(e Entry, entries []Entry) error {
	maxVersion := -1
	hasOriginal := false
	known := make(map[string]Entry, len(entries))
	for _, existing := range entries {
		known[existing.ID] = existing
		if existing.Type == TypeFinal {
			return fmt.Errorf("%w: %s", ErrFinalized, existing.ID)
		}
		if existing.Type == TypeOriginal {
			hasOriginal = true
		}
		maxVersion = max(maxVersion, existing.Version)
	}

	switch {
	case e.Type == TypeOriginal:
		if e.Version != 0 || len(entries) > 0 {
			return fmt.Errorf("%w: original must be the first entry at version 0", ErrOutOfOrder)
		}
	case !hasOriginal:
		return fmt.Errorf("%w: chapter has no original entry", ErrOutOfOrder)
	case e.Type.IsReview():
		if e.Version != maxVersion {
			return fmt.Errorf("%w: review version %d, current version %d", ErrOutOfOrder, e.Version, maxVersion)
		}
		reviewed, ok := known[e.Review.ReviewedID]
		if !ok {
			return fmt.Errorf("%w: reviewed entry %s does not exist", ErrOutOfOrder, e.Review.ReviewedID)
		}
		if reviewed.Version != e.Version {
			return fmt.Errorf("%w: review of %s must share its version", ErrOutOfOrder, reviewed.ID)
		}
	default:
		if e.Version != maxVersion+1 {
			return fmt.Errorf("%w: version %d, expected %d", ErrOutOfOrder, e.Version, maxVersion+1)
		}
	}
	return nil
}

// chapterEntries returns every stored entry of the chapter, unordered.
func (l *Ledger) chapterEntries(ctx context.Context, chapter ChapterRef) ([]Entry, error) {
	hits, err := l.store.Query(ctx, "", chapter.filter(), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load chapter %s: %w", chapter.BaseID(), err)
	}
	entries := make([]Entry, 0, len(hits))
	for _, hit := range hits {
		e, err := entryFromDocument(hit.Document)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Query narrows a ledger search. Unset fields do not filter.
type Query struct {
	Text       string
	Type       EntryType
	BookTitle  string
	BookNum    *int
	ChapterNum *int
	Version    *int
	Editor     string
	Limit      int
}

// Result is an entry returned by Search with its similarity to the query
// text.
type Result struct {
	Entry
	Score float32 `json:"score"`
}

// Distance returns the cosine distance, 1 - similarity.
func (r Result) Distance() float32 {
	return 1 - r.Score
}

// Search returns entries matching every set filter, ranked by similarity to
// q.Text when it is set.
func (l *Ledger) Search(ctx context.Context, q Query) ([]Result, error) {
	if q.Type != "" {
		if _, err := ParseType(string(q.Type)); err != nil {
			return nil, err
		}
	}
	hits, err := l.store.Query(ctx, q.Text, store.Filter{
		Type:       string(q.Type),
		BookTitle:  q.BookTitle,
		BookNum:    q.BookNum,
		ChapterNum: q.ChapterNum,
		Version:    q.Version,
		Editor:     q.Editor,
	}, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		e, err := entryFromDocument(hit.Document)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Entry: e, Score: hit.Score})
	}
	return results, nil
}
