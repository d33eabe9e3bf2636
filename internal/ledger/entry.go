// Package ledger records the append-only revision history of a chapter.
// Every rewrite, review, human edit and final version is stored as an Entry
// keyed by a deterministic id, so an interrupted session can resume by
// re-issuing the same writes.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Yates-Labs/respin/internal/store"
)

// Common errors for ledger operations
var (
	ErrNotFound          = errors.New("ledger entry not found")
	ErrOutOfOrder        = errors.New("ledger write out of order")
	ErrFinalized         = errors.New("chapter already finalized")
	ErrAlreadyAnnotated  = errors.New("original entry already annotated")
	ErrInvalidType       = errors.New("invalid entry type")
	ErrInvalidChapterRef = errors.New("invalid chapter reference")
)

// EntryType identifies the kind of revision an entry records.
type EntryType string

const (
	TypeOriginal         EntryType = "original"
	TypeSpin             EntryType = "ai_spin"
	TypeReview           EntryType = "ai_review"
	TypeHumanEdit        EntryType = "human_edit"
	TypeReviewAfterHuman EntryType = "ai_review_after_human"
	TypeFinal            EntryType = "final_version"
)

// AllTypes lists every entry type in history order.
var AllTypes = []EntryType{
	TypeOriginal, TypeSpin, TypeHumanEdit, TypeFinal, TypeReview, TypeReviewAfterHuman,
}

// ParseType validates s as an entry type.
func ParseType(s string) (EntryType, error) {
	t := EntryType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// IsReview reports whether t is a review of another entry.
func (t EntryType) IsReview() bool {
	return t == TypeReview || t == TypeReviewAfterHuman
}

// order ranks types within a single version so a review sorts after the
// entry it reviews.
func (t EntryType) order() int {
	for i, known := range AllTypes {
		if t == known {
			return i
		}
	}
	return len(AllTypes)
}

// ChapterRef identifies a chapter.
type ChapterRef struct {
	BookTitle  string `json:"book_title"`
	BookNum    int    `json:"book_num"`
	ChapterNum int    `json:"chapter_num"`
}

// Validate checks that the reference can produce ids.
func (c ChapterRef) Validate() error {
	if strings.TrimSpace(c.BookTitle) == "" {
		return fmt.Errorf("%w: book title is required", ErrInvalidChapterRef)
	}
	if c.BookNum < 0 || c.ChapterNum < 0 {
		return fmt.Errorf("%w: negative book or chapter number", ErrInvalidChapterRef)
	}
	return nil
}

// BaseID returns the id prefix shared by every entry of the chapter,
// e.g. "The_Gates_of_Morning_Book1_Chapter1".
func (c ChapterRef) BaseID() string {
	return fmt.Sprintf("%s_Book%d_Chapter%d", strings.ReplaceAll(c.BookTitle, " ", "_"), c.BookNum, c.ChapterNum)
}

// EntryID returns the deterministic id for a version and type.
func (c ChapterRef) EntryID(version int, t EntryType) string {
	return fmt.Sprintf("%s_v%d_%s", c.BaseID(), version, t)
}

func (c ChapterRef) String() string {
	return fmt.Sprintf("%s book %d chapter %d", c.BookTitle, c.BookNum, c.ChapterNum)
}

func (c ChapterRef) filter() store.Filter {
	return store.Filter{
		BookTitle:  c.BookTitle,
		BookNum:    store.IntPtr(c.BookNum),
		ChapterNum: store.IntPtr(c.ChapterNum),
	}
}

// SourceDetails describe where an original chapter came from.
type SourceDetails struct {
	URL            string `json:"url,omitempty"`
	Title          string `json:"title,omitempty"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
}

// SpinDetails describe how an AI rewrite was produced.
type SpinDetails struct {
	PromptName     string `json:"prompt_template_name"`
	Model          string `json:"model_used,omitempty"`
	Instruction    string `json:"instruction,omitempty"`
	Generated      bool   `json:"generated_by_ai,omitempty"`
	GeneratorModel string `json:"prompt_generator_model,omitempty"`

	// Set when the spin followed a respin request.
	RewardLeadingToSpin *float64 `json:"reward_leading_to_spin,omitempty"`
	RatingLeadingToSpin *int     `json:"human_rating_leading_to_spin,omitempty"`
}

// ReviewDetails link a review to the entry it reviewed.
type ReviewDetails struct {
	Model      string `json:"model_used,omitempty"`
	ReviewedID string `json:"reviewed_version_id"`
}

// OutcomeDetails record a human decision and the reward it produced.
type OutcomeDetails struct {
	Editor     string  `json:"editor"`
	Reward     float64 `json:"reward"`
	EditRatio  float64 `json:"levenshtein_ratio"`
	Rating     *int    `json:"human_rating,omitempty"`
	PromptUsed string  `json:"prompt_used"`
}

// FinalAnnotation is attached to the original entry once the chapter is
// finalized.
type FinalAnnotation struct {
	FinalChapterReward float64   `json:"final_chapter_reward"`
	FinalizedVersionID string    `json:"finalized_version_id"`
	FinalizedAt        time.Time `json:"finalized_at"`
}

// Entry is one revision of a chapter. Exactly one of the detail pointers is
// set, matching Type; Final may additionally be set on the original.
type Entry struct {
	ID        string     `json:"id"`
	Chapter   ChapterRef `json:"chapter"`
	Version   int        `json:"version"`
	Type      EntryType  `json:"type"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`

	Source  *SourceDetails   `json:"source,omitempty"`
	Spin    *SpinDetails     `json:"spin,omitempty"`
	Review  *ReviewDetails   `json:"review,omitempty"`
	Outcome *OutcomeDetails  `json:"outcome,omitempty"`
	Final   *FinalAnnotation `json:"final,omitempty"`
}

// Reward returns the reward attached to a human outcome, if any.
func (e Entry) Reward() (float64, bool) {
	if e.Outcome == nil {
		return 0, false
	}
	return e.Outcome.Reward, true
}

// metadata is the stored form of an entry's typed details.
type metadata struct {
	Source  *SourceDetails   `json:"source,omitempty"`
	Spin    *SpinDetails     `json:"spin,omitempty"`
	Review  *ReviewDetails   `json:"review,omitempty"`
	Outcome *OutcomeDetails  `json:"outcome,omitempty"`
	Final   *FinalAnnotation `json:"final,omitempty"`
}

// toMap converts v to a generic map through its JSON form.
func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (e Entry) document() (store.Document, error) {
	meta, err := toMap(metadata{
		Source:  e.Source,
		Spin:    e.Spin,
		Review:  e.Review,
		Outcome: e.Outcome,
		Final:   e.Final,
	})
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to encode metadata for %s: %w", e.ID, err)
	}

	var editor string
	if e.Outcome != nil {
		editor = e.Outcome.Editor
	}

	return store.Document{
		ID:      e.ID,
		Content: e.Content,
		Fields: store.Fields{
			Type:       string(e.Type),
			BookTitle:  e.Chapter.BookTitle,
			BookNum:    e.Chapter.BookNum,
			ChapterNum: e.Chapter.ChapterNum,
			Version:    e.Version,
			Editor:     editor,
		},
		Metadata:  meta,
		CreatedAt: e.Timestamp,
	}, nil
}

func entryFromDocument(doc store.Document) (Entry, error) {
	e := Entry{
		ID: doc.ID,
		Chapter: ChapterRef{
			BookTitle:  doc.Fields.BookTitle,
			BookNum:    doc.Fields.BookNum,
			ChapterNum: doc.Fields.ChapterNum,
		},
		Version:   doc.Fields.Version,
		Type:      EntryType(doc.Fields.Type),
		Content:   doc.Content,
		Timestamp: doc.CreatedAt,
	}

	if len(doc.Metadata) == 0 {
		return e, nil
	}
	raw, err := json.Marshal(doc.Metadata)
	if err != nil {
		return e, fmt.Errorf("failed to decode metadata for %s: %w", doc.ID, err)
	}
	var meta metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return e, fmt.Errorf("failed to decode metadata for %s: %w", doc.ID, err)
	}
	e.Source = meta.Source
	e.Spin = meta.Spin
	e.Review = meta.Review
	e.Outcome = meta.Outcome
	e.Final = meta.Final
	return e, nil
}
