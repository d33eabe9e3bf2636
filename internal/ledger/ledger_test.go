package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/Yates-Labs/respin/internal/reward"
	"github.com/Yates-Labs/respin/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gates = ChapterRef{BookTitle: "The Gates of Morning", BookNum: 1, ChapterNum: 1}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	s, err := store.NewBadgerStore(store.BadgerConfig{InMemory: true}, store.NewHashEmbedder(64), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, nil)
}

// seedSpin writes an original, a spin at v1 and its review.
func seedSpin(t *testing.T, l *Ledger) Entry {
	t.Helper()
	ctx := context.Background()
	_, err := l.AddOriginal(ctx, gates, "Once upon a time.", SourceDetails{Title: "Chapter 1"})
	require.NoError(t, err)
	spin, err := l.AddSpin(ctx, gates, "Long ago, a tale began.", 1, SpinDetails{PromptName: "default_v1", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	_, err = l.AddReview(ctx, gates, "Tighten the opening.", 1, "gpt-4o", spin.ID)
	require.NoError(t, err)
	return spin
}

func TestChapterRef_EntryID(t *testing.T) {
	assert.Equal(t, "The_Gates_of_Morning_Book1_Chapter1", gates.BaseID())
	assert.Equal(t, "The_Gates_of_Morning_Book1_Chapter1_v0_original", gates.EntryID(0, TypeOriginal))
	assert.Equal(t, "The_Gates_of_Morning_Book1_Chapter1_v3_final_version", gates.EntryID(3, TypeFinal))
	assert.ErrorIs(t, ChapterRef{}.Validate(), ErrInvalidChapterRef)
}

func TestParseType(t *testing.T) {
	typ, err := ParseType(" Human_Edit ")
	require.NoError(t, err)
	assert.Equal(t, TypeHumanEdit, typ)

	_, err = ParseType("draft")
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestLedger_AddSpinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	first := seedSpin(t, l)

	again, err := l.AddSpin(ctx, gates, "a different rewrite", 1, SpinDetails{PromptName: "vivid_v1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Long ago, a tale began.", again.Content)
	assert.Equal(t, "default_v1", again.Spin.PromptName)

	spins, err := l.Search(ctx, Query{Type: TypeSpin})
	require.NoError(t, err)
	assert.Len(t, spins, 1)
}

func TestLedger_OriginalIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	a, err := l.AddOriginal(ctx, gates, "text", SourceDetails{URL: "https://example.org"})
	require.NoError(t, err)
	b, err := l.AddOriginal(ctx, gates, "changed", SourceDetails{})
	require.NoError(t, err)
	assert.Equal(t, a.Content, b.Content)
	require.NotNil(t, b.Source)
	assert.Equal(t, "https://example.org", b.Source.URL)
}

func TestLedger_RejectsOutOfOrderWrites(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.AddSpin(ctx, gates, "no original yet", 1, SpinDetails{PromptName: "default_v1"})
	assert.ErrorIs(t, err, ErrOutOfOrder)

	spin := seedSpin(t, l)

	tests := []struct {
		name string
		add  func() error
	}{
		{"skipped version", func() error {
			_, err := l.AddSpin(ctx, gates, "x", 3, SpinDetails{PromptName: "default_v1"})
			return err
		}},
		{"stale version", func() error {
			_, err := l.AddHumanEdit(ctx, gates, "x", 1, OutcomeDetails{Editor: "ana"})
			return err
		}},
		{"review ahead of content", func() error {
			_, err := l.AddReview(ctx, gates, "x", 2, "gpt-4o", spin.ID)
			return err
		}},
		{"review of missing entry", func() error {
			_, err := l.AddReview(ctx, gates, "x", 1, "gpt-4o", gates.EntryID(1, TypeHumanEdit))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.add(), ErrOutOfOrder)
		})
	}
}

func TestLedger_ReviewAfterHumanEdit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedSpin(t, l)

	edit, err := l.AddHumanEdit(ctx, gates, "Long ago, a story began.", 2, OutcomeDetails{
		Editor: "ana", Reward: -2.2, EditRatio: 0.5, PromptUsed: "default_v1",
	})
	require.NoError(t, err)

	review, err := l.AddReview(ctx, gates, "Better.", 2, "gpt-4o", edit.ID)
	require.NoError(t, err)
	assert.Equal(t, TypeReviewAfterHuman, review.Type)
	assert.Equal(t, gates.EntryID(2, TypeReviewAfterHuman), review.ID)
	assert.Equal(t, edit.ID, review.Review.ReviewedID)

	got, err := l.Get(ctx, edit.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, "ana", got.Outcome.Editor)
	assert.InDelta(t, -2.2, got.Outcome.Reward, 1e-9)
	assert.Nil(t, got.Outcome.Rating)
}

func TestLedger_FinalAnnotatesOriginal(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedSpin(t, l)

	final, err := l.AddFinal(ctx, gates, "Long ago, a tale began.", 2, OutcomeDetails{
		Editor: "ana", Reward: 13.9, Rating: reward.Rating(5), PromptUsed: "default_v1",
	})
	require.NoError(t, err)
	assert.Equal(t, gates.EntryID(2, TypeFinal), final.ID)

	original, err := l.Get(ctx, gates.EntryID(0, TypeOriginal))
	require.NoError(t, err)
	require.NotNil(t, original.Final)
	assert.InDelta(t, 13.9, original.Final.FinalChapterReward, 1e-9)
	assert.Equal(t, final.ID, original.Final.FinalizedVersionID)
	assert.False(t, original.Final.FinalizedAt.IsZero())
	assert.Equal(t, "Once upon a time.", original.Content)
	require.NotNil(t, original.Source)
	assert.Equal(t, "Chapter 1", original.Source.Title)

	// repeating the final write is a fetch
	again, err := l.AddFinal(ctx, gates, "ignored", 2, OutcomeDetails{Editor: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "ana", again.Outcome.Editor)

	_, err = l.AddSpin(ctx, gates, "after final", 3, SpinDetails{PromptName: "default_v1"})
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestLedger_AnnotateOnlyOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedSpin(t, l)

	first := Entry{ID: gates.EntryID(2, TypeFinal), Outcome: &OutcomeDetails{Reward: 1}}
	require.NoError(t, l.annotate(ctx, gates, first))
	require.NoError(t, l.annotate(ctx, gates, first))

	other := Entry{ID: gates.EntryID(5, TypeFinal), Outcome: &OutcomeDetails{Reward: 2}}
	assert.ErrorIs(t, l.annotate(ctx, gates, other), ErrAlreadyAnnotated)
}

func TestLedger_AnnotateRequiresFinal(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	spin := seedSpin(t, l)

	assert.ErrorIs(t, l.Annotate(ctx, gates, spin), ErrInvalidType)

	final := Entry{ID: gates.EntryID(2, TypeFinal), Type: TypeFinal, Outcome: &OutcomeDetails{Reward: 4}}
	require.NoError(t, l.Annotate(ctx, gates, final))
	original, err := l.Get(ctx, gates.EntryID(0, TypeOriginal))
	require.NoError(t, err)
	require.NotNil(t, original.Final)
	assert.Equal(t, final.ID, original.Final.FinalizedVersionID)
}

func TestLedger_VersionsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedSpin(t, l)

	spin2, err := l.AddSpin(ctx, gates, "Second try.", 2, SpinDetails{PromptName: "vivid_v1"})
	require.NoError(t, err)
	_, err = l.AddReview(ctx, gates, "ok", 2, "gpt-4o", spin2.ID)
	require.NoError(t, err)
	edit, err := l.AddHumanEdit(ctx, gates, "Second try, edited.", 3, OutcomeDetails{Editor: "ana"})
	require.NoError(t, err)
	_, err = l.AddReview(ctx, gates, "fine", 3, "gpt-4o", edit.ID)
	require.NoError(t, err)
	_, err = l.AddFinal(ctx, gates, "Second try, edited.", 4, OutcomeDetails{Editor: "ana"})
	require.NoError(t, err)

	history, err := l.History(ctx, gates)
	require.NoError(t, err)

	var versions []int
	var types []EntryType
	for _, e := range history {
		if !e.Type.IsReview() {
			versions = append(versions, e.Version)
		}
		types = append(types, e.Type)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, versions)
	assert.Equal(t, []EntryType{
		TypeOriginal,
		TypeSpin, TypeReview,
		TypeSpin, TypeReview,
		TypeHumanEdit, TypeReviewAfterHuman,
		TypeFinal,
	}, types)
}

func TestLedger_Resume(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	state, err := l.Resume(ctx, gates)
	require.NoError(t, err)
	assert.True(t, state.Empty())
	assert.Equal(t, 0, state.NextVersion())

	spin := seedSpin(t, l)
	state, err = l.Resume(ctx, gates)
	require.NoError(t, err)
	require.NotNil(t, state.Current)
	require.NotNil(t, state.Review)
	require.NotNil(t, state.Original)
	assert.Equal(t, spin.ID, state.Current.ID)
	assert.Equal(t, "Tighten the opening.", state.Review.Content)
	assert.Equal(t, "default_v1", state.PromptName)
	assert.Equal(t, 1, state.Version)
	assert.Equal(t, 2, state.NextVersion())
	assert.False(t, state.Finalized)

	// an edit without its review yet leaves no current review
	_, err = l.AddHumanEdit(ctx, gates, "edited", 2, OutcomeDetails{Editor: "ana"})
	require.NoError(t, err)
	state, err = l.Resume(ctx, gates)
	require.NoError(t, err)
	assert.Equal(t, TypeHumanEdit, state.Current.Type)
	assert.Nil(t, state.Review)
	assert.Equal(t, "default_v1", state.PromptName)
}

func TestLedger_SearchFilters(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedSpin(t, l)
	_, err := l.AddHumanEdit(ctx, gates, "the tale began long ago", 2, OutcomeDetails{Editor: "ana"})
	require.NoError(t, err)

	results, err := l.Search(ctx, Query{Editor: "ana"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, TypeHumanEdit, results[0].Type)

	results, err = l.Search(ctx, Query{Version: store.IntPtr(1)})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = l.Search(ctx, Query{Text: "a tale began long ago", Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Greater(t, results[0].Score, float32(0))
	assert.Less(t, results[0].Distance(), float32(1))

	_, err = l.Search(ctx, Query{Type: "draft"})
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestExport_JSON(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedSpin(t, l)
	history, err := l.History(ctx, gates)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(history, "JSON", &buf))

	var exported []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &exported))
	require.Len(t, exported, 3)
	assert.Equal(t, "original", exported[0]["type"])
	assert.Equal(t, float64(len("Once upon a time.")), exported[0]["chars"])

	err = Export(history, "xml", &buf)
	assert.ErrorContains(t, err, "unsupported export format")
}
