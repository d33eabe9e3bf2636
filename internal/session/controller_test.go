package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Yates-Labs/respin/internal/generation"
	"github.com/Yates-Labs/respin/internal/ledger"
	"github.com/Yates-Labs/respin/internal/metrics"
	"github.com/Yates-Labs/respin/internal/prompts"
	"github.com/Yates-Labs/respin/internal/reward"
	"github.com/Yates-Labs/respin/internal/scrape"
	"github.com/Yates-Labs/respin/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	target  = scrape.Target{Slug: "The_Gates_of_Morning", BookNum: 1, ChapterNum: 1}
	chapter = ledger.ChapterRef{BookTitle: "The Gates of Morning", BookNum: 1, ChapterNum: 1}
)

const originalText = "Once upon a time."

// scriptedOperator replays queued answers and records everything shown.
type scriptedOperator struct {
	name         string
	ratings      []*int
	actions      []Action
	sources      []RespinSource
	instructions []string
	searches     []SearchRequest

	askedName bool
	views     []View
	rewards   []reward.Breakdown
	results   [][]ledger.Result
	infos     []string
	warnings  []string
}

func (o *scriptedOperator) AskName(context.Context) (string, error) {
	o.askedName = true
	if o.name == "" {
		return "ana", nil
	}
	return o.name, nil
}

func (o *scriptedOperator) ShowChapter(view View) { o.views = append(o.views, view) }

func (o *scriptedOperator) AskRating(context.Context) (*int, error) {
	if len(o.ratings) == 0 {
		return nil, nil
	}
	r := o.ratings[0]
	o.ratings = o.ratings[1:]
	return r, nil
}

func (o *scriptedOperator) AskAction(context.Context) (Action, error) {
	if len(o.actions) == 0 {
		return ActionExit, nil
	}
	a := o.actions[0]
	o.actions = o.actions[1:]
	return a, nil
}

func (o *scriptedOperator) AskRespinSource(context.Context) (RespinSource, error) {
	if len(o.sources) == 0 {
		return RespinAdaptive, nil
	}
	s := o.sources[0]
	o.sources = o.sources[1:]
	return s, nil
}

func (o *scriptedOperator) AskCustomInstruction(context.Context) (string, error) {
	if len(o.instructions) == 0 {
		return "", nil
	}
	s := o.instructions[0]
	o.instructions = o.instructions[1:]
	return s, nil
}

func (o *scriptedOperator) AskSearch(context.Context) (SearchRequest, error) {
	if len(o.searches) == 0 {
		return SearchRequest{}, errors.New("no search scripted")
	}
	s := o.searches[0]
	o.searches = o.searches[1:]
	return s, nil
}

func (o *scriptedOperator) ShowResults(results []ledger.Result) {
	o.results = append(o.results, results)
}

func (o *scriptedOperator) ShowReward(_ reward.Action, b reward.Breakdown) {
	o.rewards = append(o.rewards, b)
}

func (o *scriptedOperator) Info(msg string)    { o.infos = append(o.infos, msg) }
func (o *scriptedOperator) Warn(msg string)    { o.warnings = append(o.warnings, msg) }
func (o *scriptedOperator) Success(msg string) { o.infos = append(o.infos, msg) }

type stubEditor struct {
	outputs []string
}

func (e *stubEditor) Edit(_ context.Context, content string) (string, error) {
	if len(e.outputs) == 0 {
		return content, nil
	}
	out := e.outputs[0]
	e.outputs = e.outputs[1:]
	return out, nil
}

type stubFetcher struct {
	page  scrape.Page
	err   error
	calls int
}

func (f *stubFetcher) Fetch(context.Context, scrape.Target) (scrape.Page, error) {
	f.calls++
	return f.page, f.err
}

type recordingSpeaker struct {
	spoken []string
}

func (s *recordingSpeaker) Speak(_ context.Context, text, _ string) error {
	s.spoken = append(s.spoken, text)
	return nil
}

type harness struct {
	ctrl        *Controller
	ledger      *ledger.Ledger
	prompts     *prompts.Store
	operator    *scriptedOperator
	editor      *stubEditor
	fetcher     *stubFetcher
	speaker     *recordingSpeaker
	rewriteLLM  *generation.MockLLM
	reviewLLM   *generation.MockLLM
	summaryLLM  *generation.MockLLM
	instructLLM *generation.MockLLM
}

// failingStore fails a number of Put calls for one document type and a
// number of metadata updates before passing calls through.
type failingStore struct {
	store.VectorStore
	putType     string
	failPuts    int
	failUpdates int
}

var errStoreDown = errors.New("store unavailable")

func (f *failingStore) Put(ctx context.Context, doc store.Document) (bool, error) {
	if doc.Fields.Type == f.putType && f.failPuts > 0 {
		f.failPuts--
		return false, errStoreDown
	}
	return f.VectorStore.Put(ctx, doc)
}

func (f *failingStore) UpdateMetadata(ctx context.Context, id string, patch map[string]any) error {
	if f.failUpdates > 0 {
		f.failUpdates--
		return errStoreDown
	}
	return f.VectorStore.UpdateMetadata(ctx, id, patch)
}

func newHarness(t *testing.T, catalog prompts.Catalog) *harness {
	return newHarnessWithStore(t, catalog, nil)
}

func newHarnessWithStore(t *testing.T, catalog prompts.Catalog, wrap func(store.VectorStore) store.VectorStore) *harness {
	t.Helper()

	badger, err := store.NewBadgerStore(store.BadgerConfig{InMemory: true}, store.NewHashEmbedder(64), nil)
	require.NoError(t, err)
	t.Cleanup(func() { badger.Close() })
	var vs store.VectorStore = badger
	if wrap != nil {
		vs = wrap(vs)
	}

	ps := prompts.NewStore(filepath.Join(t.TempDir(), "prompt_scores.json"), prompts.DefaultBounds(), nil)
	if catalog == nil {
		catalog = prompts.Catalog{"default_v1": {Template: "Rewrite plainly.\n\n", Origin: prompts.OriginSeed}}
	}
	require.NoError(t, ps.Save(catalog))

	h := &harness{
		ledger:      ledger.New(vs, nil),
		prompts:     ps,
		operator:    &scriptedOperator{},
		editor:      &stubEditor{},
		fetcher:     &stubFetcher{page: scrape.Page{URL: target.URL(""), Title: "Chapter 1", Text: originalText, Valid: true}},
		speaker:     &recordingSpeaker{},
		rewriteLLM:  &generation.MockLLM{Response: "Long ago, a tale began.", ModelName: "rewrite-model"},
		reviewLLM:   &generation.MockLLM{Response: "Tighten the opening.", ModelName: "review-model"},
		summaryLLM:  generation.NewMockLLM("A voyage begins."),
		instructLLM: &generation.MockLLM{Response: "Rewrite it as a ballad.", ModelName: "prompt-model"},
	}

	ctrl, err := New(Components{
		Ledger:     h.ledger,
		Prompts:    ps,
		Selector:   prompts.NewSeededSelector(prompts.DefaultBounds().ExcludeThreshold, 1),
		Fetcher:    h.fetcher,
		Rewriter:   generation.NewRewriter(h.rewriteLLM),
		Reviewer:   generation.NewReviewer(h.reviewLLM),
		Summarizer: generation.NewSummarizer(h.summaryLLM),
		Generator:  generation.NewInstructionGenerator(h.instructLLM, nil),
		Operator:   h.operator,
		Editor:     h.editor,
		Speaker:    h.speaker,
		Metrics:    metrics.New(),
	}, Settings{ExplorationRate: 0, LearningRate: 0.1}, nil)
	require.NoError(t, err)
	ctrl.newPromptName = func() string { return "generated_prompt_0badc0de" }
	h.ctrl = ctrl
	return h
}

func (h *harness) history(t *testing.T) []ledger.Entry {
	t.Helper()
	entries, err := h.ledger.History(context.Background(), chapter)
	require.NoError(t, err)
	return entries
}

func (h *harness) score(t *testing.T, name string) float64 {
	t.Helper()
	rec, ok := h.prompts.Get(name)
	require.True(t, ok, "prompt %s missing", name)
	return rec.Score
}

func entryIDs(entries []ledger.Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = strings.TrimPrefix(e.ID, chapter.BaseID()+"_")
	}
	return ids
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Components{}, Settings{}, nil)
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestRun_FinalizeUnedited(t *testing.T) {
	h := newHarness(t, nil)
	h.operator.ratings = []*int{reward.Rating(5)}
	h.operator.actions = []Action{ActionFinalize}

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	require.Len(t, h.operator.rewards, 1)
	assert.InDelta(t, 13.9, h.operator.rewards[0].Total, 1e-9)
	assert.InDelta(t, 1.39, h.score(t, "default_v1"), 1e-9)

	entries := h.history(t)
	assert.Equal(t, []string{"v0_original", "v1_ai_spin", "v1_ai_review", "v2_final_version"}, entryIDs(entries))

	spin := entries[1]
	require.NotNil(t, spin.Spin)
	assert.Equal(t, "default_v1", spin.Spin.PromptName)
	assert.Equal(t, "rewrite-model", spin.Spin.Model)
	assert.Contains(t, h.rewriteLLM.LastRequest().Prompt, originalText)

	final := entries[3]
	require.NotNil(t, final.Outcome)
	assert.Equal(t, "ana", final.Outcome.Editor)
	assert.Equal(t, "default_v1", final.Outcome.PromptUsed)
	assert.Zero(t, final.Outcome.EditRatio)
	require.NotNil(t, final.Outcome.Rating)
	assert.Equal(t, 5, *final.Outcome.Rating)

	original, err := h.ledger.Get(context.Background(), chapter.EntryID(0, ledger.TypeOriginal))
	require.NoError(t, err)
	require.NotNil(t, original.Final)
	assert.InDelta(t, 13.9, original.Final.FinalChapterReward, 1e-9)
	assert.Equal(t, final.ID, original.Final.FinalizedVersionID)
	require.NotNil(t, original.Source)
	assert.Equal(t, "Chapter 1", original.Source.Title)
}

func TestRun_EditsAreScoredPerIteration(t *testing.T) {
	h := newHarness(t, nil)
	h.rewriteLLM.Response = "abcd"
	h.operator.actions = []Action{ActionEdit, ActionEdit, ActionExit}
	h.editor.outputs = []string{"abcd", "abxy"}

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	require.Len(t, h.operator.rewards, 2)
	assert.InDelta(t, 2.9, h.operator.rewards[0].Total, 1e-9)
	assert.InDelta(t, -2.2, h.operator.rewards[1].Total, 1e-9)
	assert.InDelta(t, 0.07, h.score(t, "default_v1"), 1e-9)

	entries := h.history(t)
	assert.Equal(t, []string{
		"v0_original", "v1_ai_spin", "v1_ai_review",
		"v2_human_edit", "v2_ai_review_after_human",
		"v3_human_edit", "v3_ai_review_after_human",
	}, entryIDs(entries))

	edit := entries[5]
	assert.Equal(t, "abxy", edit.Content)
	require.NotNil(t, edit.Outcome)
	assert.InDelta(t, 0.5, edit.Outcome.EditRatio, 1e-9)
	assert.Nil(t, edit.Outcome.Rating)
	assert.Equal(t, edit.ID, entries[6].Review.ReviewedID)

	require.Len(t, h.operator.views, 3)
	assert.Equal(t, 3, h.operator.views[2].Iteration)
	assert.Equal(t, 3, h.operator.views[2].Version)
}

func TestRun_EmptyEditKeepsVersion(t *testing.T) {
	h := newHarness(t, nil)
	h.operator.actions = []Action{ActionEdit, ActionExit}
	h.editor.outputs = []string{"  \n"}

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	assert.Empty(t, h.operator.rewards)
	assert.Len(t, h.history(t), 3)
	assert.Contains(t, h.operator.warnings, "No content loaded after edit. Retaining previous version.")
}

func TestRun_AdaptiveRespinStoresNewSpin(t *testing.T) {
	h := newHarness(t, nil)
	h.rewriteLLM.Responses = []string{"first spin", "second spin"}
	h.operator.ratings = []*int{reward.Rating(2)}
	h.operator.actions = []Action{ActionRespin, ActionExit}
	h.operator.sources = []RespinSource{RespinAdaptive}

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	require.Len(t, h.operator.rewards, 1)
	assert.InDelta(t, -7.1, h.operator.rewards[0].Total, 1e-9)
	assert.InDelta(t, -0.71, h.score(t, "default_v1"), 1e-9)

	entries := h.history(t)
	assert.Equal(t, []string{"v0_original", "v1_ai_spin", "v1_ai_review", "v2_ai_spin", "v2_ai_review"}, entryIDs(entries))

	respun := entries[3]
	assert.Equal(t, "second spin", respun.Content)
	require.NotNil(t, respun.Spin)
	assert.Equal(t, "default_v1", respun.Spin.PromptName)
	require.NotNil(t, respun.Spin.RewardLeadingToSpin)
	assert.InDelta(t, -7.1, *respun.Spin.RewardLeadingToSpin, 1e-9)
	require.NotNil(t, respun.Spin.RatingLeadingToSpin)
	assert.Equal(t, 2, *respun.Spin.RatingLeadingToSpin)
	assert.False(t, respun.Spin.Generated)

	// respins rewrite the original, not the rejected spin
	assert.Contains(t, h.rewriteLLM.LastRequest().Prompt, originalText)
	assert.NotContains(t, h.rewriteLLM.LastRequest().Prompt, "first spin")
}

func TestRun_GeneratorFailureFallsBackWithoutScoring(t *testing.T) {
	h := newHarness(t, prompts.Catalog{
		"default_v1": {Template: "Rewrite plainly.\n\n", Score: -6},
	})
	h.instructLLM.Response = "   "
	h.operator.actions = []Action{ActionRespin, ActionFinalize}
	h.operator.sources = []RespinSource{RespinGenerated}
	h.operator.ratings = []*int{nil, reward.Rating(4)}

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	require.Len(t, h.operator.rewards, 2)
	assert.Equal(t, -6.0, h.score(t, "default_v1"))
	_, ok := h.prompts.Get(prompts.SentinelFallback)
	assert.False(t, ok)
	assert.Len(t, h.prompts.Snapshot(), 1)

	entries := h.history(t)
	for _, e := range entries {
		if e.Type == ledger.TypeSpin {
			assert.Equal(t, prompts.SentinelFallback, e.Spin.PromptName)
			assert.Equal(t, prompts.FallbackTemplate, e.Spin.Instruction)
		}
	}
	assert.Contains(t, h.operator.warnings, "Failed to generate a new prompt. Reverting to adaptive prompt.")
}

func TestRun_GeneratedPromptIsAddedAndScored(t *testing.T) {
	h := newHarness(t, nil)
	h.operator.actions = []Action{ActionRespin, ActionFinalize}
	h.operator.sources = []RespinSource{RespinGenerated}
	h.operator.ratings = []*int{reward.Rating(1), reward.Rating(4)}

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	rec, ok := h.prompts.Get("generated_prompt_0badc0de")
	require.True(t, ok)
	assert.Equal(t, prompts.OriginGenerated, rec.Origin)
	assert.Equal(t, "Rewrite it as a ballad.\n\n", rec.Template)
	// finalize at iteration 2: 10 + 2 - 0.2
	assert.InDelta(t, 1.18, rec.Score, 1e-9)
	// respin at iteration 1: -5 - 4 - 0.1
	assert.InDelta(t, -0.91, h.score(t, "default_v1"), 1e-9)

	spin, err := h.ledger.Get(context.Background(), chapter.EntryID(2, ledger.TypeSpin))
	require.NoError(t, err)
	require.NotNil(t, spin.Spin)
	assert.Equal(t, "generated_prompt_0badc0de", spin.Spin.PromptName)
	assert.True(t, spin.Spin.Generated)
	assert.Equal(t, "prompt-model", spin.Spin.GeneratorModel)

	assert.Equal(t, 1, h.summaryLLM.Calls())
	instruction := h.instructLLM.LastRequest().Prompt
	assert.Contains(t, instruction, "Rewrite plainly.")
	assert.Contains(t, instruction, "A voyage begins.")
}

func TestRun_CustomInstructionIsNotScored(t *testing.T) {
	h := newHarness(t, nil)
	h.operator.actions = []Action{ActionRespin, ActionFinalize}
	h.operator.sources = []RespinSource{RespinCustom}
	h.operator.instructions = []string{"Make it gothic."}

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	// only the respin credits default_v1: -5 - 0.1
	assert.InDelta(t, -0.51, h.score(t, "default_v1"), 1e-9)
	_, ok := h.prompts.Get(prompts.SentinelCustom)
	assert.False(t, ok)

	spin, err := h.ledger.Get(context.Background(), chapter.EntryID(2, ledger.TypeSpin))
	require.NoError(t, err)
	assert.Equal(t, prompts.SentinelCustom, spin.Spin.PromptName)
	assert.Equal(t, "Make it gothic.\n\n", spin.Spin.Instruction)

	final, err := h.ledger.Get(context.Background(), chapter.EntryID(3, ledger.TypeFinal))
	require.NoError(t, err)
	assert.Equal(t, prompts.SentinelCustom, final.Outcome.PromptUsed)
}

func TestRun_SearchAndSpeakDoNotAdvanceIteration(t *testing.T) {
	h := newHarness(t, nil)
	h.operator.ratings = []*int{reward.Rating(5)}
	h.operator.actions = []Action{ActionSearch, ActionSpeakContent, ActionSpeakReview, ActionFinalize}
	h.operator.searches = []SearchRequest{{Text: "tale", Type: ledger.TypeSpin}}

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	require.Len(t, h.operator.rewards, 1)
	assert.InDelta(t, 13.9, h.operator.rewards[0].Total, 1e-9)
	assert.Len(t, h.operator.views, 1)

	require.Len(t, h.operator.results, 1)
	require.Len(t, h.operator.results[0], 1)
	assert.Equal(t, chapter.EntryID(1, ledger.TypeSpin), h.operator.results[0][0].ID)

	assert.Equal(t, []string{"Long ago, a tale began.", "Tighten the opening."}, h.speaker.spoken)
}

func TestRun_ResumesFromLedger(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.ledger.AddOriginal(ctx, chapter, originalText, ledger.SourceDetails{})
	require.NoError(t, err)
	_, err = h.ledger.AddSpin(ctx, chapter, "A stored spin.", 1, ledger.SpinDetails{PromptName: "default_v1"})
	require.NoError(t, err)

	require.NoError(t, h.ctrl.Run(ctx, target))

	assert.Zero(t, h.fetcher.calls)
	assert.Zero(t, h.rewriteLLM.Calls())
	assert.Equal(t, 1, h.reviewLLM.Calls())

	require.Len(t, h.operator.views, 1)
	view := h.operator.views[0]
	assert.Equal(t, 1, view.Version)
	assert.Equal(t, "A stored spin.", view.Current)
	assert.Equal(t, "Tighten the opening.", view.Review)
	assert.Equal(t, "default_v1", view.PromptName)
	assert.Equal(t, []string{"v0_original", "v1_ai_spin", "v1_ai_review"}, entryIDs(h.history(t)))
}

func TestRun_FinalizedChapterIsNotReopened(t *testing.T) {
	h := newHarness(t, nil)
	h.operator.ratings = []*int{reward.Rating(3)}
	h.operator.actions = []Action{ActionFinalize}
	require.NoError(t, h.ctrl.Run(context.Background(), target))

	second := &scriptedOperator{}
	h.ctrl.Operator = second
	require.NoError(t, h.ctrl.Run(context.Background(), target))

	assert.False(t, second.askedName)
	require.Len(t, second.infos, 1)
	assert.Contains(t, second.infos[0], "already finalized")
}

func TestRun_FailedFinalWriteIsNotCredited(t *testing.T) {
	fs := &failingStore{putType: string(ledger.TypeFinal), failPuts: 2}
	h := newHarnessWithStore(t, nil, func(vs store.VectorStore) store.VectorStore {
		fs.VectorStore = vs
		return fs
	})
	h.operator.ratings = []*int{reward.Rating(3), reward.Rating(3)}
	h.operator.actions = []Action{ActionFinalize, ActionFinalize, ActionExit}

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	assert.Len(t, h.operator.rewards, 2)
	rec, ok := h.prompts.Get("default_v1")
	require.True(t, ok)
	assert.Zero(t, rec.Score)
	assert.Zero(t, rec.Uses)
	assert.Equal(t, []string{"v0_original", "v1_ai_spin", "v1_ai_review"}, entryIDs(h.history(t)))
	assert.Len(t, h.operator.views, 3)
}

func TestRun_RetriedFinalIsCreditedOnce(t *testing.T) {
	fs := &failingStore{putType: string(ledger.TypeFinal), failPuts: 1}
	h := newHarnessWithStore(t, nil, func(vs store.VectorStore) store.VectorStore {
		fs.VectorStore = vs
		return fs
	})
	h.operator.ratings = []*int{reward.Rating(3), reward.Rating(3)}
	h.operator.actions = []Action{ActionFinalize, ActionFinalize}

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	// only the second attempt, at iteration 2, is recorded: 10 - 0.2
	rec, ok := h.prompts.Get("default_v1")
	require.True(t, ok)
	assert.InDelta(t, 0.98, rec.Score, 1e-9)
	assert.Equal(t, 1, rec.Uses)

	final, err := h.ledger.Get(context.Background(), chapter.EntryID(2, ledger.TypeFinal))
	require.NoError(t, err)
	assert.InDelta(t, 9.8, final.Outcome.Reward, 1e-9)
}

func TestRun_FailedEditWriteIsNotCredited(t *testing.T) {
	fs := &failingStore{putType: string(ledger.TypeHumanEdit), failPuts: 1}
	h := newHarnessWithStore(t, nil, func(vs store.VectorStore) store.VectorStore {
		fs.VectorStore = vs
		return fs
	})
	h.rewriteLLM.Response = "abcd"
	h.operator.actions = []Action{ActionEdit, ActionExit}
	h.editor.outputs = []string{"abxy"}

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	require.Len(t, h.operator.rewards, 1)
	assert.Zero(t, h.score(t, "default_v1"))
	assert.Len(t, h.history(t), 3)
}

func TestRun_CompletesMissingAnnotation(t *testing.T) {
	fs := &failingStore{failUpdates: 1}
	h := newHarnessWithStore(t, nil, func(vs store.VectorStore) store.VectorStore {
		fs.VectorStore = vs
		return fs
	})
	h.operator.ratings = []*int{reward.Rating(5)}
	h.operator.actions = []Action{ActionFinalize}
	ctx := context.Background()

	require.NoError(t, h.ctrl.Run(ctx, target))
	assert.Contains(t, strings.Join(h.operator.warnings, "\n"), "Original entry was not annotated")
	// the decision was recorded, so the prompt is credited
	assert.InDelta(t, 1.39, h.score(t, "default_v1"), 1e-9)

	originalID := chapter.EntryID(0, ledger.TypeOriginal)
	original, err := h.ledger.Get(ctx, originalID)
	require.NoError(t, err)
	assert.Nil(t, original.Final)

	second := &scriptedOperator{}
	h.ctrl.Operator = second
	require.NoError(t, h.ctrl.Run(ctx, target))
	assert.False(t, second.askedName)
	assert.Empty(t, second.warnings)

	original, err = h.ledger.Get(ctx, originalID)
	require.NoError(t, err)
	require.NotNil(t, original.Final)
	assert.Equal(t, chapter.EntryID(2, ledger.TypeFinal), original.Final.FinalizedVersionID)
	assert.InDelta(t, 13.9, original.Final.FinalChapterReward, 1e-9)
	assert.InDelta(t, 1.39, h.score(t, "default_v1"), 1e-9)
}

func TestRun_InvalidScrapeEndsSession(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.page = scrape.Page{Valid: false}

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	assert.False(t, h.operator.askedName)
	assert.NotEmpty(t, h.operator.warnings)
	assert.Empty(t, h.history(t))
}

func TestRun_FailedReviewIsNotStored(t *testing.T) {
	h := newHarness(t, nil)
	h.reviewLLM.Error = errors.New("rate limited")

	require.NoError(t, h.ctrl.Run(context.Background(), target))

	assert.Equal(t, []string{"v0_original", "v1_ai_spin"}, entryIDs(h.history(t)))
	require.Len(t, h.operator.views, 1)
	assert.Empty(t, h.operator.views[0].Review)
}

func TestRun_FailedInitialSpin(t *testing.T) {
	h := newHarness(t, nil)
	h.rewriteLLM.Error = errors.New("quota exceeded")

	err := h.ctrl.Run(context.Background(), target)
	assert.ErrorIs(t, err, ErrNoSpin)
	assert.Equal(t, []string{"v0_original"}, entryIDs(h.history(t)))
}

func TestRun_InvalidTarget(t *testing.T) {
	h := newHarness(t, nil)
	err := h.ctrl.Run(context.Background(), scrape.Target{})
	assert.ErrorIs(t, err, scrape.ErrInvalidTarget)
}
