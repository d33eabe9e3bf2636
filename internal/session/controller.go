// Package session drives one chapter through the human-in-the-loop rewrite
// cycle: spin, review, then operator decisions until the chapter is
// finalized or the operator leaves. Every decision is turned into a reward
// that updates the score of the prompt behind the current spin.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Yates-Labs/respin/internal/generation"
	"github.com/Yates-Labs/respin/internal/ledger"
	"github.com/Yates-Labs/respin/internal/metrics"
	"github.com/Yates-Labs/respin/internal/prompts"
	"github.com/Yates-Labs/respin/internal/reward"
	"github.com/Yates-Labs/respin/internal/scrape"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoSpin       = errors.New("no spin available for chapter")
	ErrMissingInput = errors.New("session dependency missing")
)

const (
	// respinEditRatio marks a respin as total dissatisfaction with the
	// previous content. The reward function ignores it for respins.
	respinEditRatio = 1.0

	defaultSearchLimit = 5
	snippetLength      = 1000
)

// Settings are the learning parameters of a session.
type Settings struct {
	ExplorationRate float64
	LearningRate    float64
}

// Components are the collaborators a Controller works with. Metrics, Speaker,
// Summarizer and Generator are optional.
type Components struct {
	Ledger     *ledger.Ledger
	Prompts    *prompts.Store
	Selector   *prompts.Selector
	Fetcher    Fetcher
	Rewriter   Rewriter
	Reviewer   Reviewer
	Summarizer Summarizer
	Generator  InstructionGenerator
	Operator   Operator
	Editor     Editor
	Speaker    Speaker
	Metrics    *metrics.Metrics
}

// Controller runs chapter sessions. It owns no state between runs beyond its
// collaborators; a chapter's progress lives in the ledger.
type Controller struct {
	Components
	settings      Settings
	logger        *zap.Logger
	newPromptName func() string
}

// New creates a controller.
func New(components Components, settings Settings, logger *zap.Logger) (*Controller, error) {
	switch {
	case components.Ledger == nil:
		return nil, fmt.Errorf("%w: ledger", ErrMissingInput)
	case components.Prompts == nil || components.Selector == nil:
		return nil, fmt.Errorf("%w: prompt store and selector", ErrMissingInput)
	case components.Rewriter == nil || components.Reviewer == nil:
		return nil, fmt.Errorf("%w: rewriter and reviewer", ErrMissingInput)
	case components.Operator == nil:
		return nil, fmt.Errorf("%w: operator", ErrMissingInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		Components:    components,
		settings:      settings,
		logger:        logger.Named("session"),
		newPromptName: newPromptName,
	}, nil
}

func newPromptName() string {
	return "generated_prompt_" + uuid.NewString()[:8]
}

// chapterState is the working state of one run.
type chapterState struct {
	chapter ledger.ChapterRef
	editor  string

	iteration int
	version   int

	original string
	// currentID and content are the working version shown to the operator.
	currentID string
	content   string
	review    string

	// promptName is the prompt credited with the current content.
	promptName string
	// spinContent is the latest AI spin, the baseline for the finalize
	// edit ratio.
	spinContent string
	summary     string
}

func (s *chapterState) advance(e ledger.Entry) {
	s.version = e.Version
	s.currentID = e.ID
	s.content = e.Content
	s.review = ""
}

// Run works on target until the operator finalizes or exits. A chapter with
// history in the ledger is resumed from its latest entry.
func (c *Controller) Run(ctx context.Context, target scrape.Target) error {
	if err := target.Validate(); err != nil {
		return err
	}
	chapter := ledger.ChapterRef{
		BookTitle:  target.BookTitle(),
		BookNum:    target.BookNum,
		ChapterNum: target.ChapterNum,
	}
	logger := c.logger.With(zap.String("chapter", chapter.BaseID()))

	state, err := c.Ledger.Resume(ctx, chapter)
	if err != nil {
		return fmt.Errorf("failed to load chapter history: %w", err)
	}
	if state.Finalized {
		c.completeFinal(ctx, state)
		c.Operator.Info(fmt.Sprintf("%s is already finalized.", chapter))
		return nil
	}

	if state.Original == nil {
		ok, err := c.scrapeOriginal(ctx, target, chapter)
		if err != nil || !ok {
			return err
		}
		if state, err = c.Ledger.Resume(ctx, chapter); err != nil {
			return fmt.Errorf("failed to load chapter history: %w", err)
		}
	} else {
		logger.Info("resuming chapter", zap.Int("version", state.Version), zap.Int("entries", len(state.Entries)))
		c.Operator.Info(fmt.Sprintf("Resuming %s at version %d.", chapter, state.Version))
	}

	s, err := c.prepare(ctx, state)
	if err != nil {
		return err
	}

	name, err := c.Operator.AskName(ctx)
	if err != nil {
		return err
	}
	s.editor = name

	return c.loop(ctx, s)
}

// completeFinal annotates the original of a finalized chapter when an
// earlier session stored the final version but not the annotation.
func (c *Controller) completeFinal(ctx context.Context, state ledger.State) {
	if state.Original == nil || state.Original.Final != nil {
		return
	}
	if state.Current == nil || state.Current.Type != ledger.TypeFinal {
		return
	}
	if err := c.Ledger.Annotate(ctx, state.Chapter, *state.Current); err != nil {
		c.logger.Warn("original still not annotated", zap.String("final_id", state.Current.ID), zap.Error(err))
		c.Operator.Warn(fmt.Sprintf("Original entry was not annotated: %v", err))
		return
	}
	c.Operator.Success(fmt.Sprintf("Recorded the final reward of %s on the original entry.", state.Current.ID))
}

// scrapeOriginal fetches the chapter and stores it as version 0. It reports
// false when the page could not be used.
func (c *Controller) scrapeOriginal(ctx context.Context, target scrape.Target, chapter ledger.ChapterRef) (bool, error) {
	if c.Fetcher == nil {
		return false, fmt.Errorf("%w: fetcher", ErrMissingInput)
	}
	c.Operator.Info(fmt.Sprintf("Scraping %s...", chapter))
	page, err := c.Fetcher.Fetch(ctx, target)
	if err != nil {
		c.Metrics.ObserveFailure("scrape")
		c.logger.Warn("scrape failed", zap.String("chapter", chapter.BaseID()), zap.Error(err))
		c.Operator.Warn(fmt.Sprintf("Could not scrape %s: %v", chapter, err))
		return false, nil
	}
	if !page.Valid {
		c.Operator.Warn("The requested chapter or book could not be found or has no content. Check the numbers and book title and try again.")
		return false, nil
	}
	c.Operator.Success(fmt.Sprintf("Chapter scraped: %s", page.Title))

	if _, err := c.Ledger.AddOriginal(ctx, chapter, page.Text, ledger.SourceDetails{
		URL:            page.URL,
		Title:          page.Title,
		ScreenshotPath: page.ScreenshotPath,
	}); err != nil {
		return false, fmt.Errorf("failed to store original: %w", err)
	}
	c.Metrics.ObserveLedgerWrite(string(ledger.TypeOriginal))
	return true, nil
}

// prepare turns ledger state into working state, producing the initial spin
// and review when the ledger does not have them yet.
func (c *Controller) prepare(ctx context.Context, state ledger.State) (*chapterState, error) {
	s := &chapterState{
		chapter:    state.Chapter,
		original:   state.Original.Content,
		promptName: state.PromptName,
	}
	s.advance(*state.Current)
	for _, e := range state.Entries {
		if e.Type == ledger.TypeSpin {
			s.spinContent = e.Content
		}
	}
	if state.Review != nil {
		s.review = state.Review.Content
	}
	if s.promptName == "" {
		s.promptName = prompts.SentinelUnknown
	}

	if state.Current.Type == ledger.TypeOriginal {
		choice := c.selectPrompt()
		if !c.spin(ctx, s, choice.Name, choice.Template, ledger.SpinDetails{}) {
			return nil, fmt.Errorf("%w: %s", ErrNoSpin, s.chapter)
		}
		c.Operator.Info(fmt.Sprintf("Initial spin used prompt %q.", choice.Name))
		return s, nil
	}

	if state.Review == nil {
		c.review(ctx, s)
	}
	return s, nil
}

func (c *Controller) loop(ctx context.Context, s *chapterState) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.iteration++
		c.Operator.ShowChapter(View{
			Chapter:    s.chapter,
			Version:    s.version,
			Editor:     s.editor,
			Iteration:  s.iteration,
			Original:   s.original,
			Current:    s.content,
			Review:     s.review,
			PromptName: s.promptName,
		})

		rating, err := c.Operator.AskRating(ctx)
		if err != nil {
			return err
		}

	menu:
		for {
			action, err := c.Operator.AskAction(ctx)
			if err != nil {
				return err
			}
			switch action {
			case ActionEdit:
				c.edit(ctx, s, rating)
				break menu
			case ActionFinalize:
				if c.finalize(ctx, s, rating) {
					return nil
				}
				break menu
			case ActionRespin:
				if err := c.respin(ctx, s, rating); err != nil {
					return err
				}
				break menu
			case ActionSearch:
				if err := c.search(ctx); err != nil {
					return err
				}
			case ActionSpeakContent:
				c.speak(ctx, s.content, "ai_spun_audio")
			case ActionSpeakReview:
				c.speak(ctx, s.review, "ai_review_audio")
			case ActionExit:
				c.Operator.Info("Exiting review process.")
				return nil
			}
		}
	}
}

// score computes the reward for a decision and shows it. The prompt is
// credited separately, once the decision has been recorded.
func (c *Controller) score(action reward.Action, s *chapterState, rating *int, ratio *float64) float64 {
	breakdown := reward.Explain(reward.Signal{
		Action:    action,
		Iteration: s.iteration,
		Rating:    rating,
		EditRatio: ratio,
	})
	c.Operator.ShowReward(action, breakdown)
	c.Metrics.ObserveAction(string(action), breakdown.Total)
	return breakdown.Total
}

// credit applies a reward to the prompt's score.
func (c *Controller) credit(action reward.Action, s *chapterState, promptName string, value float64) {
	score, updated, err := c.Prompts.UpdateScore(promptName, value, c.settings.LearningRate)
	if err != nil {
		c.logger.Error("failed to persist prompt score", zap.String("prompt", promptName), zap.Error(err))
		c.Operator.Warn(fmt.Sprintf("Prompt score could not be saved: %v", err))
	}
	if updated {
		c.Metrics.SetPromptScore(promptName, score)
	}

	c.logger.Info("scored decision",
		zap.String("action", string(action)),
		zap.String("prompt", promptName),
		zap.Int("iteration", s.iteration),
		zap.Float64("reward", value))
}

func (c *Controller) edit(ctx context.Context, s *chapterState, rating *int) {
	if c.Editor == nil {
		c.Operator.Warn("No editor configured.")
		return
	}
	edited, err := c.Editor.Edit(ctx, s.content)
	if err != nil {
		c.logger.Warn("edit failed", zap.Error(err))
	}
	if err != nil || strings.TrimSpace(edited) == "" {
		c.Operator.Warn("No content loaded after edit. Retaining previous version.")
		return
	}

	ratio := reward.EditRatio(s.content, edited)
	c.Operator.Info(fmt.Sprintf("Levenshtein distance %d (ratio %.4f)", reward.Distance(s.content, edited), ratio))
	value := c.score(reward.ActionEdit, s, rating, &ratio)

	entry, err := c.Ledger.AddHumanEdit(ctx, s.chapter, edited, s.version+1, ledger.OutcomeDetails{
		Editor:     s.editor,
		Reward:     value,
		EditRatio:  ratio,
		Rating:     rating,
		PromptUsed: s.promptName,
	})
	if err != nil {
		c.ledgerWarning("human edit", err)
		return
	}
	c.Metrics.ObserveLedgerWrite(string(entry.Type))
	c.credit(reward.ActionEdit, s, s.promptName, value)
	s.advance(entry)
	c.Operator.Success(fmt.Sprintf("Saved %s", entry.ID))

	c.review(ctx, s)
}

// finalize reports whether the chapter was closed.
func (c *Controller) finalize(ctx context.Context, s *chapterState, rating *int) bool {
	var ratio float64
	if s.spinContent != "" {
		ratio = reward.EditRatio(s.spinContent, s.content)
	}
	value := c.score(reward.ActionFinalize, s, rating, &ratio)

	final, err := c.Ledger.AddFinal(ctx, s.chapter, s.content, s.version+1, ledger.OutcomeDetails{
		Editor:     s.editor,
		Reward:     value,
		EditRatio:  ratio,
		Rating:     rating,
		PromptUsed: s.promptName,
	})
	if final.ID == "" {
		c.ledgerWarning("final version", err)
		return false
	}
	c.Metrics.ObserveLedgerWrite(string(final.Type))
	c.credit(reward.ActionFinalize, s, s.promptName, value)
	if err != nil {
		c.logger.Warn("final version stored but original not annotated", zap.String("id", final.ID), zap.Error(err))
		c.Operator.Warn(fmt.Sprintf("Original entry was not annotated: %v", err))
	}
	c.Operator.Success(fmt.Sprintf("Chapter finalized as %s with reward %.2f", final.ID, value))
	return true
}

func (c *Controller) respin(ctx context.Context, s *chapterState, rating *int) error {
	ratio := respinEditRatio
	value := c.score(reward.ActionRespin, s, rating, &ratio)

	source, err := c.Operator.AskRespinSource(ctx)
	if err != nil {
		return err
	}

	details := ledger.SpinDetails{
		RewardLeadingToSpin: &value,
		RatingLeadingToSpin: rating,
	}
	name, template := "", ""

	switch source {
	case RespinCustom:
		text, err := c.Operator.AskCustomInstruction(ctx)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			c.Operator.Warn("Custom instruction cannot be empty. Reverting to adaptive prompt.")
			break
		}
		c.Metrics.ObserveSelection("custom")
		name, template = prompts.SentinelCustom, strings.TrimRight(text, "\n")+"\n\n"
	case RespinGenerated:
		name, template = c.generatePrompt(ctx, s, value, rating)
		if name != "" {
			details.Generated = true
			details.GeneratorModel = c.Generator.Model()
		}
	}
	if name == "" {
		choice := c.selectPrompt()
		name, template = choice.Name, choice.Template
	}

	rejected := s.promptName
	if c.spin(ctx, s, name, template, details) {
		c.credit(reward.ActionRespin, s, rejected, value)
		c.Operator.Info("AI has re-spun the content. Please review again.")
	}
	return nil
}

// generatePrompt asks the instruction generator for a new template and adds
// it to the catalog. It returns an empty name when no template was produced.
func (c *Controller) generatePrompt(ctx context.Context, s *chapterState, value float64, rating *int) (string, string) {
	if c.Generator == nil {
		c.Operator.Warn("No prompt generator configured. Reverting to adaptive prompt.")
		return "", ""
	}

	if s.summary == "" && c.Summarizer != nil {
		start := time.Now()
		summary, err := c.Summarizer.Summarize(ctx, s.original)
		c.Metrics.ObserveGeneration("summarize", start)
		if err != nil {
			c.Metrics.ObserveFailure("summarize")
			c.logger.Warn("chapter summary failed", zap.Error(err))
		}
		s.summary = summary
	}

	ratingText := "none"
	if rating != nil {
		ratingText = fmt.Sprint(*rating)
	}
	req := generation.InstructionRequest{
		Snippet: truncate(s.original, snippetLength),
		Feedback: fmt.Sprintf("The previous AI spin (using prompt '%s') was unsatisfactory, leading to a re-spin request "+
			"with a reward of %.2f and human rating %s. The generated content needs improvement.", s.promptName, value, ratingText),
		Summary: s.summary,
	}
	if rec, ok := c.Prompts.Get(s.promptName); ok {
		req.PreviousInstruction = rec.Template
	}

	c.Operator.Info("Requesting AI to generate a new prompt...")
	start := time.Now()
	template, ok := c.Generator.Generate(ctx, req)
	c.Metrics.ObserveGeneration("instruction", start)
	if !ok {
		c.Metrics.ObserveFailure("instruction")
		c.Operator.Warn("Failed to generate a new prompt. Reverting to adaptive prompt.")
		return "", ""
	}

	name := c.newPromptName()
	if err := c.Prompts.AddTemplate(name, template, 0, prompts.OriginGenerated); err != nil {
		c.logger.Warn("generated prompt not added to catalog", zap.String("prompt", name), zap.Error(err))
	}
	c.Metrics.ObserveSelection("generated")
	c.Operator.Success(fmt.Sprintf("New prompt %q: %s", name, strings.TrimSpace(template)))
	return name, template
}

func (c *Controller) selectPrompt() prompts.Choice {
	choice := c.Selector.Select(c.Prompts.Snapshot(), c.settings.ExplorationRate)
	mode := "exploit"
	switch {
	case choice.Fallback:
		mode = "fallback"
	case choice.Explored:
		mode = "explore"
	}
	c.Metrics.ObserveSelection(mode)
	c.logger.Debug("selected prompt", zap.String("prompt", choice.Name), zap.String("mode", mode))
	return choice
}

// spin rewrites the original with template, records the result as the next
// version and reviews it. It reports false when no spin was recorded.
func (c *Controller) spin(ctx context.Context, s *chapterState, name, template string, details ledger.SpinDetails) bool {
	start := time.Now()
	text, err := c.Rewriter.Rewrite(ctx, s.original, template)
	c.Metrics.ObserveGeneration("rewrite", start)
	if err != nil {
		c.Metrics.ObserveFailure("rewrite")
		c.logger.Warn("rewrite failed", zap.String("prompt", name), zap.Error(err))
		c.Operator.Warn(fmt.Sprintf("Rewrite failed: %v", err))
		return false
	}

	details.PromptName = name
	details.Model = c.Rewriter.Model()
	details.Instruction = template
	entry, err := c.Ledger.AddSpin(ctx, s.chapter, text, s.version+1, details)
	if err != nil {
		c.ledgerWarning("spin", err)
		return false
	}
	c.Metrics.ObserveLedgerWrite(string(entry.Type))
	s.advance(entry)
	s.promptName = name
	s.spinContent = entry.Content

	c.review(ctx, s)
	return true
}

// review asks the reviewer about the working version and records the
// result. A failed review leaves the session without comments.
func (c *Controller) review(ctx context.Context, s *chapterState) {
	start := time.Now()
	text, err := c.Reviewer.Review(ctx, s.content)
	c.Metrics.ObserveGeneration("review", start)
	if err != nil {
		c.Metrics.ObserveFailure("review")
		c.logger.Warn("review failed", zap.String("reviewed_id", s.currentID), zap.Error(err))
		c.Operator.Warn(fmt.Sprintf("Review failed: %v", err))
		return
	}
	s.review = text

	entry, err := c.Ledger.AddReview(ctx, s.chapter, text, s.version, c.Reviewer.Model(), s.currentID)
	if err != nil {
		c.ledgerWarning("review", err)
		return
	}
	c.Metrics.ObserveLedgerWrite(string(entry.Type))
}

func (c *Controller) search(ctx context.Context) error {
	req, err := c.Operator.AskSearch(ctx)
	if err != nil {
		return err
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}
	results, err := c.Ledger.Search(ctx, ledger.Query{
		Text:       req.Text,
		Type:       req.Type,
		BookNum:    req.BookNum,
		ChapterNum: req.ChapterNum,
		Version:    req.Version,
		Editor:     req.Editor,
		Limit:      req.Limit,
	})
	if err != nil {
		c.Metrics.ObserveFailure("search")
		c.logger.Warn("search failed", zap.Error(err))
		c.Operator.Warn(fmt.Sprintf("An error occurred during semantic search: %v", err))
		return nil
	}
	c.Operator.ShowResults(results)
	return nil
}

func (c *Controller) speak(ctx context.Context, text, name string) {
	if c.Speaker == nil {
		c.Operator.Warn("Speech is not configured.")
		return
	}
	if err := c.Speaker.Speak(ctx, text, name); err != nil {
		c.Metrics.ObserveFailure("speech")
		c.logger.Warn("speech failed", zap.String("name", name), zap.Error(err))
		c.Operator.Warn(fmt.Sprintf("Error speaking text: %v", err))
		return
	}
	c.Operator.Info("Playback finished.")
}

func (c *Controller) ledgerWarning(what string, err error) {
	c.Metrics.ObserveFailure("ledger")
	c.logger.Warn("ledger write skipped", zap.String("entry", what), zap.Error(err))
	c.Operator.Warn(fmt.Sprintf("Could not record %s: %v", what, err))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
