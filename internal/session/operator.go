package session

import (
	"context"

	"github.com/Yates-Labs/respin/internal/generation"
	"github.com/Yates-Labs/respin/internal/ledger"
	"github.com/Yates-Labs/respin/internal/reward"
	"github.com/Yates-Labs/respin/internal/scrape"
)

// Action is an operator choice from the chapter menu.
type Action int

const (
	ActionEdit Action = iota + 1
	ActionFinalize
	ActionRespin
	ActionSearch
	ActionSpeakContent
	ActionSpeakReview
	ActionExit
)

func (a Action) String() string {
	switch a {
	case ActionEdit:
		return "edit"
	case ActionFinalize:
		return "finalize"
	case ActionRespin:
		return "respin"
	case ActionSearch:
		return "search"
	case ActionSpeakContent:
		return "speak content"
	case ActionSpeakReview:
		return "speak review"
	case ActionExit:
		return "exit"
	default:
		return "unknown"
	}
}

// RespinSource selects where the instruction for a respin comes from.
type RespinSource int

const (
	RespinAdaptive RespinSource = iota + 1
	RespinCustom
	RespinGenerated
)

// View is what the operator sees at the start of each round.
type View struct {
	Chapter    ledger.ChapterRef
	Version    int
	Editor     string
	Iteration  int
	Original   string
	Current    string
	Review     string
	PromptName string
}

// SearchRequest is a semantic search entered at the console. Nil or empty
// fields do not filter.
type SearchRequest struct {
	Text       string
	Type       ledger.EntryType
	BookNum    *int
	ChapterNum *int
	Version    *int
	Editor     string
	Limit      int
}

// Operator is the human side of a session. Implementations re-prompt on
// invalid input, so returned values are always valid.
type Operator interface {
	AskName(ctx context.Context) (string, error)
	ShowChapter(view View)
	// AskRating returns nil when the operator skips rating.
	AskRating(ctx context.Context) (*int, error)
	AskAction(ctx context.Context) (Action, error)
	AskRespinSource(ctx context.Context) (RespinSource, error)
	// AskCustomInstruction may return an empty string, which falls back to
	// adaptive selection.
	AskCustomInstruction(ctx context.Context) (string, error)
	AskSearch(ctx context.Context) (SearchRequest, error)
	ShowResults(results []ledger.Result)
	ShowReward(action reward.Action, breakdown reward.Breakdown)
	Info(msg string)
	Warn(msg string)
	Success(msg string)
}

// Editor lets the operator edit content, typically in an external program.
type Editor interface {
	Edit(ctx context.Context, content string) (string, error)
}

// Speaker reads text aloud.
type Speaker interface {
	Speak(ctx context.Context, text, name string) error
}

// Fetcher retrieves a chapter's source text.
type Fetcher interface {
	Fetch(ctx context.Context, target scrape.Target) (scrape.Page, error)
}

// Rewriter produces a spin of a chapter.
type Rewriter interface {
	Rewrite(ctx context.Context, content, instruction string) (string, error)
	Model() string
}

// Reviewer produces editorial feedback on a spin or edit.
type Reviewer interface {
	Review(ctx context.Context, content string) (string, error)
	Model() string
}

// Summarizer condenses a chapter for the instruction generator.
type Summarizer interface {
	Summarize(ctx context.Context, content string) (string, error)
}

// InstructionGenerator asks a model for a new rewrite instruction.
type InstructionGenerator interface {
	Generate(ctx context.Context, req generation.InstructionRequest) (string, bool)
	Model() string
}
