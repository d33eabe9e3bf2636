// Package console is the terminal front end of a review session. It prints
// chapters and menus and reads the operator's answers, asking again until
// the input is valid.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Yates-Labs/respin/internal/ledger"
	"github.com/Yates-Labs/respin/internal/reward"
	"github.com/Yates-Labs/respin/internal/session"
	"github.com/charmbracelet/lipgloss"
)

// ErrInputClosed is returned when the input ends while an answer is pending.
var ErrInputClosed = errors.New("console input closed")

const (
	originalPreview = 500
	currentPreview  = 1000
	resultPreview   = 500
	defaultResults  = 5
)

type styles struct {
	header  lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	warn    lipgloss.Style
	success lipgloss.Style
	reward  lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	var (
		headerColor  = lipgloss.Color("#F780FF") // Bright pink
		labelColor   = lipgloss.Color("#8BE9FD") // Cyan
		mutedColor   = lipgloss.Color("#6272A4") // Muted purple
		errorColor   = lipgloss.Color("#FF5555") // Red
		successColor = lipgloss.Color("#50FA7B") // Green
		rewardColor  = lipgloss.Color("#FF79C6") // Pink
	)
	return styles{
		header:  r.NewStyle().Foreground(headerColor).Bold(true),
		label:   r.NewStyle().Foreground(labelColor).Bold(true),
		muted:   r.NewStyle().Foreground(mutedColor).Italic(true),
		warn:    r.NewStyle().Foreground(errorColor).Bold(true),
		success: r.NewStyle().Foreground(successColor),
		reward:  r.NewStyle().Foreground(rewardColor),
	}
}

// Console implements session.Operator over a reader and a writer.
type Console struct {
	in     *bufio.Reader
	out    io.Writer
	styles styles
}

var _ session.Operator = (*Console)(nil)

// New creates a console reading answers from in and printing to out.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:     bufio.NewReader(in),
		out:    out,
		styles: newStyles(lipgloss.NewRenderer(out)),
	}
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}

// ask prints prompt and returns the trimmed answer.
func (c *Console) ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.printf("%s", prompt)
	line, err := c.in.ReadString('\n')
	if errors.Is(err, io.EOF) && line == "" {
		return "", ErrInputClosed
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// askChoice reads a number in [1, n].
func (c *Console) askChoice(ctx context.Context, prompt string, n int) (int, error) {
	for {
		answer, err := c.ask(ctx, prompt)
		if err != nil {
			return 0, err
		}
		choice, err := strconv.Atoi(answer)
		if err == nil && choice >= 1 && choice <= n {
			return choice, nil
		}
		c.Warn(fmt.Sprintf("Invalid choice. Please enter a number between 1 and %d.", n))
	}
}

// askOptionalInt reads an integer filter. Blank and invalid input leave the
// filter unset.
func (c *Console) askOptionalInt(ctx context.Context, prompt, what string) (*int, error) {
	answer, err := c.ask(ctx, prompt)
	if err != nil || answer == "" {
		return nil, err
	}
	n, err := strconv.Atoi(answer)
	if err != nil {
		c.Warn(fmt.Sprintf("Invalid %s. Ignoring filter.", what))
		return nil, nil
	}
	return &n, nil
}

// AskName asks for the editor name until a non-empty one is given.
func (c *Console) AskName(ctx context.Context) (string, error) {
	for {
		name, err := c.ask(ctx, "\nPlease enter your name: ")
		if err != nil {
			return "", err
		}
		if name != "" {
			return name, nil
		}
		c.Warn("Name cannot be empty. Please enter a valid name.")
	}
}

// ShowChapter prints the original, the working version and the latest review.
func (c *Console) ShowChapter(view session.View) {
	s := c.styles
	c.println("")
	c.println(s.header.Render(fmt.Sprintf("Chapter Review (%s, version %d, editor %s, round %d)",
		view.Chapter, view.Version, view.Editor, view.Iteration)))

	c.println("")
	c.println(s.label.Render("Original Content (for reference)"))
	c.println(preview(view.Original, originalPreview))

	c.println("")
	c.println(s.label.Render(fmt.Sprintf("Current Working Version (prompt %s)", view.PromptName)))
	c.println(preview(view.Current, currentPreview))

	c.println("")
	c.println(s.label.Render("AI Reviewer Comments"))
	if view.Review == "" {
		c.println(s.muted.Render("No review available."))
	} else {
		c.println(view.Review)
	}
}

// AskRating reads a 1-5 rating. A blank answer means no rating.
func (c *Console) AskRating(ctx context.Context) (*int, error) {
	for {
		answer, err := c.ask(ctx, "Please rate the AI's current content (1-5 stars, 5 being excellent, or leave blank): ")
		if err != nil {
			return nil, err
		}
		if answer == "" {
			c.Info("No rating provided.")
			return nil, nil
		}
		rating, err := strconv.Atoi(answer)
		switch {
		case err != nil:
			c.Warn("Invalid input. Please enter a number between 1 and 5.")
		case !reward.ValidRating(rating):
			c.Warn("Rating must be between 1 and 5.")
		default:
			return &rating, nil
		}
	}
}

// AskAction prints the main menu and reads a choice.
func (c *Console) AskAction(ctx context.Context) (session.Action, error) {
	c.println("")
	c.println(c.styles.header.Render("What would you like to do?"))
	c.println("1. Edit the current content directly (opens in editor).")
	c.println("2. Accept current content and finalize.")
	c.println("3. Request AI to re-spin the chapter with new instructions.")
	c.println("4. Perform a semantic search on stored chapter versions.")
	c.println("5. Listen to the current content.")
	c.println("6. Listen to the AI reviewer comments.")
	c.println("7. Exit review process.")

	choice, err := c.askChoice(ctx, "Enter your choice (1-7): ", int(session.ActionExit))
	return session.Action(choice), err
}

// AskRespinSource asks where the next rewrite instruction should come from.
func (c *Console) AskRespinSource(ctx context.Context) (session.RespinSource, error) {
	c.println("")
	c.println(c.styles.header.Render("Re-spin Options"))
	c.println("1. Use the system's adaptive prompt (based on learning).")
	c.println("2. Provide a custom instruction.")
	c.println("3. Generate a completely new prompt using the AI prompt generator.")

	choice, err := c.askChoice(ctx, "Enter your re-spin choice (1-3): ", int(session.RespinGenerated))
	return session.RespinSource(choice), err
}

// AskCustomInstruction reads a free-form rewrite instruction.
func (c *Console) AskCustomInstruction(ctx context.Context) (string, error) {
	return c.ask(ctx, "Enter new custom instruction for AI re-spin: ")
}

// AskSearch reads a query and optional filters. Invalid filters are dropped with a warning.
func (c *Console) AskSearch(ctx context.Context) (session.SearchRequest, error) {
	var req session.SearchRequest
	for {
		text, err := c.ask(ctx, "Enter your search query: ")
		if err != nil {
			return req, err
		}
		if text != "" {
			req.Text = text
			break
		}
		c.Warn("Search query cannot be empty.")
	}

	c.println(c.styles.muted.Render("Narrow the search with any combination of filters, or leave them blank."))
	typ, err := c.ask(ctx, "Filter by content type (e.g. final_version, human_edit, ai_spin): ")
	if err != nil {
		return req, err
	}
	if typ != "" {
		parsed, err := ledger.ParseType(typ)
		if err != nil {
			c.Warn(fmt.Sprintf("Invalid content type %q. Searching all types.", typ))
		}
		req.Type = parsed
	}

	if req.BookNum, err = c.askOptionalInt(ctx, "Filter by book number: ", "book number"); err != nil {
		return req, err
	}
	if req.ChapterNum, err = c.askOptionalInt(ctx, "Filter by chapter number: ", "chapter number"); err != nil {
		return req, err
	}
	if req.Version, err = c.askOptionalInt(ctx, "Filter by version number: ", "version number"); err != nil {
		return req, err
	}
	if req.Editor, err = c.ask(ctx, "Filter by editor: "); err != nil {
		return req, err
	}

	limit, err := c.askOptionalInt(ctx, fmt.Sprintf("How many results do you want to see (default %d)? ", defaultResults), "number of results")
	if err != nil {
		return req, err
	}
	req.Limit = defaultResults
	if limit != nil && *limit > 0 {
		req.Limit = *limit
	}
	return req, nil
}

// ShowResults prints search hits with their distance to the query.
func (c *Console) ShowResults(results []ledger.Result) {
	if len(results) == 0 {
		c.Info("No relevant documents found matching your criteria.")
		return
	}
	c.Success(fmt.Sprintf("Found %d relevant documents:", len(results)))
	for i, r := range results {
		c.println("")
		c.println(c.styles.label.Render(fmt.Sprintf("--- Result %d (Distance: %.4f) ---", i+1, r.Distance())))
		c.printf("ID: %s\n", r.ID)
		c.printf("Type: %s  Version: %d  Chapter: %s\n", r.Type, r.Version, r.Chapter)
		if r.Outcome != nil {
			c.printf("Editor: %s  Reward: %.2f\n", r.Outcome.Editor, r.Outcome.Reward)
		}
		c.println(preview(r.Content, resultPreview))
	}
}

// ShowReward prints each reward term and the total.
func (c *Console) ShowReward(action reward.Action, b reward.Breakdown) {
	s := c.styles
	c.printf("%s %s\n", s.label.Render("Reward for"), action)
	c.printf("  - Base: %.2f\n", b.Base)
	if b.EditImpact != 0 {
		c.printf("  - Levenshtein impact: %.2f\n", b.EditImpact)
	}
	if b.RatingImpact != 0 {
		c.printf("  - Human rating impact: %.2f\n", b.RatingImpact)
	}
	c.printf("  - Iteration penalty: -%.2f\n", b.IterationPenalty)
	c.println(s.reward.Render(fmt.Sprintf("Calculated reward: %.2f", b.Total)))
}

// Info prints a muted status line.
func (c *Console) Info(msg string) {
	c.println(c.styles.muted.Render(msg))
}

// Warn prints a highlighted warning.
func (c *Console) Warn(msg string) {
	c.println(c.styles.warn.Render(msg))
}

// Success prints a confirmation line.
func (c *Console) Success(msg string) {
	c.println(c.styles.success.Render("✓ " + msg))
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
