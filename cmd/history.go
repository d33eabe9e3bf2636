package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Yates-Labs/respin/internal/ledger"
	"github.com/Yates-Labs/respin/internal/orchestrator"
	"github.com/spf13/cobra"
)

var (
	historyChapter chapterFlags
	exportFile     string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the revision history of a chapter",
	Long: `Show every stored revision of a chapter in order.

Each row shows:
- Version and entry type
- Editor and reward for human decisions
- Prompt used for AI rewrites
- Content length and time stored

Examples:
  respin history --book 1 --chapter 1
  respin history --url https://en.wikisource.org/wiki/The_Gates_of_Morning/Book_1/Chapter_1 --export chapter1.json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyChapter.bind(historyCmd)
	historyCmd.Flags().StringVar(&exportFile, "export", "", "Export entries to JSON file: --export <filename>")
}

func runHistory(cmd *cobra.Command, args []string) error {
	target, err := historyChapter.target(appConfig)
	if err != nil {
		return err
	}
	chapter := chapterRef(target)

	ctx := context.Background()
	rt, err := orchestrator.Open(ctx, appConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer rt.Close()

	state, err := rt.Ledger().Resume(ctx, chapter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if state.Empty() {
		fmt.Fprintf(out, "No history for %s\n", chapter)
		return nil
	}

	if exportFile != "" {
		return handleExport(out, state.Entries, exportFile)
	}
	printHistory(out, state)
	return nil
}

func handleExport(out io.Writer, entries []ledger.Entry, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := ledger.Export(entries, "json", file); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintf(out, "✓ Exported %d entries to %s\n", len(entries), filename)
	return nil
}

func printHistory(out io.Writer, state ledger.State) {
	t := table{out: out, columns: []column{
		{title: "VER", width: 5, color: numberColor, numeric: true},
		{title: "TYPE", width: 23, color: nameColor},
		{title: "EDITOR", width: 12, color: textColor},
		{title: "REWARD", width: 8, color: numberColor, numeric: true},
		{title: "PROMPT", width: 28, color: textColor},
		{title: "CHARS", width: 8, color: numberColor, numeric: true},
		{title: "STORED", width: 15, color: textColor},
	}}
	t.header()

	for _, e := range state.Entries {
		var editor, rewardText, prompt string
		if e.Outcome != nil {
			editor = e.Outcome.Editor
			rewardText = fmt.Sprintf("%.2f", e.Outcome.Reward)
			prompt = e.Outcome.PromptUsed
		}
		if e.Spin != nil {
			prompt = e.Spin.PromptName
		}
		t.row(
			fmt.Sprintf("%d", e.Version),
			string(e.Type),
			editor,
			rewardText,
			prompt,
			fmt.Sprintf("%d", len([]rune(e.Content))),
			e.Timestamp.Local().Format("Jan 02, 15:04"),
		)
	}

	status := "in progress"
	if state.Finalized {
		status = "finalized"
	}
	summary(out, fmt.Sprintf("%s: %d entries, current version %d, %s", state.Chapter, len(state.Entries), state.Version, status))
}
