package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/Yates-Labs/respin/internal/console"
	"github.com/Yates-Labs/respin/internal/ledger"
	"github.com/Yates-Labs/respin/internal/orchestrator"
	"github.com/spf13/cobra"
)

var (
	searchType    string
	searchBook    int
	searchChapter int
	searchVersion int
	searchEditor  string
	searchLimit   int
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Semantic search over stored chapter versions",
	Long: `Search every stored revision by similarity to QUERY, optionally narrowed
by entry type, book, chapter, version or editor.

Examples:
  respin search "the lagoon at dawn"
  respin search "storm" --type final_version --limit 3
  respin search "Dick and Katafa" --book 1 --chapter 2 --editor ana`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	f := searchCmd.Flags()
	f.StringVar(&searchType, "type", "", "Entry type: "+typeNames())
	f.IntVar(&searchBook, "book", 0, "Book number")
	f.IntVar(&searchChapter, "chapter", 0, "Chapter number")
	f.IntVar(&searchVersion, "version", 0, "Version number")
	f.StringVar(&searchEditor, "editor", "", "Editor name")
	f.IntVar(&searchLimit, "limit", 5, "Maximum number of results")
}

func typeNames() string {
	names := make([]string, len(ledger.AllTypes))
	for i, t := range ledger.AllTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := ledger.Query{
		Text:   strings.TrimSpace(args[0]),
		Editor: searchEditor,
		Limit:  searchLimit,
	}
	if query.Text == "" {
		return fmt.Errorf("search query cannot be empty")
	}
	if searchType != "" {
		t, err := ledger.ParseType(searchType)
		if err != nil {
			return err
		}
		query.Type = t
	}
	flags := cmd.Flags()
	if flags.Changed("book") {
		query.BookNum = &searchBook
	}
	if flags.Changed("chapter") {
		query.ChapterNum = &searchChapter
	}
	if flags.Changed("version") {
		query.Version = &searchVersion
	}

	ctx := context.Background()
	rt, err := orchestrator.Open(ctx, appConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer rt.Close()

	results, err := rt.Ledger().Search(ctx, query)
	if err != nil {
		return err
	}
	console.New(strings.NewReader(""), cmd.OutOrStdout()).ShowResults(results)
	return nil
}
