package cmd

import (
	"context"
	"fmt"

	"github.com/Yates-Labs/respin/internal/ledger"
	"github.com/Yates-Labs/respin/internal/orchestrator"
	"github.com/spf13/cobra"
)

var (
	scrapeChapter  chapterFlags
	recordOriginal bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Fetch a chapter without starting a session",
	Long: `Fetch a chapter page, save its text and screenshot to the scrape output
directory and print a short preview.

With --record the text is also stored as the chapter's original version,
so a later session starts from it without scraping again.

Examples:
  respin scrape --book 1 --chapter 3
  respin scrape --url https://en.wikisource.org/wiki/The_Gates_of_Morning/Book_1/Chapter_3 --record`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeChapter.bind(scrapeCmd)
	scrapeCmd.Flags().BoolVar(&recordOriginal, "record", false, "Store the chapter as the original version in the ledger")
}

func runScrape(cmd *cobra.Command, args []string) error {
	target, err := scrapeChapter.target(appConfig)
	if err != nil {
		return err
	}
	ctx := context.Background()

	page, err := orchestrator.NewFetcher(appConfig, logger).Fetch(ctx, target)
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}
	if !page.Valid {
		return fmt.Errorf("no chapter text found at %s", target.URL(appConfig.Book.BaseURL))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Scraped %q (%d characters)\n", page.Title, len([]rune(page.Text)))
	if page.TextPath != "" {
		fmt.Fprintf(out, "  Text: %s\n", page.TextPath)
	}
	if page.ScreenshotPath != "" {
		fmt.Fprintf(out, "  Screenshot: %s\n", page.ScreenshotPath)
	}
	fmt.Fprintf(out, "\n%s\n\n", preview(page.Text, 300))

	if !recordOriginal {
		return nil
	}

	rt, err := orchestrator.Open(ctx, appConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer rt.Close()

	entry, err := rt.Ledger().AddOriginal(ctx, chapterRef(target), page.Text, ledger.SourceDetails{
		URL:            page.URL,
		Title:          page.Title,
		ScreenshotPath: page.ScreenshotPath,
	})
	if err != nil {
		return fmt.Errorf("failed to record original: %w", err)
	}
	fmt.Fprintf(out, "✓ Recorded %s\n", entry.ID)
	return nil
}
