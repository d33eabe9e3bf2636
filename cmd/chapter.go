package cmd

import (
	"github.com/Yates-Labs/respin/internal/config"
	"github.com/Yates-Labs/respin/internal/ledger"
	"github.com/Yates-Labs/respin/internal/scrape"
	"github.com/spf13/cobra"
)

// chapterFlags select a chapter either by URL or by slug and numbers. Unset
// values fall back to the book section of the config.
type chapterFlags struct {
	url     string
	slug    string
	book    int
	chapter int
}

func (f *chapterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "Chapter URL, e.g. https://en.wikisource.org/wiki/The_Gates_of_Morning/Book_1/Chapter_1")
	cmd.Flags().StringVar(&f.slug, "book-slug", "", "Book name as it appears in the URL")
	cmd.Flags().IntVar(&f.book, "book", 0, "Book number")
	cmd.Flags().IntVar(&f.chapter, "chapter", 0, "Chapter number")
}

func (f *chapterFlags) target(cfg config.Config) (scrape.Target, error) {
	if f.url != "" {
		return scrape.ParseChapterURL(f.url)
	}
	t := scrape.Target{Slug: cfg.Book.Slug, BookNum: cfg.Book.BookNum, ChapterNum: cfg.Book.ChapterNum}
	if f.slug != "" {
		t.Slug = f.slug
	}
	if f.book != 0 {
		t.BookNum = f.book
	}
	if f.chapter != 0 {
		t.ChapterNum = f.chapter
	}
	return t, t.Validate()
}

func chapterRef(t scrape.Target) ledger.ChapterRef {
	return ledger.ChapterRef{BookTitle: t.BookTitle(), BookNum: t.BookNum, ChapterNum: t.ChapterNum}
}
