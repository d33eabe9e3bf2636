// Package scrape fetches chapter text from Wikisource-style book pages.
package scrape

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidURL    = errors.New("URL does not name a book chapter")
	ErrInvalidTarget = errors.New("invalid scrape target")
)

// DefaultBaseURL is the Wikisource page root.
const DefaultBaseURL = "https://en.wikisource.org/wiki/"

var chapterPattern = regexp.MustCompile(`/([^/]+)/Book_(\d+)/Chapter_(\d+)`)

// Target identifies a chapter page.
type Target struct {
	// Slug is the book name as it appears in the URL, e.g. "The_Gates_of_Morning".
	Slug       string
	BookNum    int
	ChapterNum int
}

// Validate checks that the target can produce a URL.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Slug) == "" {
		return fmt.Errorf("%w: book slug is required", ErrInvalidTarget)
	}
	if t.BookNum <= 0 || t.ChapterNum <= 0 {
		return fmt.Errorf("%w: book and chapter numbers must be positive", ErrInvalidTarget)
	}
	return nil
}

// BookTitle returns the slug with underscores replaced by spaces.
func (t Target) BookTitle() string {
	return strings.ReplaceAll(t.Slug, "_", " ")
}

// URL joins the target onto baseURL, e.g.
// https://en.wikisource.org/wiki/The_Gates_of_Morning/Book_1/Chapter_1.
func (t Target) URL(baseURL string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return fmt.Sprintf("%s%s/Book_%d/Chapter_%d", baseURL, t.Slug, t.BookNum, t.ChapterNum)
}

// fileStem is the per-chapter prefix for saved artifacts.
func (t Target) fileStem() string {
	return fmt.Sprintf("%s_Book%d_Chapter%d", t.Slug, t.BookNum, t.ChapterNum)
}

// ParseChapterURL recovers the target from a chapter URL.
func ParseChapterURL(url string) (Target, error) {
	m := chapterPattern.FindStringSubmatch(url)
	if m == nil {
		return Target{}, fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}
	book, err := strconv.Atoi(m[2])
	if err != nil {
		return Target{}, fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}
	chapter, err := strconv.Atoi(m[3])
	if err != nil {
		return Target{}, fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}
	return Target{Slug: m[1], BookNum: book, ChapterNum: chapter}, nil
}

// Page is the result of fetching a chapter.
type Page struct {
	URL            string
	Title          string
	Text           string
	ScreenshotPath string
	TextPath       string
	// Valid is false when the page does not exist or has no chapter text.
	Valid bool
}

// invalidTitleMarkers appear in the heading of missing pages.
var invalidTitleMarkers = []string{"Page not found", "No such page"}

func invalidTitle(title string) bool {
	for _, marker := range invalidTitleMarkers {
		if strings.Contains(title, marker) {
			return true
		}
	}
	return false
}

// JoinParagraphs trims paragraph texts, drops empty ones and inline
// stylesheet text, and joins the rest with blank lines.
func JoinParagraphs(paragraphs []string) string {
	kept := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, ".mw-parser-output") {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "\n\n")
}
