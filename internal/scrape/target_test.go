package scrape

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarget_URL(t *testing.T) {
	target := Target{Slug: "The_Gates_of_Morning", BookNum: 1, ChapterNum: 2}

	assert.Equal(t, "https://en.wikisource.org/wiki/The_Gates_of_Morning/Book_1/Chapter_2", target.URL(""))
	assert.Equal(t, "http://mirror/wiki/The_Gates_of_Morning/Book_1/Chapter_2", target.URL("http://mirror/wiki"))
	assert.Equal(t, "The Gates of Morning", target.BookTitle())
}

func TestParseChapterURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    Target
		wantErr bool
	}{
		{
			name: "wikisource",
			url:  "https://en.wikisource.org/wiki/The_Gates_of_Morning/Book_1/Chapter_1",
			want: Target{Slug: "The_Gates_of_Morning", BookNum: 1, ChapterNum: 1},
		},
		{
			name: "multi digit",
			url:  "https://en.wikisource.org/wiki/Moby_Dick/Book_12/Chapter_135",
			want: Target{Slug: "Moby_Dick", BookNum: 12, ChapterNum: 135},
		},
		{name: "no chapter", url: "https://en.wikisource.org/wiki/Moby_Dick", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChapterURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.url, got.URL(DefaultBaseURL))
		})
	}
}

func TestTarget_Validate(t *testing.T) {
	assert.NoError(t, Target{Slug: "A", BookNum: 1, ChapterNum: 1}.Validate())
	assert.ErrorIs(t, Target{BookNum: 1, ChapterNum: 1}.Validate(), ErrInvalidTarget)
	assert.ErrorIs(t, Target{Slug: "A", BookNum: 0, ChapterNum: 1}.Validate(), ErrInvalidTarget)
}

func TestJoinParagraphs(t *testing.T) {
	got := JoinParagraphs([]string{
		"  The lagoon lay still.  ",
		"",
		".mw-parser-output .dropinitial{float:left}",
		"Dawn came.",
	})
	assert.Equal(t, "The lagoon lay still.\n\nDawn came.", got)
	assert.Empty(t, JoinParagraphs(nil))
}

func TestInvalidTitle(t *testing.T) {
	assert.True(t, invalidTitle("Page not found"))
	assert.True(t, invalidTitle("No such page: Chapter 99"))
	assert.False(t, invalidTitle("Chapter 1"))
}

func TestRodFetcher_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	if os.Getenv("RESPIN_SCRAPE_INTEGRATION") == "" {
		t.Skip("RESPIN_SCRAPE_INTEGRATION not set")
	}

	config := DefaultConfig()
	config.OutputDir = t.TempDir()
	f := NewRodFetcher(config, nil)

	page, err := f.Fetch(context.Background(), Target{Slug: "The_Gates_of_Morning", BookNum: 1, ChapterNum: 1})
	require.NoError(t, err)
	assert.True(t, page.Valid)
	assert.NotEmpty(t, page.Text)
	assert.FileExists(t, page.ScreenshotPath)

	page, err = f.Fetch(context.Background(), Target{Slug: "The_Gates_of_Morning", BookNum: 1, ChapterNum: 99})
	require.NoError(t, err)
	assert.False(t, page.Valid)
}
