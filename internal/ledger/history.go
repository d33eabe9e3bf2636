package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// History returns the chapter's entries ordered by version, with reviews
// after the entry they review.
func (l *Ledger) History(ctx context.Context, chapter ChapterRef) ([]Entry, error) {
	entries, err := l.chapterEntries(ctx, chapter)
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Version != entries[j].Version {
			return entries[i].Version < entries[j].Version
		}
		return entries[i].Type.order() < entries[j].Type.order()
	})
}

// State is the working state of a chapter derived from its history.
type State struct {
	Chapter ChapterRef
	Entries []Entry

	Original *Entry
	// Current is the highest-version non-review entry.
	Current *Entry
	// Review is the latest review of Current, if any.
	Review *Entry

	// Version is the highest version recorded.
	Version int
	// PromptName is the prompt behind the most recent spin.
	PromptName string
	Finalized  bool
}

// Empty reports whether the chapter has no entries.
func (s State) Empty() bool {
	return len(s.Entries) == 0
}

// NextVersion returns the version the next non-review entry must use.
func (s State) NextVersion() int {
	if s.Empty() {
		return 0
	}
	return s.Version + 1
}

// Resume derives the working state of a chapter so an interrupted session can
// continue from its latest entry.
func (l *Ledger) Resume(ctx context.Context, chapter ChapterRef) (State, error) {
	entries, err := l.History(ctx, chapter)
	if err != nil {
		return State{}, err
	}
	return deriveState(chapter, entries), nil
}

func deriveState(chapter ChapterRef, entries []Entry) State {
	state := State{Chapter: chapter, Entries: entries, Version: -1}
	for i := range entries {
		e := &entries[i]
		state.Version = max(state.Version, e.Version)
		switch {
		case e.Type == TypeOriginal:
			state.Original = e
		case e.Type.IsReview():
			if state.Current != nil && e.Review != nil && e.Review.ReviewedID == state.Current.ID {
				state.Review = e
			}
			continue
		case e.Type == TypeFinal:
			state.Finalized = true
		}
		if e.Type == TypeSpin && e.Spin != nil {
			state.PromptName = e.Spin.PromptName
		}
		if state.Current == nil || e.Version >= state.Current.Version {
			state.Current = e
			state.Review = nil
		}
	}
	return state
}

// ExportFormat represents supported export formats
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
)

// EntryExport is the exported form of an entry.
type EntryExport struct {
	Entry
	Chars int `json:"chars"`
}

// Export writes entries in the requested format.
func Export(entries []Entry, format string, writer io.Writer) error {
	if ExportFormat(strings.ToLower(format)) != FormatJSON {
		return fmt.Errorf("unsupported export format: %s (supported: json)", format)
	}

	exports := make([]EntryExport, len(entries))
	for i, e := range entries {
		exports[i] = EntryExport{Entry: e, Chars: len([]rune(e.Content))}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exports)
}
