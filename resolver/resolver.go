// Package resolver implements the game-metadata resolution pipeline:
// search for a canonical title, fetch its summary, derive a view
package resolver

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gamedex/gamedex/wiki"
)

// View selects the output shape derived from the extract text
type View string

const (
	ViewGenres    View = "genres"
	ViewStory     View = "story"
	ViewDeveloper View = "developer"
)

// Kind classifies a resolution outcome
type Kind string

const (
	KindOK           Kind = "ok"
	KindInvalidInput Kind = "invalid_input"
	KindLookupFailed Kind = "lookup_failed"
	KindNotFound     Kind = "not_found"
	KindUndetermined Kind = "undetermined"
)

// Result is the typed outcome of a resolve call. It is converted to a
// user-presentable string only at the formatting boundary, so the core
// stays testable without string matching.
type Result struct {
	Kind      Kind
	View      View
	Name      string // original user-supplied name
	Title     string // canonical title, when resolved
	Genres    []string
	Story     string
	Developer string
	Excerpt   string
	Err       error // underlying cause for KindLookupFailed
}

// SummaryCache caches summary documents keyed by the search-resolved
// canonical title. The summary response may normalize the title, so both
// get and put use the search-step title or every lookup would miss.
// Search results are never cached so name-to-title resolution stays fresh.
type SummaryCache interface {
	GetSummary(title string) (wiki.SummaryDocument, bool)
	PutSummary(title string, doc wiki.SummaryDocument)
}

// Resolver orchestrates search, summary fetch and extraction
type Resolver struct {
	wiki       *wiki.Client
	cache      SummaryCache // optional
	extractors map[View]Extractor
}

// New creates a resolver with the three standard extraction strategies
func New(client *wiki.Client, cache SummaryCache) *Resolver {
	r := &Resolver{
		wiki:       client,
		cache:      cache,
		extractors: make(map[View]Extractor),
	}
	for _, e := range []Extractor{GenreExtractor{}, StoryExtractor{}, DeveloperExtractor{}} {
		r.extractors[e.View()] = e
	}
	return r
}

// Resolve runs the full pipeline for one game name and view.
// Every outcome is a Result; no error crosses this boundary.
func (r *Resolver) Resolve(ctx context.Context, name string, view View) Result {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Result{Kind: KindInvalidInput, View: view}
	}

	ext, ok := r.extractors[view]
	if !ok {
		return Result{Kind: KindInvalidInput, View: view, Name: trimmed}
	}

	// Bias the search toward game pages
	query := trimmed + " video game"
	title, found, err := r.wiki.Search(ctx, query)
	if err != nil {
		log.Printf("[Resolver] search failed for %q: %v", trimmed, err)
		return Result{Kind: KindLookupFailed, View: view, Name: trimmed, Err: err}
	}
	if !found {
		return Result{Kind: KindNotFound, View: view, Name: trimmed}
	}

	doc, cached := r.cachedSummary(title)
	if !cached {
		doc, err = r.wiki.Summary(ctx, title)
		if err != nil {
			log.Printf("[Resolver] summary failed for %q: %v", title, err)
			return Result{Kind: KindLookupFailed, View: view, Name: trimmed, Title: title, Err: err}
		}
		if r.cache != nil {
			r.cache.PutSummary(title, doc)
		}
	}

	res := ext.Extract(doc)
	res.Name = trimmed
	return res
}

func (r *Resolver) cachedSummary(title string) (wiki.SummaryDocument, bool) {
	if r.cache == nil {
		return wiki.SummaryDocument{}, false
	}
	return r.cache.GetSummary(title)
}

// String formats a result as the user-facing message relayed verbatim
// by the conversational layer
func (res Result) String() string {
	switch res.Kind {
	case KindInvalidInput:
		return "Please provide a game name."
	case KindLookupFailed:
		return fmt.Sprintf("Lookup failed: %v", res.Err)
	case KindNotFound:
		return fmt.Sprintf("No page found for %q. Try a different name.", res.Name)
	}

	switch res.View {
	case ViewGenres:
		if res.Kind == KindUndetermined {
			return fmt.Sprintf("Could not determine genres for %q. Summary excerpt: %s", res.Title, res.Excerpt)
		}
		return fmt.Sprintf("%s - genres: %s", res.Title, strings.Join(res.Genres, ", "))
	case ViewStory:
		if res.Kind == KindUndetermined {
			return fmt.Sprintf("No summary text available for %q.", res.Title)
		}
		return fmt.Sprintf("%s: %s", res.Title, res.Story)
	case ViewDeveloper:
		return fmt.Sprintf("%s - developer: %s. Context: %s", res.Title, res.Developer, res.Excerpt)
	}
	return fmt.Sprintf("Unsupported view: %s", res.View)
}
