// Extraction strategies over summary text
// Each strategy is pure and total: empty input is valid and produces
// the undetermined/unknown branch, never an error

package resolver

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gamedex/gamedex/pkg/config"
	"github.com/gamedex/gamedex/wiki"
)

// genreVocabulary is the fixed controlled vocabulary, in output order.
// Matching is substring containment, not word-boundary matching; this
// keeps results stable against the upstream behavior even though it can
// false-positive on words that merely contain a term.
var genreVocabulary = []string{
	"action",
	"adventure",
	"role-playing",
	"rpg",
	"shooter",
	"puzzle",
	"strategy",
	"simulation",
	"sports",
	"racing",
	"platform",
	"horror",
	"survival",
	"sandbox",
	"fighting",
	"stealth",
	"visual novel",
	"mmo",
	"fps",
	"tps",
	"metroidvania",
}

// developerPattern matches "developed by" / "developed and published by"
// followed by a run of characters up to the first period, comma or semicolon
var developerPattern = regexp.MustCompile(`(?i)developed (?:and published )?by ([^.,;]+)`)

// Extractor derives one view from a summary document
type Extractor interface {
	View() View
	Extract(doc wiki.SummaryDocument) Result
}

// GenreExtractor matches the fixed vocabulary against the extract text
type GenreExtractor struct{}

func (GenreExtractor) View() View { return ViewGenres }

func (GenreExtractor) Extract(doc wiki.SummaryDocument) Result {
	lower := strings.ToLower(doc.Extract)

	var genres []string
	for _, term := range genreVocabulary {
		if strings.Contains(lower, term) {
			genres = append(genres, term)
		}
	}

	if len(genres) == 0 {
		return Result{
			Kind:    KindUndetermined,
			View:    ViewGenres,
			Title:   doc.Title,
			Excerpt: excerpt(doc.Extract),
		}
	}
	return Result{
		Kind:   KindOK,
		View:   ViewGenres,
		Title:  doc.Title,
		Genres: genres,
	}
}

// StoryExtractor takes the first sentences of the extract text.
// The ". " split is a heuristic splitter; it mis-splits on abbreviations
// and decimal numbers, which is accepted for output determinism.
type StoryExtractor struct{}

func (StoryExtractor) View() View { return ViewStory }

func (StoryExtractor) Extract(doc wiki.SummaryDocument) Result {
	text := doc.Extract
	if strings.TrimSpace(text) == "" {
		return Result{
			Kind:  KindUndetermined,
			View:  ViewStory,
			Title: doc.Title,
		}
	}

	segments := strings.Split(text, ". ")
	n := config.StorySentences
	if len(segments) < n {
		n = len(segments)
	}
	story := strings.Join(segments[:n], ". ")
	if !strings.HasSuffix(story, ".") {
		story += "."
	}

	return Result{
		Kind:  KindOK,
		View:  ViewStory,
		Title: doc.Title,
		Story: story,
	}
}

// DeveloperExtractor captures the developer name from the extract text
type DeveloperExtractor struct{}

func (DeveloperExtractor) View() View { return ViewDeveloper }

func (DeveloperExtractor) Extract(doc wiki.SummaryDocument) Result {
	res := Result{
		Kind:      KindOK,
		View:      ViewDeveloper,
		Title:     doc.Title,
		Developer: "Unknown",
		Excerpt:   excerpt(doc.Extract),
	}

	m := developerPattern.FindStringSubmatch(doc.Extract)
	if m == nil {
		res.Kind = KindUndetermined
		return res
	}
	res.Developer = strings.TrimSpace(m[1])
	return res
}

// excerpt returns a bounded prefix for human inspection. The cut never
// splits a multi-byte rune, so the result stays valid UTF-8.
func excerpt(text string) string {
	if len(text) <= config.DeveloperExcerptChars {
		return text
	}
	end := config.DeveloperExcerptChars
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	return text[:end]
}
