package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gamedex/gamedex/pkg/config"
	"github.com/gamedex/gamedex/wiki"
)

// fakeWiki spins up search+summary test servers and counts requests
type fakeWiki struct {
	searchSrv     *httptest.Server
	summarySrv    *httptest.Server
	searchCalls   atomic.Int32
	summaryCalls  atomic.Int32
	searchBody    string
	summaryBody   string
	searchStatus  int
	summaryStatus int
}

func newFakeWiki(searchBody, summaryBody string) *fakeWiki {
	f := &fakeWiki{
		searchBody:    searchBody,
		summaryBody:   summaryBody,
		searchStatus:  200,
		summaryStatus: 200,
	}
	f.searchSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		w.WriteHeader(f.searchStatus)
		fmt.Fprint(w, f.searchBody)
	}))
	f.summarySrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.summaryCalls.Add(1)
		w.WriteHeader(f.summaryStatus)
		fmt.Fprint(w, f.summaryBody)
	}))
	return f
}

func (f *fakeWiki) close() {
	f.searchSrv.Close()
	f.summarySrv.Close()
}

func (f *fakeWiki) resolver(cache SummaryCache) *Resolver {
	client := wiki.New(config.WikiConfig{
		SearchBaseURL:  f.searchSrv.URL,
		SummaryBaseURL: f.summarySrv.URL,
		UserAgent:      "gamedex-test/1.0",
		TimeoutSeconds: 5,
	})
	return New(client, cache)
}

func TestResolveEmptyNameNoNetwork(t *testing.T) {
	f := newFakeWiki("", "")
	defer f.close()
	r := f.resolver(nil)

	for _, name := range []string{"", "   ", "\t\n"} {
		res := r.Resolve(context.Background(), name, ViewGenres)
		if res.Kind != KindInvalidInput {
			t.Errorf("Name %q: expected invalid_input, got %s", name, res.Kind)
		}
	}
	if f.searchCalls.Load() != 0 || f.summaryCalls.Load() != 0 {
		t.Errorf("Invalid input must not issue network calls (search=%d summary=%d)",
			f.searchCalls.Load(), f.summaryCalls.Load())
	}
}

func TestResolveNotFoundSkipsSummary(t *testing.T) {
	f := newFakeWiki(`{"query":{"search":[]}}`, `{}`)
	defer f.close()
	r := f.resolver(nil)

	res := r.Resolve(context.Background(), "Nonexistent", ViewStory)
	if res.Kind != KindNotFound {
		t.Fatalf("Expected not_found, got %s", res.Kind)
	}
	if f.summaryCalls.Load() != 0 {
		t.Error("NotFound must not issue a summary fetch")
	}
	if !strings.Contains(res.String(), "Nonexistent") {
		t.Errorf("NotFound message should carry the name: %q", res.String())
	}
}

func TestResolveLookupFailed(t *testing.T) {
	f := newFakeWiki("", "")
	f.searchStatus = 503
	defer f.close()
	r := f.resolver(nil)

	res := r.Resolve(context.Background(), "Hades", ViewGenres)
	if res.Kind != KindLookupFailed {
		t.Fatalf("Expected lookup_failed, got %s", res.Kind)
	}
	if res.Err == nil {
		t.Error("LookupFailed should carry the underlying cause")
	}
	if !strings.HasPrefix(res.String(), "Lookup failed:") {
		t.Errorf("Unexpected message: %q", res.String())
	}
}

func TestResolveHadesEndToEnd(t *testing.T) {
	f := newFakeWiki(
		`{"query":{"search":[{"title":"Hades (video game)"}]}}`,
		`{"title":"Hades (video game)","extract":"Hades is an action role-playing roguelike."}`,
	)
	defer f.close()
	r := f.resolver(nil)

	res := r.Resolve(context.Background(), "Hades", ViewGenres)
	if res.Kind != KindOK {
		t.Fatalf("Expected ok, got %s", res.Kind)
	}
	if res.Title != "Hades (video game)" {
		t.Errorf("Unexpected title: %q", res.Title)
	}
	if len(res.Genres) != 2 || res.Genres[0] != "action" || res.Genres[1] != "role-playing" {
		t.Errorf("Expected [action role-playing], got %v", res.Genres)
	}
}

func TestResolveIdempotent(t *testing.T) {
	f := newFakeWiki(
		`{"query":{"search":[{"title":"Hades (video game)"}]}}`,
		`{"title":"Hades (video game)","extract":"Hades is an action role-playing roguelike."}`,
	)
	defer f.close()
	r := f.resolver(nil)

	a := r.Resolve(context.Background(), "Hades", ViewDeveloper).String()
	b := r.Resolve(context.Background(), "Hades", ViewDeveloper).String()
	if a != b {
		t.Errorf("Identical upstream responses must yield identical output:\n%q\n%q", a, b)
	}
}

func TestResolveUnknownView(t *testing.T) {
	f := newFakeWiki("", "")
	defer f.close()
	r := f.resolver(nil)

	res := r.Resolve(context.Background(), "Hades", View("soundtrack"))
	if res.Kind != KindInvalidInput {
		t.Errorf("Unknown view should be invalid_input, got %s", res.Kind)
	}
	if f.searchCalls.Load() != 0 {
		t.Error("Unknown view must not issue network calls")
	}
}

// mapCache is a trivial in-memory SummaryCache for tests
type mapCache struct {
	docs map[string]wiki.SummaryDocument
}

func (m *mapCache) GetSummary(title string) (wiki.SummaryDocument, bool) {
	d, ok := m.docs[title]
	return d, ok
}

func (m *mapCache) PutSummary(title string, doc wiki.SummaryDocument) {
	m.docs[title] = doc
}

func TestResolveUsesSummaryCache(t *testing.T) {
	f := newFakeWiki(
		`{"query":{"search":[{"title":"Hades (video game)"}]}}`,
		`{"title":"Hades (video game)","extract":"Hades is an action role-playing roguelike."}`,
	)
	defer f.close()
	cache := &mapCache{docs: make(map[string]wiki.SummaryDocument)}
	r := f.resolver(cache)

	r.Resolve(context.Background(), "Hades", ViewGenres)
	r.Resolve(context.Background(), "Hades", ViewStory)

	if f.summaryCalls.Load() != 1 {
		t.Errorf("Second resolve should hit the cache, summary calls = %d", f.summaryCalls.Load())
	}
	if f.searchCalls.Load() != 2 {
		t.Errorf("Search is never cached, expected 2 calls, got %d", f.searchCalls.Load())
	}
}

func TestResolveCacheKeyedBySearchTitle(t *testing.T) {
	// The summary endpoint may normalize the title, so cache entries are
	// keyed by the search-resolved title on both put and get.
	f := newFakeWiki(
		`{"query":{"search":[{"title":"Hades (video game)"}]}}`,
		`{"title":"Hades","extract":"Hades is an action role-playing roguelike."}`,
	)
	defer f.close()
	cache := &mapCache{docs: make(map[string]wiki.SummaryDocument)}
	r := f.resolver(cache)

	r.Resolve(context.Background(), "Hades", ViewGenres)
	r.Resolve(context.Background(), "Hades", ViewStory)

	if f.summaryCalls.Load() != 1 {
		t.Errorf("Second resolve should hit the cache despite the title mismatch, summary calls = %d",
			f.summaryCalls.Load())
	}
	if _, ok := cache.docs["Hades (video game)"]; !ok {
		t.Error("Cache entry should be keyed by the search-resolved title")
	}
}

func TestResultStringFormatting(t *testing.T) {
	res := Result{
		Kind:   KindOK,
		View:   ViewGenres,
		Title:  "Hades (video game)",
		Genres: []string{"action", "role-playing"},
	}
	got := res.String()
	want := "Hades (video game) - genres: action, role-playing"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	res = Result{Kind: KindOK, View: ViewStory, Title: "G", Story: "A. B."}
	if res.String() != "G: A. B." {
		t.Errorf("Unexpected story formatting: %q", res.String())
	}
}
