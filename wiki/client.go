// Package wiki provides the encyclopedia lookup client (search + summary)
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gamedex/gamedex/pkg/config"
)

// SummaryDocument is the short prose abstract for a canonical title.
// Extract may be empty; callers treat empty as "no data", not an error.
type SummaryDocument struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
}

// StatusError reports a non-200 response from the wiki API
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wiki: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Client talks to the search and summary endpoints.
// Safe for concurrent use; the underlying http.Client is shared.
type Client struct {
	cfg    config.WikiConfig
	client *http.Client
}

// New creates a wiki client from explicit configuration
func New(cfg config.WikiConfig) *Client {
	timeout := cfg.TimeoutSeconds
	if timeout == 0 {
		timeout = 10
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
}

// searchResponse mirrors the query.search portion of the search API payload
type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

// Search resolves a free-text query to a canonical page title.
// The first candidate wins; an empty candidate list returns ok=false
// which is a valid negative outcome, not an error.
func (c *Client) Search(ctx context.Context, query string) (string, bool, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", strconv.Itoa(config.MaxSearchResults))
	params.Set("format", "json")

	reqURL := c.cfg.SearchBaseURL + "?" + params.Encode()
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return "", false, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false, fmt.Errorf("wiki: parse search response: %w", err)
	}

	if len(resp.Query.Search) == 0 {
		return "", false, nil
	}
	return resp.Query.Search[0].Title, true, nil
}

// Summary fetches the abstract for a canonical title.
// A missing extract field yields an empty Extract, not an error.
func (c *Client) Summary(ctx context.Context, title string) (SummaryDocument, error) {
	reqURL := c.cfg.SummaryBaseURL + "/" + url.PathEscape(title)
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return SummaryDocument{}, err
	}

	var doc SummaryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return SummaryDocument{}, fmt.Errorf("wiki: parse summary response: %w", err)
	}
	if doc.Title == "" {
		doc.Title = title
	}
	return doc, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: reqURL, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}
