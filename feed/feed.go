// Package feed fetches a syndication feed and normalizes its entries.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

const defaultTimeout = 30 * time.Second

// Entry is a single normalized feed item. Every field is defaulted during
// normalization, so downstream code never has to guard against missing ones.
type Entry struct {
	ID      string // GUID, falling back to the link
	Title   string
	Link    string
	Summary string
}

// FetchError indicates the feed could not be retrieved over the network.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError indicates the retrieved payload is not a valid feed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing feed %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Source retrieves and parses a syndication feed.
//
// Retrieval and parsing are performed as separate steps so that network
// failures and malformed payloads surface as distinct error kinds.
type Source struct {
	httpc  *http.Client
	parser *gofeed.Parser
}

// NewSource creates a feed source with the given fetch timeout.
func NewSource(timeout time.Duration) *Source {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Source{
		httpc:  &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
	}
}

// Fetch retrieves the feed at url and returns its entries in feed-native
// order (typically newest first). It returns a *FetchError on transport
// failures and a *ParseError when the payload cannot be decoded.
func (s *Source) Fetch(ctx context.Context, url string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	parsed, err := s.parser.ParseString(string(body))
	if err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}

	return Normalize(parsed.Items), nil
}

// Normalize converts raw gofeed items into entries with a fixed, total
// schema. Items lacking both a GUID and a link have no usable identity and
// are dropped with a warning.
func Normalize(items []*gofeed.Item) []Entry {
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		if id == "" {
			slog.Warn("dropping feed entry without id or link", "title", item.Title)
			continue
		}

		title := item.Title
		if title == "" {
			title = "No Title"
		}

		summary := item.Description
		if summary == "" {
			summary = item.Content
		}

		entries = append(entries, Entry{
			ID:      id,
			Title:   title,
			Link:    item.Link,
			Summary: summary,
		})
	}
	return entries
}
