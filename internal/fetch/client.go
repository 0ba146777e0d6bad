// Package fetch retrieves the feed documents the application consumes: the
// latest-feed envelope, the archive index, and per-day archive pages.
//
// Every document is plain JSON served from an object-storage bucket. The
// latest feed and the index have a same-path local fallback that is tried
// whenever the primary host fails; archive pages are immutable and fetched
// from the primary only.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/caisiyang/CNJP/internal/news"
)

// Feed is the parsed latest-feed document.
//
// The endpoint serves either a {news, last_updated} envelope or a bare
// item array; a bare array has no last-updated marker.
type Feed struct {
	News        []news.Item `json:"news"`
	LastUpdated string      `json:"last_updated"`
}

// Client fetches feed documents from a primary base URL with an optional
// fallback. Safe for concurrent use.
type Client struct {
	base     string
	fallback string
	client   *http.Client
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewClient creates a Client for the given endpoints. fallback may be empty
// to disable the secondary host. The rate limiter only throttles archive
// page fetches - the history merge fans out over every known day and should
// not hammer the bucket.
func NewClient(base, fallback string, timeout time.Duration) *Client {
	return &Client{
		base:     base,
		fallback: fallback,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(20), 20),
		now:      time.Now,
	}
}

// Latest fetches the current feed document. The primary endpoint is tried
// first; any failure (network error, non-2xx, malformed body) falls through
// to the fallback.
func (c *Client) Latest(ctx context.Context) (Feed, error) {
	feed, err := c.latestFrom(ctx, c.base)
	if err == nil {
		return feed, nil
	}
	if c.fallback == "" {
		return Feed{}, err
	}
	feed, ferr := c.latestFrom(ctx, c.fallback)
	if ferr != nil {
		return Feed{}, fmt.Errorf("primary: %w; fallback: %v", err, ferr)
	}
	return feed, nil
}

func (c *Client) latestFrom(ctx context.Context, base string) (Feed, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/data.json?t=%d", base, c.now().UnixMilli()))
	if err != nil {
		return Feed{}, err
	}
	return parseFeed(body)
}

// ArchiveIndex fetches the mapping of date string to item count. Same
// fallback policy as Latest.
func (c *Client) ArchiveIndex(ctx context.Context) (map[string]int, error) {
	index, err := c.indexFrom(ctx, c.base)
	if err == nil {
		return index, nil
	}
	if c.fallback == "" {
		return nil, err
	}
	index, ferr := c.indexFrom(ctx, c.fallback)
	if ferr != nil {
		return nil, fmt.Errorf("primary: %w; fallback: %v", err, ferr)
	}
	return index, nil
}

func (c *Client) indexFrom(ctx context.Context, base string) (map[string]int, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/archive/index.json?t=%d", base, c.now().UnixMilli()))
	if err != nil {
		return nil, err
	}
	var index map[string]int
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("parse archive index: %w", err)
	}
	return index, nil
}

// ArchivePage fetches the items published on one calendar date. No cache
// busting and no fallback: historical days are immutable, and a missing day
// on the primary is simply a missing day.
func (c *Client) ArchivePage(ctx context.Context, date string) ([]news.Item, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := c.get(ctx, fmt.Sprintf("%s/archive/%s.json", c.base, date))
	if err != nil {
		return nil, err
	}
	var items []news.Item
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parse archive page %s: %w", date, err)
	}
	return items, nil
}

// get performs one HTTP GET and returns the response body.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "CNJP/1.0 (+https://github.com/caisiyang/CNJP)")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d %s", url, resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

// parseFeed accepts both shapes the latest-feed endpoint is known to serve.
func parseFeed(body []byte) (Feed, error) {
	var feed Feed
	if err := json.Unmarshal(body, &feed); err == nil && feed.News != nil {
		return feed, nil
	}

	var items []news.Item
	if err := json.Unmarshal(body, &items); err != nil {
		return Feed{}, fmt.Errorf("parse feed: unexpected document shape: %w", err)
	}
	return Feed{News: items}, nil
}
