// Package engine maintains the application's news collection: a raw latest
// feed, a one-shot merge with the full historical archive, and a polling
// freshness check that stages new content instead of applying it.
//
// # Thread safety
//
// Engine is safe for concurrent use. All collection state lives behind one
// mutex; accessors return copies. The consumer-visible contract is that
// accepting a pending update is atomic - raw feed, last-updated marker and
// pending state change together.
//
// # Failure policy
//
// No network failure crosses the engine boundary. Every fetch is
// independently caught, logged, and degraded to "use what we have". The
// only externally visible symptom of a failed load is unchanged (or empty)
// state with the loading flag cleared.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/caisiyang/CNJP/internal/archive"
	"github.com/caisiyang/CNJP/internal/fetch"
	"github.com/caisiyang/CNJP/internal/logging"
	"github.com/caisiyang/CNJP/internal/news"
)

// DefaultPollInterval is the time between freshness checks.
const DefaultPollInterval = 5 * time.Minute

// maxConcurrentPageFetches bounds the history-merge fan-out.
const maxConcurrentPageFetches = 8

// Source provides the three feed documents. *fetch.Client satisfies it;
// tests inject their own.
type Source interface {
	Latest(ctx context.Context) (fetch.Feed, error)
	ArchiveIndex(ctx context.Context) (map[string]int, error)
	ArchivePage(ctx context.Context, date string) ([]news.Item, error)
}

// Event is a state-change notification delivered to the UI layer.
type Event interface{ event() }

// Loaded is sent when the initial load (and any archive bootstrap it
// triggered) has finished.
type Loaded struct{ Items int }

// HistoryMerged is sent once per session, when the full archive has been
// merged into the data source.
type HistoryMerged struct{ Total int }

// NewContent is sent when a poll staged a pending update.
type NewContent struct{ Count int }

// FeedApplied is sent after a pending update was accepted. The UI should
// scroll to the top.
type FeedApplied struct{}

// Refreshed is sent after a manual refresh completes. The UI should scroll
// to the top.
type Refreshed struct{}

func (Loaded) event()        {}
func (HistoryMerged) event() {}
func (NewContent) event()    {}
func (FeedApplied) event()   {}
func (Refreshed) event()     {}

// Options configures an Engine.
type Options struct {
	PollInterval time.Duration // 0 means DefaultPollInterval
	Notify       func(Event)   // optional; called outside the engine lock
}

// Engine orchestrates fetching, merging and polling.
type Engine struct {
	src      Source
	pages    *archive.Store
	interval time.Duration
	notify   func(Event)
	log      *log.Logger
	wg       sync.WaitGroup

	mu            sync.RWMutex
	raw           []news.Item
	merged        []news.Item
	historyLoaded bool
	merging       bool
	lastUpdated   string
	index         map[string]int
	loading       bool
	refreshing    bool
	searchingAll  bool
	pending       []news.Item
	pendingStamp  string
	newCount      int
}

// New creates an Engine over the given source and page cache.
func New(src Source, pages *archive.Store, opts Options) *Engine {
	interval := opts.PollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}
	notify := opts.Notify
	if notify == nil {
		notify = func(Event) {}
	}
	return &Engine{
		src:      src,
		pages:    pages,
		interval: interval,
		notify:   notify,
		log:      logging.WithPrefix("engine"),
	}
}

// Start performs the initial load, then polls for new content until the
// context is cancelled. Cancellation is the only stop mechanism.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		e.Load(ctx)

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.CheckNow(ctx)
			}
		}
	}()
}

// Wait blocks until the polling goroutine exits. Call after cancelling the
// context passed to Start.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Load fetches the latest feed and bootstraps the archive. Both endpoint
// failures together leave the raw feed as it was; the error is logged, not
// returned.
func (e *Engine) Load(ctx context.Context) {
	e.setLoading(true)
	defer e.setLoading(false)

	e.load(ctx)
}

// Refresh re-fetches the latest feed without toggling the primary loading
// flag, so an already rendered list stays up while the fetch is in flight.
func (e *Engine) Refresh(ctx context.Context) {
	e.mu.Lock()
	e.refreshing = true
	e.mu.Unlock()

	e.load(ctx)

	e.mu.Lock()
	e.refreshing = false
	e.mu.Unlock()

	e.notify(Refreshed{})
}

// load is the shared fetch path for Load and Refresh.
func (e *Engine) load(ctx context.Context) {
	feed, err := e.src.Latest(ctx)
	if err != nil {
		e.log.Error("latest feed fetch failed", "error", err)
		e.notify(Loaded{Items: 0})
		return
	}
	e.applyFeed(feed)

	index, err := e.src.ArchiveIndex(ctx)
	if err != nil {
		e.log.Warn("archive index fetch failed", "error", err)
		e.notify(Loaded{Items: len(feed.News)})
		return
	}

	e.mu.Lock()
	e.index = index
	needMerge := len(index) > 0 && !e.historyLoaded && !e.merging
	if needMerge {
		e.merging = true
		e.searchingAll = true
	}
	e.mu.Unlock()

	e.notify(Loaded{Items: len(feed.News)})

	if needMerge {
		e.mergeHistory(ctx, index)
	}
}

// applyFeed installs a freshly fetched feed as the raw collection and
// clears any staged update - the fetch already represents the newest truth.
func (e *Engine) applyFeed(feed fetch.Feed) {
	e.mu.Lock()
	e.raw = dedupByLink(feed.News)
	if feed.LastUpdated != "" {
		e.lastUpdated = feed.LastUpdated
	}
	e.pending = nil
	e.pendingStamp = ""
	e.newCount = 0
	e.spliceMergedLocked()
	raw := copyItems(e.raw)
	e.mu.Unlock()

	e.groupRawByDate(raw)
}

// spliceMergedLocked folds unseen raw items into the merged collection so a
// post-merge feed update is visible without a second history pass. Caller
// holds e.mu.
func (e *Engine) spliceMergedLocked() {
	if !e.historyLoaded {
		return
	}
	seen := make(map[string]bool, len(e.merged))
	for _, it := range e.merged {
		seen[it.Link] = true
	}
	merged := e.merged
	grew := false
	for _, it := range e.raw {
		if it.Link == "" || seen[it.Link] {
			continue
		}
		seen[it.Link] = true
		merged = append(merged, it)
		grew = true
	}
	if grew {
		sortByTimestamp(merged)
		e.merged = merged
	}
}

// groupRawByDate folds the raw feed into the page cache so recent items
// serve day views without a network round trip. Pure derivation from the
// raw feed, invoked after every raw-feed mutation.
func (e *Engine) groupRawByDate(raw []news.Item) {
	for date, items := range news.GroupByDate(raw) {
		e.pages.Merge(date, items)
	}
}

// mergeHistory fetches every archive page concurrently and builds the
// merged collection. Runs at most once per session. A failing page
// contributes zero items and never aborts the merge; the merge applies only
// after every page has settled.
func (e *Engine) mergeHistory(ctx context.Context, index map[string]int) {
	defer func() {
		e.mu.Lock()
		e.merging = false
		e.searchingAll = false
		e.mu.Unlock()
	}()

	dates := make([]string, 0, len(index))
	for d := range index {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	results := make([][]news.Item, len(dates))
	var g errgroup.Group
	g.SetLimit(maxConcurrentPageFetches)

	for i, date := range dates {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			// Only a fully fetched page may satisfy the merge from cache.
			// The raw feed seeds partial buckets for its own days, and
			// those are missing the day's archived-only items.
			if items, ok := e.pages.GetComplete(date); ok {
				results[i] = items
				return nil
			}
			items, err := e.src.ArchivePage(ctx, date)
			if err != nil {
				e.log.Warn("archive page fetch failed", "date", date, "error", err)
				return nil // failing page contributes nothing
			}
			e.pages.Put(date, items)
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	merged := make([]news.Item, 0, len(e.raw))
	seen := make(map[string]bool, len(e.raw))
	for _, it := range e.raw {
		if it.Link == "" || seen[it.Link] {
			continue
		}
		seen[it.Link] = true
		merged = append(merged, it)
	}
	for _, page := range results {
		for _, it := range page {
			if it.Link == "" || seen[it.Link] {
				continue
			}
			seen[it.Link] = true
			merged = append(merged, it)
		}
	}
	sortByTimestamp(merged)
	e.merged = merged
	e.historyLoaded = true
	total := len(merged)
	e.mu.Unlock()

	e.log.Info("history merged", "items", total, "days", len(dates))
	e.notify(HistoryMerged{Total: total})
}

// CheckNow performs one freshness check. New items are staged as a pending
// update and surfaced via NewContent - the displayed collection does not
// move until AcceptPending.
func (e *Engine) CheckNow(ctx context.Context) {
	feed, err := e.src.Latest(ctx)
	if err != nil {
		e.log.Debug("freshness check failed", "error", err)
		return
	}

	e.mu.Lock()
	if feed.LastUpdated == "" || feed.LastUpdated == e.lastUpdated {
		e.mu.Unlock()
		return
	}
	known := make(map[string]bool, len(e.raw))
	for _, it := range e.raw {
		known[it.Link] = true
	}
	fresh := 0
	for _, it := range feed.News {
		if !known[it.Link] {
			fresh++
		}
	}
	if fresh == 0 {
		e.mu.Unlock()
		return
	}
	e.pending = dedupByLink(feed.News)
	e.pendingStamp = feed.LastUpdated
	e.newCount = fresh
	e.mu.Unlock()

	e.log.Info("new content staged", "count", fresh)
	e.notify(NewContent{Count: fresh})
}

// AcceptPending applies a staged update: the pending feed becomes the raw
// feed and, if history is loaded, its unseen items are spliced into the
// merged collection. Returns false when nothing was pending.
//
// Known gap, kept deliberately: the splice dedups against the merged set
// only. An archive page load racing the staged update can in rare cases
// introduce a duplicate that the next full merge would have caught.
func (e *Engine) AcceptPending() bool {
	e.mu.Lock()
	if e.pending == nil {
		e.mu.Unlock()
		return false
	}

	e.raw = e.pending
	e.lastUpdated = e.pendingStamp
	e.pending = nil
	e.pendingStamp = ""
	e.newCount = 0
	e.spliceMergedLocked()
	raw := copyItems(e.raw)
	e.mu.Unlock()

	e.groupRawByDate(raw)
	e.notify(FeedApplied{})
	return true
}

// ArchiveDay returns the page for a date, fetching and caching it on a
// miss. A failed fetch yields an empty page.
func (e *Engine) ArchiveDay(ctx context.Context, date string) []news.Item {
	if items, ok := e.pages.Get(date); ok {
		return items
	}

	items, err := e.src.ArchivePage(ctx, date)
	if err != nil {
		e.log.Warn("archive day fetch failed", "date", date, "error", err)
		return []news.Item{}
	}
	e.pages.Put(date, items)
	return items
}

// DataSource returns the collection the view pipeline should consume: the
// merged history once loaded, the raw feed before that. Once merged, the
// source never reverts to raw-only.
func (e *Engine) DataSource() []news.Item {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.historyLoaded && len(e.merged) > 0 {
		return copyItems(e.merged)
	}
	return copyItems(e.raw)
}

// LastUpdated returns the feed's last-updated marker.
func (e *Engine) LastUpdated() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastUpdated
}

// HistoryLoaded reports whether the one-shot archive merge has completed.
// Monotonic within a session.
func (e *Engine) HistoryLoaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.historyLoaded
}

// NewContentCount returns the number of staged, not-yet-applied items.
func (e *Engine) NewContentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.newCount
}

// HasNewContent reports whether a pending update is staged.
func (e *Engine) HasNewContent() bool {
	return e.NewContentCount() > 0
}

// IsLoading reports whether the initial load is in flight.
func (e *Engine) IsLoading() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loading
}

// IsRefreshing reports whether a manual refresh is in flight.
func (e *Engine) IsRefreshing() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.refreshing
}

// IsSearchingAll reports whether the history merge is in flight.
func (e *Engine) IsSearchingAll() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.searchingAll
}

// ArchiveIndex returns the known archive index (date -> item count).
func (e *Engine) ArchiveIndex() map[string]int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	index := make(map[string]int, len(e.index))
	for k, v := range e.index {
		index[k] = v
	}
	return index
}

func (e *Engine) setLoading(v bool) {
	e.mu.Lock()
	e.loading = v
	e.mu.Unlock()
}

// sortByTimestamp orders items newest first. A missing timestamp sorts as
// zero, oldest.
func sortByTimestamp(items []news.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp > items[j].Timestamp
	})
}

// dedupByLink drops repeated links, first occurrence wins. Items without a
// link are kept as-is - they cannot collide.
func dedupByLink(items []news.Item) []news.Item {
	seen := make(map[string]bool, len(items))
	out := make([]news.Item, 0, len(items))
	for _, it := range items {
		if it.Link != "" {
			if seen[it.Link] {
				continue
			}
			seen[it.Link] = true
		}
		out = append(out, it)
	}
	return out
}

func copyItems(items []news.Item) []news.Item {
	out := make([]news.Item, len(items))
	copy(out, items)
	return out
}
