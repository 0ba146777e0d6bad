package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/caisiyang/CNJP/internal/archive"
	"github.com/caisiyang/CNJP/internal/fetch"
	"github.com/caisiyang/CNJP/internal/news"
)

// mockSource is a scriptable Source for engine tests.
type mockSource struct {
	mu        sync.Mutex
	feed      fetch.Feed
	feedErr   error
	index     map[string]int
	indexErr  error
	pages     map[string][]news.Item
	pageErrs  map[string]error
	pageCalls map[string]int
}

func newMockSource() *mockSource {
	return &mockSource{
		pages:     make(map[string][]news.Item),
		pageErrs:  make(map[string]error),
		pageCalls: make(map[string]int),
	}
}

func (m *mockSource) Latest(ctx context.Context) (fetch.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.feedErr != nil {
		return fetch.Feed{}, m.feedErr
	}
	return m.feed, nil
}

func (m *mockSource) ArchiveIndex(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexErr != nil {
		return nil, m.indexErr
	}
	return m.index, nil
}

func (m *mockSource) ArchivePage(ctx context.Context, date string) ([]news.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageCalls[date]++
	if err := m.pageErrs[date]; err != nil {
		return nil, err
	}
	return m.pages[date], nil
}

func (m *mockSource) setFeed(feed fetch.Feed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feed = feed
}

func (m *mockSource) callsFor(date string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageCalls[date]
}

// eventLog records engine notifications in order.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) has(match func(Event) bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if match(ev) {
			return true
		}
	}
	return false
}

func newTestEngine(src Source, log *eventLog) *Engine {
	opts := Options{}
	if log != nil {
		opts.Notify = log.record
	}
	return New(src, archive.NewStore(nil), opts)
}

func links(items []news.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Link
	}
	return out
}

func sameLinks(got []news.Item, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i].Link != want[i] {
			return false
		}
	}
	return true
}

func TestLoadDedupsByLink(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{
		News: []news.Item{
			{Link: "a", Timestamp: 100},
			{Link: "b", Timestamp: 200},
			{Link: "a", Timestamp: 100},
		},
		LastUpdated: "T1",
	}

	e := newTestEngine(src, nil)
	e.Load(context.Background())

	got := e.DataSource()
	if len(got) != 2 {
		t.Fatalf("expected 2 deduped items, got %v", links(got))
	}
	if e.LastUpdated() != "T1" {
		t.Errorf("LastUpdated = %q, want T1", e.LastUpdated())
	}
}

func TestLoadFailureLeavesEmptyState(t *testing.T) {
	src := newMockSource()
	src.feedErr = errors.New("boom")

	log := &eventLog{}
	e := newTestEngine(src, log)
	e.Load(context.Background())

	if len(e.DataSource()) != 0 {
		t.Error("data source should be empty after a failed load")
	}
	if e.IsLoading() {
		t.Error("loading flag stuck after failed load")
	}
	if !log.has(func(ev Event) bool { _, ok := ev.(Loaded); return ok }) {
		t.Error("expected a Loaded event even on failure")
	}
}

func TestHistoryMergeDedupsAndSorts(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{
		News: []news.Item{
			{Link: "a", Timestamp: 100},
			{Link: "b", Timestamp: 200},
		},
		LastUpdated: "T1",
	}
	src.index = map[string]int{"2024-01-01": 2}
	src.pages["2024-01-01"] = []news.Item{
		{Link: "a", Timestamp: 100},
		{Link: "c", Timestamp: 50},
	}

	log := &eventLog{}
	e := newTestEngine(src, log)
	e.Load(context.Background())

	if !e.HistoryLoaded() {
		t.Fatal("history not loaded")
	}
	got := e.DataSource()
	if !sameLinks(got, []string{"b", "a", "c"}) {
		t.Fatalf("merged order = %v, want [b a c]", links(got))
	}
	if !log.has(func(ev Event) bool {
		m, ok := ev.(HistoryMerged)
		return ok && m.Total == 3
	}) {
		t.Error("expected HistoryMerged{Total: 3}")
	}
}

func TestHistoryMergeRunsOncePerSession(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{
		News:        []news.Item{{Link: "a", Timestamp: 100}},
		LastUpdated: "T1",
	}
	src.index = map[string]int{"2024-01-01": 1}
	src.pages["2024-01-01"] = []news.Item{{Link: "b", Timestamp: 50}}

	e := newTestEngine(src, nil)
	e.Load(context.Background())
	e.Load(context.Background())

	if n := src.callsFor("2024-01-01"); n != 1 {
		t.Errorf("archive page fetched %d times, want 1", n)
	}
}

func TestHistoryMergePageFailureIsolated(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{
		News:        []news.Item{{Link: "a", Timestamp: 300}},
		LastUpdated: "T1",
	}
	src.index = map[string]int{"2024-01-01": 1, "2024-01-02": 1}
	src.pages["2024-01-02"] = []news.Item{{Link: "b", Timestamp: 200}}
	src.pageErrs["2024-01-01"] = errors.New("gone")

	e := newTestEngine(src, nil)
	e.Load(context.Background())

	if !e.HistoryLoaded() {
		t.Fatal("one failing page must not abort the merge")
	}
	got := e.DataSource()
	if !sameLinks(got, []string{"a", "b"}) {
		t.Fatalf("merged = %v, want [a b]", links(got))
	}
}

func TestHistoryMergeFetchesDaysSeededByRawFeed(t *testing.T) {
	// The raw feed groups its items into day buckets before the merge
	// runs. A day present in both the feed and the index must still have
	// its page fetched, or the day's archived-only items are lost.
	day := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	date := day.Format("2006-01-02")

	src := newMockSource()
	src.feed = fetch.Feed{
		News:        []news.Item{{Link: "raw", Timestamp: day.Unix()}},
		LastUpdated: "T1",
	}
	src.index = map[string]int{date: 2}
	src.pages[date] = []news.Item{
		{Link: "raw", Timestamp: day.Unix()},
		{Link: "archived-only", Timestamp: day.Add(-time.Hour).Unix()},
	}

	e := newTestEngine(src, nil)
	e.Load(context.Background())

	if n := src.callsFor(date); n != 1 {
		t.Errorf("overlapping day fetched %d times, want 1", n)
	}
	if !sameLinks(e.DataSource(), []string{"raw", "archived-only"}) {
		t.Fatalf("merged = %v, want [raw archived-only]", links(e.DataSource()))
	}
}

func TestCheckNowStagesWithoutApplying(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{
		News:        []news.Item{{Link: "a", Timestamp: 100}},
		LastUpdated: "T1",
	}

	log := &eventLog{}
	e := newTestEngine(src, log)
	e.Load(context.Background())

	src.setFeed(fetch.Feed{
		News: []news.Item{
			{Link: "a", Timestamp: 100},
			{Link: "b", Timestamp: 200},
		},
		LastUpdated: "T2",
	})
	e.CheckNow(context.Background())

	if e.NewContentCount() != 1 {
		t.Errorf("NewContentCount = %d, want 1", e.NewContentCount())
	}
	if !sameLinks(e.DataSource(), []string{"a"}) {
		t.Errorf("data source moved before accept: %v", links(e.DataSource()))
	}
	if e.LastUpdated() != "T1" {
		t.Errorf("LastUpdated moved before accept: %q", e.LastUpdated())
	}
	if !log.has(func(ev Event) bool {
		n, ok := ev.(NewContent)
		return ok && n.Count == 1
	}) {
		t.Error("expected NewContent{Count: 1}")
	}
}

func TestCheckNowSameMarkerIsNoop(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{
		News:        []news.Item{{Link: "a", Timestamp: 100}},
		LastUpdated: "T1",
	}

	e := newTestEngine(src, nil)
	e.Load(context.Background())
	e.CheckNow(context.Background())

	if e.HasNewContent() {
		t.Error("unchanged marker staged an update")
	}
}

func TestCheckNowMissingMarkerIsNoop(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{
		News:        []news.Item{{Link: "a", Timestamp: 100}},
		LastUpdated: "T1",
	}

	e := newTestEngine(src, nil)
	e.Load(context.Background())

	src.setFeed(fetch.Feed{News: []news.Item{{Link: "b", Timestamp: 200}}})
	e.CheckNow(context.Background())

	if e.HasNewContent() {
		t.Error("feed without a marker staged an update")
	}
}

func TestCheckNowNoFreshLinksIsNoop(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{
		News:        []news.Item{{Link: "a", Timestamp: 100}},
		LastUpdated: "T1",
	}

	e := newTestEngine(src, nil)
	e.Load(context.Background())

	// New marker but every link already known.
	src.setFeed(fetch.Feed{
		News:        []news.Item{{Link: "a", Timestamp: 100}},
		LastUpdated: "T2",
	})
	e.CheckNow(context.Background())

	if e.HasNewContent() {
		t.Error("staged an update with zero fresh links")
	}
}

func TestAcceptPendingAppliesAtomically(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{
		News:        []news.Item{{Link: "a", Timestamp: 100}},
		LastUpdated: "T1",
	}

	log := &eventLog{}
	e := newTestEngine(src, log)
	e.Load(context.Background())

	src.setFeed(fetch.Feed{
		News: []news.Item{
			{Link: "a", Timestamp: 100},
			{Link: "b", Timestamp: 200},
		},
		LastUpdated: "T2",
	})
	e.CheckNow(context.Background())

	if !e.AcceptPending() {
		t.Fatal("AcceptPending returned false with an update staged")
	}
	if e.NewContentCount() != 0 {
		t.Errorf("NewContentCount = %d after accept, want 0", e.NewContentCount())
	}
	if e.LastUpdated() != "T2" {
		t.Errorf("LastUpdated = %q after accept, want T2", e.LastUpdated())
	}
	// Before the history merge the data source is the raw feed in feed
	// order; ordering for display is the view pipeline's job.
	if !sameLinks(e.DataSource(), []string{"a", "b"}) {
		t.Errorf("data source after accept = %v, want feed order [a b]", links(e.DataSource()))
	}
	if !log.has(func(ev Event) bool { _, ok := ev.(FeedApplied); return ok }) {
		t.Error("expected FeedApplied")
	}
}

func TestAcceptPendingWithNothingStaged(t *testing.T) {
	src := newMockSource()
	e := newTestEngine(src, nil)
	if e.AcceptPending() {
		t.Error("AcceptPending returned true with nothing staged")
	}
}

func TestAcceptPendingSplicesIntoMergedHistory(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{
		News:        []news.Item{{Link: "a", Timestamp: 200}},
		LastUpdated: "T1",
	}
	src.index = map[string]int{"2024-01-01": 1}
	src.pages["2024-01-01"] = []news.Item{{Link: "b", Timestamp: 100}}

	e := newTestEngine(src, nil)
	e.Load(context.Background())

	src.setFeed(fetch.Feed{
		News: []news.Item{
			{Link: "a", Timestamp: 200},
			{Link: "c", Timestamp: 300},
		},
		LastUpdated: "T2",
	})
	e.CheckNow(context.Background())
	e.AcceptPending()

	got := e.DataSource()
	if !sameLinks(got, []string{"c", "a", "b"}) {
		t.Fatalf("merged after accept = %v, want [c a b]", links(got))
	}
	if !e.HistoryLoaded() {
		t.Error("historyLoaded must stay set across accepts")
	}
}

func TestRefreshKeepsHistoryLoaded(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{
		News:        []news.Item{{Link: "a", Timestamp: 200}},
		LastUpdated: "T1",
	}
	src.index = map[string]int{"2024-01-01": 1}
	src.pages["2024-01-01"] = []news.Item{{Link: "b", Timestamp: 100}}

	log := &eventLog{}
	e := newTestEngine(src, log)
	e.Load(context.Background())

	src.setFeed(fetch.Feed{
		News:        []news.Item{{Link: "c", Timestamp: 300}},
		LastUpdated: "T2",
	})
	e.Refresh(context.Background())

	if !e.HistoryLoaded() {
		t.Error("refresh reset historyLoaded")
	}
	if e.IsRefreshing() {
		t.Error("refreshing flag stuck")
	}
	if !sameLinks(e.DataSource(), []string{"c", "a", "b"}) {
		t.Errorf("refreshed items missing from merged view: %v", links(e.DataSource()))
	}
	if !log.has(func(ev Event) bool { _, ok := ev.(Refreshed); return ok }) {
		t.Error("expected Refreshed")
	}
}

func TestArchiveDayFetchesOnce(t *testing.T) {
	src := newMockSource()
	src.pages["2024-01-01"] = []news.Item{{Link: "a", Timestamp: 100}}

	e := newTestEngine(src, nil)
	first := e.ArchiveDay(context.Background(), "2024-01-01")
	second := e.ArchiveDay(context.Background(), "2024-01-01")

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1 item from both lookups, got %d and %d", len(first), len(second))
	}
	if n := src.callsFor("2024-01-01"); n != 1 {
		t.Errorf("day fetched %d times, want 1", n)
	}
}

func TestArchiveDayFailureYieldsEmptyPage(t *testing.T) {
	src := newMockSource()
	src.pageErrs["2024-01-01"] = errors.New("gone")

	e := newTestEngine(src, nil)
	got := e.ArchiveDay(context.Background(), "2024-01-01")
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil page, got %v", got)
	}
}

func TestRawFeedServesDayViews(t *testing.T) {
	day := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	src := newMockSource()
	src.feed = fetch.Feed{
		News:        []news.Item{{Link: "a", Timestamp: day.Unix()}},
		LastUpdated: "T1",
	}

	e := newTestEngine(src, nil)
	e.Load(context.Background())

	got := e.ArchiveDay(context.Background(), day.Format("2006-01-02"))
	if !sameLinks(got, []string{"a"}) {
		t.Fatalf("day view = %v, want [a]", links(got))
	}
	if n := src.callsFor(day.Format("2006-01-02")); n != 0 {
		t.Errorf("grouped raw feed should serve the day without a fetch, got %d calls", n)
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{LastUpdated: "T1", News: []news.Item{}}

	e := New(src, archive.NewStore(nil), Options{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after context cancellation")
	}
}

func TestDataSourceReturnsCopies(t *testing.T) {
	src := newMockSource()
	src.feed = fetch.Feed{
		News:        []news.Item{{Link: "a", Timestamp: 100}},
		LastUpdated: "T1",
	}

	e := newTestEngine(src, nil)
	e.Load(context.Background())

	got := e.DataSource()
	got[0].Link = "mutated"

	if e.DataSource()[0].Link != "a" {
		t.Error("DataSource exposed internal state")
	}
}
