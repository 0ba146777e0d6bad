// Package view derives the bounded display list from the engine's data
// source: sort, category filter, text search, pagination window.
//
// The stage functions are pure - items in, items out, no side effects. The
// Pipeline type holds the user-driven filter state and the debounce timer
// for search input, nothing else.
package view

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/caisiyang/CNJP/internal/news"
)

// DefaultPageSize is the initial pagination window, and the increment
// applied by LoadMore.
const DefaultPageSize = 25

// DefaultDebounce is the quiet period before typed input becomes the
// committed search query.
const DefaultDebounce = 500 * time.Millisecond

// SortMode selects the timestamp field used for ordering.
type SortMode int

const (
	// SortPublish orders by the article's publish time.
	SortPublish SortMode = iota
	// SortFetch orders by the pipeline ingest time, falling back to the
	// publish time for items that were never stamped.
	SortFetch
)

// SortByTimestamp returns a new slice ordered newest first by the chosen
// field. Items lacking the field sort as zero, oldest.
func SortByTimestamp(items []news.Item, mode SortMode) []news.Item {
	out := make([]news.Item, len(items))
	copy(out, items)

	if mode == SortFetch {
		sortStable(out, func(it news.Item) int64 { return it.SortKey() })
	} else {
		sortStable(out, func(it news.Item) int64 { return it.Timestamp })
	}
	return out
}

// FilterCategory keeps items whose raw category normalizes to key.
// CategoryAll keeps everything.
func FilterCategory(items []news.Item, table news.CategoryTable, key string) []news.Item {
	if key == news.CategoryAll {
		return items
	}
	out := make([]news.Item, 0, len(items))
	for _, it := range items {
		if table.Normalize(it.Category) == key {
			out = append(out, it)
		}
	}
	return out
}

// Search keeps items where any title variant or the origin contains the
// query, case-insensitively. An empty query keeps everything.
func Search(items []news.Item, query string) []news.Item {
	if query == "" {
		return items
	}
	q := strings.ToLower(query)
	out := make([]news.Item, 0, len(items))
	for _, it := range items {
		if matches(it, q) {
			out = append(out, it)
		}
	}
	return out
}

func matches(it news.Item, q string) bool {
	return strings.Contains(strings.ToLower(it.Title), q) ||
		strings.Contains(strings.ToLower(it.TitleTC), q) ||
		strings.Contains(strings.ToLower(it.TitleJA), q) ||
		strings.Contains(strings.ToLower(it.Origin), q)
}

// CategoryCount counts items across the whole collection whose raw
// category normalizes to key. Used to annotate category chips; deliberately
// ignores the active search query and pagination window.
func CategoryCount(items []news.Item, table news.CategoryTable, key string) int {
	n := 0
	for _, it := range items {
		if table.Normalize(it.Category) == key {
			n++
		}
	}
	return n
}

// Result is the output of one pipeline evaluation.
type Result struct {
	Display []news.Item // the bounded slice to render
	Total   int         // size of the filtered set before windowing
	HasMore bool
}

// Options configures a Pipeline.
type Options struct {
	Debounce time.Duration // 0 means DefaultDebounce
	PageSize int           // 0 means DefaultPageSize
	OnCommit func()        // fired when a debounced query commits; UI scrolls to top
}

// Pipeline holds filter state and evaluates the stage chain on demand.
// Safe for concurrent use.
type Pipeline struct {
	table    news.CategoryTable
	debounce time.Duration
	pageSize int
	onCommit func()

	mu          sync.Mutex
	input       string
	query       string
	category    string
	sortMode    SortMode
	visible     int
	suggestions bool
	timer       *time.Timer
	closed      bool
}

// NewPipeline creates a Pipeline over the given category table.
func NewPipeline(table news.CategoryTable, opts Options) *Pipeline {
	debounce := opts.Debounce
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	return &Pipeline{
		table:    table,
		debounce: debounce,
		pageSize: pageSize,
		onCommit: opts.OnCommit,
		category: news.CategoryAll,
		visible:  pageSize,
	}
}

// Apply runs the stage chain against the given collection using the
// current filter state.
func (p *Pipeline) Apply(items []news.Item) Result {
	p.mu.Lock()
	query := p.query
	category := p.category
	mode := p.sortMode
	visible := p.visible
	p.mu.Unlock()

	filtered := Search(FilterCategory(SortByTimestamp(items, mode), p.table, category), query)

	display := filtered
	if len(display) > visible {
		display = display[:visible]
	}
	return Result{
		Display: display,
		Total:   len(filtered),
		HasMore: len(filtered) > visible,
	}
}

// Count returns the chip annotation for a normalized category key.
func (p *Pipeline) Count(items []news.Item, key string) int {
	return CategoryCount(items, p.table, key)
}

// SetInput records a keystroke. The committed query updates only after the
// debounce window passes with no further keystrokes.
func (p *Pipeline) SetInput(val string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.input = val
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.closed {
		return
	}
	p.timer = time.AfterFunc(p.debounce, p.commit)
}

// commit promotes the latest input to the committed query and resets the
// pagination window.
func (p *Pipeline) commit() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.query = strings.TrimSpace(p.input)
	p.visible = p.pageSize
	cb := p.onCommit
	p.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// ClearSearch drops both the raw input and the committed query.
func (p *Pipeline) ClearSearch() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.input = ""
	p.query = ""
	p.visible = p.pageSize
	if p.timer != nil {
		p.timer.Stop()
	}
}

// SetCategory switches the active category and resets the window.
func (p *Pipeline) SetCategory(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.category = key
	p.visible = p.pageSize
}

// ToggleSortMode flips between publish-time and fetch-time ordering.
func (p *Pipeline) ToggleSortMode() SortMode {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sortMode == SortPublish {
		p.sortMode = SortFetch
	} else {
		p.sortMode = SortPublish
	}
	return p.sortMode
}

// LoadMore grows the pagination window by one page.
func (p *Pipeline) LoadMore() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible += p.pageSize
}

// ResetWindow shrinks the pagination window back to one page.
func (p *Pipeline) ResetWindow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = p.pageSize
}

// Close stops the debounce timer. Further SetInput calls will not commit.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
	}
}

// Input returns the raw, un-debounced search input.
func (p *Pipeline) Input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input
}

// Query returns the committed search query.
func (p *Pipeline) Query() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query
}

// Category returns the active category key.
func (p *Pipeline) Category() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.category
}

// SortMode returns the active sort mode.
func (p *Pipeline) SortMode() SortMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sortMode
}

// VisibleCount returns the current pagination window size.
func (p *Pipeline) VisibleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// SetShowSuggestions toggles the suggestion dropdown flag.
func (p *Pipeline) SetShowSuggestions(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suggestions = v
}

// ShowSuggestions reports whether the suggestion dropdown is visible.
func (p *Pipeline) ShowSuggestions() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suggestions
}

// sortStable orders items descending by key, preserving input order for
// equal keys.
func sortStable(items []news.Item, key func(news.Item) int64) {
	sort.SliceStable(items, func(i, j int) bool {
		return key(items[i]) > key(items[j])
	})
}
