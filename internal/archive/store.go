// Package archive caches per-day news pages keyed by date string.
//
// A date can be held in two states: a complete page (the fully fetched
// archive document for that day) or a partial bucket (recent items grouped
// out of the raw feed before the day's page was ever fetched). The cache is
// additive-only in both states: items are never replaced, only extended
// with links the date has not seen. Historical days are immutable upstream,
// so there is nothing to invalidate.
package archive

import (
	"sync"

	"github.com/caisiyang/CNJP/internal/logging"
	"github.com/caisiyang/CNJP/internal/news"
)

// page is one cached day. complete marks a fully fetched archive document;
// a partial bucket only holds whatever the raw feed contributed so far.
type page struct {
	items    []news.Item
	complete bool
}

// Store is the date-keyed page cache. Safe for concurrent use.
//
// An optional DiskCache persists complete pages across sessions; partial
// buckets never reach disk. Disk failures are logged and otherwise ignored -
// the memory cache is the behavior contract, the disk layer is an
// optimization.
type Store struct {
	mu    sync.RWMutex
	pages map[string]page
	disk  *DiskCache
}

// NewStore creates a Store. disk may be nil to run memory-only.
func NewStore(disk *DiskCache) *Store {
	return &Store{
		pages: make(map[string]page),
		disk:  disk,
	}
}

// Get returns the cached items for a date, complete or partial, checking
// memory first and then the disk layer. Partial buckets are good enough for
// day views; callers that need the whole day use GetComplete.
func (s *Store) Get(date string) ([]news.Item, bool) {
	s.mu.RLock()
	p, ok := s.pages[date]
	s.mu.RUnlock()
	if ok {
		return copyItems(p.items), true
	}
	return s.loadFromDisk(date)
}

// GetComplete returns the page for a date only when the fully fetched
// archive document is cached. A partial bucket is not a hit - the day's
// archived-only items may still be missing.
func (s *Store) GetComplete(date string) ([]news.Item, bool) {
	s.mu.RLock()
	p, ok := s.pages[date]
	s.mu.RUnlock()
	if ok && p.complete {
		return copyItems(p.items), true
	}
	// A partial bucket in memory does not rule out a complete page saved
	// by an earlier session.
	return s.loadFromDisk(date)
}

// Put stores a fully fetched page for a date. A partial bucket is upgraded:
// the fetched page takes precedence and the bucket's unseen links are folded
// in. If the date is already complete the call is a no-op - at worst two
// fetchers raced on the same immutable day and carried equal data.
func (s *Store) Put(date string, items []news.Item) {
	merged, upgraded := s.install(date, items)
	if !upgraded {
		return
	}
	if s.disk != nil {
		if err := s.disk.Save(date, merged); err != nil {
			logging.Warn("archive disk write failed", "date", date, "error", err)
		}
	}
}

// Merge extends a date's items with links it has not seen yet, leaving its
// completeness alone. Used by the per-date grouping of the raw feed: recent
// items flow into day views without standing in for the day's archive page.
func (s *Store) Merge(date string, items []news.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pages[date]
	seen := make(map[string]bool, len(p.items))
	for _, it := range p.items {
		seen[it.Link] = true
	}
	for _, it := range items {
		if it.Link == "" || seen[it.Link] {
			continue
		}
		seen[it.Link] = true
		p.items = append(p.items, it)
	}
	s.pages[date] = p
}

// Dates returns the date keys currently populated in memory.
func (s *Store) Dates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dates := make([]string, 0, len(s.pages))
	for d := range s.pages {
		dates = append(dates, d)
	}
	return dates
}

// Len returns the number of populated dates.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// loadFromDisk checks the disk layer for a complete page and promotes a hit
// into memory.
func (s *Store) loadFromDisk(date string) ([]news.Item, bool) {
	if s.disk == nil {
		return nil, false
	}
	items, ok, err := s.disk.Load(date)
	if err != nil {
		logging.Warn("archive disk read failed", "date", date, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	merged, _ := s.install(date, items)
	return merged, true
}

// install records a fully fetched page for a date, folding in the unseen
// links of any partial bucket it replaces. Returns the resulting page and
// whether anything changed; an already complete date wins over the caller.
func (s *Store) install(date string, items []news.Item) ([]news.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.pages[date]
	if ok && existing.complete {
		return copyItems(existing.items), false
	}

	merged := copyItems(items)
	seen := make(map[string]bool, len(merged))
	for _, it := range merged {
		seen[it.Link] = true
	}
	for _, it := range existing.items {
		if it.Link == "" || seen[it.Link] {
			continue
		}
		seen[it.Link] = true
		merged = append(merged, it)
	}
	s.pages[date] = page{items: merged, complete: true}
	return copyItems(merged), true
}

func copyItems(items []news.Item) []news.Item {
	out := make([]news.Item, len(items))
	copy(out, items)
	return out
}
