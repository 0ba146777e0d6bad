// Package news defines the item model shared by the sync engine and the
// view pipeline.
//
// Item identity is the link. Two items with the same link are the same
// article everywhere in the application - merge and dedup never compare
// any other field.
package news

import "time"

// Item is a single published article as delivered by the feed.
type Item struct {
	Link      string `json:"link"`
	Title     string `json:"title,omitempty"`
	TitleTC   string `json:"title_tc,omitempty"`
	TitleJA   string `json:"title_ja,omitempty"`
	Origin    string `json:"origin,omitempty"`
	Category  string `json:"category,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`  // publish time, seconds since epoch
	FetchedAt int64  `json:"fetched_at,omitempty"` // pipeline ingest time, seconds since epoch
}

// DateKey returns the local calendar date the item was published on,
// formatted as "2006-01-02". Items without a timestamp have no date bucket
// and return "".
func (it Item) DateKey() string {
	if it.Timestamp == 0 {
		return ""
	}
	return time.Unix(it.Timestamp, 0).Format("2006-01-02")
}

// SortKey returns the timestamp used for fetch-order sorting. Items that
// were never stamped by the ingest pipeline fall back to the publish time.
func (it Item) SortKey() int64 {
	if it.FetchedAt != 0 {
		return it.FetchedAt
	}
	return it.Timestamp
}

// GroupByDate buckets items by their publish date. Items without a
// timestamp are skipped - they have no day to belong to.
func GroupByDate(items []Item) map[string][]Item {
	groups := make(map[string][]Item)
	for _, it := range items {
		key := it.DateKey()
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], it)
	}
	return groups
}
