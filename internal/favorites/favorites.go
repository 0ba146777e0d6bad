// Package favorites persists the user's saved articles, keyed by link.
package favorites

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/caisiyang/CNJP/internal/news"
)

// List is the SQLite-backed favorites collection, newest first.
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type List struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the favorites database at the given path.
func Open(path string) (*List, error) {
	connStr := path
	if path == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS favorites (
		link TEXT PRIMARY KEY,
		item TEXT NOT NULL,
		added_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_favorites_added ON favorites(added_at DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &List{db: db}, nil
}

// Toggle adds the item if absent, removes it if present. Returns true when
// the item is a favorite after the call.
func (l *List) Toggle(item news.Item) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if item.Link == "" {
		return false, fmt.Errorf("item has no link")
	}

	res, err := l.db.Exec("DELETE FROM favorites WHERE link = ?", item.Link)
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}

	blob, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("encode favorite: %w", err)
	}
	_, err = l.db.Exec(
		"INSERT INTO favorites (link, item, added_at) VALUES (?, ?, ?)",
		item.Link, string(blob), time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("save favorite: %w", err)
	}
	return true, nil
}

// Remove deletes a favorite by link. Removing an absent link is not an
// error.
func (l *List) Remove(link string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.db.Exec("DELETE FROM favorites WHERE link = ?", link); err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

// Clear deletes every favorite.
func (l *List) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.db.Exec("DELETE FROM favorites"); err != nil {
		return fmt.Errorf("clear favorites: %w", err)
	}
	return nil
}

// IsFavorite reports whether a link is saved.
func (l *List) IsFavorite(link string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	err := l.db.QueryRow("SELECT COUNT(*) FROM favorites WHERE link = ?", link).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check favorite: %w", err)
	}
	return n > 0, nil
}

// All returns every favorite, most recently added first.
func (l *List) All() ([]news.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query("SELECT item FROM favorites ORDER BY added_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}
	defer rows.Close()

	var items []news.Item
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		var item news.Item
		if err := json.Unmarshal([]byte(blob), &item); err != nil {
			return nil, fmt.Errorf("decode favorite: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}
	return items, nil
}

// Count returns the number of favorites.
func (l *List) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	if err := l.db.QueryRow("SELECT COUNT(*) FROM favorites").Scan(&n); err != nil {
		return 0, fmt.Errorf("count favorites: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (l *List) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}
