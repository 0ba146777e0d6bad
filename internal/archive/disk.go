package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/caisiyang/CNJP/internal/news"
)

// DiskCache persists archive pages in SQLite so immutable days survive a
// restart. NOT an interface - concrete type.
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type DiskCache struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenDiskCache opens (or creates) the cache at the given path.
// Uses WAL mode for file-based databases.
func OpenDiskCache(path string) (*DiskCache, error) {
	connStr := path
	if path == ":memory:" {
		// Shared cache so every pooled connection sees the same database
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

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS archive_pages (
		date TEXT PRIMARY KEY,
		items TEXT NOT NULL,
		saved_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &DiskCache{db: db}, nil
}

// Save stores a page. Duplicates (by date) are silently ignored - archive
// days never change, so the first write is the only write.
func (c *DiskCache) Save(date string, items []news.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	blob, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode page %s: %w", date, err)
	}

	_, err = c.db.Exec(
		"INSERT OR IGNORE INTO archive_pages (date, items, saved_at) VALUES (?, ?, ?)",
		date, string(blob), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save page %s: %w", date, err)
	}
	return nil
}

// Load retrieves a page. The second return is false when the date has never
// been saved.
func (c *DiskCache) Load(date string) ([]news.Item, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var blob string
	err := c.db.QueryRow("SELECT items FROM archive_pages WHERE date = ?", date).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load page %s: %w", date, err)
	}

	var items []news.Item
	if err := json.Unmarshal([]byte(blob), &items); err != nil {
		return nil, false, fmt.Errorf("decode page %s: %w", date, err)
	}
	return items, true, nil
}

// Count returns the number of persisted pages.
func (c *DiskCache) Count() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM archive_pages").Scan(&count); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (c *DiskCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}
