package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	crawl_id TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT,
	body_text TEXT,
	status_code INTEGER,
	fetched_at TIMESTAMP,
	UNIQUE (crawl_id, url)
);

CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
CREATE INDEX IF NOT EXISTS idx_pages_fetched_at ON pages(fetched_at);
`

// SQLiteStore provides SQLite-based storage for queryable data
type SQLiteStore struct {
	db      *sql.DB
	crawlID string
}

// NewSQLiteStore opens or creates the database at dbPath.
// An empty crawlID opens the store for reading only.
func NewSQLiteStore(ctx context.Context, dbPath, crawlID string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time avoids SQLITE_BUSY from concurrent jobs
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, crawlID: crawlID}, nil
}

// CrawlID returns the ID rows are tagged with
func (s *SQLiteStore) CrawlID() string {
	return s.crawlID
}

// Save implements Store
func (s *SQLiteStore) Save(ctx context.Context, record types.PageRecord) error {
	query := `
		INSERT OR REPLACE INTO pages
		(crawl_id, url, title, body_text, status_code, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	if _, err := s.db.ExecContext(ctx, query,
		s.crawlID,
		record.URL,
		record.Title,
		record.BodyText,
		record.StatusCode,
		record.FetchedAt.UTC(),
	); err != nil {
		return &SaveError{URL: record.URL, Backend: "sqlite", Err: err}
	}
	return nil
}

// Load returns every stored page in insertion order
func (s *SQLiteStore) Load(ctx context.Context) ([]types.PageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT url, title, body_text, status_code, fetched_at FROM pages ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]types.PageRecord, error) {
	records := make([]types.PageRecord, 0)
	for rows.Next() {
		var (
			record types.PageRecord
			title  sql.NullString
			body   sql.NullString
			status sql.NullInt64
			at     sql.NullTime
		)
		if err := rows.Scan(&record.URL, &title, &body, &status, &at); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		record.Title = title.String
		record.BodyText = body.String
		record.StatusCode = int(status.Int64)
		record.FetchedAt = at.Time
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return records, nil
}
