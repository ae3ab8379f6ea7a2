package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pq "github.com/lib/pq"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// PostgresStore persists pages into PostgreSQL via lib/pq
type PostgresStore struct {
	db      *sql.DB
	crawlID string
}

// NewPostgresStore connects to dsn and applies the schema
func NewPostgresStore(ctx context.Context, dsn, crawlID string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}

	s := &PostgresStore{db: db, crawlID: crawlID}
	if err := s.ensureSchema(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pages (
		    id BIGSERIAL PRIMARY KEY,
		    crawl_id TEXT NOT NULL,
		    url TEXT NOT NULL,
		    title TEXT,
		    body_text TEXT,
		    status_code INT,
		    fetched_at TIMESTAMPTZ,
		    UNIQUE (crawl_id, url)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_fetched_at ON pages (fetched_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// CrawlID returns the ID rows are tagged with
func (s *PostgresStore) CrawlID() string {
	return s.crawlID
}

// Save implements Store
func (s *PostgresStore) Save(ctx context.Context, record types.PageRecord) error {
	query := `
        INSERT INTO pages (crawl_id, url, title, body_text, status_code, fetched_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (crawl_id, url) DO UPDATE SET
            title = EXCLUDED.title,
            body_text = EXCLUDED.body_text,
            status_code = EXCLUDED.status_code,
            fetched_at = EXCLUDED.fetched_at
    `
	if _, err := s.db.ExecContext(ctx, query,
		s.crawlID,
		record.URL,
		record.Title,
		record.BodyText,
		record.StatusCode,
		record.FetchedAt,
	); err != nil {
		return &SaveError{URL: record.URL, Backend: "postgres", Err: describePQError(err)}
	}
	return nil
}

// Load returns every stored page in insertion order
func (s *PostgresStore) Load(ctx context.Context) ([]types.PageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT url, title, body_text, status_code, fetched_at FROM pages ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", describePQError(err))
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Close closes the underlying DB connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// describePQError adds the SQLSTATE code to server-side errors
func describePQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w (sqlstate %s)", err, pqErr.Code)
	}
	return err
}
