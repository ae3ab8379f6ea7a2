// Package storage persists page records. The crawler sees only Store;
// the concrete backend is chosen from a connection string by Open.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// Store receives page records. Implementations are safe for concurrent use.
type Store interface {
	Save(ctx context.Context, record types.PageRecord) error
	Close() error
}

// Loader reads back records written by a Store
type Loader interface {
	Load(ctx context.Context) ([]types.PageRecord, error)
	Close() error
}

// ErrUnsupported is returned for a connection string no backend recognises
var ErrUnsupported = errors.New("unsupported store")

// SaveError wraps a backend failure for one record
type SaveError struct {
	URL     string
	Backend string
	Err     error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("%s: save %s: %v", e.Backend, e.URL, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Discard drops every record. It is the store used when none is configured.
type Discard struct{}

// Save implements Store
func (Discard) Save(context.Context, types.PageRecord) error { return nil }

// Close implements Store
func (Discard) Close() error { return nil }

// Kind identifies a storage backend
type Kind string

const (
	KindNone     Kind = "none"
	KindText     Kind = "text"
	KindJSONL    Kind = "jsonl"
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
)

// Parse classifies a connection string and returns the backend target:
// a file path, a DSN, or empty for stdout and discard.
//
//	""                          discard
//	"-", "stdout"               text echo to stdout
//	"jsonl://path", "x.jsonl"   JSON lines file
//	"sqlite://path", "x.db"     SQLite database
//	"postgres://..."            PostgreSQL
func Parse(conn string) (Kind, string, error) {
	conn = strings.TrimSpace(conn)
	lower := strings.ToLower(conn)

	switch {
	case conn == "":
		return KindNone, "", nil
	case conn == "-" || lower == "stdout":
		return KindText, "", nil
	case strings.HasPrefix(lower, "jsonl://"):
		return KindJSONL, conn[len("jsonl://"):], nil
	case strings.HasPrefix(lower, "sqlite://"):
		return KindSQLite, conn[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return KindPostgres, conn, nil
	}

	switch strings.ToLower(filepath.Ext(conn)) {
	case ".jsonl", ".ndjson":
		return KindJSONL, conn, nil
	case ".db", ".sqlite", ".sqlite3":
		return KindSQLite, conn, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupported, conn)
}

// Open creates the Store for conn. Text output goes to stdout.
// SQL backends tag their rows with a fresh crawl ID.
func Open(ctx context.Context, conn string, stdout io.Writer) (Store, error) {
	kind, target, err := Parse(conn)
	if err != nil {
		return nil, err
	}
	if kind != KindText && kind != KindNone && target == "" {
		return nil, fmt.Errorf("%w: %s store needs a path", ErrUnsupported, kind)
	}

	var store Store
	switch kind {
	case KindNone:
		return Discard{}, nil
	case KindText:
		return NewTextStore(stdout), nil
	case KindJSONL:
		store, err = NewJSONLStore(target)
	case KindSQLite:
		store, err = NewSQLiteStore(ctx, target, uuid.NewString())
	case KindPostgres:
		store, err = NewPostgresStore(ctx, target, uuid.NewString())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, conn)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// OpenLoader opens conn for reading. Only persistent backends can be loaded.
func OpenLoader(ctx context.Context, conn string) (Loader, error) {
	kind, target, err := Parse(conn)
	if err != nil {
		return nil, err
	}

	var loader Loader
	switch kind {
	case KindJSONL:
		if _, err := os.Stat(target); err != nil {
			return nil, fmt.Errorf("open %s: %w", target, err)
		}
		return JSONLFile(target), nil
	case KindSQLite:
		if _, err := os.Stat(target); err != nil {
			return nil, fmt.Errorf("open %s: %w", target, err)
		}
		loader, err = NewSQLiteStore(ctx, target, "")
	case KindPostgres:
		loader, err = NewPostgresStore(ctx, target, "")
	default:
		return nil, fmt.Errorf("%w: cannot read records back from %s", ErrUnsupported, kind)
	}
	if err != nil {
		return nil, err
	}
	return loader, nil
}
