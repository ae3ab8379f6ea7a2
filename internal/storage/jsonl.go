package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// JSONLStore appends one JSON object per page to a file
type JSONLStore struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// NewJSONLStore opens path for appending, creating parent directories
func NewJSONLStore(path string) (*JSONLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}

	return &JSONLStore{path: path, file: file}, nil
}

// Save implements Store
func (s *JSONLStore) Save(_ context.Context, record types.PageRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return &SaveError{URL: record.URL, Backend: "jsonl", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return &SaveError{URL: record.URL, Backend: "jsonl", Err: os.ErrClosed}
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return &SaveError{URL: record.URL, Backend: "jsonl", Err: err}
	}
	return nil
}

// Load reads back everything written so far
func (s *JSONLStore) Load(ctx context.Context) ([]types.PageRecord, error) {
	return JSONLFile(s.path).Load(ctx)
}

// Close closes the file
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// JSONLFile is a read-only view of a JSON lines file
type JSONLFile string

// Load parses every well-formed line. Malformed lines are skipped;
// a missing file yields no records.
func (f JSONLFile) Load(ctx context.Context) ([]types.PageRecord, error) {
	file, err := os.Open(string(f))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []types.PageRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read JSONL file: %w", err)
	}
	defer file.Close()

	records := make([]types.PageRecord, 0)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record types.PageRecord
		if err := json.Unmarshal(line, &record); err == nil {
			records = append(records, record)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan JSONL file: %w", err)
	}

	return records, nil
}

// Close implements Loader
func (f JSONLFile) Close() error {
	return nil
}
