package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// TextStore prints each page's title and text, one block per page
type TextStore struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextStore writes to w
func NewTextStore(w io.Writer) *TextStore {
	return &TextStore{w: w}
}

// Save implements Store
func (s *TextStore) Save(_ context.Context, record types.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintf(s.w, "\n<--- %s --->\nTitle: %s\n%s\n", record.URL, record.Title, record.BodyText)
	if err != nil {
		return &SaveError{URL: record.URL, Backend: "text", Err: err}
	}
	return nil
}

// Close implements Store. The writer is not owned by the store.
func (s *TextStore) Close() error {
	return nil
}
