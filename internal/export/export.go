// Package export writes stored page records out as JSON, CSV, or an XML sitemap.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// Format selects the output encoding
type Format string

const (
	FormatSitemap Format = "sitemap"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
)

// ParseFormat validates a format name
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatSitemap, FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want sitemap, csv or json)", name)
	}
}

// Loader supplies the records to export
type Loader interface {
	Load(ctx context.Context) ([]types.PageRecord, error)
}

// Export loads every record and writes it to w in format.
// It returns the number of entries written.
func Export(ctx context.Context, loader Loader, format Format, w io.Writer, sitemap SitemapConfig) (int, error) {
	records, err := loader.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load records: %w", err)
	}

	switch format {
	case FormatJSON:
		return len(records), WriteJSON(w, records)
	case FormatCSV:
		return len(records), WriteCSV(w, records)
	case FormatSitemap:
		return WriteSitemap(w, records, sitemap)
	default:
		return 0, fmt.Errorf("unknown export format %q", format)
	}
}

// WriteJSON writes records as an indented JSON array
func WriteJSON(w io.Writer, records []types.PageRecord) error {
	if records == nil {
		records = []types.PageRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}

// WriteCSV writes one row per record after a header row
func WriteCSV(w io.Writer, records []types.PageRecord) error {
	writer := csv.NewWriter(w)

	headers := []string{"url", "title", "status_code", "fetched_at", "body_text"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, record := range records {
		row := []string{
			record.URL,
			record.Title,
			strconv.Itoa(record.StatusCode),
			record.FetchedAt.UTC().Format(time.RFC3339),
			record.BodyText,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}
