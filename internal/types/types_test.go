package types

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPageRecordJSONFieldNames(t *testing.T) {
	record := PageRecord{
		URL:        "https://example.com/about",
		Title:      "About",
		BodyText:   "hello",
		StatusCode: 200,
		FetchedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	for _, key := range []string{`"url"`, `"title"`, `"body_text"`, `"status_code"`, `"fetched_at"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("Expected %s in %s", key, data)
		}
	}
}

func TestStopBasisValues(t *testing.T) {
	if StopByTime != "time" {
		t.Errorf("Expected StopByTime=time, got %s", StopByTime)
	}
	if StopByCount != "count" {
		t.Errorf("Expected StopByCount=count, got %s", StopByCount)
	}
}

func TestCrawlStatsCounters(t *testing.T) {
	var fetched, errs atomic.Int64
	fetched.Add(3)
	errs.Add(1)

	stats := CrawlStats{
		SeedURL:      "https://example.com/",
		VisitedCount: 4,
		Fetched:      fetched.Load(),
		FetchErrors:  errs.Load(),
		Saved:        fetched.Load(),
		SaveErrors:   0,
		BytesFetched: 2048,
		StopReason:   "frontier exhausted",
	}

	var total int64 = stats.Fetched + stats.FetchErrors + stats.Saved + stats.SaveErrors
	if total != 7 {
		t.Errorf("Expected counters to sum to 7, got %d", total)
	}
	if stats.VisitedCount != 4 {
		t.Errorf("Expected VisitedCount=4, got %d", stats.VisitedCount)
	}
}
