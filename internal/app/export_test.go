package app

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"swx-monitor/internal/storage"
)

func TestDownsampleMetricsKeepsEnds(t *testing.T) {
	rows := make([]storage.MetricRow, 10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = storage.MetricRow{Endpoint: "ep", ObservedAt: base.Add(time.Duration(i) * time.Minute)}
	}

	out := downsampleMetrics(rows, 4)
	if len(out) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(out))
	}
	if !out[0].ObservedAt.Equal(rows[0].ObservedAt) || !out[3].ObservedAt.Equal(rows[9].ObservedAt) {
		t.Fatal("downsampling must keep the first and last points")
	}
}

func TestDownsampleMetricsNoOpUnderLimit(t *testing.T) {
	rows := []storage.MetricRow{{Endpoint: "a"}, {Endpoint: "b"}}
	if got := downsampleMetrics(rows, 10); len(got) != 2 {
		t.Fatalf("short input must pass through, got %d rows", len(got))
	}
}

func TestWriteMetricsCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.csv")

	rows := []storage.MetricRow{{
		Endpoint:         "https://example.org/feed",
		ObservedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ResponseTimeMs:   120,
		Success:          true,
		DataQuality:      95.5,
		Completeness:     1,
		ValidationErrors: []string{"a", "b"},
	}}

	if err := writeMetricsCSV(path, rows); err != nil {
		t.Fatalf("write should succeed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("output file should exist: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("output should be valid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus one row, got %d records", len(records))
	}
	if records[1][1] != "https://example.org/feed" {
		t.Fatalf("unexpected endpoint column: %v", records[1])
	}
	if records[1][6] != "a; b" {
		t.Fatalf("validation errors should be joined: %v", records[1])
	}
}
