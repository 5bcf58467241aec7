package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"swx-monitor/internal/storage"
)

// Export writes archived fetch outcomes as CSV.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" {
		return errors.New("--csv must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListMetricsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no fetch outcomes found for export window")
		return nil
	}

	downsampled := downsampleMetrics(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting fetch outcomes")

	return writeMetricsCSV(opts.CSVPath, downsampled)
}

func downsampleMetrics(records []storage.MetricRow, max int) []storage.MetricRow {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.MetricRow, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeMetricsCSV(path string, records []storage.MetricRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"observed_at", "endpoint", "success", "response_time_ms", "data_quality", "completeness", "validation_errors", "is_cache", "is_fallback"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		record := []string{
			rec.ObservedAt.UTC().Format(time.RFC3339),
			rec.Endpoint,
			strconv.FormatBool(rec.Success),
			strconv.FormatFloat(rec.ResponseTimeMs, 'f', 0, 64),
			strconv.FormatFloat(rec.DataQuality, 'f', 1, 64),
			strconv.FormatFloat(rec.Completeness, 'f', 4, 64),
			strings.Join(rec.ValidationErrors, "; "),
			strconv.FormatBool(rec.IsCache),
			strconv.FormatBool(rec.IsFallback),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
