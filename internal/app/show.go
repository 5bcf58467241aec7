package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent archived fetch outcomes.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show fetch outcomes")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentMetrics(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no fetch outcomes found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tEndpoint\tOK\tResponse ms\tQuality\tCompleteness\tFallback\tErrors")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%t\t%.0f\t%.1f\t%.2f\t%t\t%s\n",
			rec.ObservedAt.UTC().Format(time.RFC3339),
			rec.Endpoint,
			rec.Success,
			rec.ResponseTimeMs,
			rec.DataQuality,
			rec.Completeness,
			rec.IsFallback,
			sanitizeInline(strings.Join(rec.ValidationErrors, "; ")),
		)
	}

	writer.Flush()
	return nil
}
