package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"swx-monitor/internal/alerting"
	"swx-monitor/internal/health"
)

// Status probes the critical endpoints live and prints the composite
// report. Tracker history belongs to the running service process, so a
// standalone invocation reports spot-check results plus whatever the
// archive retains.
func (a *App) Status(ctx context.Context, opts StatusOptions) error {
	tracker := health.NewTracker(health.Options{HistoryLimit: a.Config.Health.HistoryLimit}, a.Logger)
	engine := alerting.NewEngine(nil, a.Logger)
	aggregator := a.newAggregator(tracker, engine)

	report := aggregator.Report(ctx)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Status:\t%s\n", report.Status)
	fmt.Fprintf(writer, "Generated:\t%s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Availability:\t%.1f%%\n", report.AvailabilityPct)
	writer.Flush()

	fmt.Fprintln(os.Stdout)
	writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Endpoint\tHealthy\tResponse ms\tError")
	for _, check := range report.SpotChecks {
		fmt.Fprintf(writer, "%s\t%t\t%.0f\t%s\n",
			check.Endpoint,
			check.Healthy,
			check.ResponseTimeMs,
			sanitizeInline(check.Error),
		)
	}
	writer.Flush()

	for _, rec := range report.Recommendations {
		fmt.Fprintf(os.Stdout, "- %s\n", rec)
	}

	if fc := report.Forecast; fc != nil {
		fmt.Fprintln(os.Stdout)
		writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(writer, "Conditions:\t%s\n", fc.Conditions)
		fmt.Fprintf(writer, "Storm probability:\t%.0f%%\n", fc.StormProbability*100)
		fmt.Fprintf(writer, "Expected Kp:\t%d\n", fc.ExpectedKp)
		if fc.XrayClass != "" {
			fmt.Fprintf(writer, "X-ray class:\t%s\n", fc.XrayClass)
		}
		if fc.DisturbanceLevel != "" {
			fmt.Fprintf(writer, "Geomagnetic field:\t%s\n", fc.DisturbanceLevel)
		}
		writer.Flush()

		writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Date\tOutlook\tKp")
		for _, pred := range fc.Predictions {
			fmt.Fprintf(writer, "%s\t%s\t%d\n", pred.Date, pred.Conditions, pred.ExpectedKp)
		}
		writer.Flush()
	}

	if opts.RecentAlerts <= 0 {
		return nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	if closeStore != nil {
		defer closeStore()
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.RecentAlerts)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		return nil
	}

	fmt.Fprintln(os.Stdout)
	writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Triggered (UTC)\tSeverity\tCategory\tMessage")
	for _, alert := range alerts {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			alert.TriggeredAt.UTC().Format(time.RFC3339),
			alert.Severity,
			alert.Category,
			sanitizeInline(alert.Message),
		)
	}
	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
