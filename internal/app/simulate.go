package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"swx-monitor/internal/alerting"
)

// SimulateAlert evaluates the criteria table against caller-supplied
// parameter values and dispatches any resulting alerts.
func (a *App) SimulateAlert(ctx context.Context, values map[string]float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}
	if len(values) == 0 {
		return errors.New("at least one parameter value is required")
	}

	notifier := a.newNotifier()
	engine := alerting.NewEngine(nil, a.Logger)

	triggered := engine.Evaluate(time.Now().UTC(), values)
	if len(triggered) == 0 {
		fmt.Fprintln(os.Stdout, "no criteria triggered")
		return nil
	}

	for _, alert := range triggered {
		fmt.Fprintf(os.Stdout, "[%s] %s: %s\n", alert.Severity, alert.Category, alert.Message)
		for _, rec := range alert.Recommendations {
			fmt.Fprintf(os.Stdout, "  - %s\n", rec)
		}
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, alert); err != nil {
			return err
		}
	}

	if notifier == nil {
		a.Logger.Warn().Msg("no notification channel configured; printed only")
	}
	return nil
}
