package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"swx-monitor/internal/alerting"
	"swx-monitor/internal/health"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newAggregator(endpoints []string) (*Aggregator, *health.Tracker, *alerting.Engine) {
	tracker := health.NewTracker(health.Options{}, testLogger())
	engine := alerting.NewEngine(nil, testLogger())
	agg := New(Options{
		CriticalEndpoints: endpoints,
		SpotCheckTimeout:  2 * time.Second,
		SummaryWindow:     time.Hour,
	}, tracker, engine, testLogger())
	return agg, tracker, engine
}

func TestReportSpotChecksAndAvailability(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	agg, _, _ := newAggregator([]string{up.URL, down.URL})
	report := agg.Report(context.Background())

	if !report.Operational {
		t.Fatal("report should be operational")
	}
	if report.AvailabilityPct != 50 {
		t.Fatalf("one of two endpoints is up, expected 50%%, got %g", report.AvailabilityPct)
	}
	if len(report.SpotChecks) != 2 {
		t.Fatalf("expected 2 spot checks, got %d", len(report.SpotChecks))
	}

	byEndpoint := make(map[string]SpotCheck, 2)
	for _, check := range report.SpotChecks {
		byEndpoint[check.Endpoint] = check
	}
	if !byEndpoint[up.URL].Healthy {
		t.Fatal("2xx endpoint should be healthy")
	}
	if byEndpoint[down.URL].Healthy || byEndpoint[down.URL].Error == "" {
		t.Fatalf("5xx endpoint should be unhealthy with an error: %+v", byEndpoint[down.URL])
	}
}

func TestReportCarriesTrackerAndEngineState(t *testing.T) {
	agg, tracker, engine := newAggregator(nil)
	now := time.Now().UTC()

	tracker.Record(health.MetricRecord{Endpoint: "ep", Timestamp: now, Success: true, ResponseTimeMs: 200, DataQuality: 90})
	engine.Evaluate(now, map[string]float64{"kp_index": 6})

	report := agg.Report(context.Background())

	if report.Summary.TotalRequests != 1 {
		t.Fatalf("summary should cover the recorded metric, got %d", report.Summary.TotalRequests)
	}
	if report.ActiveAlertCount != 1 {
		t.Fatalf("expected 1 active alert, got %d", report.ActiveAlertCount)
	}
	if report.AlertStats.Total != 1 {
		t.Fatalf("alert stats should cover history, got %d", report.AlertStats.Total)
	}
	if len(report.Endpoints) != 1 {
		t.Fatalf("expected 1 tracked endpoint, got %d", len(report.Endpoints))
	}
	if report.AvailabilityPct != 100 {
		t.Fatalf("no critical endpoints configured means 100%% availability, got %g", report.AvailabilityPct)
	}
}

func TestReportDerivesForecastFromSnapshot(t *testing.T) {
	tracker := health.NewTracker(health.Options{}, testLogger())
	engine := alerting.NewEngine(nil, testLogger())
	agg := New(Options{
		SummaryWindow: time.Hour,
		ValuesFn: func(ctx context.Context) map[string]float64 {
			return map[string]float64{
				"solar_wind_speed": 700,
				"bz_gsm":           -12,
			}
		},
	}, tracker, engine, testLogger())

	report := agg.Report(context.Background())
	if report.Forecast == nil {
		t.Fatal("a snapshot with driving parameters should yield a forecast")
	}
	if report.Forecast.StormProbability != 0.95 {
		t.Fatalf("expected capped probability 0.95, got %g", report.Forecast.StormProbability)
	}
	if report.Forecast.Conditions != "Strong storm expected" {
		t.Fatalf("unexpected conditions: %s", report.Forecast.Conditions)
	}
}

func TestReportWithoutSnapshotHasNoForecast(t *testing.T) {
	agg, _, _ := newAggregator(nil)
	if report := agg.Report(context.Background()); report.Forecast != nil {
		t.Fatal("no snapshot source means no forecast")
	}
}

func TestResolveAlertDelegation(t *testing.T) {
	agg, tracker, _ := newAggregator(nil)

	tracker.Record(health.MetricRecord{Endpoint: "ep", Timestamp: time.Now().UTC(), Success: true, ResponseTimeMs: 6000, DataQuality: 90})
	alerts := tracker.Alerts(time.Time{})
	if len(alerts) != 1 {
		t.Fatalf("expected one tracker alert, got %d", len(alerts))
	}

	if !agg.ResolveAlert(alerts[0].ID) {
		t.Fatal("resolving a known alert should succeed")
	}
	if agg.ResolveAlert("unknown") {
		t.Fatal("resolving an unknown alert must return false")
	}
}

func TestResetClearsBothCollaborators(t *testing.T) {
	agg, tracker, engine := newAggregator(nil)
	now := time.Now().UTC()

	tracker.Record(health.MetricRecord{Endpoint: "ep", Timestamp: now, Success: true, ResponseTimeMs: 200, DataQuality: 90})
	engine.Evaluate(now, map[string]float64{"kp_index": 6})

	agg.Reset()

	if len(tracker.EndpointStatsList()) != 0 {
		t.Fatal("reset should clear tracker state")
	}
	if len(engine.History(time.Time{})) != 0 {
		t.Fatal("reset should clear engine history")
	}
}
