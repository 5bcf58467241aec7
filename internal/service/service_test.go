package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"swx-monitor/internal/alerting"
	"swx-monitor/internal/health"
	"swx-monitor/internal/provider"
)

type stubFetcher struct {
	values map[string]float64
}

func (f stubFetcher) Name() string     { return "stub" }
func (f stubFetcher) Endpoint() string { return "https://example.org/stub" }

func (f stubFetcher) Fetch(ctx context.Context) (provider.Observation, error) {
	return provider.Observation{Values: f.values, Completeness: 1}, nil
}

func TestQualityScore(t *testing.T) {
	cases := []struct {
		completeness float64
		errors       int
		want         float64
	}{
		{1.0, 0, 100},
		{0.9, 0, 90},
		{0.9, 2, 70},
		{0.5, 10, 0},
		{0.1, 5, 0},
	}
	for _, tc := range cases {
		if got := qualityScore(tc.completeness, tc.errors); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("qualityScore(%g, %d) = %g, want %g", tc.completeness, tc.errors, got, tc.want)
		}
	}
}

func TestDeriveIndicesEstimatesDst(t *testing.T) {
	values := map[string]float64{
		"solar_wind_speed": 400,
		"bz_gsm":           -10,
	}
	deriveIndices(values)

	if math.Abs(values["dst_estimate"]-(-200)) > 1e-9 {
		t.Fatalf("expected dst_estimate -200, got %g", values["dst_estimate"])
	}
	if math.Abs(values["dst_index"]-(-200)) > 1e-9 {
		t.Fatalf("without an observed Dst the estimate stands in, got %g", values["dst_index"])
	}
}

func TestDeriveIndicesObservedDstWins(t *testing.T) {
	values := map[string]float64{
		"solar_wind_speed": 400,
		"bz_gsm":           -10,
		"dst_index":        -55,
	}
	deriveIndices(values)

	if values["dst_index"] != -55 {
		t.Fatalf("an observed dst_index must not be overwritten, got %g", values["dst_index"])
	}
	if math.Abs(values["dst_estimate"]-(-200)) > 1e-9 {
		t.Fatalf("the estimate is still reported alongside, got %g", values["dst_estimate"])
	}
}

func TestDeriveIndicesSkipsWithoutInputs(t *testing.T) {
	values := map[string]float64{"solar_wind_speed": 400}
	deriveIndices(values)
	if _, ok := values["dst_estimate"]; ok {
		t.Fatal("no Bz means no estimate")
	}
}

func TestCyclePublishesForecast(t *testing.T) {
	logger := zerolog.Nop()
	tracker := health.NewTracker(health.Options{}, logger)
	engine := alerting.NewEngine(nil, logger)
	fetchers := []provider.Fetcher{stubFetcher{values: map[string]float64{
		"solar_wind_speed": 700,
		"bz_gsm":           -12,
	}}}

	svc := New(Options{}, nil, nil, fetchers, tracker, engine, nil, nil, nil, nil, logger)

	if svc.LatestForecast() != nil {
		t.Fatal("no forecast before the first cycle")
	}
	if err := svc.Cycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("cycle should succeed: %v", err)
	}

	fc := svc.LatestForecast()
	if fc == nil {
		t.Fatal("a cycle with driving parameters should publish a forecast")
	}
	if fc.StormProbability != 0.95 || fc.ExpectedKp != 7 {
		t.Fatalf("unexpected outlook: %+v", fc)
	}
}

func TestHealthLevel(t *testing.T) {
	if healthLevel(health.EndpointHealthy) != 0 {
		t.Fatal("healthy should map to gauge level 0")
	}
	if healthLevel(health.EndpointDegraded) != 1 {
		t.Fatal("degraded should map to gauge level 1")
	}
	if healthLevel(health.EndpointUnhealthy) != 2 {
		t.Fatal("unhealthy should map to gauge level 2")
	}
}
