package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"swx-monitor/internal/alerting"
	"swx-monitor/internal/health"
	"swx-monitor/internal/provider"
)

// SpotCheck is the outcome of one live probe of a critical endpoint.
type SpotCheck struct {
	Endpoint       string
	Healthy        bool
	ResponseTimeMs float64
	Error          string
}

// Report is the composite system view served to external callers.
type Report struct {
	Operational      bool
	Status           health.SystemStatus
	GeneratedAt      time.Time
	AvailabilityPct  float64
	SpotChecks       []SpotCheck
	Summary          health.Summary
	Endpoints        []health.EndpointStats
	ActiveAlertCount int
	ActiveAlerts     []alerting.ActiveAlert
	AlertStats       alerting.Stats
	Recommendations  []string
	Forecast         *provider.Forecast
}

// Options tune the aggregator.
type Options struct {
	CriticalEndpoints []string
	SpotCheckTimeout  time.Duration
	SummaryWindow     time.Duration
	UserAgent         string

	// ValuesFn, when set, supplies a parameter snapshot the report derives
	// its storm outlook from.
	ValuesFn func(ctx context.Context) map[string]float64
}

// Aggregator combines the health tracker, live spot-checks, and the
// alert engine into one composite payload, and fronts the two
// administrative mutations.
type Aggregator struct {
	opts    Options
	tracker *health.Tracker
	engine  *alerting.Engine
	client  *http.Client
	logger  zerolog.Logger
}

// New constructs a system health aggregator.
func New(opts Options, tracker *health.Tracker, engine *alerting.Engine, logger zerolog.Logger) *Aggregator {
	if opts.SpotCheckTimeout <= 0 {
		opts.SpotCheckTimeout = 5 * time.Second
	}
	if opts.SummaryWindow <= 0 {
		opts.SummaryWindow = time.Hour
	}
	return &Aggregator{
		opts:    opts,
		tracker: tracker,
		engine:  engine,
		client:  &http.Client{},
		logger:  logger.With().Str("component", "aggregator").Logger(),
	}
}

// Report assembles the composite payload. A panic anywhere below the
// boundary degrades to operational=false instead of propagating, so the
// monitoring surface stays up even when its inputs are broken.
func (a *Aggregator) Report(ctx context.Context) (report Report) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Msg("report assembly panicked")
			report = Report{Operational: false, Status: health.SystemCritical, GeneratedAt: time.Now().UTC()}
		}
	}()

	now := time.Now().UTC()
	system := a.tracker.SystemHealth()
	checks := a.spotCheck(ctx)

	healthyChecks := 0
	for _, check := range checks {
		if check.Healthy {
			healthyChecks++
		}
	}
	availability := 100.0
	if len(checks) > 0 {
		availability = 100 * float64(healthyChecks) / float64(len(checks))
	}

	active := a.engine.Active(now)

	var forecast *provider.Forecast
	if a.opts.ValuesFn != nil {
		if fc, ok := provider.BuildForecast(now, a.opts.ValuesFn(ctx), 0); ok {
			forecast = &fc
		}
	}

	return Report{
		Operational:      true,
		Status:           system.Status,
		GeneratedAt:      now,
		AvailabilityPct:  availability,
		SpotChecks:       checks,
		Summary:          a.tracker.Summary(now.Add(-a.opts.SummaryWindow), now),
		Endpoints:        system.Endpoints,
		ActiveAlertCount: len(active),
		ActiveAlerts:     active,
		AlertStats:       a.engine.StatsAt(now),
		Recommendations:  system.Recommendations,
		Forecast:         forecast,
	}
}

// spotCheck probes all critical endpoints in parallel; each probe is
// independently timed out and a failure never blocks the others.
func (a *Aggregator) spotCheck(ctx context.Context) []SpotCheck {
	checks := make([]SpotCheck, len(a.opts.CriticalEndpoints))

	var wg sync.WaitGroup
	for i, endpoint := range a.opts.CriticalEndpoints {
		wg.Add(1)
		go func(i int, endpoint string) {
			defer wg.Done()
			checks[i] = a.probe(ctx, endpoint)
		}(i, endpoint)
	}
	wg.Wait()

	return checks
}

func (a *Aggregator) probe(ctx context.Context, endpoint string) SpotCheck {
	ctx, cancel := context.WithTimeout(ctx, a.opts.SpotCheckTimeout)
	defer cancel()

	check := SpotCheck{Endpoint: endpoint}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		check.Error = err.Error()
		return check
	}
	if a.opts.UserAgent != "" {
		req.Header.Set("User-Agent", a.opts.UserAgent)
	}

	resp, err := a.client.Do(req)
	check.ResponseTimeMs = float64(time.Since(start).Milliseconds())
	if err != nil {
		check.Error = err.Error()
		return check
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		check.Healthy = true
	} else {
		check.Error = resp.Status
	}
	return check
}

// ResolveAlert delegates to the health tracker.
func (a *Aggregator) ResolveAlert(id string) bool {
	return a.tracker.ResolveAlert(id)
}

// Reset clears tracker and engine state unconditionally.
func (a *Aggregator) Reset() {
	a.tracker.Reset()
	a.engine.Reset()
	a.logger.Info().Msg("monitoring state reset")
}
