package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"swx-monitor/internal/alerting"
	"swx-monitor/internal/hapi"
	"swx-monitor/internal/health"
	"swx-monitor/internal/metrics"
	"swx-monitor/internal/provider"
	"swx-monitor/internal/scheduler"
	"swx-monitor/internal/storage"
)

// Options carry the polling wiring that is not a collaborator object.
type Options struct {
	IndicesChain  []hapi.SourceConfig
	IndicesWindow time.Duration
	Aliases       map[string]string
	LockKey       int64
	NotifyEnabled bool
}

// Service orchestrates one polling cycle: concurrent fan-out over all
// sources, health recording, threshold evaluation, archiving, and
// notification.
type Service struct {
	opts          Options
	scheduler     *scheduler.Scheduler
	hapiClient    *hapi.Client
	fetchers      []provider.Fetcher
	tracker       *health.Tracker
	engine        *alerting.Engine
	notifier      alerting.Notifier
	metricArchive storage.MetricArchive
	alertArchive  storage.AlertArchive
	locker        storage.AdvisoryLocker
	logger        zerolog.Logger

	forecastMu   sync.Mutex
	lastForecast *provider.Forecast
}

// fetchResult is one source's contribution to a cycle.
type fetchResult struct {
	values  map[string]float64
	records []health.MetricRecord
}

// New constructs the polling service.
func New(
	opts Options,
	sched *scheduler.Scheduler,
	hapiClient *hapi.Client,
	fetchers []provider.Fetcher,
	tracker *health.Tracker,
	engine *alerting.Engine,
	notifier alerting.Notifier,
	metricArchive storage.MetricArchive,
	alertArchive storage.AlertArchive,
	locker storage.AdvisoryLocker,
	logger zerolog.Logger,
) *Service {
	return &Service{
		opts:          opts,
		scheduler:     sched,
		hapiClient:    hapiClient,
		fetchers:      fetchers,
		tracker:       tracker,
		engine:        engine,
		notifier:      notifier,
		metricArchive: metricArchive,
		alertArchive:  alertArchive,
		locker:        locker,
		logger:        logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Cycle)
}

// Cycle executes one polling pass. Partial results are the norm: a
// failing source contributes a failed metric record and nothing else.
func (s *Service) Cycle(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("cycle", bucket).Msg("skip cycle; advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	results := s.fanOut(ctx, bucket)

	values := make(map[string]float64)
	for _, res := range results {
		for _, record := range res.records {
			s.ingest(ctx, record)
		}
		for name, value := range res.values {
			values[name] = value
		}
	}
	s.publishHealthGauges()

	deriveIndices(values)

	triggered := s.engine.Evaluate(time.Now().UTC(), values)
	for _, alert := range triggered {
		s.dispatch(ctx, alert)
	}

	entry := s.logger.Info().
		Time("cycle", bucket).
		Int("sources", len(results)).
		Int("parameters", len(values)).
		Int("alerts", len(triggered))

	if fc, ok := provider.BuildForecast(time.Now().UTC(), values, 0); ok {
		s.forecastMu.Lock()
		s.lastForecast = &fc
		s.forecastMu.Unlock()
		entry = entry.
			Float64("storm_probability", fc.StormProbability).
			Str("conditions", fc.Conditions)
	}

	entry.Msg("cycle complete")
	return nil
}

// LatestForecast returns the outlook derived from the most recent cycle,
// or nil before the first complete cycle.
func (s *Service) LatestForecast() *provider.Forecast {
	s.forecastMu.Lock()
	defer s.forecastMu.Unlock()
	return s.lastForecast
}

// fanOut issues all fetches concurrently and waits for every one to
// settle. No source failure cancels another.
func (s *Service) fanOut(ctx context.Context, bucket time.Time) []fetchResult {
	total := len(s.fetchers)
	if len(s.opts.IndicesChain) > 0 {
		total++
	}

	out := make(chan fetchResult, total)
	var wg sync.WaitGroup

	for _, fetcher := range s.fetchers {
		wg.Add(1)
		go func(f provider.Fetcher) {
			defer wg.Done()
			out <- s.fetchProvider(ctx, f)
		}(fetcher)
	}

	if len(s.opts.IndicesChain) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out <- s.fetchIndices(ctx, bucket)
		}()
	}

	wg.Wait()
	close(out)

	results := make([]fetchResult, 0, total)
	for res := range out {
		results = append(results, res)
	}
	return results
}

func (s *Service) fetchProvider(ctx context.Context, f provider.Fetcher) fetchResult {
	start := time.Now()
	obs, err := f.Fetch(ctx)
	elapsed := time.Since(start)

	record := health.MetricRecord{
		Endpoint:       f.Endpoint(),
		Timestamp:      time.Now().UTC(),
		ResponseTimeMs: float64(elapsed.Milliseconds()),
	}

	if err != nil {
		s.logger.Warn().Err(err).Str("source", f.Name()).Msg("provider fetch failed")
		return fetchResult{records: []health.MetricRecord{record}}
	}

	record.Success = true
	record.Completeness = obs.Completeness
	record.ValidationErrors = obs.ValidationErrors
	record.DataQuality = qualityScore(obs.Completeness, len(obs.ValidationErrors))

	return fetchResult{values: obs.Values, records: []health.MetricRecord{record}}
}

func (s *Service) fetchIndices(ctx context.Context, bucket time.Time) fetchResult {
	window := s.opts.IndicesWindow
	if window <= 0 {
		window = 24 * time.Hour
	}

	chain := make([]hapi.SourceConfig, len(s.opts.IndicesChain))
	copy(chain, s.opts.IndicesChain)
	for i := range chain {
		chain[i].TimeMin = bucket.Add(-window)
		chain[i].TimeMax = bucket
	}

	ds, attempts, err := s.hapiClient.FetchWithFallback(ctx, chain)

	var res fetchResult
	now := time.Now().UTC()
	for _, attempt := range attempts {
		record := health.MetricRecord{
			Endpoint:       attempt.Endpoint,
			Timestamp:      now,
			ResponseTimeMs: float64(attempt.Duration.Milliseconds()),
			Success:        attempt.Err == nil,
		}
		if attempt.Err == nil && ds != nil {
			record.Completeness = ds.Completeness
			record.ValidationErrors = ds.ValidationErrors
			record.DataQuality = qualityScore(ds.Completeness, len(ds.ValidationErrors))
			record.IsFallback = ds.Fallback
		}
		res.records = append(res.records, record)
	}

	if err != nil {
		s.logger.Warn().Err(err).Msg("indices chain exhausted")
		return res
	}

	res.values = make(map[string]float64)
	for name, value := range ds.LatestNumbers() {
		if alias, ok := s.opts.Aliases[name]; ok {
			name = alias
		}
		res.values[name] = value
	}
	return res
}

// ingest records one outcome everywhere it belongs: tracker, Prometheus,
// and the optional archive (best effort).
func (s *Service) ingest(ctx context.Context, record health.MetricRecord) {
	s.tracker.Record(record)
	metrics.ObserveFetch(record.Endpoint, time.Duration(record.ResponseTimeMs)*time.Millisecond, record.Success)

	if s.metricArchive == nil {
		return
	}
	row := storage.MetricRow{
		Endpoint:         record.Endpoint,
		ObservedAt:       record.Timestamp,
		ResponseTimeMs:   record.ResponseTimeMs,
		Success:          record.Success,
		DataQuality:      record.DataQuality,
		Completeness:     record.Completeness,
		ValidationErrors: record.ValidationErrors,
		IsCache:          record.IsCache,
		IsFallback:       record.IsFallback,
	}
	if err := s.metricArchive.InsertMetric(ctx, row); err != nil {
		s.logger.Error().Err(err).Str("endpoint", record.Endpoint).Msg("failed to archive metric")
	}
}

func (s *Service) dispatch(ctx context.Context, alert alerting.ActiveAlert) {
	metrics.ObserveAlert(string(alert.Severity), string(alert.Category))

	if s.alertArchive != nil {
		row := storage.AlertRow{
			AlertID:     alert.ID,
			CriteriaID:  alert.CriteriaID,
			Category:    string(alert.Category),
			Severity:    string(alert.Severity),
			Parameter:   alert.Parameter,
			Value:       alert.Value,
			Threshold:   alert.Threshold,
			Message:     alert.Message,
			TriggeredAt: alert.TriggeredAt,
			ExpiresAt:   alert.ExpiresAt,
		}
		if err := s.alertArchive.InsertAlert(ctx, row); err != nil {
			s.logger.Error().Err(err).Str("rule", alert.CriteriaID).Msg("failed to archive alert")
		}
	}

	if !s.opts.NotifyEnabled || s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.logger.Error().Err(err).Str("rule", alert.CriteriaID).Msg("failed to dispatch alert")
	}
}

func (s *Service) publishHealthGauges() {
	for _, stats := range s.tracker.EndpointStatsList() {
		metrics.SetEndpointHealth(stats.Endpoint, healthLevel(stats.Health))
	}
}

func healthLevel(h health.EndpointHealth) float64 {
	switch h {
	case health.EndpointDegraded:
		return 1
	case health.EndpointUnhealthy:
		return 2
	default:
		return 0
	}
}

// qualityScore folds completeness and validation noise into the 0-100
// grade the tracker smooths.
func qualityScore(completeness float64, validationErrors int) float64 {
	score := completeness*100 - 10*float64(validationErrors)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// deriveIndices fills in values computable from what the cycle already
// has. A HAPI-sourced dst_index wins over the local estimate.
func deriveIndices(values map[string]float64) {
	speed, hasSpeed := values["solar_wind_speed"]
	bz, hasBz := values["bz_gsm"]
	if hasSpeed && hasBz {
		estimate := provider.EstimateDst(speed, bz)
		values["dst_estimate"] = estimate
		if _, ok := values["dst_index"]; !ok {
			values["dst_index"] = estimate
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
