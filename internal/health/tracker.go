package health

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	emaAlpha          = 0.1
	failureWindow     = 5 * time.Minute
	dedupWindow       = 5 * time.Minute
	recordRetention   = 24 * time.Hour
	resolvedRetention = time.Hour

	burstThreshold   = 5
	slowResponseMs   = 5000.0
	lowQualityFloor  = 50.0
	healthyRate      = 0.95
	healthyLatencyMs = 1000.0
	healthyQuality   = 70.0
	degradedRate     = 0.80

	failureBurstKey = "failure_burst"
)

// Options tune the tracker.
type Options struct {
	HistoryLimit int
}

// Tracker turns raw fetch outcomes into a live per-endpoint health
// classification. Record is the single mutation entrypoint; everything
// else is a read-only projection.
type Tracker struct {
	mu     sync.Mutex
	opts   Options
	logger zerolog.Logger

	stats   map[string]*EndpointStats
	records []MetricRecord
	alerts  []trackedAlert
	sinks   []EventSink
	seq     int64
}

type trackedAlert struct {
	Alert
	dedupKey string
}

// NewTracker constructs an endpoint health tracker.
func NewTracker(opts Options, logger zerolog.Logger) *Tracker {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10000
	}
	return &Tracker{
		opts:   opts,
		logger: logger.With().Str("component", "health_tracker").Logger(),
		stats:  make(map[string]*EndpointStats),
	}
}

// Subscribe registers a sink for tracker events.
func (t *Tracker) Subscribe(sink EventSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = append(t.sinks, sink)
}

// Record ingests one fetch outcome: stats update, health classification,
// and failure-pattern alerting all happen inline.
func (t *Tracker) Record(m MetricRecord) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	t.mu.Lock()

	t.records = append(t.records, m)
	if overflow := len(t.records) - t.opts.HistoryLimit; overflow > 0 {
		t.records = t.records[overflow:]
	}

	stats := t.updateStats(m)
	previous := stats.Health
	stats.Health = classify(stats)

	events := make([]Event, 0, 4)
	events = append(events, Event{Kind: EventMetricRecorded, Metric: &m})
	if stats.Health != previous {
		events = append(events, Event{Kind: EventHealthChanged, Endpoint: m.Endpoint, Health: stats.Health})
	}
	for _, alert := range t.checkPatterns(m) {
		raised := alert
		events = append(events, Event{Kind: EventAlertRaised, Alert: &raised})
	}

	sinks := t.sinks
	t.mu.Unlock()

	for _, sink := range sinks {
		for _, ev := range events {
			sink(ev)
		}
	}
}

func (t *Tracker) updateStats(m MetricRecord) *EndpointStats {
	stats, ok := t.stats[m.Endpoint]
	if !ok {
		stats = &EndpointStats{Endpoint: m.Endpoint, Health: EndpointHealthy}
		t.stats[m.Endpoint] = stats
	}

	stats.TotalRequests++
	ts := m.Timestamp
	if m.Success {
		stats.SuccessCount++
		stats.LastSuccess = &ts
	} else {
		stats.FailureCount++
		stats.LastFailure = &ts
	}

	if stats.TotalRequests == 1 {
		stats.AverageResponseTime = m.ResponseTimeMs
		stats.AverageQuality = m.DataQuality
	} else {
		stats.AverageResponseTime = emaAlpha*m.ResponseTimeMs + (1-emaAlpha)*stats.AverageResponseTime
		stats.AverageQuality = emaAlpha*m.DataQuality + (1-emaAlpha)*stats.AverageQuality
	}

	// Exact ratio, recomputed every time; never drifted incrementally.
	stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalRequests)
	return stats
}

func classify(s *EndpointStats) EndpointHealth {
	switch {
	case s.SuccessRate >= healthyRate && s.AverageResponseTime < healthyLatencyMs && s.AverageQuality > healthyQuality:
		return EndpointHealthy
	case s.SuccessRate >= degradedRate && s.AverageResponseTime < slowResponseMs:
		return EndpointDegraded
	default:
		return EndpointUnhealthy
	}
}

// checkPatterns runs the per-record alert checks and returns the alerts
// that survived dedup. Caller holds the lock.
func (t *Tracker) checkPatterns(m MetricRecord) []Alert {
	var raised []Alert

	if failures := t.recentFailures(m.Endpoint, m.Timestamp); failures >= burstThreshold {
		msg := fmt.Sprintf("%d failures in 5 minutes", failures)
		if alert, ok := t.raise(SeverityCritical, m.Endpoint, msg, failureBurstKey, m.Timestamp); ok {
			raised = append(raised, alert)
		}
	}

	if m.ResponseTimeMs > slowResponseMs {
		msg := fmt.Sprintf("Slow response time: %.0fms", m.ResponseTimeMs)
		if alert, ok := t.raise(SeverityWarning, m.Endpoint, msg, msg, m.Timestamp); ok {
			raised = append(raised, alert)
		}
	}

	if m.DataQuality < lowQualityFloor {
		msg := fmt.Sprintf("Low data quality: %.0f%%", m.DataQuality)
		if alert, ok := t.raise(SeverityError, m.Endpoint, msg, msg, m.Timestamp); ok {
			raised = append(raised, alert)
		}
	}

	if len(m.ValidationErrors) > 0 {
		msg := "Validation errors: " + strings.Join(m.ValidationErrors, "; ")
		if alert, ok := t.raise(SeverityWarning, m.Endpoint, msg, msg, m.Timestamp); ok {
			raised = append(raised, alert)
		}
	}

	return raised
}

func (t *Tracker) recentFailures(endpoint string, now time.Time) int {
	cutoff := now.Add(-failureWindow)
	count := 0
	for i := len(t.records) - 1; i >= 0; i-- {
		r := t.records[i]
		if r.Timestamp.Before(cutoff) {
			break
		}
		if r.Endpoint == endpoint && !r.Success {
			count++
		}
	}
	return count
}

// raise appends an alert unless an unresolved alert with the same
// (endpoint, dedup key) exists within the dedup window.
func (t *Tracker) raise(severity Severity, endpoint, message, dedupKey string, now time.Time) (Alert, bool) {
	cutoff := now.Add(-dedupWindow)
	for i := len(t.alerts) - 1; i >= 0; i-- {
		existing := &t.alerts[i]
		if existing.Resolved || existing.Timestamp.Before(cutoff) {
			continue
		}
		if existing.Endpoint == endpoint && existing.dedupKey == dedupKey {
			return Alert{}, false
		}
	}

	t.seq++
	alert := Alert{
		ID:        fmt.Sprintf("hm-%d-%d", now.UnixMilli(), t.seq),
		Severity:  severity,
		Endpoint:  endpoint,
		Message:   message,
		Timestamp: now,
	}
	t.alerts = append(t.alerts, trackedAlert{Alert: alert, dedupKey: dedupKey})
	t.logger.Warn().
		Str("endpoint", endpoint).
		Str("severity", string(severity)).
		Str("message", message).
		Msg("health alert raised")
	return alert, true
}

// SystemHealth rolls the tracked fleet up into one classification with
// heuristic recommendations.
func (t *Tracker) SystemHealth() SystemHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := SystemHealth{Status: SystemHealthy}
	var totalFailures int64

	endpoints := make([]EndpointStats, 0, len(t.stats))
	for _, stats := range t.stats {
		endpoints = append(endpoints, *stats)
		totalFailures += stats.FailureCount
		switch stats.Health {
		case EndpointUnhealthy:
			out.UnhealthyCount++
		case EndpointDegraded:
			out.DegradedCount++
		}
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].Endpoint < endpoints[j].Endpoint })
	out.Endpoints = endpoints

	total := len(endpoints)
	switch {
	case total > 0 && out.UnhealthyCount*2 > total:
		out.Status = SystemCritical
	case out.UnhealthyCount > 0 || (total > 0 && float64(out.DegradedCount) > 0.3*float64(total)):
		out.Status = SystemDegraded
	}

	for _, stats := range endpoints {
		if stats.SuccessRate < 0.5 && stats.TotalRequests > 0 {
			out.Recommendations = append(out.Recommendations,
				fmt.Sprintf("Endpoint %s has a %.0f%% success rate; check provider status", stats.Endpoint, stats.SuccessRate*100))
		}
		if stats.AverageResponseTime > slowResponseMs {
			out.Recommendations = append(out.Recommendations,
				fmt.Sprintf("Endpoint %s is responding slowly (avg %.0fms)", stats.Endpoint, stats.AverageResponseTime))
		}
	}
	if totalFailures > 100 {
		out.Recommendations = append(out.Recommendations,
			"Cumulative failures exceed 100; consider caching last good results to ride out provider outages")
	}

	for _, alert := range t.alerts {
		if !alert.Resolved {
			out.ActiveAlerts = append(out.ActiveAlerts, alert.Alert)
		}
	}

	return out
}

// Summary aggregates buffered records with from <= timestamp <= to.
func (t *Tracker) Summary(from, to time.Time) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sum Summary
	var successes, cached, fellBack int
	var totalRT, totalQuality float64
	errCounts := make(map[string]int)

	for _, r := range t.records {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		sum.TotalRequests++
		totalRT += r.ResponseTimeMs
		totalQuality += r.DataQuality
		if r.Success {
			successes++
		}
		if r.IsCache {
			cached++
		}
		if r.IsFallback {
			fellBack++
		}
		for _, msg := range r.ValidationErrors {
			errCounts[msg]++
		}
	}

	if sum.TotalRequests > 0 {
		n := float64(sum.TotalRequests)
		sum.SuccessRate = float64(successes) / n
		sum.AvgResponseTime = totalRT / n
		sum.AvgDataQuality = totalQuality / n
		sum.CacheHitRate = float64(cached) / n
		sum.FallbackRate = float64(fellBack) / n
	}

	sum.TopErrors = topErrors(errCounts, 5)
	return sum
}

func topErrors(counts map[string]int, limit int) []ErrorCount {
	if len(counts) == 0 {
		return nil
	}
	out := make([]ErrorCount, 0, len(counts))
	for msg, count := range counts {
		out = append(out, ErrorCount{Message: msg, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Message < out[j].Message
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// EndpointStatsList returns a snapshot of all tracked endpoints.
func (t *Tracker) EndpointStatsList() []EndpointStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]EndpointStats, 0, len(t.stats))
	for _, stats := range t.stats {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// RecentMetrics returns up to limit most recent records, newest last.
func (t *Tracker) RecentMetrics(limit int) []MetricRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.records) {
		limit = len(t.records)
	}
	out := make([]MetricRecord, limit)
	copy(out, t.records[len(t.records)-limit:])
	return out
}

// Alerts returns alerts raised at or after since; zero time means all.
func (t *Tracker) Alerts(since time.Time) []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Alert, 0, len(t.alerts))
	for _, alert := range t.alerts {
		if !since.IsZero() && alert.Timestamp.Before(since) {
			continue
		}
		out = append(out, alert.Alert)
	}
	return out
}

// ResolveAlert flips an alert to resolved. Returns false for unknown ids.
func (t *Tracker) ResolveAlert(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.alerts {
		if t.alerts[i].ID == id {
			t.alerts[i].Resolved = true
			return true
		}
	}
	return false
}

// Sweep drops records older than 24h and resolved alerts older than 1h.
// Meant to run hourly; the history cap is enforced separately on record.
func (t *Tracker) Sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	recordCutoff := now.Add(-recordRetention)
	kept := t.records[:0]
	for _, r := range t.records {
		if !r.Timestamp.Before(recordCutoff) {
			kept = append(kept, r)
		}
	}
	t.records = kept

	alertCutoff := now.Add(-resolvedRetention)
	keptAlerts := t.alerts[:0]
	for _, alert := range t.alerts {
		if alert.Resolved && alert.Timestamp.Before(alertCutoff) {
			continue
		}
		keptAlerts = append(keptAlerts, alert)
	}
	t.alerts = keptAlerts
}

// Reset clears all tracker state unconditionally.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats = make(map[string]*EndpointStats)
	t.records = nil
	t.alerts = nil
}
