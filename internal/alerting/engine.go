package alerting

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"swx-monitor/internal/health"
)

const historyRetention = 24 * time.Hour

// Stats summarises the rolling alert history. Recomputed per query.
type Stats struct {
	Total      int
	BySeverity map[health.Severity]int
	ByCategory map[Category]int
	Today      int
}

// Engine evaluates the static criteria table against parameter value
// snapshots, with per-rule cooldown suppression.
//
// Per rule the lifecycle is Armed -> Triggered -> Cooldown -> Armed;
// rules are fully independent, so two severities of the same physical
// quantity may fire concurrently under their own cooldown keys.
type Engine struct {
	mu            sync.Mutex
	criteria      []Criteria
	lastTriggered map[string]time.Time
	history       []ActiveAlert
	logger        zerolog.Logger
}

// NewEngine constructs an alert engine. A nil criteria slice selects the
// built-in operational table.
func NewEngine(criteria []Criteria, logger zerolog.Logger) *Engine {
	if criteria == nil {
		criteria = DefaultCriteria()
	}
	return &Engine{
		criteria:      criteria,
		lastTriggered: make(map[string]time.Time),
		logger:        logger.With().Str("component", "alert_engine").Logger(),
	}
}

// Evaluate compares the snapshot against every rule and returns the
// newly triggered alerts. Absent parameters and rules in cooldown are
// skipped silently.
func (e *Engine) Evaluate(now time.Time, values map[string]float64) []ActiveAlert {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pruneLocked(now)

	var triggered []ActiveAlert
	for _, rule := range e.criteria {
		value, present := values[rule.Parameter]
		if !present || !compare(value, rule.Operator, rule.Threshold) {
			continue
		}
		if last, ok := e.lastTriggered[rule.ID]; ok && now.Sub(last) < rule.Cooldown() {
			continue
		}

		alert := ActiveAlert{
			ID:              fmt.Sprintf("%s_%d", rule.ID, now.UnixMilli()),
			CriteriaID:      rule.ID,
			Category:        rule.Category,
			Severity:        rule.Severity,
			Parameter:       rule.Parameter,
			Value:           value,
			Threshold:       rule.Threshold,
			Unit:            rule.Unit,
			Message:         renderMessage(rule, value),
			TriggeredAt:     now,
			ExpiresAt:       now.Add(rule.Cooldown()),
			Recommendations: recommendationsFor(rule.Category, rule.Severity),
		}

		e.lastTriggered[rule.ID] = now
		e.history = append(e.history, alert)
		triggered = append(triggered, alert)

		e.logger.Warn().
			Str("rule", rule.ID).
			Str("severity", string(rule.Severity)).
			Float64("value", value).
			Float64("threshold", rule.Threshold).
			Msg("threshold breached")
	}

	return triggered
}

func renderMessage(rule Criteria, value float64) string {
	unit := rule.Unit
	if unit != "" {
		unit = " " + unit
	}
	return fmt.Sprintf("%s is %g%s (%s %g%s)", rule.Parameter, value, unit, rule.Operator, rule.Threshold, unit)
}

func compare(value float64, op Operator, threshold float64) bool {
	switch op {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	default:
		return false
	}
}

// Active returns history entries whose cooldown has not yet expired.
func (e *Engine) Active(now time.Time) []ActiveAlert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []ActiveAlert
	for _, alert := range e.history {
		if alert.ExpiresAt.After(now) {
			out = append(out, alert)
		}
	}
	return out
}

// History returns alerts triggered at or after since; zero time means all
// retained entries.
func (e *Engine) History(since time.Time) []ActiveAlert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]ActiveAlert, 0, len(e.history))
	for _, alert := range e.history {
		if !since.IsZero() && alert.TriggeredAt.Before(since) {
			continue
		}
		out = append(out, alert)
	}
	return out
}

// StatsAt recomputes history statistics. The today bucket is keyed to
// local midnight.
func (e *Engine) StatsAt(now time.Time) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{
		BySeverity: make(map[health.Severity]int),
		ByCategory: make(map[Category]int),
	}

	year, month, day := now.Local().Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, time.Local)

	for _, alert := range e.history {
		stats.Total++
		stats.BySeverity[alert.Severity]++
		stats.ByCategory[alert.Category]++
		if !alert.TriggeredAt.Before(midnight) {
			stats.Today++
		}
	}
	return stats
}

// Criteria returns the loaded rule table.
func (e *Engine) Criteria() []Criteria {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Criteria, len(e.criteria))
	copy(out, e.criteria)
	return out
}

// Reset clears cooldown state and history.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastTriggered = make(map[string]time.Time)
	e.history = nil
}

func (e *Engine) pruneLocked(now time.Time) {
	cutoff := now.Add(-historyRetention)
	kept := e.history[:0]
	for _, alert := range e.history {
		if !alert.TriggeredAt.Before(cutoff) {
			kept = append(kept, alert)
		}
	}
	e.history = kept
}
