package health

import "time"

// EndpointHealth classifies one tracked endpoint.
type EndpointHealth string

const (
	EndpointHealthy   EndpointHealth = "healthy"
	EndpointDegraded  EndpointHealth = "degraded"
	EndpointUnhealthy EndpointHealth = "unhealthy"
)

// SystemStatus classifies the tracked fleet as a whole.
type SystemStatus string

const (
	SystemHealthy  SystemStatus = "healthy"
	SystemDegraded SystemStatus = "degraded"
	SystemCritical SystemStatus = "critical"
)

// Severity grades tracker alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// MetricRecord is one immutable fetch outcome. Created once per attempt
// and retained only inside the rolling buffer.
type MetricRecord struct {
	Endpoint         string
	Timestamp        time.Time
	ResponseTimeMs   float64
	Success          bool
	DataQuality      float64
	Completeness     float64
	ValidationErrors []string
	IsCache          bool
	IsFallback       bool
}

// EndpointStats accumulates per-endpoint counters and EMA-smoothed
// latency/quality. Mutated in place on every record; never deleted.
type EndpointStats struct {
	Endpoint            string
	TotalRequests       int64
	SuccessCount        int64
	FailureCount        int64
	AverageResponseTime float64
	AverageQuality      float64
	LastSuccess         *time.Time
	LastFailure         *time.Time
	SuccessRate         float64
	Health              EndpointHealth
}

// Alert is raised by the tracker's failure-pattern checks. Mutated only
// via resolve; resolved alerts are pruned after an hour.
type Alert struct {
	ID        string
	Severity  Severity
	Endpoint  string
	Message   string
	Timestamp time.Time
	Resolved  bool
}

// SystemHealth is the tracker's fleet-wide rollup.
type SystemHealth struct {
	Status          SystemStatus
	Endpoints       []EndpointStats
	UnhealthyCount  int
	DegradedCount   int
	ActiveAlerts    []Alert
	Recommendations []string
}

// Summary aggregates buffered records within a time window.
type Summary struct {
	TotalRequests   int
	SuccessRate     float64
	AvgResponseTime float64
	AvgDataQuality  float64
	CacheHitRate    float64
	FallbackRate    float64
	TopErrors       []ErrorCount
}

// ErrorCount pairs a validation error string with its frequency.
type ErrorCount struct {
	Message string
	Count   int
}
