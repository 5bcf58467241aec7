package storage

import "time"

// MetricRow is one archived fetch outcome.
type MetricRow struct {
	ID               int64
	Endpoint         string
	ObservedAt       time.Time
	ResponseTimeMs   float64
	Success          bool
	DataQuality      float64
	Completeness     float64
	ValidationErrors []string
	IsCache          bool
	IsFallback       bool
	CreatedAt        time.Time
}

// AlertRow is one archived threshold alert emission.
type AlertRow struct {
	ID          int64
	AlertID     string
	CriteriaID  string
	Category    string
	Severity    string
	Parameter   string
	Value       float64
	Threshold   float64
	Message     string
	TriggeredAt time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
