package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	ensureSchemaSQL = `CREATE TABLE IF NOT EXISTS metric_records (
        id                BIGSERIAL PRIMARY KEY,
        endpoint          TEXT NOT NULL,
        observed_at       TIMESTAMPTZ NOT NULL,
        response_time_ms  DOUBLE PRECISION NOT NULL DEFAULT 0,
        success           BOOLEAN NOT NULL DEFAULT FALSE,
        data_quality      DOUBLE PRECISION NOT NULL DEFAULT 0,
        completeness      DOUBLE PRECISION NOT NULL DEFAULT 0,
        validation_errors TEXT[] NOT NULL DEFAULT '{}',
        is_cache          BOOLEAN NOT NULL DEFAULT FALSE,
        is_fallback       BOOLEAN NOT NULL DEFAULT FALSE,
        created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );
    CREATE INDEX IF NOT EXISTS idx_metric_records_observed_at
        ON metric_records (observed_at);

    CREATE TABLE IF NOT EXISTS threshold_alerts (
        id           BIGSERIAL PRIMARY KEY,
        alert_id     TEXT NOT NULL UNIQUE,
        criteria_id  TEXT NOT NULL,
        category     TEXT NOT NULL,
        severity     TEXT NOT NULL,
        parameter    TEXT NOT NULL,
        value        DOUBLE PRECISION NOT NULL,
        threshold    DOUBLE PRECISION NOT NULL,
        message      TEXT NOT NULL,
        triggered_at TIMESTAMPTZ NOT NULL,
        expires_at   TIMESTAMPTZ NOT NULL,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );
    CREATE INDEX IF NOT EXISTS idx_threshold_alerts_triggered_at
        ON threshold_alerts (triggered_at);`

	insertMetricSQL = `INSERT INTO metric_records (
        endpoint,
        observed_at,
        response_time_ms,
        success,
        data_quality,
        completeness,
        validation_errors,
        is_cache,
        is_fallback
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    );`

	listMetricsBetweenSQL = `SELECT
        id,
        endpoint,
        observed_at,
        response_time_ms,
        success,
        data_quality,
        completeness,
        validation_errors,
        is_cache,
        is_fallback,
        created_at
    FROM metric_records
    WHERE observed_at >= $1
      AND observed_at < $2
    ORDER BY observed_at;`

	listRecentMetricsSQL = `SELECT
        id,
        endpoint,
        observed_at,
        response_time_ms,
        success,
        data_quality,
        completeness,
        validation_errors,
        is_cache,
        is_fallback,
        created_at
    FROM metric_records
    ORDER BY observed_at DESC
    LIMIT $1;`

	countMetricsSQL = `SELECT COUNT(*) FROM metric_records;`

	deleteMetricsBeforeSQL = `DELETE FROM metric_records WHERE observed_at < $1;`

	insertAlertSQL = `INSERT INTO threshold_alerts (
        alert_id,
        criteria_id,
        category,
        severity,
        parameter,
        value,
        threshold,
        message,
        triggered_at,
        expires_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (alert_id) DO NOTHING;`

	listRecentAlertsSQL = `SELECT
        id,
        alert_id,
        criteria_id,
        category,
        severity,
        parameter,
        value,
        threshold,
        message,
        triggered_at,
        expires_at,
        created_at
    FROM threshold_alerts
    ORDER BY triggered_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM threshold_alerts WHERE triggered_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// MetricArchive defines operations for fetch-outcome persistence.
type MetricArchive interface {
	InsertMetric(ctx context.Context, row MetricRow) error
	ListMetricsBetween(ctx context.Context, from, to time.Time) ([]MetricRow, error)
	ListRecentMetrics(ctx context.Context, limit int) ([]MetricRow, error)
	CountMetrics(ctx context.Context) (int64, error)
	DeleteMetricsBefore(ctx context.Context, olderThan time.Time) error
}

// AlertArchive defines operations for alert auditing.
type AlertArchive interface {
	InsertAlert(ctx context.Context, row AlertRow) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRow, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to archived metrics and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the archive tables and indexes when absent.
// Idempotent; runs at startup before the first insert.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, ensureSchemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and
// returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertMetric archives one fetch outcome.
func (s *Store) InsertMetric(ctx context.Context, row MetricRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertMetricSQL,
		row.Endpoint,
		row.ObservedAt,
		row.ResponseTimeMs,
		row.Success,
		row.DataQuality,
		row.Completeness,
		row.ValidationErrors,
		row.IsCache,
		row.IsFallback,
	)
	if execErr != nil {
		return fmt.Errorf("insert metric: %w", execErr)
	}
	return nil
}

// ListMetricsBetween lists archived outcomes within a time window.
func (s *Store) ListMetricsBetween(ctx context.Context, from, to time.Time) ([]MetricRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listMetricsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list metrics between: %w", queryErr)
	}
	defer rows.Close()

	return collectMetricRows(rows, 0)
}

// ListRecentMetrics lists the most recent archived outcomes.
func (s *Store) ListRecentMetrics(ctx context.Context, limit int) ([]MetricRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentMetricsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent metrics: %w", queryErr)
	}
	defer rows.Close()

	return collectMetricRows(rows, limit)
}

// CountMetrics counts archived outcomes.
func (s *Store) CountMetrics(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countMetricsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count metrics: %w", scanErr)
	}
	return count, nil
}

// DeleteMetricsBefore prunes archived outcomes.
func (s *Store) DeleteMetricsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteMetricsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete metrics before: %w", execErr)
	}
	return nil
}

// InsertAlert archives one threshold alert emission.
func (s *Store) InsertAlert(ctx context.Context, row AlertRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertAlertSQL,
		row.AlertID,
		row.CriteriaID,
		row.Category,
		row.Severity,
		row.Parameter,
		row.Value,
		row.Threshold,
		row.Message,
		row.TriggeredAt,
		row.ExpiresAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert alert: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists most recent archived alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRow, 0, limit)
	for rows.Next() {
		var rec AlertRow
		if err := rows.Scan(
			&rec.ID,
			&rec.AlertID,
			&rec.CriteriaID,
			&rec.Category,
			&rec.Severity,
			&rec.Parameter,
			&rec.Value,
			&rec.Threshold,
			&rec.Message,
			&rec.TriggeredAt,
			&rec.ExpiresAt,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore prunes archived alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectMetricRows(rows pgx.Rows, sizeHint int) ([]MetricRow, error) {
	out := make([]MetricRow, 0, sizeHint)
	for rows.Next() {
		var rec MetricRow
		if err := rows.Scan(
			&rec.ID,
			&rec.Endpoint,
			&rec.ObservedAt,
			&rec.ResponseTimeMs,
			&rec.Success,
			&rec.DataQuality,
			&rec.Completeness,
			&rec.ValidationErrors,
			&rec.IsCache,
			&rec.IsFallback,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
