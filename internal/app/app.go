package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"swx-monitor/internal/alerting"
	"swx-monitor/internal/config"
	"swx-monitor/internal/hapi"
	"swx-monitor/internal/health"
	"swx-monitor/internal/metrics"
	"swx-monitor/internal/monitor"
	"swx-monitor/internal/provider"
	"swx-monitor/internal/scheduler"
	"swx-monitor/internal/service"
	"swx-monitor/internal/storage"
)

const archiveRetention = 24 * time.Hour

// App aggregates configuration and shared dependencies for the CLI
// commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newHAPIClient() *hapi.Client {
	return hapi.NewClient(hapi.Options{
		InfoTimeout: a.Config.HAPI.InfoTimeout,
		DataTimeout: a.Config.HAPI.DataTimeout,
		UserAgent:   a.Config.Providers.UserAgent,
	}, a.Logger)
}

func (a *App) indicesChain() []hapi.SourceConfig {
	chain := make([]hapi.SourceConfig, 0, len(a.Config.HAPI.Indices))
	for _, ep := range a.Config.HAPI.Indices {
		chain = append(chain, hapi.SourceConfig{
			Server:     ep.Server,
			Dataset:    ep.Dataset,
			Parameters: ep.Parameters,
		})
	}
	return chain
}

func (a *App) newFetchers() []provider.Fetcher {
	opts := provider.Options{
		BaseURL:   a.Config.Providers.BaseURL,
		Timeout:   a.Config.Providers.RequestTimeout,
		UserAgent: a.Config.Providers.UserAgent,
	}
	return []provider.Fetcher{
		provider.NewSolarWindPlasma(opts),
		provider.NewSolarWindMag(opts),
		provider.NewGOESXray(opts),
		provider.NewGOESProtons(opts),
		provider.NewGOESMagnetometer(opts),
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newAggregator(tracker *health.Tracker, engine *alerting.Engine) *monitor.Aggregator {
	return monitor.New(monitor.Options{
		CriticalEndpoints: a.Config.Monitor.CriticalEndpoints,
		SpotCheckTimeout:  a.Config.Monitor.SpotCheckTimeout,
		SummaryWindow:     a.Config.Monitor.SummaryWindow,
		UserAgent:         a.Config.Providers.UserAgent,
		ValuesFn:          a.sampleValues,
	}, tracker, engine, a.Logger)
}

// sampleValues fetches one parameter snapshot across all providers for
// report-time derivations. Failed sources just contribute nothing.
func (a *App) sampleValues(ctx context.Context) map[string]float64 {
	fetchers := a.newFetchers()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		values = make(map[string]float64)
	)
	for _, fetcher := range fetchers {
		wg.Add(1)
		go func(f provider.Fetcher) {
			defer wg.Done()
			obs, err := f.Fetch(ctx)
			if err != nil {
				a.Logger.Debug().Err(err).Str("source", f.Name()).Msg("snapshot fetch failed")
				return
			}
			mu.Lock()
			for name, value := range obs.Values {
				values[name] = value
			}
			mu.Unlock()
		}(fetcher)
	}
	wg.Wait()
	return values
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; archive disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	a.serveMetrics(ctx)

	tracker := health.NewTracker(health.Options{HistoryLimit: a.Config.Health.HistoryLimit}, a.Logger)
	tracker.Subscribe(a.eventSink())
	engine := alerting.NewEngine(nil, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	var metricArchive storage.MetricArchive
	var alertArchive storage.AlertArchive
	var locker storage.AdvisoryLocker
	if store != nil {
		metricArchive = store
		alertArchive = store
		locker = store
	}

	svc := service.New(service.Options{
		IndicesChain:  a.indicesChain(),
		IndicesWindow: a.Config.HAPI.Window,
		Aliases:       a.Config.HAPI.Aliases,
		LockKey:       a.Config.Scheduler.AdvisoryLockKey,
		NotifyEnabled: a.Config.Alerting.Enabled,
	}, sched, a.newHAPIClient(), a.newFetchers(), tracker, engine, a.newNotifier(), metricArchive, alertArchive, locker, a.Logger)

	go a.runSweeper(ctx, tracker, store)

	a.Logger.Info().Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// eventSink logs classification moves and counts pattern alerts.
func (a *App) eventSink() health.EventSink {
	return func(ev health.Event) {
		switch ev.Kind {
		case health.EventHealthChanged:
			a.Logger.Info().
				Str("endpoint", ev.Endpoint).
				Str("health", string(ev.Health)).
				Msg("endpoint health changed")
		case health.EventAlertRaised:
			metrics.ObserveAlert(string(ev.Alert.Severity), "health")
		}
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	addr := a.Config.Metrics.ListenAddr
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		a.Logger.Info().Str("addr", addr).Msg("metrics listener started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics listener failed")
		}
	}()
}

// runSweeper drives the hourly retention pass for both the in-memory
// buffers and the archive.
func (a *App) runSweeper(ctx context.Context, tracker *health.Tracker, store *storage.Store) {
	interval := a.Config.Health.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tracker.Sweep(now.UTC())
			if store != nil {
				cutoff := now.UTC().Add(-archiveRetention)
				if err := store.DeleteMetricsBefore(ctx, cutoff); err != nil && !errors.Is(err, context.Canceled) {
					a.Logger.Error().Err(err).Msg("archive metric prune failed")
				}
				if err := store.DeleteAlertsBefore(ctx, cutoff); err != nil && !errors.Is(err, context.Canceled) {
					a.Logger.Error().Err(err).Msg("archive alert prune failed")
				}
			}
		}
	}
}

// StatusOptions configure the status command.
type StatusOptions struct {
	RecentAlerts int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting archived fetch outcomes.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	CSVPath   string
	MaxPoints int
}
