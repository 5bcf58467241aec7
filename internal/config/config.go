package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"swx-monitor/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Providers ProvidersConfig `mapstructure:"providers"`
	HAPI      HAPIConfig      `mapstructure:"hapi"`
	Health    HealthConfig    `mapstructure:"health"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates the optional PostgreSQL archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// ProvidersConfig covers the NOAA SWPC product feeds.
type ProvidersConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// HAPIEndpoint identifies one (server, dataset, parameters) combination
// in a fallback chain. Chain order is significant.
type HAPIEndpoint struct {
	Server     string   `mapstructure:"server"`
	Dataset    string   `mapstructure:"dataset"`
	Parameters []string `mapstructure:"parameters"`
}

// HAPIConfig captures HAPI server connectivity and fallback chains.
// Aliases map wire parameter names onto the canonical names the alert
// criteria reference.
type HAPIConfig struct {
	InfoTimeout time.Duration     `mapstructure:"info_timeout"`
	DataTimeout time.Duration     `mapstructure:"data_timeout"`
	Window      time.Duration     `mapstructure:"window"`
	Indices     []HAPIEndpoint    `mapstructure:"indices"`
	Aliases     map[string]string `mapstructure:"aliases"`
}

// HealthConfig tunes the endpoint health tracker.
type HealthConfig struct {
	HistoryLimit  int           `mapstructure:"history_limit"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// AlertingConfig defines alert dispatch routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram notification channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MonitorConfig governs the system health aggregator.
type MonitorConfig struct {
	CriticalEndpoints []string      `mapstructure:"critical_endpoints"`
	SpotCheckTimeout  time.Duration `mapstructure:"spot_check_timeout"`
	SummaryWindow     time.Duration `mapstructure:"summary_window"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SWXMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "swxmon")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x73777843))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("providers.base_url", "https://services.swpc.noaa.gov")
	v.SetDefault("providers.request_timeout", "10s")
	v.SetDefault("providers.user_agent", "swxmon/1.0")

	v.SetDefault("hapi.info_timeout", "10s")
	v.SetDefault("hapi.data_timeout", "30s")
	v.SetDefault("hapi.window", "24h")
	v.SetDefault("hapi.indices", []map[string]any{
		{
			"server":     "https://cdaweb.gsfc.nasa.gov/hapi",
			"dataset":    "OMNI2_H0_MRG1HR",
			"parameters": []string{"KP1800", "DST1800", "F10_INDEX1800"},
		},
		{
			"server":     "https://amda.irap.omp.eu/service/hapi",
			"dataset":    "omni-hour-all",
			"parameters": []string{"KP1800", "DST1800", "F10_INDEX1800"},
		},
	})

	v.SetDefault("hapi.aliases", map[string]string{
		"KP1800":        "kp_index",
		"DST1800":       "dst_index",
		"F10_INDEX1800": "f10_7",
	})

	v.SetDefault("health.history_limit", 10000)
	v.SetDefault("health.sweep_interval", "1h")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("monitor.critical_endpoints", []string{
		"https://services.swpc.noaa.gov/products/solar-wind/plasma-1-day.json",
		"https://services.swpc.noaa.gov/products/solar-wind/mag-1-day.json",
		"https://services.swpc.noaa.gov/json/goes/primary/xrays-1-day.json",
		"https://services.swpc.noaa.gov/json/goes/primary/integral-protons-1-day.json",
	})
	v.SetDefault("monitor.spot_check_timeout", "5s")
	v.SetDefault("monitor.summary_window", "1h")

	v.SetDefault("metrics.listen_addr", "")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Health.HistoryLimit <= 0 {
		return fmt.Errorf("health.history_limit must be greater than zero")
	}
	if c.Monitor.SpotCheckTimeout <= 0 {
		return fmt.Errorf("monitor.spot_check_timeout must be greater than zero")
	}
	for i, ep := range c.HAPI.Indices {
		if ep.Server == "" || ep.Dataset == "" {
			return fmt.Errorf("hapi.indices[%d]: server and dataset are required", i)
		}
		if len(ep.Parameters) == 0 {
			return fmt.Errorf("hapi.indices[%d]: at least one parameter is required", i)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
