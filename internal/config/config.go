package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"fuelwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Store     StoreConfig     `mapstructure:"store"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// FeedConfig covers the upstream price feed.
type FeedConfig struct {
	URL            string        `mapstructure:"url"`
	Region         string        `mapstructure:"region"`
	FuelTypes      []string      `mapstructure:"fuel_types"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// StoreConfig locates the persisted JSON documents.
type StoreConfig struct {
	Dir               string `mapstructure:"dir"`
	HistoryFile       string `mapstructure:"history_file"`
	DailyFile         string `mapstructure:"daily_file"`
	SubscriptionsFile string `mapstructure:"subscriptions_file"`
}

// SchedulerConfig governs the three loop cadences.
type SchedulerConfig struct {
	IngestInterval   time.Duration `mapstructure:"ingest_interval"`
	AlignIngest      bool          `mapstructure:"align_ingest"`
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
	WeeklyInterval   time.Duration `mapstructure:"weekly_interval"`
	WeeklyCadence    time.Duration `mapstructure:"weekly_cadence"`
	StartupDelay     time.Duration `mapstructure:"startup_delay"`
	QueueCapacity    int           `mapstructure:"queue_capacity"`
}

// AlertingConfig defines the dispatch-layer policy knobs. The evaluator's
// cold-start and drawdown constants are not configuration; they are the
// product rule.
type AlertingConfig struct {
	Ceiling  int64 `mapstructure:"ceiling"`
	MAWindow int   `mapstructure:"ma_window"`
}

// SMTPConfig 描述邮件投递参数。
type SMTPConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Sender       string        `mapstructure:"sender"`
	SSL          bool          `mapstructure:"ssl"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	DashboardURL string        `mapstructure:"dashboard_url"`
}

// HTTPConfig configures the subscription API surface.
type HTTPConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr"`
	CORSAllowOrigins  []string      `mapstructure:"cors_allow_origins"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FUELWATCH")
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
	v.SetDefault("app.name", "fuelwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("feed.url", "https://projectzerothree.info/api.php?format=json")
	v.SetDefault("feed.region", "QLD")
	v.SetDefault("feed.fuel_types", []string{"E10", "U91", "U95", "U98", "Diesel", "LPG"})
	v.SetDefault("feed.request_timeout", "30s")
	v.SetDefault("feed.user_agent", "fuelwatcher/1.0")

	v.SetDefault("store.dir", "data")
	v.SetDefault("store.history_file", "data.json")
	v.SetDefault("store.daily_file", "fuel_prices.json")
	v.SetDefault("store.subscriptions_file", "recipient_mails.json")

	v.SetDefault("scheduler.ingest_interval", "1h")
	v.SetDefault("scheduler.align_ingest", true)
	v.SetDefault("scheduler.dispatch_interval", "10s")
	v.SetDefault("scheduler.weekly_interval", "24h")
	v.SetDefault("scheduler.weekly_cadence", "168h")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.queue_capacity", 256)

	v.SetDefault("alerting.ceiling", 140)
	v.SetDefault("alerting.ma_window", 240)

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.ssl", true)
	v.SetDefault("smtp.send_timeout", "15s")

	v.SetDefault("http.listen_addr", ":6789")
	v.SetDefault("http.cors_allow_origins", []string{"*"})
	v.SetDefault("http.rate_limit_enabled", true)
	v.SetDefault("http.rate_limit_requests", 60)
	v.SetDefault("http.rate_limit_window", "1m")
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
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Feed.Region == "" {
		return fmt.Errorf("feed.region is required")
	}
	if c.Scheduler.IngestInterval <= 0 {
		return fmt.Errorf("scheduler.ingest_interval must be greater than zero")
	}
	if c.Scheduler.DispatchInterval <= 0 {
		return fmt.Errorf("scheduler.dispatch_interval must be greater than zero")
	}
	if c.Scheduler.WeeklyInterval <= 0 {
		return fmt.Errorf("scheduler.weekly_interval must be greater than zero")
	}
	if c.Scheduler.WeeklyCadence <= 0 {
		return fmt.Errorf("scheduler.weekly_cadence must be greater than zero")
	}
	if c.Scheduler.QueueCapacity <= 0 {
		return fmt.Errorf("scheduler.queue_capacity must be greater than zero")
	}
	if c.Alerting.Ceiling <= 0 {
		return fmt.Errorf("alerting.ceiling must be greater than zero")
	}
	if c.SMTP.Enabled {
		if c.SMTP.Host == "" {
			return fmt.Errorf("smtp.host 必须配置")
		}
		if c.SMTP.Sender == "" {
			return fmt.Errorf("smtp.sender 必须配置")
		}
	}
	return nil
}
