package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"vx-continuous/internal/logging"
	"vx-continuous/internal/roll"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	CBOE      CBOEConfig      `mapstructure:"cboe"`
	Build     BuildConfig     `mapstructure:"build"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	Retention       time.Duration `mapstructure:"retention"`
}

// SchedulerConfig governs the daily rebuild cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// CBOEConfig captures CBOE data-source connectivity.
type CBOEConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	LegacyBaseURL     string        `mapstructure:"legacy_base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	SettlementLagDays int           `mapstructure:"settlement_lag_days"`
}

// BuildConfig selects the chain and the stitch policies.
type BuildConfig struct {
	Underlying    string `mapstructure:"underlying"`
	RollPolicy    string `mapstructure:"roll_policy"`
	RollOffset    int    `mapstructure:"roll_offset_days"`
	Adjustment    string `mapstructure:"adjustment"`
	LookbackYears int    `mapstructure:"lookback_years"`
}

// NotifyConfig defines post-build summary routing.
type NotifyConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 推送参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VXC")
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
	v.SetDefault("app.name", "vx-continuous")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.service", "vx-continuous")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x56584331))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("cboe.base_url", "https://markets.cboe.com/us/futures/market_statistics/historical_data/products/csv")
	v.SetDefault("cboe.legacy_base_url", "https://cfe.cboe.com/Publish/ScheduledTask/MktData/datahouse")
	v.SetDefault("cboe.request_timeout", "10s")
	v.SetDefault("cboe.user_agent", "vx-continuous/1.0")
	v.SetDefault("cboe.settlement_lag_days", 0)

	v.SetDefault("build.underlying", "VX")
	v.SetDefault("build.roll_policy", "vx_settlement")
	v.SetDefault("build.roll_offset_days", 0)
	v.SetDefault("build.adjustment", "ratio")
	v.SetDefault("build.lookback_years", 2)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.retention", "2160h")
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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Database.Retention < 0 {
		return fmt.Errorf("database.retention must not be negative")
	}
	if c.Build.Underlying == "" {
		return fmt.Errorf("build.underlying is required")
	}
	if c.Build.LookbackYears <= 0 {
		return fmt.Errorf("build.lookback_years must be greater than zero")
	}
	if _, err := roll.ParsePolicy(c.Build.RollPolicy, c.Build.RollOffset); err != nil {
		return fmt.Errorf("build.roll_policy: %w", err)
	}
	if _, err := roll.ParseAdjustment(c.Build.Adjustment); err != nil {
		return fmt.Errorf("build.adjustment: %w", err)
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token 必须配置")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// RollPolicy materialises the configured roll policy.
func (c *Config) RollPolicy() (roll.Policy, error) {
	return roll.ParsePolicy(c.Build.RollPolicy, c.Build.RollOffset)
}

// Adjustment materialises the configured adjustment policy.
func (c *Config) Adjustment() (roll.Adjustment, error) {
	return roll.ParseAdjustment(c.Build.Adjustment)
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
