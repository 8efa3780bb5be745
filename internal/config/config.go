// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Platforms PlatformsConfig `mapstructure:"platforms"`
	Fund      FundConfig      `mapstructure:"fund"`
	Card      CardConfig      `mapstructure:"card"`
	PK        PKConfig        `mapstructure:"pk"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains the dashboard HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig contains storage connection settings.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // "postgres" or "sqlite"
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// SQLiteConfig contains the file path for small single-node deployments.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig contains Redis connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// PlatformsConfig contains per-platform scraping credentials and accounts.
type PlatformsConfig struct {
	Modian ModianConfig `mapstructure:"modian"`
	Taoba  TaobaConfig  `mapstructure:"taoba"`
	Owhat  OwhatConfig  `mapstructure:"owhat"`
}

// ModianConfig contains the fan-club account used for campaign discovery.
type ModianConfig struct {
	AccountID string `mapstructure:"account_id"`
}

// TaobaConfig contains Taoba credentials. Token is refreshed on auth failure
// and held in memory only.
type TaobaConfig struct {
	Account  string `mapstructure:"account"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
}

// OwhatConfig is currently empty; Owhat needs no credentials for public reads.
type OwhatConfig struct{}

// FundConfig contains order ingestion settings and the broadcast template.
type FundConfig struct {
	ScanInterval      int    `mapstructure:"scan_interval"`      // seconds, 0 disables
	DiscoveryInterval int    `mapstructure:"discovery_interval"` // seconds, 0 disables
	RequestTimeout    int    `mapstructure:"request_timeout"`    // seconds, per platform call
	MaxConcurrency    int    `mapstructure:"max_concurrency"`    // parallel campaign scans
	Pattern           string `mapstructure:"pattern"`
}

// CardConfig contains the collectible card draw settings.
type CardConfig struct {
	Threshold     float64  `mapstructure:"threshold"` // minimum amount for a draw
	Tiers         []string `mapstructure:"tiers"`     // display names indexed by tier
	Pattern       string   `mapstructure:"pattern"`
	Encouragement string   `mapstructure:"encouragement"`
}

// PKConfig contains PK session locations and report cadence.
type PKConfig struct {
	SessionDir     string `mapstructure:"session_dir"`
	SnapshotDir    string `mapstructure:"snapshot_dir"`
	ReportInterval int    `mapstructure:"report_interval"` // seconds between reports
}

// BroadcastConfig contains webhook delivery settings.
type BroadcastConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Enabled    bool   `mapstructure:"enabled"`
	SendDelay  int    `mapstructure:"send_delay"` // milliseconds between sends
}

// MetricsConfig contains Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/fanfund-tracker/")
	}

	// Bind specific environment variables (explicit bindings for 12-factor app compliance)
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.sqlite.path", "SQLITE_PATH")
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")

	_ = v.BindEnv("platforms.modian.account_id", "MODIAN_ACCOUNT_ID")
	_ = v.BindEnv("platforms.taoba.account", "TAOBA_ACCOUNT")
	_ = v.BindEnv("platforms.taoba.password", "TAOBA_PASSWORD")

	_ = v.BindEnv("broadcast.webhook_url", "BROADCAST_WEBHOOK_URL")
	_ = v.BindEnv("broadcast.channel", "BROADCAST_CHANNEL")
	_ = v.BindEnv("broadcast.enabled", "BROADCAST_ENABLED")

	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "fanfund.db")
	v.SetDefault("fund.request_timeout", 15)
	v.SetDefault("fund.max_concurrency", 4)
	v.SetDefault("fund.pattern",
		"感谢 {{.Nickname}} 支持了 {{printf \"%.2f\" .Amount}} 元！\n"+
			"《{{.Title}}》已筹集 {{printf \"%.2f\" .TotalAmount}} 元\n"+
			"当前个人累计 {{printf \"%.2f\" .UserAmount}} 元，排名第 {{.Ranking}} 位"+
			"{{if .AmountDistance}}，距离上一名还差 {{printf \"%.2f\" .AmountDistance}} 元{{end}}\n"+
			"共 {{.SupporterNum}} 人参与，人均 {{printf \"%.2f\" .AverageAmount}} 元\n"+
			"距离结束还有{{.TimeToEnd}}\n{{.Link}}")
	v.SetDefault("card.tiers", []string{"普通", "稀有", "史诗", "传说"})
	v.SetDefault("card.pattern",
		"{{.Nickname}} 抽中了一张{{.TierName}}卡片：{{.Name}}\n"+
			"{{.Description}}\n"+
			"该稀有度已收集 {{.OwnedCount}}/{{.TierTotal}} 张\n{{.Image}}")
	v.SetDefault("card.encouragement", "你提供的能量尚不足以推开物资库的大门, 再努把力吧！")
	v.SetDefault("pk.session_dir", "pk_sessions")
	v.SetDefault("pk.snapshot_dir", "pk_snapshots")
	v.SetDefault("metrics.path", "/metrics")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Broadcast.Enabled && c.Broadcast.WebhookURL == "" {
		return fmt.Errorf("broadcast.webhook_url is required when broadcast is enabled")
	}
	if c.Card.Threshold <= 0 {
		return fmt.Errorf("card.threshold must be positive")
	}
	if len(c.Card.Tiers) == 0 {
		return fmt.Errorf("at least one card tier name must be configured")
	}
	if c.PK.ReportInterval < 0 {
		return fmt.Errorf("pk.report_interval must not be negative")
	}
	return nil
}

// GetRequestTimeout returns the per-call timeout for platform requests.
func (c *FundConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetSendDelay returns the pause inserted between webhook sends.
func (c *BroadcastConfig) GetSendDelay() time.Duration {
	if c.SendDelay <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.SendDelay) * time.Millisecond
}

// TierName returns the display name for a card tier, or a numeric fallback.
func (c *CardConfig) TierName(tier int) string {
	if tier >= 0 && tier < len(c.Tiers) {
		return c.Tiers[tier]
	}
	return fmt.Sprintf("Tier %d", tier)
}
