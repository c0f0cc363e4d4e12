package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/rewired-gh/pricewatch/internal/settings"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Feed     FeedConfig     `mapstructure:"feed"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	API      APIConfig      `mapstructure:"api"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// FeedConfig holds the Upbit websocket connection settings
type FeedConfig struct {
	URL                string        `mapstructure:"url"`
	HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	PingInterval       time.Duration `mapstructure:"ping_interval"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	BackoffMax         time.Duration `mapstructure:"backoff_max"`
	BackoffCapExponent int           `mapstructure:"backoff_cap_exponent"`
}

// WatchConfig holds the startup watch parameters. Settings persisted by the
// status/set commands take precedence over these.
type WatchConfig struct {
	Market   string `mapstructure:"market"`
	Average  string `mapstructure:"average"`
	UpPct    string `mapstructure:"up_pct"`   // "off" disables
	DownPct  string `mapstructure:"down_pct"` // "off" disables
	Cooldown string `mapstructure:"cooldown"` // minutes, or a duration such as "90s"
}

// DiscordConfig holds the alert webhook configuration
type DiscordConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Username   string        `mapstructure:"username"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// TelegramConfig holds the Telegram bot configuration
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
	Alerts   bool   `mapstructure:"alerts"` // also deliver alerts to the chat
}

// KafkaConfig holds the optional alert publisher configuration
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// NotifierConfig holds alert delivery tuning
type NotifierConfig struct {
	QueueSize   int           `mapstructure:"queue_size"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	Burst       int           `mapstructure:"burst"`
}

// APIConfig holds the admin HTTP API configuration
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath    string `mapstructure:"db_path"`
	MaxAlerts int    `mapstructure:"max_alerts"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv maps config keys to the plain environment names accepted alongside
// the PRICEWATCH_ prefixed ones.
var legacyEnv = map[string]string{
	"watch.market":        "MARKET",
	"watch.average":       "AVERAGE",
	"watch.up_pct":        "UP_PCT",
	"watch.down_pct":      "DOWN_PCT",
	"watch.cooldown":      "COOLDOWN_MIN",
	"discord.webhook_url": "DISCORD_WEBHOOK",
}

// Load reads configuration from an optional file and environment variables.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "PRICEWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	// Read config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Feed defaults
	v.SetDefault("feed.url", "wss://api.upbit.com/websocket/v1")
	v.SetDefault("feed.handshake_timeout", "10s")
	v.SetDefault("feed.read_timeout", "60s")
	v.SetDefault("feed.ping_interval", "30s")
	v.SetDefault("feed.backoff_base", "1s")
	v.SetDefault("feed.backoff_max", "30s")
	v.SetDefault("feed.backoff_cap_exponent", 5)

	// Watch defaults
	v.SetDefault("watch.market", "KRW-BTC")
	v.SetDefault("watch.average", "98000000")
	v.SetDefault("watch.up_pct", "2")
	v.SetDefault("watch.down_pct", "-1")
	v.SetDefault("watch.cooldown", "5")

	// Sink defaults
	v.SetDefault("discord.webhook_url", "")
	v.SetDefault("discord.username", "")
	v.SetDefault("discord.timeout", "10s")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.alerts", false)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "price-alerts")

	// Notifier defaults
	v.SetDefault("notifier.queue_size", 64)
	v.SetDefault("notifier.send_timeout", "10s")
	v.SetDefault("notifier.min_interval", "1s")
	v.SetDefault("notifier.burst", 5)

	// API defaults
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.addr", "127.0.0.1:8080")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/pricewatch.db")
	v.SetDefault("storage.max_alerts", 1000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Feed config
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if err := requireScheme(c.Feed.URL, "ws", "wss"); err != nil {
		return fmt.Errorf("feed.url: %w", err)
	}
	if c.Feed.BackoffBase <= 0 {
		return fmt.Errorf("feed.backoff_base must be positive")
	}
	if c.Feed.BackoffMax < c.Feed.BackoffBase {
		return fmt.Errorf("feed.backoff_max must not be less than feed.backoff_base")
	}
	if c.Feed.BackoffCapExponent < 0 {
		return fmt.Errorf("feed.backoff_cap_exponent must not be negative")
	}
	if c.Feed.ReadTimeout < 0 || c.Feed.PingInterval < 0 {
		return fmt.Errorf("feed timeouts must not be negative")
	}

	// Validate Watch config
	if _, err := c.WatchDefaults(); err != nil {
		return err
	}

	// Validate Discord config
	if c.Discord.WebhookURL == "" {
		return fmt.Errorf("discord.webhook_url is required")
	}
	if err := requireScheme(c.Discord.WebhookURL, "http", "https"); err != nil {
		return fmt.Errorf("discord.webhook_url: %w", err)
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Kafka config
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}

	// Validate Notifier config
	if c.Notifier.QueueSize < 1 {
		return fmt.Errorf("notifier.queue_size must be at least 1")
	}
	if c.Notifier.SendTimeout <= 0 {
		return fmt.Errorf("notifier.send_timeout must be positive")
	}

	// Validate API config
	if c.API.Enabled && c.API.Addr == "" {
		return fmt.Errorf("api.addr is required when the api is enabled")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxAlerts < 0 {
		return fmt.Errorf("storage.max_alerts must not be negative")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// WatchDefaults parses the watch section into a validated WatchConfig.
func (c *Config) WatchDefaults() (models.WatchConfig, error) {
	p, err := settings.ParseFields(map[string]string{
		settings.KeyMarket:   c.Watch.Market,
		settings.KeyAverage:  c.Watch.Average,
		settings.KeyUp:       c.Watch.UpPct,
		settings.KeyDown:     c.Watch.DownPct,
		settings.KeyCooldown: c.Watch.Cooldown,
	})
	if err != nil {
		return models.WatchConfig{}, fmt.Errorf("watch: %w", err)
	}
	cfg := p.ApplyTo(models.WatchConfig{})
	if err := cfg.Validate(); err != nil {
		return models.WatchConfig{}, fmt.Errorf("watch: %w", err)
	}
	return cfg, nil
}

func requireScheme(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("expected %s URL, got %q", strings.Join(schemes, " or "), raw)
}
