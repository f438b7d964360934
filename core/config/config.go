package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// TokenKeyringAccount names the keychain entry used when Token is empty.
	TokenKeyringAccount string `yaml:"token_keyring_account" envconfig:"BOT_TOKEN_KEYRING_ACCOUNT"`
	RunMode             string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	// DebugSample keeps one of every N high-volume debug events; 0 or 1 keeps all.
	DebugSample int `yaml:"debug_sample" envconfig:"LOG_DEBUG_SAMPLE"`
	// File, when set, receives a copy of every line.
	File string `yaml:"file" envconfig:"LOG_FILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds anti-flood settings.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// BotConfig carries the moderated group properties.
type BotConfig struct {
	ChatID        int64  `yaml:"chat_id" envconfig:"BOT_CHAT_ID"`
	RulesFile     string `yaml:"rules_file" envconfig:"BOT_RULES_FILE"`
	GroupLink     string `yaml:"group_link" envconfig:"BOT_GROUP_LINK"`
	MediaIndexURL string `yaml:"media_index_url" envconfig:"BOT_MEDIA_INDEX_URL"`
	// MediaTimeoutMS bounds the media index fetch; 0 -> default
	MediaTimeoutMS int `yaml:"media_timeout_ms" envconfig:"BOT_MEDIA_TIMEOUT_MS"`
	// FeatureHour and FeatureMinute select the single wall-clock minute the media feature is open.
	FeatureHour   *int   `yaml:"feature_hour"`
	FeatureMinute *int   `yaml:"feature_minute"`
	Timezone      string `yaml:"timezone" envconfig:"BOT_TIMEZONE"`
}

// VerificationConfig describes the challenge shown to new members.
type VerificationConfig struct {
	Question      string   `yaml:"question"`
	CorrectAnswer string   `yaml:"correct_answer"`
	Decoys        []string `yaml:"decoys"`
}

// MessagesConfig holds user facing reply texts.
type MessagesConfig struct {
	Forbidden         string `yaml:"forbidden"`
	Welcome           string `yaml:"welcome"`
	Verified          string `yaml:"verified"`
	AlreadyVerified   string `yaml:"already_verified"`
	WrongAnswer       string `yaml:"wrong_answer"`
	AlreadyUsed       string `yaml:"already_used"`
	OutsideWindow     string `yaml:"outside_window"`
	RemoteUnavailable string `yaml:"remote_unavailable"`
	RulesMissing      string `yaml:"rules_missing"`
	RulesUpdated      string `yaml:"rules_updated"`
	RulesUsage        string `yaml:"rules_usage"`
	AdminsHeader      string `yaml:"admins_header"`
	HelpHeader        string `yaml:"help_header"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

const (
	// StorageMemory keeps verification and usage state in process memory.
	StorageMemory = "memory"
	// StoragePostgres persists state in PostgreSQL.
	StoragePostgres = "postgres"
	// StorageRedis persists state in Redis sets.
	StorageRedis = "redis"
)

// StorageConfig selects the state store backend.
type StorageConfig struct {
	Driver   string         `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}

// Config aggregates the whole bot configuration.
type Config struct {
	Telegram     TelegramConfig     `yaml:"telegram"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Logging      LoggingConfig      `yaml:"logging"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Bot          BotConfig          `yaml:"bot"`
	Verification VerificationConfig `yaml:"verification"`
	Messages     MessagesConfig     `yaml:"messages"`
	Storage      StorageConfig      `yaml:"storage"`
}

// CoreConfig satisfies the runner's ConfigCarrier contract.
func (c *Config) CoreConfig() *Config {
	return c
}

// Load reads configuration from a YAML (or JSON) file, .env and environment variables.
// A missing file is not an error: the configuration starts empty and is filled from the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env ignored: %v", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("config: file %s not found, using empty configuration", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if cfg.Telegram.Token == "" && cfg.Telegram.TokenKeyringAccount != "" {
		token, err := TokenFromKeyring(cfg.Telegram.TokenKeyringAccount)
		if err != nil {
			return nil, fmt.Errorf("failed to read token from keychain: %w", err)
		}
		cfg.Telegram.Token = token
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs validation of required configuration fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := normalizeBot(&cfg.Bot); err != nil {
		return err
	}
	if err := normalizeVerification(&cfg.Verification); err != nil {
		return err
	}
	normalizeMessages(&cfg.Messages)
	return normalizeStorage(&cfg.Storage)
}

func normalizeBot(b *BotConfig) error {
	if b.RulesFile == "" {
		b.RulesFile = "rules.txt"
	}
	if b.MediaTimeoutMS < 0 {
		return fmt.Errorf("bot.media_timeout_ms must be >= 0")
	}
	if b.MediaTimeoutMS == 0 {
		b.MediaTimeoutMS = 5000
	}
	if b.FeatureHour == nil {
		h := 21
		b.FeatureHour = &h
	}
	if b.FeatureMinute == nil {
		m := 37
		b.FeatureMinute = &m
	}
	if *b.FeatureHour < 0 || *b.FeatureHour > 23 {
		return fmt.Errorf("bot.feature_hour must be within 0..23, got %d", *b.FeatureHour)
	}
	if *b.FeatureMinute < 0 || *b.FeatureMinute > 59 {
		return fmt.Errorf("bot.feature_minute must be within 0..59, got %d", *b.FeatureMinute)
	}
	if _, err := b.Location(); err != nil {
		return fmt.Errorf("invalid bot.timezone %q: %w", b.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone, defaulting to the process local zone.
func (b BotConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(b.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// MediaTimeout returns the media index fetch timeout.
func (b BotConfig) MediaTimeout() time.Duration {
	return time.Duration(b.MediaTimeoutMS) * time.Millisecond
}

// DecoyCount is the number of wrong answers shown next to the correct one.
const DecoyCount = 3

func normalizeVerification(v *VerificationConfig) error {
	if strings.TrimSpace(v.Question) == "" {
		v.Question = "Welcome! Press the button with a fruit to unlock the chat."
	}
	if strings.TrimSpace(v.CorrectAnswer) == "" && len(v.Decoys) == 0 {
		v.CorrectAnswer = "🍎 Apple"
		v.Decoys = []string{"🚗 Car", "🔨 Hammer", "🧱 Brick"}
	}
	if strings.TrimSpace(v.CorrectAnswer) == "" {
		return fmt.Errorf("verification.correct_answer is required")
	}
	if len(v.Decoys) != DecoyCount {
		return fmt.Errorf("verification.decoys must contain exactly %d answers, got %d", DecoyCount, len(v.Decoys))
	}
	for i, d := range v.Decoys {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("verification.decoys[%d] is empty", i)
		}
	}
	return nil
}

func normalizeMessages(m *MessagesConfig) {
	def := func(field *string, value string) {
		if strings.TrimSpace(*field) == "" {
			*field = value
		}
	}
	def(&m.Forbidden, "Sorry, this command is reserved for group administrators.")
	def(&m.Welcome, "Hi {name}!")
	def(&m.Verified, "Thanks, you can write now.")
	def(&m.AlreadyVerified, "You are already verified.")
	def(&m.WrongAnswer, "Wrong answer, try again.")
	def(&m.AlreadyUsed, "You already got your picture today.")
	def(&m.OutsideWindow, "Not now. Come back at the right minute.")
	def(&m.RemoteUnavailable, "The picture archive is unavailable right now, try again.")
	def(&m.RulesMissing, "Rules are not set yet.")
	def(&m.RulesUpdated, "Rules updated.")
	def(&m.RulesUsage, "Usage: /update_rules <new rules text>")
	def(&m.AdminsHeader, "Administrators:")
	def(&m.HelpHeader, "Available commands:")
}

func normalizeStorage(s *StorageConfig) error {
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	if driver == "" {
		driver = StorageMemory
	}
	switch driver {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(s.Database.Host) == "" || strings.TrimSpace(s.Database.Name) == "" {
			return fmt.Errorf("storage.database.host and storage.database.name are required for the postgres driver")
		}
		if s.Database.Port == "" {
			s.Database.Port = "5432"
		}
		if s.Database.SSLMode == "" {
			s.Database.SSLMode = "disable"
		}
		if s.Database.MaxConnections <= 0 {
			s.Database.MaxConnections = 5
		}
		if s.Database.MigrationsDir == "" {
			s.Database.MigrationsDir = "migrations"
		}
	case StorageRedis:
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
		if s.Redis.Prefix == "" {
			s.Redis.Prefix = "gatekeeper:"
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: memory, postgres, redis", s.Driver)
	}
	s.Driver = driver
	return nil
}
