package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHTTPListen          = ":8080"
	defaultHealthPath          = "/healthz"
	defaultReadyPath           = "/readyz"
	defaultMetricsPath         = "/metrics"
	defaultMaxBodyBytes        = 1 << 20
	defaultReminderIntervalMin = 120
	defaultSnoozeHours         = 24
	defaultMaxSnoozeHours      = 168
	defaultFeedSize            = 100
	defaultNATSURL             = "nats://127.0.0.1:4222"
	defaultAlertBucket         = "alerts"
	defaultRecipientBucket     = "recipients"
	defaultPreferenceBucket    = "prefs"
	defaultDeliveryBucket      = "deliveries"
	defaultFeedSubjectPrefix   = "alertcenter.feed"
	defaultTelegramAPIBase     = "https://api.telegram.org"

	// ServiceModeSingle keeps everything in process memory.
	ServiceModeSingle = "single"
	// ServiceModeNATS keeps durable state in JetStream KV buckets.
	ServiceModeNATS = "nats"
)

// Config holds service runtime settings and the seeded recipient directory.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Log       LogConfig       `toml:"log"`
	HTTP      HTTPConfig      `toml:"http"`
	Store     StoreConfig     `toml:"store"`
	Channel   ChannelConfig   `toml:"channel"`
	Recipient []RecipientSeed `toml:"-"`
}

// rawConfig mirrors the TOML model before runtime normalization.
// Params: decoded sections plus recipient map keyed by user id.
// Returns: raw snapshot used for normalization.
type rawConfig struct {
	Service   ServiceConfig               `toml:"service"`
	Log       LogConfig                   `toml:"log"`
	HTTP      HTTPConfig                  `toml:"http"`
	Store     StoreConfig                 `toml:"store"`
	Channel   ChannelConfig               `toml:"channel"`
	Recipient map[string]rawRecipientSeed `toml:"recipient"`
}

// rawRecipientSeed stores one `[recipient.<id>]` table body.
// Params: recipient fields except the key-derived id.
// Returns: intermediate seed used for normalization.
type rawRecipientSeed struct {
	Team           string `toml:"team"`
	Role           string `toml:"role"`
	Email          string `toml:"email"`
	Phone          string `toml:"phone"`
	TelegramChatID string `toml:"telegram_chat_id"`
}

// ServiceConfig contains process-level settings.
// Params: name, store mode, reminder cadence, and snooze policy.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name                string `toml:"name"`
	Mode                string `toml:"mode"`
	ReminderIntervalMin int    `toml:"reminder_interval_min"`
	DefaultSnoozeHours  int    `toml:"default_snooze_hours"`
	MaxSnoozeHours      int    `toml:"max_snooze_hours"`
	SchedulerDisabled   bool   `toml:"scheduler_disabled"`
}

// ReminderInterval returns the reminder cadence as a duration.
// Params: none.
// Returns: configured interval in minutes.
func (s ServiceConfig) ReminderInterval() time.Duration {
	return time.Duration(s.ReminderIntervalMin) * time.Minute
}

// HTTPConfig configures the admin HTTP surface.
// Params: listen address, probe paths, and body size limit.
// Returns: HTTP server behavior.
type HTTPConfig struct {
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	MetricsPath  string `toml:"metrics_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// StoreConfig selects the persistence backend.
// Params: embedded NATS KV settings used in nats mode.
// Returns: store backend options.
type StoreConfig struct {
	NATS NATSStoreConfig `toml:"nats"`
}

// NATSStoreConfig contains JetStream KV bucket settings.
// Params: server URLs, bucket names, and auto-create toggle.
// Returns: NATS backend options.
type NATSStoreConfig struct {
	URL                []string `toml:"url"`
	AlertBucket        string   `toml:"alert_bucket"`
	RecipientBucket    string   `toml:"recipient_bucket"`
	PreferenceBucket   string   `toml:"preference_bucket"`
	DeliveryBucket     string   `toml:"delivery_bucket"`
	AllowCreateBuckets bool     `toml:"allow_create_buckets"`
}

// ChannelConfig defines the delivery channel set.
// Params: per-channel transport settings; registration order is fixed in code.
// Returns: channel controls.
type ChannelConfig struct {
	InApp    InAppChannelConfig    `toml:"inapp"`
	Email    EmailChannelConfig    `toml:"email"`
	SMS      SMSChannelConfig      `toml:"sms"`
	Telegram TelegramChannelConfig `toml:"telegram"`
}

// RetryConfig configures bounded delivery retries inside one channel attempt.
// Params: retry toggle, backoff mode, and attempt limits.
// Returns: retry policy for channel senders.
type RetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	Backoff     string `toml:"backoff"`
	InitialMS   int    `toml:"initial_ms"`
	MaxMS       int    `toml:"max_ms"`
	MaxAttempts int    `toml:"max_attempts"`
}

// InAppChannelConfig defines the in-process feed channel.
// Params: enable flag, per-user feed size, and optional NATS mirror subject prefix.
// Returns: in-app channel settings.
type InAppChannelConfig struct {
	Enabled           bool   `toml:"enabled"`
	FeedSize          int    `toml:"feed_size"`
	MirrorSubjectBase string `toml:"mirror_subject_base"`
}

// EmailChannelConfig defines the email channel stub.
// Params: enable flag and sender identity.
// Returns: email channel settings.
type EmailChannelConfig struct {
	Enabled bool        `toml:"enabled"`
	From    string      `toml:"from"`
	Retry   RetryConfig `toml:"retry"`
}

// SMSChannelConfig defines the SMS channel stub.
// Params: enable flag and sender identity.
// Returns: SMS channel settings.
type SMSChannelConfig struct {
	Enabled  bool        `toml:"enabled"`
	SenderID string      `toml:"sender_id"`
	Retry    RetryConfig `toml:"retry"`
}

// TelegramChannelConfig defines the Telegram bot channel.
// Params: enable flag, bot token, API base URL, and retry policy.
// Returns: Telegram channel settings.
type TelegramChannelConfig struct {
	Enabled  bool        `toml:"enabled"`
	BotToken string      `toml:"bot_token"`
	APIBase  string      `toml:"api_base"`
	Retry    RetryConfig `toml:"retry"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// RecipientSeed stores one recipient from the `[recipient.<id>]` directory.
// Params: key-derived id plus addressing fields.
// Returns: seed loaded into the store at startup.
type RecipientSeed struct {
	ID             string
	Team           string
	Role           string
	Email          string
	Phone          string
	TelegramChatID string
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var raw rawConfig
	var err error
	if src.File != "" {
		err = decodeFile(src.File, &raw)
	} else {
		err = decodeDir(src.Dir, &raw)
	}
	if err != nil {
		return Config{}, err
	}
	cfg := normalizeRawConfig(raw)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeFile reads one TOML configuration file into the raw snapshot.
// Params: file path and mutable raw config destination.
// Returns: read or decode error.
func decodeFile(path string, raw *rawConfig) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := toml.Unmarshal(body, raw); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}
	return nil
}

// decodeDir merges sorted *.toml fragments from one directory.
// Params: directory path and mutable raw config destination.
// Returns: read or decode error; later fragments override earlier ones.
func decodeDir(dir string, raw *rawConfig) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read config dir %q: %w", dir, err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	if len(paths) == 0 {
		return fmt.Errorf("config dir %q contains no *.toml files", dir)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if err := decodeFile(path, raw); err != nil {
			return err
		}
	}
	return nil
}

// normalizeRawConfig converts the raw TOML model into runtime config.
// Params: decoded raw snapshot.
// Returns: config with recipient tables flattened into a sorted slice.
func normalizeRawConfig(raw rawConfig) Config {
	cfg := Config{
		Service: raw.Service,
		Log:     raw.Log,
		HTTP:    raw.HTTP,
		Store:   raw.Store,
		Channel: raw.Channel,
	}
	if len(raw.Recipient) == 0 {
		return cfg
	}
	ids := make([]string, 0, len(raw.Recipient))
	for id := range raw.Recipient {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	cfg.Recipient = make([]RecipientSeed, 0, len(ids))
	for _, id := range ids {
		body := raw.Recipient[id]
		cfg.Recipient = append(cfg.Recipient, RecipientSeed{
			ID:             id,
			Team:           body.Team,
			Role:           body.Role,
			Email:          body.Email,
			Phone:          body.Phone,
			TelegramChatID: body.TelegramChatID,
		})
	}
	return cfg
}

// applyDefaults fills absent settings with runtime defaults.
// Params: mutable config snapshot.
// Returns: config mutated in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = "alertcenter"
	}
	if strings.TrimSpace(cfg.Service.Mode) == "" {
		cfg.Service.Mode = ServiceModeSingle
	}
	if cfg.Service.ReminderIntervalMin <= 0 {
		cfg.Service.ReminderIntervalMin = defaultReminderIntervalMin
	}
	if cfg.Service.DefaultSnoozeHours <= 0 {
		cfg.Service.DefaultSnoozeHours = defaultSnoozeHours
	}
	if cfg.Service.MaxSnoozeHours <= 0 {
		cfg.Service.MaxSnoozeHours = defaultMaxSnoozeHours
	}

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.HTTP.HealthPath) == "" {
		cfg.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.HTTP.ReadyPath) == "" {
		cfg.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.HTTP.MetricsPath) == "" {
		cfg.HTTP.MetricsPath = defaultMetricsPath
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	}

	if len(cfg.Store.NATS.URL) == 0 {
		cfg.Store.NATS.URL = []string{defaultNATSURL}
	}
	if strings.TrimSpace(cfg.Store.NATS.AlertBucket) == "" {
		cfg.Store.NATS.AlertBucket = defaultAlertBucket
	}
	if strings.TrimSpace(cfg.Store.NATS.RecipientBucket) == "" {
		cfg.Store.NATS.RecipientBucket = defaultRecipientBucket
	}
	if strings.TrimSpace(cfg.Store.NATS.PreferenceBucket) == "" {
		cfg.Store.NATS.PreferenceBucket = defaultPreferenceBucket
	}
	if strings.TrimSpace(cfg.Store.NATS.DeliveryBucket) == "" {
		cfg.Store.NATS.DeliveryBucket = defaultDeliveryBucket
	}

	if cfg.Channel.InApp.FeedSize <= 0 {
		cfg.Channel.InApp.FeedSize = defaultFeedSize
	}
	if strings.TrimSpace(cfg.Channel.InApp.MirrorSubjectBase) == "" {
		cfg.Channel.InApp.MirrorSubjectBase = defaultFeedSubjectPrefix
	}
	if strings.TrimSpace(cfg.Channel.Telegram.APIBase) == "" {
		cfg.Channel.Telegram.APIBase = defaultTelegramAPIBase
	}

	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console = LogSinkConfig{Enabled: true, Level: "info", Format: "line"}
	}
}

// NormalizeServiceMode canonicalizes service mode value.
// Params: raw mode string.
// Returns: lower-cased trimmed mode.
func NormalizeServiceMode(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// validateConfig checks cross-field invariants after defaults.
// Params: config snapshot.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	switch NormalizeServiceMode(cfg.Service.Mode) {
	case ServiceModeSingle, ServiceModeNATS:
	default:
		return fmt.Errorf("service.mode %q is not supported (use %q or %q)", cfg.Service.Mode, ServiceModeSingle, ServiceModeNATS)
	}
	if cfg.Service.MaxSnoozeHours < cfg.Service.DefaultSnoozeHours {
		return fmt.Errorf("service.max_snooze_hours (%d) must not be below default_snooze_hours (%d)",
			cfg.Service.MaxSnoozeHours, cfg.Service.DefaultSnoozeHours)
	}
	if cfg.Channel.Telegram.Enabled {
		if strings.TrimSpace(cfg.Channel.Telegram.BotToken) == "" {
			return errors.New("channel.telegram.bot_token is required when telegram channel is enabled")
		}
	}
	if cfg.Channel.Email.Enabled && strings.TrimSpace(cfg.Channel.Email.From) == "" {
		return errors.New("channel.email.from is required when email channel is enabled")
	}
	for _, seed := range cfg.Recipient {
		if strings.TrimSpace(seed.ID) == "" {
			return errors.New("recipient table key must be a non-empty user id")
		}
	}
	return nil
}
