package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Remote     RemoteConfig     `yaml:"remote"`
	Readiness  ReadinessConfig  `yaml:"readiness"`
	Storage    StorageConfig    `yaml:"storage"`
	Reminders  ReminderConfig   `yaml:"reminders"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Push       PushConfig       `yaml:"push"`
	FCM        FCMConfig        `yaml:"fcm"`
	Desktop    DesktopConfig    `yaml:"desktop"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the local UI server configuration.
type ServerConfig struct {
	Addr            string  `yaml:"addr"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// RemoteConfig describes how to reach the backend service.
type RemoteConfig struct {
	// Backend is either "rest" or "postgres".
	Backend     string `yaml:"backend"`
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	DSN         string `yaml:"dsn"`
	AccessToken string `yaml:"access_token"`
	JWTSecret   string `yaml:"jwt_secret"`
	Timezone    string `yaml:"timezone"`
	HTTPProxy   string `yaml:"http_proxy"`
}

// ReadinessConfig bounds the service readiness polling.
type ReadinessConfig struct {
	PollIntervalMs int           `yaml:"poll_interval_ms"`
	MaxAttempts    int           `yaml:"max_attempts"`
	PollInterval   time.Duration `yaml:"-"`
}

// StorageConfig configures the per-profile local storage.
type StorageConfig struct {
	// Path of the SQLite profile database. Empty selects in-memory storage.
	Path      string `yaml:"path"`
	KeyPrefix string `yaml:"key_prefix"`
	// UseKeyring stores the session token in the system keyring.
	UseKeyring bool   `yaml:"use_keyring"`
	KeyringDir string `yaml:"keyring_dir"`
}

// ReminderConfig configures the local reminder scheduler.
type ReminderConfig struct {
	Offsets         []string      `yaml:"offsets"`
	TickSeconds     int           `yaml:"tick_seconds"`
	RetentionHours  int           `yaml:"retention_hours"`
	ToastTTLSeconds int           `yaml:"toast_ttl_seconds"`
	TickInterval    time.Duration `yaml:"-"`
	Retention       time.Duration `yaml:"-"`
}

// RealtimeConfig selects the realtime transport.
type RealtimeConfig struct {
	// Transport is either "hub" or "pubsub".
	Transport              string `yaml:"transport"`
	ProjectID              string `yaml:"project_id"`
	SubscriptionPrefix     string `yaml:"subscription_prefix"`
	CredentialsFile        string `yaml:"credentials_file"`
	FallbackRefreshSeconds int    `yaml:"fallback_refresh_seconds"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// FCMConfig enables Firebase Cloud Messaging delivery.
type FCMConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
}

// DesktopConfig enables freedesktop notifications over D-Bus.
type DesktopConfig struct {
	Enabled bool   `yaml:"enabled"`
	AppName string `yaml:"app_name"`
}

// WorkerPoolConfig holds the configuration for the delivery worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path. Values from a .env file
// and the process environment override secrets in the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyEnv() {
	overrides := map[string]*string{
		"PORTAL_ACCESS_TOKEN":      &cfg.Remote.AccessToken,
		"PORTAL_API_KEY":           &cfg.Remote.APIKey,
		"PORTAL_DSN":               &cfg.Remote.DSN,
		"PORTAL_JWT_SECRET":        &cfg.Remote.JWTSecret,
		"PORTAL_VAPID_PRIVATE_KEY": &cfg.Push.PrivateKey,
		"PORTAL_VAPID_PUBLIC_KEY":  &cfg.Push.PublicKey,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8686"
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "INFO"
	}
	if cfg.Remote.Backend == "" {
		cfg.Remote.Backend = "rest"
	}
	if cfg.Remote.Timezone == "" {
		cfg.Remote.Timezone = "UTC"
	}

	if cfg.Readiness.PollIntervalMs <= 0 {
		cfg.Readiness.PollIntervalMs = 500
	}
	if cfg.Readiness.MaxAttempts <= 0 {
		cfg.Readiness.MaxAttempts = 20
	}
	cfg.Readiness.PollInterval = time.Duration(cfg.Readiness.PollIntervalMs) * time.Millisecond

	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = "portal:"
	}

	if len(cfg.Reminders.Offsets) == 0 {
		cfg.Reminders.Offsets = []string{"7d", "1d", "2h"}
	}
	if cfg.Reminders.TickSeconds <= 0 {
		cfg.Reminders.TickSeconds = 60
	}
	cfg.Reminders.TickInterval = time.Duration(cfg.Reminders.TickSeconds) * time.Second
	if cfg.Reminders.RetentionHours <= 0 {
		cfg.Reminders.RetentionHours = 24 * 30
	}
	cfg.Reminders.Retention = time.Duration(cfg.Reminders.RetentionHours) * time.Hour
	if cfg.Reminders.ToastTTLSeconds <= 0 {
		cfg.Reminders.ToastTTLSeconds = 10
	}

	if cfg.Realtime.Transport == "" {
		cfg.Realtime.Transport = "hub"
	}
	if cfg.Realtime.SubscriptionPrefix == "" {
		cfg.Realtime.SubscriptionPrefix = "portal-"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Desktop.AppName == "" {
		cfg.Desktop.AppName = "Community Portal"
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("[WARN] worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}

// Location returns the organization timezone, falling back to UTC.
func (cfg *Config) Location() *time.Location {
	loc, err := time.LoadLocation(cfg.Remote.Timezone)
	if err != nil {
		log.Printf("[WARN] invalid timezone %q: %v; using UTC", cfg.Remote.Timezone, err)
		return time.UTC
	}
	return loc
}
