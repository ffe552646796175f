package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/infra/adapters/providers"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type AdminConfig struct {
	APIKey    string        `yaml:"api_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type ProvidersConfig struct {
	Default     string                      `yaml:"default"`
	MercadoPago providers.MercadoPagoConfig `yaml:"mercadopago"`
	PushinPay   providers.PushinPayConfig   `yaml:"pushinpay"`
	Efi         providers.EfiConfig         `yaml:"efi"`
	Stripe      providers.StripeConfig      `yaml:"stripe"`
}

type ReconcilerConfig struct {
	// PollInterval is how often the stale-session poller wakes up.
	PollInterval time.Duration `yaml:"poll_interval"`
	// StaleAfter is the session age before the poller asks the provider
	// for the current status.
	StaleAfter time.Duration `yaml:"stale_after"`
	// SessionExpiry is the pending age after which the sweep marks a
	// session expired.
	SessionExpiry time.Duration `yaml:"session_expiry"`
	// DeadLetterInterval is the retry worker cadence.
	DeadLetterInterval time.Duration `yaml:"dead_letter_interval"`
	// DeadLetterMaxAttempts caps retries per parked event.
	DeadLetterMaxAttempts int `yaml:"dead_letter_max_attempts"`
	BatchSize             int `yaml:"batch_size"`
}

type CPAConfig struct {
	PostbackURL string        `yaml:"postback_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Admin      AdminConfig      `yaml:"admin"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	CPA        CPAConfig        `yaml:"cpa"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = time.Hour
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Providers.Default == "" {
		cfg.Providers.Default = model.ProviderMercadoPago
	}
	if cfg.Reconciler.PollInterval <= 0 {
		cfg.Reconciler.PollInterval = 2 * time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 5 * time.Minute
	}
	if cfg.Reconciler.SessionExpiry <= 0 {
		cfg.Reconciler.SessionExpiry = 24 * time.Hour
	}
	if cfg.Reconciler.DeadLetterInterval <= 0 {
		cfg.Reconciler.DeadLetterInterval = time.Minute
	}
	if cfg.Reconciler.DeadLetterMaxAttempts <= 0 {
		cfg.Reconciler.DeadLetterMaxAttempts = 10
	}
	if cfg.Reconciler.BatchSize <= 0 {
		cfg.Reconciler.BatchSize = 100
	}
	if cfg.CPA.Timeout <= 0 {
		cfg.CPA.Timeout = 10 * time.Second
	}
}

func (cfg *Config) validate() error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if !model.KnownProvider(cfg.Providers.Default) {
		return fmt.Errorf("providers.default %q is not a known provider", cfg.Providers.Default)
	}
	if cfg.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret is required")
	}
	if cfg.Admin.APIKey == "" {
		return errors.New("admin.api_key is required")
	}
	return nil
}
