package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port         int    `yaml:"port"`
	PublicOrigin string `yaml:"public_origin"` // e.g. https://shop.example.jp, base of provider return URLs
	ReturnPath   string `yaml:"return_path"`   // e.g. /api/v1/payments/return
	Language     string `yaml:"language"`      // message catalog for user-facing errors
	PlansPath    string `yaml:"plans_path"`    // storefront page offering other providers after a failure

	InitiatePerMinute int           `yaml:"initiate_per_minute"` // per user; 0 disables
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	CookieName string `yaml:"cookie_name"`
}

type SessionConfig struct {
	Secret        string        `yaml:"secret"`
	CookieName    string        `yaml:"cookie_name"`
	CookieDomain  string        `yaml:"cookie_domain"`
	Secure        bool          `yaml:"secure"`
	TTL           time.Duration `yaml:"ttl"`
	KDFIterations int           `yaml:"kdf_iterations"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type ProviderConfig struct {
	BaseURL       string `yaml:"base_url"`
	MerchantID    string `yaml:"merchant_id"`
	APIKey        string `yaml:"api_key"`
	WebhookSecret string `yaml:"webhook_secret"` // card vault only
}

type PaymentConfig struct {
	InitiationTimeout time.Duration `yaml:"initiation_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	PollDeadline      time.Duration `yaml:"poll_deadline"`
	CommitDelay       time.Duration `yaml:"commit_delay"`
	IntentTTL         time.Duration `yaml:"intent_ttl"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`

	Card           ProviderConfig `yaml:"card"`
	WalletRedirect ProviderConfig `yaml:"wallet_redirect"`
	WalletQR       ProviderConfig `yaml:"wallet_qr"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Session  SessionConfig  `yaml:"session"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Backend  BackendConfig  `yaml:"backend"`
	Payment  PaymentConfig  `yaml:"payment"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse is LoadConfig without the file system.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReturnPath == "" {
		c.HTTP.ReturnPath = "/api/v1/payments/return"
	}
	if c.HTTP.Language == "" {
		c.HTTP.Language = "ja"
	}
	if c.HTTP.PlansPath == "" {
		c.HTTP.PlansPath = "/plans"
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	c.HTTP.PublicOrigin = strings.TrimRight(c.HTTP.PublicOrigin, "/")
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "auth_token"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "reg_sess"
	}
	c.Session.TTL = orDefault(c.Session.TTL, 30*time.Minute)
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "payments"
	}
	c.Backend.Timeout = orDefault(c.Backend.Timeout, 10*time.Second)

	p := &c.Payment
	p.InitiationTimeout = orDefault(p.InitiationTimeout, 20*time.Second)
	p.PollInterval = orDefault(p.PollInterval, 5*time.Second)
	p.PollDeadline = orDefault(p.PollDeadline, 10*time.Minute)
	p.CommitDelay = orDefault(p.CommitDelay, 2*time.Second)
	p.IntentTTL = orDefault(p.IntentTTL, 30*time.Minute)
	p.SweepInterval = orDefault(p.SweepInterval, time.Minute)
}

func (c *Config) validate() error {
	// Minimal validation
	if len(c.Session.Secret) < 16 {
		return errors.New("session.secret is required (>= 16 bytes)")
	}
	if c.HTTP.PublicOrigin == "" {
		return errors.New("http.public_origin is required")
	}
	// the intent ledger has no in-memory stand-in
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Runtime.Dev {
		return nil
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Payment.Card.BaseURL != "" && c.Payment.Card.WebhookSecret == "" {
		return errors.New("payment.card.webhook_secret is required when the card vault is enabled")
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
