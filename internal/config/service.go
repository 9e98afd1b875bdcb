package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Gateway modes.
const (
	GatewayModeRazorpay = "razorpay"
	GatewayModeSandbox  = "sandbox"
)

// Defaults applied when the config file omits a value.
const (
	DefaultPort                = 8318
	DefaultGatewayBaseURL      = "https://api.razorpay.com"
	DefaultGatewayTimeout      = 10 * time.Second
	DefaultSignatureHeader     = "X-Razorpay-Signature"
	DefaultInitialCredits      = 2
	DefaultOrderLimit          = 10
	DefaultOrderWindow         = 10 * time.Minute
	DefaultRateLimitPrefix     = "creditledger:rl"
	DefaultAuditInterval       = 10 * time.Minute
	DefaultAuditPendingTimeout = 24 * time.Hour
)

// GatewayConfig configures the payment processor client.
type GatewayConfig struct {
	Mode      string        `yaml:"mode"`
	BaseURL   string        `yaml:"base-url"`
	KeyID     string        `yaml:"key-id"`
	KeySecret string        `yaml:"key-secret"`
	Timeout   time.Duration `yaml:"timeout"`
}

// WebhookConfig configures notification verification.
type WebhookConfig struct {
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature-header"`
}

// AccountsConfig configures account provisioning.
type AccountsConfig struct {
	InitialCredits int64 `yaml:"initial-credits"`
}

// RateLimitConfig configures order-creation throttling.
type RateLimitConfig struct {
	OrderLimit    int           `yaml:"order-limit"`
	OrderWindow   time.Duration `yaml:"order-window"`
	RedisEnabled  bool          `yaml:"redis-enabled"`
	RedisAddr     string        `yaml:"redis-addr"`
	RedisPassword string        `yaml:"redis-password"`
	RedisDB       int           `yaml:"redis-db"`
	RedisPrefix   string        `yaml:"redis-prefix"`
}

// AuditConfig configures the stale pending transaction sweeper.
type AuditConfig struct {
	Interval         time.Duration `yaml:"interval"`
	PendingThreshold time.Duration `yaml:"pending-threshold"`
}

// ServiceConfig holds everything except the database DSN and JWT settings.
type ServiceConfig struct {
	Port      int             `yaml:"port"`
	LogLevel  string          `yaml:"log-level"`
	LogFormat string          `yaml:"log-format"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Accounts  AccountsConfig  `yaml:"accounts"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
	Audit     AuditConfig     `yaml:"audit"`
}

// Env overrides for service secrets and the shared rate limit store.
const (
	EnvGatewayKeyID     = "GATEWAY_KEY_ID"
	EnvGatewayKeySecret = "GATEWAY_KEY_SECRET"
	EnvWebhookSecret    = "WEBHOOK_SECRET"
	EnvRedisAddr        = "RATE_LIMIT_REDIS_ADDR"
)

// LoadServiceConfig loads service settings from the YAML config file and env.
// A missing file yields defaults so env-only deployments work.
func LoadServiceConfig(configPath string) (ServiceConfig, error) {
	doc, _, err := readDocument(configPath)
	if err != nil {
		return ServiceConfig{}, err
	}
	return doc.service()
}

func (d document) service() (ServiceConfig, error) {
	cfg := d.ServiceConfig
	if v := strings.TrimSpace(os.Getenv(EnvGatewayKeyID)); v != "" {
		cfg.Gateway.KeyID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvGatewayKeySecret)); v != "" {
		cfg.Gateway.KeySecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWebhookSecret)); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		cfg.RateLimit.RedisAddr = v
		cfg.RateLimit.RedisEnabled = true
	}

	applyServiceDefaults(&cfg)
	return cfg, validateServiceConfig(cfg)
}

func applyServiceDefaults(cfg *ServiceConfig) {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.Gateway.Mode = strings.ToLower(strings.TrimSpace(cfg.Gateway.Mode))
	if cfg.Gateway.Mode == "" {
		if cfg.Gateway.KeyID != "" {
			cfg.Gateway.Mode = GatewayModeRazorpay
		} else {
			cfg.Gateway.Mode = GatewayModeSandbox
		}
	}
	cfg.Gateway.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Gateway.BaseURL), "/")
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = DefaultGatewayBaseURL
	}
	if cfg.Gateway.Timeout <= 0 {
		cfg.Gateway.Timeout = DefaultGatewayTimeout
	}
	if strings.TrimSpace(cfg.Webhook.SignatureHeader) == "" {
		cfg.Webhook.SignatureHeader = DefaultSignatureHeader
	}
	if cfg.Accounts.InitialCredits < 0 {
		cfg.Accounts.InitialCredits = 0
	}
	if cfg.RateLimit.OrderLimit == 0 {
		cfg.RateLimit.OrderLimit = DefaultOrderLimit
	}
	if cfg.RateLimit.OrderLimit < 0 {
		cfg.RateLimit.OrderLimit = 0
	}
	if cfg.RateLimit.OrderWindow <= 0 {
		cfg.RateLimit.OrderWindow = DefaultOrderWindow
	}
	if strings.TrimSpace(cfg.RateLimit.RedisPrefix) == "" {
		cfg.RateLimit.RedisPrefix = DefaultRateLimitPrefix
	}
	if cfg.RateLimit.RedisDB < 0 {
		cfg.RateLimit.RedisDB = 0
	}
	if cfg.Audit.Interval <= 0 {
		cfg.Audit.Interval = DefaultAuditInterval
	}
	if cfg.Audit.PendingThreshold <= 0 {
		cfg.Audit.PendingThreshold = DefaultAuditPendingTimeout
	}
}

func validateServiceConfig(cfg ServiceConfig) error {
	switch cfg.Gateway.Mode {
	case GatewayModeSandbox:
	case GatewayModeRazorpay:
		if cfg.Gateway.KeyID == "" || cfg.Gateway.KeySecret == "" {
			return fmt.Errorf("gateway: key-id and key-secret are required in %s mode", cfg.Gateway.Mode)
		}
	default:
		return fmt.Errorf("gateway: unsupported mode %q", cfg.Gateway.Mode)
	}
	if strings.TrimSpace(cfg.Webhook.Secret) == "" {
		return fmt.Errorf("webhook: secret is required (set `webhook.secret` or %s)", EnvWebhookSecret)
	}
	if cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	return nil
}
