package ratelimit

import (
	"strings"
	"time"

	"github.com/router-for-me/CreditLedger/internal/config"
)

// SettingsConfig captures the effective rate limit settings.
type SettingsConfig struct {
	Limit         int
	Window        time.Duration
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// SettingsFromConfig converts the order rate limit section of the service config.
func SettingsFromConfig(cfg config.RateLimitConfig) SettingsConfig {
	out := SettingsConfig{
		Limit:         cfg.OrderLimit,
		Window:        cfg.OrderWindow,
		RedisEnabled:  cfg.RedisEnabled,
		RedisAddr:     strings.TrimSpace(cfg.RedisAddr),
		RedisPassword: strings.TrimSpace(cfg.RedisPassword),
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   strings.TrimSpace(cfg.RedisPrefix),
	}
	if out.RedisPrefix == "" {
		out.RedisPrefix = config.DefaultRateLimitPrefix
	}
	if out.Window <= 0 {
		out.Window = config.DefaultOrderWindow
	}
	if out.RedisDB < 0 {
		out.RedisDB = 0
	}
	if out.Limit < 0 {
		out.Limit = 0
	}
	return out
}

// StaticSettings returns a provider that always yields the converted cfg.
func StaticSettings(cfg config.RateLimitConfig) SettingsProvider {
	settings := SettingsFromConfig(cfg)
	return func() SettingsConfig { return settings }
}
