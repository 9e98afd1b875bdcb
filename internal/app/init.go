package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/router-for-me/CreditLedger/internal/config"
	"github.com/router-for-me/CreditLedger/internal/security"
	"gopkg.in/yaml.v3"
)

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "creditledger.db"

// buildSQLiteDSN constructs a SQLite DSN; db.Open adds the pragmas.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	return dsn
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Port        int          `yaml:"port"`
	DatabaseDSN string       `yaml:"database-dsn"`
	LogLevel    string       `yaml:"log-level"`
	JWT         jwtCfg       `yaml:"jwt"`
	Gateway     gatewayCfg   `yaml:"gateway"`
	Webhook     webhookCfg   `yaml:"webhook"`
	Accounts    accountsCfg  `yaml:"accounts"`
	RateLimit   rateLimitCfg `yaml:"rate-limit"`
}

type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

type gatewayCfg struct {
	Mode string `yaml:"mode"`
}

type webhookCfg struct {
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature-header"`
}

type accountsCfg struct {
	InitialCredits int64 `yaml:"initial-credits"`
}

type rateLimitCfg struct {
	OrderLimit  int    `yaml:"order-limit"`
	OrderWindow string `yaml:"order-window"`
}

// generateSecret creates a random secret string.
func generateSecret() (string, error) {
	return security.GenerateRandomString(32)
}

// WriteDefaultConfig writes a sandbox-mode config with fresh secrets.
// An empty dsn selects a local SQLite file.
func WriteDefaultConfig(configPath string, dsn string, port int) error {
	if strings.TrimSpace(dsn) == "" {
		dsn = buildSQLiteDSN(filepath.Join(filepath.Dir(configPath), defaultSQLitePath))
	}
	jwtSecret, errJWT := generateSecret()
	if errJWT != nil {
		return fmt.Errorf("generate jwt secret: %w", errJWT)
	}
	webhookSecret, errWebhook := generateSecret()
	if errWebhook != nil {
		return fmt.Errorf("generate webhook secret: %w", errWebhook)
	}

	cfg := configFile{
		Port:        port,
		DatabaseDSN: dsn,
		LogLevel:    "info",
		JWT:         jwtCfg{Secret: jwtSecret, Expiry: "720h"},
		Gateway:     gatewayCfg{Mode: config.GatewayModeSandbox},
		Webhook: webhookCfg{
			Secret:          webhookSecret,
			SignatureHeader: config.DefaultSignatureHeader,
		},
		Accounts: accountsCfg{InitialCredits: config.DefaultInitialCredits},
		RateLimit: rateLimitCfg{
			OrderLimit:  config.DefaultOrderLimit,
			OrderWindow: config.DefaultOrderWindow.String(),
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}
	return nil
}

// IssueBearerToken signs a bearer token with the configured JWT secret.
// Operators use it to mint admin tokens and sandbox account tokens.
func IssueBearerToken(cfg config.AppConfig, accountID uint64, name, role string, ttl time.Duration) (string, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	jwtConfig, _ := config.LoadJWTConfig(configPath)
	if strings.TrimSpace(jwtConfig.Secret) == "" {
		return "", config.ErrMissingJWTSecret
	}
	switch role {
	case security.RoleAccount, security.RoleAdmin:
	default:
		return "", fmt.Errorf("unsupported role %q", role)
	}
	if ttl <= 0 {
		ttl = jwtConfig.Expiry
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = role
	}
	return security.IssueToken(jwtConfig.Secret, accountID, name, "", role, ttl, time.Now().UTC())
}
