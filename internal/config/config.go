package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

var (
	// ErrMissingDatabaseDSN indicates neither the file nor the env carries a DSN.
	ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")
	// ErrMissingJWTSecret indicates neither the file nor the env carries a signing secret.
	ErrMissingJWTSecret = fmt.Errorf("jwt secret is required (set `jwt.secret` or %s)", EnvJWTSecret)
)

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// Config is everything the server needs, resolved from one read of the file.
type Config struct {
	Path    string
	DSN     string
	JWT     JWTConfig
	Service ServiceConfig
}

// document is the full YAML layout of the config file.
type document struct {
	DatabaseDSN string `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	JWT           JWTConfig `yaml:"jwt"`
	ServiceConfig `yaml:",inline"`
}

// readDocument parses the config file. found is false when the file does not exist.
func readDocument(configPath string) (doc document, found bool, err error) {
	doc.Accounts.InitialCredits = DefaultInitialCredits
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		if os.IsNotExist(errRead) {
			return doc, false, nil
		}
		return document{}, false, fmt.Errorf("read config file: %w", errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &doc); errUnmarshal != nil {
		return document{}, true, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return doc, true, nil
}

// Load resolves the database DSN, JWT settings and service settings together.
// Every section must be usable: a missing DSN or JWT secret is an error here.
func Load(configPath string) (Config, error) {
	doc, _, err := readDocument(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Path: configPath, DSN: doc.dsn(), JWT: doc.jwt()}
	if cfg.DSN == "" {
		return Config{}, ErrMissingDatabaseDSN
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return Config{}, ErrMissingJWTSecret
	}
	svc, errService := doc.service()
	if errService != nil {
		return Config{}, errService
	}
	cfg.Service = svc
	return cfg, nil
}

// LoadDatabaseDSN reads the database DSN; DB_CONNECTION takes precedence.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}
	doc, found, err := readDocument(configPath)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("read config file: %w", os.ErrNotExist)
	}
	if dsn := doc.dsn(); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// LoadJWTConfig loads JWT settings. An unreadable file leaves only env values.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	doc, _, _ := readDocument(configPath)
	return doc.jwt(), nil
}

func (d document) dsn() string {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn
	}
	if dsn := strings.TrimSpace(d.DatabaseDSN); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(d.Database.DSN)
}

func (d document) jwt() JWTConfig {
	result := d.JWT
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}
	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result
}
