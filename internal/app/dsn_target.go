package app

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// databaseTarget describes where a DSN points without exposing credentials.
type databaseTarget struct {
	Type        string
	Host        string
	Port        int
	User        string
	Name        string
	SSLMode     string
	Path        string
	PasswordSet bool
}

// Fields renders the target for structured logging.
func (t databaseTarget) Fields() log.Fields {
	if t.Type == "sqlite" {
		return log.Fields{"db_type": t.Type, "db_path": t.Path}
	}
	return log.Fields{
		"db_type":         t.Type,
		"db_host":         t.Host,
		"db_port":         t.Port,
		"db_user":         t.User,
		"db_name":         t.Name,
		"db_sslmode":      t.SSLMode,
		"db_password_set": t.PasswordSet,
	}
}

func databaseTargetFromDSN(dsn string) (databaseTarget, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return databaseTarget{}, fmt.Errorf("empty dsn")
	}

	lowered := strings.ToLower(trimmed)
	if strings.HasPrefix(lowered, "file:") || strings.HasSuffix(lowered, ".db") {
		pathPart := trimmed
		if strings.HasPrefix(lowered, "file:") {
			pathPart = trimmed[len("file:"):]
		}
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return databaseTarget{Type: "sqlite", Path: strings.TrimSpace(pathPart)}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return databaseTarget{}, fmt.Errorf("parse dsn: %w", errParse)
	}

	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "postgres", "postgresql":
		port := 5432
		if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
			parsedPort, errPort := strconv.Atoi(rawPort)
			if errPort != nil {
				return databaseTarget{}, fmt.Errorf("parse port: %w", errPort)
			}
			port = parsedPort
		}

		target := databaseTarget{
			Type:    "postgres",
			Host:    strings.TrimSpace(u.Hostname()),
			Port:    port,
			Name:    strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
			SSLMode: strings.TrimSpace(u.Query().Get("sslmode")),
		}
		if u.User != nil {
			target.User = strings.TrimSpace(u.User.Username())
			_, target.PasswordSet = u.User.Password()
		}
		if target.SSLMode == "" {
			target.SSLMode = "disable"
		}
		return target, nil
	default:
		return databaseTarget{}, fmt.Errorf("unsupported dsn scheme")
	}
}
