package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/router-for-me/CreditLedger/internal/app"
	"github.com/router-for-me/CreditLedger/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:], os.Stdout); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and starts the server or a one-shot command.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("creditledger", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", config.DefaultPort, "server port (overrides the config file when set)")
	migrateOnly := fs.Bool("migrate", false, "run database migrations and exit")
	issueRole := fs.String("issue-token", "", "print a bearer token for role account|admin and exit")
	tokenAccount := fs.Uint64("account", 1, "account id for -issue-token")
	tokenName := fs.String("name", "", "display name for -issue-token")
	tokenTTL := fs.Duration("ttl", 0, "token lifetime for -issue-token (default: jwt.expiry)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}
	portOverride := 0
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "port" {
			portOverride = *port
		}
	})

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}

	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	if !app.ConfigExists(configPath) && strings.TrimSpace(os.Getenv(config.EnvDBConnection)) == "" {
		log.Infof("%s not found, writing a sandbox config with generated secrets", configPath)
		if errWrite := app.WriteDefaultConfig(configPath, "", *port); errWrite != nil {
			return errWrite
		}
	}

	switch {
	case *migrateOnly:
		if errMigrate := app.Migrate(ctx, appCfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	case strings.TrimSpace(*issueRole) != "":
		role := strings.ToLower(strings.TrimSpace(*issueRole))
		token, errIssue := app.IssueBearerToken(appCfg, *tokenAccount, *tokenName, role, *tokenTTL)
		if errIssue != nil {
			return errIssue
		}
		_, errWrite := fmt.Fprintln(stdout, token)
		return errWrite
	}

	return app.RunServer(ctx, appCfg, portOverride)
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
