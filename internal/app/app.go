package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/router-for-me/CreditLedger/internal/audit"
	"github.com/router-for-me/CreditLedger/internal/billing"
	"github.com/router-for-me/CreditLedger/internal/catalog"
	"github.com/router-for-me/CreditLedger/internal/config"
	"github.com/router-for-me/CreditLedger/internal/db"
	"github.com/router-for-me/CreditLedger/internal/gateway"
	"github.com/router-for-me/CreditLedger/internal/http/api/admin"
	"github.com/router-for-me/CreditLedger/internal/http/api/front"
	"github.com/router-for-me/CreditLedger/internal/metrics"
	"github.com/router-for-me/CreditLedger/internal/ratelimit"
	"github.com/router-for-me/CreditLedger/internal/store"
	"github.com/router-for-me/CreditLedger/internal/webhook"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// Services bundles the wired billing components behind the HTTP surface.
type Services struct {
	Catalog       *catalog.Catalog
	Ledger        *store.Ledger
	Orders        *billing.OrderService
	Notifications *billing.NotificationService
	Accounts      *billing.AccountService
	Limiter       *ratelimit.Manager
	Metrics       *metrics.Metrics
}

// BuildServices wires the billing services over an open connection.
func BuildServices(conn *gorm.DB, svcCfg config.ServiceConfig, m *metrics.Metrics) (*Services, error) {
	gw, errGateway := buildGateway(svcCfg.Gateway)
	if errGateway != nil {
		return nil, errGateway
	}

	plans := catalog.Default()
	ledger := store.NewLedger(conn)
	reconciler := billing.NewReconciler(conn, plans, m, nil)
	return &Services{
		Catalog:       plans,
		Ledger:        ledger,
		Orders:        billing.NewOrderService(billing.NewValidator(plans), gw, ledger, m, nil),
		Notifications: billing.NewNotificationService(webhook.NewVerifier(svcCfg.Webhook.Secret), reconciler, ledger, m, nil),
		Accounts:      billing.NewAccountService(ledger, svcCfg.Accounts.InitialCredits),
		Limiter:       ratelimit.NewManager(ratelimit.StaticSettings(svcCfg.RateLimit), nil, nil),
		Metrics:       m,
	}, nil
}

// NewEngine builds the gin engine with the admin, front and metrics routes.
func NewEngine(conn *gorm.DB, jwtCfg config.JWTConfig, svcCfg config.ServiceConfig, svc *Services) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	admin.RegisterAdminRoutes(engine, conn, jwtCfg)
	front.RegisterFrontRoutes(engine, front.Deps{
		JWT:             jwtCfg,
		Catalog:         svc.Catalog,
		Orders:          svc.Orders,
		Notifications:   svc.Notifications,
		Accounts:        svc.Accounts,
		Limiter:         svc.Limiter,
		Metrics:         svc.Metrics,
		SignatureHeader: svcCfg.Webhook.SignatureHeader,
	})
	return engine
}

// RunServer boots the billing API and the pending transaction sweeper.
// A positive portOverride takes precedence over the configured port.
func RunServer(ctx context.Context, cfg config.AppConfig, portOverride int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	dsn, jwtCfg, svcCfg := loaded.DSN, loaded.JWT, loaded.Service
	configureLogging(svcCfg)

	if target, errTarget := databaseTargetFromDSN(dsn); errTarget == nil {
		log.WithFields(target.Fields()).Info("opening database")
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	svc, err := BuildServices(conn, svcCfg, metrics.Default())
	if err != nil {
		return err
	}
	defer svc.Limiter.Close()

	port := svcCfg.Port
	if portOverride > 0 {
		port = portOverride
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewEngine(conn, jwtCfg, svcCfg, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	sweeper := audit.NewSweeper(svc.Ledger, svc.Metrics, svcCfg.Audit.Interval, svcCfg.Audit.PendingThreshold)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("creditledger listening on %s (config=%s, gateway=%s)", srv.Addr, configPath, svcCfg.Gateway.Mode)
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", errServe)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Warn("http server shutdown")
		}
		return nil
	})
	return g.Wait()
}

func buildGateway(cfg config.GatewayConfig) (billing.IntentCreator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case config.GatewayModeSandbox:
		log.Warn("gateway sandbox mode: orders are not sent to a payment processor")
		return gateway.NewSandboxClient(), nil
	case config.GatewayModeRazorpay:
		return gateway.NewRazorpayClient(cfg.BaseURL, cfg.KeyID, cfg.KeySecret, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported gateway mode %q", cfg.Mode)
	}
}

func configureLogging(cfg config.ServiceConfig) {
	if strings.EqualFold(strings.TrimSpace(cfg.LogFormat), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, errLevel := log.ParseLevel(strings.TrimSpace(cfg.LogLevel))
	if errLevel != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if level < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
}

// requestLogger logs one line per request through logrus.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	}
}
