package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/router-for-me/CreditLedger/internal/config"
	"github.com/router-for-me/CreditLedger/internal/db"
	"github.com/router-for-me/CreditLedger/internal/metrics"
)

func TestNewEngineServesRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	svcCfg := config.ServiceConfig{
		Gateway: config.GatewayConfig{Mode: config.GatewayModeSandbox},
		Webhook: config.WebhookConfig{Secret: "whsec", SignatureHeader: config.DefaultSignatureHeader},
	}
	svc, err := BuildServices(conn, svcCfg, metrics.New(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("BuildServices: %v", err)
	}
	defer svc.Limiter.Close()
	engine := NewEngine(conn, config.JWTConfig{Secret: "jwt"}, svcCfg, svc)

	for _, path := range []string{"/healthz", "/v1/plans", "/metrics"} {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/account", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", rec.Code)
	}
}

func TestBuildGatewayRejectsUnknownMode(t *testing.T) {
	if _, err := buildGateway(config.GatewayConfig{Mode: "paypal"}); err == nil || !strings.Contains(err.Error(), "paypal") {
		t.Fatalf("expected unsupported mode error, got %v", err)
	}
	gw, err := buildGateway(config.GatewayConfig{Mode: config.GatewayModeRazorpay, KeyID: "k", KeySecret: "s"})
	if err != nil || gw == nil {
		t.Fatalf("expected razorpay client, got %v", err)
	}
}
