package bootstrap

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/target/intake-pipeline/config"
	httpx "github.com/target/intake-pipeline/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewHTTPServer builds the API server. The caller starts and stops it.
func NewHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	if !appCfg.Admin.Enabled() {
		logger.Warn("ADMIN_API_TOKEN not set, admin API disabled")
	}

	services := httpx.RouterServices{
		Intake:             cfg.Services.Intake,
		Status:             cfg.Services.Status,
		Admin:              cfg.Services.Admin,
		AdminToken:         appCfg.Admin.APIToken,
		Readiness:          readinessChecks(cfg.DB, cfg.RedisClient),
		CORSAllowedOrigins: appCfg.HTTP.CORSAllowedOrigins,
		MaxBodyBytes:       appCfg.HTTP.MaxBodyBytes,
		Logger:             logger,
	}
	if reg := cfg.Services.Observability.Registry; reg != nil && appCfg.Observability.MetricsEnabled {
		services.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
		services.MetricsPath = appCfg.Observability.MetricsPath
	}

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:              addr,
		Handler:           httpx.NewRouter(services),
		ReadHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       appCfg.HTTP.ReadTimeout,
		WriteTimeout:      appCfg.HTTP.WriteTimeout,
		IdleTimeout:       appCfg.HTTP.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

// readinessChecks requires Postgres. Redis only backs the status cache, so
// losing it degrades reads instead of failing them.
func readinessChecks(db *sql.DB, redisClient redis.UniversalClient) []httpx.ReadinessCheck {
	var checks []httpx.ReadinessCheck
	if db != nil {
		checks = append(checks, httpx.ReadinessCheck{
			Name:     "postgres",
			Required: true,
			Check:    db.PingContext,
		})
	}
	if redisClient != nil {
		checks = append(checks, httpx.ReadinessCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	return checks
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer stops accepting requests and waits for in-flight ones.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(cfg.Context, "shutting down HTTP server")
	}

	if err := cfg.Server.Shutdown(cfg.Context); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.InfoContext(cfg.Context, "HTTP server stopped")
	}

	return nil
}
