package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	httpadapter "github.com/aerodocs/docuchat/internal/adapters/http"
	"github.com/aerodocs/docuchat/internal/bootstrap"
	"github.com/aerodocs/docuchat/internal/config"
	"github.com/aerodocs/docuchat/internal/observability/logging"
	"github.com/aerodocs/docuchat/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("docuchat-api", "info").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("docuchat-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverMetrics := metrics.NewHTTPServerMetrics("docuchat-api")

	app, err := bootstrap.New(ctx, cfg, logger, serverMetrics)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret = uuid.NewString()
		logger.Warn("JWT_SECRET is not set, using an ephemeral secret; tokens will not survive restarts")
	}
	auth := httpadapter.NewTokenAuthority(jwtSecret, time.Duration(cfg.JWTTTLHours)*time.Hour)

	router := httpadapter.NewRouter(
		app.ChatUC,
		app.IngestUC,
		app.Repo,
		app.Users,
		auth,
		httpadapter.Config{
			RateLimitRPS:   cfg.APIRateLimitRPS,
			RateLimitBurst: cfg.APIRateLimitBurst,
			MaxConcurrent:  cfg.APIMaxConcurrent,
			MaxUploadBytes: int64(cfg.APIMaxUploadMB) << 20,
			MetricsHandler: serverMetrics.Handler(),
			TurnObserver:   serverMetrics,
			ExtraMiddleware: func(next http.Handler) http.Handler {
				return serverMetrics.Middleware(next)
			},
		},
		logger,
	)

	server := &http.Server{
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		logger.Error("listen failed", "port", cfg.APIPort, "error", err)
		os.Exit(1)
	}
	// Cap accepted connections ahead of the per-request backpressure gate.
	listener = netutil.LimitListener(listener, 4*cfg.APIMaxConcurrent+16)

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
