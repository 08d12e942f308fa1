package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/config"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/coding"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/dashboard"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/gateway"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/oracle"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/security"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/platform/middleware"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "endocortex-server",
		Short: "BaseVitale reactive protocol engine",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the protocol engine server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Websocket hub for transition push
	hub := websocket.NewHub(logger)

	// Context provider per ORACLE_MODE. A live provider always carries the
	// deterministic fallback: any live failure degrades to mock mode instead
	// of surfacing an error into the machines.
	var provider oracle.ContextProvider = oracle.NewDeterministicProvider()
	if cfg.OracleMode == config.OracleModeLive {
		provider = &oracle.FallbackProvider{
			Primary:  oracle.NewLiveProvider(cfg.OracleURL, cfg.OracleAPIKey, cfg.OracleTimeout),
			Fallback: oracle.NewDeterministicProvider(),
			Logger:   logger,
		}
	}
	logger.Info().Str("mode", cfg.OracleMode).Msg("oracle provider configured")

	// Services
	oracleSvc := oracle.NewService(provider, cfg.OracleTimeout, logger, hub)
	auditSink := security.NewZerologSink(logger)
	securitySvc := security.NewService(oracleSvc, auditSink, logger, hub)
	codingSvc := coding.NewService(oracleSvc, coding.NewSimulatedAnalyzer(), coding.RealClock(),
		cfg.CodingDebounce, cfg.CodingThreshold, logger, hub)

	// Starting an oracle attaches its observers; destroying it detaches them.
	oracleSvc.OnStart(securitySvc.StartWatching)
	oracleSvc.OnStart(codingSvc.StartWatching)
	oracleSvc.OnDestroy(func(patientID string) { securitySvc.StopWatching(patientID) })
	oracleSvc.OnDestroy(func(patientID string) { codingSvc.StopWatching(patientID) })

	// Idle eviction
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go oracleSvc.RunJanitor(janitorCtx, cfg.OracleIdleTTL)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// API group
	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Routes
	oracle.NewHandler(oracleSvc).RegisterRoutes(apiV1)
	security.NewHandler(securitySvc).RegisterRoutes(apiV1)
	coding.NewHandler(codingSvc).RegisterRoutes(apiV1)
	dashboard.NewHandler(oracleSvc, securitySvc, codingSvc).RegisterRoutes(apiV1)
	gateway.NewHandler(oracleSvc, securitySvc, codingSvc, logger).RegisterRoutes(apiV1)
	websocket.NewHandler(hub).RegisterRoutes(e.Group(""))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopJanitor()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	securitySvc.Shutdown()
	codingSvc.Shutdown()
	oracleSvc.Shutdown()
	logger.Info().Msg("server stopped")
	return nil
}
