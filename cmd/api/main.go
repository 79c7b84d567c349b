package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merxus-voice-bridge/internal/audit"
	"merxus-voice-bridge/internal/auth"
	"merxus-voice-bridge/internal/bridge"
	"merxus-voice-bridge/internal/calls"
	"merxus-voice-bridge/internal/config"
	"merxus-voice-bridge/internal/realtime"
	"merxus-voice-bridge/internal/reporting"
	"merxus-voice-bridge/internal/telephony"
	"merxus-voice-bridge/internal/tenant"
	"merxus-voice-bridge/pkg/logger"
	"merxus-voice-bridge/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	resolver := tenant.NewCachedResolver(tenant.NewPostgresStore(db), rdb, cfg.Tenant.CacheTTL, log)
	registry := bridge.NewRegistry()

	inbound := telephony.InboundCallHandler{
		Resolver:      resolver,
		ServiceDomain: cfg.App.ServiceDomain,
		Tokens:        authManager,
	}
	if cfg.Twilio.ValidateSignature {
		inbound.Signatures = telephony.NewTwilioSignatureVerifier(cfg.Twilio.AuthToken)
	}

	media := &bridge.MediaServer{
		Upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		Resolver: resolver,
		Dialer: bridge.RealtimeDialer{
			Dialer: realtime.Dialer{
				BaseURL:    cfg.Realtime.URL,
				APIKey:     cfg.Realtime.APIKey,
				BetaHeader: cfg.Realtime.BetaHeader,
			},
			WriteTimeout: cfg.Bridge.WriteTimeout,
		},
		Registry: registry,
		Config: bridge.Config{
			ConnectTimeout:     cfg.Bridge.ConnectTimeout,
			IdleTimeout:        cfg.Bridge.IdleTimeout,
			QueueSize:          cfg.Bridge.QueueSize,
			MaxMalformedFrames: cfg.Bridge.MaxMalformedFrames,
		},
		WriteTimeout: cfg.Bridge.WriteTimeout,
		Tokens:       authManager,
		RequireToken: cfg.Auth.StreamTokenRequired,
		Recorder:     calls.NewPostgresRecorder(db),
	}
	if cfg.Tenant.MaxConcurrentCalls > 0 {
		media.Limiter = bridge.NewRedisCallLimiter(rdb, cfg.Tenant.MaxConcurrentCalls, log)
	}
	if cfg.Twilio.CallControlEnabled() {
		control, err := telephony.NewTwilioCallControl(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
		if err != nil {
			log.Error("twilio call control init failed", "err", err)
			os.Exit(1)
		}
		media.Control = control
	} else {
		log.Warn("twilio credentials not set, upstream failures rely on the TwiML fallback only")
	}

	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		Inbound:     inbound,
		Media:       media,
		Registry:    registry,
		Audit:       auditSvc,
		Reports:     reporting.NewService(reporting.NewPostgresRepo(db)),
		Auth:        authManager,
		DevTokens:   cfg.App.Env == "local" || cfg.App.Env == "dev",
		HealthCheck: func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) },
	})

	// Media streams are long-lived; per-link write deadlines and the session
	// idle timer bound them instead of server-wide read/write timeouts.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("voice bridge listening", "addr", srv.Addr, "env", cfg.App.Env, "domain", cfg.App.ServiceDomain)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated", "active_sessions", registry.Len())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Stop accepting first. Shutdown does not track hijacked connections, so
	// live calls are ended explicitly afterwards.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	registry.CloseAll(bridge.ReasonShutdown)
	if !registry.Wait(shutdownCtx) {
		log.Warn("sessions still draining at shutdown deadline", "active_sessions", registry.Len())
	}
}
