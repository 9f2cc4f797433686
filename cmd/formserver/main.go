package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/formflow/form-app/internal/config"
	"github.com/formflow/form-app/internal/flow"
	"github.com/formflow/form-app/internal/logging"
	"github.com/formflow/form-app/internal/messaging"
	"github.com/formflow/form-app/internal/ratelimit"
	"github.com/formflow/form-app/internal/server"
	"github.com/formflow/form-app/internal/session"
	"github.com/formflow/form-app/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.WithError(err).Fatal("invalid logging configuration")
	}

	// --- Redis ---
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Fatal("invalid REDIS_URL")
	}
	if cfg.RedisPoolSize > 0 {
		redisOpts.PoolSize = cfg.RedisPoolSize
	}
	sessionStore, err := session.NewStore(redisOpts, cfg.SessionTTL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}

	// --- NATS (optional) ---
	var (
		natsClient *messaging.NATSClient
		events     flow.Publisher
	)
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsClient, err = messaging.NewNATSClient(natsConfig, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to NATS")
		}
		events = natsClient
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		logger.WithError(err).Fatal("failed to load templates")
	}

	controller := flow.NewController(sessionStore, renderer, flow.Options{
		Logger:          logger,
		Events:          events,
		StoreTimeout:    cfg.StoreTimeout,
		SessionTTL:      cfg.SessionTTL,
		CookieSecure:    cfg.CookieSecure,
		ClearAllOnEntry: cfg.ResetScope == config.ResetScopeAll,
		DumpSessions:    logger.IsLevelEnabled(logrus.DebugLevel),
	})

	limiter := ratelimit.NewLimiter(sessionStore.Client(), logger).WithTimeout(cfg.StoreTimeout)
	submitRule := ratelimit.RuleSubmit
	submitRule.Limit = cfg.SubmitRateLimit
	submitRule.Window = cfg.SubmitRateWindow

	serverConfig := server.DefaultConfig()
	serverConfig.ListenAddr = cfg.ListenAddr()

	srv := server.New(serverConfig, server.Deps{
		Flow:           controller,
		Health:         sessionStore,
		Assets:         web.Assets(),
		Submit:         []func(http.Handler) http.Handler{limiter.Middleware(submitRule)},
		DebugEndpoints: cfg.DebugEndpoints,
	}, logger)

	logger.WithFields(logrus.Fields{
		"listen_addr":     serverConfig.ListenAddr,
		"redis_addr":      redisOpts.Addr,
		"redis_pool_size": redisOpts.PoolSize,
		"session_ttl":     cfg.SessionTTL.String(),
		"store_timeout":   cfg.StoreTimeout.String(),
		"reset_scope":     cfg.ResetScope,
		"nats_enabled":    natsClient != nil,
		"submit_limit":    submitRule.Limit,
		"debug_endpoints": cfg.DebugEndpoints,
	}).Info("form server starting")

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("initiating graceful shutdown")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("shutdown error")
		}
	}()

	// Start returns after Shutdown has drained in-flight requests.
	if err := srv.Start(); err != nil {
		logger.WithError(err).Error("server error")
	}

	if natsClient != nil {
		natsClient.Close()
	}
	if err := sessionStore.Close(); err != nil {
		logger.WithError(err).Error("session store close error")
	}
	logger.Info("form server stopped")
}
