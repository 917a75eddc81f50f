// Package main provides the clinical intelligence dashboard entry point.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/drfirst/clinical-intel/internal/agent"
	"github.com/drfirst/clinical-intel/internal/api/handlers"
	"github.com/drfirst/clinical-intel/internal/api/middleware"
	"github.com/drfirst/clinical-intel/internal/config"
	"github.com/drfirst/clinical-intel/internal/domain/session"
	"github.com/drfirst/clinical-intel/internal/infrastructure/redpanda"
	"github.com/drfirst/clinical-intel/internal/insight"
	"github.com/drfirst/clinical-intel/internal/observability/metrics"
	"github.com/drfirst/clinical-intel/internal/observability/tracing"
	"github.com/drfirst/clinical-intel/internal/patient"
	"github.com/drfirst/clinical-intel/pkg/workerpool"
)

const (
	serviceName = "clinical-dashboard"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger depends on config
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server)
	if err != nil {
		os.Stderr.WriteString("failed to create logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	tp, err := tracing.Init(ctx, tracing.FromConfig(serviceName, version, cfg))
	if err != nil {
		logger.Fatal("failed to initialise tracing", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	m := metrics.New()
	insights := insight.NewStore(cfg.Insights.Path, logger, insight.WithRecorder(m))
	if _, issues, err := insights.Check(ctx); err != nil {
		logger.Warn("insight file not loadable, pages will show placeholders", zap.Error(err))
	} else if len(issues) > 0 {
		logger.Warn("insight file has shape issues", zap.Int("issues", len(issues)))
	}

	catalog, closeCatalog := newCatalog(ctx, cfg.Patients, insights, logger)
	defer closeCatalog()

	store, closeStore := newSessionStore(ctx, cfg.Session, logger)
	defer closeStore()

	secret := cfg.Session.Secret
	if secret == "" {
		secret = randomSecret()
		logger.Warn("SESSION_SECRET not set, using a random secret; sessions will not survive restarts")
	}

	deriver, backend := newDeriver(cfg.LLM, logger)
	agentSvc, err := agent.NewService(deriver, backend, agent.Config{
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: agent.DefaultConfig().RetryDelay,
	}, logger, m)
	if err != nil {
		logger.Fatal("failed to create agent service", zap.Error(err))
	}
	m.RegisterBreaker(agentSvc.Health().Name, func() string { return string(agentSvc.Health().State) })

	pool := workerpool.New("agent-"+backend, workerpool.Config{Workers: cfg.LLM.Concurrency}, logger)

	audit, closeAudit := newAuditPublisher(ctx, cfg.Audit, logger)
	defer closeAudit()

	h := handlers.New(handlers.Deps{
		Insights:    insights,
		Patients:    patient.NewService(catalog, logger),
		Agent:       agentSvc,
		Pool:        pool,
		Auth:        session.NewAuthenticator(),
		Sessions:    middleware.NewSessions(store, session.NewTokens(secret, cfg.Session.TTL), logger, !cfg.Server.Development()),
		Metrics:     m,
		LoginLimit:  middleware.NewIPRateLimiter(cfg.Server.LoginRate, cfg.Server.LoginBurst),
		Audit:       audit,
		Logger:      logger,
		ServiceName: serviceName,
		Origins:     cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLM.Timeout*time.Duration(cfg.LLM.MaxRetries+1) + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting dashboard",
		zap.String("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Env),
		zap.String("insights", cfg.Insights.Path),
		zap.String("session_store", cfg.Session.Store),
		zap.String("patient_store", cfg.Patients.Store),
		zap.String("agent_backend", backend),
		zap.Bool("audit", cfg.Audit.Enabled()),
		zap.Bool("tracing", tp.Enabled()),
	)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.ServerConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development() {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", serviceName)), nil
}

func newCatalog(ctx context.Context, cfg config.PatientsConfig, insights *insight.Store, logger *zap.Logger) (patient.Catalog, func()) {
	if cfg.Store != config.PatientStorePostgres {
		return patient.NewDocumentCatalog(insights), func() {}
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	logger.Info("connected to database")

	catalog := patient.NewPostgresCatalog(pool, logger)
	if err := catalog.Migrate(ctx); err != nil {
		logger.Fatal("failed to migrate patient records", zap.Error(err))
	}
	return catalog, pool.Close
}

func newSessionStore(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (session.Store, func()) {
	if cfg.Store != config.SessionStoreRedis {
		store := session.NewMemoryStore(cfg.TTL)
		sweepCtx, stop := context.WithCancel(ctx)
		go store.Run(sweepCtx, sessionSweepInterval(cfg.TTL), logger)
		return store, stop
	}

	store, err := session.NewRedisStore(cfg.RedisURL, cfg.TTL, logger)
	if err != nil {
		logger.Fatal("failed to create redis session store", zap.Error(err))
	}
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("redis ping failed", zap.Error(err))
	}
	logger.Info("connected to redis")
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}

// sessionSweepInterval scales the memory store janitor with the TTL
func sessionSweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	return interval
}

// newAuditPublisher returns a nil publisher when no brokers are configured.
func newAuditPublisher(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) (handlers.EventPublisher, func()) {
	if !cfg.Enabled() {
		return nil, func() {}
	}

	admin, err := redpanda.NewAdmin(cfg.Brokers, logger)
	if err != nil {
		logger.Fatal("failed to create redpanda admin client", zap.Error(err))
	}
	if err := admin.EnsureTopics(ctx, redpanda.AuditTopicConfig(cfg.Topic)); err != nil {
		logger.Warn("failed to ensure audit topic", zap.String("topic", cfg.Topic), zap.Error(err))
	}
	admin.Close()

	pcfg := redpanda.DefaultProducerConfig()
	pcfg.Brokers = cfg.Brokers
	pcfg.Topic = cfg.Topic
	producer, err := redpanda.NewProducer(pcfg, logger)
	if err != nil {
		logger.Fatal("failed to create audit producer", zap.Error(err))
	}
	logger.Info("publishing session events", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return producer, func() {
		stats := producer.Stats()
		producer.Close()
		logger.Info("audit producer closed",
			zap.Int64("messages_sent", stats.MessagesSent),
			zap.Int64("errors", stats.ErrorCount))
	}
}

func newDeriver(cfg config.LLMConfig, logger *zap.Logger) (agent.Deriver, string) {
	if !cfg.Enabled {
		return agent.StubDeriver{}, "stub"
	}

	d, err := agent.NewOpenAIDeriver(agent.OpenAIConfig{
		APIKey:     cfg.APIKey,
		Endpoint:   cfg.Endpoint,
		Model:      cfg.Deployment,
		APIVersion: cfg.APIVersion,
	})
	if err != nil {
		logger.Fatal("failed to create openai deriver", zap.Error(err))
	}
	if cfg.Endpoint != "" {
		return d, "azure-openai"
	}
	return d, "openai"
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
