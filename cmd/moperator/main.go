package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/approval"
	"github.com/joe-reitz/oss-moperator/internal/audit"
	slackconn "github.com/joe-reitz/oss-moperator/internal/connectors/slack"
	"github.com/joe-reitz/oss-moperator/internal/infra"
	"github.com/joe-reitz/oss-moperator/internal/integrations"
	"github.com/joe-reitz/oss-moperator/internal/llm"
	"github.com/joe-reitz/oss-moperator/internal/policy"
	"github.com/joe-reitz/oss-moperator/internal/repository/postgres"
	"github.com/joe-reitz/oss-moperator/internal/server"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	// Контекст жизненного цикла фоновых горутин: SIGTERM останавливает
	// слушателей политики и агентские прогоны
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура: Redis (Approval Store + allow-list)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(appCtx).Err(); err != nil {
			// Не фатально: воркфлоу деградирует до "approvals unavailable"
			logger.Warn("redis unreachable, approvals will be unavailable", zap.Error(err))
		}
	} else {
		logger.Warn("redis not configured, approvals will be unavailable")
	}
	store := approval.NewRedisStore(rdb, cfg.Approval.TTL, logger)

	// 3. Журнал решений: PostgreSQL + асинхронный trail
	var auditor approval.Auditor = audit.Discard{}
	if cfg.Audit.DatabaseURL != "" {
		repo, err := postgres.NewAuditRepo(cfg.Audit.DatabaseURL)
		if err != nil {
			log.Fatalf("audit repo: %v", err)
		}
		defer repo.Close() //nolint:errcheck
		trail := audit.NewTrail(repo, cfg.Audit.BufferSize, cfg.Audit.FlushInterval, logger)
		trail.Start()
		defer trail.Stop()
		auditor = trail
	} else {
		logger.Warn("audit database not configured, decisions will not be persisted")
	}

	// 4. Slack и политика авторизации
	slackClient := slackconn.NewClient(cfg.Slack, logger)
	authorizer := policy.NewAuthorizer(cfg.Approval.AuthorizedEmails, slackClient, logger)
	if rdb != nil {
		watcher := policy.NewWatcher(rdb, authorizer, logger)
		if err := watcher.Warmup(appCtx, cfg.Approval.AuthorizedEmails); err != nil {
			logger.Warn("policy warmup failed", zap.Error(err))
		}
		go watcher.Listen(appCtx, cfg.Approval.AuthorizedEmails)
	}

	// 5. Интеграции, агент, approval-движок
	set := integrations.Build(cfg.Integrations, logger)

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		log.Fatalf("llm: %v", err)
	}
	agent := llm.NewAgent(provider, cfg.LLM.MaxSteps, cfg.LLM.MaxTokens, logger)

	promRegistry := prometheus.NewRegistry()
	metrics := approval.NewMetrics(promRegistry)

	engine := approval.NewEngine(
		store,
		slackClient,
		slackClient,
		authorizer,
		set.Registry,
		auditor,
		metrics,
		cfg.Approval.TTL,
		cfg.Approval.ApproverGroupID,
		logger,
	)
	gate := approval.NewGate(engine, approval.Limits{
		Authorized:   cfg.Approval.AuthorizedBulkLimit,
		Unauthorized: cfg.Approval.BulkLimit,
	}, logger)

	// 6. HTTP-сервер
	srv := server.New(*cfg, server.Deps{
		Slack:    slackClient,
		Engine:   engine,
		Gate:     gate,
		Store:    store,
		Auth:     authorizer,
		Agent:    agent,
		Registry: set.Registry,
		Linear:   set.Linear,
		System:   llm.SlackSystemPrompt(set.Capabilities()),
		Metrics:  promRegistry,
	}, logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	cancel()
	logger.Info("stopped")
}
