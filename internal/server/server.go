// Package server — HTTP-слой ассистента: вебхуки Slack, служебный API,
// health и метрики.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/approval"
	"github.com/joe-reitz/oss-moperator/internal/connectors/linear"
	slackconn "github.com/joe-reitz/oss-moperator/internal/connectors/slack"
	"github.com/joe-reitz/oss-moperator/internal/infra"
	"github.com/joe-reitz/oss-moperator/internal/llm"
	"github.com/joe-reitz/oss-moperator/internal/tools"
)

// Server связывает вебхуки Slack с approval-движком и агентом.
type Server struct {
	cfg    infra.Config
	logger *zap.Logger

	slack  *slackconn.Client
	engine *approval.Engine
	gate   *approval.Gate
	store  approval.Store
	auth   approval.Authorizer
	agent  *llm.Agent
	base   *tools.Registry
	linear *linear.Client
	system string

	registry *prometheus.Registry
	http     *http.Server
}

// Deps — зависимости сервера, собранные в main.
type Deps struct {
	Slack    *slackconn.Client
	Engine   *approval.Engine
	Gate     *approval.Gate
	Store    approval.Store
	Auth     approval.Authorizer
	Agent    *llm.Agent
	Registry *tools.Registry
	Linear   *linear.Client
	System   string
	Metrics  *prometheus.Registry
}

func New(cfg infra.Config, deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger.Named("server"),
		slack:    deps.Slack,
		engine:   deps.Engine,
		gate:     deps.Gate,
		store:    deps.Store,
		auth:     deps.Auth,
		agent:    deps.Agent,
		base:     deps.Registry,
		linear:   deps.Linear,
		system:   deps.System,
		registry: deps.Metrics,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.traceMiddleware)

	r.Get("/health", s.handleHealth)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.slackSignatureMiddleware)
			r.Post("/slack/events", s.handleEvents)
			r.Post("/slack/interactions", s.handleInteractions)
			r.Post("/slack/commands", s.handleCommands)
		})
		r.Route("/v1", func(r chi.Router) {
			r.Use(s.adminAuthMiddleware)
			r.Get("/approvals", s.handleListApprovals)
		})
	})

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// ListenAndServe блокирует до остановки сервера.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown останавливает сервер, дожидаясь активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"approval_store": s.store.Available(),
		"time":           time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
