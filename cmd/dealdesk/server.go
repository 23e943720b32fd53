package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/dealdesk/internal/agent"
	"github.com/haasonsaas/dealdesk/internal/config"
	"github.com/haasonsaas/dealdesk/internal/domain"
	"github.com/haasonsaas/dealdesk/internal/executor"
	"github.com/haasonsaas/dealdesk/internal/guardrails"
	"github.com/haasonsaas/dealdesk/internal/observability"
	"github.com/haasonsaas/dealdesk/internal/provider"
	"github.com/haasonsaas/dealdesk/internal/tools"
	"github.com/haasonsaas/dealdesk/pkg/models"
)

// server bundles the wired components behind the HTTP handlers.
type server struct {
	loop     *agent.Loop
	resolver *agent.ContextResolver
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// runServe wires the application and serves until the context is cancelled
// or a termination signal arrives.
func runServe(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	var metrics *observability.Metrics
	if cfg.Telemetry {
		metrics = observability.NewMetrics()
	}

	client, err := provider.NewClient(provider.Config{
		APIKey:         cfg.Provider.APIKey,
		BaseURL:        cfg.Provider.BaseURL,
		Model:          cfg.Provider.Model,
		RequestTimeout: cfg.Provider.RequestTimeout,
		MaxTokens:      cfg.Provider.MaxTokens,
	}, logger, metrics)
	if err != nil {
		return err
	}

	svc := domain.NewMemoryService()
	svc.Seed("proj-demo", "agr-demo", domain.StageRequirements)

	registry, err := tools.BuildCatalog(svc)
	if err != nil {
		return fmt.Errorf("build tool catalog: %w", err)
	}

	throttle := guardrails.NewSlidingWindow(cfg.Throttle.Window, cfg.Throttle.Ceiling)
	guards := guardrails.NewEngine(registry, nil, throttle, metrics)
	exec := executor.New(registry, guards, metrics, logger)

	loop := agent.NewLoop(agent.Config{
		MaxTurns:    cfg.Loop.MaxTurns,
		WindowSize:  cfg.Loop.WindowSize,
		Temperature: cfg.Provider.Temperature,
	}, client, registry, guards, exec, metrics, logger)

	srv := &server{
		loop:     loop,
		resolver: agent.NewContextResolver(svc),
		metrics:  metrics,
		logger:   logger.With("component", "http"),
	}
	return srv.listen(ctx, cfg.Server.Addr)
}

func (s *server) listen(ctx context.Context, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/assist", s.handleAssist)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// assistRequest is the inbound body for POST /v1/assist.
type assistRequest struct {
	Messages   []models.Message  `json:"messages"`
	Workflow   models.Workflow   `json:"workflow,omitempty"`
	EntityID   string            `json:"entityId,omitempty"`
	EntityType models.EntityType `json:"entityType,omitempty"`
	View       string            `json:"view,omitempty"`
}

// assistResponse is the outbound body: the full transcript plus a hint for
// the UI to reload entity data.
type assistResponse struct {
	Messages      []models.Message `json:"messages"`
	ShouldRefresh bool             `json:"shouldRefresh"`
}

func (s *server) handleAssist(w http.ResponseWriter, r *http.Request) {
	var req assistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Workflow == "" {
		req.Workflow = models.WorkflowEstimates
	}

	execCtx, err := s.resolver.Resolve(r.Context(), req.Workflow, req.EntityID, req.EntityType, req.View)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	res, runErr := s.loop.Run(r.Context(), execCtx, req.Messages)
	if runErr != nil {
		// The transcript still ends with an assistant message explaining
		// the failure; the caller gets it rather than a bare 5xx.
		s.logger.Error("assist run failed", "error", observability.Redact(runErr.Error()))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(assistResponse{
		Messages:      res.Messages,
		ShouldRefresh: res.ShouldRefresh,
	}); err != nil {
		s.logger.Error("encode response failed", "error", err)
	}
}
