// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"advising-workers/internal/app"
	"advising-workers/internal/common/camunda"
	"advising-workers/internal/common/config"
	"advising-workers/internal/common/logger"
	"advising-workers/internal/common/observability"
	"advising-workers/internal/matching/semantic"
	cms "advising-workers/internal/workers/matching/calculate-match-score"
	mu "advising-workers/internal/workers/matching/match-universities"
	sst "advising-workers/internal/workers/shortlist/sync-stage-tasks"
	ts "advising-workers/internal/workers/shortlist/toggle-shortlist"
	"advising-workers/pkg/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format,
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version))
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting worker manager...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.App.Name, cfg.Tracing)
	if err != nil {
		zapLog.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = app.RetryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	services, err := app.Connect(ctx, cfg, app.DefaultOptions, zapLog)
	if err != nil {
		zapLog.Fatal("backing services unavailable", zap.Error(err))
	}
	defer services.Close()

	var reindex *semantic.ReindexScheduler
	if services.Indexer != nil {
		reindex = semantic.NewReindexScheduler(services.Indexer, cfg.Semantic.ReindexEvery, log)
		if err := reindex.Start(ctx); err != nil {
			zapLog.Fatal("reindex scheduler failed to start", zap.Error(err))
		}
	}

	// --- Register workers ---
	client := zeebe.GetClient()
	handlers := []struct {
		taskType string
		handler  camunda.JobHandler
	}{
		{mu.TaskType, services.MatchHandler(cfg, log)},
		{cms.TaskType, services.ScoreHandler(cfg, log)},
		{ts.TaskType, services.ToggleHandler(cfg, log)},
		{sst.TaskType, services.SyncHandler(cfg, log)},
	}

	checkRegistry(zapLog, cfg, mu.TaskType, cms.TaskType, ts.TaskType, sst.TaskType)

	var workers []*camunda.CamundaWorker
	for _, h := range handlers {
		w := camunda.StartWorker(client, h.taskType, config.GetWorkerConfig(cfg, h.taskType), h.handler, obs, zapLog)
		if w != nil {
			workers = append(workers, w)
		}
	}
	zapLog.Info("workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		err := services.Ready(checkCtx)
		if err == nil {
			err = zeebe.HealthCheck(checkCtx)
		}
		if err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	stop()
	if reindex != nil {
		reindex.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// checkRegistry warns when a served task type has no registry contract or
// its configured timeout differs from the contract.
func checkRegistry(log *zap.Logger, cfg *config.Config, taskTypes ...string) {
	reg, err := registry.Default()
	if err == nil {
		err = reg.Validate()
	}
	if err != nil {
		log.Warn("activity registry invalid", zap.Error(err))
		return
	}

	for _, tt := range reg.Missing(taskTypes...) {
		log.Warn("task type not in activity registry", zap.String("taskType", tt))
	}
	for _, tt := range taskTypes {
		act, ok := reg.Find(tt)
		if !ok {
			continue
		}
		configured := config.GetDuration(config.GetWorkerConfig(cfg, tt).Timeout)
		if configured > 0 && configured != act.TimeoutDuration() {
			log.Warn("worker timeout differs from registry",
				zap.String("taskType", tt),
				zap.Duration("configured", configured),
				zap.Duration("registry", act.TimeoutDuration()))
		}
	}
}
