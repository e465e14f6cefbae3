// Maestro orchestrator server: HTTP API, queue workers, and the
// question-answering pipeline behind them.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/maestro-ai/maestro/pkg/agents"
	"github.com/maestro-ai/maestro/pkg/api"
	"github.com/maestro-ai/maestro/pkg/cleanup"
	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/database"
	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/queue"
	"github.com/maestro-ai/maestro/pkg/services"
	"github.com/maestro-ai/maestro/pkg/summarizer"
	"github.com/maestro-ai/maestro/pkg/tools"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	podID := resolvePodID()

	slog.Info("Starting maestro",
		"http_port", httpPort,
		"pod_id", podID,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database (migrations run inside NewClient)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Domain services over the shared pool
	store := queue.NewStore(dbClient.DB())
	sessionService := services.NewSessionService(dbClient.DB())
	feedbackService := services.NewFeedbackService(dbClient.DB())
	eventService := services.NewEventService(dbClient.DB(), cfg.Broker.SubscriptionGrace)
	slog.Info("Services initialized")

	// 4. Streaming infrastructure: publisher, broker, NOTIFY listener
	publisher := events.NewPublisher(dbClient.DB(), cfg.Broker)
	broker := events.NewSubscriptionBroker(eventService, cfg.Broker)

	notifyListener := events.NewNotifyListener(dbClient.DSN(), broker)
	if err := notifyListener.Start(ctx); err != nil {
		slog.Error("Failed to start NOTIFY listener", "error", err)
		os.Exit(1)
	}
	defer notifyListener.Stop(ctx)
	broker.SetListener(notifyListener)
	slog.Info("Streaming infrastructure initialized")

	// 5. LLM client for the default provider
	providerCfg, err := cfg.DefaultLLMProvider()
	if err != nil {
		slog.Error("Failed to resolve default LLM provider", "error", err)
		os.Exit(1)
	}
	llmClient, err := llm.NewClient(providerCfg)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "provider", cfg.Defaults.LLMProvider, "error", err)
		os.Exit(1)
	}
	slog.Info("LLM client initialized",
		"provider", cfg.Defaults.LLMProvider, "model", llmClient.Model())

	// 6. Tool adapters and the pipeline registry
	toolRegistry, err := tools.NewRegistry(cfg.Tools, llmClient)
	if err != nil {
		slog.Error("Failed to build tool registry", "error", err)
		os.Exit(1)
	}

	registry := queue.NewPipelineRegistry(&agents.Deps{
		LLM:        llmClient,
		Tools:      toolRegistry,
		Summarizer: summarizer.New(cfg.Summarizer, llmClient),
		Graph:      cfg.Graph,
		ToolsCfg:   cfg.Tools,
	})
	executor := queue.NewExecutor(sessionService, publisher, registry, cfg.Graph)

	// 7. Worker pool: clean up jobs this pod abandoned in a previous life,
	// then start polling.
	workerPool := queue.NewWorkerPool(store, executor, publisher, cfg.Queue, podID)
	if err := workerPool.CleanupStartup(ctx); err != nil {
		slog.Error("Failed to clean up startup orphans", "error", err)
		// Non-fatal — continue
	}
	workerPool.Start()

	// 8. Retention janitor
	janitor := cleanup.NewService(cfg.Retention, eventService, store)
	janitor.Start(ctx)

	// 9. HTTP server (non-blocking)
	httpServer := api.NewServer(cfg.Broker, api.Dependencies{
		DB:       dbClient.DB(),
		Queue:    store,
		Sessions: sessionService,
		Feedback: feedbackService,
		Events:   eventService,
		Broker:   broker,
		Pool:     workerPool,
		Tools:    toolRegistry,
		LLM:      llmClient,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Maestro started successfully",
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: stop taking requests, drain workers, then
	// tear down the janitor and listener. Unfinished jobs are
	// orphan-recovered by surviving pods.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-time.After(cfg.Queue.GracefulShutdownTimeout + 5*time.Second):
		slog.Warn("Worker pool shutdown overran; incomplete jobs will be orphan-recovered")
	}

	janitor.Stop()

	slog.Info("Shutdown complete")
}
