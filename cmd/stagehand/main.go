// Package main provides the CLI entry point for the Stagehand agent runtime.
//
// Stagehand drives a local LLM backend through a tool-calling loop and
// exposes the runtime over HTTP and WebSocket.
//
// # Basic Usage
//
// Start the gateway:
//
//	stagehand serve
//
// List the built-in tool catalog:
//
//	stagehand tools
//
// # Environment Variables
//
// Configuration is environment-driven (a .env file is honored):
//
//   - PORT: HTTP listen port (default: 4000)
//   - LLM_BASE_URL: Model backend base URL (default: http://localhost:11434)
//   - LLM_MODEL: Model name (default: llama3.1)
//   - DB_HOST / DB_PORT / DB_USER / DB_PASSWORD / DB_NAME: Postgres coordinates
//   - REDIS_HOST / REDIS_PORT / REDIS_PASSWORD / REDIS_DB: Redis coordinates
//   - FS_ALLOWED_PATH: Root for filesystem tool access (default: cwd)
//   - PRODUCTION_SAFE_MODE: Hide tools not marked production-safe
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/stagehand-ai/stagehand/internal/agent"
	"github.com/stagehand-ai/stagehand/internal/config"
	"github.com/stagehand-ai/stagehand/internal/events"
	"github.com/stagehand-ai/stagehand/internal/gateway"
	"github.com/stagehand-ai/stagehand/internal/llm"
	"github.com/stagehand-ai/stagehand/internal/mcp"
	"github.com/stagehand-ai/stagehand/internal/metrics"
	"github.com/stagehand-ai/stagehand/internal/sessions"
	"github.com/stagehand-ai/stagehand/internal/tools"
	"github.com/stagehand-ai/stagehand/internal/tools/builtin"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "stagehand",
		Short:        "Stagehand - local LLM agent runtime",
		Long:         "Stagehand drives a local model through a bounded tool-calling loop\nwith a built-in catalog, federated tool servers, and an HTTP/WS gateway.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildToolsCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent gateway",
		Long: `Start the agent gateway.

The server binds its port first, then connects enabled external tool
servers in the background, so requests are accepted immediately.
Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, debug bool) error {
	// A missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()
	cfg := config.Load()
	logger := newLogger(cfg, debug)
	slog.SetDefault(logger)

	logger.Info("starting stagehand",
		"version", version,
		"commit", commit,
		"env", cfg.Env,
		"safe_mode", cfg.ProductionSafeMode,
	)

	db, err := sql.Open("postgres", cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	pingDB(ctx, db, logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	workDir, err := os.Getwd()
	if err != nil {
		workDir = "."
	}

	registry, err := builtin.NewCatalog(builtin.Deps{
		DB:      db,
		Redis:   rdb,
		FSRoot:  cfg.FSAllowedPath,
		WorkDir: workDir,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	})
	if err != nil {
		return fmt.Errorf("build tool catalog: %w", err)
	}

	manager := mcp.NewManager(mcp.DefaultConfigFile, logger)
	if err := manager.Load(); err != nil {
		logger.Warn("tool server registry unreadable, starting empty", "error", err)
	}

	store := sessions.NewStore()
	bus := events.NewBus()
	met := metrics.NewStore(nil)
	executor := tools.NewExecutor(registry, manager, met, cfg.ProductionSafeMode, logger)

	llmClient := llm.New(llm.Config{
		BaseURL:       cfg.LLM.BaseURL,
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		ContextLength: cfg.LLM.ContextLength,
		Timeout:       cfg.LLM.Timeout,
	})

	systemPrompt := agent.SystemPrompt(agent.PromptContext{
		WorkDir:   workDir,
		FSRoot:    cfg.FSAllowedPath,
		DBHost:    fmt.Sprintf("%s:%d", cfg.DB.Host, cfg.DB.Port),
		DBName:    cfg.DB.Name,
		RedisAddr: cfg.Redis.Addr(),
		SafeMode:  cfg.ProductionSafeMode,
	})

	ag := agent.New(agent.Config{
		LLM:          llmClient,
		Registry:     registry,
		Executor:     executor,
		Federated:    manager,
		Sessions:     store,
		Bus:          bus,
		SafeMode:     cfg.ProductionSafeMode,
		SystemPrompt: systemPrompt,
		Logger:       logger,
	})
	orchestrator := agent.NewOrchestrator(
		agent.NewPlanner(llmClient, logger),
		ag,
		agent.NewReviewer(llmClient, logger),
		bus,
	)

	server := gateway.NewServer(
		gateway.Config{
			Addr:     fmt.Sprintf(":%d", cfg.Port),
			SafeMode: cfg.ProductionSafeMode,
		},
		gateway.Deps{
			LLM:          llmClient,
			Registry:     registry,
			Agent:        ag,
			Orchestrator: orchestrator,
			Sessions:     store,
			Bus:          bus,
			Metrics:      met,
			MCP:          manager,
			Logger:       logger,
		},
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(); err != nil {
		return err
	}

	// Tool server handshakes can be slow; the port is already bound.
	go manager.ConnectAll(ctx)

	logger.Info("stagehand ready",
		"addr", server.Addr(),
		"model", llmClient.Model(),
		"tools", len(registry.All()),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	manager.Stop()
	logger.Info("stagehand stopped")
	return nil
}

// buildToolsCmd lists the built-in catalog without opening any backend
// connections: specs come from the registry, not from live tools.
func buildToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tool catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := builtin.NewCatalog(builtin.Deps{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, spec := range registry.All() {
				fmt.Fprintf(out, "%-22s %s\n", spec.Name, spec.Description)
			}
			return nil
		},
	}
}

func newLogger(cfg *config.Config, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func pingDB(ctx context.Context, db *sql.DB, logger *slog.Logger) {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		// The db tool family reports per-call errors; the gateway still
		// serves everything else.
		logger.Warn("database unreachable at startup", "error", err)
		return
	}
	logger.Info("database reachable")
}
