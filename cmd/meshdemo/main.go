// Command meshdemo wires every component of the mesh together and runs one
// orchestrated request end to end: it registers and activates the four
// illustrative specialist agents (SPEC_FULL.md §4.12), builds an
// Orchestrator over them, and prints the synthesized answer for a prompt
// given on the command line (or a default one). It is the thinnest
// possible exercise of the library surface — the interactive REPL/CLI that
// would normally sit in front of this is out of scope (spec §1).
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/meshhub/agent"
	"github.com/agentmesh/meshhub/agents/chat"
	"github.com/agentmesh/meshhub/agents/stock"
	"github.com/agentmesh/meshhub/agents/travel"
	"github.com/agentmesh/meshhub/agents/weather"
	"github.com/agentmesh/meshhub/broker"
	"github.com/agentmesh/meshhub/fallback"
	"github.com/agentmesh/meshhub/internal/config"
	"github.com/agentmesh/meshhub/internal/observability"
	"github.com/agentmesh/meshhub/llm"
	"github.com/agentmesh/meshhub/orchestrator"
	"github.com/agentmesh/meshhub/task"
	"github.com/agentmesh/meshhub/tool/mockstock"
	"github.com/agentmesh/meshhub/tool/mockweather"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	cfg := config.Load()
	logger, traceManager, metricsManager := setupObservability(ctx, cfg)

	b := broker.New(broker.Config{}, logger, traceManager, metricsManager)
	agentCtx := agent.NewContext(b, logger, traceManager, metricsManager)

	llmClient := buildLLMClient(ctx, cfg)

	ruleStore, err := fallback.NewRuleStore(cfg.FallbackRulesDir)
	if err != nil {
		logger.ErrorContext(ctx, "meshdemo: fallback rule store init failed", "error", err)
		os.Exit(1)
	}
	fallbackEngine, err := fallback.New(fallback.Config{
		MinConfidence: float64(cfg.FallbackMinConfidence),
		MaxRules:      cfg.FallbackMaxRules,
	}, ruleStore, logger)
	if err != nil {
		logger.ErrorContext(ctx, "meshdemo: fallback engine init failed", "error", err)
		os.Exit(1)
	}

	mustRegister(agentCtx, weather.Name, weather.NewFactory(mockweather.New()), "Reports current weather conditions for a location", weather.Capabilities, logger, ctx)
	mustRegister(agentCtx, stock.Name, stock.NewFactory(mockstock.New()), "Reports the current quote for a stock ticker", stock.Capabilities, logger, ctx)
	mustRegister(agentCtx, travel.Name, travel.NewFactory(), "Plans a trip, incorporating prior weather results", travel.Capabilities, logger, ctx)
	mustRegister(agentCtx, chat.Name, chat.NewFactory(llmClient, cfg.LLMModel, fallbackEngine, logger), "General-purpose conversational fallback agent", chat.Capabilities, logger, ctx)

	for _, name := range []string{weather.Name, stock.Name, travel.Name, chat.Name} {
		if _, err := agentCtx.Activate(ctx, name); err != nil {
			logger.ErrorContext(ctx, "meshdemo: agent activation failed", "name", name, "error", err)
			os.Exit(1)
		}
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := agentCtx.Registry().ShutdownAll(shutdownCtx, 10*time.Second); err != nil {
			logger.ErrorContext(shutdownCtx, "meshdemo: shutdown failed", "error", err)
		}
	}()

	orch := orchestrator.New(orchestrator.Config{
		LLMModel:            cfg.LLMModel,
		PlanningTemperature: cfg.PlanningTemperature,
		MaxTaskDepth:         cfg.MaxTaskDepth,
		TaskTimeout:          time.Duration(cfg.TaskTimeoutMs) * time.Millisecond,
		ParallelExecution:    cfg.ParallelExecution,
		TaskCaching:          cfg.TaskCaching,
		MaxRetries:           cfg.MaxRetries,
		Cache: orchestrator.CacheConfig{
			MaxSize: cfg.CacheMaxSize,
			TTL:     time.Duration(cfg.CacheTTLMinutes) * time.Minute,
		},
		Fallback: fallback.Config{
			MinConfidence: float64(cfg.FallbackMinConfidence),
			MaxRules:      cfg.FallbackMaxRules,
		},
	}, agentCtx, llmClient, fallbackEngine, logger, traceManager, metricsManager)

	prompt := strings.Join(os.Args[1:], " ")
	if prompt == "" {
		prompt = "What's the weather in London?"
	}

	userCtx := task.UserContext{UserID: "demo-user", SessionID: uuid.NewString()}
	answer := orch.Orchestrate(ctx, prompt, userCtx)
	fmt.Println(answer)
}

func mustRegister(agentCtx *agent.Context, name string, factory agent.Factory, description string, capabilities []string, logger *slog.Logger, ctx context.Context) {
	if err := agentCtx.Register(name, factory, description, capabilities); err != nil {
		logger.ErrorContext(ctx, "meshdemo: agent registration failed", "name", name, "error", err)
		os.Exit(1)
	}
}

// setupObservability wires tracing/metrics/logging via internal/observability
// when it initializes cleanly, falling back to a discarding logger and
// in-memory providers otherwise so the demo still runs without an OTLP
// collector present (spec: logging/tracing are ambient concerns, never a
// hard dependency of the core mesh).
func setupObservability(ctx context.Context, cfg *config.AppConfig) (*slog.Logger, *observability.TraceManager, *observability.MetricsManager) {
	obs, err := observability.NewObservability(observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		PrometheusPort: cfg.PrometheusPort,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
	if err != nil {
		fallbackLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
		fallbackLogger.WarnContext(ctx, "meshdemo: observability init failed, continuing with a bare logger", "error", err)
		_, traceManager, metricsManager := observability.NewForTesting(cfg.ServiceName)
		return fallbackLogger, traceManager, metricsManager
	}

	metricsManager, err := observability.NewMetricsManager(obs.Meter)
	if err != nil {
		obs.Logger.WarnContext(ctx, "meshdemo: metrics init failed, continuing without custom instruments", "error", err)
		_, _, metricsManager = observability.NewForTesting(cfg.ServiceName)
	}
	return obs.Logger, observability.NewTraceManager(cfg.ServiceName), metricsManager
}

// buildLLMClient picks a genai backend when credentials are present in the
// environment, falling back to the deterministic mock client otherwise —
// the same "real backend if configured, mock otherwise" branch
// cortex cmd/main.go uses.
func buildLLMClient(ctx context.Context, cfg *config.AppConfig) llm.Client {
	project := os.Getenv("GCP_PROJECT")
	if project != "" && project != "your-project" {
		client, err := llm.NewGenAIClient(ctx, llm.GenAIConfig{
			Backend:  "vertexai",
			Project:  project,
			Location: os.Getenv("GCP_LOCATION"),
			Model:    cfg.LLMModel,
		}, nil)
		if err == nil {
			return client
		}
	}
	return llm.NewMockClient()
}
