// Package orchestrator wires the Planner, Workflow Coordinator, Response
// Cache, Intent Cache and Fallback Engine into the single public entry
// point the rest of the system calls: orchestrate(request, userContext) ->
// finalAnswer (spec §6). It is the concrete type backing that entry point,
// grounded on cortex.Cortex — the same "decide/dispatch/collect/synthesize"
// shape, generalized from Cortex's single LLM-decision loop to the spec's
// planner -> coordinator pipeline with cache and fallback interposed on
// every LLM call.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agentmesh/meshhub/agent"
	"github.com/agentmesh/meshhub/cache"
	"github.com/agentmesh/meshhub/coordinator"
	"github.com/agentmesh/meshhub/fallback"
	"github.com/agentmesh/meshhub/internal/observability"
	"github.com/agentmesh/meshhub/llm"
	"github.com/agentmesh/meshhub/normalize"
	"github.com/agentmesh/meshhub/planner"
	"github.com/agentmesh/meshhub/task"
)

// CacheConfig carries the Response/Intent Cache tunables of spec §6.
type CacheConfig struct {
	MaxSize int
	TTL     time.Duration
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.MaxSize == 0 {
		c.MaxSize = 1000
	}
	if c.TTL == 0 {
		c.TTL = 60 * time.Minute
	}
	return c
}

// Config carries every orchestrator-level option named in spec §6.
type Config struct {
	LLMModel            string
	PlanningTemperature float64
	MaxTaskDepth         int
	TaskTimeout          time.Duration
	ParallelExecution    bool
	TaskCaching          bool
	MaxRetries           int

	Cache    CacheConfig
	Fallback fallback.Config
}

func (c Config) withDefaults() Config {
	if c.LLMModel == "" {
		c.LLMModel = "gemini-2.0-flash"
	}
	if c.PlanningTemperature == 0 {
		c.PlanningTemperature = 0.3
	}
	if c.MaxTaskDepth == 0 {
		c.MaxTaskDepth = 5
	}
	if c.TaskTimeout == 0 {
		c.TaskTimeout = 60 * time.Second
	}
	c.Cache = c.Cache.withDefaults()
	return c
}

// Orchestrator is the top-level type backing the orchestrate() entry point
// of spec §6. One Orchestrator owns one agent.Context (and therefore one
// broker and registry), one Planner, one Coordinator, the Response/Intent
// caches, and a Fallback Engine.
type Orchestrator struct {
	cfg Config

	agentCtx    *agent.Context
	planner     *planner.Planner
	coordinator *coordinator.Coordinator
	llmClient   llm.Client

	responseCache *cache.ResponseCache
	intentCache   *cache.IntentCache
	fallback      *fallback.Engine

	logger *slog.Logger
	trace  *observability.TraceManager
	metric *observability.MetricsManager
}

// New builds an Orchestrator over an already-populated agent.Context (the
// registry's agents are expected to be activated by the caller before the
// first Orchestrate call, per spec §4.3 "discover() ... used by the
// planner").
func New(cfg Config, agentCtx *agent.Context, llmClient llm.Client, fallbackEngine *fallback.Engine, logger *slog.Logger, trace *observability.TraceManager, metric *observability.MetricsManager) *Orchestrator {
	cfg = cfg.withDefaults()

	coordCfg := coordinator.Config{
		Parallel:    cfg.ParallelExecution,
		TaskTimeout: cfg.TaskTimeout,
		MaxRetries:  cfg.MaxRetries,
	}

	return &Orchestrator{
		cfg:           cfg,
		agentCtx:      agentCtx,
		planner:       planner.New(llmClient, cfg.LLMModel, logger),
		coordinator:   coordinator.New(coordCfg, agentCtx.Broker, logger, trace, metric),
		llmClient:     llmClient,
		responseCache: cache.NewResponseCache(cfg.Cache.MaxSize, cfg.Cache.TTL),
		intentCache:   cache.NewIntentCache(cfg.Cache.MaxSize, cfg.Cache.TTL),
		fallback:      fallbackEngine,
		logger:        logger,
		trace:         trace,
		metric:        metric,
	}
}

const synthesisTemperature = 0.3
const synthesisMaxTokens = 1024

// genericApology is returned when synthesis and the fallback engine both
// fail to produce a usable answer (spec §7 "RuleMatchMiss ... caller emits
// a generic apology string").
const genericApology = "I'm sorry, I wasn't able to put together an answer for that right now."

// Orchestrate is the public orchestrate() entry point of spec §6: plan,
// dispatch, collect, synthesize. It never returns an error to the caller —
// every failure mode downgrades to the fallback path or the generic
// apology, an "always respond" UX even when every upstream dependency is
// unavailable.
func (o *Orchestrator) Orchestrate(ctx context.Context, request string, userContext task.UserContext) string {
	start := time.Now()
	ctx, span := o.trace.StartSpan(ctx, "orchestrator.orchestrate")
	defer span.End()

	normalizedPrompt := request
	if np := normalize.NormalizePrompt(&request); np != nil {
		normalizedPrompt = *np
	}

	agents := o.agentCtx.Discover()

	plan, plannerErr := o.planWithIntentCache(ctx, request, normalizedPrompt, agents)
	if plannerErr != nil {
		o.trace.AddSpanEvent(span, "planner_fallback", attribute.String("kind", plannerErr.Kind.String()))
	}

	wf := coordinator.NewWorkflow(uuid.NewString(), request, userContext, plan)
	if err := o.coordinator.Execute(ctx, wf); err != nil {
		o.logger.WarnContext(ctx, "orchestrator: workflow execution failed", "workflow", wf.ID, "error", err)
	}

	answer := o.synthesize(ctx, request, wf)
	if o.metric != nil {
		o.metric.RecordWorkflowDuration(ctx, time.Since(start))
	}
	return answer
}

// planWithIntentCache short-circuits the Planner for a repeat normalized
// prompt via the Intent Cache (spec §4.8), falling through to
// planner.Planner.Plan on a miss and populating the cache on a confident
// LLM-path result.
func (o *Orchestrator) planWithIntentCache(ctx context.Context, request, normalizedPrompt string, agents []agent.AgentInfo) (*planner.ExecutionPlan, *planner.PlannerError) {
	if o.cfg.TaskCaching {
		if cached, ok := o.intentCache.Get(normalizedPrompt); ok {
			if o.metric != nil {
				o.metric.IncrementCacheHits(ctx, "intent")
			}
			return planFromCachedIntent(cached), nil
		}
		if o.metric != nil {
			o.metric.IncrementCacheMisses(ctx, "intent")
		}
	}

	plan, plannerErr := o.planner.Plan(ctx, request, agents)
	o.enforceMaxTaskDepth(ctx, plan)

	if o.cfg.TaskCaching && plannerErr == nil && len(plan.Steps) > 0 {
		step := plan.Steps[0]
		o.intentCache.Put(normalizedPrompt, cache.CachedIntent{
			Intent:      step.Capability,
			TargetAgent: step.Capability,
			Confidence:  plan.Confidence,
			Parameters:  step.Parameters,
			Reasoning:   plan.Reasoning,
		})
	}
	return plan, plannerErr
}

// enforceMaxTaskDepth trims a plan down to Config.MaxTaskDepth steps (spec
// §6 "maxTaskDepth"), dropping dependency references to discarded steps so
// the DAG invariant still holds. Plans from both the LLM path and the
// keyword router pass through here; the keyword router's single-step plans
// are never affected.
func (o *Orchestrator) enforceMaxTaskDepth(ctx context.Context, plan *planner.ExecutionPlan) {
	if plan == nil || len(plan.Steps) <= o.cfg.MaxTaskDepth {
		return
	}
	o.logger.WarnContext(ctx, "orchestrator: plan exceeds maxTaskDepth, truncating", "steps", len(plan.Steps), "maxTaskDepth", o.cfg.MaxTaskDepth)

	kept := make(map[string]struct{}, o.cfg.MaxTaskDepth)
	plan.Steps = plan.Steps[:o.cfg.MaxTaskDepth]
	for _, s := range plan.Steps {
		kept[s.ID] = struct{}{}
	}
	for stepID, deps := range plan.Dependencies {
		if _, ok := kept[stepID]; !ok {
			delete(plan.Dependencies, stepID)
			continue
		}
		filtered := deps[:0]
		for _, dep := range deps {
			if _, ok := kept[dep]; ok {
				filtered = append(filtered, dep)
			}
		}
		plan.Dependencies[stepID] = filtered
	}
}

// planFromCachedIntent rebuilds a single-step ExecutionPlan from a cached
// intent, the same shape the keyword router produces.
func planFromCachedIntent(intent cache.CachedIntent) *planner.ExecutionPlan {
	return &planner.ExecutionPlan{
		Steps: []planner.TaskStep{{
			ID:         "s1",
			Capability: intent.TargetAgent,
			Parameters: intent.Parameters,
			Priority:   5,
		}},
		Dependencies: map[string][]string{},
		Reasoning:    intent.Reasoning,
		Confidence:   intent.Confidence,
	}
}

// synthesize produces the final answer string from a completed workflow's
// results via the LLM, consulting the Response Cache first and the
// Fallback Engine if the LLM is unavailable (spec §4.7/§4.9).
func (o *Orchestrator) synthesize(ctx context.Context, request string, wf *coordinator.Workflow) string {
	if wf.Err != nil && len(wf.Results) == 0 {
		return o.fallbackAnswer(ctx, request)
	}

	prompt := buildSynthesisPrompt(request, wf)
	normalizedPrompt := prompt
	if np := normalize.NormalizePrompt(&prompt); np != nil {
		normalizedPrompt = *np
	}

	if o.cfg.TaskCaching {
		key := cache.ResponseKey(normalizedPrompt, o.cfg.LLMModel, synthesisTemperature, synthesisMaxTokens)
		if cached, ok := o.responseCache.Get(key); ok {
			if o.metric != nil {
				o.metric.IncrementCacheHits(ctx, "response")
			}
			return cached
		}
		if o.metric != nil {
			o.metric.IncrementCacheMisses(ctx, "response")
		}
		answer, err := o.llmClient.Complete(ctx, llm.CompletionRequest{
			Prompt:      prompt,
			Model:       o.cfg.LLMModel,
			Temperature: synthesisTemperature,
			MaxTokens:   synthesisMaxTokens,
		})
		if err != nil {
			o.logger.WarnContext(ctx, "orchestrator: synthesis LLM call failed, falling back", "error", err)
			return o.fallbackAnswer(ctx, request)
		}
		o.responseCache.Put(key, answer)
		if o.fallback != nil {
			o.fallback.Learn(request, answer)
		}
		return answer
	}

	answer, err := o.llmClient.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Model:       o.cfg.LLMModel,
		Temperature: synthesisTemperature,
		MaxTokens:   synthesisMaxTokens,
	})
	if err != nil {
		o.logger.WarnContext(ctx, "orchestrator: synthesis LLM call failed, falling back", "error", err)
		return o.fallbackAnswer(ctx, request)
	}
	if o.fallback != nil {
		o.fallback.Learn(request, answer)
	}
	return answer
}

// fallbackAnswer consults the Fallback Engine (spec §4.9), downgrading to
// the generic apology string when no rule clears the confidence floor
// (spec §7 "RuleMatchMiss").
func (o *Orchestrator) fallbackAnswer(ctx context.Context, request string) string {
	if o.fallback == nil {
		return genericApology
	}
	answer, err := o.fallback.Match(request)
	if err != nil {
		if o.metric != nil {
			o.metric.IncrementFallbackInvoked(ctx, "miss")
		}
		return genericApology
	}
	if o.metric != nil {
		o.metric.IncrementFallbackInvoked(ctx, "hit")
	}
	return answer
}

// buildSynthesisPrompt assembles the synthesis prompt from the user's
// original request and every step result the workflow collected, in the
// style of cortex.Client.buildOrchestrationPrompt's enumerate-then-ask
// shape (SPEC_FULL.md §4.5).
func buildSynthesisPrompt(request string, wf *coordinator.Workflow) string {
	out := fmt.Sprintf("User asked: %s\n\nResults collected so far:\n", request)
	for _, step := range wf.Plan.Steps {
		status := wf.TaskStatus[step.ID]
		if result, ok := wf.Results[step.ID]; ok {
			out += fmt.Sprintf("- %s (%s): %v\n", step.Capability, status, result)
		} else if stepErr, ok := wf.StepErrors[step.ID]; ok {
			out += fmt.Sprintf("- %s (%s): error: %v\n", step.Capability, status, stepErr)
		}
	}
	out += "\nSynthesize a single, direct answer to the user's request from the results above."
	return out
}
