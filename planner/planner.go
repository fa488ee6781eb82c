// Package planner builds an ExecutionPlan from a user request and the
// current capability set (spec §4.5): an LLM-driven structured-prompt
// decomposition, falling through to a deterministic keyword router whenever
// the LLM path is unavailable, malformed, or under-confident.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentmesh/meshhub/agent"
	"github.com/agentmesh/meshhub/llm"
	"github.com/agentmesh/meshhub/normalize"
)

// TaskStep is the spec §3 TaskStep type.
type TaskStep struct {
	ID             string         `json:"id"`
	Capability     string         `json:"capability"`
	Description    string         `json:"description"`
	Parameters     map[string]any `json:"parameters"`
	Priority       int            `json:"priority"`
	CanParallelize bool           `json:"canParallelize"`
}

// ExecutionPlan is the spec §3 ExecutionPlan type. Dependencies maps a step
// id to the set of step ids it depends on; the map defines a DAG with no
// self-loops and every referenced id present in Steps.
type ExecutionPlan struct {
	Steps             []TaskStep          `json:"steps"`
	Dependencies      map[string][]string `json:"dependencies"`
	Reasoning         string              `json:"reasoning"`
	Confidence        float64             `json:"confidence"`
	SynthesisStrategy string              `json:"synthesisStrategy"`
}

// ErrorKind is the PlannerError sum type of Design Note
// "Exception-for-control-flow" (spec §9 / §7).
type ErrorKind int

const (
	NoError ErrorKind = iota
	LLMUnavailable
	MalformedPlan
	Timeout
)

func (k ErrorKind) String() string {
	switch k {
	case LLMUnavailable:
		return "LLMUnavailable"
	case MalformedPlan:
		return "MalformedPlan"
	case Timeout:
		return "Timeout"
	default:
		return "NoError"
	}
}

// PlannerError carries an ErrorKind plus context, satisfying Go's error
// interface so callers may still use errors.Is/As while branching
// explicitly on Kind where the sum-type semantics matter (spec §9).
type PlannerError struct {
	Kind    ErrorKind
	Message string
}

func (e *PlannerError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("planner: %s: %s", e.Kind, e.Message)
}

const minConfidence = 0.5

// Planner decomposes a user request into an ExecutionPlan.
type Planner struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// New builds a Planner calling client for its LLM-driven path.
func New(client llm.Client, model string, logger *slog.Logger) *Planner {
	return &Planner{client: client, model: model, logger: logger}
}

// Plan builds an ExecutionPlan for prompt against the given agent
// catalogue. A non-nil *PlannerError is returned only to annotate which
// fallback path executed; the returned plan is never nil when err's Kind is
// NoError, and is the keyword-router plan whenever err.Kind != NoError.
func (p *Planner) Plan(ctx context.Context, prompt string, agents []agent.AgentInfo) (*ExecutionPlan, *PlannerError) {
	normalizedPrompt := ""
	if np := normalize.NormalizePrompt(&prompt); np != nil {
		normalizedPrompt = *np
	}

	plan, kind, err := p.planViaLLM(ctx, prompt, agents)
	if err == nil && kind == NoError && plan.Confidence >= minConfidence {
		return plan, nil
	}

	fallbackKind := kind
	if fallbackKind == NoError {
		fallbackKind = MalformedPlan
	}
	if err != nil {
		p.logger.WarnContext(ctx, "planner: LLM path failed, falling back to keyword router", "error", err, "kind", fallbackKind)
	}

	routed := keywordRouter(normalizedPrompt, agents)
	return routed, &PlannerError{Kind: fallbackKind, Message: "falling back to keyword router"}
}

func (p *Planner) planViaLLM(ctx context.Context, prompt string, agents []agent.AgentInfo) (*ExecutionPlan, ErrorKind, error) {
	if ctx.Err() != nil {
		return nil, Timeout, ctx.Err()
	}

	planPrompt := buildPlanningPrompt(prompt, agents)
	response, err := p.client.Complete(ctx, llm.CompletionRequest{
		Prompt:      planPrompt,
		Model:       p.model,
		Temperature: 0,
		MaxTokens:   1024,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, Timeout, err
		}
		return nil, LLMUnavailable, err
	}

	plan, err := parsePlan(response)
	if err != nil {
		return nil, MalformedPlan, err
	}
	if err := validatePlan(plan); err != nil {
		return nil, MalformedPlan, err
	}
	return plan, NoError, nil
}

// buildPlanningPrompt enumerates available agents/capabilities in the same
// style as cortex.Client.buildOrchestrationPrompt, demanding the strict
// JSON schema spec §4.5 names.
func buildPlanningPrompt(prompt string, agents []agent.AgentInfo) string {
	var b strings.Builder
	b.WriteString("You are the planner of an agent mesh orchestrator.\n\n")
	b.WriteString("Available agents:\n")
	for _, a := range agents {
		fmt.Fprintf(&b, "- %s: %s (capabilities: %s)\n", a.ID, a.Description, strings.Join(a.Capabilities, ", "))
	}
	b.WriteString("\nUser request: ")
	b.WriteString(prompt)
	b.WriteString("\n\nRespond with a JSON object of this exact shape:\n")
	b.WriteString(`{"steps":[{"id":"...","capability":"...","description":"...","parameters":{},"priority":1,"canParallelize":false}],` +
		`"dependencies":{"stepId":["otherStepId"]},"reasoning":"...","confidence":0.0,"synthesisStrategy":"..."}` + "\n")
	return b.String()
}

func parsePlan(response string) (*ExecutionPlan, error) {
	jsonStr := extractJSON(response)
	var plan ExecutionPlan
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil {
		return nil, fmt.Errorf("parse plan JSON: %w", err)
	}
	return &plan, nil
}

func extractJSON(response string) string {
	s := strings.TrimSpace(response)
	if strings.Contains(s, "```") {
		start := strings.Index(s, "```")
		rest := s[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

// validatePlan checks the DAG invariant of spec §3: no self-loops, every
// referenced dependency id exists among steps, and the dependency graph as a
// whole is acyclic.
func validatePlan(plan *ExecutionPlan) error {
	if len(plan.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	ids := make(map[string]struct{}, len(plan.Steps))
	for _, s := range plan.Steps {
		if s.ID == "" || s.Capability == "" {
			return fmt.Errorf("step missing id or capability")
		}
		ids[s.ID] = struct{}{}
	}
	for stepID, deps := range plan.Dependencies {
		if _, ok := ids[stepID]; !ok {
			return fmt.Errorf("dependency references unknown step %q", stepID)
		}
		for _, dep := range deps {
			if dep == stepID {
				return fmt.Errorf("step %q depends on itself", stepID)
			}
			if _, ok := ids[dep]; !ok {
				return fmt.Errorf("step %q depends on unknown step %q", stepID, dep)
			}
		}
	}
	return detectCycle(plan)
}

// detectCycle walks the dependency graph with a three-color DFS (white/gray/
// black), returning an error that names the cycle the moment a gray node is
// revisited. Catches multi-node cycles (s1 -> s2 -> s1) that the pairwise
// self-loop check above does not.
func detectCycle(plan *ExecutionPlan) error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(plan.Steps))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		path = append(path, id)
		for _, dep := range plan.Dependencies[id] {
			switch color[dep] {
			case gray:
				return fmt.Errorf("dependency cycle detected: %s -> %s", strings.Join(path, " -> "), dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, s := range plan.Steps {
		if color[s.ID] == white {
			if err := visit(s.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
