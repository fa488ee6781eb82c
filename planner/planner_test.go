package planner_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/meshhub/agent"
	"github.com/agentmesh/meshhub/llm"
	"github.com/agentmesh/meshhub/planner"
)

func testAgents() []agent.AgentInfo {
	return []agent.AgentInfo{
		{ID: "weather-1", Description: "weather", Capabilities: []string{"weather.current"}},
		{ID: "stock-1", Description: "stock", Capabilities: []string{"stock.quote"}},
		{ID: "travel-1", Description: "travel", Capabilities: []string{"travel.plan"}},
		{ID: "chat-1", Description: "chat", Capabilities: []string{"chat.general"}},
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPlanFallsBackToKeywordRouterOnLLMFailure(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return "", assertErr{}
	}
	p := planner.New(client, "test-model", newTestLogger())

	plan, plannerErr := p.Plan(context.Background(), "stock price of AAPL", testAgents())
	require.NotNil(t, plannerErr)
	assert.Equal(t, planner.LLMUnavailable, plannerErr.Kind)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "stock.quote", plan.Steps[0].Capability)
	assert.LessOrEqual(t, plan.Confidence, 0.7)
}

func TestPlanFallsBackOnMalformedJSON(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return "not json at all", nil
	}
	p := planner.New(client, "test-model", newTestLogger())

	plan, plannerErr := p.Plan(context.Background(), "what's the weather in Paris", testAgents())
	require.NotNil(t, plannerErr)
	assert.Equal(t, planner.MalformedPlan, plannerErr.Kind)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "weather.current", plan.Steps[0].Capability)
}

func TestPlanFallsBackOnLowConfidence(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return `{"steps":[{"id":"s1","capability":"chat.general","description":"d","parameters":{},"priority":1,"canParallelize":false}],"dependencies":{},"reasoning":"low confidence","confidence":0.1,"synthesisStrategy":"direct"}`, nil
	}
	p := planner.New(client, "test-model", newTestLogger())

	_, plannerErr := p.Plan(context.Background(), "help me plan a trip to Nice", testAgents())
	require.NotNil(t, plannerErr)
}

func TestPlanAcceptsConfidentLLMPlan(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return `{"steps":[{"id":"s1","capability":"travel.plan","description":"plan trip","parameters":{},"priority":5,"canParallelize":false}],"dependencies":{},"reasoning":"direct travel match","confidence":0.9,"synthesisStrategy":"direct"}`, nil
	}
	p := planner.New(client, "test-model", newTestLogger())

	plan, plannerErr := p.Plan(context.Background(), "plan a trip to Nice", testAgents())
	require.Nil(t, plannerErr)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "travel.plan", plan.Steps[0].Capability)
	assert.Equal(t, 0.9, plan.Confidence)
}

func TestPlanFallsBackOnDependencyCycle(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return `{"steps":[` +
			`{"id":"s1","capability":"weather.current","description":"d1","parameters":{},"priority":1,"canParallelize":false},` +
			`{"id":"s2","capability":"travel.plan","description":"d2","parameters":{},"priority":1,"canParallelize":false}` +
			`],"dependencies":{"s1":["s2"],"s2":["s1"]},"reasoning":"cyclic","confidence":0.95,"synthesisStrategy":"direct"}`, nil
	}
	p := planner.New(client, "test-model", newTestLogger())

	plan, plannerErr := p.Plan(context.Background(), "plan a trip to Nice with the weather", testAgents())
	require.NotNil(t, plannerErr)
	assert.Equal(t, planner.MalformedPlan, plannerErr.Kind)
	require.Len(t, plan.Steps, 1, "must fall back to the single-step keyword router, not the cyclic plan")
}

func TestKeywordRouterDeterministic(t *testing.T) {
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return "", assertErr{}
	}
	p := planner.New(client, "test-model", newTestLogger())

	plan1, _ := p.Plan(context.Background(), "what is the weather in paris", testAgents())
	plan2, _ := p.Plan(context.Background(), "what is the weather in paris", testAgents())
	assert.Equal(t, plan1.Steps[0].Capability, plan2.Steps[0].Capability)
	assert.Equal(t, plan1.Confidence, plan2.Confidence)
}

type assertErr struct{}

func (assertErr) Error() string { return "llm unavailable" }
