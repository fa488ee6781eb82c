package travel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/meshhub/agent"
	"github.com/agentmesh/meshhub/agents/travel"
	"github.com/agentmesh/meshhub/broker"
	"github.com/agentmesh/meshhub/event"
	"github.com/agentmesh/meshhub/internal/observability"
	"github.com/agentmesh/meshhub/task"
)

func newTestContext(t *testing.T) (*agent.Context, *broker.Broker) {
	t.Helper()
	logger, trace, metrics := observability.NewForTesting("meshhub-test")
	b := broker.New(broker.Config{Workers: 2, QueueSize: 16}, logger, trace, metrics)
	t.Cleanup(func() { _ = b.Close() })
	return agent.NewContext(b, logger, trace, metrics), b
}

func activateTravel(t *testing.T) (*agent.Context, *broker.Broker) {
	t.Helper()
	ctx, b := newTestContext(t)
	require.NoError(t, ctx.Register("travel", travel.NewFactory(), "travel", travel.Capabilities))
	_, err := ctx.Activate(context.Background(), "travel")
	require.NoError(t, err)
	return ctx, b
}

func collect(t *testing.T, b *broker.Broker, topic string) <-chan task.Response {
	t.Helper()
	replies := make(chan task.Response, 1)
	require.NoError(t, b.Subscribe("test-collector-"+topic, topic, func(ctx context.Context, e event.Event) error {
		resp, err := task.ParseResponse(e)
		if err != nil {
			return err
		}
		replies <- resp
		return nil
	}))
	return replies
}

func TestTravelAgentFoldsInWeatherDependency(t *testing.T) {
	_, b := activateTravel(t)
	replies := collect(t, b, "reply.topic.1")

	req := task.Request{
		TaskID:     "t1",
		Capability: "travel.plan",
		Parameters: map[string]any{
			"location": "Nice,FR",
			"dependencyResults": map[string]any{
				"weather-step": map[string]any{"temperatureC": 18.0, "conditions": "sunny"},
			},
		},
		ReplyTopic: "reply.topic.1",
	}
	reqEvent, err := task.BuildRequest(req, "test", event.DeliveryOptions{})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), reqEvent))

	select {
	case resp := <-replies:
		assert.True(t, resp.Success)
		assert.Contains(t, resp.Result["advisory"], "sunny")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for travel agent response")
	}
}

func TestTravelAgentWithoutDependencyStillSucceeds(t *testing.T) {
	_, b := activateTravel(t)
	replies := collect(t, b, "reply.topic.2")

	req := task.Request{
		TaskID:     "t2",
		Capability: "travel.plan",
		Parameters: map[string]any{"location": "Rome,IT"},
		ReplyTopic: "reply.topic.2",
	}
	reqEvent, err := task.BuildRequest(req, "test", event.DeliveryOptions{})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), reqEvent))

	select {
	case resp := <-replies:
		assert.True(t, resp.Success)
		assert.Equal(t, "No weather forecast available for this trip.", resp.Result["advisory"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for travel agent response")
	}
}

func TestTravelAgentFailsOnMissingLocation(t *testing.T) {
	_, b := activateTravel(t)
	replies := collect(t, b, "reply.topic.3")

	req := task.Request{TaskID: "t3", Capability: "travel.plan", Parameters: map[string]any{}, ReplyTopic: "reply.topic.3"}
	reqEvent, err := task.BuildRequest(req, "test", event.DeliveryOptions{})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), reqEvent))

	select {
	case resp := <-replies:
		assert.False(t, resp.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for travel agent response")
	}
}
