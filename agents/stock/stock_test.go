package stock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/meshhub/agent"
	"github.com/agentmesh/meshhub/agents/stock"
	"github.com/agentmesh/meshhub/broker"
	"github.com/agentmesh/meshhub/event"
	"github.com/agentmesh/meshhub/internal/observability"
	"github.com/agentmesh/meshhub/task"
	"github.com/agentmesh/meshhub/tool/mockstock"
)

func newTestContext(t *testing.T) (*agent.Context, *broker.Broker) {
	t.Helper()
	logger, trace, metrics := observability.NewForTesting("meshhub-test")
	b := broker.New(broker.Config{Workers: 2, QueueSize: 16}, logger, trace, metrics)
	t.Cleanup(func() { _ = b.Close() })
	return agent.NewContext(b, logger, trace, metrics), b
}

func TestStockAgentRespondsToQuoteRequest(t *testing.T) {
	ctx, b := newTestContext(t)
	require.NoError(t, ctx.Register("stock", stock.NewFactory(mockstock.New()), "stock", stock.Capabilities))
	_, err := ctx.Activate(context.Background(), "stock")
	require.NoError(t, err)

	replies := make(chan task.Response, 1)
	require.NoError(t, b.Subscribe("test-collector", "reply.topic.1", func(ctx context.Context, e event.Event) error {
		resp, err := task.ParseResponse(e)
		if err != nil {
			return err
		}
		replies <- resp
		return nil
	}))

	req := task.Request{TaskID: "t1", Capability: "stock.quote", Parameters: map[string]any{"ticker": "msft"}, ReplyTopic: "reply.topic.1"}
	reqEvent, err := task.BuildRequest(req, "test", event.DeliveryOptions{})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), reqEvent))

	select {
	case resp := <-replies:
		assert.True(t, resp.Success)
		assert.Equal(t, "MSFT", resp.Result["ticker"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stock agent response")
	}
}

func TestStockAgentFailsOnMissingTicker(t *testing.T) {
	ctx, b := newTestContext(t)
	require.NoError(t, ctx.Register("stock", stock.NewFactory(mockstock.New()), "stock", stock.Capabilities))
	_, err := ctx.Activate(context.Background(), "stock")
	require.NoError(t, err)

	replies := make(chan task.Response, 1)
	require.NoError(t, b.Subscribe("test-collector", "reply.topic.2", func(ctx context.Context, e event.Event) error {
		resp, err := task.ParseResponse(e)
		if err != nil {
			return err
		}
		replies <- resp
		return nil
	}))

	req := task.Request{TaskID: "t2", Capability: "stock.quote", Parameters: map[string]any{}, ReplyTopic: "reply.topic.2"}
	reqEvent, err := task.BuildRequest(req, "test", event.DeliveryOptions{})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), reqEvent))

	select {
	case resp := <-replies:
		assert.False(t, resp.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stock agent response")
	}
}
