package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/meshhub/agent"
	"github.com/agentmesh/meshhub/agents/chat"
	"github.com/agentmesh/meshhub/broker"
	"github.com/agentmesh/meshhub/event"
	"github.com/agentmesh/meshhub/fallback"
	"github.com/agentmesh/meshhub/internal/observability"
	"github.com/agentmesh/meshhub/llm"
	"github.com/agentmesh/meshhub/task"
)

func newTestContext(t *testing.T) (*agent.Context, *broker.Broker) {
	t.Helper()
	logger, trace, metrics := observability.NewForTesting("meshhub-test")
	b := broker.New(broker.Config{Workers: 2, QueueSize: 16}, logger, trace, metrics)
	t.Cleanup(func() { _ = b.Close() })
	return agent.NewContext(b, logger, trace, metrics), b
}

func newTestFallback(t *testing.T) *fallback.Engine {
	t.Helper()
	store, err := fallback.NewRuleStore(t.TempDir())
	require.NoError(t, err)
	logger, _, _ := observability.NewForTesting("meshhub-test")
	engine, err := fallback.New(fallback.Config{MinConfidence: 1}, store, logger)
	require.NoError(t, err)
	return engine
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

func publishChat(t *testing.T, b *broker.Broker, taskID, prompt, replyTopic string) {
	t.Helper()
	req := task.Request{TaskID: taskID, Capability: "chat.general", Parameters: map[string]any{"prompt": prompt}, ReplyTopic: replyTopic}
	reqEvent, err := task.BuildRequest(req, "test", event.DeliveryOptions{})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), reqEvent))
}

func TestChatAgentUsesLLMWhenAvailable(t *testing.T) {
	ctx, b := newTestContext(t)
	client := llm.NewMockClient()
	client.CompleteFunc = func(_ context.Context, req llm.CompletionRequest) (string, error) {
		return "hello back: " + req.Prompt, nil
	}
	logger, _, _ := observability.NewForTesting("meshhub-test")
	require.NoError(t, ctx.Register("chat", chat.NewFactory(client, "test-model", newTestFallback(t), logger), "chat", chat.Capabilities))
	_, err := ctx.Activate(context.Background(), "chat")
	require.NoError(t, err)

	replies := collect(t, b, "reply.topic.1")
	publishChat(t, b, "t1", "good morning", "reply.topic.1")

	select {
	case resp := <-replies:
		assert.True(t, resp.Success)
		assert.Equal(t, "hello back: good morning", resp.Result["response"])
		assert.Equal(t, "llm", resp.Result["source"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat agent response")
	}
}

func TestChatAgentFallsBackWhenLLMFails(t *testing.T) {
	ctx, b := newTestContext(t)
	client := llm.NewMockClient()
	client.CompleteFunc = func(_ context.Context, req llm.CompletionRequest) (string, error) {
		return "", errors.New("backend unreachable")
	}
	logger, _, _ := observability.NewForTesting("meshhub-test")
	require.NoError(t, ctx.Register("chat", chat.NewFactory(client, "test-model", newTestFallback(t), logger), "chat", chat.Capabilities))
	_, err := ctx.Activate(context.Background(), "chat")
	require.NoError(t, err)

	replies := collect(t, b, "reply.topic.2")
	publishChat(t, b, "t2", "what is the weather like", "reply.topic.2")

	select {
	case resp := <-replies:
		assert.True(t, resp.Success)
		assert.Equal(t, "fallback", resp.Result["source"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat agent response")
	}
}

func TestChatAgentFailsOnMissingPrompt(t *testing.T) {
	ctx, b := newTestContext(t)
	client := llm.NewMockClient()
	logger, _, _ := observability.NewForTesting("meshhub-test")
	require.NoError(t, ctx.Register("chat", chat.NewFactory(client, "test-model", newTestFallback(t), logger), "chat", chat.Capabilities))
	_, err := ctx.Activate(context.Background(), "chat")
	require.NoError(t, err)

	replies := collect(t, b, "reply.topic.3")
	req := task.Request{TaskID: "t3", Capability: "chat.general", Parameters: map[string]any{}, ReplyTopic: "reply.topic.3"}
	reqEvent, err := task.BuildRequest(req, "test", event.DeliveryOptions{})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), reqEvent))

	select {
	case resp := <-replies:
		assert.False(t, resp.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat agent response")
	}
}
